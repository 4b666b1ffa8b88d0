package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundflow/fundflow/internal/model"
)

func f64(v float64) *float64 { return &v }

func TestMatchProtocolExactSlug(t *testing.T) {
	protos := []llamaProtocol{
		{Name: "Aave V2", Slug: "aave-v2", TVL: f64(100)},
		{Name: "Aave", Slug: "aave", TVL: f64(500)},
	}
	got := matchProtocol(protos, "aave")
	require.NotNil(t, got)
	assert.Equal(t, "aave", got.Slug)
}

func TestMatchProtocolExactName(t *testing.T) {
	protos := []llamaProtocol{
		{Name: "Lido Finance", Slug: "lido-fi", TVL: f64(100)},
	}
	got := matchProtocol(protos, "lido-finance")
	require.NotNil(t, got)
	assert.Equal(t, "lido-fi", got.Slug)
}

func TestMatchProtocolSubstringPrefersHighestTVL(t *testing.T) {
	protos := []llamaProtocol{
		{Name: "Uniswap V2", Slug: "uniswap-v2", TVL: f64(100)},
		{Name: "Uniswap V3", Slug: "uniswap-v3", TVL: f64(900)},
	}
	got := matchProtocol(protos, "uniswap")
	require.NotNil(t, got)
	assert.Equal(t, "uniswap-v3", got.Slug)
}

func TestMatchProtocolSkipsBridges(t *testing.T) {
	protos := []llamaProtocol{
		{Name: "Arbitrum Bridge", Slug: "arbitrum-bridge", TVL: f64(9000)},
	}
	assert.Nil(t, matchProtocol(protos, "arbitrum"))

	got := matchProtocol(protos, "arbitrum-bridge")
	require.NotNil(t, got)
}

func TestMatchProtocolNoMatch(t *testing.T) {
	protos := []llamaProtocol{{Name: "Aave", Slug: "aave"}}
	assert.Nil(t, matchProtocol(protos, "compound"))
}

func TestDefiLlamaFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/protocols":
			_ = json.NewEncoder(w).Encode([]llamaProtocol{
				{
					Name:     "Aave",
					Slug:     "aave",
					Symbol:   "aave",
					Category: "Lending",
					TVL:      f64(12_000_000_000),
					Change1m: f64(-3.2),
				},
			})
		case "/summary/fees/aave":
			_ = json.NewEncoder(w).Encode(llamaFees{Total24h: f64(450_000)})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := NewDefiLlama(srv.URL, 0.85)
	rec, err := d.Fetch(context.Background(), "aave")
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "defillama", rec.Source)
	assert.Equal(t, 12_000_000_000.0, rec.Fields[model.FieldTVLUSD])
	assert.Equal(t, -3.2, rec.Fields[model.FieldTVL30dChangePct])
	assert.Equal(t, "Lending", rec.Fields[model.FieldCategory])
	assert.Equal(t, "AAVE", rec.Fields[model.FieldTokenSymbol])
	assert.Equal(t, 450_000.0, rec.Fields[model.FieldRevenue24hUSD])
}

func TestDefiLlamaFetchUnmatchedSlugIsNegative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]llamaProtocol{{Name: "Aave", Slug: "aave"}})
	}))
	defer srv.Close()

	d := NewDefiLlama(srv.URL, 0.85)
	rec, err := d.Fetch(context.Background(), "definitely-not-listed")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Empty())
}

func TestDefiLlamaFeesMissIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/protocols" {
			_ = json.NewEncoder(w).Encode([]llamaProtocol{
				{Name: "Aave", Slug: "aave", TVL: f64(100)},
			})
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := NewDefiLlama(srv.URL, 0.85)
	rec, err := d.Fetch(context.Background(), "aave")
	require.NoError(t, err)
	assert.Equal(t, 100.0, rec.Fields[model.FieldTVLUSD])
	assert.NotContains(t, rec.Fields, model.FieldRevenue24hUSD)
}

func TestDefiLlamaCachesProtocolListing(t *testing.T) {
	var listCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/protocols" {
			listCalls++
			_ = json.NewEncoder(w).Encode([]llamaProtocol{
				{Name: "Aave", Slug: "aave", TVL: f64(100)},
			})
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := NewDefiLlama(srv.URL, 0.85)
	_, err := d.Fetch(context.Background(), "aave")
	require.NoError(t, err)
	_, err = d.Fetch(context.Background(), "aave")
	require.NoError(t, err)

	assert.Equal(t, 1, listCalls)
}
