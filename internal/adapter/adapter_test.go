package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundflow/fundflow/internal/model"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, 0, reg.Len())
	assert.Nil(t, reg.Get("defillama"))

	a := NewStatic("defillama", 0.85, nil)
	reg.Register(a)

	require.Equal(t, 1, reg.Len())
	assert.Same(t, Adapter(a), reg.Get("defillama"))
}

func TestRegistryReplaceSameName(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewStatic("src", 0.5, nil))
	reg.Register(NewStatic("src", 0.9, nil))

	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 0.9, reg.TrustOf("src"))
}

func TestRegistryAllStableOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewStatic("newsfeed", 0.5, nil))
	reg.Register(NewStatic("cryptorank", 0.9, nil))
	reg.Register(NewStatic("github", 0.75, nil))

	assert.Equal(t, []string{"cryptorank", "github", "newsfeed"}, reg.Names())
}

func TestRegistryTrustOfUnknown(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, 0.0, reg.TrustOf("nope"))
}

func TestRegistryCovers(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewStatic("tvl-source", 0.8, nil, model.FieldTVLUSD))

	assert.True(t, reg.Covers("tvl-source", model.FieldTVLUSD))
	assert.False(t, reg.Covers("tvl-source", model.FieldTeamSize))
	assert.False(t, reg.Covers("unknown", model.FieldTVLUSD))
}

func TestStaticFetchHit(t *testing.T) {
	rec := &model.CandidateRecord{
		ObservedAt: time.Now().UTC(),
		Fields:     map[string]any{model.FieldTeamSize: 12},
	}
	s := NewStatic("seed", 0.7, map[string]*model.CandidateRecord{"aave": rec})

	got, err := s.Fetch(context.Background(), "aave")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "seed", got.Source)
	assert.Equal(t, 12, got.Fields[model.FieldTeamSize])
	assert.False(t, got.Empty())
}

func TestStaticFetchMissIsEmptyRecord(t *testing.T) {
	s := NewStatic("seed", 0.7, nil)

	got, err := s.Fetch(context.Background(), "missing")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Empty())
}

func TestStaticFail(t *testing.T) {
	boom := eris.New("boom")
	s := NewStatic("seed", 0.7, nil).Fail(boom)

	_, err := s.Fetch(context.Background(), "anything")
	assert.ErrorIs(t, err, boom)
}

func TestStaticHonorsContext(t *testing.T) {
	s := NewStatic("seed", 0.7, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Fetch(ctx, "aave")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStaticDefaultCoverage(t *testing.T) {
	s := NewStatic("seed", 0.7, nil)
	assert.Equal(t, model.AllFieldKeys(), s.Coverage())
}

func TestCandidateRecordEmpty(t *testing.T) {
	var nilRec *model.CandidateRecord
	assert.True(t, nilRec.Empty())
	assert.True(t, (&model.CandidateRecord{Source: "x"}).Empty())
	assert.False(t, (&model.CandidateRecord{
		FundingEvents: []model.CandidateFunding{{AmountUSD: 1}},
	}).Empty())
}
