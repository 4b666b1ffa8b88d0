package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fundflow/fundflow/internal/model"
	"github.com/fundflow/fundflow/internal/resilience"
)

// DefiLlama supplies protocol-native usage metrics: TVL, 30d change, and
// daily revenue. Free API, no key.
type DefiLlama struct {
	coverage
	http    *httpClient
	baseURL string
	trust   float64

	mu        sync.Mutex
	protocols []llamaProtocol
	fetchedAt time.Time
}

type llamaProtocol struct {
	Name     string   `json:"name"`
	Slug     string   `json:"slug"`
	Symbol   string   `json:"symbol"`
	Category string   `json:"category"`
	Chains   []string `json:"chains"`
	TVL      *float64 `json:"tvl"`
	Change7d *float64 `json:"change_7d"`
	Change1m *float64 `json:"change_1m"`
}

type llamaFees struct {
	Total24h *float64 `json:"total24h"`
}

// NewDefiLlama creates the DefiLlama adapter. baseURL defaults to the public
// API when empty.
func NewDefiLlama(baseURL string, trust float64) *DefiLlama {
	if baseURL == "" {
		baseURL = "https://api.llama.fi"
	}
	return &DefiLlama{
		coverage: newCoverage(
			model.FieldTVLUSD,
			model.FieldTVL30dChangePct,
			model.FieldRevenue24hUSD,
			model.FieldCategory,
			model.FieldTokenSymbol,
		),
		http:    newHTTPClient("defillama", 10*time.Second, 2),
		baseURL: baseURL,
		trust:   trust,
	}
}

func (d *DefiLlama) Name() string         { return "defillama" }
func (d *DefiLlama) TrustWeight() float64 { return d.trust }

// Fetch matches the slug against the protocol listing and returns usage
// metrics. An unmatched slug is a negative result, not an error.
func (d *DefiLlama) Fetch(ctx context.Context, slug string) (*model.CandidateRecord, error) {
	protos, err := d.listProtocols(ctx)
	if err != nil {
		return nil, err
	}

	best := matchProtocol(protos, slug)
	if best == nil {
		return &model.CandidateRecord{Source: d.Name(), ObservedAt: time.Now().UTC()}, nil
	}

	rec := &model.CandidateRecord{
		Source:     d.Name(),
		ObservedAt: time.Now().UTC(),
		Fields:     map[string]any{},
	}
	if best.TVL != nil {
		rec.Fields[model.FieldTVLUSD] = *best.TVL
	}
	if best.Change1m != nil {
		rec.Fields[model.FieldTVL30dChangePct] = *best.Change1m
	}
	if best.Category != "" {
		rec.Fields[model.FieldCategory] = best.Category
	}
	if best.Symbol != "" && best.Symbol != "-" {
		rec.Fields[model.FieldTokenSymbol] = strings.ToUpper(best.Symbol)
	}

	// Daily fees are a separate endpoint; a miss there is not fatal.
	var fees llamaFees
	feesURL := fmt.Sprintf("%s/summary/fees/%s", d.baseURL, best.Slug)
	if err := d.http.getJSON(ctx, feesURL, &fees); err != nil {
		if !resilience.IsNotFound(err) {
			zap.L().Debug("defillama: fees lookup failed",
				zap.String("slug", best.Slug), zap.Error(err))
		}
	} else if fees.Total24h != nil {
		rec.Fields[model.FieldRevenue24hUSD] = *fees.Total24h
	}

	return rec, nil
}

// listProtocols fetches and caches the full protocol listing for an hour.
func (d *DefiLlama) listProtocols(ctx context.Context) ([]llamaProtocol, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.protocols != nil && time.Since(d.fetchedAt) < time.Hour {
		return d.protocols, nil
	}

	var protos []llamaProtocol
	if err := d.http.getJSON(ctx, d.baseURL+"/protocols", &protos); err != nil {
		return nil, err
	}
	d.protocols = protos
	d.fetchedAt = time.Now()
	return protos, nil
}

// matchProtocol picks the listing entry for a slug: exact slug, then exact
// name, then the highest-TVL substring match. Bridge listings are skipped
// unless the slug names them explicitly.
func matchProtocol(protos []llamaProtocol, slug string) *llamaProtocol {
	var best *llamaProtocol
	for i := range protos {
		p := &protos[i]
		if strings.Contains(p.Slug, "-bridge") && !strings.Contains(slug, "bridge") {
			continue
		}
		if p.Slug == slug || model.Slugify(p.Name) == slug {
			return p
		}
		if strings.Contains(model.Slugify(p.Name), slug) {
			if best == nil || deref(p.TVL) > deref(best.TVL) {
				best = p
			}
		}
	}
	return best
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
