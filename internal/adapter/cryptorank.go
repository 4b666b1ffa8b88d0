package adapter

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/fundflow/fundflow/internal/model"
	"github.com/fundflow/fundflow/internal/resilience"
)

// CryptoRank is the primary funding-intelligence source: rounds, amounts,
// investors, and token basics. Requires an API key.
type CryptoRank struct {
	coverage
	http    *httpClient
	baseURL string
	apiKey  string
	trust   float64
}

type crEnvelope struct {
	Data []crRound `json:"data"`
}

type crRound struct {
	Project struct {
		Name        string `json:"name"`
		Slug        string `json:"slug"`
		Symbol      string `json:"symbol"`
		Category    string `json:"category"`
		Description string `json:"description"`
		Website     string `json:"website"`
		TeamSize    int    `json:"teamSize"`
		Country     string `json:"country"`
	} `json:"project"`
	Type          string   `json:"type"`
	AmountUSD     float64  `json:"amountUsd"`
	AnnouncedDate string   `json:"announcedDate"`
	LeadInvestor  string   `json:"leadInvestor"`
	Investors     []string `json:"investors"`
}

// NewCryptoRank creates the CryptoRank adapter.
func NewCryptoRank(baseURL, apiKey string, trust float64) *CryptoRank {
	if baseURL == "" {
		baseURL = "https://api.cryptorank.io/v1"
	}
	return &CryptoRank{
		coverage: newCoverage(
			model.FieldFundingTotalUSD,
			model.FieldFundingRoundCount,
			model.FieldSector,
			model.FieldWebsite,
			model.FieldDescription,
			model.FieldTeamSize,
			model.FieldCountry,
			model.FieldHasToken,
			model.FieldTokenSymbol,
		),
		http:    newHTTPClient("cryptorank", 10*time.Second, 1),
		baseURL: baseURL,
		apiKey:  apiKey,
		trust:   trust,
	}
}

func (c *CryptoRank) Name() string         { return "cryptorank" }
func (c *CryptoRank) TrustWeight() float64 { return c.trust }

// Fetch queries funding rounds for one project slug. The API key travels as a
// query parameter, matching CryptoRank's auth scheme.
func (c *CryptoRank) Fetch(ctx context.Context, slug string) (*model.CandidateRecord, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("project", slug)
	q.Set("limit", "50")

	var env crEnvelope
	endpoint := fmt.Sprintf("%s/funding-rounds?%s", c.baseURL, q.Encode())
	if err := c.http.getJSON(ctx, endpoint, &env); err != nil {
		if resilience.IsNotFound(err) {
			return &model.CandidateRecord{Source: c.Name(), ObservedAt: time.Now().UTC()}, nil
		}
		return nil, err
	}

	rec := &model.CandidateRecord{
		Source:     c.Name(),
		ObservedAt: time.Now().UTC(),
	}
	if len(env.Data) == 0 {
		return rec, nil
	}

	var total float64
	for _, round := range env.Data {
		total += round.AmountUSD
		announced, err := time.Parse(time.RFC3339, round.AnnouncedDate)
		if err != nil {
			if announced, err = time.Parse("2006-01-02", round.AnnouncedDate); err != nil {
				continue
			}
		}
		rec.FundingEvents = append(rec.FundingEvents, model.CandidateFunding{
			AmountUSD:   round.AmountUSD,
			AnnouncedAt: announced.UTC(),
			RoundType:   model.ParseRoundType(round.Type),
			Investors:   round.Investors,
			LeadName:    round.LeadInvestor,
		})
	}

	p := env.Data[0].Project
	rec.Fields = map[string]any{
		model.FieldFundingTotalUSD:   total,
		model.FieldFundingRoundCount: len(rec.FundingEvents),
	}
	if p.Category != "" {
		rec.Fields[model.FieldSector] = p.Category
	}
	if p.Website != "" {
		rec.Fields[model.FieldWebsite] = p.Website
	}
	if p.Description != "" {
		rec.Fields[model.FieldDescription] = p.Description
	}
	if p.TeamSize > 0 {
		rec.Fields[model.FieldTeamSize] = p.TeamSize
	}
	if p.Country != "" {
		rec.Fields[model.FieldCountry] = p.Country
	}
	if p.Symbol != "" {
		rec.Fields[model.FieldHasToken] = true
		rec.Fields[model.FieldTokenSymbol] = p.Symbol
	}

	return rec, nil
}
