package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundflow/fundflow/internal/model"
)

var announce = time.Date(2025, 11, 4, 9, 30, 0, 0, time.UTC)

func fundingRecord(source string, events ...model.CandidateFunding) model.CandidateRecord {
	return model.CandidateRecord{
		Source:        source,
		ObservedAt:    mergeNow,
		FundingEvents: events,
	}
}

func TestMergeFundingDedupWithinTolerance(t *testing.T) {
	e := newTestEngine(map[string]float64{"cryptorank": 0.9, "newsfeed": 0.5}, nil)

	// $5.0M and $5.05M reported for the same day and round collapse.
	res := e.Merge("aave", nil, []model.CandidateRecord{
		fundingRecord("cryptorank", model.CandidateFunding{
			AmountUSD: 5_000_000, AnnouncedAt: announce, RoundType: model.RoundSeed,
		}),
		fundingRecord("newsfeed", model.CandidateFunding{
			AmountUSD: 5_050_000, AnnouncedAt: announce.Add(3 * time.Hour), RoundType: model.RoundSeed,
		}),
	}, nil, nil)

	require.Len(t, res.Project.FundingEvents, 1)
	ev := res.Project.FundingEvents[0]
	assert.Equal(t, 5_000_000.0, ev.AmountUSD)
	assert.False(t, ev.Conflict)
	assert.Equal(t, 0, res.Conflicts)
	assert.Len(t, ev.Sources, 2)
	assert.Equal(t, "cryptorank", ev.Sources[0].Source)
}

func TestMergeFundingAmountDisputeStaysOneEvent(t *testing.T) {
	e := newTestEngine(map[string]float64{"cryptorank": 0.9, "newsfeed": 0.5}, nil)

	// Same day and round but amounts 20% apart: one flagged event, winner by
	// confidence, both reports in provenance.
	res := e.Merge("aave", nil, []model.CandidateRecord{
		fundingRecord("cryptorank", model.CandidateFunding{
			AmountUSD: 10_000_000, AnnouncedAt: announce, RoundType: model.RoundSeriesA,
		}),
		fundingRecord("newsfeed", model.CandidateFunding{
			AmountUSD: 12_000_000, AnnouncedAt: announce, RoundType: model.RoundSeriesA,
		}),
	}, nil, nil)

	require.Len(t, res.Project.FundingEvents, 1)
	ev := res.Project.FundingEvents[0]
	assert.True(t, ev.Conflict)
	assert.Equal(t, 10_000_000.0, ev.AmountUSD)
	assert.Len(t, ev.Sources, 2)
	assert.Equal(t, 1, res.Conflicts)
}

func TestMergeFundingDifferentDaysStayDistinct(t *testing.T) {
	e := newTestEngine(map[string]float64{"cryptorank": 0.9}, nil)

	res := e.Merge("aave", nil, []model.CandidateRecord{
		fundingRecord("cryptorank",
			model.CandidateFunding{AmountUSD: 5_000_000, AnnouncedAt: announce, RoundType: model.RoundSeed},
			model.CandidateFunding{AmountUSD: 5_000_000, AnnouncedAt: announce.Add(48 * time.Hour), RoundType: model.RoundSeed},
		),
	}, nil, nil)

	require.Len(t, res.Project.FundingEvents, 2)
	assert.True(t, res.Project.FundingEvents[0].AnnouncedAt.Before(res.Project.FundingEvents[1].AnnouncedAt))
}

func TestMergeFundingRoundLabelMismatchStaysOneEvent(t *testing.T) {
	e := newTestEngine(map[string]float64{"cryptorank": 0.9, "newsfeed": 0.5}, nil)

	// The same raise tagged seed by one source and an unrecognized label by
	// another must not double-count: one flagged event, round from the
	// higher-confidence report.
	res := e.Merge("aave", nil, []model.CandidateRecord{
		fundingRecord("cryptorank", model.CandidateFunding{
			AmountUSD: 5_000_000, AnnouncedAt: announce, RoundType: model.RoundSeed,
		}),
		fundingRecord("newsfeed", model.CandidateFunding{
			AmountUSD: 5_000_000, AnnouncedAt: announce, RoundType: model.RoundOther,
		}),
	}, nil, nil)

	require.Len(t, res.Project.FundingEvents, 1)
	ev := res.Project.FundingEvents[0]
	assert.Equal(t, model.RoundSeed, ev.RoundType)
	assert.True(t, ev.Conflict)
	assert.Len(t, ev.Sources, 2)
	assert.Equal(t, 1, res.Conflicts)
}

func TestMergeFundingResolvesInvestors(t *testing.T) {
	e := newTestEngine(map[string]float64{"cryptorank": 0.9, "newsfeed": 0.5}, nil)

	res := e.Merge("aave", nil, []model.CandidateRecord{
		fundingRecord("cryptorank", model.CandidateFunding{
			AmountUSD:   5_000_000,
			AnnouncedAt: announce,
			RoundType:   model.RoundSeed,
			Investors:   []string{"Paradigm", "Polychain Capital"},
			LeadName:    "Paradigm",
		}),
		fundingRecord("newsfeed", model.CandidateFunding{
			AmountUSD:   5_000_000,
			AnnouncedAt: announce,
			RoundType:   model.RoundSeed,
			Investors:   []string{"Polychain Capital LLC", "Some Angel"},
		}),
	}, nil, nil)

	require.Len(t, res.Project.FundingEvents, 1)
	ev := res.Project.FundingEvents[0]
	assert.Equal(t, []string{"paradigm", "polychain-capital", "some-angel"}, ev.InvestorIDs)
	assert.Equal(t, "paradigm", ev.LeadID)

	require.Len(t, res.NewInvestors, 3)
	assert.Equal(t, model.TierTop, res.NewInvestors[0].Tier)
}

func TestMergeFundingLocalEventsCarryThrough(t *testing.T) {
	e := newTestEngine(map[string]float64{"github": 0.75}, nil)

	local := &model.Project{
		Slug:             "aave",
		LastReconciledAt: mergeNow.Add(-24 * time.Hour),
		FundingEvents: []model.FundingEvent{{
			AmountUSD:   3_000_000,
			AnnouncedAt: announce,
			RoundType:   model.RoundSeed,
			InvestorIDs: []string{"paradigm"},
		}},
	}

	res := e.Merge("aave", local, []model.CandidateRecord{
		record("github", map[string]any{model.FieldGithubStars: 100}),
	}, nil, []model.Investor{{ID: "paradigm", Name: "Paradigm", Tier: model.TierTop}})

	require.Len(t, res.Project.FundingEvents, 1)
	ev := res.Project.FundingEvents[0]
	assert.Equal(t, 3_000_000.0, ev.AmountUSD)
	assert.Equal(t, []string{"paradigm"}, ev.InvestorIDs)
	assert.Empty(t, res.NewInvestors)
}

func TestMergeFundingReScrapeIsIdempotent(t *testing.T) {
	e := newTestEngine(map[string]float64{"cryptorank": 0.9}, nil)

	records := []model.CandidateRecord{
		fundingRecord("cryptorank", model.CandidateFunding{
			AmountUSD: 5_000_000, AnnouncedAt: announce, RoundType: model.RoundSeed,
		}),
	}

	first := e.Merge("aave", nil, records, nil, nil)
	second := e.Merge("aave", first.Project, records, nil, first.NewInvestors)

	require.Len(t, second.Project.FundingEvents, 1)
	assert.Equal(t, 5_000_000.0, second.Project.FundingEvents[0].AmountUSD)
	assert.Equal(t, 0, second.Conflicts)
}
