package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundflow/fundflow/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "fundflow-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var reconciledAt = time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)

func sampleProject(slug string) *model.Project {
	return &model.Project{
		Slug:   slug,
		Name:   "Aave",
		Sector: "Lending",
		Fields: map[string]model.Field{
			model.FieldTVLUSD: {
				Key:    model.FieldTVLUSD,
				Value:  12_000_000_000.0,
				Status: model.FieldCorroborated,
			},
		},
		FundingEvents: []model.FundingEvent{{
			AmountUSD:   25_000_000,
			AnnouncedAt: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
			RoundType:   model.RoundSeriesA,
			InvestorIDs: []string{"paradigm"},
			LeadID:      "paradigm",
		}},
		Grade: &model.Grade{
			Score:         82.5,
			Letter:        "B",
			Coverage:      0.75,
			RubricVersion: "v2",
			GradedAt:      reconciledAt,
		},
		LastReconciledAt: reconciledAt,
		StalenessTTL:     6 * time.Hour,
		FirstSeen:        reconciledAt.Add(-30 * 24 * time.Hour),
		Sources:          []string{"cryptorank", "defillama"},
	}
}

func TestLookupAbsent(t *testing.T) {
	st := newTestSQLiteStore(t)

	p, staleness, err := st.Lookup(context.Background(), "nope", time.Now())
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, StalenessAbsent, staleness)
}

func TestUpsertAndLookupRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	want := sampleProject("aave")
	require.NoError(t, st.Upsert(ctx, want))

	got, staleness, err := st.Lookup(ctx, "aave", reconciledAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StalenessFresh, staleness)
	assert.Equal(t, want, got)

	// Past the TTL the record is served but flagged stale.
	_, staleness, err = st.Lookup(ctx, "aave", reconciledAt.Add(7*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StalenessStale, staleness)
}

func TestUpsertIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := sampleProject("aave")
	require.NoError(t, st.Upsert(ctx, p))
	require.NoError(t, st.Upsert(ctx, p))

	got, _, err := st.Lookup(ctx, "aave", reconciledAt)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Projects)
	assert.Equal(t, 1, stats.FundingEvents)
}

func TestUpsertReplacesFundingEvents(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := sampleProject("aave")
	require.NoError(t, st.Upsert(ctx, p))

	// A re-reconciliation that dropped the event must not leave orphans.
	p.FundingEvents = nil
	require.NoError(t, st.Upsert(ctx, p))

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FundingEvents)

	rows, err := st.InvestorPortfolio(ctx, "paradigm")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestListProjectsFilters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	lending := sampleProject("aave")
	infra := sampleProject("celestia")
	infra.Sector = "Infrastructure"
	infra.Grade = &model.Grade{Score: 45, Letter: "D"}
	require.NoError(t, st.Upsert(ctx, lending))
	require.NoError(t, st.Upsert(ctx, infra))

	all, err := st.ListProjects(ctx, ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Highest score first.
	assert.Equal(t, "aave", all[0].Slug)

	bySector, err := st.ListProjects(ctx, ProjectFilter{Sector: "Infrastructure"})
	require.NoError(t, err)
	require.Len(t, bySector, 1)
	assert.Equal(t, "celestia", bySector[0].Slug)

	byScore, err := st.ListProjects(ctx, ProjectFilter{MinScore: 50})
	require.NoError(t, err)
	require.Len(t, byScore, 1)
	assert.Equal(t, "aave", byScore[0].Slug)

	limited, err := st.ListProjects(ctx, ProjectFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "celestia", limited[0].Slug)
}

func TestInvestorRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	inv := model.Investor{
		ID:          "paradigm",
		Name:        "Paradigm",
		Aliases:     []string{"Paradigm Capital"},
		Tier:        model.TierTop,
		FirstSeen:   reconciledAt,
		LastUpdated: reconciledAt,
	}
	require.NoError(t, st.UpsertInvestor(ctx, inv))

	got, err := st.GetInvestor(ctx, "paradigm")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, inv, *got)

	missing, err := st.GetInvestor(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)

	batch, err := st.GetInvestors(ctx, []string{"paradigm", "ghost"})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, inv, batch["paradigm"])
}

func TestRecentFunding(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	old := sampleProject("aave")
	old.FundingEvents[0].AnnouncedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := sampleProject("celestia")
	recent.Name = "Celestia"
	require.NoError(t, st.Upsert(ctx, old))
	require.NoError(t, st.Upsert(ctx, recent))

	rows, err := st.RecentFunding(ctx, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "celestia", rows[0].Slug)
	assert.Equal(t, "Celestia", rows[0].ProjectName)
	assert.Equal(t, 25_000_000.0, rows[0].Event.AmountUSD)
}

func TestInvestorPortfolio(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := sampleProject("aave")
	b := sampleProject("celestia")
	b.FundingEvents[0].InvestorIDs = []string{"polychain-capital"}
	b.FundingEvents[0].AnnouncedAt = time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.Upsert(ctx, a))
	require.NoError(t, st.Upsert(ctx, b))

	rows, err := st.InvestorPortfolio(ctx, "paradigm")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "aave", rows[0].Slug)

	rows, err = st.InvestorPortfolio(ctx, "polychain-capital")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "celestia", rows[0].Slug)
}

func TestAuditAppendAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := AuditEntry{
		Slug:      "aave",
		Outcome:   "reconciled",
		State:     "DONE",
		Sources:   []string{"cryptorank", "defillama"},
		Conflicts: 1,
		Unknown:   3,
		Elapsed:   420 * time.Millisecond,
		CreatedAt: reconciledAt,
	}
	second := AuditEntry{
		Slug:      "celestia",
		Outcome:   "partial",
		State:     "PARTIAL_DONE",
		Failures:  []string{"github"},
		CreatedAt: reconciledAt.Add(time.Minute),
	}
	require.NoError(t, st.AppendAudit(ctx, first))
	require.NoError(t, st.AppendAudit(ctx, second))

	entries, err := st.ListAudit(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first; IDs were filled in on append.
	assert.Equal(t, "celestia", entries[0].Slug)
	assert.Equal(t, "aave", entries[1].Slug)
	assert.NotEmpty(t, entries[0].ID)
	assert.Equal(t, 1, entries[1].Conflicts)
	assert.Equal(t, 420*time.Millisecond, entries[1].Elapsed)
}

func TestAuditListLimit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, st.AppendAudit(ctx, AuditEntry{
			Slug:      "aave",
			Outcome:   "fresh-hit",
			State:     "DONE",
			CreatedAt: reconciledAt.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := st.ListAudit(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestStats(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	empty, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Projects)
	assert.True(t, empty.OldestRecord.IsZero())

	older := sampleProject("aave")
	newer := sampleProject("celestia")
	newer.LastReconciledAt = reconciledAt.Add(48 * time.Hour)
	require.NoError(t, st.Upsert(ctx, older))
	require.NoError(t, st.Upsert(ctx, newer))
	require.NoError(t, st.UpsertInvestor(ctx, model.Investor{ID: "paradigm", Name: "Paradigm"}))

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Projects)
	assert.Equal(t, 1, stats.Investors)
	assert.Equal(t, 2, stats.FundingEvents)
	assert.True(t, stats.NewestRecord.After(stats.OldestRecord))
}
