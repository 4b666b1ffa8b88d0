package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundflow/fundflow/internal/model"
)

// stubTrust is a fixed trust table for engine tests.
type stubTrust struct {
	weights  map[string]float64
	coverage map[string][]string
}

func (s *stubTrust) TrustOf(name string) float64 { return s.weights[name] }

func (s *stubTrust) Covers(source, fieldKey string) bool {
	for _, k := range s.coverage[source] {
		if k == fieldKey {
			return true
		}
	}
	return false
}

var mergeNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(weights map[string]float64, coverage map[string][]string) *Engine {
	return New(DefaultPolicy(), &stubTrust{weights: weights, coverage: coverage}).WithNow(mergeNow)
}

func record(source string, fields map[string]any) model.CandidateRecord {
	return model.CandidateRecord{
		Source:     source,
		ObservedAt: mergeNow,
		Fields:     fields,
	}
}

func TestMergeCorroboratedWithinTolerance(t *testing.T) {
	e := newTestEngine(map[string]float64{"cryptorank": 0.9, "defillama": 0.85}, nil)

	// 1% apart, inside the 2% default tolerance.
	res := e.Merge("aave", nil, []model.CandidateRecord{
		record("cryptorank", map[string]any{model.FieldTVLUSD: 100_000_000.0}),
		record("defillama", map[string]any{model.FieldTVLUSD: 101_000_000.0}),
	}, nil, nil)

	f := res.Project.Fields[model.FieldTVLUSD]
	assert.Equal(t, model.FieldCorroborated, f.Status)
	assert.False(t, f.Conflict)
	assert.Equal(t, 0, res.Conflicts)

	require.NotNil(t, f.Winner)
	assert.Equal(t, "cryptorank", f.Winner.Source)
	assert.Equal(t, 2, f.Winner.Corroborators)

	// Agreement raises confidence above raw trust.
	assert.InDelta(t, 0.9*1.1, f.Winner.Confidence, 1e-9)
	assert.Len(t, f.Candidates, 2)
}

func TestMergeDisputedWinnerByConfidence(t *testing.T) {
	e := newTestEngine(map[string]float64{"cryptorank": 0.9, "newsfeed": 0.5}, nil)

	res := e.Merge("aave", nil, []model.CandidateRecord{
		record("cryptorank", map[string]any{model.FieldTeamSize: 40}),
		record("newsfeed", map[string]any{model.FieldTeamSize: 90}),
	}, nil, nil)

	f := res.Project.Fields[model.FieldTeamSize]
	assert.Equal(t, model.FieldDisputed, f.Status)
	assert.True(t, f.Conflict)
	assert.Equal(t, 1, res.Conflicts)

	require.NotNil(t, f.Winner)
	assert.Equal(t, "cryptorank", f.Winner.Source)
	assert.Equal(t, 40, f.Value)

	// The losing candidate stays in provenance.
	require.Len(t, f.Candidates, 2)
	assert.Equal(t, "newsfeed", f.Candidates[1].Source)
	assert.Equal(t, 90, f.Candidates[1].RawValue)
}

func TestMergeSingleSource(t *testing.T) {
	e := newTestEngine(map[string]float64{"github": 0.75}, nil)

	res := e.Merge("aave", nil, []model.CandidateRecord{
		record("github", map[string]any{model.FieldGithubStars: 4200}),
	}, nil, nil)

	f := res.Project.Fields[model.FieldGithubStars]
	assert.Equal(t, model.FieldSingle, f.Status)
	assert.Equal(t, 4200, f.Value)
	assert.InDelta(t, 0.75, f.Winner.Confidence, 1e-9)
}

func TestMergeUnknownNeverDefaults(t *testing.T) {
	e := newTestEngine(map[string]float64{"github": 0.75}, nil)

	res := e.Merge("aave", nil, []model.CandidateRecord{
		record("github", map[string]any{model.FieldGithubStars: 100}),
	}, nil, nil)

	f := res.Project.Fields[model.FieldTeamSize]
	assert.Equal(t, model.FieldUnknown, f.Status)
	assert.Nil(t, f.Value)
	assert.False(t, f.Known())
	assert.Greater(t, res.Unknown, 0)
}

func TestMergeUnavailableAttributedByCoverage(t *testing.T) {
	e := newTestEngine(
		map[string]float64{"github": 0.75},
		map[string][]string{"defillama": {model.FieldTVLUSD, model.FieldRevenue24hUSD}},
	)

	res := e.Merge("aave", nil, []model.CandidateRecord{
		record("github", map[string]any{model.FieldGithubStars: 100}),
	}, []string{"defillama"}, nil)

	// The gap is attributed only to fields the failed source covers.
	assert.Equal(t, []string{"defillama"}, res.Project.Fields[model.FieldTVLUSD].Unavailable)
	assert.Empty(t, res.Project.Fields[model.FieldTeamSize].Unavailable)
}

func TestMergeStaleLocalLosesToFreshSource(t *testing.T) {
	e := newTestEngine(map[string]float64{"defillama": 0.85}, nil)

	local := &model.Project{
		Slug:             "aave",
		Name:             "Aave",
		FirstSeen:        mergeNow.Add(-400 * 24 * time.Hour),
		LastReconciledAt: mergeNow.Add(-200 * 24 * time.Hour),
		Fields: map[string]model.Field{
			model.FieldTVLUSD: {
				Key:    model.FieldTVLUSD,
				Value:  50_000_000.0,
				Status: model.FieldSingle,
			},
		},
	}

	res := e.Merge("aave", local, []model.CandidateRecord{
		record("defillama", map[string]any{model.FieldTVLUSD: 90_000_000.0}),
	}, nil, nil)

	f := res.Project.Fields[model.FieldTVLUSD]
	require.NotNil(t, f.Winner)
	assert.Equal(t, "defillama", f.Winner.Source)
	assert.Equal(t, 90_000_000.0, f.Value)

	// The stale local value is retained as a losing candidate.
	assert.Len(t, f.Candidates, 2)

	// Identity carries over.
	assert.Equal(t, "Aave", res.Project.Name)
	assert.Equal(t, local.FirstSeen, res.Project.FirstSeen)
}

func TestMergeLocalSurvivesWhenNoSourceCovers(t *testing.T) {
	e := newTestEngine(map[string]float64{"github": 0.75}, nil)

	local := &model.Project{
		Slug:             "aave",
		LastReconciledAt: mergeNow.Add(-24 * time.Hour),
		Fields: map[string]model.Field{
			model.FieldCountry: {Key: model.FieldCountry, Value: "CH", Status: model.FieldSingle},
		},
	}

	res := e.Merge("aave", local, []model.CandidateRecord{
		record("github", map[string]any{model.FieldGithubStars: 100}),
	}, nil, nil)

	f := res.Project.Fields[model.FieldCountry]
	assert.Equal(t, model.FieldSingle, f.Status)
	assert.Equal(t, "CH", f.Value)
	assert.Equal(t, "local", f.Winner.Source)
}

func TestMergeStringAgreementCaseFolded(t *testing.T) {
	e := newTestEngine(map[string]float64{"cryptorank": 0.9, "defillama": 0.85}, nil)

	res := e.Merge("aave", nil, []model.CandidateRecord{
		record("cryptorank", map[string]any{model.FieldSector: "Lending"}),
		record("defillama", map[string]any{model.FieldSector: "lending"}),
	}, nil, nil)

	f := res.Project.Fields[model.FieldSector]
	assert.Equal(t, model.FieldCorroborated, f.Status)
	assert.False(t, f.Conflict)
}

func TestMergeTieBreaksOnSourceName(t *testing.T) {
	e := newTestEngine(map[string]float64{"aardvark": 0.8, "zebra": 0.8}, nil)

	res := e.Merge("aave", nil, []model.CandidateRecord{
		record("zebra", map[string]any{model.FieldTeamSize: 90}),
		record("aardvark", map[string]any{model.FieldTeamSize: 40}),
	}, nil, nil)

	f := res.Project.Fields[model.FieldTeamSize]
	assert.Equal(t, model.FieldDisputed, f.Status)
	assert.Equal(t, "aardvark", f.Winner.Source)
}

func TestMergeLiftsIdentityFields(t *testing.T) {
	e := newTestEngine(map[string]float64{"cryptorank": 0.9}, nil)

	res := e.Merge("liquid-lend", nil, []model.CandidateRecord{
		record("cryptorank", map[string]any{
			model.FieldSector:      "DeFi",
			model.FieldDescription: "Decentralized lending",
			model.FieldWebsite:     "https://liquidlend.xyz",
		}),
	}, nil, nil)

	p := res.Project
	assert.Equal(t, "DeFi", p.Sector)
	assert.Equal(t, "Decentralized lending", p.Description)
	assert.Equal(t, "https://liquidlend.xyz", p.Website)
	assert.Equal(t, "Liquid Lend", p.Name)
	assert.Equal(t, []string{"cryptorank"}, p.Sources)
	assert.Equal(t, mergeNow, p.LastReconciledAt)
}

func TestMergeDeterministic(t *testing.T) {
	records := []model.CandidateRecord{
		record("cryptorank", map[string]any{model.FieldTVLUSD: 100.0, model.FieldSector: "DeFi"}),
		record("defillama", map[string]any{model.FieldTVLUSD: 150.0}),
		record("newsfeed", map[string]any{model.FieldSector: "Infrastructure"}),
	}
	weights := map[string]float64{"cryptorank": 0.9, "defillama": 0.85, "newsfeed": 0.5}

	a := newTestEngine(weights, nil).Merge("aave", nil, records, nil, nil)
	b := newTestEngine(weights, nil).Merge("aave", nil, records, nil, nil)

	assert.Equal(t, a.Project, b.Project)
	assert.Equal(t, a.Conflicts, b.Conflicts)
	assert.Equal(t, a.Unknown, b.Unknown)
}
