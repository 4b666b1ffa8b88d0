package reconcile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundflow/fundflow/internal/model"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 0.02, p.Defaults.NumericTolerance)
	assert.Equal(t, 0.1, p.Defaults.CorroborationBonus)
	assert.Equal(t, 0.3, p.Defaults.CorroborationCap)
	assert.Equal(t, 0.7, p.Defaults.LocalTrust)

	// Market metrics decay faster than static facts.
	assert.Equal(t, 90, p.DecayFor(model.FieldTVLUSD).HalfLifeDays)
	assert.Equal(t, 365, p.DecayFor(model.FieldCountry).HalfLifeDays)
}

func TestPolicyToleranceFor(t *testing.T) {
	override := 0.05
	p := DefaultPolicy()
	p.Fields["team_size"] = FieldPolicy{NumericTolerance: &override}

	assert.Equal(t, 0.05, p.ToleranceFor("team_size"))
	assert.Equal(t, 0.02, p.ToleranceFor("tvl_usd"))
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconcile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
reconcile:
  defaults:
    numeric_tolerance: 0.01
  fields:
    tvl_usd:
      decay:
        half_life_days: 45
        floor: 0.02
`), 0o600))

	p, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, 0.01, p.Defaults.NumericTolerance)
	assert.Equal(t, 45, p.DecayFor("tvl_usd").HalfLifeDays)
	assert.Equal(t, 0.02, p.DecayFor("tvl_usd").Floor)

	// Unset defaults fill in from the documented baseline.
	assert.Equal(t, 0.1, p.Defaults.CorroborationBonus)
	assert.Equal(t, 0.7, p.Defaults.LocalTrust)
	assert.Equal(t, 365, p.Defaults.Decay.HalfLifeDays)
}

func TestLoadPolicyMissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
