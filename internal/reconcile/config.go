package reconcile

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Policy is the reconciliation policy: tolerance thresholds, freshness decay,
// and corroboration weights. These are tunables, not structural constants;
// they ship as configuration and are calibrated empirically.
type Policy struct {
	Defaults PolicyDefaults         `yaml:"defaults"`
	Fields   map[string]FieldPolicy `yaml:"fields"`
}

// PolicyDefaults holds global policy defaults.
type PolicyDefaults struct {
	// NumericTolerance is the relative tolerance within which two numeric
	// candidates are treated as agreeing (0.02 = 2%).
	NumericTolerance float64 `yaml:"numeric_tolerance"`

	// Decay controls freshness decay of candidate confidence.
	Decay DecayConfig `yaml:"decay"`

	// CorroborationBonus is the confidence multiplier bonus per additional
	// agreeing independent source.
	CorroborationBonus float64 `yaml:"corroboration_bonus"`

	// CorroborationCap bounds the total corroboration bonus.
	CorroborationCap float64 `yaml:"corroboration_cap"`

	// LocalTrust is the trust weight assigned to the locally stored record
	// when it joins a reconciliation pass as one more candidate.
	LocalTrust float64 `yaml:"local_trust"`
}

// FieldPolicy overrides defaults for a specific field key.
type FieldPolicy struct {
	NumericTolerance *float64     `yaml:"numeric_tolerance,omitempty"`
	Decay            *DecayConfig `yaml:"decay,omitempty"`
}

// DecayConfig holds freshness decay parameters.
type DecayConfig struct {
	HalfLifeDays int     `yaml:"half_life_days"`
	Floor        float64 `yaml:"floor"`
}

// DefaultPolicy returns the documented default policy: 2% numeric tolerance,
// 90-day half-life for market metrics, 365-day for static facts, +0.1
// corroboration bonus per agreeing source capped at +0.3.
func DefaultPolicy() *Policy {
	return &Policy{
		Defaults: PolicyDefaults{
			NumericTolerance:   0.02,
			Decay:              DecayConfig{HalfLifeDays: 365, Floor: 0.1},
			CorroborationBonus: 0.1,
			CorroborationCap:   0.3,
			LocalTrust:         0.7,
		},
		Fields: map[string]FieldPolicy{
			// Market metrics go stale fast.
			"tvl_usd":            {Decay: &DecayConfig{HalfLifeDays: 90, Floor: 0.05}},
			"tvl_30d_change_pct": {Decay: &DecayConfig{HalfLifeDays: 30, Floor: 0.05}},
			"revenue_24h_usd":    {Decay: &DecayConfig{HalfLifeDays: 30, Floor: 0.05}},
			"twitter_followers":  {Decay: &DecayConfig{HalfLifeDays: 90, Floor: 0.05}},
			"commit_velocity_30d": {
				Decay: &DecayConfig{HalfLifeDays: 60, Floor: 0.05},
			},
		},
	}
}

// LoadPolicy reads a reconciliation policy from a YAML file and fills gaps
// from the defaults.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: read policy %s", path)
	}

	var wrapper struct {
		Reconcile Policy `yaml:"reconcile"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "reconcile: parse policy")
	}

	p := &wrapper.Reconcile
	def := DefaultPolicy().Defaults
	if p.Defaults.NumericTolerance <= 0 {
		p.Defaults.NumericTolerance = def.NumericTolerance
	}
	if p.Defaults.Decay.HalfLifeDays <= 0 {
		p.Defaults.Decay = def.Decay
	}
	if p.Defaults.CorroborationBonus <= 0 {
		p.Defaults.CorroborationBonus = def.CorroborationBonus
	}
	if p.Defaults.CorroborationCap <= 0 {
		p.Defaults.CorroborationCap = def.CorroborationCap
	}
	if p.Defaults.LocalTrust <= 0 {
		p.Defaults.LocalTrust = def.LocalTrust
	}
	return p, nil
}

// ToleranceFor returns the numeric tolerance for a field key.
func (p *Policy) ToleranceFor(key string) float64 {
	if fp, ok := p.Fields[key]; ok && fp.NumericTolerance != nil {
		return *fp.NumericTolerance
	}
	return p.Defaults.NumericTolerance
}

// DecayFor returns the decay parameters for a field key.
func (p *Policy) DecayFor(key string) DecayConfig {
	if fp, ok := p.Fields[key]; ok && fp.Decay != nil {
		return *fp.Decay
	}
	return p.Defaults.Decay
}
