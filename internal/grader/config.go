// Package grader derives a bounded project grade from a reconciled canonical
// record using a declared, versioned weighting over independent signal groups.
package grader

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// RubricVersion identifies the weighting function in every emitted grade, so
// historical grades remain interpretable after recalibration.
const RubricVersion = "v2"

// Signal group names used in grade breakdowns.
const (
	GroupCapital   = "capital"
	GroupTechnical = "technical"
	GroupUsage     = "usage"
	GroupTeam      = "team"
)

// Config holds the rubric weights and scaling anchors. Weights sum to 100.
type Config struct {
	// Group weights.
	CapitalWeight   float64 `yaml:"capital_weight" mapstructure:"capital_weight"`
	TechnicalWeight float64 `yaml:"technical_weight" mapstructure:"technical_weight"`
	UsageWeight     float64 `yaml:"usage_weight" mapstructure:"usage_weight"`
	TeamWeight      float64 `yaml:"team_weight" mapstructure:"team_weight"`

	// Scaling anchors: the value at which a signal saturates to full marks.
	FundingSaturationUSD float64 `yaml:"funding_saturation_usd" mapstructure:"funding_saturation_usd"`
	TVLSaturationUSD     float64 `yaml:"tvl_saturation_usd" mapstructure:"tvl_saturation_usd"`
	StarsSaturation      float64 `yaml:"stars_saturation" mapstructure:"stars_saturation"`
	CommitSaturation     float64 `yaml:"commit_saturation" mapstructure:"commit_saturation"`
	TeamSizeSaturation   float64 `yaml:"team_size_saturation" mapstructure:"team_size_saturation"`
}

// DefaultConfig returns the calibrated default rubric.
func DefaultConfig() Config {
	return Config{
		CapitalWeight:   35,
		TechnicalWeight: 25,
		UsageWeight:     25,
		TeamWeight:      15,

		FundingSaturationUSD: 100_000_000,
		TVLSaturationUSD:     500_000_000,
		StarsSaturation:      5_000,
		CommitSaturation:     100,
		TeamSizeSaturation:   50,
	}
}

// WeightSum returns the sum of the group weights.
func (c Config) WeightSum() float64 {
	return c.CapitalWeight + c.TechnicalWeight + c.UsageWeight + c.TeamWeight
}

// Validate checks the rubric for internal consistency.
func (c Config) Validate() error {
	var errs []string

	for name, w := range map[string]float64{
		"capital_weight":   c.CapitalWeight,
		"technical_weight": c.TechnicalWeight,
		"usage_weight":     c.UsageWeight,
		"team_weight":      c.TeamWeight,
	} {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	sum := c.WeightSum()
	if sum <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}
	if math.Abs(sum-100) > 1 {
		errs = append(errs, fmt.Sprintf("weights should sum to 100, got %.1f", sum))
	}

	for name, v := range map[string]float64{
		"funding_saturation_usd": c.FundingSaturationUSD,
		"tvl_saturation_usd":     c.TVLSaturationUSD,
		"stars_saturation":       c.StarsSaturation,
		"commit_saturation":      c.CommitSaturation,
		"team_size_saturation":   c.TeamSizeSaturation,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be > 0", name))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("grader: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Letter maps a 0-100 score to the grade ladder. Scores below the D threshold
// are not graded.
func Letter(score float64) string {
	switch {
	case score >= 95:
		return "A+"
	case score >= 85:
		return "A"
	case score >= 70:
		return "B"
	case score >= 50:
		return "C"
	case score >= 30:
		return "D"
	default:
		return "NR"
	}
}
