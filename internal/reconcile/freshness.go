package reconcile

import (
	"math"
	"time"
)

// Freshness computes the time-decay factor for a candidate observed at the
// given time. Exponential half-life decay with a floor:
//
//	factor = max(floor, 2^(-ageDays / halfLifeDays))
//
// A zero observed-at means "assume current" and decays nothing.
func Freshness(observedAt, now time.Time, decay DecayConfig) float64 {
	if observedAt.IsZero() {
		return 1
	}

	ageDays := now.Sub(observedAt).Hours() / 24
	if ageDays <= 0 {
		return 1
	}

	halfLife := float64(decay.HalfLifeDays)
	if halfLife <= 0 {
		halfLife = 365
	}

	factor := math.Pow(2, -ageDays/halfLife)
	if factor < decay.Floor {
		return decay.Floor
	}
	return factor
}
