package model

import "time"

// RoundType classifies a funding round.
type RoundType string

const (
	RoundSeed      RoundType = "seed"
	RoundPrivate   RoundType = "private"
	RoundSeriesA   RoundType = "series_a"
	RoundSeriesB   RoundType = "series_b"
	RoundSeriesC   RoundType = "series_c"
	RoundStrategic RoundType = "strategic"
	RoundTokenSale RoundType = "token_sale"
	RoundIDO       RoundType = "ido"
	RoundICO       RoundType = "ico"
	RoundGrant     RoundType = "grant"
	RoundOther     RoundType = "other"
)

// ParseRoundType maps free-text round labels from external sources onto the
// canonical enum. Unrecognized labels map to RoundOther rather than failing.
func ParseRoundType(s string) RoundType {
	switch normalizeToken(s) {
	case "seed", "pre seed", "preseed":
		return RoundSeed
	case "private", "private sale", "venture round", "venture":
		return RoundPrivate
	case "series a", "a":
		return RoundSeriesA
	case "series b", "b":
		return RoundSeriesB
	case "series c", "c":
		return RoundSeriesC
	case "strategic":
		return RoundStrategic
	case "token sale", "public sale", "launchpad":
		return RoundTokenSale
	case "ido":
		return RoundIDO
	case "ico":
		return RoundICO
	case "grant":
		return RoundGrant
	default:
		return RoundOther
	}
}

// FundingEvent is a discrete capital event attached to a project. Events are
// immutable once reconciled; re-scraped duplicates collapse onto the same
// event via the composite dedup key (project, amount within tolerance,
// announced date truncated to day).
type FundingEvent struct {
	AmountUSD   float64   `json:"amount_usd"`
	AnnouncedAt time.Time `json:"announced_at"`
	RoundType   RoundType `json:"round_type"`
	InvestorIDs []string  `json:"investor_ids,omitempty"`
	LeadID      string    `json:"lead_id,omitempty"`

	Sources  []Provenance `json:"sources,omitempty"`
	Conflict bool         `json:"conflict,omitempty"`
}

// DedupDay returns the announced date truncated to UTC day, the temporal half
// of the dedup key.
func (e FundingEvent) DedupDay() time.Time {
	return e.AnnouncedAt.UTC().Truncate(24 * time.Hour)
}

// Investor tier ranks. Zero means unranked.
const (
	TierUnranked = 0
	TierTop      = 1
	TierSecond   = 2
)

// Investor is a canonical investor entity, referenced by funding events but
// owned by no single project.
type Investor struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
	Tier    int      `json:"tier,omitempty"` // TierTop, TierSecond, or TierUnranked

	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
}
