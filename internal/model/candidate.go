package model

import "time"

// CandidateRecord is the normalized output of one adapter call for one
// discovery request: a partial set of fields with raw values. It exists only
// for the duration of one reconciliation pass and is never persisted directly.
type CandidateRecord struct {
	Source     string         `json:"source"`
	ObservedAt time.Time      `json:"observed_at"`
	Fields     map[string]any `json:"fields,omitempty"`

	// FundingEvents are raw, undeduplicated capital events as the source
	// reported them. Investor names are unresolved free text at this stage.
	FundingEvents []CandidateFunding `json:"funding_events,omitempty"`
}

// CandidateFunding is one capital event as reported by a single source.
type CandidateFunding struct {
	AmountUSD   float64   `json:"amount_usd"`
	AnnouncedAt time.Time `json:"announced_at"`
	RoundType   RoundType `json:"round_type"`
	Investors   []string  `json:"investors,omitempty"`
	LeadName    string    `json:"lead_name,omitempty"`
}

// Empty reports whether the record carries no data at all. An empty record
// is the adapter's affirmative "not found" result, not an error.
func (c *CandidateRecord) Empty() bool {
	return c == nil || (len(c.Fields) == 0 && len(c.FundingEvents) == 0)
}
