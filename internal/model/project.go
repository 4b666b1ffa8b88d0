// Package model defines the canonical domain types shared across the
// discovery and reconciliation pipeline.
package model

import "time"

// FieldStatus describes how a reconciled field value was arrived at.
type FieldStatus string

const (
	// FieldSingle means exactly one source supplied a value.
	FieldSingle FieldStatus = "single"
	// FieldCorroborated means two or more independent sources agreed within tolerance.
	FieldCorroborated FieldStatus = "corroborated"
	// FieldDisputed means sources disagreed beyond tolerance; the winner was
	// chosen by confidence and the disagreement is surfaced, not hidden.
	FieldDisputed FieldStatus = "disputed"
	// FieldUnknown means no source supplied a value. An unknown field is an
	// explicit gap, never a zero, empty string, or omitted key.
	FieldUnknown FieldStatus = "unknown"
)

// Provenance records the origin of one candidate value for one field.
type Provenance struct {
	Source        string    `json:"source"`
	RawValue      any       `json:"raw_value"`
	Confidence    float64   `json:"confidence"`
	ObservedAt    time.Time `json:"observed_at"`
	Corroborators int       `json:"corroborators,omitempty"`
}

// Field is one structured field of a canonical project, carrying its winning
// value, full candidate provenance, and conflict state.
type Field struct {
	Key         string       `json:"key"`
	Value       any          `json:"value,omitempty"`
	Status      FieldStatus  `json:"status"`
	Conflict    bool         `json:"conflict,omitempty"`
	Winner      *Provenance  `json:"winner,omitempty"`
	Candidates  []Provenance `json:"candidates,omitempty"`
	Unavailable []string     `json:"unavailable,omitempty"`
}

// Known returns true if the field holds a concrete value.
func (f Field) Known() bool {
	return f.Status != FieldUnknown
}

// Project is the canonical merged record for one crypto venture.
// Slug is unique and immutable once assigned. Every structured field key the
// pipeline knows about is present in Fields, either with a value or as an
// explicit unknown.
type Project struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Sector      string `json:"sector,omitempty"`
	Description string `json:"description,omitempty"`
	Website     string `json:"website,omitempty"`

	Fields        map[string]Field `json:"fields"`
	FundingEvents []FundingEvent   `json:"funding_events,omitempty"`
	Grade         *Grade           `json:"grade,omitempty"`

	LastReconciledAt time.Time     `json:"last_reconciled_at"`
	StalenessTTL     time.Duration `json:"staleness_ttl"`

	FirstSeen time.Time `json:"first_seen"`
	Sources   []string  `json:"sources,omitempty"`
}

// Field returns the named field, or an explicit unknown if the project has
// never seen it.
func (p *Project) Field(key string) Field {
	if f, ok := p.Fields[key]; ok {
		return f
	}
	return Field{Key: key, Status: FieldUnknown}
}

// TotalRaisedUSD sums all reconciled funding events.
func (p *Project) TotalRaisedUSD() float64 {
	var total float64
	for _, ev := range p.FundingEvents {
		total += ev.AmountUSD
	}
	return total
}

// Stale reports whether the record has aged past its staleness TTL.
func (p *Project) Stale(now time.Time) bool {
	if p.LastReconciledAt.IsZero() {
		return true
	}
	ttl := p.StalenessTTL
	if ttl <= 0 {
		ttl = DefaultStalenessTTL
	}
	return now.Sub(p.LastReconciledAt) > ttl
}

// DefaultStalenessTTL is used when a project carries no explicit TTL.
const DefaultStalenessTTL = 6 * time.Hour

// Structured field keys. Adapters declare coverage and the reconciliation
// engine merges over this vocabulary; anything else an adapter emits is
// carried through untyped.
const (
	FieldFundingTotalUSD   = "funding_total_usd"
	FieldFundingRoundCount = "funding_round_count"
	FieldTeamSize          = "team_size"
	FieldFoundedYear       = "founded_year"
	FieldCountry           = "country"
	FieldSector            = "sector"
	FieldCategory          = "category"
	FieldWebsite           = "website"
	FieldDescription       = "description"
	FieldHasToken          = "has_token"
	FieldTokenSymbol       = "token_symbol"
	FieldTVLUSD            = "tvl_usd"
	FieldTVL30dChangePct   = "tvl_30d_change_pct"
	FieldRevenue24hUSD     = "revenue_24h_usd"
	FieldGithubStars       = "github_stars"
	FieldGithubForks       = "github_forks"
	FieldCommitVelocity30d = "commit_velocity_30d"
	FieldTwitterHandle     = "twitter_handle"
	FieldTwitterFollowers  = "twitter_followers"
	FieldGithubURL         = "github_url"
)

// AllFieldKeys lists every structured field key in stable order. The
// reconciliation engine iterates this vocabulary so that gaps are emitted
// explicitly for keys no candidate supplied.
func AllFieldKeys() []string {
	return []string{
		FieldFundingTotalUSD,
		FieldFundingRoundCount,
		FieldTeamSize,
		FieldFoundedYear,
		FieldCountry,
		FieldSector,
		FieldCategory,
		FieldWebsite,
		FieldDescription,
		FieldHasToken,
		FieldTokenSymbol,
		FieldTVLUSD,
		FieldTVL30dChangePct,
		FieldRevenue24hUSD,
		FieldGithubStars,
		FieldGithubForks,
		FieldCommitVelocity30d,
		FieldTwitterHandle,
		FieldTwitterFollowers,
		FieldGithubURL,
	}
}

// Grade is the derived project score with explicit data coverage so a high
// score on thin data is distinguishable from a high score on full data.
type Grade struct {
	Score         float64            `json:"score"`
	Letter        string             `json:"letter"`
	Coverage      float64            `json:"coverage"`
	RubricVersion string             `json:"rubric_version"`
	Breakdown     map[string]float64 `json:"breakdown,omitempty"`
	GradedAt      time.Time          `json:"graded_at"`
}
