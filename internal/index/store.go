// Package index persists canonical project records, the investor graph, and
// the audit trail behind the discovery engine's local-first lookups.
package index

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/fundflow/fundflow/internal/model"
)

// ErrStorageUnavailable wraps backend failures so callers can distinguish a
// broken index from an empty one.
var ErrStorageUnavailable = eris.New("index: storage unavailable")

// storageError marks a backend failure while preserving the wrapped chain.
// errors.Is(err, ErrStorageUnavailable) matches any error built through it.
type storageError struct{ err error }

func (e *storageError) Error() string { return e.err.Error() }
func (e *storageError) Unwrap() error { return e.err }
func (e *storageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// storageErr tags backend errors as ErrStorageUnavailable so callers can
// classify them without inspecting driver internals.
func storageErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &storageError{err: eris.Wrap(err, msg)}
}

// Staleness classifies a lookup result against the record's TTL.
type Staleness string

const (
	StalenessFresh  Staleness = "fresh"
	StalenessStale  Staleness = "stale"
	StalenessAbsent Staleness = "absent"
)

// ProjectFilter specifies criteria for listing projects.
type ProjectFilter struct {
	Sector   string  `json:"sector,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`
	Limit    int     `json:"limit,omitempty"`
	Offset   int     `json:"offset,omitempty"`
}

// FundingRow is a funding event joined with its owning project, as returned
// by cross-project queries.
type FundingRow struct {
	Slug        string             `json:"slug"`
	ProjectName string             `json:"project_name"`
	Event       model.FundingEvent `json:"event"`
}

// AuditEntry records one discovery job outcome for monitoring.
type AuditEntry struct {
	ID        string        `json:"id"`
	Slug      string        `json:"slug"`
	Outcome   string        `json:"outcome"`
	State     string        `json:"state"`
	Sources   []string      `json:"sources,omitempty"`
	Failures  []string      `json:"failures,omitempty"`
	Conflicts int           `json:"conflicts"`
	Unknown   int           `json:"unknown"`
	Elapsed   time.Duration `json:"elapsed"`
	CreatedAt time.Time     `json:"created_at"`
}

// Stats summarizes index contents.
type Stats struct {
	Projects      int       `json:"projects"`
	Investors     int       `json:"investors"`
	FundingEvents int       `json:"funding_events"`
	AuditEntries  int       `json:"audit_entries"`
	OldestRecord  time.Time `json:"oldest_record,omitempty"`
	NewestRecord  time.Time `json:"newest_record,omitempty"`
}

// Store defines the persistence interface for the local index. Upsert is
// atomic and idempotent: persisting the same reconciled record twice leaves
// the index byte-for-byte identical.
type Store interface {
	// Projects
	Lookup(ctx context.Context, slug string, now time.Time) (*model.Project, Staleness, error)
	Upsert(ctx context.Context, p *model.Project) error
	ListProjects(ctx context.Context, filter ProjectFilter) ([]model.Project, error)

	// Investors
	UpsertInvestor(ctx context.Context, inv model.Investor) error
	GetInvestor(ctx context.Context, id string) (*model.Investor, error)
	GetInvestors(ctx context.Context, ids []string) (map[string]model.Investor, error)

	// Funding queries
	RecentFunding(ctx context.Context, since time.Time, limit int) ([]FundingRow, error)
	InvestorPortfolio(ctx context.Context, investorID string) ([]FundingRow, error)

	// Audit
	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]AuditEntry, error)

	// Lifecycle
	Stats(ctx context.Context) (*Stats, error)
	Migrate(ctx context.Context) error
	Close() error
}

// classify maps a stored record onto the staleness ladder.
func classify(p *model.Project, now time.Time) Staleness {
	if p == nil {
		return StalenessAbsent
	}
	if p.Stale(now) {
		return StalenessStale
	}
	return StalenessFresh
}
