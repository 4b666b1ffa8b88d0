// Package monitoring derives operational metrics from the audit trail and
// raises webhook alerts when the engine degrades.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/fundflow/fundflow/internal/index"
	"github.com/fundflow/fundflow/internal/model"
)

// MetricsSnapshot holds a point-in-time view of engine health.
type MetricsSnapshot struct {
	// Job outcomes within the audit window.
	JobsTotal      int     `json:"jobs_total"`
	JobsFreshHit   int     `json:"jobs_fresh_hit"`
	JobsReconciled int     `json:"jobs_reconciled"`
	JobsPartial    int     `json:"jobs_partial"`
	JobsFailed     int     `json:"jobs_failed"`
	FailureRate    float64 `json:"failure_rate"`

	// Reconciliation quality.
	ConflictRate   float64        `json:"conflict_rate"`
	AvgUnknown     float64        `json:"avg_unknown_fields"`
	AvgElapsedMS   int64          `json:"avg_elapsed_ms"`
	SourceFailures map[string]int `json:"source_failures,omitempty"`

	// Index contents.
	Projects      int `json:"projects"`
	Investors     int `json:"investors"`
	FundingEvents int `json:"funding_events"`

	// Metadata.
	WindowEntries int       `json:"window_entries"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the index and its audit log.
type Collector struct {
	store index.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st index.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot over the most recent windowEntries audit rows.
func (c *Collector) Collect(ctx context.Context, windowEntries int) (*MetricsSnapshot, error) {
	if windowEntries <= 0 {
		windowEntries = 500
	}
	snap := &MetricsSnapshot{
		WindowEntries:  windowEntries,
		SourceFailures: make(map[string]int),
		CollectedAt:    time.Now().UTC(),
	}

	entries, err := c.store.ListAudit(ctx, windowEntries)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list audit")
	}

	snap.JobsTotal = len(entries)
	var conflicted int
	var totalUnknown int
	var totalElapsed time.Duration
	for _, e := range entries {
		switch model.OutcomeStatus(e.Outcome) {
		case model.OutcomeFreshHit:
			snap.JobsFreshHit++
		case model.OutcomeReconciled:
			snap.JobsReconciled++
		case model.OutcomePartial:
			snap.JobsPartial++
		case model.OutcomeFailed:
			snap.JobsFailed++
		}
		if e.Conflicts > 0 {
			conflicted++
		}
		totalUnknown += e.Unknown
		totalElapsed += e.Elapsed
		for _, src := range e.Failures {
			snap.SourceFailures[src]++
		}
	}

	if snap.JobsTotal > 0 {
		snap.FailureRate = float64(snap.JobsFailed) / float64(snap.JobsTotal)
		snap.ConflictRate = float64(conflicted) / float64(snap.JobsTotal)
		snap.AvgUnknown = float64(totalUnknown) / float64(snap.JobsTotal)
		snap.AvgElapsedMS = (totalElapsed / time.Duration(snap.JobsTotal)).Milliseconds()
	}

	stats, err := c.store.Stats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: index stats")
	}
	snap.Projects = stats.Projects
	snap.Investors = stats.Investors
	snap.FundingEvents = stats.FundingEvents

	return snap, nil
}
