// Package fanout orchestrates concurrent adapter invocation with per-adapter
// timeouts and partial-failure tolerance.
package fanout

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fundflow/fundflow/internal/adapter"
	"github.com/fundflow/fundflow/internal/model"
	"github.com/fundflow/fundflow/internal/resilience"
)

// ErrAllSourcesUnavailable means at least one adapter failed and none
// produced a record, so the pass cannot rule the project in or out.
var ErrAllSourcesUnavailable = eris.New("all sources unavailable")

// ErrUnknownToAllSources means every adapter answered and none of them knows
// the project. Distinct from an outage: the sources are healthy, the project
// is simply not listed anywhere.
var ErrUnknownToAllSources = eris.New("project unknown to all sources")

// SourceFailure records one adapter that produced no usable record.
type SourceFailure struct {
	Source    string `json:"source"`
	Reason    string `json:"reason"`
	Transient bool   `json:"transient"`
}

// Result is the collected output of one fan-out pass. Records and failures
// are in stable source-name order.
type Result struct {
	Records     []model.CandidateRecord `json:"records"`
	Unavailable []SourceFailure         `json:"unavailable"`
	Elapsed     time.Duration           `json:"elapsed"`
}

// UnavailableNames lists the failed source names.
func (r *Result) UnavailableNames() []string {
	names := make([]string, len(r.Unavailable))
	for i, f := range r.Unavailable {
		names[i] = f.Source
	}
	return names
}

// Config controls fan-out timing.
type Config struct {
	// PerAdapterTimeout bounds each individual adapter call. Default: 10s.
	PerAdapterTimeout time.Duration
	// OverallDeadline bounds the whole pass; adapters still in flight when
	// it elapses are cancelled and recorded unavailable. Default: 30s.
	OverallDeadline time.Duration
}

func (c Config) withDefaults() Config {
	if c.PerAdapterTimeout <= 0 {
		c.PerAdapterTimeout = 10 * time.Second
	}
	if c.OverallDeadline <= 0 {
		c.OverallDeadline = 30 * time.Second
	}
	return c
}

// Coordinator fans a discovery request out to every registered adapter.
type Coordinator struct {
	registry *adapter.Registry
	breakers *resilience.SourceBreakers
	cfg      Config
}

// New creates a fan-out coordinator. breakers may be nil to disable circuit
// breaking (tests).
func New(registry *adapter.Registry, breakers *resilience.SourceBreakers, cfg Config) *Coordinator {
	return &Coordinator{
		registry: registry,
		breakers: breakers,
		cfg:      cfg.withDefaults(),
	}
}

// Collect invokes every registered adapter concurrently and returns once each
// has produced a record, an explicit negative result, or a failure, never
// mid-flight. One adapter failing never fails the pass. When no adapter
// produced a usable record the error is ErrUnknownToAllSources if every
// source answered, ErrAllSourcesUnavailable if any of them failed.
func (c *Coordinator) Collect(ctx context.Context, slug string) (*Result, error) {
	start := time.Now()
	adapters := c.registry.All()
	if len(adapters) == 0 {
		return nil, eris.New("fanout: no adapters registered")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.OverallDeadline)
	defer cancel()

	var (
		mu       sync.Mutex
		records  []model.CandidateRecord
		failures []SourceFailure
	)

	// A failed adapter must not poison the group context for its siblings,
	// so goroutines always return nil and report through the shared slices.
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range adapters {
		g.Go(func() error {
			rec, err := c.fetchOne(gctx, a, slug)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failures = append(failures, SourceFailure{
					Source:    a.Name(),
					Reason:    err.Error(),
					Transient: resilience.IsTransient(err),
				})
			case rec != nil:
				records = append(records, *rec)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(records, func(i, j int) bool { return records[i].Source < records[j].Source })
	sort.Slice(failures, func(i, j int) bool { return failures[i].Source < failures[j].Source })

	result := &Result{
		Records:     records,
		Unavailable: failures,
		Elapsed:     time.Since(start),
	}

	zap.L().Debug("fanout: pass complete",
		zap.String("slug", slug),
		zap.Int("records", len(records)),
		zap.Int("unavailable", len(failures)),
		zap.Duration("elapsed", result.Elapsed),
	)

	if len(records) == 0 {
		if len(failures) == 0 {
			return result, eris.Wrapf(ErrUnknownToAllSources, "fanout: %s", slug)
		}
		return result, eris.Wrapf(ErrAllSourcesUnavailable, "fanout: %s", slug)
	}
	return result, nil
}

// fetchOne runs a single adapter under its own timeout and circuit breaker.
// A nil record with nil error means an affirmative "not found"; the caller
// records nothing for it.
func (c *Coordinator) fetchOne(ctx context.Context, a adapter.Adapter, slug string) (*model.CandidateRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PerAdapterTimeout)
	defer cancel()

	fetch := func(ctx context.Context) (*model.CandidateRecord, error) {
		return a.Fetch(ctx, slug)
	}

	var rec *model.CandidateRecord
	var err error
	if c.breakers != nil {
		rec, err = resilience.ExecuteVal(ctx, c.breakers.Get(a.Name()), fetch)
	} else {
		rec, err = fetch(ctx)
	}

	if err != nil {
		if resilience.IsNotFound(err) {
			return nil, nil
		}
		zap.L().Warn("fanout: adapter failed",
			zap.String("source", a.Name()),
			zap.String("slug", slug),
			zap.Bool("transient", resilience.IsTransient(err)),
			zap.Error(err),
		)
		return nil, err
	}

	if rec.Empty() {
		// Affirmative negative result, not a gap.
		return nil, nil
	}

	if rec.ObservedAt.IsZero() {
		rec.ObservedAt = time.Now().UTC()
	}
	rec.Source = a.Name()
	return rec, nil
}
