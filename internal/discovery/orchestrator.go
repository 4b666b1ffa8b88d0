// Package discovery drives the per-project pipeline: index lookup, source
// fan-out, reconciliation, scoring, and persistence.
package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fundflow/fundflow/internal/fanout"
	"github.com/fundflow/fundflow/internal/grader"
	"github.com/fundflow/fundflow/internal/index"
	"github.com/fundflow/fundflow/internal/model"
	"github.com/fundflow/fundflow/internal/reconcile"
)

// ErrNotFound means no source knows the identifier and the index holds no
// prior record for it.
var ErrNotFound = eris.New("discovery: project not found")

// Options tunes a single discovery request.
type Options struct {
	// Force skips the fresh-hit fast path and always re-fans out.
	Force bool
}

// Outcome is the result of one discovery job.
type Outcome struct {
	Slug        string                 `json:"slug"`
	Status      model.OutcomeStatus    `json:"status"`
	State       model.JobState         `json:"state"`
	Project     *model.Project         `json:"project,omitempty"`
	Sources     []string               `json:"sources,omitempty"`
	Unavailable []fanout.SourceFailure `json:"unavailable,omitempty"`
	Conflicts   int                    `json:"conflicts"`
	Unknown     int                    `json:"unknown"`
	Elapsed     time.Duration          `json:"elapsed"`
}

// Orchestrator owns the discovery state machine. Concurrent requests for the
// same slug coalesce onto one in-flight job; the index is never written by
// two jobs for the same project at once.
type Orchestrator struct {
	store       index.Store
	coordinator *fanout.Coordinator
	engine      *reconcile.Engine
	grader      *grader.Grader
	flight      singleflight.Group
	now         func() time.Time
}

// New wires the orchestrator.
func New(store index.Store, coordinator *fanout.Coordinator, engine *reconcile.Engine, g *grader.Grader) *Orchestrator {
	return &Orchestrator{
		store:       store,
		coordinator: coordinator,
		engine:      engine,
		grader:      g,
		now:         time.Now,
	}
}

// WithNow fixes the orchestrator clock for testing.
func (o *Orchestrator) WithNow(t time.Time) *Orchestrator {
	o.now = func() time.Time { return t }
	return o
}

// Discover resolves one identifier end to end. The identifier is slugified
// before lookup, so URLs, display names, and slugs all land on the same
// canonical record.
func (o *Orchestrator) Discover(ctx context.Context, identifier string, opts Options) (*Outcome, error) {
	slug := model.Slugify(identifier)
	if slug == "" {
		return nil, eris.Errorf("discovery: unusable identifier %q", identifier)
	}

	v, err, _ := o.flight.Do(slug, func() (any, error) {
		return o.run(ctx, identifier, slug, opts)
	})
	if v == nil {
		return nil, err
	}
	return v.(*Outcome), err
}

func (o *Orchestrator) run(ctx context.Context, identifier, slug string, opts Options) (*Outcome, error) {
	start := o.now()
	log := zap.L().With(zap.String("slug", slug))

	job := &model.DiscoveryJob{
		ID:         uuid.New().String(),
		Slug:       slug,
		Identifier: identifier,
		State:      model.StateIndexLookup,
		StartedAt:  start.UTC(),
	}

	outcome := &Outcome{Slug: slug}
	finish := func(status model.OutcomeStatus, state model.JobState, p *model.Project) *Outcome {
		job.Transition(state)
		outcome.Status = status
		outcome.State = state
		outcome.Project = p
		outcome.Elapsed = time.Since(start)
		o.audit(ctx, outcome)
		return outcome
	}

	// Index lookup.
	local, staleness, err := o.store.Lookup(ctx, slug, start)
	if err != nil {
		log.Error("discovery: index lookup failed", zap.Error(err))
		return finish(model.OutcomeFailed, model.StateFailed, nil), err
	}
	if staleness == index.StalenessFresh && !opts.Force {
		log.Debug("discovery: fresh hit")
		outcome.Sources = local.Sources
		return finish(model.OutcomeFreshHit, model.StateDone, local), nil
	}

	// Fan out to sources.
	job.Transition(model.StateFanOut)
	res, fanErr := o.coordinator.Collect(ctx, slug)
	if fanErr != nil {
		if res == nil {
			return finish(model.OutcomeFailed, model.StateFailed, nil), fanErr
		}
		outcome.Unavailable = res.Unavailable
		if eris.Is(fanErr, fanout.ErrUnknownToAllSources) {
			if local != nil {
				log.Info("discovery: gone upstream, serving stale record")
				outcome.Sources = local.Sources
				return finish(model.OutcomePartial, model.StatePartialDone, local), nil
			}
			return finish(model.OutcomeFailed, model.StateFailed, nil),
				eris.Wrapf(ErrNotFound, "%s", slug)
		}
		if local != nil {
			log.Warn("discovery: all sources unavailable, serving stale record",
				zap.Int("failures", len(res.Unavailable)))
			outcome.Sources = local.Sources
			return finish(model.OutcomePartial, model.StatePartialDone, local), nil
		}
		return finish(model.OutcomeFailed, model.StateFailed, nil), fanErr
	}
	outcome.Unavailable = res.Unavailable

	// Reconcile.
	job.Transition(model.StateReconcile)
	known, err := o.knownInvestors(ctx, local)
	if err != nil {
		log.Warn("discovery: investor load failed, resolving from scratch", zap.Error(err))
	}
	merged := o.engine.Merge(slug, local, res.Records, res.UnavailableNames(), known)
	outcome.Conflicts = merged.Conflicts
	outcome.Unknown = merged.Unknown
	outcome.Sources = merged.Project.Sources

	// Score.
	job.Transition(model.StateScore)
	roster := investorRoster(known, merged.NewInvestors)
	grade := o.grader.Grade(merged.Project, roster, start)
	merged.Project.Grade = &grade

	// Persist. Investors first so portfolio queries never dangle.
	job.Transition(model.StatePersist)
	for _, inv := range merged.NewInvestors {
		if err := o.store.UpsertInvestor(ctx, inv); err != nil {
			log.Error("discovery: persist investor failed", zap.String("investor", inv.ID), zap.Error(err))
			return finish(model.OutcomeFailed, model.StateFailed, nil), err
		}
	}
	if err := o.store.Upsert(ctx, merged.Project); err != nil {
		log.Error("discovery: persist project failed", zap.Error(err))
		return finish(model.OutcomeFailed, model.StateFailed, nil), err
	}

	if len(res.Unavailable) > 0 {
		log.Info("discovery: reconciled with gaps",
			zap.Int("sources", len(res.Records)),
			zap.Int("unavailable", len(res.Unavailable)),
			zap.Int("conflicts", merged.Conflicts))
		return finish(model.OutcomePartial, model.StatePartialDone, merged.Project), nil
	}

	log.Info("discovery: reconciled",
		zap.Int("sources", len(res.Records)),
		zap.Int("conflicts", merged.Conflicts),
		zap.Float64("score", merged.Project.Grade.Score))
	return finish(model.OutcomeReconciled, model.StateDone, merged.Project), nil
}

// knownInvestors loads the investor entities referenced by the local record,
// so reconciliation can match aliases instead of minting duplicates.
func (o *Orchestrator) knownInvestors(ctx context.Context, local *model.Project) ([]model.Investor, error) {
	if local == nil {
		return nil, nil
	}
	var ids []string
	seen := map[string]bool{}
	for _, ev := range local.FundingEvents {
		for _, id := range ev.InvestorIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	byID, err := o.store.GetInvestors(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]model.Investor, 0, len(byID))
	for _, id := range ids {
		if inv, ok := byID[id]; ok {
			out = append(out, inv)
		}
	}
	return out, nil
}

func investorRoster(known []model.Investor, created []model.Investor) map[string]model.Investor {
	roster := make(map[string]model.Investor, len(known)+len(created))
	for _, inv := range known {
		roster[inv.ID] = inv
	}
	for _, inv := range created {
		roster[inv.ID] = inv
	}
	return roster
}

// audit records the outcome best-effort; a broken audit trail never fails a
// job that otherwise succeeded.
func (o *Orchestrator) audit(ctx context.Context, out *Outcome) {
	entry := index.AuditEntry{
		Slug:      out.Slug,
		Outcome:   string(out.Status),
		State:     string(out.State),
		Sources:   out.Sources,
		Conflicts: out.Conflicts,
		Unknown:   out.Unknown,
		Elapsed:   out.Elapsed,
		CreatedAt: o.now().UTC(),
	}
	for _, f := range out.Unavailable {
		entry.Failures = append(entry.Failures, f.Source)
	}
	if err := o.store.AppendAudit(ctx, entry); err != nil && !errors.Is(err, context.Canceled) {
		zap.L().Warn("discovery: audit append failed", zap.String("slug", out.Slug), zap.Error(err))
	}
}
