// Package reconcile merges conflicting, partial candidate records from
// independent sources into one canonical project record with field-level
// confidence and provenance.
package reconcile

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fundflow/fundflow/internal/model"
)

// TrustProvider supplies static source trust weights and field coverage.
// The adapter registry implements it.
type TrustProvider interface {
	TrustOf(name string) float64
	Covers(source, fieldKey string) bool
}

// localSource is the provenance name for the stored record when it rejoins a
// reconciliation pass as one more candidate.
const localSource = "local"

// Engine merges candidate records per the configured policy. Merging is
// deterministic: identical inputs (including timestamps) produce identical
// output.
type Engine struct {
	policy *Policy
	trust  TrustProvider
	now    func() time.Time
}

// New creates a reconciliation engine.
func New(policy *Policy, trust TrustProvider) *Engine {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Engine{policy: policy, trust: trust, now: time.Now}
}

// WithNow fixes the engine clock for testing.
func (e *Engine) WithNow(t time.Time) *Engine {
	e.now = func() time.Time { return t }
	return e
}

// Result is the output of one reconciliation pass.
type Result struct {
	Project      *model.Project
	NewInvestors []model.Investor
	Conflicts    int
	Unknown      int
}

// Merge reconciles the local record (if any) with freshly fetched candidates.
// unavailable names the adapters that failed this pass; their declared
// coverage is recorded as field-level gaps instead of being defaulted.
func (e *Engine) Merge(slug string, local *model.Project, records []model.CandidateRecord, unavailable []string, knownInvestors []model.Investor) *Result {
	now := e.now().UTC()

	all := make([]model.CandidateRecord, 0, len(records)+1)
	all = append(all, records...)
	if local != nil {
		all = append(all, e.localCandidate(local))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Source < all[j].Source })

	project := &model.Project{
		Slug:         slug,
		Fields:       make(map[string]model.Field),
		StalenessTTL: model.DefaultStalenessTTL,
		FirstSeen:    now,
	}
	if local != nil {
		project.Name = local.Name
		project.FirstSeen = local.FirstSeen
		if local.StalenessTTL > 0 {
			project.StalenessTTL = local.StalenessTTL
		}
	}

	result := &Result{Project: project}

	for _, key := range e.fieldKeys(all) {
		field := e.mergeField(key, all, unavailable, now)
		project.Fields[key] = field
		if field.Conflict {
			result.Conflicts++
		}
		if field.Status == model.FieldUnknown {
			result.Unknown++
		}
	}

	resolver := NewInvestorResolver(knownInvestors)
	var localEvents []model.FundingEvent
	if local != nil {
		localEvents = local.FundingEvents
	}
	events, fundingConflicts := e.mergeFunding(localEvents, records, resolver, now)
	project.FundingEvents = events
	result.NewInvestors = resolver.Created()
	result.Conflicts += fundingConflicts

	e.liftIdentity(project)
	project.Sources = sourceNames(all)
	project.LastReconciledAt = now

	zap.L().Debug("reconcile: merge complete",
		zap.String("slug", slug),
		zap.Int("candidates", len(all)),
		zap.Int("conflicts", result.Conflicts),
		zap.Int("unknown", result.Unknown),
	)
	return result
}

// localCandidate demotes the stored record to one more candidate, carrying
// each field's winning value at its original observation time.
func (e *Engine) localCandidate(local *model.Project) model.CandidateRecord {
	rec := model.CandidateRecord{
		Source:     localSource,
		ObservedAt: local.LastReconciledAt,
		Fields:     make(map[string]any),
	}
	for key, f := range local.Fields {
		if f.Status == model.FieldUnknown || f.Value == nil {
			continue
		}
		rec.Fields[key] = f.Value
	}
	return rec
}

// fieldKeys returns the merge vocabulary: every known structured key plus any
// extra key a candidate supplied, in stable order.
func (e *Engine) fieldKeys(records []model.CandidateRecord) []string {
	keys := model.AllFieldKeys()
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	var extra []string
	for _, rec := range records {
		for k := range rec.Fields {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

// candidateValue is one source's opinion about one field.
type candidateValue struct {
	source     string
	value      any
	observedAt time.Time
	confidence float64 // trust × freshness, corroboration applied later
}

// mergeField reconciles one field independently of all others.
func (e *Engine) mergeField(key string, records []model.CandidateRecord, unavailable []string, now time.Time) model.Field {
	decay := e.policy.DecayFor(key)

	var candidates []candidateValue
	for _, rec := range records {
		v, ok := rec.Fields[key]
		if !ok || v == nil {
			continue // no opinion
		}
		candidates = append(candidates, candidateValue{
			source:     rec.Source,
			value:      v,
			observedAt: rec.ObservedAt,
			confidence: e.trustOf(rec.Source) * Freshness(rec.ObservedAt, now, decay),
		})
	}

	field := model.Field{Key: key, Unavailable: e.gapsFor(key, unavailable)}

	if len(candidates) == 0 {
		field.Status = model.FieldUnknown
		return field
	}

	groups := e.groupCandidates(key, candidates)

	// Corroboration: every member of a group of n agreeing sources gets the
	// same bonus multiplier.
	bonus := e.policy.Defaults.CorroborationBonus
	bonusCap := e.policy.Defaults.CorroborationCap
	for _, g := range groups {
		mult := 1 + math.Min(bonusCap, bonus*float64(len(g)-1))
		for _, c := range g {
			c.confidence *= mult
			field.Candidates = append(field.Candidates, model.Provenance{
				Source:        c.source,
				RawValue:      c.value,
				Confidence:    c.confidence,
				ObservedAt:    c.observedAt,
				Corroborators: len(g),
			})
		}
	}

	// Highest confidence wins; ties break on source name so the merge is
	// deterministic.
	sort.SliceStable(field.Candidates, func(i, j int) bool {
		a, b := field.Candidates[i], field.Candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Source < b.Source
	})

	winner := field.Candidates[0]
	field.Winner = &winner
	field.Value = winner.RawValue

	switch {
	case len(groups) > 1:
		field.Status = model.FieldDisputed
		field.Conflict = true
	case winner.Corroborators > 1:
		field.Status = model.FieldCorroborated
	default:
		field.Status = model.FieldSingle
	}
	return field
}

// groupCandidates partitions candidates into agreement groups: numeric values
// within relative tolerance agree, strings agree case-folded, everything else
// agrees on strict equality.
func (e *Engine) groupCandidates(key string, candidates []candidateValue) [][]*candidateValue {
	tolerance := e.policy.ToleranceFor(key)

	numeric := true
	for _, c := range candidates {
		if _, ok := toFloat(c.value); !ok {
			numeric = false
			break
		}
	}

	var groups [][]*candidateValue
	if numeric {
		// Sort by value so tolerance chaining is deterministic.
		idx := make([]*candidateValue, len(candidates))
		for i := range candidates {
			idx[i] = &candidates[i]
		}
		sort.SliceStable(idx, func(i, j int) bool {
			a, _ := toFloat(idx[i].value)
			b, _ := toFloat(idx[j].value)
			if a != b {
				return a < b
			}
			return idx[i].source < idx[j].source
		})
		for _, c := range idx {
			v, _ := toFloat(c.value)
			placed := false
			for gi, g := range groups {
				rep, _ := toFloat(g[0].value)
				if withinTolerance(rep, v, tolerance) {
					groups[gi] = append(g, c)
					placed = true
					break
				}
			}
			if !placed {
				groups = append(groups, []*candidateValue{c})
			}
		}
		return groups
	}

	byKey := make(map[string]int)
	for i := range candidates {
		c := &candidates[i]
		k := equalityKey(c.value)
		if gi, ok := byKey[k]; ok {
			groups[gi] = append(groups[gi], c)
			continue
		}
		byKey[k] = len(groups)
		groups = append(groups, []*candidateValue{c})
	}
	return groups
}

// gapsFor lists failed sources whose declared coverage includes the key.
func (e *Engine) gapsFor(key string, unavailable []string) []string {
	var out []string
	for _, src := range unavailable {
		if e.trust != nil && e.trust.Covers(src, key) {
			out = append(out, src)
		}
	}
	sort.Strings(out)
	return out
}

func (e *Engine) trustOf(source string) float64 {
	if source == localSource {
		return e.policy.Defaults.LocalTrust
	}
	if e.trust == nil {
		return 0.5
	}
	return e.trust.TrustOf(source)
}

// liftIdentity promotes reconciled identity fields onto the project header
// for callers that only need the summary shape.
func (e *Engine) liftIdentity(p *model.Project) {
	if f := p.Field(model.FieldSector); f.Known() {
		if s, ok := f.Value.(string); ok {
			p.Sector = s
		}
	}
	if p.Sector == "" {
		if f := p.Field(model.FieldCategory); f.Known() {
			if s, ok := f.Value.(string); ok {
				p.Sector = s
			}
		}
	}
	if f := p.Field(model.FieldDescription); f.Known() {
		if s, ok := f.Value.(string); ok {
			p.Description = s
		}
	}
	if f := p.Field(model.FieldWebsite); f.Known() {
		if s, ok := f.Value.(string); ok {
			p.Website = s
		}
	}
	if p.Name == "" {
		p.Name = humanize(p.Slug)
	}
}

func humanize(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func sourceNames(records []model.CandidateRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		if _, ok := seen[r.Source]; ok {
			continue
		}
		seen[r.Source] = struct{}{}
		out = append(out, r.Source)
	}
	sort.Strings(out)
	return out
}

// withinTolerance reports whether two numerics agree within relative
// tolerance.
func withinTolerance(a, b, tolerance float64) bool {
	if a == b {
		return true
	}
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return true
	}
	return math.Abs(a-b)/denom <= tolerance
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

func equalityKey(v any) string {
	switch s := v.(type) {
	case string:
		return "s:" + strings.ToLower(strings.TrimSpace(s))
	case bool:
		if s {
			return "b:true"
		}
		return "b:false"
	default:
		return "o:" + fmt.Sprintf("%v", v)
	}
}
