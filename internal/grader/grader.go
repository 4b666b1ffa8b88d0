package grader

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/fundflow/fundflow/internal/model"
)

// Grader scores canonical records against a fixed rubric. Scoring is a pure
// function of the record: two identical records always grade identically.
type Grader struct {
	cfg Config
}

// New builds a Grader. The config must already be validated.
func New(cfg Config) *Grader {
	return &Grader{cfg: cfg}
}

// groupScore is one signal group's contribution before weighting.
type groupScore struct {
	score float64 // 0..1, meaningful only when known
	known bool
}

// Grade scores a reconciled record. Groups whose every underlying signal is
// unknown contribute no weight; the score is renormalized over the weight that
// was actually covered, and Coverage reports that fraction so a high score on
// thin evidence is visible as such. The investors map supplies tier ranks for
// the project's funding roster and may be nil.
func (g *Grader) Grade(p *model.Project, investors map[string]model.Investor, now time.Time) model.Grade {
	groups := map[string]groupScore{
		GroupCapital:   g.capital(p, investors),
		GroupTechnical: g.technical(p),
		GroupUsage:     g.usage(p),
		GroupTeam:      g.team(p),
	}
	weights := map[string]float64{
		GroupCapital:   g.cfg.CapitalWeight,
		GroupTechnical: g.cfg.TechnicalWeight,
		GroupUsage:     g.cfg.UsageWeight,
		GroupTeam:      g.cfg.TeamWeight,
	}

	var weighted, covered float64
	breakdown := make(map[string]float64, len(groups))
	for name, gs := range groups {
		if !gs.known {
			continue
		}
		w := weights[name]
		weighted += gs.score * w
		covered += w
		breakdown[name] = round1(gs.score * 100)
	}

	total := g.cfg.WeightSum()
	grade := model.Grade{
		Coverage:      0,
		RubricVersion: RubricVersion,
		Breakdown:     breakdown,
		GradedAt:      now.UTC(),
	}
	if covered == 0 {
		grade.Letter = Letter(0)
		zap.L().Debug("grading skipped, no covered signals", zap.String("slug", p.Slug))
		return grade
	}

	grade.Score = round1(weighted / covered * 100)
	grade.Coverage = covered / total
	grade.Letter = Letter(grade.Score)
	return grade
}

// capital blends total raised, round cadence, and lead-investor quality.
func (g *Grader) capital(p *model.Project, investors map[string]model.Investor) groupScore {
	sub := newBlend()

	if total, ok := numericField(p, model.FieldFundingTotalUSD); ok {
		sub.add(logSaturate(total, g.cfg.FundingSaturationUSD), 0.6)
	} else if raised := p.TotalRaisedUSD(); raised > 0 {
		// Fall back to the deduplicated event total when the field is unknown.
		sub.add(logSaturate(raised, g.cfg.FundingSaturationUSD), 0.6)
	}

	if rounds, ok := numericField(p, model.FieldFundingRoundCount); ok {
		sub.add(saturate(rounds, 4), 0.2)
	} else if n := len(p.FundingEvents); n > 0 {
		sub.add(saturate(float64(n), 4), 0.2)
	}

	if quality, ok := investorQuality(p, investors); ok {
		sub.add(quality, 0.2)
	}

	return sub.result()
}

// technical blends repository traction and recent commit velocity.
func (g *Grader) technical(p *model.Project) groupScore {
	sub := newBlend()
	if stars, ok := numericField(p, model.FieldGithubStars); ok {
		sub.add(logSaturate(stars, g.cfg.StarsSaturation), 0.5)
	}
	if velocity, ok := numericField(p, model.FieldCommitVelocity30d); ok {
		sub.add(saturate(velocity, g.cfg.CommitSaturation), 0.35)
	}
	if forks, ok := numericField(p, model.FieldGithubForks); ok {
		sub.add(logSaturate(forks, g.cfg.StarsSaturation/5), 0.15)
	}
	return sub.result()
}

// usage blends value locked, its trend, and protocol revenue.
func (g *Grader) usage(p *model.Project) groupScore {
	sub := newBlend()
	if tvl, ok := numericField(p, model.FieldTVLUSD); ok {
		sub.add(logSaturate(tvl, g.cfg.TVLSaturationUSD), 0.5)
	}
	if change, ok := numericField(p, model.FieldTVL30dChangePct); ok {
		// -50% maps to 0, flat to 0.5, +50% or better to 1.
		sub.add(clamp01(0.5+change/100), 0.2)
	}
	if revenue, ok := numericField(p, model.FieldRevenue24hUSD); ok {
		sub.add(logSaturate(revenue, g.cfg.TVLSaturationUSD/1000), 0.3)
	}
	return sub.result()
}

// team blends headcount and social reach.
func (g *Grader) team(p *model.Project) groupScore {
	sub := newBlend()
	if size, ok := numericField(p, model.FieldTeamSize); ok {
		sub.add(saturate(size, g.cfg.TeamSizeSaturation), 0.6)
	}
	if followers, ok := numericField(p, model.FieldTwitterFollowers); ok {
		sub.add(logSaturate(followers, 100_000), 0.4)
	}
	return sub.result()
}

// investorQuality scores the funding events' investor roster by the best tier
// present. Returns false when no event carries a resolved investor.
func investorQuality(p *model.Project, investors map[string]model.Investor) (float64, bool) {
	seen := false
	best := 0.0
	for _, ev := range p.FundingEvents {
		for _, id := range ev.InvestorIDs {
			seen = true
			switch investors[id].Tier {
			case model.TierTop:
				best = math.Max(best, 1)
			case model.TierSecond:
				best = math.Max(best, 0.6)
			default:
				best = math.Max(best, 0.3)
			}
		}
	}
	return best, seen
}

// blend accumulates weighted sub-signals and renormalizes over the weight of
// the signals that were actually present.
type blend struct {
	sum, weight float64
}

func newBlend() *blend { return &blend{} }

func (b *blend) add(score, weight float64) {
	b.sum += score * weight
	b.weight += weight
}

func (b *blend) result() groupScore {
	if b.weight == 0 {
		return groupScore{}
	}
	return groupScore{score: clamp01(b.sum / b.weight), known: true}
}

// numericField returns a field's numeric value, treating unknown and
// non-numeric values as absent.
func numericField(p *model.Project, key string) (float64, bool) {
	f := p.Field(key)
	if f.Status == model.FieldUnknown {
		return 0, false
	}
	switch v := f.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// saturate maps v linearly onto 0..1, saturating at the anchor.
func saturate(v, anchor float64) float64 {
	if v <= 0 {
		return 0
	}
	return clamp01(v / anchor)
}

// logSaturate maps v onto 0..1 on a log scale spanning three decades below
// the anchor, so small projects still differentiate.
func logSaturate(v, anchor float64) float64 {
	if v <= 0 {
		return 0
	}
	floor := anchor / 1000
	if v <= floor {
		return 0
	}
	return clamp01(math.Log10(v/floor) / 3)
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
