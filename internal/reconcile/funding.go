package reconcile

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fundflow/fundflow/internal/model"
)

// fundingCandidate is one source's report of one capital event.
type fundingCandidate struct {
	source     string
	amountUSD  float64
	announced  time.Time
	roundType  model.RoundType
	investors  []string // raw names; already-resolved IDs pass through
	leadName   string
	observedAt time.Time
	confidence float64
}

// mergeFunding deduplicates capital events across sources by the composite
// key (announced day, amount within tolerance) and resolves investor names
// to canonical IDs. Reports of the same raise never become two events; a
// disagreement on amount or round label stays one flagged event. Returns the
// reconciled event list and the number of conflicts recorded.
func (e *Engine) mergeFunding(localEvents []model.FundingEvent, records []model.CandidateRecord, resolver *InvestorResolver, now time.Time) ([]model.FundingEvent, int) {
	tolerance := e.policy.ToleranceFor(model.FieldFundingTotalUSD)
	decay := e.policy.DecayFor(model.FieldFundingTotalUSD)

	var candidates []fundingCandidate
	for _, ev := range localEvents {
		c := fundingCandidate{
			source:     localSource,
			amountUSD:  ev.AmountUSD,
			announced:  ev.AnnouncedAt,
			roundType:  ev.RoundType,
			investors:  ev.InvestorIDs,
			leadName:   ev.LeadID,
			observedAt: ev.AnnouncedAt,
			confidence: e.policy.Defaults.LocalTrust,
		}
		candidates = append(candidates, c)
	}
	for _, rec := range records {
		for _, ev := range rec.FundingEvents {
			candidates = append(candidates, fundingCandidate{
				source:     rec.Source,
				amountUSD:  ev.AmountUSD,
				announced:  ev.AnnouncedAt,
				roundType:  ev.RoundType,
				investors:  ev.Investors,
				leadName:   ev.LeadName,
				observedAt: rec.ObservedAt,
				confidence: e.trustOf(rec.Source) * Freshness(rec.ObservedAt, now, decay),
			})
		}
	}
	if len(candidates) == 0 {
		return nil, 0
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].announced.Equal(candidates[j].announced) {
			return candidates[i].announced.Before(candidates[j].announced)
		}
		if candidates[i].amountUSD != candidates[j].amountUSD {
			return candidates[i].amountUSD < candidates[j].amountUSD
		}
		return candidates[i].source < candidates[j].source
	})

	// Bucket by UTC day only; cluster each bucket's amounts by relative
	// tolerance so a $5.0M and $5.05M re-scrape collapse, never double-count.
	// Round labels are not part of the key: sources tag the same raise
	// inconsistently, and a label mismatch must not split the event.
	buckets := make(map[time.Time][]fundingCandidate)
	var order []time.Time
	for _, c := range candidates {
		day := c.announced.UTC().Truncate(24 * time.Hour)
		if _, ok := buckets[day]; !ok {
			order = append(order, day)
		}
		buckets[day] = append(buckets[day], c)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	var events []model.FundingEvent
	var conflicts int
	for _, day := range order {
		group := buckets[day]
		clusters := clusterAmounts(group, tolerance)

		// Multiple amount clusters or round labels for one day is a dispute:
		// the event is still one event, flagged, with the winning amount and
		// round chosen by confidence and every candidate retained in
		// provenance.
		conflict := len(clusters) > 1
		for _, c := range group[1:] {
			if c.roundType != group[0].roundType {
				conflict = true
				break
			}
		}

		best := group[0]
		for _, c := range group[1:] {
			if c.confidence > best.confidence ||
				(c.confidence == best.confidence && c.source < best.source) {
				best = c
			}
		}

		ev := model.FundingEvent{
			AmountUSD:   best.amountUSD,
			AnnouncedAt: best.announced.UTC(),
			RoundType:   best.roundType,
			Conflict:    conflict,
		}
		if conflict {
			conflicts++
		}

		investorSet := make(map[string]struct{})
		for _, c := range group {
			ev.Sources = append(ev.Sources, model.Provenance{
				Source:        c.source,
				RawValue:      c.amountUSD,
				Confidence:    c.confidence,
				ObservedAt:    c.observedAt,
				Corroborators: len(group),
			})
			for _, name := range c.investors {
				if id := resolver.Resolve(name, now); id != "" {
					investorSet[id] = struct{}{}
				}
			}
		}
		if best.leadName != "" {
			ev.LeadID = resolver.Resolve(best.leadName, now)
		}
		for id := range investorSet {
			ev.InvestorIDs = append(ev.InvestorIDs, id)
		}
		sort.Strings(ev.InvestorIDs)
		sort.SliceStable(ev.Sources, func(i, j int) bool {
			if ev.Sources[i].Confidence != ev.Sources[j].Confidence {
				return ev.Sources[i].Confidence > ev.Sources[j].Confidence
			}
			return ev.Sources[i].Source < ev.Sources[j].Source
		})

		events = append(events, ev)
	}

	return events, conflicts
}

// clusterAmounts partitions a bucket's amounts into tolerance clusters. The
// bucket arrives sorted by amount, so greedy chaining is deterministic.
func clusterAmounts(group []fundingCandidate, tolerance float64) map[string][]fundingCandidate {
	clusters := make(map[string][]fundingCandidate)
	var reps []float64
	for _, c := range group {
		placed := false
		for _, rep := range reps {
			if math.Abs(c.amountUSD-rep) <= tolerance*math.Max(math.Abs(c.amountUSD), math.Abs(rep)) {
				clusters[clusterLabel(rep)] = append(clusters[clusterLabel(rep)], c)
				placed = true
				break
			}
		}
		if !placed {
			reps = append(reps, c.amountUSD)
			clusters[clusterLabel(c.amountUSD)] = append(clusters[clusterLabel(c.amountUSD)], c)
		}
	}
	return clusters
}

func clusterLabel(rep float64) string {
	return fmt.Sprintf("%.2f", rep)
}
