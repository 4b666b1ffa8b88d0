package reconcile

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/fundflow/fundflow/internal/model"
)

// legalSuffixes are folded off investor names before identity matching, so
// "Paradigm Capital LLC" and "Paradigm Capital" resolve to the same entity.
var legalSuffixes = []string{
	"ltd", "llc", "inc", "lp", "l.p.", "gmbh", "limited", "corp",
	"corporation", "co",
}

// topTierInvestors and tierTwoInvestors rank well-known funds. Matching is
// done on normalized names.
var topTierInvestors = []string{
	"paradigm", "andreessen horowitz", "a16z crypto", "coinbase ventures",
	"binance labs", "polychain capital", "pantera capital", "sequoia capital",
	"tiger global", "framework ventures", "dragonfly capital",
	"electric capital", "multicoin capital", "variant fund", "1kx",
	"blockchain capital",
}

var tierTwoInvestors = []string{
	"animoca brands", "jump crypto", "galaxy digital", "dcg",
	"circle ventures", "balaji srinivasan", "naval ravikant",
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeInvestorName folds case, diacritics, punctuation, and trailing
// legal suffixes. The result is the matching key for identity resolution.
func NormalizeInvestorName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			return r
		case r == '.' || r == ',':
			return -1
		default:
			return ' '
		}
	}, s)
	s = strings.Join(strings.Fields(s), " ")

	for _, suffix := range legalSuffixes {
		s = strings.TrimSuffix(s, " "+suffix)
	}
	return strings.TrimSpace(s)
}

// InvestorTier ranks a normalized investor name: 1 for top tier, 2 for tier
// two, 0 for unranked.
func InvestorTier(normalized string) int {
	for _, t := range topTierInvestors {
		if normalized == t {
			return 1
		}
	}
	for _, t := range tierTwoInvestors {
		if normalized == t {
			return 2
		}
	}
	return 0
}

// InvestorResolver resolves raw investor names against known entities.
// Unresolved names create a new Investor rather than being dropped.
type InvestorResolver struct {
	known map[string]*model.Investor // normalized name or alias → entity
	order []string                   // creation order for deterministic output
}

// NewInvestorResolver seeds a resolver with already-known investors and their
// aliases.
func NewInvestorResolver(known []model.Investor) *InvestorResolver {
	r := &InvestorResolver{known: make(map[string]*model.Investor)}
	for i := range known {
		inv := known[i]
		r.index(&inv)
	}
	return r
}

func (r *InvestorResolver) index(inv *model.Investor) {
	r.known[NormalizeInvestorName(inv.Name)] = inv
	for _, alias := range inv.Aliases {
		r.known[NormalizeInvestorName(alias)] = inv
	}
}

// Resolve maps a raw name to a canonical investor ID, creating the entity on
// first sight. Raw spellings that normalize onto an existing entity are
// remembered as aliases.
func (r *InvestorResolver) Resolve(rawName string, now time.Time) string {
	normalized := NormalizeInvestorName(rawName)
	if normalized == "" {
		return ""
	}

	if inv, ok := r.known[normalized]; ok {
		trimmed := strings.TrimSpace(rawName)
		if trimmed != inv.Name && !contains(inv.Aliases, trimmed) {
			inv.Aliases = append(inv.Aliases, trimmed)
			inv.LastUpdated = now
		}
		return inv.ID
	}

	inv := &model.Investor{
		ID:          model.Slugify(normalized),
		Name:        strings.TrimSpace(rawName),
		Tier:        InvestorTier(normalized),
		FirstSeen:   now,
		LastUpdated: now,
	}
	r.known[normalized] = inv
	r.order = append(r.order, normalized)
	return inv.ID
}

// Created returns investors seen for the first time during this pass, in
// creation order.
func (r *InvestorResolver) Created() []model.Investor {
	out := make([]model.Investor, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, *r.known[key])
	}
	return out
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
