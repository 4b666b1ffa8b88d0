package adapter

import (
	"context"

	"github.com/fundflow/fundflow/internal/model"
)

// Static serves pre-seeded candidate records from memory. Used for offline
// genesis data loads and as a deterministic source in tests.
type Static struct {
	coverage
	name    string
	trust   float64
	records map[string]*model.CandidateRecord
	err     error
}

// NewStatic creates a fixture adapter over the given slug → record map.
func NewStatic(name string, trust float64, records map[string]*model.CandidateRecord, keys ...string) *Static {
	if keys == nil {
		keys = model.AllFieldKeys()
	}
	return &Static{
		coverage: newCoverage(keys...),
		name:     name,
		trust:    trust,
		records:  records,
	}
}

// Fail makes every Fetch return err, for exercising failure paths in tests.
func (s *Static) Fail(err error) *Static {
	s.err = err
	return s
}

func (s *Static) Name() string         { return s.name }
func (s *Static) TrustWeight() float64 { return s.trust }

func (s *Static) Fetch(ctx context.Context, slug string) (*model.CandidateRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rec, ok := s.records[slug]; ok {
		cp := *rec
		cp.Source = s.name
		return &cp, nil
	}
	return &model.CandidateRecord{Source: s.name}, nil
}
