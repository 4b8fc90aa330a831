// Package memory keeps run reports in process memory. Reports do not survive a
// restart.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/taskfarm/internal/domain/farm"
)

var _ farm.RunRepository = (*RunStore)(nil)

// RunStore is an in-memory farm.RunRepository safe for concurrent use.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*farm.RunReport
}

// NewRunStore creates an empty store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]*farm.RunReport)}
}

// Save stores a copy of report, replacing any run with the same id.
func (s *RunStore) Save(ctx context.Context, report *farm.RunReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[report.RunID] = clone(report)
	return nil
}

// Get returns a copy of the run with id.
func (s *RunStore) Get(ctx context.Context, id uuid.UUID) (*farm.RunReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", farm.ErrRunNotFound, id)
	}
	return clone(r), nil
}

// List returns up to limit runs, most recently started first.
func (s *RunStore) List(ctx context.Context, limit int) ([]*farm.RunReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*farm.RunReport, 0, len(s.runs))
	for _, r := range s.runs {
		all = append(all, r)
	}
	slices.SortFunc(all, func(a, b *farm.RunReport) int { return b.StartedAt.Compare(a.StartedAt) })

	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]*farm.RunReport, len(all))
	for i, r := range all {
		out[i] = clone(r)
	}
	return out, nil
}

func clone(r *farm.RunReport) *farm.RunReport {
	cp := *r
	cp.Results = slices.Clone(r.Results)
	cp.Assignments = maps.Clone(r.Assignments)
	return &cp
}
