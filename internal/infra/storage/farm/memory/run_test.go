package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/taskfarm/internal/domain/farm"
)

func TestRunStoreSaveGetIsolatesCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()

	r := farm.NewRunReport(farm.PolicyDynamic, farm.QueueOrderLIFO, 1, 1, time.Now())
	r.RecordAssignment(1)
	r.RecordResult(9)
	require.NoError(t, s.Save(ctx, r))

	r.RecordResult(100)
	got, err := s.Get(ctx, r.RunID)
	require.NoError(t, err)
	assert.Equal(t, []float64{9}, got.Results)

	got.Assignments[1] = 42
	again, err := s.Get(ctx, r.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Assignments[1])
}

func TestRunStoreGetUnknown(t *testing.T) {
	t.Parallel()

	_, err := NewRunStore().Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, farm.ErrRunNotFound)
}

func TestRunStoreListNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	base := time.Now()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		r := farm.NewRunReport(farm.PolicyStatic, farm.QueueOrderFIFO, 1, 0, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.Save(ctx, r))
		ids = append(ids, r.RunID)
	}

	runs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].RunID)
	assert.Equal(t, ids[1], runs[1].RunID)
}
