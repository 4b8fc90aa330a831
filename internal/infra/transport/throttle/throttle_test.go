package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/internal/infra/transport/memory"
)

type plain struct{ farm.Transport }

func TestWrapDisabled(t *testing.T) {
	n := memory.NewNetwork(1)
	assert.Same(t, n, Wrap(n, 0, 0))
}

func TestWrapKeepsReadyWaiter(t *testing.T) {
	n := memory.NewNetwork(1)

	_, ok := Wrap(n, 10, 1).(farm.ReadyWaiter)
	assert.True(t, ok)

	_, ok = Wrap(plain{n}, 10, 1).(farm.ReadyWaiter)
	assert.False(t, ok)
}

func TestSendIsPaced(t *testing.T) {
	ctx := context.Background()
	n := memory.NewNetwork(1)
	tr := Wrap(n, 50, 1)

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, tr.Send(ctx, 1, farm.Task(float64(i))))
	}
	// One burst token, then three waits of 20ms each.
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	ep, err := n.Endpoint(1)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		msg, err := ep.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, farm.Task(float64(i)), msg)
	}
}

func TestSendHonorsCancel(t *testing.T) {
	n := memory.NewNetwork(1)
	tr := Wrap(n, 0.001, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.NoError(t, tr.Send(ctx, 1, farm.Task(1)))
	assert.Error(t, tr.Send(ctx, 1, farm.Task(2)))

	ep, err := n.Endpoint(1)
	require.NoError(t, err)
	msg, err := ep.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, farm.Task(1), msg)
}
