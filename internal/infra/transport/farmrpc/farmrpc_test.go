package farmrpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ahrav/taskfarm/internal/app/dispatch"
	dmetrics "github.com/ahrav/taskfarm/internal/app/dispatch/metrics"
	"github.com/ahrav/taskfarm/internal/app/worker"
	wmetrics "github.com/ahrav/taskfarm/internal/app/worker/metrics"
	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/pkg/common"
	"github.com/ahrav/taskfarm/pkg/common/logger"
)

const bufSize = 1 << 20

func startHub(t *testing.T, workers int) (*Hub, *bufconn.Listener) {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	hub := NewHub(workers, logger.Noop())
	srv := grpc.NewServer()
	hub.Register(srv)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		srv.Stop()
		hub.Close()
	})
	return hub, lis
}

func dialBuf(ctx context.Context, t *testing.T, lis *bufconn.Listener, id farm.WorkerID) (*Client, error) {
	t.Helper()
	return Dial(ctx, "passthrough:///bufnet", id,
		WithRetry(common.RetryConfig{InitialInterval: 10 * time.Millisecond, MaxElapsedTime: time.Second}),
		WithGRPCOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
	)
}

func TestWireRoundTrip(t *testing.T) {
	for _, msg := range []farm.Message{farm.Task(1.5), farm.Result(-2), farm.Terminate()} {
		got, err := decode(encode(msg))
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	}

	_, err := decode(&structpb.Struct{})
	assert.ErrorIs(t, err, farm.ErrProtocolViolation)

	id, err := decodeHello(encodeHello(7))
	require.NoError(t, err)
	assert.Equal(t, farm.WorkerID(7), id)

	_, err = decodeHello(encode(farm.Task(1)))
	assert.ErrorIs(t, err, farm.ErrProtocolViolation)
}

func TestDispatchOverGRPC(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const workers = 3
	hub, lis := startHub(t, workers)

	reg := wmetrics.New(prometheus.NewRegistry(), "test")
	g, gctx := errgroup.WithContext(ctx)
	for i := 1; i <= workers; i++ {
		id := farm.WorkerID(i)
		g.Go(func() error {
			client, err := dialBuf(gctx, t, lis, id)
			if err != nil {
				return err
			}
			defer client.Close()

			square := func(_ context.Context, x float64, _ farm.WorkerID) (float64, error) { return x * x, nil }
			w := worker.New(client, square, reg.ForWorker(int(id)), logger.Noop(), noop.NewTracerProvider().Tracer("test"))
			return w.Run(gctx)
		})
	}

	require.NoError(t, hub.WaitForWorkers(ctx))

	m, err := dmetrics.New(noopmetric.NewMeterProvider())
	require.NoError(t, err)

	items, err := farm.Generate(0, 10, 1)
	require.NoError(t, err)

	d, err := dispatch.New(farm.PolicyDynamic, hub, m, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	require.NoError(t, err)

	report, err := d.Dispatch(ctx, farm.NewWorkQueue(items, farm.QueueOrderLIFO))
	require.NoError(t, err)
	assert.True(t, report.Complete())

	want := make([]float64, len(items))
	for i, x := range items {
		want[i] = x * x
	}
	assert.ElementsMatch(t, want, report.Results)

	require.NoError(t, g.Wait())
}

func TestHubRejectsDuplicateWorker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, lis := startHub(t, 2)

	first, err := dialBuf(ctx, t, lis, 1)
	require.NoError(t, err)
	t.Cleanup(func() {
		first.cancel()
		_ = first.conn.Close()
	})

	_, err = dialBuf(ctx, t, lis, 1)
	assert.ErrorIs(t, err, farm.ErrPrecondition)
}

func TestHubRejectsUnknownWorker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, lis := startHub(t, 2)

	_, err := dialBuf(ctx, t, lis, 5)
	assert.ErrorIs(t, err, farm.ErrPrecondition)
}

func TestHubWaitForWorkersHonorsContext(t *testing.T) {
	hub, _ := startHub(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, hub.WaitForWorkers(ctx), context.DeadlineExceeded)
}

func TestHubSurfacesBrokenStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub, lis := startHub(t, 1)
	client, err := dialBuf(ctx, t, lis, 1)
	require.NoError(t, err)
	require.NoError(t, hub.WaitForWorkers(ctx))

	// Drop the stream without a half-close.
	client.cancel()
	<-client.pumpDone

	_, _, err = hub.ReceiveAny(ctx)
	assert.ErrorIs(t, err, farm.ErrTransport)
}

func TestDialGivesUpWithoutHub(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lis := bufconn.Listen(bufSize)
	require.NoError(t, lis.Close())

	_, err := Dial(ctx, "passthrough:///bufnet", 1,
		WithRetry(common.RetryConfig{InitialInterval: 5 * time.Millisecond, MaxElapsedTime: 50 * time.Millisecond}),
		WithGRPCOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
	)
	assert.ErrorIs(t, err, farm.ErrTransport)
}
