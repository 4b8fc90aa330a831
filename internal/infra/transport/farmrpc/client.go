package farmrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/internal/infra/transport/inbox"
	"github.com/ahrav/taskfarm/pkg/common"
	"github.com/ahrav/taskfarm/pkg/common/logger"
)

var _ farm.Endpoint = (*Client)(nil)

// closeTimeout bounds how long Close waits for the hub to end the stream
// after the worker half-closes it.
const closeTimeout = 5 * time.Second

// Client is a worker's connection to the hub.
type Client struct {
	id     farm.WorkerID
	conn   *grpc.ClientConn
	stream grpc.ClientStream
	cancel context.CancelFunc

	sendMu   sync.Mutex
	recv     *inbox.Mailbox
	pumpDone chan struct{}

	logger *logger.Logger
}

type dialConfig struct {
	retry          common.RetryConfig
	grpcOpts       []grpc.DialOption
	logger         *logger.Logger
	tracerProvider trace.TracerProvider
}

// DialOption configures Dial.
type DialOption func(*dialConfig)

// WithRetry overrides the backoff used while the hub is unreachable.
func WithRetry(cfg common.RetryConfig) DialOption {
	return func(c *dialConfig) { c.retry = cfg }
}

// WithGRPCOptions appends raw gRPC dial options, applied after the defaults.
func WithGRPCOptions(opts ...grpc.DialOption) DialOption {
	return func(c *dialConfig) { c.grpcOpts = append(c.grpcOpts, opts...) }
}

// WithLogger sets the client logger.
func WithLogger(l *logger.Logger) DialOption {
	return func(c *dialConfig) { c.logger = l }
}

// WithTracerProvider instruments the connection with tp.
func WithTracerProvider(tp trace.TracerProvider) DialOption {
	return func(c *dialConfig) { c.tracerProvider = tp }
}

// Dial connects worker id to the hub at addr and completes the hello
// handshake. Unreachable hubs are retried with backoff; a rejection of the
// identity is returned immediately. ctx bounds the handshake only; the stream
// stays open until Close.
func Dial(ctx context.Context, addr string, id farm.WorkerID, opts ...DialOption) (*Client, error) {
	cfg := dialConfig{
		retry:          common.DefaultRetryConfig,
		logger:         logger.Noop(),
		tracerProvider: noop.NewTracerProvider(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.logger.With("component", "farmrpc.client", "worker_id", int(id))

	grpcOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler(otelgrpc.WithTracerProvider(cfg.tracerProvider))),
	}, cfg.grpcOpts...)

	conn, err := grpc.NewClient(addr, grpcOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating client for %s: %w", farm.ErrTransport, addr, err)
	}

	c := &Client{
		id:       id,
		conn:     conn,
		recv:     inbox.NewMailbox(nil),
		pumpDone: make(chan struct{}),
		logger:   log,
	}

	// A rejected identity will not get better with retries.
	var rejected error
	op := func() error {
		stream, cancel, err := c.handshake(ctx)
		if err != nil {
			if isRejection(err) {
				rejected = err
				return nil
			}
			return err
		}
		c.stream, c.cancel = stream, cancel
		return nil
	}

	if err := common.RetryWithBackoff(ctx, log, "connect to dispatcher", cfg.retry, op); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", farm.ErrTransport, err)
	}
	if rejected != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: dispatcher rejected worker %d: %w", farm.ErrPrecondition, id, rejected)
	}

	go c.pump()
	log.Info(ctx, "connected to dispatcher", "addr", addr)
	return c, nil
}

// handshake opens a stream and exchanges hellos. The stream context is
// detached from ctx once the handshake succeeds.
func (c *Client) handshake(ctx context.Context) (grpc.ClientStream, context.CancelFunc, error) {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, cancel)

	stream, err := c.conn.NewStream(streamCtx, &serviceDesc.Streams[0], connectMethod)
	if err != nil {
		stop()
		cancel()
		return nil, nil, err
	}
	// A failed send surfaces its real status on the next receive.
	if err := stream.SendMsg(encodeHello(c.id)); err != nil && !errors.Is(err, io.EOF) {
		stop()
		cancel()
		return nil, nil, err
	}

	ack := new(structpb.Struct)
	if err := stream.RecvMsg(ack); err != nil {
		stop()
		cancel()
		return nil, nil, err
	}
	if got, err := decodeHello(ack); err != nil || got != c.id {
		stop()
		cancel()
		return nil, nil, status.Errorf(codes.InvalidArgument, "bad hello acknowledgement for worker %d", c.id)
	}

	if !stop() {
		cancel()
		return nil, nil, ctx.Err()
	}
	return stream, cancel, nil
}

func isRejection(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.AlreadyExists:
		return true
	default:
		return false
	}
}

func (c *Client) pump() {
	defer close(c.pumpDone)
	for {
		in := new(structpb.Struct)
		if err := c.stream.RecvMsg(in); err != nil {
			if errors.Is(err, io.EOF) {
				c.recv.Close(nil)
			} else {
				c.recv.Close(err)
			}
			return
		}

		msg, err := decode(in)
		if err != nil {
			c.recv.Close(err)
			return
		}
		if err := c.recv.Put(msg); err != nil {
			return
		}
	}
}

// ID returns the worker identity.
func (c *Client) ID() farm.WorkerID { return c.id }

// Receive blocks for the next message from the dispatcher.
func (c *Client) Receive(ctx context.Context) (farm.Message, error) { return c.recv.Take(ctx) }

// Send writes msg to the dispatcher.
func (c *Client) Send(ctx context.Context, msg farm.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.stream.SendMsg(encode(msg)); err != nil {
		return fmt.Errorf("%w: sending to dispatcher: %w", farm.ErrTransport, err)
	}
	return nil
}

// Close half-closes the stream, waits briefly for the hub to finish it, then
// tears the connection down.
func (c *Client) Close() error {
	c.sendMu.Lock()
	sendErr := c.stream.CloseSend()
	c.sendMu.Unlock()

	select {
	case <-c.pumpDone:
	case <-time.After(closeTimeout):
		c.logger.Warn(context.Background(), "dispatcher did not end the stream in time")
	}
	c.cancel()
	<-c.pumpDone

	return errors.Join(sendErr, c.conn.Close())
}
