package farmrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/internal/infra/transport/inbox"
	"github.com/ahrav/taskfarm/pkg/common/logger"
)

var (
	_ farm.Transport   = (*Hub)(nil)
	_ farm.ReadyWaiter = (*Hub)(nil)
	_ farmServer       = (*Hub)(nil)
)

// Hub is the dispatcher's side of the gRPC transport. It accepts exactly one
// stream per expected worker identity and exposes them as a farm.Transport.
type Hub struct {
	ids     []farm.WorkerID
	inbound *inbox.Group

	mu        sync.Mutex
	slots     map[farm.WorkerID]*slot
	pending   int
	joined    chan struct{}
	closeOnce sync.Once

	logger *logger.Logger
}

// slot is one worker's stream. ready is closed once the stream is registered
// and acknowledged; sends wait on it.
type slot struct {
	ready  chan struct{}
	stream grpc.ServerStream
	sendMu sync.Mutex
}

// NewHub prepares a hub expecting workers 1..workers.
func NewHub(workers int, log *logger.Logger) *Hub {
	ids := make([]farm.WorkerID, 0, max(workers, 0))
	slots := make(map[farm.WorkerID]*slot, workers)
	for i := 1; i <= workers; i++ {
		id := farm.WorkerID(i)
		ids = append(ids, id)
		slots[id] = &slot{ready: make(chan struct{})}
	}

	h := &Hub{
		ids:     ids,
		inbound: inbox.NewGroup(ids),
		slots:   slots,
		pending: len(ids),
		joined:  make(chan struct{}),
		logger:  log.With("component", "farmrpc.hub"),
	}
	if h.pending == 0 {
		close(h.joined)
	}
	return h
}

// Register attaches the Farm service to srv.
func (h *Hub) Register(srv *grpc.Server) { srv.RegisterService(&serviceDesc, h) }

// WaitForWorkers blocks until every expected worker has connected.
func (h *Hub) WaitForWorkers(ctx context.Context) error {
	select {
	case <-h.joined:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect handles one worker stream. The first message must be a hello naming
// an expected, not yet connected worker. After that every inbound message is
// queued for the dispatcher until the worker half-closes.
func (h *Hub) Connect(stream grpc.ServerStream) error {
	ctx := stream.Context()

	hello := new(structpb.Struct)
	if err := stream.RecvMsg(hello); err != nil {
		return err
	}
	id, err := decodeHello(hello)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	s, err := h.claim(id, stream)
	if err != nil {
		h.logger.Warn(ctx, "worker rejected", "worker_id", int(id), "error", err)
		return err
	}
	if err := stream.SendMsg(encodeHello(id)); err != nil {
		h.fail(id, err)
		return err
	}
	close(s.ready)
	h.logger.Info(ctx, "worker connected", "worker_id", int(id))
	h.markJoined()

	box, _ := h.inbound.Box(id)
	for {
		in := new(structpb.Struct)
		err := stream.RecvMsg(in)
		if errors.Is(err, io.EOF) {
			box.Close(nil)
			h.logger.Debug(ctx, "worker closed stream", "worker_id", int(id))
			return nil
		}
		if err != nil {
			h.fail(id, err)
			return err
		}

		msg, err := decode(in)
		if err != nil {
			box.Close(err)
			return status.Error(codes.InvalidArgument, err.Error())
		}
		if err := box.Put(msg); err != nil {
			return status.Error(codes.Unavailable, err.Error())
		}
	}
}

func (h *Hub) claim(id farm.WorkerID, stream grpc.ServerStream) (*slot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.slots[id]
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "worker %d is not part of this run", id)
	}
	if s.stream != nil {
		return nil, status.Errorf(codes.AlreadyExists, "worker %d already connected", id)
	}
	s.stream = stream
	return s, nil
}

func (h *Hub) markJoined() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending--
	if h.pending == 0 {
		close(h.joined)
	}
}

func (h *Hub) fail(id farm.WorkerID, err error) {
	if box, ok := h.inbound.Box(id); ok {
		box.Close(err)
	}
	h.logger.Error(context.Background(), "worker stream failed", "worker_id", int(id), "error", err)
}

// Workers returns the expected worker identities in ascending order.
func (h *Hub) Workers() []farm.WorkerID { return h.inbound.IDs() }

// Send writes msg to the worker's stream, waiting for the worker to connect
// first if it has not yet.
func (h *Hub) Send(ctx context.Context, to farm.WorkerID, msg farm.Message) error {
	s, ok := h.slots[to]
	if !ok {
		return fmt.Errorf("%w: unknown worker %d", farm.ErrTransport, to)
	}

	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.stream.SendMsg(encode(msg)); err != nil {
		return fmt.Errorf("%w: worker %d: %w", farm.ErrTransport, to, err)
	}
	return nil
}

// Receive blocks for the next message from the given worker.
func (h *Hub) Receive(ctx context.Context, from farm.WorkerID) (farm.Message, error) {
	return h.inbound.Take(ctx, from)
}

// ReceiveAny blocks for the next message from any worker.
func (h *Hub) ReceiveAny(ctx context.Context) (farm.WorkerID, farm.Message, error) {
	return h.inbound.TakeAny(ctx)
}

// Probe reports whether a message from the worker is waiting.
func (h *Hub) Probe(from farm.WorkerID) bool { return h.inbound.Probe(from) }

// WaitReady blocks until any worker channel has something to receive.
func (h *Hub) WaitReady(ctx context.Context) error { return h.inbound.WaitReady(ctx) }

// Close fails every inbound channel that is still open. Streams themselves end
// when the gRPC server stops.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.inbound.CloseAll(fmt.Errorf("%w: hub closed", farm.ErrTransport))
	})
}
