package farm

import (
	"context"

	"github.com/google/uuid"
)

// Transport is the dispatcher's side of the point-to-point channel set. Each
// worker has its own ordered channel pair; nothing is shared across workers.
type Transport interface {
	// Workers returns the worker identities in ascending order.
	Workers() []WorkerID

	// Send blocks until msg is accepted by the channel to the worker. Order is
	// preserved per channel.
	Send(ctx context.Context, to WorkerID, msg Message) error

	// Receive blocks until the next message from the given worker arrives.
	Receive(ctx context.Context, from WorkerID) (Message, error)

	// ReceiveAny blocks until a message from any worker arrives and reports
	// who sent it.
	ReceiveAny(ctx context.Context) (WorkerID, Message, error)

	// Probe reports, without blocking, whether a message from the worker can be
	// received right now. False does not mean one never will.
	Probe(from WorkerID) bool
}

// ReadyWaiter is implemented by transports that can block until any inbound
// channel has a message, so callers need not spin on Probe.
type ReadyWaiter interface {
	WaitReady(ctx context.Context) error
}

// Endpoint is a worker's side of its channel pair with the dispatcher.
type Endpoint interface {
	ID() WorkerID
	Receive(ctx context.Context) (Message, error)
	Send(ctx context.Context, msg Message) error
}

// WorkFunc evaluates one work item. Its latency is unconstrained and may depend
// on which worker runs it.
type WorkFunc func(ctx context.Context, x float64, worker WorkerID) (float64, error)

// RunRepository persists finished run reports.
type RunRepository interface {
	Save(ctx context.Context, report *RunReport) error
	Get(ctx context.Context, id uuid.UUID) (*RunReport, error)
	List(ctx context.Context, limit int) ([]*RunReport, error)
}

// RunEventPublisher announces finished runs to other systems.
type RunEventPublisher interface {
	PublishRunCompleted(ctx context.Context, report *RunReport) error
}
