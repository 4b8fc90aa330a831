// Package memory provides an in-process implementation of the farm transport.
// Every worker gets an independent, unbounded channel pair with the dispatcher,
// which makes it suitable for local runs and tests where durability and
// process isolation are not required.
package memory

import (
	"context"
	"fmt"

	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/internal/infra/transport/inbox"
)

var (
	_ farm.Transport   = (*Network)(nil)
	_ farm.ReadyWaiter = (*Network)(nil)
	_ farm.Endpoint    = (*Endpoint)(nil)
)

// Network is the dispatcher's side of a fully connected in-process channel
// set. Workers obtain their side through Endpoint.
type Network struct {
	ids     []farm.WorkerID
	inbound *inbox.Group
	// outbound holds the dispatcher-to-worker channels.
	outbound map[farm.WorkerID]*inbox.Mailbox
}

// NewNetwork builds channels for workers 1..workers.
func NewNetwork(workers int) *Network {
	ids := make([]farm.WorkerID, 0, max(workers, 0))
	for i := 1; i <= workers; i++ {
		ids = append(ids, farm.WorkerID(i))
	}

	out := make(map[farm.WorkerID]*inbox.Mailbox, len(ids))
	for _, id := range ids {
		out[id] = inbox.NewMailbox(nil)
	}

	return &Network{ids: ids, inbound: inbox.NewGroup(ids), outbound: out}
}

// Workers returns the worker identities in ascending order.
func (n *Network) Workers() []farm.WorkerID { return n.inbound.IDs() }

// Send enqueues msg on the channel to the worker. It never blocks.
func (n *Network) Send(ctx context.Context, to farm.WorkerID, msg farm.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	box, ok := n.outbound[to]
	if !ok {
		return fmt.Errorf("%w: unknown worker %d", farm.ErrTransport, to)
	}
	return box.Put(msg)
}

// Receive blocks for the next message from the given worker.
func (n *Network) Receive(ctx context.Context, from farm.WorkerID) (farm.Message, error) {
	return n.inbound.Take(ctx, from)
}

// ReceiveAny blocks for the next message from any worker.
func (n *Network) ReceiveAny(ctx context.Context) (farm.WorkerID, farm.Message, error) {
	return n.inbound.TakeAny(ctx)
}

// Probe reports whether a message from the worker is waiting.
func (n *Network) Probe(from farm.WorkerID) bool { return n.inbound.Probe(from) }

// WaitReady blocks until any worker channel has something to receive.
func (n *Network) WaitReady(ctx context.Context) error { return n.inbound.WaitReady(ctx) }

// Endpoint returns the worker's side of its channel pair.
func (n *Network) Endpoint(id farm.WorkerID) (*Endpoint, error) {
	out, ok := n.outbound[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown worker %d", farm.ErrTransport, id)
	}
	in, _ := n.inbound.Box(id)
	return &Endpoint{id: id, recv: out, send: in}, nil
}

// Break severs both directions of a worker's channel pair with err, as a
// crashed link would.
func (n *Network) Break(id farm.WorkerID, err error) {
	if box, ok := n.outbound[id]; ok {
		box.Close(err)
	}
	if box, ok := n.inbound.Box(id); ok {
		box.Close(err)
	}
}

// Close shuts every channel down in an orderly way.
func (n *Network) Close() {
	for _, id := range n.ids {
		n.outbound[id].Close(nil)
	}
	n.inbound.CloseAll(nil)
}

// Endpoint is one worker's view of the network.
type Endpoint struct {
	id   farm.WorkerID
	recv *inbox.Mailbox
	send *inbox.Mailbox
}

// ID returns the worker identity.
func (e *Endpoint) ID() farm.WorkerID { return e.id }

// Receive blocks for the next message from the dispatcher.
func (e *Endpoint) Receive(ctx context.Context) (farm.Message, error) { return e.recv.Take(ctx) }

// Send enqueues msg on the channel back to the dispatcher.
func (e *Endpoint) Send(ctx context.Context, msg farm.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.send.Put(msg)
}
