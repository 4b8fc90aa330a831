package inbox

import (
	"context"
	"fmt"
	"slices"

	"github.com/ahrav/taskfarm/internal/domain/farm"
)

// Group is the fixed set of inbound mailboxes a dispatcher reads from, one per
// worker, with a shared wake-up signal so it can wait on all of them at once.
type Group struct {
	ids   []farm.WorkerID
	boxes map[farm.WorkerID]*Mailbox
	ready chan struct{}
}

// NewGroup creates one mailbox per id. ids are kept in ascending order.
func NewGroup(ids []farm.WorkerID) *Group {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)

	g := &Group{
		ids:   sorted,
		boxes: make(map[farm.WorkerID]*Mailbox, len(sorted)),
		ready: make(chan struct{}, 1),
	}
	for _, id := range sorted {
		g.boxes[id] = NewMailbox(g.wake)
	}
	return g
}

// IDs returns the member ids in ascending order.
func (g *Group) IDs() []farm.WorkerID { return slices.Clone(g.ids) }

// Box returns the mailbox for id.
func (g *Group) Box(id farm.WorkerID) (*Mailbox, bool) {
	b, ok := g.boxes[id]
	return b, ok
}

// Probe reports whether a Take on id's mailbox would not block.
func (g *Group) Probe(id farm.WorkerID) bool {
	b, ok := g.boxes[id]
	return ok && b.Ready()
}

// Take blocks on a single member's mailbox.
func (g *Group) Take(ctx context.Context, id farm.WorkerID) (farm.Message, error) {
	b, ok := g.boxes[id]
	if !ok {
		return farm.Message{}, fmt.Errorf("%w: unknown worker %d", farm.ErrTransport, id)
	}
	return b.Take(ctx)
}

// TakeAny returns the next message from any member, scanning in ascending id
// order. A broken member fails the call; it only fails for orderly closes once
// every member is closed and drained.
func (g *Group) TakeAny(ctx context.Context) (farm.WorkerID, farm.Message, error) {
	for {
		allClosed := true
		for _, id := range g.ids {
			msg, ok, closed, err := g.boxes[id].poll()
			if ok {
				return id, msg, nil
			}
			if closed && err != nil {
				return id, farm.Message{}, closedError(err)
			}
			if !closed {
				allClosed = false
			}
		}
		if allClosed {
			return farm.DispatcherID, farm.Message{}, fmt.Errorf("%w: all channels closed", farm.ErrTransport)
		}

		select {
		case <-g.ready:
		case <-ctx.Done():
			return farm.DispatcherID, farm.Message{}, ctx.Err()
		}
	}
}

// WaitReady blocks until at least one member would not block on Take.
func (g *Group) WaitReady(ctx context.Context) error {
	for {
		for _, id := range g.ids {
			if g.boxes[id].Ready() {
				return nil
			}
		}

		select {
		case <-g.ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CloseAll closes every member mailbox with err.
func (g *Group) CloseAll(err error) {
	for _, id := range g.ids {
		g.boxes[id].Close(err)
	}
}

func (g *Group) wake() {
	select {
	case g.ready <- struct{}{}:
	default:
	}
}
