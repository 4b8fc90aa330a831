// Package inbox provides the unbounded, ordered mailboxes that back every
// transport channel. A mailbox has exactly one reader; writers never block.
package inbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/ahrav/taskfarm/internal/domain/farm"
)

// Mailbox is an unbounded FIFO of messages for a single channel.
type Mailbox struct {
	mu       sync.Mutex
	queue    []farm.Message
	closed   bool
	closeErr error

	// signal is poked after every Put or Close so a blocked reader re-checks.
	signal chan struct{}
	notify func()
}

// NewMailbox creates an empty mailbox. notify, if non-nil, is invoked after
// every state change so a group can wake a reader waiting on several boxes.
func NewMailbox(notify func()) *Mailbox {
	return &Mailbox{signal: make(chan struct{}, 1), notify: notify}
}

// Put appends msg. It fails once the mailbox is closed.
func (m *Mailbox) Put(msg farm.Message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("%w: channel closed", farm.ErrTransport)
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	m.wake()
	return nil
}

// Close marks the mailbox closed. A nil err is an orderly close; anything else
// is a broken channel. Messages already queued are still delivered.
func (m *Mailbox) Close(err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.closeErr = err
	m.mu.Unlock()

	m.wake()
}

// Ready reports whether Take would return without blocking, either because a
// message is queued or because the mailbox is closed.
func (m *Mailbox) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue) > 0 || m.closed
}

// Take blocks until a message is available, the mailbox is closed and drained,
// or ctx is done.
func (m *Mailbox) Take(ctx context.Context) (farm.Message, error) {
	for {
		msg, ok, closed, err := m.poll()
		if ok {
			return msg, nil
		}
		if closed {
			return farm.Message{}, closedError(err)
		}

		select {
		case <-m.signal:
		case <-ctx.Done():
			return farm.Message{}, ctx.Err()
		}
	}
}

// poll takes the head message if there is one. closed is reported only when
// the queue is empty.
func (m *Mailbox) poll() (msg farm.Message, ok, closed bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) > 0 {
		msg = m.queue[0]
		m.queue[0] = farm.Message{}
		m.queue = m.queue[1:]
		return msg, true, false, nil
	}
	return farm.Message{}, false, m.closed, m.closeErr
}

func (m *Mailbox) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
	if m.notify != nil {
		m.notify()
	}
}

func closedError(err error) error {
	if err == nil {
		return fmt.Errorf("%w: channel closed", farm.ErrTransport)
	}
	return fmt.Errorf("%w: %w", farm.ErrTransport, err)
}
