package farm

import (
	"fmt"
	"strings"
)

// QueueOrder selects which end of the generated sequence a WorkQueue hands out
// first.
type QueueOrder string

const (
	// QueueOrderLIFO consumes from the tail, so items go out in descending
	// generation order.
	QueueOrderLIFO QueueOrder = "lifo"
	// QueueOrderFIFO consumes from the head, in generation order.
	QueueOrderFIFO QueueOrder = "fifo"
)

// ParseQueueOrder converts a config string to a QueueOrder. Empty means LIFO.
func ParseQueueOrder(s string) (QueueOrder, error) {
	switch QueueOrder(strings.ToLower(s)) {
	case "", QueueOrderLIFO:
		return QueueOrderLIFO, nil
	case QueueOrderFIFO:
		return QueueOrderFIFO, nil
	default:
		return "", fmt.Errorf("unknown queue order %q", s)
	}
}

// WorkQueue is the ordered pool of pending work items. It is owned by exactly
// one dispatcher control loop and is not safe for concurrent use.
type WorkQueue struct {
	items []float64
	head  int
	order QueueOrder
}

// NewWorkQueue copies items into a queue consumed in the given order.
func NewWorkQueue(items []float64, order QueueOrder) *WorkQueue {
	if order == "" {
		order = QueueOrderLIFO
	}
	cp := make([]float64, len(items))
	copy(cp, items)
	return &WorkQueue{items: cp, order: order}
}

// Len returns the number of items not yet handed out.
func (q *WorkQueue) Len() int { return len(q.items) - q.head }

// Empty reports whether every item has been handed out.
func (q *WorkQueue) Empty() bool { return q.Len() == 0 }

// Order returns the consumption order of the queue.
func (q *WorkQueue) Order() QueueOrder { return q.order }

// Pop removes and returns the next item. Popping an empty queue is a protocol
// violation: callers must check Empty first.
func (q *WorkQueue) Pop() (float64, error) {
	if q.Empty() {
		return 0, fmt.Errorf("%w: pop from empty work queue", ErrProtocolViolation)
	}

	if q.order == QueueOrderFIFO {
		v := q.items[q.head]
		q.head++
		return v, nil
	}

	last := len(q.items) - 1
	v := q.items[last]
	q.items = q.items[:last]
	return v, nil
}
