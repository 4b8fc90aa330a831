package farm

import "fmt"

// WorkerID identifies a participant in a run. The dispatcher always holds
// DispatcherID; workers are numbered 1..N.
type WorkerID int

// DispatcherID is the identity of the process owning the work queue.
const DispatcherID WorkerID = 0

// MessageKind tags what a Message carries on the wire.
type MessageKind int

const (
	// KindUnspecified is the zero value and is never valid on the wire.
	KindUnspecified MessageKind = iota
	// KindTask carries one work item from the dispatcher to a worker.
	KindTask
	// KindResult carries one evaluated value from a worker to the dispatcher.
	KindResult
	// KindTerminate tells a worker to leave its loop. Sent once per worker.
	KindTerminate
)

// String returns the wire name of the kind.
func (k MessageKind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindResult:
		return "result"
	case KindTerminate:
		return "terminate"
	default:
		return "unspecified"
	}
}

// ParseMessageKind converts a wire name back to a MessageKind.
func ParseMessageKind(s string) MessageKind {
	switch s {
	case "task":
		return KindTask
	case "result":
		return KindResult
	case "terminate":
		return KindTerminate
	default:
		return KindUnspecified
	}
}

// Message is the unit exchanged over a Transport channel.
type Message struct {
	Kind  MessageKind
	Value float64
}

// Task wraps a work item for delivery to a worker.
func Task(v float64) Message { return Message{Kind: KindTask, Value: v} }

// Result wraps an evaluated value for delivery to the dispatcher.
func Result(v float64) Message { return Message{Kind: KindResult, Value: v} }

// Terminate is the termination sentinel.
func Terminate() Message { return Message{Kind: KindTerminate} }

// IsTerminate reports whether m is the termination sentinel.
func (m Message) IsTerminate() bool { return m.Kind == KindTerminate }

func (m Message) String() string {
	if m.Kind == KindTerminate {
		return m.Kind.String()
	}
	return fmt.Sprintf("%s(%g)", m.Kind, m.Value)
}
