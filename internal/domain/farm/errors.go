package farm

import "errors"

var (
	// ErrPrecondition is returned when a run cannot start, e.g. there are no
	// worker processes besides the dispatcher.
	ErrPrecondition = errors.New("precondition violation")

	// ErrProtocolViolation is returned when a participant observes a message the
	// protocol does not allow at that point, or when the queue underflows.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrTransport is returned when a channel is broken or closed.
	ErrTransport = errors.New("transport failure")

	// ErrInvalidSequence is returned when sequence bounds cannot produce points.
	ErrInvalidSequence = errors.New("invalid sequence bounds")

	// ErrUnknownPolicy is returned when a policy name is not recognized.
	ErrUnknownPolicy = errors.New("unknown scheduling policy")

	// ErrRunNotFound is returned by a RunRepository for an unknown run id.
	ErrRunNotFound = errors.New("run not found")
)
