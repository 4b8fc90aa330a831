// Package farmrpc carries farm messages over a gRPC bidirectional stream. The
// dispatcher serves a Hub; each worker dials in once with its identity and
// keeps the stream for the whole run, so every worker has its own ordered
// channel pair with the dispatcher.
package farmrpc

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ahrav/taskfarm/internal/domain/farm"
)

const (
	serviceName   = "taskfarm.v1.Farm"
	connectMethod = "/" + serviceName + "/Connect"

	fieldKind   = "kind"
	fieldValue  = "value"
	fieldWorker = "worker"

	// kindHello opens a stream (worker to hub) and acknowledges it (hub to worker).
	kindHello = "hello"
)

// farmServer is the handler type registered for the Farm service.
type farmServer interface {
	Connect(stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*farmServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName: "Connect",
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(farmServer).Connect(stream)
			},
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "taskfarm/v1/farm.proto",
}

func encode(msg farm.Message) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldKind:  structpb.NewStringValue(msg.Kind.String()),
		fieldValue: structpb.NewNumberValue(msg.Value),
	}}
}

func decode(s *structpb.Struct) (farm.Message, error) {
	kind := farm.ParseMessageKind(s.GetFields()[fieldKind].GetStringValue())
	if kind == farm.KindUnspecified {
		return farm.Message{}, fmt.Errorf("%w: unknown message kind %q",
			farm.ErrProtocolViolation, s.GetFields()[fieldKind].GetStringValue())
	}
	return farm.Message{Kind: kind, Value: s.GetFields()[fieldValue].GetNumberValue()}, nil
}

func encodeHello(id farm.WorkerID) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldKind:   structpb.NewStringValue(kindHello),
		fieldWorker: structpb.NewNumberValue(float64(id)),
	}}
}

func decodeHello(s *structpb.Struct) (farm.WorkerID, error) {
	f := s.GetFields()
	if f[fieldKind].GetStringValue() != kindHello {
		return farm.DispatcherID, fmt.Errorf("%w: expected hello, got %q",
			farm.ErrProtocolViolation, f[fieldKind].GetStringValue())
	}
	if _, ok := f[fieldWorker].GetKind().(*structpb.Value_NumberValue); !ok {
		return farm.DispatcherID, fmt.Errorf("%w: hello without worker id", farm.ErrProtocolViolation)
	}
	return farm.WorkerID(f[fieldWorker].GetNumberValue()), nil
}
