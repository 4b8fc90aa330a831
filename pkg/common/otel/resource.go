package otel

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// NewResource creates an OpenTelemetry resource with the service name and any
// extra attributes.
func NewResource(serviceName string, extra ...attribute.KeyValue) *resource.Resource {
	attrs := append([]attribute.KeyValue{semconv.ServiceNameKey.String(serviceName)}, extra...)
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}
