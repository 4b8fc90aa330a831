package otel

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// endpointExcluder drops spans for noisy routes such as health checks and
// samples everything else by trace id ratio, respecting the parent decision.
type endpointExcluder struct {
	excluded map[string]struct{}
	next     sdktrace.Sampler
}

func newEndpointExcluder(excluded map[string]struct{}, probability float64) sdktrace.Sampler {
	return endpointExcluder{
		excluded: excluded,
		next:     sdktrace.ParentBased(sdktrace.TraceIDRatioBased(probability)),
	}
}

func (e endpointExcluder) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if _, skip := e.excluded[p.Name]; skip {
		return sdktrace.SamplingResult{
			Decision:   sdktrace.Drop,
			Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
		}
	}
	return e.next.ShouldSample(p)
}

func (e endpointExcluder) Description() string { return "EndpointExcluder" }
