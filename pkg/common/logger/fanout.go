package logger

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// fanoutHandler writes every record to each of its handlers.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, hh := range h.handlers {
		if !hh.Enabled(ctx, r.Level) {
			continue
		}
		if err := hh.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}

// Tee returns a logger that writes to both log's handler and extra.
func Tee(log *Logger, extra slog.Handler) *Logger {
	if log.discard {
		return log
	}
	return &Logger{
		handler:   &fanoutHandler{handlers: []slog.Handler{log.handler, extra}},
		traceIDFn: log.traceIDFn,
	}
}

// WithOTel mirrors every record into the OpenTelemetry logs pipeline through
// the global logger provider, scoped to serviceName.
func WithOTel(log *Logger, serviceName string, opts ...otelslog.Option) *Logger {
	return Tee(log, otelslog.NewHandler(serviceName, opts...))
}
