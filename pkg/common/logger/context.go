package logger

// LoggerContext accumulates attributes over the course of a single operation
// so later log lines carry everything learned so far.
type LoggerContext struct {
	*Logger
}

// NewLoggerContext wraps l so attributes can be added incrementally.
func NewLoggerContext(l *Logger) *LoggerContext {
	return &LoggerContext{Logger: l}
}

// Add appends attributes to every subsequent record written through lc.
func (lc *LoggerContext) Add(args ...any) {
	lc.Logger = lc.Logger.With(args...)
}
