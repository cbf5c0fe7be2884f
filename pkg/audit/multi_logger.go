package audit

import (
	"context"
	"fmt"
)

// MultiLogger records to multiple sinks
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a new multi-logger that writes to multiple destinations
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Record writes event to every sink and returns the first error.
// A failing sink does not stop the others.
func (m *MultiLogger) Record(ctx context.Context, event *SecurityEvent) error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Record(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes all loggers
func (m *MultiLogger) Close() error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close logger: %w", err)
		}
	}
	return firstErr
}
