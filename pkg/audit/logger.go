package audit

import "context"

// Logger is the interface for security event sinks
type Logger interface {
	// Record persists an event
	Record(ctx context.Context, event *SecurityEvent) error

	// Close flushes any buffered events
	Close() error
}

// NoOp returns a logger that discards every event
func NoOp() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Record(ctx context.Context, event *SecurityEvent) error {
	return nil
}

func (noOpLogger) Close() error {
	return nil
}
