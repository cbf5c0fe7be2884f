package audit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogrusLogger writes events as structured log lines
type LogrusLogger struct {
	logger logrus.FieldLogger
}

// NewLogrusLogger creates a log-backed event sink
func NewLogrusLogger(logger logrus.FieldLogger) *LogrusLogger {
	return &LogrusLogger{logger: logger}
}

// Record logs the event at a level derived from its audit level
func (l *LogrusLogger) Record(ctx context.Context, event *SecurityEvent) error {
	entry := l.logger.WithFields(logrus.Fields{
		"audit":      true,
		"event_id":   event.ID,
		"event_type": event.EventType,
		"identity":   event.Identifier,
		"level":      event.Level,
		"request_id": event.RequestID,
	})
	for k, v := range event.Details {
		entry = entry.WithField("detail."+k, v)
	}

	switch event.Level {
	case LevelCritical:
		entry.Error("security event")
	case LevelHigh:
		entry.Warn("security event")
	case LevelMedium:
		entry.Info("security event")
	default:
		entry.Debug("security event")
	}
	return nil
}

// Close is a no-op
func (l *LogrusLogger) Close() error {
	return nil
}
