// Package obslog wraps a *zap.Logger with domain-flavored helper methods,
// so call sites read like the domain events they're logging rather than
// raw logger.Info(...) strings scattered across the engine.
package obslog

import (
	"time"

	"go.uber.org/zap"
)

// Logger is a thin, typed facade over *zap.Logger.
type Logger struct {
	z *zap.Logger
}

// New wraps z. A nil z is replaced with a no-op logger.
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// Raw returns the underlying *zap.Logger for call sites that need it
// directly (e.g. to pass into a library that takes a *zap.Logger).
func (l *Logger) Raw() *zap.Logger { return l.z }

// AppendFailed logs an Append failure for an aggregate.
func (l *Logger) AppendFailed(aggregateID, aggregateType string, err error) {
	l.z.Error("append failed",
		zap.String("aggregate_id", aggregateID), zap.String("aggregate_type", aggregateType), zap.Error(err))
}

// ConflictDetected logs an optimistic-concurrency conflict.
func (l *Logger) ConflictDetected(aggregateID string, expected, actual int64) {
	l.z.Warn("concurrency conflict",
		zap.String("aggregate_id", aggregateID), zap.Int64("expected_version", expected), zap.Int64("actual_version", actual))
}

// SnapshotSaved logs a successful snapshot write.
func (l *Logger) SnapshotSaved(aggregateID string, version int64) {
	l.z.Info("snapshot saved", zap.String("aggregate_id", aggregateID), zap.Int64("version", version))
}

// PublishAttempt logs an outbox delivery attempt outcome.
func (l *Logger) PublishAttempt(outboxID, eventType string, attempt int, err error) {
	if err != nil {
		l.z.Warn("publish attempt failed",
			zap.String("outbox_id", outboxID), zap.String("event_type", eventType), zap.Int("attempt", attempt), zap.Error(err))
		return
	}
	l.z.Info("publish attempt succeeded", zap.String("outbox_id", outboxID), zap.String("event_type", eventType))
}

// ProjectionLag logs a projection's current lag, for periodic health
// reporting rather than per-event noise.
func (l *Logger) ProjectionLag(name string, lag int64, asOf time.Time) {
	l.z.Info("projection lag", zap.String("projection", name), zap.Int64("lag", lag), zap.Time("as_of", asOf))
}
