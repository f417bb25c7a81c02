package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/mkirchner/evstore/outbox"
)

// LogSink is an outbox.Sink that logs every delivery instead of calling out
// to a real broker. A production sink would publish to whatever transport
// the caller chooses; the engine deliberately has no opinion on that.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a LogSink. log may be nil.
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Publish(_ context.Context, entry outbox.Entry) error {
	s.log.Info("delivered event",
		zap.String("outbox_id", entry.OutboxID), zap.String("aggregate_id", entry.AggregateID), zap.String("event_type", entry.EventType))
	return nil
}

var _ outbox.Sink = (*LogSink)(nil)
