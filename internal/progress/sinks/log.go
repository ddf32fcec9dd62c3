// Package sinks implements concrete progress consumers: structured
// logging, Prometheus collectors, and repository-backed storage. Each
// sink satisfies the progress.Sink interface and is safe for repeated
// Consume/Close cycles.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/careermap/jobradar/internal/progress"
)

// LogSink emits structured logs for debugging progress streams. It is
// useful during development where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Info("progress event",
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("site", evt.Site),
			zap.String("url", evt.URL),
			zap.Int64("bytes", evt.Bytes),
			zap.Int64("pages", evt.Pages),
			zap.Int64("records", evt.Records),
			zap.String("status_class", string(evt.StatusClass)),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
