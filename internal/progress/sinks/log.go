package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/classic-hero/classichero/internal/progress"
)

// LogSink writes every event as a debug log line.
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

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", evt.Stage),
			zap.Time("ts", evt.TS),
		}
		if evt.Prev != "" {
			fields = append(fields, zap.String("prev", evt.Prev), zap.Duration("prev_dur", evt.Dur))
		}
		if !evt.RunLevel() {
			fields = append(fields, zap.String("hero", evt.HeroID), zap.Int("book_id", evt.BookID))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Debug("progress event", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
