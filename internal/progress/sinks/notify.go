package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/classic-hero/classichero/internal/progress"
	"github.com/classic-hero/classichero/internal/publisher"
)

// NotifySink publishes the events whose stage is in a fixed set, typically
// the terminal book stages and the end of the run.
type NotifySink struct {
	pub    publisher.Publisher
	stages map[string]struct{}
	logger *zap.Logger
}

// NewNotifySink publishes events for the given stages through pub. Close
// closes pub.
func NewNotifySink(pub publisher.Publisher, stages []string, logger *zap.Logger) *NotifySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	set := make(map[string]struct{}, len(stages))
	for _, s := range stages {
		set[s] = struct{}{}
	}
	return &NotifySink{pub: pub, stages: set, logger: logger}
}

// Consume publishes matching events as JSON. Every matching event is
// attempted; the failures are joined.
func (s *NotifySink) Consume(ctx context.Context, batch []progress.Event) error {
	var errs []error
	for _, evt := range batch {
		if _, ok := s.stages[evt.Stage]; !ok {
			continue
		}
		data, err := json.Marshal(evt)
		if err != nil {
			errs = append(errs, fmt.Errorf("encode %s event: %w", evt.Stage, err))
			continue
		}
		attrs := map[string]string{"run_id": evt.RunID, "stage": evt.Stage}
		if !evt.RunLevel() {
			attrs["hero_id"] = evt.HeroID
		}
		id, err := s.pub.Publish(ctx, publisher.Message{Data: data, Attributes: attrs})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Debug("progress notification published", zap.String("message_id", id), zap.String("stage", evt.Stage))
	}
	return errors.Join(errs...)
}

// Close releases the publisher.
func (s *NotifySink) Close(context.Context) error {
	return s.pub.Close()
}
