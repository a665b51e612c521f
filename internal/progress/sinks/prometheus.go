package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/classic-hero/classichero/internal/progress"
)

// PrometheusSink counts stage transitions and records how long books spend in
// each stage.
type PrometheusSink struct {
	transitions *prometheus.CounterVec
	stageTime   *prometheus.HistogramVec
	runs        *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil. Collectors already registered by an earlier
// sink are reused.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	transitions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "classichero_stage_transitions_total",
		Help: "Total per-book stage transitions, labeled by the stage entered.",
	}, []string{"stage"}))
	if err != nil {
		return nil, err
	}
	stageTime, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "classichero_stage_duration_seconds",
		Help:    "Time a book spent in a stage before leaving it, labeled by that stage.",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"stage"}))
	if err != nil {
		return nil, err
	}
	runs, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "classichero_runs_total",
		Help: "Collection runs, labeled by run event.",
	}, []string{"event"}))
	if err != nil {
		return nil, err
	}
	return &PrometheusSink{transitions: transitions, stageTime: stageTime, runs: runs}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register progress collector: %w", err)
	}
	return c, nil
}

// Consume updates the collectors.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if evt.RunLevel() {
			s.runs.WithLabelValues(evt.Stage).Inc()
			continue
		}
		s.transitions.WithLabelValues(evt.Stage).Inc()
		if evt.Prev != "" && evt.Dur > 0 {
			s.stageTime.WithLabelValues(evt.Prev).Observe(evt.Dur.Seconds())
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
