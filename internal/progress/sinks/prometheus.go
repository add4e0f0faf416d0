package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wavaa/thumbforge/internal/progress"
)

// PrometheusSink exports pipeline progress metrics. It owns the collectors for
// stage transitions and stage latencies.
type PrometheusSink struct {
	stagesTotal   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		stagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbforge_progress_stages_total",
			Help: "Total stage transitions observed, partitioned by stage.",
		}, []string{"stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "thumbforge_progress_stage_seconds",
			Help:    "Latency of completed pipeline stages.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"stage"}),
	}
	for _, c := range []prometheus.Collector{s.stagesTotal, s.stageDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume records each event against the collectors.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.stagesTotal.WithLabelValues(string(evt.Stage)).Inc()
		if evt.Dur > 0 {
			s.stageDuration.WithLabelValues(string(evt.Stage)).Observe(evt.Dur.Seconds())
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
