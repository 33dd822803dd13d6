package xopt

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	submitted    prometheus.Counter
	merged       *prometheus.CounterVec
	inFlight     prometheus.Gauge
	stepDuration prometheus.Histogram
}

// newMetrics registers the run metrics with reg, labelled with runID so that
// several orchestrators can share one registry. Registering the same run
// twice reuses the collectors already in place.
func newMetrics(reg prometheus.Registerer, runID string) (*metrics, error) {
	reg = prometheus.WrapRegistererWith(prometheus.Labels{"run_id": runID}, reg)

	m := &metrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xopt_rows_submitted_total",
			Help: "Total number of candidate rows submitted for evaluation",
		}),
		merged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xopt_rows_merged_total",
			Help: "Total number of rows merged into the observation table",
		}, []string{"outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xopt_rows_in_flight",
			Help: "Rows submitted but not yet merged",
		}),
		stepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "xopt_step_duration_seconds",
			Help:    "Duration of optimization steps",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}

	var err error
	if m.submitted, err = register(reg, m.submitted); err != nil {
		return nil, err
	}
	if m.merged, err = register(reg, m.merged); err != nil {
		return nil, err
	}
	if m.inFlight, err = register(reg, m.inFlight); err != nil {
		return nil, err
	}
	if m.stepDuration, err = register(reg, m.stepDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, fmt.Errorf("register metrics: %w", err)
}
