// Package metrics holds the run counters pushed to a Prometheus Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName groups the pushed series on the gateway
const JobName = "cyber_digest"

// Metrics is one run's set of collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	FetchAttempts    *prometheus.CounterVec
	SourcesFailed    prometheus.Counter
	ArticlesAccepted *prometheus.CounterVec
	RunDuration      prometheus.Gauge
	LastSuccess      prometheus.Gauge
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FetchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digest_fetch_attempts_total",
				Help: "HTTP request attempts, retries included.",
			},
			[]string{"method"},
		),
		SourcesFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "digest_sources_failed_total",
				Help: "Sources skipped because probing or crawling failed.",
			},
		),
		ArticlesAccepted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digest_articles_accepted_total",
				Help: "Articles classified and recorded for the digest.",
			},
			[]string{"category"},
		),
		RunDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "digest_run_duration_seconds",
				Help: "Wall time of the last run.",
			},
		),
		LastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "digest_last_success_timestamp_seconds",
				Help: "Unix time of the last run that delivered a digest.",
			},
		),
	}
}

// ObserveAttempt matches httpclient.Options.OnAttempt
func (m *Metrics) ObserveAttempt(method string) {
	m.FetchAttempts.WithLabelValues(method).Inc()
}

// ObserveRun records the run's duration and, when delivered, its completion time
func (m *Metrics) ObserveRun(elapsed time.Duration, delivered bool, now time.Time) {
	m.RunDuration.Set(elapsed.Seconds())
	if delivered {
		m.LastSuccess.Set(float64(now.Unix()))
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Push sends every collector to the gateway at url, grouped by instance
func (m *Metrics) Push(ctx context.Context, url, instance string) error {
	pusher := push.New(url, JobName).Gatherer(m.registry)
	if instance != "" {
		pusher = pusher.Grouping("instance", instance)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
