// Package observability provides Prometheus metrics for the monitor.
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultNamespace = "arbscope"

// Metrics holds the monitor's collectors. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	// Cycle metrics
	CyclesTotal    *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	PairsWatched   prometheus.Gauge
	PairsUnhealthy prometheus.Gauge
	PairOutcomes   *prometheus.CounterVec

	// Quote metrics
	QuoteFetches      *prometheus.CounterVec
	QuoteFetchLatency *prometheus.HistogramVec

	// Signal metrics
	SignalsEmitted *prometheus.CounterVec
	LastNetProfit  *prometheus.GaugeVec

	// Sink metrics
	SinkErrors *prometheus.CounterVec

	LastSuccessfulCycle prometheus.Gauge
}

// NewMetrics registers all collectors on a private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "cycles_total",
			Help:      "Total number of poll cycles by completion",
		}, []string{"completion"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "cycle_duration_seconds",
			Help:      "Poll cycle wall time in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		PairsWatched: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "pairs",
			Help:      "Number of pairs in the latest snapshot",
		}),
		PairsUnhealthy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "pairs_unhealthy",
			Help:      "Number of pairs currently marked unhealthy",
		}),
		PairOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "pair_outcomes_total",
			Help:      "Per-pair cycle outcomes by status",
		}, []string{"status"}),

		QuoteFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "fetches_total",
			Help:      "Quote fetches by leg and result",
		}, []string{"leg", "result"}),
		QuoteFetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "fetch_latency_seconds",
			Help:      "Quote fetch latency in seconds, retries included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"leg"}),

		SignalsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "signals_total",
			Help:      "Opportunity signals emitted by pair and kind",
		}, []string{"pair", "kind"}),
		LastNetProfit: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "last_net_profit_ratio",
			Help:      "Net relative profit of the latest signal per pair",
		}, []string{"pair"}),

		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "errors_total",
			Help:      "Reporting sink failures by sink",
		}, []string{"sink"}),

		LastSuccessfulCycle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of the last cycle that completed",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCycle records a finished cycle.
func (m *Metrics) RecordCycle(elapsed time.Duration, partial bool, pairs, unhealthy int) {
	if m == nil {
		return
	}
	completion := "complete"
	if partial {
		completion = "partial"
	} else {
		m.LastSuccessfulCycle.SetToCurrentTime()
	}
	m.CyclesTotal.WithLabelValues(completion).Inc()
	m.CycleDuration.Observe(elapsed.Seconds())
	m.PairsWatched.Set(float64(pairs))
	m.PairsUnhealthy.Set(float64(unhealthy))
}

// RecordPairOutcome counts a per-pair status.
func (m *Metrics) RecordPairOutcome(status string) {
	if m == nil {
		return
	}
	m.PairOutcomes.WithLabelValues(status).Inc()
}

// RecordFetch records one quote fetch.
func (m *Metrics) RecordFetch(leg, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.QuoteFetches.WithLabelValues(leg, result).Inc()
	m.QuoteFetchLatency.WithLabelValues(leg).Observe(elapsed.Seconds())
}

// RecordSignal records an emitted signal.
func (m *Metrics) RecordSignal(pair, kind string, netProfit float64) {
	if m == nil {
		return
	}
	m.SignalsEmitted.WithLabelValues(pair, kind).Inc()
	m.LastNetProfit.WithLabelValues(pair).Set(netProfit)
}

// RecordSinkError counts a failed sink write.
func (m *Metrics) RecordSinkError(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
