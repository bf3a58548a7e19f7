// Package metrics is the metrics sink of the sync engine. Finalized sessions,
// mutation outcomes and conflict decisions are recorded as Prometheus
// collectors and exposed on GET /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MKhiriev/go-pos-sync/models"
)

const namespace = "pos_sync"

// Sink receives engine events.
type Sink interface {
	// RecordSession is called once per finalized session.
	RecordSession(session models.SyncSession)
	// RecordOutcome is called once per evaluated mutation.
	RecordOutcome(entity models.EntityName, outcome models.Outcome)
	// RecordConflict is called when a conflict is detected or resolved.
	RecordConflict(conflictType models.ConflictType, resolution models.Resolution)
	// SetStoreHealthy reports the last store probe.
	SetStoreHealthy(healthy bool)
}

// PrometheusSink implements [Sink] with collectors registered on its own
// registry.
type PrometheusSink struct {
	registry *prometheus.Registry

	sessions        *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	successRatio    prometheus.Histogram
	throughput      prometheus.Histogram
	records         *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	conflicts       *prometheus.CounterVec
	storeUp         prometheus.Gauge
}

// NewPrometheusSink creates the collectors and registers them, together with
// the Go runtime and process collectors, on a fresh registry.
func NewPrometheusSink() *PrometheusSink {
	s := &PrometheusSink{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "total",
			Help:      "Number of finalized sync sessions",
		}, []string{"type", "status"}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "duration_seconds",
			Help:      "Wall time from session open to close",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"type"}),
		successRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "success_ratio",
			Help:      "Share of received mutations that applied or were duplicates",
			Buckets:   []float64{0.5, 0.75, 0.9, 0.95, 0.99, 1},
		}),
		throughput: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "throughput_records_per_second",
			Help:      "Records exchanged per second of session time",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "records_total",
			Help:      "Records exchanged with devices",
		}, []string{"direction"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "outcomes_total",
			Help:      "Evaluated mutations by outcome",
		}, []string{"entity", "outcome"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conflict",
			Name:      "total",
			Help:      "Conflicts by type and resolution",
		}, []string{"type", "resolution"}),
		storeUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "up",
			Help:      "1 when the last store probe succeeded",
		}),
	}

	s.registry.MustRegister(
		s.sessions,
		s.sessionDuration,
		s.successRatio,
		s.throughput,
		s.records,
		s.outcomes,
		s.conflicts,
		s.storeUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return s
}

// RecordSession implements [Sink].
func (s *PrometheusSink) RecordSession(session models.SyncSession) {
	s.sessions.WithLabelValues(string(session.Type), string(session.Status)).Inc()
	s.sessionDuration.WithLabelValues(string(session.Type)).Observe(float64(session.DurationMillis) / 1000)
	s.successRatio.Observe(session.SuccessRatio)
	s.throughput.Observe(session.Throughput)
	s.records.WithLabelValues("received").Add(float64(session.RecordsReceived))
	s.records.WithLabelValues("sent").Add(float64(session.RecordsSent))
}

// RecordOutcome implements [Sink].
func (s *PrometheusSink) RecordOutcome(entity models.EntityName, outcome models.Outcome) {
	s.outcomes.WithLabelValues(string(entity), string(outcome)).Inc()
}

// RecordConflict implements [Sink].
func (s *PrometheusSink) RecordConflict(conflictType models.ConflictType, resolution models.Resolution) {
	s.conflicts.WithLabelValues(string(conflictType), string(resolution)).Inc()
}

// SetStoreHealthy implements [Sink].
func (s *PrometheusSink) SetStoreHealthy(healthy bool) {
	if healthy {
		s.storeUp.Set(1)
		return
	}
	s.storeUp.Set(0)
}

// Handler serves the registry in the Prometheus exposition format.
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Registry returns the registry the collectors are registered on.
func (s *PrometheusSink) Registry() *prometheus.Registry {
	return s.registry
}

// Nop is a [Sink] that drops every event.
type Nop struct{}

func (Nop) RecordSession(models.SyncSession) {}
func (Nop) RecordOutcome(models.EntityName, models.Outcome) {}
func (Nop) RecordConflict(models.ConflictType, models.Resolution) {}
func (Nop) SetStoreHealthy(bool) {}
