// Package metrics exposes Prometheus instrumentation for acquisition,
// recovery, and backup activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles all collectors behind one registry so embedding
// applications can expose them alongside their own.
type Metrics struct {
	registry *prometheus.Registry

	acquisitionsTotal   *prometheus.CounterVec
	acquisitionDuration *prometheus.HistogramVec
	recoveryAttempts    *prometheus.CounterVec
	retryAttempts       prometheus.Counter
	backupOperations    *prometheus.CounterVec
	backupBytes         prometheus.Gauge
	degradedResources   prometheus.Gauge
	healthChecksTotal   *prometheus.CounterVec
}

// New creates a metrics set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		acquisitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "haven",
			Name:      "acquisitions_total",
			Help:      "Resource acquisitions by resulting operating mode.",
		}, []string{"resource", "mode"}),
		acquisitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "haven",
			Name:      "acquisition_duration_seconds",
			Help:      "Wall time spent acquiring a resource, recovery included.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 3, 10),
		}, []string{"resource"}),
		recoveryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "haven",
			Name:      "recovery_attempts_total",
			Help:      "Fallback cascade attempts by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		retryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "haven",
			Name:      "retry_attempts_total",
			Help:      "Individual retry-executor attempts across all operations.",
		}),
		backupOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "haven",
			Name:      "backup_operations_total",
			Help:      "Backup store operations by type and result.",
		}, []string{"operation", "result"}),
		backupBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "haven",
			Name:      "backup_bytes",
			Help:      "Total bytes held by the backup store.",
		}),
		degradedResources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "haven",
			Name:      "degraded_resources",
			Help:      "Open resources currently flagged degraded by health checks.",
		}),
		healthChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "haven",
			Name:      "health_checks_total",
			Help:      "Health check passes by result.",
		}, []string{"result"}),
	}

	registry.MustRegister(
		m.acquisitionsTotal,
		m.acquisitionDuration,
		m.recoveryAttempts,
		m.retryAttempts,
		m.backupOperations,
		m.backupBytes,
		m.degradedResources,
		m.healthChecksTotal,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for embedding applications.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAcquisition records one completed acquisition.
func (m *Metrics) ObserveAcquisition(resource, mode string, duration time.Duration) {
	m.acquisitionsTotal.WithLabelValues(resource, mode).Inc()
	m.acquisitionDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// ObserveRecoveryAttempt records one cascade strategy attempt.
func (m *Metrics) ObserveRecoveryAttempt(strategy, outcome string) {
	m.recoveryAttempts.WithLabelValues(strategy, outcome).Inc()
}

// ObserveRetries adds n retry-executor attempts.
func (m *Metrics) ObserveRetries(n int) {
	m.retryAttempts.Add(float64(n))
}

// ObserveBackupOperation records one backup store operation.
func (m *Metrics) ObserveBackupOperation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.backupOperations.WithLabelValues(operation, result).Inc()
}

// SetBackupBytes updates the stored-bytes gauge.
func (m *Metrics) SetBackupBytes(bytes int64) {
	m.backupBytes.Set(float64(bytes))
}

// SetDegradedResources updates the degraded-resource gauge.
func (m *Metrics) SetDegradedResources(n int) {
	m.degradedResources.Set(float64(n))
}

// ObserveHealthCheck records one health check pass.
func (m *Metrics) ObserveHealthCheck(healthy bool) {
	result := "healthy"
	if !healthy {
		result = "degraded"
	}
	m.healthChecksTotal.WithLabelValues(result).Inc()
}
