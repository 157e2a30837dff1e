// Package metrics provides Prometheus-based metrics collection for portsweep.
// All collectors live on a private registry so tests and embedded servers can
// create independent instances.
package metrics

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "portsweep"

	subsystemProbe  = "probe"
	subsystemScan   = "scan"
	subsystemJobs   = "jobs"
	subsystemAPI    = "api"
	subsystemSystem = "system"
)

// PrometheusMetrics holds all Prometheus metric collectors.
type PrometheusMetrics struct {
	probesTotal  *prometheus.CounterVec
	probePanics  prometheus.Counter
	scansTotal   *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
	activeScans  prometheus.Gauge

	jobsTotal   *prometheus.CounterVec
	runningJobs prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	goroutines prometheus.Gauge
	uptime     prometheus.Gauge

	startTime  time.Time
	lastUpdate time.Time
	mu         sync.RWMutex
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new metrics instance with all collectors registered.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initScanMetrics()
	pm.initJobMetrics()
	pm.initAPIMetrics()
	pm.initSystemMetrics()
	pm.registerMetrics()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

func (pm *PrometheusMetrics) initScanMetrics() {
	pm.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "total",
			Help:      "Total number of completed probes by protocol and classified status",
		},
		[]string{"protocol", "status"},
	)

	pm.probePanics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "panics_total",
			Help:      "Probes that panicked and were recorded as filtered",
		},
	)

	pm.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "total",
			Help:      "Total number of scans by outcome",
		},
		[]string{"outcome"},
	)

	pm.scanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "duration_seconds",
			Help:      "Duration of scans in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0},
		},
		[]string{"protocols"},
	)

	pm.activeScans = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "active",
			Help:      "Number of scans currently running",
		},
	)
}

func (pm *PrometheusMetrics) initJobMetrics() {
	pm.jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemJobs,
			Name:      "total",
			Help:      "Background scan jobs by terminal status",
		},
		[]string{"status"},
	)

	pm.runningJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemJobs,
			Name:      "running",
			Help:      "Background scan jobs currently holding a slot",
		},
	)
}

func (pm *PrometheusMetrics) initAPIMetrics() {
	pm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	pm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
}

func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Number of goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
	)
}

func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(
		pm.probesTotal,
		pm.probePanics,
		pm.scansTotal,
		pm.scanDuration,
		pm.activeScans,
		pm.jobsTotal,
		pm.runningJobs,
		pm.httpRequests,
		pm.httpDuration,
		pm.goroutines,
		pm.uptime,
	)
}

// GetRegistry returns the Prometheus registry.
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// Handler returns an HTTP handler exposing the registry.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// IncrementProbes counts one completed probe.
func (pm *PrometheusMetrics) IncrementProbes(protocol, status string) {
	pm.probesTotal.WithLabelValues(protocol, status).Inc()
}

// IncrementProbePanics counts one recovered probe panic.
func (pm *PrometheusMetrics) IncrementProbePanics() {
	pm.probePanics.Inc()
}

// IncrementScansTotal counts a finished scan by outcome (completed, canceled, invalid).
func (pm *PrometheusMetrics) IncrementScansTotal(outcome string) {
	pm.scansTotal.WithLabelValues(outcome).Inc()
}

// RecordScanDuration records a scan duration.
func (pm *PrometheusMetrics) RecordScanDuration(protocols string, duration time.Duration) {
	pm.scanDuration.WithLabelValues(protocols).Observe(duration.Seconds())
}

// AddActiveScans adjusts the active scan gauge by delta.
func (pm *PrometheusMetrics) AddActiveScans(delta int) {
	pm.activeScans.Add(float64(delta))
}

// IncrementJobs counts a job reaching the given status.
func (pm *PrometheusMetrics) IncrementJobs(status string) {
	pm.jobsTotal.WithLabelValues(status).Inc()
}

// SetRunningJobs sets the number of running background jobs.
func (pm *PrometheusMetrics) SetRunningJobs(count int) {
	pm.runningJobs.Set(float64(count))
}

// IncrementHTTPRequests increments the HTTP request counter.
func (pm *PrometheusMetrics) IncrementHTTPRequests(method, path, status string) {
	pm.httpRequests.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPDuration records HTTP request duration.
func (pm *PrometheusMetrics) RecordHTTPDuration(method, path string, duration time.Duration) {
	pm.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateSystemMetrics refreshes the system gauges.
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.goroutines.Set(float64(runtime.NumGoroutine()))
	pm.uptime.Set(time.Since(pm.startTime).Seconds())
	pm.lastUpdate = time.Now()
}

// GetUptime returns the time since the metrics instance was created.
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// GetLastUpdate returns the last system metrics update time.
func (pm *PrometheusMetrics) GetLastUpdate() time.Time {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.lastUpdate
}

// StartPeriodicUpdates refreshes system metrics every interval until ctx is done.
func (pm *PrometheusMetrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.UpdateSystemMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.UpdateSystemMetrics()
		}
	}
}

var (
	globalMetrics *PrometheusMetrics
	metricsOnce   sync.Once
)

// GetGlobalMetrics returns the process-wide metrics instance.
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}
