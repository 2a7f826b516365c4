package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ringer_docs"

// Metrics contains all Prometheus metrics for ringer-docs. A nil *Metrics
// records nothing.
type Metrics struct {
	// Specs.
	SpecLoadsTotal *prometheus.CounterVec
	SpecsTotal     prometheus.Gauge

	// Sync.
	SyncRunsTotal        *prometheus.CounterVec
	SyncFilesTotal       *prometheus.CounterVec
	SyncDuration         prometheus.Histogram
	SyncLastSuccessTime  prometheus.Gauge
	SyncValidationIssues prometheus.Counter

	// HTTP.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// WebSocket.
	WebSocketClients prometheus.Gauge

	// GitHub API.
	GitHubAPIRequestsTotal   *prometheus.CounterVec
	GitHubAPIErrorsTotal     *prometheus.CounterVec
	GitHubRateLimitRemaining prometheus.Gauge

	// Build info.
	BuildInfo *prometheus.GaugeVec
}

// New creates a new Metrics instance and registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		// Specs.
		SpecLoadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spec_loads_total",
				Help:      "Total number of spec loads by result",
			},
			[]string{"result"},
		),
		SpecsTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "specs_total",
				Help:      "Number of specs found by the last listing",
			},
		),

		// Sync.
		SyncRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Total number of sync runs by trigger and status",
			},
			[]string{"trigger", "status"},
		),
		SyncFilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_files_total",
				Help:      "Total number of spec files written by sync",
			},
			[]string{"category"},
		),
		SyncDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Sync run duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
			},
		),
		SyncLastSuccessTime: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sync_last_success_timestamp",
				Help:      "Timestamp of the last successful sync run",
			},
		),
		SyncValidationIssues: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_validation_warnings_total",
				Help:      "Total number of synced files that failed OpenAPI validation",
			},
		),

		// HTTP.
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// WebSocket.
		WebSocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_clients",
				Help:      "Number of connected websocket clients",
			},
		),

		// GitHub API.
		GitHubAPIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "github_api_requests_total",
				Help:      "Total number of GitHub API requests",
			},
			[]string{"endpoint"},
		),
		GitHubAPIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "github_api_errors_total",
				Help:      "Total number of GitHub API errors",
			},
			[]string{"endpoint"},
		),
		GitHubRateLimitRemaining: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "github_rate_limit_remaining",
				Help:      "Remaining GitHub API rate limit",
			},
		),

		// Build info.
		BuildInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Build information",
			},
			[]string{"version", "commit", "date"},
		),
	}

	return m
}

// SetBuildInfo sets the build info metric.
func (m *Metrics) SetBuildInfo(version, commit, date string) {
	if m == nil {
		return
	}

	m.BuildInfo.WithLabelValues(version, commit, date).Set(1)
}

// RecordSpecLoad records a spec load; found is false for nil loads.
func (m *Metrics) RecordSpecLoad(found bool) {
	if m == nil {
		return
	}

	result := "found"
	if !found {
		result = "not_found"
	}

	m.SpecLoadsTotal.WithLabelValues(result).Inc()
}

// SetSpecCount sets the number of listed specs.
func (m *Metrics) SetSpecCount(n int) {
	if m == nil {
		return
	}

	m.SpecsTotal.Set(float64(n))
}

// RecordSyncRun records a finished sync run.
func (m *Metrics) RecordSyncRun(trigger, status string, seconds float64) {
	if m == nil {
		return
	}

	m.SyncRunsTotal.WithLabelValues(trigger, status).Inc()
	m.SyncDuration.Observe(seconds)

	if status == "succeeded" {
		m.SyncLastSuccessTime.SetToCurrentTime()
	}
}

// RecordSyncedFile records one file written by sync.
func (m *Metrics) RecordSyncedFile(category string) {
	if m == nil {
		return
	}

	m.SyncFilesTotal.WithLabelValues(category).Inc()
}

// RecordValidationWarning records a synced file that failed validation.
func (m *Metrics) RecordValidationWarning() {
	if m == nil {
		return
	}

	m.SyncValidationIssues.Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}

	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// SetWebSocketClients sets the connected websocket client gauge.
func (m *Metrics) SetWebSocketClients(n int) {
	if m == nil {
		return
	}

	m.WebSocketClients.Set(float64(n))
}

// RecordGitHubAPIRequest records a GitHub API request.
func (m *Metrics) RecordGitHubAPIRequest(endpoint string) {
	if m == nil {
		return
	}

	m.GitHubAPIRequestsTotal.WithLabelValues(endpoint).Inc()
}

// RecordGitHubAPIError records a GitHub API error.
func (m *Metrics) RecordGitHubAPIError(endpoint string) {
	if m == nil {
		return
	}

	m.GitHubAPIErrorsTotal.WithLabelValues(endpoint).Inc()
}

// SetGitHubRateLimit sets the GitHub rate limit remaining gauge.
func (m *Metrics) SetGitHubRateLimit(remaining int) {
	if m == nil {
		return
	}

	m.GitHubRateLimitRemaining.Set(float64(remaining))
}
