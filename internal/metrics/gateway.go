// Package metrics emits gateway telemetry counters and histograms through the
// global telemetry system. All emitters are nil-safe so CLI commands that never
// initialize telemetry can share code paths with the daemon.
package metrics

import (
	"strconv"
	"time"

	"github.com/keygate/keygate/internal/observability"
)

// Metric names following Prometheus conventions.
const (
	RequestsTotalName       = "gateway_requests_total"
	RequestDurationName     = "gateway_request_duration_ms"
	RateLimitHitsName       = "gateway_rate_limit_hits_total"
	UpstreamErrorsName      = "gateway_upstream_errors_total"
	HealthProbesTotalName   = "gateway_health_probes_total"
	HealthProbeDurationName = "gateway_health_probe_duration_ms"
	AuditFailuresName       = "gateway_audit_failures_total"
)

// RecordRequest records one proxied request outcome.
func RecordRequest(service, method string, statusCode int, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	labels := map[string]string{
		"service": service,
		"method":  method,
		"status":  strconv.Itoa(statusCode),
	}
	_ = observability.TelemetrySystem.Counter(RequestsTotalName, 1, labels)
	_ = observability.TelemetrySystem.Histogram(RequestDurationName, duration, map[string]string{
		"service": service,
	})
}

// RecordRateLimitHit records a request rejected by the rate limiter.
func RecordRateLimitHit(window string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(RateLimitHitsName, 1, map[string]string{
		"window": window,
	})
}

// RecordUpstreamError records a transport-level failure talking to a
// downstream service.
func RecordUpstreamError(service, kind string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(UpstreamErrorsName, 1, map[string]string{
		"service": service,
		"kind":    kind,
	})
}

// RecordHealthProbe records a health probe execution.
func RecordHealthProbe(service string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = observability.TelemetrySystem.Counter(HealthProbesTotalName, 1, map[string]string{
		"service": service,
		"status":  status,
	})
	_ = observability.TelemetrySystem.Histogram(HealthProbeDurationName, duration, map[string]string{
		"service": service,
	})
}

// RecordAuditFailure records an audit entry that could not be persisted.
func RecordAuditFailure() {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(AuditFailuresName, 1, nil)
}
