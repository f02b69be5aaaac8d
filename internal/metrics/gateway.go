package metrics

import (
	"time"

	"github.com/meshrider/meshgate/internal/observability"
)

// Gateway metric names
const (
	RateLimitedTotal       = "gateway_rate_limited_total"
	RateLimitClients       = "gateway_rate_limit_clients"
	UpstreamRequestsTotal  = "gateway_upstream_requests_total"
	UpstreamDuration       = "gateway_upstream_duration_ms"
	ChatCompletionsTotal   = "chat_completions_total"
	HealthCheckTotal       = "app_health_check_total"
	HealthCheckDuration    = "app_health_check_duration_ms"
	ServerStartTimeSeconds = "app_server_start_time_seconds"
)

// Upstream outcomes
const (
	OutcomeOK          = "ok"
	OutcomeTimeout     = "timeout"
	OutcomeUbusError   = "ubus_error"
	OutcomeHTTPStatus  = "http_status"
	OutcomeConnectFail = "connect_failed"
)

// RecordRateLimited counts a request rejected by the per-client limiter.
func RecordRateLimited(route string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(RateLimitedTotal, 1, map[string]string{
		"route": route,
	})
}

// SetRateLimitClients reports how many client windows the limiter tracks.
func SetRateLimitClients(count int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(RateLimitClients, float64(count), nil)
}

// RecordUpstream records one forwarded call to a device.
func RecordUpstream(route, outcome string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(UpstreamRequestsTotal, 1, map[string]string{
		"route":   route,
		"outcome": outcome,
	})
	_ = observability.TelemetrySystem.Histogram(UpstreamDuration, duration, map[string]string{
		"route": route,
	})
}

// RecordChatCompletion counts chat relay outcomes ("success" or "failure").
func RecordChatCompletion(success bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	_ = observability.TelemetrySystem.Counter(ChatCompletionsTotal, 1, map[string]string{
		"status": status,
	})
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = observability.TelemetrySystem.Counter(HealthCheckTotal, 1, map[string]string{
		"check":  checkName,
		"status": status,
	})
	_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{
		"check": checkName,
	})
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(ServerStartTimeSeconds, float64(timestamp), nil)
}
