package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/meshrider/meshgate/internal/observability"
	"go.uber.org/zap"
)

// responseWriter wraps http.ResponseWriter to capture status code and response size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// getEndpointPattern extracts chi route pattern to avoid high-cardinality paths
func getEndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if routePattern := rctx.RoutePattern(); routePattern != "" {
			return routePattern
		}
	}

	path := r.URL.Path
	switch {
	case path == "/health", strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case path == "/version", path == "/metrics", path == "/":
		return path
	case path == "/api/proxy/ubus", path == "/api/chat":
		return path
	case strings.HasPrefix(path, "/api/proxy/"):
		// passthrough paths are caller-controlled
		return "/api/proxy/*"
	default:
		return "/unknown"
	}
}

// RequestMetrics records request counters and logs every completed request.
// Metrics are skipped while telemetry is disabled; logging is not.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		rec := completedRequest{
			method:       r.Method,
			endpoint:     getEndpointPattern(r),
			status:       wrapped.statusCode,
			duration:     time.Since(start),
			requestSize:  r.ContentLength,
			responseSize: wrapped.bytesWritten,
		}
		if rec.requestSize < 0 {
			rec.requestSize = 0
		}

		emitRequestMetrics(rec)
		logRequest(r, rec)
	})
}

type completedRequest struct {
	method       string
	endpoint     string
	status       int
	duration     time.Duration
	requestSize  int64
	responseSize int64
}

func emitRequestMetrics(rec completedRequest) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}

	// endpoint is a route pattern; client and target stay out of labels
	labels := map[string]string{
		"method":   rec.method,
		"endpoint": rec.endpoint,
		"status":   strconv.Itoa(rec.status),
	}
	sizeLabels := map[string]string{
		"method":   rec.method,
		"endpoint": rec.endpoint,
	}

	_ = sys.Counter("http_requests_total", 1, labels)
	_ = sys.Histogram("http_request_duration_ms", rec.duration, labels)
	_ = sys.Gauge("http_request_size_bytes", float64(rec.requestSize), sizeLabels)
	_ = sys.Gauge("http_response_size_bytes", float64(rec.responseSize), sizeLabels)

	if rec.status >= 400 {
		errorType := "client_error"
		if rec.status >= 500 {
			errorType = "server_error"
		}
		_ = sys.Counter("http_errors_total", 1, map[string]string{
			"method":     rec.method,
			"endpoint":   rec.endpoint,
			"status":     strconv.Itoa(rec.status),
			"error_type": errorType,
		})
	}
}

func logRequest(r *http.Request, rec completedRequest) {
	logger := observability.ServerLogger
	if logger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("method", rec.method),
		zap.String("path", r.URL.Path),
		zap.String("endpoint", rec.endpoint),
		zap.Int("status", rec.status),
		zap.Duration("duration", rec.duration),
		zap.Int64("request_size", rec.requestSize),
		zap.Int64("response_size", rec.responseSize),
		zap.String("requestID", GetRequestID(r.Context())),
	}
	if target := r.Header.Get("X-Target-IP"); target != "" {
		fields = append(fields, zap.String("target", target))
	}

	// probes and scrapes would drown the gateway traffic at info
	if strings.HasPrefix(rec.endpoint, "/health") || rec.endpoint == "/metrics" {
		logger.Debug("HTTP request completed", fields...)
		return
	}
	logger.Info("HTTP request completed", fields...)
}
