package errors

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meshrider/meshgate/internal/metrics"
	"github.com/meshrider/meshgate/internal/observability"
	"github.com/meshrider/meshgate/internal/server/middleware"
)

// Error codes. Gateway codes map onto the dashboard's error taxonomy; the rest
// are shared with the operational endpoints.
const (
	CodeRateLimited        = "RATE_LIMITED"
	CodeInvalidJSON        = "INVALID_JSON"
	CodeInvalidUbusRequest = "INVALID_UBUS_REQUEST"
	CodeUbusError          = "UBUS_ERROR"
	CodeUpstreamTimeout    = "UPSTREAM_TIMEOUT"
	CodeUpstreamConnection = "UPSTREAM_CONNECTION_FAILED"
	CodeChatFailed         = "CHAT_FAILED"

	CodeInvalidInput     = "INVALID_INPUT"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeExternalService  = "EXTERNAL_SERVICE_ERROR"
	CodeTimeout          = "TIMEOUT"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeConfigInvalid    = "CONFIG_INVALID"
)

// DetailsKey is the envelope details key surfaced as "details" in gateway bodies.
const DetailsKey = "details"

// Messages returned to the dashboard. These strings are part of the browser
// contract; change them only together with the frontend.
const (
	MsgRateLimited        = "Rate limit exceeded"
	MsgInvalidJSON        = "Invalid JSON in request body"
	MsgInvalidUbusRequest = "Invalid UBUS request format"
	MsgUbusError          = "UBUS error"
	MsgUpstreamTimeout    = "Request timeout"
	MsgUpstreamConnection = "Failed to connect to device"
	MsgMethodNotAllowed   = "Method not allowed"
	MsgChatFailed         = "Failed to get AI response"
)

// Gateway errors

func NewRateLimitedError() *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeRateLimited, MsgRateLimited)
}

func NewInvalidJSONError(cause error) *errors.ErrorEnvelope {
	return withWrappedError(errors.NewErrorEnvelope(CodeInvalidJSON, MsgInvalidJSON), cause)
}

func NewInvalidUbusRequestError() *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidUbusRequest, MsgInvalidUbusRequest)
}

// NewUbusError carries the device-reported error object back to the caller.
func NewUbusError(deviceError any) *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope(CodeUbusError, MsgUbusError)
	return env.WithDetails(map[string]interface{}{DetailsKey: deviceError})
}

func NewUpstreamTimeoutError(target string) *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope(CodeUpstreamTimeout, MsgUpstreamTimeout)
	env, _ = env.WithContext(map[string]interface{}{"target": target})
	env, _ = env.WithSeverity(errors.SeverityMedium)
	return env
}

// NewUpstreamConnectionError exposes the raw transport message to the caller;
// the dashboard is a trusted operator surface.
func NewUpstreamConnectionError(target string, cause error) *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope(CodeUpstreamConnection, MsgUpstreamConnection)
	if cause != nil {
		env = env.WithDetails(map[string]interface{}{DetailsKey: cause.Error()})
	}
	env, _ = env.WithContext(map[string]interface{}{"target": target})
	env, _ = env.WithSeverity(errors.SeverityMedium)
	return env
}

func NewChatFailedError(cause error) *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope(CodeChatFailed, MsgChatFailed)
	if cause != nil {
		env = env.WithDetails(map[string]interface{}{DetailsKey: cause.Error()})
	}
	env, _ = env.WithSeverity(errors.SeverityMedium)
	return env
}

// General errors

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInternal, message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConfigInvalid, message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeUnavailable, message)
}

// Wrap functions attach correlation and trace ids from the request context.

func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInvalidInput, err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInternal, err, message)
}

func WrapExternalService(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeExternalService, err, message)
}

func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeConfigInvalid, err, message)
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope(code, message)
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))
	envelope = envelope.WithTraceID(extractTraceID(ctx))
	return withWrappedError(envelope, err)
}

// extractCorrelationID gets correlation ID from context, falls back to generating new UUID
func extractCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if requestID := middleware.GetRequestID(ctx); requestID != "" {
			return requestID
		}
	}
	return uuid.New().String()
}

// extractTraceID uses the correlation id until a tracing system is wired in.
func extractTraceID(ctx context.Context) string {
	return extractCorrelationID(ctx)
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	if envelope, ok := err.(*errors.ErrorEnvelope); ok && envelope != nil {
		return envelope
	}

	env := errors.NewErrorEnvelope(CodeInternal, "unexpected error")
	env, _ = env.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// EnsureCorrelationID attaches a correlation ID to the envelope using the context when available.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}
	if envelope.CorrelationID != "" {
		return envelope
	}

	var correlationID string
	if ctx != nil {
		correlationID = middleware.GetRequestID(ctx)
	}
	if correlationID == "" {
		correlationID = "fallback-" + errors.GenerateCorrelationID()
	}

	return envelope.WithCorrelationID(correlationID)
}

// HTTPStatusFromEnvelope resolves the HTTP status code corresponding to an error envelope.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// HTTPStatusFromCode resolves the HTTP status code corresponding to an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case CodeInvalidInput, "VALIDATION_FAILED", CodeInvalidJSON, CodeInvalidUbusRequest, CodeUbusError:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeUpstreamTimeout, CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeExternalService:
		return http.StatusBadGateway
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}

	updated, updateErr := envelope.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	if updateErr != nil {
		return envelope
	}
	return updated
}

// ResponseDetails constructs API-safe details map by merging envelope details and context.
func ResponseDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if envelope == nil {
		return nil
	}

	details := make(map[string]interface{})
	for key, value := range envelope.Details {
		details[key] = value
	}
	for key, value := range envelope.Context {
		if _, exists := details[key]; !exists {
			details[key] = value
		}
	}

	if len(details) == 0 {
		return nil
	}
	return details
}

// HTTPErrorDetail captures the error body returned to operational callers.
type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail in the standard envelope structure.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// GatewayErrorResponse is the flat body the dashboard reads on /api routes.
type GatewayErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// RespondWithError normalizes the supplied error and writes a JSON response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope finalizes the provided envelope, logging and emitting metrics.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}

	envelope, statusCode := finalize(r, envelope)
	writeJSON(w, statusCode, HTTPErrorResponse{
		Error: HTTPErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			Details:   ResponseDetails(envelope),
			RequestID: envelope.CorrelationID,
		},
	})
}

// RespondWithGatewayError writes the dashboard's flat error body. Logging and
// metrics are identical to RespondWithEnvelope.
func RespondWithGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	if w == nil {
		return
	}

	envelope, statusCode := finalize(r, EnsureEnvelope(err))
	body := GatewayErrorResponse{Error: envelope.Message}
	if envelope.Details != nil {
		body.Details = envelope.Details[DetailsKey]
	}
	writeJSON(w, statusCode, body)
}

func finalize(r *http.Request, envelope *errors.ErrorEnvelope) (*errors.ErrorEnvelope, int) {
	var ctx context.Context
	if r != nil {
		ctx = r.Context()
	}
	envelope = EnsureCorrelationID(envelope, ctx)
	statusCode := HTTPStatusFromEnvelope(envelope)

	logHTTPError(envelope, statusCode)
	emitErrorMetrics(r, envelope, statusCode)
	return envelope, statusCode
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func logHTTPError(envelope *errors.ErrorEnvelope, statusCode int) {
	if observability.ServerLogger == nil || envelope == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", statusCode),
	}
	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}
	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}
	if envelope.CorrelationID != "" {
		fields = append(fields, zap.String("request_id", envelope.CorrelationID))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		observability.ServerLogger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		observability.ServerLogger.Warn(envelope.Message, fields...)
	default:
		observability.ServerLogger.Info(envelope.Message, fields...)
	}
}

func emitErrorMetrics(r *http.Request, envelope *errors.ErrorEnvelope, statusCode int) {
	if envelope == nil {
		return
	}

	metrics.RecordError(envelope.Code, statusCode)
	if r != nil {
		metrics.RecordErrorByEndpoint(endpointLabel(r), envelope.Code)
	}
}

// endpointLabel prefers the chi route pattern so passthrough paths do not
// explode metric cardinality.
func endpointLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "/unknown"
}
