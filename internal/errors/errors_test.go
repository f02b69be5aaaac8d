package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshrider/meshgate/internal/server/middleware"
)

func TestHTTPStatusFromCode(t *testing.T) {
	tests := map[string]int{
		CodeRateLimited:        http.StatusTooManyRequests,
		CodeInvalidJSON:        http.StatusBadRequest,
		CodeInvalidUbusRequest: http.StatusBadRequest,
		CodeUbusError:          http.StatusBadRequest,
		CodeUpstreamTimeout:    http.StatusGatewayTimeout,
		CodeUpstreamConnection: http.StatusInternalServerError,
		CodeChatFailed:         http.StatusInternalServerError,
		CodeMethodNotAllowed:   http.StatusMethodNotAllowed,
		CodeNotFound:           http.StatusNotFound,
		CodeUnavailable:        http.StatusServiceUnavailable,
		"SOMETHING_ELSE":       http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, HTTPStatusFromCode(code), code)
	}
}

func TestRespondWithGatewayError_RateLimited(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/proxy/ubus", nil)
	rec := httptest.NewRecorder()

	RespondWithGatewayError(rec, req, NewRateLimitedError())

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Rate limit exceeded"}`, rec.Body.String())
}

func TestRespondWithGatewayError_UbusDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/proxy/ubus", nil)
	rec := httptest.NewRecorder()

	deviceErr := map[string]any{"code": float64(-32002), "message": "Access denied"}
	RespondWithGatewayError(rec, req, NewUbusError(deviceErr))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"UBUS error","details":{"code":-32002,"message":"Access denied"}}`, rec.Body.String())
}

func TestRespondWithGatewayError_ConnectionFailureExposesMessage(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/proxy/ubus", nil)
	rec := httptest.NewRecorder()

	RespondWithGatewayError(rec, req, NewUpstreamConnectionError("10.0.0.1", stderrors.New("connection refused")))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body GatewayErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, MsgUpstreamConnection, body.Error)
	assert.Equal(t, "connection refused", body.Details)
}

func TestRespondWithGatewayError_PlainErrorBecomesInternal(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	rec := httptest.NewRecorder()

	RespondWithGatewayError(rec, req, stderrors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"unexpected error"}`, rec.Body.String())
}

func TestRespondWithEnvelope_UsesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	ctx := context.WithValue(req.Context(), middleware.RequestIDContextKey, "req-123")
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	RespondWithEnvelope(rec, req, NewNotFoundError("nope"))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeNotFound, body.Error.Code)
	assert.Equal(t, "req-123", body.Error.RequestID)
}

func TestWrapInternalCarriesCause(t *testing.T) {
	env := WrapInternal(context.Background(), stderrors.New("disk full"), "store failed")
	assert.Equal(t, CodeInternal, env.Code)
	assert.Equal(t, "disk full", env.Context["wrapped_error"])
	assert.NotEmpty(t, env.CorrelationID)
}

func TestEnsureEnvelopeNil(t *testing.T) {
	env := EnsureEnvelope(nil)
	assert.Equal(t, CodeInternal, env.Code)
}
