package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/meshrider/meshgate/internal/errors"
	"github.com/meshrider/meshgate/internal/gateway"
	"github.com/meshrider/meshgate/internal/metrics"
	"github.com/meshrider/meshgate/internal/observability"
)

// Route labels used in gateway metrics.
const (
	RouteUbus        = "ubus"
	RoutePassthrough = "passthrough"
)

const maxRequestBody = 1 << 20

// GatewayHandler serves the device relay routes under /api/proxy.
type GatewayHandler struct {
	Limiter *gateway.RateLimiter
	Devices *gateway.DeviceClient

	// PassthroughRateLimited applies the ubus limiter to the passthrough
	// route as well.
	PassthroughRateLimited bool
}

// Ubus validates a ubus JSON-RPC envelope and relays it to the target device.
func (h *GatewayHandler) Ubus(w http.ResponseWriter, r *http.Request) {
	if h.rateLimited(w, r, RouteUbus) {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		respondWithGatewayError(w, r, apperrors.NewInvalidJSONError(err))
		return
	}

	decoded, err := gateway.DecodeBody(body)
	if err != nil {
		respondWithGatewayError(w, r, apperrors.NewInvalidJSONError(err))
		return
	}
	if !gateway.IsValidUbusRequest(decoded) {
		respondWithGatewayError(w, r, apperrors.NewInvalidUbusRequestError())
		return
	}

	target, err := h.Devices.ResolveTarget(r.Header.Get(gateway.TargetHeader))
	if err != nil {
		respondWithGatewayError(w, r, apperrors.NewUpstreamConnectionError(r.Header.Get(gateway.TargetHeader), err))
		return
	}

	envelope, err := json.Marshal(decoded)
	if err != nil {
		respondWithGatewayError(w, r, apperrors.NewInvalidJSONError(err))
		return
	}

	object, method := gateway.DescribeCall(decoded)
	if logger := observability.ServerLogger; logger != nil {
		logger.Debug("Relaying ubus call",
			zap.String("target", target),
			zap.String("object", object),
			zap.String("method", method))
	}

	resp, err := h.Devices.CallUbus(r.Context(), target, envelope)
	if err != nil {
		h.respondUpstreamFailure(w, r, RouteUbus, target, resp, err)
		return
	}

	if deviceErr, ok := gateway.UbusErrorFrom(resp.Body); ok {
		metrics.RecordUpstream(RouteUbus, metrics.OutcomeUbusError, resp.Duration)
		respondWithGatewayError(w, r, apperrors.NewUbusError(deviceErr))
		return
	}

	metrics.RecordUpstream(RouteUbus, metrics.OutcomeOK, resp.Duration)
	writeRelayed(w, http.StatusOK, "application/json", resp.Body)
}

// Passthrough relays GET and POST requests to https://{target}/{path}. GET
// keeps the query string; POST relays the JSON body.
func (h *GatewayHandler) Passthrough(w http.ResponseWriter, r *http.Request) {
	if h.PassthroughRateLimited && h.rateLimited(w, r, RoutePassthrough) {
		return
	}

	var (
		body        io.Reader
		contentType string
		rawQuery    string
	)
	switch r.Method {
	case http.MethodGet:
		rawQuery = r.URL.RawQuery
	case http.MethodPost:
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err != nil || !json.Valid(payload) {
			respondWithGatewayError(w, r, apperrors.NewInvalidJSONError(err))
			return
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	default:
		respondWithGatewayError(w, r, apperrors.NewMethodNotAllowedError(apperrors.MsgMethodNotAllowed))
		return
	}

	target, err := h.Devices.ResolveTarget(r.Header.Get(gateway.TargetHeader))
	if err != nil {
		respondWithGatewayError(w, r, apperrors.NewUpstreamConnectionError(r.Header.Get(gateway.TargetHeader), err))
		return
	}

	resp, err := h.Devices.Forward(r.Context(), r.Method, target, chi.URLParam(r, "*"), rawQuery, body, contentType)
	if err != nil {
		h.respondUpstreamFailure(w, r, RoutePassthrough, target, resp, err)
		return
	}

	outcome := metrics.OutcomeOK
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = metrics.OutcomeHTTPStatus
	}
	metrics.RecordUpstream(RoutePassthrough, outcome, resp.Duration)

	ct := resp.ContentType
	if ct == "" {
		ct = "application/json"
	}
	writeRelayed(w, resp.StatusCode, ct, resp.Body)
}

// MethodNotAllowed answers non-POST calls on the ubus route.
func (h *GatewayHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "POST, OPTIONS")
	respondWithGatewayError(w, r, apperrors.NewMethodNotAllowedError(apperrors.MsgMethodNotAllowed))
}

func (h *GatewayHandler) rateLimited(w http.ResponseWriter, r *http.Request, route string) bool {
	if h.Limiter == nil {
		return false
	}

	clientID := gateway.ClientID(r)
	limited := h.Limiter.IsRateLimited(clientID)
	metrics.SetRateLimitClients(h.Limiter.Len())
	if !limited {
		return false
	}

	metrics.RecordRateLimited(route)
	if logger := observability.ServerLogger; logger != nil {
		logger.Debug("Client over quota",
			zap.String("client", clientID),
			zap.String("route", route))
	}
	respondWithGatewayError(w, r, apperrors.NewRateLimitedError())
	return true
}

func (h *GatewayHandler) respondUpstreamFailure(w http.ResponseWriter, r *http.Request, route, target string, resp *gateway.Response, err error) {
	duration := upstreamDuration(resp)

	switch {
	case errors.Is(err, gateway.ErrUpstreamTimeout):
		metrics.RecordUpstream(route, metrics.OutcomeTimeout, duration)
		respondWithGatewayError(w, r, apperrors.NewUpstreamTimeoutError(target))
	case errors.Is(err, gateway.ErrUpstreamStatus):
		metrics.RecordUpstream(route, metrics.OutcomeHTTPStatus, duration)
		respondWithGatewayError(w, r, apperrors.NewUpstreamConnectionError(target, err))
	default:
		metrics.RecordUpstream(route, metrics.OutcomeConnectFail, duration)
		respondWithGatewayError(w, r, apperrors.NewUpstreamConnectionError(target, err))
	}
}

func upstreamDuration(resp *gateway.Response) time.Duration {
	if resp == nil {
		return 0
	}
	return resp.Duration
}

func writeRelayed(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Failed to write relayed response", zap.Error(err))
	}
}
