package handlers

import (
	"net/http"

	apperrors "github.com/meshrider/meshgate/internal/errors"
)

type errorResponder func(http.ResponseWriter, *http.Request, error)

var (
	defaultHTTPErrorResponder errorResponder = apperrors.RespondWithError
	defaultGatewayResponder   errorResponder = apperrors.RespondWithGatewayError

	httpErrorResponder    = defaultHTTPErrorResponder
	gatewayErrorResponder = defaultGatewayResponder
)

// SetHTTPErrorResponder allows the server package to inject the centralized error handler.
func SetHTTPErrorResponder(responder func(http.ResponseWriter, *http.Request, error)) {
	if responder == nil {
		httpErrorResponder = defaultHTTPErrorResponder
		return
	}
	httpErrorResponder = responder
}

// SetGatewayErrorResponder injects the responder used by the /api routes.
func SetGatewayErrorResponder(responder func(http.ResponseWriter, *http.Request, error)) {
	if responder == nil {
		gatewayErrorResponder = defaultGatewayResponder
		return
	}
	gatewayErrorResponder = responder
}

// ResetHTTPErrorResponder restores the default responders (useful for tests).
func ResetHTTPErrorResponder() {
	httpErrorResponder = defaultHTTPErrorResponder
	gatewayErrorResponder = defaultGatewayResponder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}

func respondWithGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	gatewayErrorResponder(w, r, err)
}
