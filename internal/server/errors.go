package server

import (
	"net/http"
	"strings"

	apperrors "github.com/meshrider/meshgate/internal/errors"
)

// HandleError central handler for all errors. Requests under /api get the
// dashboard's flat body; everything else gets the error envelope.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if r != nil && strings.HasPrefix(r.URL.Path, "/api/") {
		HandleGatewayError(w, r, err)
		return
	}
	apperrors.RespondWithError(w, r, err)
}

// HandleGatewayError writes {"error": ..., "details": ...}.
func HandleGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithGatewayError(w, r, err)
}
