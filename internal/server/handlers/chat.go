package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/meshrider/meshgate/internal/chat"
	apperrors "github.com/meshrider/meshgate/internal/errors"
	"github.com/meshrider/meshgate/internal/metrics"
	"github.com/meshrider/meshgate/internal/observability"
)

// ChatResponse is the success body of POST /api/chat.
type ChatResponse struct {
	Message string `json:"message"`
}

// ChatHandler relays dashboard conversations to the completion provider.
type ChatHandler struct {
	Service *chat.Service
}

// Chat answers with the completion text or a 500 carrying the failure reason.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := decoder.Decode(&req); err != nil {
		metrics.RecordChatCompletion(false)
		respondWithGatewayError(w, r, apperrors.NewChatFailedError(err))
		return
	}

	reply, err := h.Service.Reply(r.Context(), req)
	if err != nil {
		metrics.RecordChatCompletion(false)
		if logger := observability.ServerLogger; logger != nil {
			logger.Warn("Chat completion failed", zap.Error(err))
		}
		respondWithGatewayError(w, r, apperrors.NewChatFailedError(err))
		return
	}

	metrics.RecordChatCompletion(true)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ChatResponse{Message: reply})
}
