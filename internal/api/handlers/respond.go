package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/plays3000/ai-server/internal/apperrors"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	// Reply is the partial answer computed before the failing stage, if any.
	Reply string `json:"reply,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs the full error and sends the client only a short reason.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error, partialReply string) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		logger.Info("request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: apperrors.PublicMessage(err), Reply: partialReply})
}
