package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vidaplena/clinic-portal/internal/api"
	"github.com/vidaplena/clinic-portal/internal/session"
	"github.com/vidaplena/clinic-portal/pkg/logging"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeRemoteError maps clinic API failures to portal responses. The
// backend's own message is surfaced verbatim on business rejections.
func writeRemoteError(w http.ResponseWriter, logger *logging.Logger, err error) {
	var rejection *api.BusinessRejectionError
	if errors.As(err, &rejection) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "business_rejection",
			"message": rejection.Message,
		})
		return
	}
	if errors.Is(err, session.ErrMissingActor) || errors.Is(err, session.ErrMissingToken) {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	logger.Error("clinic backend unreachable", "error", err)
	writeJSON(w, http.StatusBadGateway, map[string]any{
		"error":   "transport",
		"message": "could not reach the clinic backend",
	})
}
