// Package handlers exposes the appointment engine to the portal
// frontend.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vidaplena/clinic-portal/internal/actions"
	"github.com/vidaplena/clinic-portal/internal/api"
	"github.com/vidaplena/clinic-portal/internal/appointment"
	"github.com/vidaplena/clinic-portal/internal/http/middleware"
	"github.com/vidaplena/clinic-portal/internal/timecodec"
	"github.com/vidaplena/clinic-portal/pkg/logging"
)

// AppointmentsHandler serves the appointment list and lifecycle actions.
type AppointmentsHandler struct {
	orch   *actions.Orchestrator
	logger *logging.Logger
}

func NewAppointmentsHandler(orch *actions.Orchestrator, logger *logging.Logger) *AppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{orch: orch, logger: logger}
}

// List handles GET /api/appointments.
func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	creds, ok := middleware.CredentialsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}

	filter := api.ListFilter{
		TherapistID: r.URL.Query().Get("therapist_id"),
		PatientID:   r.URL.Query().Get("patient_id"),
	}
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := timecodec.ParseInstant(from)
		if err != nil {
			http.Error(w, "invalid from instant", http.StatusBadRequest)
			return
		}
		filter.From = t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := timecodec.ParseInstant(to)
		if err != nil {
			http.Error(w, "invalid to instant", http.StatusBadRequest)
			return
		}
		filter.To = t
	}

	appts, err := h.orch.Load(r.Context(), creds, filter)
	if err != nil {
		writeRemoteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointments": appts,
		"count":        len(appts),
	})
}

// actionRequest is the body of every lifecycle action.
type actionRequest struct {
	Reason   string `json:"reason,omitempty"`
	Notes    string `json:"notes,omitempty"`
	NewStart string `json:"new_start,omitempty"`
	NewEnd   string `json:"new_end,omitempty"`
}

// actionCommands maps the URL action segment to a lifecycle command.
var actionCommands = map[string]appointment.Command{
	"confirm":   appointment.CommandConfirm,
	"reject":    appointment.CommandReject,
	"reprogram": appointment.CommandReprogram,
	"done":      appointment.CommandMarkDone,
	"paid":      appointment.CommandMarkPaid,
}

// Action handles POST /api/appointments/{id}/{action}.
func (h *AppointmentsHandler) Action(w http.ResponseWriter, r *http.Request) {
	creds, ok := middleware.CredentialsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}

	id := chi.URLParam(r, "id")
	cmd, ok := actionCommands[chi.URLParam(r, "action")]
	if !ok {
		http.Error(w, "unknown action", http.StatusNotFound)
		return
	}

	var req actionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	params := appointment.Params{Reason: req.Reason, Notes: req.Notes}
	if req.NewStart != "" {
		t, err := timecodec.ParseInstant(req.NewStart)
		if err != nil {
			http.Error(w, "invalid new_start instant", http.StatusBadRequest)
			return
		}
		params.NewStart = t
	}
	if req.NewEnd != "" {
		t, err := timecodec.ParseInstant(req.NewEnd)
		if err != nil {
			http.Error(w, "invalid new_end instant", http.StatusBadRequest)
			return
		}
		params.NewEnd = t
	}

	outcome := h.orch.Execute(r.Context(), creds, id, cmd, params)
	status := outcomeStatus(outcome.Kind)
	if outcome.Kind == actions.KindOK {
		writeJSON(w, status, map[string]any{"appointment": outcome.Appointment})
		return
	}
	writeJSON(w, status, map[string]any{
		"error":   string(outcome.Kind),
		"message": outcome.Message,
	})
}

func outcomeStatus(kind actions.Kind) int {
	switch kind {
	case actions.KindOK:
		return http.StatusOK
	case actions.KindValidation:
		return http.StatusBadRequest
	case actions.KindIllegalTransition:
		return http.StatusConflict
	case actions.KindInFlight:
		return http.StatusTooManyRequests
	case actions.KindBusinessRejection:
		return http.StatusUnprocessableEntity
	case actions.KindTransport:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
