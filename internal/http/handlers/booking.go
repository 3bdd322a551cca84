package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vidaplena/clinic-portal/internal/api"
	"github.com/vidaplena/clinic-portal/internal/appointment"
	"github.com/vidaplena/clinic-portal/internal/availability"
	"github.com/vidaplena/clinic-portal/internal/http/middleware"
	"github.com/vidaplena/clinic-portal/internal/observability/metrics"
	"github.com/vidaplena/clinic-portal/internal/session"
	"github.com/vidaplena/clinic-portal/internal/timecodec"
	"github.com/vidaplena/clinic-portal/internal/wizard"
	"github.com/vidaplena/clinic-portal/pkg/logging"
)

// BookingAPI is the slice of the clinic client the booking flow needs.
type BookingAPI interface {
	GetBookingBootstrap(ctx context.Context, creds session.Credentials, includeSchedules bool) (*api.Bootstrap, error)
	GetTherapistAvailability(ctx context.Context, creds session.Credentials, therapistID, patientID string) ([]api.SlotPayload, error)
	CreateAppointment(ctx context.Context, creds session.Credentials, req api.CreateAppointmentRequest) (*appointment.Appointment, error)
}

// BookingHandler serves the patient booking wizard endpoints.
type BookingHandler struct {
	client      BookingAPI
	cache       *availability.BootstrapCache
	metrics     *metrics.PortalMetrics
	logger      *logging.Logger
	defaultZone string
}

func NewBookingHandler(client BookingAPI, cache *availability.BootstrapCache, m *metrics.PortalMetrics, logger *logging.Logger, defaultZone string) *BookingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if defaultZone == "" {
		defaultZone = "UTC"
	}
	return &BookingHandler{
		client:      client,
		cache:       cache,
		metrics:     m,
		logger:      logger,
		defaultZone: defaultZone,
	}
}

// bootstrap returns the bulk wizard payload, from cache when possible.
// Cache failures degrade to a direct fetch.
func (h *BookingHandler) bootstrap(ctx context.Context, creds session.Credentials) (*api.Bootstrap, error) {
	if h.cache != nil {
		cached, err := h.cache.Get(ctx, creds.Actor)
		if err != nil {
			h.logger.Warn("bootstrap cache read failed", "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}
	b, err := h.client.GetBookingBootstrap(ctx, creds, true)
	if err != nil {
		return nil, err
	}
	if h.cache != nil {
		if err := h.cache.Put(ctx, creds.Actor, b); err != nil {
			h.logger.Warn("bootstrap cache write failed", "error", err)
		}
	}
	return b, nil
}

func (h *BookingHandler) resolver(b *api.Bootstrap) (*availability.Resolver, error) {
	r := availability.NewResolver(h.client, h.logger, h.metrics)
	if err := r.PrimeFromBootstrap(b); err != nil {
		return nil, err
	}
	return r, nil
}

// Bootstrap handles GET /api/booking/bootstrap.
func (h *BookingHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	creds, ok := middleware.CredentialsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}
	b, err := h.bootstrap(r.Context(), creds)
	if err != nil {
		writeRemoteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type slotView struct {
	Start          string `json:"start"` // RFC3339 UTC, the value to submit
	End            string `json:"end"`
	PatientLocal   string `json:"patient_local"`
	TherapistLocal string `json:"therapist_local,omitempty"`
}

// Slots handles GET /api/booking/therapists/{id}/slots.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	creds, ok := middleware.CredentialsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}
	therapistID := chi.URLParam(r, "id")
	patientID := r.URL.Query().Get("patient_id")
	if patientID == "" {
		patientID = creds.Actor
	}
	zone := r.URL.Query().Get("zone")
	if zone == "" {
		zone = h.defaultZone
	}

	b, err := h.bootstrap(r.Context(), creds)
	if err != nil {
		writeRemoteError(w, h.logger, err)
		return
	}
	resolver, err := h.resolver(b)
	if err != nil {
		writeRemoteError(w, h.logger, err)
		return
	}

	slots, err := resolver.ListSlots(r.Context(), creds, therapistID, patientID)
	if err != nil {
		writeRemoteError(w, h.logger, err)
		return
	}

	views := make([]slotView, 0, len(slots))
	for _, s := range slots {
		patient, err := s.PatientView(zone)
		if err != nil {
			http.Error(w, "unknown zone "+zone, http.StatusBadRequest)
			return
		}
		v := slotView{
			Start:        timecodec.FormatInstant(s.Start),
			End:          timecodec.FormatInstant(s.End),
			PatientLocal: patient.Date + " " + patient.Time,
		}
		if s.TherapistZone != "" && s.TherapistZone != zone {
			therapist, err := s.TherapistView()
			if err == nil {
				v.TherapistLocal = therapist.Date + " " + therapist.Time
			}
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": views, "count": len(views)})
}

// createRequest carries the wizard selections. Either start/end RFC3339
// instants or the legacy wall-clock triple plus the posting client's
// UTC offset must be present.
type createRequest struct {
	ProductID   string `json:"product_id"`
	ApproachID  string `json:"approach_id,omitempty"`
	TherapistID string `json:"therapist_id"`
	PatientID   string `json:"patient_id,omitempty"`
	Notes       string `json:"notes,omitempty"`

	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`

	Date         string `json:"date,omitempty"`
	StartTime    string `json:"start_time,omitempty"`
	EndTime      string `json:"end_time,omitempty"`
	UTCOffsetMin *int   `json:"utc_offset_min,omitempty"`
}

// Create handles POST /api/booking/appointments by replaying the posted
// selections through the wizard, so the same gating rules apply to the
// HTTP surface.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	creds, ok := middleware.CredentialsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	patientID := req.PatientID
	if patientID == "" {
		patientID = creds.Actor
	}

	slot, err := h.slotFromRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b, err := h.bootstrap(r.Context(), creds)
	if err != nil {
		writeRemoteError(w, h.logger, err)
		return
	}
	resolver, err := h.resolver(b)
	if err != nil {
		writeRemoteError(w, h.logger, err)
		return
	}

	wiz := wizard.New(b, resolver, h.client, patientID, h.defaultZone)
	steps := []func() error{
		func() error { return wiz.SelectProduct(req.ProductID) },
		func() error {
			if req.ApproachID == "" {
				return nil // rely on the product's default approach
			}
			return wiz.SelectApproach(req.ApproachID)
		},
		func() error { return wiz.SelectTherapist(req.TherapistID) },
		func() error { return wiz.SelectSlot(slot) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			writeWizardError(w, err)
			return
		}
	}
	wiz.SetNotes(req.Notes)

	appt, err := wiz.Submit(r.Context(), creds)
	if err != nil {
		if isWizardError(err) {
			writeWizardError(w, err)
			return
		}
		writeRemoteError(w, h.logger, err)
		return
	}

	// The bootstrap's slot map is stale once a slot is consumed.
	if h.cache != nil {
		if err := h.cache.Invalidate(r.Context(), creds.Actor); err != nil {
			h.logger.Warn("bootstrap cache invalidation failed", "error", err)
		}
	}

	h.logger.Info("appointment booked",
		"appointment_id", appt.ID, "therapist_id", appt.TherapistID, "patient_id", appt.PatientID)
	writeJSON(w, http.StatusCreated, map[string]any{"appointment": appt})
}

// slotFromRequest resolves the selected slot to canonical UTC instants,
// converting legacy wall-clock fields through the time codec with the
// posting client's own offset.
func (h *BookingHandler) slotFromRequest(req createRequest) (availability.Slot, error) {
	slot := availability.Slot{TherapistID: req.TherapistID}
	switch {
	case req.Start != "" && req.End != "":
		start, err := timecodec.ParseInstant(req.Start)
		if err != nil {
			return availability.Slot{}, errors.New("invalid start instant")
		}
		end, err := timecodec.ParseInstant(req.End)
		if err != nil {
			return availability.Slot{}, errors.New("invalid end instant")
		}
		slot.Start, slot.End = start, end
	case req.Date != "" && req.StartTime != "" && req.EndTime != "":
		if req.UTCOffsetMin == nil {
			return availability.Slot{}, errors.New("legacy slot requires utc_offset_min of the posting client")
		}
		start, err := timecodec.InstantFromWallClock(req.Date, req.StartTime, *req.UTCOffsetMin)
		if err != nil {
			return availability.Slot{}, errors.New("invalid legacy start")
		}
		end, err := timecodec.InstantFromWallClock(req.Date, req.EndTime, *req.UTCOffsetMin)
		if err != nil {
			return availability.Slot{}, errors.New("invalid legacy end")
		}
		slot.Start, slot.End = start, end
	default:
		return availability.Slot{}, errors.New("slot requires start/end instants or wall-clock fields")
	}
	return slot, nil
}

func isWizardError(err error) bool {
	var gate *wizard.GateError
	var sel *wizard.SelectionError
	var incomplete *wizard.IncompleteSelectionError
	return errors.As(err, &gate) || errors.As(err, &sel) || errors.As(err, &incomplete)
}

func writeWizardError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":   "validation",
		"message": err.Error(),
	})
}
