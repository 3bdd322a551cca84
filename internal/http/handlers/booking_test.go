package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidaplena/clinic-portal/internal/api"
	"github.com/vidaplena/clinic-portal/internal/appointment"
	"github.com/vidaplena/clinic-portal/internal/availability"
	"github.com/vidaplena/clinic-portal/internal/http/middleware"
	"github.com/vidaplena/clinic-portal/internal/session"
	"github.com/vidaplena/clinic-portal/pkg/logging"
)

type fakeBookingAPI struct {
	bootstrap      *api.Bootstrap
	bootstrapCalls int
	slots          []api.SlotPayload
	slotCalls      int
	created        *api.CreateAppointmentRequest
	createErr      error
}

func (f *fakeBookingAPI) GetBookingBootstrap(ctx context.Context, creds session.Credentials, includeSchedules bool) (*api.Bootstrap, error) {
	f.bootstrapCalls++
	return f.bootstrap, nil
}

func (f *fakeBookingAPI) GetTherapistAvailability(ctx context.Context, creds session.Credentials, therapistID, patientID string) ([]api.SlotPayload, error) {
	f.slotCalls++
	return f.slots, nil
}

func (f *fakeBookingAPI) CreateAppointment(ctx context.Context, creds session.Credentials, req api.CreateAppointmentRequest) (*appointment.Appointment, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = &req
	return &appointment.Appointment{
		ID:          "apt-new",
		Status:      appointment.StatusPending,
		Start:       req.Start,
		End:         req.End,
		TherapistID: req.TherapistID,
		PatientID:   req.PatientID,
		ProductID:   req.ProductID,
		ApproachID:  req.ApproachID,
		Notes:       req.Notes,
	}, nil
}

func testBootstrap() *api.Bootstrap {
	return &api.Bootstrap{
		Products: []api.Product{
			{ID: "prod-massage", Name: "Masaje descontracturante", DefaultApproachID: "app-deep"},
			{ID: "prod-facial", Name: "Limpieza facial"},
		},
		Approaches: []api.Approach{
			{ID: "app-deep", Name: "Tejido profundo"},
			{ID: "app-relax", Name: "Relajante"},
		},
		Therapists: []api.Therapist{
			{ID: "ther-1", Name: "Carla", Zone: "America/La_Paz"},
		},
		SchedulesByTherapist: map[string][]api.SlotPayload{
			"ther-1": {
				{Start: "2026-03-10T14:00:00Z", End: "2026-03-10T15:00:00Z"},
				{Start: "2026-03-10T16:00:00Z", End: "2026-03-10T17:00:00Z"},
			},
		},
	}
}

func bookingRouter(h *BookingHandler) http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireCredentials)
		r.Get("/api/booking/bootstrap", h.Bootstrap)
		r.Get("/api/booking/therapists/{id}/slots", h.Slots)
		r.Post("/api/booking/appointments", h.Create)
	})
	return r
}

func TestBookingBootstrapCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := availability.NewBootstrapCache(rdb, time.Minute)

	client := &fakeBookingAPI{bootstrap: testBootstrap()}
	router := bookingRouter(NewBookingHandler(client, cache, nil, logging.Default(), "UTC"))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/api/booking/bootstrap", nil)))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, client.bootstrapCalls, "second read must come from the cache")
}

func TestBookingSlotsDualRendering(t *testing.T) {
	client := &fakeBookingAPI{bootstrap: testBootstrap()}
	router := bookingRouter(NewBookingHandler(client, nil, nil, logging.Default(), "UTC"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/api/booking/therapists/ther-1/slots?zone=America/New_York", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Slots []slotView `json:"slots"`
		Count int        `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, 2, body.Count)
	// 2026-03-10 is past the US DST switch: EDT is UTC-4, same as La Paz.
	first := body.Slots[0]
	assert.Equal(t, "2026-03-10T14:00:00Z", first.Start)
	assert.Equal(t, "2026-03-10 10:00", first.PatientLocal)
	assert.Equal(t, "2026-03-10 10:00", first.TherapistLocal)
	assert.Zero(t, client.slotCalls, "bulk schedules satisfy the lookup")
}

func TestBookingSlotsBadZone(t *testing.T) {
	client := &fakeBookingAPI{bootstrap: testBootstrap()}
	router := bookingRouter(NewBookingHandler(client, nil, nil, logging.Default(), "UTC"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/api/booking/therapists/ther-1/slots?zone=Mars/Olympus", nil)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookingCreate(t *testing.T) {
	client := &fakeBookingAPI{bootstrap: testBootstrap()}
	router := bookingRouter(NewBookingHandler(client, nil, nil, logging.Default(), "UTC"))

	payload := `{
		"product_id": "prod-massage",
		"therapist_id": "ther-1",
		"start": "2026-03-10T14:00:00Z",
		"end": "2026-03-10T15:00:00Z",
		"notes": "primera visita"
	}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/api/booking/appointments", strings.NewReader(payload))))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, client.created)
	assert.Equal(t, "app-deep", client.created.ApproachID, "product default approach applies")
	assert.Equal(t, "admin-1", client.created.PatientID, "patient defaults to the actor")
	assert.Equal(t, "primera visita", client.created.Notes)
	assert.True(t, client.created.Start.Equal(time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)))
}

func TestBookingCreateLegacyWallClock(t *testing.T) {
	client := &fakeBookingAPI{bootstrap: testBootstrap()}
	router := bookingRouter(NewBookingHandler(client, nil, nil, logging.Default(), "UTC"))

	payload := `{
		"product_id": "prod-massage",
		"approach_id": "app-relax",
		"therapist_id": "ther-1",
		"date": "2026-03-10",
		"start_time": "10:00",
		"end_time": "11:00",
		"utc_offset_min": -240
	}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/api/booking/appointments", strings.NewReader(payload))))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, client.created)
	assert.Equal(t, "app-relax", client.created.ApproachID)
	assert.True(t, client.created.Start.Equal(time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)),
		"10:00 at UTC-4 is 14:00Z")
}

func TestBookingCreateLegacyWithoutOffset(t *testing.T) {
	client := &fakeBookingAPI{bootstrap: testBootstrap()}
	router := bookingRouter(NewBookingHandler(client, nil, nil, logging.Default(), "UTC"))

	payload := `{
		"product_id": "prod-massage",
		"therapist_id": "ther-1",
		"date": "2026-03-10",
		"start_time": "10:00",
		"end_time": "11:00"
	}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/api/booking/appointments", strings.NewReader(payload))))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, client.created)
}

func TestBookingCreateUnknownProduct(t *testing.T) {
	client := &fakeBookingAPI{bootstrap: testBootstrap()}
	router := bookingRouter(NewBookingHandler(client, nil, nil, logging.Default(), "UTC"))

	payload := `{
		"product_id": "prod-nope",
		"therapist_id": "ther-1",
		"start": "2026-03-10T14:00:00Z",
		"end": "2026-03-10T15:00:00Z"
	}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/api/booking/appointments", strings.NewReader(payload))))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, client.created)
}

func TestBookingCreateBusinessRejection(t *testing.T) {
	client := &fakeBookingAPI{
		bootstrap: testBootstrap(),
		createErr: &api.BusinessRejectionError{Op: "citas.crear", Message: "horario no disponible"},
	}
	router := bookingRouter(NewBookingHandler(client, nil, nil, logging.Default(), "UTC"))

	payload := `{
		"product_id": "prod-massage",
		"therapist_id": "ther-1",
		"start": "2026-03-10T14:00:00Z",
		"end": "2026-03-10T15:00:00Z"
	}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/api/booking/appointments", strings.NewReader(payload))))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "horario no disponible", body.Message)
}
