package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidaplena/clinic-portal/internal/appointment"
	"github.com/vidaplena/clinic-portal/internal/session"
	"github.com/vidaplena/clinic-portal/pkg/logging"
)

var testCreds = session.Credentials{Actor: "admin-1", Token: "tok-1"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(ts.URL, 2*time.Second, logging.Default())
}

func decodeCommand(t *testing.T, r *http.Request) commandRequest {
	t.Helper()
	var req commandRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

func TestListAppointments(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/comando", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		req := decodeCommand(t, r)
		assert.Equal(t, "citas.listar", req.Command)
		assert.Equal(t, "admin-1", req.Actor)
		assert.Equal(t, "tok-1", req.Session)
		assert.Equal(t, "ter-1", req.Data["terapeuta_id"])

		_, _ = w.Write([]byte(`{"ok":true,"rows":[{"status":"ok","data":[
			{"id":"cita-1","estado":"pendiente","pagada":false,
			 "inicio":"2025-03-10T14:00:00Z","fin":"2025-03-10T15:00:00Z",
			 "terapeuta_id":"ter-1","paciente_id":"pac-1",
			 "producto_id":"prod-1","enfoque_id":"enf-1",
			 "creado_en":"2025-03-01T09:00:00Z"}
		]}]}`))
	})

	appts, err := client.ListAppointments(context.Background(), testCreds, ListFilter{TherapistID: "ter-1"})
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, "cita-1", appts[0].ID)
	assert.Equal(t, appointment.StatusPending, appts[0].Status)
	assert.True(t, appts[0].Start.Equal(time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)))
}

func TestListAppointmentsUnknownWireStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"rows":[{"status":"ok","data":[
			{"id":"cita-1","estado":"archivada","inicio":"2025-03-10T14:00:00Z","fin":"2025-03-10T15:00:00Z"}
		]}]}`))
	})

	_, err := client.ListAppointments(context.Background(), testCreds, ListFilter{})
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
}

func TestMissingCredentialsNeverHitNetwork(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := client.ListAppointments(context.Background(), session.Credentials{}, ListFilter{})
	assert.ErrorIs(t, err, session.ErrMissingActor)
	assert.False(t, called)

	err = client.SetAppointmentStatus(context.Background(), session.Credentials{Actor: "a"}, "cita-1", appointment.StatusConfirmed, "")
	assert.ErrorIs(t, err, session.ErrMissingToken)
	assert.False(t, called)
}

func TestBusinessRejectionVerbatim(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"rows":[{"status":"error","message":"La cita ya fue confirmada por otro usuario"}]}`))
	})

	err := client.SetAppointmentStatus(context.Background(), testCreds, "cita-1", appointment.StatusConfirmed, "ok")
	var rejection *BusinessRejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "La cita ya fue confirmada por otro usuario", rejection.Message)
}

func TestEnvelopeLevelRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"message":"sesion expirada"}`))
	})

	err := client.RescheduleAppointment(context.Background(), testCreds, "cita-1",
		time.Now().UTC(), time.Now().UTC().Add(time.Hour), "move")
	var rejection *BusinessRejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "sesion expirada", rejection.Message)
}

func TestHTTPErrorIsTransport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	})

	err := client.MarkAppointmentPaid(context.Background(), testCreds, "cita-1", "")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
}

func TestMalformedEnvelopeIsTransport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":tru`))
	})

	_, err := client.GetTherapistAvailability(context.Background(), testCreds, "ter-1", "pac-1")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
}

func TestContextCancelledIsTransport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.ListAppointments(ctx, testCreds, ListFilter{})
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
}

func TestGetBookingBootstrap(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeCommand(t, r)
		assert.Equal(t, "reservas.bootstrap", req.Command)
		assert.Equal(t, true, req.Data["incluir_horarios"])

		_, _ = w.Write([]byte(`{"ok":true,"rows":[{"status":"ok","data":{
			"productos":[{"id":"prod-1","nombre":"Sesion individual","enfoque_por_defecto":"enf-1","duracion_min":60}],
			"enfoques":[{"id":"enf-1","nombre":"Cognitivo-conductual"}],
			"terapeutas":[{"id":"ter-1","nombre":"Dra. Rojas","zona_horaria":"America/La_Paz"}],
			"horarios_disponibles_por_terapeuta":{
				"ter-1":[{"inicio":"2025-03-10T14:00:00Z","fin":"2025-03-10T15:00:00Z"}],
				"ter-2":[]
			}
		}}]}`))
	})

	b, err := client.GetBookingBootstrap(context.Background(), testCreds, true)
	require.NoError(t, err)
	require.Len(t, b.Products, 1)
	assert.Equal(t, "enf-1", b.Products[0].DefaultApproachID)

	ter, ok := b.TherapistByID("ter-1")
	require.True(t, ok)
	assert.Equal(t, "America/La_Paz", ter.Zone)

	// Known-empty entry survives decoding as an empty, present slice.
	slots, ok := b.SchedulesByTherapist["ter-2"]
	require.True(t, ok)
	assert.Empty(t, slots)
}

func TestGetBookingBootstrapMissingPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"rows":[]}`))
	})

	_, err := client.GetBookingBootstrap(context.Background(), testCreds, false)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
}

func TestCreateAppointmentSendsUTCInstants(t *testing.T) {
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeCommand(t, r)
		assert.Equal(t, "citas.crear", req.Command)
		assert.Equal(t, "2025-03-10T14:00:00Z", req.Data["inicio"])
		assert.Equal(t, "2025-03-10T15:00:00Z", req.Data["fin"])
		_, _ = w.Write([]byte(`{"ok":true,"rows":[{"status":"ok","data":
			{"id":"cita-9","estado":"pendiente",
			 "inicio":"2025-03-10T14:00:00Z","fin":"2025-03-10T15:00:00Z",
			 "terapeuta_id":"ter-1","paciente_id":"pac-1",
			 "producto_id":"prod-1","enfoque_id":"enf-1",
			 "creado_en":"2025-03-05T12:00:00Z"}
		}]}`))
	})

	appt, err := client.CreateAppointment(context.Background(), testCreds, CreateAppointmentRequest{
		TherapistID: "ter-1",
		PatientID:   "pac-1",
		ProductID:   "prod-1",
		ApproachID:  "enf-1",
		Start:       start,
		End:         end,
		Notes:       "first session",
	})
	require.NoError(t, err)
	assert.Equal(t, "cita-9", appt.ID)
	assert.Equal(t, appointment.StatusPending, appt.Status)
	assert.True(t, appt.Start.Equal(start))
}

func TestCreateAppointmentWithoutEchoedRow(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"rows":[{"status":"ok","message":"creada"}]}`))
	})

	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	appt, err := client.CreateAppointment(context.Background(), testCreds, CreateAppointmentRequest{
		TherapistID: "ter-1",
		PatientID:   "pac-1",
		ProductID:   "prod-1",
		ApproachID:  "enf-1",
		Start:       start,
		End:         start.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPending, appt.Status)
	assert.Equal(t, "ter-1", appt.TherapistID)
}
