// Package api is the JSON-over-HTTP client for the clinic backend's
// command API. One typed decoder per endpoint; unrecognized shapes are
// decode errors, never silently falsy.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidaplena/clinic-portal/internal/appointment"
	"github.com/vidaplena/clinic-portal/internal/session"
	"github.com/vidaplena/clinic-portal/internal/timecodec"
	"github.com/vidaplena/clinic-portal/pkg/logging"
)

const (
	defaultTimeout = 15 * time.Second
	commandPath    = "/api/comando"
)

// Client issues commands against the clinic backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logging.Logger
}

// New constructs a clinic API client. The timeout applies to every
// command; a timed-out command surfaces as a TransportError.
func New(baseURL string, timeout time.Duration, logger *logging.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// commandRequest is the common RPC envelope: every command names itself
// and carries the acting user plus session token.
type commandRequest struct {
	Command string         `json:"comando"`
	Actor   string         `json:"actor"`
	Session string         `json:"sesion"`
	Data    map[string]any `json:"datos,omitempty"`
}

// ListAppointments returns the appointments visible to the actor.
func (c *Client) ListAppointments(ctx context.Context, creds session.Credentials, filter ListFilter) ([]appointment.Appointment, error) {
	const op = "citas.listar"
	data := map[string]any{}
	if filter.TherapistID != "" {
		data["terapeuta_id"] = filter.TherapistID
	}
	if filter.PatientID != "" {
		data["paciente_id"] = filter.PatientID
	}
	if !filter.From.IsZero() {
		data["desde"] = timecodec.FormatInstant(filter.From)
	}
	if !filter.To.IsZero() {
		data["hasta"] = timecodec.FormatInstant(filter.To)
	}

	env, err := c.command(ctx, creds, op, data)
	if err != nil {
		return nil, err
	}

	var payloads []appointmentPayload
	if raw := env.firstData(); raw != nil {
		if err := json.Unmarshal(raw, &payloads); err != nil {
			return nil, &TransportError{Op: op, Err: fmt.Errorf("decode appointments: %w", err)}
		}
	}
	out := make([]appointment.Appointment, 0, len(payloads))
	for _, p := range payloads {
		appt, err := p.toDomain()
		if err != nil {
			return nil, &TransportError{Op: op, Err: err}
		}
		out = append(out, appt)
	}
	return out, nil
}

// SetAppointmentStatus moves an appointment to a new lifecycle state.
func (c *Client) SetAppointmentStatus(ctx context.Context, creds session.Credentials, id string, newStatus appointment.Status, reason string) error {
	const op = "citas.cambiar_estado"
	wire, err := statusToWire(newStatus)
	if err != nil {
		return err
	}
	_, err = c.command(ctx, creds, op, map[string]any{
		"cita_id": id,
		"estado":  wire,
		"motivo":  reason,
	})
	return err
}

// MarkAppointmentPaid toggles the orthogonal paid flag. The backend
// models this as the "pagada" pseudo-state of the same command.
func (c *Client) MarkAppointmentPaid(ctx context.Context, creds session.Credentials, id, note string) error {
	const op = "citas.cambiar_estado"
	_, err := c.command(ctx, creds, op, map[string]any{
		"cita_id": id,
		"estado":  wireStatusPaid,
		"motivo":  note,
	})
	return err
}

// RescheduleAppointment moves an appointment to a new start/end.
func (c *Client) RescheduleAppointment(ctx context.Context, creds session.Credentials, id string, newStart, newEnd time.Time, reason string) error {
	const op = "citas.reprogramar"
	_, err := c.command(ctx, creds, op, map[string]any{
		"cita_id": id,
		"inicio":  timecodec.FormatInstant(newStart),
		"fin":     timecodec.FormatInstant(newEnd),
		"motivo":  reason,
	})
	return err
}

// GetBookingBootstrap fetches the bulk wizard payload: products,
// approaches, therapists, and optionally the per-therapist slot map.
func (c *Client) GetBookingBootstrap(ctx context.Context, creds session.Credentials, includeSchedules bool) (*Bootstrap, error) {
	const op = "reservas.bootstrap"
	env, err := c.command(ctx, creds, op, map[string]any{
		"incluir_horarios": includeSchedules,
	})
	if err != nil {
		return nil, err
	}
	raw := env.firstData()
	if raw == nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("bootstrap payload missing")}
	}
	var b Bootstrap
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("decode bootstrap: %w", err)}
	}
	return &b, nil
}

// GetTherapistAvailability fetches bookable slots for one therapist.
func (c *Client) GetTherapistAvailability(ctx context.Context, creds session.Credentials, therapistID, patientID string) ([]SlotPayload, error) {
	const op = "reservas.disponibilidad"
	env, err := c.command(ctx, creds, op, map[string]any{
		"terapeuta_id": therapistID,
		"paciente_id":  patientID,
	})
	if err != nil {
		return nil, err
	}
	var slots []SlotPayload
	if raw := env.firstData(); raw != nil {
		if err := json.Unmarshal(raw, &slots); err != nil {
			return nil, &TransportError{Op: op, Err: fmt.Errorf("decode slots: %w", err)}
		}
	}
	return slots, nil
}

// CreateAppointment submits a booking. The returned appointment is the
// backend's row when it ships one, otherwise the submission echoed back
// in the initial pending state.
func (c *Client) CreateAppointment(ctx context.Context, creds session.Credentials, req CreateAppointmentRequest) (*appointment.Appointment, error) {
	const op = "citas.crear"
	env, err := c.command(ctx, creds, op, map[string]any{
		"terapeuta_id": req.TherapistID,
		"paciente_id":  req.PatientID,
		"producto_id":  req.ProductID,
		"enfoque_id":   req.ApproachID,
		"inicio":       timecodec.FormatInstant(req.Start),
		"fin":          timecodec.FormatInstant(req.End),
		"notas":        req.Notes,
	})
	if err != nil {
		return nil, err
	}

	if raw := env.firstData(); raw != nil {
		var p appointmentPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &TransportError{Op: op, Err: fmt.Errorf("decode created appointment: %w", err)}
		}
		appt, err := p.toDomain()
		if err != nil {
			return nil, &TransportError{Op: op, Err: err}
		}
		return &appt, nil
	}

	created := appointment.Appointment{
		Status:      appointment.StatusPending,
		Start:       req.Start.UTC(),
		End:         req.End.UTC(),
		TherapistID: req.TherapistID,
		PatientID:   req.PatientID,
		ProductID:   req.ProductID,
		ApproachID:  req.ApproachID,
		Notes:       req.Notes,
		CreatedAt:   time.Now().UTC(),
	}
	return &created, nil
}

// command runs one RPC round trip: precondition check, POST, envelope
// decode, business-rejection extraction.
func (c *Client) command(ctx context.Context, creds session.Credentials, name string, data map[string]any) (*envelope, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(commandRequest{
		Command: name,
		Actor:   creds.Actor,
		Session: creds.Token,
		Data:    data,
	})
	if err != nil {
		return nil, &TransportError{Op: name, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+commandPath, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: name, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: name, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: name, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		c.logger.Warn("clinic API non-2xx response", "command", name, "status", resp.StatusCode, "body", msg)
		return nil, &TransportError{Op: name, Err: fmt.Errorf("status %d: %s", resp.StatusCode, msg)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, &TransportError{Op: name, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if msg, rejected := env.rejection(); rejected {
		return nil, &BusinessRejectionError{Op: name, Message: msg}
	}
	return &env, nil
}
