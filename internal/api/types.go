package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vidaplena/clinic-portal/internal/appointment"
	"github.com/vidaplena/clinic-portal/internal/timecodec"
)

// envelope is the command response shape of the clinic backend:
// { ok, rows: [ { status, message, data } ], message? }.
type envelope struct {
	OK      bool   `json:"ok"`
	Rows    []row  `json:"rows"`
	Message string `json:"message,omitempty"`
}

type row struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// firstData returns the data field of the first ok row, or nil when the
// envelope carries no payload.
func (e *envelope) firstData() json.RawMessage {
	for _, r := range e.Rows {
		if r.Status == "ok" && len(r.Data) > 0 {
			return r.Data
		}
	}
	return nil
}

// rejection returns the backend's own message when the envelope reports
// a business failure, and ok=false otherwise.
func (e *envelope) rejection() (string, bool) {
	for _, r := range e.Rows {
		if r.Status == "error" {
			if r.Message != "" {
				return r.Message, true
			}
			break
		}
	}
	if !e.OK {
		if e.Message != "" {
			return e.Message, true
		}
		return "command rejected", true
	}
	return "", false
}

// Product is a bookable service offering (producto).
type Product struct {
	ID                string `json:"id"`
	Name              string `json:"nombre"`
	DefaultApproachID string `json:"enfoque_por_defecto,omitempty"`
	DurationMin       int    `json:"duracion_min,omitempty"`
}

// Approach is a therapeutic approach (enfoque) selectable per appointment.
type Approach struct {
	ID   string `json:"id"`
	Name string `json:"nombre"`
}

// Therapist is a professional (terapeuta) with a home IANA timezone.
type Therapist struct {
	ID   string `json:"id"`
	Name string `json:"nombre"`
	Zone string `json:"zona_horaria"`
}

// SlotPayload is a bookable slot as the backend ships it. Newer payloads
// carry RFC3339 instants; legacy payloads carry wall-clock fields plus
// the producing client's UTC offset in minutes.
type SlotPayload struct {
	Start string `json:"inicio,omitempty"`
	End   string `json:"fin,omitempty"`

	Date      string `json:"fecha,omitempty"`
	StartTime string `json:"hora_inicio,omitempty"`
	EndTime   string `json:"hora_fin,omitempty"`
	OffsetMin *int   `json:"utc_offset_min,omitempty"`
}

// HasInstants reports whether the payload carries explicit instants.
func (p SlotPayload) HasInstants() bool {
	return p.Start != "" && p.End != ""
}

// Bootstrap is the bulk payload prefetched at wizard start, used to
// avoid N+1 fetches.
type Bootstrap struct {
	Products             []Product                `json:"productos"`
	Approaches           []Approach               `json:"enfoques"`
	Therapists           []Therapist              `json:"terapeutas"`
	SchedulesByTherapist map[string][]SlotPayload `json:"horarios_disponibles_por_terapeuta,omitempty"`
}

// TherapistByID returns the therapist entry for id, if present.
func (b *Bootstrap) TherapistByID(id string) (Therapist, bool) {
	for _, t := range b.Therapists {
		if t.ID == id {
			return t, true
		}
	}
	return Therapist{}, false
}

// ProductByID returns the product entry for id, if present.
func (b *Bootstrap) ProductByID(id string) (Product, bool) {
	for _, p := range b.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// ApproachByID returns the approach entry for id, if present.
func (b *Bootstrap) ApproachByID(id string) (Approach, bool) {
	for _, a := range b.Approaches {
		if a.ID == id {
			return a, true
		}
	}
	return Approach{}, false
}

// Wire status values used by the backend. "pagada" is not a lifecycle
// state: the backend treats it as a toggle on the orthogonal paid flag.
const (
	wireStatusPending   = "pendiente"
	wireStatusConfirmed = "confirmada"
	wireStatusDone      = "realizada"
	wireStatusCancelled = "cancelada"
	wireStatusPaid      = "pagada"
)

func statusToWire(s appointment.Status) (string, error) {
	switch s {
	case appointment.StatusPending:
		return wireStatusPending, nil
	case appointment.StatusConfirmed:
		return wireStatusConfirmed, nil
	case appointment.StatusDone:
		return wireStatusDone, nil
	case appointment.StatusCancelled:
		return wireStatusCancelled, nil
	}
	return "", fmt.Errorf("api: unknown status %q", s)
}

func statusFromWire(s string) (appointment.Status, error) {
	switch s {
	case wireStatusPending:
		return appointment.StatusPending, nil
	case wireStatusConfirmed:
		return appointment.StatusConfirmed, nil
	case wireStatusDone:
		return appointment.StatusDone, nil
	case wireStatusCancelled:
		return appointment.StatusCancelled, nil
	}
	return "", fmt.Errorf("api: unknown wire status %q", s)
}

// appointmentPayload is the backend's appointment row.
type appointmentPayload struct {
	ID                string `json:"id"`
	Estado            string `json:"estado"`
	Pagada            bool   `json:"pagada"`
	Inicio            string `json:"inicio"`
	Fin               string `json:"fin"`
	TerapeutaID       string `json:"terapeuta_id"`
	PacienteID        string `json:"paciente_id"`
	ProductoID        string `json:"producto_id"`
	EnfoqueID         string `json:"enfoque_id"`
	Notas             string `json:"notas,omitempty"`
	MotivoCancelacion string `json:"motivo_cancelacion,omitempty"`
	CreadoEn          string `json:"creado_en"`
}

func (p appointmentPayload) toDomain() (appointment.Appointment, error) {
	status, err := statusFromWire(p.Estado)
	if err != nil {
		return appointment.Appointment{}, err
	}
	start, err := timecodec.ParseInstant(p.Inicio)
	if err != nil {
		return appointment.Appointment{}, err
	}
	end, err := timecodec.ParseInstant(p.Fin)
	if err != nil {
		return appointment.Appointment{}, err
	}
	var createdAt time.Time
	if p.CreadoEn != "" {
		if createdAt, err = timecodec.ParseInstant(p.CreadoEn); err != nil {
			return appointment.Appointment{}, err
		}
	}
	return appointment.Appointment{
		ID:                 p.ID,
		Status:             status,
		Paid:               p.Pagada,
		Start:              start,
		End:                end,
		TherapistID:        p.TerapeutaID,
		PatientID:          p.PacienteID,
		ProductID:          p.ProductoID,
		ApproachID:         p.EnfoqueID,
		Notes:              p.Notas,
		CancellationReason: p.MotivoCancelacion,
		CreatedAt:          createdAt,
	}, nil
}

// ListFilter narrows a listAppointments query. Zero values are omitted.
type ListFilter struct {
	TherapistID string
	PatientID   string
	From        time.Time
	To          time.Time
}

// CreateAppointmentRequest is the submission payload built by the
// booking wizard. Start and End are canonical UTC instants.
type CreateAppointmentRequest struct {
	TherapistID string
	PatientID   string
	ProductID   string
	ApproachID  string
	Start       time.Time
	End         time.Time
	Notes       string
}
