// Package appointment holds the appointment (cita) model and the pure
// lifecycle decision logic shared by the portal surfaces.
package appointment

import "time"

// Status is the lifecycle state of an appointment. States are mutually
// exclusive; Status is the single source of truth for lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// Appointment is a booked session between a patient and a therapist.
// Start and End are UTC instants; every local-time rendering is a view,
// never the stored value. Paid is a billing fact orthogonal to Status.
type Appointment struct {
	ID          string    `json:"id"`
	Status      Status    `json:"status"`
	Paid        bool      `json:"paid"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TherapistID string    `json:"therapist_id"`
	PatientID   string    `json:"patient_id"`
	ProductID   string    `json:"product_id"`
	ApproachID  string    `json:"approach_id"`

	Notes              string `json:"notes,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
