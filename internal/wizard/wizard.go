// Package wizard drives the patient-facing booking flow: a linear,
// gated selection of service, approach, therapist, and slot, ending in
// a submission built from canonical UTC instants.
package wizard

import (
	"context"
	"fmt"
	"strings"

	"github.com/vidaplena/clinic-portal/internal/api"
	"github.com/vidaplena/clinic-portal/internal/appointment"
	"github.com/vidaplena/clinic-portal/internal/availability"
	"github.com/vidaplena/clinic-portal/internal/session"
)

// Step is a position in the booking flow. Step n+1 is reachable only
// once step n's selection is non-nil.
type Step int

const (
	StepService Step = iota + 1
	StepApproach
	StepTherapist
	StepSlot
	StepConfirm
)

func (s Step) String() string {
	switch s {
	case StepService:
		return "service"
	case StepApproach:
		return "approach"
	case StepTherapist:
		return "therapist"
	case StepSlot:
		return "slot"
	case StepConfirm:
		return "confirm"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// GateError reports a selection attempted before its prerequisite step
// was completed.
type GateError struct {
	Attempted Step
	Required  Step
}

func (e *GateError) Error() string {
	return fmt.Sprintf("wizard: %s requires completing %s first", e.Attempted, e.Required)
}

// SelectionError reports a selection that does not exist in the catalog.
type SelectionError struct {
	Step Step
	ID   string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("wizard: unknown %s %q", e.Step, e.ID)
}

// IncompleteSelectionError reports a submission attempted before every
// step was completed. It is raised locally; the remote API is not
// called.
type IncompleteSelectionError struct {
	Missing []Step
}

func (e *IncompleteSelectionError) Error() string {
	names := make([]string, len(e.Missing))
	for i, s := range e.Missing {
		names[i] = s.String()
	}
	return "wizard: incomplete selection, missing " + strings.Join(names, ", ")
}

// SlotLister resolves bookable slots, satisfied by availability.Resolver.
type SlotLister interface {
	ListSlots(ctx context.Context, creds session.Credentials, therapistID, patientID string) ([]availability.Slot, error)
}

// Creator submits the booking, satisfied by api.Client.
type Creator interface {
	CreateAppointment(ctx context.Context, creds session.Credentials, req api.CreateAppointmentRequest) (*appointment.Appointment, error)
}

// Wizard holds the in-progress selection state for one patient.
type Wizard struct {
	catalog *api.Bootstrap
	slots   SlotLister
	creator Creator

	patientID   string
	patientZone string

	product   *api.Product
	approach  *api.Approach
	therapist *api.Therapist
	slot      *availability.Slot
	notes     string
}

// New starts a wizard over a catalog (the bootstrap payload).
func New(catalog *api.Bootstrap, slots SlotLister, creator Creator, patientID, patientZone string) *Wizard {
	return &Wizard{
		catalog:     catalog,
		slots:       slots,
		creator:     creator,
		patientID:   patientID,
		patientZone: patientZone,
	}
}

// Step returns the first step still awaiting a selection, or
// StepConfirm when everything before it is complete.
func (w *Wizard) Step() Step {
	switch {
	case w.product == nil:
		return StepService
	case w.approach == nil:
		return StepApproach
	case w.therapist == nil:
		return StepTherapist
	case w.slot == nil:
		return StepSlot
	}
	return StepConfirm
}

// SelectProduct chooses the service and clears every downstream
// selection so no stale cross-combination survives. When the product
// configures a default approach present in the catalog, it is
// preselected.
func (w *Wizard) SelectProduct(id string) error {
	p, ok := w.catalog.ProductByID(id)
	if !ok {
		return &SelectionError{Step: StepService, ID: id}
	}
	w.product = &p
	w.approach = nil
	w.therapist = nil
	w.slot = nil
	w.notes = ""

	if p.DefaultApproachID != "" {
		if a, ok := w.catalog.ApproachByID(p.DefaultApproachID); ok {
			w.approach = &a
		}
	}
	return nil
}

// SelectApproach chooses the therapeutic approach. Requires a product;
// clears therapist and slot.
func (w *Wizard) SelectApproach(id string) error {
	if w.product == nil {
		return &GateError{Attempted: StepApproach, Required: StepService}
	}
	a, ok := w.catalog.ApproachByID(id)
	if !ok {
		return &SelectionError{Step: StepApproach, ID: id}
	}
	w.approach = &a
	w.therapist = nil
	w.slot = nil
	w.notes = ""
	return nil
}

// SelectTherapist chooses the therapist. Requires an approach; clears
// the slot.
func (w *Wizard) SelectTherapist(id string) error {
	if w.product == nil {
		return &GateError{Attempted: StepTherapist, Required: StepService}
	}
	if w.approach == nil {
		return &GateError{Attempted: StepTherapist, Required: StepApproach}
	}
	t, ok := w.catalog.TherapistByID(id)
	if !ok {
		return &SelectionError{Step: StepTherapist, ID: id}
	}
	w.therapist = &t
	w.slot = nil
	w.notes = ""
	return nil
}

// SlotView pairs a slot with its simultaneous patient-local and
// therapist-local renderings.
type SlotView struct {
	Slot      availability.Slot
	Patient   string // patient-local, for selection
	Therapist string // therapist-local, for cross-checking
}

// Slots lists the bookable slots for the chosen therapist, rendered in
// the patient's zone and, when it differs, the therapist's zone.
func (w *Wizard) Slots(ctx context.Context, creds session.Credentials) ([]SlotView, error) {
	if w.therapist == nil {
		return nil, &GateError{Attempted: StepSlot, Required: StepTherapist}
	}
	slots, err := w.slots.ListSlots(ctx, creds, w.therapist.ID, w.patientID)
	if err != nil {
		return nil, err
	}
	views := make([]SlotView, 0, len(slots))
	for _, s := range slots {
		patient, err := s.PatientView(w.patientZone)
		if err != nil {
			return nil, err
		}
		view := SlotView{Slot: s, Patient: patient.Date + " " + patient.Time}
		if s.TherapistZone != "" && s.TherapistZone != w.patientZone {
			therapist, err := s.TherapistView()
			if err != nil {
				return nil, err
			}
			view.Therapist = therapist.Date + " " + therapist.Time
		}
		views = append(views, view)
	}
	return views, nil
}

// SelectSlot chooses a slot for the chosen therapist.
func (w *Wizard) SelectSlot(s availability.Slot) error {
	if w.therapist == nil {
		return &GateError{Attempted: StepSlot, Required: StepTherapist}
	}
	if s.TherapistID != "" && s.TherapistID != w.therapist.ID {
		return &SelectionError{Step: StepSlot, ID: s.TherapistID}
	}
	if s.Start.IsZero() || s.End.IsZero() || !s.Start.Before(s.End) {
		return &SelectionError{Step: StepSlot, ID: "invalid instants"}
	}
	w.slot = &s
	return nil
}

// SetNotes records the optional free-text note collected at the
// confirmation step.
func (w *Wizard) SetNotes(notes string) {
	w.notes = notes
}

// Submit builds the create command and sends it. The submitted start
// and end are the slot's canonical UTC instants, never a recomputed
// local string. Fails with IncompleteSelectionError before any network
// call when a selection is missing.
func (w *Wizard) Submit(ctx context.Context, creds session.Credentials) (*appointment.Appointment, error) {
	var missing []Step
	if w.product == nil {
		missing = append(missing, StepService)
	}
	if w.approach == nil {
		missing = append(missing, StepApproach)
	}
	if w.therapist == nil {
		missing = append(missing, StepTherapist)
	}
	if w.slot == nil {
		missing = append(missing, StepSlot)
	}
	if len(missing) > 0 {
		return nil, &IncompleteSelectionError{Missing: missing}
	}

	return w.creator.CreateAppointment(ctx, creds, api.CreateAppointmentRequest{
		TherapistID: w.therapist.ID,
		PatientID:   w.patientID,
		ProductID:   w.product.ID,
		ApproachID:  w.approach.ID,
		Start:       w.slot.Start,
		End:         w.slot.End,
		Notes:       w.notes,
	})
}
