// Package actions issues appointment lifecycle commands against the
// clinic backend, guarding each one locally first and applying the
// resulting state optimistically to the local appointment list.
package actions

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vidaplena/clinic-portal/internal/api"
	"github.com/vidaplena/clinic-portal/internal/appointment"
	"github.com/vidaplena/clinic-portal/internal/observability/metrics"
	"github.com/vidaplena/clinic-portal/internal/session"
	"github.com/vidaplena/clinic-portal/pkg/logging"
)

var tracer = otel.Tracer("clinicportal.internal.actions")

// Remote is the command surface of the clinic backend, satisfied by
// api.Client.
type Remote interface {
	ListAppointments(ctx context.Context, creds session.Credentials, filter api.ListFilter) ([]appointment.Appointment, error)
	SetAppointmentStatus(ctx context.Context, creds session.Credentials, id string, newStatus appointment.Status, reason string) error
	MarkAppointmentPaid(ctx context.Context, creds session.Credentials, id, note string) error
	RescheduleAppointment(ctx context.Context, creds session.Credentials, id string, newStart, newEnd time.Time, reason string) error
}

// Kind discriminates command outcomes for callers; it is never thrown
// across the HTTP boundary.
type Kind string

const (
	KindOK                Kind = "ok"
	KindValidation        Kind = "validation"
	KindIllegalTransition Kind = "illegal_transition"
	KindInFlight          Kind = "in_flight"
	KindTransport         Kind = "transport"
	KindBusinessRejection Kind = "business_rejection"
)

// Outcome is the discriminated result of one command.
type Outcome struct {
	Kind        Kind
	Appointment *appointment.Appointment // updated copy, only on KindOK
	Message     string                   // user-facing; verbatim backend text on business rejection
	Err         error
}

// Orchestrator executes lifecycle commands. At most one command may be
// in flight per appointment; concurrent duplicates are rejected, never
// sent twice. Every local mutation is optimistic: the remote system is
// the authority and the next read may disagree.
type Orchestrator struct {
	remote  Remote
	channel appointment.Channel
	logger  *logging.Logger
	metrics *metrics.PortalMetrics

	mu       sync.Mutex
	inFlight map[string]struct{}
	list     []appointment.Appointment
}

// NewOrchestrator constructs an orchestrator for one portal surface.
func NewOrchestrator(remote Remote, channel appointment.Channel, logger *logging.Logger, m *metrics.PortalMetrics) *Orchestrator {
	if remote == nil {
		panic("actions: remote required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		remote:   remote,
		channel:  channel,
		logger:   logger,
		metrics:  m,
		inFlight: map[string]struct{}{},
	}
}

// Load replaces the local appointment list from the backend.
func (o *Orchestrator) Load(ctx context.Context, creds session.Credentials, filter api.ListFilter) ([]appointment.Appointment, error) {
	appts, err := o.remote.ListAppointments(ctx, creds, filter)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.list = appts
	o.mu.Unlock()
	return o.Appointments(), nil
}

// Appointments returns a copy of the local list.
func (o *Orchestrator) Appointments() []appointment.Appointment {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]appointment.Appointment, len(o.list))
	copy(out, o.list)
	return out
}

// Get returns the local copy of one appointment.
func (o *Orchestrator) Get(id string) (appointment.Appointment, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, a := range o.list {
		if a.ID == id {
			return a, true
		}
	}
	return appointment.Appointment{}, false
}

// Execute runs one lifecycle command: local guard, remote command with
// an audit-tagged reason, optimistic local apply. No request is sent
// when the guard or validation fails; no local mutation happens when
// the backend rejects.
func (o *Orchestrator) Execute(ctx context.Context, creds session.Credentials, id string, cmd appointment.Command, p appointment.Params) Outcome {
	ctx, span := tracer.Start(ctx, "actions.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinicportal.appointment_id", id),
		attribute.String("clinicportal.command", string(cmd)),
	)
	started := time.Now()
	outcome := o.execute(ctx, creds, id, cmd, p)
	if outcome.Err != nil {
		span.RecordError(outcome.Err)
	}
	span.SetAttributes(attribute.String("clinicportal.outcome", string(outcome.Kind)))
	o.metrics.ObserveCommand(string(cmd), string(outcome.Kind), time.Since(started).Seconds())
	return outcome
}

func (o *Orchestrator) execute(ctx context.Context, creds session.Credentials, id string, cmd appointment.Command, p appointment.Params) Outcome {
	if !o.acquire(id) {
		return Outcome{
			Kind:    KindInFlight,
			Message: "a command for this appointment is already in flight",
		}
	}
	defer o.release(id)

	appt, ok := o.Get(id)
	if !ok {
		return Outcome{
			Kind:    KindValidation,
			Message: "unknown appointment",
			Err:     &appointment.ValidationError{Field: "appointment_id", Reason: "not in the loaded list"},
		}
	}

	if p.Channel == "" {
		p.Channel = o.channel
	}
	updated, err := appointment.Apply(appt, cmd, p)
	if err != nil {
		return classifyLocal(err)
	}

	if err := o.send(ctx, creds, id, cmd, updated, p); err != nil {
		o.logger.Warn("appointment command failed",
			"appointment_id", id, "command", cmd, "error", err)
		return classifyRemote(err)
	}

	o.commit(updated)
	o.logger.Info("appointment command applied",
		"appointment_id", id, "command", cmd, "status", updated.Status)
	return Outcome{Kind: KindOK, Appointment: &updated}
}

// send issues the remote command carrying the audit-tagged side channel.
func (o *Orchestrator) send(ctx context.Context, creds session.Credentials, id string, cmd appointment.Command, updated appointment.Appointment, p appointment.Params) error {
	switch cmd {
	case appointment.CommandReprogram:
		return o.remote.RescheduleAppointment(ctx, creds, id, updated.Start, updated.End, updated.Notes)
	case appointment.CommandMarkPaid:
		return o.remote.MarkAppointmentPaid(ctx, creds, id, updated.Notes)
	case appointment.CommandReject:
		return o.remote.SetAppointmentStatus(ctx, creds, id, updated.Status, updated.CancellationReason)
	default:
		return o.remote.SetAppointmentStatus(ctx, creds, id, updated.Status, updated.Notes)
	}
}

func (o *Orchestrator) acquire(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[id]; busy {
		return false
	}
	o.inFlight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.inFlight, id)
	o.mu.Unlock()
}

func (o *Orchestrator) commit(updated appointment.Appointment) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, a := range o.list {
		if a.ID == updated.ID {
			o.list[i] = updated
			return
		}
	}
	o.list = append(o.list, updated)
}

func classifyLocal(err error) Outcome {
	var verr *appointment.ValidationError
	if errors.As(err, &verr) {
		return Outcome{Kind: KindValidation, Message: verr.Error(), Err: err}
	}
	var illegal *appointment.IllegalTransitionError
	if errors.As(err, &illegal) {
		return Outcome{Kind: KindIllegalTransition, Message: illegal.Error(), Err: err}
	}
	return Outcome{Kind: KindValidation, Message: err.Error(), Err: err}
}

func classifyRemote(err error) Outcome {
	var rejection *api.BusinessRejectionError
	if errors.As(err, &rejection) {
		// Authoritative: surface the backend's message verbatim.
		return Outcome{Kind: KindBusinessRejection, Message: rejection.Message, Err: err}
	}
	var transport *api.TransportError
	if errors.As(err, &transport) {
		return Outcome{Kind: KindTransport, Message: "could not reach the clinic backend", Err: err}
	}
	if errors.Is(err, session.ErrMissingActor) || errors.Is(err, session.ErrMissingToken) {
		return Outcome{Kind: KindValidation, Message: err.Error(), Err: err}
	}
	return Outcome{Kind: KindTransport, Message: "could not reach the clinic backend", Err: err}
}
