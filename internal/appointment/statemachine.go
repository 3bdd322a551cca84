package appointment

import (
	"fmt"
	"strings"
	"time"
)

// Command is a user-triggered lifecycle action.
type Command string

const (
	CommandConfirm   Command = "confirm"
	CommandReject    Command = "reject"
	CommandReprogram Command = "reprogram"
	CommandMarkDone  Command = "mark-done"
	CommandMarkPaid  Command = "mark-paid"
)

// Channel identifies the portal surface issuing a command. It drives the
// audit suffix appended to the stored reason/notes field.
type Channel string

const (
	ChannelAdmin   Channel = "admin portal"
	ChannelPatient Channel = "patient portal"
)

// IllegalTransitionError reports a (state, command) pair the transition
// table does not allow. No mutation happens when it is returned.
type IllegalTransitionError struct {
	From    Status
	Command Command
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("appointment: %s not allowed in state %s", e.Command, e.From)
}

// ValidationError reports missing or malformed local input. It is never
// sent to the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("appointment: invalid %s: %s", e.Field, e.Reason)
}

// transitions is the exhaustive (state, command) table. MarkPaid keeps
// the current status; Reprogram on a confirmed appointment resets it to
// pending so it requires confirmation again.
var transitions = map[Status]map[Command]Status{
	StatusPending: {
		CommandConfirm:   StatusConfirmed,
		CommandReject:    StatusCancelled,
		CommandReprogram: StatusPending,
		CommandMarkPaid:  StatusPending,
	},
	StatusConfirmed: {
		CommandReject:    StatusCancelled,
		CommandReprogram: StatusPending,
		CommandMarkDone:  StatusDone,
		CommandMarkPaid:  StatusConfirmed,
	},
	StatusDone: {
		CommandMarkPaid: StatusDone,
	},
	StatusCancelled: {},
}

// Guard returns the status an appointment would move to if cmd were
// applied in state current, or an IllegalTransitionError.
func Guard(current Status, cmd Command) (Status, error) {
	next, ok := transitions[current][cmd]
	if !ok {
		return "", &IllegalTransitionError{From: current, Command: cmd}
	}
	return next, nil
}

// Allowed reports whether cmd is legal in state current. Portal action
// menus derive their enablement from this single table.
func Allowed(current Status, cmd Command) bool {
	_, err := Guard(current, cmd)
	return err == nil
}

// auditVerbs maps each command to the verb used in its audit suffix.
var auditVerbs = map[Command]string{
	CommandConfirm:   "confirmed",
	CommandReject:    "rejected",
	CommandReprogram: "rescheduled",
	CommandMarkDone:  "marked done",
	CommandMarkPaid:  "marked paid",
}

// AuditTag returns the fixed suffix identifying the command channel,
// e.g. "(confirmed via admin portal)".
func AuditTag(cmd Command, channel Channel) string {
	return fmt.Sprintf("(%s via %s)", auditVerbs[cmd], channel)
}

// WithAuditTag appends the audit suffix to free text, keeping the suffix
// alone when the text is empty.
func WithAuditTag(text string, cmd Command, channel Channel) string {
	tag := AuditTag(cmd, channel)
	if strings.TrimSpace(text) == "" {
		return tag
	}
	return strings.TrimSpace(text) + " " + tag
}

// Params carries the side-channel fields of a transition command.
type Params struct {
	// Reason is required for Reject; free text.
	Reason string
	// Notes is an optional free-text note for Confirm, MarkDone, MarkPaid.
	Notes string
	// NewStart and NewEnd are required for Reprogram; UTC instants.
	NewStart time.Time
	NewEnd   time.Time
	// Channel identifies the issuing surface for the audit suffix.
	Channel Channel
}

// Validate checks the side-channel requirements of cmd before any
// transition is attempted.
func Validate(cmd Command, p Params) error {
	switch cmd {
	case CommandReject:
		if strings.TrimSpace(p.Reason) == "" {
			return &ValidationError{Field: "reason", Reason: "rejection requires a non-empty reason"}
		}
	case CommandReprogram:
		if p.NewStart.IsZero() || p.NewEnd.IsZero() {
			return &ValidationError{Field: "schedule", Reason: "reprogram requires new start and end"}
		}
		if !p.NewStart.Before(p.NewEnd) {
			return &ValidationError{Field: "schedule", Reason: "start must be before end"}
		}
	}
	return nil
}

// Apply runs cmd against a copy of appt and returns the updated
// appointment. It validates side-channel input, consults the transition
// table, and applies the same deterministic update the backend is
// expected to persist. The input value is never mutated.
func Apply(appt Appointment, cmd Command, p Params) (Appointment, error) {
	if err := Validate(cmd, p); err != nil {
		return Appointment{}, err
	}
	next, err := Guard(appt.Status, cmd)
	if err != nil {
		return Appointment{}, err
	}

	updated := appt
	updated.Status = next
	switch cmd {
	case CommandReject:
		updated.CancellationReason = WithAuditTag(p.Reason, cmd, p.Channel)
	case CommandReprogram:
		updated.Start = p.NewStart.UTC()
		updated.End = p.NewEnd.UTC()
		updated.Notes = WithAuditTag(p.Reason, cmd, p.Channel)
	case CommandMarkPaid:
		updated.Paid = true
		updated.Notes = WithAuditTag(p.Notes, cmd, p.Channel)
	default:
		updated.Notes = WithAuditTag(p.Notes, cmd, p.Channel)
	}
	return updated, nil
}
