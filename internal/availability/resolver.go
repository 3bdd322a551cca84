// Package availability resolves bookable slots per therapist, either
// from the prefetched bootstrap map or by an on-demand fetch.
package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vidaplena/clinic-portal/internal/api"
	"github.com/vidaplena/clinic-portal/internal/observability/metrics"
	"github.com/vidaplena/clinic-portal/internal/session"
	"github.com/vidaplena/clinic-portal/internal/timecodec"
	"github.com/vidaplena/clinic-portal/pkg/logging"
)

var tracer = otel.Tracer("clinicportal.internal.availability")

// Slot is an ephemeral bookable slot. Start and End are canonical UTC
// instants; slots are never mutated and are discarded once an
// appointment is created from them.
type Slot struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	TherapistID   string    `json:"therapist_id"`
	TherapistZone string    `json:"therapist_zone"`
}

// TherapistView renders the slot in the therapist's own zone.
func (s Slot) TherapistView() (timecodec.LocalRendering, error) {
	return timecodec.ToLocalClock(s.Start, s.TherapistZone)
}

// PatientView renders the slot in the patient's zone. Selection UI uses
// this; the submission always uses the canonical Start/End instants.
func (s Slot) PatientView(zone string) (timecodec.LocalRendering, error) {
	return timecodec.ToLocalClock(s.Start, zone)
}

// SlotSet distinguishes "known therapist with zero slots" from
// "therapist absent from the bulk map". Only the latter triggers a
// fetch.
type SlotSet struct {
	Slots []Slot
	Known bool
}

// Fetcher is the on-demand availability source, satisfied by api.Client.
type Fetcher interface {
	GetTherapistAvailability(ctx context.Context, creds session.Credentials, therapistID, patientID string) ([]api.SlotPayload, error)
}

// Resolver produces deduplicated, zone-annotated slot lists.
type Resolver struct {
	fetcher Fetcher
	bulk    map[string]SlotSet
	zones   map[string]string
	logger  *logging.Logger
	metrics *metrics.PortalMetrics
}

// NewResolver constructs a resolver with an empty bulk map.
func NewResolver(fetcher Fetcher, logger *logging.Logger, m *metrics.PortalMetrics) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{
		fetcher: fetcher,
		bulk:    map[string]SlotSet{},
		zones:   map[string]string{},
		logger:  logger,
		metrics: m,
	}
}

// PrimeFromBootstrap loads the per-therapist slot map from the bulk
// bootstrap payload. Every therapist present in the map becomes known,
// including those with an empty slot array.
func (r *Resolver) PrimeFromBootstrap(b *api.Bootstrap) error {
	for _, t := range b.Therapists {
		r.zones[t.ID] = t.Zone
	}
	for therapistID, payloads := range b.SchedulesByTherapist {
		slots, err := convertSlots(payloads, therapistID, r.zones[therapistID])
		if err != nil {
			return fmt.Errorf("availability: bootstrap slots for therapist %s: %w", therapistID, err)
		}
		r.bulk[therapistID] = SlotSet{Slots: normalize(slots), Known: true}
	}
	return nil
}

// BulkFor exposes the bulk entry for a therapist.
func (r *Resolver) BulkFor(therapistID string) SlotSet {
	return r.bulk[therapistID]
}

// ListSlots returns the bookable slots for a therapist, deduplicated by
// (start, end) and sorted ascending by start. A known bulk entry, even
// an empty one, short-circuits without a network call; an absent
// therapist triggers an on-demand fetch. On failure the slot list is
// empty and the error is reported; slots are never fabricated.
func (r *Resolver) ListSlots(ctx context.Context, creds session.Credentials, therapistID, patientID string) ([]Slot, error) {
	ctx, span := tracer.Start(ctx, "availability.list_slots")
	defer span.End()
	span.SetAttributes(attribute.String("clinicportal.therapist_id", therapistID))

	if set := r.bulk[therapistID]; set.Known {
		span.SetAttributes(attribute.String("clinicportal.source", "bulk"))
		r.metrics.ObserveAvailabilityLookup("bulk", "ok")
		return set.Slots, nil
	}

	span.SetAttributes(attribute.String("clinicportal.source", "fetch"))
	payloads, err := r.fetcher.GetTherapistAvailability(ctx, creds, therapistID, patientID)
	if err != nil {
		span.RecordError(err)
		r.metrics.ObserveAvailabilityLookup("fetch", "error")
		return nil, err
	}
	slots, err := convertSlots(payloads, therapistID, r.zones[therapistID])
	if err != nil {
		span.RecordError(err)
		r.metrics.ObserveAvailabilityLookup("fetch", "error")
		return nil, fmt.Errorf("availability: slots for therapist %s: %w", therapistID, err)
	}

	normalized := normalize(slots)
	r.bulk[therapistID] = SlotSet{Slots: normalized, Known: true}
	r.metrics.ObserveAvailabilityLookup("fetch", "ok")
	return normalized, nil
}

// convertSlots resolves slot payloads into canonical UTC slots. Legacy
// payloads without instants are resolved through the time codec: the
// producing client's UTC offset when the payload carries one, the
// therapist's zone otherwise.
func convertSlots(payloads []api.SlotPayload, therapistID, therapistZone string) ([]Slot, error) {
	slots := make([]Slot, 0, len(payloads))
	for _, p := range payloads {
		var start, end time.Time
		var err error
		switch {
		case p.HasInstants():
			if start, err = timecodec.ParseInstant(p.Start); err != nil {
				return nil, err
			}
			if end, err = timecodec.ParseInstant(p.End); err != nil {
				return nil, err
			}
		case p.Date != "" && p.StartTime != "" && p.EndTime != "":
			if p.OffsetMin != nil {
				if start, err = timecodec.InstantFromWallClock(p.Date, p.StartTime, *p.OffsetMin); err != nil {
					return nil, err
				}
				if end, err = timecodec.InstantFromWallClock(p.Date, p.EndTime, *p.OffsetMin); err != nil {
					return nil, err
				}
			} else {
				if start, err = timecodec.FromLocalClock(timecodec.LocalRendering{Zone: therapistZone, Date: p.Date, Time: p.StartTime}); err != nil {
					return nil, err
				}
				if end, err = timecodec.FromLocalClock(timecodec.LocalRendering{Zone: therapistZone, Date: p.Date, Time: p.EndTime}); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("availability: slot payload carries neither instants nor wall clock")
		}
		if !start.Before(end) {
			return nil, fmt.Errorf("availability: slot start %s not before end %s", start, end)
		}
		slots = append(slots, Slot{
			Start:         start,
			End:           end,
			TherapistID:   therapistID,
			TherapistZone: therapistZone,
		})
	}
	return slots, nil
}

// normalize deduplicates by (start, end) and sorts ascending by start.
func normalize(slots []Slot) []Slot {
	type key struct{ start, end int64 }
	seen := make(map[key]struct{}, len(slots))
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		k := key{s.Start.Unix(), s.End.Unix()}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].End.Before(out[j].End)
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}
