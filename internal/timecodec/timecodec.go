// Package timecodec converts between canonical UTC instants, IANA-zone
// wall clocks, and fixed-offset timestamp strings.
//
// Two representations are kept deliberately distinct: a UTC instant
// (time.Time, always canonical, the only value ever submitted to the
// backend) and a LocalRendering (zone + wall clock, display-only). A
// LocalRendering is never round-tripped into a submission; converting a
// rendering back to an instant exists only for the legacy availability
// path where the source supplies wall-clock fields instead of instants.
package timecodec

import (
	"fmt"
	"time"
)

const (
	dateLayout    = "2006-01-02"
	clockLayout   = "15:04"
	wallLayout    = dateLayout + " " + clockLayout
	offsetSeconds = 60
)

// LocalRendering is a zone-annotated wall-clock view of an instant.
// It is for display and cross-checking only.
type LocalRendering struct {
	Zone string `json:"zone"` // IANA zone name, e.g. "America/La_Paz"
	Date string `json:"date"` // YYYY-MM-DD
	Time string `json:"time"` // HH:MM
}

// ToLocalClock renders a UTC instant as the wall clock of the given zone.
func ToLocalClock(instant time.Time, zone string) (LocalRendering, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return LocalRendering{}, fmt.Errorf("timecodec: load zone %q: %w", zone, err)
	}
	local := instant.In(loc)
	return LocalRendering{
		Zone: zone,
		Date: local.Format(dateLayout),
		Time: local.Format(clockLayout),
	}, nil
}

// FromLocalClock interprets a rendering in its own zone and returns the
// UTC instant. Slot boundaries are minute-aligned, so the round trip
// through ToLocalClock is exact.
func FromLocalClock(r LocalRendering) (time.Time, error) {
	loc, err := time.LoadLocation(r.Zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("timecodec: load zone %q: %w", r.Zone, err)
	}
	t, err := time.ParseInLocation(wallLayout, r.Date+" "+r.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("timecodec: parse wall clock %q %q: %w", r.Date, r.Time, err)
	}
	return t.UTC(), nil
}

// FixedOffsetTimestamp builds an RFC3339 timestamp from wall-clock fields
// and a fixed offset in minutes from UTC. The offset must be the one of
// the client that produced the wall-clock value, not the therapist's or
// the patient's.
func FixedOffsetTimestamp(localDate, localTime string, offsetMinutes int) (string, error) {
	loc := time.FixedZone("", offsetMinutes*offsetSeconds)
	t, err := time.ParseInLocation(wallLayout, localDate+" "+localTime, loc)
	if err != nil {
		return "", fmt.Errorf("timecodec: parse wall clock %q %q: %w", localDate, localTime, err)
	}
	return t.Format(time.RFC3339), nil
}

// InstantFromWallClock resolves legacy wall-clock fields plus the
// producing client's offset into a canonical UTC instant.
func InstantFromWallClock(localDate, localTime string, offsetMinutes int) (time.Time, error) {
	stamp, err := FixedOffsetTimestamp(localDate, localTime, offsetMinutes)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("timecodec: parse timestamp %q: %w", stamp, err)
	}
	return t.UTC(), nil
}

// ParseInstant parses an RFC3339 timestamp into a canonical UTC instant.
func ParseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timecodec: parse instant %q: %w", s, err)
	}
	return t.UTC(), nil
}

// FormatInstant renders an instant as an RFC3339 UTC timestamp, the only
// form ever sent in a submission.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
