package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// StoredTimeLayout is the textual layout used by backends that persist timestamps as text.
const StoredTimeLayout = "2006-01-02 15:04:05.000"

var timestampLayouts = []string{
	StoredTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

type timestampState uint8

const (
	timestampAbsent timestampState = iota
	timestampValid
	timestampMalformed
)

// Timestamp is an optional persisted instant. A value that exists in storage but
// cannot be parsed is kept as malformed: it is present, yet satisfies no time rule.
type Timestamp struct {
	at    time.Time
	raw   string
	state timestampState
}

// At wraps a valid instant.
func At(t time.Time) Timestamp {
	return Timestamp{at: t.UTC(), state: timestampValid}
}

// AtPtr wraps an optional instant, treating nil as absent.
func AtPtr(t *time.Time) Timestamp {
	if t == nil {
		return Timestamp{}
	}
	return At(*t)
}

// ParseTimestamp parses stored text. Empty input is absent; unparseable input is malformed.
func ParseTimestamp(raw string) Timestamp {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Timestamp{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return At(t)
		}
	}
	return Timestamp{raw: trimmed, state: timestampMalformed}
}

// Present reports whether storage holds any value, parseable or not.
func (t Timestamp) Present() bool {
	return t.state != timestampAbsent
}

// Malformed reports whether the stored value could not be parsed.
func (t Timestamp) Malformed() bool {
	return t.state == timestampMalformed
}

// Time returns the instant and true only when the value is present and valid.
func (t Timestamp) Time() (time.Time, bool) {
	if t.state != timestampValid {
		return time.Time{}, false
	}
	return t.at, true
}

// Ptr returns the instant as a pointer, nil unless valid.
func (t Timestamp) Ptr() *time.Time {
	if t.state != timestampValid {
		return nil
	}
	at := t.at
	return &at
}

// String formats the value for storage. Malformed values round-trip unchanged.
func (t Timestamp) String() string {
	switch t.state {
	case timestampValid:
		return t.at.Format(StoredTimeLayout)
	case timestampMalformed:
		return t.raw
	default:
		return ""
	}
}

// MarshalJSON renders null, an RFC 3339 instant, or the raw malformed text.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	switch t.state {
	case timestampValid:
		return json.Marshal(t.at.Format(time.RFC3339Nano))
	case timestampMalformed:
		return json.Marshal(t.raw)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null as absent and parses strings with ParseTimestamp,
// so malformed text stays malformed.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = ParseTimestamp(raw)
	return nil
}
