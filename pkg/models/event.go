package models

import (
	"encoding/json"
	"time"
)

// Event is a timestamped, duration-bearing record with an opaque payload.
// An ID of 0 means the event has not been assigned a row id yet.
type Event struct {
	ID        int64
	Timestamp time.Time
	Duration  time.Duration
	Data      map[string]any
	TeamID    int64
}

// Endtime returns the instant the event ends at.
func (e *Event) Endtime() time.Time {
	return e.Timestamp.Add(e.Duration)
}

// DataEqual reports whether two event payloads hold exactly the same keys and
// values. Payloads are compared through their canonical JSON encoding, which
// orders keys deterministically.
func (e *Event) DataEqual(other *Event) bool {
	a, err := json.Marshal(e.Data)
	if err != nil {
		return false
	}
	b, err := json.Marshal(other.Data)
	if err != nil {
		return false
	}
	return string(a) == string(b)
}

// eventJSON is the wire shape of an event. Duration travels as seconds,
// matching what watcher clients send.
type eventJSON struct {
	ID        int64          `json:"id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  float64        `json:"duration"`
	Data      map[string]any `json:"data"`
	TeamID    int64          `json:"team_id,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Duration:  e.Duration.Seconds(),
		Data:      e.Data,
		TeamID:    e.TeamID,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(b []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.ID = raw.ID
	e.Timestamp = raw.Timestamp
	e.Duration = time.Duration(raw.Duration * float64(time.Second))
	e.Data = raw.Data
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	e.TeamID = raw.TeamID
	return nil
}
