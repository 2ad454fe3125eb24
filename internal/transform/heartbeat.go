// Package transform holds pure event transformations.
package transform

import (
	"github.com/pulsevault/pulsevault/pkg/models"
)

// Heartbeat merges a new heartbeat into the last event of its bucket, if they
// qualify. Two events merge when the heartbeat does not start before the last
// event, the gap between the last event's end and the heartbeat's start is at
// most pulsetime seconds, and their payloads are exactly equal.
//
// The merged event keeps the last event's id, start and payload; its duration
// is extended to cover whichever of the two events ends last. ok is false
// when the events do not qualify, signalling the caller to insert the
// heartbeat as a separate event.
func Heartbeat(last, heartbeat *models.Event, pulsetime float64) (merged models.Event, ok bool) {
	if heartbeat.Timestamp.Before(last.Timestamp) {
		return models.Event{}, false
	}
	if !last.DataEqual(heartbeat) {
		return models.Event{}, false
	}

	gap := heartbeat.Timestamp.Sub(last.Endtime())
	if gap.Seconds() > pulsetime {
		return models.Event{}, false
	}

	end := last.Endtime()
	if hbEnd := heartbeat.Endtime(); hbEnd.After(end) {
		end = hbEnd
	}

	merged = *last
	merged.Duration = end.Sub(last.Timestamp)
	return merged, true
}
