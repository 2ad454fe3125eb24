package datastore

import (
	"github.com/rs/zerolog/log"

	"github.com/pulsevault/pulsevault/internal/transform"
	"github.com/pulsevault/pulsevault/pkg/models"
)

// Heartbeat merges the event into the bucket's most recent event when the
// merge policy allows, otherwise inserts it as a new row. lastHeartbeat is
// the worker-owned per-bucket cache of the most recent heartbeat result; it
// exists so sub-second watcher ticks do not cost a storage round-trip each.
func (inst *Instance) Heartbeat(tx dbtx, bucketID int64, heartbeat models.Event, pulsetime float64, lastHeartbeat map[int64]*models.Event) (models.Event, error) {
	if _, err := inst.GetBucket(bucketID); err != nil {
		return models.Event{}, err
	}

	last := lastHeartbeat[bucketID]
	if last == nil {
		// Not cached; the single most recent event in storage is the
		// merge candidate.
		events, err := inst.GetEvents(tx, bucketID, nil, nil, 1)
		if err != nil {
			return models.Event{}, err
		}
		if len(events) == 0 {
			// First event in the bucket: insert and return, no merge.
			inserted, err := inst.InsertEvents(tx, bucketID, []models.Event{heartbeat})
			if err != nil {
				return models.Event{}, err
			}
			result := inserted[0]
			lastHeartbeat[bucketID] = &result
			return result, nil
		}
		last = &events[0]
	}

	result := heartbeat
	if merged, ok := transform.Heartbeat(last, &heartbeat, pulsetime); ok {
		log.Debug().Int64("bucket", bucketID).Msg("merged heartbeat")
		if err := inst.ReplaceLastEvent(tx, bucketID, &merged); err != nil {
			return models.Event{}, err
		}
		result = merged
	} else {
		log.Debug().Int64("bucket", bucketID).Msg("heartbeat not mergeable, inserting")
		inserted, err := inst.InsertEvents(tx, bucketID, []models.Event{heartbeat})
		if err != nil {
			return models.Event{}, err
		}
		result = inserted[0]
	}
	lastHeartbeat[bucketID] = &result
	return result, nil
}
