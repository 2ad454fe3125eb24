package datastore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pulsevault/pulsevault/pkg/models"
)

// InsertEvents writes the events into the bucket and returns them with their
// assigned row ids. Inserts are insert-or-replace by event id. The bucket's
// cached metadata is extended monotonically after every row. A row-level
// failure aborts mid-batch; rows already written stay written (atomicity is
// only provided by the ambient transaction boundary).
func (inst *Instance) InsertEvents(tx dbtx, bucketID int64, events []models.Event) ([]models.Event, error) {
	bucket, err := inst.GetBucket(bucketID)
	if err != nil {
		return nil, err
	}

	for i := range events {
		event := &events[i]
		startNS := event.Timestamp.UnixNano()
		endNS := startNS + event.Duration.Nanoseconds()
		data, err := json.Marshal(event.Data)
		if err != nil {
			return nil, errInternal("failed to serialize event data: %v", err)
		}
		var id any
		if event.ID != 0 {
			id = event.ID
		}
		res, err := tx.Exec(
			`INSERT OR REPLACE INTO events(bucketrow, id, starttime, endtime, data, team_id)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			bucket.ID, id, startNS, endNS, string(data), event.TeamID,
		)
		if err != nil {
			return nil, errInternal("failed to insert event %+v: %v", event, err)
		}
		inst.updateMetadata(&bucket, event)
		rowid, err := res.LastInsertId()
		if err != nil {
			return nil, errInternal("failed to read inserted event id: %v", err)
		}
		event.ID = rowid
	}
	return events, nil
}

// updateMetadata extends the bucket's cached start/end bounds to cover the
// event, writing the bucket back into the cache only when a bound moved.
func (inst *Instance) updateMetadata(bucket *models.Bucket, event *models.Event) {
	updated := false
	if bucket.Metadata.Start == nil || bucket.Metadata.Start.After(event.Timestamp) {
		t := event.Timestamp
		bucket.Metadata.Start = &t
		updated = true
	}
	endtime := event.Endtime()
	if bucket.Metadata.End == nil || bucket.Metadata.End.Before(endtime) {
		bucket.Metadata.End = &endtime
		updated = true
	}
	if updated {
		cached := *bucket
		inst.buckets[bucket.ID] = &cached
	}
}

// ReplaceLastEvent overwrites the start/end/data of the event with the
// greatest endtime in the bucket. Used by heartbeat coalescing only.
func (inst *Instance) ReplaceLastEvent(tx dbtx, bucketID int64, event *models.Event) error {
	bucket, err := inst.GetBucket(bucketID)
	if err != nil {
		return err
	}
	startNS := event.Timestamp.UnixNano()
	endNS := startNS + event.Duration.Nanoseconds()
	data, err := json.Marshal(event.Data)
	if err != nil {
		return errInternal("failed to serialize event data: %v", err)
	}
	if _, err := tx.Exec(
		`UPDATE events
		 SET starttime = ?, endtime = ?, data = ?
		 WHERE bucketrow = ?
		   AND endtime = (SELECT max(endtime) FROM events WHERE bucketrow = ?)`,
		startNS, endNS, string(data), bucket.ID, bucket.ID,
	); err != nil {
		return errInternal("failed to execute replace_last_event statement: %v", err)
	}
	inst.updateMetadata(&bucket, event)
	return nil
}

// GetEvent returns a single event by id, scoped to the bucket.
func (inst *Instance) GetEvent(tx dbtx, bucketID, eventID int64) (models.Event, error) {
	bucket, err := inst.GetBucket(bucketID)
	if err != nil {
		return models.Event{}, err
	}
	row := tx.QueryRow(
		`SELECT id, starttime, endtime, data FROM events
		 WHERE bucketrow = ? AND id = ? LIMIT 1`,
		bucket.ID, eventID,
	)
	event, err := scanEvent(row.Scan, 0, math.MaxInt64)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Event{}, errNoSuchEvent(bucketID, eventID)
		}
		if errors.Is(err, ErrInternal) {
			return models.Event{}, err
		}
		return models.Event{}, errInternal("failed to map get_event statement: %v", err)
	}
	return event, nil
}

// GetEvents returns events overlapping [start, end] in descending start
// order. Events spanning outside the window are clipped to it. A reversed
// window is empty, not an error. limit <= 0 means unbounded.
func (inst *Instance) GetEvents(tx dbtx, bucketID int64, start, end *time.Time, limit int) ([]models.Event, error) {
	return inst.queryEvents(tx, bucketID, start, end, limit, nil)
}

// GetTeamEvents behaves like GetEvents but only returns events tagged with
// the given team.
func (inst *Instance) GetTeamEvents(tx dbtx, bucketID int64, start, end *time.Time, limit int, teamID int64) ([]models.Event, error) {
	return inst.queryEvents(tx, bucketID, start, end, limit, &teamID)
}

func (inst *Instance) queryEvents(tx dbtx, bucketID int64, start, end *time.Time, limit int, teamID *int64) ([]models.Event, error) {
	bucket, err := inst.GetBucket(bucketID)
	if err != nil {
		return nil, err
	}

	startNS, endNS := windowNanos(start, end)
	if startNS > endNS {
		log.Warn().Int64("bucket", bucketID).Msg("event query window has start after end")
		return []models.Event{}, nil
	}
	if limit <= 0 {
		limit = -1
	}

	var rows *sql.Rows
	if teamID != nil {
		rows, err = tx.Query(
			`SELECT id, starttime, endtime, data FROM events
			 WHERE bucketrow = ? AND endtime >= ? AND starttime <= ? AND team_id = ?
			 ORDER BY starttime DESC LIMIT ?`,
			bucket.ID, startNS, endNS, *teamID, limit,
		)
	} else {
		rows, err = tx.Query(
			`SELECT id, starttime, endtime, data FROM events
			 WHERE bucketrow = ? AND endtime >= ? AND starttime <= ?
			 ORDER BY starttime DESC LIMIT ?`,
			bucket.ID, startNS, endNS, limit,
		)
	}
	if err != nil {
		return nil, errInternal("failed to query events: %v", err)
	}
	defer rows.Close()

	list := []models.Event{}
	for rows.Next() {
		event, err := scanEvent(rows.Scan, startNS, endNS)
		if err != nil {
			// Corrupt rows are skipped on event reads, unlike the
			// startup bucket scan.
			log.Warn().Int64("bucket", bucketID).Err(err).Msg("corrupt event row")
			continue
		}
		list = append(list, event)
	}
	if err := rows.Err(); err != nil {
		return nil, errInternal("failed to iterate events: %v", err)
	}
	return list, nil
}

// GetEventCount counts events overlapping [start, end]. A window with
// start >= end yields 0 immediately.
func (inst *Instance) GetEventCount(tx dbtx, bucketID int64, start, end *time.Time) (int64, error) {
	bucket, err := inst.GetBucket(bucketID)
	if err != nil {
		return 0, err
	}
	startNS, endNS := windowNanos(start, end)
	if startNS >= endNS {
		log.Warn().Int64("bucket", bucketID).Msg("event count window has end at or before start")
		return 0, nil
	}
	var count int64
	if err := tx.QueryRow(
		`SELECT count(*) FROM events
		 WHERE bucketrow = ? AND endtime >= ? AND starttime <= ?`,
		bucket.ID, startNS, endNS,
	).Scan(&count); err != nil {
		return 0, errInternal("failed to query event count: %v", err)
	}
	return count, nil
}

// DeleteEventsByID deletes each event id scoped to the bucket. A failure
// aborts the batch, leaving prior deletions applied.
func (inst *Instance) DeleteEventsByID(tx dbtx, bucketID int64, eventIDs []int64) error {
	bucket, err := inst.GetBucket(bucketID)
	if err != nil {
		return err
	}
	for _, id := range eventIDs {
		if _, err := tx.Exec(
			`DELETE FROM events WHERE bucketrow = ? AND id = ?`,
			bucket.ID, id,
		); err != nil {
			return errInternal("failed to delete event %d in bucket %d: %v", id, bucketID, err)
		}
	}
	return nil
}

// windowNanos resolves an optional query window to nanosecond bounds, with
// [epoch, +inf] as the default.
func windowNanos(start, end *time.Time) (int64, int64) {
	startNS := int64(0)
	if start != nil {
		startNS = start.UnixNano()
	}
	endNS := int64(math.MaxInt64)
	if end != nil {
		endNS = end.UnixNano()
	}
	return startNS, endNS
}

// scanEvent maps an event row, clipping the reported start/duration to the
// query window.
func scanEvent(scan func(dest ...any) error, startFilterNS, endFilterNS int64) (models.Event, error) {
	var (
		id      int64
		startNS int64
		endNS   int64
		dataStr string
	)
	if err := scan(&id, &startNS, &endNS, &dataStr); err != nil {
		return models.Event{}, err
	}
	if startNS < startFilterNS {
		startNS = startFilterNS
	}
	if endNS > endFilterNS {
		endNS = endFilterNS
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(dataStr), &data); err != nil {
		return models.Event{}, errInternal("failed to parse event data: %v", err)
	}
	return models.Event{
		ID:        id,
		Timestamp: nanosToTime(startNS),
		Duration:  time.Duration(endNS - startNS),
		Data:      data,
	}, nil
}
