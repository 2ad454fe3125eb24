package datastore

import (
	"encoding/json"
	"errors"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/pulsevault/pulsevault/pkg/models"
)

// CreateBucket inserts a bucket and returns its row id. Creation is
// idempotent per (user, type): if such a bucket already exists its id is
// returned unchanged. Inline events on the bucket are inserted through the
// regular event path and never cached.
func (inst *Instance) CreateBucket(tx dbtx, bucket models.Bucket) (int64, error) {
	if bucket.Created.IsZero() {
		bucket.Created = time.Now().UTC()
	}

	if id, ok := inst.lookupBucketID(tx, bucket.UserID, bucket.Type); ok {
		return id, nil
	}

	data, err := json.Marshal(bucket.Data)
	if err != nil {
		return 0, errInternal("failed to serialize bucket data: %v", err)
	}
	res, err := tx.Exec(
		`INSERT INTO buckets (type, created, data, user_id) VALUES (?, ?, ?, ?)`,
		bucket.Type, bucket.Created.Format(time.RFC3339Nano), string(data), bucket.UserID,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return 0, errors.Join(ErrAlreadyExists, err)
		}
		return 0, errInternal("failed to execute create_bucket statement: %v", err)
	}
	rowid, err := res.LastInsertId()
	if err != nil {
		return 0, errInternal("failed to read created bucket id: %v", err)
	}
	log.Info().Int64("bucket", rowid).Str("type", bucket.Type).Msg("created bucket")

	events := bucket.Events
	bucket.Events = nil
	bucket.ID = rowid
	cached := bucket
	inst.buckets[rowid] = &cached

	if len(events) > 0 {
		if _, err := inst.InsertEvents(tx, rowid, events); err != nil {
			return 0, err
		}
	}
	return rowid, nil
}

// lookupBucketID finds an existing bucket row for (userID, bucketType).
func (inst *Instance) lookupBucketID(tx dbtx, userID int64, bucketType string) (int64, bool) {
	var id int64
	err := tx.QueryRow(
		`SELECT b.id FROM buckets b WHERE b.user_id = ? AND b.type = ?`,
		userID, bucketType,
	).Scan(&id)
	if err != nil {
		return 0, false
	}
	return id, true
}

// DeleteBucket removes the bucket and all its events, and evicts it from the
// cache. Both deletes run in the ambient transaction, so no partial state is
// ever visible to other commands.
func (inst *Instance) DeleteBucket(tx dbtx, bucketID int64) error {
	bucket, err := inst.GetBucket(bucketID)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM events WHERE bucketrow = ?`, bucket.ID); err != nil {
		return errInternal("failed to delete events for bucket %d: %v", bucketID, err)
	}
	if _, err := tx.Exec(`DELETE FROM buckets WHERE id = ?`, bucket.ID); err != nil {
		return errInternal("failed to delete bucket %d: %v", bucketID, err)
	}
	delete(inst.buckets, bucketID)
	return nil
}

// GetBucket serves a bucket from the cache; it never touches storage.
func (inst *Instance) GetBucket(bucketID int64) (models.Bucket, error) {
	bucket, ok := inst.buckets[bucketID]
	if !ok {
		return models.Bucket{}, errNoSuchBucket(bucketID)
	}
	return *bucket, nil
}

// GetBuckets returns all cached buckets owned by the user, keyed by id.
func (inst *Instance) GetBuckets(userID int64) map[int64]models.Bucket {
	out := make(map[int64]models.Bucket)
	for id, bucket := range inst.buckets {
		if bucket.UserID == userID {
			out[id] = *bucket
		}
	}
	return out
}

// isConstraintViolation reports whether err is a SQLite constraint failure.
func isConstraintViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}
