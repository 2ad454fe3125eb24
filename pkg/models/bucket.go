// Package models holds the domain entities shared between the datastore and
// the HTTP layer.
package models

import "time"

// Bucket is a named, user-owned stream of events of one type. At most one
// bucket exists per (UserID, Type) pair.
type Bucket struct {
	ID       int64          `json:"id"`
	Type     string         `json:"type"`
	Created  time.Time      `json:"created"`
	Data     map[string]any `json:"data"`
	Metadata BucketMetadata `json:"metadata"`
	// Events optionally carries an inline payload on creation requests only.
	// Cached buckets never hold events.
	Events []Event `json:"events,omitempty"`
	UserID int64   `json:"user_id"`
}

// BucketMetadata is derived bookkeeping, never set by clients: Start is the
// minimum event timestamp ever seen for the bucket, End the maximum endtime.
// It is maintained incrementally by the datastore cache.
type BucketMetadata struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}
