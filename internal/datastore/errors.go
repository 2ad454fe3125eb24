package datastore

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the datastore. Callers match with errors.Is; the
// wrapped message carries the offending identifier.
var (
	// ErrNotFound covers missing buckets, keys and users.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned on a bucket identity conflict. The
	// upsert-by-identity path in CreateBucket normally masks it; it is only
	// reachable if the pre-check itself raced, which the single-writer design
	// prevents.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUninitialized is returned when migration is disabled and the store
	// has no schema.
	ErrUninitialized = errors.New("datastore uninitialized")

	// ErrVersionMismatch is returned when migration is disabled and the store
	// is at a schema version other than the current one.
	ErrVersionMismatch = errors.New("database version mismatch")

	// ErrInternal covers storage-layer failures, serialization failures and
	// invariant violations.
	ErrInternal = errors.New("internal datastore error")
)

func errNoSuchBucket(id int64) error {
	return fmt.Errorf("no such bucket %d: %w", id, ErrNotFound)
}

func errNoSuchKey(key string) error {
	return fmt.Errorf("no such key %q: %w", key, ErrNotFound)
}

func errNoSuchUser(ref string) error {
	return fmt.Errorf("no such user %s: %w", ref, ErrNotFound)
}

func errNoSuchEvent(bucketID, eventID int64) error {
	return fmt.Errorf("no event %d in bucket %d: %w", eventID, bucketID, ErrNotFound)
}

func errNoSuchTeam(id int64) error {
	return fmt.Errorf("no such team %d: %w", id, ErrNotFound)
}

func errInternal(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInternal)
}
