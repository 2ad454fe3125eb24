// Package datastore implements the single-writer transactional store behind
// the activity tracker: one worker goroutine owns the SQLite connection and an
// ambient transaction, callers talk to it through a command channel.
package datastore

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pulsevault/pulsevault/pkg/models"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// repository methods can run against the ambient transaction while startup
// code runs directly on the connection.
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Instance owns the bucket-metadata cache and translates domain operations
// into SQL. It is only ever touched from the worker goroutine.
type Instance struct {
	buckets   map[int64]*models.Bucket
	firstInit bool
	dbVersion int
}

// NewInstance opens (and, when enabled, migrates) the schema and loads the
// bucket cache. firstInit is observable through FirstInit and is true exactly
// when the store had no prior schema.
func NewInstance(db *sql.DB, migrateEnabled bool) (*Instance, error) {
	version, err := databaseVersion(db)
	if err != nil {
		return nil, errInternal("failed to read database version: %v", err)
	}

	firstInit := false
	if migrateEnabled {
		firstInit, err = migrate(db, version)
		if err != nil {
			return nil, err
		}
		version = schemaVersion
	} else if version == 0 {
		return nil, ErrUninitialized
	} else if version != schemaVersion {
		return nil, errVersionMismatch(version)
	}

	inst := &Instance{
		buckets:   make(map[int64]*models.Bucket),
		firstInit: firstInit,
		dbVersion: version,
	}
	if err := inst.loadStoredBuckets(db); err != nil {
		return nil, err
	}
	return inst, nil
}

// FirstInit reports whether this open created the schema from scratch,
// signalling that a one-time legacy import should be attempted.
func (inst *Instance) FirstInit() bool { return inst.firstInit }

// Version returns the schema version the store was opened at.
func (inst *Instance) Version() int { return inst.dbVersion }

// loadStoredBuckets fills the cache with every bucket row joined against its
// event time bounds. A row that fails to parse is fatal corruption, unlike
// event reads which skip bad rows.
func (inst *Instance) loadStoredBuckets(db dbtx) error {
	rows, err := db.Query(`
		SELECT buckets.id, buckets.type, buckets.created,
		       min(events.starttime), max(events.endtime),
		       buckets.data, buckets.user_id
		FROM buckets
		LEFT OUTER JOIN events ON buckets.id = events.bucketrow
		GROUP BY buckets.id`)
	if err != nil {
		return errInternal("failed to query stored buckets: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b       models.Bucket
			created string
			startNS sql.NullInt64
			endNS   sql.NullInt64
			dataStr string
		)
		if err := rows.Scan(&b.ID, &b.Type, &created, &startNS, &endNS, &dataStr, &b.UserID); err != nil {
			return errInternal("failed to scan bucket row, database is corrupt: %v", err)
		}
		b.Created, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return errInternal("failed to parse bucket created timestamp %q: %v", created, err)
		}
		if err := json.Unmarshal([]byte(dataStr), &b.Data); err != nil {
			return errInternal("failed to parse bucket data, database is corrupt: %v", err)
		}
		if startNS.Valid {
			t := nanosToTime(startNS.Int64)
			b.Metadata.Start = &t
		}
		if endNS.Valid {
			t := nanosToTime(endNS.Int64)
			b.Metadata.End = &t
		}
		bucket := b
		inst.buckets[b.ID] = &bucket
	}
	if err := rows.Err(); err != nil {
		return errInternal("failed to iterate stored buckets: %v", err)
	}
	log.Debug().Int("buckets", len(inst.buckets)).Msg("loaded bucket cache")
	return nil
}

// nanosToTime converts a nanosecond unix timestamp into a UTC time.
func nanosToTime(ns int64) time.Time {
	return time.Unix(ns/1e9, ns%1e9).UTC()
}
