package datastore

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pulsevault/pulsevault/pkg/models"
)

// legacyFileName is the database file written by the old tracker generation.
const legacyFileName = "peewee-sqlite.v2.db"

// legacyImport pulls buckets and events out of an old-format database into a
// freshly created store. It runs at most once, on first init, and never fails
// the open: a broken or missing legacy file is logged and skipped.
func legacyImport(db dbtx, inst *Instance, path, legacyPath string) {
	if legacyPath == "" {
		legacyPath = filepath.Join(filepath.Dir(path), legacyFileName)
	}
	if _, err := os.Stat(legacyPath); err != nil {
		log.Debug().Str("path", legacyPath).Msg("no legacy database to import")
		return
	}

	log.Info().Str("path", legacyPath).Msg("importing legacy database")
	if err := importLegacyFile(db, inst, legacyPath); err != nil {
		log.Warn().Err(err).Str("path", legacyPath).Msg("legacy import failed, continuing with empty store")
	}
}

func importLegacyFile(tx dbtx, inst *Instance, legacyPath string) error {
	legacy, err := sql.Open("sqlite3", legacyPath)
	if err != nil {
		return errInternal("failed to open legacy database: %v", err)
	}
	defer legacy.Close()

	rows, err := legacy.Query("SELECT key, id, type, client, hostname, created FROM bucketmodel")
	if err != nil {
		return errInternal("failed to query legacy buckets: %v", err)
	}
	defer rows.Close()

	type legacyBucket struct {
		key    int64
		bucket models.Bucket
	}
	var legacyBuckets []legacyBucket
	for rows.Next() {
		var (
			lb       legacyBucket
			stringID string
			client   string
			hostname string
			created  string
		)
		if err := rows.Scan(&lb.key, &stringID, &lb.bucket.Type, &client, &hostname, &created); err != nil {
			return errInternal("failed to scan legacy bucket: %v", err)
		}
		lb.bucket.Data = map[string]any{
			"$id":      stringID,
			"client":   client,
			"hostname": hostname,
		}
		legacyBuckets = append(legacyBuckets, lb)
	}
	if err := rows.Err(); err != nil {
		return errInternal("failed to iterate legacy buckets: %v", err)
	}

	imported := 0
	for _, lb := range legacyBuckets {
		bucketID, err := inst.CreateBucket(tx, lb.bucket)
		if err != nil {
			log.Warn().Err(err).Str("type", lb.bucket.Type).Msg("skipping legacy bucket")
			continue
		}
		events, err := legacyEvents(legacy, lb.key)
		if err != nil {
			log.Warn().Err(err).Str("type", lb.bucket.Type).Msg("skipping legacy events")
			continue
		}
		if _, err := inst.InsertEvents(tx, bucketID, events); err != nil {
			log.Warn().Err(err).Str("type", lb.bucket.Type).Msg("failed to import legacy events")
			continue
		}
		imported += len(events)
	}
	log.Info().Int("buckets", len(legacyBuckets)).Int("events", imported).Msg("legacy import finished")
	return nil
}

func legacyEvents(legacy *sql.DB, bucketKey int64) ([]models.Event, error) {
	rows, err := legacy.Query(
		"SELECT timestamp, duration, datastr FROM eventmodel WHERE bucket_id = ?", bucketKey)
	if err != nil {
		return nil, errInternal("failed to query legacy events: %v", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			event     models.Event
			timestamp string
			duration  float64
			datastr   string
		)
		if err := rows.Scan(&timestamp, &duration, &datastr); err != nil {
			return nil, errInternal("failed to scan legacy event: %v", err)
		}
		if err := event.Timestamp.UnmarshalText([]byte(timestamp)); err != nil {
			log.Warn().Str("timestamp", timestamp).Msg("skipping legacy event with bad timestamp")
			continue
		}
		event.Duration = time.Duration(duration * float64(time.Second))
		if err := json.Unmarshal([]byte(datastr), &event.Data); err != nil {
			log.Warn().Msg("skipping legacy event with bad data payload")
			continue
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
