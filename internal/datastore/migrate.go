package datastore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pulsevault/pulsevault/internal/auth"
)

// Schema version changelog:
//
//	0: uninitialized database
//	1: buckets and events tables with indices
//	2: added 'data' column to buckets (broken default)
//	3: replaced the broken 'data' column
//	4: added 'key_value' table
//	5: added Users/Teams/TeamsUsers/TeamConfiguration, user_id on buckets,
//	   team_id on events, seeded admin account
const schemaVersion = 5

func errVersionMismatch(have int) error {
	return fmt.Errorf("database has version %d while the supported version is %d: %w",
		have, schemaVersion, ErrVersionMismatch)
}

// databaseVersion reads PRAGMA user_version.
func databaseVersion(db dbtx) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func setDatabaseVersion(db dbtx, v int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		return errInternal("failed to update database version to %d: %v", v, err)
	}
	return nil
}

// migrate brings the store from the given version to schemaVersion. Each step
// is idempotent and records the version as its last action, so a crash between
// steps resumes cleanly. Any unexpected statement error is unrecoverable
// schema corruption and surfaces as ErrInternal; the caller treats it as
// fatal.
func migrate(db dbtx, version int) (firstInit bool, err error) {
	if version < 1 {
		firstInit = true
		if err := migrateV0toV1(db); err != nil {
			return false, err
		}
	}
	if version < 2 {
		if err := migrateV1toV2(db); err != nil {
			return firstInit, err
		}
	}
	if version < 3 {
		if err := migrateV2toV3(db); err != nil {
			return firstInit, err
		}
	}
	if version < 4 {
		if err := migrateV3toV4(db); err != nil {
			return firstInit, err
		}
	}
	if version < 5 {
		if err := migrateV4toV5(db); err != nil {
			return firstInit, err
		}
	}
	return firstInit, nil
}

func migrateV0toV1(db dbtx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS buckets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			created TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS bucket_id_index ON buckets(id)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			bucketrow INTEGER NOT NULL,
			starttime INTEGER NOT NULL,
			endtime INTEGER NOT NULL,
			data TEXT NOT NULL,
			FOREIGN KEY (bucketrow) REFERENCES buckets(id)
		)`,
		`CREATE INDEX IF NOT EXISTS events_bucketrow_index ON events(bucketrow)`,
		`CREATE INDEX IF NOT EXISTS events_starttime_index ON events(starttime)`,
		`CREATE INDEX IF NOT EXISTS events_endtime_index ON events(endtime)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return errInternal("failed to create initial schema: %v", err)
		}
	}
	return setDatabaseVersion(db, 1)
}

func migrateV1toV2(db dbtx) error {
	log.Info().Msg("upgrading database to v2, adding data column to buckets")
	if _, err := db.Exec(`ALTER TABLE buckets ADD COLUMN data TEXT DEFAULT '{}'`); err != nil {
		return errInternal("failed to add data column to buckets: %v", err)
	}
	return setDatabaseVersion(db, 2)
}

func migrateV2toV3(db dbtx) error {
	log.Info().Msg("upgrading database to v3, replacing the broken data column on buckets")

	// The rename produces no result set; some drivers report that as a
	// no-rows error even though the rename took effect.
	if _, err := db.Exec(`ALTER TABLE buckets RENAME COLUMN data TO data_deprecated`); err != nil && !isNoRows(err) {
		return errInternal("failed to rename broken data column: %v", err)
	}
	if _, err := db.Exec(`ALTER TABLE buckets ADD COLUMN data TEXT NOT NULL DEFAULT '{}'`); err != nil {
		return errInternal("failed to add replacement data column: %v", err)
	}
	return setDatabaseVersion(db, 3)
}

func migrateV3toV4(db dbtx) error {
	log.Info().Msg("upgrading database to v4, adding key_value table")
	if _, err := db.Exec(`CREATE TABLE key_value (
		key TEXT PRIMARY KEY,
		value TEXT,
		last_modified NUMBER NOT NULL
	)`); err != nil {
		return errInternal("failed to create key_value table: %v", err)
	}
	return setDatabaseVersion(db, 4)
}

func migrateV4toV5(db dbtx) error {
	log.Info().Msg("upgrading database to v5, adding users and teams")

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS Users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			lastname TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			role INTEGER NOT NULL,
			password TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS Teams (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT,
			ownerId INTEGER NOT NULL,
			FOREIGN KEY (ownerId) REFERENCES Users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS TeamsUsers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			teamId INTEGER NOT NULL,
			userId INTEGER NOT NULL,
			FOREIGN KEY (teamId) REFERENCES Teams(id),
			FOREIGN KEY (userId) REFERENCES Users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS TeamConfiguration (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			teamId INTEGER NOT NULL,
			apps TEXT,
			FOREIGN KEY (teamId) REFERENCES Teams(id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return errInternal("failed to create v5 tables: %v", err)
		}
	}

	// Seed the administrative account. The password should be changed after
	// first login.
	hash, err := auth.HashPassword("admin")
	if err != nil {
		return errInternal("failed to hash seed admin password: %v", err)
	}
	if _, err := db.Exec(
		`INSERT INTO Users (username, email, name, lastname, password, role) VALUES (?, ?, ?, ?, ?, ?)`,
		"admin", "admin@admin.com", "admin", "admin", hash, 1,
	); err != nil {
		return errInternal("failed to seed admin user: %v", err)
	}

	// Pre-v5 buckets all belonged to the seeded admin account (id 1).
	if _, err := db.Exec(`ALTER TABLE buckets ADD COLUMN user_id INTEGER NOT NULL DEFAULT 1 REFERENCES Users(id)`); err != nil {
		return errInternal("failed to add user_id column to buckets: %v", err)
	}
	if _, err := db.Exec(`ALTER TABLE events ADD COLUMN team_id INTEGER NOT NULL DEFAULT 0`); err != nil {
		return errInternal("failed to add team_id column to events: %v", err)
	}
	return setDatabaseVersion(db, 5)
}

// isNoRows reports whether err is the tolerated "statement produced no rows"
// condition from a rename-only ALTER.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || strings.Contains(err.Error(), "no rows")
}
