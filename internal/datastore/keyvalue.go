package datastore

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// settingsPrefix is the reserved namespace returned by pattern queries.
const settingsPrefix = "settings."

// SetKeyValue stores key=value, last write wins.
func (inst *Instance) SetKeyValue(tx dbtx, key, value string) error {
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO key_value(key, value, last_modified) VALUES (?, ?, ?)`,
		key, value, time.Now().Unix(),
	); err != nil {
		return errInternal("failed to insert key-value pair %q: %v", key, err)
	}
	return nil
}

// GetKeyValue returns the value stored under key.
func (inst *Instance) GetKeyValue(tx dbtx, key string) (string, error) {
	var value string
	err := tx.QueryRow(`SELECT value FROM key_value WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errNoSuchKey(key)
		}
		return "", errInternal("get value query failed for key %q: %v", key, err)
	}
	return value, nil
}

// DeleteKeyValue removes key. Deleting a missing key is not an error.
func (inst *Instance) DeleteKeyValue(tx dbtx, key string) error {
	if _, err := tx.Exec(`DELETE FROM key_value WHERE key = ?`, key); err != nil {
		return errInternal("failed to delete key %q: %v", key, err)
	}
	return nil
}

// GetKeyValues returns all pairs whose key matches the SQL-LIKE pattern.
// Regardless of the pattern, only keys under the reserved "settings."
// namespace are returned.
func (inst *Instance) GetKeyValues(tx dbtx, pattern string) (map[string]string, error) {
	rows, err := tx.Query(`SELECT key, value FROM key_value WHERE key LIKE ?`, pattern)
	if err != nil {
		return nil, errInternal("failed to query key-values for pattern %q: %v", pattern, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errInternal("failed to scan key-value row: %v", err)
		}
		if !strings.HasPrefix(key, settingsPrefix) {
			continue
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, errInternal("failed to iterate key-values: %v", err)
	}
	return out, nil
}
