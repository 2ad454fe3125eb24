package datastore

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pulsevault/pulsevault/pkg/models"
)

const (
	defaultCommitInterval = 15 * time.Second
	defaultMaxUncommitted = 100
)

// Options control how a Datastore is opened.
type Options struct {
	// Migrate enables schema migration on open. When false, opening a file
	// without a schema fails with ErrUninitialized and a file at a different
	// schema version fails with ErrVersionMismatch.
	Migrate bool

	// LegacyImport enables a one-time import from an older database file the
	// first time a fresh datastore is created. LegacyPath overrides the
	// default location next to the new file.
	LegacyImport bool
	LegacyPath   string

	// CommitInterval and MaxUncommittedEvents tune the commit policy.
	// Zero values fall back to the defaults.
	CommitInterval       time.Duration
	MaxUncommittedEvents int
}

// Datastore is the synchronous front of the single-writer worker. All methods
// are safe for concurrent use, requests are serialized over the command
// channel and each call blocks until the worker has executed it.
type Datastore struct {
	db        *sql.DB
	requests  chan command
	done      chan struct{}
	closeOnce sync.Once
	closed    chan struct{}
}

// New opens (or creates) a datastore at path and starts its worker.
func New(path string, opts Options) (*Datastore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database file %q: %w", path, err)
	}
	return open(db, path, opts)
}

// NewInMemory opens a datastore backed by a private in-memory database,
// useful for tests and throwaway sessions.
func NewInMemory(opts Options) (*Datastore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	opts.LegacyImport = false
	return open(db, ":memory:", opts)
}

func open(db *sql.DB, path string, opts Options) (*Datastore, error) {
	// A single connection keeps the ambient transaction and every other
	// statement on the same SQLite handle.
	db.SetMaxOpenConns(1)

	inst, err := NewInstance(db, opts.Migrate)
	if err != nil {
		db.Close()
		return nil, err
	}

	if opts.LegacyImport && inst.FirstInit() {
		legacyImport(db, inst, path, opts.LegacyPath)
	}

	interval := opts.CommitInterval
	if interval <= 0 {
		interval = defaultCommitInterval
	}
	maxEvents := opts.MaxUncommittedEvents
	if maxEvents <= 0 {
		maxEvents = defaultMaxUncommitted
	}

	w := newWorker(db, inst, interval, maxEvents)
	go w.run()

	log.Info().Str("path", path).Int("version", inst.Version()).Msg("datastore opened")
	return &Datastore{
		db:       db,
		requests: w.requests,
		done:     w.done,
		closed:   make(chan struct{}),
	}, nil
}

// Close commits pending work, stops the worker and closes the database.
func (ds *Datastore) Close() error {
	ds.closeOnce.Do(func() {
		close(ds.closed)
		quit := func(w *worker) {
			w.quit = true
		}
		select {
		case ds.requests <- quit:
			<-ds.done
		case <-ds.done:
		}
	})
	return ds.db.Close()
}

// ErrClosed is returned by every method once Close has been called.
var ErrClosed = fmt.Errorf("datastore is closed: %w", ErrInternal)

// call runs fn on the worker goroutine and waits for its result.
func call[T any](ds *Datastore, fn func(w *worker) (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	reply := make(chan result, 1)
	cmd := func(w *worker) {
		v, err := fn(w)
		reply <- result{value: v, err: err}
	}
	select {
	case ds.requests <- cmd:
	case <-ds.closed:
		var zero T
		return zero, ErrClosed
	}
	r := <-reply
	return r.value, r.err
}

// callErr is call for operations without a return value.
func callErr(ds *Datastore, fn func(w *worker) error) error {
	_, err := call(ds, func(w *worker) (struct{}, error) {
		return struct{}{}, fn(w)
	})
	return err
}

// CreateBucket creates a bucket, or returns the id of the existing bucket
// with the same owner and type. Inline events are inserted along with it.
func (ds *Datastore) CreateBucket(bucket models.Bucket) (int64, error) {
	return call(ds, func(w *worker) (int64, error) {
		id, err := w.inst.CreateBucket(w.tx, bucket)
		if err == nil {
			w.commit = true
		}
		return id, err
	})
}

// DeleteBucket removes a bucket and all of its events.
func (ds *Datastore) DeleteBucket(bucketID int64) error {
	return callErr(ds, func(w *worker) error {
		if err := w.inst.DeleteBucket(w.tx, bucketID); err != nil {
			return err
		}
		delete(w.lastHeartbeat, bucketID)
		w.commit = true
		return nil
	})
}

// GetBucket returns the cached metadata for a bucket.
func (ds *Datastore) GetBucket(bucketID int64) (models.Bucket, error) {
	return call(ds, func(w *worker) (models.Bucket, error) {
		return w.inst.GetBucket(bucketID)
	})
}

// GetBuckets returns the cached metadata of every bucket owned by userID.
func (ds *Datastore) GetBuckets(userID int64) (map[int64]models.Bucket, error) {
	return call(ds, func(w *worker) (map[int64]models.Bucket, error) {
		return w.inst.GetBuckets(userID), nil
	})
}

// InsertEvents stores events in a bucket and returns them with their assigned
// ids. An event that carries an id replaces the stored event with that id.
func (ds *Datastore) InsertEvents(bucketID int64, events []models.Event) ([]models.Event, error) {
	return call(ds, func(w *worker) ([]models.Event, error) {
		inserted, err := w.inst.InsertEvents(w.tx, bucketID, events)
		if err != nil {
			return nil, err
		}
		// Inserting directly invalidates whatever heartbeat state we
		// were coalescing against.
		delete(w.lastHeartbeat, bucketID)
		w.uncommitted += len(inserted)
		return inserted, nil
	})
}

// Heartbeat records a heartbeat event, merging it into the previous event of
// the bucket when they are close enough and carry identical data.
func (ds *Datastore) Heartbeat(bucketID int64, heartbeat models.Event, pulsetime float64) (models.Event, error) {
	return call(ds, func(w *worker) (models.Event, error) {
		stored, err := w.inst.Heartbeat(w.tx, bucketID, heartbeat, pulsetime, w.lastHeartbeat)
		if err != nil {
			return models.Event{}, err
		}
		w.uncommitted++
		return stored, nil
	})
}

// GetEvent returns a single event by id.
func (ds *Datastore) GetEvent(bucketID, eventID int64) (models.Event, error) {
	return call(ds, func(w *worker) (models.Event, error) {
		return w.inst.GetEvent(w.tx, bucketID, eventID)
	})
}

// GetEvents returns events in a bucket, newest first, clipped to the given
// window. Nil bounds leave that side of the window open, limit <= 0 means no
// limit.
func (ds *Datastore) GetEvents(bucketID int64, start, end *time.Time, limit int) ([]models.Event, error) {
	return call(ds, func(w *worker) ([]models.Event, error) {
		return w.inst.GetEvents(w.tx, bucketID, start, end, limit)
	})
}

// GetTeamEvents is GetEvents restricted to events tagged with teamID.
func (ds *Datastore) GetTeamEvents(bucketID int64, start, end *time.Time, limit int, teamID int64) ([]models.Event, error) {
	return call(ds, func(w *worker) ([]models.Event, error) {
		return w.inst.GetTeamEvents(w.tx, bucketID, start, end, limit, teamID)
	})
}

// GetEventCount counts events in a bucket intersecting the given window.
func (ds *Datastore) GetEventCount(bucketID int64, start, end *time.Time) (int64, error) {
	return call(ds, func(w *worker) (int64, error) {
		return w.inst.GetEventCount(w.tx, bucketID, start, end)
	})
}

// DeleteEventsByID removes the given events from a bucket.
func (ds *Datastore) DeleteEventsByID(bucketID int64, eventIDs []int64) error {
	return callErr(ds, func(w *worker) error {
		if err := w.inst.DeleteEventsByID(w.tx, bucketID, eventIDs); err != nil {
			return err
		}
		delete(w.lastHeartbeat, bucketID)
		w.commit = true
		return nil
	})
}

// ForceCommit commits the current transaction as soon as the worker is done
// with the commands queued ahead of it.
func (ds *Datastore) ForceCommit() error {
	return callErr(ds, func(w *worker) error {
		w.commit = true
		return nil
	})
}

// SetKeyValue stores a key-value pair, overwriting any previous value.
func (ds *Datastore) SetKeyValue(key, value string) error {
	return callErr(ds, func(w *worker) error {
		if err := w.inst.SetKeyValue(w.tx, key, value); err != nil {
			return err
		}
		w.commit = true
		return nil
	})
}

// GetKeyValue returns the value stored under key.
func (ds *Datastore) GetKeyValue(key string) (string, error) {
	return call(ds, func(w *worker) (string, error) {
		return w.inst.GetKeyValue(w.tx, key)
	})
}

// DeleteKeyValue removes a key-value pair. Deleting an absent key is not an
// error.
func (ds *Datastore) DeleteKeyValue(key string) error {
	return callErr(ds, func(w *worker) error {
		if err := w.inst.DeleteKeyValue(w.tx, key); err != nil {
			return err
		}
		w.commit = true
		return nil
	})
}

// GetKeyValues returns all settings keys matching the SQL LIKE pattern.
func (ds *Datastore) GetKeyValues(pattern string) (map[string]string, error) {
	return call(ds, func(w *worker) (map[string]string, error) {
		return w.inst.GetKeyValues(w.tx, pattern)
	})
}

// GetUserByEmail returns the full user row, including the password hash, for
// credential checks.
func (ds *Datastore) GetUserByEmail(email string) (models.User, error) {
	return call(ds, func(w *worker) (models.User, error) {
		return w.inst.GetUserByEmail(w.tx, email)
	})
}

// GetUser returns the public view of a user.
func (ds *Datastore) GetUser(userID int64) (models.PublicUser, error) {
	return call(ds, func(w *worker) (models.PublicUser, error) {
		return w.inst.GetUser(w.tx, userID)
	})
}

// AddUser creates a user with a freshly hashed password.
func (ds *Datastore) AddUser(user models.User) (models.PublicUser, error) {
	return call(ds, func(w *worker) (models.PublicUser, error) {
		u, err := w.inst.AddUser(w.tx, user)
		if err == nil {
			w.commit = true
		}
		return u, err
	})
}

// GetAllUsers lists every non-admin user.
func (ds *Datastore) GetAllUsers() ([]models.PublicUser, error) {
	return call(ds, func(w *worker) ([]models.PublicUser, error) {
		return w.inst.GetAllUsers(w.tx)
	})
}

// AddTeam creates a team owned by ownerID.
func (ds *Datastore) AddTeam(team models.TeamRequest, ownerID int64) error {
	return callErr(ds, func(w *worker) error {
		if err := w.inst.AddTeam(w.tx, team, ownerID); err != nil {
			return err
		}
		w.commit = true
		return nil
	})
}

// GetTeams lists the teams owned by ownerID.
func (ds *Datastore) GetTeams(ownerID int64) ([]models.Team, error) {
	return call(ds, func(w *worker) ([]models.Team, error) {
		return w.inst.GetTeams(w.tx, ownerID)
	})
}

// GetTeam returns a team by id.
func (ds *Datastore) GetTeam(teamID int64) (models.Team, error) {
	return call(ds, func(w *worker) (models.Team, error) {
		return w.inst.GetTeam(w.tx, teamID)
	})
}

// GetTeamMembersCount counts the members of a team.
func (ds *Datastore) GetTeamMembersCount(teamID int64) (int64, error) {
	return call(ds, func(w *worker) (int64, error) {
		return w.inst.GetTeamMembersCount(w.tx, teamID)
	})
}

// GetTeamMembers lists the members of a team.
func (ds *Datastore) GetTeamMembers(teamID int64) ([]models.Member, error) {
	return call(ds, func(w *worker) ([]models.Member, error) {
		return w.inst.GetTeamMembers(w.tx, teamID)
	})
}

// AddMembers adds users to a team.
func (ds *Datastore) AddMembers(teamID int64, userIDs []int64) error {
	return callErr(ds, func(w *worker) error {
		if err := w.inst.AddMembers(w.tx, teamID, userIDs); err != nil {
			return err
		}
		w.commit = true
		return nil
	})
}

// RemoveMember removes a membership row from a team.
func (ds *Datastore) RemoveMember(teamID, memberID int64) error {
	return callErr(ds, func(w *worker) error {
		if err := w.inst.RemoveMember(w.tx, teamID, memberID); err != nil {
			return err
		}
		w.commit = true
		return nil
	})
}

// GetUserTeams lists the teams a user belongs to.
func (ds *Datastore) GetUserTeams(userID int64) ([]models.TeamSummary, error) {
	return call(ds, func(w *worker) ([]models.TeamSummary, error) {
		return w.inst.GetUserTeams(w.tx, userID)
	})
}

// AddTeamConfiguration stores the tracked application list for a team.
func (ds *Datastore) AddTeamConfiguration(teamID int64, apps string) error {
	return callErr(ds, func(w *worker) error {
		if err := w.inst.AddTeamConfiguration(w.tx, teamID, apps); err != nil {
			return err
		}
		w.commit = true
		return nil
	})
}

// UpdateTeamConfiguration replaces the tracked application list for a team.
func (ds *Datastore) UpdateTeamConfiguration(teamID int64, apps string) error {
	return callErr(ds, func(w *worker) error {
		if err := w.inst.UpdateTeamConfiguration(w.tx, teamID, apps); err != nil {
			return err
		}
		w.commit = true
		return nil
	})
}

// GetTeamConfiguration returns the tracked application list for a team.
func (ds *Datastore) GetTeamConfiguration(teamID int64) (models.TeamConfiguration, error) {
	return call(ds, func(w *worker) (models.TeamConfiguration, error) {
		return w.inst.GetTeamConfiguration(w.tx, teamID)
	})
}
