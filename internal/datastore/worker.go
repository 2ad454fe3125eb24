package datastore

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pulsevault/pulsevault/pkg/models"
)

// command is a unit of work executed on the worker goroutine. It runs with
// exclusive access to the worker state and the ambient transaction.
type command func(w *worker)

// worker is the single goroutine that owns the SQLite connection. Every field
// here is touched only from run, so none of it needs locking.
type worker struct {
	db   *sql.DB
	tx   *sql.Tx
	inst *Instance

	requests chan command
	done     chan struct{}

	lastHeartbeat map[int64]*models.Event

	uncommitted    int
	commit         bool
	quit           bool
	commitInterval time.Duration
	maxUncommitted int
}

func newWorker(db *sql.DB, inst *Instance, commitInterval time.Duration, maxUncommitted int) *worker {
	return &worker{
		db:             db,
		inst:           inst,
		requests:       make(chan command),
		done:           make(chan struct{}),
		lastHeartbeat:  make(map[int64]*models.Event),
		commitInterval: commitInterval,
		maxUncommitted: maxUncommitted,
	}
}

// run is the worker loop. Each pass opens a transaction, serves commands until
// the commit policy fires, then commits and starts over. The loop ends when a
// shutdown command sets quit, after a final commit of pending work.
func (w *worker) run() {
	defer close(w.done)

	for !w.quit {
		tx, err := w.db.Begin()
		if err != nil {
			log.Warn().Err(err).Msg("unable to start transaction, retrying shortly")
			time.Sleep(time.Second)
			continue
		}
		w.tx = tx
		w.commit = false
		w.uncommitted = 0
		opened := time.Now()

		for !w.commit && !w.quit {
			cmd, ok := <-w.requests
			if !ok {
				w.quit = true
				break
			}
			cmd(w)
			if w.uncommitted > w.maxUncommitted || time.Since(opened) >= w.commitInterval {
				w.commit = true
			}
		}

		// A failed commit means writes acknowledged to callers would be
		// lost, there is no safe way to continue from that.
		if err := tx.Commit(); err != nil {
			log.Fatal().Err(err).Msg("failed to commit datastore transaction")
		}
		log.Debug().Int("events", w.uncommitted).Msg("committed datastore transaction")
	}
	w.tx = nil
}
