// Package journal records collection statistics in a SQLite database.
// Each Open starts a new session, identified by a UUID, so runs sharing a
// database file can be told apart.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/tagval/vm"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

// queueSize bounds the stats waiting to be written. Collections that find
// the queue full are counted in Dropped and not recorded.
const queueSize = 256

var log = commonlog.GetLogger("tagval.journal")

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal closed")

// Entry is one recorded collection.
type Entry struct {
	ID           int64
	Session      string
	Number       uint64
	Reason       vm.GCReason
	Marked       int
	SweptStrings int
	SweptObjects int
	SweptAtoms   int
	BytesBefore  int64
	BytesAfter   int64
	Duration     time.Duration
	Timestamp    time.Time
}

type request struct {
	stats   *vm.GCStats
	flushed chan struct{}
}

// Journal appends GCStats rows to a SQLite table.
type Journal struct {
	db      *sql.DB
	path    string
	session string

	mu      sync.Mutex
	closed  bool
	queue   chan request
	done    chan struct{}
	dropped atomic.Uint64
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS collections (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		session       TEXT    NOT NULL,
		number        INTEGER NOT NULL,
		reason        TEXT    NOT NULL,
		marked        INTEGER NOT NULL,
		swept_strings INTEGER NOT NULL,
		swept_objects INTEGER NOT NULL,
		swept_atoms   INTEGER NOT NULL,
		bytes_before  INTEGER NOT NULL,
		bytes_after   INTEGER NOT NULL,
		duration_ns   INTEGER NOT NULL,
		started_ns    INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	j := &Journal{
		db:      db,
		path:    path,
		session: uuid.NewString(),
		queue:   make(chan request, queueSize),
		done:    make(chan struct{}),
	}
	go j.run()
	log.Infof("opened %s, session %s", path, j.session)
	return j, nil
}

// Session returns the id stamped on every row written by this journal.
func (j *Journal) Session() string { return j.session }

// Path returns the database file.
func (j *Journal) Path() string { return j.path }

// Dropped returns the number of collections not recorded because the
// write queue was full.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Record writes stats synchronously.
func (j *Journal) Record(stats *vm.GCStats) error {
	_, err := j.db.Exec(`INSERT INTO collections (
		session, number, reason, marked, swept_strings, swept_objects,
		swept_atoms, bytes_before, bytes_after, duration_ns, started_ns
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.session, int64(stats.Number), string(stats.Reason), stats.Marked,
		stats.SweptStrings, stats.SweptObjects, stats.SweptAtoms,
		stats.BytesBefore, stats.BytesAfter, int64(stats.Duration),
		stats.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("recording gc #%d: %w", stats.Number, err)
	}
	return nil
}

// Attach records every collection of rt from now until Close. The GC
// callback only enqueues; rows are written on the journal's goroutine.
func (j *Journal) Attach(rt *vm.Runtime) {
	rt.AddGCCallback(func(rt *vm.Runtime, status vm.GCStatus) {
		if status != vm.GCEnd {
			return
		}
		j.enqueue(rt.LastGCStats())
	})
}

func (j *Journal) enqueue(stats *vm.GCStats) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed || stats == nil {
		return
	}
	select {
	case j.queue <- request{stats: stats}:
	default:
		if j.dropped.Add(1) == 1 {
			log.Warning("write queue full, dropping collections")
		}
	}
}

// Flush waits until everything enqueued before the call is written.
func (j *Journal) Flush() error {
	ch := make(chan struct{})
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return ErrClosed
	}
	j.queue <- request{flushed: ch}
	j.mu.Unlock()
	<-ch
	return nil
}

func (j *Journal) run() {
	defer close(j.done)
	for req := range j.queue {
		if req.flushed != nil {
			close(req.flushed)
			continue
		}
		commonlog.CallAndLogError(func() error {
			return j.Record(req.stats)
		}, "journal record", log)
	}
}

// Recent returns up to limit entries, newest first, across all sessions.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	return j.query(`SELECT id, session, number, reason, marked, swept_strings,
		swept_objects, swept_atoms, bytes_before, bytes_after, duration_ns, started_ns
		FROM collections ORDER BY id DESC LIMIT ?`, limit)
}

// SessionEntries returns the entries of one session in recording order.
func (j *Journal) SessionEntries(session string) ([]Entry, error) {
	return j.query(`SELECT id, session, number, reason, marked, swept_strings,
		swept_objects, swept_atoms, bytes_before, bytes_after, duration_ns, started_ns
		FROM collections WHERE session = ? ORDER BY id`, session)
}

func (j *Journal) query(q string, args ...any) ([]Entry, error) {
	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			number            int64
			reason            string
			duration, started int64
		)
		if err := rows.Scan(&e.ID, &e.Session, &number, &reason, &e.Marked,
			&e.SweptStrings, &e.SweptObjects, &e.SweptAtoms,
			&e.BytesBefore, &e.BytesAfter, &duration, &started); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		e.Number = uint64(number)
		e.Reason = vm.GCReason(reason)
		e.Duration = time.Duration(duration)
		e.Timestamp = time.Unix(0, started)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	return entries, nil
}

// Close stops recording, writes what is queued and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done
	if n := j.dropped.Load(); n > 0 {
		log.Warningf("session %s dropped %d collections", j.session, n)
	}
	return j.db.Close()
}
