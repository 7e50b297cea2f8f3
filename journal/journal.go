// Package journal records realm lifecycle events in a sqlite database.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/realmproxy/realm"
)

var log = commonlog.GetLogger("realmproxy.journal")

// Journal is an append-only log of lifecycle events.
type Journal struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens (creating if needed) the journal database at path.
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

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS events (
		seq    INTEGER PRIMARY KEY AUTOINCREMENT,
		at     INTEGER NOT NULL,
		kind   TEXT NOT NULL,
		realm  TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Journal{db: db, path: path}, nil
}

// Path returns the database file path.
func (j *Journal) Path() string { return j.path }

// Record appends one event.
func (j *Journal) Record(ev realm.Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(`INSERT INTO events (at, kind, realm, detail) VALUES (?, ?, ?, ?)`,
		ev.Time.UnixNano(), string(ev.Kind), ev.Realm, ev.Detail)
	if err != nil {
		return fmt.Errorf("recording %s: %w", ev.Kind, err)
	}
	return nil
}

// Events returns the recorded events in order. A non-empty realmName limits
// the result to that realm.
func (j *Journal) Events(realmName string) ([]realm.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	query := `SELECT at, kind, realm, detail FROM events`
	var args []any
	if realmName != "" {
		query += ` WHERE realm = ?`
		args = append(args, realmName)
	}
	query += ` ORDER BY seq`

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []realm.Event
	for rows.Next() {
		var (
			at   int64
			kind string
			ev   realm.Event
		)
		if err := rows.Scan(&at, &kind, &ev.Realm, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.Kind = realm.EventKind(kind)
		ev.Time = time.Unix(0, at)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Observer returns a realm.Observer that records every event. Write
// failures are logged, not returned.
func (j *Journal) Observer() realm.Observer {
	return func(ev realm.Event) {
		if err := j.Record(ev); err != nil {
			log.Errorf("journal: %s", err.Error())
		}
	}
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
