// Package execdb keeps execution data from many runs in a SQLite database so
// that coverage can be accumulated across builds without juggling exec files.
package execdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/probecov/data"
)

var log = commonlog.GetLogger("probecov.execdb")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id    TEXT    NOT NULL,
	start INTEGER NOT NULL,
	dump  INTEGER NOT NULL,
	PRIMARY KEY (id, start, dump)
);
CREATE TABLE IF NOT EXISTS executions (
	id     INTEGER PRIMARY KEY,
	name   TEXT    NOT NULL,
	count  INTEGER NOT NULL,
	probes BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS executions_name ON executions (name);
`

// Archive is an open execution archive.
type Archive struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the archive at path.
func Open(path string) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &Archive{db: db, path: path}, nil
}

// Path returns the database file the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

// Close closes the database.
func (a *Archive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Import adds sessions and the contents of store to the archive. Probes of
// a class already archived under the same id are ORed together.
func (a *Archive) Import(ctx context.Context, sessions *data.SessionInfoStore, store *data.ExecutionDataStore) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning import: %w", err)
	}
	defer tx.Rollback()

	if sessions != nil {
		for _, s := range sessions.Infos() {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO sessions (id, start, dump) VALUES (?, ?, ?)",
				s.ID, s.Start, s.Dump); err != nil {
				return fmt.Errorf("importing session %s: %w", s.ID, err)
			}
		}
	}
	n := 0
	if store != nil {
		for _, d := range store.Contents() {
			if err := importExecution(ctx, tx, d); err != nil {
				return err
			}
			n++
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}
	log.Infof("imported %d classes into %s", n, a.path)
	return nil
}

func importExecution(ctx context.Context, tx *sql.Tx, d *data.ExecutionData) error {
	var (
		name  string
		count int
		blob  []byte
	)
	err := tx.QueryRowContext(ctx,
		"SELECT name, count, probes FROM executions WHERE id = ?", int64(d.ID)).Scan(&name, &count, &blob)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			"INSERT INTO executions (id, name, count, probes) VALUES (?, ?, ?, ?)",
			int64(d.ID), d.Name, len(d.Probes), pack(d.Probes))
		if err != nil {
			return fmt.Errorf("importing %s: %w", d.Name, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("querying %s: %w", d.Name, err)
	}

	existing := &data.ExecutionData{ID: d.ID, Name: name, Probes: unpack(blob, count)}
	if err := existing.Merge(d); err != nil {
		return fmt.Errorf("importing %s: %w", d.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE executions SET probes = ? WHERE id = ?", pack(existing.Probes), int64(d.ID)); err != nil {
		return fmt.Errorf("importing %s: %w", d.Name, err)
	}
	return nil
}

// Export replays the archived sessions, ordered by dump time, and then the
// archived execution data, ordered by class name. Either visitor may be nil.
func (a *Archive) Export(ctx context.Context, executions data.ExecutionDataVisitor, sessions data.SessionInfoVisitor) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sessions != nil {
		if err := a.exportSessions(ctx, sessions); err != nil {
			return err
		}
	}
	if executions != nil {
		if err := a.exportExecutions(ctx, executions); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) exportSessions(ctx context.Context, v data.SessionInfoVisitor) error {
	rows, err := a.db.QueryContext(ctx, "SELECT id, start, dump FROM sessions ORDER BY dump, start, id")
	if err != nil {
		return fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s data.SessionInfo
		if err := rows.Scan(&s.ID, &s.Start, &s.Dump); err != nil {
			return fmt.Errorf("scanning session: %w", err)
		}
		if err := v.VisitSessionInfo(s); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (a *Archive) exportExecutions(ctx context.Context, v data.ExecutionDataVisitor) error {
	rows, err := a.db.QueryContext(ctx, "SELECT id, name, count, probes FROM executions ORDER BY name, id")
	if err != nil {
		return fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    int64
			name  string
			count int
			blob  []byte
		)
		if err := rows.Scan(&id, &name, &count, &blob); err != nil {
			return fmt.Errorf("scanning execution: %w", err)
		}
		d := &data.ExecutionData{ID: uint64(id), Name: name, Probes: unpack(blob, count)}
		if err := v.VisitClassExecution(d); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Clear removes everything from the archive.
func (a *Archive) Clear(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.db.ExecContext(ctx, "DELETE FROM sessions; DELETE FROM executions;"); err != nil {
		return fmt.Errorf("clearing archive: %w", err)
	}
	return nil
}

// pack stores probes little-endian within each byte, the same bit order
// as exec files.
func pack(probes []bool) []byte {
	b := make([]byte, (len(probes)+7)/8)
	for i, p := range probes {
		if p {
			b[i/8] |= 1 << (i % 8)
		}
	}
	return b
}

func unpack(b []byte, count int) []bool {
	probes := make([]bool, count)
	for i := range probes {
		if i/8 < len(b) && b[i/8]&(1<<(i%8)) != 0 {
			probes[i] = true
		}
	}
	return probes
}
