package pool

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/macropower/rulepool/pkg/rule"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rules (
	id   TEXT PRIMARY KEY,
	body TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS pool_metadata (
	id   INTEGER PRIMARY KEY CHECK (id = 1),
	body TEXT NOT NULL
);`

// SQLiteRepository stores one row per rule in a SQLite database. Indices
// are not stored; the pool rebuilds them on load.
type SQLiteRepository struct {
	db        *sql.DB
	now       func() time.Time
	path      string
	backupDir string
	mu        sync.Mutex
}

// NewSQLiteRepository creates a [SQLiteRepository]. The database is opened
// on first use.
func NewSQLiteRepository(path, backupDir string) *SQLiteRepository {
	if backupDir == "" {
		backupDir = filepath.Join(filepath.Dir(path), "backups")
	}

	return &SQLiteRepository{
		path:      path,
		backupDir: backupDir,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *SQLiteRepository) open(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	err := os.MkdirAll(filepath.Dir(s.path), 0o750)
	if err != nil {
		return nil, fmt.Errorf("%s: create directories: %w", s.path, err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("%s: open database: %w", s.path, err)
	}

	// A single connection keeps writes serialized.
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, sqliteSchema)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: create schema: %w", s.path, err)
	}

	s.db = db

	return db, nil
}

func (s *SQLiteRepository) Load(ctx context.Context) (*Snapshot, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}

	snap := NewSnapshot()

	rows, err := db.QueryContext(ctx, `SELECT id, body FROM rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s: query rules: %w", s.path, err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor.

	for rows.Next() {
		var id, body string

		err := rows.Scan(&id, &body)
		if err != nil {
			return nil, fmt.Errorf("%s: scan rule: %w", s.path, err)
		}

		r := &rule.Rule{}

		err = json.Unmarshal([]byte(body), r)
		if err != nil {
			return nil, fmt.Errorf("%s: decode rule %q: %w", s.path, id, err)
		}

		snap.Rules[id] = r
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("%s: read rules: %w", s.path, err)
	}

	var metaBody string

	err = db.QueryRowContext(ctx, `SELECT body FROM pool_metadata WHERE id = 1`).Scan(&metaBody)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return snap, nil
	case err != nil:
		return nil, fmt.Errorf("%s: query metadata: %w", s.path, err)
	}

	err = json.Unmarshal([]byte(metaBody), &snap.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%s: decode metadata: %w", s.path, err)
	}

	return snap, nil
}

func (s *SQLiteRepository) Save(ctx context.Context, snap *Snapshot) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin transaction: %w", s.path, err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit.

	_, err = tx.ExecContext(ctx, `DELETE FROM rules`)
	if err != nil {
		return fmt.Errorf("%s: clear rules: %w", s.path, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rules (id, body) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("%s: prepare insert: %w", s.path, err)
	}
	defer stmt.Close() //nolint:errcheck // Closed with the transaction.

	for id, r := range snap.Rules {
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode rule %q: %w", id, err)
		}

		_, err = stmt.ExecContext(ctx, id, string(body))
		if err != nil {
			return fmt.Errorf("%s: insert rule %q: %w", s.path, id, err)
		}
	}

	metaBody, err := json.Marshal(snap.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO pool_metadata (id, body) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET body = excluded.body`,
		string(metaBody),
	)
	if err != nil {
		return fmt.Errorf("%s: write metadata: %w", s.path, err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("%s: commit: %w", s.path, err)
	}

	return nil
}

// Backup writes a compacted copy of the database with VACUUM INTO.
func (s *SQLiteRepository) Backup(ctx context.Context) (string, error) {
	_, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}

	db, err := s.open(ctx)
	if err != nil {
		return "", err
	}

	err = os.MkdirAll(s.backupDir, 0o750)
	if err != nil {
		return "", fmt.Errorf("%s: create backup directory: %w", s.backupDir, err)
	}

	name := strings.TrimSuffix(BackupFileName(s.now()), ".json") + ".db"
	backupPath := filepath.Join(s.backupDir, name)
	quoted := "'" + strings.ReplaceAll(backupPath, "'", "''") + "'"

	_, err = db.ExecContext(ctx, "VACUUM INTO "+quoted)
	if err != nil {
		return "", fmt.Errorf("%s: vacuum into %s: %w", s.path, backupPath, err)
	}

	return backupPath, nil
}

// Close releases the database handle.
func (s *SQLiteRepository) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("%s: close database: %w", s.path, err)
	}

	return nil
}
