package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/macropower/rulepool/api"
)

const (
	DefaultPoolPath  = "data/rule-pool.json"
	DefaultBackupDir = "data/backups"

	backupPrefix = "rule-pool-"
)

// FileRepository stores the pool as an indented JSON document and keeps
// timestamped copies of the previous document in a backup directory.
type FileRepository struct {
	now       func() time.Time
	path      string
	backupDir string
}

// FileOpt configures a [FileRepository].
type FileOpt func(*FileRepository)

// WithBackupClock overrides the time source used to name backups.
func WithBackupClock(now func() time.Time) FileOpt {
	return func(f *FileRepository) {
		f.now = now
	}
}

// NewFileRepository creates a [FileRepository]. An empty backupDir places
// backups in a "backups" directory next to path.
func NewFileRepository(path, backupDir string, opts ...FileOpt) *FileRepository {
	if backupDir == "" {
		backupDir = filepath.Join(filepath.Dir(path), "backups")
	}

	f := &FileRepository{
		path:      path,
		backupDir: backupDir,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Path returns the pool document path.
func (f *FileRepository) Path() string {
	return f.path
}

func (f *FileRepository) Load(_ context.Context) (*Snapshot, error) {
	data, err := api.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.path, err)
	}

	snap := NewSnapshot()

	err = json.Unmarshal(data, snap)
	if err != nil {
		return nil, fmt.Errorf("%s: decode rule pool: %w", f.path, err)
	}

	return snap, nil
}

func (f *FileRepository) Save(_ context.Context, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rule pool: %w", err)
	}

	err = os.MkdirAll(filepath.Dir(f.path), 0o750)
	if err != nil {
		return fmt.Errorf("%s: create directories: %w", f.path, err)
	}

	err = os.WriteFile(f.path, append(data, '\n'), 0o600)
	if err != nil {
		return fmt.Errorf("%s: write rule pool: %w", f.path, err)
	}

	return nil
}

// Backup copies the current pool document to
// <backupDir>/rule-pool-<timestamp>.json. Existing backups are never
// overwritten: a counter is appended when the name is taken.
func (f *FileRepository) Backup(_ context.Context) (string, error) {
	data, err := api.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", f.path, err)
	}

	err = os.MkdirAll(f.backupDir, 0o750)
	if err != nil {
		return "", fmt.Errorf("%s: create backup directory: %w", f.backupDir, err)
	}

	return writeNew(f.backupDir, BackupFileName(f.now()), data)
}

// writeNew writes data to a file in dir that did not exist before. name is
// tried first, then name with -1, -2 and so on before its extension.
func writeNew(dir, name string, data []byte) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for i := 0; ; i++ {
		path := filepath.Join(dir, name)
		if i > 0 {
			path = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, i, ext))
		}

		fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%s: write backup: %w", path, err)
		}

		_, err = fh.Write(data)
		err = errors.Join(err, fh.Close())
		if err != nil {
			return "", fmt.Errorf("%s: write backup: %w", path, err)
		}

		return path, nil
	}
}

// BackupFileName returns the backup file name for t: an ISO-8601 millisecond
// timestamp with ':' and '.' replaced by '-'.
func BackupFileName(t time.Time) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)

	return backupPrefix + ts + ".json"
}
