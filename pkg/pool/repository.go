package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/macropower/rulepool/pkg/rule"
)

// Source records how the rules in a pool were produced.
type Source string

const (
	SourceFresh     Source = "fresh"
	SourceMigration Source = "migration"
	SourceMixed     Source = "mixed"
)

// Metadata holds the derived pool counters.
type Metadata struct {
	LastUpdated     time.Time `json:"lastUpdated"`
	Version         string    `json:"version"`
	Source          Source    `json:"source"`
	TotalRules      int       `json:"totalRules"`
	CustomRules     int       `json:"customRules"`
	PredefinedRules int       `json:"predefinedRules"`
}

// Snapshot is the serialized form of a pool, as stored in rule-pool.json.
type Snapshot struct {
	Rules      map[string]*rule.Rule      `json:"rules"`
	Categories map[rule.Category][]string `json:"categories"`
	Tags       map[string][]string        `json:"tags"`
	Metadata   Metadata                   `json:"metadata"`
}

// NewSnapshot returns an empty [Snapshot].
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Rules:      map[string]*rule.Rule{},
		Categories: map[rule.Category][]string{},
		Tags:       map[string][]string{},
		Metadata: Metadata{
			Version: rule.DefaultVersion,
			Source:  SourceFresh,
		},
	}
}

// Repository persists pool snapshots. Implementations must treat a missing
// store as an empty pool.
type Repository interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	// Backup copies the currently persisted state aside and returns where it
	// went. An empty location with a nil error means there was nothing to back up.
	Backup(ctx context.Context) (string, error)
}

// MemoryRepository keeps snapshots in memory. It is used for dry runs and
// tests.
type MemoryRepository struct {
	data    []byte
	backups [][]byte
	mu      sync.Mutex
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Load(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := NewSnapshot()
	if m.data == nil {
		return snap, nil
	}

	err := json.Unmarshal(m.data, snap)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	return snap, nil
}

func (m *MemoryRepository) Save(_ context.Context, snap *Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	m.mu.Lock()
	m.data = b
	m.mu.Unlock()

	return nil
}

func (m *MemoryRepository) Backup(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		return "", nil
	}

	m.backups = append(m.backups, m.data)

	return fmt.Sprintf("memory:%d", len(m.backups)), nil
}

// Bytes returns the last saved snapshot as JSON.
func (m *MemoryRepository) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.data
}

// Backups returns the number of backups taken.
func (m *MemoryRepository) Backups() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.backups)
}

// Driver selects a [Repository] implementation.
type Driver string

const (
	DriverJSON   Driver = "json"
	DriverSQLite Driver = "sqlite"
	DriverMemory Driver = "memory"
)

var ErrUnknownDriver = errors.New("unknown pool driver")

// NewRepository returns the [Repository] for driver.
//
//nolint:ireturn // Selects between implementations.
func NewRepository(driver Driver, path, backupDir string) (Repository, error) {
	switch driver {
	case DriverJSON, "":
		return NewFileRepository(path, backupDir), nil
	case DriverSQLite:
		return NewSQLiteRepository(path, backupDir), nil
	case DriverMemory:
		return NewMemoryRepository(), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
}
