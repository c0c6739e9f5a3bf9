package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/macropower/rulepool/pkg/log"
	"github.com/macropower/rulepool/pkg/rule"
)

var (
	ErrNotFound           = errors.New("rule not found")
	ErrAlreadyExists      = errors.New("rule already exists")
	ErrDependencyConflict = errors.New("dependency conflict")
)

// Pool owns the canonical rule collection and its derived indices.
//
// Reads may interleave freely. Mutations must be serialized by the caller:
// at most one mutating call may be in flight per pool.
type Pool struct {
	repo       Repository
	now        func() time.Time
	rules      map[string]*rule.Rule
	byCategory map[rule.Category]map[string]struct{}
	byTag      map[string]map[string]struct{}
	loadIssues []rule.Issue
	meta       Metadata
	mu         sync.RWMutex
}

// Opt configures a [Pool].
type Opt func(*Pool)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Opt {
	return func(p *Pool) {
		p.now = now
	}
}

// New creates an empty [Pool] backed by repo.
func New(repo Repository, opts ...Opt) *Pool {
	p := &Pool{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
		meta: Metadata{Version: rule.DefaultVersion, Source: SourceFresh},
	}
	for _, opt := range opts {
		opt(p)
	}

	p.reset()

	return p
}

// Open creates a [Pool] and loads it from repo.
func Open(ctx context.Context, repo Repository, opts ...Opt) (*Pool, error) {
	p := New(repo, opts...)

	err := p.Load(ctx)
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Pool) reset() {
	p.rules = map[string]*rule.Rule{}
	p.byCategory = map[rule.Category]map[string]struct{}{}
	p.byTag = map[string]map[string]struct{}{}
	p.loadIssues = nil
}

// Load replaces the in-memory state with the repository contents and
// rebuilds the indices.
func (p *Pool) Load(ctx context.Context) error {
	snap, err := p.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load rule pool: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.reset()

	logger := log.WithContext(ctx)

	for _, key := range slices.Sorted(maps.Keys(snap.Rules)) {
		r := snap.Rules[key]
		if r == nil {
			continue
		}
		if r.ID == "" {
			r.ID = key
		}
		if r.ID != key {
			logger.WarnContext(ctx, "rule key does not match rule id",
				slog.String("key", key),
				slog.String("id", r.ID),
			)
		}
		if _, ok := p.rules[r.ID]; ok {
			p.loadIssues = append(p.loadIssues, rule.Issue{
				RuleID:   r.ID,
				Field:    "id",
				Code:     CodeDuplicateIDs,
				Message:  fmt.Sprintf("duplicate rule id %q under key %q", r.ID, key),
				Severity: rule.SeverityError,
			})

			continue
		}

		p.insertLocked(r)
	}

	p.meta = snap.Metadata
	if p.meta.Version == "" {
		p.meta.Version = rule.DefaultVersion
	}

	p.recomputeLocked()

	logger.DebugContext(ctx, "loaded rule pool", slog.Int("rules", len(p.rules)))

	return nil
}

// Create validates and stores a new rule. An empty id is replaced with a
// generated one. The stored copy is returned.
func (p *Pool) Create(ctx context.Context, r *rule.Rule) (*rule.Rule, error) {
	r = r.Clone()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	now := p.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}

	err := p.check(ctx, r)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.rules[r.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, r.ID)
	}

	prev := p.stateLocked()

	p.insertLocked(r)

	err = p.commitLocked(ctx, prev)
	if err != nil {
		return nil, err
	}

	return r.Clone(), nil
}

// Update applies fn to a copy of the rule with the given id, validates the
// result and stores it with a bumped update time. The id and creation time
// cannot be changed by fn.
func (p *Pool) Update(ctx context.Context, id string, fn func(*rule.Rule)) (*rule.Rule, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, ok := p.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	updated := current.Clone()
	fn(updated)
	updated.ID = current.ID
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = p.now()

	err := p.check(ctx, updated)
	if err != nil {
		return nil, err
	}

	prev := p.stateLocked()

	p.removeLocked(id)
	p.insertLocked(updated)

	err = p.commitLocked(ctx, prev)
	if err != nil {
		return nil, err
	}

	return updated.Clone(), nil
}

// Delete removes a rule. It returns false when no rule has the id, and
// [ErrDependencyConflict] when other rules depend on it; in both cases the
// pool is left unchanged.
func (p *Pool) Delete(ctx context.Context, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.stateLocked()

	deleted, err := p.deleteLocked(id)
	if err != nil || !deleted {
		return deleted, err
	}

	err = p.commitLocked(ctx, prev)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (p *Pool) deleteLocked(id string) (bool, error) {
	if _, ok := p.rules[id]; !ok {
		return false, nil
	}

	dependents := p.dependentsLocked(id)
	if len(dependents) > 0 {
		return false, fmt.Errorf("%w: cannot delete rule %s: %d rules depend on it",
			ErrDependencyConflict, id, len(dependents))
	}

	p.removeLocked(id)

	return true, nil
}

// Dependents returns the ids of rules whose dependsOn references id.
func (p *Pool) Dependents(id string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.dependentsLocked(id)
}

func (p *Pool) dependentsLocked(id string) []string {
	var ids []string
	for otherID, r := range p.rules {
		if otherID != id && slices.Contains(r.DependsOn, id) {
			ids = append(ids, otherID)
		}
	}

	slices.Sort(ids)

	return ids
}

// Get returns a copy of the rule with the given id.
func (p *Pool) Get(id string) (*rule.Rule, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	r, ok := p.rules[id]
	if !ok {
		return nil, false
	}

	return r.Clone(), true
}

// All returns copies of every rule, ordered by id.
func (p *Pool) All() []*rule.Rule {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.sortedLocked()
}

// IDs returns every rule id in order.
func (p *Pool) IDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return slices.Sorted(maps.Keys(p.rules))
}

// Len returns the number of rules.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.rules)
}

// ByCategory returns the ids indexed under c, in order.
func (p *Pool) ByCategory(c rule.Category) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return slices.Sorted(maps.Keys(p.byCategory[c]))
}

// ByTag returns the ids indexed under tag, in order.
func (p *Pool) ByTag(tag string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return slices.Sorted(maps.Keys(p.byTag[tag]))
}

// Metadata returns the current pool counters.
func (p *Pool) Metadata() Metadata {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.meta
}

// Snapshot returns a serializable copy of the pool.
func (p *Pool) Snapshot() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.snapshotLocked()
}

func (p *Pool) snapshotLocked() *Snapshot {
	snap := NewSnapshot()
	for id, r := range p.rules {
		snap.Rules[id] = r.Clone()
	}
	for c, ids := range p.byCategory {
		snap.Categories[c] = slices.Sorted(maps.Keys(ids))
	}
	for tag, ids := range p.byTag {
		snap.Tags[tag] = slices.Sorted(maps.Keys(ids))
	}

	snap.Metadata = p.meta

	return snap
}

func (p *Pool) sortedLocked() []*rule.Rule {
	out := make([]*rule.Rule, 0, len(p.rules))
	for _, id := range slices.Sorted(maps.Keys(p.rules)) {
		out = append(out, p.rules[id].Clone())
	}

	return out
}

func (p *Pool) check(ctx context.Context, r *rule.Rule) error {
	warnings, err := r.Check()
	if err != nil {
		return err //nolint:wrapcheck // Already wraps rule.ErrInvalid with the rule id.
	}

	for _, w := range warnings {
		log.WithContext(ctx).WarnContext(ctx, "rule validation warning",
			slog.String("id", r.ID),
			slog.String("code", w.Code),
			slog.String("message", w.Message),
		)
	}

	return nil
}

func (p *Pool) insertLocked(r *rule.Rule) {
	p.rules[r.ID] = r

	if p.byCategory[r.Category] == nil {
		p.byCategory[r.Category] = map[string]struct{}{}
	}

	p.byCategory[r.Category][r.ID] = struct{}{}

	for _, tag := range r.Tags {
		if p.byTag[tag] == nil {
			p.byTag[tag] = map[string]struct{}{}
		}

		p.byTag[tag][r.ID] = struct{}{}
	}
}

func (p *Pool) removeLocked(id string) {
	r, ok := p.rules[id]
	if !ok {
		return
	}

	delete(p.rules, id)

	if ids, ok := p.byCategory[r.Category]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(p.byCategory, r.Category)
		}
	}

	for _, tag := range r.Tags {
		if ids, ok := p.byTag[tag]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(p.byTag, tag)
			}
		}
	}
}

func (p *Pool) recomputeLocked() {
	custom := 0
	for _, r := range p.rules {
		if r.IsCustom {
			custom++
		}
	}

	p.meta.TotalRules = len(p.rules)
	p.meta.CustomRules = custom
	p.meta.PredefinedRules = len(p.rules) - custom
	p.meta.LastUpdated = p.now()

	switch {
	case p.meta.PredefinedRules == 0:
		p.meta.Source = SourceFresh
	case custom == 0:
		p.meta.Source = SourceMigration
	default:
		p.meta.Source = SourceMixed
	}
}

// state is the part of a pool restored when a mutation cannot be persisted.
// Stored rules are never modified in place, so a shallow copy suffices.
type state struct {
	rules map[string]*rule.Rule
	meta  Metadata
}

func (p *Pool) stateLocked() state {
	return state{rules: maps.Clone(p.rules), meta: p.meta}
}

func (p *Pool) restoreLocked(s state) {
	issues := p.loadIssues

	p.reset()
	p.loadIssues = issues

	for _, r := range s.rules {
		p.insertLocked(r)
	}

	p.meta = s.meta
}

// commitLocked recomputes the metadata and persists the pool. When saving
// fails the pool is restored to prev.
func (p *Pool) commitLocked(ctx context.Context, prev state) error {
	p.recomputeLocked()

	err := p.persistLocked(ctx)
	if err != nil {
		p.restoreLocked(prev)

		return err
	}

	return nil
}

func (p *Pool) persistLocked(ctx context.Context) error {
	logger := log.WithContext(ctx)

	location, err := p.repo.Backup(ctx)
	if err != nil {
		logger.WarnContext(ctx, "back up rule pool", slog.Any("err", err))
	} else if location != "" {
		logger.DebugContext(ctx, "backed up rule pool", slog.String("path", location))
	}

	err = p.repo.Save(ctx, p.snapshotLocked())
	if err != nil {
		return fmt.Errorf("save rule pool: %w", err)
	}

	return nil
}
