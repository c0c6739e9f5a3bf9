package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/macropower/rulepool/pkg/rule"
)

const (
	ExportVersion = "1.0.0"
	ExportSource  = "rule-pool-service"
)

// Export is the portable document produced by [Pool.Export].
type Export struct {
	ExportedAt time.Time      `json:"exportedAt"`
	Version    string         `json:"version"`
	Rules      []*rule.Rule   `json:"rules"`
	Modes      []any          `json:"modes,omitempty"`
	Metadata   ExportMetadata `json:"metadata"`
}

type ExportMetadata struct {
	Source     string `json:"source"`
	TotalRules int    `json:"totalRules"`
	TotalModes int    `json:"totalModes"`
}

// Export returns every rule, plus any mode documents supplied by the caller.
func (p *Pool) Export(modes ...any) *Export {
	rules := p.All()

	return &Export{
		Version:    ExportVersion,
		ExportedAt: p.now(),
		Rules:      rules,
		Modes:      modes,
		Metadata: ExportMetadata{
			Source:     ExportSource,
			TotalRules: len(rules),
			TotalModes: len(modes),
		},
	}
}

// ImportResult reports the outcome of [Pool.Import].
type ImportResult struct {
	Errors   []string `json:"errors,omitempty"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
}

// Import reads an [Export] document and stores its rules, keeping their ids
// and timestamps. Rules without an id get a generated one. Existing ids are
// skipped unless overwrite is set. Invalid rules are reported and skipped;
// the pool is persisted once at the end, and left unchanged if that fails.
func (p *Pool) Import(ctx context.Context, data []byte, overwrite bool) (*ImportResult, error) {
	var doc Export

	err := json.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}

	res := &ImportResult{}

	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.stateLocked()

	for _, r := range doc.Rules {
		if r == nil {
			continue
		}

		r = r.Clone()
		if r.ID == "" {
			r.ID = uuid.NewString()
		}

		_, exists := p.rules[r.ID]
		if exists && !overwrite {
			res.Skipped++
			continue
		}

		if r.CreatedAt.IsZero() {
			r.CreatedAt = p.now()
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = r.CreatedAt
		}

		err := p.check(ctx, r)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("import rule %q: %v", r.Title, err))
			continue
		}

		if exists {
			p.removeLocked(r.ID)
		}

		p.insertLocked(r)
		res.Imported++
	}

	if res.Imported == 0 {
		return res, nil
	}

	err = p.commitLocked(ctx, prev)
	if err != nil {
		res.Imported = 0

		return res, err
	}

	return res, nil
}

// BulkOpType names a [BulkOp].
type BulkOpType string

const (
	BulkEnable     BulkOpType = "enable"
	BulkDisable    BulkOpType = "disable"
	BulkSetUrgency BulkOpType = "setUrgency"
	BulkAddTag     BulkOpType = "addTag"
	BulkRemoveTag  BulkOpType = "removeTag"
	BulkDelete     BulkOpType = "delete"
)

var ErrInvalidBulkOp = errors.New("invalid bulk operation")

// BulkOp applies one change to many rules.
type BulkOp struct {
	Type    BulkOpType `json:"type"`
	Value   string     `json:"value,omitempty"`
	RuleIDs []string   `json:"ruleIds"`
}

// Bulk applies op to every listed rule and returns the ids that changed.
// Failures for individual rules are joined into the returned error; the
// remaining rules are still processed and the pool is persisted once. If
// persisting fails, no rule changes and no ids are returned.
func (p *Pool) Bulk(ctx context.Context, op BulkOp) ([]string, error) {
	mutate, err := op.mutator()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.stateLocked()

	var (
		affected []string
		errs     []error
	)

	for _, id := range op.RuleIDs {
		if op.Type == BulkDelete {
			deleted, err := p.deleteLocked(id)
			if err != nil {
				errs = append(errs, err)
			} else if deleted {
				affected = append(affected, id)
			}

			continue
		}

		current, ok := p.rules[id]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNotFound, id))
			continue
		}

		updated := current.Clone()
		if !mutate(updated) {
			continue
		}

		updated.UpdatedAt = p.now()
		p.removeLocked(id)
		p.insertLocked(updated)
		affected = append(affected, id)
	}

	if len(affected) > 0 {
		err := p.commitLocked(ctx, prev)
		if err != nil {
			affected = nil
			errs = append(errs, err)
		}
	}

	return affected, errors.Join(errs...)
}

// mutator returns a function applying the op to one rule, reporting whether
// anything changed.
func (op BulkOp) mutator() (func(*rule.Rule) bool, error) {
	switch op.Type {
	case BulkEnable, BulkDisable:
		active := op.Type == BulkEnable

		return func(r *rule.Rule) bool {
			changed := r.IsActive != active
			r.IsActive = active

			return changed
		}, nil

	case BulkSetUrgency:
		u, err := rule.ParseUrgency(op.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBulkOp, err)
		}

		return func(r *rule.Rule) bool {
			changed := r.Urgency != u
			r.Urgency = u

			return changed
		}, nil

	case BulkAddTag:
		if op.Value == "" {
			return nil, fmt.Errorf("%w: addTag requires a value", ErrInvalidBulkOp)
		}

		return func(r *rule.Rule) bool {
			if slices.Contains(r.Tags, op.Value) {
				return false
			}

			r.Tags = append(r.Tags, op.Value)

			return true
		}, nil

	case BulkRemoveTag:
		if op.Value == "" {
			return nil, fmt.Errorf("%w: removeTag requires a value", ErrInvalidBulkOp)
		}

		return func(r *rule.Rule) bool {
			n := len(r.Tags)
			r.Tags = slices.DeleteFunc(r.Tags, func(t string) bool { return t == op.Value })

			return len(r.Tags) != n
		}, nil

	case BulkDelete:
		return nil, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrInvalidBulkOp, op.Type)
}
