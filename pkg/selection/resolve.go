package selection

import (
	"cmp"
	"slices"

	"github.com/macropower/rulepool/pkg/rule"
)

// RuleSource is the read side of a rule store. All must return rules in a
// stable order.
type RuleSource interface {
	Get(id string) (*rule.Rule, bool)
	All() []*rule.Rule
}

// Rules is a [RuleSource] over a fixed list.
type Rules []*rule.Rule

func (rs Rules) Get(id string) (*rule.Rule, bool) {
	for _, r := range rs {
		if r.ID == id {
			return r, true
		}
	}

	return nil, false
}

// All returns the rules ordered by id.
func (rs Rules) All() []*rule.Rule {
	return slices.SortedStableFunc(slices.Values(rs), func(a, b *rule.Rule) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

// Result is the outcome of [Resolve].
type Result struct {
	// IDs of the selected rules, in resolution order.
	IDs []string `json:"ids"`
	// Unresolved explicit include ids that do not exist in the source.
	Unresolved []string `json:"unresolved,omitempty"`
}

// Resolve computes the ordered rule ids selected by spec.
//
// The steps run in a fixed order:
//  1. Candidates are the explicit includes in listed order, else every
//     active rule in source order. Flat specs with category includes and
//     explicit-only specs start from the explicit includes alone.
//  2. Include criteria are OR'ed and intersected with the candidates.
//  3. Flat category includes are appended, skipping explicit excludes.
//  4. Exclude criteria, excluded categories and explicit excludes are
//     subtracted.
//  5. Only rules in requiredCategories are kept.
//  6. Rules outside the urgency bounds are dropped.
//  7. Over maxRules, rules are stable-sorted by urgency descending and cut.
//  8. Explicit excludes are subtracted again.
//
// Inactive rules are only selected when listed explicitly.
func Resolve(src RuleSource, spec Spec) (*Result, error) {
	err := spec.Validate()
	if err != nil {
		return nil, err
	}

	include, err := compileAll(spec.Include)
	if err != nil {
		return nil, err
	}

	exclude, err := compileAll(spec.Exclude)
	if err != nil {
		return nil, err
	}

	res := &Result{}

	all := src.All()

	// Step 1.
	var candidates []*rule.Rule

	switch {
	case len(spec.ExplicitIncludes) > 0:
		for _, id := range spec.ExplicitIncludes {
			r, ok := src.Get(id)
			if !ok {
				res.Unresolved = append(res.Unresolved, id)
				continue
			}

			candidates = append(candidates, r)
		}
	case spec.Kind == KindFlat && len(spec.IncludeCategories) > 0:
		// Populated by step 3.
	case spec.ExplicitOnly:
		// Nothing listed.
	default:
		for _, r := range all {
			if r.IsActive {
				candidates = append(candidates, r)
			}
		}
	}

	// Step 2.
	if len(include) > 0 {
		candidates, err = filter(candidates, func(r *rule.Rule) (bool, error) {
			return matchAny(include, r)
		})
		if err != nil {
			return nil, err
		}
	}

	// Step 3.
	if len(spec.IncludeCategories) > 0 {
		present := idSet(candidates)
		for _, r := range all {
			if !r.IsActive || !slices.Contains(spec.IncludeCategories, r.Category) {
				continue
			}
			if _, ok := present[r.ID]; ok || slices.Contains(spec.ExplicitExcludes, r.ID) {
				continue
			}

			candidates = append(candidates, r)
			present[r.ID] = struct{}{}
		}
	}

	// Step 4.
	if len(exclude) > 0 || len(spec.ExcludeCategories) > 0 || len(spec.ExplicitExcludes) > 0 {
		candidates, err = filter(candidates, func(r *rule.Rule) (bool, error) {
			if slices.Contains(spec.ExcludeCategories, r.Category) || slices.Contains(spec.ExplicitExcludes, r.ID) {
				return false, nil
			}

			excluded, err := matchAny(exclude, r)

			return !excluded, err
		})
		if err != nil {
			return nil, err
		}
	}

	// Steps 5 and 6.
	candidates, _ = filter(candidates, func(r *rule.Rule) (bool, error) {
		if len(spec.RequiredCategories) > 0 && !slices.Contains(spec.RequiredCategories, r.Category) {
			return false, nil
		}
		if spec.MinUrgency != nil && r.Urgency < *spec.MinUrgency {
			return false, nil
		}
		if spec.MaxUrgency != nil && r.Urgency > *spec.MaxUrgency {
			return false, nil
		}

		return true, nil
	})

	// Step 7.
	if spec.MaxRules > 0 && len(candidates) > spec.MaxRules {
		slices.SortStableFunc(candidates, func(a, b *rule.Rule) int {
			return cmp.Compare(b.Urgency, a.Urgency)
		})

		candidates = candidates[:spec.MaxRules]
	}

	// Step 8.
	res.IDs = make([]string, 0, len(candidates))
	for _, r := range candidates {
		if !slices.Contains(spec.ExplicitExcludes, r.ID) {
			res.IDs = append(res.IDs, r.ID)
		}
	}

	return res, nil
}

func compileAll(cs []Criterion) ([]*compiledCriterion, error) {
	out := make([]*compiledCriterion, 0, len(cs))
	for i := range cs {
		cc, err := cs[i].compile()
		if err != nil {
			return nil, err
		}

		out = append(out, cc)
	}

	return out, nil
}

func matchAny(cs []*compiledCriterion, r *rule.Rule) (bool, error) {
	for _, cc := range cs {
		ok, err := cc.matches(r)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	return false, nil
}

func filter(rs []*rule.Rule, keep func(*rule.Rule) (bool, error)) ([]*rule.Rule, error) {
	out := rs[:0:0]
	for _, r := range rs {
		ok, err := keep(r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}

	return out, nil
}

func idSet(rs []*rule.Rule) map[string]struct{} {
	set := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		set[r.ID] = struct{}{}
	}

	return set
}
