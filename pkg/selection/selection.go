package selection

import (
	"errors"
	"fmt"
	"slices"

	"github.com/macropower/rulepool/pkg/rule"
)

var (
	ErrInvalidCriterion = errors.New("invalid selection criterion")
	ErrInvalidSelection = errors.New("invalid selection")
)

// Kind tags which selection form a [Spec] was decoded from.
type Kind string

const (
	KindCriteria Kind = "ByCriteria"
	KindFlat     Kind = "ByFlatLists"
)

// UrgencyFilter bounds rule urgency.
type UrgencyFilter struct {
	Minimum *rule.Urgency `json:"minimum,omitempty" jsonschema:"title=Minimum"`
	Maximum *rule.Urgency `json:"maximum,omitempty" jsonschema:"title=Maximum"`
}

// Selection is the document form of a rule selection. Alias fields are
// accepted on decode and folded into the canonical field by [Selection.Spec].
type Selection struct {
	UrgencyFilter      *UrgencyFilter  `json:"urgencyFilter,omitempty"      jsonschema:"title=Urgency Filter"`
	MinUrgency         *rule.Urgency   `json:"minUrgency,omitempty"         jsonschema:"title=Minimum Urgency"`
	MinimumUrgency     *rule.Urgency   `json:"minimumUrgency,omitempty"     jsonschema:"title=Minimum Urgency (Alias)"`
	Include            []Criterion     `json:"include,omitempty"            jsonschema:"title=Include"`
	Exclude            []Criterion     `json:"exclude,omitempty"            jsonschema:"title=Exclude"`
	ExplicitIncludes   []string        `json:"explicitIncludes,omitempty"   jsonschema:"title=Explicit Includes"`
	IncludeRules       []string        `json:"includeRules,omitempty"       jsonschema:"title=Include Rules (Alias)"`
	ExplicitExcludes   []string        `json:"explicitExcludes,omitempty"   jsonschema:"title=Explicit Excludes"`
	ExcludeRules       []string        `json:"excludeRules,omitempty"       jsonschema:"title=Exclude Rules (Alias)"`
	RequiredCategories []rule.Category `json:"requiredCategories,omitempty" jsonschema:"title=Required Categories"`
	IncludeCategories  []rule.Category `json:"includeCategories,omitempty"  jsonschema:"title=Include Categories"`
	Categories         []rule.Category `json:"categories,omitempty"         jsonschema:"title=Categories (Alias)"`
	ExcludeCategories  []rule.Category `json:"excludeCategories,omitempty"  jsonschema:"title=Exclude Categories"`
	MaxRules           int             `json:"maxRules,omitempty"           jsonschema:"title=Max Rules,minimum=0"`
	// ExplicitOnly restricts the candidates to the explicit includes and
	// included categories. With neither set, nothing is selected.
	ExplicitOnly bool `json:"explicitOnly,omitempty" jsonschema:"title=Explicit Only"`
}

// IsZero reports whether no selection field is set.
func (s *Selection) IsZero() bool {
	if s == nil {
		return true
	}

	return s.UrgencyFilter == nil && s.MinUrgency == nil && s.MinimumUrgency == nil &&
		len(s.Include) == 0 && len(s.Exclude) == 0 &&
		len(s.ExplicitIncludes) == 0 && len(s.IncludeRules) == 0 &&
		len(s.ExplicitExcludes) == 0 && len(s.ExcludeRules) == 0 &&
		len(s.RequiredCategories) == 0 && len(s.IncludeCategories) == 0 &&
		len(s.Categories) == 0 && len(s.ExcludeCategories) == 0 &&
		s.MaxRules == 0 && !s.ExplicitOnly
}

func (s *Selection) flat() bool {
	return s.UrgencyFilter != nil || s.MinimumUrgency != nil ||
		len(s.IncludeRules) > 0 || len(s.ExcludeRules) > 0 ||
		len(s.IncludeCategories) > 0 || len(s.Categories) > 0 ||
		len(s.ExcludeCategories) > 0
}

func (s *Selection) criteria() bool {
	return len(s.Include) > 0 || len(s.Exclude) > 0 ||
		len(s.RequiredCategories) > 0 || s.MinUrgency != nil
}

// Spec classifies the document and returns its canonical [Spec].
//
// Documents using only criteria fields (or only explicit id lists) are
// [KindCriteria]; documents using any flat-only field are [KindFlat]. A
// document mixing criteria lists with flat category lists is rejected.
func (s *Selection) Spec() (Spec, error) {
	if s == nil {
		return Spec{Kind: KindCriteria}, nil
	}

	kind := KindCriteria
	if s.flat() {
		if len(s.Include) > 0 || len(s.Exclude) > 0 {
			return Spec{}, fmt.Errorf("%w: include/exclude criteria cannot be combined with flat category lists", ErrInvalidSelection)
		}

		kind = KindFlat
	}

	if s.MaxRules < 0 {
		return Spec{}, fmt.Errorf("%w: maxRules must not be negative, got %d", ErrInvalidSelection, s.MaxRules)
	}

	spec := Spec{
		Kind:               kind,
		Include:            slices.Clone(s.Include),
		Exclude:            slices.Clone(s.Exclude),
		ExplicitIncludes:   dedupe(s.ExplicitIncludes, s.IncludeRules),
		ExplicitExcludes:   dedupe(s.ExplicitExcludes, s.ExcludeRules),
		RequiredCategories: slices.Clone(s.RequiredCategories),
		IncludeCategories:  dedupe(s.IncludeCategories, s.Categories),
		ExcludeCategories:  slices.Clone(s.ExcludeCategories),
		MaxRules:           s.MaxRules,
		ExplicitOnly:       s.ExplicitOnly,
	}

	switch {
	case s.MinUrgency != nil:
		spec.MinUrgency = s.MinUrgency
	case s.MinimumUrgency != nil:
		spec.MinUrgency = s.MinimumUrgency
	case s.UrgencyFilter != nil:
		spec.MinUrgency = s.UrgencyFilter.Minimum
	}

	if s.UrgencyFilter != nil {
		spec.MaxUrgency = s.UrgencyFilter.Maximum
	}

	err := spec.Validate()
	if err != nil {
		return Spec{}, err
	}

	return spec, nil
}

// Spec is the canonical selection. Fields that do not apply to the Kind are
// left empty.
type Spec struct {
	MinUrgency         *rule.Urgency
	MaxUrgency         *rule.Urgency
	Kind               Kind
	Include            []Criterion
	Exclude            []Criterion
	ExplicitIncludes   []string
	ExplicitExcludes   []string
	RequiredCategories []rule.Category
	IncludeCategories  []rule.Category
	ExcludeCategories  []rule.Category
	MaxRules           int
	ExplicitOnly       bool
}

// Validate checks enum values and bounds.
func (s *Spec) Validate() error {
	for _, cs := range [][]Criterion{s.Include, s.Exclude} {
		for i := range cs {
			err := cs[i].validate()
			if err != nil {
				return err
			}
		}
	}

	for _, cats := range [][]rule.Category{s.RequiredCategories, s.IncludeCategories, s.ExcludeCategories} {
		for _, c := range cats {
			if !c.Valid() {
				return fmt.Errorf("%w: %w: %q", ErrInvalidSelection, rule.ErrUnknownCategory, c)
			}
		}
	}

	for _, u := range []*rule.Urgency{s.MinUrgency, s.MaxUrgency} {
		if u != nil && !u.Valid() {
			return fmt.Errorf("%w: %w: %d", ErrInvalidSelection, rule.ErrUnknownUrgency, *u)
		}
	}

	if s.MinUrgency != nil && s.MaxUrgency != nil && *s.MaxUrgency < *s.MinUrgency {
		return fmt.Errorf("%w: maximum urgency %s is below minimum %s", ErrInvalidSelection, *s.MaxUrgency, *s.MinUrgency)
	}

	return nil
}

// dedupe concatenates lists, keeping the first occurrence of each value.
func dedupe[T comparable](lists ...[]T) []T {
	var out []T

	seen := map[T]struct{}{}
	for _, list := range lists {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}

			seen[v] = struct{}{}
			out = append(out, v)
		}
	}

	return out
}
