package selection_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/rulepool/pkg/rule"
	"github.com/macropower/rulepool/pkg/selection"
	"github.com/macropower/rulepool/pkg/yaml"
)

func newRule(id string, c rule.Category, u rule.Urgency, opts ...rule.Opt) *rule.Rule {
	base := []rule.Opt{
		rule.WithID(id),
		rule.WithTitle(id),
		rule.WithContent("content of " + id),
		rule.WithCategory(c),
		rule.WithUrgency(u),
	}

	return rule.New(append(base, opts...)...)
}

// scenarioPool is R1(TESTING_REQUIREMENTS, CRITICAL), R2(TESTING_REQUIREMENTS,
// LOW), R3(SECURITY_RULES, HIGH).
func scenarioPool() selection.Rules {
	return selection.Rules{
		newRule("R3", rule.CategorySecurityRules, rule.UrgencyHigh, rule.WithTags("security")),
		newRule("R1", rule.CategoryTestingRequirements, rule.UrgencyCritical, rule.WithTags("testing")),
		newRule("R2", rule.CategoryTestingRequirements, rule.UrgencyLow,
			rule.WithTags("testing"),
			rule.WithAppliesTo(rule.ProjectTypeFlutter),
		),
	}
}

func urgency(u rule.Urgency) *rule.Urgency {
	return &u
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		sel        selection.Selection
		want       []string
		unresolved []string
	}{
		"empty selects whole pool in id order": {
			want: []string{"R1", "R2", "R3"},
		},
		"explicit exclude frees a capped slot": {
			sel: selection.Selection{
				IncludeRules: []string{"R1", "R2", "R3"},
				ExcludeRules: []string{"R1"},
				MaxRules:     1,
			},
			want: []string{"R3"},
		},
		"explicit only without includes selects nothing": {
			sel: selection.Selection{
				ExplicitOnly: true,
				UrgencyFilter: &selection.UrgencyFilter{
					Minimum: urgency(rule.UrgencyLow),
					Maximum: urgency(rule.UrgencyCritical),
				},
				MaxRules: 100,
			},
			want: []string{},
		},
		"explicit only keeps category includes": {
			sel: selection.Selection{
				ExplicitOnly:      true,
				IncludeCategories: []rule.Category{rule.CategorySecurityRules},
			},
			want: []string{"R3"},
		},
		"category include with cap": {
			sel: selection.Selection{
				IncludeCategories: []rule.Category{rule.CategoryTestingRequirements},
				MaxRules:          1,
			},
			want: []string{"R1"},
		},
		"explicit exclude wins over explicit include": {
			sel: selection.Selection{
				ExplicitIncludes: []string{"R2", "R3"},
				ExplicitExcludes: []string{"R3"},
			},
			want: []string{"R2"},
		},
		"explicit includes keep listed order": {
			sel: selection.Selection{
				ExplicitIncludes: []string{"R3", "R1"},
			},
			want: []string{"R3", "R1"},
		},
		"unknown explicit ids are reported": {
			sel: selection.Selection{
				IncludeRules: []string{"R1", "nope"},
			},
			want:       []string{"R1"},
			unresolved: []string{"nope"},
		},
		"flat category include appends after explicit ids": {
			sel: selection.Selection{
				ExplicitIncludes:  []string{"R3"},
				Categories:        []rule.Category{rule.CategoryTestingRequirements},
				ExplicitExcludes:  []string{"R2"},
				ExcludeCategories: []rule.Category{rule.CategorySecurityRules},
			},
			want: []string{"R1"},
		},
		"include criteria are OR'ed": {
			sel: selection.Selection{
				Include: []selection.Criterion{
					{Categories: []rule.Category{rule.CategorySecurityRules}},
					{Urgency: []rule.Urgency{rule.UrgencyLow}},
				},
			},
			want: []string{"R2", "R3"},
		},
		"criterion fields are AND'ed": {
			sel: selection.Selection{
				Include: []selection.Criterion{{
					Categories: []rule.Category{rule.CategoryTestingRequirements},
					Urgency:    []rule.Urgency{rule.UrgencyHigh},
				}},
			},
			want: []string{},
		},
		"project type matches ALL rules": {
			sel: selection.Selection{
				Include: []selection.Criterion{{ProjectTypes: []rule.ProjectType{rule.ProjectTypePython}}},
			},
			want: []string{"R1", "R3"},
		},
		"exclude criteria": {
			sel: selection.Selection{
				Exclude: []selection.Criterion{{Tags: []string{"testing"}}},
			},
			want: []string{"R3"},
		},
		"required categories and min urgency": {
			sel: selection.Selection{
				RequiredCategories: []rule.Category{rule.CategoryTestingRequirements},
				MinUrgency:         urgency(rule.UrgencyMedium),
			},
			want: []string{"R1"},
		},
		"urgency filter bounds": {
			sel: selection.Selection{
				UrgencyFilter: &selection.UrgencyFilter{
					Minimum: urgency(rule.UrgencyLow),
					Maximum: urgency(rule.UrgencyHigh),
				},
			},
			want: []string{"R2", "R3"},
		},
		"cap keeps higher urgency": {
			sel: selection.Selection{
				MaxRules: 2,
			},
			want: []string{"R1", "R3"},
		},
		"match expression": {
			sel: selection.Selection{
				Include: []selection.Criterion{{Match: `rule.urgency >= urgencyLevel("HIGH") && "testing" in rule.tags`}},
			},
			want: []string{"R1"},
		},
		"title pattern and content search": {
			sel: selection.Selection{
				Include: []selection.Criterion{
					{TitlePattern: "^r3$"},
					{ContentSearch: "OF R2"},
				},
			},
			want: []string{"R2", "R3"},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			spec, err := tc.sel.Spec()
			require.NoError(t, err)

			res, err := selection.Resolve(scenarioPool(), spec)
			require.NoError(t, err)

			assert.Equal(t, tc.want, res.IDs)
			assert.Equal(t, tc.unresolved, res.Unresolved)
		})
	}
}

func TestResolveInactive(t *testing.T) {
	t.Parallel()

	src := selection.Rules{
		newRule("a", rule.CategoryCustom, rule.UrgencyHigh),
		newRule("b", rule.CategoryCustom, rule.UrgencyHigh, rule.WithActive(false)),
	}

	res, err := selection.Resolve(src, selection.Spec{Kind: selection.KindCriteria})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.IDs)

	res, err = selection.Resolve(src, selection.Spec{ExplicitIncludes: []string{"b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, res.IDs)
}

func TestResolveDeterministic(t *testing.T) {
	t.Parallel()

	src := selection.Rules{}
	for i, id := range strings.Fields("k c x a m b q z e") {
		src = append(src, newRule(id, rule.CategoryCustom, rule.Urgency(i%5)))
	}

	spec := selection.Spec{Kind: selection.KindCriteria, MaxRules: 4}

	first, err := selection.Resolve(src, spec)
	require.NoError(t, err)
	require.Len(t, first.IDs, 4)

	for range 10 {
		again, err := selection.Resolve(src, spec)
		require.NoError(t, err)
		assert.Equal(t, first.IDs, again.IDs)
	}
}

func TestResolveCapKeepsHighestUrgency(t *testing.T) {
	t.Parallel()

	src := selection.Rules{}
	for i, id := range strings.Fields("a b c d e f g h i j") {
		src = append(src, newRule(id, rule.CategoryCustom, rule.Urgency((i*3)%5)))
	}

	for maxRules := 1; maxRules < len(src); maxRules++ {
		res, err := selection.Resolve(src, selection.Spec{MaxRules: maxRules})
		require.NoError(t, err)
		require.Len(t, res.IDs, maxRules)

		kept := map[string]bool{}
		lowestKept := rule.UrgencyCritical
		for _, id := range res.IDs {
			kept[id] = true
			r, _ := src.Get(id)
			lowestKept = min(lowestKept, r.Urgency)
		}

		for _, r := range src {
			if !kept[r.ID] {
				assert.LessOrEqual(t, r.Urgency, lowestKept, "dropped %s outranks a kept rule", r.ID)
			}
		}

		// Equal-urgency rules keep their prior (id) order.
		for i := 1; i < len(res.IDs); i++ {
			prev, _ := src.Get(res.IDs[i-1])
			cur, _ := src.Get(res.IDs[i])
			if prev.Urgency == cur.Urgency {
				assert.Less(t, prev.ID, cur.ID)
			}
		}
	}
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		spec selection.Spec
		err  error
	}{
		"invalid match expression": {
			spec: selection.Spec{Include: []selection.Criterion{{Match: "rule.urgency >="}}},
			err:  selection.ErrInvalidCriterion,
		},
		"invalid title pattern": {
			spec: selection.Spec{Exclude: []selection.Criterion{{TitlePattern: "("}}},
			err:  selection.ErrInvalidCriterion,
		},
		"unknown category": {
			spec: selection.Spec{RequiredCategories: []rule.Category{"NOPE"}},
			err:  rule.ErrUnknownCategory,
		},
		"inverted urgency bounds": {
			spec: selection.Spec{MinUrgency: urgency(rule.UrgencyHigh), MaxUrgency: urgency(rule.UrgencyLow)},
			err:  selection.ErrInvalidSelection,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := selection.Resolve(scenarioPool(), tc.spec)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestSelectionDecode(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input string
		want  selection.Spec
		err   error
	}{
		"flat aliases": {
			input: `
includeRules: [a, b]
explicitIncludes: [b, c]
excludeRules: [d]
categories: [TESTING_REQUIREMENTS]
minimumUrgency: low
maxRules: 10
`,
			want: selection.Spec{
				Kind:              selection.KindFlat,
				ExplicitIncludes:  []string{"b", "c", "a"},
				ExplicitExcludes:  []string{"d"},
				IncludeCategories: []rule.Category{rule.CategoryTestingRequirements},
				MinUrgency:        urgency(rule.UrgencyLow),
				MaxRules:          10,
			},
		},
		"criteria": {
			input: `
include:
  - categories: [SECURITY_RULES]
    urgency: [HIGH, CRITICAL]
minUrgency: MEDIUM
`,
			want: selection.Spec{
				Kind: selection.KindCriteria,
				Include: []selection.Criterion{{
					Categories: []rule.Category{rule.CategorySecurityRules},
					Urgency:    []rule.Urgency{rule.UrgencyHigh, rule.UrgencyCritical},
				}},
				MinUrgency: urgency(rule.UrgencyMedium),
			},
		},
		"urgency filter": {
			input: `{"urgencyFilter": {"minimum": "LOW", "maximum": "HIGH"}}`,
			want: selection.Spec{
				Kind:       selection.KindFlat,
				MinUrgency: urgency(rule.UrgencyLow),
				MaxUrgency: urgency(rule.UrgencyHigh),
			},
		},
		"mixed forms": {
			input: `{"include": [{}], "includeCategories": ["CUSTOM"]}`,
			err:   selection.ErrInvalidSelection,
		},
		"negative cap": {
			input: `{"maxRules": -1}`,
			err:   selection.ErrInvalidSelection,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var sel selection.Selection
			require.NoError(t, yaml.NewDecoder(strings.NewReader(tc.input)).Decode(&sel))

			spec, err := sel.Spec()
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, spec)
		})
	}
}

func TestCriterionCompile(t *testing.T) {
	t.Parallel()

	c := selection.Criterion{
		Categories: []rule.Category{rule.CategoryTestingRequirements},
		Match:      `rule.urgency >= urgencyLevel("HIGH")`,
	}

	m, err := c.Compile()
	require.NoError(t, err)

	want := map[string]bool{"R1": true, "R2": false, "R3": false}
	for _, r := range scenarioPool() {
		ok, err := m.Match(r)
		require.NoError(t, err)
		assert.Equal(t, want[r.ID], ok, r.ID)
	}

	_, err = (&selection.Criterion{Categories: []rule.Category{"NOPE"}}).Compile()
	require.ErrorIs(t, err, rule.ErrUnknownCategory)

	_, err = (&selection.Criterion{TitlePattern: "("}).Compile()
	require.ErrorIs(t, err, selection.ErrInvalidCriterion)
}
