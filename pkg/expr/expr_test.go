package expr_test

import (
	"testing"

	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/traits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/rulepool/pkg/expr"
	"github.com/macropower/rulepool/pkg/rule"
)

func TestMatcher(t *testing.T) {
	t.Parallel()

	r := rule.New(
		rule.WithID("r1"),
		rule.WithTitle("Widget tests"),
		rule.WithContent("Write widget tests."),
		rule.WithCategory(rule.CategoryTestingRequirements),
		rule.WithUrgency(rule.UrgencyHigh),
		rule.WithTags("testing", "flutter"),
		rule.WithAppliesTo(rule.ProjectTypeFlutter),
		rule.WithSource("legacy/docs/CLAUDE.md", "Testing"),
	)

	tcs := map[string]struct {
		expression string
		want       bool
	}{
		"urgency at least high": {
			expression: `rule.urgency >= urgencyLevel("HIGH")`,
			want:       true,
		},
		"urgency name is case-insensitive": {
			expression: `rule.urgency > urgencyLevel("critical")`,
			want:       false,
		},
		"tag membership": {
			expression: `"flutter" in rule.tags`,
			want:       true,
		},
		"category equality": {
			expression: `rule.category == "SECURITY_RULES"`,
			want:       false,
		},
		"source file helpers": {
			expression: `pathBase(rule.sourceFile) == "CLAUDE.md" && pathExt(rule.sourceFile) == ".md" && pathDir(rule.sourceFile) == "legacy/docs"`,
			want:       true,
		},
		"string extensions": {
			expression: `rule.title.lowerAscii().contains("widget")`,
			want:       true,
		},
		"applies to": {
			expression: `rule.appliesTo.exists(p, p in ["FLUTTER", "ALL"])`,
			want:       true,
		},
		"flags": {
			expression: `rule.isActive && rule.isCustom`,
			want:       true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m, err := expr.CompileMatcher(tc.expression)
			require.NoError(t, err)
			assert.Equal(t, tc.expression, m.String())

			got, err := m.Match(r)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMatcherErrors(t *testing.T) {
	t.Parallel()

	r := rule.New(rule.WithID("r1"), rule.WithContent("c"))

	tcs := map[string]struct {
		expression string
		compileErr bool
		evalErr    error
	}{
		"syntax error": {
			expression: `rule.urgency >=`,
			compileErr: true,
		},
		"unknown variable": {
			expression: `files.exists(f, true)`,
			compileErr: true,
		},
		"non-bool static type": {
			expression: `1 + 2`,
			compileErr: true,
		},
		"non-bool dynamic result": {
			expression: `rule.title`,
			evalErr:    expr.ErrNotBool,
		},
		"unknown urgency": {
			expression: `rule.urgency >= urgencyLevel("SEVERE")`,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m, err := expr.CompileMatcher(tc.expression)
			if tc.compileErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)

			_, err = m.Match(r)
			require.Error(t, err)

			if tc.evalErr != nil {
				require.ErrorIs(t, err, tc.evalErr)
			}
		})
	}
}

func TestEnvironmentIsolation(t *testing.T) {
	t.Parallel()

	env := expr.MustNewEnvironment()

	m, err := env.CompileMatcher(`rule.id == "a"`)
	require.NoError(t, err)

	got, err := m.Match(rule.New(rule.WithID("a")))
	require.NoError(t, err)
	assert.True(t, got)
}

func TestConvertToCELValue(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input any
		want  any
	}{
		"nil":         {input: nil, want: types.NullValue},
		"bool":        {input: true, want: types.Bool(true)},
		"int":         {input: 3, want: types.Int(3)},
		"int64":       {input: int64(-4), want: types.Int(-4)},
		"float":       {input: 1.5, want: types.Double(1.5)},
		"string":      {input: "x", want: types.String("x")},
		"unsupported": {input: struct{}{}, want: types.NullValue},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, expr.ConvertToCELValue(tc.input))
		})
	}
}

func TestConvertToCELValueCollections(t *testing.T) {
	t.Parallel()

	list, ok := expr.ConvertToCELValue([]string{"a", "b"}).(traits.Lister)
	require.True(t, ok)
	assert.Equal(t, types.Int(2), list.Size())
	assert.Equal(t, types.String("b"), list.Get(types.Int(1)))

	m, ok := expr.ConvertToCELValue(map[string]any{"k": []any{1}}).(traits.Mapper)
	require.True(t, ok)

	nested, ok := m.Get(types.String("k")).(traits.Lister)
	require.True(t, ok)
	assert.Equal(t, types.Int(1), nested.Get(types.Int(0)))
}
