package render_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/render"
	"github.com/macropower/rulepool/pkg/rule"
	"github.com/macropower/rulepool/pkg/selection"
)

var generatedAt = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

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

func testRules() selection.Rules {
	return selection.Rules{
		newRule("R1", rule.CategoryTestingRequirements, rule.UrgencyCritical, rule.WithTags("testing", "unit")),
		newRule("R2", rule.CategoryTestingRequirements, rule.UrgencyLow),
		newRule("R3", rule.CategorySecurityRules, rule.UrgencyHigh, rule.WithDescription("Keep secrets out.")),
	}
}

func testContext() render.Context {
	rc := render.DefaultContext()
	rc.GeneratedAt = generatedAt

	return rc
}

func ptr[T any](v T) *T {
	return &v
}

func ids(rules []*rule.Rule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.ID)
	}

	return out
}

func TestApplyOverrides(t *testing.T) {
	t.Parallel()

	rules := testRules()

	got := render.ApplyOverrides(rules, map[string]mode.RuleOverride{
		"R1": {Title: ptr("Tests first"), Tags: []string{"unit", "tdd"}},
		"R2": {Disabled: true},
		"R3": {Urgency: ptr(rule.UrgencyCritical), Content: ptr("No secrets.")},
	})

	require.Equal(t, []string{"R1", "R3"}, ids(got))

	assert.Equal(t, "Tests first", got[0].Title)
	assert.Equal(t, []string{"testing", "unit", "tdd"}, got[0].Tags)
	assert.Equal(t, rule.UrgencyCritical, got[1].Urgency)
	assert.Equal(t, "No secrets.", got[1].Content)

	// The pool's rules are untouched.
	assert.Equal(t, "R1", rules[0].Title)
	assert.Equal(t, []string{"testing", "unit"}, rules[0].Tags)
	assert.Equal(t, rule.UrgencyHigh, rules[2].Urgency)
}

func TestOrder(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tcs := map[string]struct {
		by     mode.OrderBy
		custom []string
		want   []string
	}{
		"none keeps input order": {
			want: []string{"b", "a", "c", "d"},
		},
		"urgency descending and stable": {
			by:   mode.OrderByUrgency,
			want: []string{"c", "b", "d", "a"},
		},
		"title case insensitive": {
			by:   mode.OrderByTitle,
			want: []string{"a", "b", "c", "d"},
		},
		"created ascending": {
			by:   mode.OrderByCreated,
			want: []string{"d", "c", "b", "a"},
		},
		"custom with unlisted last": {
			by:     mode.OrderByCustom,
			custom: []string{"d", "a"},
			want:   []string{"d", "a", "b", "c"},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			rules := []*rule.Rule{
				newRule("b", rule.CategoryCustom, rule.UrgencyHigh,
					rule.WithTitle("beta"), rule.WithTimestamps(base.Add(2*time.Hour))),
				newRule("a", rule.CategoryCustom, rule.UrgencyLow,
					rule.WithTitle("Alpha"), rule.WithTimestamps(base.Add(3*time.Hour))),
				newRule("c", rule.CategoryCustom, rule.UrgencyCritical,
					rule.WithTitle("Gamma"), rule.WithTimestamps(base.Add(time.Hour))),
				newRule("d", rule.CategoryCustom, rule.UrgencyHigh,
					rule.WithTitle("delta"), rule.WithTimestamps(base)),
			}

			render.Order(rules, tc.by, tc.custom)
			assert.Equal(t, tc.want, ids(rules))
		})
	}
}

func TestGroupRules(t *testing.T) {
	t.Parallel()

	rules := []*rule.Rule{
		newRule("R1", rule.CategoryTestingRequirements, rule.UrgencyCritical, rule.WithSource("docs/testing.md", "Tests")),
		newRule("R3", rule.CategorySecurityRules, rule.UrgencyHigh),
		newRule("R2", rule.CategoryTestingRequirements, rule.UrgencyLow, rule.WithSource("docs/testing.md", "Tests")),
		newRule("R4", rule.CategorySecurityRules, rule.UrgencyCritical, rule.WithTags("secrets")),
	}

	type group struct {
		Key  string
		Name string
		IDs  []string
	}

	tcs := map[string]struct {
		by     mode.GroupBy
		custom []mode.Group
		want   []group
	}{
		"category in first-seen order": {
			by: mode.GroupByCategory,
			want: []group{
				{Key: "TESTING_REQUIREMENTS", Name: "Testing Requirements", IDs: []string{"R1", "R2"}},
				{Key: "SECURITY_RULES", Name: "Security Rules", IDs: []string{"R3", "R4"}},
			},
		},
		"urgency": {
			by: mode.GroupByUrgency,
			want: []group{
				{Key: "CRITICAL", Name: "Critical", IDs: []string{"R1", "R4"}},
				{Key: "HIGH", Name: "High", IDs: []string{"R3"}},
				{Key: "LOW", Name: "Low", IDs: []string{"R2"}},
			},
		},
		"source": {
			by: mode.GroupBySource,
			want: []group{
				{Key: "docs/testing.md", Name: "testing.md", IDs: []string{"R1", "R2"}},
				{Key: "", Name: "Unknown Source", IDs: []string{"R3", "R4"}},
			},
		},
		"none": {
			by: mode.GroupByNone,
			want: []group{
				{IDs: []string{"R1", "R3", "R2", "R4"}},
			},
		},
		"custom by order with other last": {
			by: mode.GroupByCustom,
			custom: []mode.Group{
				{
					ID:       "empty",
					Name:     "Empty",
					Order:    0,
					Criteria: selection.Criterion{Tags: []string{"nothing"}},
				},
				{
					ID:       "secrets",
					Name:     "Secrets",
					Header:   "Secret Handling",
					Order:    1,
					Criteria: selection.Criterion{Tags: []string{"secrets"}},
				},
				{
					ID:       "critical",
					Name:     "Critical",
					Order:    2,
					Criteria: selection.Criterion{Urgency: []rule.Urgency{rule.UrgencyCritical}},
				},
			},
			want: []group{
				{Key: "secrets", Name: "Secret Handling", IDs: []string{"R4"}},
				{Key: "critical", Name: "Critical", IDs: []string{"R1"}},
				{Key: "Other", Name: "Other", IDs: []string{"R3", "R2"}},
			},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			groups, err := render.GroupRules(rules, tc.by, tc.custom)
			require.NoError(t, err)

			got := make([]group, 0, len(groups))
			total := 0

			for _, g := range groups {
				got = append(got, group{Key: g.Key, Name: g.Name, IDs: ids(g.Rules)})
				total += len(g.Rules)
			}

			assert.Equal(t, tc.want, got)
			// Every rule lands in exactly one group.
			assert.Equal(t, len(rules), total)
		})
	}
}

func TestGroupRulesInvalidCriteria(t *testing.T) {
	t.Parallel()

	_, err := render.GroupRules(testRules(), mode.GroupByCustom, []mode.Group{
		{ID: "bad", Criteria: selection.Criterion{Match: "rule.title +"}},
	})
	require.ErrorContains(t, err, `custom group "bad"`)
}

func TestMarkerAndMetadataLine(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "🚨", render.Marker(rule.UrgencyCritical))
	assert.Equal(t, "⚠️", render.Marker(rule.UrgencyHigh))
	assert.Equal(t, "📋", render.Marker(rule.UrgencyMedium))
	assert.Equal(t, "💡", render.Marker(rule.UrgencyLow))
	assert.Equal(t, "ℹ️", render.Marker(rule.UrgencyInfo))

	r := newRule("R1", rule.CategoryTestingRequirements, rule.UrgencyCritical, rule.WithTags("a", "b"))
	assert.Equal(t, "*Category: Testing Requirements | Urgency: CRITICAL | Tags: a, b*", render.MetadataLine(r))

	r.Tags = nil
	assert.Equal(t, "*Category: Testing Requirements | Urgency: CRITICAL | Tags: None*", render.MetadataLine(r))
}

func TestSubstitute(t *testing.T) {
	t.Parallel()

	values := render.Values{
		"mode.name": "Team",
		"rules":     "{{mode.name}}",
	}

	got := render.Substitute("# {{ mode.name }}\n{{rules}}\n{{unknown.key}}", values.Lookup)
	// Values are not expanded again and unknown placeholders stay.
	assert.Equal(t, "# Team\n{{mode.name}}\n{{unknown.key}}", got)
}

func TestTemplateSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "project-rules"+render.TemplateExt)
	require.NoError(t, os.WriteFile(path, []byte("custom {{rules}}"), 0o600))

	ts := render.NewTemplateSource(dir)
	assert.Equal(t, dir, ts.Dir())

	got, err := ts.Load("project-rules")
	require.NoError(t, err)
	assert.Equal(t, "custom {{rules}}", got)

	// Cached until cleared.
	require.NoError(t, os.WriteFile(path, []byte("changed {{rules}}"), 0o600))

	got, err = ts.Load("project-rules")
	require.NoError(t, err)
	assert.Equal(t, "custom {{rules}}", got)

	ts.ClearCache()

	got, err = ts.Load("project-rules")
	require.NoError(t, err)
	assert.Equal(t, "changed {{rules}}", got)

	// Missing files fall back to the built-ins.
	got, err = ts.Load("copilot-instructions")
	require.NoError(t, err)
	assert.Contains(t, got, "# GitHub Copilot Instructions - {{mode.name}}")

	got, err = ts.Load("no-such-template")
	require.NoError(t, err)
	assert.Equal(t, "# {{mode.name}}\n\n{{rules}}\n", got)

	for _, name := range []string{"", "..", "../secret", `a\b`} {
		_, err = ts.Load(name)
		require.ErrorIs(t, err, render.ErrTemplateName, name)
	}
}

func TestTemplateSourceReadError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// A directory where the template file should be.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "broken"+render.TemplateExt), 0o750))

	_, err := render.NewTemplateSource(dir).Load("broken")
	require.ErrorContains(t, err, "read template")
}

func TestEngineRules(t *testing.T) {
	t.Parallel()

	e := render.New(testRules())

	got, err := e.Rules([]string{"R2", "R3", "R1", "missing"}, nil, testContext())
	require.NoError(t, err)

	want := strings.Join([]string{
		"## Testing Requirements (2 rules)",
		"",
		"### 🚨 R1",
		"content of R1",
		"",
		"*Category: Testing Requirements | Urgency: CRITICAL | Tags: testing, unit*",
		"",
		"### 💡 R2",
		"content of R2",
		"",
		"*Category: Testing Requirements | Urgency: LOW | Tags: None*",
		"",
		"## Security Rules (1 rules)",
		"",
		"### ⚠️ R3",
		"Keep secrets out.",
		"",
		"content of R3",
		"",
		"*Category: Security Rules | Urgency: HIGH | Tags: None*",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestEngineRulesPlain(t *testing.T) {
	t.Parallel()

	e := render.New(testRules())

	got, err := e.Rules([]string{"R2", "R1"}, nil, render.Context{})
	require.NoError(t, err)
	assert.Equal(t, "### 💡 R2\ncontent of R2\n\n### 🚨 R1\ncontent of R1", got)

	got, err = e.Rules(nil, nil, testContext())
	require.NoError(t, err)
	assert.Equal(t, render.NoRules, got)
}

func TestEngineDocument(t *testing.T) {
	t.Parallel()

	cfg := mode.Create(mode.TypeEnterprise, &mode.Configuration{Name: "Team"})
	e := render.New(testRules())

	doc, err := e.Document(string(mode.OutputCopilotInstructions), cfg, nil, []string{"R3", "R1"}, testContext())
	require.NoError(t, err)

	assert.Equal(t, "copilot-instructions", doc.Template)
	assert.Equal(t, "copilot-instructions.md", doc.FileName(render.FormatMarkdown))
	assert.Equal(t, "copilot-instructions.txt", doc.FileName(render.FormatText))
	assert.Equal(t, []string{"R1", "R3"}, doc.RuleIDs)

	assert.Contains(t, doc.Content, "# GitHub Copilot Instructions - Team")
	assert.Contains(t, doc.Content, "## Enterprise Features")
	assert.Contains(t, doc.Content, "*Generated: 2025-01-02T03:04:05Z*")
	assert.Contains(t, doc.Content, "*Rules: 2 active*")
	assert.NotContains(t, doc.Content, "{{")
	assert.True(t, strings.HasSuffix(doc.Content, "</instructions>\n"))
}

func TestEngineDocumentRuleSet(t *testing.T) {
	t.Parallel()

	cfg := mode.Create(mode.TypeCustom, &mode.Configuration{Name: "Team"})
	cfg.Templates.Variables = map[string]any{"team": "core", "size": 3}
	cfg.Overrides = map[string]mode.RuleOverride{
		"R2": {Disabled: true},
	}

	rs := &mode.RuleSet{
		Organization: mode.Organization{
			GroupBy:         mode.GroupByUrgency,
			SortBy:          mode.OrderByTitle,
			IncludeHeaders:  true,
			HeaderTemplates: map[string]string{"HIGH": "## Watch out: {{group.count}}"},
		},
		TemplateOverrides: &mode.TemplateOverrides{
			Variables:    map[string]any{"team": "platform"},
			Header:       "<!-- {{variables.team}} -->",
			Footer:       "Team size {{variables.size}}",
			RuleTemplate: "- {{rule.marker}} {{rule.title}} ({{rule.category}})",
		},
		CustomContent: []mode.CustomContent{
			{ID: "outro", Position: mode.PositionAfter, Content: "Outro", Order: 2},
			{ID: "intro", Position: mode.PositionBefore, Type: "template", Content: "Intro for {{mode.name}}", Order: 1},
		},
	}

	src := render.NewTemplateSource(t.TempDir())
	e := render.New(testRules(), render.WithTemplates(src))
	assert.Same(t, src, e.Templates())

	doc, err := e.Document("team-rules", cfg, rs, []string{"R1", "R2", "R3"}, testContext())
	require.NoError(t, err)

	want := strings.Join([]string{
		"<!-- platform -->",
		"",
		"# Team",
		"",
		"Intro for Team",
		"",
		"## Critical (1 rules)",
		"",
		"- 🚨 R1 (Testing Requirements)",
		"",
		"## Watch out: 1",
		"",
		"- ⚠️ R3 (Security Rules)",
		"",
		"Outro",
		"",
		"Team size 3",
		"",
	}, "\n")
	assert.Equal(t, want, doc.Content)
	assert.Equal(t, []string{"R1", "R3"}, doc.RuleIDs)
}

func TestEngineDocumentReplaceContent(t *testing.T) {
	t.Parallel()

	cfg := mode.Create(mode.TypeCustom, &mode.Configuration{Name: "Team"})
	rs := &mode.RuleSet{
		CustomContent: []mode.CustomContent{
			{ID: "swap", Position: mode.PositionReplace, Content: "No rules today."},
		},
	}

	doc, err := render.New(testRules()).Document("notes", cfg, rs, []string{"R1"}, testContext())
	require.NoError(t, err)
	assert.Equal(t, "# Team\n\nNo rules today.\n", doc.Content)

	rs.CustomContent[0].Position = "sideways"

	_, err = render.New(testRules()).Document("notes", cfg, rs, []string{"R1"}, testContext())
	require.ErrorContains(t, err, "unknown position")
}

func TestEngineDocumentTextFormat(t *testing.T) {
	t.Parallel()

	cfg := mode.Create(mode.TypeCustom, &mode.Configuration{Name: "Team"})
	long := strings.Repeat("word ", 30)
	rules := selection.Rules{
		newRule("R1", rule.CategoryCustom, rule.UrgencyHigh, rule.WithContent(long)),
	}

	rc := testContext()
	rc.Format = render.FormatText
	rc.WrapWidth = 40
	rc.IncludeMetadata = false

	doc, err := render.New(rules).Document("notes", cfg, nil, []string{"R1"}, rc)
	require.NoError(t, err)

	assert.NotContains(t, doc.Content, "#")
	assert.True(t, strings.HasPrefix(doc.Content, "Team\n"))

	for line := range strings.SplitSeq(doc.Content, "\n") {
		assert.LessOrEqual(t, len(line), 40, line)
	}
}

func TestEngineDocumentIdempotent(t *testing.T) {
	t.Parallel()

	cfg := mode.Create(mode.TypeSimplified, &mode.Configuration{Name: "Repeat"})
	e := render.New(testRules())
	ruleIDs := []string{"R3", "R2", "R1"}

	first, err := e.Document(string(mode.OutputProjectRules), cfg, cfg.Rules.ProjectRules, ruleIDs, testContext())
	require.NoError(t, err)

	second, err := e.Document(string(mode.OutputProjectRules), cfg, cfg.Rules.ProjectRules, ruleIDs, testContext())
	require.NoError(t, err)

	assert.Equal(t, first.Content, second.Content)
}

func TestContextValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, render.DefaultContext().Validate())
	require.NoError(t, render.Context{}.Validate())
	require.ErrorIs(t, render.Context{Format: "pdf"}.Validate(), render.ErrUnknownFormat)
	require.Error(t, render.Context{WrapWidth: -1}.Validate())
}
