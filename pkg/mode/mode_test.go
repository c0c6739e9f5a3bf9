package mode_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/rule"
	"github.com/macropower/rulepool/pkg/selection"
)

func newRule(id string, c rule.Category, u rule.Urgency) *rule.Rule {
	return rule.New(
		rule.WithID(id),
		rule.WithTitle(id),
		rule.WithContent("content of "+id),
		rule.WithCategory(c),
		rule.WithUrgency(u),
	)
}

func testRules() selection.Rules {
	return selection.Rules{
		newRule("test-1", rule.CategoryTestingRequirements, rule.UrgencyCritical),
		newRule("test-2", rule.CategoryTestingRequirements, rule.UrgencyLow),
		newRule("sec-1", rule.CategorySecurityRules, rule.UrgencyHigh),
	}
}

func codes(issues []mode.Issue) []string {
	out := []string{}
	for _, i := range issues {
		out = append(out, i.Code)
	}

	return out
}

func TestParseType(t *testing.T) {
	t.Parallel()

	for _, typ := range mode.AllTypes {
		got, err := mode.ParseType(string(typ))
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}

	_, err := mode.ParseType("ENTERPRISE")
	require.ErrorIs(t, err, mode.ErrUnknownType)
}

func TestBuiltinTemplatesValidate(t *testing.T) {
	t.Parallel()

	tcs := map[mode.Type]struct {
		warnings []string
	}{
		mode.TypeEnterprise: {warnings: []string{}},
		mode.TypeSimplified: {warnings: []string{}},
		mode.TypeCustom:     {warnings: []string{mode.CodeNoDirectories}},
	}

	for typ, tc := range tcs {
		t.Run(string(typ), func(t *testing.T) {
			t.Parallel()

			cfg := mode.Create(typ, nil)
			report := mode.Validate(cfg, testRules())

			assert.True(t, report.Valid, "errors: %v", report.Errors)
			assert.Empty(t, report.Errors)
			assert.Equal(t, tc.warnings, codes(report.Warnings))
			require.NotNil(t, report.Resolution)
			assert.Empty(t, report.Resolution.Failed)
		})
	}
}

func TestBuiltinReturnsFreshCopies(t *testing.T) {
	t.Parallel()

	a := mode.Builtin(mode.TypeEnterprise)
	a.Name = "changed"
	a.Metadata.Tags[0] = "changed"

	b := mode.Builtin(mode.TypeEnterprise)
	assert.Equal(t, "Enterprise Mode", b.Name)
	assert.Equal(t, "enterprise", b.Metadata.Tags[0])

	assert.Equal(t, mode.TypeCustom, mode.Builtin("unknown").Type)
}

func TestCreate(t *testing.T) {
	t.Parallel()

	cfg := mode.Create(mode.TypeEnterprise, &mode.Configuration{
		Name: "Team Mode",
		Metadata: &mode.Metadata{
			Author: "platform",
			Tags:   []string{"team"},
		},
	})

	assert.True(t, strings.HasPrefix(cfg.ID, "mode_"), cfg.ID)
	assert.Equal(t, "Team Mode", cfg.Name)
	assert.Equal(t, mode.TypeEnterprise, cfg.Type)
	assert.Equal(t, "enterprise", cfg.Templates.BaseTemplate)

	require.NotNil(t, cfg.Metadata)
	assert.Equal(t, "platform", cfg.Metadata.Author)
	assert.Equal(t, []string{"team"}, cfg.Metadata.Tags)
	assert.Equal(t, mode.ComplexityEnterprise, cfg.Metadata.Complexity)
	assert.False(t, cfg.Metadata.Created.IsZero())
	assert.Equal(t, cfg.Metadata.Created, cfg.Metadata.LastModified)

	other := mode.Create(mode.TypeEnterprise, nil)
	assert.NotEqual(t, cfg.ID, other.ID)

	kept := mode.Create(mode.TypeCustom, &mode.Configuration{ID: "mine"})
	assert.Equal(t, "mine", kept.ID)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		mutate   func(*mode.Configuration)
		errors   []string
		warnings []string
	}{
		"valid": {
			mutate: func(*mode.Configuration) {},
			errors: []string{},
		},
		"missing id": {
			mutate: func(c *mode.Configuration) { c.ID = "" },
			errors: []string{mode.CodeMissingID},
		},
		"missing name and metadata": {
			mutate: func(c *mode.Configuration) {
				c.Name = ""
				c.Metadata = nil
			},
			errors: []string{mode.CodeMissingName, mode.CodeMissingMetadata},
		},
		"missing deployment structure": {
			mutate: func(c *mode.Configuration) { c.Deployment.Structure = nil },
			errors: []string{mode.CodeMissingDeploymentStructure},
		},
		"warnings only": {
			mutate: func(c *mode.Configuration) {
				c.Templates.BaseTemplate = ""
				c.Structure.Directories = nil
			},
			errors:   []string{},
			warnings: []string{mode.CodeMissingBaseTemplate, mode.CodeNoDirectories},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := mode.Create(mode.TypeSimplified, nil)
			tc.mutate(cfg)

			report := mode.Validate(cfg, nil)

			assert.Equal(t, tc.errors, codes(report.Errors))
			assert.Equal(t, len(tc.errors) == 0, report.Valid)
			assert.Nil(t, report.Resolution)

			if tc.warnings != nil {
				assert.Equal(t, tc.warnings, codes(report.Warnings))
			}

			if report.Valid {
				require.NoError(t, report.Err())
			} else {
				require.ErrorIs(t, report.Err(), mode.ErrInvalid)
			}
		})
	}
}

func TestValidateMissingIDMessage(t *testing.T) {
	t.Parallel()

	cfg := mode.Create(mode.TypeCustom, nil)
	cfg.ID = ""

	report := mode.Validate(cfg, nil)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, "id", report.Errors[0].Path)
	assert.Equal(t, rule.SeverityError, report.Errors[0].Severity)
	assert.Contains(t, report.Err().Error(), "Mode configuration must have an ID")
}

func TestResolveReferences(t *testing.T) {
	t.Parallel()

	cfg := mode.Create(mode.TypeCustom, nil)
	cfg.Rules = mode.Rules{
		CopilotInstructions: &mode.RuleSet{
			Selection: selection.Selection{ExplicitIncludes: []string{"test-1", "sec-1"}},
		},
		ProjectRules: &mode.RuleSet{
			Selection: selection.Selection{
				Include: []selection.Criterion{{Categories: []rule.Category{rule.CategoryTestingRequirements}}},
			},
		},
		CustomFiles: map[string]*mode.RuleSet{
			"broken": {
				Selection: selection.Selection{
					Include:    []selection.Criterion{{Tags: []string{"x"}}},
					Categories: []rule.Category{rule.CategoryCustom},
				},
			},
			"typos": {
				Selection: selection.Selection{IncludeRules: []string{"tst1", "test-2"}},
			},
		},
	}

	res := mode.ResolveReferences(cfg, testRules())

	assert.Equal(t, []string{"test-1", "sec-1", "test-2"}, res.ResolvedRules)
	assert.Equal(t, 3, res.TotalRules)
	assert.Equal(t, map[rule.Category]int{
		rule.CategoryTestingRequirements: 2,
		rule.CategorySecurityRules:       1,
	}, res.ByCategory)
	assert.Equal(t, map[rule.Urgency]int{
		rule.UrgencyCritical: 1,
		rule.UrgencyHigh:     1,
		rule.UrgencyLow:      1,
	}, res.ByUrgency)

	require.Len(t, res.Failed, 2)

	assert.Equal(t, "rules.customFiles.broken", res.Failed[0].RuleSet)
	assert.Contains(t, res.Failed[0].Reason, selection.ErrInvalidSelection.Error())
	assert.Empty(t, res.Failed[0].Suggestions)

	assert.Equal(t, "rules.customFiles.typos", res.Failed[1].RuleSet)
	assert.Contains(t, res.Failed[1].Reason, "tst1")
	assert.Equal(t, []string{"test-1"}, res.Failed[1].Suggestions)
}

func TestValidateResolutionFailuresAreNotErrors(t *testing.T) {
	t.Parallel()

	cfg := mode.Create(mode.TypeCustom, nil)
	cfg.Rules.CopilotInstructions.Selection = selection.Selection{ExplicitIncludes: []string{"missing"}}

	report := mode.Validate(cfg, testRules())

	assert.True(t, report.Valid)
	require.NotNil(t, report.Resolution)
	require.Len(t, report.Resolution.Failed, 1)
	assert.Equal(t, []string{mode.CodeNoDirectories}, codes(report.Warnings))
}

func TestAdapt(t *testing.T) {
	t.Parallel()

	medium := rule.UrgencyMedium
	cfg := &mode.Configuration{
		ID:   "custom_migrated_1",
		Name: "Custom Mode (Migrated)",
		Type: mode.TypeCustom,
		RuleSelection: &selection.Selection{
			IncludeRules:      []string{"test-1"},
			Categories:        []rule.Category{rule.CategorySecurityRules},
			ExcludeCategories: []rule.Category{rule.CategoryCustom},
			MinimumUrgency:    &medium,
		},
		RuleOrganization: &mode.Organization{SortBy: mode.OrderByTitle},
	}

	require.True(t, mode.Adapt(cfg))

	for _, rs := range []*mode.RuleSet{cfg.Rules.CopilotInstructions, cfg.Rules.ProjectRules} {
		require.NotNil(t, rs)

		sel := rs.Selection
		assert.Equal(t, []string{"test-1"}, sel.IncludeRules)
		assert.Equal(t, []rule.Category{rule.CategorySecurityRules}, sel.Categories)
		assert.Equal(t, []rule.Category{rule.CategoryCustom}, sel.ExcludeCategories)
		assert.Equal(t, mode.DefaultMaxRules, sel.MaxRules)
		require.NotNil(t, sel.UrgencyFilter)
		assert.Equal(t, rule.UrgencyMedium, *sel.UrgencyFilter.Minimum)
		assert.Equal(t, rule.UrgencyCritical, *sel.UrgencyFilter.Maximum)

		assert.Equal(t, mode.GroupByCategory, rs.Organization.GroupBy)
		assert.Equal(t, mode.OrderByTitle, rs.Organization.OrderBy)
		assert.True(t, rs.Organization.IncludeHeaders)
	}

	require.NotNil(t, cfg.Metadata)
	assert.Equal(t, mode.MigrationAuthor, cfg.Metadata.Author)
	assert.Equal(t, []string{"custom", "migrated"}, cfg.Metadata.Tags)
	assert.Equal(t, mode.EstimatedHours{Min: 10, Max: 50}, cfg.Metadata.EstimatedHours)
	assert.False(t, cfg.Metadata.Created.IsZero())

	require.NotNil(t, cfg.Deployment.Structure)
	assert.Equal(t, ".github", cfg.Deployment.Structure.Root)
	assert.True(t, cfg.Deployment.BackupExisting)
	assert.Equal(t, "default", cfg.Templates.BaseTemplate)

	assert.True(t, mode.Validate(cfg, nil).Valid)

	assert.False(t, mode.Adapt(cfg), "already adapted")
}

func TestAdaptResolvesLikeLegacy(t *testing.T) {
	t.Parallel()

	cfg := &mode.Configuration{
		RuleSelection: &selection.Selection{
			Categories: []rule.Category{rule.CategoryTestingRequirements},
		},
	}

	require.True(t, mode.Adapt(cfg))

	out, err := mode.ResolveRuleSet(testRules(), cfg.Rules.ProjectRules)
	require.NoError(t, err)

	// Bounded to LOW..CRITICAL by default.
	assert.Equal(t, []string{"test-1", "test-2"}, out.IDs)
}

func TestAdaptEmptyExplicitIncludes(t *testing.T) {
	t.Parallel()

	var cfg mode.Configuration
	require.NoError(t, json.Unmarshal([]byte(`{
  "id": "custom_migrated_2",
  "name": "Nothing Mapped",
  "type": "custom",
  "ruleSelection": {"explicitIncludes": [], "maxRules": 100}
}`), &cfg))

	require.True(t, mode.Adapt(&cfg))
	assert.True(t, cfg.Rules.CopilotInstructions.Selection.ExplicitOnly)

	for _, rs := range []*mode.RuleSet{cfg.Rules.CopilotInstructions, cfg.Rules.ProjectRules} {
		out, err := mode.ResolveRuleSet(testRules(), rs)
		require.NoError(t, err)
		assert.Empty(t, out.IDs)
	}
}

func TestAdaptIgnoresCurrentDocuments(t *testing.T) {
	t.Parallel()

	cfg := mode.Create(mode.TypeCustom, nil)
	assert.False(t, mode.Adapt(cfg))

	cfg.RuleSelection = &selection.Selection{MaxRules: 3}
	assert.False(t, mode.Adapt(cfg))
}

func TestRuleSets(t *testing.T) {
	t.Parallel()

	cfg := &mode.Configuration{
		Rules: mode.Rules{
			ProjectRules: &mode.RuleSet{},
			CustomFiles: map[string]*mode.RuleSet{
				"zeta":  {},
				"alpha": {},
				"nil":   nil,
			},
		},
	}

	var names, paths []string
	for _, e := range cfg.RuleSets() {
		names = append(names, e.Name)
		paths = append(paths, e.Path)
	}

	assert.Equal(t, []string{"project-rules", "alpha", "zeta"}, names)
	assert.Equal(t, []string{"rules.projectRules", "rules.customFiles.alpha", "rules.customFiles.zeta"}, paths)
}

func TestTemplateName(t *testing.T) {
	t.Parallel()

	cfg := &mode.Configuration{
		Templates: mode.Templates{
			Overrides: &mode.TemplateOverrideSet{
				ProjectRules: "strict-rules",
				CustomFiles:  map[string]string{"api": "api-guide"},
			},
		},
	}

	assert.Equal(t, "copilot-instructions", cfg.TemplateName(string(mode.OutputCopilotInstructions)))
	assert.Equal(t, "strict-rules", cfg.TemplateName(string(mode.OutputProjectRules)))
	assert.Equal(t, "api-guide", cfg.TemplateName("api"))
	assert.Equal(t, "other", cfg.TemplateName("other"))
}

func TestClone(t *testing.T) {
	t.Parallel()

	cfg := mode.Create(mode.TypeEnterprise, nil)
	c := cfg.Clone()

	assert.Equal(t, cfg.ID, c.ID)
	assert.True(t, cfg.Metadata.Created.Equal(c.Metadata.Created))

	c.Rules.CopilotInstructions.Selection.ExplicitIncludes = []string{"x"}
	c.Templates.Variables["mode"] = "changed"

	assert.Empty(t, cfg.Rules.CopilotInstructions.Selection.ExplicitIncludes)
	assert.Equal(t, "ENTERPRISE", cfg.Templates.Variables["mode"])

	var nilCfg *mode.Configuration
	assert.Nil(t, nilCfg.Clone())
}
