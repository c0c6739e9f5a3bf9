package extract_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/rulepool/pkg/extract"
	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/rule"
	"github.com/macropower/rulepool/pkg/selection"
)

const legacyDoc = "## SOLID Principles\n" +
	"Every class must have a single responsibility.\n" +
	"## Random Notes\n" +
	"Ship it.\n"

func migrationRules() selection.Rules {
	return selection.Rules{
		rule.New(
			rule.WithID("solid-srp"),
			rule.WithTitle("Single Responsibility Principle"),
			rule.WithContent("Each class should have a single responsibility and one reason to change."),
			rule.WithCategory(rule.CategorySOLIDPrinciples),
		),
		rule.New(
			rule.WithID("tests-unit"),
			rule.WithTitle("Unit Testing Requirements"),
			rule.WithContent("Every feature needs unit tests with coverage above eighty percent."),
			rule.WithCategory(rule.CategoryTestingRequirements),
		),
		rule.New(
			rule.WithID("unrelated"),
			rule.WithTitle("Deploy Pipeline"),
			rule.WithContent("Ship containers via pipeline."),
			rule.WithCategory(rule.CategoryCustom),
		),
	}
}

func writeLegacy(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "copilot-instructions.md")
	require.NoError(t, os.WriteFile(path, []byte(legacyDoc), 0o600))

	return path
}

func TestKeywordScorer(t *testing.T) {
	t.Parallel()

	sections := extract.Segment(legacyDoc)
	require.Len(t, sections, 2)

	rules := migrationRules()
	scorer := extract.KeywordScorer{}

	tcs := map[string]struct {
		section int
		rule    int
		want    float64
	}{
		"principles match":  {section: 0, rule: 0, want: 8.5},
		"shared keyword":    {section: 0, rule: 1, want: 0.5},
		"unrelated section": {section: 0, rule: 2, want: 0},
		"content overlap":   {section: 1, rule: 2, want: 2.5},
		"no overlap":        {section: 1, rule: 0, want: 0},
		"no shared keyword": {section: 1, rule: 1, want: 0},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.InDelta(t, tc.want, scorer.Score(sections[tc.section], rules[tc.rule]), 0.001)
		})
	}
}

func TestKeywords(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		[]string{"every", "class", "must", "single", "responsibility"},
		extract.Keywords("Every class MUST have a single responsibility; every class."),
	)
	assert.Empty(t, extract.Keywords("a an the"))
}

func TestMap(t *testing.T) {
	t.Parallel()

	m := extract.NewMigrator(migrationRules())
	assert.InDelta(t, extract.DefaultConfidenceThreshold, m.Threshold(), 0.001)

	mappings := m.Map("legacy.md", extract.Segment(legacyDoc))
	require.Len(t, mappings, 2)

	assert.Equal(t, "legacy.md", mappings[0].File)
	assert.Equal(t, "SOLID Principles", mappings[0].Section)
	assert.Equal(t, []string{"solid-srp", "tests-unit"}, mappings[0].Rules)
	assert.InDelta(t, 0.85, mappings[0].Confidence, 0.001)
	assert.True(t, mappings[0].Used)

	assert.Equal(t, []string{"unrelated"}, mappings[1].Rules)
	assert.InDelta(t, 0.25, mappings[1].Confidence, 0.001)
	assert.True(t, mappings[1].Used)

	assert.Equal(t, []string{"solid-srp", "tests-unit", "unrelated"}, extract.IncludedRules(mappings))
}

func TestMapThreshold(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		want      []string
		threshold float64
	}{
		"zero keeps every match": {
			threshold: 0,
			want:      []string{"solid-srp", "tests-unit", "unrelated"},
		},
		"below the weak section": {
			threshold: 0.2,
			want:      []string{"solid-srp", "tests-unit", "unrelated"},
		},
		"above the weak section": {
			threshold: 0.3,
			want:      []string{"solid-srp", "tests-unit"},
		},
		"above every section": {
			threshold: 0.9,
			want:      []string{},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m := extract.NewMigrator(migrationRules(), extract.WithConfidenceThreshold(tc.threshold))

			mappings := m.Map("legacy.md", extract.Segment(legacyDoc))
			assert.Equal(t, tc.want, extract.IncludedRules(mappings))
		})
	}
}

type indexScorer struct{}

// Score returns the number suffix of the rule id.
func (indexScorer) Score(_ extract.Section, r *rule.Rule) float64 {
	n, err := strconv.Atoi(strings.TrimPrefix(r.ID, "r"))
	if err != nil {
		return 0
	}

	return float64(n)
}

func TestMapCustomScorer(t *testing.T) {
	t.Parallel()

	var rules selection.Rules
	for i := range 7 {
		rules = append(rules, rule.New(rule.WithID(fmt.Sprintf("r%d", i+1)), rule.WithContent("x")))
	}

	m := extract.NewMigrator(rules, extract.WithScorer(indexScorer{}))

	mappings := m.Map("f.md", []extract.Section{{Title: "Any"}})
	require.Len(t, mappings, 1)
	assert.Equal(t, []string{"r7", "r6", "r5", "r4", "r3"}, mappings[0].Rules)
	assert.InDelta(t, 0.7, mappings[0].Confidence, 0.001)
	assert.True(t, mappings[0].Used)

	mappings = m.Map("f.md", nil)
	assert.Empty(t, mappings)
}

func TestConvert(t *testing.T) {
	t.Parallel()

	path := writeLegacy(t)
	m := extract.NewMigrator(migrationRules(), extract.WithMigrationClock(fixedClock))

	mig := m.Convert(t.Context(), mode.TypeEnterprise, []string{path, filepath.Join(t.TempDir(), "missing.md")})

	assert.Equal(t, []string{path}, mig.OriginalFiles)
	require.Len(t, mig.Errors, 1)
	assert.Contains(t, mig.Errors[0], "missing.md")
	assert.False(t, mig.Success)
	assert.InDelta(t, 0.55, mig.Confidence, 0.001)

	cfg := mig.Config
	require.NotNil(t, cfg)
	assert.Equal(t, fmt.Sprintf("enterprise_migrated_%d", testTime.UnixMilli()), cfg.ID)
	assert.Equal(t, "Enterprise Mode (Migrated)", cfg.Name)
	assert.Equal(t, mode.TypeEnterprise, cfg.Type)

	require.NotNil(t, cfg.Metadata)
	assert.Equal(t, mode.ComplexityEnterprise, cfg.Metadata.Complexity)
	assert.Equal(t, mode.EstimatedHours{Min: 50, Max: 500}, cfg.Metadata.EstimatedHours)
	assert.Equal(t, []string{"enterprise", "migrated"}, cfg.Metadata.Tags)
	assert.Equal(t, mode.MigrationAuthor, cfg.Metadata.Author)
	assert.Equal(t, "2025-03-04T05:06:07Z", cfg.Metadata.MigrationDate)
	assert.Equal(t, []string{path}, cfg.Metadata.OriginalFiles)

	require.NotNil(t, cfg.RuleSelection)
	assert.Equal(t, []string{"solid-srp", "tests-unit", "unrelated"}, cfg.RuleSelection.ExplicitIncludes)
	assert.Equal(t, 100, cfg.RuleSelection.MaxRules)
	require.NotNil(t, cfg.RuleSelection.UrgencyFilter)
	assert.Equal(t, rule.UrgencyLow, *cfg.RuleSelection.UrgencyFilter.Minimum)
	assert.Equal(t, rule.UrgencyCritical, *cfg.RuleSelection.UrgencyFilter.Maximum)

	// Conversion leaves the legacy shape for the loader to adapt.
	assert.Nil(t, cfg.Deployment.Structure)
}

func TestConvertComplexity(t *testing.T) {
	t.Parallel()

	path := writeLegacy(t)
	m := extract.NewMigrator(migrationRules(), extract.WithMigrationClock(fixedClock))

	tcs := map[mode.Type]struct {
		complexity mode.Complexity
		hours      mode.EstimatedHours
		name       string
	}{
		mode.TypeSimplified: {mode.ComplexityBasic, mode.EstimatedHours{Min: 5, Max: 20}, "Simplified Mode (Migrated)"},
		mode.TypeCustom:     {mode.ComplexityMedium, mode.EstimatedHours{Min: 20, Max: 50}, "Custom Mode (Migrated)"},
	}

	for typ, tc := range tcs {
		t.Run(string(typ), func(t *testing.T) {
			t.Parallel()

			mig := m.Convert(t.Context(), typ, []string{path})
			assert.True(t, mig.Success, mig.Errors)
			assert.Equal(t, tc.name, mig.Config.Name)
			assert.Equal(t, tc.complexity, mig.Config.Metadata.Complexity)
			assert.Equal(t, tc.hours, mig.Config.Metadata.EstimatedHours)
		})
	}
}

func TestConvertWithoutMatches(t *testing.T) {
	t.Parallel()

	path := writeLegacy(t)
	m := extract.NewMigrator(migrationRules(), extract.WithScorer(fixedScorer{id: "ghost"}))

	mig := m.Convert(t.Context(), mode.TypeEnterprise, []string{path})
	assert.True(t, mig.Success)
	assert.Empty(t, mig.Config.RuleSelection.ExplicitIncludes)
	assert.True(t, mig.Config.RuleSelection.ExplicitOnly)
	assert.Zero(t, mig.Confidence)

	loaded := mig.Config.Clone()
	require.True(t, mode.Adapt(loaded))

	report := mode.Validate(loaded, migrationRules())
	require.NotNil(t, report.Resolution)
	assert.Empty(t, report.Resolution.ResolvedRules)
}

type fixedScorer struct {
	id string
}

func (s fixedScorer) Score(_ extract.Section, r *rule.Rule) float64 {
	if r.ID == s.id {
		return 10
	}

	return 0
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	path := writeLegacy(t)
	outDir := filepath.Join(t.TempDir(), extract.MigratedDir)

	src := migrationRules()
	m := extract.NewMigrator(src, extract.WithMigrationClock(fixedClock))

	mig, err := m.Migrate(t.Context(), mode.TypeEnterprise, []string{path}, outDir)
	require.NoError(t, err)

	assert.True(t, mig.Success, mig.Errors)
	assert.Equal(t, filepath.Join(outDir, "enterprise-migrated.json"), mig.Path)
	assert.Contains(t, mig.Warnings, "No directories specified in structure")

	info, err := os.Stat(mig.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := mode.NewManager(src).Load(t.Context(), mig.Path, mode.LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, mig.Config.ID, loaded.ID)
	assert.NotNil(t, loaded.Deployment.Structure)

	report := mode.Validate(loaded, src)
	assert.True(t, report.Valid)
	require.NotNil(t, report.Resolution)
	assert.Equal(t, []string{"solid-srp", "tests-unit", "unrelated"}, report.Resolution.ResolvedRules)
}

func TestMigrateAll(t *testing.T) {
	t.Parallel()

	modesDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), extract.MigratedDir)

	writeFiles(t, modesDir, map[string]string{
		"enterprise/copilot-instructions.md": legacyDoc,
		"enterprise/project-rules.md":        "## Unit Tests\nEvery feature needs unit tests.\n",
		"enterprise/other.md":                "ignored",
	})

	m := extract.NewMigrator(migrationRules(),
		extract.WithMigrationClock(fixedClock),
		extract.WithConfidenceThreshold(0.3),
	)

	migrations, err := m.MigrateAll(t.Context(), modesDir, outDir)
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	ent := migrations[0]
	assert.Equal(t, mode.TypeEnterprise, ent.Type)
	assert.True(t, ent.Success, ent.Errors)
	assert.Equal(t, []string{
		filepath.Join(modesDir, "enterprise", "copilot-instructions.md"),
		filepath.Join(modesDir, "enterprise", "project-rules.md"),
	}, ent.OriginalFiles)
	assert.Len(t, ent.Mappings, 3)
	assert.FileExists(t, filepath.Join(outDir, "enterprise-migrated.json"))

	simp := migrations[1]
	assert.Equal(t, mode.TypeSimplified, simp.Type)
	assert.False(t, simp.Success)
	require.Len(t, simp.Errors, 1)
	assert.Contains(t, simp.Errors[0], "no legacy documents")
	assert.Empty(t, simp.Path)
	assert.NoFileExists(t, filepath.Join(outDir, "simplified-migrated.json"))

	report := extract.Report(migrations, testTime)

	for _, want := range []string{
		"# Mode Migration Report",
		"Generated on: 2025-03-04T05:06:07Z",
		"## ENTERPRISE Mode Migration",
		"**Status**: ✅ Success",
		"**Configuration**: " + ent.Path,
		"- **SOLID Principles** (confidence: 85.0%)",
		"  - Mapped to 2 rules\n",
		"- **Random Notes** (confidence: 25.0%)",
		"  - Mapped to 1 rules, below threshold",
		"## SIMPLIFIED Mode Migration",
		"**Status**: ❌ Failed",
		"**Errors**:\n- migrate simplified mode: no legacy documents",
	} {
		assert.Contains(t, report, want)
	}

	assert.Equal(t, 2, strings.Count(report, "---\n"))
}
