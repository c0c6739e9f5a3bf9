package extract_test

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/rulepool/pkg/extract"
	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/pool"
	"github.com/macropower/rulepool/pkg/rule"
)

var testTime = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

func fixedClock() time.Time {
	return testTime
}

func newTestExtractor(opts ...extract.Opt) *extract.Extractor {
	var n int

	return extract.NewExtractor(append([]extract.Opt{
		extract.WithClock(fixedClock),
		extract.WithIDs(func() string {
			n++

			return fmt.Sprintf("extracted-%d", n)
		}),
	}, opts...)...)
}

func TestExtractMarkdownHints(t *testing.T) {
	t.Parallel()

	doc, err := extract.ParseDocument("rules.md", []byte(frontmatterDoc))
	require.NoError(t, err)

	rules := newTestExtractor().Extract(doc, "enterprise")
	require.Len(t, rules, 1)

	want := &rule.Rule{
		ID:            "extracted-1",
		Title:         "Secrets",
		Description:   "Secrets Never commit secrets to the repository. This is a mandatory rule for everyone.",
		Category:      rule.CategorySecurityRules,
		Urgency:       rule.UrgencyHigh,
		Version:       rule.DefaultVersion,
		Content:       "Secrets\nNever commit secrets to the repository. This is a mandatory rule for everyone.",
		ContentType:   rule.ContentTypeMarkdown,
		Tags:          []string{"team", "onboarding"},
		AppliesTo:     []rule.ProjectType{rule.ProjectTypeAll},
		Author:        mode.MigrationAuthor,
		SourceFile:    "rules.md",
		SourceSection: "Secrets",
		SourceModes:   []string{"enterprise"},
		IsActive:      true,
		CreatedAt:     testTime,
		UpdatedAt:     testTime,
	}
	assert.Equal(t, want, rules[0])
}

func TestExtractPatterns(t *testing.T) {
	t.Parallel()

	doc := &extract.Document{
		Path: "copilot-instructions.md",
		Kind: extract.KindMarkdown,
		Body: "# Enterprise Instructions\n" +
			"Welcome.\n" +
			"## SOLID Principles\n" +
			"Each class has a single responsibility.\n" +
			"## Widgets\n" +
			"Keep layout code in lib/presentation and logic elsewhere.\n" +
			"## Misc\n" +
			"Nothing here.\n",
	}

	rules := newTestExtractor().Extract(doc)
	require.Len(t, rules, 2)

	assert.Equal(t, "SOLID Principles", rules[0].Title)
	assert.Equal(t, rule.CategorySOLIDPrinciples, rules[0].Category)
	assert.Equal(t, []rule.ProjectType{rule.ProjectTypeAll}, rules[0].AppliesTo)
	assert.False(t, rules[0].IsCustom)

	assert.Equal(t, "Widgets", rules[1].Title)
	assert.Equal(t, rule.CategoryCleanArchitecture, rules[1].Category)
	assert.Equal(t, []rule.ProjectType{rule.ProjectTypeFlutter}, rules[1].AppliesTo)
	assert.Equal(t, []string{"flutter"}, rules[1].Tags)
}

func TestExtractCustomPatterns(t *testing.T) {
	t.Parallel()

	doc := &extract.Document{
		Path: "doc.md",
		Kind: extract.KindMarkdown,
		Body: "## Deploys\nShip on Fridays.\n## Other\nNothing.\n",
	}

	e := newTestExtractor(extract.WithPatterns(extract.Pattern{
		Category:     rule.CategoryDevelopmentWorkflow,
		Patterns:     []*regexp.Regexp{regexp.MustCompile(`(?i)ship`)},
		ProjectTypes: []rule.ProjectType{rule.ProjectTypeNode},
	}))

	rules := e.Extract(doc)
	require.Len(t, rules, 1)
	assert.Equal(t, rule.CategoryDevelopmentWorkflow, rules[0].Category)
	assert.Equal(t, []rule.ProjectType{rule.ProjectTypeNode}, rules[0].AppliesTo)
}

func TestExtractTitledBody(t *testing.T) {
	t.Parallel()

	doc := &extract.Document{
		Path:  "guide.html",
		Kind:  extract.KindHTML,
		Title: "Naming",
		Body:  "Follow the naming convention for every exported identifier in the codebase.",
	}

	rules := newTestExtractor().Extract(doc)
	require.Len(t, rules, 1)
	assert.Equal(t, "Naming", rules[0].Title)
	assert.Equal(t, rule.CategoryCustom, rules[0].Category)
}

func TestExtractScript(t *testing.T) {
	t.Parallel()

	doc, err := extract.ParseDocument("auto_save.sh", []byte(scriptDoc))
	require.NoError(t, err)

	rules := newTestExtractor().Extract(doc, "enterprise")
	require.Len(t, rules, 1)

	r := rules[0]
	assert.Equal(t, extract.ScriptSection, r.Title)
	assert.Equal(t, extract.ScriptSection, r.SourceSection)
	assert.Equal(t, rule.CategoryTaskManagement, r.Category)
	assert.Equal(t, rule.UrgencyCritical, r.Urgency)
	assert.Equal(t, []string{"automation", "script", "git", "make", "npm", "tee"}, r.Tags)
}

func TestLongTitleAndDescription(t *testing.T) {
	t.Parallel()

	heading := "Testing requirements for every single package module and component in the repository without any exception"
	body := "## " + heading + "\n" +
		"Coverage MUST stay high" + strings.Repeat(" across the board", 10) + ".\n\n" +
		"Second paragraph.\n"

	rules := newTestExtractor().Extract(&extract.Document{Path: "x.md", Kind: extract.KindMarkdown, Body: body})
	require.Len(t, rules, 1)

	assert.Equal(t, "Testing Requirements Rule", rules[0].Title)
	assert.Equal(t, "Rule extracted from x.md ("+heading+")", rules[0].Description)
	assert.Equal(t, rule.UrgencyCritical, rules[0].Urgency)
}

func TestExtractDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"enterprise/copilot-instructions.md": "# Enterprise Instructions\nWelcome.\n" +
			"## SOLID Principles\nEach class has a single responsibility.\n",
		"enterprise/automation/auto_save.sh": scriptDoc,
		"simplified/project-rules.md": "## Testing Requirements\n" +
			"Every feature MUST ship with unit tests and a coverage report.\n",
		"simplified/copilot-instructions.md": "---\ntitle: [unclosed\n---\n## X\n",
		"notes.txt":                          "ignored",
	})

	res, err := newTestExtractor().ExtractDir(t.Context(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"enterprise/copilot-instructions.md",
		"enterprise/automation/auto_save.sh",
		"simplified/copilot-instructions.md",
		"simplified/project-rules.md",
	}, res.Files)
	assert.Len(t, res.Warnings, 1)
	require.Len(t, res.Rules, 3)

	assert.Equal(t, rule.CategorySOLIDPrinciples, res.Rules[0].Category)
	assert.Equal(t, []string{"enterprise"}, res.Rules[0].SourceModes)
	assert.Equal(t, "enterprise/copilot-instructions.md", res.Rules[0].SourceFile)

	assert.Equal(t, rule.CategoryTaskManagement, res.Rules[1].Category)

	assert.Equal(t, rule.CategoryTestingRequirements, res.Rules[2].Category)
	assert.Equal(t, rule.UrgencyCritical, res.Rules[2].Urgency)
	assert.Equal(t, []string{"simplified"}, res.Rules[2].SourceModes)

	p := pool.New(pool.NewMemoryRepository())

	ids, err := extract.Store(t.Context(), p, res.Rules)
	require.NoError(t, err)
	assert.Equal(t, []string{"extracted-1", "extracted-2", "extracted-3"}, ids)
	assert.Equal(t, 3, p.Len())

	stored, ok := p.Get("extracted-3")
	require.True(t, ok)
	assert.Equal(t, mode.MigrationAuthor, stored.Author)
}

func TestExtractDirExclude(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"docs/rules.md": "## Testing Requirements\n" +
			"Every feature MUST ship with unit tests and a coverage report.\n",
		"generated/copilot-instructions.md": "## SOLID Principles\nEach class has a single responsibility.\n",
		"node_modules/pkg/README.md":         "## Clean Architecture\nKeep layers apart.\n",
	})

	e := newTestExtractor(extract.WithExclude("generated/**", "**/node_modules/**"))

	res, err := e.ExtractDir(t.Context(), root, "**/*.md")
	require.NoError(t, err)

	assert.Equal(t, []string{"docs/rules.md"}, res.Files)
	require.Len(t, res.Rules, 1)
	assert.Equal(t, rule.CategoryTestingRequirements, res.Rules[0].Category)
}

func TestStoreErrors(t *testing.T) {
	t.Parallel()

	p := pool.New(pool.NewMemoryRepository())

	ids, err := extract.Store(t.Context(), p, []*rule.Rule{
		rule.New(rule.WithID("ok"), rule.WithContent("fine")),
		rule.New(rule.WithID("empty"), rule.WithContent("")),
		rule.New(rule.WithID("ok"), rule.WithContent("duplicate")),
	})
	require.ErrorIs(t, err, rule.ErrInvalid)
	require.ErrorIs(t, err, pool.ErrAlreadyExists)
	assert.Equal(t, []string{"ok"}, ids)
}
