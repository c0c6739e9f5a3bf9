package generate_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/macropower/rulepool/pkg/generate"
	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/pool"
	"github.com/macropower/rulepool/pkg/render"
	"github.com/macropower/rulepool/pkg/rule"
)

var testTime = time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fixedClock() time.Time {
	return testTime
}

func newTestPool(t *testing.T) *pool.Pool {
	t.Helper()

	p := pool.New(pool.NewMemoryRepository())

	for _, r := range []*rule.Rule{
		rule.New(rule.WithID("task-1"), rule.WithTitle("Track tasks"), rule.WithContent("Keep a task list."),
			rule.WithCategory(rule.CategoryTaskManagement), rule.WithUrgency(rule.UrgencyHigh)),
		rule.New(rule.WithID("arch-1"), rule.WithTitle("Layer the code"), rule.WithContent("Keep layers apart."),
			rule.WithCategory(rule.CategoryCleanArchitecture), rule.WithUrgency(rule.UrgencyCritical)),
		rule.New(rule.WithID("file-1"), rule.WithTitle("Small files"), rule.WithContent("Split large files."),
			rule.WithCategory(rule.CategoryFilePractices), rule.WithUrgency(rule.UrgencyLow)),
		rule.New(rule.WithID("sec-1"), rule.WithTitle("No secrets"), rule.WithContent("Never commit secrets."),
			rule.WithCategory(rule.CategorySecurityRules), rule.WithUrgency(rule.UrgencyMedium)),
	} {
		_, err := p.Create(t.Context(), r)
		require.NoError(t, err)
	}

	return p
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(b)
}

func TestGenerateEnterprise(t *testing.T) {
	t.Parallel()

	cfg := mode.Create(mode.TypeEnterprise, &mode.Configuration{ID: "ent", Name: "Enterprise Team"})
	outDir := filepath.Join(t.TempDir(), "out")

	g := generate.New(newTestPool(t), generate.WithClock(fixedClock))

	res, err := g.Generate(t.Context(), cfg, outDir)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "ent", res.Mode)
	assert.Equal(t, 3, res.RulesUsed)
	assert.Equal(t, "generated 11 files for Enterprise Team", res.Message)
	assert.Empty(t, res.Diffs)

	want := []string{
		"copilot-instructions.md",
		"project-rules.md",
		"task-management.md",
		"mode-manager.sh",
		"update_project_map.sh",
		"task-management.sh",
		"massive_task_orchestrator.sh",
		"interrupt_handler.sh",
		"auto_save.sh",
		"sync_check.sh",
		generate.MetadataFile,
	}
	assert.Equal(t, want, res.GeneratedFiles)

	copilot := readFile(t, filepath.Join(outDir, "copilot-instructions.md"))
	assert.Contains(t, copilot, "# GitHub Copilot Instructions - Enterprise Team")
	assert.Contains(t, copilot, "### 🚨 Layer the code")
	assert.Contains(t, copilot, "### ⚠️ Track tasks")
	assert.NotContains(t, copilot, "No secrets")
	assert.Contains(t, copilot, "*Rules: 2 active*")
	assert.Contains(t, copilot, "*Generated: 2025-06-07T08:09:10Z*")

	project := readFile(t, filepath.Join(outDir, "project-rules.md"))
	assert.Contains(t, project, "Small files")

	manager := readFile(t, filepath.Join(outDir, "mode-manager.sh"))
	assert.Contains(t, manager, `MODE_NAME="Enterprise Team"`)
	assert.Contains(t, manager, `MODE_TYPE="enterprise"`)

	for _, name := range slices.Concat(generate.AutomationScripts, generate.EnterpriseScripts) {
		info, err := os.Stat(filepath.Join(outDir, name))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm(), name)
	}

	var md generate.Metadata
	require.NoError(t, json.Unmarshal([]byte(readFile(t, filepath.Join(outDir, generate.MetadataFile))), &md))

	assert.Equal(t, "ent", md.Mode.ID)
	assert.Equal(t, mode.TypeEnterprise, md.Mode.Type)
	assert.Equal(t, "rule-based-pipeline", md.Generation.Method)
	assert.Equal(t, 3, md.Generation.RulesUsed)
	assert.True(t, testTime.Equal(md.Generation.GeneratedAt))
	assert.Equal(t, want[:len(want)-1], md.Generation.Files)
	assert.Nil(t, md.Configuration.RuleSelectionCriteria)
	assert.Equal(t, "ent", md.Source.ConfigurationID)
}

func TestGenerateSimplifiedSkipsOptionalOutputs(t *testing.T) {
	t.Parallel()

	cfg := mode.Create(mode.TypeSimplified, &mode.Configuration{Name: "Small"})
	outDir := t.TempDir()

	res, err := generate.New(newTestPool(t), generate.WithClock(fixedClock)).Generate(t.Context(), cfg, outDir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"copilot-instructions.md",
		"project-rules.md",
		"mode-manager.sh",
		"update_project_map.sh",
		generate.MetadataFile,
	}, res.GeneratedFiles)

	_, err = os.Stat(filepath.Join(outDir, "task-management.md"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestGenerateIdempotent(t *testing.T) {
	t.Parallel()

	cfg := mode.Create(mode.TypeEnterprise, &mode.Configuration{Name: "Repeat"})
	p := newTestPool(t)

	read := func(dir string, files []string) map[string]string {
		out := map[string]string{}
		for _, f := range files {
			out[f] = readFile(t, filepath.Join(dir, f))
		}

		return out
	}

	first := t.TempDir()
	res1, err := generate.New(p, generate.WithClock(fixedClock)).Generate(t.Context(), cfg, first)
	require.NoError(t, err)

	second := t.TempDir()
	res2, err := generate.New(p, generate.WithClock(fixedClock)).Generate(t.Context(), cfg, second)
	require.NoError(t, err)

	require.Equal(t, res1.GeneratedFiles, res2.GeneratedFiles)
	assert.Equal(t, read(first, res1.GeneratedFiles), read(second, res2.GeneratedFiles))
}

func TestGenerateDryRun(t *testing.T) {
	t.Parallel()

	cfg := mode.Create(mode.TypeSimplified, &mode.Configuration{Name: "Preview"})
	p := newTestPool(t)
	outDir := filepath.Join(t.TempDir(), "out")

	dry := generate.New(p, generate.WithClock(fixedClock), generate.WithDryRun(true))

	res, err := dry.Generate(t.Context(), cfg, outDir)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Len(t, res.Diffs, len(res.GeneratedFiles))
	assert.Contains(t, res.Diffs["copilot-instructions.md"], "+# GitHub Copilot Instructions - Preview")

	_, err = os.Stat(outDir)
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = generate.New(p, generate.WithClock(fixedClock)).Generate(t.Context(), cfg, outDir)
	require.NoError(t, err)

	res, err = dry.Generate(t.Context(), cfg, outDir)
	require.NoError(t, err)
	assert.Empty(t, res.Diffs)

	cfg.Name = "Renamed"

	res, err = dry.Generate(t.Context(), cfg, outDir)
	require.NoError(t, err)
	assert.Contains(t, res.Diffs["project-rules.md"], "-# Preview - Project Rules")
	assert.Contains(t, res.Diffs["project-rules.md"], "+# Renamed - Project Rules")
}

func TestGenerateFromPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "simplified-migrated.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "id": "simplified_migrated_1",
  "name": "Migrated",
  "description": "Migrated from legacy simplified mode",
  "type": "simplified",
  "ruleSelection": {
    "explicitIncludes": ["sec-1", "missing-rule"],
    "includeCategories": ["TASK_MANAGEMENT"],
    "minimumUrgency": "MEDIUM",
    "maxRules": 10
  }
}
`), 0o600))

	outDir := filepath.Join(dir, "out")
	g := generate.New(newTestPool(t), generate.WithClock(fixedClock))

	res, err := g.Generate(t.Context(), path, outDir)
	require.NoError(t, err)
	assert.Equal(t, "simplified_migrated_1", res.Mode)
	assert.Equal(t, 2, res.RulesUsed)
	assert.NotEmpty(t, res.Warnings)

	copilot := readFile(t, filepath.Join(outDir, "copilot-instructions.md"))
	assert.Contains(t, copilot, "No secrets")
	assert.Contains(t, copilot, "Track tasks")

	var md generate.Metadata
	require.NoError(t, json.Unmarshal([]byte(readFile(t, filepath.Join(outDir, generate.MetadataFile))), &md))
	require.NotNil(t, md.Configuration.RuleSelectionCriteria)
	assert.Equal(t, 10, md.Configuration.RuleSelectionCriteria.MaxRules)
	assert.Equal(t, "simplified_migrated_1", md.Source.ConfigurationID)
}

func TestGenerateErrors(t *testing.T) {
	t.Parallel()

	t.Run("unknown source", func(t *testing.T) {
		t.Parallel()

		res, err := generate.New(newTestPool(t)).Generate(t.Context(), 42, t.TempDir())
		require.ErrorIs(t, err, generate.ErrUnknownSource)
		assert.False(t, res.Success)
		assert.Equal(t, "unknown", res.Mode)
		assert.Contains(t, res.Message, "failed to generate mode unknown")
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		res, err := generate.New(newTestPool(t)).Generate(t.Context(), filepath.Join(t.TempDir(), "nope.json"), t.TempDir())
		require.ErrorIs(t, err, os.ErrNotExist)
		assert.False(t, res.Success)
	})

	t.Run("invalid configuration", func(t *testing.T) {
		t.Parallel()

		cfg := mode.Create(mode.TypeCustom, nil)
		cfg.Deployment.Structure = nil

		_, err := generate.New(newTestPool(t)).Generate(t.Context(), cfg, t.TempDir())
		require.ErrorIs(t, err, mode.ErrInvalid)
	})

	t.Run("required document", func(t *testing.T) {
		t.Parallel()

		tplDir := t.TempDir()
		// A directory cannot be read as a template.
		require.NoError(t, os.Mkdir(filepath.Join(tplDir, "project-rules"+render.TemplateExt), 0o750))

		g := generate.New(newTestPool(t), generate.WithTemplates(render.NewTemplateSource(tplDir)))

		res, err := g.Generate(t.Context(), mode.Create(mode.TypeSimplified, nil), t.TempDir())
		require.ErrorIs(t, err, generate.ErrRequiredDocument)
		assert.False(t, res.Success)
		assert.Equal(t, []string{"copilot-instructions.md"}, res.GeneratedFiles)
	})
}

func TestGenerateOptionalDocumentFailure(t *testing.T) {
	t.Parallel()

	cfg := mode.Create(mode.TypeCustom, &mode.Configuration{Name: "Extras"})
	cfg.Rules.CustomFiles = map[string]*mode.RuleSet{
		"notes":       {},
		"nested/file": {},
	}

	res, err := generate.New(newTestPool(t), generate.WithClock(fixedClock)).Generate(t.Context(), cfg, t.TempDir())
	require.NoError(t, err)

	assert.Contains(t, res.GeneratedFiles, "notes.md")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "nested/file")
}

func TestGenerateConfiguredScripts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scripts"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scripts", "hook.sh"), []byte("#!/bin/sh\necho hook\n"), 0o600))

	m := mode.NewManager(nil)
	cfg := m.Create(mode.TypeCustom, &mode.Configuration{ID: "scripted", Name: "Scripted"})
	cfg.Structure.Directories = []mode.Directory{{Path: ".tasks"}}
	cfg.Structure.Scripts = []mode.Script{
		{Filename: "hook.sh", SourcePath: "scripts/hook.sh", TargetPath: "hooks/hook.sh", Executable: true},
		{Filename: "gone.sh", SourcePath: "scripts/gone.sh"},
		{Filename: "escape.sh", SourcePath: "scripts/hook.sh", TargetPath: "../escape.sh"},
	}

	path := filepath.Join(dir, "scripted.json")
	require.NoError(t, m.Save(t.Context(), path, cfg))

	outDir := filepath.Join(dir, "out")

	res, err := generate.New(newTestPool(t)).Generate(t.Context(), path, outDir)
	require.NoError(t, err)

	assert.Contains(t, res.GeneratedFiles, "hooks/hook.sh")
	assert.Len(t, res.Warnings, 2)

	info, err := os.Stat(filepath.Join(outDir, "hooks", "hook.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	_, err = os.Stat(filepath.Join(dir, "escape.sh"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	modePath := filepath.Join(dir, "watched.json")
	outDir := filepath.Join(dir, "out")

	m := mode.NewManager(nil)
	cfg := m.Create(mode.TypeSimplified, &mode.Configuration{ID: "watched", Name: "Before"})
	require.NoError(t, m.Save(t.Context(), modePath, cfg))

	g := generate.New(newTestPool(t), generate.WithClock(fixedClock))

	events := make(chan generate.Event, 16)
	g.Subscribe(events)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Watch(ctx, modePath, outDir)
	}()

	nextEnd := func() generate.EventEnd {
		t.Helper()

		timeout := time.After(10 * time.Second)
		for {
			select {
			case evt := <-events:
				if end, ok := evt.(generate.EventEnd); ok {
					return end
				}
			case <-timeout:
				require.FailNow(t, "timed out waiting for generation")
			}
		}
	}

	first := nextEnd()
	require.NoError(t, first.Err)
	assert.True(t, first.Result.Success)
	assert.Contains(t, readFile(t, filepath.Join(outDir, "project-rules.md")), "# Before - Project Rules")

	cfg.Name = "After"
	require.NoError(t, m.Save(t.Context(), modePath, cfg))

	// A rewrite may produce several events; wait for one that sees the new name.
	for {
		end := nextEnd()
		if end.Err == nil && strings.HasSuffix(end.Result.Message, "for After") {
			break
		}
	}

	assert.Contains(t, readFile(t, filepath.Join(outDir, "project-rules.md")), "# After - Project Rules")

	cancel()
	require.NoError(t, <-done)
}
