package generate

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/macropower/rulepool/pkg/log"
	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/render"
	"github.com/macropower/rulepool/pkg/selection"
)

var (
	//go:embed scripts
	scriptFS embed.FS

	// AutomationScripts are written when structure.includeAutomation is set.
	AutomationScripts = []string{"mode-manager.sh", "update_project_map.sh"}

	// EnterpriseScripts are written for enterprise modes when
	// structure.includeScripts is set.
	EnterpriseScripts = []string{
		"task-management.sh",
		"massive_task_orchestrator.sh",
		"interrupt_handler.sh",
		"auto_save.sh",
		"sync_check.sh",
	}
)

func scriptValues(cfg *mode.Configuration, generatedAt time.Time) render.Values {
	sel := cfg.RuleSelection
	if sel == nil && cfg.Rules.CopilotInstructions != nil {
		sel = &cfg.Rules.CopilotInstructions.Selection
	}
	if sel == nil {
		sel = &selection.Selection{}
	}

	values := render.Values{
		"mode.name":                cfg.Name,
		"mode.type":                string(cfg.Type),
		"metadata.generatedAt":     generatedAt.UTC().Format(time.RFC3339),
		"selection.maxRules":       "unlimited",
		"selection.categories":     "all",
		"selection.minimumUrgency": "any",
	}

	if sel.MaxRules > 0 {
		values["selection.maxRules"] = strconv.Itoa(sel.MaxRules)
	}

	cats := slices.Concat(sel.IncludeCategories, sel.Categories)
	if len(cats) > 0 {
		names := make([]string, 0, len(cats))
		for _, c := range cats {
			names = append(names, string(c))
		}

		values["selection.categories"] = strings.Join(names, ", ")
	}

	switch {
	case sel.MinimumUrgency != nil:
		values["selection.minimumUrgency"] = sel.MinimumUrgency.String()
	case sel.MinUrgency != nil:
		values["selection.minimumUrgency"] = sel.MinUrgency.String()
	case sel.UrgencyFilter != nil && sel.UrgencyFilter.Minimum != nil:
		values["selection.minimumUrgency"] = sel.UrgencyFilter.Minimum.String()
	}

	return values
}

func builtinScript(name string, values render.Values) ([]byte, error) {
	b, err := scriptFS.ReadFile("scripts/" + name)
	if err != nil {
		return nil, fmt.Errorf("read built-in script %s: %w", name, err)
	}

	return []byte(render.Substitute(string(b), values.Lookup)), nil
}

// writeScripts writes the built-in automation and enterprise scripts, then
// the scripts listed in structure.scripts. baseDir resolves their source
// paths. Failures of configured scripts are returned as warnings.
func (g *Generator) writeScripts(
	ctx context.Context,
	out *outputDir,
	cfg *mode.Configuration,
	baseDir string,
	generatedAt time.Time,
	res *Result,
) error {
	ctx, span := g.tracer.Start(ctx, "scripts")
	defer span.End()

	logger := log.WithContext(ctx)
	values := scriptValues(cfg, generatedAt)

	var names []string
	if cfg.Structure.IncludeAutomation {
		names = append(names, AutomationScripts...)
	}
	if cfg.Structure.IncludeScripts && cfg.Type == mode.TypeEnterprise {
		names = append(names, EnterpriseScripts...)
	}

	for _, name := range names {
		b, err := builtinScript(name, values)
		if err != nil {
			return err
		}

		err = out.WriteFile(name, b, executableMode)
		if err != nil {
			return err
		}

		res.GeneratedFiles = append(res.GeneratedFiles, name)
	}

	for _, s := range cfg.Structure.Scripts {
		target := s.TargetPath
		if target == "" {
			target = s.Filename
		}

		err := copyScript(out, s, baseDir, target)
		if err != nil {
			logger.WarnContext(ctx, "skip script", slog.String("script", s.Filename), slog.Any("err", err))
			res.Warnings = append(res.Warnings, err.Error())

			continue
		}

		res.GeneratedFiles = append(res.GeneratedFiles, filepath.ToSlash(filepath.Clean(target)))
	}

	return nil
}

func copyScript(out *outputDir, s mode.Script, baseDir, target string) error {
	if target == "" {
		return fmt.Errorf("script %q: no target path", s.SourcePath)
	}

	src := s.SourcePath
	if !filepath.IsAbs(src) {
		src = filepath.Join(baseDir, src)
	}

	b, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read script %s: %w", src, err)
	}

	perm := fileMode
	if s.Executable {
		perm = executableMode
	}

	return out.WriteFile(target, b, perm)
}
