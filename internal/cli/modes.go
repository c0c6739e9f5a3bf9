package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/rule"
)

const modeFilesGlob = "**/*.{json,yaml,yml}"

func NewModesCmd(ra *RootArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "modes",
		Aliases: []string{"mode"},
		Short:   "Create, validate and inspect mode configurations",
	}

	cmd.AddCommand(
		newModesListCmd(ra),
		newModesCreateCmd(ra),
		newModesValidateCmd(ra),
		newModesShowCmd(ra),
		newModesAdaptCmd(ra),
	)

	return cmd
}

func modeTypeNames() []string {
	names := make([]string, 0, len(mode.AllTypes))
	for _, t := range mode.AllTypes {
		names = append(names, string(t))
	}

	return names
}

func newModesListCmd(ra *RootArgs) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the mode configurations of the workspace",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := ra.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			dir := e.ws.Config.Modes.Dir

			files, err := doublestar.Glob(os.DirFS(dir), modeFilesGlob, doublestar.WithFilesOnly())
			if err != nil {
				return fmt.Errorf("list %s: %w", dir, err)
			}

			w := cmd.OutOrStdout()
			for _, f := range files {
				path := filepath.Join(dir, filepath.FromSlash(f))

				cfg, err := e.modes.Load(cmd.Context(), path, mode.LoadOptions{SkipValidation: true})
				if err != nil {
					slog.Debug("skip mode file", slog.String("path", path), slog.Any("err", err))

					continue
				}

				mustN(fmt.Fprintf(w, "%-40s %-10s %s\n", f, cfg.Type, cfg.Name))
			}

			return nil
		},
	}
}

type modesCreateArgs struct {
	ID          string
	Name        string
	Description string
	File        string
	Force       bool
}

// form asks for the mode type, name and description.
func (a *modesCreateArgs) form(typ *string) *huh.Form {
	return huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Mode type").
			Options(huh.NewOptions(modeTypeNames()...)...).
			Value(typ),
		huh.NewInput().
			Title("Name").
			Value(&a.Name).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("name is required")
				}

				return nil
			}),
		huh.NewText().
			Title("Description").
			Value(&a.Description),
	))
}

func newModesCreateCmd(ra *RootArgs) *cobra.Command {
	a := &modesCreateArgs{}

	cmd := &cobra.Command{
		Use:       "create [type]",
		Short:     "Create a mode configuration from a built-in template",
		Long:      "Create a mode configuration from a built-in template. Without a type, an interactive form is shown.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: modeTypeNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			var typ string
			if len(args) > 0 {
				typ = args[0]
			} else {
				if !isTerminal(os.Stdin) {
					return errors.New("a mode type is required when not running interactively")
				}

				err := a.form(&typ).RunWithContext(cmd.Context())
				if err != nil {
					return fmt.Errorf("mode form: %w", err)
				}
			}

			t, err := mode.ParseType(typ)
			if err != nil {
				return err //nolint:wrapcheck // Names the bad value.
			}

			e, err := ra.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			cfg := e.modes.Create(t, &mode.Configuration{
				ID:          a.ID,
				Name:        a.Name,
				Description: a.Description,
			})

			path := a.File
			if path == "" {
				path = filepath.Join(e.ws.Config.Modes.Dir, cfg.ID+".json")
			}

			if !a.Force {
				_, err := os.Stat(path)
				if err == nil {
					return fmt.Errorf("%s already exists, use --force to replace it", path)
				}
			}

			err = e.modes.Save(cmd.Context(), path, cfg)
			if err != nil {
				return err //nolint:wrapcheck // Already carries the path.
			}

			mustN(fmt.Fprintln(cmd.OutOrStdout(), path))

			return nil
		},
	}

	cmd.Flags().StringVar(&a.ID, "id", "", "Mode id, generated when empty")
	cmd.Flags().StringVar(&a.Name, "name", "", "Mode name")
	cmd.Flags().StringVar(&a.Description, "description", "", "Mode description")
	cmd.Flags().StringVarP(&a.File, "file", "f", "", "Write to this file instead of the modes directory")
	cmd.Flags().BoolVar(&a.Force, "force", false, "Replace an existing file")

	return cmd
}

// printReport writes the validation findings of a mode.
func printReport(w io.Writer, cfg *mode.Configuration, report *mode.Report) {
	for _, issue := range report.Errors {
		mustN(fmt.Fprintf(w, "error   %s\n", issue))
	}
	for _, issue := range report.Warnings {
		mustN(fmt.Fprintf(w, "warning %s\n", issue))
	}

	if res := report.Resolution; res != nil {
		for _, f := range res.Failed {
			line := fmt.Sprintf("unresolved %s: %s", f.RuleSet, f.Reason)
			if len(f.Suggestions) > 0 {
				line += fmt.Sprintf(" (did you mean: %s)", strings.Join(f.Suggestions, ", "))
			}

			mustN(fmt.Fprintln(w, line))
		}

		mustN(fmt.Fprintf(w, "%s: %d rules, %d errors, %d warnings\n",
			cfg.ID, res.TotalRules, len(report.Errors), len(report.Warnings)))

		return
	}

	mustN(fmt.Fprintf(w, "%s: %d errors, %d warnings\n", cfg.ID, len(report.Errors), len(report.Warnings)))
}

func newModesValidateCmd(ra *RootArgs) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Validate mode configurations against the rule pool",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := ra.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			opts := e.loadOptions()
			opts.SkipValidation = true

			var errs []error

			for _, path := range args {
				cfg, err := e.modes.Load(cmd.Context(), path, opts)
				if err != nil {
					errs = append(errs, err)

					continue
				}

				report := e.modes.Validate(cfg)

				if cmd.Flags().Changed("output") {
					err = printData(cmd, report, output)
					if err != nil {
						return err
					}
				} else {
					printReport(cmd.OutOrStdout(), cfg, report)
				}

				if err := report.Err(); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", path, err))
				}
			}

			return errors.Join(errs...)
		},
	}

	addOutputFlag(cmd, &output)

	return cmd
}

// modeRules is the resolved rule list of one output document.
type modeRules struct {
	Document   string
	Rules      []string
	Unresolved []string
}

func newModesShowCmd(ra *RootArgs) *cobra.Command {
	var (
		output   string
		resolved bool
	)

	cmd := &cobra.Command{
		Use:   "show <path>",
		Short: "Show a mode configuration, or the rules each of its documents selects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := ra.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			// With an output format, --resolved prints the configuration
			// with every selection expanded to explicit ids.
			structured := !resolved || cmd.Flags().Changed("output")

			opts := e.loadOptions()
			opts.SkipValidation = true
			opts.ResolveInheritance = true
			opts.ExpandSelections = resolved && structured

			cfg, err := e.modes.Load(cmd.Context(), args[0], opts)
			if err != nil {
				return err //nolint:wrapcheck // Already carries the path.
			}

			if structured {
				return printData(cmd, cfg, output)
			}

			var outs []modeRules
			for _, entry := range cfg.RuleSets() {
				out := modeRules{Document: entry.Name}

				sel, err := mode.ResolveRuleSet(e.pool, entry.RuleSet)
				if err != nil {
					return fmt.Errorf("%s: %w", entry.Path, err)
				}

				out.Rules = sel.IDs
				out.Unresolved = sel.Unresolved
				outs = append(outs, out)
			}

			w := cmd.OutOrStdout()
			for _, out := range outs {
				mustN(fmt.Fprintf(w, "%s (%d rules):\n", out.Document, len(out.Rules)))

				for _, id := range out.Rules {
					r, ok := e.pool.Get(id)
					if !ok {
						continue
					}

					printRuleList(w, []*rule.Rule{r})
				}
				for _, id := range out.Unresolved {
					mustN(fmt.Fprintf(w, "  ? %s (not in pool)\n", id))
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&resolved, "resolved", false, "Show resolved rule ids instead of selections")
	addOutputFlag(cmd, &output)

	return cmd
}

func newModesAdaptCmd(ra *RootArgs) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "adapt <path>",
		Short: "Convert a migrated configuration with a legacy rule selection to per-document rule sets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := ra.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			opts := e.loadOptions()
			opts.SkipValidation = true

			cached, err := e.modes.Load(cmd.Context(), args[0], opts)
			if err != nil {
				return err //nolint:wrapcheck // Already carries the path.
			}

			cfg := cached.Clone()
			if !mode.Adapt(cfg) {
				slog.Info("nothing to adapt", slog.String("path", args[0]))

				return nil
			}

			dst := file
			if dst == "" {
				dst = args[0]
			}

			err = e.modes.Save(cmd.Context(), dst, cfg)
			if err != nil {
				return err //nolint:wrapcheck // Already carries the path.
			}

			slog.Info("adapted mode configuration", slog.String("path", dst))

			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Write to this file instead of replacing the input")

	return cmd
}
