package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/macropower/rulepool/api"
	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/pool"
	"github.com/macropower/rulepool/pkg/render"
	"github.com/macropower/rulepool/pkg/rule"
)

const maxSuggestions = 3

func NewRulesCmd(ra *RootArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rules",
		Aliases: []string{"rule"},
		Short:   "Manage the rule pool",
	}

	cmd.AddCommand(
		newRulesSearchCmd(ra),
		newRulesGetCmd(ra),
		newRulesCreateCmd(ra),
		newRulesDeleteCmd(ra),
		newRulesStatsCmd(ra),
		newRulesExportCmd(ra),
		newRulesImportCmd(ra),
		newRulesBulkCmd(ra),
		newRulesValidateCmd(ra),
	)

	return cmd
}

// idCompletion completes rule ids from the workspace pool.
func idCompletion(ra *RootArgs) cobra.CompletionFunc {
	return func(cmd *cobra.Command, _ []string, _ string) ([]cobra.Completion, cobra.ShellCompDirective) {
		e, err := ra.open(cmd.Context())
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		defer e.Close()

		completions := make([]cobra.Completion, 0, e.pool.Len())
		for _, r := range e.pool.All() {
			completions = append(completions, cobra.CompletionWithDesc(r.ID, r.Title))
		}

		return completions, cobra.ShellCompDirectiveNoFileComp
	}
}

// notFound returns an error for a missing rule id, naming the closest ids.
func notFound(p *pool.Pool, id string) error {
	matches := fuzzy.Find(id, p.IDs())

	var suggestions []string
	for _, m := range matches[:min(len(matches), maxSuggestions)] {
		suggestions = append(suggestions, m.Str)
	}

	if len(suggestions) == 0 {
		return fmt.Errorf("rule %q: %w", id, pool.ErrNotFound)
	}

	return fmt.Errorf("rule %q: %w, did you mean: %s", id, pool.ErrNotFound, strings.Join(suggestions, ", "))
}

// printRuleList writes one line per rule.
func printRuleList(w io.Writer, rules []*rule.Rule) {
	for _, r := range rules {
		mustN(fmt.Fprintf(w, "%s %-36s %s (%s)\n", render.Marker(r.Urgency), r.ID, r.Title, render.CategoryName(r.Category)))
	}
}

type rulesSearchArgs struct {
	Output       string
	Author       string
	Categories   []string
	Urgencies    []string
	Tags         []string
	ProjectTypes []string
	Facets       bool
}

func (a *rulesSearchArgs) criteria(query string) (pool.Criteria, error) {
	c := pool.Criteria{
		Query:  query,
		Author: a.Author,
		Tags:   a.Tags,
	}

	for _, v := range a.Categories {
		cat, err := rule.ParseCategory(v)
		if err != nil {
			return c, err //nolint:wrapcheck // Names the bad value.
		}

		c.Categories = append(c.Categories, cat)
	}

	for _, v := range a.Urgencies {
		u, err := rule.ParseUrgency(v)
		if err != nil {
			return c, err //nolint:wrapcheck // Names the bad value.
		}

		c.Urgencies = append(c.Urgencies, u)
	}

	for _, v := range a.ProjectTypes {
		pt, err := rule.ParseProjectType(v)
		if err != nil {
			return c, err //nolint:wrapcheck // Names the bad value.
		}

		c.ProjectTypes = append(c.ProjectTypes, pt)
	}

	return c, nil
}

func newRulesSearchCmd(ra *RootArgs) *cobra.Command {
	a := &rulesSearchArgs{}

	cmd := &cobra.Command{
		Use:     "search [query]",
		Aliases: []string{"list", "ls"},
		Short:   "Search rules by text, category, urgency, tag or project type",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var query string
			if len(args) > 0 {
				query = args[0]
			}

			c, err := a.criteria(query)
			if err != nil {
				return err
			}

			e, err := ra.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			res := e.pool.Search(c)

			if cmd.Flags().Changed("output") {
				if a.Facets {
					return printData(cmd, res, a.Output)
				}

				return printData(cmd, res.Rules, a.Output)
			}

			printRuleList(cmd.OutOrStdout(), res.Rules)
			if a.Facets {
				return printData(cmd, res.Facets, outputYAML)
			}

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&a.Categories, "category", nil, "Filter by category")
	cmd.Flags().StringSliceVar(&a.Urgencies, "urgency", nil, "Filter by urgency")
	cmd.Flags().StringSliceVar(&a.Tags, "tag", nil, "Filter by tag, any of")
	cmd.Flags().StringSliceVar(&a.ProjectTypes, "project-type", nil, "Filter by project type")
	cmd.Flags().StringVar(&a.Author, "author", "", "Filter by author")
	cmd.Flags().BoolVar(&a.Facets, "facets", false, "Include facet counts")
	addOutputFlag(cmd, &a.Output)

	err := cmd.RegisterFlagCompletionFunc("category",
		cobra.FixedCompletions(categoryNames(), cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}

	return cmd
}

func newRulesGetCmd(ra *RootArgs) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:               "get <id>",
		Short:             "Show a rule",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: idCompletion(ra),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := ra.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			r, ok := e.pool.Get(args[0])
			if !ok {
				return notFound(e.pool, args[0])
			}

			if cmd.Flags().Changed("output") {
				return printData(cmd, r, output)
			}

			w := cmd.OutOrStdout()
			mustN(fmt.Fprintf(w, "# %s %s\n\n", render.Marker(r.Urgency), r.Title))
			mustN(fmt.Fprintf(w, "%s\n\n", render.MetadataLine(r)))
			if r.Description != "" {
				mustN(fmt.Fprintf(w, "%s\n\n", r.Description))
			}

			return printMarkdown(w, r.Content+"\n")
		},
	}

	addOutputFlag(cmd, &output)

	return cmd
}

type rulesCreateArgs struct {
	ID          string
	Title       string
	Description string
	Content     string
	ContentFile string
	Category    string
	Urgency     string
	Author      string
	Tags        []string
	AppliesTo   []string
	DependsOn   []string
}

func (a *rulesCreateArgs) rule() (*rule.Rule, error) {
	content := a.Content
	if a.ContentFile != "" {
		b, err := api.ReadFile(a.ContentFile)
		if err != nil {
			return nil, fmt.Errorf("read content: %w", err)
		}

		content = string(b)
	}

	cat, err := rule.ParseCategory(a.Category)
	if err != nil {
		return nil, err //nolint:wrapcheck // Names the bad value.
	}

	u, err := rule.ParseUrgency(a.Urgency)
	if err != nil {
		return nil, err //nolint:wrapcheck // Names the bad value.
	}

	opts := []rule.Opt{
		rule.WithTitle(a.Title),
		rule.WithDescription(a.Description),
		rule.WithContent(content),
		rule.WithCategory(cat),
		rule.WithUrgency(u),
		rule.WithDependsOn(a.DependsOn...),
	}
	if len(a.Tags) > 0 {
		opts = append(opts, rule.WithTags(a.Tags...))
	}
	if a.ID != "" {
		opts = append(opts, rule.WithID(a.ID))
	}
	if a.Author != "" {
		opts = append(opts, rule.WithAuthor(a.Author))
	}

	if len(a.AppliesTo) > 0 {
		pts := make([]rule.ProjectType, 0, len(a.AppliesTo))
		for _, v := range a.AppliesTo {
			pt, err := rule.ParseProjectType(v)
			if err != nil {
				return nil, err //nolint:wrapcheck // Names the bad value.
			}

			pts = append(pts, pt)
		}

		opts = append(opts, rule.WithAppliesTo(pts...))
	}

	return rule.New(opts...), nil
}

func newRulesCreateCmd(ra *RootArgs) *cobra.Command {
	a := &rulesCreateArgs{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a custom rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := a.rule()
			if err != nil {
				return err
			}

			e, err := ra.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			created, err := e.pool.Create(cmd.Context(), r)
			if err != nil {
				return fmt.Errorf("create rule: %w", err)
			}

			mustN(fmt.Fprintln(cmd.OutOrStdout(), created.ID))

			return nil
		},
	}

	cmd.Flags().StringVar(&a.ID, "id", "", "Rule id, generated when empty")
	cmd.Flags().StringVar(&a.Title, "title", "", "Rule title")
	cmd.Flags().StringVar(&a.Description, "description", "", "Rule description")
	cmd.Flags().StringVar(&a.Content, "content", "", "Rule content")
	cmd.Flags().StringVar(&a.ContentFile, "content-file", "", "Read rule content from a file")
	cmd.Flags().StringVar(&a.Category, "category", string(rule.CategoryCustom), "Rule category")
	cmd.Flags().StringVar(&a.Urgency, "urgency", rule.UrgencyMedium.String(), "Rule urgency")
	cmd.Flags().StringVar(&a.Author, "author", "", "Rule author")
	cmd.Flags().StringSliceVar(&a.Tags, "tag", nil, "Rule tags")
	cmd.Flags().StringSliceVar(&a.AppliesTo, "applies-to", nil, "Project types the rule applies to")
	cmd.Flags().StringSliceVar(&a.DependsOn, "depends-on", nil, "Ids of rules this rule depends on")

	cmd.MarkFlagsMutuallyExclusive("content", "content-file")
	must(cmd.MarkFlagRequired("title"))

	return cmd
}

func newRulesDeleteCmd(ra *RootArgs) *cobra.Command {
	return &cobra.Command{
		Use:               "delete <id>",
		Aliases:           []string{"rm"},
		Short:             "Delete a rule that no other rule depends on",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: idCompletion(ra),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := ra.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			ok, err := e.pool.Delete(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("delete rule: %w", err)
			}
			if !ok {
				return notFound(e.pool, args[0])
			}

			slog.Info("deleted rule", slog.String("id", args[0]))

			return nil
		},
	}
}

func newRulesStatsCmd(ra *RootArgs) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the rule pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := ra.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			stats := e.pool.Statistics()

			if cmd.Flags().Changed("output") {
				return printData(cmd, stats, output)
			}

			w := cmd.OutOrStdout()

			printLines(w,
				fmt.Sprintf("Rules:      %s (%s active, %s inactive)",
					humanize.Comma(int64(stats.TotalRules)),
					humanize.Comma(int64(stats.ActiveRules)),
					humanize.Comma(int64(stats.InactiveRules))),
				fmt.Sprintf("Custom:     %s", humanize.Comma(int64(stats.CustomRules))),
				fmt.Sprintf("Predefined: %s", humanize.Comma(int64(stats.PredefinedRules))),
				"",
				"By category:",
			)

			for _, c := range rule.AllCategories {
				if n := stats.ByCategory[c]; n > 0 {
					mustN(fmt.Fprintf(w, "  %-24s %d\n", render.CategoryName(c), n))
				}
			}

			mustN(fmt.Fprintln(w, "\nBy urgency:"))

			for u := rule.UrgencyCritical; u >= rule.UrgencyInfo; u-- {
				if n := stats.ByUrgency[u]; n > 0 {
					mustN(fmt.Fprintf(w, "  %s %-21s %d\n", render.Marker(u), u, n))
				}
			}

			if len(stats.MostUsedTags) > 0 {
				mustN(fmt.Fprintln(w, "\nMost used tags:"))

				for _, tc := range stats.MostUsedTags {
					mustN(fmt.Fprintf(w, "  %-24s %d\n", tc.Tag, tc.Count))
				}
			}

			if len(stats.RecentlyUpdated) > 0 {
				mustN(fmt.Fprintln(w, "\nRecently updated:"))

				for _, r := range stats.RecentlyUpdated {
					mustN(fmt.Fprintf(w, "  %-36s %s\n", r.ID, humanize.Time(r.UpdatedAt)))
				}
			}

			return nil
		},
	}

	addOutputFlag(cmd, &output)

	return cmd
}

func newRulesExportCmd(ra *RootArgs) *cobra.Command {
	var (
		file  string
		modes []string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every rule, and optionally mode configurations, as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := ra.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			docs := make([]any, 0, len(modes))
			for _, path := range modes {
				cfg, err := e.modes.Load(cmd.Context(), path, mode.LoadOptions{SkipValidation: true})
				if err != nil {
					return err //nolint:wrapcheck // Already carries the path.
				}

				docs = append(docs, cfg)
			}

			export := e.pool.Export(docs...)

			if file == "" {
				return printData(cmd, export, outputJSON)
			}

			b, err := json.MarshalIndent(export, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal export: %w", err)
			}

			err = api.WriteFile(file, append(b, '\n'), 0o600)
			if err != nil {
				return fmt.Errorf("write export: %w", err)
			}

			slog.Info("exported rules",
				slog.String("file", file),
				slog.Int("rules", export.Metadata.TotalRules),
				slog.Int("modes", export.Metadata.TotalModes),
			)

			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Write the export to a file instead of stdout")
	cmd.Flags().StringSliceVar(&modes, "mode", nil, "Mode configuration files to include")

	return cmd
}

func newRulesImportCmd(ra *RootArgs) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import rules from an export document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)

			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read import: %w", err)
			}

			e, err := ra.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.pool.Import(cmd.Context(), data, overwrite)
			if err != nil {
				return fmt.Errorf("import rules: %w", err)
			}

			printLines(cmd.OutOrStdout(),
				fmt.Sprintf("Imported %d rules, skipped %d.", res.Imported, res.Skipped),
			)
			printLines(cmd.ErrOrStderr(), res.Errors...)

			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace rules with existing ids")

	return cmd
}

func newRulesBulkCmd(ra *RootArgs) *cobra.Command {
	var value string

	ops := []string{
		string(pool.BulkEnable),
		string(pool.BulkDisable),
		string(pool.BulkSetUrgency),
		string(pool.BulkAddTag),
		string(pool.BulkRemoveTag),
		string(pool.BulkDelete),
	}

	cmd := &cobra.Command{
		Use:       "bulk <operation> <id>...",
		Short:     "Apply one operation to many rules",
		Long:      fmt.Sprintf("Apply one operation to many rules. Operations: %s.", strings.Join(ops, ", ")),
		Args:      cobra.MinimumNArgs(2),
		ValidArgs: ops,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := ra.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			affected, err := e.pool.Bulk(cmd.Context(), pool.BulkOp{
				Type:    pool.BulkOpType(args[0]),
				Value:   value,
				RuleIDs: args[1:],
			})

			printLines(cmd.OutOrStdout(), affected...)

			if err != nil {
				return fmt.Errorf("bulk %s: %w", args[0], err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "Operation value: the urgency or tag")

	return cmd
}

func newRulesValidateCmd(ra *RootArgs) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate every rule and the dependencies between them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := ra.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			report := e.pool.Validate()

			if cmd.Flags().Changed("output") {
				err = printData(cmd, report, output)
				if err != nil {
					return err
				}
			} else {
				w := cmd.OutOrStdout()
				for _, issue := range report.Issues {
					mustN(fmt.Fprintf(w, "%-7s %s: %s\n", issue.Severity, issue.RuleID, issue))
				}

				mustN(fmt.Fprintf(w, "%d rules, %d errors, %d warnings\n", e.pool.Len(), report.Errors, report.Warnings))
			}

			if !report.Valid {
				return errInvalidPool
			}

			return nil
		},
	}

	addOutputFlag(cmd, &output)

	return cmd
}

var errInvalidPool = errors.New("rule pool has errors")

func categoryNames() []string {
	names := make([]string, 0, len(rule.AllCategories))
	for _, c := range rule.AllCategories {
		names = append(names, string(c))
	}

	return names
}
