package cli

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/macropower/rulepool/api"
	"github.com/macropower/rulepool/pkg/extract"
)

type ExtractArgs struct {
	*RootArgs

	Output  string
	Include []string
	Exclude []string
	Store   bool
}

func (ea *ExtractArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&ea.Include, "include", nil, "Globs of legacy documents, defaults to extract.include of the workspace")
	cmd.Flags().StringSliceVar(&ea.Exclude, "exclude", nil, "Globs to skip, added to extract.exclude of the workspace")
	cmd.Flags().BoolVar(&ea.Store, "store", false, "Store the extracted rules in the rule pool")
	addOutputFlag(cmd, &ea.Output)
}

func NewExtractCmd(rootArgs *RootArgs) *cobra.Command {
	ea := &ExtractArgs{RootArgs: rootArgs}

	cmd := &cobra.Command{
		Use:   "extract [dir]",
		Short: "Extract rules from legacy instruction documents",
		Long: "Extract rules from legacy markdown, HTML and script documents under dir. " +
			"The first directory below dir names the source mode of each file.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootArgs.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			dir := e.ws.Root
			if len(args) > 0 {
				dir = args[0]
			}

			ec := e.ws.Config.Extract

			include := ea.Include
			if len(include) == 0 {
				include = ec.Include
			}

			x := extract.NewExtractor(extract.WithExclude(slices.Concat(ec.Exclude, ea.Exclude)...))

			res, err := x.ExtractDir(cmd.Context(), dir, include...)
			if err != nil {
				return err //nolint:wrapcheck // Already annotated.
			}

			if cmd.Flags().Changed("output") {
				return printData(cmd, res, ea.Output)
			}

			w := cmd.OutOrStdout()
			for _, warning := range res.Warnings {
				mustN(fmt.Fprintf(w, "warning: %s\n", warning))
			}

			mustN(fmt.Fprintf(w, "extracted %d rules from %d files\n", len(res.Rules), len(res.Files)))

			if !ea.Store {
				printRuleList(w, res.Rules)

				return nil
			}

			ids, err := extract.Store(cmd.Context(), e.pool, res.Rules)
			if len(ids) > 0 {
				mustN(fmt.Fprintf(w, "stored %d rules\n", len(ids)))
			}
			if err != nil {
				return fmt.Errorf("store extracted rules: %w", err)
			}

			return nil
		},
	}

	ea.AddFlags(cmd)

	return cmd
}

type MigrateArgs struct {
	*RootArgs

	Output    string
	OutDir    string
	Report    string
	Threshold float64
}

func (ma *MigrateArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ma.OutDir, "out", "", "Output directory, defaults to modes.migratedDir of the workspace")
	cmd.Flags().StringVar(&ma.Report, "report", "", "Write the markdown migration report to this file")
	cmd.Flags().Float64Var(&ma.Threshold, "threshold", 0,
		"Minimum mapping confidence, defaults to extract.confidenceThreshold of the workspace")
	addOutputFlag(cmd, &ma.Output)

	err := cmd.MarkFlagDirname("out")
	if err != nil {
		panic(fmt.Errorf("mark out flag: %w", err))
	}
}

func NewMigrateCmd(rootArgs *RootArgs) *cobra.Command {
	ma := &MigrateArgs{RootArgs: rootArgs}

	cmd := &cobra.Command{
		Use:   "migrate [modes-dir]",
		Short: "Convert legacy mode documents into mode configurations",
		Long: "Convert the legacy documents of each mode directory into a mode configuration " +
			"that references existing pool rules. modes-dir defaults to the workspace root.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootArgs.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			dir := e.ws.Root
			if len(args) > 0 {
				dir = args[0]
			}

			outDir := ma.OutDir
			if outDir == "" {
				outDir = e.ws.Config.Modes.MigratedDir
			}

			threshold := *e.ws.Config.Extract.ConfidenceThreshold
			if cmd.Flags().Changed("threshold") {
				threshold = ma.Threshold
			}

			m := extract.NewMigrator(e.pool, extract.WithConfidenceThreshold(threshold))

			migrations, err := m.MigrateAll(cmd.Context(), dir, outDir)
			if err != nil {
				return err //nolint:wrapcheck // Already annotated.
			}

			if ma.Report != "" {
				report := extract.Report(migrations, time.Now())

				err = api.WriteFile(ma.Report, []byte(report), 0o644)
				if err != nil {
					return fmt.Errorf("write report: %w", err)
				}

				slog.Info("wrote migration report", slog.String("path", ma.Report))
			}

			if cmd.Flags().Changed("output") {
				return printData(cmd, migrations, ma.Output)
			}

			if ma.Report == "" {
				return printMarkdown(cmd.OutOrStdout(), extract.Report(migrations, time.Now()))
			}

			w := cmd.OutOrStdout()
			for _, mig := range migrations {
				status := "ok"
				if !mig.Success {
					status = "failed"
				}

				mustN(fmt.Fprintf(w, "%-10s %-7s %3.0f%% %s\n", mig.Type, status, mig.Confidence*100, mig.Path))
			}

			return nil
		},
	}

	ma.AddFlags(cmd)

	return cmd
}
