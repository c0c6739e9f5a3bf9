package cli

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/macropower/rulepool/pkg/generate"
	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/render"
	"github.com/macropower/rulepool/pkg/yaml"
)

type GenerateArgs struct {
	*RootArgs

	OutDir string
	DryRun bool
	Watch  bool
}

func (ga *GenerateArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ga.OutDir, "out", "", "Output directory, defaults to output.dir of the workspace")
	cmd.Flags().BoolVar(&ga.DryRun, "dry-run", false, "Print diffs against existing files instead of writing")
	cmd.Flags().BoolVarP(&ga.Watch, "watch", "w", false, "Regenerate when the mode or pool file changes")

	err := cmd.MarkFlagDirname("out")
	if err != nil {
		panic(fmt.Errorf("mark out flag: %w", err))
	}
}

// generator returns a generator over the opened workspace.
func (e *env) generator(dryRun bool) *generate.Generator {
	return generate.New(e.pool,
		generate.WithModeManager(e.modes),
		generate.WithTemplates(e.templates),
		generate.WithRenderContext(e.renderContext()),
		generate.WithLoadOptions(e.loadOptions()),
		generate.WithPoolFile(e.poolFile()),
		generate.WithDryRun(dryRun),
	)
}

func NewGenerateCmd(ra *RootArgs) *cobra.Command {
	ga := &GenerateArgs{RootArgs: ra}

	cmd := &cobra.Command{
		Use:     "generate <mode>",
		Aliases: []string{"gen"},
		Short:   "Generate the documents, scripts and metadata of a mode",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := ra.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			outDir := ga.OutDir
			if outDir == "" {
				outDir = e.ws.Config.Output.Dir
			}

			g := e.generator(ga.DryRun)

			if ga.Watch {
				return watch(cmd, g, args[0], outDir)
			}

			res, err := g.Generate(cmd.Context(), args[0], outDir)
			if err != nil {
				return err //nolint:wrapcheck // Already annotated.
			}

			printResult(cmd.OutOrStdout(), res)

			return nil
		},
	}

	ga.AddFlags(cmd)
	cmd.MarkFlagsMutuallyExclusive("dry-run", "watch")

	return cmd
}

// watch runs [generate.Generator.Watch] until the command context is done,
// printing every run.
func watch(cmd *cobra.Command, g *generate.Generator, modePath, outDir string) error {
	events := make(chan generate.Event)
	g.Subscribe(events)

	var wg sync.WaitGroup

	wg.Go(func() {
		for evt := range events {
			switch e := evt.(type) {
			case generate.EventStart:
				slog.Debug("generating", slog.String("trigger", e.Trigger))
			case generate.EventEnd:
				if e.Err != nil {
					slog.Error("generate", slog.Any("err", e.Err))

					continue
				}

				printResult(cmd.OutOrStdout(), e.Result)
			}
		}
	})

	slog.Info("watching for changes", slog.String("mode", modePath), slog.String("out", outDir))

	err := g.Watch(cmd.Context(), modePath, outDir)

	close(events)
	wg.Wait()

	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	return nil
}

// printResult writes a generation summary, followed by the diffs of a dry
// run.
func printResult(w io.Writer, res *generate.Result) {
	mustN(fmt.Fprintf(w, "%s: %d rules in %s\n", res.Message, res.RulesUsed, res.Duration.Round(time.Millisecond)))

	for _, warning := range res.Warnings {
		mustN(fmt.Fprintf(w, "warning: %s\n", warning))
	}

	if !res.DryRun {
		return
	}

	if len(res.Diffs) == 0 {
		mustN(fmt.Fprintln(w, "no changes"))

		return
	}

	color := writerIsTerminal(w)
	for _, file := range slices.Sorted(maps.Keys(res.Diffs)) {
		must(yaml.Highlight(w, []byte(res.Diffs[file]), "diff", color))
	}

	var size uint64
	for _, d := range res.Diffs {
		size += uint64(len(d))
	}

	mustN(fmt.Fprintf(w, "%d files would change (%s of diff)\n", len(res.Diffs), humanize.Bytes(size)))
}

type RenderArgs struct {
	*RootArgs

	Copy bool
	Raw  bool
	List bool
}

func (ra *RenderArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&ra.Copy, "copy", false, "Copy the rendered document to the clipboard")
	cmd.Flags().BoolVar(&ra.Raw, "raw", false, "Print markdown without terminal rendering")
	cmd.Flags().BoolVar(&ra.List, "list", false, "List the documents of the mode")
}

func NewRenderCmd(rootArgs *RootArgs) *cobra.Command {
	ra := &RenderArgs{RootArgs: rootArgs}

	cmd := &cobra.Command{
		Use:   "render <mode> [document]",
		Short: "Render one document of a mode without writing files",
		Long: fmt.Sprintf("Render one document of a mode without writing files. The document defaults to %s.",
			mode.OutputCopilotInstructions),
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootArgs.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if ra.List {
				cfg, err := e.modes.Load(cmd.Context(), args[0], e.loadOptions())
				if err != nil {
					return err //nolint:wrapcheck // Already carries the path.
				}

				printLines(cmd.OutOrStdout(), generate.Documents(cfg)...)

				return nil
			}

			name := string(mode.OutputCopilotInstructions)
			if len(args) > 1 {
				name = args[1]
			}

			doc, err := e.generator(false).Render(cmd.Context(), args[0], name)
			if err != nil {
				return err //nolint:wrapcheck // Already annotated.
			}

			slog.Debug("rendered document",
				slog.String("file", doc.FileName(e.renderContext().Format)),
				slog.String("template", doc.Template),
				slog.Int("rules", len(doc.RuleIDs)),
			)

			if ra.Copy {
				err = clipboard.WriteAll(doc.Content)
				if err != nil {
					return fmt.Errorf("copy to clipboard: %w", err)
				}

				slog.Info("copied document to clipboard", slog.String("document", name))

				return nil
			}

			if ra.Raw || e.renderContext().Format != render.FormatMarkdown {
				_, err = io.WriteString(cmd.OutOrStdout(), doc.Content)
				if err != nil {
					return fmt.Errorf("write output: %w", err)
				}

				return nil
			}

			return printMarkdown(cmd.OutOrStdout(), doc.Content)
		},
	}

	ra.AddFlags(cmd)

	return cmd
}
