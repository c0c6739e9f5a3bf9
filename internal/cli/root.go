package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/macropower/rulepool/pkg/config"
	"github.com/macropower/rulepool/pkg/log"
	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/pool"
	"github.com/macropower/rulepool/pkg/render"
)

const (
	cmdName = "rulepool"
	cmdDesc = `Reusable rule pool and mode generation engine for AI assistant instructions.`

	cmdExamples = `  # Search the rule pool:
  rulepool rules search --category SECURITY_RULES

  # Create and validate an enterprise mode:
  rulepool modes create enterprise --name "My Team" -f modes/team.json
  rulepool modes validate modes/team.json

  # Generate documents, regenerating on change:
  rulepool generate modes/team.json --watch

  # Preview one document:
  rulepool render modes/team.json project-rules

  # Migrate legacy mode documents:
  rulepool migrate ./legacy-modes`
)

type RootArgs struct {
	LogLevel     string
	LogFormat    string
	ConfigPath   string
	Dir          string
	OTLPEndpoint string

	shutdownTracing func(context.Context) error
}

func NewRootArgs() *RootArgs {
	return &RootArgs{}
}

func (ra *RootArgs) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVar(&ra.LogLevel, "log-level", "info", fmt.Sprintf("Log level, one of: %s", log.AllLevels))
	cmd.PersistentFlags().
		StringVar(&ra.LogFormat, "log-format", "text", fmt.Sprintf("Log format, one of: %s", log.AllFormats))
	cmd.PersistentFlags().
		StringVar(&ra.ConfigPath, "config", "", "Path to the workspace configuration file")
	cmd.PersistentFlags().
		StringVarP(&ra.Dir, "dir", "C", ".", "Workspace directory")
	cmd.PersistentFlags().
		StringVar(&ra.OTLPEndpoint, "otlp-endpoint", "", "Export traces to this OTLP gRPC endpoint")

	var err error

	err = cmd.RegisterFlagCompletionFunc("log-format",
		cobra.FixedCompletions(log.AllFormats, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}

	err = cmd.RegisterFlagCompletionFunc("log-level",
		cobra.FixedCompletions(log.AllLevels, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}

	err = cmd.MarkPersistentFlagFilename("config", "yaml", "yml")
	if err != nil {
		panic(fmt.Errorf("mark config flag: %w", err))
	}

	err = cmd.MarkPersistentFlagDirname("dir")
	if err != nil {
		panic(fmt.Errorf("mark dir flag: %w", err))
	}
}

func NewRootCmd() *cobra.Command {
	args := NewRootArgs()

	cmd := &cobra.Command{
		Use:                cmdName,
		Short:              cmdDesc,
		Example:            cmdExamples,
		SilenceUsage:       true,
		PersistentPreRunE:  setup(args),
		PersistentPostRunE: teardown(args),
	}

	args.AddFlags(cmd)

	cmd.AddCommand(
		NewRulesCmd(args),
		NewModesCmd(args),
		NewGenerateCmd(args),
		NewRenderCmd(args),
		NewExtractCmd(args),
		NewMigrateCmd(args),
		NewServeMCPCmd(args),
		NewConfigCmd(args),
		NewVersionCmd(),
	)

	bindEnvVars(cmd)

	return cmd
}

func setup(ra *RootArgs) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		logHandler, err := log.CreateHandlerWithStrings(cmd.ErrOrStderr(), ra.LogLevel, ra.LogFormat)
		if err != nil {
			return fmt.Errorf("create log handler: %w", err)
		}

		slog.SetDefault(slog.New(logHandler))

		if ra.OTLPEndpoint != "" {
			ra.shutdownTracing, err = setupTracing(cmd.Context(), ra.OTLPEndpoint)
			if err != nil {
				return err
			}
		}

		return nil
	}
}

func teardown(ra *RootArgs) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if ra.shutdownTracing == nil {
			return nil
		}

		err := ra.shutdownTracing(context.WithoutCancel(cmd.Context()))
		if err != nil {
			return fmt.Errorf("shutdown tracing: %w", err)
		}

		return nil
	}
}

// Workspace loads the workspace configuration for ra.Dir.
func (ra *RootArgs) Workspace() (*config.Workspace, error) {
	ws, err := config.LoadWorkspace(ra.Dir, ra.ConfigPath, config.WithColor(isTerminal(os.Stderr)))
	if err != nil {
		return nil, err //nolint:wrapcheck // Already annotated.
	}

	return ws, nil
}

// env is everything a command needs to work on a workspace.
type env struct {
	ws        *config.Workspace
	pool      *pool.Pool
	modes     *mode.Manager
	templates *render.TemplateSource
	closer    io.Closer
}

// open loads the workspace and its rule pool.
func (ra *RootArgs) open(ctx context.Context) (*env, error) {
	ws, err := ra.Workspace()
	if err != nil {
		return nil, err
	}

	pc := ws.Config.Pool

	repo, err := pool.NewRepository(pool.Driver(pc.Driver), pc.Path, pc.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("open rule pool: %w", err)
	}

	p, err := pool.Open(ctx, repo)
	if err != nil {
		return nil, err //nolint:wrapcheck // Already annotated.
	}

	e := &env{
		ws:        ws,
		pool:      p,
		modes:     mode.NewManager(p),
		templates: render.NewTemplateSource(ws.Config.Templates.Dir),
	}
	if c, ok := repo.(io.Closer); ok {
		e.closer = c
	}

	slog.Debug("opened rule pool",
		slog.String("driver", pc.Driver),
		slog.String("path", pc.Path),
		slog.Int("rules", p.Len()),
	)

	return e, nil
}

func (e *env) Close() {
	if e.closer == nil {
		return
	}

	err := e.closer.Close()
	if err != nil {
		slog.Error("close rule pool", slog.Any("err", err))
	}
}

// loadOptions returns the mode load options configured for the workspace.
func (e *env) loadOptions() mode.LoadOptions {
	return mode.LoadOptions{
		ValidateSchema: *e.ws.Config.Modes.ValidateSchema,
		Color:          isTerminal(os.Stderr),
	}
}

// renderContext returns the render options configured for the workspace.
func (e *env) renderContext() render.Context {
	oc := e.ws.Config.Output

	return render.Context{
		Format:          render.Format(oc.Format),
		WrapWidth:       oc.WrapWidth,
		GroupByCategory: *oc.GroupByCategory,
		SortByUrgency:   *oc.SortByUrgency,
		IncludeMetadata: *oc.IncludeMetadata,
	}
}

// poolFile returns the pool file watched for changes, if any.
func (e *env) poolFile() string {
	if pool.Driver(e.ws.Config.Pool.Driver) == pool.DriverMemory {
		return ""
	}

	return e.ws.Config.Pool.Path
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // File descriptors fit in int.
}

// writerIsTerminal reports whether w is a terminal.
func writerIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)

	return ok && isTerminal(f)
}
