package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/macropower/rulepool/pkg/mcp"
)

type ServeMCPArgs struct {
	*RootArgs

	Addr   string
	Watch  string
	OutDir string
}

func (sa *ServeMCPArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sa.Addr, "addr", "", "Serve streamable HTTP on this address, defaults to mcp.addr of the workspace (stdio when empty)")
	cmd.Flags().StringVar(&sa.Watch, "watch", "", "Regenerate this mode on change and report progress to clients")
	cmd.Flags().StringVar(&sa.OutDir, "out", "", "Output directory for --watch, defaults to output.dir of the workspace")
}

func NewServeMCPCmd(rootArgs *RootArgs) *cobra.Command {
	sa := &ServeMCPArgs{RootArgs: rootArgs}

	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve the rule pool and mode tools over MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := rootArgs.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			addr := sa.Addr
			if !cmd.Flags().Changed("addr") {
				addr = e.ws.Config.MCP.Addr
			}

			opts := []mcp.Opt{
				mcp.WithModeManager(e.modes),
				mcp.WithTemplates(e.templates),
				mcp.WithRenderContext(e.renderContext()),
			}

			var (
				g      = e.generator(false)
				outDir = sa.OutDir
			)

			if sa.Watch != "" {
				if outDir == "" {
					outDir = e.ws.Config.Output.Dir
				}

				opts = append(opts, mcp.WithWatcher(g))
			}

			s, err := mcp.NewServer(addr, e.pool, opts...)
			if err != nil {
				return fmt.Errorf("create MCP server: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var (
				wg       sync.WaitGroup
				watchErr error
			)

			if sa.Watch != "" {
				wg.Go(func() {
					watchErr = g.Watch(ctx, sa.Watch, outDir)
					if watchErr != nil {
						slog.Error("watch mode", slog.String("mode", sa.Watch), slog.Any("err", watchErr))
						cancel()
					}
				})
			}

			serveErr := s.Serve(ctx)

			cancel()
			wg.Wait()
			s.Close()

			if watchErr != nil {
				watchErr = fmt.Errorf("watch: %w", watchErr)
			}

			return errors.Join(serveErr, watchErr) //nolint:wrapcheck // Both are annotated.
		},
	}

	sa.AddFlags(cmd)

	return cmd
}
