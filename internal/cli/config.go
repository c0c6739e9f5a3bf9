package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/macropower/rulepool/api/v1beta1/configs"
	"github.com/macropower/rulepool/pkg/config"
)

func NewConfigCmd(ra *RootArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the workspace configuration",
	}

	cmd.AddCommand(
		newConfigInitCmd(ra),
		newConfigShowCmd(ra),
		newConfigPathCmd(ra),
	)

	return cmd
}

func newConfigInitCmd(ra *RootArgs) *cobra.Command {
	var (
		force bool
		user  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := ra.ConfigPath

			switch {
			case user:
				path = configs.GetPath()
			case path == "":
				path = filepath.Join(ra.Dir, config.WorkspaceFileNames[0])
			}

			err := configs.WriteDefault(path, force)
			if err != nil {
				return err //nolint:wrapcheck // Already annotated.
			}

			slog.Info("wrote configuration", slog.String("path", path))

			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing file")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user-level configuration instead")

	return cmd
}

func newConfigShowCmd(ra *RootArgs) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective workspace configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := ra.Workspace()
			if err != nil {
				return err
			}

			return printData(cmd, ws.Config, output)
		},
	}

	addOutputFlag(cmd, &output)

	return cmd
}

func newConfigPathCmd(ra *RootArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the path of the loaded configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := ra.Workspace()
			if err != nil {
				return err
			}

			if ws.Path == "" {
				return fmt.Errorf("no configuration file found for %s, defaults are in use", ws.Root)
			}

			mustN(fmt.Fprintln(cmd.OutOrStdout(), ws.Path))

			return nil
		},
	}
}
