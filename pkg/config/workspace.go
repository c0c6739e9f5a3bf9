package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/macropower/rulepool/api"
	"github.com/macropower/rulepool/api/v1beta1/configs"
)

// WorkspaceFileNames are looked up, in order, in each directory from the
// working directory to the filesystem root.
var WorkspaceFileNames = []string{
	"rulepool.yaml",
	".rulepool.yaml",
}

// Workspace is a loaded workspace configuration.
type Workspace struct {
	Config *configs.Config
	// Path is the configuration file, or empty when defaults are in use.
	Path string
	// Root anchors relative paths in Config.
	Root string
}

// FindWorkspaceFile returns the nearest workspace file above dir, then the
// user-level config file. It returns an empty string when neither exists.
func FindWorkspaceFile(dir string) (string, error) {
	path, err := api.FindConfigFile(dir, WorkspaceFileNames...)
	if err != nil {
		return "", fmt.Errorf("find workspace config: %w", err)
	}
	if path != "" {
		return path, nil
	}

	userPath := configs.GetPath()

	_, err = os.Stat(userPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("stat %s: %w", userPath, err)
	}

	return userPath, nil
}

// LoadWorkspace loads the configuration for dir. An explicit path skips
// discovery. When no file is found, defaults rooted at dir are returned.
func LoadWorkspace(dir, path string, opts ...LoaderOpt) (*Workspace, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("get absolute path: %w", err)
	}

	if path == "" {
		path, err = FindWorkspaceFile(absDir)
		if err != nil {
			return nil, err
		}
	}

	if path == "" {
		slog.Debug("no workspace config found, using defaults", slog.String("dir", absDir))

		cfg := configs.New()
		cfg.ResolvePaths(absDir)

		return &Workspace{Config: cfg, Root: absDir}, nil
	}

	cl, err := NewLoaderFromFile(path, configs.New, configs.DefaultValidator, opts...)
	if err != nil {
		return nil, fmt.Errorf("read workspace config: %w", err)
	}

	err = cl.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate workspace config: %w", err)
	}

	cfg, err := cl.Load()
	if err != nil {
		return nil, fmt.Errorf("load workspace config: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	root := filepath.Dir(path)
	// The user-level file has no project of its own.
	if path == configs.GetPath() {
		root = absDir
	}

	cfg.ResolvePaths(root)

	slog.Debug("loaded workspace config",
		slog.String("path", path),
		slog.String("root", root),
	)

	return &Workspace{Config: cfg, Path: path, Root: root}, nil
}
