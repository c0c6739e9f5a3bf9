package generate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aymanbagabas/go-udiff"
)

const (
	fileMode       fs.FileMode = 0o644
	executableMode fs.FileMode = 0o755
	dirMode        fs.FileMode = 0o755
)

// outputDir writes generated files below an [os.Root], so that configured
// target paths cannot escape the output directory. In dry runs nothing is
// written; each write is recorded as a unified diff against the current
// file instead.
type outputDir struct {
	// root is nil in dry runs when the directory does not exist yet.
	root   *os.Root
	diffs  map[string]string
	path   string
	dryRun bool
}

func openOutputDir(path string, dryRun bool) (*outputDir, error) {
	o := &outputDir{
		path:   path,
		dryRun: dryRun,
		diffs:  map[string]string{},
	}

	if !dryRun {
		err := os.MkdirAll(path, dirMode)
		if err != nil {
			return nil, fmt.Errorf("create output directory %s: %w", path, err)
		}
	}

	root, err := os.OpenRoot(path)
	switch {
	case dryRun && errors.Is(err, fs.ErrNotExist):
		return o, nil
	case err != nil:
		return nil, fmt.Errorf("open output directory %s: %w", path, err)
	}

	o.root = root

	return o, nil
}

// Close closes the underlying root.
func (o *outputDir) Close() error {
	if o.root == nil {
		return nil
	}

	return o.root.Close() //nolint:wrapcheck // Return the original error.
}

// ReadFile returns the current content of name, or nil when it does not
// exist.
func (o *outputDir) ReadFile(name string) ([]byte, error) {
	if o.root == nil {
		return nil, nil
	}

	b, err := o.root.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Join(o.path, name), err)
	}

	return b, nil
}

// WriteFile writes data to name, creating parent directories. The
// permissions are applied to existing files as well.
func (o *outputDir) WriteFile(name string, data []byte, perm fs.FileMode) error {
	name = filepath.Clean(name)

	if o.dryRun {
		return o.diff(name, data)
	}

	if dir := filepath.Dir(name); dir != "." {
		err := o.root.MkdirAll(dir, dirMode)
		if err != nil {
			return fmt.Errorf("create directory for %s: %w", filepath.Join(o.path, name), err)
		}
	}

	err := o.root.WriteFile(name, data, perm)
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Join(o.path, name), err)
	}

	err = o.root.Chmod(name, perm)
	if err != nil {
		return fmt.Errorf("chmod %s: %w", filepath.Join(o.path, name), err)
	}

	return nil
}

func (o *outputDir) diff(name string, data []byte) error {
	if !filepath.IsLocal(name) {
		return fmt.Errorf("write %s: path escapes output directory", name)
	}

	current, err := o.ReadFile(name)
	if err != nil {
		return err
	}

	d := udiff.Unified("a/"+filepath.ToSlash(name), "b/"+filepath.ToSlash(name), string(current), string(data))
	if d != "" {
		o.diffs[name] = d
	}

	return nil
}
