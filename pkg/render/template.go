package render

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/macropower/rulepool/pkg/mode"
)

// TemplateExt is the file extension of document templates.
const TemplateExt = ".hbs"

var (
	//go:embed templates
	builtinFS embed.FS

	placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)
)

// TemplateSource loads document templates by name from a directory,
// falling back to the built-in templates. Loaded templates are cached by
// name until [TemplateSource.ClearCache].
type TemplateSource struct {
	cache map[string]string
	dir   string
	mu    sync.Mutex
}

// NewTemplateSource creates a [TemplateSource] reading <dir>/<name>.hbs. An
// empty dir uses only the built-in templates.
func NewTemplateSource(dir string) *TemplateSource {
	return &TemplateSource{
		dir:   dir,
		cache: map[string]string{},
	}
}

// Dir returns the template directory.
func (s *TemplateSource) Dir() string {
	return s.dir
}

// Load returns the template called name. A missing file falls back to the
// built-in template of the same name, then to a minimal default. Other read
// errors are returned.
func (s *TemplateSource) Load(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tpl, ok := s.cache[name]; ok {
		return tpl, nil
	}

	if strings.ContainsAny(name, `/\`) || name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrTemplateName, name)
	}

	tpl, err := s.read(name)
	if err != nil {
		return "", err
	}

	s.cache[name] = tpl

	return tpl, nil
}

func (s *TemplateSource) read(name string) (string, error) {
	if s.dir != "" {
		path := filepath.Join(s.dir, name+TemplateExt)

		b, err := os.ReadFile(path)
		if err == nil {
			return string(b), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read template %s: %w", path, err)
		}
	}

	return builtinTemplate(name), nil
}

// ClearCache drops every cached template.
func (s *TemplateSource) ClearCache() {
	s.mu.Lock()
	clear(s.cache)
	s.mu.Unlock()
}

// builtinTemplate returns the built-in template called name, or the minimal
// default template.
func builtinTemplate(name string) string {
	b, err := builtinFS.ReadFile("templates/" + name + TemplateExt)
	if err != nil {
		b, err = builtinFS.ReadFile("templates/default" + TemplateExt)
		if err != nil {
			panic(fmt.Sprintf("read default template: %v", err))
		}
	}

	return string(b)
}

// modeContent returns the boilerplate block for the mode type.
func modeContent(t mode.Type) string {
	var name string

	switch t {
	case mode.TypeEnterprise:
		name = "enterprise"
	case mode.TypeSimplified:
		name = "simplified"
	default:
		return ""
	}

	b, err := builtinFS.ReadFile("templates/" + name + ".md")
	if err != nil {
		panic(fmt.Sprintf("read %s mode content: %v", name, err))
	}

	return strings.TrimRight(string(b), "\n")
}

// Substitute replaces every {{key}} in tpl with lookup(key). Placeholders
// for which lookup reports false are left in place. Substituted values are
// not expanded again.
func Substitute(tpl string, lookup func(key string) (string, bool)) string {
	return placeholderRe.ReplaceAllStringFunc(tpl, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := lookup(key); ok {
			return v
		}

		return m
	})
}

// Values is a placeholder lookup table.
type Values map[string]string

// Lookup implements the lookup function of [Substitute].
func (v Values) Lookup(key string) (string, bool) {
	s, ok := v[key]
	return s, ok
}
