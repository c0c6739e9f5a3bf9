package extract

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/macropower/rulepool/pkg/rule"
	"github.com/macropower/rulepool/pkg/yaml"
)

// ErrUnsupportedSource is returned for files that are not markdown, HTML or
// shell scripts.
var ErrUnsupportedSource = errors.New("unsupported source file")

// Kind is the format a [Document] was read from.
type Kind string

const (
	KindMarkdown Kind = "markdown"
	KindHTML     Kind = "html"
	KindScript   Kind = "script"
)

// DefaultGlobs discover legacy mode documents and their automation
// scripts.
var DefaultGlobs = []string{
	"**/copilot-instructions.md",
	"**/project-rules.md",
	"**/*.{html,htm}",
	"**/automation/**/*.sh",
}

// Hints are optional frontmatter fields of a markdown document. They
// override inferred values for every rule extracted from the document.
type Hints struct {
	Title    string   `json:"title"`
	Category string   `json:"category"`
	Urgency  string   `json:"urgency"`
	Tags     []string `json:"tags"`
}

// Document is a legacy source normalized to markdown, or a shell script.
type Document struct {
	Path string
	// Title is the frontmatter or HTML title, if any.
	Title string
	Kind  Kind
	Body  string
	Hints Hints
}

// category returns the hinted category, if valid.
func (d *Document) category() (rule.Category, bool) {
	if d.Hints.Category == "" {
		return "", false
	}

	c, err := rule.ParseCategory(d.Hints.Category)

	return c, err == nil
}

// urgency returns the hinted urgency, if valid.
func (d *Document) urgency() (rule.Urgency, bool) {
	if d.Hints.Urgency == "" {
		return 0, false
	}

	u, err := rule.ParseUrgency(d.Hints.Urgency)

	return u, err == nil
}

// ReadDocument reads file according to its extension.
func ReadDocument(file string) (*Document, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}

	return ParseDocument(file, b)
}

// ParseDocument parses data as file. Markdown frontmatter is
// decoded into [Document.Hints] and HTML is converted to markdown.
func ParseDocument(file string, data []byte) (*Document, error) {
	doc := &Document{Path: file}

	switch strings.ToLower(filepath.Ext(file)) {
	case ".md", ".markdown":
		doc.Kind = KindMarkdown

		hints, body, err := splitFrontmatter(string(data))
		if err != nil {
			return nil, fmt.Errorf("parse frontmatter of %s: %w", file, err)
		}

		doc.Hints = hints
		doc.Title = hints.Title
		doc.Body = body

	case ".html", ".htm":
		doc.Kind = KindHTML

		title, body, err := convertHTML(data)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", file, err)
		}

		doc.Title = title
		doc.Body = body

	case ".sh", ".bash":
		doc.Kind = KindScript
		doc.Body = string(data)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, file)
	}

	return doc, nil
}

// splitFrontmatter separates a leading "---" delimited YAML block from the
// markdown body.
func splitFrontmatter(content string) (Hints, string, error) {
	var hints Hints

	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return hints, content, nil
	}

	rest := normalized[len("---\n"):]

	end := strings.Index(rest, "\n---")
	if end < 0 {
		return hints, content, nil
	}

	after := rest[end+len("\n---"):]
	if after != "" && after[0] != '\n' {
		return hints, content, nil
	}

	err := yaml.Unmarshal([]byte(rest[:end]), &hints)
	if err != nil {
		return hints, "", err //nolint:wrapcheck // Wrapped by caller.
	}

	return hints, strings.TrimPrefix(after, "\n"), nil
}

// Discover returns the files under root matching any of globs, relative
// to root, sorted and without duplicates. Globs use doublestar syntax and
// slash separators.
func Discover(root string, globs ...string) ([]string, error) {
	if len(globs) == 0 {
		globs = DefaultGlobs
	}

	fsys := os.DirFS(root)
	seen := map[string]bool{}

	var files []string

	for _, g := range globs {
		matches, err := doublestar.Glob(fsys, g, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", g, err)
		}

		for _, m := range matches {
			if seen[m] {
				continue
			}

			seen[m] = true

			files = append(files, m)
		}
	}

	slices.SortFunc(files, comparePaths)

	return files, nil
}

// comparePaths orders slash paths by directory, then by name.
func comparePaths(a, b string) int {
	if c := strings.Compare(path.Dir(a), path.Dir(b)); c != 0 {
		return c
	}

	return strings.Compare(path.Base(a), path.Base(b))
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
