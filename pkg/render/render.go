package render

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/muesli/reflow/wordwrap"

	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/rule"
	"github.com/macropower/rulepool/pkg/selection"
)

// Format is the output format of rendered documents.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"

	DefaultWrapWidth = 100
)

var (
	ErrUnknownFormat = errors.New("unknown render format")
	ErrTemplateName  = errors.New("invalid template name")

	headingRe = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
)

// Context controls rendering.
type Context struct {
	// GeneratedAt is substituted for {{metadata.generatedAt}}.
	GeneratedAt time.Time
	Format      Format
	// WrapWidth is the text format line width.
	WrapWidth int
	// GroupByCategory and SortByUrgency apply when a rule set does not
	// configure its own organization.
	GroupByCategory bool
	SortByUrgency   bool
	IncludeMetadata bool
}

// DefaultContext returns the markdown context used when none is configured.
func DefaultContext() Context {
	return Context{
		Format:          FormatMarkdown,
		WrapWidth:       DefaultWrapWidth,
		GroupByCategory: true,
		SortByUrgency:   true,
		IncludeMetadata: true,
	}
}

// Validate checks the format and wrap width.
func (c Context) Validate() error {
	switch c.Format {
	case FormatMarkdown, FormatText, "":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, c.Format)
	}

	if c.WrapWidth < 0 {
		return fmt.Errorf("wrap width must not be negative, got %d", c.WrapWidth)
	}

	return nil
}

// Engine renders resolved rules into documents.
type Engine struct {
	src       selection.RuleSource
	templates *TemplateSource
}

// Opt configures an [Engine].
type Opt func(*Engine)

// WithTemplates sets the template source. The default uses only the
// built-in templates.
func WithTemplates(ts *TemplateSource) Opt {
	return func(e *Engine) {
		e.templates = ts
	}
}

// New creates an [Engine] looking rules up in src.
func New(src selection.RuleSource, opts ...Opt) *Engine {
	e := &Engine{
		src:       src,
		templates: NewTemplateSource(""),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Templates returns the engine's template source.
func (e *Engine) Templates() *TemplateSource {
	return e.templates
}

// lookup returns the rules for ids with the overrides of cfg applied.
// Unknown ids are skipped.
func (e *Engine) lookup(ids []string, cfg *mode.Configuration) []*rule.Rule {
	rules := make([]*rule.Rule, 0, len(ids))
	for _, id := range ids {
		if r, ok := e.src.Get(id); ok {
			rules = append(rules, r)
		}
	}

	if cfg == nil {
		return rules
	}

	return ApplyOverrides(rules, cfg.Overrides)
}

// Rules renders ids as a block of rule sections, grouped by category and
// sorted by urgency as the context requests. cfg supplies overrides and may
// be nil.
func (e *Engine) Rules(ids []string, cfg *mode.Configuration, rc Context) (string, error) {
	l := &layout{
		includeHeaders:  true,
		includeMetadata: rc.IncludeMetadata,
	}
	if rc.GroupByCategory {
		l.groupBy = mode.GroupByCategory
	}
	if rc.SortByUrgency {
		l.orderBy = mode.OrderByUrgency
	}

	out, err := renderRules(e.lookup(ids, cfg), l)
	if err != nil {
		return "", err
	}

	return format(out, rc), nil
}

// Document is a rendered output document.
type Document struct {
	// Name is the output name, e.g. "copilot-instructions".
	Name     string
	Template string
	Content  string
	// RuleIDs are the rendered rules in document order.
	RuleIDs []string
}

// FileName returns the document's file name in the given format.
func (d *Document) FileName(f Format) string {
	if f == FormatText {
		return d.Name + ".txt"
	}

	return d.Name + ".md"
}

// Document renders the named output of cfg. ids are the resolved rules of
// rs, which may be nil to use the context's organization. The template is
// chosen by [mode.Configuration.TemplateName].
func (e *Engine) Document(name string, cfg *mode.Configuration, rs *mode.RuleSet, ids []string, rc Context) (*Document, error) {
	tplName := cfg.TemplateName(name)

	tpl, err := e.templates.Load(tplName)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}

	rules := e.lookup(ids, cfg)
	l := ruleSetLayout(rs, rc)

	block, err := renderRules(rules, l)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}

	values := documentValues(cfg, rs, rc, len(rules))
	values["rules"] = block

	var overrides *mode.TemplateOverrides
	if rs != nil {
		overrides = rs.TemplateOverrides

		err = insertCustomContent(values, rs.CustomContent)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", name, err)
		}
	}

	content := Substitute(tpl, values.Lookup)

	if overrides != nil {
		if overrides.Header != "" {
			content = Substitute(overrides.Header, values.Lookup) + "\n\n" + content
		}
		if overrides.Footer != "" {
			content = strings.TrimRight(content, "\n") + "\n\n" + Substitute(overrides.Footer, values.Lookup)
		}
	}

	ordered := slices.Clone(rules)
	Order(ordered, l.orderBy, l.customOrder)

	groups, err := GroupRules(ordered, l.groupBy, l.customGroups)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}

	doc := &Document{
		Name:     name,
		Template: tplName,
		Content:  strings.TrimRight(format(content, rc), "\n") + "\n",
		RuleIDs:  make([]string, 0, len(rules)),
	}
	for _, g := range groups {
		for _, r := range g.Rules {
			doc.RuleIDs = append(doc.RuleIDs, r.ID)
		}
	}

	return doc, nil
}

func ruleSetLayout(rs *mode.RuleSet, rc Context) *layout {
	l := &layout{
		includeHeaders:  true,
		includeMetadata: rc.IncludeMetadata,
	}
	if rc.GroupByCategory {
		l.groupBy = mode.GroupByCategory
	}
	if rc.SortByUrgency {
		l.orderBy = mode.OrderByUrgency
	}

	if rs == nil {
		return l
	}

	org := rs.Organization
	if org.GroupBy != "" {
		l.groupBy = org.GroupBy
		l.includeHeaders = org.IncludeHeaders
	}
	if o := org.Order(); o != "" {
		l.orderBy = o
	}

	l.customOrder = org.CustomOrder
	l.customGroups = org.CustomGroups
	l.headerTemplates = org.HeaderTemplates

	if o := rs.TemplateOverrides; o != nil {
		l.ruleTemplate = o.RuleTemplate
		l.groupHeaderTemplate = o.GroupHeaderTemplate
	}

	return l
}

// documentValues returns the document placeholders other than {{rules}}.
func documentValues(cfg *mode.Configuration, rs *mode.RuleSet, rc Context, total int) Values {
	values := Values{
		"mode.id":              cfg.ID,
		"mode.name":            cfg.Name,
		"mode.description":     cfg.Description,
		"mode.type":            string(cfg.Type),
		"metadata.generatedAt": rc.GeneratedAt.UTC().Format(time.RFC3339),
		"metadata.totalRules":  strconv.Itoa(total),
		"modeContent":          modeContent(cfg.Type),
	}

	vars := maps.Clone(cfg.Templates.Variables)
	if rs != nil && rs.TemplateOverrides != nil {
		if vars == nil {
			vars = map[string]any{}
		}

		maps.Copy(vars, rs.TemplateOverrides.Variables)
	}

	for k, v := range vars {
		values["variables."+k] = fmt.Sprint(v)
	}

	return values
}

// insertCustomContent places custom content around its target placeholder,
// "rules" unless set, in ascending order. Template content is substituted
// with the document values first.
func insertCustomContent(values Values, content []mode.CustomContent) error {
	items := slices.Clone(content)
	slices.SortStableFunc(items, func(a, b mode.CustomContent) int {
		return a.Order - b.Order
	})

	var (
		before  = map[string][]string{}
		after   = map[string][]string{}
		replace = map[string][]string{}
	)

	for _, item := range items {
		target := item.Target
		if target == "" {
			target = "rules"
		}

		text := item.Content
		if item.Type == "template" {
			text = Substitute(text, values.Lookup)
		}

		switch item.Position {
		case mode.PositionBefore:
			before[target] = append(before[target], text)
		case mode.PositionAfter:
			after[target] = append(after[target], text)
		case mode.PositionReplace:
			replace[target] = append(replace[target], text)
		default:
			return fmt.Errorf("custom content %q: unknown position %q", item.ID, item.Position)
		}
	}

	targets := slices.Sorted(maps.Keys(before))
	targets = append(targets, slices.Sorted(maps.Keys(after))...)
	targets = append(targets, slices.Sorted(maps.Keys(replace))...)

	for _, target := range slices.Compact(slices.Sorted(slices.Values(targets))) {
		body := values[target]
		if r, ok := replace[target]; ok {
			body = strings.Join(r, "\n\n")
		}

		parts := slices.Concat(before[target], []string{body}, after[target])
		parts = slices.DeleteFunc(parts, func(s string) bool { return s == "" })

		values[target] = strings.Join(parts, "\n\n")
	}

	return nil
}

// format converts markdown to the context's format.
func format(s string, rc Context) string {
	if rc.Format != FormatText {
		return s
	}

	s = headingRe.ReplaceAllString(s, "")

	width := rc.WrapWidth
	if width == 0 {
		width = DefaultWrapWidth
	}

	return wordwrap.String(s, width)
}
