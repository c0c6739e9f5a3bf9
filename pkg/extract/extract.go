package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/rulepool/pkg/log"
	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/render"
	"github.com/macropower/rulepool/pkg/rule"
)

const (
	maxTitleLength       = 100
	maxDescriptionLength = 200
)

// Extractor builds new rules from legacy documents using a pattern
// library, falling back to heading keywords for sections that read like
// guidance.
type Extractor struct {
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
	patterns []Pattern
	exclude  []string
}

// Opt configures an [Extractor].
type Opt func(*Extractor)

// WithPatterns replaces the pattern library.
func WithPatterns(patterns ...Pattern) Opt {
	return func(e *Extractor) {
		e.patterns = patterns
	}
}

// WithClock sets the time source for rule timestamps.
func WithClock(now func() time.Time) Opt {
	return func(e *Extractor) {
		e.now = now
	}
}

// WithIDs sets the rule id generator.
func WithIDs(newID func() string) Opt {
	return func(e *Extractor) {
		e.newID = newID
	}
}

// WithExclude skips discovered files matching any of the doublestar globs.
func WithExclude(globs ...string) Opt {
	return func(e *Extractor) {
		e.exclude = globs
	}
}

// NewExtractor creates an [Extractor] using [DefaultPatterns].
func NewExtractor(opts ...Opt) *Extractor {
	e := &Extractor{
		tracer:   otel.Tracer("extract"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		patterns: DefaultPatterns(),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Extract returns the rules found in doc. modes are recorded as the source
// modes of each rule.
func (e *Extractor) Extract(doc *Document, modes ...string) []*rule.Rule {
	if doc.Kind == KindScript {
		return e.extractScript(doc, modes)
	}

	sections := Segment(doc.Body)
	if len(sections) == 0 && doc.Title != "" && strings.TrimSpace(doc.Body) != "" {
		sections = []Section{{
			Title:   doc.Title,
			Content: doc.Body,
			Type:    ClassifySection(doc.Title),
		}}
	}

	var rules []*rule.Rule

	for _, s := range sections {
		category, projectTypes, ok := e.classify(s)
		if !ok {
			continue
		}

		content := CleanContent(s.Content)
		if content == "" {
			continue
		}

		tags := InferTags(s.Title, s.Content)

		appliesTo := InferProjectTypes(content, tags)
		if slices.Equal(appliesTo, []rule.ProjectType{rule.ProjectTypeAll}) && len(projectTypes) > 0 {
			appliesTo = slices.Clone(projectTypes)
		}

		rules = append(rules, e.newRule(doc, ruleSource{
			section:   s.Title,
			content:   content,
			category:  category,
			urgency:   InferUrgency(s.Content),
			tags:      tags,
			appliesTo: appliesTo,
			modes:     modes,
		}))
	}

	return rules
}

// classify returns the category of the first matching pattern. Sections
// that match no pattern but look like rules are categorized by heading.
func (e *Extractor) classify(s Section) (rule.Category, []rule.ProjectType, bool) {
	for _, p := range e.patterns {
		if p.Match(s) {
			return p.Category, p.ProjectTypes, true
		}
	}

	if LooksLikeRule(s.Content) {
		return Categorize(s.Title), nil, true
	}

	return "", nil, false
}

func (e *Extractor) extractScript(doc *Document, modes []string) []*rule.Rule {
	tags := append([]string{"automation", "script"}, Tools(doc.Body)...)

	var rules []*rule.Rule

	for _, block := range CommentBlocks(doc.Body) {
		if !LooksLikeRule(block) {
			continue
		}

		content := CleanContent(block)

		rules = append(rules, e.newRule(doc, ruleSource{
			section:   ScriptSection,
			content:   content,
			category:  rule.CategoryTaskManagement,
			urgency:   InferUrgency(block),
			tags:      slices.Clone(tags),
			appliesTo: []rule.ProjectType{rule.ProjectTypeAll},
			modes:     modes,
		}))
	}

	return rules
}

type ruleSource struct {
	section   string
	content   string
	category  rule.Category
	tags      []string
	appliesTo []rule.ProjectType
	modes     []string
	urgency   rule.Urgency
}

func (e *Extractor) newRule(doc *Document, src ruleSource) *rule.Rule {
	if c, ok := doc.category(); ok {
		src.category = c
	}
	if u, ok := doc.urgency(); ok {
		src.urgency = u
	}

	for _, t := range doc.Hints.Tags {
		if !slices.Contains(src.tags, t) {
			src.tags = append(src.tags, t)
		}
	}

	return rule.New(
		rule.WithID(e.newID()),
		rule.WithTitle(ruleTitle(src.section, src.category)),
		rule.WithDescription(ruleDescription(src.content, doc.Path, src.section)),
		rule.WithContent(src.content),
		rule.WithCategory(src.category),
		rule.WithUrgency(src.urgency),
		rule.WithTags(src.tags...),
		rule.WithAppliesTo(src.appliesTo...),
		rule.WithAuthor(mode.MigrationAuthor),
		rule.WithCustom(false),
		rule.WithSource(doc.Path, src.section, src.modes...),
		rule.WithTimestamps(e.now()),
	)
}

func ruleTitle(section string, category rule.Category) string {
	if section != "" && len(section) < maxTitleLength {
		return section
	}

	return render.CategoryName(category) + " Rule"
}

func ruleDescription(content, file, section string) string {
	first, _, _ := strings.Cut(content, "\n\n")
	if first != "" && len(first) < maxDescriptionLength {
		return strings.TrimSpace(strings.ReplaceAll(first, "\n", " "))
	}

	return fmt.Sprintf("Rule extracted from %s (%s)", file, section)
}

// Result is the outcome of [Extractor.ExtractDir].
type Result struct {
	Rules []*rule.Rule `json:"rules"`
	// Files are the discovered files, relative to the root.
	Files    []string `json:"files"`
	Warnings []string `json:"warnings,omitempty"`
}

// ExtractDir discovers documents under root with [Discover] and extracts
// rules from each. The first directory of a file's relative path is its
// source mode. Unreadable files are reported as warnings.
func (e *Extractor) ExtractDir(ctx context.Context, root string, globs ...string) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "extract", trace.WithAttributes(
		attribute.String("root", root),
	))
	defer span.End()

	logger := log.WithContext(ctx)

	files, err := Discover(root, globs...)
	if err != nil {
		return nil, err
	}

	files = slices.DeleteFunc(files, e.excluded)

	res := &Result{Files: files, Rules: []*rule.Rule{}}

	for _, f := range files {
		doc, err := ReadDocument(filepath.Join(root, filepath.FromSlash(f)))
		if err != nil {
			logger.WarnContext(ctx, "skip source file", slog.String("file", f), slog.Any("err", err))
			res.Warnings = append(res.Warnings, err.Error())

			continue
		}

		doc.Path = f

		var modes []string
		if dir, _, ok := strings.Cut(f, "/"); ok {
			modes = []string{dir}
		}

		rules := e.Extract(doc, modes...)
		res.Rules = append(res.Rules, rules...)

		logger.DebugContext(ctx, "extracted rules", slog.String("file", f), slog.Int("rules", len(rules)))
	}

	span.SetAttributes(attribute.Int("rules", len(res.Rules)))

	logger.InfoContext(ctx, "extracted rules from directory",
		slog.String("root", root),
		slog.Int("files", len(files)),
		slog.Int("rules", len(res.Rules)),
	)

	return res, nil
}

func (e *Extractor) excluded(file string) bool {
	return slices.ContainsFunc(e.exclude, func(glob string) bool {
		ok, err := doublestar.Match(glob, file)

		return err == nil && ok
	})
}

// RuleCreator stores new rules, e.g. a [*pool.Pool].
type RuleCreator interface {
	Create(ctx context.Context, r *rule.Rule) (*rule.Rule, error)
}

// Store creates each rule in dst and returns the ids of the stored rules.
// Rules that fail are skipped; their errors are joined.
func Store(ctx context.Context, dst RuleCreator, rules []*rule.Rule) ([]string, error) {
	var (
		ids  []string
		errs []error
	)

	for _, r := range rules {
		stored, err := dst.Create(ctx, r)
		if err != nil {
			errs = append(errs, fmt.Errorf("store %q from %s: %w", r.Title, path.Base(r.SourceFile), err))

			continue
		}

		ids = append(ids, stored.ID)
	}

	return ids, errors.Join(errs...)
}
