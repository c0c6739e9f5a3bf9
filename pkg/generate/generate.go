package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/rulepool/pkg/log"
	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/render"
	"github.com/macropower/rulepool/pkg/selection"
)

var (
	// ErrRequiredDocument is returned when a required document cannot be
	// rendered or written.
	ErrRequiredDocument = errors.New("required document failed")
	// ErrUnknownSource is returned for a mode source that is neither a path
	// nor a [*mode.Configuration].
	ErrUnknownSource = errors.New("unknown mode source")
)

const (
	unknownMode              = "unknown"
	enterpriseTaskManagement = "enterprise"
)

// RuleStore is the rule source of a [Generator]. Load is called before
// regenerating when a watched pool file changes.
type RuleStore interface {
	selection.RuleSource
	Load(ctx context.Context) error
}

// Generator renders mode configurations into output directories.
type Generator struct {
	tracer    trace.Tracer
	store     RuleStore
	modes     *mode.Manager
	engine    *render.Engine
	templates *render.TemplateSource
	now       func() time.Time
	// poolFile is watched alongside the mode file.
	poolFile  string
	listeners []chan<- Event
	rc        render.Context
	loadOpts  mode.LoadOptions
	mu        sync.Mutex
	dryRun    bool
}

// Opt configures a [Generator].
type Opt func(*Generator)

// WithClock sets the time source for generation timestamps.
func WithClock(now func() time.Time) Opt {
	return func(g *Generator) {
		g.now = now
	}
}

// WithDryRun disables writes. Results carry diffs against the existing
// files instead.
func WithDryRun(dryRun bool) Opt {
	return func(g *Generator) {
		g.dryRun = dryRun
	}
}

// WithRenderContext sets the render options. GeneratedAt is overwritten on
// each run.
func WithRenderContext(rc render.Context) Opt {
	return func(g *Generator) {
		g.rc = rc
	}
}

// WithTemplates sets the document template source.
func WithTemplates(ts *render.TemplateSource) Opt {
	return func(g *Generator) {
		g.templates = ts
	}
}

// WithModeManager sets the manager used to load mode files.
func WithModeManager(m *mode.Manager) Opt {
	return func(g *Generator) {
		g.modes = m
	}
}

// WithLoadOptions sets the options used to load mode files.
func WithLoadOptions(opts mode.LoadOptions) Opt {
	return func(g *Generator) {
		g.loadOpts = opts
	}
}

// WithPoolFile sets the rule pool file watched by [Generator.Watch].
func WithPoolFile(path string) Opt {
	return func(g *Generator) {
		g.poolFile = path
	}
}

// New creates a [Generator] resolving rules from store.
func New(store RuleStore, opts ...Opt) *Generator {
	g := &Generator{
		tracer:    otel.Tracer("generator"),
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		rc:        render.DefaultContext(),
		templates: render.NewTemplateSource(""),
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.modes == nil {
		g.modes = mode.NewManager(store)
	}

	g.engine = render.New(store, render.WithTemplates(g.templates))

	return g
}

// Generate loads the mode configuration src, a file path or a
// [*mode.Configuration], and writes its documents, scripts and
// [MetadataFile] to outDir.
//
// The copilot-instructions and project-rules documents are required: if
// either fails, generation stops and the error wraps [ErrRequiredDocument].
// Other documents are skipped with a warning. The returned [Result] is
// never nil.
func (g *Generator) Generate(ctx context.Context, src any, outDir string) (*Result, error) {
	start := time.Now()

	ctx, span := g.tracer.Start(ctx, "generate", trace.WithAttributes(
		attribute.String("output", outDir),
		attribute.Bool("dry_run", g.dryRun),
	))
	defer span.End()

	logger := log.WithContext(ctx)

	res := newResult(g.dryRun)

	name, err := g.generate(ctx, src, outDir, res)
	res.Duration = time.Since(start)

	if err != nil {
		span.RecordError(err)

		res.Message = fmt.Sprintf("failed to generate mode %s: %v", name, err)
		logger.ErrorContext(ctx, "generation failed",
			slog.String("mode", res.Mode),
			slog.Any("err", err),
		)

		return res, err
	}

	res.Success = true
	res.Message = fmt.Sprintf("generated %d files for %s", len(res.GeneratedFiles), name)

	logger.InfoContext(ctx, "generated mode",
		slog.String("mode", res.Mode),
		slog.Int("files", len(res.GeneratedFiles)),
		slog.Int("rules", res.RulesUsed),
		slog.Duration("duration", res.Duration),
	)

	return res, nil
}

// generate fills res and returns the mode name for messages.
func (g *Generator) generate(ctx context.Context, src any, outDir string, res *Result) (string, error) {
	logger := log.WithContext(ctx)

	cfg, baseDir, err := g.load(ctx, src)
	if err != nil {
		return unknownMode, err
	}

	res.Mode = cfg.ID

	generatedAt := g.now()
	rc := g.rc
	rc.GeneratedAt = generatedAt

	resolution := g.resolve(ctx, cfg)
	res.RulesUsed = resolution.TotalRules

	for _, f := range resolution.Failed {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %s", f.RuleSet, f.Reason))
	}

	out, err := openOutputDir(outDir, g.dryRun)
	if err != nil {
		return cfg.Name, err
	}
	defer func() {
		err := out.Close()
		if err != nil {
			logger.WarnContext(ctx, "close output directory", slog.Any("err", err))
		}
	}()

	for _, d := range documents(cfg) {
		file, err := g.writeDocument(ctx, out, cfg, d, resolution.ResolvedRules, rc)
		if err != nil && d.required {
			return cfg.Name, fmt.Errorf("%w: %s: %w", ErrRequiredDocument, d.name, err)
		}
		if err != nil {
			logger.WarnContext(ctx, "skip optional document",
				slog.String("document", d.name),
				slog.Any("err", err),
			)
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", d.name, err))

			continue
		}

		res.GeneratedFiles = append(res.GeneratedFiles, file)
	}

	err = g.writeScripts(ctx, out, cfg, baseDir, generatedAt, res)
	if err != nil {
		return cfg.Name, err
	}

	md, err := newMetadata(cfg, generatedAt, res.RulesUsed, res.GeneratedFiles).encode()
	if err != nil {
		return cfg.Name, err
	}

	err = out.WriteFile(MetadataFile, md, fileMode)
	if err != nil {
		return cfg.Name, err
	}

	res.GeneratedFiles = append(res.GeneratedFiles, MetadataFile)

	if g.dryRun {
		res.Diffs = out.diffs
	}

	return cfg.Name, nil
}

// load returns a private copy of the configuration and the directory that
// relative script paths are resolved against.
func (g *Generator) load(ctx context.Context, src any) (*mode.Configuration, string, error) {
	ctx, span := g.tracer.Start(ctx, "load")
	defer span.End()

	switch s := src.(type) {
	case string:
		span.SetAttributes(attribute.String("path", s))

		cfg, err := g.modes.Load(ctx, s, g.loadOpts)
		if err != nil {
			return nil, "", err //nolint:wrapcheck // Already carries the path.
		}

		return cfg.Clone(), filepath.Dir(s), nil

	case *mode.Configuration:
		if s == nil {
			break
		}

		cfg := s.Clone()
		mode.Adapt(cfg)
		cfg.EnsureDefaults()

		err := g.modes.Validate(cfg).Err()
		if err != nil {
			return nil, "", fmt.Errorf("mode configuration %q: %w", cfg.ID, err)
		}

		wd, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("get current working directory: %w", err)
		}

		return cfg, wd, nil
	}

	return nil, "", fmt.Errorf("%w: %T", ErrUnknownSource, src)
}

func (g *Generator) resolve(ctx context.Context, cfg *mode.Configuration) *mode.Resolution {
	_, span := g.tracer.Start(ctx, "resolve")
	defer span.End()

	res := mode.ResolveReferences(cfg, g.store)
	span.SetAttributes(attribute.Int("rules", res.TotalRules))

	return res
}

// document is one output of a generation run.
type document struct {
	rs       *mode.RuleSet
	name     string
	required bool
}

func documents(cfg *mode.Configuration) []document {
	docs := []document{
		{name: string(mode.OutputCopilotInstructions), rs: cfg.Rules.CopilotInstructions, required: true},
		{name: string(mode.OutputProjectRules), rs: cfg.Rules.ProjectRules, required: true},
	}

	if cfg.Structure.TaskManagementLevel == enterpriseTaskManagement {
		docs = append(docs, document{name: string(mode.OutputTaskManagement)})
	}

	for _, name := range slices.Sorted(maps.Keys(cfg.Rules.CustomFiles)) {
		if rs := cfg.Rules.CustomFiles[name]; rs != nil {
			docs = append(docs, document{name: name, rs: rs})
		}
	}

	return docs
}

// writeDocument renders and writes d. Documents without a rule set use all
// rules the configuration resolves to.
func (g *Generator) writeDocument(
	ctx context.Context,
	out *outputDir,
	cfg *mode.Configuration,
	d document,
	all []string,
	rc render.Context,
) (string, error) {
	_, span := g.tracer.Start(ctx, "render", trace.WithAttributes(
		attribute.String("document", d.name),
		attribute.Bool("required", d.required),
	))
	defer span.End()

	doc, err := g.renderDocument(cfg, d, all, rc)
	if err != nil {
		return "", err
	}

	file := doc.FileName(rc.Format)

	err = out.WriteFile(file, []byte(doc.Content), fileMode)
	if err != nil {
		return "", err
	}

	span.SetAttributes(attribute.Int("rules", len(doc.RuleIDs)))

	return file, nil
}
