package extract

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/rulepool/api"
	"github.com/macropower/rulepool/pkg/log"
	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/rule"
	"github.com/macropower/rulepool/pkg/selection"
)

const (
	// DefaultConfidenceThreshold is the lowest mapping confidence used to
	// synthesize a migrated configuration. Any matched rule counts.
	DefaultConfidenceThreshold = 0.0
	// MigratedDir is the conventional directory for migrated configurations.
	MigratedDir = "migrated-configs"

	maxMappedRules   = 5
	confidenceScale  = 10
	migratedMaxRules = 100
)

var (
	// MigrationTypes are the legacy mode types migrated by
	// [Migrator.MigrateAll].
	MigrationTypes = []mode.Type{mode.TypeEnterprise, mode.TypeSimplified}

	// LegacyFiles are the documents of a legacy mode directory.
	LegacyFiles = []string{"copilot-instructions.md", "project-rules.md"}
)

// Mapping relates a legacy section to the pool rules that cover it.
type Mapping struct {
	File    string `json:"originalFile"`
	Section string `json:"section"`
	Content string `json:"content"`
	// Rules are the ids of at most five best scoring rules, best first.
	Rules []string `json:"mappedRules"`
	// Confidence is min(top score/10, 1), or 0 without matches.
	Confidence float64 `json:"confidence"`
	// Used reports whether Confidence reached the migrator's threshold, so
	// that Rules were included in the migrated configuration.
	Used bool `json:"used"`
}

// Migration is the outcome of migrating one legacy mode.
type Migration struct {
	Config        *mode.Configuration `json:"convertedConfig"`
	Type          mode.Type           `json:"modeType"`
	Path          string              `json:"path,omitempty"`
	OriginalFiles []string            `json:"originalFiles"`
	Mappings      []Mapping           `json:"contentMapping"`
	Errors        []string            `json:"errors"`
	Warnings      []string            `json:"warnings"`
	// Confidence is the average confidence of all mappings.
	Confidence float64 `json:"confidence"`
	Success    bool    `json:"success"`
}

// Migrator converts legacy mode documents into mode configurations that
// reference existing pool rules.
type Migrator struct {
	tracer    trace.Tracer
	src       selection.RuleSource
	scorer    Scorer
	now       func() time.Time
	threshold float64
}

// MigratorOpt configures a [Migrator].
type MigratorOpt func(*Migrator)

// WithScorer sets the section to rule [Scorer].
func WithScorer(s Scorer) MigratorOpt {
	return func(m *Migrator) {
		m.scorer = s
	}
}

// WithConfidenceThreshold sets the lowest confidence of a mapping whose
// rules are included in the migrated configuration.
func WithConfidenceThreshold(threshold float64) MigratorOpt {
	return func(m *Migrator) {
		m.threshold = threshold
	}
}

// WithMigrationClock sets the time source for ids and timestamps.
func WithMigrationClock(now func() time.Time) MigratorOpt {
	return func(m *Migrator) {
		m.now = now
	}
}

// NewMigrator creates a [Migrator] matching sections against src with a
// [KeywordScorer].
func NewMigrator(src selection.RuleSource, opts ...MigratorOpt) *Migrator {
	m := &Migrator{
		tracer:    otel.Tracer("migrate"),
		src:       src,
		scorer:    KeywordScorer{},
		now:       func() time.Time { return time.Now().UTC() },
		threshold: DefaultConfidenceThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Threshold returns the confidence threshold.
func (m *Migrator) Threshold() float64 {
	return m.threshold
}

type scoredRule struct {
	id    string
	score float64
}

// Map scores every pool rule against each section of file.
func (m *Migrator) Map(file string, sections []Section) []Mapping {
	rules := m.src.All()
	mappings := make([]Mapping, 0, len(sections))

	for _, s := range sections {
		var scored []scoredRule

		for _, r := range rules {
			if score := m.scorer.Score(s, r); score > 0 {
				scored = append(scored, scoredRule{id: r.ID, score: score})
			}
		}

		slices.SortStableFunc(scored, func(a, b scoredRule) int {
			return cmp.Compare(b.score, a.score)
		})

		mp := Mapping{
			File:    file,
			Section: s.Title,
			Content: s.Content,
			Rules:   []string{},
		}

		for _, sr := range scored[:min(len(scored), maxMappedRules)] {
			mp.Rules = append(mp.Rules, sr.id)
		}

		if len(scored) > 0 {
			mp.Confidence = min(scored[0].score/confidenceScale, 1)
			mp.Used = mp.Confidence >= m.threshold
		}

		mappings = append(mappings, mp)
	}

	return mappings
}

// Convert maps the sections of files and synthesizes a configuration of
// type t without writing it. Unreadable files are recorded as errors.
func (m *Migrator) Convert(ctx context.Context, t mode.Type, files []string) *Migration {
	_, span := m.tracer.Start(ctx, "convert", trace.WithAttributes(
		attribute.String("type", string(t)),
		attribute.Int("files", len(files)),
	))
	defer span.End()

	mig := &Migration{
		Type:          t,
		OriginalFiles: []string{},
		Mappings:      []Mapping{},
		Errors:        []string{},
		Warnings:      []string{},
	}

	for _, f := range files {
		doc, err := ReadDocument(f)
		if err != nil {
			mig.Errors = append(mig.Errors, err.Error())

			continue
		}

		mig.OriginalFiles = append(mig.OriginalFiles, f)
		mig.Mappings = append(mig.Mappings, m.Map(f, Segment(doc.Body))...)
	}

	if len(mig.Mappings) > 0 {
		var total float64
		for _, mp := range mig.Mappings {
			total += mp.Confidence
		}

		mig.Confidence = total / float64(len(mig.Mappings))
	}

	mig.Config = m.synthesize(t, mig)

	// Validate the configuration as it will be loaded.
	loaded := mig.Config.Clone()
	mode.Adapt(loaded)

	report := mode.Validate(loaded, m.src)
	for _, issue := range report.Errors {
		mig.Errors = append(mig.Errors, issue.Message)
	}
	for _, issue := range report.Warnings {
		mig.Warnings = append(mig.Warnings, issue.Message)
	}
	if report.Resolution != nil {
		for _, f := range report.Resolution.Failed {
			mig.Warnings = append(mig.Warnings, f.Reason)
		}
	}

	mig.Success = len(mig.OriginalFiles) > 0 && len(mig.Errors) == 0

	span.SetAttributes(attribute.Int("rules", len(mig.Config.RuleSelection.ExplicitIncludes)))

	return mig
}

// IncludedRules returns the deduplicated union of the rules of used
// mappings, in mapping order.
func IncludedRules(mappings []Mapping) []string {
	ids := []string{}
	for _, mp := range mappings {
		if !mp.Used {
			continue
		}

		for _, id := range mp.Rules {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}

	return ids
}

func (m *Migrator) synthesize(t mode.Type, mig *Migration) *mode.Configuration {
	now := m.now().UTC()
	name := string(t)
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}

	md := &mode.Metadata{
		Created:       now,
		LastModified:  now,
		Version:       mode.DefaultVersion,
		ProjectTypes:  []string{"typescript", "javascript", "flutter"},
		Tags:          []string{string(t), "migrated"},
		Author:        mode.MigrationAuthor,
		MigrationDate: now.Format(time.RFC3339),
		OriginalFiles: slices.Clone(mig.OriginalFiles),
	}

	switch t {
	case mode.TypeEnterprise:
		md.Complexity = mode.ComplexityEnterprise
		md.EstimatedHours = mode.EstimatedHours{Min: 50, Max: 500}
	case mode.TypeSimplified:
		md.Complexity = mode.ComplexityBasic
		md.EstimatedHours = mode.EstimatedHours{Min: 5, Max: 20}
	default:
		md.Complexity = mode.ComplexityMedium
		md.EstimatedHours = mode.EstimatedHours{Min: 20, Max: 50}
	}

	minimum, maximum := rule.UrgencyLow, rule.UrgencyCritical

	return &mode.Configuration{
		ID:          fmt.Sprintf("%s_migrated_%d", t, now.UnixMilli()),
		Name:        name + " Mode (Migrated)",
		Description: fmt.Sprintf("Migrated %s mode configuration using rule-based system", t),
		Type:        t,
		Metadata:    md,
		RuleSelection: &selection.Selection{
			ExplicitIncludes: IncludedRules(mig.Mappings),
			UrgencyFilter: &selection.UrgencyFilter{
				Minimum: &minimum,
				Maximum: &maximum,
			},
			MaxRules:     migratedMaxRules,
			ExplicitOnly: true,
		},
		Structure: mode.Structure{
			Directories: []mode.Directory{},
			Scripts:     []mode.Script{},
			Automation:  []mode.Automation{},
		},
	}
}

// Migrate converts files and writes the configuration to
// <outDir>/<t>-migrated.json. The file is written even when validation
// reports errors; see [Migration.Success].
func (m *Migrator) Migrate(ctx context.Context, t mode.Type, files []string, outDir string) (*Migration, error) {
	ctx, span := m.tracer.Start(ctx, "migrate", trace.WithAttributes(
		attribute.String("type", string(t)),
	))
	defer span.End()

	mig := m.Convert(ctx, t, files)

	b, err := json.MarshalIndent(mig.Config, "", "  ")
	if err != nil {
		return mig, fmt.Errorf("encode migrated %s configuration: %w", t, err)
	}

	path := filepath.Join(outDir, string(t)+"-migrated.json")

	err = api.WriteFile(path, append(b, '\n'), 0o600)
	if err != nil {
		return mig, fmt.Errorf("save migrated configuration to %s: %w", path, err)
	}

	mig.Path = path

	log.WithContext(ctx).InfoContext(ctx, "migrated mode",
		slog.String("type", string(t)),
		slog.String("path", path),
		slog.Int("rules", len(mig.Config.RuleSelection.ExplicitIncludes)),
		slog.Float64("confidence", mig.Confidence),
		slog.Bool("success", mig.Success),
	)

	return mig, nil
}

// LegacyModeFiles returns the [LegacyFiles] present in dir.
func LegacyModeFiles(dir string) ([]string, error) {
	var files []string

	for _, name := range LegacyFiles {
		path := filepath.Join(dir, name)

		_, err := os.Stat(path)
		if isNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}

		files = append(files, path)
	}

	return files, nil
}

// MigrateAll migrates each of [MigrationTypes] from <modesDir>/<type> into
// outDir. A type that cannot be migrated is reported as a failed
// [Migration]; only write errors stop the run.
func (m *Migrator) MigrateAll(ctx context.Context, modesDir, outDir string) ([]*Migration, error) {
	migrations := make([]*Migration, 0, len(MigrationTypes))

	for _, t := range MigrationTypes {
		files, err := LegacyModeFiles(filepath.Join(modesDir, string(t)))
		if err == nil && len(files) == 0 {
			err = fmt.Errorf("no legacy documents in %s", filepath.Join(modesDir, string(t)))
		}
		if err != nil {
			migrations = append(migrations, &Migration{
				Type:          t,
				OriginalFiles: []string{},
				Mappings:      []Mapping{},
				Errors:        []string{fmt.Sprintf("migrate %s mode: %v", t, err)},
				Warnings:      []string{},
			})

			continue
		}

		mig, err := m.Migrate(ctx, t, files, outDir)
		if err != nil {
			return migrations, err
		}

		migrations = append(migrations, mig)
	}

	return migrations, nil
}
