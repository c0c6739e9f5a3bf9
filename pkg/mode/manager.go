package mode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "embed"

	"github.com/macropower/rulepool/api"
	"github.com/macropower/rulepool/pkg/config"
	"github.com/macropower/rulepool/pkg/log"
	"github.com/macropower/rulepool/pkg/selection"
	"github.com/macropower/rulepool/pkg/yaml"
)

//go:generate go run ../../internal/schemagen -kind mode -o modes.v1beta1.json

var (
	//go:embed modes.v1beta1.json
	schemaJSON []byte

	// SchemaValidator validates mode configuration documents.
	SchemaValidator = yaml.MustNewValidator("/modes.v1beta1.json", schemaJSON)
)

// LoadOptions controls [Manager.Load]. The serialized options are part of
// the cache key.
type LoadOptions struct {
	// ValidateSchema checks the document against the mode JSON schema.
	ValidateSchema bool `json:"validateSchema,omitempty"`
	// SkipValidation disables the structural [Validate] pass.
	SkipValidation bool `json:"skipValidation,omitempty"`
	// ResolveInheritance fills template variables from the built-in
	// templates named in templates.inherits.
	ResolveInheritance bool `json:"resolveInheritance,omitempty"`
	// ExpandSelections replaces every selection with the explicit list of
	// ids it currently resolves to.
	ExpandSelections bool `json:"expandSelections,omitempty"`
	// Color highlights annotated source in decode errors.
	Color bool `json:"-"`
}

// ManagerOpt configures a [Manager].
type ManagerOpt func(*Manager)

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) ManagerOpt {
	return func(m *Manager) {
		m.now = now
	}
}

// WithSchemaValidator replaces [SchemaValidator].
func WithSchemaValidator(v config.Validator) ManagerOpt {
	return func(m *Manager) {
		m.validator = v
	}
}

// Manager loads, validates and saves mode configurations. Loaded
// configurations are cached until [Manager.ClearCache] or [Manager.Save].
type Manager struct {
	src       selection.RuleSource
	validator config.Validator
	cache     map[string]*Configuration
	now       func() time.Time
	mu        sync.Mutex
}

// NewManager creates a [Manager] resolving rule references against src,
// which may be nil to skip them.
func NewManager(src selection.RuleSource, opts ...ManagerOpt) *Manager {
	m := &Manager{
		src:       src,
		validator: SchemaValidator,
		cache:     map[string]*Configuration{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

func cacheKey(path string, opts LoadOptions) string {
	b, err := json.Marshal(opts)
	if err != nil {
		panic(fmt.Sprintf("encode load options: %v", err))
	}

	return path + "_" + string(b)
}

// Load reads the mode configuration at path (JSON or YAML). The returned
// configuration is shared with the cache and must not be modified; use
// [Configuration.Clone] first.
func (m *Manager) Load(ctx context.Context, path string, opts LoadOptions) (*Configuration, error) {
	key := cacheKey(path, opts)

	m.mu.Lock()
	cached, ok := m.cache[key]
	m.mu.Unlock()

	if ok {
		return cached, nil
	}

	logger := log.WithContext(ctx).With(slog.String("path", path))

	var v config.Validator
	if opts.ValidateSchema {
		v = m.validator
	}

	cl, err := config.NewLoaderFromFile(path, func() *Configuration { return &Configuration{} }, v,
		config.WithColor(opts.Color))
	if err != nil {
		return nil, fmt.Errorf("load mode configuration: %w", err)
	}

	if opts.ValidateSchema {
		err = cl.Validate()
		if err != nil {
			return nil, fmt.Errorf("load mode configuration: %w", err)
		}
	}

	cfg, err := cl.Load()
	if err != nil {
		return nil, fmt.Errorf("load mode configuration: %w", err)
	}

	if Adapt(cfg) {
		logger.Debug("adapted legacy rule selection")
	}

	if !opts.SkipValidation {
		report := Validate(cfg, m.src)
		for _, w := range report.Warnings {
			logger.Debug("mode configuration warning", slog.String("code", w.Code), slog.String("path", w.Path))
		}

		err = report.Err()
		if err != nil {
			return nil, fmt.Errorf("load mode configuration from %s: %w", path, err)
		}
	}

	if opts.ResolveInheritance {
		resolveInheritance(cfg)
	}

	if opts.ExpandSelections {
		err = m.expandSelections(cfg)
		if err != nil {
			return nil, fmt.Errorf("load mode configuration from %s: %w", path, err)
		}
	}

	m.mu.Lock()
	m.cache[key] = cfg
	m.mu.Unlock()

	logger.Debug("loaded mode configuration", slog.String("id", cfg.ID))

	return cfg, nil
}

// Validate runs [Validate] against the manager's rule source.
func (m *Manager) Validate(cfg *Configuration) *Report {
	return Validate(cfg, m.src)
}

// Create runs [Create] with the manager's clock.
func (m *Manager) Create(t Type, customizations *Configuration) *Configuration {
	return create(t, customizations, m.now())
}

// Save validates cfg, stamps its modification time and writes it to path
// as indented JSON. The cache is cleared.
func (m *Manager) Save(ctx context.Context, path string, cfg *Configuration) error {
	report := Validate(cfg, nil)

	err := report.Err()
	if err != nil {
		return fmt.Errorf("save mode configuration to %s: %w", path, err)
	}

	cfg.Metadata.LastModified = m.now()

	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("save mode configuration to %s: %w", path, err)
	}

	err = api.WriteFile(path, append(b, '\n'), 0o600)
	if err != nil {
		return fmt.Errorf("save mode configuration to %s: %w", path, err)
	}

	m.ClearCache()

	log.WithContext(ctx).Info("saved mode configuration",
		slog.String("path", path),
		slog.String("id", cfg.ID),
	)

	return nil
}

// ClearCache drops every cached configuration.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	clear(m.cache)
	m.mu.Unlock()
}

func resolveInheritance(cfg *Configuration) {
	for _, name := range cfg.Templates.Inherits {
		t, err := ParseType(name)
		if err != nil {
			continue
		}

		base := Builtin(t).Templates.Variables
		if cfg.Templates.Variables == nil {
			cfg.Templates.Variables = map[string]any{}
		}

		for k, v := range base {
			if _, ok := cfg.Templates.Variables[k]; !ok {
				cfg.Templates.Variables[k] = v
			}
		}
	}
}

func (m *Manager) expandSelections(cfg *Configuration) error {
	if m.src == nil {
		return nil
	}

	for _, entry := range cfg.RuleSets() {
		out, err := ResolveRuleSet(m.src, entry.RuleSet)
		if err != nil {
			return fmt.Errorf("expand %s: %w", entry.Path, err)
		}

		entry.RuleSet.Selection = selection.Selection{ExplicitIncludes: out.IDs, ExplicitOnly: true}
	}

	return nil
}
