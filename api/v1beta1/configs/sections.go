package configs

import (
	"errors"
	"fmt"
	"slices"
)

const (
	DefaultPoolDriver          = "json"
	DefaultPoolPath            = "data/rule-pool.json"
	DefaultBackupDir           = "data/backups"
	DefaultModesDir            = "modes"
	DefaultMigratedDir         = "migrated-configs"
	DefaultTemplatesDir        = "templates"
	DefaultOutputDir           = "generated"
	DefaultOutputFormat        = "markdown"
	DefaultWrapWidth           = 100
	DefaultConfidenceThreshold = 0.0
)

var (
	ErrInvalidThreshold = errors.New("confidence threshold must be within [0, 1]")
	ErrInvalidFormat    = errors.New("unknown output format")

	// DefaultExtractInclude lists the legacy documents considered by extraction.
	DefaultExtractInclude = []string{"**/*.md", "**/*.html", "**/*.sh"}
	// DefaultExtractExclude lists paths extraction never reads.
	DefaultExtractExclude = []string{"**/.git/**", "**/node_modules/**", "**/generated/**"}

	outputFormats = []string{"markdown", "text"}
)

// PoolConfig configures rule pool storage.
type PoolConfig struct {
	// Driver selects the storage backend.
	Driver string `json:"driver,omitempty" jsonschema:"title=Driver,enum=json,enum=sqlite,enum=memory"`
	// Path is the pool file or database.
	Path string `json:"path,omitempty" jsonschema:"title=Path"`
	// BackupDir receives a backup before every write.
	BackupDir string `json:"backupDir,omitempty" jsonschema:"title=Backup Directory"`
}

func (c *PoolConfig) EnsureDefaults() {
	if c.Driver == "" {
		c.Driver = DefaultPoolDriver
	}
	if c.Path == "" {
		c.Path = DefaultPoolPath
	}
	if c.BackupDir == "" {
		c.BackupDir = DefaultBackupDir
	}
}

// ModesConfig configures where mode configurations live.
type ModesConfig struct {
	// ValidateSchema checks mode files against the mode schema on load.
	ValidateSchema *bool `json:"validateSchema,omitempty" jsonschema:"title=Validate Schema"`
	// Dir holds mode configuration files.
	Dir string `json:"dir,omitempty" jsonschema:"title=Directory"`
	// MigratedDir receives mode configurations produced by migration.
	MigratedDir string `json:"migratedDir,omitempty" jsonschema:"title=Migrated Directory"`
}

func (c *ModesConfig) EnsureDefaults() {
	if c.Dir == "" {
		c.Dir = DefaultModesDir
	}
	if c.MigratedDir == "" {
		c.MigratedDir = DefaultMigratedDir
	}
	if c.ValidateSchema == nil {
		c.ValidateSchema = ptr(true)
	}
}

// TemplatesConfig configures document templates.
type TemplatesConfig struct {
	// Dir holds <name>.hbs templates. Built-in templates are used for
	// anything missing.
	Dir string `json:"dir,omitempty" jsonschema:"title=Directory"`
}

func (c *TemplatesConfig) EnsureDefaults() {
	if c.Dir == "" {
		c.Dir = DefaultTemplatesDir
	}
}

// OutputConfig configures generated documents.
type OutputConfig struct {
	GroupByCategory *bool `json:"groupByCategory,omitempty" jsonschema:"title=Group By Category"`
	SortByUrgency   *bool `json:"sortByUrgency,omitempty" jsonschema:"title=Sort By Urgency"`
	IncludeMetadata *bool `json:"includeMetadata,omitempty" jsonschema:"title=Include Metadata"`
	// Dir is the default generation target.
	Dir string `json:"dir,omitempty" jsonschema:"title=Directory"`
	// Format is markdown or text.
	Format string `json:"format,omitempty" jsonschema:"title=Format,enum=markdown,enum=text"`
	// WrapWidth wraps text output.
	WrapWidth int `json:"wrapWidth,omitempty" jsonschema:"title=Wrap Width,minimum=20"`
}

func (c *OutputConfig) EnsureDefaults() {
	if c.Dir == "" {
		c.Dir = DefaultOutputDir
	}
	if c.Format == "" {
		c.Format = DefaultOutputFormat
	}
	if c.WrapWidth == 0 {
		c.WrapWidth = DefaultWrapWidth
	}
	if c.GroupByCategory == nil {
		c.GroupByCategory = ptr(true)
	}
	if c.SortByUrgency == nil {
		c.SortByUrgency = ptr(true)
	}
	if c.IncludeMetadata == nil {
		c.IncludeMetadata = ptr(true)
	}
}

func (c *OutputConfig) Validate() error {
	if c.Format != "" && !slices.Contains(outputFormats, c.Format) {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.Format)
	}

	return nil
}

// ExtractConfig configures legacy content extraction.
type ExtractConfig struct {
	// ConfidenceThreshold is the minimum mapping confidence used for synthesis.
	// Zero keeps every mapping that matched at least one rule.
	ConfidenceThreshold *float64 `json:"confidenceThreshold,omitempty" jsonschema:"title=Confidence Threshold,minimum=0,maximum=1"`
	// Include lists doublestar globs of legacy documents.
	Include []string `json:"include,omitempty" jsonschema:"title=Include"`
	// Exclude lists doublestar globs to skip.
	Exclude []string `json:"exclude,omitempty" jsonschema:"title=Exclude"`
}

func (c *ExtractConfig) EnsureDefaults() {
	if c.ConfidenceThreshold == nil {
		c.ConfidenceThreshold = ptr(DefaultConfidenceThreshold)
	}
	if c.Include == nil {
		c.Include = slices.Clone(DefaultExtractInclude)
	}
	if c.Exclude == nil {
		c.Exclude = slices.Clone(DefaultExtractExclude)
	}
}

func (c *ExtractConfig) Validate() error {
	if c.ConfidenceThreshold != nil && (*c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold > 1) {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, *c.ConfidenceThreshold)
	}

	return nil
}

// MCPConfig configures the MCP server.
type MCPConfig struct {
	// Addr serves streamable HTTP on this address. Empty means stdio.
	Addr string `json:"addr,omitempty" jsonschema:"title=Address"`
}

func ptr[T any](v T) *T {
	return &v
}
