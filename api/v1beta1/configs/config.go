// Package configs provides the workspace Configuration document, usually
// kept in rulepool.yaml at the root of a project.
package configs

import (
	"fmt"
	"path/filepath"

	"github.com/invopop/jsonschema"

	_ "embed"

	"github.com/macropower/rulepool/api"
	"github.com/macropower/rulepool/api/v1beta1"
	"github.com/macropower/rulepool/pkg/yaml"
)

//go:generate go run ../../../internal/schemagen -kind config -o configs.v1beta1.json

const Kind = "Configuration"

var (
	//go:embed config.yaml
	defaultConfigYAML []byte

	//go:embed configs.v1beta1.json
	schemaJSON []byte

	// ValidKinds contains the valid kind values for workspace configurations.
	ValidKinds = []string{Kind}

	// DefaultValidator validates workspace configuration against the JSON schema.
	DefaultValidator = yaml.MustNewValidator("/configs.v1beta1.json", schemaJSON)

	_ v1beta1.Object = (*Config)(nil)
)

// Config is the workspace configuration.
//
//nolint:recvcheck // Must satisfy the jsonschema interface.
type Config struct {
	// Pool configures rule pool storage.
	Pool *PoolConfig `json:"pool,omitempty" jsonschema:"title=Pool"`
	// Modes configures where mode configurations live.
	Modes *ModesConfig `json:"modes,omitempty" jsonschema:"title=Modes"`
	// Templates configures document templates.
	Templates *TemplatesConfig `json:"templates,omitempty" jsonschema:"title=Templates"`
	// Output configures generated documents.
	Output *OutputConfig `json:"output,omitempty" jsonschema:"title=Output"`
	// Extract configures legacy content extraction.
	Extract *ExtractConfig `json:"extract,omitempty" jsonschema:"title=Extract"`
	// MCP configures the MCP server.
	MCP *MCPConfig `json:"mcp,omitempty" jsonschema:"title=MCP"`

	v1beta1.TypeMeta `json:",inline"`
}

// New creates a [Config] with default values.
func New() *Config {
	c := &Config{
		TypeMeta: v1beta1.TypeMeta{
			APIVersion: v1beta1.APIVersion,
			Kind:       Kind,
		},
	}
	c.EnsureDefaults()

	return c
}

// EnsureDefaults initializes nil sections and fields to their default values.
func (c *Config) EnsureDefaults() {
	if c.Pool == nil {
		c.Pool = &PoolConfig{}
	}
	if c.Modes == nil {
		c.Modes = &ModesConfig{}
	}
	if c.Templates == nil {
		c.Templates = &TemplatesConfig{}
	}
	if c.Output == nil {
		c.Output = &OutputConfig{}
	}
	if c.Extract == nil {
		c.Extract = &ExtractConfig{}
	}
	if c.MCP == nil {
		c.MCP = &MCPConfig{}
	}

	c.Pool.EnsureDefaults()
	c.Modes.EnsureDefaults()
	c.Templates.EnsureDefaults()
	c.Output.EnsureDefaults()
	c.Extract.EnsureDefaults()
}

// Validate checks values the schema cannot express.
func (c *Config) Validate() error {
	if c.Extract != nil {
		err := c.Extract.Validate()
		if err != nil {
			return fmt.Errorf("extract: %w", err)
		}
	}

	if c.Output != nil {
		err := c.Output.Validate()
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
	}

	return nil
}

// ResolvePaths makes every relative path in c relative to root.
func (c *Config) ResolvePaths(root string) {
	c.EnsureDefaults()

	for _, p := range []*string{
		&c.Pool.Path,
		&c.Pool.BackupDir,
		&c.Modes.Dir,
		&c.Modes.MigratedDir,
		&c.Templates.Dir,
		&c.Output.Dir,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(root, *p)
		}
	}
}

func (c Config) JSONSchemaExtend(jss *jsonschema.Schema) {
	v1beta1.ExtendSchemaWithEnums(jss, v1beta1.ValidAPIVersions, ValidKinds)
}

// MarshalYAML serializes the config to YAML.
func (c Config) MarshalYAML() ([]byte, error) {
	type alias Config

	b, err := yaml.Marshal(alias(c))
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	return b, nil
}

// Write writes the config to path if it doesn't already exist.
func (c Config) Write(path string) error {
	b, err := c.MarshalYAML()
	if err != nil {
		return err
	}

	err = api.WriteIfNotExists(path, b)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// WriteDefault writes the embedded default config.yaml to path.
func WriteDefault(path string, force bool) error {
	err := api.WriteDefaultFile(path, defaultConfigYAML, force, "configuration")
	if err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	return nil
}

// GetPath returns the path to the user-level configuration file.
func GetPath() string {
	return api.GetConfigPath("config.yaml")
}
