// Package config loads rulepool configuration documents.
//
// [Loader] decodes any [v1beta1.Defaulter] from YAML or JSON, validates it
// against a JSON schema, and reports problems as annotated [yaml.Error]s.
// [LoadWorkspace] discovers and loads the workspace rulepool.yaml.
//
// [v1beta1.Defaulter]: github.com/macropower/rulepool/api/v1beta1.Defaulter
// [yaml.Error]: github.com/macropower/rulepool/pkg/yaml.Error
package config
