// Package mode loads, validates and creates mode configurations.
//
// A mode [Configuration] selects rules for each generated document
// (copilot instructions, project rules and custom files), and describes
// the directories, scripts and deployment layout that accompany them.
// [Builtin] provides the enterprise, simplified and custom templates, and
// [Create] derives new configurations from them.
//
// The [Manager] reads configurations from YAML or JSON, adapts documents
// produced by migration (see [Adapt]), runs [Validate], and caches the
// result per path and [LoadOptions].
package mode
