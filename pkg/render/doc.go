// Package render turns resolved rules into documents.
//
// An [Engine] looks rules up by id, applies a mode's per-rule overrides,
// orders and groups them, and substitutes the result into a document
// template. Templates are plain text with {{placeholder}} markers; they are
// read from a [TemplateSource] directory and fall back to the built-in set.
//
// Rendering is deterministic: the same rules, configuration and [Context]
// produce byte-identical output. The only time-dependent placeholder,
// {{metadata.generatedAt}}, is taken from [Context.GeneratedAt].
package render
