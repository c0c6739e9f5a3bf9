// Package extract turns legacy mode documents into rules and rule-based
// mode configurations.
//
// Documents are markdown (with optional YAML frontmatter hints), HTML
// converted to markdown, or shell scripts. [Segment] splits markdown into
// heading-delimited sections.
//
// In bulk mode an [Extractor] creates new rules from sections matched by a
// [Pattern] library. In migration mode a [Migrator] scores existing pool
// rules against each section with a [Scorer] and synthesizes a mode
// configuration whose explicit includes are the rules of mappings at or
// above the confidence threshold.
package extract
