// Package expr provides CEL (Common Expression Language) functionality for
// matching rules in a selection.
//
// Expressions have access to a single variable:
//   - `rule` (map): id, title, description, category, urgency (int),
//     contentType, tags, appliesTo, author, sourceFile, sourceSection,
//     isCustom and isActive
//
// Custom functions:
//   - urgencyLevel(string): Ordinal of an urgency name (INFO=0 .. CRITICAL=4)
//   - pathBase, pathDir, pathExt: Path helpers for rule.sourceFile
//
// Example:
//
//	rule.urgency >= urgencyLevel("HIGH") && "testing" in rule.tags
package expr
