// Package generate runs the mode generation pipeline.
//
// A [Generator] loads a mode configuration, resolves each document's rule
// selection against a rule store, renders the documents, writes automation
// scripts and a [MetadataFile], and reports a [Result]. Each stage runs in
// its own OpenTelemetry span.
//
// Dry runs write nothing and report unified diffs against the files already
// in the output directory. [Generator.Watch] regenerates when the mode file
// or the rule pool file changes.
package generate
