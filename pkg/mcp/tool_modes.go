package mcp

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/macropower/rulepool/pkg/generate"
	"github.com/macropower/rulepool/pkg/mode"
)

// ModeParams defines parameters for tools operating on a mode file.
type ModeParams struct {
	Path string `json:"path"`
}

// ValidateModeResult contains the validation report of a mode.
type ValidateModeResult struct {
	ModeID     string       `json:"modeId,omitempty"`
	Error      string       `json:"error,omitempty"`
	Message    string       `json:"message"`
	Errors     []string     `json:"errors"`
	Warnings   []string     `json:"warnings"`
	Failed     []FailedSets `json:"failedResolutions"`
	TotalRules int          `json:"totalRules"`
	Valid      bool         `json:"valid"`
}

// FailedSets describes a rule set that could not be fully resolved.
type FailedSets struct {
	RuleSet     string   `json:"ruleSet"`
	Reason      string   `json:"reason"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ResolveModeResult lists the rules each output of a mode selects.
type ResolveModeResult struct {
	ModeID     string         `json:"modeId,omitempty"`
	Error      string         `json:"error,omitempty"`
	Message    string         `json:"message"`
	Outputs    []OutputRules  `json:"outputs"`
	Failed     []FailedSets   `json:"failedResolutions"`
	ByCategory map[string]int `json:"rulesByCategory"`
	TotalRules int            `json:"totalRules"`
}

// OutputRules are the rule ids selected for one output document.
type OutputRules struct {
	Document   string   `json:"document"`
	Rules      []string `json:"rules"`
	Unresolved []string `json:"unresolved,omitempty"`
}

// RenderModeParams defines parameters for the render_mode tool.
type RenderModeParams struct {
	Path     string `json:"path"`
	Document string `json:"document,omitempty"`
}

// RenderModeResult contains one rendered document.
type RenderModeResult struct {
	Document  string   `json:"document"`
	FileName  string   `json:"fileName,omitempty"`
	Template  string   `json:"template,omitempty"`
	Content   string   `json:"content"`
	Error     string   `json:"error,omitempty"`
	Message   string   `json:"message"`
	Available []string `json:"availableDocuments,omitempty"`
	Rules     []string `json:"rules"`
}

// GenerateModeParams defines parameters for the generate_mode tool.
type GenerateModeParams struct {
	Path   string `json:"path"`
	OutDir string `json:"outDir"`
	DryRun bool   `json:"dryRun,omitempty"`
}

// GenerateModeResult contains the outcome of a generation.
type GenerateModeResult struct {
	Diffs          map[string]string `json:"diffs,omitempty"`
	ModeID         string            `json:"modeId"`
	Message        string            `json:"message"`
	Error          string            `json:"error,omitempty"`
	Duration       string            `json:"duration"`
	GeneratedFiles []string          `json:"generatedFiles"`
	Warnings       []string          `json:"warnings,omitempty"`
	RulesUsed      int               `json:"rulesUsed"`
	Success        bool              `json:"success"`
	DryRun         bool              `json:"dryRun"`
}

func (s *Server) registerModeTools() {
	pathOnly := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"path": modePathProperty(),
		},
		Required: []string{"path"},
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "validate_mode",
		Description: "Validate a mode configuration: structure, deployment, templates and rule references. Reports errors, warnings and unresolved rule ids with suggestions.",
		InputSchema: pathOnly,
	}, WithTracing(s.tracer, s.handleValidateMode))

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "resolve_mode",
		Description: "List the rule ids each output document of a mode configuration selects, in resolution order.",
		InputSchema: pathOnly,
	}, WithTracing(s.tracer, s.handleResolveMode))

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "render_mode",
		Description: "Render one output document of a mode configuration without writing files.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": modePathProperty(),
				"document": stringProperty(
					"The document to render, e.g. copilot-instructions, project-rules, task-management or a custom file name. Defaults to copilot-instructions.",
				),
			},
			Required: []string{"path"},
		},
	}, WithTracing(s.tracer, s.handleRenderMode))

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "generate_mode",
		Description: "Generate the documents, scripts and generation metadata of a mode configuration into a directory. Use dryRun to get unified diffs without writing.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path":   modePathProperty(),
				"outDir": stringProperty("The output directory."),
				"dryRun": {
					Type:        "boolean",
					Description: "Report diffs against existing files instead of writing.",
				},
			},
			Required: []string{"path", "outDir"},
		},
	}, WithTracing(s.tracer, s.handleGenerateMode))
}

// handleValidateMode handles the validate_mode tool call.
func (s *Server) handleValidateMode(
	ctx context.Context,
	_ *mcp.ServerSession,
	params *mcp.CallToolParamsFor[ModeParams],
) (*mcp.CallToolResultFor[ValidateModeResult], error) {
	result := ValidateModeResult{
		Errors:   []string{},
		Warnings: []string{},
		Failed:   []FailedSets{},
	}

	cfg, err := s.loadMode(ctx, params.Arguments.Path, mode.LoadOptions{SkipValidation: true})
	if err != nil {
		result.Error = err.Error()
		result.Message = "Mode configuration could not be loaded."

		return toolResult(result.Message+"\n\n"+result.Error, result), nil
	}

	report := s.modes.Validate(cfg)

	result.ModeID = cfg.ID
	result.Valid = report.Valid

	for _, issue := range report.Errors {
		result.Errors = append(result.Errors, issue.String())
	}
	for _, issue := range report.Warnings {
		result.Warnings = append(result.Warnings, issue.String())
	}

	if report.Resolution != nil {
		result.TotalRules = report.Resolution.TotalRules
		result.Failed = failedSets(report.Resolution.Failed)
	}

	if result.Valid {
		result.Message = fmt.Sprintf("Mode %s is valid: %d rules, %d warnings.",
			cfg.ID, result.TotalRules, len(result.Warnings))
	} else {
		result.Message = fmt.Sprintf("Mode %s is INVALID: %s", cfg.ID, strings.Join(result.Errors, "; "))
	}

	return toolResult(result.Message, result), nil
}

// handleResolveMode handles the resolve_mode tool call.
func (s *Server) handleResolveMode(
	ctx context.Context,
	_ *mcp.ServerSession,
	params *mcp.CallToolParamsFor[ModeParams],
) (*mcp.CallToolResultFor[ResolveModeResult], error) {
	result := ResolveModeResult{
		Outputs:    []OutputRules{},
		Failed:     []FailedSets{},
		ByCategory: map[string]int{},
	}

	cfg, err := s.loadMode(ctx, params.Arguments.Path, mode.LoadOptions{SkipValidation: true})
	if err != nil {
		result.Error = err.Error()
		result.Message = "Mode configuration could not be loaded."

		return toolResult(result.Message+"\n\n"+result.Error, result), nil
	}

	result.ModeID = cfg.ID

	for _, entry := range cfg.RuleSets() {
		out := OutputRules{Document: entry.Name, Rules: []string{}}

		sel, err := mode.ResolveRuleSet(s.store, entry.RuleSet)
		if err == nil {
			out.Rules = sel.IDs
			out.Unresolved = sel.Unresolved
		}

		result.Outputs = append(result.Outputs, out)
	}

	res := mode.ResolveReferences(cfg, s.store)

	result.TotalRules = res.TotalRules
	result.Failed = failedSets(res.Failed)

	for c, n := range res.ByCategory {
		result.ByCategory[string(c)] = n
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Mode %s selects %d rules.", cfg.ID, res.TotalRules)
	for _, out := range result.Outputs {
		fmt.Fprintf(&b, "\n- %s: %s", out.Document, strings.Join(out.Rules, ", "))
	}
	for _, f := range result.Failed {
		fmt.Fprintf(&b, "\n! %s: %s", f.RuleSet, f.Reason)
	}

	result.Message = fmt.Sprintf("Mode %s selects %d rules.", cfg.ID, res.TotalRules)

	return toolResult(b.String(), result), nil
}

// handleRenderMode handles the render_mode tool call.
func (s *Server) handleRenderMode(
	ctx context.Context,
	_ *mcp.ServerSession,
	params *mcp.CallToolParamsFor[RenderModeParams],
) (*mcp.CallToolResultFor[RenderModeResult], error) {
	name := params.Arguments.Document
	if name == "" {
		name = string(mode.OutputCopilotInstructions)
	}

	result := RenderModeResult{
		Document: name,
		Rules:    []string{},
	}

	cfg, err := s.loadMode(ctx, params.Arguments.Path, mode.LoadOptions{})
	if err != nil {
		result.Error = err.Error()
		result.Message = "Mode configuration could not be loaded."

		return toolResult(result.Message+"\n\n"+result.Error, result), nil
	}

	doc, err := s.generator(false).Render(ctx, cfg, name)
	if err != nil {
		result.Error = err.Error()
		result.Available = generate.Documents(cfg)
		result.Message = fmt.Sprintf("INVALID INPUT ERROR: Document %q could not be rendered. Available documents: %s.",
			name, strings.Join(result.Available, ", "))

		return toolResult(result.Message, result), nil
	}

	result.FileName = doc.FileName(s.rc.Format)
	result.Template = doc.Template
	result.Content = doc.Content
	result.Rules = slices.Clone(doc.RuleIDs)
	result.Message = fmt.Sprintf("Rendered %s with %d rules.", result.FileName, len(doc.RuleIDs))

	return toolResult(result.Message+"\n\n"+truncateString(doc.Content, previewLength), result), nil
}

// handleGenerateMode handles the generate_mode tool call.
func (s *Server) handleGenerateMode(
	ctx context.Context,
	_ *mcp.ServerSession,
	params *mcp.CallToolParamsFor[GenerateModeParams],
) (*mcp.CallToolResultFor[GenerateModeResult], error) {
	args := params.Arguments

	result := GenerateModeResult{
		GeneratedFiles: []string{},
		DryRun:         args.DryRun,
	}

	if args.OutDir == "" {
		result.Error = "outDir is required"
		result.Message = "INVALID INPUT ERROR: outDir is required."

		return toolResult(result.Message, result), nil
	}

	s.modes.ClearCache()
	s.templates.ClearCache()

	res, err := s.generator(args.DryRun).Generate(ctx, args.Path, args.OutDir)
	if err != nil {
		result.Error = err.Error()
	}

	result.ModeID = res.Mode
	result.Message = res.Message
	result.Duration = res.Duration.String()
	result.GeneratedFiles = res.GeneratedFiles
	result.Warnings = res.Warnings
	result.RulesUsed = res.RulesUsed
	result.Success = res.Success
	result.Diffs = res.Diffs

	text := result.Message
	if args.DryRun {
		var b strings.Builder

		b.WriteString(text)

		for _, file := range slices.Sorted(maps.Keys(res.Diffs)) {
			b.WriteString("\n\n")
			b.WriteString(res.Diffs[file])
		}

		text = truncateString(b.String(), previewLength)
	}

	return toolResult(text, result), nil
}

func failedSets(failed []mode.FailedResolution) []FailedSets {
	out := make([]FailedSets, 0, len(failed))
	for _, f := range failed {
		out = append(out, FailedSets{
			RuleSet:     f.RuleSet,
			Reason:      f.Reason,
			Suggestions: f.Suggestions,
		})
	}

	return out
}
