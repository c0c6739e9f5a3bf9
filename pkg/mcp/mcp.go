// Package mcp serves the rule pool and mode generation engine over the
// Model Context Protocol.
package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	name         = "rulepool"
	instructions = `MCP Server 'rulepool' exposes a pool of reusable, tagged rules and the modes that select and render them into instruction documents (copilot-instructions, project-rules, task-management).

When to use these tools:
- Finding which rules exist for a topic, category, urgency or tag
- Checking which rules a mode configuration selects, and why a selection fails
- Previewing a rendered document before generating files
- Generating a mode's documents and scripts into a directory

REQUIRED workflow:
1. Use 'search_rules' to find rules, then 'get_rule' with an EXACT id from its output to read the full content
2. Use 'validate_mode' on a mode configuration path before rendering or generating it
3. Use 'resolve_mode' to see the rules each output of the mode selects
4. Use 'render_mode' to preview one document, and 'generate_mode' with dryRun=true to see diffs before writing

IMPORTANT: Mode paths are relative to the server's working directory. Generation overwrites files in the output directory unless dryRun is true.
`

	previewLength = 2000
)

func stringProperty(description string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Description: description,
	}
}

func stringArrayProperty(description string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "array",
		Description: description,
		Items:       &jsonschema.Schema{Type: "string"},
	}
}

func modePathProperty() *jsonschema.Schema {
	return stringProperty("Path to a mode configuration file (JSON or YAML).")
}

// toolResult creates the MCP tool result carrying text and out.
func toolResult[Out any](text string, out Out) *mcp.CallToolResultFor[Out] {
	return &mcp.CallToolResultFor[Out]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		StructuredContent: out,
	}
}

// truncateString truncates a string to maxLen characters with ellipsis if needed.
func truncateString(str string, maxLen int) string {
	if len(str) > maxLen {
		return str[:maxLen] + "\n[OUTPUT TRUNCATED]"
	}

	return str
}
