package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// GenerationStatusResult reports the latest watched generation.
type GenerationStatusResult struct {
	Status         string   `json:"status"`
	Trigger        string   `json:"trigger,omitempty"`
	LastRun        string   `json:"lastRun,omitempty"`
	ModeID         string   `json:"modeId,omitempty"`
	Message        string   `json:"message"`
	Error          string   `json:"error,omitempty"`
	GeneratedFiles []string `json:"generatedFiles,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	RunCount       int64    `json:"runCount"`
}

func (s *Server) registerStatusTool() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "generation_status",
		Description: "Report the latest generation of the mode watched alongside this server, if any.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, WithTracing(s.tracer, s.handleGenerationStatus))
}

// handleGenerationStatus handles the generation_status tool call.
func (s *Server) handleGenerationStatus(
	_ context.Context,
	_ *mcp.ServerSession,
	_ *mcp.CallToolParamsFor[struct{}],
) (*mcp.CallToolResultFor[GenerationStatusResult], error) {
	state := s.State()

	result := GenerationStatusResult{
		Status:   string(state.Status),
		Trigger:  state.Trigger,
		RunCount: state.RunCount,
	}

	if !state.LastRun.IsZero() {
		result.LastRun = state.LastRun.UTC().Format(time.RFC3339)
	}
	if state.Err != nil {
		result.Error = state.Err.Error()
	}

	switch {
	case state.Result != nil:
		result.ModeID = state.Result.Mode
		result.GeneratedFiles = state.Result.GeneratedFiles
		result.Warnings = state.Result.Warnings
		result.Message = fmt.Sprintf("%s after %d runs: %s", state.Status, state.RunCount, state.Result.Message)
	case state.Status == StatusRunning:
		result.Message = "Generation is running."
	default:
		result.Message = "No watched generation has run."
	}

	return toolResult(result.Message, result), nil
}
