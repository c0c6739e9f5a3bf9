package mcp

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/rulepool/pkg/log"
)

// ToolHandler is the handler signature wrapped by [WithTracing].
type ToolHandler[In, Out any] func(
	context.Context,
	*mcp.ServerSession,
	*mcp.CallToolParamsFor[In],
) (*mcp.CallToolResultFor[Out], error)

// WithTracing wraps handler in an OpenTelemetry span named after the tool
// and logs the call with the span's trace id.
func WithTracing[In, Out any](tracer trace.Tracer, handler ToolHandler[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(
		ctx context.Context,
		session *mcp.ServerSession,
		params *mcp.CallToolParamsFor[In],
	) (*mcp.CallToolResultFor[Out], error) {
		start := time.Now()

		ctx, span := tracer.Start(ctx, params.Name, trace.WithAttributes(
			attribute.String("tool", params.Name),
		))
		defer span.End()

		logger := log.WithContext(ctx).With(slog.String("tool", params.Name))
		logger.DebugContext(ctx, "handling tool call", slog.Any("args", params.Arguments))

		result, err := handler(ctx, session, params)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.ErrorContext(ctx, "tool call failed", slog.Any("err", err))

			return result, err
		}

		logger.DebugContext(ctx, "tool call completed", slog.Duration("duration", time.Since(start)))

		return result, nil
	}
}
