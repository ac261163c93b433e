// Package telemetry wires OpenTelemetry tracing around MCP tool calls.
package telemetry

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/shakram02/go-mcp-sql-tools"

// ServiceName and ServiceVersion are reported as resource attributes.
var (
	ServiceName    = "mcp-sql-tools"
	ServiceVersion = "dev"
)

// Setup installs a global tracer provider that writes spans to w. When
// enabled is false it leaves the no-op provider in place. The returned
// shutdown flushes pending spans.
func Setup(enabled bool, w io.Writer) (func(context.Context) error, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(ServiceVersion),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// ToolSpans opens a span named "tools/call <tool>" around every tool handler.
func ToolSpans() server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			tracer := otel.Tracer(instrumentationName)
			ctx, span := tracer.Start(ctx, "tools/call "+req.Params.Name,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attribute.String("mcp.tool.name", req.Params.Name)),
			)
			defer span.End()

			result, err := next(ctx, req)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return result, err
			}
			isError := result != nil && result.IsError
			span.SetAttributes(attribute.Bool("mcp.tool.is_error", isError))
			if isError {
				span.SetStatus(codes.Error, "tool returned an error result")
			}
			return result, nil
		}
	}
}
