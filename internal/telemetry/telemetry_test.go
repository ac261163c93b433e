package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func callRequest(name string) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	return req
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestToolSpans_Success(t *testing.T) {
	recorder := withRecorder(t)

	handler := ToolSpans()(func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("[]"), nil
	})
	_, err := handler(context.Background(), callRequest("get_schemas"))
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "tools/call get_schemas", spans[0].Name())
	a := attrs(spans[0])
	assert.Equal(t, "get_schemas", a["mcp.tool.name"].AsString())
	assert.False(t, a["mcp.tool.is_error"].AsBool())
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
}

func TestToolSpans_ErrorEnvelope(t *testing.T) {
	recorder := withRecorder(t)

	handler := ToolSpans()(func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("boom"), nil
	})
	result, err := handler(context.Background(), callRequest("execute_query"))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.True(t, attrs(spans[0])["mcp.tool.is_error"].AsBool())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestToolSpans_GoErrorIsRecorded(t *testing.T) {
	recorder := withRecorder(t)

	handler := ToolSpans()(func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, context.Canceled
	})
	_, err := handler(context.Background(), callRequest("spasql_query"))
	assert.ErrorIs(t, err, context.Canceled)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestToolSpans_OneSpanPerCall(t *testing.T) {
	recorder := withRecorder(t)

	handler := ToolSpans()(func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	})
	for _, name := range []string{"get_tables", "describe_table", "get_tables"} {
		_, err := handler(context.Background(), callRequest(name))
		require.NoError(t, err)
	}
	assert.Len(t, recorder.Ended(), 3)
}

func TestSetup(t *testing.T) {
	shutdown, err := Setup(false, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	var buf bytes.Buffer
	shutdown, err = Setup(true, &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "probe")
	span.End()
	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"probe"`)
}
