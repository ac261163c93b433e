package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/shakram02/go-mcp-sql-tools/internal/conn"
)

// Defaults forwarded to the server-side procedures. The timeouts are passed
// through as arguments; no client-side deadline is applied.
const (
	DefaultSPASQLMaxRows = 20
	DefaultSPASQLTimeout = 300000
	DefaultSPARQLFormat  = "json"
	DefaultSPARQLTimeout = 30000
)

func (t *Tools) procedureTools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("spasql_query",
				mcp.WithDescription("Execute a SPASQL query (SQL with embedded SPARQL) through the server-side SPASQL procedure and return its text result."),
				mcp.WithString("query", mcp.Required(), mcp.Description("SPASQL statement")),
				mcp.WithNumber("max_rows", mcp.DefaultNumber(DefaultSPASQLMaxRows), mcp.Description("Maximum number of rows the procedure returns")),
				mcp.WithNumber("timeout", mcp.DefaultNumber(DefaultSPASQLTimeout), mcp.Description("Query timeout in milliseconds, enforced by the server")),
				urlParam(),
			),
			Handler: t.handle("spasql_query", t.spasqlQuery),
		},
		{
			Tool: mcp.NewTool("sparql_query",
				mcp.WithDescription("Execute a SPARQL query through the server-side SPARQL procedure and return its text result."),
				mcp.WithString("query", mcp.Required(), mcp.Description("SPARQL query")),
				mcp.WithString("format", mcp.DefaultString(DefaultSPARQLFormat), mcp.Description("Result format, e.g. json")),
				mcp.WithNumber("timeout", mcp.DefaultNumber(DefaultSPARQLTimeout), mcp.Description("Query timeout in milliseconds, enforced by the server")),
				urlParam(),
			),
			Handler: t.handle("sparql_query", t.sparqlQuery),
		},
		{
			Tool: mcp.NewTool("support_ai",
				mcp.WithDescription("Ask the database's AI support assistant a question and return its answer."),
				mcp.WithString("prompt", mcp.Required(), mcp.Description("Question or instruction for the assistant")),
				mcp.WithString("api_key", mcp.Description("API key for the assistant; the configured key is used when empty")),
				urlParam(),
				mcp.WithOpenWorldHintAnnotation(true),
			),
			Handler: t.handle("support_ai", t.supportAI),
		},
	}
}

func (t *Tools) spasqlQuery(ctx context.Context, req mcp.CallToolRequest) (string, error) {
	query, err := requireString(req, "query")
	if err != nil {
		return "", err
	}
	return t.callProcedure(ctx, req.GetString("url", ""), t.cfg.Procedures.SPASQL,
		query,
		positiveInt(req, "max_rows", DefaultSPASQLMaxRows),
		positiveInt(req, "timeout", DefaultSPASQLTimeout),
	)
}

func (t *Tools) sparqlQuery(ctx context.Context, req mcp.CallToolRequest) (string, error) {
	query, err := requireString(req, "query")
	if err != nil {
		return "", err
	}
	return t.callProcedure(ctx, req.GetString("url", ""), t.cfg.Procedures.SPARQL,
		query,
		optionalString(req, "format", DefaultSPARQLFormat),
		positiveInt(req, "timeout", DefaultSPARQLTimeout),
	)
}

func (t *Tools) supportAI(ctx context.Context, req mcp.CallToolRequest) (string, error) {
	prompt, err := requireString(req, "prompt")
	if err != nil {
		return "", err
	}
	return t.callProcedure(ctx, req.GetString("url", ""), t.cfg.Procedures.Assistant,
		prompt,
		optionalString(req, "api_key", t.cfg.Assistant.APIKey),
	)
}

func (t *Tools) callProcedure(ctx context.Context, url, proc string, args ...any) (string, error) {
	var out string
	err := t.conns.With(ctx, url, func(h *conn.Handle) error {
		var err error
		out, err = h.CallScalar(ctx, proc, args...)
		return err
	})
	return out, err
}
