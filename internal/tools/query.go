package tools

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// DefaultMaxRows caps execute_query and execute_query_md when the caller
// does not pass max_rows.
const DefaultMaxRows = 100

func (t *Tools) queryTools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("execute_query",
				mcp.WithDescription("Execute a SQL query and return the rows as a JSON array of objects."),
				mcp.WithString("query", mcp.Required(), mcp.Description("SQL statement to execute")),
				mcp.WithNumber("max_rows", mcp.DefaultNumber(DefaultMaxRows), mcp.Description("Maximum number of rows to return")),
				urlParam(),
			),
			Handler: t.handle("execute_query", t.executeQuery),
		},
		{
			Tool: mcp.NewTool("execute_query_md",
				mcp.WithDescription("Execute a SQL query and return the rows as a Markdown table."),
				mcp.WithString("query", mcp.Required(), mcp.Description("SQL statement to execute")),
				mcp.WithNumber("max_rows", mcp.DefaultNumber(DefaultMaxRows), mcp.Description("Maximum number of rows to return")),
				urlParam(),
			),
			Handler: t.handle("execute_query_md", t.executeQueryMarkdown),
		},
		{
			Tool: mcp.NewTool("query_database",
				mcp.WithDescription("Execute a SQL query and return every row as a JSON array of objects."),
				mcp.WithString("query", mcp.Required(), mcp.Description("SQL statement to execute")),
				urlParam(),
			),
			Handler: t.handle("query_database", t.queryDatabase),
		},
	}
}

func (t *Tools) executeQuery(ctx context.Context, req mcp.CallToolRequest) (string, error) {
	query, err := requireString(req, "query")
	if err != nil {
		return "", err
	}
	return t.runJSON(ctx, req.GetString("url", ""), query, positiveInt(req, "max_rows", DefaultMaxRows))
}

func (t *Tools) executeQueryMarkdown(ctx context.Context, req mcp.CallToolRequest) (string, error) {
	query, err := requireString(req, "query")
	if err != nil {
		return "", err
	}

	var out string
	err = t.runQuery(ctx, req.GetString("url", ""), query, func(rows *sql.Rows) error {
		var err error
		out, err = t.rows.Markdown(rows, positiveInt(req, "max_rows", DefaultMaxRows))
		return err
	})
	return out, err
}

func (t *Tools) queryDatabase(ctx context.Context, req mcp.CallToolRequest) (string, error) {
	query, err := requireString(req, "query")
	if err != nil {
		return "", err
	}
	return t.runJSON(ctx, req.GetString("url", ""), query, 0)
}

func (t *Tools) runJSON(ctx context.Context, url, query string, limit int) (string, error) {
	var out string
	err := t.runQuery(ctx, url, query, func(rows *sql.Rows) error {
		var err error
		out, err = t.rows.JSON(rows, limit)
		return err
	})
	return out, err
}

// runQuery executes a caller-supplied statement. In read-only mode the
// statement must pass the dialect's guard before a connection is opened.
func (t *Tools) runQuery(ctx context.Context, url, query string, fn func(*sql.Rows) error) error {
	h, err := t.conns.Resolve(url)
	if err != nil {
		return err
	}
	if t.cfg.Database.ReadOnly {
		if err := h.Dialect.ValidateQuery(query); err != nil {
			return fmt.Errorf("query rejected: %w", err)
		}
	}

	if err := h.Open(ctx); err != nil {
		return err
	}
	defer h.Close()

	rows, err := h.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	return fn(rows)
}
