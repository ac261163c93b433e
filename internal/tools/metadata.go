package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/shakram02/go-mcp-sql-tools/internal/catalog"
	"github.com/shakram02/go-mcp-sql-tools/internal/conn"
)

func (t *Tools) metadataTools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("get_schemas",
				mcp.WithDescription("Retrieve and return a list of all schema names from the connected database."),
				urlParam(),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithIdempotentHintAnnotation(true),
			),
			Handler: t.handle("get_schemas", t.getSchemas),
		},
		{
			Tool: mcp.NewTool("get_tables",
				mcp.WithDescription("Retrieve and return a list of tables, each with its catalog, schema and name."),
				schemaParam(),
				urlParam(),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithIdempotentHintAnnotation(true),
			),
			Handler: t.handle("get_tables", t.getTables),
		},
		{
			Tool: mcp.NewTool("describe_table",
				mcp.WithDescription("Describe a table: columns with type, size, nullability, default and primary key flag, plus primary and foreign keys."),
				mcp.WithString("table", mcp.Required(), mcp.Description("Name of the table to describe")),
				schemaParam(),
				urlParam(),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithIdempotentHintAnnotation(true),
			),
			Handler: t.handle("describe_table", t.describeTable),
		},
		{
			Tool: mcp.NewTool("filter_table_names",
				mcp.WithDescription("List tables whose name contains the given substring, ignoring case."),
				mcp.WithString("q", mcp.Required(), mcp.Description("Substring to look for in table names")),
				schemaParam(),
				urlParam(),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithIdempotentHintAnnotation(true),
			),
			Handler: t.handle("filter_table_names", t.filterTableNames),
		},
	}
}

func (t *Tools) getSchemas(ctx context.Context, req mcp.CallToolRequest) (string, error) {
	var schemas []string
	err := t.conns.With(ctx, req.GetString("url", ""), func(h *conn.Handle) error {
		var err error
		schemas, err = catalog.Schemas(ctx, h, h.Dialect)
		return err
	})
	if err != nil {
		return "", err
	}
	return marshal(schemas)
}

func (t *Tools) getTables(ctx context.Context, req mcp.CallToolRequest) (string, error) {
	var tables []catalog.TableRef
	err := t.conns.With(ctx, req.GetString("url", ""), func(h *conn.Handle) error {
		var err error
		tables, err = catalog.Tables(ctx, h, h.Dialect, req.GetString("schema", ""))
		return err
	})
	if err != nil {
		return "", err
	}
	return marshal(tables)
}

func (t *Tools) describeTable(ctx context.Context, req mcp.CallToolRequest) (string, error) {
	table, err := requireString(req, "table")
	if err != nil {
		return "", err
	}

	var desc *catalog.TableDescription
	err = t.conns.With(ctx, req.GetString("url", ""), func(h *conn.Handle) error {
		var err error
		desc, err = catalog.Describe(ctx, h, h.Dialect, req.GetString("schema", ""), table)
		return err
	})
	if err != nil {
		return "", err
	}
	return marshal(desc)
}

func (t *Tools) filterTableNames(ctx context.Context, req mcp.CallToolRequest) (string, error) {
	q, err := requireString(req, "q")
	if err != nil {
		return "", err
	}

	var tables []catalog.TableRef
	err = t.conns.With(ctx, req.GetString("url", ""), func(h *conn.Handle) error {
		var err error
		tables, err = catalog.FilterTables(ctx, h, h.Dialect, req.GetString("schema", ""), q)
		return err
	})
	if err != nil {
		return "", err
	}
	return marshal(tables)
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data), nil
}
