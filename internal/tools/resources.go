package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/shakram02/go-mcp-sql-tools/internal/catalog"
	"github.com/shakram02/go-mcp-sql-tools/internal/conn"
)

const tableResourceScheme = "table://"

// ResourceTemplates exposes every table of the default database as a JSON
// resource holding its description.
func (t *Tools) ResourceTemplates() []server.ServerResourceTemplate {
	return []server.ServerResourceTemplate{
		{
			Template: mcp.NewResourceTemplate(tableResourceScheme+"{schema}/{table}/schema", "Table description",
				mcp.WithTemplateDescription("Columns, primary keys and foreign keys of a table in the default database"),
				mcp.WithTemplateMIMEType("application/json"),
			),
			Handler: t.readTableResource,
		},
	}
}

func (t *Tools) readTableResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	schema, table, err := parseTableURI(uri)
	if err != nil {
		return nil, err
	}

	var desc *catalog.TableDescription
	err = t.conns.With(ctx, "", func(h *conn.Handle) error {
		var err error
		desc, err = catalog.Describe(ctx, h, h.Dialect, schema, table)
		return err
	})
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal table description: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)},
	}, nil
}

// parseTableURI splits table://<schema>/<table>/schema. Segments are
// path-unescaped.
func parseTableURI(uri string) (schema, table string, err error) {
	if !strings.HasPrefix(uri, tableResourceScheme) {
		return "", "", fmt.Errorf("invalid resource URI: must start with %s", tableResourceScheme)
	}
	parts := strings.Split(strings.TrimPrefix(uri, tableResourceScheme), "/")
	if len(parts) != 3 || parts[2] != "schema" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid resource URI format: expected %s<schema>/<table>/schema", tableResourceScheme)
	}
	if schema, err = url.PathUnescape(parts[0]); err != nil {
		return "", "", fmt.Errorf("invalid schema in resource URI: %w", err)
	}
	if table, err = url.PathUnescape(parts[1]); err != nil {
		return "", "", fmt.Errorf("invalid table in resource URI: %w", err)
	}
	return schema, table, nil
}
