package tools

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"modernc.org/sqlite"

	"github.com/shakram02/go-mcp-sql-tools/internal/catalog"
	"github.com/shakram02/go-mcp-sql-tools/internal/config"
	"github.com/shakram02/go-mcp-sql-tools/internal/conn"
)

func init() {
	joinArgs := func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprint(a)
		}
		return strings.Join(parts, "|"), nil
	}
	sqlite.MustRegisterScalarFunction("tools_test_spasql", 3, joinArgs)
	sqlite.MustRegisterScalarFunction("tools_test_sparql", 3, joinArgs)
	sqlite.MustRegisterScalarFunction("tools_test_assistant", 2, joinArgs)
}

const fixture = `
	CREATE TABLE customers (
		id    INTEGER PRIMARY KEY,
		name  TEXT NOT NULL,
		notes TEXT
	);
	CREATE TABLE Orders (
		id          INTEGER PRIMARY KEY,
		customer_id INTEGER REFERENCES customers(id),
		total       REAL
	);
	INSERT INTO customers (id, name, notes) VALUES
		(1, 'Ada Lovelace', 'Wrote the first published algorithm for a machine'),
		(2, 'Grace Hopper', NULL),
		(3, 'Alan Turing', 'short'),
		(4, 'Edsger Dijkstra', 'Shortest paths'),
		(5, 'Barbara Liskov', 'Substitution');
`

func newTestDSN(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tools.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(fixture)
	require.NoError(t, err)
	return "sqlite://" + path
}

func testConfig(dsn string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Database.DSN = dsn
	cfg.Procedures = config.ProceduresConfig{
		SPASQL:    "tools_test_spasql",
		SPARQL:    "tools_test_sparql",
		Assistant: "tools_test_assistant",
	}
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *server.MCPServer {
	t.Helper()
	return NewServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), "test", "0.0.0")
}

func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	result, err := callToolCtx(context.Background(), t, srv, name, args)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func callToolCtx(ctx context.Context, t *testing.T, srv *server.MCPServer, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t.Helper()
	tool := srv.GetTool(name)
	require.NotNil(t, tool, "tool %s not registered", name)

	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return tool.Handler(ctx, req)
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func decodeRows(t *testing.T, text string) []map[string]any {
	t.Helper()
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &rows), text)
	return rows
}

func TestRegisteredTools(t *testing.T) {
	srv := newTestServer(t, testConfig(""))

	var names []string
	for name := range srv.ListTools() {
		names = append(names, name)
	}
	sort.Strings(names)

	assert.Equal(t, []string{
		"describe_table",
		"execute_query",
		"execute_query_md",
		"filter_table_names",
		"get_schemas",
		"get_tables",
		"query_database",
		"sparql_get_entity_types",
		"sparql_get_entity_types_detailed",
		"sparql_get_entity_types_samples",
		"sparql_get_ontologies",
		"sparql_query",
		"spasql_query",
		"support_ai",
	}, names)
}

func TestGetSchemas(t *testing.T) {
	srv := newTestServer(t, testConfig(newTestDSN(t)))

	result := callTool(t, srv, "get_schemas", nil)
	require.False(t, result.IsError, resultText(t, result))

	var schemas []string
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &schemas))
	assert.Contains(t, schemas, "main")
	assert.True(t, sort.StringsAreSorted(schemas))
}

func TestGetTables(t *testing.T) {
	srv := newTestServer(t, testConfig(newTestDSN(t)))

	result := callTool(t, srv, "get_tables", map[string]any{"schema": "main"})
	require.False(t, result.IsError, resultText(t, result))

	var tables []catalog.TableRef
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &tables))
	assert.Equal(t, []catalog.TableRef{
		{Schema: "main", Name: "Orders"},
		{Schema: "main", Name: "customers"},
	}, tables)
}

func TestFilterTableNames(t *testing.T) {
	srv := newTestServer(t, testConfig(newTestDSN(t)))

	for _, q := range []string{"order", "ORDER", "rDe"} {
		result := callTool(t, srv, "filter_table_names", map[string]any{"q": q})
		require.False(t, result.IsError, resultText(t, result))

		var tables []catalog.TableRef
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &tables))
		require.Len(t, tables, 1, q)
		assert.Equal(t, "Orders", tables[0].Name)
	}
}

func TestBlankRequiredArgument(t *testing.T) {
	srv := newTestServer(t, testConfig(newTestDSN(t)))

	cases := []struct {
		tool string
		args map[string]any
	}{
		{"filter_table_names", map[string]any{"q": ""}},
		{"filter_table_names", nil},
		{"describe_table", map[string]any{"table": "   "}},
		{"execute_query", map[string]any{"query": ""}},
		{"execute_query_md", nil},
		{"query_database", map[string]any{"query": "\n"}},
		{"spasql_query", map[string]any{"query": ""}},
		{"sparql_query", nil},
		{"support_ai", map[string]any{"prompt": ""}},
	}
	for _, tc := range cases {
		t.Run(tc.tool, func(t *testing.T) {
			result := callTool(t, srv, tc.tool, tc.args)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), ErrMissingArgument.Error())
		})
	}
}

func TestDescribeTable(t *testing.T) {
	srv := newTestServer(t, testConfig(newTestDSN(t)))

	result := callTool(t, srv, "describe_table", map[string]any{"table": "Orders"})
	require.False(t, result.IsError, resultText(t, result))

	var desc catalog.TableDescription
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &desc))
	assert.Equal(t, "main", desc.Schema)
	assert.Equal(t, "Orders", desc.Name)
	require.Len(t, desc.Columns, 3)
	assert.Equal(t, []string{"id"}, desc.PrimaryKeys)
	for _, c := range desc.Columns {
		assert.Equal(t, c.Name == "id", c.PrimaryKey, c.Name)
	}
	require.Len(t, desc.ForeignKeys, 1)
	assert.Equal(t, "customers", desc.ForeignKeys[0].ReferredTable)
}

func TestDescribeTable_Missing(t *testing.T) {
	srv := newTestServer(t, testConfig(newTestDSN(t)))

	result := callTool(t, srv, "describe_table", map[string]any{"table": "ghost"})
	require.False(t, result.IsError, resultText(t, result))

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &raw))
	assert.Equal(t, "ghost", raw["name"])
	assert.Equal(t, []any{}, raw["columns"])
	assert.Equal(t, []any{}, raw["primary_keys"])
	assert.Equal(t, []any{}, raw["foreign_keys"])
}

func TestExecuteQuery_RowCap(t *testing.T) {
	srv := newTestServer(t, testConfig(newTestDSN(t)))

	result := callTool(t, srv, "execute_query", map[string]any{
		"query":    "SELECT id, name FROM customers ORDER BY id",
		"max_rows": float64(2),
	})
	require.False(t, result.IsError, resultText(t, result))

	rows := decodeRows(t, resultText(t, result))
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0]["id"])
	assert.Equal(t, "2", rows[1]["id"])
}

func TestExecuteQuery_DefaultCapAndUncappedVariant(t *testing.T) {
	srv := newTestServer(t, testConfig(newTestDSN(t)))
	series := "WITH RECURSIVE n(i) AS (SELECT 1 UNION ALL SELECT i + 1 FROM n WHERE i < 150) SELECT i FROM n"

	result := callTool(t, srv, "execute_query", map[string]any{"query": series})
	require.False(t, result.IsError, resultText(t, result))
	assert.Len(t, decodeRows(t, resultText(t, result)), DefaultMaxRows)

	result = callTool(t, srv, "query_database", map[string]any{"query": series})
	require.False(t, result.IsError, resultText(t, result))
	rows := decodeRows(t, resultText(t, result))
	require.Len(t, rows, 150)
	assert.Equal(t, "150", rows[149]["i"])
}

func TestExecuteQuery_Truncation(t *testing.T) {
	cfg := testConfig(newTestDSN(t))
	cfg.Database.MaxLongData = 10
	srv := newTestServer(t, cfg)

	result := callTool(t, srv, "execute_query", map[string]any{"query": "SELECT name, notes FROM customers ORDER BY id"})
	require.False(t, result.IsError, resultText(t, result))

	for _, row := range decodeRows(t, resultText(t, result)) {
		for col, v := range row {
			if v == nil {
				continue
			}
			s := v.(string)
			assert.LessOrEqual(t, utf8.RuneCountInString(s), 10, col)
		}
	}
	rows := decodeRows(t, resultText(t, result))
	assert.Equal(t, "Ada Lovela", rows[0]["name"])
	assert.Equal(t, "Wrote the ", rows[0]["notes"])
	assert.Nil(t, rows[1]["notes"])
	assert.Equal(t, "short", rows[2]["notes"])
}

func TestExecuteQueryMarkdown(t *testing.T) {
	srv := newTestServer(t, testConfig(newTestDSN(t)))

	result := callTool(t, srv, "execute_query_md", map[string]any{
		"query":    "SELECT id, notes FROM customers ORDER BY id",
		"max_rows": 2,
	})
	require.False(t, result.IsError, resultText(t, result))

	want := "| id | notes |\n" +
		"| --- | --- |\n" +
		"| 1 | Wrote the first published algorithm for a machine |\n" +
		"| 2 |  |\n"
	assert.Equal(t, want, resultText(t, result))
}

func TestExecuteQuery_DriverError(t *testing.T) {
	srv := newTestServer(t, testConfig(newTestDSN(t)))

	result := callTool(t, srv, "execute_query", map[string]any{"query": "SELECT * FROM no_such_table"})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no_such_table")
}

func TestConnectionOverride(t *testing.T) {
	srv := newTestServer(t, testConfig(""))

	result := callTool(t, srv, "execute_query", map[string]any{"query": "SELECT 1 AS one"})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), conn.ErrNoConnectionString.Error())

	result = callTool(t, srv, "execute_query", map[string]any{
		"query": "SELECT COUNT(*) AS n FROM customers",
		"url":   newTestDSN(t),
	})
	require.False(t, result.IsError, resultText(t, result))
	assert.Equal(t, `[{"n":"5"}]`, resultText(t, result))
}

func TestReadOnlyMode(t *testing.T) {
	cfg := testConfig(newTestDSN(t))
	cfg.Database.ReadOnly = true
	srv := newTestServer(t, cfg)

	for _, tool := range []string{"execute_query", "execute_query_md", "query_database"} {
		result := callTool(t, srv, tool, map[string]any{"query": "DELETE FROM customers"})
		assert.True(t, result.IsError, tool)
		assert.Contains(t, resultText(t, result), "query rejected", tool)
	}

	result := callTool(t, srv, "execute_query", map[string]any{"query": "SELECT COUNT(*) AS n FROM customers"})
	require.False(t, result.IsError, resultText(t, result))
	assert.Equal(t, `[{"n":"5"}]`, resultText(t, result))
}

func TestProcedureTools(t *testing.T) {
	srv := newTestServer(t, testConfig(newTestDSN(t)))

	tests := []struct {
		tool string
		args map[string]any
		want string
	}{
		{"spasql_query", map[string]any{"query": "SPARQL SELECT * WHERE { ?s ?p ?o }"}, "SPARQL SELECT * WHERE { ?s ?p ?o }|20|300000"},
		{"spasql_query", map[string]any{"query": "q", "max_rows": 5, "timeout": 1000}, "q|5|1000"},
		{"sparql_query", map[string]any{"query": "SELECT * WHERE { ?s ?p ?o }"}, "SELECT * WHERE { ?s ?p ?o }|json|30000"},
		{"sparql_query", map[string]any{"query": "q", "format": "text/csv", "timeout": float64(10)}, "q|text/csv|10"},
		{"support_ai", map[string]any{"prompt": "How do I create a graph?"}, "How do I create a graph?|none"},
		{"support_ai", map[string]any{"prompt": "hi", "api_key": "sk-test"}, "hi|sk-test"},
	}
	for _, tc := range tests {
		t.Run(tc.tool, func(t *testing.T) {
			result := callTool(t, srv, tc.tool, tc.args)
			require.False(t, result.IsError, resultText(t, result))
			assert.Equal(t, tc.want, resultText(t, result))
		})
	}
}

func TestProcedureTools_ConfiguredAPIKey(t *testing.T) {
	cfg := testConfig(newTestDSN(t))
	cfg.Assistant.APIKey = "sk-configured"
	srv := newTestServer(t, cfg)

	result := callTool(t, srv, "support_ai", map[string]any{"prompt": "hello", "api_key": "  "})
	require.False(t, result.IsError, resultText(t, result))
	assert.Equal(t, "hello|sk-configured", resultText(t, result))
}

func TestCancellationIsNotAnEnvelope(t *testing.T) {
	srv := newTestServer(t, testConfig(newTestDSN(t)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, tool := range []string{"execute_query", "get_tables", "spasql_query"} {
		result, err := callToolCtx(ctx, t, srv, tool, map[string]any{"query": "SELECT 1"})
		assert.ErrorIs(t, err, context.Canceled, tool)
		assert.Nil(t, result, tool)
	}
}

func TestHandleMessage(t *testing.T) {
	srv := newTestServer(t, testConfig(newTestDSN(t)))
	msg := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"execute_query","arguments":{"query":"SELECT name FROM customers WHERE id = 3"}}}`)

	resp, ok := srv.HandleMessage(context.Background(), msg).(mcp.JSONRPCResponse)
	require.True(t, ok)
	result, ok := resp.Result.(*mcp.CallToolResult)
	require.True(t, ok)
	assert.False(t, result.IsError)
	assert.Equal(t, `[{"name":"Alan Turing"}]`, resultText(t, result))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, isRPCError := srv.HandleMessage(ctx, msg).(mcp.JSONRPCError)
	assert.True(t, isRPCError, "cancellation should surface as a JSON-RPC error")
}

func TestRenderGraph(t *testing.T) {
	got, err := renderGraph(entityTypesQuery, "")
	require.NoError(t, err)
	assert.Contains(t, got, "GRAPH ?g {")
	assert.NotContains(t, got, graphSlot)

	got, err = renderGraph(ontologiesQuery, " http://example.org/graph ")
	require.NoError(t, err)
	assert.Contains(t, got, "GRAPH <http://example.org/graph> {")

	for _, bad := range []string{"http://x> } DROP", "a b", "urn:{x}"} {
		_, err := renderGraph(entityTypesQuery, bad)
		assert.Error(t, err, bad)
	}
}

func TestSPARQLTemplates_PassReadOnlyGuard(t *testing.T) {
	cfg := testConfig(newTestDSN(t))
	cfg.Database.ReadOnly = true
	tools := New(cfg, nil)

	for _, query := range []string{entityTypesQuery, entityTypesDetailedQuery, entityTypesSamplesQuery, ontologiesQuery} {
		stmt, err := renderGraph(query, "urn:demo")
		require.NoError(t, err)
		h, err := tools.conns.Resolve("postgres://localhost/demo")
		require.NoError(t, err)
		assert.NoError(t, h.Dialect.ValidateQuery(stmt))
	}
}

func TestSPARQLTemplateTools_Delegate(t *testing.T) {
	srv := newTestServer(t, testConfig(newTestDSN(t)))

	// SQLite cannot parse SPASQL, so the delegated query fails with an
	// error envelope rather than a Go error.
	result := callTool(t, srv, "sparql_get_entity_types", map[string]any{"graph": "urn:demo"})
	assert.True(t, result.IsError)

	result = callTool(t, srv, "sparql_get_ontologies", map[string]any{"graph": "not a graph"})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid graph IRI")
}

func TestRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	srv := NewServer(testConfig(newTestDSN(t)), log, "test", "0.0.0")

	callTool(t, srv, "get_tables", nil)
	callTool(t, srv, "execute_query", map[string]any{"query": ""})

	out := buf.String()
	assert.Contains(t, out, "tool=get_tables")
	assert.Contains(t, out, `msg="tool call completed"`)
	assert.Contains(t, out, `msg="tool call failed"`)
	assert.Contains(t, out, "request_id=")
}

func TestParseTableURI(t *testing.T) {
	schema, table, err := parseTableURI("table://main/order%20items/schema")
	require.NoError(t, err)
	assert.Equal(t, "main", schema)
	assert.Equal(t, "order items", table)

	for _, bad := range []string{
		"mysql://db/users/schema",
		"table://main/users",
		"table://main//schema",
		"table://main/users/columns",
	} {
		_, _, err := parseTableURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestReadTableResource(t *testing.T) {
	srv := newTestServer(t, testConfig(newTestDSN(t)))
	msg := []byte(`{"jsonrpc":"2.0","id":7,"method":"resources/read","params":{"uri":"table://main/customers/schema"}}`)

	resp, ok := srv.HandleMessage(context.Background(), msg).(mcp.JSONRPCResponse)
	require.True(t, ok)
	result, ok := resp.Result.(mcp.ReadResourceResult)
	if !ok {
		ptr, isPtr := resp.Result.(*mcp.ReadResourceResult)
		require.True(t, isPtr, "unexpected result type %T", resp.Result)
		result = *ptr
	}
	require.Len(t, result.Contents, 1)
	text, ok := result.Contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "application/json", text.MIMEType)

	var desc catalog.TableDescription
	require.NoError(t, json.Unmarshal([]byte(text.Text), &desc))
	assert.Equal(t, "customers", desc.Name)
	assert.Equal(t, []string{"id"}, desc.PrimaryKeys)
	assert.Len(t, desc.Columns, 3)
}
