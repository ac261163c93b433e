package dialect

import (
	_ "modernc.org/sqlite"

	"github.com/shakram02/go-mcp-sql-tools/internal/catalog"
)

// SQLite is the SQLite dialect, served by modernc.org/sqlite. Each attached
// database is a schema; there is no catalog level.
var SQLite Dialect = &sqliteDialect{
	guard: newGuard(
		lexRules{bracketIdents: true},
		[]string{"REPLACE", "ATTACH", "DETACH", "REINDEX", "VACUUM"},
		functionRule("load_extension"),
		functionRule("writefile"),
		functionRule("edit"),
		functionRule("fts3_tokenizer"),
		cleanedRule(`(?i)\bPRAGMA\s+\w+\s*=`, "PRAGMA writes are not allowed"),
	),
}

type sqliteDialect struct {
	guard *Guard
}

func (d *sqliteDialect) Name() string              { return "sqlite" }
func (d *sqliteDialect) DriverName() string        { return "sqlite" }
func (d *sqliteDialect) Placeholder(int) string    { return "?" }
func (d *sqliteDialect) ReadOnlyStatement() string { return "PRAGMA query_only = ON" }

func (d *sqliteDialect) ValidateQuery(sql string) error {
	return d.guard.Validate(sql)
}

func (d *sqliteDialect) SchemasQuery() string {
	return `SELECT name FROM pragma_database_list ORDER BY name`
}

func (d *sqliteDialect) TablesQuery(schema string) (string, []any) {
	if schema == "" {
		return `SELECT NULL, schema, name
			FROM pragma_table_list
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
			ORDER BY schema, name`, nil
	}
	return `SELECT NULL, schema, name
		FROM pragma_table_list
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND schema = ?
		ORDER BY name`, []any{schema}
}

func (d *sqliteDialect) LookupTableQuery(schemaPattern, table string) (string, []any) {
	return `SELECT NULL, schema, name
		FROM pragma_table_list
		WHERE type IN ('table', 'view') AND schema LIKE ? AND name = ?
		ORDER BY schema <> 'main', schema`, []any{schemaPattern, table}
}

// Size is the first number inside the declared type's parentheses, as in
// VARCHAR(20) or DECIMAL(10,2). Radix is 10 for numeric affinities.
func (d *sqliteDialect) ColumnsQuery(ref catalog.TableRef) (string, []any) {
	return `SELECT name,
			type,
			CASE WHEN instr(type, '(') > 0
				THEN CAST(substr(type, instr(type, '(') + 1) AS INTEGER) END,
			CASE WHEN upper(type) LIKE '%INT%'
				OR upper(type) LIKE '%REAL%'
				OR upper(type) LIKE '%FLOA%'
				OR upper(type) LIKE '%DOUB%'
				OR upper(type) LIKE '%NUM%'
				OR upper(type) LIKE '%DEC%'
				THEN 10 END,
			CASE WHEN "notnull" = 1 THEN 0 ELSE 1 END,
			dflt_value
		FROM pragma_table_info(?, ?)
		ORDER BY cid`, []any{ref.Name, ref.Schema}
}

func (d *sqliteDialect) PrimaryKeysQuery(ref catalog.TableRef) (string, []any) {
	return `SELECT name FROM pragma_table_info(?, ?) WHERE pk > 0 ORDER BY pk`,
		[]any{ref.Name, ref.Schema}
}

// SQLite foreign keys are unnamed; they are reported as fk_<table>_<id>.
func (d *sqliteDialect) ForeignKeysQuery(ref catalog.TableRef) (string, []any) {
	return `SELECT 'fk_' || ? || '_' || id,
			"from",
			NULL,
			?,
			"table",
			"to"
		FROM pragma_foreign_key_list(?, ?)
		ORDER BY id, seq`, []any{ref.Name, ref.Schema, ref.Name, ref.Schema}
}
