package dialect

import (
	_ "github.com/go-sql-driver/mysql"

	"github.com/shakram02/go-mcp-sql-tools/internal/catalog"
)

// MySQL is the MySQL/MariaDB dialect, served by go-sql-driver/mysql.
var MySQL Dialect = &mysqlDialect{
	guard: newGuard(
		lexRules{hashComments: true, backslashEscapes: true, doubleQuoteText: true},
		[]string{"CALL", "EXEC", "EXECUTE", "REPLACE", "LOAD", "HANDLER", "RENAME"},
		patternRule(`(?i)\bINTO\s+OUTFILE\b`, "INTO OUTFILE"),
		patternRule(`(?i)\bINTO\s+DUMPFILE\b`, "INTO DUMPFILE"),
		patternRule(`(?i)\bINTO\s+@`, "INTO @variable"),
		functionRule("LOAD_FILE"),
		functionRule("SLEEP"),
		functionRule("BENCHMARK"),
		functionRule("GET_LOCK"),
		functionRule("RELEASE_LOCK"),
		functionRule("IS_FREE_LOCK"),
		functionRule("IS_USED_LOCK"),
		functionRule("WAIT_FOR_EXECUTED_GTID_SET"),
		functionRule("WAIT_UNTIL_SQL_THREAD_AFTER_GTIDS"),
		functionRule("MASTER_POS_WAIT"),
		functionRule("SOURCE_POS_WAIT"),
	),
}

type mysqlDialect struct {
	guard *Guard
}

func (d *mysqlDialect) Name() string              { return "mysql" }
func (d *mysqlDialect) DriverName() string        { return "mysql" }
func (d *mysqlDialect) Placeholder(int) string    { return "?" }
func (d *mysqlDialect) ReadOnlyStatement() string { return "SET SESSION TRANSACTION READ ONLY" }

func (d *mysqlDialect) ValidateQuery(sql string) error {
	return d.guard.Validate(sql)
}

func (d *mysqlDialect) SchemasQuery() string {
	return `SELECT schema_name FROM information_schema.schemata ORDER BY schema_name`
}

func (d *mysqlDialect) TablesQuery(schema string) (string, []any) {
	if schema == "" {
		return `SELECT table_catalog, table_schema, table_name
			FROM information_schema.tables
			WHERE table_type = 'BASE TABLE'
			  AND table_schema NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
			ORDER BY table_schema, table_name`, nil
	}
	return `SELECT table_catalog, table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE' AND table_schema = ?
		ORDER BY table_name`, []any{schema}
}

func (d *mysqlDialect) LookupTableQuery(schemaPattern, table string) (string, []any) {
	return `SELECT table_catalog, table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema LIKE ? AND table_name = ?
		ORDER BY table_schema`, []any{schemaPattern, table}
}

// MySQL reports catalog "def" for every table, so only schema and name
// narrow the catalog queries below.

func (d *mysqlDialect) ColumnsQuery(ref catalog.TableRef) (string, []any) {
	return `SELECT column_name,
			data_type,
			COALESCE(character_maximum_length, numeric_precision, datetime_precision),
			CASE WHEN numeric_precision IS NOT NULL THEN 10 END,
			CASE is_nullable WHEN 'YES' THEN 1 ELSE 0 END,
			column_default
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`, []any{ref.Schema, ref.Name}
}

func (d *mysqlDialect) PrimaryKeysQuery(ref catalog.TableRef) (string, []any) {
	return `SELECT column_name
		FROM information_schema.key_column_usage
		WHERE constraint_name = 'PRIMARY' AND table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`, []any{ref.Schema, ref.Name}
}

func (d *mysqlDialect) ForeignKeysQuery(ref catalog.TableRef) (string, []any) {
	return `SELECT constraint_name,
			column_name,
			table_catalog,
			referenced_table_schema,
			referenced_table_name,
			referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ? AND table_name = ? AND referenced_table_name IS NOT NULL
		ORDER BY constraint_name, ordinal_position`, []any{ref.Schema, ref.Name}
}
