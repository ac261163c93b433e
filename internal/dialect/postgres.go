package dialect

import (
	"strconv"

	_ "github.com/lib/pq"

	"github.com/shakram02/go-mcp-sql-tools/internal/catalog"
)

// Postgres is the PostgreSQL dialect, served by lib/pq.
var Postgres Dialect = &postgresDialect{
	guard: newGuard(
		lexRules{dollarQuotes: true},
		[]string{"CALL", "EXECUTE", "COPY", "LISTEN", "NOTIFY", "PREPARE", "DEALLOCATE", "VACUUM", "REINDEX", "CLUSTER"},
		patternRule(`(?i)\bCOPY\s+.*\bTO\b`, "COPY ... TO"),
		patternRule(`(?i)\bCOPY\s+.*\bFROM\b`, "COPY ... FROM"),
		functionRule("pg_read_file"),
		functionRule("pg_read_binary_file"),
		functionRule("pg_ls_dir"),
		functionRule("lo_import"),
		functionRule("lo_export"),
		functionRule("pg_sleep"),
		functionRule("pg_sleep_for"),
		functionRule("pg_sleep_until"),
		functionRule("pg_advisory_lock"),
		functionRule("pg_advisory_xact_lock"),
		functionRule("pg_try_advisory_lock"),
	),
}

type postgresDialect struct {
	guard *Guard
}

func (d *postgresDialect) Name() string       { return "postgres" }
func (d *postgresDialect) DriverName() string { return "postgres" }

func (d *postgresDialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (d *postgresDialect) ValidateQuery(sql string) error {
	return d.guard.Validate(sql)
}

func (d *postgresDialect) ReadOnlyStatement() string {
	return "SET SESSION CHARACTERISTICS AS TRANSACTION READ ONLY"
}

func (d *postgresDialect) SchemasQuery() string {
	return `SELECT schema_name FROM information_schema.schemata ORDER BY schema_name`
}

func (d *postgresDialect) TablesQuery(schema string) (string, []any) {
	if schema == "" {
		return `SELECT table_catalog, table_schema, table_name
			FROM information_schema.tables
			WHERE table_type = 'BASE TABLE'
			  AND table_schema NOT IN ('pg_catalog', 'information_schema')
			ORDER BY table_schema, table_name`, nil
	}
	return `SELECT table_catalog, table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE' AND table_schema = $1
		ORDER BY table_name`, []any{schema}
}

func (d *postgresDialect) LookupTableQuery(schemaPattern, table string) (string, []any) {
	return `SELECT table_catalog, table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema LIKE $1 AND table_name = $2
		ORDER BY table_schema`, []any{schemaPattern, table}
}

func (d *postgresDialect) ColumnsQuery(ref catalog.TableRef) (string, []any) {
	return `SELECT column_name,
			data_type,
			COALESCE(character_maximum_length, numeric_precision, datetime_precision),
			numeric_precision_radix,
			CASE is_nullable WHEN 'YES' THEN 1 ELSE 0 END,
			column_default
		FROM information_schema.columns
		WHERE table_catalog = $1 AND table_schema = $2 AND table_name = $3
		ORDER BY ordinal_position`, []any{ref.Catalog, ref.Schema, ref.Name}
}

func (d *postgresDialect) PrimaryKeysQuery(ref catalog.TableRef) (string, []any) {
	return `SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_catalog = tc.constraint_catalog
		 AND kcu.constraint_schema = tc.constraint_schema
		 AND kcu.constraint_name = tc.constraint_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_catalog = $1 AND tc.table_schema = $2 AND tc.table_name = $3
		ORDER BY kcu.ordinal_position`, []any{ref.Catalog, ref.Schema, ref.Name}
}

func (d *postgresDialect) ForeignKeysQuery(ref catalog.TableRef) (string, []any) {
	return `SELECT kcu.constraint_name,
			kcu.column_name,
			ccu.table_catalog,
			ccu.table_schema,
			ccu.table_name,
			ccu.column_name
		FROM information_schema.referential_constraints rc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_catalog = rc.constraint_catalog
		 AND kcu.constraint_schema = rc.constraint_schema
		 AND kcu.constraint_name = rc.constraint_name
		JOIN information_schema.key_column_usage ccu
		  ON ccu.constraint_catalog = rc.unique_constraint_catalog
		 AND ccu.constraint_schema = rc.unique_constraint_schema
		 AND ccu.constraint_name = rc.unique_constraint_name
		 AND ccu.ordinal_position = kcu.position_in_unique_constraint
		WHERE kcu.table_catalog = $1 AND kcu.table_schema = $2 AND kcu.table_name = $3
		ORDER BY kcu.constraint_name, kcu.ordinal_position`, []any{ref.Catalog, ref.Schema, ref.Name}
}
