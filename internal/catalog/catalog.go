// Package catalog reads schema metadata through the catalog queries a
// dialect supplies and assembles it into table descriptions.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Nullability codes returned by every Source column query. They follow the
// ODBC SQLColumns NULLABLE column: only Nullable means the column accepts NULL.
const (
	NoNulls         = 0
	Nullable        = 1
	NullableUnknown = 2
)

// Source supplies dialect-specific catalog SQL. Result shapes are fixed:
//
//	SchemasQuery:     schema_name
//	TablesQuery:      catalog, schema, name
//	LookupTableQuery: catalog, schema, name
//	ColumnsQuery:     name, type, size, radix, nullable code, default
//	PrimaryKeysQuery: column name, in key order
//	ForeignKeysQuery: constraint, column, ref catalog, ref schema, ref table, ref column
type Source interface {
	SchemasQuery() string
	TablesQuery(schema string) (string, []any)
	LookupTableQuery(schemaPattern, table string) (string, []any)
	ColumnsQuery(ref TableRef) (string, []any)
	PrimaryKeysQuery(ref TableRef) (string, []any)
	ForeignKeysQuery(ref TableRef) (string, []any)
}

// Querier is satisfied by *sql.Conn, *sql.DB and conn.Handle.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type TableRef struct {
	Catalog string `json:"catalog"`
	Schema  string `json:"schema"`
	Name    string `json:"name"`
}

type Column struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Size       *int64  `json:"column_size"`
	Radix      *int64  `json:"num_prec_radix"`
	Nullable   bool    `json:"nullable"`
	Default    *string `json:"default"`
	PrimaryKey bool    `json:"primary_key"`
}

// ForeignKey describes one catalog row. Composite keys yield one ForeignKey
// per column, each with a single constrained and referred column.
type ForeignKey struct {
	Name               string   `json:"name"`
	ConstrainedColumns []string `json:"constrained_columns"`
	ReferredCatalog    string   `json:"referred_cat"`
	ReferredSchema     string   `json:"referred_schem"`
	ReferredTable      string   `json:"referred_table"`
	ReferredColumns    []string `json:"referred_columns"`
}

type TableDescription struct {
	TableRef
	Columns     []Column     `json:"columns"`
	PrimaryKeys []string     `json:"primary_keys"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

// Schemas lists schema names in the order the catalog query returns them.
func Schemas(ctx context.Context, q Querier, src Source) ([]string, error) {
	rows, err := q.QueryContext(ctx, src.SchemasQuery())
	if err != nil {
		return nil, fmt.Errorf("listing schemas: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning schema: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Tables lists tables in schema, or in every user schema when schema is blank.
func Tables(ctx context.Context, q Querier, src Source, schema string) ([]TableRef, error) {
	query, args := src.TablesQuery(strings.TrimSpace(schema))
	return queryTableRefs(ctx, q, query, args)
}

// FilterTables returns the tables of schema whose name contains substr,
// ignoring case.
func FilterTables(ctx context.Context, q Querier, src Source, schema, substr string) ([]TableRef, error) {
	all, err := Tables(ctx, q, src, schema)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(substr)
	matched := []TableRef{}
	for _, t := range all {
		if strings.Contains(strings.ToLower(t.Name), needle) {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

// Describe assembles the description of one table. A table that cannot be
// found yields empty column and key lists rather than an error.
func Describe(ctx context.Context, q Querier, src Source, schema, table string) (*TableDescription, error) {
	pattern := strings.TrimSpace(schema)
	if pattern == "" {
		pattern = "%"
	}

	desc := &TableDescription{
		TableRef:    TableRef{Schema: strings.TrimSpace(schema), Name: table},
		Columns:     []Column{},
		PrimaryKeys: []string{},
		ForeignKeys: []ForeignKey{},
	}

	query, args := src.LookupTableQuery(pattern, table)
	found, err := queryTableRefs(ctx, q, query, args)
	if err != nil {
		return nil, fmt.Errorf("looking up table %q: %w", table, err)
	}
	if len(found) == 0 {
		return desc, nil
	}
	desc.TableRef = found[0]

	if desc.Columns, err = columns(ctx, q, src, desc.TableRef); err != nil {
		return nil, err
	}
	if desc.PrimaryKeys, err = primaryKeys(ctx, q, src, desc.TableRef); err != nil {
		return nil, err
	}
	if desc.ForeignKeys, err = foreignKeys(ctx, q, src, desc.TableRef); err != nil {
		return nil, err
	}

	pk := make(map[string]bool, len(desc.PrimaryKeys))
	for _, name := range desc.PrimaryKeys {
		pk[name] = true
	}
	for i := range desc.Columns {
		desc.Columns[i].PrimaryKey = pk[desc.Columns[i].Name]
	}
	return desc, nil
}

func queryTableRefs(ctx context.Context, q Querier, query string, args []any) ([]TableRef, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	refs := []TableRef{}
	for rows.Next() {
		var cat, schem sql.NullString
		var name string
		if err := rows.Scan(&cat, &schem, &name); err != nil {
			return nil, fmt.Errorf("scanning table: %w", err)
		}
		refs = append(refs, TableRef{Catalog: cat.String, Schema: schem.String, Name: name})
	}
	return refs, rows.Err()
}

func columns(ctx context.Context, q Querier, src Source, ref TableRef) ([]Column, error) {
	query, args := src.ColumnsQuery(ref)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	defer rows.Close()

	cols := []Column{}
	for rows.Next() {
		var (
			name, typ   string
			size, radix sql.NullInt64
			nullable    sql.NullInt64
			dflt        sql.NullString
		)
		if err := rows.Scan(&name, &typ, &size, &radix, &nullable, &dflt); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		col := Column{
			Name:     name,
			Type:     typ,
			Nullable: nullable.Valid && nullable.Int64 == Nullable,
		}
		if size.Valid {
			col.Size = &size.Int64
		}
		if radix.Valid {
			col.Radix = &radix.Int64
		}
		if dflt.Valid {
			col.Default = &dflt.String
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func primaryKeys(ctx context.Context, q Querier, src Source, ref TableRef) ([]string, error) {
	query, args := src.PrimaryKeysQuery(ref)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading primary keys: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning primary key: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func foreignKeys(ctx context.Context, q Querier, src Source, ref TableRef) ([]ForeignKey, error) {
	query, args := src.ForeignKeysQuery(ref)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading foreign keys: %w", err)
	}
	defer rows.Close()

	fks := []ForeignKey{}
	for rows.Next() {
		var (
			name, column               string
			refCat, refSchem, refTable sql.NullString
			refColumn                  sql.NullString
		)
		if err := rows.Scan(&name, &column, &refCat, &refSchem, &refTable, &refColumn); err != nil {
			return nil, fmt.Errorf("scanning foreign key: %w", err)
		}
		fks = append(fks, ForeignKey{
			Name:               name,
			ConstrainedColumns: []string{column},
			ReferredCatalog:    refCat.String,
			ReferredSchema:     refSchem.String,
			ReferredTable:      refTable.String,
			ReferredColumns:    []string{refColumn.String},
		})
	}
	return fks, rows.Err()
}
