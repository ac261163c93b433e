// Package conn opens one dedicated database connection per tool call.
package conn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shakram02/go-mcp-sql-tools/internal/dialect"
)

// ErrNoConnectionString is returned when neither the call nor the
// configuration supplies a connection string.
var ErrNoConnectionString = errors.New("no connection string configured")

// Factory resolves per-call connection strings against the configured default.
type Factory struct {
	defaultDSN string
	readOnly   bool
}

func NewFactory(defaultDSN string, readOnly bool) *Factory {
	return &Factory{defaultDSN: strings.TrimSpace(defaultDSN), readOnly: readOnly}
}

// Handle is a resolved, not yet opened, connection target. It is used by a
// single tool call and must be closed by it.
type Handle struct {
	Dialect  dialect.Dialect
	dsn      string
	readOnly bool

	db   *sql.DB
	conn *sql.Conn
}

// Resolve picks override when it is non-blank and the default otherwise.
func (f *Factory) Resolve(override string) (*Handle, error) {
	dsn := strings.TrimSpace(override)
	if dsn == "" {
		dsn = f.defaultDSN
	}
	if dsn == "" {
		return nil, ErrNoConnectionString
	}

	d, driverDSN, err := dialect.Resolve(dsn)
	if err != nil {
		return nil, err
	}
	return &Handle{Dialect: d, dsn: driverDSN, readOnly: f.readOnly}, nil
}

// With resolves and opens a handle, runs fn, and closes the handle whatever
// fn returns.
func (f *Factory) With(ctx context.Context, override string, fn func(*Handle) error) error {
	h, err := f.Resolve(override)
	if err != nil {
		return err
	}
	if err := h.Open(ctx); err != nil {
		return err
	}
	defer h.Close()
	return fn(h)
}

// Open establishes the connection. In read-only mode the dialect's session
// read-only statement runs before Open returns.
func (h *Handle) Open(ctx context.Context) error {
	db, err := sql.Open(h.Dialect.DriverName(), h.dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	c, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to %s database: %w", h.Dialect.Name(), err)
	}

	if h.readOnly {
		if _, err := c.ExecContext(ctx, h.Dialect.ReadOnlyStatement()); err != nil {
			c.Close()
			db.Close()
			return fmt.Errorf("failed to enforce read-only session: %w", err)
		}
	}

	h.db, h.conn = db, c
	return nil
}

// Close releases the connection. It is safe to call on a handle that was
// never opened.
func (h *Handle) Close() error {
	var errs []error
	if h.conn != nil {
		errs = append(errs, h.conn.Close())
		h.conn = nil
	}
	if h.db != nil {
		errs = append(errs, h.db.Close())
		h.db = nil
	}
	return errors.Join(errs...)
}

// QueryContext executes stmt verbatim and returns a forward-only cursor.
func (h *Handle) QueryContext(ctx context.Context, stmt string, args ...any) (*sql.Rows, error) {
	if h.conn == nil {
		return nil, fmt.Errorf("connection is not open")
	}
	rows, err := h.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return rows, nil
}

// CallScalar runs SELECT proc(args...) AS result and returns the first
// column of the first row as text. NULL and an empty result give "".
func (h *Handle) CallScalar(ctx context.Context, proc string, args ...any) (string, error) {
	rows, err := h.QueryContext(ctx, dialect.CallStatement(h.Dialect, proc, len(args)), args...)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var result sql.NullString
	if rows.Next() {
		if err := rows.Scan(&result); err != nil {
			return "", fmt.Errorf("reading %s result: %w", proc, err)
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("reading %s result: %w", proc, err)
	}
	return result.String, nil
}
