// Package source implements engine.Source for the supported backing stores.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"agridash/internal/engine"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// undefinedTable is the Postgres SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// SQL reads whole relations with SELECT *.
type SQL struct {
	db *sql.DB
}

// OpenSQL opens a database/sql handle for driver ("sqlite" or "pgx").
// The connection is established lazily on first Fetch.
func OpenSQL(driver, dsn string) (*SQL, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("source: unsupported sql driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	return &SQL{db: db}, nil
}

// NewSQL wraps an existing handle.
func NewSQL(db *sql.DB) *SQL {
	return &SQL{db: db}
}

func (s *SQL) Close() error { return s.db.Close() }

// Ping reports whether the database is reachable.
func (s *SQL) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", engine.ErrConnectivity, err)
	}
	return nil
}

func (s *SQL) Fetch(ctx context.Context, name engine.TableName) (*engine.RawTable, error) {
	// Only names from the fixed set reach the query text.
	if _, err := engine.SchemaFor(name); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(string(name)))
	if err != nil {
		return nil, classify(name, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classify(name, err)
	}
	raw := &engine.RawTable{Columns: cols}
	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		for i, c := range cells {
			// Drivers may reuse byte buffers between rows.
			if b, ok := c.([]byte); ok {
				cells[i] = string(b)
			}
		}
		raw.Rows = append(raw.Rows, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(name, err)
	}
	return raw, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func classify(name engine.TableName, err error) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == undefinedTable:
		return fmt.Errorf("%w: relation %s: %w", engine.ErrNotFound, name, err)
	case strings.Contains(err.Error(), "no such table"):
		return fmt.Errorf("%w: relation %s: %w", engine.ErrNotFound, name, err)
	case errors.As(err, &pgErr):
		// The server answered, so this is not a transport problem.
		return fmt.Errorf("query %s: %w", name, err)
	default:
		return fmt.Errorf("%w: query %s: %w", engine.ErrConnectivity, name, err)
	}
}
