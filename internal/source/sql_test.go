package source

import (
	"context"
	"errors"
	"testing"

	"agridash/internal/engine"

	"github.com/jackc/pgx/v5/pgconn"
)

func memoryDB(t *testing.T) *SQL {
	t.Helper()
	s, err := OpenSQL(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLFetch(t *testing.T) {
	s := memoryDB(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `CREATE TABLE energy (
		"Reference area" TEXT, "Measure" TEXT, "Unit of measure" TEXT,
		"Unit multiplier" TEXT, "Year" INTEGER, "Value" REAL)`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO energy VALUES
		('France', 'Direct on-farm energy consumption', 'Tonnes of oil equivalent', 'Thousands', 2015, 4200.5),
		('Germany', 'Direct on-farm energy consumption', 'Tonnes of oil equivalent', NULL, 2015, NULL)`)
	if err != nil {
		t.Fatal(err)
	}

	raw, err := s.Fetch(ctx, engine.Energy)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(raw.Columns) != 6 || raw.Columns[0] != "Reference area" {
		t.Errorf("columns: %v", raw.Columns)
	}
	if len(raw.Rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(raw.Rows))
	}

	tbl, err := engine.BuildTable(engine.Energy, raw)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	if v, ok := tbl.Value(0); !ok || v != 4200.5 {
		t.Errorf("France value: %v %v", v, ok)
	}
	if _, ok := tbl.Value(1); ok {
		t.Error("Germany value should be null")
	}
	if tbl.Year(1) != 2015 {
		t.Errorf("year: %d", tbl.Year(1))
	}
}

func TestSQLMissingRelation(t *testing.T) {
	s := memoryDB(t)
	_, err := s.Fetch(context.Background(), engine.Water)
	if !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSQLUnknownNameNeverQueried(t *testing.T) {
	s := memoryDB(t)
	_ = s.Close() // any query would now fail with a connectivity error
	_, err := s.Fetch(context.Background(), engine.TableName(`agri"; DROP TABLE agri; --`))
	if !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSQLClosedIsConnectivity(t *testing.T) {
	s := memoryDB(t)
	_ = s.Close()
	if _, err := s.Fetch(context.Background(), engine.Agri); !errors.Is(err, engine.ErrConnectivity) {
		t.Errorf("Expected ErrConnectivity, got %v", err)
	}
}

func TestClassifyPostgres(t *testing.T) {
	err := classify(engine.Agri, &pgconn.PgError{Code: "42P01", Message: `relation "agri" does not exist`})
	if !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("42P01: expected ErrNotFound, got %v", err)
	}
	err = classify(engine.Agri, &pgconn.PgError{Code: "42501", Message: "permission denied"})
	if errors.Is(err, engine.ErrNotFound) || errors.Is(err, engine.ErrConnectivity) {
		t.Errorf("42501: unexpected class %v", err)
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := quoteIdent(`a"b`); got != `"a""b"` {
		t.Errorf("got %s", got)
	}
}

func TestOpenSQLRejectsDriver(t *testing.T) {
	if _, err := OpenSQL("mysql", "root@/oecd"); err == nil {
		t.Error("expected an error")
	}
}
