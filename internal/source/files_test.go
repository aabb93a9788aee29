package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"agridash/internal/engine"
)

const areaCSV = "\ufeffReference area,Measure,Unit of measure,Unit multiplier,Year,Value\n" +
	"France,Arable land,Hectares,Thousands,2015,18400\n" +
	"\"Korea, Republic of\",Arable land,Hectares,Thousands,2015,\n"

func TestFilesFetch(t *testing.T) {
	fsys := fstest.MapFS{"area.csv": {Data: []byte(areaCSV)}}
	raw, err := NewFiles(fsys).Fetch(context.Background(), engine.Area)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if raw.Columns[0] != "Reference area" {
		t.Errorf("BOM not stripped: %q", raw.Columns[0])
	}
	if len(raw.Rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(raw.Rows))
	}
	if raw.Rows[1][0] != "Korea, Republic of" || raw.Rows[1][5] != nil {
		t.Errorf("row 2: %v", raw.Rows[1])
	}

	tbl, err := engine.BuildTable(engine.Area, raw)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	if v, _ := tbl.Value(0); v != 18400 {
		t.Errorf("value: %v", v)
	}
}

func TestFilesCleanedName(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "area_cleaned.csv"), []byte(areaCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Dir(dir).Fetch(context.Background(), engine.Area); err != nil {
		t.Errorf("Fetch: %v", err)
	}
}

func TestFilesMissing(t *testing.T) {
	_, err := NewFiles(fstest.MapFS{}).Fetch(context.Background(), engine.Energy)
	if !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFilesMalformed(t *testing.T) {
	fsys := fstest.MapFS{"area.csv": {Data: []byte("a,b\n1,2,3\n")}}
	_, err := NewFiles(fsys).Fetch(context.Background(), engine.Area)
	if !errors.Is(err, engine.ErrSchema) {
		t.Errorf("Expected ErrSchema, got %v", err)
	}
}
