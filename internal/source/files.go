package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"agridash/internal/engine"
)

// Files reads <name>.csv, or the exported <name>_cleaned.csv, from a file system.
type Files struct {
	fsys fs.FS
}

func NewFiles(fsys fs.FS) *Files {
	return &Files{fsys: fsys}
}

// Dir serves tables from a directory on disk.
func Dir(path string) *Files {
	return NewFiles(os.DirFS(path))
}

func fileNames(name engine.TableName) []string {
	return []string{string(name) + ".csv", string(name) + "_cleaned.csv"}
}

func (s *Files) Fetch(ctx context.Context, name engine.TableName) (*engine.RawTable, error) {
	if _, err := engine.SchemaFor(name); err != nil {
		return nil, err
	}
	for _, fn := range fileNames(name) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := s.fsys.Open(fn)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %w", engine.ErrConnectivity, fn, err)
		}
		raw, err := readCSV(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", engine.ErrSchema, fn, err)
		}
		return raw, nil
	}
	return nil, fmt.Errorf("%w: no %s in source directory", engine.ErrNotFound, strings.Join(fileNames(name), " or "))
}

// errEmptyFile reports a CSV source without even a header row.
var errEmptyFile = errors.New("empty file")

// readCSV decodes a headed CSV into raw cells; empty fields become nil.
func readCSV(r io.Reader) (*engine.RawTable, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errEmptyFile
	}
	if err != nil {
		return nil, err
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	raw := &engine.RawTable{Columns: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		cells := make([]any, len(rec))
		for i, v := range rec {
			if v != "" {
				cells[i] = v
			}
		}
		raw.Rows = append(raw.Rows, cells)
	}
	return raw, nil
}
