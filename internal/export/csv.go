// Package export writes frames as downloadable files.
package export

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"agridash/internal/engine"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/csv"
	"github.com/apache/arrow/go/v18/arrow/memory"
)

// Schema maps frame columns onto an Arrow schema. Every field is nullable.
func Schema(cols []engine.Column) *arrow.Schema {
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c.Kind), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(k engine.Kind) arrow.DataType {
	switch k {
	case engine.KindInt:
		return arrow.PrimitiveTypes.Int64
	case engine.KindFloat:
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.BinaryTypes.String
	}
}

// Record converts a frame into an Arrow record. The caller releases it.
func Record(mem memory.Allocator, f *engine.Frame) (arrow.Record, error) {
	b := array.NewRecordBuilder(mem, Schema(f.Columns))
	defer b.Release()

	for r, row := range f.Rows {
		for i, c := range f.Columns {
			cell := row[i]
			switch c.Kind {
			case engine.KindInt:
				fb := b.Field(i).(*array.Int64Builder)
				switch v := cell.(type) {
				case nil:
					fb.AppendNull()
				case int64:
					fb.Append(v)
				default:
					return nil, fmt.Errorf("export: row %d column %q: %T is not an int", r, c.Name, cell)
				}
			case engine.KindFloat:
				fb := b.Field(i).(*array.Float64Builder)
				switch v := cell.(type) {
				case nil:
					fb.AppendNull()
				case float64:
					fb.Append(v)
				case int64:
					fb.Append(float64(v))
				default:
					return nil, fmt.Errorf("export: row %d column %q: %T is not a float", r, c.Name, cell)
				}
			default:
				sb := b.Field(i).(*array.StringBuilder)
				s, ok := cell.(string)
				if !ok && cell != nil {
					return nil, fmt.Errorf("export: row %d column %q: %T is not a string", r, c.Name, cell)
				}
				sb.Append(s)
			}
		}
	}
	return b.NewRecord(), nil
}

// WriteCSV writes the frame as comma separated UTF-8 with a header row.
// Null cells are written as empty fields and floats as plain decimals.
func WriteCSV(w io.Writer, f *engine.Frame) error {
	plain, err := plainFloats(f)
	if err != nil {
		return err
	}
	rec, err := Record(memory.DefaultAllocator, plain)
	if err != nil {
		return err
	}
	defer rec.Release()

	cw := csv.NewWriter(w, rec.Schema(), csv.WithHeader(true), csv.WithNullWriter(""))
	if err := cw.Write(rec); err != nil {
		return fmt.Errorf("export: write csv: %w", err)
	}
	if err := cw.Flush(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return cw.Error()
}

// plainFloats turns float columns into text in positional notation
// (1.84e7 becomes "18400000"). The shortest exact digits are kept, so
// ReadCSV parses back the same float64.
func plainFloats(f *engine.Frame) (*engine.Frame, error) {
	var floats []int
	cols := slices.Clone(f.Columns)
	for i, c := range cols {
		if c.Kind == engine.KindFloat {
			floats = append(floats, i)
			cols[i].Kind = engine.KindString
		}
	}
	if len(floats) == 0 {
		return f, nil
	}

	out := &engine.Frame{Columns: cols, Rows: make([][]any, len(f.Rows))}
	for r, row := range f.Rows {
		cells := slices.Clone(row)
		for _, i := range floats {
			switch v := row[i].(type) {
			case nil:
				cells[i] = ""
			case float64:
				cells[i] = strconv.FormatFloat(v, 'f', -1, 64)
			case int64:
				cells[i] = strconv.FormatInt(v, 10)
			default:
				return nil, fmt.Errorf("export: row %d column %q: %T is not a float", r, f.Columns[i].Name, row[i])
			}
		}
		out.Rows[r] = cells
	}
	return out, nil
}

// ReadCSV parses CSV written by WriteCSV back into a frame with the given
// columns. Empty fields become nil, except in string columns where they stay "".
func ReadCSV(r io.Reader, cols []engine.Column) (*engine.Frame, error) {
	rdr := csv.NewReader(r, Schema(cols),
		csv.WithHeader(true),
		csv.WithNullReader(true, ""),
		csv.WithChunk(-1),
	)
	defer rdr.Release()

	f := engine.NewFrame(cols...)
	for rdr.Next() {
		rec := rdr.Record()
		for j := 0; j < int(rec.NumRows()); j++ {
			cells := make([]any, len(cols))
			for i, c := range cols {
				arr := rec.Column(i)
				if arr.IsNull(j) {
					if c.Kind == engine.KindString {
						cells[i] = ""
					}
					continue
				}
				switch a := arr.(type) {
				case *array.Int64:
					cells[i] = a.Value(j)
				case *array.Float64:
					cells[i] = a.Value(j)
				case *array.String:
					cells[i] = a.Value(j)
				}
			}
			f.Append(cells...)
		}
	}
	if err := rdr.Err(); err != nil {
		return nil, fmt.Errorf("export: read csv: %w", err)
	}
	return f, nil
}

// FileName builds a download name: parts joined by "_", lower-cased, spaces
// replaced by underscores. FileName("csv", "Arable land", "area") is
// "arable_land_area.csv".
func FileName(ext string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	name := strings.ToLower(strings.Join(kept, "_"))
	name = strings.ReplaceAll(name, " ", "_")
	return name + "." + ext
}
