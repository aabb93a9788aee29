package engine

import (
	"fmt"
	"math"
)

// Kind is the type of a Frame column.
type Kind uint8

const (
	KindString Kind = iota
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "string"
	}
}

// MarshalText lets Kind travel as "string"/"int"/"float" in JSON.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Frame is a small derived table: typed columns and rows of cells.
// Cells are string (never nil, "" means missing), int64, float64 or nil.
type Frame struct {
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewFrame returns an empty frame with the given columns.
func NewFrame(cols ...Column) *Frame {
	return &Frame{Columns: cols, Rows: [][]any{}}
}

func (f *Frame) Len() int    { return len(f.Rows) }
func (f *Frame) Empty() bool { return len(f.Rows) == 0 }

// Append adds a row; it panics when the arity does not match the columns.
func (f *Frame) Append(cells ...any) {
	if len(cells) != len(f.Columns) {
		panic(fmt.Sprintf("engine: frame row has %d cells, want %d", len(cells), len(f.Columns)))
	}
	f.Rows = append(f.Rows, cells)
}

// Col returns the index of the named column or -1.
func (f *Frame) Col(name string) int {
	for i, c := range f.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Strings returns a column's cells as strings.
func (f *Frame) Strings(name string) []string {
	at := f.Col(name)
	if at < 0 {
		return nil
	}
	out := make([]string, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = cellString(r[at])
	}
	return out
}

// Floats returns a column's cells as float64, NaN for nulls.
func (f *Frame) Floats(name string) []float64 {
	at := f.Col(name)
	if at < 0 {
		return nil
	}
	out := make([]float64, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = CellFloat(r[at])
	}
	return out
}

// CellFloat converts a numeric cell to float64; nil becomes NaN.
func CellFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	default:
		return math.NaN()
	}
}

// Head returns a frame holding at most n leading rows.
func (f *Frame) Head(n int) *Frame {
	if n >= len(f.Rows) {
		return f
	}
	return &Frame{Columns: f.Columns, Rows: f.Rows[:n]}
}
