package engine

import (
	"sort"
	"sync"
	"time"
)

// DictColumn is a dictionary encoded string column.
// ID 0 is always the empty string so missing values need no extra bitmap.
type DictColumn struct {
	IDs  []int32
	Dict []string
}

// Value returns the decoded string at row i.
func (d *DictColumn) Value(i int) string {
	return d.Dict[d.IDs[i]]
}

// Table holds one loaded relation in Struct-of-Arrays format.
// It is never modified after BuildTable returns it.
type Table struct {
	Name     TableName
	Columns  []string // source column order
	LoadedAt time.Time

	// Numeric Columns (Flat Arrays)
	Years  []int32
	Values []float64
	Valid  []bool // false where Value is null

	// Dictionary Encoded string columns, keyed by column name
	strs map[string]*DictColumn

	normOnce   sync.Once
	normalized []float64
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Years) }

// HasColumn reports whether the source relation carried the column.
func (t *Table) HasColumn(name string) bool {
	if name == ColYear || name == ColValue {
		return true
	}
	_, ok := t.strs[name]
	return ok
}

// Str returns the string cell of column name at row i ("" when missing).
func (t *Table) Str(name string, i int) string {
	col, ok := t.strs[name]
	if !ok {
		return ""
	}
	return col.Value(i)
}

func (t *Table) Area(i int) string           { return t.strs[ColArea].Value(i) }
func (t *Table) Measure(i int) string        { return t.strs[ColMeasure].Value(i) }
func (t *Table) Unit(i int) string           { return t.strs[ColUnit].Value(i) }
func (t *Table) UnitMultiplier(i int) string { return t.strs[ColMultiplier].Value(i) }
func (t *Table) Year(i int) int              { return int(t.Years[i]) }

// Value returns the raw value at row i and whether it is present.
func (t *Table) Value(i int) (float64, bool) {
	return t.Values[i], t.Valid[i]
}

// NormalizedValues returns Value scaled by the row's unit multiplier.
// The column is derived once per table; Values itself is left untouched.
func (t *Table) NormalizedValues() []float64 {
	t.normOnce.Do(func() {
		mult := t.strs[ColMultiplier]
		// Resolve every dictionary entry once instead of every row.
		factors := make([]float64, len(mult.Dict))
		for id, label := range mult.Dict {
			factors[id] = Multiplier(label)
		}
		out := make([]float64, len(t.Values))
		for i, v := range t.Values {
			out[i] = v * factors[mult.IDs[i]]
		}
		t.normalized = out
	})
	return t.normalized
}

// Distinct returns the sorted non-empty values of a string column.
func (t *Table) Distinct(name string) []string {
	col, ok := t.strs[name]
	if !ok {
		return nil
	}
	seen := make([]bool, len(col.Dict))
	for _, id := range col.IDs {
		seen[id] = true
	}
	out := make([]string, 0, len(col.Dict))
	for id, s := range col.Dict {
		if seen[id] && s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// All returns a view over every row of the table.
func (t *Table) All() View {
	idx := make([]int, t.Len())
	for i := range idx {
		idx[i] = i
	}
	return View{t: t, idx: idx}
}
