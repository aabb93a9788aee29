package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Predicate is a row filter bound to a table's columns at filter time.
type Predicate interface {
	bind(t *Table) (func(i int) bool, error)
}

type predicateFunc func(t *Table) (func(i int) bool, error)

func (f predicateFunc) bind(t *Table) (func(i int) bool, error) { return f(t) }

// dictMatcher precomputes the accepted dictionary IDs of a string column so
// that matching a row is a single slice lookup.
func dictMatcher(t *Table, col string, accept func(s string) bool) (func(i int) bool, error) {
	dc, ok := t.strs[col]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrUnknownColumn, col, t.Name)
	}
	allowed := make([]bool, len(dc.Dict))
	for id, s := range dc.Dict {
		allowed[id] = accept(s)
	}
	ids := dc.IDs
	return func(i int) bool { return allowed[ids[i]] }, nil
}

func yearSet(years []int) map[int32]bool {
	set := make(map[int32]bool, len(years))
	for _, y := range years {
		set[int32(y)] = true
	}
	return set
}

// Eq keeps rows whose column equals v.
func Eq(col, v string) Predicate {
	return In(col, v)
}

// In keeps rows whose column is one of vs. An empty set keeps nothing.
func In(col string, vs ...string) Predicate {
	return predicateFunc(func(t *Table) (func(int) bool, error) {
		switch col {
		case ColYear:
			years := make([]int, 0, len(vs))
			for _, v := range vs {
				y, err := strconv.Atoi(strings.TrimSpace(v))
				if err != nil {
					return nil, fmt.Errorf("%w: year %q", ErrInvalidSpec, v)
				}
				years = append(years, y)
			}
			return YearIn(years...).bind(t)
		case ColValue:
			return nil, fmt.Errorf("%w: %q cannot be matched by value", ErrUnknownColumn, col)
		}
		set := make(map[string]bool, len(vs))
		for _, v := range vs {
			set[v] = true
		}
		return dictMatcher(t, col, func(s string) bool { return s != "" && set[s] })
	})
}

// Contains keeps rows whose column contains any keyword, ignoring case.
// Missing cells never match.
func Contains(col string, keywords ...string) Predicate {
	return predicateFunc(func(t *Table) (func(int) bool, error) {
		lower := make([]string, len(keywords))
		for i, k := range keywords {
			lower[i] = strings.ToLower(k)
		}
		return dictMatcher(t, col, func(s string) bool {
			if s == "" {
				return false
			}
			ls := strings.ToLower(s)
			for _, k := range lower {
				if strings.Contains(ls, k) {
					return true
				}
			}
			return false
		})
	})
}

// YearIn keeps rows observed in one of the given years.
func YearIn(years ...int) Predicate {
	return predicateFunc(func(t *Table) (func(int) bool, error) {
		set := yearSet(years)
		ys := t.Years
		return func(i int) bool { return set[ys[i]] }, nil
	})
}

// YearBetween keeps rows with from <= Year <= to. Zero leaves a bound open.
func YearBetween(from, to int) Predicate {
	return predicateFunc(func(t *Table) (func(int) bool, error) {
		lo, hi := int32(from), int32(to)
		ys := t.Years
		return func(i int) bool {
			y := ys[i]
			return (from == 0 || y >= lo) && (to == 0 || y <= hi)
		}, nil
	})
}

// HasValue keeps rows with a non-null Value.
func HasValue() Predicate {
	return predicateFunc(func(t *Table) (func(int) bool, error) {
		valid := t.Valid
		return func(i int) bool { return valid[i] }, nil
	})
}

// View is a filtered, read-only window on a Table: a list of row indices.
type View struct {
	t   *Table
	idx []int
}

// Filter applies every predicate (AND) to the whole table.
func Filter(t *Table, preds ...Predicate) (View, error) {
	return t.All().Filter(preds...)
}

// Filter narrows the view further. The table itself is never touched.
func (v View) Filter(preds ...Predicate) (View, error) {
	if len(preds) == 0 {
		return v, nil
	}
	matchers := make([]func(int) bool, len(preds))
	for i, p := range preds {
		m, err := p.bind(v.t)
		if err != nil {
			return View{}, err
		}
		matchers[i] = m
	}

	out := make([]int, 0, len(v.idx))
	for _, row := range v.idx {
		pass := true
		for _, m := range matchers {
			if !m(row) {
				pass = false
				break
			}
		}
		if pass {
			out = append(out, row)
		}
	}
	return View{t: v.t, idx: out}, nil
}

// MustFilter is Filter for predicates over columns the schema guarantees.
func (v View) MustFilter(preds ...Predicate) View {
	out, err := v.Filter(preds...)
	if err != nil {
		panic(err)
	}
	return out
}

func (v View) Len() int      { return len(v.idx) }
func (v View) Empty() bool   { return len(v.idx) == 0 }
func (v View) Table() *Table { return v.t }
func (v View) Row(k int) int { return v.idx[k] }
func (v View) Rows() []int   { return v.idx }

// Window returns at most limit rows starting at offset. Out of range
// bounds are clamped, so any offset and limit are safe.
func (v View) Window(offset, limit int) View {
	n := len(v.idx)
	offset = min(max(offset, 0), n)
	end := n
	if limit >= 0 && limit < n-offset {
		end = offset + limit
	}
	return View{t: v.t, idx: v.idx[offset:end]}
}

// Distinct returns the sorted non-empty values of a string column in the view.
func (v View) Distinct(col string) []string {
	dc, ok := v.t.strs[col]
	if !ok {
		return nil
	}
	seen := make([]bool, len(dc.Dict))
	for _, row := range v.idx {
		seen[dc.IDs[row]] = true
	}
	out := make([]string, 0)
	for id, s := range dc.Dict {
		if seen[id] && s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Years returns the distinct years in the view, ascending.
func (v View) Years() []int {
	seen := make(map[int32]bool)
	out := make([]int, 0)
	for _, row := range v.idx {
		y := v.t.Years[row]
		if !seen[y] {
			seen[y] = true
			out = append(out, int(y))
		}
	}
	sort.Ints(out)
	return out
}

// Frame materializes the view with every source column in source order.
func (v View) Frame() *Frame {
	return v.frame("")
}

// NormalizedFrame is Frame plus a trailing column holding normalized values.
func (v View) NormalizedFrame(name string) *Frame {
	return v.frame(name)
}

func (v View) frame(normalizedAs string) *Frame {
	t := v.t
	f := &Frame{}
	for _, c := range t.Columns {
		switch c {
		case ColYear:
			f.Columns = append(f.Columns, Column{Name: c, Kind: KindInt})
		case ColValue:
			f.Columns = append(f.Columns, Column{Name: c, Kind: KindFloat})
		default:
			f.Columns = append(f.Columns, Column{Name: c, Kind: KindString})
		}
	}
	var norm []float64
	if normalizedAs != "" {
		f.Columns = append(f.Columns, Column{Name: normalizedAs, Kind: KindFloat})
		norm = t.NormalizedValues()
	}

	f.Rows = make([][]any, 0, len(v.idx))
	for _, row := range v.idx {
		cells := make([]any, 0, len(f.Columns))
		for _, c := range t.Columns {
			switch c {
			case ColYear:
				cells = append(cells, int64(t.Years[row]))
			case ColValue:
				cells = append(cells, t.nullableValue(row, t.Values))
			default:
				cells = append(cells, t.Str(c, row))
			}
		}
		if norm != nil {
			cells = append(cells, t.nullableValue(row, norm))
		}
		f.Rows = append(f.Rows, cells)
	}
	return f
}

func (t *Table) nullableValue(row int, vals []float64) any {
	if !t.Valid[row] {
		return nil
	}
	return vals[row]
}
