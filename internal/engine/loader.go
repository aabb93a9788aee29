package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
)

// RawTable is a relation as fetched from a backing store, before validation.
// Cells hold whatever the driver produced: nil, string, []byte, int64,
// float64 and friends.
type RawTable struct {
	Columns []string
	Rows    [][]any
}

// Source fetches full relations from a backing store.
type Source interface {
	Fetch(ctx context.Context, name TableName) (*RawTable, error)
}

// --- 1. CELL PARSERS ---

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

// parseYear accepts integers and integral floats ("2015", "2015.0", 2015.0).
func parseYear(v any) (int32, error) {
	switch x := v.(type) {
	case int64:
		return yearInRange(x)
	case int32:
		return x, nil
	case int:
		return yearInRange(int64(x))
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("non-integral year %v", x)
		}
		if x < math.MinInt32 || x > math.MaxInt32 {
			return 0, fmt.Errorf("year %v out of range", x)
		}
		return int32(x), nil
	case string, []byte:
		s := strings.TrimSpace(cellString(x))
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return yearInRange(n)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) {
			return 0, fmt.Errorf("invalid year %q", s)
		}
		return parseYear(f)
	case nil:
		return 0, fmt.Errorf("missing year")
	default:
		return 0, fmt.Errorf("unsupported year type %T", v)
	}
}

func yearInRange(n int64) (int32, error) {
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, fmt.Errorf("year %d out of range", n)
	}
	return int32(n), nil
}

// parseValue returns the numeric value and whether it is present.
func parseValue(v any) (float64, bool, error) {
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		if math.IsNaN(x) {
			return 0, false, nil
		}
		return x, true, nil
	case float32:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case int:
		return float64(x), true, nil
	case string, []byte:
		s := strings.TrimSpace(cellString(x))
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("invalid value %q", s)
		}
		if math.IsNaN(f) {
			return 0, false, nil
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("unsupported value type %T", v)
	}
}

// --- 2. MAIN LOADER ---

type dictBuilder struct {
	ids  map[string]int32
	list []string
}

func newDictBuilder() *dictBuilder {
	// Reserve ID 0 for the missing value.
	return &dictBuilder{ids: map[string]int32{"": 0}, list: []string{""}}
}

func (d *dictBuilder) id(s string) int32 {
	if id, ok := d.ids[s]; ok {
		return id
	}
	id := int32(len(d.list))
	d.list = append(d.list, s)
	d.ids[s] = id
	return id
}

// BuildTable validates raw against the table schema and encodes it into
// columnar form. Schema drift is reported here, once, as ErrSchema.
func BuildTable(name TableName, raw *RawTable) (*Table, error) {
	start := time.Now()

	schema, err := SchemaFor(name)
	if err != nil {
		return nil, err
	}

	// A. Resolve column positions
	pos := make(map[string]int, len(raw.Columns))
	for i, c := range raw.Columns {
		pos[c] = i
	}
	var missing []string
	for _, c := range schema.Required() {
		if _, ok := pos[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s is missing columns %s", ErrSchema, name, strings.Join(missing, ", "))
	}

	// B. Allocate Store ONCE
	n := len(raw.Rows)
	t := &Table{
		Name:     name,
		Columns:  append([]string(nil), raw.Columns...),
		LoadedAt: start,
		Years:    make([]int32, n),
		Values:   make([]float64, n),
		Valid:    make([]bool, n),
		strs:     make(map[string]*DictColumn),
	}

	yearPos, valuePos := pos[ColYear], pos[ColValue]
	type strCol struct {
		at    int
		dict  *dictBuilder
		ids   []int32
		label string
	}
	var cols []*strCol
	for i, c := range raw.Columns {
		if i == yearPos || i == valuePos {
			continue
		}
		cols = append(cols, &strCol{at: i, dict: newDictBuilder(), ids: make([]int32, n), label: c})
	}

	// C. Encode rows
	for r, row := range raw.Rows {
		if len(row) != len(raw.Columns) {
			return nil, fmt.Errorf("%w: %s row %d has %d cells, want %d", ErrSchema, name, r+1, len(row), len(raw.Columns))
		}
		y, err := parseYear(row[yearPos])
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", ErrSchema, name, r+1, err)
		}
		t.Years[r] = y

		v, ok, err := parseValue(row[valuePos])
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", ErrSchema, name, r+1, err)
		}
		t.Values[r], t.Valid[r] = v, ok

		for _, c := range cols {
			c.ids[r] = c.dict.id(cellString(row[c.at]))
		}
	}

	for _, c := range cols {
		t.strs[c.label] = &DictColumn{IDs: c.ids, Dict: c.dict.list}
	}

	log.Debugf("engine: built %s (%d rows, %d columns) in %v", name, n, len(raw.Columns), time.Since(start))
	return t, nil
}
