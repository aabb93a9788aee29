package engine

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// Reduce selects how grouped values collapse into one.
type Reduce uint8

const (
	Sum Reduce = iota
	Mean
	Count
	TopK
	BottomK
)

func (r Reduce) String() string {
	switch r {
	case Sum:
		return "sum"
	case Mean:
		return "mean"
	case Count:
		return "count"
	case TopK:
		return "top-k"
	case BottomK:
		return "bottom-k"
	default:
		return fmt.Sprintf("reduce(%d)", uint8(r))
	}
}

// ParseReduce accepts the names used in query strings ("sum", "avg", "top", ...).
func ParseReduce(s string) (Reduce, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum", "":
		return Sum, nil
	case "mean", "avg":
		return Mean, nil
	case "count":
		return Count, nil
	case "top", "topk", "top-k", "nlargest":
		return TopK, nil
	case "bottom", "bottomk", "bottom-k", "nsmallest":
		return BottomK, nil
	}
	return 0, fmt.Errorf("%w: unknown reduce %q", ErrInvalidSpec, s)
}

func (r Reduce) ranked() bool { return r == TopK || r == BottomK }

// AggSpec describes one grouping aggregation.
type AggSpec struct {
	GroupBy []string
	Reduce  Reduce
	// K bounds TopK/BottomK results.
	K int
	// Of is the reduce applied inside each group before ranking (Sum, Mean or
	// Count). The zero value is Sum; callers ranking averages set Mean.
	Of Reduce
	// Normalize aggregates unit-multiplier-normalized values.
	Normalize bool
	// ValueName names the output value column; defaults to "Value", or
	// "Value_normalized" when Normalize is set.
	ValueName string
}

type aggStats struct {
	Sum float64
	N   int // non-null values
	key []int32
}

func (s aggStats) result(r Reduce) any {
	switch r {
	case Count:
		return int64(s.N)
	case Mean:
		if s.N == 0 {
			return nil
		}
		return s.Sum / float64(s.N)
	default:
		if s.N == 0 {
			return nil
		}
		return s.Sum
	}
}

// Aggregate groups the view and reduces Value per group.
//
// Groups come out in ascending key order. Nulls are skipped by every reduce;
// a group without any non-null value yields nil for sum and mean. TopK and
// BottomK keep the K best groups (or rows, when GroupBy is empty) using a
// stable sort, so ties keep their prior order.
func Aggregate(v View, spec AggSpec) (*Frame, error) {
	t := v.t

	// 1. Validate
	inner := spec.Reduce
	if spec.Reduce.ranked() {
		if spec.K <= 0 {
			return nil, fmt.Errorf("%w: %s needs k > 0", ErrInvalidSpec, spec.Reduce)
		}
		inner = spec.Of
		if inner.ranked() {
			return nil, fmt.Errorf("%w: cannot rank by %s", ErrInvalidSpec, inner)
		}
	}
	for _, c := range spec.GroupBy {
		if c == ColValue || !t.HasColumn(c) {
			return nil, fmt.Errorf("%w: cannot group %s by %q", ErrUnknownColumn, t.Name, c)
		}
	}
	valueName := spec.ValueName
	if valueName == "" {
		valueName = ColValue
		if spec.Normalize {
			valueName = ColValue + "_normalized"
		}
	}
	values := t.Values
	if spec.Normalize {
		values = t.NormalizedValues()
	}

	// 2. Row ranking (no grouping): keep whole rows
	if len(spec.GroupBy) == 0 && spec.Reduce.ranked() {
		return rankRows(v, values, spec, valueName), nil
	}

	// 3. Group (Array Indexing on dictionary ids)
	keyCols := make([]*DictColumn, len(spec.GroupBy))
	for i, c := range spec.GroupBy {
		if c != ColYear {
			keyCols[i] = t.strs[c]
		}
	}
	groups := make(map[string]*aggStats)
	order := make([]*aggStats, 0)
	buf := make([]byte, 4*len(spec.GroupBy))
	for _, row := range v.idx {
		key := make([]int32, len(spec.GroupBy))
		skip := false
		for i, dc := range keyCols {
			if dc == nil {
				key[i] = t.Years[row]
				continue
			}
			key[i] = dc.IDs[row]
			if key[i] == 0 {
				skip = true // missing group label
				break
			}
		}
		if skip {
			continue
		}
		for i, k := range key {
			binary.LittleEndian.PutUint32(buf[4*i:], uint32(k))
		}
		s, ok := groups[string(buf)]
		if !ok {
			s = &aggStats{key: key}
			groups[string(buf)] = s
			order = append(order, s)
		}
		if t.Valid[row] {
			s.Sum += values[row]
			s.N++
		}
	}

	// 4. Sort groups by key
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := order[a].key, order[b].key
		for i, dc := range keyCols {
			if ka[i] == kb[i] {
				continue
			}
			if dc == nil {
				return ka[i] < kb[i]
			}
			return dc.Dict[ka[i]] < dc.Dict[kb[i]]
		}
		return false
	})

	// 5. Reduce and rank
	type result struct {
		stats *aggStats
		value any
	}
	results := make([]result, 0, len(order))
	for _, s := range order {
		val := s.result(inner)
		if spec.Reduce.ranked() && val == nil {
			continue
		}
		results = append(results, result{stats: s, value: val})
	}
	if spec.Reduce.ranked() {
		desc := spec.Reduce == TopK
		sort.SliceStable(results, func(a, b int) bool {
			fa, fb := CellFloat(results[a].value), CellFloat(results[b].value)
			if desc {
				return fa > fb
			}
			return fa < fb
		})
		if len(results) > spec.K {
			results = results[:spec.K]
		}
	}

	// 6. Build Result
	cols := make([]Column, 0, len(spec.GroupBy)+1)
	for i, c := range spec.GroupBy {
		kind := KindString
		if keyCols[i] == nil {
			kind = KindInt
		}
		cols = append(cols, Column{Name: c, Kind: kind})
	}
	valueKind := KindFloat
	if inner == Count {
		valueKind = KindInt
	}
	cols = append(cols, Column{Name: valueName, Kind: valueKind})

	out := NewFrame(cols...)
	for _, r := range results {
		cells := make([]any, 0, len(cols))
		for i, dc := range keyCols {
			if dc == nil {
				cells = append(cells, int64(r.stats.key[i]))
			} else {
				cells = append(cells, dc.Dict[r.stats.key[i]])
			}
		}
		out.Append(append(cells, r.value)...)
	}
	return out, nil
}

func rankRows(v View, values []float64, spec AggSpec, valueName string) *Frame {
	t := v.t
	rows := make([]int, 0, v.Len())
	for _, row := range v.idx {
		if t.Valid[row] {
			rows = append(rows, row)
		}
	}
	desc := spec.Reduce == TopK
	sort.SliceStable(rows, func(a, b int) bool {
		if desc {
			return values[rows[a]] > values[rows[b]]
		}
		return values[rows[a]] < values[rows[b]]
	})
	if len(rows) > spec.K {
		rows = rows[:spec.K]
	}
	ranked := View{t: t, idx: rows}
	if spec.Normalize {
		return ranked.NormalizedFrame(valueName)
	}
	return ranked.Frame()
}
