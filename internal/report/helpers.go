package report

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"

	"agridash/internal/engine"
	"agridash/internal/models"

	"gonum.org/v1/gonum/stat"
)

const (
	recentYear    = 2012
	topN          = 10
	histogramBins = 50
)

// valueCol is the name of a frame's trailing value column.
func valueCol(f *engine.Frame) string {
	return f.Columns[len(f.Columns)-1].Name
}

// byYear aggregates v per year.
func byYear(v engine.View, r engine.Reduce, normalize bool) (*engine.Frame, error) {
	return engine.Aggregate(v, engine.AggSpec{GroupBy: []string{engine.ColYear}, Reduce: r, Normalize: normalize})
}

// byArea aggregates v per country.
func byArea(v engine.View, r engine.Reduce, normalize bool) (*engine.Frame, error) {
	return engine.Aggregate(v, engine.AggSpec{GroupBy: []string{engine.ColArea}, Reduce: r, Normalize: normalize})
}

// rankAreas keeps the k countries with the highest (desc) or lowest group
// value, where of reduces each country's rows.
func rankAreas(v engine.View, k int, of engine.Reduce, desc, normalize bool) (*engine.Frame, error) {
	r := engine.TopK
	if !desc {
		r = engine.BottomK
	}
	return engine.Aggregate(v, engine.AggSpec{
		GroupBy: []string{engine.ColArea}, Reduce: r, K: k, Of: of, Normalize: normalize,
	})
}

// lineSeries turns a frame keyed by year into points; null values are skipped.
func lineSeries(name string, f *engine.Frame) models.Series {
	s := models.Series{Name: name, Points: []models.Point{}}
	years := f.Floats(engine.ColYear)
	vals := f.Floats(valueCol(f))
	for i := range f.Rows {
		if math.IsNaN(vals[i]) {
			continue
		}
		s.Points = append(s.Points, models.Point{X: years[i], Y: vals[i]})
	}
	return s
}

// labelSeries turns a frame keyed by a string column into labelled points.
func labelSeries(name string, f *engine.Frame, labelCol string) models.Series {
	s := models.Series{Name: name, Points: []models.Point{}}
	labels := f.Strings(labelCol)
	vals := f.Floats(valueCol(f))
	for i := range f.Rows {
		if math.IsNaN(vals[i]) {
			continue
		}
		s.Points = append(s.Points, models.Point{X: float64(len(s.Points)), Y: vals[i], Label: labels[i]})
	}
	return s
}

// seriesBy splits a frame grouped by [Year, key] into one line per key value.
func seriesBy(f *engine.Frame, key string) []models.Series {
	keys := f.Strings(key)
	years := f.Floats(engine.ColYear)
	vals := f.Floats(valueCol(f))
	index := make(map[string]int)
	out := make([]models.Series, 0)
	for i := range f.Rows {
		if math.IsNaN(vals[i]) {
			continue
		}
		at, ok := index[keys[i]]
		if !ok {
			at = len(out)
			index[keys[i]] = at
			out = append(out, models.Series{Name: keys[i], Points: []models.Point{}})
		}
		out[at].Points = append(out[at].Points, models.Point{X: years[i], Y: vals[i]})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func lineChart(id, title, yLabel string, series ...models.Series) models.Chart {
	return models.Chart{ID: id, Title: title, Kind: models.ChartLine, XLabel: "Year", YLabel: yLabel, Series: series}
}

func areaChart(id, title, kind, yLabel string, s models.Series) models.Chart {
	return models.Chart{ID: id, Title: title, Kind: kind, XLabel: "Country", YLabel: yLabel, Series: []models.Series{s}}
}

// pivot spreads a frame grouped by [rowCol, colCol] into one row per rowCol
// value and one column per colCol value. Missing cells are nil.
func pivot(f *engine.Frame, rowCol, colCol string) *engine.Frame {
	rowAt, colAt := f.Col(rowCol), f.Col(colCol)
	valAt := len(f.Columns) - 1

	var colKeys []any
	seen := make(map[any]bool)
	for _, r := range f.Rows {
		if !seen[r[colAt]] {
			seen[r[colAt]] = true
			colKeys = append(colKeys, r[colAt])
		}
	}
	sort.SliceStable(colKeys, func(a, b int) bool {
		if x, ok := colKeys[a].(int64); ok {
			return x < colKeys[b].(int64)
		}
		return fmt.Sprint(colKeys[a]) < fmt.Sprint(colKeys[b])
	})
	colIndex := make(map[any]int, len(colKeys))
	cols := []engine.Column{{Name: rowCol, Kind: engine.KindString}}
	for i, k := range colKeys {
		colIndex[k] = i + 1
		cols = append(cols, engine.Column{Name: fmt.Sprint(k), Kind: engine.KindFloat})
	}

	out := engine.NewFrame(cols...)
	rowIndex := make(map[string]int)
	for _, r := range f.Rows {
		key := fmt.Sprint(r[rowAt])
		at, ok := rowIndex[key]
		if !ok {
			at = len(out.Rows)
			rowIndex[key] = at
			cells := make([]any, len(cols))
			cells[0] = key
			out.Append(cells...)
		}
		out.Rows[at][colIndex[r[colAt]]] = r[valAt]
	}
	return out
}

// histogram counts the view's non-null values into equal-width bins.
func histogram(name string, v engine.View, bins int) models.Series {
	t := v.Table()
	vals := make([]float64, 0, v.Len())
	for _, row := range v.Rows() {
		if x, ok := t.Value(row); ok {
			vals = append(vals, x)
		}
	}
	s := models.Series{Name: name, Points: []models.Point{}}
	if len(vals) == 0 {
		return s
	}
	lo, hi := slices.Min(vals), slices.Max(vals)
	if lo == hi {
		s.Points = append(s.Points, models.Point{X: lo, Y: float64(len(vals)), Label: strconv.FormatFloat(lo, 'g', 4, 64)})
		return s
	}
	width := (hi - lo) / float64(bins)
	counts := make([]int, bins)
	for _, x := range vals {
		i := int((x - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		counts[i]++
	}
	for i, n := range counts {
		edge := lo + float64(i)*width
		s.Points = append(s.Points, models.Point{
			X: edge, Y: float64(n), Label: strconv.FormatFloat(edge, 'g', 4, 64),
		})
	}
	return s
}

// keyed is one group of a frame-level reduction.
type keyed struct {
	Key   string
	Value float64
}

// meanBy averages valCol per keyCol, skipping nulls. Keys without any value
// are left out; the result is in ascending key order.
func meanBy(f *engine.Frame, keyCol, valCol string) []keyed {
	keys := f.Strings(keyCol)
	vals := f.Floats(valCol)
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i := range f.Rows {
		if math.IsNaN(vals[i]) {
			continue
		}
		sums[keys[i]] += vals[i]
		counts[keys[i]]++
	}
	out := make([]keyed, 0, len(sums))
	for k, s := range sums {
		out = append(out, keyed{Key: k, Value: s / float64(counts[k])})
	}
	slices.SortFunc(out, func(a, b keyed) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

// rank returns up to k items ordered by value, keeping ties in input order.
func rank(items []keyed, k int, desc bool) []keyed {
	out := slices.Clone(items)
	sort.SliceStable(out, func(a, b int) bool {
		if desc {
			return out[a].Value > out[b].Value
		}
		return out[a].Value < out[b].Value
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// above returns the items at or above the q quantile of their values,
// highest first.
func above(items []keyed, q float64) ([]keyed, float64) {
	if len(items) == 0 {
		return nil, math.NaN()
	}
	sorted := make([]float64, len(items))
	for i, it := range items {
		sorted[i] = it.Value
	}
	slices.Sort(sorted)
	threshold := stat.Quantile(q, stat.LinInterp, sorted, nil)
	var out []keyed
	for _, it := range items {
		if it.Value >= threshold {
			out = append(out, it)
		}
	}
	return rank(out, len(out), true), threshold
}

func keyedSeries(name string, items []keyed) models.Series {
	s := models.Series{Name: name, Points: make([]models.Point, len(items))}
	for i, it := range items {
		s.Points[i] = models.Point{X: float64(i), Y: it.Value, Label: it.Key}
	}
	return s
}

func keyedFrame(keyCol, valCol string, items []keyed) *engine.Frame {
	f := engine.NewFrame(
		engine.Column{Name: keyCol, Kind: engine.KindString},
		engine.Column{Name: valCol, Kind: engine.KindFloat},
	)
	for _, it := range items {
		f.Append(it.Key, num(it.Value))
	}
	return f
}
