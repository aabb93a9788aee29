package report

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"agridash/internal/engine"
	"agridash/internal/export"
	"agridash/internal/models"
)

const (
	energyFrom      = 2000
	minGrowthPoints = 10
	onFarmEnergy    = "Direct on-farm energy consumption"
	totalEnergy     = "Total final energy consumption"
	colAnnualGrowth = "Annual Growth Rate (%)"
	colIntensity    = "Intensity (%)"
)

func buildEnergy(b *builder) error {
	energy, err := b.load(engine.Energy)
	if err != nil {
		return err
	}
	df := energy.All().MustFilter(engine.In(engine.ColMeasure, onFarmEnergy, totalEnergy), engine.YearBetween(energyFrom, 0))
	if df.Empty() {
		b.warn("No energy-related data found.")
		return nil
	}

	measure := b.choose("measure", "Select Energy Measure", df.Distinct(engine.ColMeasure), "")
	sel := df.MustFilter(engine.Eq(engine.ColMeasure, measure))
	unit := "Energy (tonnes oil equivalent)"

	// --- 1. Global trend and leaders ---
	global, err := byYear(sel, engine.Sum, false)
	if err != nil {
		return err
	}
	b.chart(lineChart("global-trend", measure+" Over Time (Global Total)", unit, lineSeries(measure, global)))

	top, err := rankAreas(sel, topN, engine.Mean, true, false)
	if err != nil {
		return err
	}
	b.chart(areaChart("top", "Top 10 Countries - "+measure, models.ChartBar, "Avg energy use",
		labelSeries(measure, top, engine.ColArea)))

	// --- 2. Growth patterns ---
	growth := growthRates(sel)
	if !growth.Empty() {
		b.table("growth", "Energy Growth Patterns", growth)
		rates := rowsKeyed(growth, "Country", colAnnualGrowth)
		b.chart(hbarChart("growth-fastest", "Fastest Growing Countries (Annual %)", colAnnualGrowth,
			rank(rates, topN, true)))

		var declining []keyed
		for _, r := range rates {
			if r.Value < 0 {
				declining = append(declining, r)
			}
		}
		if len(declining) == 0 {
			b.info("No countries show declining energy consumption in this dataset.")
		} else {
			b.chart(hbarChart("growth-declining", "Declining Energy Use (Annual %)", colAnnualGrowth,
				rank(declining, topN, false)))
		}
	}

	// --- 3. Country drill-down ---
	country := b.choose("country", "Select Country", sel.Distinct(engine.ColArea), "")
	ct, err := byYear(sel.MustFilter(engine.Eq(engine.ColArea, country)), engine.Sum, false)
	if err != nil {
		return err
	}
	b.chart(lineChart("country-trend", fmt.Sprintf("%s - %s Over Time", country, measure), unit,
		lineSeries(country, ct)))

	// --- 4. Agricultural energy intensity ---
	if measures := df.Distinct(engine.ColMeasure); slices.Contains(measures, onFarmEnergy) && slices.Contains(measures, totalEnergy) {
		farm := df.MustFilter(engine.Eq(engine.ColMeasure, onFarmEnergy))
		total := df.MustFilter(engine.Eq(engine.ColMeasure, totalEnergy))
		fy, ty := farm.Years(), total.Years()
		latest := min(fy[len(fy)-1], ty[len(ty)-1])

		intensity := intensityFrame(farm.MustFilter(engine.YearIn(latest)), total.MustFilter(engine.YearIn(latest)))
		b.table("intensity", fmt.Sprintf("Agricultural Energy Intensity (%d)", latest), intensity)
		shares := rowsKeyed(intensity, engine.ColArea, colIntensity)
		b.chart(hbarChart("intensity-high", "Top 10 Agricultural Energy-Intensive Countries", colIntensity,
			rank(shares, topN, true)))
		b.chart(hbarChart("intensity-low", "Top 10 Energy-Efficient Countries", colIntensity,
			rank(shares, topN, false)))
	}

	// --- 5. Map ---
	y, ok, err := b.chooseYear("map_year", "Select Year", sel)
	if err != nil {
		return err
	}
	if ok {
		m, err := byArea(sel.MustFilter(engine.YearIn(y)), engine.Sum, false)
		if err != nil {
			return err
		}
		b.chart(areaChart("map", fmt.Sprintf("%s by Country (%d)", measure, y), models.ChartMap, "Energy use",
			labelSeries(measure, m, engine.ColArea)))
	}

	b.download("energy", measure, export.FileName("csv", measure, "energy"), sel.Frame())
	return nil
}

// growthRates computes the compound annual growth between each country's
// first and last observation. Countries need at least minGrowthPoints rows,
// a positive first value and a non-zero span.
func growthRates(v engine.View) *engine.Frame {
	t := v.Table()
	rowsBy := make(map[string][]int)
	for _, row := range v.Rows() {
		rowsBy[t.Area(row)] = append(rowsBy[t.Area(row)], row)
	}

	out := engine.NewFrame(
		engine.Column{Name: "Country", Kind: engine.KindString},
		engine.Column{Name: colAnnualGrowth, Kind: engine.KindFloat},
		engine.Column{Name: "Total Growth (%)", Kind: engine.KindFloat},
		engine.Column{Name: "Start Year", Kind: engine.KindInt},
		engine.Column{Name: "End Year", Kind: engine.KindInt},
		engine.Column{Name: "Latest Consumption", Kind: engine.KindFloat},
	)
	for _, country := range v.Distinct(engine.ColArea) {
		rows := rowsBy[country]
		if len(rows) < minGrowthPoints {
			continue
		}
		sort.SliceStable(rows, func(a, b int) bool { return t.Year(rows[a]) < t.Year(rows[b]) })
		first, last := rows[0], rows[len(rows)-1]
		span := t.Year(last) - t.Year(first)
		fv, fok := t.Value(first)
		lv, lok := t.Value(last)
		if !fok || !lok || span <= 0 || fv <= 0 {
			continue
		}
		annual := (math.Pow(lv/fv, 1/float64(span)) - 1) * 100
		if math.IsNaN(annual) {
			continue
		}
		out.Append(country, num(annual), num((lv-fv)/fv*100), int64(t.Year(first)), int64(t.Year(last)), lv)
	}
	return out
}

// intensityFrame pairs on-farm and total consumption per country and
// expresses the first as a percentage of the second.
func intensityFrame(farm, total engine.View) *engine.Frame {
	ft, tt := farm.Table(), total.Table()
	out := engine.NewFrame(
		engine.Column{Name: engine.ColArea, Kind: engine.KindString},
		engine.Column{Name: "Value_farm", Kind: engine.KindFloat},
		engine.Column{Name: "Value_total", Kind: engine.KindFloat},
		engine.Column{Name: colIntensity, Kind: engine.KindFloat},
	)
	for _, fr := range farm.Rows() {
		fv, ok := ft.Value(fr)
		if !ok {
			continue
		}
		for _, tr := range total.Rows() {
			if tt.Area(tr) != ft.Area(fr) {
				continue
			}
			if tv, ok := tt.Value(tr); ok && tv > 0 {
				out.Append(ft.Area(fr), fv, tv, fv/tv*100)
			}
		}
	}
	return out
}

func rowsKeyed(f *engine.Frame, keyCol, valCol string) []keyed {
	keys := f.Strings(keyCol)
	vals := f.Floats(valCol)
	out := make([]keyed, 0, len(keys))
	for i := range keys {
		if !math.IsNaN(vals[i]) {
			out = append(out, keyed{Key: keys[i], Value: vals[i]})
		}
	}
	return out
}

func hbarChart(id, title, xLabel string, items []keyed) models.Chart {
	return models.Chart{
		ID: id, Title: title, Kind: models.ChartHBar, XLabel: xLabel, YLabel: "Country",
		Series: []models.Series{keyedSeries(xLabel, items)},
	}
}
