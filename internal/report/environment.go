package report

import (
	"fmt"
	"math"

	"agridash/internal/engine"
	"agridash/internal/export"
	"agridash/internal/models"
)

const (
	colPerHectare   = "Surplus per hectare"
	outlierQuantile = 0.95
)

func buildEnvironment(b *builder) error {
	agri, err := b.load(engine.Agri)
	if err != nil {
		return err
	}
	area, err := b.load(engine.Area)
	if err != nil {
		return err
	}

	// 1. Nutrient selection
	nutrient := b.choose("nutrient", "Select Nutrient", agri.Distinct(engine.ColNutrients), "")
	if nutrient == "" {
		b.warn("No nutrient balance data available.")
		return nil
	}
	base := agri.All().MustFilter(engine.Eq(engine.ColNutrients, nutrient), engine.YearBetween(recentYear, 0))
	unit := nutrient + " surplus (kg/ha)"

	// 2. Global trend
	trend, err := byYear(base, engine.Mean, false)
	if err != nil {
		return err
	}
	b.chart(lineChart("global-trend", fmt.Sprintf("%s Surplus Over Time (Global Average)", nutrient), unit,
		lineSeries(nutrient, trend)))

	// 3. Country drill-down
	if country := b.choose("country", "Select a Country", base.Distinct(engine.ColArea), ""); country != "" {
		ct, err := byYear(base.MustFilter(engine.Eq(engine.ColArea, country)), engine.Mean, false)
		if err != nil {
			return err
		}
		b.chart(lineChart("country-trend", fmt.Sprintf("%s Surplus Over Time: %s", nutrient, country), unit,
			lineSeries(country, ct)))
	}

	// 4. Country x year heatmap
	grid, err := engine.Aggregate(base, engine.AggSpec{GroupBy: []string{engine.ColArea, engine.ColYear}, Reduce: engine.Mean})
	if err != nil {
		return err
	}
	b.table("heatmap", fmt.Sprintf("%s Surplus by Country and Year", nutrient), pivot(grid, engine.ColArea, engine.ColYear))

	// 5. Highest surplus and distribution
	top, err := rankAreas(base, topN, engine.Mean, true, false)
	if err != nil {
		return err
	}
	b.chart(areaChart("top", fmt.Sprintf("Top 10 Countries by Average %s Surplus", nutrient), models.ChartBar, unit,
		labelSeries(nutrient, top, engine.ColArea)))
	b.chart(models.Chart{
		ID: "distribution", Title: fmt.Sprintf("Distribution of %s Surplus Values", nutrient),
		Kind: models.ChartHistogram, XLabel: unit, YLabel: "Count",
		Series: []models.Series{histogram(nutrient, base, histogramBins)},
	})

	// 6. Map for one year
	y, ok, err := b.chooseYear("year", "Select Year", base)
	if err != nil {
		return err
	}
	if ok {
		m, err := byArea(base.MustFilter(engine.YearIn(y)), engine.Mean, false)
		if err != nil {
			return err
		}
		b.chart(areaChart("map", fmt.Sprintf("%s Surplus by Country (%d)", nutrient, y), models.ChartMap, unit,
			labelSeries(nutrient, m, engine.ColArea)))
	}

	// 7. Nitrogen vs phosphorus
	np, err := engine.Aggregate(
		agri.All().MustFilter(engine.In(engine.ColNutrients, "Nitrogen", "Phosphorus"), engine.YearBetween(recentYear, 0)),
		engine.AggSpec{GroupBy: []string{engine.ColArea, engine.ColNutrients}, Reduce: engine.Mean},
	)
	if err != nil {
		return err
	}
	b.chart(models.Chart{
		ID: "nitrogen-phosphorus", Title: "Nitrogen vs Phosphorus Surplus by Country",
		Kind: models.ChartScatter, XLabel: "Nitrogen surplus (kg/ha)", YLabel: "Phosphorus surplus (kg/ha)",
		Series: []models.Series{scatterNP(pivot(np, engine.ColArea, engine.ColNutrients))},
	})

	// 8. Surplus per hectare of arable land
	norm := perHectare(base, area.All().MustFilter(engine.Contains(engine.ColMeasure, "arable")))
	if norm.Empty() {
		b.info("No arable land figures match the selected nutrient data.")
		return nil
	}
	avg := meanBy(norm, engine.ColArea, colPerHectare)
	b.chart(areaChart("normalized-top", fmt.Sprintf("Top 10 Countries by %s Surplus per Hectare", nutrient),
		models.ChartBar, "Surplus per hectare of arable land", keyedSeries(nutrient, rank(avg, topN, true))))

	outliers, threshold := above(avg, outlierQuantile)
	b.table("outliers", fmt.Sprintf("Countries above the 95th percentile (%.4g per hectare)", threshold),
		keyedFrame(engine.ColArea, colPerHectare, outliers))

	b.download("normalized", fmt.Sprintf("Normalized %s Surplus", nutrient),
		export.FileName("csv", "normalized", nutrient, "surplus"), norm)
	return nil
}

// scatterNP pairs the Nitrogen and Phosphorus columns of a pivoted frame.
func scatterNP(wide *engine.Frame) models.Series {
	s := models.Series{Name: "Countries", Points: []models.Point{}}
	n, p := wide.Col("Nitrogen"), wide.Col("Phosphorus")
	if n < 0 || p < 0 {
		return s
	}
	for _, r := range wide.Rows {
		x, y := engine.CellFloat(r[n]), engine.CellFloat(r[p])
		if math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		s.Points = append(s.Points, models.Point{X: x, Y: y, Label: r[0].(string)})
	}
	return s
}

// perHectare joins surplus rows to arable land rows of the same country and
// year and divides the surplus by the land area. Pairs with a missing or zero
// area are dropped; a missing surplus leaves the ratio null.
func perHectare(surplus, land engine.View) *engine.Frame {
	type key struct {
		area string
		year int
	}
	lt := land.Table()
	index := make(map[key][]int)
	for _, row := range land.Rows() {
		k := key{lt.Area(row), lt.Year(row)}
		index[k] = append(index[k], row)
	}

	out := engine.NewFrame(
		engine.Column{Name: engine.ColArea, Kind: engine.KindString},
		engine.Column{Name: engine.ColYear, Kind: engine.KindInt},
		engine.Column{Name: engine.ColNutrients, Kind: engine.KindString},
		engine.Column{Name: "Measure_surplus", Kind: engine.KindString},
		engine.Column{Name: "Value_surplus", Kind: engine.KindFloat},
		engine.Column{Name: "Measure_area", Kind: engine.KindString},
		engine.Column{Name: "Unit_area", Kind: engine.KindString},
		engine.Column{Name: "Value_area", Kind: engine.KindFloat},
		engine.Column{Name: colPerHectare, Kind: engine.KindFloat},
	)
	st := surplus.Table()
	for _, row := range surplus.Rows() {
		matches := index[key{st.Area(row), st.Year(row)}]
		sv, sok := st.Value(row)
		for _, lr := range matches {
			lv, lok := lt.Value(lr)
			if !lok || lv == 0 {
				continue
			}
			var sval, ratio any
			if sok {
				sval, ratio = sv, num(sv/lv)
			}
			out.Append(st.Area(row), int64(st.Year(row)), st.Str(engine.ColNutrients, row), st.Measure(row), sval,
				lt.Measure(lr), lt.Unit(lr), lv, ratio)
		}
	}
	return out
}
