package report

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"agridash/internal/engine"
	"agridash/internal/export"
	"agridash/internal/models"
)

const (
	waterFrom, waterTo = 2012, 2021
	treemapN           = 20
	stackDefaultN      = 5
	totalAbstraction   = "Total freshwater abstraction"
)

var (
	waterMeasures = []string{"Agriculture freshwater abstraction", totalAbstraction}
	waterTypes    = []string{"Surface water", "Ground water", "Not applicable"}
)

func buildWater(b *builder) error {
	water, err := b.load(engine.Water)
	if err != nil {
		return err
	}

	measure := b.choose("measure", "Select Water Use Measure", waterMeasures, waterMeasures[0])
	sel := water.All().MustFilter(engine.Eq(engine.ColMeasure, measure), engine.YearBetween(waterFrom, waterTo))
	if sel.Empty() {
		b.warn(fmt.Sprintf("No %s data between %d and %d.", measure, waterFrom, waterTo))
	}

	// 1. Global and country trends
	global, err := byYear(sel, engine.Mean, true)
	if err != nil {
		return err
	}
	b.chart(lineChart("global-trend", fmt.Sprintf("Global Average %s Over Time", measure), "Average water use",
		lineSeries(measure, global)))

	if country := b.choose("country", "Select Country", sel.Distinct(engine.ColArea), ""); country != "" {
		ct, err := byYear(sel.MustFilter(engine.Eq(engine.ColArea, country)), engine.Mean, true)
		if err != nil {
			return err
		}
		b.chart(lineChart("country-trend", fmt.Sprintf("%s in %s (%d-%d)", measure, country, waterFrom, waterTo),
			"Water use", lineSeries(country, ct)))
	}

	// 2. Top 10 by total
	top, err := rankAreas(sel, topN, engine.Sum, true, true)
	if err != nil {
		return err
	}
	b.chart(areaChart("top", fmt.Sprintf("Top 10 Countries with Highest %s (%d-%d)", measure, waterFrom, waterTo),
		models.ChartBar, "Total water use (normalized)", labelSeries(measure, top, engine.ColArea)))

	// 3. Top 20 share
	top20, err := rankAreas(sel, treemapN, engine.Sum, true, true)
	if err != nil {
		return err
	}
	b.chart(areaChart("treemap", fmt.Sprintf("Top 20 Contributors to Global %s (%d-%d)", measure, waterFrom, waterTo),
		models.ChartTreemap, "Total water use (normalized)", labelSeries(measure, top20, engine.ColArea)))
	b.table("share", "Share of Top 20 Water Use", shareFrame(top20))

	// 4. Surface vs ground water
	sg := water.All().MustFilter(
		engine.Eq(engine.ColMeasure, totalAbstraction),
		engine.In(engine.ColWaterType, waterTypes...),
	)
	y, ok, err := b.chooseYear("sg_year", "Select Year (Stacked Bar)", sg)
	if err != nil {
		return err
	}
	if !ok {
		b.info("No surface or ground water data available.")
	} else if err := surfaceGround(b, sg.MustFilter(engine.YearIn(y)), y); err != nil {
		return err
	}

	b.download("normalized", "Normalized Water Abstraction",
		export.FileName("csv", "normalized", measure, strconv.Itoa(waterFrom), strconv.Itoa(waterTo)),
		sel.NormalizedFrame(engine.ColValue+"_normalized"))
	return nil
}

// surfaceGround stacks surface and ground water abstraction for the chosen
// countries of one year.
func surfaceGround(b *builder, sgYear engine.View, year int) error {
	countries := sgYear.Distinct(engine.ColArea)
	chosen := b.chooseMany("sg_countries", "Select Countries to Compare", countries,
		countries[:min(stackDefaultN, len(countries))])
	if len(chosen) == 0 {
		b.info("Please select at least one country.")
		return nil
	}
	parts, err := engine.Aggregate(sgYear.MustFilter(engine.In(engine.ColArea, chosen...)), engine.AggSpec{
		GroupBy: []string{engine.ColArea, engine.ColWaterType}, Reduce: engine.Sum, Normalize: true,
	})
	if err != nil {
		return err
	}
	b.chart(models.Chart{
		ID: "surface-ground", Title: fmt.Sprintf("Surface vs Groundwater Abstraction (%d)", year),
		Kind: models.ChartStacked, XLabel: "Country", YLabel: "Water abstraction (normalized)",
		Series: stackSeries(parts, engine.ColArea, engine.ColWaterType),
	})
	return nil
}

// shareFrame adds each country's percentage of the frame's total.
func shareFrame(f *engine.Frame) *engine.Frame {
	vals := f.Floats(valueCol(f))
	var total float64
	for _, v := range vals {
		total += v
	}
	out := engine.NewFrame(
		engine.Column{Name: engine.ColArea, Kind: engine.KindString},
		engine.Column{Name: valueCol(f), Kind: engine.KindFloat},
		engine.Column{Name: "Share (%)", Kind: engine.KindFloat},
	)
	for i, area := range f.Strings(engine.ColArea) {
		out.Append(area, num(vals[i]), num(vals[i]/total*100))
	}
	return out
}

// stackSeries builds one series per stack component, each with a point per
// category label, from a frame grouped by [category, component].
func stackSeries(f *engine.Frame, category, component string) []models.Series {
	cats := f.Strings(category)
	comps := f.Strings(component)
	vals := f.Floats(valueCol(f))

	var labels []string
	for _, c := range cats {
		if !slices.Contains(labels, c) {
			labels = append(labels, c)
		}
	}
	var out []models.Series
	for i := range f.Rows {
		at := slices.IndexFunc(out, func(s models.Series) bool { return s.Name == comps[i] })
		if at < 0 {
			at = len(out)
			out = append(out, models.Series{Name: comps[i], Points: []models.Point{}})
		}
		if math.IsNaN(vals[i]) {
			continue
		}
		out[at].Points = append(out[at].Points, models.Point{
			X: float64(slices.Index(labels, cats[i])), Y: vals[i], Label: cats[i],
		})
	}
	slices.SortStableFunc(out, func(a, b models.Series) int {
		return slices.Index(waterTypes, a.Name) - slices.Index(waterTypes, b.Name)
	})
	return out
}
