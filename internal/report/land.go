package report

import (
	"fmt"

	"agridash/internal/engine"
	"agridash/internal/export"
	"agridash/internal/models"
)

var landKeywords = []string{
	"Arable land", "Permanent pasture", "Permanent crops", "Organic farming", "Total agricultural land area",
}

func buildLand(b *builder) error {
	agri, err := b.load(engine.Agri)
	if err != nil {
		return err
	}
	land := agri.All().MustFilter(
		engine.Contains(engine.ColMeasure, landKeywords...),
		engine.Contains(engine.ColUnit, "Hectares"),
		engine.YearBetween(recentYear, 0),
	)
	if land.Empty() {
		b.warn("No land use data available.")
		return nil
	}

	kind := b.choose("land_type", "Select Land Use Type", land.Distinct(engine.ColMeasure), "")
	sel := land.MustFilter(engine.Eq(engine.ColMeasure, kind))

	global, err := byYear(sel, engine.Sum, false)
	if err != nil {
		return err
	}
	b.chart(lineChart("global-trend", fmt.Sprintf("Global Area of %s (2012+)", kind), "Area (hectares)",
		lineSeries(kind, global)))

	top, err := rankAreas(sel, topN, engine.Mean, true, false)
	if err != nil {
		return err
	}
	b.chart(areaChart("top", "Top 10 Countries with Most "+kind, models.ChartBar, "Avg area (ha)",
		labelSeries(kind, top, engine.ColArea)))

	country := b.choose("country", "Select Country", sel.Distinct(engine.ColArea), "")
	ct, err := byYear(sel.MustFilter(engine.Eq(engine.ColArea, country)), engine.Mean, false)
	if err != nil {
		return err
	}
	b.chart(lineChart("country-trend", fmt.Sprintf("%s - %s Over Time", country, kind), "Area (hectares)",
		lineSeries(country, ct)))

	y, ok, err := b.chooseYear("year", "Select Year", sel)
	if err != nil {
		return err
	}
	if ok {
		m, err := byArea(sel.MustFilter(engine.YearIn(y)), engine.Mean, false)
		if err != nil {
			return err
		}
		b.chart(areaChart("map", fmt.Sprintf("%s by Country in %d", kind, y), models.ChartMap, "Area (hectares)",
			labelSeries(kind, m, engine.ColArea)))
	}

	b.download("land", kind+" area", export.FileName("csv", kind, "area"), sel.Frame())
	return nil
}
