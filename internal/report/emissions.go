package report

import (
	"fmt"

	"agridash/internal/engine"
	"agridash/internal/models"
)

const compareTopN = 15

var (
	ghgKeywords       = []string{"Total greenhouse gas emissions", "Methane", "Nitrous oxide", "Carbon dioxide"}
	pesticideMeasures = []string{
		"Sales of insecticides", "Sales of fungicides", "Sales of herbicides", "Total sales of agricultural pesticides",
	}
)

func buildEmissions(b *builder) error {
	agri, err := b.load(engine.Agri)
	if err != nil {
		return err
	}
	tonnes := engine.Contains(engine.ColUnit, "Tonnes")

	// --- 1. Greenhouse gases ---
	ghg := agri.All().MustFilter(engine.Contains(engine.ColMeasure, ghgKeywords...), tonnes)
	if ghg.Empty() {
		b.warn("No GHG emission data found in this dataset.")
	} else {
		gas := b.choose("gas", "Select Greenhouse Gas", ghg.Distinct(engine.ColMeasure), "")
		sel := ghg.MustFilter(engine.Eq(engine.ColMeasure, gas))
		total, err := byYear(sel, engine.Sum, false)
		if err != nil {
			return err
		}
		b.chart(lineChart("ghg-trend", fmt.Sprintf("%s from Agriculture (Total across countries)", gas),
			"Emissions (tonnes)", lineSeries(gas, total)))

		country := b.choose("ghg_country", "Select Country", sel.Distinct(engine.ColArea), "")
		ct, err := byYear(sel.MustFilter(engine.Eq(engine.ColArea, country)), engine.Sum, false)
		if err != nil {
			return err
		}
		b.chart(lineChart("ghg-country", fmt.Sprintf("%s Emissions: %s", gas, country),
			"Emissions (tonnes)", lineSeries(country, ct)))
	}

	// --- 2. Country comparison since 2012 ---
	recent := ghg.MustFilter(engine.YearBetween(recentYear, 0))
	if cmpGas := b.choose("compare_gas", "Select Gas for Comparison", recent.Distinct(engine.ColMeasure), ""); cmpGas != "" {
		top, err := rankAreas(recent.MustFilter(engine.Eq(engine.ColMeasure, cmpGas)), compareTopN, engine.Mean, true, false)
		if err != nil {
			return err
		}
		b.chart(areaChart("ghg-compare", fmt.Sprintf("Top 15 Countries: %s Emissions", cmpGas), models.ChartBar,
			cmpGas+" emissions (tonnes)", labelSeries(cmpGas, top, engine.ColArea)))
	}

	// --- 3. Ammonia ---
	nh3 := agri.All().MustFilter(engine.Contains(engine.ColMeasure, "Ammonia"), tonnes, engine.YearBetween(recentYear, 0))
	if nh3.Empty() {
		b.warn("No Ammonia emission data found.")
	} else {
		top, err := rankAreas(nh3, topN, engine.Mean, true, false)
		if err != nil {
			return err
		}
		b.chart(areaChart("nh3-top", "Top 10 NH3 Emitting Countries (since 2012)", models.ChartBar,
			"Average NH3 emissions (tonnes)", labelSeries("NH3", top, engine.ColArea)))

		country := b.choose("nh3_country", "Select Country", nh3.Distinct(engine.ColArea), "")
		ct, err := byYear(nh3.MustFilter(engine.Eq(engine.ColArea, country)), engine.Sum, false)
		if err != nil {
			return err
		}
		b.chart(lineChart("nh3-country", fmt.Sprintf("%s: NH3 Emissions Over Time", country),
			"NH3 emissions (tonnes)", lineSeries(country, ct)))
	}

	// --- 4. Pesticide sales ---
	pest := agri.All().MustFilter(engine.In(engine.ColMeasure, pesticideMeasures...), tonnes, engine.YearBetween(recentYear, 0))
	if pest.Empty() {
		b.warn("No pesticide sales data found.")
		return nil
	}
	kind := b.choose("pesticide", "Select Pesticide Type", pest.Distinct(engine.ColMeasure), "")
	sel := pest.MustFilter(engine.Eq(engine.ColMeasure, kind))
	top, err := rankAreas(sel, topN, engine.Mean, true, false)
	if err != nil {
		return err
	}
	b.chart(areaChart("pesticide-top", "Top 10 Countries by "+kind, models.ChartBar,
		"Avg sales (tonnes)", labelSeries(kind, top, engine.ColArea)))

	country := b.choose("pesticide_country", "Select Country", sel.Distinct(engine.ColArea), "")
	ct, err := byYear(sel.MustFilter(engine.Eq(engine.ColArea, country)), engine.Sum, false)
	if err != nil {
		return err
	}
	b.chart(lineChart("pesticide-country", fmt.Sprintf("%s: %s Usage Over Time", country, kind),
		kind+" (tonnes)", lineSeries(country, ct)))
	return nil
}
