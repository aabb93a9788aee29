package report

import (
	"fmt"
	"slices"
	"sort"

	"agridash/internal/engine"
	"agridash/internal/export"
)

const (
	modeSingle  = "single"
	modeCompare = "compare"
	modeSummary = "summary"
)

var advancedModes = []string{modeSingle, modeCompare, modeSummary}

// indicator is one sustainability KPI: a table slice reduced per country
// and year.
type indicator struct {
	Name   string
	Unit   string
	Table  engine.TableName
	Column string
	Match  string
	Reduce engine.Reduce
}

var indicators = []indicator{
	{"Nitrogen Surplus", "kg/ha", engine.Agri, engine.ColNutrients, "Nitrogen", engine.Mean},
	{"Phosphorus Surplus", "kg/ha", engine.Agri, engine.ColNutrients, "Phosphorus", engine.Mean},
	{"GHG Emissions", "tonnes", engine.Agri, engine.ColMeasure, "Total greenhouse gas emissions", engine.Sum},
	{"Energy Use", "TOE", engine.Energy, engine.ColMeasure, "Direct on-farm energy consumption", engine.Sum},
	{"Water Use", "m³", engine.Agri, engine.ColMeasure, "Agriculture freshwater abstraction", engine.Sum},
	{"Arable Land", "ha", engine.Agri, engine.ColMeasure, "Arable land", engine.Sum},
}

// eval reduces the indicator's rows in v. A sum over no values is 0; a mean
// over no values is undefined.
func (ind indicator) eval(v engine.View) (float64, bool) {
	sel := v.MustFilter(engine.Eq(ind.Column, ind.Match))
	t := sel.Table()
	var sum float64
	n := 0
	for _, row := range sel.Rows() {
		if x, ok := t.Value(row); ok {
			sum += x
			n++
		}
	}
	if ind.Reduce == engine.Mean {
		if n == 0 {
			return 0, false
		}
		return sum / float64(n), true
	}
	return sum, true
}

// kpiTables holds the tables indicators draw from.
type kpiTables map[engine.TableName]*engine.Table

func (kt kpiTables) view(ind indicator, preds ...engine.Predicate) engine.View {
	return kt[ind.Table].All().MustFilter(preds...)
}

func buildAdvanced(b *builder) error {
	agri, err := b.load(engine.Agri)
	if err != nil {
		return err
	}
	energy, err := b.load(engine.Energy)
	if err != nil {
		return err
	}
	tables := kpiTables{engine.Agri: agri, engine.Energy: energy}

	switch b.choose("mode", "Choose Analysis Mode", advancedModes, modeSingle) {
	case modeCompare:
		return compareCountries(b, tables)
	case modeSummary:
		return summaryTable(b, tables)
	default:
		return singleCountry(b, tables)
	}
}

// chooseYears offers every agri year and defaults to the latest.
func chooseYears(b *builder, agri *engine.Table) []int {
	opts := yearOptions(agri.All(), false)
	var def []string
	if len(opts) > 0 {
		def = opts[len(opts)-1:]
	}
	years := atoiAll(b.chooseMany("years", "Select Year(s)", opts, def))
	slices.Sort(years)
	return years
}

func singleCountry(b *builder, tables kpiTables) error {
	agri, energy := tables[engine.Agri], tables[engine.Energy]
	country := b.choose("country", "Select Country", agri.Distinct(engine.ColArea), "")
	years := chooseYears(b, agri)
	if len(years) == 0 {
		b.warn("Please select at least one year.")
		return nil
	}
	inCountry := []engine.Predicate{engine.Eq(engine.ColArea, country), engine.YearIn(years...)}
	agriC := agri.All().MustFilter(inCountry...)
	energyC := energy.All().MustFilter(inCountry...)

	// 1. KPI cards for the latest selected year
	latest := years[len(years)-1]
	hasPrev := slices.Contains(years, latest-1)
	for _, ind := range indicators {
		v := agriC
		if ind.Table == engine.Energy {
			v = energyC
		}
		cur := ptr(ind.eval(v.MustFilter(engine.YearIn(latest))))
		var prev *float64
		if hasPrev {
			prev = ptr(ind.eval(v.MustFilter(engine.YearIn(latest - 1))))
		}
		b.card(ind.Name, ind.Unit, cur, prev)
	}

	// 2. Per-domain trends
	domains := []struct {
		control, label, unit, empty string
		view                        engine.View
		column                      string
		options                     []string
		reduce                      engine.Reduce
	}{
		{"nutrient", "Select Nutrient", "kg/ha", "No nutrient data available.",
			agriC, engine.ColNutrients, agriC.Distinct(engine.ColNutrients), engine.Mean},
		{"gas", "Select Gas Type", "Emissions (tonnes)", "No GHG emission data available.",
			agriC, engine.ColMeasure, agriC.MustFilter(engine.Contains(engine.ColMeasure, "emission")).Distinct(engine.ColMeasure), engine.Sum},
		{"energy_measure", "Select Energy Measure", "TOE", "No energy data available.",
			energyC, engine.ColMeasure, energyC.Distinct(engine.ColMeasure), engine.Sum},
		{"water_measure", "Select Water Measure", "m³ / ha", "No water-related data available.",
			agriC, engine.ColMeasure, agriC.MustFilter(engine.Contains(engine.ColMeasure, "water", "irrigation")).Distinct(engine.ColMeasure), engine.Sum},
		{"land_type", "Select Land Use Type", "Hectares", "No land use data available.",
			agriC, engine.ColMeasure, agriC.MustFilter(engine.Contains(engine.ColUnit, "Hectares")).Distinct(engine.ColMeasure), engine.Sum},
	}
	for _, d := range domains {
		choice := b.choose(d.control, d.label, d.options, "")
		if choice == "" {
			b.info(d.empty)
			continue
		}
		trend, err := byYear(d.view.MustFilter(engine.Eq(d.column, choice)), d.reduce, false)
		if err != nil {
			return err
		}
		b.chart(lineChart(d.control+"-trend", choice+" Over Time", d.unit, lineSeries(choice, trend)))
	}

	b.download("country", country+" data", export.FileName("csv", country, "report"), agriC.Frame())
	return nil
}

func compareCountries(b *builder, tables kpiTables) error {
	agri := tables[engine.Agri]
	countries := b.chooseMany("countries", "Select Countries", agri.Distinct(engine.ColArea), []string{"France", "Germany"})
	years := chooseYears(b, agri)
	if len(countries) == 0 || len(years) == 0 {
		b.warn("Please select at least one country and one year.")
		return nil
	}

	kpi := kpiFrame(tables, countries, years, false)
	b.table("kpi", "Key Indicators by Country", kpi)
	b.download("kpi", "KPI Data", "multi_country_kpi.csv", kpi)

	names := make([]string, len(indicators))
	for i, ind := range indicators {
		names[i] = ind.Name
	}
	name := b.choose("indicator", "Select Indicator to Compare", names, names[0])
	ind := indicators[slices.Index(names, name)]

	v := tables.view(ind, engine.In(engine.ColArea, countries...), engine.YearIn(years...), engine.Eq(ind.Column, ind.Match))
	trend, err := engine.Aggregate(v, engine.AggSpec{GroupBy: []string{engine.ColYear, engine.ColArea}, Reduce: ind.Reduce})
	if err != nil {
		return err
	}
	unit := "units"
	if units := v.Distinct(engine.ColUnit); len(units) > 0 {
		unit = units[0]
	}
	b.info(fmt.Sprintf("Indicator source: %s = %s, unit: %s", ind.Column, ind.Match, unit))
	b.chart(lineChart("indicator-trend", ind.Name+" Comparison Over Time", unit, seriesBy(trend, engine.ColArea)...))
	return nil
}

func summaryTable(b *builder, tables kpiTables) error {
	agri := tables[engine.Agri]
	countries := b.chooseMany("countries", "Select Countries", agri.Distinct(engine.ColArea),
		[]string{"France", "Germany", "Mexico"})
	years := chooseYears(b, agri)
	if len(countries) == 0 || len(years) == 0 {
		b.warn("Please select at least one country and one year.")
		return nil
	}
	summary := kpiFrame(tables, countries, years, true)
	b.table("summary", "Sustainability Summary Table", summary)
	b.download("summary", "Sustainability Summary", "sustainability_summary.csv", summary)
	return nil
}

// kpiFrame evaluates every indicator per country and year, ordered by year
// then country. withUnits appends the unit to each indicator header.
func kpiFrame(tables kpiTables, countries []string, years []int, withUnits bool) *engine.Frame {
	cols := []engine.Column{
		{Name: "Country", Kind: engine.KindString},
		{Name: engine.ColYear, Kind: engine.KindInt},
	}
	for _, ind := range indicators {
		name := ind.Name
		if withUnits {
			name = fmt.Sprintf("%s (%s)", ind.Name, ind.Unit)
		}
		cols = append(cols, engine.Column{Name: name, Kind: engine.KindFloat})
	}
	out := engine.NewFrame(cols...)

	views := make(map[engine.TableName]engine.View, len(tables))
	for name, t := range tables {
		views[name] = t.All().MustFilter(engine.In(engine.ColArea, countries...), engine.YearIn(years...))
	}
	for _, country := range countries {
		for _, year := range years {
			cells := []any{country, int64(year)}
			for _, ind := range indicators {
				v := views[ind.Table].MustFilter(engine.Eq(engine.ColArea, country), engine.YearIn(year))
				if x, ok := ind.eval(v); ok {
					cells = append(cells, num(x))
				} else {
					cells = append(cells, nil)
				}
			}
			out.Append(cells...)
		}
	}
	sort.SliceStable(out.Rows, func(i, j int) bool {
		yi, yj := out.Rows[i][1].(int64), out.Rows[j][1].(int64)
		if yi != yj {
			return yi < yj
		}
		return out.Rows[i][0].(string) < out.Rows[j][0].(string)
	})
	return out
}
