package report

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"agridash/internal/engine"
	"agridash/internal/models"
	"agridash/internal/testutil"
)

func build(t *testing.T, id string, p Params) *Result {
	t.Helper()
	res, err := NewService(testutil.Cache(), nil).Build(context.Background(), id, p)
	if err != nil {
		t.Fatalf("Build(%s): %v", id, err)
	}
	return res
}

func control(t *testing.T, r models.Report, name string) models.Control {
	t.Helper()
	for _, c := range r.Controls {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("%s: no control %q", r.Section, name)
	return models.Control{}
}

func chartOf(t *testing.T, res *Result, id string) models.Chart {
	t.Helper()
	c, err := res.Chart(id)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func tableOf(t *testing.T, r models.Report, id string) models.TableBlock {
	t.Helper()
	for _, tb := range r.Tables {
		if tb.ID == id {
			return tb
		}
	}
	t.Fatalf("%s: no table %q", r.Section, id)
	return models.TableBlock{}
}

func labels(s models.Series) []string {
	out := make([]string, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Label
	}
	return out
}

func near(a, b float64) bool { return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b)) }

func TestSections(t *testing.T) {
	svc := NewService(testutil.Cache(), nil)
	want := []string{"intro", "environment", "emissions", "land", "water", "energy", "advanced"}
	got := svc.Sections()
	if len(got) != len(want) {
		t.Fatalf("got %d sections, want %d", len(got), len(want))
	}
	for i, s := range got {
		if s.ID != want[i] {
			t.Errorf("section %d = %s, want %s", i, s.ID, want[i])
		}
	}

	if _, err := svc.Build(context.Background(), "nope", nil); !errors.Is(err, ErrUnknownSection) {
		t.Errorf("unknown section: got %v", err)
	}
}

type failingTables struct{ err error }

func (f failingTables) Load(context.Context, engine.TableName) (*engine.Table, error) {
	return nil, f.err
}

func TestBuildPropagatesLoadErrors(t *testing.T) {
	svc := NewService(failingTables{err: engine.ErrConnectivity}, nil)
	for _, s := range svc.Sections() {
		if _, err := svc.Build(context.Background(), s.ID, nil); !errors.Is(err, engine.ErrConnectivity) {
			t.Errorf("%s: got %v, want ErrConnectivity", s.ID, err)
		}
	}
}

func TestIntro(t *testing.T) {
	res := build(t, "intro", nil)
	overview := tableOf(t, res.Report, "overview")
	if len(overview.Rows) != 4 {
		t.Fatalf("overview has %d rows", len(overview.Rows))
	}
	agri := overview.Rows[0]
	if agri[0] != "agri" || agri[2] != int64(73) || agri[3] != int64(3) || agri[5] != int64(2010) || agri[6] != int64(2015) {
		t.Errorf("agri overview = %v", agri)
	}
	if len(res.Report.Downloads) != 4 {
		t.Errorf("got %d downloads", len(res.Report.Downloads))
	}
	f, name, err := res.Dataset("water")
	if err != nil {
		t.Fatal(err)
	}
	if name != "water.csv" || f.Len() != 34 {
		t.Errorf("water dataset = %s with %d rows", name, f.Len())
	}
	if preview := tableOf(t, res.Report, "preview-energy"); len(preview.Rows) != previewRows {
		t.Errorf("preview has %d rows", len(preview.Rows))
	}
	if _, _, err := res.Dataset("missing"); !errors.Is(err, ErrUnknownDataset) {
		t.Errorf("missing dataset: got %v", err)
	}
}

func TestEnvironmentDefaults(t *testing.T) {
	res := build(t, "environment", nil)

	if c := control(t, res.Report, "nutrient"); !slices.Equal(c.Value, []string{"Nitrogen"}) {
		t.Errorf("nutrient = %v", c.Value)
	}

	// 2010 is before the window.
	trend := chartOf(t, res, "global-trend").Series[0].Points
	if len(trend) != 4 || trend[0].X != 2012 {
		t.Fatalf("trend = %+v", trend)
	}
	if !near(trend[0].Y, (48.0+80+30)/3) {
		t.Errorf("2012 mean = %v", trend[0].Y)
	}

	if got := labels(chartOf(t, res, "top").Series[0]); !slices.Equal(got, []string{"Germany", "France", "Mexico"}) {
		t.Errorf("top = %v", got)
	}

	heat := tableOf(t, res.Report, "heatmap")
	if !slices.Equal(heat.Columns, []string{engine.ColArea, "2012", "2013", "2014", "2015"}) {
		t.Errorf("heatmap columns = %v", heat.Columns)
	}

	if c := control(t, res.Report, "year"); !slices.Equal(c.Value, []string{"2015"}) || c.Options[0] != "2015" {
		t.Errorf("map year control = %+v", c)
	}

	scatter := chartOf(t, res, "nitrogen-phosphorus").Series[0].Points
	if len(scatter) != 3 || scatter[0].Label != "France" || scatter[0].X != 51 || scatter[0].Y != 3.5 {
		t.Errorf("scatter = %+v", scatter)
	}

	norm := chartOf(t, res, "normalized-top").Series[0]
	if got := labels(norm); !slices.Equal(got, []string{"Germany", "France", "Mexico"}) {
		t.Errorf("normalized top = %v", got)
	}
	if !near(norm.Points[1].Y, 51.0/18000) {
		t.Errorf("France per hectare = %v", norm.Points[1].Y)
	}

	outliers := tableOf(t, res.Report, "outliers")
	if len(outliers.Rows) != 1 || outliers.Rows[0][0] != "Germany" {
		t.Errorf("outliers = %v", outliers.Rows)
	}

	f, name, err := res.Dataset("normalized")
	if err != nil {
		t.Fatal(err)
	}
	if name != "normalized_nitrogen_surplus.csv" {
		t.Errorf("file name = %s", name)
	}
	if f.Len() != 12 {
		t.Errorf("normalized rows = %d, want 12", f.Len())
	}
}

func TestEnvironmentInvalidWidgetFallsBack(t *testing.T) {
	res := build(t, "environment", Params{"nutrient": {"Potassium"}, "country": {"Mexico"}})
	if c := control(t, res.Report, "nutrient"); !slices.Equal(c.Value, []string{"Nitrogen"}) {
		t.Errorf("nutrient = %v", c.Value)
	}
	ct := chartOf(t, res, "country-trend")
	if ct.Series[0].Name != "Mexico" || len(ct.Series[0].Points) != 4 || ct.Series[0].Points[3].Y != 36 {
		t.Errorf("Mexico trend = %+v", ct.Series)
	}
}

func TestEnvironmentPhosphorus(t *testing.T) {
	res := build(t, "environment", Params{"nutrient": {"Phosphorus"}})
	if got := labels(chartOf(t, res, "top").Series[0]); !slices.Equal(got, []string{"Mexico", "France", "Germany"}) {
		t.Errorf("top = %v", got)
	}
	if _, name, _ := res.Dataset("normalized"); name != "normalized_phosphorus_surplus.csv" {
		t.Errorf("file name = %s", name)
	}
}

func TestEmissions(t *testing.T) {
	res := build(t, "emissions", nil)
	gas := control(t, res.Report, "gas")
	if !slices.Equal(gas.Options, []string{"Methane emissions", "Total greenhouse gas emissions"}) {
		t.Errorf("gas options = %v", gas.Options)
	}
	trend := chartOf(t, res, "ghg-trend").Series[0].Points
	if len(trend) != 2 || trend[0].Y != 55000 || trend[1].Y != 55200 {
		t.Errorf("methane trend = %+v", trend)
	}
	if got := labels(chartOf(t, res, "nh3-top").Series[0]); !slices.Equal(got, []string{"France", "Germany"}) {
		t.Errorf("nh3 top = %v", got)
	}
	pest := chartOf(t, res, "pesticide-top").Series[0]
	if len(pest.Points) != 2 || pest.Points[0].Y != 70250 {
		t.Errorf("pesticide top = %+v", pest)
	}
	if len(res.Report.Notices) != 0 {
		t.Errorf("unexpected notices %v", res.Report.Notices)
	}

	res = build(t, "emissions", Params{"gas": {"Total greenhouse gas emissions"}, "ghg_country": {"Germany"}})
	ct := chartOf(t, res, "ghg-country").Series[0].Points
	if len(ct) != 4 || ct[0].Y != 64000 {
		t.Errorf("Germany GHG = %+v", ct)
	}
}

func TestLand(t *testing.T) {
	res := build(t, "land", nil)
	if c := control(t, res.Report, "land_type"); !slices.Equal(c.Options, []string{"Arable land", "Permanent pasture"}) {
		t.Errorf("land types = %v", c.Options)
	}
	global := chartOf(t, res, "global-trend").Series[0].Points
	if len(global) != 4 || global[0].Y != 18000+11800+23000 {
		t.Errorf("global = %+v", global)
	}
	if got := labels(chartOf(t, res, "top").Series[0]); !slices.Equal(got, []string{"Mexico", "France", "Germany"}) {
		t.Errorf("top = %v", got)
	}
	if _, name, err := res.Dataset("land"); err != nil || name != "arable_land_area.csv" {
		t.Errorf("dataset = %s, %v", name, err)
	}
}

func TestWater(t *testing.T) {
	res := build(t, "water", nil)
	top := chartOf(t, res, "top").Series[0]
	if got := labels(top); !slices.Equal(got, []string{"Mexico", "France", "Germany"}) {
		t.Errorf("top = %v", got)
	}
	if !near(top.Points[0].Y, 120e9) || !near(top.Points[1].Y, 27450e6) {
		t.Errorf("top values = %+v", top.Points)
	}

	global := chartOf(t, res, "global-trend").Series[0].Points
	if len(global) != 10 || global[0].X != 2012 || global[9].X != 2021 {
		t.Errorf("global years = %+v", global)
	}

	share := tableOf(t, res.Report, "share")
	var total float64
	for _, r := range share.Rows {
		total += r[2].(float64)
	}
	if !near(total, 100) {
		t.Errorf("shares sum to %v", total)
	}

	if c := control(t, res.Report, "sg_countries"); !slices.Equal(c.Value, []string{"France", "Germany"}) {
		t.Errorf("stack countries = %v", c.Value)
	}
	stack := chartOf(t, res, "surface-ground").Series
	if len(stack) != 3 || stack[0].Name != "Surface water" || stack[2].Name != "Not applicable" {
		t.Fatalf("stack series = %+v", stack)
	}
	if len(stack[2].Points) != 1 || stack[2].Points[0].Label != "Germany" || !near(stack[2].Points[0].Y, 20000e6) {
		t.Errorf("not applicable = %+v", stack[2].Points)
	}

	f, name, err := res.Dataset("normalized")
	if err != nil {
		t.Fatal(err)
	}
	if name != "normalized_agriculture_freshwater_abstraction_2012_2021.csv" || f.Col("Value_normalized") < 0 {
		t.Errorf("dataset %s columns %v", name, f.Columns)
	}
}

func TestWaterEmptySelection(t *testing.T) {
	res := build(t, "water", Params{"sg_countries": {""}})
	if _, err := res.Chart("surface-ground"); !errors.Is(err, ErrUnknownChart) {
		t.Errorf("stacked chart should be absent: %v", err)
	}
	if len(res.Report.Notices) != 1 || res.Report.Notices[0].Level != "info" {
		t.Errorf("notices = %+v", res.Report.Notices)
	}
}

func TestEnergy(t *testing.T) {
	res := build(t, "energy", nil)
	if c := control(t, res.Report, "measure"); !slices.Equal(c.Value, []string{onFarmEnergy}) {
		t.Errorf("measure = %v", c.Value)
	}

	growth := tableOf(t, res.Report, "growth")
	if len(growth.Rows) != 2 {
		t.Fatalf("growth rows = %v", growth.Rows)
	}
	france := growth.Rows[0]
	wantRate := (math.Pow(2.1, 1.0/11) - 1) * 100
	if france[0] != "France" || !near(france[1].(float64), wantRate) || france[3] != int64(2005) || france[4] != int64(2016) {
		t.Errorf("France growth = %v", france)
	}
	if got := labels(chartOf(t, res, "growth-fastest").Series[0]); !slices.Equal(got, []string{"France", "Germany"}) {
		t.Errorf("fastest = %v", got)
	}
	if got := labels(chartOf(t, res, "growth-declining").Series[0]); !slices.Equal(got, []string{"Germany"}) {
		t.Errorf("declining = %v", got)
	}

	high := chartOf(t, res, "intensity-high").Series[0].Points
	if len(high) != 2 || high[0].Label != "France" || !near(high[0].Y, 21) || !near(high[1].Y, 9.5) {
		t.Errorf("intensity = %+v", high)
	}

	if _, name, _ := res.Dataset("energy"); name != "direct_on-farm_energy_consumption_energy.csv" {
		t.Errorf("file name = %s", name)
	}
}

func TestEnergyNoDecline(t *testing.T) {
	res := build(t, "energy", Params{"measure": {totalEnergy}})
	if _, err := res.Chart("growth-declining"); err == nil {
		t.Error("flat totals should not chart a decline")
	}
	found := false
	for _, n := range res.Report.Notices {
		found = found || n.Level == "info"
	}
	if !found {
		t.Errorf("notices = %+v", res.Report.Notices)
	}
}

func TestAdvancedSingle(t *testing.T) {
	res := build(t, "advanced", nil)
	if c := control(t, res.Report, "mode"); !slices.Equal(c.Value, []string{modeSingle}) {
		t.Errorf("mode = %v", c.Value)
	}
	want := map[string]float64{
		"Nitrogen Surplus": 54, "Phosphorus Surplus": 5, "GHG Emissions": 73000,
		"Energy Use": 200, "Water Use": 2710, "Arable Land": 18030,
	}
	if len(res.Report.Cards) != len(want) {
		t.Fatalf("got %d cards", len(res.Report.Cards))
	}
	for _, c := range res.Report.Cards {
		if c.Value == nil || *c.Value != want[c.Title] {
			t.Errorf("%s = %v, want %v", c.Title, c.Value, want[c.Title])
		}
		if c.DeltaPct != nil {
			t.Errorf("%s: delta without a previous year", c.Title)
		}
	}
	if _, name, _ := res.Dataset("country"); name != "france_report.csv" {
		t.Errorf("file name = %s", name)
	}

	res = build(t, "advanced", Params{"years": {"2014", "2015"}})
	n := res.Report.Cards[0]
	if n.DeltaPct == nil || !near(*n.DeltaPct, (54.0-52)/52*100) {
		t.Errorf("nitrogen delta = %v", n.DeltaPct)
	}

	res = build(t, "advanced", Params{"country": {"Mexico"}})
	for _, c := range res.Report.Cards {
		if c.Title == "GHG Emissions" && (c.Value == nil || *c.Value != 0) {
			t.Errorf("Mexico GHG = %v, want 0", c.Value)
		}
		if c.Title == "Energy Use" && (c.Value == nil || *c.Value != 500) {
			t.Errorf("Mexico energy = %v", c.Value)
		}
	}

	res = build(t, "advanced", Params{"years": {}})
	if len(res.Report.Cards) != 0 || len(res.Report.Notices) != 1 || res.Report.Notices[0].Level != "warning" {
		t.Errorf("empty years: cards %v notices %v", res.Report.Cards, res.Report.Notices)
	}
}

func TestAdvancedCompare(t *testing.T) {
	res := build(t, "advanced", Params{"mode": {modeCompare}})
	kpi := tableOf(t, res.Report, "kpi")
	if len(kpi.Rows) != 2 || kpi.Rows[0][0] != "France" || kpi.Rows[1][0] != "Germany" {
		t.Fatalf("kpi rows = %v", kpi.Rows)
	}
	if kpi.Rows[1][4] != 61000.0 {
		t.Errorf("Germany GHG = %v", kpi.Rows[1][4])
	}
	if _, name, _ := res.Dataset("kpi"); name != "multi_country_kpi.csv" {
		t.Errorf("file name = %s", name)
	}

	res = build(t, "advanced", Params{"mode": {modeCompare}, "indicator": {"GHG Emissions"}, "years": {"2014", "2015"}})
	trend := chartOf(t, res, "indicator-trend").Series
	if len(trend) != 2 || trend[1].Name != "Germany" || len(trend[1].Points) != 2 || trend[1].Points[0].Y != 62000 {
		t.Errorf("GHG trend = %+v", trend)
	}
	kpi = tableOf(t, res.Report, "kpi")
	if kpi.Rows[0][1] != int64(2014) || kpi.Rows[0][0] != "France" {
		t.Errorf("kpi order = %v", kpi.Rows)
	}
}

func TestAdvancedSummary(t *testing.T) {
	res := build(t, "advanced", Params{"mode": {modeSummary}})
	s := tableOf(t, res.Report, "summary")
	if len(s.Rows) != 3 || s.Columns[2] != "Nitrogen Surplus (kg/ha)" || s.Columns[6] != "Water Use (m³)" {
		t.Fatalf("summary = %v %v", s.Columns, s.Rows)
	}
	mexico := s.Rows[2]
	if mexico[0] != "Mexico" || mexico[2] != 36.0 || mexico[4] != 0.0 || mexico[5] != 500.0 {
		t.Errorf("Mexico = %v", mexico)
	}

	res = build(t, "advanced", Params{"mode": {modeSummary}, "countries": {"Atlantis"}})
	if len(res.Report.Tables) != 0 || len(res.Report.Notices) != 1 {
		t.Errorf("unknown country: tables %v notices %v", res.Report.Tables, res.Report.Notices)
	}
}
