// Package report builds the dashboard sections from the loaded tables.
//
// A section reads its widget values from Params, falls back to the same
// defaults the dashboard shows on first load, and returns a Result holding
// the JSON report plus the frames offered for download.
package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"agridash/internal/engine"
	"agridash/internal/metrics"
	"agridash/internal/models"
)

var (
	ErrUnknownSection = errors.New("unknown section")
	ErrUnknownDataset = errors.New("unknown dataset")
	ErrUnknownChart   = errors.New("unknown chart")
)

// Tables loads source tables; *engine.Cache implements it.
type Tables interface {
	Load(ctx context.Context, name engine.TableName) (*engine.Table, error)
}

// Params holds widget values keyed by control name. Multiselect controls
// repeat the key; a key present with only empty values is an empty selection.
type Params map[string][]string

// Get returns the first non-empty value of key.
func (p Params) Get(key string) string {
	for _, v := range p[key] {
		if v != "" {
			return v
		}
	}
	return ""
}

func (p Params) has(key string) bool {
	_, ok := p[key]
	return ok
}

type section struct {
	info  models.SectionInfo
	build func(b *builder) error
}

var sections = []section{
	{models.SectionInfo{ID: "intro", Title: "Introduction",
		Summary: "Overview of the four OECD agri-environmental datasets.",
		Tables:  []string{"agri", "area", "water", "energy"}}, buildIntro},
	{models.SectionInfo{ID: "environment", Title: "Environmental Impact",
		Summary: "Nitrogen and phosphorus surpluses by country since 2012.",
		Tables:  []string{"agri", "area"}}, buildEnvironment},
	{models.SectionInfo{ID: "emissions", Title: "Emissions & Chemicals",
		Summary: "Greenhouse gas and ammonia emissions and pesticide sales.",
		Tables:  []string{"agri"}}, buildEmissions},
	{models.SectionInfo{ID: "land", Title: "Land Use",
		Summary: "Arable land, pasture, permanent crops and organic farming area.",
		Tables:  []string{"agri"}}, buildLand},
	{models.SectionInfo{ID: "water", Title: "Water Use",
		Summary: "Freshwater abstraction 2012-2021 with unit-normalized volumes.",
		Tables:  []string{"water"}}, buildWater},
	{models.SectionInfo{ID: "energy", Title: "Energy Use",
		Summary: "On-farm and total final energy consumption, growth and intensity.",
		Tables:  []string{"energy"}}, buildEnergy},
	{models.SectionInfo{ID: "advanced", Title: "Advanced Analysis",
		Summary: "Single country reports, country comparison and the sustainability summary.",
		Tables:  []string{"agri", "energy"}, Modes: advancedModes}, buildAdvanced},
}

// Service builds reports against a table loader.
type Service struct {
	tables  Tables
	metrics *metrics.Metrics
}

func NewService(tables Tables, m *metrics.Metrics) *Service {
	return &Service{tables: tables, metrics: m}
}

// Sections lists every section in display order.
func (s *Service) Sections() []models.SectionInfo {
	out := make([]models.SectionInfo, len(sections))
	for i, sec := range sections {
		out[i] = sec.info
	}
	return out
}

// Build renders section id for the given widget values.
func (s *Service) Build(ctx context.Context, id string, p Params) (*Result, error) {
	i := slices.IndexFunc(sections, func(sec section) bool { return sec.info.ID == id })
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSection, id)
	}
	sec := sections[i]

	b := &builder{
		ctx:    ctx,
		tables: s.tables,
		params: p,
		res: &Result{
			Report: models.Report{
				Section:  sec.info.ID,
				Title:    sec.info.Title,
				Controls: []models.Control{},
				Charts:   []models.Chart{},
			},
			datasets: make(map[string]dataset),
		},
	}
	if err := sec.build(b); err != nil {
		s.metrics.Report(id, "error")
		return nil, fmt.Errorf("section %s: %w", id, err)
	}
	s.metrics.Report(id, "ok")
	return b.res, nil
}

// Result is a built report plus its downloadable frames.
type Result struct {
	Report   models.Report
	datasets map[string]dataset
}

type dataset struct {
	fileName string
	frame    *engine.Frame
}

// Dataset returns a downloadable frame and its CSV file name.
func (r *Result) Dataset(id string) (*engine.Frame, string, error) {
	d, ok := r.datasets[id]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q in %s", ErrUnknownDataset, id, r.Report.Section)
	}
	return d.frame, d.fileName, nil
}

func (r *Result) Chart(id string) (models.Chart, error) {
	for _, c := range r.Report.Charts {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Chart{}, fmt.Errorf("%w: %q in %s", ErrUnknownChart, id, r.Report.Section)
}

// builder accumulates one report.
type builder struct {
	ctx    context.Context
	tables Tables
	params Params
	res    *Result
}

func (b *builder) load(name engine.TableName) (*engine.Table, error) {
	return b.tables.Load(b.ctx, name)
}

// choose adds a select control and returns its value: the requested option
// when offered, else def when offered, else the first option. It returns ""
// when there are no options.
func (b *builder) choose(name, label string, options []string, def string) string {
	value := ""
	switch {
	case len(options) == 0:
	case slices.Contains(options, b.params.Get(name)):
		value = b.params.Get(name)
	case slices.Contains(options, def):
		value = def
	default:
		value = options[0]
	}
	ctl := models.Control{Name: name, Label: label, Kind: "select", Options: options, Value: []string{}}
	if ctl.Options == nil {
		ctl.Options = []string{}
	}
	if value != "" {
		ctl.Value = []string{value}
	}
	b.res.Report.Controls = append(b.res.Report.Controls, ctl)
	return value
}

// chooseMany adds a multiselect control. Requested values not on offer are
// dropped; without a request the offered defaults are selected.
func (b *builder) chooseMany(name, label string, options, defaults []string) []string {
	want := defaults
	if b.params.has(name) {
		want = b.params[name]
	}
	chosen := []string{}
	for _, v := range want {
		if v != "" && slices.Contains(options, v) && !slices.Contains(chosen, v) {
			chosen = append(chosen, v)
		}
	}
	if options == nil {
		options = []string{}
	}
	b.res.Report.Controls = append(b.res.Report.Controls, models.Control{
		Name: name, Label: label, Kind: "multiselect", Options: options, Value: chosen,
	})
	return chosen
}

func (b *builder) warn(text string) {
	b.res.Report.Notices = append(b.res.Report.Notices, models.Notice{Level: "warning", Text: text})
}

func (b *builder) info(text string) {
	b.res.Report.Notices = append(b.res.Report.Notices, models.Notice{Level: "info", Text: text})
}

func (b *builder) chart(c models.Chart) {
	if c.Series == nil {
		c.Series = []models.Series{}
	}
	b.res.Report.Charts = append(b.res.Report.Charts, c)
}

func (b *builder) card(title, unit string, cur, prev *float64) {
	c := models.Card{Title: title, Unit: unit, Value: cur}
	if cur != nil && prev != nil && *prev != 0 {
		d := (*cur - *prev) / *prev * 100
		c.DeltaPct = &d
	}
	b.res.Report.Cards = append(b.res.Report.Cards, c)
}

func (b *builder) table(id, title string, f *engine.Frame) {
	cols := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		cols[i] = c.Name
	}
	b.res.Report.Tables = append(b.res.Report.Tables, models.TableBlock{
		ID: id, Title: title, Columns: cols, Rows: f.Rows,
	})
}

func (b *builder) download(id, title, fileName string, f *engine.Frame) {
	b.res.datasets[id] = dataset{fileName: fileName, frame: f}
	b.res.Report.Downloads = append(b.res.Report.Downloads, models.Download{
		ID: id, Title: title, FileName: fileName,
	})
}

// yearOptions lists the view's years as strings, newest first when desc.
// chooseYear offers the view's years, newest first, defaulting to the
// latest. ok is false when the view has no years.
func (b *builder) chooseYear(name, label string, v engine.View) (year int, ok bool, err error) {
	s := b.choose(name, label, yearOptions(v, true), "")
	if s == "" {
		return 0, false, nil
	}
	year, err = strconv.Atoi(s)
	if err != nil {
		return 0, false, fmt.Errorf("year option %q: %w", s, err)
	}
	return year, true, nil
}

func yearOptions(v engine.View, desc bool) []string {
	years := v.Years()
	out := make([]string, len(years))
	for i, y := range years {
		out[i] = strconv.Itoa(y)
	}
	if desc {
		slices.Reverse(out)
	}
	return out
}

func atoiAll(ss []string) []int {
	out := make([]int, 0, len(ss))
	for _, s := range ss {
		if n, err := strconv.Atoi(s); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// num keeps NaN and Inf out of frames: they have no JSON or CSV form.
func num(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func ptr(f float64, ok bool) *float64 {
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
