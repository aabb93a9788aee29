package models

// SectionInfo describes one dashboard section in the section index.
type SectionInfo struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Tables  []string `json:"tables"`
	Modes   []string `json:"modes,omitempty"`
}

// Report is everything a section renders for one set of widget values.
type Report struct {
	Section   string       `json:"section"`
	Title     string       `json:"title"`
	Controls  []Control    `json:"controls"`
	Cards     []Card       `json:"cards,omitempty"`
	Charts    []Chart      `json:"charts"`
	Tables    []TableBlock `json:"tables,omitempty"`
	Notices   []Notice     `json:"notices,omitempty"`
	Downloads []Download   `json:"downloads,omitempty"`
}

// Control is a widget: the options offered and the value in effect.
type Control struct {
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Kind    string   `json:"kind"` // select | multiselect
	Options []string `json:"options"`
	Value   []string `json:"value"`
}

type Card struct {
	Title    string   `json:"title"`
	Unit     string   `json:"unit"`
	Value    *float64 `json:"value"`
	DeltaPct *float64 `json:"delta_pct,omitempty"`
}

// Chart kinds understood by the chart renderer.
const (
	ChartLine      = "line"
	ChartBar       = "bar"
	ChartHBar      = "hbar"
	ChartStacked   = "stacked"
	ChartScatter   = "scatter"
	ChartHistogram = "histogram"
	ChartMap       = "map"
	ChartTreemap   = "treemap"
)

type Chart struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Kind   string   `json:"kind"`
	XLabel string   `json:"x_label,omitempty"`
	YLabel string   `json:"y_label,omitempty"`
	Series []Series `json:"series"`
}

type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Point is one observation. Categorical charts use Label, continuous ones X.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label,omitempty"`
}

type TableBlock struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

type Notice struct {
	Level string `json:"level"` // warning | info
	Text  string `json:"text"`
}

type Download struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	FileName string `json:"file_name"`
}

// TableInfo summarizes one source table.
type TableInfo struct {
	Name      string `json:"name"`
	Loaded    bool   `json:"loaded"`
	Rows      int    `json:"rows,omitempty"`
	Countries int    `json:"countries,omitempty"`
	Measures  int    `json:"measures,omitempty"`
	FirstYear int    `json:"first_year,omitempty"`
	LastYear  int    `json:"last_year,omitempty"`
}

// Page is a paginated slice of rows.
type Page struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}
