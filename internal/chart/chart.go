// Package chart renders report charts to PNG or SVG with go-chart.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"

	"agridash/internal/models"

	gochart "github.com/wcharczuk/go-chart/v2"
)

var (
	ErrNoData        = errors.New("chart has no data")
	ErrUnknownFormat = errors.New("unknown image format")
)

const (
	defaultWidth  = 1024
	defaultHeight = 512
)

// Render draws c in format "png" or "svg" and returns the image with its
// content type.
func Render(c models.Chart, format string) ([]byte, string, error) {
	var (
		provider    gochart.RendererProvider
		contentType string
	)
	switch format {
	case "", "png":
		provider, contentType = gochart.PNG, "image/png"
	case "svg":
		provider, contentType = gochart.SVG, "image/svg+xml"
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	var buf bytes.Buffer
	var err error
	switch c.Kind {
	case models.ChartLine, models.ChartScatter:
		err = renderXY(c, provider, &buf)
	case models.ChartStacked:
		err = renderStacked(c, provider, &buf)
	default:
		// bar, hbar, histogram, map and treemap all draw as labelled bars
		err = renderBars(c, provider, &buf)
	}
	if err != nil {
		return nil, "", fmt.Errorf("render %s: %w", c.ID, err)
	}
	return buf.Bytes(), contentType, nil
}

func background() gochart.Style {
	return gochart.Style{Padding: gochart.Box{Top: 24, Left: 16, Right: 12, Bottom: 28}}
}

// yRange spans [lo, hi], widened when flat so go-chart has a non-zero range.
func yRange(lo, hi float64) *gochart.ContinuousRange {
	if hi <= lo {
		hi = lo + 1
	}
	return &gochart.ContinuousRange{Min: lo, Max: hi}
}

func yearFormatter(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

func renderXY(c models.Chart, provider gochart.RendererProvider, buf *bytes.Buffer) error {
	style := gochart.Style{StrokeWidth: 2, DotWidth: 3}
	if c.Kind == models.ChartScatter {
		style = gochart.Style{StrokeWidth: gochart.Disabled, DotWidth: 5}
	}

	minY, maxY := math.MaxFloat64, -math.MaxFloat64
	var series []gochart.Series
	for _, s := range c.Series {
		if len(s.Points) == 0 {
			continue
		}
		xs := make([]float64, len(s.Points))
		ys := make([]float64, len(s.Points))
		for i, p := range s.Points {
			xs[i], ys[i] = p.X, p.Y
			minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
		}
		// Pad to at least two X values for go-chart
		if len(xs) == 1 {
			xs = append(xs, xs[0]+1)
			ys = append(ys, ys[0])
		}
		series = append(series, gochart.ContinuousSeries{Name: s.Name, XValues: xs, YValues: ys, Style: style})
	}
	if len(series) == 0 {
		return ErrNoData
	}

	xAxis := gochart.XAxis{Name: c.XLabel}
	if c.Kind == models.ChartLine {
		xAxis.ValueFormatter = yearFormatter
	}
	ch := gochart.Chart{
		Title:      c.Title,
		Width:      defaultWidth,
		Height:     defaultHeight,
		Background: background(),
		XAxis:      xAxis,
		YAxis:      gochart.YAxis{Name: c.YLabel, Range: yRange(minY, maxY)},
		Series:     series,
	}
	ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}
	return ch.Render(provider, buf)
}

func renderBars(c models.Chart, provider gochart.RendererProvider, buf *bytes.Buffer) error {
	if len(c.Series) == 0 || len(c.Series[0].Points) == 0 {
		return ErrNoData
	}
	points := c.Series[0].Points

	barWidth, spacing := 40, 20
	if c.Kind == models.ChartHistogram {
		barWidth, spacing = 12, 4
	}
	lo, hi := 0.0, -math.MaxFloat64
	bars := make([]gochart.Value, len(points))
	for i, p := range points {
		label := p.Label
		if label == "" {
			label = strconv.FormatFloat(p.X, 'g', 4, 64)
		}
		bars[i] = gochart.Value{Label: label, Value: p.Y}
		lo, hi = math.Min(lo, p.Y), math.Max(hi, p.Y)
	}

	bc := gochart.BarChart{
		Title:      c.Title,
		Width:      max(defaultWidth, len(bars)*(barWidth+spacing)+160),
		Height:     defaultHeight,
		Background: background(),
		BarWidth:   barWidth,
		BarSpacing: spacing,
		YAxis:      gochart.YAxis{Name: c.YLabel, Range: yRange(lo, hi)},
		Bars:       bars,
	}
	return bc.Render(provider, buf)
}

// renderStacked draws one bar per category label with a segment per series.
func renderStacked(c models.Chart, provider gochart.RendererProvider, buf *bytes.Buffer) error {
	var labels []string
	values := make(map[string]map[string]float64)
	for _, s := range c.Series {
		for _, p := range s.Points {
			if _, ok := values[p.Label]; !ok {
				labels = append(labels, p.Label)
				values[p.Label] = make(map[string]float64)
			}
			values[p.Label][s.Name] += p.Y
		}
	}
	if len(labels) == 0 {
		return ErrNoData
	}

	bars := make([]gochart.StackedBar, len(labels))
	for i, label := range labels {
		bar := gochart.StackedBar{Name: label}
		for _, s := range c.Series {
			bar.Values = append(bar.Values, gochart.Value{Label: s.Name, Value: values[label][s.Name]})
		}
		bars[i] = bar
	}
	sbc := gochart.StackedBarChart{
		Title:      c.Title,
		Width:      max(defaultWidth, len(bars)*160+160),
		Height:     defaultHeight,
		Background: background(),
		Bars:       bars,
	}
	return sbc.Render(provider, buf)
}
