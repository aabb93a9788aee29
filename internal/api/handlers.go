package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"agridash/internal/chart"
	"agridash/internal/engine"
	"agridash/internal/export"
	"agridash/internal/models"
	"agridash/internal/report"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/zeebo/xxh3"
)

const (
	defaultPageSize = 100
	mimeXLSX        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Tables is the table cache the API reads through.
type Tables interface {
	Load(ctx context.Context, name engine.TableName) (*engine.Table, error)
	Refresh(ctx context.Context, name engine.TableName) (*engine.Table, error)
	Loaded() []engine.TableName
}

type Handler struct {
	tables  Tables
	reports *report.Service
	ready   atomic.Bool
}

// NewHandler serves immediately; /healthz answers 503 until SetReady.
func NewHandler(tables Tables, reports *report.Service) *Handler {
	return &Handler{tables: tables, reports: reports}
}

// SetReady flips the health check once the startup warm-up has finished.
func (h *Handler) SetReady() {
	h.ready.Store(true)
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	api := e.Group("/api")
	api.GET("/sections", h.ListSections)
	api.GET("/sections/:id", h.GetSection)
	api.GET("/sections/:id/downloads/:dataset", h.DownloadDataset)
	api.GET("/sections/:id/charts/:chart", h.GetChart)
	api.GET("/tables", h.ListTables)
	api.GET("/tables/:name", h.GetTableRows)
	api.GET("/tables/:name/aggregate", h.AggregateTable)
	api.POST("/tables/:name/refresh", h.RefreshTable)
}

// --- HELPERS ---
func getPaginationParams(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// httpError maps domain errors onto status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, engine.ErrNotFound),
		errors.Is(err, report.ErrUnknownSection),
		errors.Is(err, report.ErrUnknownDataset),
		errors.Is(err, report.ErrUnknownChart),
		errors.Is(err, chart.ErrNoData):
		return echo.NewHTTPError(http.StatusNotFound, err.Error()).SetInternal(err)
	case errors.Is(err, engine.ErrConnectivity):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "backing store unavailable").SetInternal(err)
	case errors.Is(err, engine.ErrUnknownColumn),
		errors.Is(err, engine.ErrInvalidSpec),
		errors.Is(err, chart.ErrUnknownFormat):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	log.Errorf("api: %v", err)
	return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
}

func badRequest(format string, args ...any) error {
	return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf(format, args...))
}

// attachment sends body as a download with an xxh3 ETag, answering 304 when
// the client already holds the same bytes.
func attachment(c echo.Context, contentType, fileName string, body []byte) error {
	etag := fmt.Sprintf(`"%016x"`, xxh3.Hash(body))
	c.Response().Header().Set("ETag", etag)
	if match := c.Request().Header.Get("If-None-Match"); match == etag {
		return c.NoContent(http.StatusNotModified)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fileName))
	return c.Blob(http.StatusOK, contentType, body)
}

// filtersFromQuery turns the filter query parameters into predicates.
func filtersFromQuery(q url.Values) ([]engine.Predicate, error) {
	var preds []engine.Predicate
	if v := q["area"]; len(v) > 0 {
		preds = append(preds, engine.In(engine.ColArea, v...))
	}
	if v := q["measure"]; len(v) > 0 {
		preds = append(preds, engine.In(engine.ColMeasure, v...))
	}
	if v := q["year"]; len(v) > 0 {
		preds = append(preds, engine.In(engine.ColYear, v...))
	}
	from, err := yearParam(q, "year_from")
	if err != nil {
		return nil, err
	}
	to, err := yearParam(q, "year_to")
	if err != nil {
		return nil, err
	}
	if from != 0 || to != 0 {
		preds = append(preds, engine.YearBetween(from, to))
	}
	if v := q["contains"]; len(v) > 0 {
		preds = append(preds, engine.Contains(engine.ColMeasure, v...))
	}
	if v := q["unit"]; len(v) > 0 {
		preds = append(preds, engine.Contains(engine.ColUnit, v...))
	}
	return preds, nil
}

func yearParam(q url.Values, name string) (int, error) {
	s := q.Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", engine.ErrInvalidSpec, name, s)
	}
	return n, nil
}

func (h *Handler) loadTable(c echo.Context) (*engine.Table, error) {
	name, err := engine.ParseTableName(c.Param("name"))
	if err != nil {
		return nil, httpError(err)
	}
	t, err := h.tables.Load(c.Request().Context(), name)
	if err != nil {
		return nil, httpError(err)
	}
	return t, nil
}

func (h *Handler) filteredView(c echo.Context) (engine.View, error) {
	t, err := h.loadTable(c)
	if err != nil {
		return engine.View{}, err
	}
	preds, err := filtersFromQuery(c.QueryParams())
	if err != nil {
		return engine.View{}, httpError(err)
	}
	v, err := engine.Filter(t, preds...)
	if err != nil {
		return engine.View{}, httpError(err)
	}
	return v, nil
}

func (h *Handler) buildReport(c echo.Context) (*report.Result, error) {
	params := report.Params(c.QueryParams())
	res, err := h.reports.Build(c.Request().Context(), c.Param("id"), params)
	if err != nil {
		return nil, httpError(err)
	}
	return res, nil
}

func tableInfo(t *engine.Table) models.TableInfo {
	all := t.All()
	info := models.TableInfo{
		Name:      string(t.Name),
		Loaded:    true,
		Rows:      t.Len(),
		Countries: len(all.Distinct(engine.ColArea)),
		Measures:  len(all.Distinct(engine.ColMeasure)),
	}
	if years := all.Years(); len(years) > 0 {
		info.FirstYear, info.LastYear = years[0], years[len(years)-1]
	}
	return info
}

// --- HANDLERS ---

// Health reports 503 while the startup warm-up is still loading tables.
func (h *Handler) Health(c echo.Context) error {
	if !h.ready.Load() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "loading"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"tables": h.tables.Loaded(),
	})
}

func (h *Handler) ListSections(c echo.Context) error {
	return c.JSON(http.StatusOK, h.reports.Sections())
}

// GetSection builds a section report; query parameters are widget values.
func (h *Handler) GetSection(c echo.Context) error {
	res, err := h.buildReport(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res.Report)
}

func (h *Handler) DownloadDataset(c echo.Context) error {
	res, err := h.buildReport(c)
	if err != nil {
		return err
	}
	frame, fileName, err := res.Dataset(c.Param("dataset"))
	if err != nil {
		return httpError(err)
	}

	var buf bytes.Buffer
	switch format := c.QueryParam("format"); format {
	case "", "csv":
		if err := export.WriteCSV(&buf, frame); err != nil {
			return httpError(err)
		}
		return attachment(c, "text/csv; charset=utf-8", fileName, buf.Bytes())
	case "xlsx":
		sheet := export.Sheet{Name: export.SheetName(c.Param("dataset")), Frame: frame}
		if err := export.WriteXLSX(&buf, sheet); err != nil {
			return httpError(err)
		}
		return attachment(c, mimeXLSX, strings.TrimSuffix(fileName, ".csv")+".xlsx", buf.Bytes())
	default:
		return badRequest("unknown format %q", format)
	}
}

func (h *Handler) GetChart(c echo.Context) error {
	res, err := h.buildReport(c)
	if err != nil {
		return err
	}
	ch, err := res.Chart(c.Param("chart"))
	if err != nil {
		return httpError(err)
	}
	img, contentType, err := chart.Render(ch, c.QueryParam("format"))
	if err != nil {
		return httpError(err)
	}
	return c.Blob(http.StatusOK, contentType, img)
}

// ListTables describes every known table; tables not yet loaded are listed
// without statistics and are not loaded by this call.
func (h *Handler) ListTables(c echo.Context) error {
	loaded := make(map[engine.TableName]bool)
	for _, name := range h.tables.Loaded() {
		loaded[name] = true
	}
	out := make([]models.TableInfo, 0, len(engine.KnownTables))
	for _, name := range engine.KnownTables {
		if !loaded[name] {
			out = append(out, models.TableInfo{Name: string(name)})
			continue
		}
		t, err := h.tables.Load(c.Request().Context(), name)
		if err != nil {
			return httpError(err)
		}
		out = append(out, tableInfo(t))
	}
	return c.JSON(http.StatusOK, out)
}

// GetTableRows returns a page of filtered rows.
func (h *Handler) GetTableRows(c echo.Context) error {
	v, err := h.filteredView(c)
	if err != nil {
		return err
	}
	total := v.Len()
	limit, offset := getPaginationParams(c, defaultPageSize)

	// Only the requested rows are materialized.
	frame := v.Window(offset, limit).Frame()
	page := models.Page{Data: frame.Rows, Total: total, Limit: limit, Offset: offset}
	for _, col := range frame.Columns {
		page.Columns = append(page.Columns, col.Name)
	}
	return c.JSON(http.StatusOK, page)
}

// AggregateTable runs the filter/aggregate pipeline:
// group_by (repeatable), reduce, k, of, normalize and format=csv.
func (h *Handler) AggregateTable(c echo.Context) error {
	v, err := h.filteredView(c)
	if err != nil {
		return err
	}

	// 1. Parse the aggregation request
	spec := engine.AggSpec{GroupBy: c.QueryParams()["group_by"]}
	if spec.Reduce, err = engine.ParseReduce(c.QueryParam("reduce")); err != nil {
		return httpError(err)
	}
	if s := c.QueryParam("of"); s != "" {
		if spec.Of, err = engine.ParseReduce(s); err != nil {
			return httpError(err)
		}
	}
	if s := c.QueryParam("k"); s != "" {
		if spec.K, err = strconv.Atoi(s); err != nil {
			return badRequest("invalid k %q", s)
		}
	}
	if s := c.QueryParam("normalize"); s != "" {
		if spec.Normalize, err = strconv.ParseBool(s); err != nil {
			return badRequest("invalid normalize %q", s)
		}
	}

	// 2. Aggregate
	frame, err := engine.Aggregate(v, spec)
	if err != nil {
		return httpError(err)
	}

	// 3. Respond
	switch format := c.QueryParam("format"); format {
	case "", "json":
		return c.JSON(http.StatusOK, frame)
	case "csv":
		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, frame); err != nil {
			return httpError(err)
		}
		parts := append([]string{string(v.Table().Name)}, spec.GroupBy...)
		parts = append(parts, spec.Reduce.String())
		return attachment(c, "text/csv; charset=utf-8", export.FileName("csv", parts...), buf.Bytes())
	default:
		return badRequest("unknown format %q", format)
	}
}

func (h *Handler) RefreshTable(c echo.Context) error {
	name, err := engine.ParseTableName(c.Param("name"))
	if err != nil {
		return httpError(err)
	}
	t, err := h.tables.Refresh(c.Request().Context(), name)
	if err != nil {
		return httpError(err)
	}
	log.Infof("api: refreshed %s (%d rows)", name, t.Len())
	return c.JSON(http.StatusOK, tableInfo(t))
}
