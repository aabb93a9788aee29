package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"agridash/internal/engine"
	"agridash/internal/models"
	"agridash/internal/report"
	"agridash/internal/testutil"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T, opts Options) (*echo.Echo, *Handler) {
	t.Helper()
	cache := testutil.Cache()
	h := NewHandler(cache, report.NewService(cache, nil))
	return NewServer(h, opts), h
}

func do(e *echo.Echo, method, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	e, h := newTestServer(t, Options{})
	if rec := do(e, http.MethodGet, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("before warm-up: %d", rec.Code)
	}
	h.SetReady()
	if rec := do(e, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("after warm-up: %d", rec.Code)
	}
}

func TestSections(t *testing.T) {
	e, _ := newTestServer(t, Options{})

	rec := do(e, http.MethodGet, "/api/sections")
	var sections []models.SectionInfo
	decode(t, rec, &sections)
	if len(sections) != 7 || sections[0].ID != "intro" {
		t.Errorf("sections = %+v", sections)
	}

	rec = do(e, http.MethodGet, "/api/sections/environment?nutrient=Phosphorus")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var r models.Report
	decode(t, rec, &r)
	if r.Section != "environment" || len(r.Charts) == 0 {
		t.Errorf("report = %+v", r)
	}
	if r.Controls[0].Name != "nutrient" || r.Controls[0].Value[0] != "Phosphorus" {
		t.Errorf("nutrient control = %+v", r.Controls[0])
	}

	if rec := do(e, http.MethodGet, "/api/sections/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown section: %d", rec.Code)
	}
}

func TestDownloadDataset(t *testing.T) {
	e, _ := newTestServer(t, Options{})

	rec := do(e, http.MethodGet, "/api/sections/environment/downloads/normalized")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "normalized_nitrogen_surplus.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "Reference area,Year,Nutrients,") {
		t.Errorf("body = %.80q", rec.Body.String())
	}
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	again := do(e, http.MethodGet, "/api/sections/environment/downloads/normalized", "If-None-Match", etag)
	if again.Code != http.StatusNotModified {
		t.Errorf("conditional request: %d", again.Code)
	}

	rec = do(e, http.MethodGet, "/api/sections/advanced/downloads/kpi?mode=compare&format=xlsx")
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != mimeXLSX {
		t.Errorf("xlsx: %d %s", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "multi_country_kpi.xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	if rec := do(e, http.MethodGet, "/api/sections/environment/downloads/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("missing dataset: %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/api/sections/environment/downloads/normalized?format=pdf"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad format: %d", rec.Code)
	}
}

func TestGetChart(t *testing.T) {
	e, _ := newTestServer(t, Options{})
	rec := do(e, http.MethodGet, "/api/sections/energy/charts/global-trend")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("not a PNG")
	}
	rec = do(e, http.MethodGet, "/api/sections/land/charts/top?format=svg")
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != "image/svg+xml" {
		t.Errorf("svg: %d %s", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}
	if rec := do(e, http.MethodGet, "/api/sections/land/charts/top?format=bmp"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad format: %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/api/sections/land/charts/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown chart: %d", rec.Code)
	}
}

func TestTables(t *testing.T) {
	e, _ := newTestServer(t, Options{})

	var infos []models.TableInfo
	decode(t, do(e, http.MethodGet, "/api/tables"), &infos)
	if len(infos) != 4 || infos[0].Loaded {
		t.Errorf("before load = %+v", infos)
	}

	rec := do(e, http.MethodGet, "/api/tables/agri?area=France&year=2015&measure=Arable+land")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var page models.Page
	decode(t, rec, &page)
	if page.Total != 1 || len(page.Data) != 1 {
		t.Fatalf("page = %+v", page)
	}
	if page.Data[0][len(page.Data[0])-1] != 18030.0 {
		t.Errorf("row = %v", page.Data[0])
	}

	decode(t, do(e, http.MethodGet, "/api/tables"), &infos)
	if !infos[0].Loaded || infos[0].Rows != 73 || infos[0].FirstYear != 2010 {
		t.Errorf("agri info = %+v", infos[0])
	}

	page = models.Page{}
	decode(t, do(e, http.MethodGet, "/api/tables/energy?area=Mexico&limit=2&offset=1"), &page)
	if page.Total != 3 || len(page.Data) != 2 || page.Limit != 2 || page.Offset != 1 {
		t.Errorf("paged = %+v", page)
	}
	page = models.Page{}
	decode(t, do(e, http.MethodGet, "/api/tables/energy?area=Mexico&offset=10"), &page)
	if page.Total != 3 || len(page.Data) != 0 {
		t.Errorf("past the end = %+v", page)
	}

	for target, want := range map[string]int{
		"/api/tables/bogus":                  http.StatusNotFound,
		"/api/tables/agri?year=abc":          http.StatusBadRequest,
		"/api/tables/agri?year_from=x":       http.StatusBadRequest,
		"/api/tables/water?year_from=2020":   http.StatusOK,
		"/api/tables/area?contains=arable":   http.StatusOK,
		"/api/tables/energy?unit=oil&year=1": http.StatusOK,
	} {
		if rec := do(e, http.MethodGet, target); rec.Code != want {
			t.Errorf("%s: %d, want %d", target, rec.Code, want)
		}
	}
}

func TestTableRowsExtremePaging(t *testing.T) {
	e, _ := newTestServer(t, Options{})

	for target, wantRows := range map[string]int{
		"/api/tables/agri?limit=9223372036854775807&offset=1": 72,
		"/api/tables/agri?limit=9223372036854775807":          73,
		"/api/tables/agri?offset=9223372036854775807":         0,
		"/api/tables/agri?limit=99999999999999999999":         defaultPageSize,
	} {
		rec := do(e, http.MethodGet, target)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status %d: %s", target, rec.Code, rec.Body)
			continue
		}
		var page models.Page
		decode(t, rec, &page)
		if page.Total != 73 || len(page.Data) != min(wantRows, 73) || len(page.Columns) != 7 {
			t.Errorf("%s: total %d, %d rows, %d columns", target, page.Total, len(page.Data), len(page.Columns))
		}
	}
}

func TestAggregateTable(t *testing.T) {
	e, _ := newTestServer(t, Options{})

	rec := do(e, http.MethodGet, "/api/tables/agri/aggregate?group_by=Reference+area&reduce=top&k=2&of=mean&contains=Nitrogen")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var f struct {
		Columns []struct{ Name string }
		Rows    [][]any
	}
	decode(t, rec, &f)
	if len(f.Rows) != 2 || f.Rows[0][0] != "Germany" || f.Rows[1][0] != "France" {
		t.Errorf("rows = %v", f.Rows)
	}

	rec = do(e, http.MethodGet, "/api/tables/water/aggregate?group_by=Year&reduce=sum&normalize=true&year=2016&format=csv")
	if rec.Code != http.StatusOK {
		t.Fatalf("csv status %d: %s", rec.Code, rec.Body)
	}
	if got := rec.Body.String(); got != "Year,Value_normalized\n2016,63040000000\n" {
		t.Errorf("csv = %q", got)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "water_year_sum.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	for _, q := range []string{
		"reduce=median",
		"reduce=top",
		"group_by=Value",
		"group_by=Nope",
		"k=two",
		"normalize=maybe",
		"format=xml",
	} {
		if rec := do(e, http.MethodGet, "/api/tables/agri/aggregate?"+q); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: %d", q, rec.Code)
		}
	}
}

func TestRefreshTable(t *testing.T) {
	e, _ := newTestServer(t, Options{})
	rec := do(e, http.MethodPost, "/api/tables/area/refresh")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var info models.TableInfo
	decode(t, rec, &info)
	if info.Name != "area" || info.Rows != 20 {
		t.Errorf("info = %+v", info)
	}
	if rec := do(e, http.MethodPost, "/api/tables/nope/refresh"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown table: %d", rec.Code)
	}
}

type downTables struct{}

func (downTables) Load(context.Context, engine.TableName) (*engine.Table, error) {
	return nil, engine.ErrConnectivity
}

func (downTables) Refresh(context.Context, engine.TableName) (*engine.Table, error) {
	return nil, engine.ErrConnectivity
}

func (downTables) Loaded() []engine.TableName { return nil }

func TestStoreUnavailable(t *testing.T) {
	h := NewHandler(downTables{}, report.NewService(downTables{}, nil))
	e := NewServer(h, Options{})
	for _, target := range []string{"/api/tables/agri", "/api/sections/water", "/api/tables/agri/aggregate"} {
		if rec := do(e, http.MethodGet, target); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: %d", target, rec.Code)
		}
	}
	if rec := do(e, http.MethodPost, "/api/tables/agri/refresh"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("refresh: %d", rec.Code)
	}
}

func TestMetricsAndRateLimit(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "agridash_test_total", Help: "test"}))
	e, _ := newTestServer(t, Options{Gatherer: reg, RateLimit: 1, RateBurst: 1})

	rec := do(e, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "agridash_test_total") {
		t.Errorf("metrics: %d %s", rec.Code, rec.Body)
	}
	if rec := do(e, http.MethodGet, "/api/sections"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request in the same second: %d", rec.Code)
	}
}
