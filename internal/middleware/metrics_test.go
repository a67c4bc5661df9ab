package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	dto "github.com/prometheus/client_model/go"

	"asset-proxy/internal/metrics"
)

// findRequestCounter returns the requests_total sample matching all labels, or nil.
func findRequestCounter(t *testing.T, m *metrics.Metrics, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != "asset_proxy_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			got := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			match := true
			for k, v := range labels {
				if got[k] != v {
					match = false
					break
				}
			}
			if match {
				return metric
			}
		}
	}
	return nil
}

func TestMetricsMiddleware_IncrementsCounter(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/proxy", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/proxy?url=http://x", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	metric := findRequestCounter(t, m, map[string]string{"route": "/proxy", "method": "GET", "status_code": "200"})
	if metric == nil {
		t.Fatal("expected asset_proxy_http_requests_total with route=/proxy")
	}
	if v := metric.GetCounter().GetValue(); v != 1 {
		t.Errorf("counter value = %v, want 1", v)
	}
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	for _, f := range families {
		if f.GetName() == "asset_proxy_http_request_duration_seconds" {
			for _, metric := range f.GetMetric() {
				if metric.GetHistogram().GetSampleCount() > 0 {
					return
				}
			}
		}
	}
	t.Error("expected asset_proxy_http_request_duration_seconds with at least one sample")
}

func TestMetricsMiddleware_StaticNotFound(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/*", func(c echo.Context) error {
		return echo.ErrNotFound
	})

	req := httptest.NewRequest(http.MethodGet, "/missing-file.png", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if findRequestCounter(t, m, map[string]string{"route": "static", "status_code": "404"}) == nil {
		t.Error("expected asset_proxy_http_requests_total with route=static, status_code=404")
	}
}

func TestMetricsMiddleware_UnknownMethodNormalized(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.Any("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest("XYZZY", "/ping", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if findRequestCounter(t, m, map[string]string{"route": "/ping", "method": "other"}) == nil {
		t.Error("expected asset_proxy_http_requests_total with route=/ping and method=other")
	}
}

func TestMetricsMiddleware_InFlightReturnsToZero(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})

	for range 3 {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", http.NoBody))
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == "asset_proxy_http_requests_in_flight" {
			if v := f.GetMetric()[0].GetGauge().GetValue(); v != 0 {
				t.Errorf("in-flight = %v, want 0", v)
			}
			return
		}
	}
	t.Error("expected asset_proxy_http_requests_in_flight in gathered metrics")
}

// serveAborting runs a request whose handler sends a partial body and then
// aborts the connection, and returns the recovered panic value.
func serveAborting(e *echo.Echo, path string) (recovered any) {
	defer func() { recovered = recover() }()
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return nil
}

func abortingHandler(c echo.Context) error {
	c.Response().WriteHeader(http.StatusOK)
	_, _ = c.Response().Write([]byte("partial"))
	panic(http.ErrAbortHandler)
}

func TestMetricsMiddleware_AbortedStreamIsRecorded(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/proxy", abortingHandler)

	if r := serveAborting(e, "/proxy?url=http://x"); r != http.ErrAbortHandler {
		t.Fatalf("recovered %v, want http.ErrAbortHandler to propagate", r)
	}

	metric := findRequestCounter(t, m, map[string]string{"route": "/proxy", "method": "GET", "status_code": "200"})
	if metric == nil {
		t.Fatal("expected asset_proxy_http_requests_total for the aborted /proxy request")
	}
	if v := metric.GetCounter().GetValue(); v != 1 {
		t.Errorf("counter value = %v, want 1", v)
	}
}

func TestMetricsMiddleware_PanicBeforeResponseCountsAs500(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/status", func(c echo.Context) error {
		panic("boom")
	})

	if r := serveAborting(e, "/status"); r == nil {
		t.Fatal("expected the panic to propagate")
	}

	if findRequestCounter(t, m, map[string]string{"route": "/status", "status_code": "500"}) == nil {
		t.Error("expected asset_proxy_http_requests_total with status_code=500")
	}
}
