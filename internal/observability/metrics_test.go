package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesDomainEvents(t *testing.T) {
	metrics := NewMetrics()
	body := scrape(t, metrics)
	for _, event := range DomainEvents {
		require.Contains(t, body, `stockledger_domain_events_total{event="`+event+`"} 0`)
	}
}

func TestRecordDomainEvent(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordDomainEvent("sale.create")
	metrics.RecordDomainEvent("sale.create")
	metrics.RecordDomainEvent("sale.return")

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.domainEvents.WithLabelValues("sale.create")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.domainEvents.WithLabelValues("sale.return")))

	var unset *Metrics
	unset.RecordDomainEvent("sale.create")
}

func TestJobMetricsShareRegistry(t *testing.T) {
	metrics := NewMetrics()
	jm := jobmetrics.NewMetrics(metrics.Registerer())
	require.NoError(t, jm.Track("ledger:reconcile").End(nil))

	require.Contains(t, scrape(t, metrics), `stockledger_jobs_total{job="ledger:reconcile",status="success"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/sales")

	req := httptest.NewRequest(http.MethodGet, "/sales", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `stockledger_http_requests_total{code="418",route="/sales"} 1`)
	require.True(t, strings.Contains(body, `stockledger_http_request_duration_seconds_bucket{route="/sales"`))
}

func TestNilMetricsHandlerIsUnavailable(t *testing.T) {
	var metrics *Metrics
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
