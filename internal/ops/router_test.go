package ops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/incentives-backend/pkg/logger"
	"github.com/angelmondragon/incentives-backend/pkg/metrics"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestRouter(checks map[string]Pinger, reg *prometheus.Registry) http.Handler {
	return NewRouter(RouterParams{
		Logger:   logger.New(logger.Options{ServiceName: "ops-test", Output: io.Discard}),
		Env:      "test",
		Checks:   checks,
		Gatherer: reg,
	})
}

func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(nil, prometheus.NewRegistry()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-Incentives-Env"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthReadyReportsFailingDependencies(t *testing.T) {
	checks := map[string]Pinger{
		"db":    pingFunc(func(context.Context) error { return nil }),
		"redis": pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
	}
	rec := httptest.NewRecorder()
	newTestRouter(checks, prometheus.NewRegistry()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status  string            `json:"status"`
		Failing map[string]string `json:"failing"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, map[string]string{"redis": "dial tcp: refused"}, body.Failing)
}

func TestHealthReadyOK(t *testing.T) {
	checks := map[string]Pinger{"db": pingFunc(func(context.Context) error { return nil })}
	rec := httptest.NewRecorder()
	newTestRouter(checks, prometheus.NewRegistry()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewSettlementMetrics(reg).IncRun("DISTRICT", metrics.OutcomeFinished)

	rec := httptest.NewRecorder()
	newTestRouter(nil, reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `incentives_settlement_runs_total{method="DISTRICT",outcome="finished"} 1`))
}
