package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/azurecost/internal/billingapi"
	"github.com/smallbiznis/azurecost/internal/billingapi/billingapitest"
	"github.com/smallbiznis/azurecost/internal/clock"
	"github.com/smallbiznis/azurecost/internal/config"
	"github.com/smallbiznis/azurecost/internal/cost/costtest"
	costdomain "github.com/smallbiznis/azurecost/internal/cost/domain"
	"github.com/smallbiznis/azurecost/internal/cost/service"
	"github.com/smallbiznis/azurecost/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var now = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

type testServer struct {
	engine  *gin.Engine
	db      *gorm.DB
	fetcher *billingapitest.Fetcher
	svc     costdomain.Service
}

func newTestServer(t *testing.T, env string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		AppVersion:  "1.0.0",
		Environment: env,
		Ingest:      config.IngestConfig{DefaultCurrency: "INR", LookbackDays: 7},
	}
	db := costtest.NewDB(t)
	fake := clock.NewFakeClock(now)
	svc := costtest.NewService(t, db, fake, nil)
	fetcher := &billingapitest.Fetcher{}
	pipeline := service.NewPipeline(service.PipelineParams{
		Fetcher: fetcher,
		Service: svc,
		Config:  cfg,
		Clock:   fake,
		Log:     zap.NewNop(),
	})

	engine := NewEngine(cfg, observability.Config{}, nil)
	RegisterRoutes(NewServer(ServerParams{
		Engine:   engine,
		Config:   cfg,
		DB:       db,
		CostSvc:  svc,
		Pipeline: pipeline,
	}))
	return &testServer{engine: engine, db: db, fetcher: fetcher, svc: svc}
}

func (ts *testServer) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	var body map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	}
	return w, body
}

func TestFetchMonthToDate(t *testing.T) {
	ts := newTestServer(t, config.EnvDevelopment)
	ts.fetcher.Services = billingapitest.ServiceRows(
		[]any{10.5, "VM", "usd"},
		[]any{0, "Storage", "usd"},
	)

	w, body := ts.do(t, http.MethodGet, "/cost/month-to-date")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "success", body["status"])
	assert.EqualValues(t, 2, body["count"])
	assert.EqualValues(t, 2, body["saved_to_db"])
	assert.NotEmpty(t, body["billing_period_id"])

	data := body["data"].([]any)
	first := data[0].(map[string]any)
	assert.Equal(t, "VM", first["service_name"])
	assert.Equal(t, 10.5, first["cost"])
	assert.Equal(t, "USD", first["currency"])
	assert.Equal(t, "2024-03-01T00:00:00Z", first["billing_period_start"])
}

func TestFetchLastSevenDays(t *testing.T) {
	ts := newTestServer(t, config.EnvDevelopment)
	ts.fetcher.Daily = billingapitest.DailyRows([]any{1.5, 20240314, "INR"})

	w, body := ts.do(t, http.MethodGet, "/cost/last-7-days")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "2024-03-14", data[0].(map[string]any)["usage_date"])
	assert.Equal(t, "Unknown", data[0].(map[string]any)["service_name"])
}

func TestFetchRaw(t *testing.T) {
	ts := newTestServer(t, config.EnvDevelopment)
	ts.fetcher.Services = billingapitest.ServiceRows([]any{-1.0, "VM", "usd"})

	w, body := ts.do(t, http.MethodGet, "/cost/month-to-date/raw")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)
	assert.EqualValues(t, 0, costtest.Count(t, ts.db, "billing_period"))
}

func TestErrorResponses(t *testing.T) {
	cases := []struct {
		name       string
		env        string
		prepare    func(f *billingapitest.Fetcher)
		wantStatus int
		wantDetail string
		wantDebug  bool
	}{
		{
			name: "upstream in production hides details",
			env:  config.EnvProduction,
			prepare: func(f *billingapitest.Fetcher) {
				f.ServiceErr = &billingapi.UpstreamError{Op: "query", StatusCode: 401, Code: "AuthenticationFailed"}
			},
			wantStatus: http.StatusBadGateway,
			wantDetail: "Azure API error occurred",
		},
		{
			name:       "validation in development shows details",
			env:        config.EnvDevelopment,
			prepare:    func(f *billingapitest.Fetcher) { f.Services = billingapitest.ServiceRows([]any{-5.0, "VM", "usd"}) },
			wantStatus: http.StatusUnprocessableEntity,
			wantDebug:  true,
		},
		{
			name:       "processing in production",
			env:        config.EnvProduction,
			prepare:    func(f *billingapitest.Fetcher) { f.Services = billingapitest.ServiceRows([]any{1.0, "VM"}) },
			wantStatus: http.StatusInternalServerError,
			wantDetail: "Data processing error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, tc.env)
			tc.prepare(ts.fetcher)

			w, body := ts.do(t, http.MethodGet, "/cost/month-to-date")
			require.Equal(t, tc.wantStatus, w.Code, w.Body.String())
			if tc.wantDetail != "" {
				assert.Equal(t, tc.wantDetail, body["detail"])
			} else {
				assert.NotEmpty(t, body["detail"])
			}
			_, hasDebug := body["debug"]
			assert.Equal(t, tc.wantDebug, hasDebug)
			assert.EqualValues(t, 0, costtest.Count(t, ts.db, "service_cost"))
		})
	}
}

func TestPeriodEndpoints(t *testing.T) {
	ts := newTestServer(t, config.EnvDevelopment)

	w, _ := ts.do(t, http.MethodGet, "/cost/periods/current")
	assert.Equal(t, http.StatusNotFound, w.Code)

	ts.fetcher.Services = billingapitest.ServiceRows([]any{3.333, "VM", "usd"})
	w, body := ts.do(t, http.MethodGet, "/cost/month-to-date")
	require.Equal(t, http.StatusOK, w.Code)
	periodID := body["billing_period_id"].(string)

	w, body = ts.do(t, http.MethodGet, "/cost/periods/current")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, periodID, body["data"].(map[string]any)["id"])

	w, body = ts.do(t, http.MethodGet, "/cost/periods")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, false, body["page_info"].(map[string]any)["has_more"])

	w, body = ts.do(t, http.MethodGet, "/cost/periods/"+periodID+"/services")
	require.Equal(t, http.StatusOK, w.Code)
	costs := body["data"].([]any)
	require.Len(t, costs, 1)
	assert.Equal(t, 3.33, costs[0].(map[string]any)["cost"])

	w, _ = ts.do(t, http.MethodGet, "/cost/periods/not-an-id/daily")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = ts.do(t, http.MethodGet, "/cost/periods/42/daily")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = ts.do(t, http.MethodGet, "/cost/periods?page_size=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = ts.do(t, http.MethodGet, "/cost/periods?page_token=%25%25")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSystemEndpoints(t *testing.T) {
	ts := newTestServer(t, config.EnvDevelopment)

	w, body := ts.do(t, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["database"])
	assert.Equal(t, config.EnvDevelopment, body["environment"])

	w, body = ts.do(t, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.0.0", body["version"])
	assert.Contains(t, body, "debug_mode")

	w, body = ts.do(t, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stopped", body["status"])

	w, _ = ts.do(t, http.MethodPost, "/jobs/fetch_daily_costs/run")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, body = ts.do(t, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", body["detail"])
}

func TestHealthDegradedWithoutDatabase(t *testing.T) {
	ts := newTestServer(t, config.EnvProduction)
	sqlDB, err := ts.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w, body := ts.do(t, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "disconnected", body["database"])
	assert.NotContains(t, body, "environment")
}

func TestMapErrorDebugBlock(t *testing.T) {
	status, body := mapError(costdomain.ErrPersistence, false, true)
	assert.Equal(t, http.StatusInternalServerError, status)
	require.NotNil(t, body.Debug)
	assert.Equal(t, "persistence_error", body.Debug.ExceptionType)

	status, body = mapError(ErrRateLimited, false, false)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate limit exceeded", body.Detail)
	assert.Nil(t, body.Debug)
}
