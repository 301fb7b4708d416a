package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, Config{Environment: "test"})

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/cost/periods/:id/daily", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"1", "2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cost/periods/"+id+"/daily", nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/cost/periods/:id/daily", "200"))
	if got != 2 {
		t.Fatalf("expected 2 requests on the route template, got %v", got)
	}
	if v := testutil.ToFloat64(m.inflight); v != 0 {
		t.Fatalf("expected no in-flight requests, got %v", v)
	}
}
