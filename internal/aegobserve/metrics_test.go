// file: internal/aegobserve/metrics_test.go
package aegobserve

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withRegistry 把默认 Registry 换成新的，并在测试结束时还原；
// 包级指标在每个测试开始前都会被清空
func withRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	oldReg, oldGat := prometheus.DefaultRegisterer, prometheus.DefaultGatherer
	prometheus.DefaultRegisterer, prometheus.DefaultGatherer = reg, reg
	t.Cleanup(func() {
		prometheus.DefaultRegisterer, prometheus.DefaultGatherer = oldReg, oldGat
	})

	httpRequestDuration.Reset()
	recordRequests.Reset()
	statementDuration.Reset()
	skippedAttributes.Reset()
	rateLimited.Reset()
	Register()
	return reg
}

// findMetric 返回名称为 name 且标签与 labels 完全一致的样本，找不到时返回 nil
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			got := make(map[string]string, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				got[l.GetName()] = l.GetValue()
			}
			if assert.ObjectsAreEqual(labels, got) {
				return m
			}
		}
	}
	return nil
}

// newRecordsRouter 构造一个只有记录路由的 gin 引擎
func newRecordsRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(PrometheusMiddleware())
	api := r.Group("/api/v1/data-models")
	api.GET("/:dataModelId/records", func(c *gin.Context) {
		if c.Param("dataModelId") == "missing" {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": []any{}})
	})
	api.POST("/:dataModelId/records", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{})
	})
	return r
}

func TestPrometheusMiddleware_UsesRouteTemplate(t *testing.T) {
	reg := withRegistry(t)
	r := newRecordsRouter()

	for _, target := range []string{
		"/api/v1/data-models/m1/records?page=1&limit=10",
		"/api/v1/data-models/m2/records?filters%5Bstatus%5D=active",
		"/api/v1/data-models/missing/records",
		"/api/v1/unknown",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/data-models/m1/records", strings.NewReader("{}")))
	require.Equal(t, http.StatusCreated, w.Code)

	const name = "modelaegis_http_request_duration_seconds"
	const tmpl = "/api/v1/data-models/:dataModelId/records"

	ok := findMetric(t, reg, name, map[string]string{"path": tmpl, "method": "GET", "code": "200"})
	require.NotNil(t, ok, "不同的数据模型 ID 应归入同一个路由模板")
	assert.Equal(t, uint64(2), ok.GetHistogram().GetSampleCount())

	notFound := findMetric(t, reg, name, map[string]string{"path": tmpl, "method": "GET", "code": "404"})
	require.NotNil(t, notFound)
	assert.Equal(t, uint64(1), notFound.GetHistogram().GetSampleCount())

	created := findMetric(t, reg, name, map[string]string{"path": tmpl, "method": "POST", "code": "201"})
	require.NotNil(t, created)
	assert.Equal(t, uint64(1), created.GetHistogram().GetSampleCount())

	unmatched := findMetric(t, reg, name, map[string]string{"path": "unmatched", "method": "GET", "code": "404"})
	require.NotNil(t, unmatched, "未匹配路由的请求不应把原始路径写进标签")
	assert.Nil(t, findMetric(t, reg, name, map[string]string{"path": "/api/v1/data-models/m1/records", "method": "GET", "code": "200"}))
}

func TestHandler_ExposesRecordMetrics(t *testing.T) {
	withRegistry(t)
	ObserveRecordRequest("list", "internal", nil)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `modelaegis_record_requests_total{operation="list",outcome="ok",source="internal"} 1`)
}

func TestRecordMetrics(t *testing.T) {
	reg := withRegistry(t)

	ObserveRecordRequest("list", "internal", nil)
	ObserveRecordRequest("list", "internal", nil)
	ObserveRecordRequest("list", "external", errors.New("backend unavailable"))
	ObserveRecordRequest("create", "internal", nil)

	listOK := findMetric(t, reg, "modelaegis_record_requests_total", map[string]string{"operation": "list", "source": "internal", "outcome": "ok"})
	require.NotNil(t, listOK)
	assert.Equal(t, 2.0, listOK.GetCounter().GetValue())

	listErr := findMetric(t, reg, "modelaegis_record_requests_total", map[string]string{"operation": "list", "source": "external", "outcome": "error"})
	require.NotNil(t, listErr)
	assert.Equal(t, 1.0, listErr.GetCounter().GetValue())

	created := findMetric(t, reg, "modelaegis_record_requests_total", map[string]string{"operation": "create", "source": "internal", "outcome": "ok"})
	require.NotNil(t, created)
	assert.Equal(t, 1.0, created.GetCounter().GetValue())
}

func TestObserveStatement(t *testing.T) {
	reg := withRegistry(t)

	start := time.Now().Add(-30 * time.Millisecond)
	ObserveStatement("internal", "count", start)
	ObserveStatement("internal", "fetch", start)
	ObserveStatement("internal", "fetch", start)
	ObserveStatement("external", "fetch", start)

	fetch := findMetric(t, reg, "modelaegis_statement_duration_seconds", map[string]string{"source": "internal", "statement": "fetch"})
	require.NotNil(t, fetch)
	assert.Equal(t, uint64(2), fetch.GetHistogram().GetSampleCount())
	assert.GreaterOrEqual(t, fetch.GetHistogram().GetSampleSum(), 0.06, "耗时从 start 算起")

	count := findMetric(t, reg, "modelaegis_statement_duration_seconds", map[string]string{"source": "internal", "statement": "count"})
	require.NotNil(t, count)
	assert.Equal(t, uint64(1), count.GetHistogram().GetSampleCount())
}

func TestCountSkippedAndRateLimited(t *testing.T) {
	reg := withRegistry(t)

	CountSkipped("filter", 2)
	CountSkipped("filter", 1)
	CountSkipped("sort", 0)
	CountRateLimited("data_model")
	CountRateLimited("ip")
	CountRateLimited("ip")

	filter := findMetric(t, reg, "modelaegis_unmapped_attributes_total", map[string]string{"clause": "filter"})
	require.NotNil(t, filter)
	assert.Equal(t, 3.0, filter.GetCounter().GetValue())
	assert.Nil(t, findMetric(t, reg, "modelaegis_unmapped_attributes_total", map[string]string{"clause": "sort"}), "n 为 0 时不产生样本")

	ip := findMetric(t, reg, "modelaegis_rate_limited_total", map[string]string{"scope": "ip"})
	require.NotNil(t, ip)
	assert.Equal(t, 2.0, ip.GetCounter().GetValue())

	model := findMetric(t, reg, "modelaegis_rate_limited_total", map[string]string{"scope": "data_model"})
	require.NotNil(t, model)
	assert.Equal(t, 1.0, model.GetCounter().GetValue())
}
