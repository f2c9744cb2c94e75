// Package aegobserve 暴露 Prometheus 指标
//
// file: internal/aegobserve/metric.go
package aegobserve

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 指标定义
var (
	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modelaegis_http_request_duration_seconds",
		Help:    "HTTP 请求耗时",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method", "code"})

	recordRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modelaegis_record_requests_total",
		Help: "记录列表/创建请求数，按数据源类型和结果区分",
	}, []string{"operation", "source", "outcome"})

	statementDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modelaegis_statement_duration_seconds",
		Help:    "单条 SQL 语句的执行耗时",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"source", "statement"})

	skippedAttributes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modelaegis_unmapped_attributes_total",
		Help: "因没有存储映射而被忽略的过滤/排序属性次数",
	}, []string{"clause"})

	rateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modelaegis_rate_limited_total",
		Help: "被限流拒绝的请求数",
	}, []string{"scope"})
)

// Register 必须在 main 调用一次
func Register() {
	prometheus.MustRegister(httpRequestDuration, recordRequests, statementDuration, skippedAttributes, rateLimited)
}

// Handler 返回 HTTP 处理器
func Handler() http.Handler { return promhttp.Handler() }

// PrometheusMiddleware 记录每个请求的耗时。path 使用路由模板，避免高基数。
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestDuration.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// ObserveRecordRequest 记录一次 ListRecords / CreateRecord 的结果
func ObserveRecordRequest(operation, source string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	recordRequests.WithLabelValues(operation, source, outcome).Inc()
}

// ObserveStatement 记录一条语句从 start 到现在的耗时
func ObserveStatement(source, statement string, start time.Time) {
	statementDuration.WithLabelValues(source, statement).Observe(time.Since(start).Seconds())
}

// CountSkipped 累加被忽略的属性数
func CountSkipped(clause string, n int) {
	if n > 0 {
		skippedAttributes.WithLabelValues(clause).Add(float64(n))
	}
}

// CountRateLimited 累加一次限流拒绝
func CountRateLimited(scope string) {
	rateLimited.WithLabelValues(scope).Inc()
}
