// file: internal/transport/http/router/router.go
package router

import (
	"ModelAegis/internal/aegmiddleware"
	"ModelAegis/internal/aegobserve"
	"ModelAegis/internal/core/port"
	"ModelAegis/internal/transport/http/middleware"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// Dependencies 结构体用于将所有依赖项注入到路由器中
type Dependencies struct {
	Catalog port.CatalogService
	Records port.RecordService
	Limiter *aegmiddleware.RateLimiter
	// Health 检查内部存储是否可用，nil 时 /healthz 总是成功
	Health      func(ctx context.Context) error
	CORSOrigins []string
}

// New 创建并配置基于 Gin 的 HTTP 路由器 (V1 版本)
func New(deps Dependencies) http.Handler {
	router := gin.New()

	// --- 配置全局中间件 ---
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	router.Use(aegobserve.PrometheusMiddleware())
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.ErrorHandlingMiddleware())

	router.GET("/healthz", healthHandler(deps.Health))
	router.GET("/metrics", gin.WrapH(aegobserve.Handler()))

	v1 := router.Group("/api/v1")
	if deps.Limiter != nil {
		v1.Use(fromHTTP(deps.Limiter.Chain))
	}
	{
		// --- 元数据/发现平面 ---
		models := v1.Group("/data-models")
		models.GET("", listModelsHandler(deps.Catalog))
		models.GET("/:dataModelId", getModelHandler(deps.Catalog))

		// --- 数据平面 ---
		records := models.Group("/:dataModelId/records")
		if deps.Limiter != nil {
			records.Use(perDataModel(deps.Limiter))
		}
		records.GET("", listRecordsHandler(deps.Records))
		records.POST("", createRecordHandler(deps.Records))
	}

	return router
}

// =============================================================================
//  Gin 中间件 (Middleware)
// =============================================================================

// fromHTTP 把 net/http 风格的中间件接入 gin 流程。内层处理器没有被调用说明请求已被拦截。
func fromHTTP(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		passed := false
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			c.Next()
		}))
		handler.ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
		}
	}
}

// perDataModel 按路径中的数据模型限流
func perDataModel(l *aegmiddleware.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.AllowDataModel(c.Param("dataModelId")) {
			aegobserve.CountRateLimited("data_model")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "此数据模型请求过于频繁，请稍后再试 (per-model limit)"})
			return
		}
		c.Next()
	}
}

// requestLogger 以结构化日志记录每个请求
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("[HTTP] 请求完成",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP())
	}
}

// healthHandler 报告内部存储的可用性
func healthHandler(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				slog.Warn("[HTTP] 健康检查失败", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
