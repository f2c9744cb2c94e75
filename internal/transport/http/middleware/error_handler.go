// Package middleware file: internal/transport/http/middleware/error_handler.go
package middleware

import (
	"ModelAegis/internal/core/port"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// fieldError 是返回给调用方的单个字段校验错误
type fieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

// ErrorHandlingMiddleware 是一个 Gin 中间件，用于集中处理错误。
// 处理器只需 c.Error(err) 后返回，状态码由这里根据错误分类决定。
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		// 只处理最后一个错误，它通常是根本原因
		err := c.Errors.Last().Err

		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			details := make([]fieldError, len(ve))
			for i, fe := range ve {
				details[i] = fieldError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()}
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数验证失败", "details": details})
			return
		}

		status := StatusFor(err)
		switch status {
		case http.StatusInternalServerError:
			slog.Error("[HTTP] 请求处理失败", "path", c.FullPath(), "error", err)
			c.JSON(status, gin.H{"error": "服务器内部错误"})
		case http.StatusBadGateway:
			slog.Warn("[HTTP] 外部数据源不可用", "path", c.FullPath(), "error", err)
			c.JSON(status, gin.H{"error": port.ErrBackendUnavailable.Error()})
		default:
			c.JSON(status, gin.H{"error": err.Error()})
		}
	}
}

// StatusFor 把错误分类映射为 HTTP 状态码
func StatusFor(err error) int {
	switch {
	case errors.Is(err, port.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, port.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, port.ErrReadOnlySource):
		return http.StatusConflict
	case errors.Is(err, port.ErrBackendUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
