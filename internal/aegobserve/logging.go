// Package aegobserve file: internal/aegobserve/logging.go
package aegobserve

import (
	"log/slog"
	"os"
	"strings"
)

// logLevel 全局日志级别，配置热加载时通过 SetLogLevel 修改
var logLevel = new(slog.LevelVar)

// ParseLevel 把配置中的级别字符串转换为 slog.Level，无法识别时为 INFO
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger 初始化全局的结构化日志记录器。
// 它应该在 main 函数的早期被调用。
func InitLogger(levelStr string) {
	logLevel.Set(ParseLevel(levelStr))

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: true,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel 在运行时调整日志级别
func SetLogLevel(levelStr string) {
	old := logLevel.Level()
	logLevel.Set(ParseLevel(levelStr))
	if old != logLevel.Level() {
		slog.Info("[Observe] 日志级别已更新", "from", old.String(), "to", logLevel.Level().String())
	}
}

// LogLevel 返回当前日志级别
func LogLevel() slog.Level {
	return logLevel.Level()
}
