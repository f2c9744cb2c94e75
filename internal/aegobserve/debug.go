// Package aegobserve file: internal/aegobserve/debug.go
package aegobserve

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"time"
)

// pprofMux 只挂载 pprof 路由，不使用 http.DefaultServeMux
func pprofMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// StartPprof 在 addr 上启动独立的 pprof 服务，例如 "localhost:6060"。
// addr 为空时不启动并返回 nil。返回的服务器由调用方在停机时 Shutdown，
// 其 Addr 是实际监听的地址。
func StartPprof(addr string) (*http.Server, error) {
	if addr == "" {
		slog.Info("[Observe] pprof 未启用 (地址为空)")
		return nil, nil
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("pprof 端口监听失败: %w", err)
	}
	srv := &http.Server{
		Addr:              lis.Addr().String(),
		Handler:           pprofMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("[Observe] pprof 端点已启动", "address", srv.Addr)
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[Observe] pprof 服务异常退出", "error", err)
		}
	}()
	return srv, nil
}
