// Package grpchealth 通过标准 gRPC Health Checking 协议报告服务可用性，供负载均衡器和编排系统探测。
//
// file: internal/transport/grpchealth/health.go
package grpchealth

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName 是记录查询服务在健康检查协议中的名称
const ServiceName = "modelaegis.v1.RecordService"

// Checker 探测一次依赖是否可用
type Checker func(ctx context.Context) error

// Server 包装 grpc.Server 和 health.Server，并周期性地根据 Checker 更新状态
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	check   Checker
	timeout time.Duration

	mu   sync.Mutex
	last healthpb.HealthCheckResponse_ServingStatus
}

// New 创建健康检查服务。初始状态为 NOT_SERVING，直到第一次探测成功。
func New(check Checker, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	s := &Server{
		grpc:    grpc.NewServer(),
		health:  health.NewServer(),
		check:   check,
		timeout: timeout,
		last:    healthpb.HealthCheckResponse_NOT_SERVING,
	}
	s.health.SetServingStatus("", s.last)
	s.health.SetServingStatus(ServiceName, s.last)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// Probe 执行一次探测并更新服务状态，返回新的状态
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.check != nil {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.check(ctx); err != nil {
			slog.Warn("[gRPCHealth] 依赖探测失败", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	s.mu.Lock()
	changed := status != s.last
	s.last = status
	s.mu.Unlock()
	if changed {
		slog.Info("[gRPCHealth] 服务状态变化", "status", status.String())
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Watch 按 interval 周期探测，直到 ctx 结束
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s.Probe(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Serve 在 lis 上提供服务，阻塞直到 Stop 被调用
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("[gRPCHealth] 开始监听", "address", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop 把所有服务标记为 NOT_SERVING 并优雅停止
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
