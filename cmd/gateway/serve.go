// file: cmd/gateway/serve.go

package main

import (
	"ModelAegis/internal/adapter/datasource/external"
	"ModelAegis/internal/adapter/store"
	"ModelAegis/internal/aegmiddleware"
	"ModelAegis/internal/aegobserve"
	"ModelAegis/internal/config"
	"ModelAegis/internal/service"
	"ModelAegis/internal/service/catalog"
	"ModelAegis/internal/service/records"
	"ModelAegis/internal/transport/grpchealth"
	"ModelAegis/internal/transport/http/router"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
)

// loadConfig 加载 .env、定位配置文件并解析。在日志系统初始化前使用标准 log。
func loadConfig(configPath string) (*config.Config, *viper.Viper, string, error) {
	if loaded, err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		return nil, nil, "", err
	} else if len(loaded) > 0 {
		log.Printf("已加载环境文件: %v", loaded)
	}

	if configPath == "" {
		configPath = os.Getenv("MODELAEGIS_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join("configs", "config.yaml")
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			log.Printf("配置文件 '%s' 不存在，使用默认配置和环境变量", configPath)
			configPath = ""
		}
	}

	cfg, v, err := config.Load(configPath)
	if err != nil {
		return nil, nil, "", err
	}
	return cfg, v, configPath, nil
}

// openStore 打开内部存储并确保平台表存在
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if err := ensureSQLiteDir(cfg.Store); err != nil {
		return nil, fmt.Errorf("创建内部数据库目录失败: %w", err)
	}
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("打开内部数据库失败: %w", err)
	}
	if err := service.InitPlatformTables(ctx, st.DB()); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("初始化平台系统表失败: %w", err)
	}
	return st, nil
}

func runInitDB(ctx context.Context, configPath string) error {
	cfg, _, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	aegobserve.InitLogger(cfg.Server.LogLevel)
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	slog.Info("平台表已就绪", "driver", cfg.Store.Driver)
	return st.Close()
}

func runServe(parent context.Context, configPath string) error {
	log.Printf("ModelAegis Record Engine %s 正在启动...", version)

	cfg, v, configPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	aegobserve.InitLogger(cfg.Server.LogLevel)
	if cfg.Server.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	slog.Info("ModelAegis Record Engine starting up", "version", version, "config", configPath)
	if configPath != "" {
		config.Watch(v, func(next *config.Config) {
			aegobserve.SetLogLevel(next.Server.LogLevel)
		})
	}

	if parent == nil {
		parent = context.Background()
	}
	rootCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- 存储层 ---
	st, err := openStore(rootCtx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		slog.Info("正在关闭内部数据库连接...")
		if err := st.Close(); err != nil {
			slog.Error("关闭内部数据库时发生错误", "error", err)
		}
	}()

	resolver := external.NewResolver(cfg.External)
	defer func() {
		if err := resolver.Close(); err != nil {
			slog.Error("关闭外部连接池时发生错误", "error", err)
		}
	}()

	// --- 服务层 ---
	catalogService, err := catalog.NewService(st.DB(), st.Dialect(), cfg.Catalog.CacheSize, cfg.Catalog.CacheTTL)
	if err != nil {
		return fmt.Errorf("初始化 CatalogService 失败: %w", err)
	}
	slog.Info("服务层: CatalogService 初始化完成")

	recordService, err := records.NewService(catalogService, st, st.Dialect(), resolver)
	if err != nil {
		return fmt.Errorf("初始化 RecordService 失败: %w", err)
	}
	slog.Info("服务层: RecordService 初始化完成")

	rateLimiter := aegmiddleware.NewRateLimiter(cfg.RateLimit)

	// --- 传输层 ---
	aegobserve.Register()
	httpRouter := router.New(router.Dependencies{
		Catalog:     catalogService,
		Records:     recordService,
		Limiter:     rateLimiter,
		Health:      st.Ping,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	slog.Info("传输层: HTTP 路由器创建完成。")

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           httpRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("ModelAegis 启动成功，开始监听HTTP请求...", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP服务启动失败: %w", err)
			stop()
		}
	}()

	var health *grpchealth.Server
	if cfg.GRPC.Port != 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
		if err != nil {
			return fmt.Errorf("gRPC 健康检查端口监听失败: %w", err)
		}
		health = grpchealth.New(st.Ping, cfg.GRPC.ProbeTimeout)
		go health.Watch(rootCtx, cfg.GRPC.ProbeInterval)
		go func() {
			if err := health.Serve(lis); err != nil {
				slog.Error("gRPC 健康检查服务异常退出", "error", err)
			}
		}()
	}

	// pprof 启动失败不影响主服务
	pprofServer, err := aegobserve.StartPprof(cfg.Observability.PprofAddr)
	if err != nil {
		slog.Error("pprof 服务未启动", "error", err)
	}

	<-rootCtx.Done()
	slog.Info("收到停机信号，准备优雅关闭...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if health != nil {
		health.Stop()
	}
	if pprofServer != nil {
		if err := pprofServer.Shutdown(ctx); err != nil {
			slog.Error("pprof 服务关闭失败", "error", err)
		}
	}
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("HTTP服务优雅关闭失败", "error", err)
	}
	slog.Info("HTTP服务已成功关闭。")

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

// ensureSQLiteDir 确保 file: 形式的 SQLite 路径所在目录存在
func ensureSQLiteDir(opts store.Options) error {
	if opts.Driver != "" && opts.Driver != "sqlite" {
		return nil
	}
	dsn := opts.DSN
	if dsn == "" {
		dsn = store.DefaultSQLiteDSN
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
