// Package config 负责集中式配置加载：configs/config.yaml + MODELAEGIS_ 前缀的环境变量。
//
// file: internal/config/config.go
package config

import (
	"ModelAegis/internal/adapter/datasource/external"
	"ModelAegis/internal/adapter/store"
	"ModelAegis/internal/aegmiddleware"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 MODELAEGIS_SERVER_PORT
const EnvPrefix = "MODELAEGIS"

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type CatalogConfig struct {
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

type GRPCConfig struct {
	// Port 为 0 时不启动 gRPC 健康检查服务
	Port          int           `mapstructure:"port"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
}

type ObservabilityConfig struct {
	// PprofAddr 为空时不暴露 pprof
	PprofAddr string `mapstructure:"pprof_addr"`
}

// Config 是服务的全部配置
type Config struct {
	Server        ServerConfig           `mapstructure:"server"`
	Store         store.Options          `mapstructure:"store"`
	Catalog       CatalogConfig          `mapstructure:"catalog"`
	External      external.Options       `mapstructure:"external"`
	RateLimit     aegmiddleware.Settings `mapstructure:"rate_limit"`
	GRPC          GRPCConfig             `mapstructure:"grpc"`
	Observability ObservabilityConfig    `mapstructure:"observability"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 10224)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", store.DefaultSQLiteDSN)
	v.SetDefault("store.max_open_conns", 10)
	v.SetDefault("store.max_idle_conns", 5)
	v.SetDefault("store.conn_max_lifetime", time.Hour)

	v.SetDefault("catalog.cache_size", 1000)
	v.SetDefault("catalog.cache_ttl", 5*time.Minute)

	v.SetDefault("external.idle_ttl", 10*time.Minute)
	v.SetDefault("external.cleanup_interval", time.Minute)
	v.SetDefault("external.max_open_conns", 5)
	v.SetDefault("external.max_idle_conns", 2)
	v.SetDefault("external.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("external.ping_timeout", 5*time.Second)

	v.SetDefault("rate_limit.global_rate", 0)
	v.SetDefault("rate_limit.global_burst", 0)
	v.SetDefault("rate_limit.ip_rate", 20)
	v.SetDefault("rate_limit.ip_burst", 40)
	v.SetDefault("rate_limit.model_rate", 50)
	v.SetDefault("rate_limit.model_burst", 100)
	v.SetDefault("rate_limit.idle_ttl", 15*time.Minute)

	v.SetDefault("grpc.port", 0)
	v.SetDefault("grpc.probe_interval", 10*time.Second)
	v.SetDefault("grpc.probe_timeout", 2*time.Second)

	v.SetDefault("observability.pprof_addr", "")
}

// LoadDotEnv 依次加载存在的 .env 文件，已存在的环境变量不会被覆盖。返回实际加载的文件。
func LoadDotEnv(files ...string) ([]string, error) {
	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return loaded, fmt.Errorf("加载环境文件 '%s' 失败: %w", f, err)
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}

// Load 读取配置。path 为空时只使用默认值和环境变量；path 指向的文件不存在时报错。
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("读取配置文件 '%s' 失败: %w", path, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置到结构体失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置是否自洽
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port 非法: %d", c.Server.Port))
	}
	if c.GRPC.Port < 0 || c.GRPC.Port > 65535 {
		errs = append(errs, fmt.Errorf("grpc.port 非法: %d", c.GRPC.Port))
	}
	if c.GRPC.Port != 0 && c.GRPC.Port == c.Server.Port {
		errs = append(errs, errors.New("grpc.port 不能与 server.port 相同"))
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "postgresql":
	default:
		errs = append(errs, fmt.Errorf("store.driver 不支持: '%s'", c.Store.Driver))
	}
	if c.Catalog.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("catalog.cache_size 必须为正数: %d", c.Catalog.CacheSize))
	}
	return errors.Join(errs...)
}

// Watch 监听配置文件变化。每次变化后重新解析，解析成功才回调 onChange；
// 只有 log_level 这类无需重建连接的配置适合热更新。
func Watch(v *viper.Viper, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			slog.Error("[Config] 配置文件变化后解析失败，保留旧配置", "file", e.Name, "error", err)
			return
		}
		slog.Info("[Config] 配置文件已重新加载", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
}
