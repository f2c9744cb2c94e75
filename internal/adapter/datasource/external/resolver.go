// Package external 是外部关系库的连接解析器：按连接描述维护 *sql.DB 连接池，
// 并为每个请求发放一个轻量客户端。连接池放在带 TTL 的缓存里，过期或失效时关闭。
//
// file: internal/adapter/datasource/external/resolver.go
package external

import (
	"ModelAegis/internal/adapter/datasource/rowscan"
	"ModelAegis/internal/core/domain"
	"ModelAegis/internal/core/port"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	gocache "github.com/patrickmn/go-cache"
	_ "modernc.org/sqlite"
)

// 编译期校验
var _ port.ConnectionResolver = (*Resolver)(nil)

// Options 连接池参数
type Options struct {
	// IdleTTL 连接池多久未被使用后关闭
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// PingTimeout 新建连接池时探活的超时
	PingTimeout time.Duration `mapstructure:"ping_timeout"`
}

type pool struct {
	db   *sql.DB
	kind domain.ConnectionKind
	dsn  string
}

// Resolver 实现 port.ConnectionResolver
type Resolver struct {
	opts  Options
	pools *gocache.Cache
	// mu 保证同一连接不会被并发地重复打开
	mu sync.Mutex
}

// NewResolver 创建解析器
func NewResolver(opts Options) *Resolver {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 5 * time.Second
	}
	c := gocache.New(opts.IdleTTL, opts.CleanupInterval)
	c.OnEvicted(func(id string, v any) {
		p, ok := v.(*pool)
		if !ok {
			return
		}
		if err := p.db.Close(); err != nil {
			slog.Warn("[ConnResolver] 关闭外部连接池失败", "connection_id", id, "error", err)
			return
		}
		slog.Info("[ConnResolver] 外部连接池已关闭", "connection_id", id, "kind", p.kind)
	})
	return &Resolver{opts: opts, pools: c}
}

// Resolve 返回一个指向该连接的客户端。调用方用完后必须 Close。
func (r *Resolver) Resolve(ctx context.Context, desc domain.ConnectionDescriptor) (port.ExternalClient, error) {
	if desc.ID == "" {
		return nil, errors.New("外部连接描述缺少 id")
	}
	p, err := r.acquire(ctx, desc)
	if err != nil {
		return nil, err
	}
	return &client{db: p.db, connectionID: desc.ID}, nil
}

func (r *Resolver) acquire(ctx context.Context, desc domain.ConnectionDescriptor) (*pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.pools.Get(desc.ID); ok {
		p := v.(*pool)
		if p.kind == desc.Kind && p.dsn == desc.DSN {
			// 滑动过期：每次使用都续期
			r.pools.SetDefault(desc.ID, p)
			return p, nil
		}
	}
	// 连接描述变了，或旧池已过期但清理协程尚未运行：Delete 会经 OnEvicted 关闭旧池
	r.pools.Delete(desc.ID)

	db, err := openPool(desc)
	if err != nil {
		return nil, err
	}
	if r.opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(r.opts.MaxOpenConns)
	}
	if r.opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(r.opts.MaxIdleConns)
	}
	if r.opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(r.opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, r.opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: 连接 '%s' 探活失败: %v", port.ErrBackendUnavailable, desc.ID, err)
	}

	p := &pool{db: db, kind: desc.Kind, dsn: desc.DSN}
	r.pools.SetDefault(desc.ID, p)
	slog.Info("[ConnResolver] 外部连接池已建立", "connection_id", desc.ID, "kind", desc.Kind)
	return p, nil
}

// openPool 按数据库类型构造连接池，DSN 在这里就会被校验
func openPool(desc domain.ConnectionDescriptor) (*sql.DB, error) {
	switch desc.Kind {
	case domain.ConnPostgres:
		connector, err := pq.NewConnector(desc.DSN)
		if err != nil {
			return nil, fmt.Errorf("连接 '%s' 的 PostgreSQL DSN 无效: %w", desc.ID, err)
		}
		return sql.OpenDB(connector), nil
	case domain.ConnMySQL:
		cfg, err := mysql.ParseDSN(desc.DSN)
		if err != nil {
			return nil, fmt.Errorf("连接 '%s' 的 MySQL DSN 无效: %w", desc.ID, err)
		}
		cfg.ParseTime = true
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, fmt.Errorf("连接 '%s' 的 MySQL 配置无效: %w", desc.ID, err)
		}
		return sql.OpenDB(connector), nil
	case domain.ConnSQLite:
		db, err := sql.Open("sqlite", desc.DSN)
		if err != nil {
			return nil, fmt.Errorf("连接 '%s' 的 SQLite DSN 无效: %w", desc.ID, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("不支持的外部数据库类型 '%s' (连接 '%s')", desc.Kind, desc.ID)
	}
}

// Invalidate 立即关闭并移除某个连接的连接池
func (r *Resolver) Invalidate(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools.Delete(connectionID)
}

// Len 返回当前持有的连接池数量
func (r *Resolver) Len() int {
	return r.pools.ItemCount()
}

// Close 关闭全部连接池。go-cache 的 Flush 不触发 OnEvicted，所以逐个删除。
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.pools.Items() {
		r.pools.Delete(id)
	}
	return nil
}

// client 是单次请求持有的客户端，Close 只释放本次使用权，不关闭共享连接池
type client struct {
	db           *sql.DB
	connectionID string
	released     atomic.Bool
}

func (c *client) QueryRows(ctx context.Context, query string, args ...any) ([]port.Row, error) {
	if c.released.Load() {
		return nil, fmt.Errorf("连接 '%s' 的客户端已释放", c.connectionID)
	}
	return rowscan.Query(ctx, c.db, query, args...)
}

func (c *client) Close() error {
	c.released.Store(true)
	return nil
}
