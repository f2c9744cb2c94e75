// Package store 是平台内部数据库的适配器：打开连接、以行映射形式执行查询、
// 在一个事务中写入记录行和属性值行。默认使用 modernc.org/sqlite，也可以指向 PostgreSQL。
//
// file: internal/adapter/store/store.go
package store

import (
	"ModelAegis/internal/adapter/datasource/rowscan"
	"ModelAegis/internal/core/domain"
	"ModelAegis/internal/core/port"
	"ModelAegis/internal/recordquery"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// 编译期校验
var _ port.RecordStore = (*Store)(nil)

// DefaultSQLiteDSN 内部 SQLite 库的默认 DSN
const DefaultSQLiteDSN = "file:data/modelaegis.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

// Options 内部存储的连接参数
type Options struct {
	// Driver: sqlite (默认) 或 postgres
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Store 包装内部数据库连接池
type Store struct {
	db      *sql.DB
	driver  string
	dialect recordquery.Dialect
}

// Open 打开内部数据库并确认可以连通
func Open(ctx context.Context, opts Options) (*Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = "sqlite"
	}
	dsn := opts.DSN
	if dsn == "" && driver == "sqlite" {
		dsn = DefaultSQLiteDSN
	}
	sqlDriver := driver
	if driver == "postgresql" {
		sqlDriver = "postgres"
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开内部数据库失败 (driver=%s): %w", driver, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping 内部数据库失败: %w", err)
	}

	s, err := New(db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("[Store] 内部数据库已连接", "driver", driver)
	return s, nil
}

// New 用已有的连接池构造 Store，测试中也用它包装临时库
func New(db *sql.DB, driver string) (*Store, error) {
	if db == nil {
		return nil, errors.New("store.New: db 实例不能为 nil")
	}
	d, err := recordquery.InternalDialect(driver)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, driver: driver, dialect: d}, nil
}

// DB 返回底层连接池，供表结构初始化与目录服务使用
func (s *Store) DB() *sql.DB { return s.db }

// Dialect 返回内部存储使用的方言 (总是编号占位符)
func (s *Store) Dialect() recordquery.Dialect { return s.dialect }

// QueryRows 实现 port.RowQuerier
func (s *Store) QueryRows(ctx context.Context, query string, args ...any) ([]port.Row, error) {
	return rowscan.Query(ctx, s.db, query, args...)
}

// InsertRecord 在一个事务中写入记录行和它的全部属性值行，任何一步失败都整体回滚
func (s *Store) InsertRecord(ctx context.Context, rec domain.Record, values []port.NewValueRow) (err error) {
	if rec.ID == nil || *rec.ID == "" {
		return errors.New("InsertRecord: 记录 ID 不能为空")
	}
	created := time.Now().UTC()
	if rec.CreatedAt != nil {
		created = rec.CreatedAt.UTC()
	}
	updated := created
	if rec.UpdatedAt != nil {
		updated = rec.UpdatedAt.UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Warn("[Store] 事务回滚失败", "record_id", *rec.ID, "error", rbErr)
			}
		}
	}()

	insertRecord := s.dialect.Renumber("INSERT INTO " + recordquery.RecordsTable +
		" (id, data_model_id, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?)")
	if _, err = tx.ExecContext(ctx, insertRecord,
		*rec.ID, rec.DataModelID, rec.IsActive,
		created.Format(domain.TimestampLayout), updated.Format(domain.TimestampLayout),
	); err != nil {
		return fmt.Errorf("写入记录 '%s' 失败: %w", *rec.ID, err)
	}

	insertValue := s.dialect.Renumber("INSERT INTO " + recordquery.ValuesTable +
		" (id, record_id, attribute_id, value) VALUES (?, ?, ?, ?)")
	for _, v := range values {
		if _, err = tx.ExecContext(ctx, insertValue, uuid.NewString(), *rec.ID, v.AttributeID, v.Value); err != nil {
			return fmt.Errorf("写入记录 '%s' 的属性值 (attribute_id=%s) 失败: %w", *rec.ID, v.AttributeID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("提交记录 '%s' 失败: %w", *rec.ID, err)
	}
	return nil
}

// Ping 检查内部数据库是否可用
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close 关闭连接池
func (s *Store) Close() error {
	return s.db.Close()
}
