// Package catalog 解析数据模型的属性目录：模型描述、有序属性列表，以及外部模型的连接描述。
// 目录是只读的，结果放在带过期时间的 LRU 缓存中，管理端改动后通过 Invalidate 失效。
//
// file: internal/service/catalog/catalog_service.go
package catalog

import (
	"ModelAegis/internal/core/domain"
	"ModelAegis/internal/core/port"
	"ModelAegis/internal/recordquery"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// 静态断言
var _ port.CatalogService = (*Service)(nil)

const modelColumns = "id, name, source_kind, external_connection_ref, external_schema, external_table, external_primary_key_column, is_active, deleted_at"

// Service 是 port.CatalogService 的实现
type Service struct {
	db      *sql.DB
	dialect recordquery.Dialect
	cache   *lru.LRU[string, *domain.Catalog]
	loads   singleflight.Group
	// loadTimeout 单次从数据库加载目录的上限，与发起加载的请求无关
	loadTimeout time.Duration
}

const defaultLoadTimeout = 10 * time.Second

// NewService 创建目录服务。
// maxCacheEntries: 缓存中允许的最大模型数；defaultCacheTTL: 缓存条目的过期时间。
func NewService(db *sql.DB, dialect recordquery.Dialect, maxCacheEntries int, defaultCacheTTL time.Duration) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("catalog.Service 初始化失败: db 实例不能为 nil")
	}
	if maxCacheEntries <= 0 {
		maxCacheEntries = 1000
	}
	if defaultCacheTTL <= 0 {
		defaultCacheTTL = 5 * time.Minute
	}
	return &Service{
		db:          db,
		dialect:     dialect,
		cache:       lru.NewLRU[string, *domain.Catalog](maxCacheEntries, nil, defaultCacheTTL),
		loadTimeout: defaultLoadTimeout,
	}, nil
}

// Resolve 返回数据模型的完整目录。模型不存在、未启用或已软删除时返回 port.ErrNotFound。
// 返回值在缓存中共享，调用方不得修改。
func (s *Service) Resolve(ctx context.Context, dataModelID string) (*domain.Catalog, error) {
	if dataModelID == "" {
		return nil, fmt.Errorf("%w: data_model_id 不能为空", port.ErrValidation)
	}
	if cat, ok := s.cache.Get(dataModelID); ok {
		return cat, nil
	}

	// 加载由同一 key 的所有调用方共享，不能随第一个调用方的请求一起被取消
	ch := s.loads.DoChan(dataModelID, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		cat, err := s.load(loadCtx, dataModelID)
		if err != nil {
			return nil, err
		}
		s.cache.Add(dataModelID, cat)
		return cat, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Catalog), nil
	}
}

// load 直接从数据库加载目录
func (s *Service) load(ctx context.Context, dataModelID string) (*domain.Catalog, error) {
	row := s.db.QueryRowContext(ctx,
		s.dialect.Renumber("SELECT "+modelColumns+" FROM data_models WHERE id = ?"), dataModelID)
	model, deleted, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: '%s'", port.ErrNotFound, dataModelID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: 读取数据模型 '%s' 失败: %v", port.ErrInternalStore, dataModelID, err)
	}
	if !model.IsActive || deleted {
		return nil, fmt.Errorf("%w: '%s' 未启用或已删除", port.ErrNotFound, dataModelID)
	}
	if model.IsExternal() && (model.ExternalConnectionRef == "" || model.ExternalTable == "") {
		slog.Warn("[Catalog] 外部数据模型缺少连接或表声明，视为不存在", "data_model_id", dataModelID,
			"connection_ref", model.ExternalConnectionRef, "table", model.ExternalTable)
		return nil, fmt.Errorf("%w: 外部数据模型 '%s' 缺少连接或表声明", port.ErrNotFound, dataModelID)
	}

	attrs, err := s.loadAttributes(ctx, dataModelID)
	if err != nil {
		return nil, err
	}
	cat := &domain.Catalog{Model: *model, Attributes: attrs}

	if model.IsExternal() {
		conn, err := s.loadConnection(ctx, model.ExternalConnectionRef)
		if err != nil {
			return nil, err
		}
		cat.Connection = conn
	}

	slog.Debug("[Catalog] 已加载数据模型目录", "data_model_id", dataModelID,
		"source_kind", model.SourceKind, "attributes", len(attrs))
	return cat, nil
}

func (s *Service) loadAttributes(ctx context.Context, dataModelID string) ([]domain.Attribute, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Renumber(
		"SELECT id, data_model_id, name, data_type, external_column, sort_order FROM data_model_attributes WHERE data_model_id = ? ORDER BY sort_order, name"),
		dataModelID)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取数据模型 '%s' 的属性失败: %v", port.ErrInternalStore, dataModelID, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("[Catalog] 关闭属性结果集失败", "data_model_id", dataModelID, "error", err)
		}
	}()

	attrs := make([]domain.Attribute, 0)
	for rows.Next() {
		var a domain.Attribute
		var dataType, column sql.NullString
		if err := rows.Scan(&a.ID, &a.DataModelID, &a.Name, &dataType, &column, &a.Order); err != nil {
			return nil, fmt.Errorf("%w: 扫描数据模型 '%s' 的属性失败: %v", port.ErrInternalStore, dataModelID, err)
		}
		a.DataType = "string"
		if dataType.Valid && dataType.String != "" {
			a.DataType = dataType.String
		}
		a.ExternalColumn = column.String
		attrs = append(attrs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: 迭代数据模型 '%s' 的属性失败: %v", port.ErrInternalStore, dataModelID, err)
	}
	return attrs, nil
}

func (s *Service) loadConnection(ctx context.Context, connectionID string) (*domain.ConnectionDescriptor, error) {
	var conn domain.ConnectionDescriptor
	var kind string
	err := s.db.QueryRowContext(ctx,
		s.dialect.Renumber("SELECT id, name, kind, dsn FROM external_connections WHERE id = ?"), connectionID).
		Scan(&conn.ID, &conn.Name, &kind, &conn.DSN)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: 外部连接 '%s' 未登记", port.ErrBackendUnavailable, connectionID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: 读取外部连接 '%s' 失败: %v", port.ErrInternalStore, connectionID, err)
	}
	conn.Kind = domain.ConnectionKind(kind)
	return &conn, nil
}

// ListModels 列出全部已启用且未删除的数据模型
func (s *Service) ListModels(ctx context.Context) ([]domain.DataModel, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Renumber(
		"SELECT "+modelColumns+" FROM data_models WHERE is_active = ? AND deleted_at IS NULL ORDER BY name, id"), true)
	if err != nil {
		return nil, fmt.Errorf("%w: 列出数据模型失败: %v", port.ErrInternalStore, err)
	}
	defer rows.Close()

	models := make([]domain.DataModel, 0)
	for rows.Next() {
		m, _, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: 扫描数据模型失败: %v", port.ErrInternalStore, err)
		}
		models = append(models, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: 迭代数据模型失败: %v", port.ErrInternalStore, err)
	}
	return models, nil
}

// Invalidate 手动使指定数据模型的缓存失效
func (s *Service) Invalidate(dataModelID string) {
	if dataModelID == "" {
		return
	}
	s.cache.Remove(dataModelID)
	slog.Info("[Catalog] 数据模型目录缓存已失效", "data_model_id", dataModelID)
}

// InvalidateAll 清除所有缓存
func (s *Service) InvalidateAll() {
	s.cache.Purge()
	slog.Info("[Catalog] 所有数据模型目录缓存已清除")
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanModel 按 modelColumns 的顺序扫描一行，第二个返回值表示是否已软删除
func scanModel(row rowScanner) (*domain.DataModel, bool, error) {
	var m domain.DataModel
	var sourceKind string
	var connRef, schema, table, pk, deletedAt sql.NullString
	if err := row.Scan(&m.ID, &m.Name, &sourceKind, &connRef, &schema, &table, &pk, &m.IsActive, &deletedAt); err != nil {
		return nil, false, err
	}
	m.SourceKind = domain.SourceKind(sourceKind)
	m.ExternalConnectionRef = connRef.String
	m.ExternalSchema = schema.String
	m.ExternalTable = table.String
	m.ExternalPrimaryKeyColumn = pk.String
	if deletedAt.Valid && deletedAt.String != "" {
		if t, err := time.Parse(time.RFC3339Nano, deletedAt.String); err == nil {
			m.DeletedAt = &t
		}
		return &m, true, nil
	}
	return &m, false, nil
}
