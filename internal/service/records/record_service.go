// Package records 是记录查询引擎的入口：解析目录、编译语句、并发执行计数与取数、
// 把结果归一化为统一的记录形态。内部模型读写平台自己的 EAV 存储，外部模型只读代理。
//
// file: internal/service/records/record_service.go
package records

import (
	"ModelAegis/internal/aegobserve"
	"ModelAegis/internal/core/domain"
	"ModelAegis/internal/core/port"
	"ModelAegis/internal/recordquery"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// 静态断言
var _ port.RecordService = (*Service)(nil)

const (
	sourceInternal = "internal"
	sourceExternal = "external"
)

// Service 实现 port.RecordService
type Service struct {
	catalog  port.CatalogService
	store    port.RecordStore
	dialect  recordquery.Dialect
	resolver port.ConnectionResolver
	now      func() time.Time
}

// NewService 创建记录服务。dialect 是内部存储的方言，必须是编号占位符风格。
func NewService(catalog port.CatalogService, store port.RecordStore, dialect recordquery.Dialect, resolver port.ConnectionResolver) (*Service, error) {
	if catalog == nil || store == nil || resolver == nil {
		return nil, errors.New("records.Service 初始化失败: catalog、store、resolver 都不能为 nil")
	}
	if dialect.Style() != recordquery.Numbered {
		return nil, fmt.Errorf("records.Service 初始化失败: 内部存储方言 '%s' 必须使用编号占位符", dialect.Name())
	}
	return &Service{
		catalog:  catalog,
		store:    store,
		dialect:  dialect,
		resolver: resolver,
		now:      time.Now,
	}, nil
}

// ListRecords 返回一页记录和满足条件的总数。二者要么一起返回，要么返回错误，不会出现部分结果。
func (s *Service) ListRecords(ctx context.Context, q domain.RecordListQuery) (page *domain.RecordPage, err error) {
	source := sourceInternal
	defer func() { aegobserve.ObserveRecordRequest("list", source, err) }()

	if strings.TrimSpace(q.DataModelID) == "" {
		return nil, fmt.Errorf("%w: data_model_id 不能为空", port.ErrValidation)
	}
	// 在访问任何存储之前先拒绝非法的分页和排序参数
	if _, err = recordquery.CompilePagination(q.Page, q.Limit); err != nil {
		return nil, err
	}
	if _, err = recordquery.ParseDirection(string(q.SortDirection)); err != nil {
		return nil, err
	}

	cat, err := s.catalog.Resolve(ctx, q.DataModelID)
	if err != nil {
		return nil, err
	}
	if cat.Model.IsExternal() {
		source = sourceExternal
		return s.listExternal(ctx, cat, q)
	}
	return s.listInternal(ctx, cat, q)
}

func (s *Service) listInternal(ctx context.Context, cat *domain.Catalog, q domain.RecordListQuery) (*domain.RecordPage, error) {
	plan, err := recordquery.AssembleInternal(cat, q, s.dialect)
	if err != nil {
		return nil, err
	}
	observePlan(cat, plan)

	rows, total, err := execute(ctx, s.store, plan, sourceInternal)
	if err != nil {
		return nil, wrap(port.ErrInternalStore, fmt.Sprintf("查询数据模型 '%s' 的记录失败", cat.Model.ID), err)
	}

	var triples []recordquery.ValueTriple
	if ids := recordquery.RecordIDs(rows); len(ids) > 0 {
		st := recordquery.ValuesStatement(ids, s.dialect)
		start := time.Now()
		valueRows, err := s.store.QueryRows(ctx, st.SQL, st.Args...)
		aegobserve.ObserveStatement(sourceInternal, "values", start)
		if err != nil {
			return nil, wrap(port.ErrInternalStore, fmt.Sprintf("读取数据模型 '%s' 的属性值失败", cat.Model.ID), err)
		}
		triples = recordquery.TriplesFromRows(valueRows)
	}

	recs, err := recordquery.NormalizeInternal(rows, triples)
	if err != nil {
		return nil, wrap(port.ErrInternalStore, fmt.Sprintf("归一化数据模型 '%s' 的记录失败", cat.Model.ID), err)
	}
	return newPage(recs, plan.Page, total), nil
}

func (s *Service) listExternal(ctx context.Context, cat *domain.Catalog, q domain.RecordListQuery) (*domain.RecordPage, error) {
	if cat.Connection == nil {
		return nil, fmt.Errorf("%w: 外部数据模型 '%s' 没有可用的连接描述", port.ErrBackendUnavailable, cat.Model.ID)
	}
	d, err := recordquery.DialectFor(cat.Connection.Kind)
	if err != nil {
		return nil, wrap(port.ErrBackendUnavailable, fmt.Sprintf("外部数据模型 '%s'", cat.Model.ID), err)
	}
	plan, err := recordquery.AssembleExternal(cat, q, d)
	if err != nil {
		return nil, err
	}
	observePlan(cat, plan)

	client, err := s.resolver.Resolve(ctx, *cat.Connection)
	if err != nil {
		return nil, wrap(port.ErrBackendUnavailable, fmt.Sprintf("获取外部连接 '%s' 失败", cat.Connection.ID), err)
	}
	defer func() {
		if errClose := client.Close(); errClose != nil {
			slog.Warn("[RecordService] 释放外部客户端失败", "connection_id", cat.Connection.ID, "error", errClose)
		}
	}()

	rows, total, err := execute(ctx, client, plan, sourceExternal)
	if err != nil {
		return nil, wrap(port.ErrBackendUnavailable, fmt.Sprintf("查询外部数据模型 '%s' 失败", cat.Model.ID), err)
	}
	return newPage(recordquery.NormalizeExternal(cat, rows), plan.Page, total), nil
}

// execute 并发执行计数语句和取数语句，二者都成功才返回
func execute(ctx context.Context, q port.RowQuerier, plan *recordquery.Plan, source string) ([]port.Row, int64, error) {
	var (
		rows  []port.Row
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		start := time.Now()
		countRows, err := q.QueryRows(gctx, plan.Count.SQL, plan.Count.Args...)
		aegobserve.ObserveStatement(source, "count", start)
		if err != nil {
			return fmt.Errorf("计数语句执行失败: %w", err)
		}
		n, err := recordquery.CountFromRows(countRows)
		if err != nil {
			return fmt.Errorf("计数结果无法解析: %w", err)
		}
		total = n
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		fetched, err := q.QueryRows(gctx, plan.Fetch.SQL, plan.Fetch.Args...)
		aegobserve.ObserveStatement(source, "fetch", start)
		if err != nil {
			return fmt.Errorf("取数语句执行失败: %w", err)
		}
		rows = fetched
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CreateRecord 在内部存储中新建一条记录。外部模型只读，返回 port.ErrReadOnlySource。
func (s *Service) CreateRecord(ctx context.Context, dataModelID string, values []domain.AttributeValue) (rec *domain.Record, err error) {
	source := sourceInternal
	defer func() { aegobserve.ObserveRecordRequest("create", source, err) }()

	if strings.TrimSpace(dataModelID) == "" {
		return nil, fmt.Errorf("%w: data_model_id 不能为空", port.ErrValidation)
	}
	cat, err := s.catalog.Resolve(ctx, dataModelID)
	if err != nil {
		return nil, err
	}
	if cat.Model.IsExternal() {
		source = sourceExternal
		return nil, fmt.Errorf("%w: 数据模型 '%s'", port.ErrReadOnlySource, dataModelID)
	}

	rows := make([]port.NewValueRow, 0, len(values))
	valueMap := make(map[string]any, len(values))
	for _, v := range values {
		attr, ok := cat.AttributeByName(v.Attribute)
		if !ok {
			return nil, fmt.Errorf("%w: 数据模型 '%s' 没有属性 '%s'", port.ErrValidation, dataModelID, v.Attribute)
		}
		if _, dup := valueMap[attr.Name]; dup {
			return nil, fmt.Errorf("%w: 属性 '%s' 重复出现", port.ErrValidation, attr.Name)
		}
		valueMap[attr.Name] = v.Value
		rows = append(rows, port.NewValueRow{AttributeID: attr.ID, Value: v.Value})
	}

	id := uuid.NewString()
	// 截断到微秒，与存储的时间精度一致
	now := s.now().UTC().Truncate(time.Microsecond)
	record := domain.Record{
		ID:          &id,
		DataModelID: dataModelID,
		IsActive:    true,
		CreatedAt:   &now,
		UpdatedAt:   &now,
		Values:      valueMap,
	}

	start := time.Now()
	err = s.store.InsertRecord(ctx, record, rows)
	aegobserve.ObserveStatement(sourceInternal, "insert", start)
	if err != nil {
		return nil, wrap(port.ErrInternalStore, fmt.Sprintf("创建数据模型 '%s' 的记录失败", dataModelID), err)
	}
	slog.Info("[RecordService] 记录已创建", "data_model_id", dataModelID, "record_id", id, "values", len(rows))
	return &record, nil
}

func newPage(recs []domain.Record, p recordquery.Page, total int64) *domain.RecordPage {
	return &domain.RecordPage{
		Records: recs,
		Pagination: domain.Pagination{
			Page:  p.Page,
			Limit: p.Limit,
			Total: total,
			Pages: p.TotalPages(total),
		},
	}
}

func observePlan(cat *domain.Catalog, plan *recordquery.Plan) {
	aegobserve.CountSkipped("filter", len(plan.Skipped))
	if plan.SortFallback {
		aegobserve.CountSkipped("sort", 1)
		slog.Debug("[RecordService] 排序属性没有存储映射，已使用默认排序", "data_model_id", cat.Model.ID)
	}
}

// wrap 把底层错误归入 sentinel 分类，已经属于该分类的错误不重复包装
func wrap(sentinel error, msg string, err error) error {
	if errors.Is(err, sentinel) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%w: %s: %w", sentinel, msg, err)
}
