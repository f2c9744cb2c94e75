// Package port file: internal/core/port/service.go
package port

import (
	"ModelAegis/internal/core/domain"
	"context"
)

// CatalogService 定义属性目录解析能力 (只读)。
type CatalogService interface {
	Resolve(ctx context.Context, dataModelID string) (*domain.Catalog, error)
	ListModels(ctx context.Context) ([]domain.DataModel, error)

	Invalidate(dataModelID string)
	InvalidateAll()
}

// RecordService 是引擎对外暴露的能力
type RecordService interface {
	ListRecords(ctx context.Context, q domain.RecordListQuery) (*domain.RecordPage, error)
	CreateRecord(ctx context.Context, dataModelID string, values []domain.AttributeValue) (*domain.Record, error)
}
