// Package port file: internal/core/port/datasource.go
package port

import (
	"ModelAegis/internal/core/domain"
	"context"
)

// Row 是一行查询结果，列名 -> 值。[]byte 已被转换为 string。
type Row map[string]any

// RowQuerier 是能执行一条参数化查询并返回行的最小接口，内部存储与外部客户端都实现它。
type RowQuerier interface {
	QueryRows(ctx context.Context, query string, args ...any) ([]Row, error)
}

// ExternalClient 是连接解析器返回的、按请求获取的外部库客户端。
// 调用方必须在所有退出路径上 Close。
type ExternalClient interface {
	RowQuerier
	Close() error
}

// ConnectionResolver 根据连接描述返回一个可用的外部客户端，连接池由实现方负责。
type ConnectionResolver interface {
	Resolve(ctx context.Context, desc domain.ConnectionDescriptor) (ExternalClient, error)
}

// NewValueRow 是新建记录时写入的一条属性值
type NewValueRow struct {
	AttributeID string
	Value       string
}

// RecordStore 是内部存储：查询 + 在一个事务中写入记录行与属性值行
type RecordStore interface {
	RowQuerier
	InsertRecord(ctx context.Context, rec domain.Record, values []NewValueRow) error
	Ping(ctx context.Context) error
}
