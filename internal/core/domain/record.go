// Package domain file: internal/core/domain/record.go
package domain

import "time"

// TimestampLayout 内部存储的时间文本格式：定长 UTC，字符串顺序即时间顺序
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Record 是对所有调用方统一的记录形态。外部记录的 ID 可能为空 (没有声明主键时)。
type Record struct {
	ID          *string        `json:"id"`
	DataModelID string         `json:"data_model_id"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   *time.Time     `json:"created_at"`
	UpdatedAt   *time.Time     `json:"updated_at"`
	DeletedAt   *time.Time     `json:"deleted_at"`
	Values      map[string]any `json:"values"`
}

// SortDirection 排序方向
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// FilterEntry 是一个 属性名 -> 原始字符串 的过滤项，保留请求中的先后顺序
type FilterEntry struct {
	Attribute string
	Raw       string
}

// RecordListQuery 是一次列表查询的全部参数，只在请求范围内存在
type RecordListQuery struct {
	DataModelID   string
	Page          int
	Limit         int
	Filters       []FilterEntry
	SortBy        string
	SortDirection SortDirection
}

// Pagination 分页信息
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

// RecordPage 是 ListRecords 的返回：一页记录加总数，二者总是一起出现
type RecordPage struct {
	Records    []Record   `json:"records"`
	Pagination Pagination `json:"pagination"`
}

// AttributeValue 是创建记录时的一个 属性名/值 对
type AttributeValue struct {
	Attribute string `json:"attribute" binding:"required"`
	Value     string `json:"value"`
}
