// file: internal/recordquery/pagination.go
package recordquery

import (
	"ModelAegis/internal/core/port"
	"fmt"
)

const (
	// MinLimit / MaxLimit 每页条数的合法区间，超出时拒绝而不是截断
	MinLimit = 1
	MaxLimit = 100
)

// Page 是校验通过的分页参数
type Page struct {
	Page   int
	Limit  int
	Offset int
}

// CompilePagination 校验 page/limit 并计算 offset = (page-1) * limit
func CompilePagination(page, limit int) (Page, error) {
	if page < 1 {
		return Page{}, fmt.Errorf("%w: page 必须 >= 1，实际为 %d", port.ErrValidation, page)
	}
	if limit < MinLimit || limit > MaxLimit {
		return Page{}, fmt.Errorf("%w: limit 必须在 [%d, %d] 之间，实际为 %d", port.ErrValidation, MinLimit, MaxLimit, limit)
	}
	return Page{Page: page, Limit: limit, Offset: (page - 1) * limit}, nil
}

// fragment 生成 LIMIT/OFFSET 片段，两个参数总是语句中的最后两个
func (p Page) fragment() fragment {
	return fragment{sql: "LIMIT ? OFFSET ?", args: []any{p.Limit, p.Offset}}
}

// TotalPages 计算总页数
func (p Page) TotalPages(total int64) int64 {
	if total <= 0 {
		return 0
	}
	limit := int64(p.Limit)
	return (total + limit - 1) / limit
}
