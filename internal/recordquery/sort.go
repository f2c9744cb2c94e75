// file: internal/recordquery/sort.go
package recordquery

import (
	"ModelAegis/internal/core/domain"
	"ModelAegis/internal/core/port"
	"fmt"
	"strings"
)

// internalRecordFields 内部记录上可以直接排序的保留字段
var internalRecordFields = map[string]struct{}{
	"id":         {},
	"created_at": {},
	"updated_at": {},
	"is_active":  {},
}

// ParseDirection 解析排序方向，空值默认为 desc，其它非法值直接拒绝
func ParseDirection(s string) (domain.SortDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return domain.SortDesc, nil
	case "asc":
		return domain.SortAsc, nil
	case "desc":
		return domain.SortDesc, nil
	default:
		return "", fmt.Errorf("%w: 非法的排序方向 '%s'，只允许 asc 或 desc", port.ErrValidation, s)
	}
}

func sqlDirection(dir domain.SortDirection) string {
	if dir == domain.SortAsc {
		return "ASC"
	}
	return "DESC"
}

// internalOrder 是内部存储的排序编译结果
type internalOrder struct {
	order fragment
	// joinValues 为 true 时取数语句需要关联值表并按记录分组
	joinValues bool
	fallback   bool
}

// compileInternalSort 编译内部存储的 ORDER BY。
// 按属性排序时记录已按 r.id 分组，用 MAX(CASE ...) 取出该属性的值；NULLS LAST 保证
// 缺少该属性的记录无论升降序都排在最后。末尾总是追加 r.id 作为稳定的次序键。
func compileInternalSort(cat *domain.Catalog, sortBy string, dir domain.SortDirection, d Dialect) internalOrder {
	direction := sqlDirection(dir)
	sortBy = strings.TrimSpace(sortBy)

	if sortBy == "" {
		return internalOrder{order: fragment{sql: "r.created_at " + direction + ", r.id ASC"}}
	}
	if _, ok := internalRecordFields[sortBy]; ok {
		if sortBy == "id" {
			return internalOrder{order: fragment{sql: "r.id " + direction}}
		}
		return internalOrder{order: fragment{sql: "r." + sortBy + " " + direction + ", r.id ASC"}}
	}

	attr, ok := cat.AttributeByName(sortBy)
	if !ok {
		return internalOrder{order: fragment{sql: "r.created_at DESC, r.id ASC"}, fallback: true}
	}
	valueExpr := "v.value"
	if attr.DataType == "number" {
		valueExpr = d.numeric("v.value")
	}
	return internalOrder{
		order: fragment{
			sql:  "MAX(CASE WHEN a.name = ? THEN " + valueExpr + " END) " + direction + " NULLS LAST, r.id ASC",
			args: []any{attr.Name},
		},
		joinValues: true,
	}
}

// compileExternalSort 编译外部表的 ORDER BY。
// 没有指定排序或属性未映射时，若已知主键则按主键升序，否则不排序 (结果顺序不确定)。
func compileExternalSort(cat *domain.Catalog, sortBy string, dir domain.SortDirection, d Dialect) (fragment, bool) {
	pk := cat.Model.ExternalPrimaryKeyColumn
	sortBy = strings.TrimSpace(sortBy)

	defaultOrder := fragment{}
	if pk != "" {
		defaultOrder = fragment{sql: d.Quote(pk) + " ASC"}
	}

	column := ""
	switch {
	case sortBy == "":
		return defaultOrder, false
	case sortBy == "id" && pk != "":
		column = pk
	default:
		mapped, ok := cat.ColumnFor(sortBy)
		if !ok {
			return defaultOrder, true
		}
		column = mapped
	}

	sql := d.Quote(column) + " " + sqlDirection(dir)
	if pk != "" && column != pk {
		sql += ", " + d.Quote(pk) + " ASC"
	}
	return fragment{sql: sql}, false
}
