// file: internal/recordquery/assembler.go
package recordquery

import (
	"ModelAegis/internal/core/domain"
	"errors"
	"fmt"
	"strings"
)

// 内部 EAV 存储的表名
const (
	RecordsTable    = "data_model_records"
	ValuesTable     = "data_model_record_values"
	AttributesTable = "data_model_attributes"
)

const internalRecordColumns = "r.id, r.data_model_id, r.is_active, r.created_at, r.updated_at, r.deleted_at"

// Plan 是一次列表查询编译出的两条并行语句。
// Count 与 Fetch 共用同一个 WHERE 片段，Count.Args 总是 Fetch.Args 的严格前缀。
type Plan struct {
	Fetch Statement
	Count Statement
	Page  Page
	// Where 是渲染后的 WHERE 条件 (不含 WHERE 关键字)，没有条件时为空
	Where string
	// Skipped 是因为没有存储映射而被忽略的过滤属性
	Skipped []string
	// SortFallback 为 true 表示排序属性未映射，已回退到默认排序
	SortFallback bool
}

// AssembleInternal 为内部 EAV 存储组装取数语句和计数语句
func AssembleInternal(cat *domain.Catalog, q domain.RecordListQuery, d Dialect) (*Plan, error) {
	if cat == nil {
		return nil, errors.New("catalog 不能为空 (AssembleInternal)")
	}
	if cat.Model.IsExternal() {
		return nil, fmt.Errorf("数据模型 '%s' 是外部模型，不能按内部存储编译", cat.Model.ID)
	}
	page, err := CompilePagination(q.Page, q.Limit)
	if err != nil {
		return nil, err
	}
	dir, err := ParseDirection(string(q.SortDirection))
	if err != nil {
		return nil, err
	}

	filters, skipped := compileInternalFilters(cat, q.Filters, d)
	base := fragment{sql: "r.data_model_id = ? AND r.deleted_at IS NULL", args: []any{cat.Model.ID}}
	where := joinFragments(append([]fragment{base}, filters...), " AND ")
	order := compileInternalSort(cat, q.SortBy, dir, d)

	fetch := &statementBuilder{}
	fetch.raw("SELECT " + internalRecordColumns + " FROM " + RecordsTable + " r")
	if order.joinValues {
		fetch.raw("LEFT JOIN " + ValuesTable + " v ON v.record_id = r.id LEFT JOIN " + AttributesTable + " a ON a.id = v.attribute_id")
	}
	fetch.add("WHERE ", where)
	if order.joinValues {
		fetch.raw("GROUP BY " + internalRecordColumns)
	}
	fetch.add("ORDER BY ", order.order)
	fetch.add("", page.fragment())

	count := &statementBuilder{}
	count.raw("SELECT COUNT(*) AS total FROM " + RecordsTable + " r")
	count.add("WHERE ", where)

	logSkipped(cat.Model.ID, skipped, "filter")
	return &Plan{
		Fetch:        fetch.render(d),
		Count:        count.render(d),
		Page:         page,
		Where:        d.Renumber(where.sql),
		Skipped:      skipped,
		SortFallback: order.fallback,
	}, nil
}

// AssembleExternal 为外部表组装取数语句和计数语句
func AssembleExternal(cat *domain.Catalog, q domain.RecordListQuery, d Dialect) (*Plan, error) {
	if cat == nil {
		return nil, errors.New("catalog 不能为空 (AssembleExternal)")
	}
	if !cat.Model.IsExternal() || cat.Model.ExternalTable == "" {
		return nil, fmt.Errorf("数据模型 '%s' 没有声明外部表", cat.Model.ID)
	}
	page, err := CompilePagination(q.Page, q.Limit)
	if err != nil {
		return nil, err
	}
	dir, err := ParseDirection(string(q.SortDirection))
	if err != nil {
		return nil, err
	}

	table := d.QualifiedTable(cat.Model.ExternalSchema, cat.Model.ExternalTable)
	filters, skipped := compileExternalFilters(cat, q.Filters, d)
	where := joinFragments(filters, " AND ")
	order, fallback := compileExternalSort(cat, q.SortBy, dir, d)

	fetch := &statementBuilder{}
	fetch.raw("SELECT " + externalProjection(cat, d) + " FROM " + table)
	fetch.add("WHERE ", where)
	fetch.add("ORDER BY ", order)
	fetch.add("", page.fragment())

	count := &statementBuilder{}
	count.raw("SELECT COUNT(*) AS total FROM " + table)
	count.add("WHERE ", where)

	logSkipped(cat.Model.ID, skipped, "filter")
	return &Plan{
		Fetch:        fetch.render(d),
		Count:        count.render(d),
		Page:         page,
		Where:        d.Renumber(where.sql),
		Skipped:      skipped,
		SortFallback: fallback,
	}, nil
}

// externalProjection 只投影映射过的列 (以及主键列)，没有任何映射时退化为 *
func externalProjection(cat *domain.Catalog, d Dialect) string {
	seen := make(map[string]struct{})
	var cols []string
	for _, a := range cat.Attributes {
		if a.ExternalColumn == "" {
			continue
		}
		if _, dup := seen[a.ExternalColumn]; dup {
			continue
		}
		seen[a.ExternalColumn] = struct{}{}
		cols = append(cols, d.Quote(a.ExternalColumn))
	}
	if pk := cat.Model.ExternalPrimaryKeyColumn; pk != "" {
		if _, dup := seen[pk]; !dup {
			cols = append(cols, d.Quote(pk))
		}
	}
	if len(cols) == 0 {
		return "*"
	}
	return strings.Join(cols, ", ")
}

// ValuesStatement 取出一页记录的全部属性值三元组 (record_id, attribute_name, value)
func ValuesStatement(recordIDs []string, d Dialect) Statement {
	args := make([]any, len(recordIDs))
	for i, id := range recordIDs {
		args[i] = id
	}
	b := &statementBuilder{}
	b.raw("SELECT v.record_id AS record_id, a.name AS attribute_name, v.value AS value FROM " + ValuesTable +
		" v JOIN " + AttributesTable + " a ON a.id = v.attribute_id")
	b.add("WHERE ", fragment{sql: "v.record_id IN (" + markers(len(args)) + ")", args: args})
	b.raw("ORDER BY v.record_id, a.sort_order, a.name")
	return b.render(d)
}
