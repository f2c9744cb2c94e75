// file: internal/recordquery/filter.go
package recordquery

import (
	"ModelAegis/internal/core/domain"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// FilterKind 是从原始字符串形状推断出的过滤类型
type FilterKind int

const (
	// FilterNone 空值或无法识别的形状，不产生任何条件
	FilterNone FilterKind = iota
	// FilterPartial 不含逗号：包含匹配
	FilterPartial
	// FilterMultiSelect 多个取值：等值匹配其中任意一个
	FilterMultiSelect
	// FilterRange 两个数字或两个日期：闭区间，空的一侧表示不设界
	FilterRange
)

func (k FilterKind) String() string {
	switch k {
	case FilterPartial:
		return "partial"
	case FilterMultiSelect:
		return "multi_select"
	case FilterRange:
		return "range"
	default:
		return "none"
	}
}

// ReservedParams 这些查询键永远不会被当作过滤条件
var ReservedParams = map[string]struct{}{
	"page":           {},
	"limit":          {},
	"sort_by":        {},
	"sort_direction": {},
	"data_model_id":  {},
}

// IsReserved 判断一个键是否为保留参数
func IsReserved(key string) bool {
	_, ok := ReservedParams[key]
	return ok
}

// Classified 是一个过滤值的分类结果
type Classified struct {
	Kind FilterKind
	// Tokens: Partial 时只有一个元素，MultiSelect 时为全部非空取值
	Tokens []string
	// Low / High: Range 的上下界，nil 表示该侧不设界。数字为 float64，日期为原始字符串。
	Low, High any
	Numeric   bool
	// HighExclusive 为 true 时 High 是开区间上界 (只写日期的上界已换成次日)
	HighExclusive bool
}

const dateOnlyLayout = "2006-01-02"

var dateLayouts = []string{
	dateOnlyLayout,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func isDateShaped(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// Classify 只根据形状对原始过滤字符串分类。
//
// 两个 token 且非空的 token 全是数字 (或全是日期) 时为区间；其余多 token 情况一律
// 视为多选，包括 "5,apple" 这种混合值；不含逗号时为包含匹配。
func Classify(raw string) Classified {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Classified{Kind: FilterNone}
	}
	if !strings.Contains(raw, ",") {
		return Classified{Kind: FilterPartial, Tokens: []string{raw}}
	}

	parts := strings.Split(raw, ",")
	nonEmpty := make([]string, 0, len(parts))
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] != "" {
			nonEmpty = append(nonEmpty, parts[i])
		}
	}
	if len(nonEmpty) == 0 {
		return Classified{Kind: FilterNone}
	}

	if len(parts) == 2 {
		if c, ok := classifyNumericRange(parts); ok {
			return c
		}
		if c, ok := classifyDateRange(parts); ok {
			return c
		}
	}
	return Classified{Kind: FilterMultiSelect, Tokens: nonEmpty}
}

func classifyNumericRange(parts []string) (Classified, bool) {
	c := Classified{Kind: FilterRange, Numeric: true}
	for i, p := range parts {
		if p == "" {
			continue
		}
		f, ok := parseNumber(p)
		if !ok {
			return Classified{}, false
		}
		if i == 0 {
			c.Low = f
		} else {
			c.High = f
		}
	}
	return c, true
}

func classifyDateRange(parts []string) (Classified, bool) {
	c := Classified{Kind: FilterRange}
	for i, p := range parts {
		if p == "" {
			continue
		}
		if !isDateShaped(p) {
			return Classified{}, false
		}
		if i == 0 {
			c.Low = p
			continue
		}
		// 只写日期的上界包含当天全部时刻
		if day, err := time.Parse(dateOnlyLayout, p); err == nil {
			c.High = day.AddDate(0, 0, 1).Format(dateOnlyLayout)
			c.HighExclusive = true
		} else {
			c.High = p
		}
	}
	return c, true
}

// escapeLike 转义 LIKE 模式中的通配符，并包装成 %x%
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return "%" + s + "%"
}

// condition 针对一个值表达式生成过滤条件，包含匹配的片段由调用方按方言提供
func condition(c Classified, expr string, numericExpr string, partial fragment) fragment {
	switch c.Kind {
	case FilterPartial:
		return partial
	case FilterRange:
		target := expr
		if c.Numeric {
			target = numericExpr
		}
		var conds []fragment
		if c.Low != nil {
			conds = append(conds, fragment{sql: target + " >= ?", args: []any{c.Low}})
		}
		if c.High != nil {
			op := " <= ?"
			if c.HighExclusive {
				op = " < ?"
			}
			conds = append(conds, fragment{sql: target + op, args: []any{c.High}})
		}
		return joinFragments(conds, " AND ")
	default:
		return fragment{}
	}
}

// compileInternalFilters 为 EAV 存储编译过滤条件。属性不是列，所以每个条件都是一个相关子查询：
// 存在一条属于当前记录、属性名匹配且值满足条件的值行。
func compileInternalFilters(cat *domain.Catalog, filters []domain.FilterEntry, d Dialect) ([]fragment, []string) {
	var out []fragment
	var skipped []string
	for _, f := range filters {
		if IsReserved(f.Attribute) {
			continue
		}
		c := Classify(f.Raw)
		if c.Kind == FilterNone {
			continue
		}
		if _, ok := cat.AttributeByName(f.Attribute); !ok {
			skipped = append(skipped, f.Attribute)
			continue
		}

		var cond fragment
		if c.Kind == FilterMultiSelect {
			eqs := make([]fragment, 0, len(c.Tokens))
			for _, tok := range c.Tokens {
				eqs = append(eqs, fragment{sql: "fv.value = ?", args: []any{tok}})
			}
			cond = joinFragments(eqs, " OR ")
			cond.sql = "(" + cond.sql + ")"
		} else {
			var partial fragment
			if c.Kind == FilterPartial {
				partial = fragment{sql: d.containsFold("fv.value"), args: []any{escapeLike(c.Tokens[0])}}
			}
			cond = condition(c, "fv.value", d.numeric("fv.value"), partial)
		}

		sql := fmt.Sprintf("EXISTS (SELECT 1 FROM %s fv JOIN %s fa ON fa.id = fv.attribute_id WHERE fv.record_id = r.id AND fa.name = ? AND %s)",
			ValuesTable, AttributesTable, cond.sql)
		args := append([]any{f.Attribute}, cond.args...)
		out = append(out, fragment{sql: sql, args: args})
	}
	return out, skipped
}

// compileExternalFilters 为外部表编译过滤条件，直接作用在映射列上。没有映射的属性被静默跳过。
func compileExternalFilters(cat *domain.Catalog, filters []domain.FilterEntry, d Dialect) ([]fragment, []string) {
	var out []fragment
	var skipped []string
	for _, f := range filters {
		if IsReserved(f.Attribute) {
			continue
		}
		c := Classify(f.Raw)
		if c.Kind == FilterNone {
			continue
		}
		column, ok := cat.ColumnFor(f.Attribute)
		if !ok {
			skipped = append(skipped, f.Attribute)
			continue
		}
		col := d.Quote(column)

		var cond fragment
		if c.Kind == FilterMultiSelect {
			args := make([]any, len(c.Tokens))
			for i, tok := range c.Tokens {
				args[i] = tok
			}
			cond = fragment{sql: col + " IN (" + markers(len(args)) + ")", args: args}
		} else {
			var partial fragment
			if c.Kind == FilterPartial {
				partial = d.contains(col, c.Tokens[0])
			}
			cond = condition(c, col, col, partial)
			if c.Kind == FilterRange && len(cond.args) > 1 {
				cond.sql = "(" + cond.sql + ")"
			}
		}
		out = append(out, cond)
	}
	return out, skipped
}

func logSkipped(dataModelID string, skipped []string, what string) {
	for _, name := range skipped {
		slog.Debug("[RecordQuery] 属性没有存储映射，已忽略", "data_model_id", dataModelID, "attribute", name, "clause", what)
	}
}
