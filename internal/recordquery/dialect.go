// Package recordquery 把通用的列表查询参数 (分页、属性过滤、排序) 编译成针对
// 内部 EAV 存储或外部关系库的参数化 SQL，并把结果归一化为统一的记录形态。
//
// 编译过程是纯函数：所有片段先用内部的 ? 标记书写，最后按目标方言统一渲染一次，
// 因此占位符编号和参数顺序不可能漂移。
//
// file: internal/recordquery/dialect.go
package recordquery

import (
	"ModelAegis/internal/core/domain"
	"fmt"
	"strconv"
	"strings"
)

// PlaceholderStyle 占位符风格
type PlaceholderStyle int

const (
	// Numbered 编号占位符，例如 $1, $2
	Numbered PlaceholderStyle = iota
	// Positional 位置占位符，即 ?
	Positional
)

func (s PlaceholderStyle) String() string {
	if s == Numbered {
		return "NUMBERED"
	}
	return "POSITIONAL"
}

// Dialect 描述一个 SQL 后端的占位符语法和标识符引用规则
type Dialect struct {
	name  string
	style PlaceholderStyle
	quote byte
}

var (
	// Postgres 双引号 + $N
	Postgres = Dialect{name: "postgresql", style: Numbered, quote: '"'}
	// MySQL 反引号 + ?
	MySQL = Dialect{name: "mysql", style: Positional, quote: '`'}
	// SQLite 作为外部库时使用双引号 + ?
	SQLite = Dialect{name: "sqlite", style: Positional, quote: '"'}
	// InternalSQLite 内部存储固定使用编号占位符，SQLite 本身也识别 $N
	InternalSQLite = Dialect{name: "sqlite", style: Numbered, quote: '"'}
)

// DialectFor 根据外部连接声明的数据库类型返回方言
func DialectFor(kind domain.ConnectionKind) (Dialect, error) {
	switch kind {
	case domain.ConnPostgres:
		return Postgres, nil
	case domain.ConnMySQL:
		return MySQL, nil
	case domain.ConnSQLite:
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("不支持的外部数据库类型: '%s'", kind)
	}
}

// InternalDialect 返回内部存储驱动对应的方言，总是编号风格
func InternalDialect(driver string) (Dialect, error) {
	switch driver {
	case "sqlite", "":
		return InternalSQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("不支持的内部存储驱动: '%s'", driver)
	}
}

// Name 返回方言名称
func (d Dialect) Name() string { return d.name }

// Style 返回占位符风格
func (d Dialect) Style() PlaceholderStyle { return d.style }

// Quote 按方言引用一个标识符，标识符内部的引号字符会被双写
func (d Dialect) Quote(identifier string) string {
	q := string(d.quote)
	return q + strings.ReplaceAll(identifier, q, q+q) + q
}

// QualifiedTable 引用 schema.table；schema 为空时只引用表名
func (d Dialect) QualifiedTable(schema, table string) string {
	if schema == "" {
		return d.Quote(table)
	}
	return d.Quote(schema) + "." + d.Quote(table)
}

// Placeholder 返回第 index 个参数 (从 1 开始) 的占位符
func (d Dialect) Placeholder(index int) string {
	if d.style == Numbered {
		return "$" + strconv.Itoa(index)
	}
	return "?"
}

// Renumber 把内部生成的 ? 标记改写为方言占位符。
// 引号内 (标识符或字符串字面量) 的 ? 原样保留，参数顺序与标记出现顺序严格一致。
func (d Dialect) Renumber(sql string) string {
	if d.style == Positional {
		return sql
	}
	var sb strings.Builder
	sb.Grow(len(sql) + 8)
	var inQuote byte
	n := 0
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
			sb.WriteByte(c)
		case c == '\'' || c == '"' || c == '`':
			inQuote = c
			sb.WriteByte(c)
		case c == '?':
			n++
			sb.WriteString(d.Placeholder(n))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// containsFold 不区分大小写的包含匹配，参数为已转义的 %x% 模式 (内部存储使用)
func (d Dialect) containsFold(expr string) string {
	switch d.name {
	case "postgresql":
		return expr + ` ILIKE ? ESCAPE '\'`
	case "mysql":
		return "LOWER(" + expr + ") LIKE LOWER(?)"
	default:
		return "LOWER(" + expr + `) LIKE LOWER(?) ESCAPE '\'`
	}
}

// contains 区分大小写的包含匹配 (外部数据源使用)，返回带参数的片段。
// SQLite 的 LIKE 对 ASCII 不区分大小写，所以改用 GLOB 并转义其元字符。
func (d Dialect) contains(expr, token string) fragment {
	switch d.name {
	case "postgresql":
		return fragment{sql: "CAST(" + expr + ` AS TEXT) LIKE ? ESCAPE '\'`, args: []any{escapeLike(token)}}
	case "mysql":
		return fragment{sql: "CAST(" + expr + " AS CHAR) LIKE BINARY ?", args: []any{escapeLike(token)}}
	default:
		return fragment{sql: "CAST(" + expr + " AS TEXT) GLOB ?", args: []any{"*" + escapeGlob(token) + "*"}}
	}
}

// escapeGlob 把 GLOB 元字符 * ? [ 放进字符类，使其按字面匹配
func escapeGlob(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[':
			sb.WriteByte('[')
			sb.WriteRune(r)
			sb.WriteByte(']')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// numeric 把文本值转换成数值以便做范围比较和排序，非数字文本得到 NULL。
// 直接 CAST 会把非数字文本变成 0 (SQLite、MySQL) 或报错 (Postgres)，所以先做形状检查。
func (d Dialect) numeric(expr string) string {
	switch d.name {
	case "postgresql":
		return "(CASE WHEN " + expr + ` ~ '^\s*-?[0-9]+(\.[0-9]+)?\s*$' THEN CAST(` + expr + " AS NUMERIC) END)"
	case "mysql":
		return "(CASE WHEN " + expr + " REGEXP '^ *-?[0-9]+([.][0-9]+)? *$' THEN CAST(" + expr + " AS DECIMAL(38,10)) END)"
	default:
		// 至少一个数字；只含数字、小数点和正负号；正负号只在首位；最多一个小数点
		t := "trim(" + expr + ")"
		return "(CASE WHEN " + t + " GLOB '*[0-9]*' AND " + t + " NOT GLOB '*[^0-9.+-]*' AND " +
			t + " NOT GLOB '?*[+-]*' AND " + t + " NOT GLOB '*.*.*' THEN CAST(" + t + " AS REAL) END)"
	}
}
