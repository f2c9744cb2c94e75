// file: internal/recordquery/fragment.go
package recordquery

import "strings"

// fragment 是一段使用 ? 标记的 SQL 以及按标记出现顺序排列的参数
type fragment struct {
	sql  string
	args []any
}

func (f fragment) empty() bool { return f.sql == "" }

// joinFragments 用 sep 连接多个片段，参数按片段顺序拼接
func joinFragments(fs []fragment, sep string) fragment {
	parts := make([]string, 0, len(fs))
	var args []any
	for _, f := range fs {
		if f.empty() {
			continue
		}
		parts = append(parts, f.sql)
		args = append(args, f.args...)
	}
	return fragment{sql: strings.Join(parts, sep), args: args}
}

// markers 返回 n 个以逗号分隔的 ? 标记
func markers(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Statement 是渲染完成、可直接执行的 SQL 语句
type Statement struct {
	SQL  string
	Args []any
}

// statementBuilder 顺序累积片段，最后按方言统一渲染一次
type statementBuilder struct {
	parts []string
	args  []any
}

func (b *statementBuilder) raw(s string) *statementBuilder {
	b.parts = append(b.parts, s)
	return b
}

func (b *statementBuilder) add(prefix string, f fragment) *statementBuilder {
	if f.empty() {
		return b
	}
	b.parts = append(b.parts, prefix+f.sql)
	b.args = append(b.args, f.args...)
	return b
}

func (b *statementBuilder) render(d Dialect) Statement {
	args := make([]any, len(b.args))
	copy(args, b.args)
	return Statement{SQL: d.Renumber(strings.Join(b.parts, " ")), Args: args}
}
