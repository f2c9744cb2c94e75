// Package rowscan 把 database/sql 的结果集读取成列名到值的映射。
// 内部存储和外部数据源共用这一套读取逻辑，保证两边返回的行形态一致。
//
// file: internal/adapter/datasource/rowscan/rows.go
package rowscan

import (
	"ModelAegis/internal/core/port"
	"context"
	"database/sql"
	"fmt"
)

// Queryer 是 *sql.DB / *sql.Tx / *sql.Conn 的公共子集
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Query 执行查询并读取全部结果行
func Query(ctx context.Context, q Queryer, query string, args ...any) ([]port.Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return Scan(rows)
}

// Scan 读取结果集的全部行。[]byte 统一转换为 string，其余类型保持驱动返回的原样。
func Scan(rows *sql.Rows) ([]port.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("读取结果集列名失败: %w", err)
	}

	out := make([]port.Row, 0)
	for rows.Next() {
		scanDest := make([]any, len(columns))
		scanDestPtrs := make([]any, len(columns))
		for i := range scanDest {
			scanDestPtrs[i] = &scanDest[i]
		}
		if err := rows.Scan(scanDestPtrs...); err != nil {
			return nil, fmt.Errorf("扫描结果行失败: %w", err)
		}
		row := make(port.Row, len(columns))
		for i, col := range columns {
			if b, ok := scanDest[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = scanDest[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代结果行时发生错误: %w", err)
	}
	return out, nil
}
