// file: internal/recordquery/normalize.go
package recordquery

import (
	"ModelAegis/internal/core/domain"
	"ModelAegis/internal/core/port"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ValueTriple 是 EAV 存储中的一条 (记录, 属性, 值)
type ValueTriple struct {
	RecordID  string
	Attribute string
	Value     any
}

// TriplesFromRows 把 ValuesStatement 的结果行转换为三元组
func TriplesFromRows(rows []port.Row) []ValueTriple {
	out := make([]ValueTriple, 0, len(rows))
	for _, row := range rows {
		out = append(out, ValueTriple{
			RecordID:  asString(row["record_id"]),
			Attribute: asString(row["attribute_name"]),
			Value:     row["value"],
		})
	}
	return out
}

// PivotTriples 以记录 ID 为键把三元组折叠成宽表：record_id -> {属性名: 值}。
// 同一记录同一属性出现多次时以后出现的为准。
func PivotTriples(triples []ValueTriple) map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, t := range triples {
		values, ok := out[t.RecordID]
		if !ok {
			values = make(map[string]any)
			out[t.RecordID] = values
		}
		values[t.Attribute] = t.Value
	}
	return out
}

// RecordIDs 取出记录行的 id 列，保持原有顺序
func RecordIDs(rows []port.Row) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, asString(row["id"]))
	}
	return ids
}

// NormalizeInternal 把内部记录行和属性值三元组合并成统一的记录。
// 行中若自带 values (JSON 文本或 map) 会先被采用；没有任何值的记录得到空 map。
func NormalizeInternal(rows []port.Row, triples []ValueTriple) ([]domain.Record, error) {
	pivot := PivotTriples(triples)
	records := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		id := asString(row["id"])
		values, err := valuesBlob(row["values"])
		if err != nil {
			return nil, fmt.Errorf("记录 '%s' 的 values 无法解析: %w", id, err)
		}
		for k, v := range pivot[id] {
			values[k] = v
		}

		rec := domain.Record{
			ID:          &id,
			DataModelID: asString(row["data_model_id"]),
			IsActive:    asBool(row["is_active"]),
			Values:      values,
		}
		if rec.CreatedAt, err = asTime(row["created_at"]); err != nil {
			return nil, fmt.Errorf("记录 '%s' 的 created_at 无法解析: %w", id, err)
		}
		if rec.UpdatedAt, err = asTime(row["updated_at"]); err != nil {
			return nil, fmt.Errorf("记录 '%s' 的 updated_at 无法解析: %w", id, err)
		}
		if rec.DeletedAt, err = asTime(row["deleted_at"]); err != nil {
			return nil, fmt.Errorf("记录 '%s' 的 deleted_at 无法解析: %w", id, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// NormalizeExternal 把外部表的列行重新投影为虚拟记录：列名换回属性名，主键列 (或 null) 作为 id
func NormalizeExternal(cat *domain.Catalog, rows []port.Row) []domain.Record {
	pk := cat.Model.ExternalPrimaryKeyColumn
	records := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		values := make(map[string]any, len(cat.Attributes))
		for _, a := range cat.Attributes {
			if a.ExternalColumn == "" {
				continue
			}
			if v, ok := row[a.ExternalColumn]; ok {
				values[a.Name] = v
			}
		}

		rec := domain.Record{
			DataModelID: cat.Model.ID,
			IsActive:    true,
			Values:      values,
		}
		if pk != "" {
			if raw, ok := row[pk]; ok && raw != nil {
				id := asString(raw)
				rec.ID = &id
			}
		}
		records = append(records, rec)
	}
	return records
}

// CountFromRows 从计数语句的结果中取出 total
func CountFromRows(rows []port.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	switch v := rows[0]["total"].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("无法识别的计数类型 %T", v)
	}
}

func valuesBlob(v any) (map[string]any, error) {
	out := make(map[string]any)
	switch blob := v.(type) {
	case nil:
		return out, nil
	case map[string]any:
		for k, val := range blob {
			out[k] = val
		}
		return out, nil
	case string:
		if blob == "" {
			return out, nil
		}
		if err := json.Unmarshal([]byte(blob), &out); err != nil {
			return nil, err
		}
		return out, nil
	case []byte:
		if len(blob) == 0 {
			return out, nil
		}
		if err := json.Unmarshal(blob, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("不支持的 values 类型 %T", v)
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case int:
		return b != 0
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	default:
		return false
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func asTime(v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &t, nil
	case string:
		if t == "" {
			return nil, nil
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return &parsed, nil
			}
		}
		return nil, fmt.Errorf("无法识别的时间格式 '%s'", t)
	default:
		return nil, fmt.Errorf("不支持的时间类型 %T", v)
	}
}
