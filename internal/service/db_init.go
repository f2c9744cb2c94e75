// Package service file: internal/service/db_init.go
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// platformTables 平台自有的元数据表和 EAV 记录表。
// DDL 只使用 SQLite 与 PostgreSQL 都能接受的类型，时间统一保存为定长 UTC 文本。
var platformTables = []struct {
	name string
	ddl  string
}{
	{"external_connections", `
    CREATE TABLE IF NOT EXISTS external_connections (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        kind TEXT NOT NULL,
        dsn TEXT NOT NULL
    );`},
	{"data_models", `
    CREATE TABLE IF NOT EXISTS data_models (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        source_kind TEXT NOT NULL DEFAULT 'INTERNAL',
        external_connection_ref TEXT REFERENCES external_connections(id),
        external_schema TEXT,
        external_table TEXT,
        external_primary_key_column TEXT,
        is_active BOOLEAN NOT NULL DEFAULT TRUE,
        created_at TEXT,
        deleted_at TEXT
    );`},
	{"data_model_attributes", `
    CREATE TABLE IF NOT EXISTS data_model_attributes (
        id TEXT PRIMARY KEY,
        data_model_id TEXT NOT NULL REFERENCES data_models(id) ON DELETE CASCADE,
        name TEXT NOT NULL,
        data_type TEXT NOT NULL DEFAULT 'string',
        external_column TEXT,
        sort_order INTEGER NOT NULL DEFAULT 0,
        UNIQUE (data_model_id, name)
    );`},
	{"data_model_records", `
    CREATE TABLE IF NOT EXISTS data_model_records (
        id TEXT PRIMARY KEY,
        data_model_id TEXT NOT NULL REFERENCES data_models(id) ON DELETE CASCADE,
        is_active BOOLEAN NOT NULL DEFAULT TRUE,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL,
        deleted_at TEXT
    );`},
	{"data_model_record_values", `
    CREATE TABLE IF NOT EXISTS data_model_record_values (
        id TEXT PRIMARY KEY,
        record_id TEXT NOT NULL REFERENCES data_model_records(id) ON DELETE CASCADE,
        attribute_id TEXT NOT NULL REFERENCES data_model_attributes(id) ON DELETE CASCADE,
        value TEXT
    );`},
}

var platformIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_attr_model ON data_model_attributes (data_model_id, sort_order);`,
	`CREATE INDEX IF NOT EXISTS idx_records_model ON data_model_records (data_model_id, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_values_record ON data_model_record_values (record_id);`,
	`CREATE INDEX IF NOT EXISTS idx_values_attr ON data_model_record_values (attribute_id, value);`,
}

// InitPlatformTables 负责在系统启动时检查并创建所有平台级的表和索引。可以重复执行。
func InitPlatformTables(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("InitPlatformTables: db 实例不能为 nil")
	}
	for _, t := range platformTables {
		if _, err := db.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("创建 '%s' 表失败: %w", t.name, err)
		}
	}
	for _, idx := range platformIndexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("创建索引失败 (%s): %w", idx, err)
		}
	}

	slog.Info("[DBInit] 所有平台表结构初始化/检查完成")
	return nil
}
