// file: internal/adapter/store/store_test.go
package store

import (
	"ModelAegis/internal/core/domain"
	"ModelAegis/internal/core/port"
	"ModelAegis/internal/recordquery"
	"ModelAegis/internal/service"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore 在临时目录中创建一个已经初始化好平台表的 SQLite 库
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "store.db") + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	s, err := Open(context.Background(), Options{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, service.InitPlatformTables(context.Background(), s.DB()))
	return s
}

func seedModel(t *testing.T, s *Store) {
	t.Helper()
	stmts := []string{
		`INSERT INTO data_models (id, name, source_kind) VALUES ('m1', 'people', 'INTERNAL')`,
		`INSERT INTO data_model_attributes (id, data_model_id, name, data_type, sort_order) VALUES ('a1', 'm1', 'name', 'string', 1)`,
		`INSERT INTO data_model_attributes (id, data_model_id, name, data_type, sort_order) VALUES ('a2', 'm1', 'age', 'number', 2)`,
	}
	for _, stmt := range stmts {
		_, err := s.DB().Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

func TestNew_Rejects(t *testing.T) {
	_, err := New(nil, "sqlite")
	assert.Error(t, err)

	s := openTestStore(t)
	_, err = New(s.DB(), "oracle")
	assert.Error(t, err)
}

func TestStore_InsertAndQuery(t *testing.T) {
	s := openTestStore(t)
	seedModel(t, s)
	ctx := context.Background()

	id := "r1"
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	err := s.InsertRecord(ctx, domain.Record{ID: &id, DataModelID: "m1", IsActive: true, CreatedAt: &created},
		[]port.NewValueRow{{AttributeID: "a1", Value: "John"}, {AttributeID: "a2", Value: "20"}})
	require.NoError(t, err)

	rows, err := s.QueryRows(ctx, "SELECT id, created_at, updated_at FROM data_model_records WHERE data_model_id = $1", "m1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "r1", rows[0]["id"])
	assert.Equal(t, "2024-01-02T03:04:05.000000Z", rows[0]["created_at"])
	assert.Equal(t, rows[0]["created_at"], rows[0]["updated_at"])

	st := recordquery.ValuesStatement([]string{"r1"}, s.Dialect())
	values, err := s.QueryRows(ctx, st.SQL, st.Args...)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, "name", values[0]["attribute_name"])
	assert.Equal(t, "John", values[0]["value"])
	assert.Equal(t, "age", values[1]["attribute_name"])
}

func TestStore_InsertRollsBackOnFailure(t *testing.T) {
	s := openTestStore(t)
	seedModel(t, s)
	ctx := context.Background()

	id := "r1"
	require.NoError(t, s.InsertRecord(ctx, domain.Record{ID: &id, DataModelID: "m1", IsActive: true}, nil))

	// 引用不存在属性的值行违反外键，整个事务回滚，记录行也不应该留下
	id2 := "r2"
	err := s.InsertRecord(ctx, domain.Record{ID: &id2, DataModelID: "m1", IsActive: true},
		[]port.NewValueRow{{AttributeID: "a-missing", Value: "boom"}})
	require.Error(t, err)

	rows, err := s.QueryRows(ctx, "SELECT id FROM data_model_records WHERE id = $1", "r2")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_InsertRequiresID(t *testing.T) {
	s := openTestStore(t)
	err := s.InsertRecord(context.Background(), domain.Record{DataModelID: "m1"}, nil)
	assert.Error(t, err)
}

func TestStore_Ping(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
	assert.Equal(t, recordquery.Numbered, s.Dialect().Style())
}
