// file: internal/recordquery/dialect_test.go
package recordquery

import (
	"ModelAegis/internal/core/domain"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestDialect_Quote(t *testing.T) {
	assert.Equal(t, `"status"`, Postgres.Quote("status"))
	assert.Equal(t, "`status`", MySQL.Quote("status"))
	assert.Equal(t, `"we""ird"`, SQLite.Quote(`we"ird`))
	assert.Equal(t, "`a``b`", MySQL.Quote("a`b"))
	assert.Equal(t, `"crm"."customers"`, Postgres.QualifiedTable("crm", "customers"))
	assert.Equal(t, "`customers`", MySQL.QualifiedTable("", "customers"))
}

func TestDialect_Placeholder(t *testing.T) {
	assert.Equal(t, "$3", Postgres.Placeholder(3))
	assert.Equal(t, "$1", InternalSQLite.Placeholder(1))
	assert.Equal(t, "?", MySQL.Placeholder(7))
}

func TestDialect_Renumber(t *testing.T) {
	in := `SELECT "a?" FROM t WHERE x = ? AND y ~ '^[0-9]+(\.[0-9]+)?$' AND z IN (?,?) LIMIT ? OFFSET ?`
	got := Postgres.Renumber(in)
	want := `SELECT "a?" FROM t WHERE x = $1 AND y ~ '^[0-9]+(\.[0-9]+)?$' AND z IN ($2,$3) LIMIT $4 OFFSET $5`
	assert.Equal(t, want, got)

	// 位置风格不做任何改写
	assert.Equal(t, in, MySQL.Renumber(in))
}

func TestDialect_RenumberDoubledQuotes(t *testing.T) {
	in := `SELECT "we""ird?" FROM t WHERE x = ? AND y = 'it''s?' AND z = ?`
	got := Postgres.Renumber(in)
	assert.Equal(t, `SELECT "we""ird?" FROM t WHERE x = $1 AND y = 'it''s?' AND z = $2`, got)
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor(domain.ConnPostgres)
	require.NoError(t, err)
	assert.Equal(t, Numbered, d.Style())

	d, err = DialectFor(domain.ConnMySQL)
	require.NoError(t, err)
	assert.Equal(t, Positional, d.Style())

	_, err = DialectFor("oracle")
	assert.Error(t, err)
}

func TestInternalDialect_AlwaysNumbered(t *testing.T) {
	for _, driver := range []string{"", "sqlite", "postgres"} {
		d, err := InternalDialect(driver)
		require.NoError(t, err, driver)
		assert.Equal(t, Numbered, d.Style(), driver)
	}
	_, err := InternalDialect("mysql")
	assert.Error(t, err)
}

// openMemorySQLite 打开一个只在测试期间存在的内存库
func openMemorySQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNumeric_SQLiteNonNumericIsNull(t *testing.T) {
	db := openMemorySQLite(t)
	expr := InternalSQLite.numeric("?")

	tests := []struct {
		value string
		want  sql.NullFloat64
	}{
		{"3", sql.NullFloat64{Float64: 3, Valid: true}},
		{" 41 ", sql.NullFloat64{Float64: 41, Valid: true}},
		{"-5", sql.NullFloat64{Float64: -5, Valid: true}},
		{"2.5", sql.NullFloat64{Float64: 2.5, Valid: true}},
		{"unknown", sql.NullFloat64{}},
		{"", sql.NullFloat64{}},
		{"12abc", sql.NullFloat64{}},
		{"1-2", sql.NullFloat64{}},
		{"1.2.3", sql.NullFloat64{}},
		{"-", sql.NullFloat64{}},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			// numeric 引用表达式多次，每个 ? 都绑定同一个值
			n := strings.Count(expr, "trim(?)")
			args := make([]any, n)
			for i := range args {
				args[i] = tt.value
			}
			var got sql.NullFloat64
			require.NoError(t, db.QueryRow("SELECT "+expr, args...).Scan(&got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContains_SQLiteCaseSensitive(t *testing.T) {
	db := openMemorySQLite(t)

	match := func(value, token string) bool {
		f := SQLite.contains("?", token)
		var ok bool
		require.NoError(t, db.QueryRow("SELECT "+f.sql, append([]any{value}, f.args...)...).Scan(&ok))
		return ok
	}
	assert.True(t, match("Ann", "An"))
	assert.False(t, match("Ann", "ann"), "包含匹配区分大小写")
	assert.True(t, match("50% off*", "% off*"))
	assert.False(t, match("50x off", "*"), "GLOB 元字符按字面匹配")
	assert.True(t, match("a[1]", "[1]"))
}
