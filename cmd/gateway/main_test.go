// file: cmd/gateway/main_test.go

package main

import (
	"ModelAegis/internal/adapter/store"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSQLiteDir(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nested", "data", "engine.db")

	require.NoError(t, ensureSQLiteDir(store.Options{Driver: "sqlite", DSN: "file:" + dbPath + "?_pragma=foreign_keys(1)"}))
	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.NoError(t, ensureSQLiteDir(store.Options{Driver: "postgres", DSN: "postgres://x"}))
	assert.NoError(t, ensureSQLiteDir(store.Options{Driver: "sqlite", DSN: "file::memory:"}))
}

func TestInitDBCommand(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "db", "engine.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("store:\n  driver: sqlite\n  dsn: \"file:"+filepath.ToSlash(dbPath)+"?_pragma=foreign_keys(1)\"\n"), 0o644))

	cmd := newRootCommand()
	cmd.SetArgs([]string{"init-db", "--config", cfgPath})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), version)
}
