// file: internal/aegobserve/debug_test.go
package aegobserve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPprofMux_Routes(t *testing.T) {
	mux := pprofMux()

	for _, path := range []string{"/debug/pprof/", "/debug/pprof/cmdline", "/debug/pprof/symbol"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, "路径 %s", path)
	}

	// 不挂载其它路由
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/data-models", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartPprof(t *testing.T) {
	srv, err := StartPprof("")
	require.NoError(t, err)
	assert.Nil(t, srv, "地址为空时不启动")

	srv, err = StartPprof("127.0.0.1:0")
	require.NoError(t, err)
	require.NotNil(t, srv)

	resp, err := http.Get("http://" + srv.Addr + "/debug/pprof/cmdline")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(context.Background()))
	_, err = http.Get("http://" + srv.Addr + "/debug/pprof/cmdline")
	assert.Error(t, err, "关闭后端口不再响应")

	_, err = StartPprof("not-an-address")
	assert.Error(t, err)
}
