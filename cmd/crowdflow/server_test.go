package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/crowdflow/config"
	"github.com/BaSui01/crowdflow/template"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Server.MetricsPort = 0
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = ":memory:"
	// 内存库每个连接独立，限制为单连接
	cfg.Database.MaxOpenConns = 1
	cfg.Database.MaxIdleConns = 1
	cfg.Database.ConnMaxLifetime = 0
	cfg.Templates.SeedFile = "../../template/testdata/bootstrap_fixture.yaml"
	return cfg
}

// 指标收集器注册到全局 registry，整个包只构建一次 Server
func TestServer_EndToEnd(t *testing.T) {
	ctx := context.Background()
	srv := NewServer(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, srv.Init(ctx))

	handler := srv.Handler()
	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	t.Run("ready", func(t *testing.T) {
		w := get("/ready")
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("crowds", func(t *testing.T) {
		w := get("/api/v1/crowds")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"crowds":["internal"]}`, dataOf(t, w))
	})

	t.Run("seeded bundle", func(t *testing.T) {
		w := get("/api/v1/task_types/sa/bundle")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var bundle template.Bundle
		require.NoError(t, json.Unmarshal([]byte(dataOf(t, w)), &bundle))
		assert.Len(t, bundle.Resources, 9)
	})

	t.Run("run and stop", func(t *testing.T) {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- srv.Run(runCtx) }()

		require.Eventually(t, srv.servers.IsRunning, 2*time.Second, 10*time.Millisecond)
		resp, err := http.Get("http://" + srv.servers.Addr(apiServerName) + "/health")
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop")
		}
	})

	require.NoError(t, srv.Close(ctx))
	assert.NoError(t, srv.Close(ctx))
}

func dataOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.True(t, env.Success, w.Body.String())
	return string(env.Data)
}
