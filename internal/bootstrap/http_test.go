package bootstrap

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weeklydigest/sessionauth/config"
	"github.com/weeklydigest/sessionauth/internal/observability/metrics"
)

func TestBuildHTTPServer(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		assert.Nil(t, BuildHTTPServer(nil))
	})

	t.Run("defaults address", func(t *testing.T) {
		srv := BuildHTTPServer(&HTTPServerConfig{Config: &config.AppConfig{}, Logger: quietLogger()})
		require.NotNil(t, srv)
		assert.Equal(t, ":8080", srv.Addr)
	})
}

func TestServeListener_ServesUntilCanceled(t *testing.T) {
	cfg := &config.AppConfig{
		HTTP: config.HTTPConfig{ShutdownTimeout: 5 * time.Second},
		Observability: config.ObservabilityConfig{
			Metrics: config.ObservabilityMetricsConfig{Enabled: true, Path: "/metrics"},
		},
	}
	srv := BuildHTTPServer(&HTTPServerConfig{Config: cfg, Metrics: metrics.NewRegistry(), Logger: quietLogger()})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveListener(ctx, srv, ln, cfg.HTTP, quietLogger()) }()

	base := "http://" + ln.Addr().String()
	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `sessionauth_http_requests_total{method="GET",route="GET /healthz",status="200"} 1`)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

func TestServeHTTP_ListenError(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:-1"}
	err := ServeHTTP(context.Background(), srv, config.HTTPConfig{}, quietLogger())
	require.Error(t, err)
}

func TestBuildHTTPServer_ReadinessFollowsStorage(t *testing.T) {
	mr := miniredis.RunT(t)
	storageCfg := sqliteStorageConfig(t)
	storageCfg.SessionBackend = config.SessionBackendRedis
	storageCfg.Redis = config.RedisConfig{URI: mr.Addr()}
	st, err := OpenStorage(context.Background(), StorageOptions{Config: storageCfg, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	srv := BuildHTTPServer(&HTTPServerConfig{Config: &config.AppConfig{}, Storage: st, Logger: quietLogger()})

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)
	assert.Contains(t, rec.Body.String(), `"redis":"ok"`)

	mr.Close()
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"storage_unavailable"`)
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)
}
