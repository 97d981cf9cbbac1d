package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewHandlerServesGateway(t *testing.T) {
	isolateEnv(t)

	cfgPath := writeConfig(t, "backend:\n  scratch_dir: "+t.TempDir()+"\n")
	a, err := buildApp(context.Background(), &rootFlags{configPath: cfgPath}, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	handler := newHandler(a)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "counter_store")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := `{"os_type":"solaris","ip":"10.0.0.5","username":"admin","password":"pw","command":"uptime"}`
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/remote_call", strings.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "UNSUPPORTED_OS")
}

func TestShutdownTimeoutFallsBack(t *testing.T) {
	isolateEnv(t)

	cfg, _, err := loadConfig(context.Background(), &rootFlags{}, &bytes.Buffer{})
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, shutdownTimeout(cfg))

	cfg.Server.ShutdownTimeout = 0
	require.Equal(t, 30*time.Second, shutdownTimeout(cfg))

	cfg.Server.ShutdownTimeout = 5 * time.Second
	require.Equal(t, 5*time.Second, shutdownTimeout(cfg))
}
