package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/jailkeeper/internal/config"
	"github.com/Wikid82/jailkeeper/internal/database"
	"github.com/Wikid82/jailkeeper/internal/engine"
	"github.com/Wikid82/jailkeeper/internal/services"
)

type fakeServiceControl struct {
	reloads, restarts int
	err               error
}

func (f *fakeServiceControl) Reload(ctx context.Context) error  { f.reloads++; return f.err }
func (f *fakeServiceControl) Restart(ctx context.Context) error { f.restarts++; return f.err }
func (f *fakeServiceControl) IsActive(ctx context.Context) bool { return f.err == nil }

type testEnv struct {
	cfg    config.Config
	svcs   *services.Services
	client *engine.FakeClient
	ctl    *fakeServiceControl
	router *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.ForDataDir(t.TempDir())
	require.NoError(t, cfg.EnsureDirs())
	require.NoError(t, os.MkdirAll(cfg.JailDir, 0o755))
	require.NoError(t, os.MkdirAll(cfg.FilterDir, 0o755))

	db, err := database.Open(":memory:", false)
	require.NoError(t, err)

	client := engine.NewFakeClient("sshd", "nginx-404")
	return &testEnv{
		cfg:    cfg,
		svcs:   services.New(cfg, db, client, nil),
		client: client,
		ctl:    &fakeServiceControl{},
		router: gin.New(),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
