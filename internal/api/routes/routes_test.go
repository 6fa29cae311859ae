package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/jailkeeper/internal/config"
	"github.com/Wikid82/jailkeeper/internal/database"
	"github.com/Wikid82/jailkeeper/internal/engine"
	"github.com/Wikid82/jailkeeper/internal/services"
)

type noopService struct{}

func (noopService) Reload(context.Context) error  { return nil }
func (noopService) Restart(context.Context) error { return nil }
func (noopService) IsActive(context.Context) bool { return true }

func TestRegister(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	cfg := config.ForDataDir(t.TempDir())
	require.NoError(t, cfg.EnsureDirs())
	db, err := database.Open(":memory:", false)
	require.NoError(t, err)
	client := engine.NewFakeClient("sshd")

	Register(router, cfg, services.New(cfg, db, client, nil), client, noopService{})

	registered := map[string]bool{}
	for _, r := range router.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /metrics",
		"GET /api/v1/health",
		"GET /api/v1/history",
		"POST /api/v1/history/import",
		"GET /api/v1/analytics/alerts",
		"POST /api/v1/whitelist/global",
		"POST /api/v1/ignore-directive/regenerate",
		"POST /api/v1/permanent-bans/apply",
		"GET /api/v1/jails/templates",
		"GET /api/v1/jails/:name",
		"POST /api/v1/engine/ban",
		"POST /api/v1/backups/:filename/restore",
	} {
		assert.True(t, registered[want], want)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/engine/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
