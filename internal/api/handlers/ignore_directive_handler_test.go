package handlers

import (
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/jailkeeper/internal/services"
)

func setupIgnoreRoutes(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	h := NewIgnoreDirectiveHandler(env.svcs.Ignore)
	g := env.router.Group("/api/v1/ignore-directive")
	g.GET("", h.Preview)
	g.POST("/regenerate", h.Regenerate)
	g.POST("/jails/:jail", h.RegenerateForJail)
	return env
}

func TestIgnoreDirectiveHandler_PreviewThenRegenerate(t *testing.T) {
	env := setupIgnoreRoutes(t)
	require.NoError(t, os.WriteFile(env.cfg.JailLocalPath, []byte("[DEFAULT]\nbantime = 1h\n"), 0o644))
	require.NoError(t, env.svcs.Whitelist.AddGlobal("10.0.0.5", ""))

	w := env.do(t, http.MethodGet, "/api/v1/ignore-directive", nil)
	require.Equal(t, http.StatusOK, w.Code)
	preview := decode[map[string]interface{}](t, w)
	assert.Equal(t, false, preview["up_to_date"])
	assert.Contains(t, preview["diff"], "+ignoreip = 10.0.0.5 127.0.0.1 ::1")

	w = env.do(t, http.MethodPost, "/api/v1/ignore-directive/regenerate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[services.IgnoreDirectiveResult](t, w)
	assert.True(t, res.Changed)
	assert.NotEmpty(t, res.Backup)

	data, err := os.ReadFile(env.cfg.JailLocalPath)
	require.NoError(t, err)
	assert.Equal(t, "[DEFAULT]\nbantime = 1h\nignoreip = 10.0.0.5 127.0.0.1 ::1\n", string(data))
	assert.Zero(t, env.client.Rereads, "regeneration never reloads the engine")

	w = env.do(t, http.MethodPost, "/api/v1/ignore-directive/regenerate", nil)
	assert.False(t, decode[services.IgnoreDirectiveResult](t, w).Changed)
}

func TestIgnoreDirectiveHandler_UnknownJail(t *testing.T) {
	env := setupIgnoreRoutes(t)
	w := env.do(t, http.MethodPost, "/api/v1/ignore-directive/jails/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
