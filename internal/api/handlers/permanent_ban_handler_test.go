package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/jailkeeper/internal/models"
	"github.com/Wikid82/jailkeeper/internal/services"
)

func setupPermanentBanRoutes(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	h := NewPermanentBanHandler(env.svcs.PermanentBans)
	g := env.router.Group("/api/v1/permanent-bans")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.DELETE("/:id", h.Delete)
	g.POST("/apply", h.Apply)
	return env
}

func TestPermanentBanHandler_CreateApplyDelete(t *testing.T) {
	env := setupPermanentBanRoutes(t)

	w := env.do(t, http.MethodPost, "/api/v1/permanent-bans", map[string]string{"ip": "9.9.9.9", "reason": "scanner"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ban := decode[models.PermanentBan](t, w)
	assert.Equal(t, models.ScopeAll, ban.Scope.Kind)
	assert.NotEmpty(t, ban.ID)

	w = env.do(t, http.MethodPost, "/api/v1/permanent-bans", map[string]string{"ip": "10.0.0.0/8", "jail": "sshd"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/permanent-bans/apply", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[services.ApplyResult](t, w)
	assert.Equal(t, 2, res.Applied)
	assert.Zero(t, res.Failed)
	assert.Equal(t, []string{
		"set sshd banip 9.9.9.9",
		"set nginx-404 banip 9.9.9.9",
		"set sshd banip 10.0.0.0/8",
	}, env.client.CallsWithPrefix("set "))

	w = env.do(t, http.MethodDelete, "/api/v1/permanent-bans/"+ban.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodDelete, "/api/v1/permanent-bans/x?value=10.0.0.0/8", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/permanent-bans", nil)
	assert.Empty(t, decode[[]models.PermanentBan](t, w))
}

func TestPermanentBanHandler_Errors(t *testing.T) {
	env := setupPermanentBanRoutes(t)

	w := env.do(t, http.MethodPost, "/api/v1/permanent-bans", map[string]string{"ip": "not-an-ip"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/permanent-bans", map[string]string{"ip": "1.2.3.4", "jail": "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/permanent-bans", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/permanent-bans/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
