package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/models"
	"github.com/Wikid82/jailkeeper/internal/services"
)

func setupEngineRoutes(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	h := NewEngineHandler(env.svcs.Bans, env.client, env.ctl)
	g := env.router.Group("/api/v1/engine")
	g.GET("/status", h.Status)
	g.GET("/banned/:ip", h.BannedIn)
	g.POST("/ban", h.Ban)
	g.POST("/unban", h.Unban)
	g.POST("/unban-all", h.UnbanEverywhere)
	g.POST("/reload", h.Reload)
	g.POST("/service/:action", h.Service)
	return env
}

func TestEngineHandler_BanUnbanRecordsHistory(t *testing.T) {
	env := setupEngineRoutes(t)

	w := env.do(t, http.MethodPost, "/api/v1/engine/ban", map[string]string{"jail": "sshd", "ip": "1.2.3.4", "reason": "manual"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/engine/banned/1.2.3.4", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"sshd"}, decode[map[string]interface{}](t, w)["jails"])

	w = env.do(t, http.MethodGet, "/api/v1/engine/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/engine/unban", map[string]string{"jail": "sshd", "ip": "1.2.3.4"})
	require.Equal(t, http.StatusOK, w.Code)

	events, err := env.svcs.History.Query(services.HistoryFilter{IP: "1.2.3.4"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, models.SourceLive, ev.Source)
	}
}

func TestEngineHandler_Errors(t *testing.T) {
	env := setupEngineRoutes(t)

	w := env.do(t, http.MethodPost, "/api/v1/engine/ban", map[string]string{"jail": "sshd", "ip": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/engine/ban", map[string]string{"jail": "ghost", "ip": "1.2.3.4"})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/engine/unban-all", map[string]string{"ip": "1.2.3.4"})
	require.Equal(t, http.StatusOK, w.Code)
	outcomes := decode[[]services.JailOutcome](t, w)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.False(t, o.OK)
		assert.NotEmpty(t, o.Error)
	}
}

func TestEngineHandler_ReloadAndService(t *testing.T) {
	env := setupEngineRoutes(t)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/engine/reload", nil).Code)
	assert.Equal(t, 1, env.client.Rereads)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/engine/reload", map[string]string{"jail": "sshd"}).Code)
	assert.Equal(t, []string{"sshd"}, env.client.Reloaded)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/engine/service/restart", nil).Code)
	assert.Equal(t, 1, env.ctl.restarts)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/engine/service/stop", nil).Code)

	env.ctl.err = &apperr.CommandError{Args: []string{"systemctl", "reload", "fail2ban"}, Err: errors.New("exit status 1")}
	assert.Equal(t, http.StatusBadGateway, env.do(t, http.MethodPost, "/api/v1/engine/service/reload", nil).Code)

	env.client.Running = false
	assert.Equal(t, http.StatusBadGateway, env.do(t, http.MethodPost, "/api/v1/engine/reload", nil).Code)
}
