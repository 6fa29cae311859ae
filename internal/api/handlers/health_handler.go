package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/jailkeeper/internal/engine"
	"github.com/Wikid82/jailkeeper/internal/services"
	"github.com/Wikid82/jailkeeper/internal/version"
)

type HealthHandler struct {
	client  engine.Client
	history *services.HistoryService
}

func NewHealthHandler(client engine.Client, history *services.HistoryService) *HealthHandler {
	return &HealthHandler{client: client, history: history}
}

// Check answers 503 only when the history store is unreadable. A stopped
// engine is reported as degraded since the API stays useful without it.
func (h *HealthHandler) Check(c *gin.Context) {
	status, code := "ok", http.StatusOK
	checks := gin.H{}

	if _, err := h.history.TotalBanCount(); err != nil {
		checks["history"] = err.Error()
		status, code = "error", http.StatusServiceUnavailable
	} else {
		checks["history"] = "ok"
	}

	running, err := h.client.Ping(c.Request.Context())
	switch {
	case err != nil:
		checks["engine"] = err.Error()
	case !running:
		checks["engine"] = "not running"
	default:
		checks["engine"] = "ok"
	}
	if checks["engine"] != "ok" && code == http.StatusOK {
		status = "degraded"
	}

	c.JSON(code, gin.H{
		"status":     status,
		"service":    version.Name,
		"version":    version.Full(),
		"git_commit": version.GitCommit,
		"checks":     checks,
	})
}
