package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/jailkeeper/internal/api/middleware"
	"github.com/Wikid82/jailkeeper/internal/engine"
	"github.com/Wikid82/jailkeeper/internal/services"
)

// ServiceController is the subset of engine.ServiceControl the API drives.
type ServiceController interface {
	Reload(ctx context.Context) error
	Restart(ctx context.Context) error
	IsActive(ctx context.Context) bool
}

type EngineHandler struct {
	bans    *services.BanService
	client  engine.Client
	service ServiceController
}

func NewEngineHandler(bans *services.BanService, client engine.Client, service ServiceController) *EngineHandler {
	return &EngineHandler{bans: bans, client: client, service: service}
}

func (h *EngineHandler) Status(c *gin.Context) {
	st, err := h.bans.Status(c.Request.Context())
	if err != nil {
		respondError(c, "engine_status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"engine":         st,
		"service_active": h.service.IsActive(c.Request.Context()),
	})
}

type banRequest struct {
	Jail   string `json:"jail" binding:"required"`
	IP     string `json:"ip" binding:"required"`
	Reason string `json:"reason"`
}

func (h *EngineHandler) Ban(c *gin.Context) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.bans.Ban(c.Request.Context(), req.Jail, req.IP, req.Reason); err != nil {
		respondError(c, "ban", err)
		return
	}
	middleware.GetRequestLogger(c).WithField("action", "ban").WithField("jail", req.Jail).Info("address banned")
	c.JSON(http.StatusOK, gin.H{"message": "banned"})
}

func (h *EngineHandler) Unban(c *gin.Context) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.bans.Unban(c.Request.Context(), req.Jail, req.IP); err != nil {
		respondError(c, "unban", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unbanned"})
}

type ipRequest struct {
	IP string `json:"ip" binding:"required"`
}

// UnbanEverywhere always answers 200 with the per-jail outcomes.
func (h *EngineHandler) UnbanEverywhere(c *gin.Context) {
	var req ipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	outcomes, err := h.bans.UnbanEverywhere(c.Request.Context(), req.IP)
	if err != nil {
		respondError(c, "unban_everywhere", err)
		return
	}
	c.JSON(http.StatusOK, outcomes)
}

func (h *EngineHandler) BannedIn(c *gin.Context) {
	jails, err := h.bans.BannedIn(c.Request.Context(), c.Param("ip"))
	if err != nil {
		respondError(c, "banned_in", err)
		return
	}
	if jails == nil {
		jails = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"ip": c.Param("ip"), "jails": jails})
}

type reloadRequest struct {
	Jail string `json:"jail"`
}

// Reload rereads the configuration, or only one jail when named.
func (h *EngineHandler) Reload(c *gin.Context) {
	var req reloadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	var err error
	if req.Jail != "" {
		err = h.client.ReloadJail(c.Request.Context(), req.Jail)
	} else {
		err = h.client.Reread(c.Request.Context())
	}
	if err != nil {
		respondError(c, "engine_reload", err)
		return
	}
	middleware.GetRequestLogger(c).WithField("action", "engine_reload").WithField("jail", req.Jail).Info("engine reloaded")
	c.JSON(http.StatusOK, gin.H{"message": "reloaded"})
}

// Service runs reload or restart through the service manager.
func (h *EngineHandler) Service(c *gin.Context) {
	var err error
	switch action := c.Param("action"); action {
	case "reload":
		err = h.service.Reload(c.Request.Context())
	case "restart":
		err = h.service.Restart(c.Request.Context())
	default:
		badRequest(c, "action must be reload or restart")
		return
	}
	if err != nil {
		respondError(c, "service_"+c.Param("action"), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}
