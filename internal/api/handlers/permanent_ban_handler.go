package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/jailkeeper/internal/api/middleware"
	"github.com/Wikid82/jailkeeper/internal/models"
	"github.com/Wikid82/jailkeeper/internal/services"
)

type PermanentBanHandler struct {
	service *services.PermanentBanService
}

func NewPermanentBanHandler(service *services.PermanentBanService) *PermanentBanHandler {
	return &PermanentBanHandler{service: service}
}

type permanentBanRequest struct {
	IP     string `json:"ip" binding:"required"`
	Jail   string `json:"jail"`
	Reason string `json:"reason"`
}

func (h *PermanentBanHandler) List(c *gin.Context) {
	bans, err := h.service.List()
	if err != nil {
		respondError(c, "list_permanent_bans", err)
		return
	}
	c.JSON(http.StatusOK, bans)
}

// Create declares a permanent ban. An empty jail or "all" means every jail.
func (h *PermanentBanHandler) Create(c *gin.Context) {
	var req permanentBanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ban, err := h.service.Add(c.Request.Context(), req.IP, models.ParseBanScope(req.Jail), req.Reason)
	if err != nil {
		respondError(c, "add_permanent_ban", err)
		return
	}
	middleware.GetRequestLogger(c).WithField("action", "add_permanent_ban").WithField("id", ban.ID).Info("permanent ban declared")
	c.JSON(http.StatusCreated, ban)
}

// Delete removes by id, or by value when ?value= is given (for CIDRs).
func (h *PermanentBanHandler) Delete(c *gin.Context) {
	target := c.Param("id")
	if v := c.Query("value"); v != "" {
		target = v
	}
	n, err := h.service.Remove(target)
	if err != nil {
		respondError(c, "remove_permanent_ban", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

// Apply issues the ban commands for every declaration.
func (h *PermanentBanHandler) Apply(c *gin.Context) {
	res, err := h.service.Apply(c.Request.Context())
	if err != nil {
		respondError(c, "apply_permanent_bans", err)
		return
	}
	middleware.GetRequestLogger(c).WithField("action", "apply_permanent_bans").WithField("applied", res.Applied).WithField("failed", res.Failed).Info("permanent bans applied")
	c.JSON(http.StatusOK, res)
}
