package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/jailkeeper/internal/api/middleware"
	"github.com/Wikid82/jailkeeper/internal/services"
)

// WhitelistHandler edits the whitelist declarations. Values may be CIDRs, so
// removals take the value from the query string rather than the path.
type WhitelistHandler struct {
	service *services.WhitelistService
}

func NewWhitelistHandler(service *services.WhitelistService) *WhitelistHandler {
	return &WhitelistHandler{service: service}
}

type whitelistEntryRequest struct {
	Value       string `json:"value" binding:"required"`
	Description string `json:"description"`
}

type groupRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (h *WhitelistHandler) done(c *gin.Context, action string, err error, status int) {
	if err != nil {
		respondError(c, action, err)
		return
	}
	middleware.GetRequestLogger(c).WithField("action", action).Info("whitelist updated")
	c.JSON(status, gin.H{"message": "ok"})
}

func queryValue(c *gin.Context) (string, bool) {
	v := c.Query("value")
	if v == "" {
		badRequest(c, "value query parameter is required")
		return "", false
	}
	return v, true
}

func (h *WhitelistHandler) Get(c *gin.Context) {
	f, err := h.service.Load()
	if err != nil {
		respondError(c, "get_whitelist", err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *WhitelistHandler) AddGlobal(c *gin.Context) {
	var req whitelistEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.done(c, "whitelist_add_global", h.service.AddGlobal(req.Value, req.Description), http.StatusCreated)
}

func (h *WhitelistHandler) RemoveGlobal(c *gin.Context) {
	value, ok := queryValue(c)
	if !ok {
		return
	}
	h.done(c, "whitelist_remove_global", h.service.RemoveGlobal(value), http.StatusOK)
}

func (h *WhitelistHandler) AddJailEntry(c *gin.Context) {
	var req whitelistEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.done(c, "whitelist_add_jail", h.service.AddJailEntry(c.Param("jail"), req.Value, req.Description), http.StatusCreated)
}

func (h *WhitelistHandler) RemoveJailEntry(c *gin.Context) {
	value, ok := queryValue(c)
	if !ok {
		return
	}
	h.done(c, "whitelist_remove_jail", h.service.RemoveJailEntry(c.Param("jail"), value), http.StatusOK)
}

func (h *WhitelistHandler) CreateGroup(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.done(c, "whitelist_create_group", h.service.CreateGroup(req.Name, req.Description), http.StatusCreated)
}

func (h *WhitelistHandler) DeleteGroup(c *gin.Context) {
	h.done(c, "whitelist_delete_group", h.service.DeleteGroup(c.Param("name")), http.StatusOK)
}

func (h *WhitelistHandler) AddGroupEntry(c *gin.Context) {
	var req whitelistEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.done(c, "whitelist_add_group_entry", h.service.AddGroupEntry(c.Param("name"), req.Value, req.Description), http.StatusCreated)
}

func (h *WhitelistHandler) RemoveGroupEntry(c *gin.Context) {
	value, ok := queryValue(c)
	if !ok {
		return
	}
	h.done(c, "whitelist_remove_group_entry", h.service.RemoveGroupEntry(c.Param("name"), value), http.StatusOK)
}

func (h *WhitelistHandler) AttachGroup(c *gin.Context) {
	h.done(c, "whitelist_attach_group", h.service.AttachGroup(c.Param("name")), http.StatusOK)
}

func (h *WhitelistHandler) DetachGroup(c *gin.Context) {
	h.done(c, "whitelist_detach_group", h.service.DetachGroup(c.Param("name")), http.StatusOK)
}

func (h *WhitelistHandler) TrustedSources(c *gin.Context) {
	list, err := h.service.TrustedSources()
	if err != nil {
		respondError(c, "list_trusted_sources", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type trustedSourceRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *WhitelistHandler) SetTrustedSource(c *gin.Context) {
	var req trustedSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.done(c, "set_trusted_source", h.service.SetTrustedSourceEnabled(c.Param("key"), *req.Enabled), http.StatusOK)
}

func (h *WhitelistHandler) RefreshTrustedSource(c *gin.Context) {
	src, err := h.service.RefreshTrustedSource(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, "refresh_trusted_source", err)
		return
	}
	c.JSON(http.StatusOK, src)
}

// Check reports whether ?ip= is whitelisted, optionally for ?jail=.
func (h *WhitelistHandler) Check(c *gin.Context) {
	ip := c.Query("ip")
	if ip == "" {
		badRequest(c, "ip query parameter is required")
		return
	}
	match, err := h.service.IsWhitelisted(ip, c.Query("jail"))
	if err != nil {
		respondError(c, "check_whitelist", err)
		return
	}
	c.JSON(http.StatusOK, match)
}
