package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/jailkeeper/internal/api/middleware"
	"github.com/Wikid82/jailkeeper/internal/services"
)

// JailHandler manages jail and filter artifacts. None of its routes reload
// the engine.
type JailHandler struct {
	service *services.JailService
}

func NewJailHandler(service *services.JailService) *JailHandler {
	return &JailHandler{service: service}
}

func (h *JailHandler) List(c *gin.Context) {
	jails, err := h.service.List()
	if err != nil {
		respondError(c, "list_jails", err)
		return
	}
	c.JSON(http.StatusOK, jails)
}

func (h *JailHandler) Get(c *gin.Context) {
	name := c.Param("name")
	jail, err := h.service.Get(name)
	if err != nil {
		respondError(c, "get_jail", err)
		return
	}
	resp := gin.H{"jail": jail}
	if filter, err := h.service.GetFilter(jail.Filter); err == nil {
		resp["filter"] = filter
	}
	c.JSON(http.StatusOK, resp)
}

func (h *JailHandler) Templates(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Templates())
}

type fromTemplateRequest struct {
	Name      string `json:"name"`
	Overwrite bool   `json:"overwrite"`
}

func (h *JailHandler) CreateFromTemplate(c *gin.Context) {
	var req fromTemplateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	jail, err := h.service.CreateFromTemplate(c.Param("id"), req.Name, req.Overwrite)
	if err != nil {
		respondError(c, "create_jail_from_template", err)
		return
	}
	middleware.GetRequestLogger(c).WithField("action", "create_jail").WithField("jail", jail.Name).Info("jail created")
	c.JSON(http.StatusCreated, jail)
}

func (h *JailHandler) CreateCustom(c *gin.Context) {
	var req services.CustomJailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	jail, err := h.service.CreateCustom(req)
	if err != nil {
		respondError(c, "create_custom_jail", err)
		return
	}
	middleware.GetRequestLogger(c).WithField("action", "create_jail").WithField("jail", jail.Name).Info("jail created")
	c.JSON(http.StatusCreated, jail)
}

type enabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *JailHandler) SetEnabled(c *gin.Context) {
	var req enabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	changed, err := h.service.SetEnabled(c.Param("name"), *req.Enabled)
	if err != nil {
		respondError(c, "set_jail_enabled", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

func (h *JailHandler) EditParameters(c *gin.Context) {
	var req services.JailParams
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	name := c.Param("name")
	if err := h.service.EditParameters(name, req); err != nil {
		respondError(c, "edit_jail", err)
		return
	}
	jail, err := h.service.Get(name)
	if err != nil {
		respondError(c, "edit_jail", err)
		return
	}
	c.JSON(http.StatusOK, jail)
}

func (h *JailHandler) Delete(c *gin.Context) {
	res, err := h.service.Delete(c.Param("name"))
	if err != nil {
		respondError(c, "delete_jail", err)
		return
	}
	middleware.GetRequestLogger(c).WithField("action", "delete_jail").WithField("jail", res.Jail).Info("jail deleted")
	c.JSON(http.StatusOK, res)
}
