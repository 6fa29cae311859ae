package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/jailkeeper/internal/api/middleware"
	"github.com/Wikid82/jailkeeper/internal/services"
)

// IgnoreDirectiveHandler exposes the ignoreip regeneration. Writing never
// reloads the engine; clients call the engine reload route afterwards.
type IgnoreDirectiveHandler struct {
	service *services.IgnoreDirectiveService
}

func NewIgnoreDirectiveHandler(service *services.IgnoreDirectiveService) *IgnoreDirectiveHandler {
	return &IgnoreDirectiveHandler{service: service}
}

// Preview returns the set that would be written and the pending diff.
func (h *IgnoreDirectiveHandler) Preview(c *gin.Context) {
	entries, err := h.service.GlobalSet()
	if err != nil {
		respondError(c, "preview_ignore_directive", err)
		return
	}
	diff, err := h.service.Preview()
	if err != nil {
		respondError(c, "preview_ignore_directive", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "diff": diff, "up_to_date": diff == ""})
}

func (h *IgnoreDirectiveHandler) Regenerate(c *gin.Context) {
	res, err := h.service.Regenerate()
	if err != nil {
		respondError(c, "regenerate_ignore_directive", err)
		return
	}
	middleware.GetRequestLogger(c).WithField("action", "regenerate_ignore_directive").WithField("changed", res.Changed).Info("ignore directive regenerated")
	c.JSON(http.StatusOK, res)
}

func (h *IgnoreDirectiveHandler) RegenerateForJail(c *gin.Context) {
	res, err := h.service.RegenerateForJail(c.Param("jail"))
	if err != nil {
		respondError(c, "regenerate_jail_ignore_directive", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
