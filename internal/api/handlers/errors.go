package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/jailkeeper/internal/api/middleware"
	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/util"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrExternalCommand):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err against the request and writes {"error": ...}.
// Server-side failures are logged at error level, caller mistakes at warn.
func respondError(c *gin.Context, action string, err error) {
	status := StatusFor(err)
	entry := middleware.GetRequestLogger(c).WithField("action", action).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}
	c.JSON(status, gin.H{"error": util.SanitizeForLog(err.Error())})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
