package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Wikid82/jailkeeper/internal/util"
)

// Recovery converts a handler panic into a 500 carrying the request ID. With
// verbose set the stack and the sanitized request headers are logged as well.
func Recovery(verbose bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			entry := GetRequestLogger(c).WithFields(logrus.Fields{
				"method": c.Request.Method,
				"path":   SanitizePath(c.Request.URL.Path),
			})
			msg := util.SanitizeForLog(fmt.Sprint(r))
			if verbose {
				entry.WithField("headers", SanitizeHeaders(c.Request.Header)).
					Errorf("PANIC: %s\nStacktrace:\n%s", msg, debug.Stack())
			} else {
				entry.Errorf("PANIC: %s", msg)
			}

			body := gin.H{"error": "internal server error"}
			if rid := c.GetString(RequestIDKey); rid != "" {
				body["request_id"] = rid
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, body)
		}()
		c.Next()
	}
}
