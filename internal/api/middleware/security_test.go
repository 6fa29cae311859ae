package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name          string
		isDevelopment bool
		wantHSTS      bool
	}{
		{name: "production sets HSTS", wantHSTS: true},
		{name: "development skips HSTS", isDevelopment: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(SecurityHeaders(SecurityHeadersConfig{IsDevelopment: tt.isDevelopment}))
			router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

			if tt.wantHSTS {
				assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000")
			} else {
				assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
			}
			assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
			assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
		})
	}
}

func TestSanitizePath(t *testing.T) {
	assert.Equal(t, "/api/v1/bans", SanitizePath("/api/v1/bans?token=abc"))
	assert.Len(t, SanitizePath("/"+strings.Repeat("a", 500)), maxLoggedValue)
}
