package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/jailkeeper/internal/logger"
)

func servePanic(t *testing.T, verbose bool, msg string, header map[string]string) string {
	t.Helper()
	buf := &bytes.Buffer{}
	logger.Init(true, buf)

	router := newRouter(RequestID(), Recovery(verbose))
	router.GET("/panic", func(c *gin.Context) { panic(msg) })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error","request_id":"`+w.Header().Get(RequestIDHeader)+`"}`, w.Body.String())
	return buf.String()
}

func TestRecoveryLogsStacktraceVerbose(t *testing.T) {
	out := servePanic(t, true, "test panic", nil)
	assert.Contains(t, out, "PANIC: test panic")
	assert.Contains(t, out, "Stacktrace:")
	assert.Contains(t, out, "request_id")
}

func TestRecoveryLogsBriefWhenNotVerbose(t *testing.T) {
	out := servePanic(t, false, "brief panic", nil)
	assert.Contains(t, out, "PANIC: brief panic")
	assert.NotContains(t, out, "Stacktrace:")
}

func TestRecoverySanitizesHeaders(t *testing.T) {
	out := servePanic(t, true, "sensitive panic", map[string]string{"Authorization": "Bearer secret-token"})
	assert.NotContains(t, out, "secret-token")
	assert.Contains(t, out, "<redacted>")
}

func TestRecoveryWithoutRequestID(t *testing.T) {
	logger.Init(false, &bytes.Buffer{})
	router := newRouter(Recovery(false))
	router.GET("/panic", func(c *gin.Context) { panic("no id") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}
