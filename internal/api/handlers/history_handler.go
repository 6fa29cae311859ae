package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/jailkeeper/internal/api/middleware"
	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/models"
	"github.com/Wikid82/jailkeeper/internal/services"
)

type HistoryHandler struct {
	service *services.HistoryService
	logPath string
}

// NewHistoryHandler serves the ban history. logPath is imported when a
// request does not name a file.
func NewHistoryHandler(service *services.HistoryService, logPath string) *HistoryHandler {
	return &HistoryHandler{service: service, logPath: logPath}
}

// parseTimeParam accepts RFC 3339 or a plain local date.
func parseTimeParam(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, time.Local); err == nil {
		return &t, nil
	}
	return nil, apperr.Validation("%s must be RFC 3339 or YYYY-MM-DD", name)
}

func parseIntParam(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation("%s must be a non-negative integer", name)
	}
	return n, nil
}

func (h *HistoryHandler) filter(c *gin.Context) (services.HistoryFilter, error) {
	f := services.HistoryFilter{
		IP:     c.Query("ip"),
		Jail:   c.Query("jail"),
		Action: models.BanAction(c.Query("action")),
	}
	if f.Action != "" && !f.Action.Valid() {
		return f, apperr.Validation("unknown action %q", f.Action)
	}
	var err error
	if f.Since, err = parseTimeParam(c, "since"); err != nil {
		return f, err
	}
	if f.Until, err = parseTimeParam(c, "until"); err != nil {
		return f, err
	}
	if f.Limit, err = parseIntParam(c, "limit", 0); err != nil {
		return f, err
	}
	return f, nil
}

func (h *HistoryHandler) List(c *gin.Context) {
	f, err := h.filter(c)
	if err != nil {
		respondError(c, "list_history", err)
		return
	}
	events, err := h.service.Query(f)
	if err != nil {
		respondError(c, "list_history", err)
		return
	}
	c.JSON(http.StatusOK, events)
}

type importRequest struct {
	Path string `json:"path"`
}

func (h *HistoryHandler) Import(c *gin.Context) {
	var req importRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if req.Path == "" {
		req.Path = h.logPath
	}
	res, err := h.service.Import(req.Path)
	if err != nil {
		respondError(c, "import_history", err)
		return
	}
	middleware.GetRequestLogger(c).WithField("action", "import_history").WithField("inserted", res.Inserted).Info("history imported")
	c.JSON(http.StatusOK, res)
}

// Export returns the filtered history as a CSV attachment.
func (h *HistoryHandler) Export(c *gin.Context) {
	f, err := h.filter(c)
	if err != nil {
		respondError(c, "export_history", err)
		return
	}
	var buf bytes.Buffer
	if err := h.service.WriteCSV(&buf, f); err != nil {
		respondError(c, "export_history", err)
		return
	}
	name := fmt.Sprintf("ban-history-%s.csv", time.Now().Format("20060102-150405"))
	c.Header("Content-Disposition", "attachment; filename="+name)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// Purge deletes everything, or only events older than ?before=.
func (h *HistoryHandler) Purge(c *gin.Context) {
	before, err := parseTimeParam(c, "before")
	if err != nil {
		respondError(c, "purge_history", err)
		return
	}
	n, err := h.service.Purge(before)
	if err != nil {
		respondError(c, "purge_history", err)
		return
	}
	middleware.GetRequestLogger(c).WithField("action", "purge_history").WithField("deleted", n).Info("history purged")
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
