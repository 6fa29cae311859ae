package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/jailkeeper/internal/api/middleware"
	"github.com/Wikid82/jailkeeper/internal/services"
)

const defaultOffenderLimit = 20

type AnalyticsHandler struct {
	service  *services.AnalyticsService
	notifier *services.NotificationService
}

func NewAnalyticsHandler(service *services.AnalyticsService, notifier *services.NotificationService) *AnalyticsHandler {
	return &AnalyticsHandler{service: service, notifier: notifier}
}

func (h *AnalyticsHandler) Summary(c *gin.Context) {
	sum, err := h.service.Summary(c.Request.Context())
	if err != nil {
		respondError(c, "analytics_summary", err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *AnalyticsHandler) TopOffenders(c *gin.Context) {
	limit, err := parseIntParam(c, "limit", defaultOffenderLimit)
	if err != nil {
		respondError(c, "top_offenders", err)
		return
	}
	list, err := h.service.TopOffenders(limit)
	if err != nil {
		respondError(c, "top_offenders", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *AnalyticsHandler) RepeatOffenders(c *gin.Context) {
	minBans, err := parseIntParam(c, "min", services.DefaultRepeatMinBans)
	if err != nil {
		respondError(c, "repeat_offenders", err)
		return
	}
	limit, err := parseIntParam(c, "limit", defaultOffenderLimit)
	if err != nil {
		respondError(c, "repeat_offenders", err)
		return
	}
	list, err := h.service.RepeatOffenders(int64(minBans), limit)
	if err != nil {
		respondError(c, "repeat_offenders", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *AnalyticsHandler) Trends(c *gin.Context) {
	stats, err := h.service.Trends()
	if err != nil {
		respondError(c, "trends", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AnalyticsHandler) Alerts(c *gin.Context) {
	alerts, err := h.service.Alerts(c.Request.Context())
	if err != nil {
		respondError(c, "alerts", err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

// NotifyAlerts pushes the current alerts to the configured destinations.
func (h *AnalyticsHandler) NotifyAlerts(c *gin.Context) {
	alerts, res, err := h.notifier.NotifyAlerts(c.Request.Context())
	if err != nil {
		respondError(c, "notify_alerts", err)
		return
	}
	middleware.GetRequestLogger(c).WithField("action", "notify_alerts").WithField("sent", res.Sent).Info("alerts dispatched")
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "result": res})
}

// TestNotification sends a fixed message to every destination.
func (h *AnalyticsHandler) TestNotification(c *gin.Context) {
	res, err := h.notifier.SendTest()
	if err != nil {
		respondError(c, "test_notification", err)
		return
	}
	status := http.StatusOK
	if len(res.Errors) > 0 && res.Sent == 0 {
		status = http.StatusBadGateway
	}
	c.JSON(status, res)
}
