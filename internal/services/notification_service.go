package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/containrrr/shoutrrr"

	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/logger"
)

var discordWebhookRegex = regexp.MustCompile(`^https://discord(?:app)?\.com/api/webhooks/(\d+)/([a-zA-Z0-9_-]+)`)

// normalizeURL turns a pasted Discord webhook into a shoutrrr service URL.
// Anything else is passed through unchanged.
func normalizeURL(rawURL string) string {
	if matches := discordWebhookRegex.FindStringSubmatch(rawURL); len(matches) == 3 {
		return fmt.Sprintf("discord://%s@%s", matches[2], matches[1])
	}
	return rawURL
}

// NotifyResult counts deliveries of one notification.
type NotifyResult struct {
	Sent   int               `json:"sent"`
	Errors map[string]string `json:"errors,omitempty"`
}

// NotificationService delivers alerts to the shoutrrr URLs from the config.
type NotificationService struct {
	urls      []string
	analytics *AnalyticsService
	send      func(url, message string) error
}

func NewNotificationService(urls []string, analytics *AnalyticsService) *NotificationService {
	clean := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			clean = append(clean, normalizeURL(u))
		}
	}
	return &NotificationService{urls: clean, analytics: analytics, send: shoutrrr.Send}
}

// Configured reports whether any destination is set.
func (s *NotificationService) Configured() bool { return len(s.urls) > 0 }

// Send delivers message to every destination. Failures are collected per
// destination and do not stop the others.
func (s *NotificationService) Send(title, message string) NotifyResult {
	res := NotifyResult{}
	msg := fmt.Sprintf("%s\n\n%s", title, message)
	for i, url := range s.urls {
		if err := s.send(url, msg); err != nil {
			if res.Errors == nil {
				res.Errors = map[string]string{}
			}
			// destination URLs carry tokens, so they are referred to by position
			key := fmt.Sprintf("destination-%d", i+1)
			res.Errors[key] = err.Error()
			logger.WithFields(map[string]interface{}{"destination": key, "error": err.Error()}).Warn("notification not delivered")
			continue
		}
		res.Sent++
	}
	return res
}

// FormatAlerts renders alerts as one message body.
func FormatAlerts(alerts []Alert) string {
	var b strings.Builder
	for _, a := range alerts {
		fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(a.Severity), a.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NotifyAlerts evaluates the current alerts and sends them. Nothing is sent
// when there are no alerts.
func (s *NotificationService) NotifyAlerts(ctx context.Context) ([]Alert, NotifyResult, error) {
	if !s.Configured() {
		return nil, NotifyResult{}, apperr.Validation("no notification URLs configured")
	}
	alerts, err := s.analytics.Alerts(ctx)
	if err != nil {
		return nil, NotifyResult{}, err
	}
	if len(alerts) == 0 {
		return alerts, NotifyResult{}, nil
	}
	title := fmt.Sprintf("jailkeeper: %d active alert(s)", len(alerts))
	return alerts, s.Send(title, FormatAlerts(alerts)), nil
}

// SendTest sends a fixed message to check the destinations.
func (s *NotificationService) SendTest() (NotifyResult, error) {
	if !s.Configured() {
		return NotifyResult{}, apperr.Validation("no notification URLs configured")
	}
	return s.Send("jailkeeper", "Test notification from jailkeeper"), nil
}
