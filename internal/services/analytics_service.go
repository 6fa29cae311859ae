package services

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/oschwald/geoip2-golang"

	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/engine"
)

// Alert thresholds.
const (
	AlertOffenderBans  = 10
	AlertWindow        = 24 * time.Hour
	AlertDailyBanLimit = 100
)

// Alert kinds.
const (
	AlertRepeatOffender = "repeat_offender"
	AlertEngineDown     = "engine_down"
	AlertBanSurge       = "ban_surge"
)

// Alert is one derived warning.
type Alert struct {
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	IP       string `json:"ip,omitempty"`
	Count    int64  `json:"count,omitempty"`
}

// Summary is the dashboard aggregate.
type Summary struct {
	TotalBans     int64 `json:"total_bans"`
	TodayBans     int64 `json:"today_bans"`
	EngineRunning bool  `json:"engine_running"`
	ActiveJails   int   `json:"active_jails"`
	AlertCount    int   `json:"alert_count"`
}

// CountryLookup resolves an address to an ISO country code.
type CountryLookup interface {
	Country(ip string) string
}

// GeoIPLookup reads a MaxMind country (or city) database.
type GeoIPLookup struct {
	reader *geoip2.Reader
}

// OpenGeoIP opens the mmdb file at path.
func OpenGeoIP(path string) (*GeoIPLookup, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &GeoIPLookup{reader: r}, nil
}

func (g *GeoIPLookup) Country(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	record, err := g.reader.Country(parsed)
	if err != nil {
		return ""
	}
	return strings.ToUpper(record.Country.IsoCode)
}

func (g *GeoIPLookup) Close() error { return g.reader.Close() }

// AnalyticsService derives rankings, trends and alerts from the history.
type AnalyticsService struct {
	history *HistoryService
	client  engine.Client
	geo     CountryLookup
	now     func() time.Time
}

// NewAnalyticsService wires the service. geo may be nil.
func NewAnalyticsService(history *HistoryService, client engine.Client, geo CountryLookup) *AnalyticsService {
	return &AnalyticsService{history: history, client: client, geo: geo, now: time.Now}
}

func (s *AnalyticsService) enrich(list []Offender) []Offender {
	if s.geo == nil {
		return list
	}
	for i := range list {
		list[i].Country = s.geo.Country(list[i].IP)
	}
	return list
}

// TopOffenders ranks every banned address.
func (s *AnalyticsService) TopOffenders(limit int) ([]Offender, error) {
	list, err := s.history.TopOffenders(1, limit)
	if err != nil {
		return nil, err
	}
	return s.enrich(list), nil
}

// DefaultRepeatMinBans is the threshold RepeatOffenders uses when minBans is 0.
const DefaultRepeatMinBans = 2

// RepeatOffenders keeps addresses banned at least minBans times. Zero selects
// DefaultRepeatMinBans; any other value below 2 is a ValidationError since a
// single ban is not a repeat.
func (s *AnalyticsService) RepeatOffenders(minBans int64, limit int) ([]Offender, error) {
	switch {
	case minBans == 0:
		minBans = DefaultRepeatMinBans
	case minBans < 2:
		return nil, apperr.Validation("minimum bans must be at least 2, got %d", minBans)
	}
	list, err := s.history.TopOffenders(minBans, limit)
	if err != nil {
		return nil, err
	}
	return s.enrich(list), nil
}

// Trends is the attack statistics as of now.
func (s *AnalyticsService) Trends() (AttackStatistics, error) {
	return s.history.AttackStatistics(s.now())
}

func (s *AnalyticsService) startOfToday() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (s *AnalyticsService) engineRunning(ctx context.Context) bool {
	running, err := s.client.Ping(ctx)
	return err == nil && running
}

// Alerts evaluates the alert heuristics against the current state. Nothing is
// cached between calls.
func (s *AnalyticsService) Alerts(ctx context.Context) ([]Alert, error) {
	return s.alerts(ctx, s.engineRunning(ctx))
}

func (s *AnalyticsService) alerts(ctx context.Context, running bool) ([]Alert, error) {
	alerts := []Alert{}

	offenders, err := s.history.TopOffendersSince(s.now().Add(-AlertWindow), AlertOffenderBans, 0)
	if err != nil {
		return nil, err
	}
	for _, o := range offenders {
		alerts = append(alerts, Alert{
			Kind:     AlertRepeatOffender,
			Severity: "warning",
			Message:  fmt.Sprintf("%s was banned %d times in the last %s", o.IP, o.BanCount, AlertWindow),
			IP:       o.IP,
			Count:    o.BanCount,
		})
	}

	if !running {
		alerts = append(alerts, Alert{
			Kind:     AlertEngineDown,
			Severity: "critical",
			Message:  "fail2ban is not running",
		})
	}

	today, err := s.history.CountBansSince(s.startOfToday())
	if err != nil {
		return nil, err
	}
	if today > AlertDailyBanLimit {
		alerts = append(alerts, Alert{
			Kind:     AlertBanSurge,
			Severity: "warning",
			Message:  fmt.Sprintf("%d bans today exceeds %d", today, AlertDailyBanLimit),
			Count:    today,
		})
	}
	return alerts, nil
}

// Summary gathers the dashboard counters in one pass.
func (s *AnalyticsService) Summary(ctx context.Context) (Summary, error) {
	var sum Summary
	total, err := s.history.TotalBanCount()
	if err != nil {
		return sum, err
	}
	today, err := s.history.CountBansSince(s.startOfToday())
	if err != nil {
		return sum, err
	}
	sum.TotalBans, sum.TodayBans = total, today
	sum.EngineRunning = s.engineRunning(ctx)
	if sum.EngineRunning {
		if jails, err := s.client.ActiveJails(ctx); err == nil {
			sum.ActiveJails = len(jails)
		}
	}
	alerts, err := s.alerts(ctx, sum.EngineRunning)
	if err != nil {
		return sum, err
	}
	sum.AlertCount = len(alerts)
	return sum, nil
}
