package services

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jszwec/csvutil"
	"gorm.io/gorm"

	"github.com/Wikid82/jailkeeper/internal/apperr"
	"github.com/Wikid82/jailkeeper/internal/logger"
	"github.com/Wikid82/jailkeeper/internal/logparse"
	"github.com/Wikid82/jailkeeper/internal/metrics"
	"github.com/Wikid82/jailkeeper/internal/models"
)

// HistoryFilter narrows Query and Export. Zero values mean "any".
type HistoryFilter struct {
	IP     string
	Jail   string
	Action models.BanAction
	Since  *time.Time
	Until  *time.Time
	Limit  int
}

// ImportResult summarises one Import call.
type ImportResult struct {
	Path       string `json:"path"`
	Lines      int    `json:"lines"`
	Parsed     int    `json:"parsed"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
}

// Offender is one row of the offender ranking.
type Offender struct {
	IP        string    `json:"ip"`
	BanCount  int64     `json:"ban_count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Jails     int64     `json:"jails"`
	Country   string    `json:"country,omitempty"`
}

// DayCount is the number of bans on one calendar day.
type DayCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// AttackStatistics is the trend view over the stored history.
type AttackStatistics struct {
	ByJail map[string]int64 `json:"by_jail"`
	ByHour [24]int64        `json:"by_hour"`
	ByDay  []DayCount       `json:"by_day"`
	Total  int64            `json:"total"`
	Unbans int64            `json:"unbans"`
}

// ExportRow is the flat shape handed to external reporting.
type ExportRow struct {
	Timestamp string `csv:"timestamp" json:"timestamp"`
	IP        string `csv:"ip" json:"ip"`
	Jail      string `csv:"jail" json:"jail"`
	Action    string `csv:"action" json:"action"`
	Duration  string `csv:"duration,omitempty" json:"duration,omitempty"`
	Reason    string `csv:"reason,omitempty" json:"reason,omitempty"`
	Source    string `csv:"source" json:"source"`
}

const importBatchSize = 500

// HistoryService is the durable, append-only store of ban events.
type HistoryService struct {
	db          *gorm.DB
	migrateOnce sync.Once
	migrateErr  error
	now         func() time.Time
}

// NewHistoryService returns a store backed by db. The schema is created on first use.
func NewHistoryService(db *gorm.DB) *HistoryService {
	return &HistoryService{db: db, now: time.Now}
}

func (s *HistoryService) ensureSchema() error {
	s.migrateOnce.Do(func() {
		if err := s.db.AutoMigrate(&models.BanEvent{}); err != nil {
			s.migrateErr = apperr.Storage("create history schema", err)
		}
	})
	return s.migrateErr
}

func (s *HistoryService) prepare(ev *models.BanEvent) {
	if ev.Jail == "" {
		ev.Jail = models.UnknownJail
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	ev.Timestamp = ev.Timestamp.UTC()
	if ev.Source == "" {
		ev.Source = models.SourceLive
	}
}

// Append stores ev unconditionally. Callers filter malformed input through
// logparse before getting here.
func (s *HistoryService) Append(ev *models.BanEvent) error {
	if ev == nil {
		return nil
	}
	if err := s.ensureSchema(); err != nil {
		return err
	}
	s.prepare(ev)
	return apperr.Storage("append ban event", s.db.Create(ev).Error)
}

// Import parses every line of the file at logPath and stores the recognised
// events. Events already present with the same timestamp, ip, jail and action
// are skipped, so importing the same file twice does not duplicate history.
func (s *HistoryService) Import(logPath string) (ImportResult, error) {
	res := ImportResult{Path: logPath}
	if err := s.ensureSchema(); err != nil {
		return res, err
	}

	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return res, apperr.NotFound("log file", logPath)
		}
		return res, apperr.Storage("open log file", err)
	}
	defer f.Close()

	var events []models.BanEvent
	st, err := logparse.ParseReader(f, func(ev models.BanEvent) error {
		ev.Timestamp = ev.Timestamp.UTC()
		events = append(events, ev)
		return nil
	})
	res.Lines, res.Parsed = st.Lines, st.Parsed
	if err != nil {
		return res, apperr.Storage("read log file", err)
	}
	if len(events) == 0 {
		return res, nil
	}

	seen, err := s.existingKeys(events)
	if err != nil {
		return res, err
	}

	fresh := make([]models.BanEvent, 0, len(events))
	for _, ev := range events {
		key := ev.DedupKey()
		if _, dup := seen[key]; dup {
			res.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, ev)
	}

	if len(fresh) > 0 {
		err = s.db.Transaction(func(tx *gorm.DB) error {
			return tx.CreateInBatches(&fresh, importBatchSize).Error
		})
		if err != nil {
			return res, apperr.Storage("insert imported events", err)
		}
	}
	res.Inserted = len(fresh)
	metrics.AddImported(res.Inserted)

	logger.WithFields(map[string]interface{}{
		"path":       logPath,
		"lines":      res.Lines,
		"inserted":   res.Inserted,
		"duplicates": res.Duplicates,
	}).Info("imported security log")
	return res, nil
}

// existingKeys loads the dedup keys of stored events inside the time span
// covered by events.
func (s *HistoryService) existingKeys(events []models.BanEvent) (map[string]struct{}, error) {
	minTS, maxTS := events[0].Timestamp, events[0].Timestamp
	for _, ev := range events[1:] {
		if ev.Timestamp.Before(minTS) {
			minTS = ev.Timestamp
		}
		if ev.Timestamp.After(maxTS) {
			maxTS = ev.Timestamp
		}
	}
	var stored []models.BanEvent
	err := s.db.Select("timestamp", "ip", "jail", "action").
		Where("timestamp >= ? AND timestamp <= ?", minTS.UTC(), maxTS.UTC()).
		Find(&stored).Error
	if err != nil {
		return nil, apperr.Storage("load existing events", err)
	}
	keys := make(map[string]struct{}, len(stored))
	for _, ev := range stored {
		keys[ev.DedupKey()] = struct{}{}
	}
	return keys, nil
}

func (s *HistoryService) filtered(f HistoryFilter) *gorm.DB {
	q := s.db.Model(&models.BanEvent{})
	if f.IP != "" {
		q = q.Where("ip = ?", f.IP)
	}
	if f.Jail != "" {
		q = q.Where("jail = ?", f.Jail)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	// Timestamps are stored as UTC text, so bounds must be UTC too for the
	// string comparison to order instants.
	if f.Since != nil {
		q = q.Where("timestamp >= ?", f.Since.UTC())
	}
	if f.Until != nil {
		q = q.Where("timestamp < ?", f.Until.UTC())
	}
	return q
}

// Query returns events matching f, newest first.
func (s *HistoryService) Query(f HistoryFilter) ([]models.BanEvent, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	q := s.filtered(f).Order("timestamp desc").Order("id desc")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []models.BanEvent
	if err := q.Find(&out).Error; err != nil {
		return nil, apperr.Storage("query history", err)
	}
	return out, nil
}

// TotalBanCount counts every stored ban action.
func (s *HistoryService) TotalBanCount() (int64, error) {
	return s.countBans(HistoryFilter{})
}

// CountBansSince counts ban actions at or after since.
func (s *HistoryService) CountBansSince(since time.Time) (int64, error) {
	return s.countBans(HistoryFilter{Since: &since})
}

func (s *HistoryService) countBans(f HistoryFilter) (int64, error) {
	if err := s.ensureSchema(); err != nil {
		return 0, err
	}
	f.Action = models.ActionBan
	var n int64
	if err := s.filtered(f).Count(&n).Error; err != nil {
		return 0, apperr.Storage("count bans", err)
	}
	return n, nil
}

type offenderRow struct {
	IP        string
	BanCount  int64
	FirstID   uint
	FirstSeen string
	LastSeen  string
	Jails     int64
}

// TopOffenders ranks addresses by ban count, keeping those with at least
// minCount bans. Ties keep insertion order.
func (s *HistoryService) TopOffenders(minCount int64, limit int) ([]Offender, error) {
	return s.offenders(HistoryFilter{}, minCount, limit)
}

// TopOffendersSince is TopOffenders restricted to bans at or after since.
func (s *HistoryService) TopOffendersSince(since time.Time, minCount int64, limit int) ([]Offender, error) {
	return s.offenders(HistoryFilter{Since: &since}, minCount, limit)
}

func (s *HistoryService) offenders(f HistoryFilter, minCount int64, limit int) ([]Offender, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	f.Action = models.ActionBan
	q := s.filtered(f).
		Select("ip, COUNT(*) AS ban_count, MIN(id) AS first_id, MIN(timestamp) AS first_seen, MAX(timestamp) AS last_seen, COUNT(DISTINCT jail) AS jails").
		Group("ip").
		Order("ban_count DESC").
		Order("first_id ASC")
	if minCount > 0 {
		q = q.Having("COUNT(*) >= ?", minCount)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []offenderRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, apperr.Storage("rank offenders", err)
	}
	out := make([]Offender, 0, len(rows))
	for _, r := range rows {
		out = append(out, Offender{
			IP:        r.IP,
			BanCount:  r.BanCount,
			FirstSeen: parseSQLiteTime(r.FirstSeen),
			LastSeen:  parseSQLiteTime(r.LastSeen),
			Jails:     r.Jails,
		})
	}
	return out, nil
}

// sqlite returns aggregated DATETIME columns as text.
func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// AttackStatistics groups bans by jail, by hour of day, and by day over the
// trailing seven days ending at now.
func (s *HistoryService) AttackStatistics(now time.Time) (AttackStatistics, error) {
	st := AttackStatistics{ByJail: map[string]int64{}}
	if err := s.ensureSchema(); err != nil {
		return st, err
	}

	var byJail []struct {
		Jail  string
		Count int64
	}
	err := s.filtered(HistoryFilter{Action: models.ActionBan}).
		Select("jail, COUNT(*) AS count").Group("jail").Scan(&byJail).Error
	if err != nil {
		return st, apperr.Storage("count bans by jail", err)
	}
	for _, r := range byJail {
		st.ByJail[r.Jail] = r.Count
		st.Total += r.Count
	}

	// Hour and day buckets are computed in Go so they follow the timestamps'
	// own zone rather than sqlite's UTC-only date functions.
	var stamps []time.Time
	err = s.filtered(HistoryFilter{Action: models.ActionBan}).Pluck("timestamp", &stamps).Error
	if err != nil {
		return st, apperr.Storage("load ban timestamps", err)
	}
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	start := today.AddDate(0, 0, -6)
	days := make(map[string]int64, 7)
	for _, ts := range stamps {
		ts = ts.In(loc)
		st.ByHour[ts.Hour()]++
		if !ts.Before(start) && ts.Before(today.AddDate(0, 0, 1)) {
			days[ts.Format("2006-01-02")]++
		}
	}
	for d := 0; d < 7; d++ {
		day := start.AddDate(0, 0, d).Format("2006-01-02")
		st.ByDay = append(st.ByDay, DayCount{Day: day, Count: days[day]})
	}

	if err := s.filtered(HistoryFilter{Action: models.ActionUnban}).Count(&st.Unbans).Error; err != nil {
		return st, apperr.Storage("count unbans", err)
	}
	return st, nil
}

// Export flattens matching events for reporting, newest first.
func (s *HistoryService) Export(f HistoryFilter) ([]ExportRow, error) {
	events, err := s.Query(f)
	if err != nil {
		return nil, err
	}
	rows := make([]ExportRow, 0, len(events))
	for _, ev := range events {
		row := ExportRow{
			Timestamp: ev.Timestamp.In(logparse.Location).Format(logparse.TimestampLayout),
			IP:        ev.IP,
			Jail:      ev.Jail,
			Action:    string(ev.Action),
			Reason:    ev.Reason,
			Source:    ev.Source,
		}
		if ev.DurationSeconds != nil {
			row.Duration = (time.Duration(*ev.DurationSeconds) * time.Second).String()
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteCSV writes Export(f) as CSV with a header line.
func (s *HistoryService) WriteCSV(w io.Writer, f HistoryFilter) error {
	rows, err := s.Export(f)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		header, err := csvutil.Header(ExportRow{}, "csv")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, strings.Join(header, ","))
		return err
	}
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// Purge deletes events older than before, or every event when before is nil.
func (s *HistoryService) Purge(before *time.Time) (int64, error) {
	if err := s.ensureSchema(); err != nil {
		return 0, err
	}
	q := s.db.Session(&gorm.Session{AllowGlobalUpdate: true})
	if before != nil {
		q = q.Where("timestamp < ?", before.UTC())
	}
	res := q.Delete(&models.BanEvent{})
	if res.Error != nil {
		return 0, apperr.Storage("purge history", res.Error)
	}
	logger.WithFields(map[string]interface{}{"deleted": res.RowsAffected}).Info("purged ban history")
	return res.RowsAffected, nil
}
