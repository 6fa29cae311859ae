package services

import (
	"gorm.io/gorm"

	"github.com/Wikid82/jailkeeper/internal/config"
	"github.com/Wikid82/jailkeeper/internal/engine"
)

// Services bundles every service built from one Config, so the HTTP API
// and the CLI share the same wiring.
type Services struct {
	History       *HistoryService
	Whitelist     *WhitelistService
	Backups       *BackupService
	Ignore        *IgnoreDirectiveService
	PermanentBans *PermanentBanService
	Bans          *BanService
	Jails         *JailService
	Analytics     *AnalyticsService
	Notifications *NotificationService
	Follower      *LogFollower
}

// New wires the services. geo may be nil when no GeoIP database is configured.
func New(cfg config.Config, db *gorm.DB, client engine.Client, geo CountryLookup) *Services {
	history := NewHistoryService(db)
	whitelist := NewWhitelistService(cfg.WhitelistFile)
	backups := NewBackupService(cfg)
	analytics := NewAnalyticsService(history, client, geo)
	return &Services{
		History:       history,
		Whitelist:     whitelist,
		Backups:       backups,
		Ignore:        NewIgnoreDirectiveService(cfg, whitelist, backups),
		PermanentBans: NewPermanentBanService(cfg.PermanentBansFile, client),
		Bans:          NewBanService(client, history),
		Jails:         NewJailService(cfg, backups),
		Analytics:     analytics,
		Notifications: NewNotificationService(cfg.NotifyURLs, analytics),
		Follower:      NewLogFollower(cfg.SecurityLogPath, history),
	}
}
