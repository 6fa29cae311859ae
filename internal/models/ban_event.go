package models

import (
	"time"
)

// BanAction is the kind of enforcement action a BanEvent records.
type BanAction string

const (
	ActionBan   BanAction = "ban"
	ActionUnban BanAction = "unban"
)

// Valid reports whether a is one of the known actions.
func (a BanAction) Valid() bool {
	return a == ActionBan || a == ActionUnban
}

// Event sources.
const (
	SourceLog  = "log"
	SourceLive = "live"
	SourceSeed = "seed"
)

// UnknownJail is recorded when a log line carries no jail tag.
const UnknownJail = "unknown"

// BanEvent is one ban or unban observed in the security log or issued through
// the engine. Rows are append-only and only removed by a bulk purge.
type BanEvent struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	Timestamp       time.Time `json:"timestamp" gorm:"index;not null"`
	IP              string    `json:"ip" gorm:"index;not null"`
	Jail            string    `json:"jail" gorm:"index;not null"`
	Action          BanAction `json:"action" gorm:"index;not null"`
	DurationSeconds *int64    `json:"duration_seconds,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Source          string    `json:"source"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName pins the table name independent of gorm's pluralisation rules.
func (BanEvent) TableName() string { return "ban_events" }

// DedupKey identifies an event for import de-duplication.
func (e BanEvent) DedupKey() string {
	return e.Timestamp.UTC().Format(time.RFC3339) + "|" + e.IP + "|" + e.Jail + "|" + string(e.Action)
}
