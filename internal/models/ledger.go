package models

import "time"

// LedgerAction names a scheduled side effect tracked in the dedup ledger.
type LedgerAction string

const (
	ActionReminder LedgerAction = "reminder"
)

// LedgerEntry records that a scheduled action already ran for a course on
// a date. Entries are append-only.
type LedgerEntry struct {
	ID        uint         `gorm:"primaryKey;autoIncrement"`
	CourseID  string       `gorm:"size:32;not null;uniqueIndex:idx_ledger_course_date_action"`
	Date      string       `gorm:"size:10;not null;uniqueIndex:idx_ledger_course_date_action"`
	Action    LedgerAction `gorm:"size:16;not null;uniqueIndex:idx_ledger_course_date_action"`
	CreatedAt time.Time
}
