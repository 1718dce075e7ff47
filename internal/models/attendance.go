package models

import "time"

// AttendanceStatus is the terminal classification of an attendance record.
type AttendanceStatus string

const (
	StatusOnTime AttendanceStatus = "on-time"
	StatusLate   AttendanceStatus = "late"
	StatusAbsent AttendanceStatus = "absent"
)

// Valid reports whether s is a known attendance status.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusOnTime, StatusLate, StatusAbsent:
		return true
	}
	return false
}

// AttendanceRecord is one person's outcome for one session. The composite
// unique index is the storage-level half of the at-most-once guarantee.
type AttendanceRecord struct {
	ID          uint             `gorm:"primaryKey;autoIncrement"`
	SessionID   string           `gorm:"size:36;not null;uniqueIndex:idx_attendance_session_person"`
	PersonID    string           `gorm:"size:10;not null;uniqueIndex:idx_attendance_session_person;index"`
	Status      AttendanceStatus `gorm:"size:16;not null;index"`
	MinutesLate int              `gorm:"not null;default:0"`
	Latitude    *float64
	Longitude   *float64
	Note        string    `gorm:"size:255"`
	RecordedAt  time.Time `gorm:"not null;index"`
}
