package models

import "time"

// SessionState is the lifecycle state of a check-in session.
type SessionState string

const (
	SessionOpen    SessionState = "open"
	SessionClosing SessionState = "closing"
	SessionClosed  SessionState = "closed"
)

// Valid reports whether s is a known session state.
func (s SessionState) Valid() bool {
	switch s {
	case SessionOpen, SessionClosing, SessionClosed:
		return true
	}
	return false
}

// Session is one dated instantiation of a Course open for check-in.
//
// ActiveKey holds "courseID|date" while the session is open or closing and
// is cleared on close; its unique index guarantees at most one active
// session per course and date at the storage layer.
type Session struct {
	ID        string       `gorm:"primaryKey;size:36"`
	CourseID  string       `gorm:"size:32;not null;index:idx_session_course_date"`
	Date      string       `gorm:"size:10;not null;index:idx_session_course_date"` // YYYY-MM-DD
	StartAt   time.Time    `gorm:"not null"`
	EndAt     time.Time    `gorm:"not null;index"`
	State     SessionState `gorm:"size:16;not null;default:open;index"`
	ActiveKey *string      `gorm:"size:48;uniqueIndex"`
	OpenedAt  time.Time    `gorm:"not null"`
	ClosingAt *time.Time
	ClosedAt  *time.Time
}

// TableName pins the table name.
func (Session) TableName() string { return "checkin_sessions" }

// ActiveKeyFor builds the uniqueness key for an active session.
func ActiveKeyFor(courseID, date string) string {
	return courseID + "|" + date
}
