// Package store is the identity store adapter: one repository interface per
// entity, with GORM implementations. Repositories are row-oriented and do
// not share transactions across tables.
package store

import (
	"context"
	"time"

	"github.com/zulandar/rollcall/internal/models"
	"gorm.io/gorm"
)

// People reads and mutates Person rows.
type People interface {
	Get(ctx context.Context, id string) (*models.Person, error)
	GetByToken(ctx context.Context, token string) (*models.Person, error)
	Create(ctx context.Context, p *models.Person) error
	// Bind links token to the person and marks them active, replacing any
	// previous token.
	Bind(ctx context.Context, id, token, platform string, at time.Time) error
	Unbind(ctx context.Context, id string) error
	JoinClass(ctx context.Context, id, classCode string) error
	LeaveClass(ctx context.Context, id, classCode string) error
	// ApplyOutcome increments the counter for status and recomputes the
	// attendance rate in one statement.
	ApplyOutcome(ctx context.Context, id string, status models.AttendanceStatus) error
	// EnrolledInCourse returns every person belonging to any class that
	// owns the course, ordered by id. Unbound persons are included; an
	// unbind removes the chat link, not the enrolment.
	EnrolledInCourse(ctx context.Context, courseID string) ([]models.Person, error)
}

// Classes reads Class rows.
type Classes interface {
	List(ctx context.Context) ([]models.Class, error)
	Get(ctx context.Context, code string) (*models.Class, error)
	Ensure(ctx context.Context, code string) (*models.Class, error)
}

// Courses reads Course rows.
type Courses interface {
	Get(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context) ([]models.Course, error)
	ActiveOn(ctx context.Context, weekday time.Weekday) ([]models.Course, error)
	ForClasses(ctx context.Context, classCodes []string) ([]models.Course, error)
}

// Sessions reads and transitions check-in sessions.
type Sessions interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	// FindActive returns the most recently opened non-closed session for
	// course and date, or nil when there is none.
	FindActive(ctx context.Context, courseID, date string) (*models.Session, error)
	// CreateExclusive inserts s unless an active session exists for the
	// same course and date, in which case it returns a ConflictError.
	CreateExclusive(ctx context.Context, s *models.Session) error
	// Transition moves the session from one of the from states to to and
	// reports whether this caller performed the update.
	Transition(ctx context.Context, id string, to models.SessionState, at time.Time, from ...models.SessionState) (bool, error)
	ListOpenEndedBefore(ctx context.Context, t time.Time) ([]models.Session, error)
	ListClosingSince(ctx context.Context, before time.Time) ([]models.Session, error)
}

// Attendance reads and inserts attendance records.
type Attendance interface {
	Get(ctx context.Context, sessionID, personID string) (*models.AttendanceRecord, error)
	// InsertIfAbsent inserts rec and reports false when a record for the
	// same session and person already exists.
	InsertIfAbsent(ctx context.Context, rec *models.AttendanceRecord) (bool, error)
	RecentByPerson(ctx context.Context, personID string, limit int) ([]models.AttendanceRecord, error)
	BySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error)
}

// Ledger is the append-only dedup ledger for scheduled actions.
type Ledger interface {
	Has(ctx context.Context, courseID, date string, action models.LedgerAction) (bool, error)
	// Append writes the entry; an existing identical entry is not an error.
	Append(ctx context.Context, courseID, date string, action models.LedgerAction) error
}

// Leaves reads leave requests.
type Leaves interface {
	Approved(ctx context.Context, personID, date string) (*models.LeaveRequest, error)
}

// Store bundles the repositories.
type Store struct {
	People     People
	Classes    Classes
	Courses    Courses
	Sessions   Sessions
	Attendance Attendance
	Ledger     Ledger
	Leaves     Leaves
}

// NewGorm returns a Store backed by db.
func NewGorm(db *gorm.DB) *Store {
	return &Store{
		People:     &gormPeople{db: db},
		Classes:    &gormClasses{db: db},
		Courses:    &gormCourses{db: db},
		Sessions:   &gormSessions{db: db},
		Attendance: &gormAttendance{db: db},
		Ledger:     &gormLedger{db: db},
		Leaves:     &gormLeaves{db: db},
	}
}
