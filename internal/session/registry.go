// Package session is the Session Registry: it resolves a course and civil
// date to the active check-in session and owns the session lifecycle
// open -> closing -> closed.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/rollcall/internal/apperr"
	"github.com/zulandar/rollcall/internal/models"
	"github.com/zulandar/rollcall/internal/store"
	"go.uber.org/zap"
)

// DateLayout is the civil date format used for Session.Date.
const DateLayout = "2006-01-02"

// RegistryOpts holds parameters for creating a Registry.
type RegistryOpts struct {
	Sessions store.Sessions
	Courses  store.Courses
	Location *time.Location   // civil timezone; defaults to UTC
	Now      func() time.Time // defaults to time.Now
	Log      *zap.Logger
}

// Registry manages check-in sessions.
type Registry struct {
	sessions store.Sessions
	courses  store.Courses
	loc      *time.Location
	now      func() time.Time
	log      *zap.Logger
}

// NewRegistry creates a Registry.
func NewRegistry(opts RegistryOpts) (*Registry, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("session: sessions store is required")
	}
	if opts.Courses == nil {
		return nil, fmt.Errorf("session: courses store is required")
	}
	r := &Registry{
		sessions: opts.Sessions,
		courses:  opts.Courses,
		loc:      opts.Location,
		now:      opts.Now,
		log:      opts.Log,
	}
	if r.loc == nil {
		r.loc = time.UTC
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r, nil
}

// Location returns the civil timezone used for session windows.
func (r *Registry) Location() *time.Location { return r.loc }

// Now returns the current instant in the civil timezone.
func (r *Registry) Now() time.Time { return r.now().In(r.loc) }

// Today returns the current civil date key.
func (r *Registry) Today() string { return DateKey(r.now(), r.loc) }

// FindActive returns the most recently opened non-closed session for the
// course and date, or nil when there is none.
func (r *Registry) FindActive(ctx context.Context, courseID, date string) (*models.Session, error) {
	return r.sessions.FindActive(ctx, courseID, date)
}

// Get returns the session with id.
func (r *Registry) Get(ctx context.Context, id string) (*models.Session, error) {
	return r.sessions.Get(ctx, id)
}

// Open creates an open session for the course and date. If an open or
// closing session already exists it returns *apperr.ConflictError carrying
// that session; callers treat the conflict as a no-op.
func (r *Registry) Open(ctx context.Context, courseID, date string, startAt, endAt time.Time) (*models.Session, error) {
	if _, err := time.ParseInLocation(DateLayout, date, r.loc); err != nil {
		return nil, apperr.NewValidationError("date", "invalid date %q: want YYYY-MM-DD", date)
	}
	if !endAt.After(startAt) {
		return nil, apperr.NewValidationError("end", "session end %s is not after start %s", endAt.Format(time.RFC3339), startAt.Format(time.RFC3339))
	}

	sess := &models.Session{
		ID:       uuid.NewString(),
		CourseID: courseID,
		Date:     date,
		StartAt:  startAt,
		EndAt:    endAt,
		OpenedAt: r.now(),
	}
	if err := r.sessions.CreateExclusive(ctx, sess); err != nil {
		return nil, err
	}
	r.log.Info("session opened",
		zap.String("session", sess.ID),
		zap.String("course", courseID),
		zap.String("date", date),
	)
	return sess, nil
}

// OpenForCourse opens a session for course on date using the course's
// weekly time window.
func (r *Registry) OpenForCourse(ctx context.Context, course *models.Course, date string) (*models.Session, error) {
	start, end, err := Window(course, date, r.loc)
	if err != nil {
		return nil, err
	}
	return r.Open(ctx, course.ID, date, start, end)
}

// OpenOrReuse opens a session for course on date, returning the existing
// active session instead when one is already open.
func (r *Registry) OpenOrReuse(ctx context.Context, course *models.Course, date string) (*models.Session, bool, error) {
	sess, err := r.OpenForCourse(ctx, course, date)
	if err == nil {
		return sess, true, nil
	}
	var conflict *apperr.ConflictError
	if errors.As(err, &conflict) && conflict.Existing != nil {
		return conflict.Existing, false, nil
	}
	return nil, false, err
}

// Resolve returns the session referenced by a check-in code. The session
// must belong to courseID, must not be closed and must not have ended.
func (r *Registry) Resolve(ctx context.Context, courseID, sessionID string) (*models.Session, error) {
	sess, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.CourseID != courseID {
		return nil, &apperr.NotFoundError{Entity: "session", ID: sessionID}
	}
	if sess.State == models.SessionClosed || !r.now().Before(sess.EndAt) {
		return nil, &apperr.NotFoundError{Entity: "session", ID: sessionID}
	}
	return sess, nil
}

// BeginClosing claims the session for reconciliation. It reports false
// when the session was no longer open, meaning another sweep owns it.
func (r *Registry) BeginClosing(ctx context.Context, id string) (bool, error) {
	return r.sessions.Transition(ctx, id, models.SessionClosing, r.now(), models.SessionOpen)
}

// MarkClosed closes a session that is closing, or open when a previous
// sweep never claimed it.
func (r *Registry) MarkClosed(ctx context.Context, id string) error {
	ok, err := r.sessions.Transition(ctx, id, models.SessionClosed, r.now(), models.SessionClosing, models.SessionOpen)
	if err != nil {
		return err
	}
	if !ok {
		r.log.Debug("session already closed", zap.String("session", id))
	}
	return nil
}

// ListDueForClosing returns open sessions whose end has passed at now.
func (r *Registry) ListDueForClosing(ctx context.Context, now time.Time) ([]models.Session, error) {
	return r.sessions.ListOpenEndedBefore(ctx, now)
}

// ListStuckClosing returns sessions that entered closing at or before
// olderThan and never finished.
func (r *Registry) ListStuckClosing(ctx context.Context, olderThan time.Time) ([]models.Session, error) {
	return r.sessions.ListClosingSince(ctx, olderThan)
}

// Course returns the course owning sess.
func (r *Registry) Course(ctx context.Context, sess *models.Session) (*models.Course, error) {
	return r.courses.Get(ctx, sess.CourseID)
}

// DateKey returns the civil date of t in loc as YYYY-MM-DD.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// Window returns the start and end instants of course on the civil date
// in loc. An end time at or before the start wraps to the next day.
func Window(course *models.Course, date string, loc *time.Location) (start, end time.Time, err error) {
	day, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.NewValidationError("date", "invalid date %q: want YYYY-MM-DD", date)
	}
	sh, sm, err := models.ClockTime(course.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("session: course %s start: %w", course.ID, err)
	}
	eh, em, err := models.ClockTime(course.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("session: course %s end: %w", course.ID, err)
	}
	y, mo, d := day.Date()
	start = time.Date(y, mo, d, sh, sm, 0, 0, loc)
	end = time.Date(y, mo, d, eh, em, 0, 0, loc)
	if !end.After(start) {
		end = time.Date(y, mo, d+1, eh, em, 0, 0, loc)
	}
	return start, end, nil
}
