// Package attendance is the Attendance Recorder. It classifies check-ins as
// on-time or late, persists at most one record per session and person, and
// keeps the person's rolling counters current.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/zulandar/rollcall/internal/apperr"
	"github.com/zulandar/rollcall/internal/geo"
	"github.com/zulandar/rollcall/internal/metrics"
	"github.com/zulandar/rollcall/internal/models"
	"github.com/zulandar/rollcall/internal/store"
	"go.uber.org/zap"
)

// lockStripes is the number of mutexes guarding record creation.
const lockStripes = 64

// Notifier delivers a direct message to a linked messaging token.
type Notifier interface {
	Push(ctx context.Context, token, text string) error
}

// Result is the outcome of a successful check-in.
type Result struct {
	Status      models.AttendanceStatus
	MinutesLate int
	Record      *models.AttendanceRecord
	Course      *models.Course
}

// RecorderOpts holds parameters for creating a Recorder.
type RecorderOpts struct {
	Store    *store.Store
	Notifier Notifier // optional; nil disables notifications
	Location *time.Location
	Now      func() time.Time
	Log      *zap.Logger
	Metrics  *metrics.Metrics
}

// Recorder writes attendance records.
type Recorder struct {
	people     store.People
	sessions   store.Sessions
	courses    store.Courses
	attendance store.Attendance
	notifier   Notifier
	loc        *time.Location
	now        func() time.Time
	log        *zap.Logger
	metrics    *metrics.Metrics

	locks [lockStripes]sync.Mutex
}

// NewRecorder creates a Recorder.
func NewRecorder(opts RecorderOpts) (*Recorder, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("attendance: store is required")
	}
	r := &Recorder{
		people:     opts.Store.People,
		sessions:   opts.Store.Sessions,
		courses:    opts.Store.Courses,
		attendance: opts.Store.Attendance,
		notifier:   opts.Notifier,
		loc:        opts.Location,
		now:        opts.Now,
		log:        opts.Log,
		metrics:    opts.Metrics,
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

// Record checks personID in to sessionID. Admission (geofence) must already
// have been decided by the caller; loc is stored when supplied. A second
// attempt for the same pair returns *apperr.DuplicateError with the prior
// status and changes nothing.
func (r *Recorder) Record(ctx context.Context, sessionID, personID string, loc *geo.Point) (Result, error) {
	mu := r.lockFor(sessionID, personID)
	mu.Lock()
	defer mu.Unlock()

	if err := r.checkDuplicate(ctx, sessionID, personID); err != nil {
		return Result{}, err
	}

	person, err := r.people.Get(ctx, personID)
	if err != nil {
		return Result{}, err
	}
	sess, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	course, err := r.courses.Get(ctx, sess.CourseID)
	if err != nil {
		return Result{}, err
	}

	now := r.now()
	status, minutesLate := Classify(wallClock(sess.StartAt, r.loc), wallClock(now, r.loc), course.LateThresholdMinutes)
	rec := &models.AttendanceRecord{
		SessionID:   sessionID,
		PersonID:    personID,
		Status:      status,
		MinutesLate: minutesLate,
		RecordedAt:  now,
	}
	if loc != nil {
		lat, lon := loc.Lat, loc.Lon
		rec.Latitude, rec.Longitude = &lat, &lon
	}

	created, err := r.attendance.InsertIfAbsent(ctx, rec)
	if err != nil {
		return Result{}, fmt.Errorf("attendance: record %s/%s: %w", sessionID, personID, err)
	}
	if !created {
		// Another writer outside this process won the insert.
		return Result{}, r.duplicateFromStore(ctx, sessionID, personID)
	}

	r.applyOutcome(ctx, personID, status)
	r.metrics.ObserveCheckIn(string(status))
	r.log.Info("attendance recorded",
		zap.String("session", sessionID),
		zap.String("person", personID),
		zap.String("status", string(status)),
		zap.Int("minutes_late", minutesLate),
	)

	r.notify(ctx, person, CheckInMessage(course, status, minutesLate))
	return Result{Status: status, MinutesLate: minutesLate, Record: rec, Course: course}, nil
}

// RecordAbsence writes an absence for personID through the same guarded
// path as Record. It reports whether a new record was created; an existing
// record of any status is left untouched. No notification is sent.
func (r *Recorder) RecordAbsence(ctx context.Context, sess *models.Session, personID, note string) (bool, error) {
	mu := r.lockFor(sess.ID, personID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := r.attendance.Get(ctx, sess.ID, personID); err == nil {
		return false, nil
	} else if !apperr.IsNotFound(err) {
		return false, fmt.Errorf("attendance: absence lookup %s/%s: %w", sess.ID, personID, err)
	}

	rec := &models.AttendanceRecord{
		SessionID:  sess.ID,
		PersonID:   personID,
		Status:     models.StatusAbsent,
		Note:       note,
		RecordedAt: r.now(),
	}
	created, err := r.attendance.InsertIfAbsent(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("attendance: record absence %s/%s: %w", sess.ID, personID, err)
	}
	if !created {
		return false, nil
	}
	r.applyOutcome(ctx, personID, models.StatusAbsent)
	return true, nil
}

// Recent returns the person's latest records, newest first.
func (r *Recorder) Recent(ctx context.Context, personID string, limit int) ([]models.AttendanceRecord, error) {
	return r.attendance.RecentByPerson(ctx, personID, limit)
}

// Notify pushes text to the person's linked token. Delivery is best
// effort: failures are logged and counted, never returned.
func (r *Recorder) Notify(ctx context.Context, person *models.Person, text string) {
	r.notify(ctx, person, text)
}

func (r *Recorder) notify(ctx context.Context, person *models.Person, text string) {
	if r.notifier == nil || !person.Linked() {
		return
	}
	if err := r.notifier.Push(ctx, person.Token(), text); err != nil {
		failure := &apperr.DeliveryFailure{Token: person.Token(), Err: err}
		r.metrics.ObserveNotificationFailure()
		r.log.Warn("notification failed", zap.String("person", person.ID), zap.Error(failure))
	}
}

func (r *Recorder) applyOutcome(ctx context.Context, personID string, status models.AttendanceStatus) {
	// The record is authoritative; a counter failure is logged, not fatal.
	if err := r.people.ApplyOutcome(ctx, personID, status); err != nil {
		r.log.Error("update attendance counters",
			zap.String("person", personID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

func (r *Recorder) checkDuplicate(ctx context.Context, sessionID, personID string) error {
	existing, err := r.attendance.Get(ctx, sessionID, personID)
	if err == nil {
		return &apperr.DuplicateError{SessionID: sessionID, PersonID: personID, Status: existing.Status}
	}
	var nf *apperr.NotFoundError
	if errors.As(err, &nf) {
		return nil
	}
	return fmt.Errorf("attendance: lookup %s/%s: %w", sessionID, personID, err)
}

func (r *Recorder) duplicateFromStore(ctx context.Context, sessionID, personID string) error {
	if err := r.checkDuplicate(ctx, sessionID, personID); err != nil {
		return err
	}
	return &apperr.DuplicateError{SessionID: sessionID, PersonID: personID}
}

func (r *Recorder) lockFor(sessionID, personID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(personID))
	return &r.locks[h.Sum32()%lockStripes]
}

// Classify derives the status for a check-in at now for a session starting
// at start. Elapsed time is floored to whole minutes and the threshold is
// exclusive: exactly threshold minutes is still on time.
func Classify(start, now time.Time, thresholdMinutes int) (models.AttendanceStatus, int) {
	elapsed := int(now.Sub(start) / time.Minute)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > thresholdMinutes {
		return models.StatusLate, elapsed
	}
	return models.StatusOnTime, 0
}

// wallClock re-expresses t's civil time in loc as a UTC instant so that
// differences follow the wall clock across DST changes.
func wallClock(t time.Time, loc *time.Location) time.Time {
	c := t.In(loc)
	return time.Date(c.Year(), c.Month(), c.Day(), c.Hour(), c.Minute(), c.Second(), c.Nanosecond(), time.UTC)
}
