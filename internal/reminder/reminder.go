// Package reminder is the Reminder Scheduler. Each sweep opens the check-in
// session for courses about to start and prompts every enrolled, linked
// student with a check-in code. The dedup ledger makes repeated sweeps for
// the same course and date a no-op.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/rollcall/internal/attendance"
	"github.com/zulandar/rollcall/internal/bot"
	"github.com/zulandar/rollcall/internal/metrics"
	"github.com/zulandar/rollcall/internal/models"
	"github.com/zulandar/rollcall/internal/session"
	"github.com/zulandar/rollcall/internal/store"
	"go.uber.org/zap"
)

// Defaults applied when SchedulerOpts leaves a field zero.
const (
	DefaultRemindMinutes = 10
	DefaultTolerance     = 5 * time.Minute
)

// Report summarizes one sweep.
type Report struct {
	Due            int // courses inside their reminder window
	AlreadySent    int // skipped because the ledger has an entry
	SessionsOpened int
	PromptsSent    int
	PromptFailures int
	Failures       int
}

func (r Report) String() string {
	return fmt.Sprintf("%d course(s) due (%d already reminded), %d session(s) opened, %d prompt(s) sent, %d prompt failure(s), %d failure(s)",
		r.Due, r.AlreadySent, r.SessionsOpened, r.PromptsSent, r.PromptFailures, r.Failures)
}

// SchedulerOpts holds parameters for creating a Scheduler.
type SchedulerOpts struct {
	Store         *store.Store
	Registry      *session.Registry
	Notifier      attendance.Notifier // optional; nil opens sessions without prompting
	RemindMinutes int                 // lead time for courses without their own
	Tolerance     time.Duration
	Log           *zap.Logger
	Metrics       *metrics.Metrics
}

// Scheduler runs reminder sweeps.
type Scheduler struct {
	courses   store.Courses
	people    store.People
	ledger    store.Ledger
	registry  *session.Registry
	notifier  attendance.Notifier
	remind    int
	tolerance time.Duration
	log       *zap.Logger
	metrics   *metrics.Metrics
}

// NewScheduler creates a Scheduler.
func NewScheduler(opts SchedulerOpts) (*Scheduler, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("reminder: store is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("reminder: registry is required")
	}
	s := &Scheduler{
		courses:   opts.Store.Courses,
		people:    opts.Store.People,
		ledger:    opts.Store.Ledger,
		registry:  opts.Registry,
		notifier:  opts.Notifier,
		remind:    opts.RemindMinutes,
		tolerance: opts.Tolerance,
		log:       opts.Log,
		metrics:   opts.Metrics,
	}
	if s.remind <= 0 {
		s.remind = DefaultRemindMinutes
	}
	if s.tolerance <= 0 {
		s.tolerance = DefaultTolerance
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("reminder")
	return s, nil
}

// Sweep reminds every course whose reminder time is within the tolerance
// of now. Today's and tomorrow's courses are both considered so a class
// shortly after midnight is reminded the evening before.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (Report, error) {
	defer s.metrics.ObserveSweep("reminders", time.Now())
	var rep Report

	loc := s.registry.Location()
	local := now.In(loc)
	for _, day := range []time.Time{local, local.AddDate(0, 0, 1)} {
		date := session.DateKey(day, loc)
		courses, err := s.courses.ActiveOn(ctx, day.Weekday())
		if err != nil {
			return rep, fmt.Errorf("reminder: courses for %s: %w", date, err)
		}
		for i := range courses {
			course := &courses[i]
			due, err := s.due(course, date, now)
			if err != nil {
				rep.Failures++
				s.log.Error("course window", zap.String("course", course.ID), zap.Error(err))
				continue
			}
			if due {
				rep.Due++
				s.remindCourse(ctx, course, date, &rep)
			}
		}
	}

	if rep.Due > 0 {
		s.log.Info("reminder sweep finished",
			zap.Int("due", rep.Due),
			zap.Int("opened", rep.SessionsOpened),
			zap.Int("prompts", rep.PromptsSent),
			zap.Int("failures", rep.Failures))
	}
	return rep, nil
}

// due reports whether course's reminder for date fires within the
// tolerance of now.
func (s *Scheduler) due(course *models.Course, date string, now time.Time) (bool, error) {
	start, _, err := session.Window(course, date, s.registry.Location())
	if err != nil {
		return false, err
	}
	fireAt := start.Add(-time.Duration(s.leadMinutes(course)) * time.Minute)
	diff := now.Sub(fireAt)
	if diff < 0 {
		diff = -diff
	}
	return diff <= s.tolerance, nil
}

func (s *Scheduler) leadMinutes(course *models.Course) int {
	if course.RemindMinutes > 0 {
		return course.RemindMinutes
	}
	return s.remind
}

// remindCourse opens the session and prompts the roster. The ledger entry
// is written last so any failure before it is retried by the next sweep
// inside the window.
func (s *Scheduler) remindCourse(ctx context.Context, course *models.Course, date string, rep *Report) {
	log := s.log.With(zap.String("course", course.ID), zap.String("date", date))

	sent, err := s.ledger.Has(ctx, course.ID, date, models.ActionReminder)
	if err != nil {
		rep.Failures++
		log.Error("ledger lookup", zap.Error(err))
		return
	}
	if sent {
		rep.AlreadySent++
		return
	}

	sess, created, err := s.registry.OpenOrReuse(ctx, course, date)
	if err != nil {
		rep.Failures++
		log.Error("open session", zap.Error(err))
		return
	}
	if created {
		rep.SessionsOpened++
		s.metrics.ObserveSessionOpened()
	}

	enrolled, err := s.people.EnrolledInCourse(ctx, course.ID)
	if err != nil {
		rep.Failures++
		log.Error("list enrolled persons", zap.Error(err))
		return
	}

	text := PromptMessage(course, sess, s.registry.Location())
	for i := range enrolled {
		s.prompt(ctx, log, &enrolled[i], text, rep)
	}

	if err := s.ledger.Append(ctx, course.ID, date, models.ActionReminder); err != nil {
		rep.Failures++
		log.Error("ledger append", zap.Error(err))
	}
}

func (s *Scheduler) prompt(ctx context.Context, log *zap.Logger, p *models.Person, text string, rep *Report) {
	if s.notifier == nil || !p.Linked() {
		return
	}
	if err := s.notifier.Push(ctx, p.Token(), text); err != nil {
		rep.PromptFailures++
		s.metrics.ObserveNotificationFailure()
		log.Warn("prompt failed", zap.String("person", p.ID), zap.Error(err))
		return
	}
	rep.PromptsSent++
	s.metrics.ObserveReminderSent()
}

// PromptMessage is the check-in prompt sent to students. It carries the
// gps code; the direct code is shown at the venue only.
func PromptMessage(course *models.Course, sess *models.Session, loc *time.Location) string {
	code := bot.CheckinCode{Mode: bot.ModeGPS, CourseID: course.ID, SessionID: sess.ID}
	return fmt.Sprintf("%s starts at %s. To check in, send this code:\n%s",
		course.Subject, sess.StartAt.In(loc).Format("15:04"), code)
}
