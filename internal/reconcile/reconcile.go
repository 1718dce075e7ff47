// Package reconcile is the Absence Reconciler. A sweep closes every open
// session whose end has passed and synthesizes an absent record for each
// enrolled person who never checked in.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/rollcall/internal/attendance"
	"github.com/zulandar/rollcall/internal/metrics"
	"github.com/zulandar/rollcall/internal/models"
	"github.com/zulandar/rollcall/internal/session"
	"github.com/zulandar/rollcall/internal/store"
	"go.uber.org/zap"
)

// DefaultClosingGrace is how long a session may sit in closing before a
// later sweep assumes its owner died and finishes it.
const DefaultClosingGrace = 30 * time.Minute

// Report summarizes one sweep.
type Report struct {
	SessionsClosed  int
	Recovered       int // stuck closing sessions finished by this sweep
	AbsencesCreated int
	Excused         int // absences annotated with an approved leave
	Failures        int
}

func (r Report) String() string {
	return fmt.Sprintf("closed %d session(s) (%d recovered), %d absence(s) created (%d excused), %d failure(s)",
		r.SessionsClosed, r.Recovered, r.AbsencesCreated, r.Excused, r.Failures)
}

// ReconcilerOpts holds parameters for creating a Reconciler.
type ReconcilerOpts struct {
	Store        *store.Store
	Registry     *session.Registry
	Recorder     *attendance.Recorder
	ClosingGrace time.Duration
	Log          *zap.Logger
	Metrics      *metrics.Metrics
}

// Reconciler runs absence sweeps.
type Reconciler struct {
	people   store.People
	leaves   store.Leaves
	registry *session.Registry
	recorder *attendance.Recorder
	grace    time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// NewReconciler creates a Reconciler.
func NewReconciler(opts ReconcilerOpts) (*Reconciler, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("reconcile: store is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("reconcile: registry is required")
	}
	if opts.Recorder == nil {
		return nil, fmt.Errorf("reconcile: recorder is required")
	}
	r := &Reconciler{
		people:   opts.Store.People,
		leaves:   opts.Store.Leaves,
		registry: opts.Registry,
		recorder: opts.Recorder,
		grace:    opts.ClosingGrace,
		log:      opts.Log,
		metrics:  opts.Metrics,
	}
	if r.grace <= 0 {
		r.grace = DefaultClosingGrace
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	r.log = r.log.Named("reconcile")
	return r, nil
}

// Sweep reconciles every session due at now. It is safe to run repeatedly
// and concurrently: a session is processed only by the sweep that moves it
// from open to closing, and absence writes never replace existing records.
// Item failures are logged and counted; only a failure to list sessions is
// returned.
func (r *Reconciler) Sweep(ctx context.Context, now time.Time) (Report, error) {
	defer r.metrics.ObserveSweep("absences", time.Now())
	var rep Report

	due, err := r.registry.ListDueForClosing(ctx, now)
	if err != nil {
		return rep, fmt.Errorf("reconcile: list due sessions: %w", err)
	}
	for i := range due {
		sess := &due[i]
		claimed, err := r.registry.BeginClosing(ctx, sess.ID)
		if err != nil {
			rep.Failures++
			r.log.Error("claim session", zap.String("session", sess.ID), zap.Error(err))
			continue
		}
		if !claimed {
			r.log.Debug("session claimed by another sweep", zap.String("session", sess.ID))
			continue
		}
		if r.closeSession(ctx, sess, &rep) {
			rep.SessionsClosed++
		}
	}

	stuck, err := r.registry.ListStuckClosing(ctx, now.Add(-r.grace))
	if err != nil {
		rep.Failures++
		r.log.Error("list stuck sessions", zap.Error(err))
		return rep, nil
	}
	for i := range stuck {
		sess := &stuck[i]
		r.log.Warn("recovering stuck session", zap.String("session", sess.ID), zap.Timep("closing_at", sess.ClosingAt))
		if r.closeSession(ctx, sess, &rep) {
			rep.SessionsClosed++
			rep.Recovered++
		}
	}

	if rep.SessionsClosed > 0 || rep.Failures > 0 {
		r.log.Info("absence sweep finished",
			zap.Int("closed", rep.SessionsClosed),
			zap.Int("absences", rep.AbsencesCreated),
			zap.Int("failures", rep.Failures))
	}
	return rep, nil
}

// closeSession writes absences for sess and marks it closed. When the
// roster cannot be read the session stays in closing so a later sweep can
// recover it after the grace period.
func (r *Reconciler) closeSession(ctx context.Context, sess *models.Session, rep *Report) bool {
	log := r.log.With(zap.String("session", sess.ID), zap.String("course", sess.CourseID))

	enrolled, err := r.people.EnrolledInCourse(ctx, sess.CourseID)
	if err != nil {
		rep.Failures++
		log.Error("list enrolled persons", zap.Error(err))
		return false
	}

	course, err := r.registry.Course(ctx, sess)
	if err != nil {
		// Absences are still written; only the notification text needs it.
		log.Warn("load course", zap.Error(err))
		course = &models.Course{ID: sess.CourseID, Subject: sess.CourseID}
	}

	for i := range enrolled {
		r.markAbsent(ctx, log, sess, course, &enrolled[i], rep)
	}

	if err := r.registry.MarkClosed(ctx, sess.ID); err != nil {
		rep.Failures++
		log.Error("mark session closed", zap.Error(err))
		return false
	}
	return true
}

func (r *Reconciler) markAbsent(ctx context.Context, log *zap.Logger, sess *models.Session, course *models.Course, p *models.Person, rep *Report) {
	note := ""
	leave, err := r.leaves.Approved(ctx, p.ID, sess.Date)
	if err != nil {
		log.Warn("leave lookup", zap.String("person", p.ID), zap.Error(err))
	}
	if leave != nil {
		note = "leave: " + leave.Reason
	}

	created, err := r.recorder.RecordAbsence(ctx, sess, p.ID, note)
	if err != nil {
		rep.Failures++
		log.Error("record absence", zap.String("person", p.ID), zap.Error(err))
		return
	}
	if !created {
		return
	}

	rep.AbsencesCreated++
	r.metrics.ObserveAbsence(leave != nil)
	if leave != nil {
		rep.Excused++
		return
	}
	r.recorder.Notify(ctx, p, attendance.AbsenceMessage(course, sess.Date))
}
