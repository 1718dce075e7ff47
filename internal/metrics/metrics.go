// Package metrics holds the Prometheus collectors for attendance activity.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rollcall"

// Metrics owns a private registry so tests and multiple instances never
// collide on the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	CheckIns             *prometheus.CounterVec
	GeofenceRejections   prometheus.Counter
	Absences             *prometheus.CounterVec
	SessionsOpened       prometheus.Counter
	RemindersSent        prometheus.Counter
	NotificationFailures prometheus.Counter
	SweepDuration        *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CheckIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkins_total",
			Help:      "Attendance records created by check-in, by status.",
		}, []string{"status"}),
		GeofenceRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geofence_rejections_total",
			Help:      "Check-ins refused by a course location policy.",
		}),
		Absences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "absences_total",
			Help:      "Absences synthesized by the absence sweep.",
		}, []string{"excused"}),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Check-in sessions opened.",
		}),
		RemindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Check-in prompts delivered by the reminder sweep.",
		}),
		NotificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Outbound notifications that could not be delivered.",
		}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of scheduled sweeps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sweep"}),
	}
	m.registry.MustRegister(
		m.CheckIns,
		m.GeofenceRejections,
		m.Absences,
		m.SessionsOpened,
		m.RemindersSent,
		m.NotificationFailures,
		m.SweepDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCheckIn(status string) {
	if m == nil {
		return
	}
	m.CheckIns.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveGeofenceRejection() {
	if m == nil {
		return
	}
	m.GeofenceRejections.Inc()
}

func (m *Metrics) ObserveAbsence(excused bool) {
	if m == nil {
		return
	}
	label := "false"
	if excused {
		label = "true"
	}
	m.Absences.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveSessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
}

func (m *Metrics) ObserveReminderSent() {
	if m == nil {
		return
	}
	m.RemindersSent.Inc()
}

func (m *Metrics) ObserveNotificationFailure() {
	if m == nil {
		return
	}
	m.NotificationFailures.Inc()
}

// ObserveSweep records how long the named sweep took since start.
func (m *Metrics) ObserveSweep(sweep string, start time.Time) {
	if m == nil {
		return
	}
	m.SweepDuration.WithLabelValues(sweep).Observe(time.Since(start).Seconds())
}
