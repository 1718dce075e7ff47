package dashboard

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/rollcall/internal/apperr"
	"github.com/zulandar/rollcall/internal/auth"
	"github.com/zulandar/rollcall/internal/bot"
	"github.com/zulandar/rollcall/internal/models"
	"github.com/zulandar/rollcall/internal/session"
	"github.com/zulandar/rollcall/internal/store"
	"go.uber.org/zap"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/healthz", handleHealth(opts.Checks))
	router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))

	if opts.TokenSecret == "" {
		opts.Log.Warn("dashboard token secret not set, /api disabled")
		return
	}
	api := router.Group("/api", auth.Bearer(opts.TokenSecret, opts.TokenIssuer, auth.RoleAdmin))
	api.POST("/sessions", handleOpenSession(opts))
	api.GET("/sessions/:id", handleGetSession(opts.Store, opts.Registry))
	api.GET("/sessions/:id/code", handleSessionCode(opts.Registry))
}

func handleHealth(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)

		failed := gin.H{}
		for _, name := range names {
			if err := checks[name](c.Request.Context()); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failed": failed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

type openSessionRequest struct {
	CourseID string `json:"course_id" binding:"required"`
	Date     string `json:"date"` // YYYY-MM-DD; defaults to today
}

type sessionView struct {
	ID       string              `json:"id"`
	CourseID string              `json:"course_id"`
	Date     string              `json:"date"`
	StartAt  time.Time           `json:"start_at"`
	EndAt    time.Time           `json:"end_at"`
	State    models.SessionState `json:"state"`
	OpenedAt time.Time           `json:"opened_at"`
	ClosedAt *time.Time          `json:"closed_at,omitempty"`
}

type recordView struct {
	PersonID    string                  `json:"person_id"`
	Status      models.AttendanceStatus `json:"status"`
	MinutesLate int                     `json:"minutes_late"`
	Note        string                  `json:"note,omitempty"`
	RecordedAt  time.Time               `json:"recorded_at"`
}

func newSessionView(s *models.Session, loc *time.Location) sessionView {
	v := sessionView{
		ID:       s.ID,
		CourseID: s.CourseID,
		Date:     s.Date,
		StartAt:  s.StartAt.In(loc),
		EndAt:    s.EndAt.In(loc),
		State:    s.State,
		OpenedAt: s.OpenedAt.In(loc),
	}
	if s.ClosedAt != nil {
		t := s.ClosedAt.In(loc)
		v.ClosedAt = &t
	}
	return v
}

// handleOpenSession is the manual session trigger. An already active
// session for the course and date is returned with 200 instead of 201.
func handleOpenSession(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req openSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Date == "" {
			req.Date = opts.Registry.Today()
		}

		ctx := c.Request.Context()
		course, err := opts.Store.Courses.Get(ctx, req.CourseID)
		if err != nil {
			writeError(c, opts.Log, err)
			return
		}
		sess, created, err := opts.Registry.OpenOrReuse(ctx, course, req.Date)
		if err != nil {
			writeError(c, opts.Log, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
			opts.Metrics.ObserveSessionOpened()
			if claims, ok := auth.ClaimsFrom(c); ok {
				opts.Log.Info("session opened manually",
					zap.String("session", sess.ID),
					zap.String("by", claims.Subject))
			}
		}
		c.JSON(status, gin.H{
			"created": created,
			"session": newSessionView(sess, opts.Registry.Location()),
		})
	}
}

func handleGetSession(st *store.Store, reg *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		sess, err := reg.Get(ctx, c.Param("id"))
		if err != nil {
			writeError(c, nil, err)
			return
		}
		records, err := st.Attendance.BySession(ctx, sess.ID)
		if err != nil {
			writeError(c, nil, err)
			return
		}

		loc := reg.Location()
		summary := map[models.AttendanceStatus]int{
			models.StatusOnTime: 0,
			models.StatusLate:   0,
			models.StatusAbsent: 0,
		}
		views := make([]recordView, 0, len(records))
		for _, r := range records {
			summary[r.Status]++
			views = append(views, recordView{
				PersonID:    r.PersonID,
				Status:      r.Status,
				MinutesLate: r.MinutesLate,
				Note:        r.Note,
				RecordedAt:  r.RecordedAt.In(loc),
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"session": newSessionView(sess, loc),
			"summary": summary,
			"records": views,
		})
	}
}

// handleSessionCode returns both check-in codes for display at the venue.
func handleSessionCode(reg *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := reg.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, nil, err)
			return
		}
		if sess.State == models.SessionClosed {
			c.JSON(http.StatusGone, gin.H{"error": "session is closed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id": sess.ID,
			"direct":     bot.CheckinCode{Mode: bot.ModeDirect, CourseID: sess.CourseID, SessionID: sess.ID}.String(),
			"gps":        bot.CheckinCode{Mode: bot.ModeGPS, CourseID: sess.CourseID, SessionID: sess.ID}.String(),
			"ends_at":    sess.EndAt.In(reg.Location()),
		})
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case apperr.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperr.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperr.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		if log != nil {
			log.Error("dashboard request failed", zap.String("path", c.FullPath()), zap.Error(err))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
