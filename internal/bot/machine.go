package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zulandar/rollcall/internal/apperr"
	"github.com/zulandar/rollcall/internal/attendance"
	"github.com/zulandar/rollcall/internal/conversation"
	"github.com/zulandar/rollcall/internal/geo"
	"github.com/zulandar/rollcall/internal/metrics"
	"github.com/zulandar/rollcall/internal/models"
	"github.com/zulandar/rollcall/internal/session"
	"github.com/zulandar/rollcall/internal/store"
	"go.uber.org/zap"
)

const (
	// DefaultMaxGeofenceRetries is the number of rejected locations after
	// which a GPS check-in is abandoned.
	DefaultMaxGeofenceRetries = 3
	// RecentLimit is the number of records shown by the recent command.
	RecentLimit = 10

	minNameRunes = 2
	maxNameRunes = 10
)

var studentIDRe = regexp.MustCompile(`^\d{6,10}$`)

// MachineOpts holds parameters for creating a Machine.
type MachineOpts struct {
	Store              *store.Store
	Registry           *session.Registry
	Recorder           *attendance.Recorder
	Conversations      conversation.Store
	MaxGeofenceRetries int              // defaults to DefaultMaxGeofenceRetries
	Now                func() time.Time // defaults to time.Now
	Log                *zap.Logger
	Metrics            *metrics.Metrics
}

// Machine drives the per-user conversation flows: registration, class
// join and leave, unbind confirmation and GPS check-in.
type Machine struct {
	store      *store.Store
	registry   *session.Registry
	recorder   *attendance.Recorder
	convs      conversation.Store
	maxRetries int
	now        func() time.Time
	log        *zap.Logger
	metrics    *metrics.Metrics
}

// NewMachine creates a Machine.
func NewMachine(opts MachineOpts) (*Machine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: machine: store is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("bot: machine: registry is required")
	}
	if opts.Recorder == nil {
		return nil, fmt.Errorf("bot: machine: recorder is required")
	}
	if opts.Conversations == nil {
		return nil, fmt.Errorf("bot: machine: conversation store is required")
	}
	m := &Machine{
		store:      opts.Store,
		registry:   opts.Registry,
		recorder:   opts.Recorder,
		convs:      opts.Conversations,
		maxRetries: opts.MaxGeofenceRetries,
		now:        opts.Now,
		log:        opts.Log,
		metrics:    opts.Metrics,
	}
	if m.maxRetries <= 0 {
		m.maxRetries = DefaultMaxGeofenceRetries
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	return m, nil
}

// turn carries one inbound message through the machine.
type turn struct {
	token    string
	platform string
	msg      Classified
	state    *conversation.State
}

// Handle processes one inbound message and returns the reply text. It
// never returns an empty reply.
func (m *Machine) Handle(ctx context.Context, in InboundMessage) string {
	t := &turn{token: in.UserID, platform: in.Platform, msg: Classify(in)}

	st, err := m.convs.Get(ctx, t.token)
	if err != nil {
		m.log.Error("load conversation", zap.String("user", t.token), zap.Error(err))
		return replyInternalError
	}
	t.state = st

	reply, err := m.dispatch(ctx, t)
	if err != nil {
		return m.replyForError(ctx, t, err)
	}
	return reply
}

func (m *Machine) dispatch(ctx context.Context, t *turn) (string, error) {
	switch t.msg.Kind {
	case KindCancel:
		if t.state == nil {
			return replyNothingToCancel, nil
		}
		return replyCancelled, m.clear(ctx, t)
	case KindCheckin:
		// A new code supersedes any pending flow.
		return m.startCheckin(ctx, t)
	}

	if t.state != nil {
		if t.msg.Kind == KindCommand && t.msg.Prefixed {
			// An explicit command abandons the current flow.
			if err := m.clear(ctx, t); err != nil {
				return "", err
			}
			return m.command(ctx, t)
		}
		return m.continueFlow(ctx, t)
	}

	switch t.msg.Kind {
	case KindCommand:
		return m.command(ctx, t)
	case KindLocation:
		return replyNoPendingCheckin, nil
	}
	return replyUnknown, nil
}

func (m *Machine) continueFlow(ctx context.Context, t *turn) (string, error) {
	switch t.state.Step {
	case conversation.StepAwaitingStudentID:
		return m.registerStudentID(ctx, t)
	case conversation.StepAwaitingName:
		return m.registerName(ctx, t)
	case conversation.StepAwaitingClass:
		return m.registerClass(ctx, t)
	case conversation.StepAwaitingLocation:
		return m.receiveLocation(ctx, t)
	case conversation.StepAwaitingClassToJoin:
		return m.joinClass(ctx, t)
	case conversation.StepAwaitingClassToLeave:
		return m.leaveClass(ctx, t)
	case conversation.StepAwaitingUnbindConfirm:
		return m.confirmUnbind(ctx, t)
	}
	m.log.Warn("unknown conversation step", zap.String("user", t.token), zap.String("step", string(t.state.Step)))
	if err := m.clear(ctx, t); err != nil {
		return "", err
	}
	return replyUnknown, nil
}

func (m *Machine) command(ctx context.Context, t *turn) (string, error) {
	switch t.msg.Command {
	case CmdRegister:
		return m.startRegistration(ctx, t)
	case CmdProfile:
		return m.profile(ctx, t)
	case CmdRecent:
		return m.recent(ctx, t)
	case CmdClasses:
		return m.classes(ctx, t)
	case CmdJoin:
		return m.startJoin(ctx, t)
	case CmdLeave:
		return m.startLeave(ctx, t)
	case CmdUnbind:
		return m.startUnbind(ctx, t)
	}
	return replyHelp, nil
}

// replyForError maps an error to the user-facing reply. Validation errors
// keep the flow at the failing step; everything else ends it.
func (m *Machine) replyForError(ctx context.Context, t *turn, err error) string {
	var validation *apperr.ValidationError
	var notFound *apperr.NotFoundError
	switch {
	case errors.As(err, &validation):
		return fmt.Sprintf("%s. Please try again, or send cancel.", capitalize(validation.Message))
	case errors.As(err, &notFound):
		m.clearQuietly(ctx, t)
		if notFound.Entity == "session" {
			return replyCodeExpired
		}
		return fmt.Sprintf("Sorry, %s %s was not found.", notFound.Entity, notFound.ID)
	}
	m.log.Error("handle message",
		zap.String("user", t.token),
		zap.String("kind", t.msg.Kind.String()),
		zap.Error(err),
	)
	m.clearQuietly(ctx, t)
	return replyInternalError
}

func (m *Machine) set(ctx context.Context, t *turn, st *conversation.State) error {
	t.state = st
	return m.convs.Set(ctx, t.token, st)
}

func (m *Machine) clear(ctx context.Context, t *turn) error {
	t.state = nil
	return m.convs.Clear(ctx, t.token)
}

func (m *Machine) clearQuietly(ctx context.Context, t *turn) {
	if t.state == nil {
		return
	}
	if err := m.clear(ctx, t); err != nil {
		m.log.Warn("clear conversation", zap.String("user", t.token), zap.Error(err))
	}
}

// person returns the active person linked to the sender, or nil.
func (m *Machine) person(ctx context.Context, t *turn) (*models.Person, error) {
	p, err := m.store.People.GetByToken(ctx, t.token)
	if apperr.IsNotFound(err) {
		return nil, nil
	}
	return p, err
}

// --- registration ---

func (m *Machine) startRegistration(ctx context.Context, t *turn) (string, error) {
	p, err := m.person(ctx, t)
	if err != nil {
		return "", err
	}
	if p != nil {
		return fmt.Sprintf("You are already registered as %s (%s).", p.Name, p.ID), nil
	}
	if err := m.set(ctx, t, &conversation.State{Step: conversation.StepAwaitingStudentID}); err != nil {
		return "", err
	}
	return replyAskStudentID, nil
}

func (m *Machine) registerStudentID(ctx context.Context, t *turn) (string, error) {
	id := strings.TrimSpace(t.msg.Text)
	if !studentIDRe.MatchString(id) {
		return "", apperr.NewValidationError("student_id", "a student ID is 6 to 10 digits")
	}

	existing, err := m.store.People.Get(ctx, id)
	switch {
	case err == nil:
		// Known student on a new chat identity: move the link here.
		if err := m.store.People.Bind(ctx, id, t.token, t.platform, m.now()); err != nil {
			return "", err
		}
		if err := m.clear(ctx, t); err != nil {
			return "", err
		}
		m.log.Info("person rebound", zap.String("person", id), zap.String("user", t.token))
		return fmt.Sprintf("Welcome back, %s. This chat is now linked to student %s.", existing.Name, id), nil
	case !apperr.IsNotFound(err):
		return "", err
	}

	if err := m.set(ctx, t, &conversation.State{Step: conversation.StepAwaitingName, StudentID: id}); err != nil {
		return "", err
	}
	return replyAskName, nil
}

func (m *Machine) registerName(ctx context.Context, t *turn) (string, error) {
	name := strings.TrimSpace(t.msg.Text)
	if n := utf8.RuneCountInString(name); n < minNameRunes || n > maxNameRunes {
		return "", apperr.NewValidationError("name", "a name is %d to %d characters", minNameRunes, maxNameRunes)
	}
	next := *t.state
	next.Step = conversation.StepAwaitingClass
	next.Name = name
	if err := m.set(ctx, t, &next); err != nil {
		return "", err
	}

	classes, err := m.store.Classes.List(ctx)
	if err != nil {
		return "", err
	}
	return replyAskClass + classList(classes, nil), nil
}

func (m *Machine) registerClass(ctx context.Context, t *turn) (string, error) {
	code := strings.TrimSpace(t.msg.Text)
	if code == "" {
		return "", apperr.NewValidationError("class", "a class code is required")
	}
	class, err := m.store.Classes.Ensure(ctx, code)
	if err != nil {
		return "", err
	}

	now := m.now()
	token := t.token
	p := &models.Person{
		ID:             t.state.StudentID,
		Name:           t.state.Name,
		MessagingToken: &token,
		Platform:       t.platform,
		Status:         models.PersonActive,
		RegisteredAt:   &now,
		Classes:        []models.Class{*class},
	}
	if err := m.store.People.Create(ctx, p); err != nil {
		return "", err
	}
	if err := m.clear(ctx, t); err != nil {
		return "", err
	}
	m.log.Info("person registered", zap.String("person", p.ID), zap.String("class", class.Code))
	return fmt.Sprintf("Registered %s (%s) in class %s.", p.Name, p.ID, class.Code), nil
}

// --- profile and history ---

func (m *Machine) requirePerson(ctx context.Context, t *turn) (*models.Person, string, error) {
	p, err := m.person(ctx, t)
	if err != nil {
		return nil, "", err
	}
	if p == nil {
		return nil, replyRegisterFirst, nil
	}
	return p, "", nil
}

func (m *Machine) profile(ctx context.Context, t *turn) (string, error) {
	p, reply, err := m.requirePerson(ctx, t)
	if p == nil {
		return reply, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", p.Name, p.ID)
	fmt.Fprintf(&b, "Classes: %s\n", strings.Join(p.ClassCodes(), ", "))
	fmt.Fprintf(&b, "On time: %d  Late: %d  Absent: %d\n", p.OnTimeCount, p.LateCount, p.AbsentCount)
	fmt.Fprintf(&b, "Attendance rate: %.1f%%", p.AttendanceRate)
	return b.String(), nil
}

func (m *Machine) recent(ctx context.Context, t *turn) (string, error) {
	p, reply, err := m.requirePerson(ctx, t)
	if p == nil {
		return reply, err
	}
	recs, err := m.recorder.Recent(ctx, p.ID, RecentLimit)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "No attendance recorded yet.", nil
	}
	subjects := make(map[string]string)
	var b strings.Builder
	b.WriteString("Recent attendance:")
	for _, rec := range recs {
		date, course := "?", "?"
		if sess, err := m.store.Sessions.Get(ctx, rec.SessionID); err == nil {
			date, course = sess.Date, m.subject(ctx, subjects, sess.CourseID)
		}
		fmt.Fprintf(&b, "\n%s %s %s", date, course, attendance.StatusLabel(rec.Status))
		if rec.Status == models.StatusLate {
			fmt.Fprintf(&b, " (%d min)", rec.MinutesLate)
		}
		if rec.Note != "" {
			fmt.Fprintf(&b, " [%s]", rec.Note)
		}
	}
	return b.String(), nil
}

// subject returns the course subject, falling back to the ID when the
// course cannot be loaded.
func (m *Machine) subject(ctx context.Context, cache map[string]string, courseID string) string {
	if name, ok := cache[courseID]; ok {
		return name
	}
	name := courseID
	if c, err := m.store.Courses.Get(ctx, courseID); err == nil && c.Subject != "" {
		name = c.Subject
	}
	cache[courseID] = name
	return name
}

func (m *Machine) classes(ctx context.Context, t *turn) (string, error) {
	all, err := m.store.Classes.List(ctx)
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return "No classes yet.", nil
	}
	var joined []string
	if p, err := m.person(ctx, t); err != nil {
		return "", err
	} else if p != nil {
		joined = p.ClassCodes()
	}
	return "Classes:" + classList(all, joined), nil
}

// --- join / leave ---

func (m *Machine) startJoin(ctx context.Context, t *turn) (string, error) {
	p, reply, err := m.requirePerson(ctx, t)
	if p == nil {
		return reply, err
	}
	all, err := m.store.Classes.List(ctx)
	if err != nil {
		return "", err
	}
	var open []models.Class
	for _, c := range all {
		if !contains(p.ClassCodes(), c.Code) {
			open = append(open, c)
		}
	}
	if err := m.set(ctx, t, &conversation.State{Step: conversation.StepAwaitingClassToJoin, StudentID: p.ID}); err != nil {
		return "", err
	}
	return "Which class do you want to join?" + classList(open, nil), nil
}

func (m *Machine) joinClass(ctx context.Context, t *turn) (string, error) {
	code := strings.TrimSpace(t.msg.Text)
	if code == "" {
		return "", apperr.NewValidationError("class", "a class code is required")
	}
	p, err := m.store.People.Get(ctx, t.state.StudentID)
	if err != nil {
		return "", err
	}
	if contains(p.ClassCodes(), code) {
		if err := m.clear(ctx, t); err != nil {
			return "", err
		}
		return fmt.Sprintf("You are already in class %s.", code), nil
	}
	if _, err := m.store.Classes.Ensure(ctx, code); err != nil {
		return "", err
	}
	if err := m.store.People.JoinClass(ctx, p.ID, code); err != nil {
		return "", err
	}
	if err := m.clear(ctx, t); err != nil {
		return "", err
	}
	return fmt.Sprintf("Joined class %s.", code), nil
}

func (m *Machine) startLeave(ctx context.Context, t *turn) (string, error) {
	p, reply, err := m.requirePerson(ctx, t)
	if p == nil {
		return reply, err
	}
	if len(p.Classes) <= 1 {
		return "You must stay in at least one class.", nil
	}
	if err := m.set(ctx, t, &conversation.State{Step: conversation.StepAwaitingClassToLeave, StudentID: p.ID}); err != nil {
		return "", err
	}
	return "Which class do you want to leave?" + classList(p.Classes, nil), nil
}

func (m *Machine) leaveClass(ctx context.Context, t *turn) (string, error) {
	code := strings.TrimSpace(t.msg.Text)
	p, err := m.store.People.Get(ctx, t.state.StudentID)
	if err != nil {
		return "", err
	}
	if !contains(p.ClassCodes(), code) {
		return "", apperr.NewValidationError("class", "you are not in class %q", code)
	}
	if len(p.Classes) <= 1 {
		if err := m.clear(ctx, t); err != nil {
			return "", err
		}
		return "You must stay in at least one class.", nil
	}
	if err := m.store.People.LeaveClass(ctx, p.ID, code); err != nil {
		return "", err
	}
	if err := m.clear(ctx, t); err != nil {
		return "", err
	}
	return fmt.Sprintf("Left class %s.", code), nil
}

// --- unbind ---

func (m *Machine) startUnbind(ctx context.Context, t *turn) (string, error) {
	p, reply, err := m.requirePerson(ctx, t)
	if p == nil {
		return reply, err
	}
	if err := m.set(ctx, t, &conversation.State{Step: conversation.StepAwaitingUnbindConfirm, StudentID: p.ID}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Unlink this chat from student %s? Reply yes to confirm.", p.ID), nil
}

func (m *Machine) confirmUnbind(ctx context.Context, t *turn) (string, error) {
	id := t.state.StudentID
	if err := m.clear(ctx, t); err != nil {
		return "", err
	}
	switch strings.ToLower(strings.TrimSpace(t.msg.Text)) {
	case "yes", "y":
	default:
		return "Unbind cancelled.", nil
	}
	if err := m.store.People.Unbind(ctx, id); err != nil {
		return "", err
	}
	m.log.Info("person unbound", zap.String("person", id))
	return "This chat is no longer linked. Send register to link it again.", nil
}

// --- check-in ---

func (m *Machine) startCheckin(ctx context.Context, t *turn) (string, error) {
	code, err := ParseCheckinCode(t.msg.Text)
	if err != nil {
		return "", err
	}
	p, err := m.person(ctx, t)
	if err != nil {
		return "", err
	}
	if p == nil {
		return replyRegisterFirst, nil
	}
	// The code supersedes whatever flow was pending.
	if t.state != nil {
		if err := m.clear(ctx, t); err != nil {
			return "", err
		}
	}

	sess, err := m.registry.Resolve(ctx, code.CourseID, code.SessionID)
	if err != nil {
		return "", err
	}
	if prior, err := m.store.Attendance.Get(ctx, sess.ID, p.ID); err == nil {
		return duplicateReply(prior.Status), nil
	} else if !apperr.IsNotFound(err) {
		return "", err
	}
	course, err := m.store.Courses.Get(ctx, sess.CourseID)
	if err != nil {
		return "", err
	}

	if code.Mode == ModeDirect {
		return m.record(ctx, t, sess.ID, p.ID, nil)
	}
	switch course.Policy() {
	case models.PolicyVenueOnly:
		return m.reject(ctx, t, &apperr.GeofenceRejection{RadiusMeters: course.RadiusMeters, VenueOnly: true})
	case models.PolicyUnrestricted:
		return m.record(ctx, t, sess.ID, p.ID, nil)
	}

	st := &conversation.State{
		Step:      conversation.StepAwaitingLocation,
		StudentID: p.ID,
		CourseID:  course.ID,
		SessionID: sess.ID,
	}
	if err := m.set(ctx, t, st); err != nil {
		return "", err
	}
	return fmt.Sprintf("Checking in to %s. Share your location, or send it as \"lat,lon\".", course.Subject), nil
}

func (m *Machine) receiveLocation(ctx context.Context, t *turn) (string, error) {
	if t.msg.Kind != KindLocation {
		return "", apperr.NewValidationError("location", "share your location to finish checking in")
	}
	loc := t.msg.Location
	if loc == nil {
		p, err := geo.ParsePoint(t.msg.Text)
		if err != nil {
			return "", err
		}
		loc = &p
	}

	// Location policy is read fresh; it may have changed mid-flow.
	course, err := m.store.Courses.Get(ctx, t.state.CourseID)
	if err != nil {
		return "", err
	}
	sess, err := m.registry.Resolve(ctx, t.state.CourseID, t.state.SessionID)
	if err != nil {
		return "", err
	}

	switch course.Policy() {
	case models.PolicyVenueOnly:
		return m.reject(ctx, t, &apperr.GeofenceRejection{RadiusMeters: course.RadiusMeters, VenueOnly: true})
	case models.PolicyGeofenced:
		classroom := geo.Point{Lat: *course.Latitude, Lon: *course.Longitude}
		dist := loc.DistanceTo(classroom)
		if dist > float64(course.RadiusMeters) {
			next := *t.state
			next.Retries++
			return m.reject(ctx, t, &apperr.GeofenceRejection{
				DistanceMeters: dist,
				RadiusMeters:   course.RadiusMeters,
				Attempt:        next.Retries,
			}, &next)
		}
	}
	return m.record(ctx, t, sess.ID, t.state.StudentID, loc)
}

// reject reports a geofence rejection. With a retry state below the cap
// the flow stays in awaiting-location; otherwise it ends.
func (m *Machine) reject(ctx context.Context, t *turn, rej *apperr.GeofenceRejection, retry ...*conversation.State) (string, error) {
	m.metrics.ObserveGeofenceRejection()
	m.log.Info("check-in rejected",
		zap.String("user", t.token),
		zap.Float64("distance_m", rej.DistanceMeters),
		zap.Int("radius_m", rej.RadiusMeters),
		zap.Int("attempt", rej.Attempt),
		zap.Bool("venue_only", rej.VenueOnly),
	)
	if rej.VenueOnly {
		if err := m.clear(ctx, t); err != nil {
			return "", err
		}
		return replyVenueOnly, nil
	}

	if len(retry) > 0 && retry[0].Retries < m.maxRetries {
		if err := m.set(ctx, t, retry[0]); err != nil {
			return "", err
		}
		return fmt.Sprintf("Too far: %s. Move closer and share your location again (attempt %d of %d).",
			rej.Error(), rej.Attempt, m.maxRetries), nil
	}
	if err := m.clear(ctx, t); err != nil {
		return "", err
	}
	return fmt.Sprintf("Too far: %s. Too many attempts, please check in at the venue.", rej.Error()), nil
}

func (m *Machine) record(ctx context.Context, t *turn, sessionID, personID string, loc *geo.Point) (string, error) {
	res, err := m.recorder.Record(ctx, sessionID, personID, loc)
	var dup *apperr.DuplicateError
	if errors.As(err, &dup) {
		m.clearQuietly(ctx, t)
		return duplicateReply(dup.Status), nil
	}
	if err != nil {
		return "", err
	}
	if t.state != nil {
		if err := m.clear(ctx, t); err != nil {
			m.log.Warn("clear conversation", zap.String("user", t.token), zap.Error(err))
		}
	}
	return attendance.CheckInMessage(res.Course, res.Status, res.MinutesLate), nil
}

func duplicateReply(status models.AttendanceStatus) string {
	return fmt.Sprintf("You are already checked in for this session (%s).", attendance.StatusLabel(status))
}

func classList(classes []models.Class, joined []string) string {
	if len(classes) == 0 {
		return "\n(none)"
	}
	var b strings.Builder
	for _, c := range classes {
		b.WriteString("\n- ")
		b.WriteString(c.Code)
		if c.Name != "" && c.Name != c.Code {
			b.WriteString(" " + c.Name)
		}
		if contains(joined, c.Code) {
			b.WriteString(" (joined)")
		}
	}
	return b.String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return strings.ToUpper(string(r)) + s[size:]
}
