package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zulandar/rollcall/internal/apperr"
	"github.com/zulandar/rollcall/internal/models"
	"github.com/zulandar/rollcall/internal/store"
	"github.com/zulandar/rollcall/internal/testutil"
)

var taipei = time.FixedZone("UTC+8", 8*3600)

func newTestRegistry(t *testing.T, now time.Time) (*Registry, *testutil.Fixtures) {
	t.Helper()
	db := testutil.NewDB(t)
	st := store.NewGorm(db)
	r, err := NewRegistry(RegistryOpts{
		Sessions: st.Sessions,
		Courses:  st.Courses,
		Location: taipei,
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r, testutil.NewFixtures(t, db)
}

func TestNewRegistry_RequiredFields(t *testing.T) {
	if _, err := NewRegistry(RegistryOpts{}); err == nil {
		t.Fatal("expected error for missing stores")
	}
	st := store.NewGorm(nil)
	if _, err := NewRegistry(RegistryOpts{Sessions: st.Sessions}); err == nil {
		t.Fatal("expected error for missing courses store")
	}
	r, err := NewRegistry(RegistryOpts{Sessions: st.Sessions, Courses: st.Courses})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if r.Location() != time.UTC {
		t.Errorf("default location = %v, want UTC", r.Location())
	}
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name      string
		start     string
		end       string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "same day",
			start:     "08:00",
			end:       "09:50",
			wantStart: time.Date(2026, 3, 2, 8, 0, 0, 0, taipei),
			wantEnd:   time.Date(2026, 3, 2, 9, 50, 0, 0, taipei),
		},
		{
			name:      "crosses midnight",
			start:     "23:30",
			end:       "00:30",
			wantStart: time.Date(2026, 3, 2, 23, 30, 0, 0, taipei),
			wantEnd:   time.Date(2026, 3, 3, 0, 30, 0, 0, taipei),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &models.Course{ID: "C", StartTime: tt.start, EndTime: tt.end}
			start, end, err := Window(c, "2026-03-02", taipei)
			if err != nil {
				t.Fatalf("Window: %v", err)
			}
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Errorf("Window = %v..%v, want %v..%v", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestWindow_Errors(t *testing.T) {
	good := &models.Course{ID: "C", StartTime: "08:00", EndTime: "09:00"}
	if _, _, err := Window(good, "02/03/2026", taipei); !apperr.IsValidation(err) {
		t.Errorf("bad date = %v, want ValidationError", err)
	}
	bad := &models.Course{ID: "C", StartTime: "8am", EndTime: "09:00"}
	if _, _, err := Window(bad, "2026-03-02", taipei); err == nil {
		t.Error("expected error for bad start time")
	}
}

func TestDateKey_UsesCivilZone(t *testing.T) {
	// 2026-03-01 17:30 UTC is already March 2 in UTC+8.
	instant := time.Date(2026, 3, 1, 17, 30, 0, 0, time.UTC)
	if got := DateKey(instant, taipei); got != "2026-03-02" {
		t.Errorf("DateKey = %q, want 2026-03-02", got)
	}
	if got := DateKey(instant, time.UTC); got != "2026-03-01" {
		t.Errorf("DateKey UTC = %q, want 2026-03-01", got)
	}
}

func TestOpen_ConflictCarriesExisting(t *testing.T) {
	now := time.Date(2026, 3, 2, 7, 50, 0, 0, taipei)
	r, fx := newTestRegistry(t, now)
	ctx := context.Background()
	course := fx.CreateCourse("ALG", testutil.CourseOpts{})

	first, err := r.OpenForCourse(ctx, &course, "2026-03-02")
	if err != nil {
		t.Fatalf("OpenForCourse: %v", err)
	}
	if len(first.ID) != 36 {
		t.Errorf("session ID %q is not a UUID", first.ID)
	}
	if first.State != models.SessionOpen {
		t.Errorf("state = %s, want open", first.State)
	}

	_, err = r.OpenForCourse(ctx, &course, "2026-03-02")
	var conflict *apperr.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second open = %v, want ConflictError", err)
	}
	if conflict.Existing == nil || conflict.Existing.ID != first.ID {
		t.Errorf("conflict.Existing = %+v, want %s", conflict.Existing, first.ID)
	}

	reused, created, err := r.OpenOrReuse(ctx, &course, "2026-03-02")
	if err != nil || created || reused.ID != first.ID {
		t.Errorf("OpenOrReuse = %v, %v, %v; want existing", reused, created, err)
	}
}

func TestOpen_Validation(t *testing.T) {
	now := time.Date(2026, 3, 2, 7, 50, 0, 0, taipei)
	r, _ := newTestRegistry(t, now)
	ctx := context.Background()
	if _, err := r.Open(ctx, "ALG", "tomorrow", now, now.Add(time.Hour)); !apperr.IsValidation(err) {
		t.Errorf("bad date = %v, want ValidationError", err)
	}
	if _, err := r.Open(ctx, "ALG", "2026-03-02", now, now); !apperr.IsValidation(err) {
		t.Errorf("empty window = %v, want ValidationError", err)
	}
}

func TestFindActive_PicksMostRecentNonClosed(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, taipei)
	r, fx := newTestRegistry(t, now)
	ctx := context.Background()
	course := fx.CreateCourse("ALG", testutil.CourseOpts{})

	if got, err := r.FindActive(ctx, "ALG", "2026-03-02"); err != nil || got != nil {
		t.Fatalf("FindActive empty = %+v, %v", got, err)
	}

	old, err := r.OpenForCourse(ctx, &course, "2026-03-02")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.MarkClosed(ctx, old.ID); err != nil {
		t.Fatal(err)
	}
	fresh, err := r.OpenForCourse(ctx, &course, "2026-03-02")
	if err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
	got, err := r.FindActive(ctx, "ALG", "2026-03-02")
	if err != nil || got == nil || got.ID != fresh.ID {
		t.Errorf("FindActive = %+v, %v; want %s", got, err, fresh.ID)
	}
}

func TestCourse(t *testing.T) {
	r, fx := newTestRegistry(t, time.Date(2026, 3, 2, 8, 0, 0, 0, taipei))
	ctx := context.Background()
	fx.CreateCourse("ALG", testutil.CourseOpts{Classes: []string{"CS1A"}})

	c, err := r.Course(ctx, &models.Session{ID: "s1", CourseID: "ALG"})
	if err != nil {
		t.Fatalf("Course: %v", err)
	}
	if c.ID != "ALG" || c.Subject != "Subject ALG" || len(c.Classes) != 1 {
		t.Errorf("course = %+v", c)
	}

	if _, err := r.Course(ctx, &models.Session{ID: "s2", CourseID: "GONE"}); !apperr.IsNotFound(err) {
		t.Errorf("Course(unknown) = %v, want NotFoundError", err)
	}
}

func TestResolve(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 5, 0, 0, taipei)
	r, fx := newTestRegistry(t, now)
	ctx := context.Background()
	fx.CreateCourse("ALG", testutil.CourseOpts{})
	fx.CreateCourse("BIO", testutil.CourseOpts{})
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, taipei)
	fx.CreateSession("live", "ALG", "2026-03-02", start, start.Add(time.Hour))
	fx.CreateSession("ended", "BIO", "2026-03-02", start.Add(-2*time.Hour), start.Add(-time.Hour))

	if sess, err := r.Resolve(ctx, "ALG", "live"); err != nil || sess.ID != "live" {
		t.Errorf("Resolve live = %+v, %v", sess, err)
	}
	tests := []struct {
		name      string
		courseID  string
		sessionID string
	}{
		{"unknown session", "ALG", "nope"},
		{"course mismatch", "BIO", "live"},
		{"ended", "BIO", "ended"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Resolve(ctx, tt.courseID, tt.sessionID); !apperr.IsNotFound(err) {
				t.Errorf("Resolve = %v, want NotFoundError", err)
			}
		})
	}
}

func TestLifecycle_BeginClosingIsExclusive(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, taipei)
	r, fx := newTestRegistry(t, now)
	ctx := context.Background()
	fx.CreateCourse("ALG", testutil.CourseOpts{})
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, taipei)
	fx.CreateSession("s1", "ALG", "2026-03-02", start, start.Add(time.Hour))

	due, err := r.ListDueForClosing(ctx, r.Now())
	if err != nil || len(due) != 1 {
		t.Fatalf("ListDueForClosing = %v, %v", due, err)
	}

	first, err := r.BeginClosing(ctx, "s1")
	if err != nil || !first {
		t.Fatalf("first BeginClosing = %v, %v", first, err)
	}
	second, err := r.BeginClosing(ctx, "s1")
	if err != nil || second {
		t.Fatalf("second BeginClosing = %v, %v; want false", second, err)
	}

	stuck, err := r.ListStuckClosing(ctx, now.Add(time.Minute))
	if err != nil || len(stuck) != 1 {
		t.Errorf("ListStuckClosing = %v, %v", stuck, err)
	}

	if err := r.MarkClosed(ctx, "s1"); err != nil {
		t.Fatalf("MarkClosed: %v", err)
	}
	// Closing twice is a no-op.
	if err := r.MarkClosed(ctx, "s1"); err != nil {
		t.Fatalf("MarkClosed again: %v", err)
	}
	sess, _ := r.Get(ctx, "s1")
	if sess.State != models.SessionClosed {
		t.Errorf("state = %s, want closed", sess.State)
	}
	if due, _ := r.ListDueForClosing(ctx, r.Now()); len(due) != 0 {
		t.Errorf("closed session still due: %v", due)
	}
}
