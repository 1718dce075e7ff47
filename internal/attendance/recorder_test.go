package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/zulandar/rollcall/internal/apperr"
	"github.com/zulandar/rollcall/internal/geo"
	"github.com/zulandar/rollcall/internal/metrics"
	"github.com/zulandar/rollcall/internal/models"
	"github.com/zulandar/rollcall/internal/store"
	"github.com/zulandar/rollcall/internal/testutil"
)

var taipei = time.FixedZone("UTC+8", 8*3600)

type pushed struct {
	token, text string
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []pushed
	err  error
}

func (m *mockNotifier) Push(_ context.Context, token, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, pushed{token, text})
	return nil
}

type env struct {
	rec      *Recorder
	store    *store.Store
	notifier *mockNotifier
	metrics  *metrics.Metrics
	now      *time.Time
}

// newEnv seeds course ALG (08:00-09:00, threshold 10) with session s1 on
// 2026-03-02 and person 123456 linked to token U1.
func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	fx.CreateCourse("ALG", testutil.CourseOpts{Classes: []string{"CS1A"}})
	fx.CreatePerson("123456", "Amy", "U1", "CS1A")
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, taipei)
	fx.CreateSession("s1", "ALG", "2026-03-02", start, start.Add(time.Hour))

	e := &env{store: store.NewGorm(db), notifier: &mockNotifier{}, metrics: metrics.New()}
	now := start
	e.now = &now
	rec, err := NewRecorder(RecorderOpts{
		Store:    e.store,
		Notifier: e.notifier,
		Location: taipei,
		Now:      func() time.Time { return *e.now },
		Metrics:  e.metrics,
	})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	e.rec = rec
	return e
}

func TestNewRecorder_RequiresStore(t *testing.T) {
	if _, err := NewRecorder(RecorderOpts{}); err == nil {
		t.Fatal("expected error for missing store")
	}
}

func TestClassify(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, taipei)
	tests := []struct {
		name        string
		at          time.Duration
		wantStatus  models.AttendanceStatus
		wantMinutes int
	}{
		{"early", -5 * time.Minute, models.StatusOnTime, 0},
		{"at start", 0, models.StatusOnTime, 0},
		{"nine minutes", 9 * time.Minute, models.StatusOnTime, 0},
		{"exactly threshold", 10 * time.Minute, models.StatusOnTime, 0},
		{"threshold plus seconds", 10*time.Minute + 59*time.Second, models.StatusOnTime, 0},
		{"eleven minutes", 11 * time.Minute, models.StatusLate, 11},
		{"an hour", time.Hour, models.StatusLate, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, minutes := Classify(start, start.Add(tt.at), 10)
			if status != tt.wantStatus || minutes != tt.wantMinutes {
				t.Errorf("Classify = %s/%d, want %s/%d", status, minutes, tt.wantStatus, tt.wantMinutes)
			}
		})
	}
}

func TestClassify_ZeroThreshold(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	if status, _ := Classify(start, start.Add(30*time.Second), 0); status != models.StatusOnTime {
		t.Errorf("within first minute = %s, want on-time", status)
	}
	if status, m := Classify(start, start.Add(time.Minute), 0); status != models.StatusLate || m != 1 {
		t.Errorf("one minute = %s/%d, want late/1", status, m)
	}
}

func TestWallClock_DSTGap(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("no tzdata: %v", err)
	}
	// 2026-03-08 01:30 EST to 03:30 EDT is one hour of real time but two
	// hours on the wall clock.
	start := time.Date(2026, 3, 8, 1, 30, 0, 0, ny)
	now := start.Add(time.Hour)
	_, minutes := Classify(wallClock(start, ny), wallClock(now, ny), 10)
	if minutes != 120 {
		t.Errorf("wall-clock minutes = %d, want 120", minutes)
	}
}

func TestRecord_LateBoundary(t *testing.T) {
	tests := []struct {
		name        string
		clock       string
		wantStatus  models.AttendanceStatus
		wantMinutes int
	}{
		{"08:09", "08:09", models.StatusOnTime, 0},
		{"08:10", "08:10", models.StatusOnTime, 0},
		{"08:11", "08:11", models.StatusLate, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			at, _ := time.ParseInLocation("2006-01-02 15:04", "2026-03-02 "+tt.clock, taipei)
			*e.now = at

			res, err := e.rec.Record(context.Background(), "s1", "123456", nil)
			if err != nil {
				t.Fatalf("Record: %v", err)
			}
			if res.Status != tt.wantStatus || res.MinutesLate != tt.wantMinutes {
				t.Errorf("Record = %s/%d, want %s/%d", res.Status, res.MinutesLate, tt.wantStatus, tt.wantMinutes)
			}
		})
	}
}

func TestRecord_PersistsCountersAndNotifies(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	*e.now = e.now.Add(15 * time.Minute)

	res, err := e.rec.Record(ctx, "s1", "123456", &geo.Point{Lat: 25.0, Lon: 121.0})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if res.Course == nil || res.Course.ID != "ALG" {
		t.Errorf("result course = %+v", res.Course)
	}

	stored, err := e.store.Attendance.Get(ctx, "s1", "123456")
	if err != nil {
		t.Fatalf("stored record: %v", err)
	}
	if stored.Status != models.StatusLate || stored.MinutesLate != 15 {
		t.Errorf("stored = %+v", stored)
	}
	if stored.Latitude == nil || *stored.Latitude != 25.0 {
		t.Errorf("location not stored: %+v", stored)
	}

	p, _ := e.store.People.Get(ctx, "123456")
	if p.LateCount != 1 || p.AttendanceRate != 100 {
		t.Errorf("counters = late %d rate %f", p.LateCount, p.AttendanceRate)
	}

	if len(e.notifier.sent) != 1 || e.notifier.sent[0].token != "U1" {
		t.Fatalf("notifications = %+v", e.notifier.sent)
	}
	if got := promtest.ToFloat64(e.metrics.CheckIns.WithLabelValues("late")); got != 1 {
		t.Errorf("late metric = %v", got)
	}
}

func TestRecord_DuplicateReturnsPriorStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.rec.Record(ctx, "s1", "123456", nil); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	*e.now = e.now.Add(30 * time.Minute)

	_, err := e.rec.Record(ctx, "s1", "123456", nil)
	var dup *apperr.DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("second Record = %v, want DuplicateError", err)
	}
	if dup.Status != models.StatusOnTime {
		t.Errorf("prior status = %s, want on-time", dup.Status)
	}
	if len(e.notifier.sent) != 1 {
		t.Errorf("duplicate sent a notification: %d", len(e.notifier.sent))
	}
	p, _ := e.store.People.Get(ctx, "123456")
	if p.OnTimeCount != 1 || p.LateCount != 0 {
		t.Errorf("duplicate mutated counters: %+v", p)
	}
}

func TestRecord_ConcurrentAttemptsCreateOneRecord(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, duplicates := 0, 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.rec.Record(ctx, "s1", "123456", nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperr.IsDuplicate(err):
				duplicates++
			default:
				t.Errorf("Record: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || duplicates != attempts-1 {
		t.Errorf("successes=%d duplicates=%d", successes, duplicates)
	}
	recs, _ := e.store.Attendance.BySession(ctx, "s1")
	if len(recs) != 1 {
		t.Errorf("records = %d, want 1", len(recs))
	}
}

func TestRecord_NotificationFailureKeepsRecord(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.notifier.err = fmt.Errorf("network down")

	if _, err := e.rec.Record(ctx, "s1", "123456", nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := e.store.Attendance.Get(ctx, "s1", "123456"); err != nil {
		t.Errorf("record rolled back: %v", err)
	}
	if got := promtest.ToFloat64(e.metrics.NotificationFailures); got != 1 {
		t.Errorf("failure metric = %v, want 1", got)
	}
}

func TestRecord_NotFound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.rec.Record(ctx, "nope", "123456", nil); !apperr.IsNotFound(err) {
		t.Errorf("unknown session = %v", err)
	}
	if _, err := e.rec.Record(ctx, "s1", "999999", nil); !apperr.IsNotFound(err) {
		t.Errorf("unknown person = %v", err)
	}
}

func TestRecordAbsence(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sess, _ := e.store.Sessions.Get(ctx, "s1")

	created, err := e.rec.RecordAbsence(ctx, sess, "123456", "leave: sick")
	if err != nil || !created {
		t.Fatalf("RecordAbsence = %v, %v", created, err)
	}
	created, err = e.rec.RecordAbsence(ctx, sess, "123456", "")
	if err != nil || created {
		t.Fatalf("second RecordAbsence = %v, %v; want false", created, err)
	}

	rec, _ := e.store.Attendance.Get(ctx, "s1", "123456")
	if rec.Status != models.StatusAbsent || rec.Note != "leave: sick" || rec.MinutesLate != 0 {
		t.Errorf("absence = %+v", rec)
	}
	p, _ := e.store.People.Get(ctx, "123456")
	if p.AbsentCount != 1 || p.AttendanceRate != 0 {
		t.Errorf("counters = absent %d rate %f", p.AbsentCount, p.AttendanceRate)
	}
	if len(e.notifier.sent) != 0 {
		t.Errorf("RecordAbsence should not notify")
	}

	// A check-in after the absence is a duplicate.
	if _, err := e.rec.Record(ctx, "s1", "123456", nil); !apperr.IsDuplicate(err) {
		t.Errorf("Record after absence = %v, want DuplicateError", err)
	}
}

func TestRecordAbsence_SkipsExistingCheckIn(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.rec.Record(ctx, "s1", "123456", nil); err != nil {
		t.Fatal(err)
	}
	sess, _ := e.store.Sessions.Get(ctx, "s1")
	created, err := e.rec.RecordAbsence(ctx, sess, "123456", "")
	if err != nil || created {
		t.Errorf("RecordAbsence over check-in = %v, %v", created, err)
	}
	rec, _ := e.store.Attendance.Get(ctx, "s1", "123456")
	if rec.Status != models.StatusOnTime {
		t.Errorf("status overwritten: %s", rec.Status)
	}
}

func TestRecent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.rec.Record(ctx, "s1", "123456", nil); err != nil {
		t.Fatal(err)
	}
	recs, err := e.rec.Recent(ctx, "123456", 10)
	if err != nil || len(recs) != 1 {
		t.Errorf("Recent = %v, %v", recs, err)
	}
}

func TestMessages(t *testing.T) {
	c := &models.Course{Subject: "Algebra"}
	if got := CheckInMessage(c, models.StatusLate, 12); got != "Checked in to Algebra: late by 12 min." {
		t.Errorf("late message = %q", got)
	}
	if got := CheckInMessage(c, models.StatusOnTime, 0); got != "Checked in to Algebra: on time." {
		t.Errorf("on-time message = %q", got)
	}
	if got := StatusLabel(models.StatusOnTime); got != "on time" {
		t.Errorf("StatusLabel = %q", got)
	}
}
