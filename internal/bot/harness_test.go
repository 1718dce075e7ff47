package bot

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/zulandar/rollcall/internal/attendance"
	"github.com/zulandar/rollcall/internal/conversation"
	"github.com/zulandar/rollcall/internal/geo"
	"github.com/zulandar/rollcall/internal/metrics"
	"github.com/zulandar/rollcall/internal/session"
	"github.com/zulandar/rollcall/internal/store"
	"github.com/zulandar/rollcall/internal/testutil"
)

var taipei = time.FixedZone("UTC+8", 8*3600)

// metersPerDegreeLat converts a north offset in meters to degrees.
const metersPerDegreeLat = geo.EarthRadiusMeters * math.Pi / 180

type harness struct {
	t        *testing.T
	fx       *testutil.Fixtures
	store    *store.Store
	convs    *conversation.MemoryStore
	adapter  *MockAdapter
	metrics  *metrics.Metrics
	machine  *Machine
	registry *session.Registry
	now      time.Time
}

// newHarness builds a Machine over an in-memory database. The clock starts
// at 2026-03-02 08:05 UTC+8.
func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	h := &harness{
		t:       t,
		fx:      testutil.NewFixtures(t, db),
		store:   store.NewGorm(db),
		convs:   conversation.NewMemoryStore(0),
		adapter: NewMockAdapter(),
		metrics: metrics.New(),
		now:     time.Date(2026, 3, 2, 8, 5, 0, 0, taipei),
	}
	if err := h.adapter.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	clock := func() time.Time { return h.now }

	reg, err := session.NewRegistry(session.RegistryOpts{
		Sessions: h.store.Sessions,
		Courses:  h.store.Courses,
		Location: taipei,
		Now:      clock,
	})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := attendance.NewRecorder(attendance.RecorderOpts{
		Store:    h.store,
		Notifier: NewAdapterNotifier(h.adapter),
		Location: taipei,
		Now:      clock,
		Metrics:  h.metrics,
	})
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewMachine(MachineOpts{
		Store:         h.store,
		Registry:      reg,
		Recorder:      rec,
		Conversations: h.convs,
		Now:           clock,
		Metrics:       h.metrics,
	})
	if err != nil {
		t.Fatal(err)
	}
	h.machine = m
	h.registry = reg
	return h
}

// say sends text from user and returns the reply.
func (h *harness) say(user, text string) string {
	h.t.Helper()
	return h.machine.Handle(context.Background(), InboundMessage{Platform: "slack", UserID: user, Text: text})
}

// shareLocation sends a platform location payload from user.
func (h *harness) shareLocation(user string, p geo.Point) string {
	h.t.Helper()
	return h.machine.Handle(context.Background(), InboundMessage{Platform: "slack", UserID: user, Location: &p})
}

func (h *harness) step(user string) conversation.Step {
	h.t.Helper()
	st, err := h.convs.Get(context.Background(), user)
	if err != nil {
		h.t.Fatal(err)
	}
	if st == nil {
		return conversation.StepIdle
	}
	return st.Step
}

func (h *harness) state(user string) *conversation.State {
	h.t.Helper()
	st, _ := h.convs.Get(context.Background(), user)
	return st
}

// seedSession creates course id with opts and an open session s-<id> for
// 2026-03-02 08:00-09:00 UTC+8.
func (h *harness) seedSession(id string, opts testutil.CourseOpts) string {
	h.t.Helper()
	h.fx.CreateCourse(id, opts)
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, taipei)
	sid := "s-" + id
	h.fx.CreateSession(sid, id, "2026-03-02", start, start.Add(time.Hour))
	return sid
}

// north returns the point meters north of (lat, lon).
func north(lat, lon, meters float64) geo.Point {
	return geo.Point{Lat: lat + meters/metersPerDegreeLat, Lon: lon}
}

func ptr(f float64) *float64 { return &f }
