package testutil

import (
	"testing"
	"time"

	"github.com/zulandar/rollcall/internal/models"
	"gorm.io/gorm"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *gorm.DB
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *gorm.DB) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *gorm.DB {
	return f.db
}

// CreateClass inserts a class.
func (f *Fixtures) CreateClass(code string) models.Class {
	f.t.Helper()
	c := models.Class{Code: code, Name: code}
	if err := f.db.Create(&c).Error; err != nil {
		f.t.Fatalf("fixtures: create class %s: %v", code, err)
	}
	return c
}

// CourseOpts customizes CreateCourse. Zero values produce an unrestricted
// Monday 08:00-09:00 course with a 10 minute late threshold.
type CourseOpts struct {
	Weekday       time.Weekday
	Start, End    string
	Lat, Lon      *float64
	Radius        int
	LateThreshold int
	RemindMinutes int
	Inactive      bool
	Classes       []string
}

// CreateCourse inserts a course owned by opts.Classes (created if missing).
func (f *Fixtures) CreateCourse(id string, opts CourseOpts) models.Course {
	f.t.Helper()
	if opts.Start == "" {
		opts.Start = "08:00"
	}
	if opts.End == "" {
		opts.End = "09:00"
	}
	if opts.LateThreshold == 0 {
		opts.LateThreshold = 10
	}
	if opts.Weekday == 0 {
		opts.Weekday = time.Monday
	}
	c := models.Course{
		ID:                   id,
		Subject:              "Subject " + id,
		Weekday:              int(opts.Weekday),
		StartTime:            opts.Start,
		EndTime:              opts.End,
		Latitude:             opts.Lat,
		Longitude:            opts.Lon,
		RadiusMeters:         opts.Radius,
		LateThresholdMinutes: opts.LateThreshold,
		RemindMinutes:        opts.RemindMinutes,
		Active:               !opts.Inactive,
	}
	for _, code := range opts.Classes {
		class := models.Class{Code: code, Name: code}
		if err := f.db.Where(models.Class{Code: code}).FirstOrCreate(&class).Error; err != nil {
			f.t.Fatalf("fixtures: class %s: %v", code, err)
		}
		c.Classes = append(c.Classes, class)
	}
	if err := f.db.Create(&c).Error; err != nil {
		f.t.Fatalf("fixtures: create course %s: %v", id, err)
	}
	return c
}

// CreatePerson inserts an active person. An empty token leaves the person
// unlinked. Classes are created if missing.
func (f *Fixtures) CreatePerson(id, name, token string, classes ...string) models.Person {
	f.t.Helper()
	p := models.Person{ID: id, Name: name, Status: models.PersonActive}
	if token != "" {
		tok := token
		p.MessagingToken = &tok
		p.Platform = "slack"
		now := time.Now()
		p.RegisteredAt = &now
	}
	for _, code := range classes {
		class := models.Class{Code: code, Name: code}
		if err := f.db.Where(models.Class{Code: code}).FirstOrCreate(&class).Error; err != nil {
			f.t.Fatalf("fixtures: class %s: %v", code, err)
		}
		p.Classes = append(p.Classes, class)
	}
	if err := f.db.Create(&p).Error; err != nil {
		f.t.Fatalf("fixtures: create person %s: %v", id, err)
	}
	return p
}

// CreateSession inserts an open session for course on date. Instants are
// stored in UTC like the session store does.
func (f *Fixtures) CreateSession(id, courseID, date string, start, end time.Time) models.Session {
	f.t.Helper()
	key := models.ActiveKeyFor(courseID, date)
	s := models.Session{
		ID:        id,
		CourseID:  courseID,
		Date:      date,
		StartAt:   start.UTC(),
		EndAt:     end.UTC(),
		State:     models.SessionOpen,
		ActiveKey: &key,
		OpenedAt:  start.UTC(),
	}
	if err := f.db.Create(&s).Error; err != nil {
		f.t.Fatalf("fixtures: create session %s: %v", id, err)
	}
	return s
}
