package db

import (
	"strings"
	"testing"

	"github.com/zulandar/rollcall/internal/config"
	"github.com/zulandar/rollcall/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Connect(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func TestMySQLDSN(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     int
		user     string
		password string
		database string
		want     string
	}{
		{
			name:     "default local",
			host:     "127.0.0.1",
			port:     3306,
			user:     "root",
			database: "rollcall",
			want:     "root@tcp(127.0.0.1:3306)/rollcall?parseTime=true",
		},
		{
			name:     "custom host and password",
			host:     "db.internal",
			port:     3307,
			user:     "att",
			password: "pw",
			database: "attendance",
			want:     "att:pw@tcp(db.internal:3307)/attendance?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MySQLDSN(tt.host, tt.port, tt.user, tt.password, tt.database)
			if got != tt.want {
				t.Errorf("MySQLDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDialector(t *testing.T) {
	tests := []struct {
		driver string
		dsn    string
		want   string
	}{
		{"sqlite", ":memory:", "sqlite"},
		{"mysql", "", "mysql"},
		{"postgres", "host=localhost user=x dbname=y", "postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := Dialector(config.DatabaseConfig{Driver: tt.driver, DSN: tt.dsn, Host: "h", Port: 1, User: "u", Name: "n"})
			if err != nil {
				t.Fatalf("Dialector: %v", err)
			}
			if d.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", d.Name(), tt.want)
			}
		})
	}

	if _, err := Dialector(config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "unsupported driver") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 7 {
		t.Errorf("AllModels() returned %d models, want 7", got)
	}
}

func TestAutoMigrate_CreatesJoinTables(t *testing.T) {
	db := openTestDB(t)
	for _, table := range []string{"persons", "classes", "courses", "checkin_sessions", "attendance_records", "ledger_entries", "leave_requests", "person_classes", "course_classes"} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("table %s not created", table)
		}
	}
}

func TestSeedClasses_EmptySlice(t *testing.T) {
	if err := SeedClasses(nil, []config.ClassConfig{}); err != nil {
		t.Errorf("SeedClasses(nil, []) = %v, want nil", err)
	}
}

func TestSeed_UpsertsCoursesAndClasses(t *testing.T) {
	db := openTestDB(t)
	lat, lon := 25.0, 121.0
	late := 15
	cfg := &config.Config{
		Classes: []config.ClassConfig{{Code: "CS1A", Name: "CS 1A"}},
		Courses: []config.CourseConfig{{
			ID: "ALG101", Subject: "Algorithms", Classes: []string{"CS1A", "CS1B"},
			Weekday: "monday", Start: "08:00", End: "09:50",
			Latitude: &lat, Longitude: &lon, RadiusMeters: 50, LateThresholdMinutes: &late,
		}},
	}
	if err := Seed(db, cfg); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	var course models.Course
	if err := db.Preload("Classes").First(&course, "id = ?", "ALG101").Error; err != nil {
		t.Fatalf("load course: %v", err)
	}
	if course.Weekday != 1 || course.LateThresholdMinutes != 15 || !course.Active {
		t.Errorf("course = %+v", course)
	}
	if len(course.Classes) != 2 {
		t.Fatalf("course classes = %d, want 2", len(course.Classes))
	}

	// Re-seed with a change: subject updates, class ownership shrinks.
	cfg.Courses[0].Subject = "Algorithms II"
	cfg.Courses[0].Classes = []string{"CS1A"}
	cfg.Courses[0].Inactive = true
	if err := Seed(db, cfg); err != nil {
		t.Fatalf("re-Seed: %v", err)
	}
	course = models.Course{}
	if err := db.Preload("Classes").First(&course, "id = ?", "ALG101").Error; err != nil {
		t.Fatalf("reload course: %v", err)
	}
	if course.Subject != "Algorithms II" {
		t.Errorf("Subject = %q, want Algorithms II", course.Subject)
	}
	if course.Active {
		t.Error("course should be inactive after re-seed")
	}
	if len(course.Classes) != 1 || course.Classes[0].Code != "CS1A" {
		t.Errorf("classes = %+v, want [CS1A]", course.Classes)
	}

	var count int64
	db.Model(&models.Course{}).Count(&count)
	if count != 1 {
		t.Errorf("course rows = %d, want 1", count)
	}
}

func TestSeedCourses_BadWeekday(t *testing.T) {
	db := openTestDB(t)
	err := SeedCourses(db, []config.CourseConfig{{ID: "X", Subject: "X", Weekday: "funday", Start: "08:00", End: "09:00"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `db: seed course "X"`) {
		t.Errorf("error = %q", err.Error())
	}
}
