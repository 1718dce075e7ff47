package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
timezone: Asia/Taipei

database:
  driver: mysql
  host: 10.0.0.5
  port: 3307
  user: rollcall
  name: attendance

bot:
  platform: slack
  channel: C0ATTEND
  slack:
    app_token: xapp-1
    bot_token: xoxb-1

conversation:
  backend: redis
  ttl: 15m
  max_geofence_retries: 5

redis:
  addr: 127.0.0.1:6379

schedule:
  reminder_cron: "*/2 * * * *"
  absence_cron: "*/10 * * * *"
  remind_minutes: 15
  tolerance_minutes: 3

dashboard:
  port: 9090
  token_secret: s3cret

classes:
  - code: CS1A
    name: Computer Science 1A
  - code: CS1B

courses:
  - id: ALG101
    subject: Algorithms
    classes: [CS1A, CS1B]
    weekday: monday
    start: "08:00"
    end: "09:50"
    latitude: 25.0
    longitude: 121.0
    radius_meters: 50
    late_threshold_minutes: 15
  - id: SEM200
    subject: Seminar
    classes: [CS1A]
    weekday: fri
    start: "13:00"
    end: "14:00"
    radius_meters: -1
`

const minimalYAML = `
courses:
  - id: C1
    subject: Intro
    weekday: tuesday
    start: "10:00"
    end: "11:00"
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Timezone != "Asia/Taipei" {
		t.Errorf("Timezone = %q, want Asia/Taipei", cfg.Timezone)
	}
	if cfg.Location().String() != "Asia/Taipei" {
		t.Errorf("Location() = %q, want Asia/Taipei", cfg.Location())
	}
	if cfg.Database.Driver != "mysql" || cfg.Database.Port != 3307 || cfg.Database.Name != "attendance" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Bot.Platform != "slack" || cfg.Bot.Slack.AppToken != "xapp-1" {
		t.Errorf("Bot = %+v", cfg.Bot)
	}
	if cfg.Conversation.Backend != "redis" {
		t.Errorf("Conversation.Backend = %q, want redis", cfg.Conversation.Backend)
	}
	if cfg.Conversation.TTL != 15*time.Minute {
		t.Errorf("Conversation.TTL = %v, want 15m", cfg.Conversation.TTL)
	}
	if cfg.Conversation.MaxGeofenceRetries != 5 {
		t.Errorf("MaxGeofenceRetries = %d, want 5", cfg.Conversation.MaxGeofenceRetries)
	}
	if cfg.Schedule.RemindMinutes != 15 || cfg.Schedule.ToleranceMinutes != 3 {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}
	if cfg.Dashboard.Port != 9090 {
		t.Errorf("Dashboard.Port = %d, want 9090", cfg.Dashboard.Port)
	}
	if len(cfg.Classes) != 2 {
		t.Fatalf("len(Classes) = %d, want 2", len(cfg.Classes))
	}
	if len(cfg.Courses) != 2 {
		t.Fatalf("len(Courses) = %d, want 2", len(cfg.Courses))
	}

	alg := cfg.Courses[0]
	if alg.Latitude == nil || *alg.Latitude != 25.0 {
		t.Errorf("Courses[0].Latitude = %v, want 25.0", alg.Latitude)
	}
	if *alg.LateThresholdMinutes != 15 {
		t.Errorf("Courses[0].LateThresholdMinutes = %d, want 15", *alg.LateThresholdMinutes)
	}
	if len(alg.Classes) != 2 {
		t.Errorf("Courses[0].Classes = %v", alg.Classes)
	}
	if cfg.Courses[1].RadiusMeters != -1 {
		t.Errorf("Courses[1].RadiusMeters = %d, want -1", cfg.Courses[1].RadiusMeters)
	}
}

func TestParse_MinimalDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Timezone != DefaultTimezone {
		t.Errorf("Timezone = %q, want %q", cfg.Timezone, DefaultTimezone)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "rollcall.db" {
		t.Errorf("Database = %+v, want sqlite rollcall.db", cfg.Database)
	}
	if cfg.Conversation.Backend != "memory" {
		t.Errorf("Conversation.Backend = %q, want memory", cfg.Conversation.Backend)
	}
	if cfg.Conversation.TTL != DefaultConversationTTL {
		t.Errorf("Conversation.TTL = %v", cfg.Conversation.TTL)
	}
	if cfg.Conversation.MaxGeofenceRetries != 3 {
		t.Errorf("MaxGeofenceRetries = %d, want 3", cfg.Conversation.MaxGeofenceRetries)
	}
	if cfg.Schedule.ReminderCron != "* * * * *" {
		t.Errorf("ReminderCron = %q", cfg.Schedule.ReminderCron)
	}
	if cfg.Schedule.AbsenceCron != "*/5 * * * *" {
		t.Errorf("AbsenceCron = %q", cfg.Schedule.AbsenceCron)
	}
	if cfg.Schedule.RemindMinutes != 10 || cfg.Schedule.ToleranceMinutes != 5 {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}
	if cfg.Dashboard.Port != 8080 || cfg.Dashboard.TokenIssuer != "rollcall" {
		t.Errorf("Dashboard = %+v", cfg.Dashboard)
	}
	if got := *cfg.Courses[0].LateThresholdMinutes; got != 10 {
		t.Errorf("LateThresholdMinutes default = %d, want 10", got)
	}
}

func TestParse_ExplicitZeroLateThreshold(t *testing.T) {
	yaml := minimalYAML + "    late_threshold_minutes: 0\n"
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := *cfg.Courses[0].LateThresholdMinutes; got != 0 {
		t.Errorf("LateThresholdMinutes = %d, want 0", got)
	}
}

func TestParse_MySQLDefaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  driver: mysql\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db := cfg.Database
	if db.Host != "127.0.0.1" || db.Port != 3306 || db.User != "root" || db.Name != "rollcall" {
		t.Errorf("Database = %+v", db)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad timezone", "timezone: Mars/Olympus\n", "timezone"},
		{"bad driver", "database:\n  driver: oracle\n", "database.driver"},
		{"postgres needs dsn", "database:\n  driver: postgres\n", "database.dsn"},
		{"slack tokens", "bot:\n  platform: slack\n", "bot.slack.app_token"},
		{"discord token", "bot:\n  platform: discord\n", "bot.discord.bot_token"},
		{"unknown platform", "bot:\n  platform: line\n", "bot.platform"},
		{"redis addr", "conversation:\n  backend: redis\n", "redis.addr"},
		{"bad backend", "conversation:\n  backend: etcd\n", "conversation.backend"},
		{"bad cron", "schedule:\n  reminder_cron: every minute\n", "schedule.reminder_cron"},
		{"course id", "courses:\n  - subject: X\n    weekday: mon\n    start: \"08:00\"\n    end: \"09:00\"\n", "courses[0].id"},
		{"course weekday", "courses:\n  - id: A\n    subject: X\n    weekday: someday\n    start: \"08:00\"\n    end: \"09:00\"\n", "courses[0].weekday"},
		{"course window", "courses:\n  - id: A\n    subject: X\n    weekday: mon\n    start: \"09:00\"\n    end: \"08:00\"\n", "end must be after start"},
		{"course radius", "courses:\n  - id: A\n    subject: X\n    weekday: mon\n    start: \"08:00\"\n    end: \"09:00\"\n    radius_meters: -5\n", "radius_meters"},
		{"half coordinates", "courses:\n  - id: A\n    subject: X\n    weekday: mon\n    start: \"08:00\"\n    end: \"09:00\"\n    latitude: 25\n", "both latitude and longitude"},
		{"unknown class", "classes:\n  - code: K1\ncourses:\n  - id: A\n    subject: X\n    classes: [K2]\n    weekday: mon\n    start: \"08:00\"\n    end: \"09:00\"\n", "unknown class"},
		{"duplicate class", "classes:\n  - code: K1\n  - code: K1\n", "duplicated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("timezone: [unclosed"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q, want config: parse prefix", err.Error())
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollcall.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Courses[0].ID != "C1" {
		t.Errorf("Courses[0].ID = %q, want C1", cfg.Courses[0].ID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want config: read prefix", err.Error())
	}
}

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		in   string
		want time.Weekday
	}{
		{"monday", time.Monday},
		{"Mon", time.Monday},
		{" SUNDAY ", time.Sunday},
		{"sat", time.Saturday},
	}
	for _, tt := range tests {
		got, err := ParseWeekday(tt.in)
		if err != nil {
			t.Errorf("ParseWeekday(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseWeekday(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseWeekday("funday"); err == nil {
		t.Error("expected error for unknown weekday")
	}
}
