// Package config provides YAML-based configuration loading for Rollcall.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Rollcall configuration, loaded from rollcall.yaml.
type Config struct {
	Timezone     string             `yaml:"timezone"`
	Database     DatabaseConfig     `yaml:"database"`
	Bot          BotConfig          `yaml:"bot"`
	Conversation ConversationConfig `yaml:"conversation"`
	Redis        RedisConfig        `yaml:"redis"`
	Schedule     ScheduleConfig     `yaml:"schedule"`
	Dashboard    DashboardConfig    `yaml:"dashboard"`
	Log          LogConfig          `yaml:"log"`
	Classes      []ClassConfig      `yaml:"classes"`
	Courses      []CourseConfig     `yaml:"courses"`

	location *time.Location
}

// DatabaseConfig selects the GORM dialect and its connection settings.
// For mysql, DSN may be left empty and built from the host fields.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite, mysql, postgres
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// BotConfig holds chat platform credentials.
type BotConfig struct {
	Platform string        `yaml:"platform"` // slack, discord, or empty to run without a bot
	Channel  string        `yaml:"channel"`
	Slack    SlackConfig   `yaml:"slack"`
	Discord  DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Socket Mode tokens.
type SlackConfig struct {
	AppToken string `yaml:"app_token"`
	BotToken string `yaml:"bot_token"`
}

// DiscordConfig holds the Discord bot token.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// ConversationConfig controls where multi-step chat flows are kept.
type ConversationConfig struct {
	Backend            string        `yaml:"backend"` // memory, redis
	TTL                time.Duration `yaml:"ttl"`
	MaxGeofenceRetries int           `yaml:"max_geofence_retries"`
}

// RedisConfig is used when conversation.backend is redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ScheduleConfig defines sweep cadence and reminder policy.
type ScheduleConfig struct {
	ReminderCron        string `yaml:"reminder_cron"`
	AbsenceCron         string `yaml:"absence_cron"`
	RemindMinutes       int    `yaml:"remind_minutes"`
	ToleranceMinutes    int    `yaml:"tolerance_minutes"`
	ClosingGraceMinutes int    `yaml:"closing_grace_minutes"`
}

// DashboardConfig configures the HTTP surface.
type DashboardConfig struct {
	Port        int    `yaml:"port"`
	TokenSecret string `yaml:"token_secret"`
	TokenIssuer string `yaml:"token_issuer"`
}

// LogConfig selects the zap preset.
type LogConfig struct {
	Development bool `yaml:"development"`
}

// ClassConfig seeds a Class row.
type ClassConfig struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// CourseConfig seeds a Course row.
type CourseConfig struct {
	ID                   string   `yaml:"id"`
	Subject              string   `yaml:"subject"`
	Classes              []string `yaml:"classes"`
	Weekday              string   `yaml:"weekday"`
	Start                string   `yaml:"start"`
	End                  string   `yaml:"end"`
	Latitude             *float64 `yaml:"latitude"`
	Longitude            *float64 `yaml:"longitude"`
	RadiusMeters         int      `yaml:"radius_meters"`
	LateThresholdMinutes *int     `yaml:"late_threshold_minutes"`
	RemindMinutes        int      `yaml:"remind_minutes"`
	Inactive             bool     `yaml:"inactive"`
}

// Defaults used when a field is omitted.
const (
	DefaultTimezone             = "UTC"
	DefaultReminderCron         = "* * * * *"
	DefaultAbsenceCron          = "*/5 * * * *"
	DefaultRemindMinutes        = 10
	DefaultToleranceMinutes     = 5
	DefaultClosingGraceMinutes  = 30
	DefaultMaxGeofenceRetries   = 3
	DefaultLateThresholdMinutes = 10
	DefaultConversationTTL      = 30 * time.Minute
	DefaultDashboardPort        = 8080
)

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location returns the civil timezone all schedule math runs in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return time.UTC
		}
		c.location = loc
	}
	return c.location
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = "rollcall.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "rollcall"
		}
	}
	if c.Conversation.Backend == "" {
		c.Conversation.Backend = "memory"
	}
	if c.Conversation.TTL == 0 {
		c.Conversation.TTL = DefaultConversationTTL
	}
	if c.Conversation.MaxGeofenceRetries == 0 {
		c.Conversation.MaxGeofenceRetries = DefaultMaxGeofenceRetries
	}
	if c.Schedule.ReminderCron == "" {
		c.Schedule.ReminderCron = DefaultReminderCron
	}
	if c.Schedule.AbsenceCron == "" {
		c.Schedule.AbsenceCron = DefaultAbsenceCron
	}
	if c.Schedule.RemindMinutes == 0 {
		c.Schedule.RemindMinutes = DefaultRemindMinutes
	}
	if c.Schedule.ToleranceMinutes == 0 {
		c.Schedule.ToleranceMinutes = DefaultToleranceMinutes
	}
	if c.Schedule.ClosingGraceMinutes == 0 {
		c.Schedule.ClosingGraceMinutes = DefaultClosingGraceMinutes
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = DefaultDashboardPort
	}
	if c.Dashboard.TokenIssuer == "" {
		c.Dashboard.TokenIssuer = "rollcall"
	}
	for i := range c.Courses {
		if c.Courses[i].LateThresholdMinutes == nil {
			v := DefaultLateThresholdMinutes
			c.Courses[i].LateThresholdMinutes = &v
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Sprintf("timezone %q is not a known location", c.Timezone))
	} else {
		c.location = loc
	}

	switch c.Database.Driver {
	case "sqlite", "mysql":
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite, mysql or postgres", c.Database.Driver))
	}

	switch c.Bot.Platform {
	case "":
	case "slack":
		if c.Bot.Slack.AppToken == "" {
			errs = append(errs, "bot.slack.app_token is required")
		}
		if c.Bot.Slack.BotToken == "" {
			errs = append(errs, "bot.slack.bot_token is required")
		}
	case "discord":
		if c.Bot.Discord.BotToken == "" {
			errs = append(errs, "bot.discord.bot_token is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("bot.platform %q must be slack or discord", c.Bot.Platform))
	}

	switch c.Conversation.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, "redis.addr is required when conversation.backend is redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("conversation.backend %q must be memory or redis", c.Conversation.Backend))
	}
	if c.Conversation.MaxGeofenceRetries < 0 {
		errs = append(errs, "conversation.max_geofence_retries must not be negative")
	}

	if _, err := cron.ParseStandard(c.Schedule.ReminderCron); err != nil {
		errs = append(errs, fmt.Sprintf("schedule.reminder_cron: %v", err))
	}
	if _, err := cron.ParseStandard(c.Schedule.AbsenceCron); err != nil {
		errs = append(errs, fmt.Sprintf("schedule.absence_cron: %v", err))
	}
	if c.Schedule.ToleranceMinutes < 0 {
		errs = append(errs, "schedule.tolerance_minutes must not be negative")
	}

	classes := make(map[string]bool, len(c.Classes))
	for i, cl := range c.Classes {
		if cl.Code == "" {
			errs = append(errs, fmt.Sprintf("classes[%d].code is required", i))
			continue
		}
		if classes[cl.Code] {
			errs = append(errs, fmt.Sprintf("classes[%d].code %q is duplicated", i, cl.Code))
		}
		classes[cl.Code] = true
	}

	courses := make(map[string]bool, len(c.Courses))
	for i, co := range c.Courses {
		if co.ID == "" {
			errs = append(errs, fmt.Sprintf("courses[%d].id is required", i))
		} else if courses[co.ID] {
			errs = append(errs, fmt.Sprintf("courses[%d].id %q is duplicated", i, co.ID))
		}
		courses[co.ID] = true
		if co.Subject == "" {
			errs = append(errs, fmt.Sprintf("courses[%d].subject is required", i))
		}
		if _, err := ParseWeekday(co.Weekday); err != nil {
			errs = append(errs, fmt.Sprintf("courses[%d].weekday: %v", i, err))
		}
		start, errStart := parseClock(co.Start)
		end, errEnd := parseClock(co.End)
		if errStart != nil {
			errs = append(errs, fmt.Sprintf("courses[%d].start: %v", i, errStart))
		}
		if errEnd != nil {
			errs = append(errs, fmt.Sprintf("courses[%d].end: %v", i, errEnd))
		}
		if errStart == nil && errEnd == nil && !end.After(start) {
			errs = append(errs, fmt.Sprintf("courses[%d].end must be after start", i))
		}
		if co.RadiusMeters < -1 {
			errs = append(errs, fmt.Sprintf("courses[%d].radius_meters must be -1, 0 or positive", i))
		}
		if (co.Latitude == nil) != (co.Longitude == nil) {
			errs = append(errs, fmt.Sprintf("courses[%d] needs both latitude and longitude", i))
		}
		if co.Latitude != nil && (*co.Latitude < -90 || *co.Latitude > 90) {
			errs = append(errs, fmt.Sprintf("courses[%d].latitude out of range", i))
		}
		if co.Longitude != nil && (*co.Longitude < -180 || *co.Longitude > 180) {
			errs = append(errs, fmt.Sprintf("courses[%d].longitude out of range", i))
		}
		if co.LateThresholdMinutes != nil && *co.LateThresholdMinutes < 0 {
			errs = append(errs, fmt.Sprintf("courses[%d].late_threshold_minutes must not be negative", i))
		}
		for _, code := range co.Classes {
			if len(c.Classes) > 0 && !classes[code] {
				errs = append(errs, fmt.Sprintf("courses[%d] references unknown class %q", i, code))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday accepts full or three-letter English weekday names.
func ParseWeekday(s string) (time.Weekday, error) {
	wd, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return wd, nil
}

func parseClock(s string) (time.Time, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	return t, nil
}
