package main

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/rollcall/internal/attendance"
	"github.com/zulandar/rollcall/internal/bot"
	discordadapter "github.com/zulandar/rollcall/internal/bot/discord"
	slackadapter "github.com/zulandar/rollcall/internal/bot/slack"
	"github.com/zulandar/rollcall/internal/config"
	"github.com/zulandar/rollcall/internal/conversation"
	"github.com/zulandar/rollcall/internal/db"
	"github.com/zulandar/rollcall/internal/metrics"
	"github.com/zulandar/rollcall/internal/reconcile"
	"github.com/zulandar/rollcall/internal/reminder"
	"github.com/zulandar/rollcall/internal/session"
	"github.com/zulandar/rollcall/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const redisKeyPrefix = "rollcall:conv:"

// app is the wired component graph shared by the subcommands.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	db       *gorm.DB
	store    *store.Store
	registry *session.Registry
	metrics  *metrics.Metrics
}

// newLogger builds the zap logger selected by the config.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Log.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadApp loads the config, connects to the database and builds the
// session registry. The caller must call close.
func loadApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	st := store.NewGorm(gormDB)
	reg, err := session.NewRegistry(session.RegistryOpts{
		Sessions: st.Sessions,
		Courses:  st.Courses,
		Location: cfg.Location(),
		Log:      log,
	})
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:      cfg,
		log:      log,
		db:       gormDB,
		store:    st,
		registry: reg,
		metrics:  metrics.New(),
	}, nil
}

func (a *app) close() {
	_ = a.log.Sync()
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (a *app) recorder(n attendance.Notifier) (*attendance.Recorder, error) {
	return attendance.NewRecorder(attendance.RecorderOpts{
		Store:    a.store,
		Notifier: n,
		Location: a.cfg.Location(),
		Log:      a.log,
		Metrics:  a.metrics,
	})
}

func (a *app) reminders(n attendance.Notifier) (*reminder.Scheduler, error) {
	return reminder.NewScheduler(reminder.SchedulerOpts{
		Store:         a.store,
		Registry:      a.registry,
		Notifier:      n,
		RemindMinutes: a.cfg.Schedule.RemindMinutes,
		Tolerance:     time.Duration(a.cfg.Schedule.ToleranceMinutes) * time.Minute,
		Log:           a.log,
		Metrics:       a.metrics,
	})
}

func (a *app) reconciler(rec *attendance.Recorder) (*reconcile.Reconciler, error) {
	return reconcile.NewReconciler(reconcile.ReconcilerOpts{
		Store:        a.store,
		Registry:     a.registry,
		Recorder:     rec,
		ClosingGrace: time.Duration(a.cfg.Schedule.ClosingGraceMinutes) * time.Minute,
		Log:          a.log,
		Metrics:      a.metrics,
	})
}

// conversations returns the configured conversation store. The returned
// check is nil for the memory backend.
func (a *app) conversations(ctx context.Context) (conversation.Store, func(context.Context) error, error) {
	ttl := a.cfg.Conversation.TTL
	switch a.cfg.Conversation.Backend {
	case "", "memory":
		return conversation.NewMemoryStore(ttl), nil, nil
	case "redis":
		client := conversation.NewRedisClient(a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", a.cfg.Redis.Addr, err)
		}
		check := func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return conversation.NewRedisStore(client, redisKeyPrefix, ttl), check, nil
	default:
		return nil, nil, fmt.Errorf("unsupported conversation backend %q", a.cfg.Conversation.Backend)
	}
}

// createAdapter builds a platform adapter from the config. It returns nil
// when no platform is configured.
func createAdapter(cfg *config.Config, log *zap.Logger) (bot.Adapter, error) {
	switch cfg.Bot.Platform {
	case "":
		return nil, nil
	case "slack":
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken:  cfg.Bot.Slack.AppToken,
			BotToken:  cfg.Bot.Slack.BotToken,
			ChannelID: cfg.Bot.Channel,
			Log:       log,
		})
	case "discord":
		return discordadapter.New(discordadapter.AdapterOpts{
			BotToken:  cfg.Bot.Discord.BotToken,
			ChannelID: cfg.Bot.Channel,
			Log:       log,
		})
	default:
		return nil, fmt.Errorf("unsupported bot platform %q", cfg.Bot.Platform)
	}
}

// notifierFor wraps adapter, keeping a nil adapter as a nil Notifier.
func notifierFor(adapter bot.Adapter) attendance.Notifier {
	if adapter == nil {
		return nil
	}
	return bot.NewAdapterNotifier(adapter)
}
