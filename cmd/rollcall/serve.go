package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/rollcall/internal/bot"
	"github.com/zulandar/rollcall/internal/conversation"
	"github.com/zulandar/rollcall/internal/dashboard"
	"github.com/zulandar/rollcall/internal/scheduler"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var (
		configPath  string
		noDashboard bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the sweep scheduler and the dashboard",
		Long: `Connects to the configured chat platform, schedules the reminder and
absence sweeps, and serves the dashboard until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, cmd, configPath, !noDashboard)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Rollcall config file")
	cmd.Flags().BoolVar(&noDashboard, "no-dashboard", false, "do not serve the dashboard")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, configPath string, withDashboard bool) error {
	out := cmd.OutOrStdout()

	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()
	fmt.Fprintf(out, "Loaded config from %s (timezone %s)\n", configPath, a.cfg.Timezone)

	adapter, err := createAdapter(a.cfg, a.log)
	if err != nil {
		return err
	}
	if adapter != nil {
		// Sweeps push through the adapter before the daemon's own
		// (idempotent) Connect would run.
		if err := adapter.Connect(ctx); err != nil {
			return fmt.Errorf("connect to %s: %w", a.cfg.Bot.Platform, err)
		}
		defer adapter.Close()
	} else {
		fmt.Fprintln(out, "No bot platform configured; sessions open without prompts")
	}
	notifier := notifierFor(adapter)

	recorder, err := a.recorder(notifier)
	if err != nil {
		return err
	}
	reminders, err := a.reminders(notifier)
	if err != nil {
		return err
	}
	reconciler, err := a.reconciler(recorder)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.SchedulerOpts{Location: a.cfg.Location(), Log: a.log})
	jobs := []scheduler.Job{
		{
			Name: "reminders",
			Spec: a.cfg.Schedule.ReminderCron,
			Run: func(ctx context.Context, now time.Time) error {
				_, err := reminders.Sweep(ctx, now)
				return err
			},
		},
		{
			Name: "absences",
			Spec: a.cfg.Schedule.AbsenceCron,
			Run: func(ctx context.Context, now time.Time) error {
				_, err := reconciler.Sweep(ctx, now)
				return err
			},
		},
	}
	for _, job := range jobs {
		if err := sched.Add(job); err != nil {
			return err
		}
		fmt.Fprintf(out, "Scheduled %s sweep (%s)\n", job.Name, job.Spec)
	}

	var (
		daemon     *bot.Daemon
		redisCheck func(context.Context) error
	)
	if adapter != nil {
		var convs conversation.Store
		convs, redisCheck, err = a.conversations(ctx)
		if err != nil {
			return err
		}
		machine, err := bot.NewMachine(bot.MachineOpts{
			Store:              a.store,
			Registry:           a.registry,
			Recorder:           recorder,
			Conversations:      convs,
			MaxGeofenceRetries: a.cfg.Conversation.MaxGeofenceRetries,
			Log:                a.log,
			Metrics:            a.metrics,
		})
		if err != nil {
			return err
		}
		daemon, err = bot.NewDaemon(bot.DaemonOpts{
			Adapter:         adapter,
			Machine:         machine,
			AnnounceChannel: a.cfg.Bot.Channel,
			Log:             a.log,
			Out:             out,
		})
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		once sync.Once
		ferr error
	)
	// The first component to fail stops the others.
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				a.log.Error("component failed", zap.String("component", name), zap.Error(err))
				once.Do(func() { ferr = fmt.Errorf("%s: %w", name, err) })
				cancel()
			}
		}()
	}

	run("scheduler", sched.Run)
	if daemon != nil {
		run("bot", daemon.Run)
	}
	if withDashboard {
		opts := dashboardOpts(a, out, redisCheck)
		run("dashboard", func(ctx context.Context) error { return dashboard.Start(ctx, opts) })
	}

	wg.Wait()
	return ferr
}

// dashboardOpts wires the dashboard with database and, when used, redis
// health checks.
func dashboardOpts(a *app, out io.Writer, redisCheck func(context.Context) error) dashboard.StartOpts {
	checks := map[string]dashboard.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisCheck != nil {
		checks["redis"] = redisCheck
	}
	return dashboard.StartOpts{
		Store:       a.store,
		Registry:    a.registry,
		Metrics:     a.metrics,
		TokenSecret: a.cfg.Dashboard.TokenSecret,
		TokenIssuer: a.cfg.Dashboard.TokenIssuer,
		Checks:      checks,
		Port:        a.cfg.Dashboard.Port,
		Out:         out,
		Log:         a.log,
	}
}
