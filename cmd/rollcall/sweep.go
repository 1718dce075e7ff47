package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/rollcall/internal/attendance"
)

const atLayout = "2006-01-02 15:04"

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one reminder or absence sweep now",
		Long: `Runs a single sweep outside the scheduler. Sweeps are idempotent, so
running one by hand alongside a live "rollcall serve" is safe.`,
	}

	cmd.AddCommand(newSweepSubCmd("reminders", "Open due sessions and prompt enrolled students", runReminderSweep))
	cmd.AddCommand(newSweepSubCmd("absences", "Close ended sessions and record absences", runAbsenceSweep))
	return cmd
}

type sweepFunc func(ctx context.Context, a *app, n attendance.Notifier, now time.Time) (fmt.Stringer, error)

func newSweepSubCmd(name, short string, fn sweepFunc) *cobra.Command {
	var (
		configPath string
		at         string
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, configPath, at, quiet, fn)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Rollcall config file")
	cmd.Flags().StringVar(&at, "at", "", `sweep as of this local time ("YYYY-MM-DD HH:MM"); defaults to now`)
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not send chat messages")
	return cmd
}

func runSweep(cmd *cobra.Command, configPath, at string, quiet bool, fn sweepFunc) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	now := time.Now().In(a.cfg.Location())
	if at != "" {
		now, err = time.ParseInLocation(atLayout, at, a.cfg.Location())
		if err != nil {
			return fmt.Errorf("invalid --at %q: want %q", at, atLayout)
		}
	}

	var notifier attendance.Notifier
	if !quiet {
		adapter, err := createAdapter(a.cfg, a.log)
		if err != nil {
			return err
		}
		if adapter != nil {
			if err := adapter.Connect(ctx); err != nil {
				return fmt.Errorf("connect to %s: %w", a.cfg.Bot.Platform, err)
			}
			defer adapter.Close()
			notifier = notifierFor(adapter)
		}
	}

	report, err := fn(ctx, a, notifier, now)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sweep at %s: %s\n", now.Format(atLayout), report)
	return nil
}

func runReminderSweep(ctx context.Context, a *app, n attendance.Notifier, now time.Time) (fmt.Stringer, error) {
	s, err := a.reminders(n)
	if err != nil {
		return nil, err
	}
	return s.Sweep(ctx, now)
}

func runAbsenceSweep(ctx context.Context, a *app, n attendance.Notifier, now time.Time) (fmt.Stringer, error) {
	rec, err := a.recorder(n)
	if err != nil {
		return nil, err
	}
	r, err := a.reconciler(rec)
	if err != nil {
		return nil, err
	}
	return r.Sweep(ctx, now)
}
