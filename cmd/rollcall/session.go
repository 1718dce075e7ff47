package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/rollcall/internal/bot"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Check-in session commands",
	}

	cmd.AddCommand(newSessionOpenCmd())
	return cmd
}

func newSessionOpenCmd() *cobra.Command {
	var (
		configPath string
		courseID   string
		date       string
	)

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a check-in session by hand",
		Long: `Opens a session for a course on a date (today by default) and prints
the check-in codes. If a session is already open it is reused.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionOpen(cmd, configPath, courseID, date)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Rollcall config file")
	cmd.Flags().StringVar(&courseID, "course", "", "course ID (required)")
	cmd.Flags().StringVar(&date, "date", "", "session date as YYYY-MM-DD (default today)")
	cmd.MarkFlagRequired("course")
	return cmd
}

func runSessionOpen(cmd *cobra.Command, configPath, courseID, date string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if date == "" {
		date = a.registry.Today()
	}
	course, err := a.store.Courses.Get(ctx, courseID)
	if err != nil {
		return err
	}
	sess, created, err := a.registry.OpenOrReuse(ctx, course, date)
	if err != nil {
		return err
	}

	verb := "Opened"
	if !created {
		verb = "Reusing"
	}
	loc := a.cfg.Location()
	fmt.Fprintf(out, "%s session %s for %s on %s (%s-%s)\n", verb, sess.ID, course.ID, sess.Date,
		sess.StartAt.In(loc).Format("15:04"), sess.EndAt.In(loc).Format("15:04"))
	fmt.Fprintf(out, "  direct code: %s\n", bot.CheckinCode{Mode: bot.ModeDirect, CourseID: course.ID, SessionID: sess.ID})
	fmt.Fprintf(out, "  gps code:    %s\n", bot.CheckinCode{Mode: bot.ModeGPS, CourseID: course.ID, SessionID: sess.ID})
	return nil
}
