package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/rollcall/internal/attendance"
)

func newPersonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "person",
		Short: "Student account commands",
	}

	cmd.AddCommand(newPersonUnbindCmd())
	cmd.AddCommand(newPersonShowCmd())
	return cmd
}

func newPersonUnbindCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "unbind <student-id>",
		Short: "Detach a student ID from its chat account",
		Long: `Clears the chat account bound to a student ID so the student can
register again from a different account. Attendance history is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonUnbind(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Rollcall config file")
	return cmd
}

func runPersonUnbind(cmd *cobra.Command, configPath, id string) error {
	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.People.Unbind(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Unbound %s\n", id)
	return nil
}

func newPersonShowCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "show <student-id>",
		Short: "Show a student's status and recent attendance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonShow(cmd, configPath, args[0], limit)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Rollcall config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of recent records to show")
	return cmd
}

func runPersonShow(cmd *cobra.Command, configPath, id string, limit int) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.store.People.Get(ctx, id)
	if err != nil {
		return err
	}
	linked := "not linked"
	if p.MessagingToken != nil {
		linked = p.Platform + " " + *p.MessagingToken
	}
	fmt.Fprintf(out, "%s %s (%s, %s)\n", p.ID, p.Name, p.Status, linked)
	fmt.Fprintf(out, "  on-time %d, late %d, absent %d (%.1f%%)\n", p.OnTimeCount, p.LateCount, p.AbsentCount, p.AttendanceRate)

	rec, err := a.recorder(nil)
	if err != nil {
		return err
	}
	records, err := rec.Recent(ctx, id, limit)
	if err != nil {
		return err
	}
	loc := a.cfg.Location()
	for _, r := range records {
		fmt.Fprintf(out, "  %s  %-8s %s\n", r.RecordedAt.In(loc).Format(atLayout), attendance.StatusLabel(r.Status), r.SessionID)
	}
	return nil
}
