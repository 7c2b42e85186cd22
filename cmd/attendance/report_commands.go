package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"attendance/internal/attendance"
	"attendance/internal/ipc"
	"attendance/internal/store"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var filter attendance.ReportFilter
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show attendance records",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, day := range []string{filter.From, filter.To} {
				if day != "" && !attendance.ValidDay(day) {
					return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", day)
				}
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				rows, err := st.Report(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, rows)
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No attendance records")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderReport(rows, cfg.Location()))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filter.From, "from", "", "First day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&filter.To, "to", "", "Last day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&filter.Department, "department", "", "Only include this department")
	cmd.Flags().Int64Var(&filter.EmployeeID, "employee", 0, "Only include this employee ID")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print records as JSON")
	return cmd
}

func renderReport(rows []attendance.ReportRow, loc *time.Location) string {
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		table = append(table, []string{
			r.Date,
			strconv.FormatInt(r.EmployeeID, 10),
			r.DisplayName,
			r.Department,
			r.Position,
			clockTime(r.CheckIn, loc),
			clockTime(r.CheckOut, loc),
			durationText(r.Duration),
		})
	}
	return renderTable(
		[]string{"Date", "ID", "Name", "Department", "Position", "In", "Out", "Worked"},
		table,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func clockTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return t.In(loc).Format("15:04:05")
}

func durationText(d *time.Duration) string {
	if d == nil {
		return "-"
	}
	return attendance.FormatDuration(*d)
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var day string
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show present and absent counts for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			day = strings.TrimSpace(day)
			if day == "" {
				day = attendance.Day(time.Now(), cfg.Location())
			} else if !attendance.ValidDay(day) {
				return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", day)
			}
			stats, err := dailyStats(cmd, ctx, day)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Date: %s\n", stats.Date)
			fmt.Fprint(out, renderTable([]string{"Status", "Count"}, [][]string{
				{"Present", strconv.Itoa(stats.Present)},
				{"Absent", strconv.Itoa(stats.Absent)},
				{"Total", strconv.Itoa(stats.Total)},
			}, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "date", "", "Day to summarize (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print statistics as JSON")
	return cmd
}

// dailyStats asks the running daemon first and reads the database directly
// when no daemon answers.
func dailyStats(cmd *cobra.Command, ctx *commandContext, day string) (attendance.DailyStats, error) {
	if client, err := ipc.Dial(ctx.socketPath()); err == nil {
		defer client.Close()
		if resp, err := client.DailyStats(day); err == nil {
			return resp.Stats, nil
		}
	}
	var stats attendance.DailyStats
	err := ctx.withStore(cmd.Context(), func(st store.Store) error {
		var err error
		stats, err = st.DailyStats(cmd.Context(), day)
		return err
	})
	return stats, err
}

func newAuditLogsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				entries, err := st.ListAudit(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Audit log is empty")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						e.Timestamp.In(cfg.Location()).Format("2006-01-02 15:04:05"),
						e.Actor,
						e.Action,
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Time", "Actor", "Action"}, rows, nil))
				return nil
			})
		},
	}
	logsCmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print entries as JSON")

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every audit log entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear the audit log without --yes")
			}
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				n, err := st.ClearAudit(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d audit entries\n", n)
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")

	logsCmd.AddCommand(clearCmd)
	return logsCmd
}

func newDBCommand(ctx *commandContext) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database utilities",
	}
	var jsonOutput bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show database backend and row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				status, err := st.DBStatus(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Backend: %s\n", status.Backend)
				fmt.Fprint(out, renderTable([]string{"Table", "Rows"}, [][]string{
					{"employees", strconv.Itoa(status.Employees)},
					{"users", strconv.Itoa(status.Users)},
					{"attendance", strconv.Itoa(status.Attendance)},
					{"audit_log", strconv.Itoa(status.AuditLog)},
				}, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print counts as JSON")
	dbCmd.AddCommand(statusCmd, newDBBackupCommand(ctx), newDBRestoreCommand(ctx))
	return dbCmd
}

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	recordsCmd := &cobra.Command{
		Use:   "records",
		Short: "Attendance record maintenance",
	}
	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every attendance record",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete attendance records without --yes")
			}
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				n, err := st.DeleteAllAttendance(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d attendance records\n", n)
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	recordsCmd.AddCommand(
		newManualRecordCommand(ctx, attendance.CheckIn),
		newManualRecordCommand(ctx, attendance.CheckOut),
		clearCmd,
	)
	return recordsCmd
}
