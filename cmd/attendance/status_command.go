package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"attendance/internal/daemonctl"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, device and attendance status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, snap)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			for _, line := range renderSectionHeader("System Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range snap.Lines {
				fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
			}
			if !snap.Reachable {
				fmt.Fprintln(stdout, renderStatusLine("Note", statusInfo, "daemon unreachable; device checks ran locally", colorize))
			}

			fmt.Fprintln(stdout)
			for _, line := range renderSectionHeader("Today", colorize) {
				fmt.Fprintln(stdout, line)
			}
			today := snap.Status.Today
			if today == nil {
				fmt.Fprintln(stdout, "Attendance statistics unavailable")
				return nil
			}
			rows := [][]string{
				{"Present", strconv.Itoa(today.Present)},
				{"Absent", strconv.Itoa(today.Absent)},
				{"Total", strconv.Itoa(today.Total)},
			}
			fmt.Fprintf(stdout, "Date: %s\n", today.Date)
			fmt.Fprint(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the status snapshot as JSON")
	return cmd
}
