package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"attendance/internal/daemonctl"
	"attendance/internal/ipc"
)

const (
	daemonStartTimeout = 10 * time.Second
	daemonStopGrace    = 5 * time.Second
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{Use: "daemon", Short: "Run and inspect attendanced"}

	start := &cobra.Command{
		Use:   "start",
		Short: "Launch attendanced (or resume its kiosk services)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			result, err := startDaemon(ctx, level)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if result.Launched {
				fmt.Fprintln(out, "Launching attendanced...")
			}
			fmt.Fprintln(out, describeStart(result))
			return nil
		},
	}

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop kiosk services and terminate attendanced",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stopped, err := stopDaemon(ctx, cmd.OutOrStdout())
			if err == nil && !stopped {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
			}
			return err
		},
	}

	restart := &cobra.Command{
		Use:   "restart",
		Short: "Stop then start attendanced",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := stopDaemon(ctx, cmd.OutOrStdout()); err != nil {
				return err
			}
			level, _ := cmd.Flags().GetString("log-level")
			result, err := startDaemon(ctx, level)
			if err != nil {
				return err
			}
			if result.State == daemonctl.StartStateRequested {
				fmt.Fprintln(cmd.OutOrStdout(), describeStart(result))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon restarted")
			return nil
		},
	}

	for _, c := range []*cobra.Command{start, restart} {
		c.Flags().String("log-level", "", "Daemon log level: debug, info, warn or error")
	}
	cmd.AddCommand(start, stop, restart, newDaemonLogsCommand(ctx))
	return cmd
}

func startDaemon(ctx *commandContext, logLevel string) (daemonctl.StartResult, error) {
	self, err := os.Executable()
	if err != nil {
		return daemonctl.StartResult{}, fmt.Errorf("locate attendance binary: %w", err)
	}
	exe, err := daemonctl.ResolveExecutable(self)
	if err != nil {
		return daemonctl.StartResult{}, err
	}
	opts := daemonctl.LaunchOptions{LogLevel: strings.TrimSpace(logLevel)}
	if path := ctx.resolvedConfigPath(); path != "" {
		if _, err := os.Stat(path); err == nil {
			opts.ConfigPath = path
		}
	}
	return daemonctl.EnsureStarted(ctx.socketPath(), exe, opts, daemonStartTimeout)
}

// stopDaemon reports false when no daemon was listening.
func stopDaemon(ctx *commandContext, out io.Writer) (bool, error) {
	result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), daemonStopGrace)
	if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !result.StopAcknowledged {
		fmt.Fprintln(out, "Daemon did not acknowledge the stop request")
	}
	if result.ForcedKill {
		fmt.Fprintf(out, "Killed attendanced (pid %d) after %s\n", result.PID, daemonStopGrace)
	}
	fmt.Fprintln(out, "Daemon stopped")
	return true, nil
}

func describeStart(result daemonctl.StartResult) string {
	switch result.State {
	case daemonctl.StartStateStarted:
		return "Daemon started"
	case daemonctl.StartStateAlreadyRunning:
		return "Daemon already running"
	}
	if msg := strings.TrimSpace(result.Message); msg != "" {
		return msg
	}
	return "Start request sent"
}

func newDaemonLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		follow  bool
		lines   int
		session string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the daemon log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := ipc.LogTailRequest{
				Offset:     -1,
				Limit:      max(lines, 0),
				Follow:     follow,
				WaitMillis: 1000,
				Match:      strings.TrimSpace(session),
			}
			if req.Limit == 0 {
				req.Offset = 0
			}
			out := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				total := 0
				for {
					resp, err := client.LogTail(req)
					if err != nil {
						return fmt.Errorf("tail daemon log: %w", err)
					}
					for _, line := range resp.Lines {
						fmt.Fprintln(out, line)
					}
					total += len(resp.Lines)
					req.Offset, req.Limit = resp.Offset, 0
					if !follow {
						if total == 0 {
							fmt.Fprintln(out, "No log entries available")
						}
						return nil
					}
					if c := cmd.Context(); c != nil && c.Err() != nil {
						return nil
					}
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Lines of history to print (0 for the whole file)")
	cmd.Flags().StringVar(&session, "session", "", "Only lines mentioning this session ID")
	return cmd
}
