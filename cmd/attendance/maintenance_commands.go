package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"attendance/internal/ipc"
	"attendance/internal/preflight"
	"attendance/internal/store"
)

func newCameraCommand(ctx *commandContext) *cobra.Command {
	cameraCmd := &cobra.Command{
		Use:   "camera",
		Short: "Kiosk camera control",
	}
	cameraCmd.AddCommand(&cobra.Command{
		Use:   "restart",
		Short: "Reopen the camera source and restart the preview",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RestartCamera()
				if err != nil {
					return fmt.Errorf("restart camera: %w", err)
				}
				if resp.Restarting {
					fmt.Fprintln(cmd.OutOrStdout(), "Camera restarting")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Camera restart not requested")
				}
				return nil
			})
		},
	})
	return cameraCmd
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					if resp != nil && resp.Message != "" {
						fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
					}
					return err
				}
				if resp == nil {
					return errors.New("missing notification response")
				}
				switch {
				case resp.Message != "":
					fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				case resp.Sent:
					fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
				default:
					fmt.Fprintln(cmd.OutOrStdout(), "Notification not sent")
				}
				return nil
			})
		},
	}
}

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check the database, encoder, camera and fingerprint terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := runPreflight(cmd, ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, results)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			failed := 0
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
					failed++
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if failed > 0 {
				return fmt.Errorf("%d preflight check(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	return cmd
}

// runPreflight prefers the daemon's view, which shares its open store and
// device connections, and runs the checks locally otherwise.
func runPreflight(cmd *cobra.Command, ctx *commandContext) ([]preflight.Result, error) {
	if client, err := ipc.Dial(ctx.socketPath()); err == nil {
		defer client.Close()
		if resp, err := client.Preflight(); err == nil {
			return resp.Results, nil
		}
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	var results []preflight.Result
	err = ctx.withStore(cmd.Context(), func(st store.Store) error {
		results = preflight.RunAll(cmd.Context(), cfg, st)
		return nil
	})
	if err != nil {
		results = append(preflight.RunAll(cmd.Context(), cfg, nil), preflight.Result{
			Name:   "Database (" + cfg.Database.Driver + ")",
			Detail: err.Error(),
		})
	}
	return results, nil
}
