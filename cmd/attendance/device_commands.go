package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"attendance/internal/config"
	"attendance/internal/fingerprint"
)

// deviceProbeTimeout bounds the connection test run by the device commands.
const deviceProbeTimeout = 3 * time.Second

// newDialer builds the terminal dialer; tests replace it.
var newDialer = func(settings config.Fingerprint) fingerprint.Dialer {
	return fingerprint.TCPDialer{Timeout: deviceProbeTimeout, CommKey: uint32(settings.CommKey)}
}

func newDeviceCommand(ctx *commandContext) *cobra.Command {
	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Fingerprint terminal management",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Test the connection to the fingerprint terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			settings, loadErr := config.NewFingerprintLoader(ctx.resolvedConfigPath(), cfg.Fingerprint).Load()
			if loadErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warn: %v\n", loadErr)
			}
			return reportProbe(cmd, settings)
		},
	}

	setHostCmd := &cobra.Command{
		Use:   "set-host <address>",
		Short: "Save the fingerprint terminal address and test it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := ctx.resolvedConfigPath()
			if path == "" {
				return fmt.Errorf("no configuration file path resolved")
			}
			host := strings.TrimSpace(args[0])
			if err := config.SetFingerprintHost(path, host); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved fingerprint host %s to %s\n", host, path)

			settings, loadErr := config.NewFingerprintLoader(path, cfg.Fingerprint).Load()
			if loadErr != nil {
				return fmt.Errorf("reload fingerprint settings: %w", loadErr)
			}
			return reportProbe(cmd, settings)
		},
	}

	deviceCmd.AddCommand(statusCmd, setHostCmd)
	return deviceCmd
}

func reportProbe(cmd *cobra.Command, settings config.Fingerprint) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	addr := settings.Address()
	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}
	if err := fingerprint.Probe(runCtx, newDialer(settings), addr, deviceProbeTimeout); err != nil {
		fmt.Fprintln(out, renderStatusLine("Fingerprint Terminal", statusError, fmt.Sprintf("%s unreachable: %v", addr, err), colorize))
		return fmt.Errorf("fingerprint terminal %s unreachable", addr)
	}
	fmt.Fprintln(out, renderStatusLine("Fingerprint Terminal", statusOK, addr+" connected", colorize))
	return nil
}
