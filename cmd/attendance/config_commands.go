package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"attendance/internal/config"
)

var skipConfig = map[string]string{"skipConfigLoad": "true"}

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Create or check attendance.toml"}
	cmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand(ctx))
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		dest      string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample config",
		Annotations: skipConfig,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := initTarget(dest)
			if err != nil {
				return err
			}
			if _, err := os.Stat(target); err == nil && !overwrite {
				return fmt.Errorf("%s exists; pass --overwrite to replace it", target)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("inspect %s: %w", target, err)
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintf(out, "Set [fingerprint] host and [face] encoder_url in %s before starting the kiosk.\n", filepath.Base(target))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "path", "p", "", "Where to write the config (default ~/.config/attendance/config.toml)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func initTarget(flag string) (string, error) {
	if flag = strings.TrimSpace(flag); flag != "" {
		return config.ExpandPath(flag)
	}
	return config.DefaultConfigPath()
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Parse and validate the config, creating its directories",
		Annotations: skipConfig,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var flag string
			if ctx.configFlag != nil {
				flag = *ctx.configFlag
			}
			cfg, resolved, exists, err := config.Load(strings.TrimSpace(flag))
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", resolved)
			if !exists {
				fmt.Fprintln(out, "File not found, showing defaults")
			}
			fmt.Fprintf(out, "Database: %s\n", cfg.Database.Driver)
			fmt.Fprintf(out, "Fingerprint terminal: %s\n", cfg.Fingerprint.Address())
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
