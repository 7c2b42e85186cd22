package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"attendance/internal/attendance"
	"attendance/internal/config"
	"attendance/internal/ipc"
	"attendance/internal/store"
)

func newDBBackupCommand(ctx *commandContext) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "backup [path]",
		Short: "Write a copy of the attendance database",
		Long: `Write a copy of the attendance database.

SQLite databases are copied to a new database file. Postgres databases are
dumped as a plain SQL script with pg_dump. Without a path the copy is written
to the current directory as attendance_backup_<timestamp>.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			now := time.Now()
			dest := defaultBackupName(cfg, now)
			if len(args) == 1 {
				dest = args[0]
			}
			if dest, err = config.ExpandPath(dest); err != nil {
				return err
			}
			if err := store.Backup(cmd.Context(), cfg, dest); err != nil {
				return fmt.Errorf("backup database: %w", err)
			}
			if err := ctx.appendAudit(cmd.Context(), username, now, "Database backup to "+dest); err != nil {
				return fmt.Errorf("backup written to %s but not audited: %w", dest, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "Operator account credited in the audit log")
	return cmd
}

func newDBRestoreCommand(ctx *commandContext) *cobra.Command {
	var username string
	var yes bool
	cmd := &cobra.Command{
		Use:   "restore <path>",
		Short: "Replace the attendance database with a backup",
		Long: `Replace the attendance database with a backup written by "db backup".

Stop the daemon first. Everything recorded since the backup is lost.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to replace the attendance database without --yes")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if client, err := ipc.Dial(ctx.socketPath()); err == nil {
				client.Close()
				return errors.New("the daemon is running; stop it with `attendance daemon stop` before restoring")
			}
			src, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			if err := store.Restore(cmd.Context(), cfg, src); err != nil {
				return fmt.Errorf("restore database: %w", err)
			}
			if err := ctx.appendAudit(cmd.Context(), username, time.Now(), "Database restored from "+src); err != nil {
				return fmt.Errorf("database restored from %s but not audited: %w", src, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database restored from %s\n", src)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "Operator account credited in the audit log")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm replacing the database")
	return cmd
}

func defaultBackupName(cfg *config.Config, now time.Time) string {
	ext := ".db"
	if cfg.Database.Driver == config.DriverPostgres {
		ext = ".sql"
	}
	return "attendance_backup_" + now.Format("20060102_150405") + ext
}

// appendAudit records an administrative action. username, when set, must name
// an operator account.
func (c *commandContext) appendAudit(ctx context.Context, username string, at time.Time, action string) error {
	return c.withStore(ctx, func(st store.Store) error {
		entry := attendance.AuditEntry{Timestamp: at, Action: action}
		if username = strings.TrimSpace(username); username != "" {
			id, err := lookupUserID(ctx, st, username)
			if err != nil {
				return err
			}
			entry.UserID = &id
		}
		return st.AppendAudit(ctx, entry)
	})
}
