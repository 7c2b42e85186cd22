package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"attendance/internal/config"
	"attendance/internal/services"
)

var commandContext = exec.CommandContext

const (
	pgDumpBinary = "pg_dump"
	psqlBinary   = "psql"
)

// Backup writes a copy of the configured database to dest. SQLite copies are
// database files; postgres copies are plain SQL scripts from pg_dump.
func Backup(ctx context.Context, cfg *config.Config, dest string) error {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(dest) == "" {
		return services.Wrap(services.ErrValidation, "store", "backup", "destination is required", nil)
	}
	if _, err := os.Stat(dest); err == nil {
		return services.Wrap(services.ErrValidation, "store", "backup", dest+" already exists", nil)
	}
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		return runPostgresTool(ctx, pgDumpBinary,
			"--dbname="+cfg.PostgresDSN(), "--clean", "--if-exists", "--no-owner", "--file="+dest)
	default:
		st, err := OpenSQLite(ctx, cfg.Database.Path, cfg.MinCheckoutGap())
		if err != nil {
			return err
		}
		defer st.Close()
		return st.Backup(ctx, dest)
	}
}

// Restore replaces the configured database with the copy at src. The daemon
// must not hold the database open.
func Restore(ctx context.Context, cfg *config.Config, src string) error {
	ctx = ensureContext(ctx)
	info, err := os.Stat(src)
	if err != nil {
		return services.Wrap(services.ErrValidation, "store", "restore", "backup file", err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "store", "restore", src+" is a directory", nil)
	}
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		return runPostgresTool(ctx, psqlBinary,
			"--dbname="+cfg.PostgresDSN(), "--quiet", "--set=ON_ERROR_STOP=1", "--file="+src)
	default:
		if err := cfg.EnsureDirectories(); err != nil {
			return fmt.Errorf("ensure directories: %w", err)
		}
		return restoreSQLite(ctx, src, cfg.Database.Path)
	}
}

// Backup writes a consistent copy of the database to dest with VACUUM INTO.
func (s *SQLite) Backup(ctx context.Context, dest string) error {
	if _, err := s.db.ExecContext(ensureContext(ctx), "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("backup to %s: %w", dest, err)
	}
	return nil
}

func restoreSQLite(ctx context.Context, src, dst string) error {
	db, err := sql.Open("sqlite", src)
	if err != nil {
		return fmt.Errorf("open backup %s: %w", src, err)
	}
	defer db.Close()

	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return services.Wrap(services.ErrValidation, "store", "restore", src+" is not a sqlite database", err)
	}
	if version != sqliteSchemaVersion {
		return fmt.Errorf("%w: %s has version %d, want %d", ErrSchemaMismatch, src, version, sqliteSchemaVersion)
	}
	var check string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&check); err != nil {
		return fmt.Errorf("check backup: %w", err)
	}
	if check != "ok" {
		return services.Wrap(services.ErrValidation, "store", "restore", "backup failed integrity check: "+check, nil)
	}

	tmp := dst + ".restore"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale %s: %w", tmp, err)
	}
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", tmp); err != nil {
		return fmt.Errorf("copy backup: %w", err)
	}
	// Stale WAL frames would be replayed onto the restored file.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dst + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			_ = os.Remove(tmp)
			return fmt.Errorf("remove %s%s: %w", dst, suffix, err)
		}
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace database: %w", err)
	}
	return nil
}

func runPostgresTool(ctx context.Context, binary string, args ...string) error {
	cmd := commandContext(ctx, binary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return services.Wrap(services.ErrConfiguration, "store", binary, "install the postgres client tools", err)
		}
		return services.Wrap(services.ErrExternalTool, "store", binary, strings.TrimSpace(string(output)), err)
	}
	return nil
}
