package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"attendance/internal/attendance"
	"attendance/internal/config"
	"attendance/internal/services"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.Path = filepath.Join(cfg.Paths.DataDir, "attendance.db")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return &cfg
}

func TestSQLiteBackupRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig(t)
	st, err := OpenSQLite(ctx, cfg.Database.Path, time.Minute)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := st.AddEmployee(ctx, attendance.Employee{ID: 4, DisplayName: "Ada Lovelace"}); err != nil {
		t.Fatalf("AddEmployee: %v", err)
	}
	dest := filepath.Join(t.TempDir(), "copy.db")
	if err := st.Backup(ctx, dest); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if _, err := st.RemoveEmployee(ctx, 4); err != nil {
		t.Fatalf("RemoveEmployee: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := Restore(ctx, cfg, dest); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, err := os.Stat(cfg.Database.Path + ".restore"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected temporary restore file to be gone, got %v", err)
	}

	reopened, err := OpenSQLite(ctx, cfg.Database.Path, time.Minute)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.Employee(ctx, 4); err != nil {
		t.Fatalf("expected restored employee: %v", err)
	}
}

func TestRestoreRejectsForeignSchemaVersion(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig(t)
	other := filepath.Join(t.TempDir(), "other.db")
	st, err := OpenSQLite(ctx, other, time.Minute)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if _, err := st.db.ExecContext(ctx, "PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	st.Close()

	err = Restore(ctx, cfg, other)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
	if _, statErr := os.Stat(cfg.Database.Path); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("expected database to be untouched, got %v", statErr)
	}
}

func TestBackupRefusesExistingDestination(t *testing.T) {
	cfg := sqliteConfig(t)
	dest := filepath.Join(t.TempDir(), "exists.db")
	if err := os.WriteFile(dest, []byte("keep"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Backup(context.Background(), cfg, dest); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func stubPostgresTools(t *testing.T, mode string) *[][]string {
	t.Helper()
	var calls [][]string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		calls = append(calls, append([]string{name}, args...))
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "PG_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return &calls
}

func postgresConfig() *config.Config {
	cfg := config.Default()
	cfg.Database.Driver = config.DriverPostgres
	cfg.Database.Host = "db.internal"
	cfg.Database.Port = 5432
	cfg.Database.User = "kiosk"
	cfg.Database.Password = "secret"
	cfg.Database.Name = "attendance"
	return &cfg
}

func TestPostgresBackupRunsPgDump(t *testing.T) {
	calls := stubPostgresTools(t, "success")
	cfg := postgresConfig()
	dest := filepath.Join(t.TempDir(), "dump.sql")

	if err := Backup(context.Background(), cfg, dest); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if len(*calls) != 1 {
		t.Fatalf("expected one pg_dump call, got %v", *calls)
	}
	args := strings.Join((*calls)[0], " ")
	for _, want := range []string{"pg_dump", "--dbname=" + cfg.PostgresDSN(), "--clean", "--file=" + dest} {
		if !strings.Contains(args, want) {
			t.Fatalf("expected %q in %q", want, args)
		}
	}
}

func TestPostgresRestoreReportsToolOutput(t *testing.T) {
	stubPostgresTools(t, "fail")
	src := filepath.Join(t.TempDir(), "dump.sql")
	if err := os.WriteFile(src, []byte("SELECT 1;\n"), 0o644); err != nil {
		t.Fatalf("write dump: %v", err)
	}

	err := Restore(context.Background(), postgresConfig(), src)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "relation does not exist") {
		t.Fatalf("expected psql output in error, got %v", err)
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	if os.Getenv("PG_HELPER_MODE") == "fail" {
		fmt.Fprintln(os.Stderr, "ERROR:  relation does not exist")
		os.Exit(3)
	}
	os.Exit(0)
}
