package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func TestStatusCommandWithDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "System Status")
	requireContains(t, out, "Daemon")
	requireContains(t, out, "Today")
	requireContains(t, out, "Absent")
	if strings.Contains(out, "daemon unreachable") {
		t.Fatalf("daemon should be reachable:\n%s", out)
	}
}

func TestStatusCommandWithoutDaemon(t *testing.T) {
	configPath := adminEnv(t)
	socket := filepath.Join(t.TempDir(), "none.sock")

	out, _, err := runCLI(t, []string{"status"}, socket, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "daemon unreachable")
}

func TestDaemonLogsFiltersBySession(t *testing.T) {
	env := setupCLITestEnv(t)
	logPath := env.daemon.LogPath()
	for _, line := range []string{"boot", "session_id=abc step one", "other", "session_id=abc step two"} {
		if err := appendLine(logPath, line); err != nil {
			t.Fatalf("append log: %v", err)
		}
	}

	out, _, err := runCLI(t, []string{"daemon", "logs", "-n", "2"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("daemon logs: %v", err)
	}
	if strings.Contains(out, "boot") {
		t.Fatalf("expected only the last two lines, got %q", out)
	}
	requireContains(t, out, "step two")

	out, _, err = runCLI(t, []string{"daemon", "logs", "-n", "0", "--session", "abc"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("daemon logs --session: %v", err)
	}
	requireContains(t, out, "step one")
	requireContains(t, out, "step two")
	if strings.Contains(out, "other") {
		t.Fatalf("unexpected unrelated line in %q", out)
	}
}

func TestDaemonStopWhenNotRunning(t *testing.T) {
	configPath := adminEnv(t)
	socket := filepath.Join(t.TempDir(), "none.sock")

	out, _, err := runCLI(t, []string{"daemon", "stop"}, socket, configPath)
	if err != nil {
		t.Fatalf("daemon stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestCommandsNeedingDaemonExplainMissingSocket(t *testing.T) {
	configPath := adminEnv(t)
	socket := filepath.Join(t.TempDir(), "none.sock")

	_, _, err := runCLI(t, []string{"camera", "restart"}, socket, configPath)
	if err == nil {
		t.Fatal("expected error without a daemon")
	}
	requireContains(t, err.Error(), "attendance daemon start")
}
