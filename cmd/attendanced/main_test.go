package main

import (
	"context"
	"path/filepath"
	"testing"

	"attendance/internal/config"
	"attendance/internal/daemonrun"
	"attendance/internal/testsupport"
)

func stubRun(t *testing.T) (*config.Config, *daemonrun.Options) {
	t.Helper()
	var gotCfg config.Config
	var gotOpts daemonrun.Options
	previous := runDaemon
	runDaemon = func(_ context.Context, cfg *config.Config, opts daemonrun.Options) error {
		gotCfg = *cfg
		gotOpts = opts
		return nil
	}
	t.Cleanup(func() { runDaemon = previous })
	return &gotCfg, &gotOpts
}

func TestRootCommandPassesConfigAndFlags(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t)
	path := testsupport.WriteConfigFile(t, cfg)
	gotCfg, gotOpts := stubRun(t)

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--config", path, "--log-level", "debug", "--development"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotOpts.ConfigPath != path {
		t.Fatalf("ConfigPath = %q, want %q", gotOpts.ConfigPath, path)
	}
	if gotOpts.LogLevel != "debug" || !gotOpts.Development {
		t.Fatalf("unexpected options %+v", *gotOpts)
	}
	if gotCfg.Paths.LogDir != cfg.Paths.LogDir {
		t.Fatalf("log dir = %q, want %q", gotCfg.Paths.LogDir, cfg.Paths.LogDir)
	}
}

func TestRootCommandWithoutConfigFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, gotOpts := stubRun(t)

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.toml")})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotOpts.ConfigPath != "" {
		t.Fatalf("ConfigPath = %q, want empty for a missing file", gotOpts.ConfigPath)
	}
}

func TestRootCommandRejectsArguments(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"extra"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for positional arguments")
	}
}
