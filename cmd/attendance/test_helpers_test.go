package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"attendance/internal/attendance"
	"attendance/internal/config"
	"attendance/internal/daemon"
	"attendance/internal/face"
	"attendance/internal/fingerprint"
	"attendance/internal/ipc"
	"attendance/internal/logging"
	"attendance/internal/store"
	"attendance/internal/testsupport"
)

var grace = attendance.Employee{ID: 7, DisplayName: "Grace Hopper", Department: "Navy", FaceTemplate: attendance.Template{0, 0, 0}}

type jpegSource struct{}

func (jpegSource) Capture(context.Context) ([]byte, error) {
	return []byte{0xff, 0xd8, 0xff, 0xd9}, nil
}

type graceEncoder struct{}

func (graceEncoder) Encode(context.Context, []byte) ([]face.Encoding, error) {
	return []face.Encoding{{Vector: []float64{0.05, 0, 0}}}, nil
}

func (graceEncoder) Ping(context.Context) error { return nil }

// scanDialer reports a scan by scanID on every live capture. An empty scanID
// refuses the connection.
type scanDialer struct {
	scanID string
}

func (d scanDialer) Dial(context.Context, string) (fingerprint.Session, error) {
	if d.scanID == "" {
		return nil, io.ErrUnexpectedEOF
	}
	return scanSession(d), nil
}

type scanSession struct {
	scanID string
}

func (s scanSession) LiveEvents(ctx context.Context) (<-chan fingerprint.Event, <-chan error) {
	events := make(chan fingerprint.Event, 1)
	errs := make(chan error)
	go func() {
		defer close(events)
		defer close(errs)
		events <- fingerprint.Event{UserID: s.scanID}
		<-ctx.Done()
	}()
	return events, errs
}

func (scanSession) Close() error { return nil }

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.SQLite
	daemon     *daemon.Daemon
	socketPath string
	configPath string
}

// setupCLITestEnv runs a daemon and its IPC server in-process against a
// temporary sqlite database seeded with one employee.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t, testsupport.WithScanWindow(2))
	cfg.Camera.SnapshotURL = "http://127.0.0.1:1/snapshot"
	cfg.Face.EncoderURL = "http://127.0.0.1:1"
	configPath := testsupport.WriteConfigFile(t, cfg)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	st := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedEmployees(t, st, grace)

	logger := logging.NewNop()
	d, err := daemon.New(cfg, daemon.Components{
		Store:   st,
		Source:  jpegSource{},
		Encoder: graceEncoder{},
		Dialer:  scanDialer{scanID: "7"},
	}, logger, filepath.Join(cfg.Paths.LogDir, "cli-test.log"))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.LogDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      st,
		daemon:     d,
		socketPath: socketPath,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	return runCLIWithInput(t, args, socket, configPath, "")
}

func runCLIWithInput(t *testing.T, args []string, socket, configPath, input string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(input))
	var flags []string
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
