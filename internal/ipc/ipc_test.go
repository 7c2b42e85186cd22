package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"attendance/internal/attendance"
	"attendance/internal/daemon"
	"attendance/internal/face"
	"attendance/internal/fingerprint"
	"attendance/internal/ipc"
	"attendance/internal/logging"
	"attendance/internal/testsupport"
	"attendance/internal/workflow"
)

type jpegSource struct{}

func (jpegSource) Capture(context.Context) ([]byte, error) { return []byte{0xff, 0xd8}, nil }

type adaEncoder struct{}

func (adaEncoder) Encode(context.Context, []byte) ([]face.Encoding, error) {
	return []face.Encoding{{Vector: []float64{0.05, 0, 0}}}, nil
}

// scanDialer reports a scan by employee 7 on every live capture.
type scanDialer struct{}

func (scanDialer) Dial(context.Context, string) (fingerprint.Session, error) {
	return scanSession{}, nil
}

type scanSession struct{}

func (scanSession) LiveEvents(ctx context.Context) (<-chan fingerprint.Event, <-chan error) {
	events := make(chan fingerprint.Event, 1)
	errs := make(chan error)
	go func() {
		defer close(events)
		defer close(errs)
		events <- fingerprint.Event{UserID: "7"}
		<-ctx.Done()
	}()
	return events, errs
}

func (scanSession) Close() error { return nil }

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithScanWindow(2))
	cfg.Camera.SnapshotURL = "http://127.0.0.1:1/snapshot"
	cfg.Face.EncoderURL = "http://127.0.0.1:1"
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedEmployees(t, store, attendance.Employee{
		ID:           7,
		DisplayName:  "Ada Lovelace",
		FaceTemplate: attendance.Template{0, 0, 0},
	})
	if _, err := store.AddUser(context.Background(), "frontdesk", attendance.HashPassword("secret"), "attendance"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	logPath := filepath.Join(cfg.Paths.LogDir, "ipc-test.log")
	logger := logging.NewNop()
	d, err := daemon.New(cfg, daemon.Components{
		Store:   store,
		Source:  jpegSource{},
		Encoder: adaEncoder{},
		Dialer:  scanDialer{},
	}, logger, logPath)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	if _, err := client.StartSession("check-in", ""); err == nil || !strings.Contains(err.Error(), "not running") {
		t.Fatalf("expected not running error before Start, got %v", err)
	}

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.APIAddress == "" {
		t.Fatalf("unexpected status %#v", status)
	}

	login, err := client.Login("frontdesk", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := client.Login("frontdesk", "nope"); err == nil {
		t.Fatal("expected login failure for wrong password")
	}

	if _, err := client.StartSession("sideways", login.Username); err == nil {
		t.Fatal("expected error for unknown direction")
	}

	started, err := client.StartSession("check-in", login.Username)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	id := started.Session.ID

	waitResp, err := client.Session(ipc.SessionRequest{ID: id, WaitMillis: 5000})
	if err != nil {
		t.Fatalf("Session wait failed: %v", err)
	}
	prompt := waitResp.Session.Prompt
	if prompt == nil || prompt.Kind != workflow.PromptConfirm || prompt.Confirm.Employee.ID != 7 {
		t.Fatalf("expected confirm prompt for employee 7, got %#v", waitResp.Session)
	}

	if _, err := client.Confirm(ipc.ConfirmRequest{ID: id, Confirmed: true}); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	var final ipc.SessionSnapshot
	for time.Now().Before(deadline) {
		resp, err := client.Session(ipc.SessionRequest{ID: id, AfterSeq: prompt.Seq, WaitMillis: 1000})
		if err != nil {
			t.Fatalf("Session poll failed: %v", err)
		}
		final = resp.Session
		if final.Done {
			break
		}
	}
	if final.Result == nil || final.Result.Outcome != workflow.OutcomeRecorded {
		t.Fatalf("expected recorded result, got %#v", final)
	}

	stats, err := client.DailyStats("")
	if err != nil {
		t.Fatalf("DailyStats failed: %v", err)
	}
	if stats.Stats.Present != 1 || stats.Stats.Total != 1 {
		t.Fatalf("unexpected stats %#v", stats.Stats)
	}
	if _, err := client.DailyStats("tomorrow"); err == nil {
		t.Fatal("expected invalid date error")
	}

	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}
	logResp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail failed: %v", err)
	}
	if len(logResp.Lines) != 2 || logResp.Lines[0] != "second" || logResp.Lines[1] != "third" {
		t.Fatalf("unexpected log tail response: %#v", logResp.Lines)
	}

	notifyResp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notifyResp.Sent || notifyResp.Message == "" {
		t.Fatalf("expected unsent notification with message, got %#v", notifyResp)
	}

	camResp, err := client.RestartCamera()
	if err != nil || !camResp.Restarting {
		t.Fatalf("RestartCamera: %#v %v", camResp, err)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected stop response to be true")
	}

	status2, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status2.Running {
		t.Fatal("expected daemon to be stopped")
	}
}
