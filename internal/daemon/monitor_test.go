package daemon

import (
	"context"
	"reflect"
	"testing"
	"time"

	"attendance/internal/fingerprint"
	"attendance/internal/notifications"
	"attendance/internal/testsupport"
)

func newTestMonitor(t *testing.T) (*deviceMonitor, *scanDialer, *recordingNotifier) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	dialer := &scanDialer{}
	notifier := &recordingNotifier{}
	m := newDeviceMonitor(dialer, fingerprint.StaticSettings(cfg.Fingerprint), nil, notifier, nil, 0)
	return m, dialer, notifier
}

func TestMonitorNotifiesTerminalTransitions(t *testing.T) {
	m, dialer, notifier := newTestMonitor(t)
	ctx := context.Background()

	m.probeTerminal(ctx)
	if got := notifier.published(); len(got) != 0 {
		t.Fatalf("first successful probe should not notify, got %v", got)
	}

	dialer.offline.Store(true)
	m.probeTerminal(ctx)
	m.probeTerminal(ctx)
	terminal, _ := m.snapshot()
	if terminal.Online || !terminal.Checked {
		t.Fatalf("expected offline terminal, got %+v", terminal)
	}

	dialer.offline.Store(false)
	m.probeTerminal(ctx)

	want := []notifications.Event{notifications.EventDeviceOffline, notifications.EventDeviceOnline}
	if got := notifier.published(); !reflect.DeepEqual(got, want) {
		t.Fatalf("published %v, want %v", got, want)
	}
	terminal, _ = m.snapshot()
	if !terminal.Online || terminal.Address != "127.0.0.1:4370" {
		t.Fatalf("unexpected terminal health %+v", terminal)
	}
}

func TestMonitorNotifiesOfflineAtStartup(t *testing.T) {
	m, dialer, notifier := newTestMonitor(t)
	dialer.offline.Store(true)

	m.probeTerminal(context.Background())

	if got := notifier.published(); len(got) != 1 || got[0] != notifications.EventDeviceOffline {
		t.Fatalf("published %v", got)
	}
}

func TestMonitorSkipsWhileVerifierBusy(t *testing.T) {
	m, dialer, _ := newTestMonitor(t)
	m.tryPing = func(context.Context, string, time.Duration) (bool, error) { return false, nil }

	m.probeTerminal(context.Background())

	if dialer.dials.Load() != 0 {
		t.Fatalf("expected no dial while busy, got %d", dialer.dials.Load())
	}
	terminal, _ := m.snapshot()
	if terminal.Checked {
		t.Fatal("skipped probe must not update health")
	}
}

func TestMonitorTracksEncoder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	m := newDeviceMonitor(nil, fingerprint.StaticSettings(cfg.Fingerprint), staticEncoder{}, nil, nil, 0)

	m.probeEncoder(context.Background())

	_, enc := m.snapshot()
	if !enc.Online || !enc.Checked {
		t.Fatalf("expected encoder online, got %+v", enc)
	}
}
