package daemon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"attendance/internal/attendance"
	"attendance/internal/config"
	"attendance/internal/face"
	"attendance/internal/fingerprint"
	"attendance/internal/notifications"
	"attendance/internal/store"
	"attendance/internal/testsupport"
)

var ada = attendance.Employee{ID: 1, DisplayName: "Ada Lovelace", Department: "Engineering", FaceTemplate: attendance.Template{0, 0, 0}}

type staticSource struct{}

func (staticSource) Capture(context.Context) ([]byte, error) {
	return []byte{0xff, 0xd8, 0xff, 0xd9}, nil
}

type staticEncoder struct {
	face []float64
}

func (e staticEncoder) Encode(context.Context, []byte) ([]face.Encoding, error) {
	if e.face == nil {
		return nil, nil
	}
	return []face.Encoding{{Vector: e.face}}, nil
}

func (staticEncoder) Ping(context.Context) error { return nil }

// scanDialer connects successfully unless offline is set and reports one scan
// by scanID on every live capture.
type scanDialer struct {
	offline atomic.Bool
	scanID  string
	dials   atomic.Int32
}

func (d *scanDialer) Dial(ctx context.Context, _ string) (fingerprint.Session, error) {
	d.dials.Add(1)
	if d.offline.Load() {
		return nil, errors.New("connection refused")
	}
	return &scanSession{scanID: d.scanID}, nil
}

type scanSession struct {
	scanID string
}

func (s *scanSession) LiveEvents(ctx context.Context) (<-chan fingerprint.Event, <-chan error) {
	events := make(chan fingerprint.Event, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(events)
		defer close(errs)
		if s.scanID != "" {
			events <- fingerprint.Event{UserID: s.scanID}
		}
		<-ctx.Done()
	}()
	return events, errs
}

func (s *scanSession) Close() error { return nil }

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) published() []notifications.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifications.Event(nil), n.events...)
}

type harness struct {
	cfg      *config.Config
	store    *store.SQLite
	dialer   *scanDialer
	notifier *recordingNotifier
	daemon   *Daemon
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithScanWindow(2)}, opts...)...)
	cfg.Camera.SnapshotURL = "http://127.0.0.1:1/snapshot"
	cfg.Face.EncoderURL = "http://127.0.0.1:1"
	s := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedEmployees(t, s, ada)

	h := &harness{
		cfg:      cfg,
		store:    s,
		dialer:   &scanDialer{scanID: "1"},
		notifier: &recordingNotifier{},
	}
	d, err := New(cfg, Components{
		Store:    s,
		Source:   staticSource{},
		Encoder:  staticEncoder{face: []float64{0.1, 0, 0}},
		Dialer:   h.dialer,
		Notifier: h.notifier,
	}, nil, "")
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	h.daemon = d
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.daemon.Stop)
}
