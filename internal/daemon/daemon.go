package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"attendance/internal/attendance"
	"attendance/internal/camera"
	"attendance/internal/config"
	"attendance/internal/face"
	"attendance/internal/fingerprint"
	"attendance/internal/logging"
	"attendance/internal/notifications"
	"attendance/internal/preflight"
	"attendance/internal/services"
	"attendance/internal/store"
	"attendance/internal/workflow"
)

// Components are the external collaborators of the daemon. Source may be nil
// when no camera is configured; attendance runs then fail with a
// configuration error.
type Components struct {
	Store    store.Store
	Source   camera.Source
	Encoder  face.Encoder
	Dialer   fingerprint.Dialer
	Settings fingerprint.SettingsSource
	Notifier notifications.Service
}

// Daemon coordinates the kiosk services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Store
	notifier notifications.Service
	encoder  face.Encoder

	preview  *camera.Preview
	verifier *fingerprint.Verifier
	workflow *workflow.Workflow
	monitor  *deviceMonitor
	hotplug  *camera.HotplugMonitor
	api      *apiServer

	logPath  string
	lockPath string
	lock     *flock.Flock

	running atomic.Bool

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	sessions  *workflow.Sessions
	startedAt time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running            bool                      `json:"running"`
	PID                int                       `json:"pid"`
	StartedAt          time.Time                 `json:"started_at,omitzero"`
	LockPath           string                    `json:"lock_path"`
	LogPath            string                    `json:"log_path"`
	Database           string                    `json:"database"`
	Fingerprint        DeviceHealth              `json:"fingerprint"`
	Encoder            DeviceHealth              `json:"encoder"`
	Camera             camera.PreviewStatus      `json:"camera"`
	HotplugMonitoring  bool                      `json:"hotplug_monitoring"`
	VerifierBusy       bool                      `json:"verifier_busy"`
	FailedFaceAttempts int                       `json:"failed_face_attempts"`
	ActiveSession      *workflow.SessionSnapshot `json:"active_session,omitempty"`
	Today              *attendance.DailyStats    `json:"today,omitempty"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, components Components, logger *slog.Logger, logPath string) (*Daemon, error) {
	if cfg == nil || components.Store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := components.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    components.Store,
		notifier: notifier,
		encoder:  components.Encoder,
		logPath:  logPath,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}

	deps := workflow.Dependencies{
		Store:    components.Store,
		Encoder:  components.Encoder,
		Notifier: notifier,
	}
	if components.Source != nil {
		interval := time.Duration(cfg.Camera.PreviewInterval) * time.Millisecond
		d.preview = camera.NewPreview(components.Source, interval, logger)
		deps.Frames = d.preview
		deps.Preview = d.preview
	}
	if components.Dialer != nil {
		settings := components.Settings
		if settings == nil {
			settings = fingerprint.StaticSettings(cfg.Fingerprint)
		}
		d.verifier = fingerprint.NewVerifier(components.Dialer, settings, logger)
		deps.Verifier = d.verifier

		var encoderPing pinger
		if p, ok := components.Encoder.(pinger); ok {
			encoderPing = p
		}
		d.monitor = newDeviceMonitor(components.Dialer, settings, encoderPing, notifier, logger,
			cfg.Fingerprint.ProbeIntervalDuration())
		d.monitor.tryPing = d.verifier.TryPing
	}
	d.workflow = workflow.New(cfg, deps, logger)

	if d.preview != nil && cfg.Camera.SnapshotURL == "" {
		d.hotplug = camera.NewHotplugMonitor(cfg.Camera.Device, logger, func(action string) {
			d.preview.Restart()
		})
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches the preview loop, the device
// monitor, camera hotplug detection and the kiosk API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another attendance daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.ctx = runCtx
	d.cancel = cancel
	d.sessions = workflow.NewSessions(runCtx, d.workflow, d.logger)
	d.startedAt = time.Now()

	if d.preview != nil {
		d.goBackground(func() {
			if err := d.preview.Run(runCtx); err != nil {
				d.logger.Warn("camera preview stopped", logging.Error(err))
			}
		})
	}
	if d.monitor != nil {
		d.goBackground(func() { d.monitor.run(runCtx) })
	}
	if d.hotplug != nil {
		if err := d.hotplug.Start(runCtx); err != nil {
			logging.WarnWithContext(d.logger, "camera hotplug monitoring unavailable", "hotplug_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "use the camera restart action after reconnecting the camera"),
			)
		}
	}
	d.goBackground(func() { d.runPreflight(runCtx) })

	d.running.Store(true)
	d.logger.Info("attendance daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
	)
	return nil
}

func (d *Daemon) goBackground(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

func (d *Daemon) runPreflight(ctx context.Context) {
	for _, result := range preflight.RunAll(ctx, d.cfg, d.store) {
		if result.Passed {
			d.logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "attendance actions depending on this check will fail"),
		)
	}
}

// Stop stops background processing and releases the daemon lock. Running
// sessions are cancelled.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	sessions := d.sessions
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sessions != nil {
		sessions.Wait()
	}
	d.hotplug.Stop()
	d.api.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}

	d.mu.Lock()
	d.ctx = nil
	d.running.Store(false)
	d.mu.Unlock()
	d.logger.Info("attendance daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddress returns the bound kiosk API address, or "" when disabled.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

func (d *Daemon) activeSessions() (*workflow.Sessions, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() || d.sessions == nil {
		return nil, services.Wrap(services.ErrUnavailable, "daemon", "sessions", "daemon not running", nil)
	}
	return d.sessions, nil
}

// StartSession begins a check-in or check-out on behalf of actingUser.
func (d *Daemon) StartSession(direction attendance.Direction, actingUser string) (workflow.SessionSnapshot, error) {
	sessions, err := d.activeSessions()
	if err != nil {
		return workflow.SessionSnapshot{}, err
	}
	session, err := sessions.Start(direction, actingUser)
	if err != nil {
		return workflow.SessionSnapshot{}, err
	}
	return session.Snapshot(), nil
}

// Session returns the state of session id.
func (d *Daemon) Session(id string) (workflow.SessionSnapshot, error) {
	session, err := d.lookupSession(id)
	if err != nil {
		return workflow.SessionSnapshot{}, err
	}
	return session.Snapshot(), nil
}

// WaitSession blocks until session id leaves its current prompt sequence or
// finishes, bounded by ctx.
func (d *Daemon) WaitSession(ctx context.Context, id string, afterSeq int) (workflow.SessionSnapshot, error) {
	session, err := d.lookupSession(id)
	if err != nil {
		return workflow.SessionSnapshot{}, err
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		snap := session.Snapshot()
		if snap.Done || (snap.Prompt != nil && snap.Prompt.Seq > afterSeq) {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, nil
		case <-session.Done():
		case <-ticker.C:
		}
	}
}

// ConfirmSession answers the pending confirmation of session id.
func (d *Daemon) ConfirmSession(ctx context.Context, id string, resp workflow.ConfirmResponse) (workflow.SessionSnapshot, error) {
	session, err := d.lookupSession(id)
	if err != nil {
		return workflow.SessionSnapshot{}, err
	}
	if err := session.AnswerConfirm(ctx, resp); err != nil {
		return workflow.SessionSnapshot{}, err
	}
	return session.Snapshot(), nil
}

// SelectSession answers the pending manual selection of session id. A nil
// employee id cancels the run.
func (d *Daemon) SelectSession(ctx context.Context, id string, employeeID *int64) (workflow.SessionSnapshot, error) {
	session, err := d.lookupSession(id)
	if err != nil {
		return workflow.SessionSnapshot{}, err
	}
	if err := session.AnswerSelect(ctx, employeeID); err != nil {
		return workflow.SessionSnapshot{}, err
	}
	return session.Snapshot(), nil
}

// CancelSession aborts session id.
func (d *Daemon) CancelSession(id string) (workflow.SessionSnapshot, error) {
	session, err := d.lookupSession(id)
	if err != nil {
		return workflow.SessionSnapshot{}, err
	}
	session.Cancel()
	return session.Snapshot(), nil
}

func (d *Daemon) lookupSession(id string) (*workflow.Session, error) {
	sessions, err := d.activeSessions()
	if err != nil {
		return nil, err
	}
	return sessions.Get(strings.TrimSpace(id))
}

// Authenticate verifies operator credentials.
func (d *Daemon) Authenticate(ctx context.Context, username, password string) (*attendance.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, services.Wrap(services.ErrValidation, "daemon", "authenticate", "username required", nil)
	}
	user, err := d.store.FindUser(ctx, username)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, services.Wrap(services.ErrValidation, "daemon", "authenticate", "invalid credentials", nil)
		}
		return nil, err
	}
	if !attendance.CheckPassword(user.PasswordHash, password) {
		return nil, services.Wrap(services.ErrValidation, "daemon", "authenticate", "invalid credentials", nil)
	}
	return user, nil
}

// DailyStats returns present/absent counts for day, defaulting to today.
func (d *Daemon) DailyStats(ctx context.Context, day string) (attendance.DailyStats, error) {
	day = strings.TrimSpace(day)
	if day == "" {
		day = attendance.Day(time.Now(), d.cfg.Location())
	}
	if !attendance.ValidDay(day) {
		return attendance.DailyStats{}, services.Wrap(services.ErrValidation, "daemon", "daily stats",
			fmt.Sprintf("invalid date %q (want YYYY-MM-DD)", day), nil)
	}
	return d.store.DailyStats(ctx, day)
}

// PreviewFrame returns the latest camera frame.
func (d *Daemon) PreviewFrame() (camera.Frame, bool) {
	if d.preview == nil {
		return camera.Frame{}, false
	}
	return d.preview.Latest()
}

// RestartCamera reopens the camera source.
func (d *Daemon) RestartCamera() error {
	if d.preview == nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "camera restart", "no camera configured", nil)
	}
	d.preview.Restart()
	d.logger.Info("camera restart requested", logging.String(logging.FieldEventType, "camera_restart_requested"))
	return nil
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:            d.running.Load(),
		PID:                os.Getpid(),
		LockPath:           d.lockPath,
		LogPath:            d.logPath,
		Database:           d.cfg.Database.Driver,
		HotplugMonitoring:  d.hotplug.Running(),
		FailedFaceAttempts: d.workflow.FailedFaceAttempts(),
	}
	if d.verifier != nil {
		status.VerifierBusy = d.verifier.Busy()
	}
	if d.monitor != nil {
		status.Fingerprint, status.Encoder = d.monitor.snapshot()
	}
	if d.preview != nil {
		status.Camera = d.preview.Status()
	}

	d.mu.Lock()
	status.StartedAt = d.startedAt
	sessions := d.sessions
	d.mu.Unlock()
	if sessions != nil {
		if active, ok := sessions.Active(); ok {
			snap := active.Snapshot()
			status.ActiveSession = &snap
		}
	}

	statsCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if stats, err := d.DailyStats(statsCtx, ""); err == nil {
		status.Today = &stats
	}
	return status
}

// Preflight runs the environment checks against the live configuration.
func (d *Daemon) Preflight(ctx context.Context) []preflight.Result {
	return preflight.RunAll(ctx, d.cfg, d.store)
}
