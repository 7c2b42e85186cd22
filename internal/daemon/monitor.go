package daemon

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"attendance/internal/config"
	"attendance/internal/fingerprint"
	"attendance/internal/logging"
	"attendance/internal/notifications"
)

const defaultProbeInterval = 30 * time.Second

// DeviceHealth is the last probe result for one external device.
type DeviceHealth struct {
	Name        string    `json:"name"`
	Online      bool      `json:"online"`
	Checked     bool      `json:"checked"`
	Address     string    `json:"address,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	LastChecked time.Time `json:"last_checked,omitzero"`
}

// pinger is implemented by the face encoder client.
type pinger interface {
	Ping(ctx context.Context) error
}

// deviceMonitor probes the fingerprint terminal and the face encoder on an
// interval. Transitions of the terminal are pushed as notifications.
type deviceMonitor struct {
	dialer   fingerprint.Dialer
	settings fingerprint.SettingsSource
	encoder  pinger
	notifier notifications.Service
	logger   *slog.Logger
	interval time.Duration
	// tryPing dials the terminal unless it is in use; ran=false means the
	// check was skipped. Defaults to an unconditional fingerprint.Probe.
	tryPing func(ctx context.Context, addr string, timeout time.Duration) (ran bool, err error)
	now     func() time.Time

	running atomic.Bool

	mu       sync.Mutex
	terminal DeviceHealth
	enc      DeviceHealth
}

func newDeviceMonitor(dialer fingerprint.Dialer, settings fingerprint.SettingsSource, encoder pinger, notifier notifications.Service, logger *slog.Logger, interval time.Duration) *deviceMonitor {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &deviceMonitor{
		dialer:   dialer,
		settings: settings,
		encoder:  encoder,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "device-monitor"),
		interval: interval,
		now:      time.Now,
		terminal: DeviceHealth{Name: "Fingerprint terminal"},
		enc:      DeviceHealth{Name: "Face encoder"},
	}
	m.tryPing = func(ctx context.Context, addr string, timeout time.Duration) (bool, error) {
		return true, fingerprint.Probe(ctx, m.dialer, addr, timeout)
	}
	return m
}

// run probes immediately and then on every tick until ctx ends.
func (m *deviceMonitor) run(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	defer m.running.Store(false)

	m.probe(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *deviceMonitor) probe(ctx context.Context) {
	m.probeTerminal(ctx)
	m.probeEncoder(ctx)
}

func (m *deviceMonitor) probeTerminal(ctx context.Context) {
	if m.dialer == nil || m.settings == nil {
		return
	}
	settings, err := m.settings.Load()
	if err != nil {
		m.logger.Debug("fingerprint settings reload failed", logging.Error(err))
	}
	if settings.Host == "" {
		settings.Host = config.FallbackFingerprintHost
	}
	if settings.Port == 0 {
		settings.Port = config.DefaultFingerprint().Port
	}
	timeout := settings.ProbeTimeoutDuration()
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	addr := settings.Address()
	ran, probeErr := m.tryPing(ctx, addr, timeout)
	if !ran || ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	previous := m.terminal
	m.terminal.Checked = true
	m.terminal.Address = addr
	m.terminal.LastChecked = m.now()
	m.terminal.Online = probeErr == nil
	m.terminal.Detail = "connected"
	if probeErr != nil {
		m.terminal.Detail = probeErr.Error()
	}
	m.mu.Unlock()

	switch {
	case probeErr != nil && (previous.Online || !previous.Checked):
		logging.WarnWithContext(m.logger, "fingerprint terminal offline", "fingerprint_offline",
			logging.String("address", addr),
			logging.Error(probeErr),
			logging.String(logging.FieldErrorHint, "check the terminal power, network cable and configured host"),
			logging.String(logging.FieldImpact, "check-in and check-out fail until the terminal is reachable"),
		)
		m.publish(ctx, notifications.EventDeviceOffline, notifications.Payload{"device": "Fingerprint terminal", "address": addr})
	case probeErr == nil && previous.Checked && !previous.Online:
		m.logger.Info("fingerprint terminal online",
			logging.String(logging.FieldEventType, "fingerprint_online"),
			logging.String("address", addr),
		)
		m.publish(ctx, notifications.EventDeviceOnline, notifications.Payload{"device": "Fingerprint terminal", "address": addr})
	case probeErr == nil && !previous.Checked:
		m.logger.Info("fingerprint terminal reachable",
			logging.String(logging.FieldEventType, "fingerprint_online"),
			logging.String("address", addr),
		)
	}
}

func (m *deviceMonitor) probeEncoder(ctx context.Context) {
	if m.encoder == nil {
		return
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := m.encoder.Ping(checkCtx)
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	previous := m.enc
	m.enc.Checked = true
	m.enc.LastChecked = m.now()
	m.enc.Online = err == nil
	m.enc.Detail = "reachable"
	if err != nil {
		m.enc.Detail = err.Error()
	}
	m.mu.Unlock()

	if err != nil && (previous.Online || !previous.Checked) {
		logging.WarnWithContext(m.logger, "face encoder unreachable", "face_encoder_offline",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "start the face encoder service or fix face.encoder_url"),
			logging.String(logging.FieldImpact, "faces cannot be recognized"),
		)
	}
	if err == nil && previous.Checked && !previous.Online {
		m.logger.Info("face encoder reachable again", logging.String(logging.FieldEventType, "face_encoder_online"))
	}
}

func (m *deviceMonitor) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		m.logger.Debug("device notification failed", logging.Error(err))
	}
}

// snapshot returns the terminal and encoder health.
func (m *deviceMonitor) snapshot() (DeviceHealth, DeviceHealth) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminal, m.enc
}
