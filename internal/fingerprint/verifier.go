package fingerprint

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"attendance/internal/config"
	"attendance/internal/logging"
)

// Outcome classifies a verification.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeWrongIdentity     Outcome = "wrong_identity"
	OutcomeTimeout           Outcome = "timeout"
	OutcomeDeviceUnreachable Outcome = "device_unreachable"
	OutcomeBusy              Outcome = "busy"
	OutcomeCancelled         Outcome = "cancelled"
)

// Result is the verdict of one Verify call.
type Result struct {
	Outcome   Outcome `json:"outcome"`
	ScannedID string  `json:"scanned_id,omitempty"`
	Attempts  int     `json:"attempts"`
	Address   string  `json:"address,omitempty"`
	Err       error   `json:"-"`
}

// Verified reports whether the scan matched the expected employee.
func (r Result) Verified() bool {
	return r.Outcome == OutcomeSuccess
}

// SettingsSource supplies terminal settings. It is consulted before every
// connection attempt so address changes apply without a restart.
type SettingsSource interface {
	Load() (config.Fingerprint, error)
}

// StaticSettings serves fixed settings.
type StaticSettings config.Fingerprint

func (s StaticSettings) Load() (config.Fingerprint, error) {
	return config.Fingerprint(s), nil
}

// Attempt describes a connection attempt in progress.
type Attempt struct {
	Number  int
	Max     int
	Address string
	Window  time.Duration
}

// VerifyOption customizes a single Verify call.
type VerifyOption func(*verifyOptions)

type verifyOptions struct {
	onAttempt func(Attempt)
}

// OnAttempt registers a callback invoked once a connection is established
// and the terminal is waiting for a finger.
func OnAttempt(fn func(Attempt)) VerifyOption {
	return func(o *verifyOptions) {
		o.onAttempt = fn
	}
}

// Verifier runs the scan-and-compare protocol against the terminal. At most
// one verification runs at a time; a concurrent call returns OutcomeBusy.
type Verifier struct {
	dialer   Dialer
	settings SettingsSource
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
	window   time.Duration

	busy atomic.Bool
	// line is held while anything is connected to the terminal, which
	// accepts a single session.
	line sync.Mutex
}

// Option customizes a Verifier.
type Option func(*Verifier)

// WithSleep overrides how the retry delay is awaited.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(v *Verifier) {
		if sleep != nil {
			v.sleep = sleep
		}
	}
}

// WithScanWindow overrides the configured per-attempt scan window.
func WithScanWindow(window time.Duration) Option {
	return func(v *Verifier) {
		v.window = window
	}
}

// NewVerifier constructs a verifier.
func NewVerifier(dialer Dialer, settings SettingsSource, logger *slog.Logger, opts ...Option) *Verifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	v := &Verifier{
		dialer:   dialer,
		settings: settings,
		logger:   logging.NewComponentLogger(logger, "fingerprint"),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Busy reports whether a verification is running.
func (v *Verifier) Busy() bool {
	return v.busy.Load()
}

// TryPing dials addr once and hangs up, unless a verification is running
// or another check holds the terminal; then it reports ran=false without
// dialing.
func (v *Verifier) TryPing(ctx context.Context, addr string, timeout time.Duration) (ran bool, err error) {
	if v.busy.Load() || !v.line.TryLock() {
		return false, nil
	}
	defer v.line.Unlock()
	return true, Probe(ctx, v.dialer, addr, timeout)
}

type attemptEnd int

const (
	endConnectFailed attemptEnd = iota
	endStreamFailed
	endWindowElapsed
)

// Verify waits for the terminal to report a scan by expectedID.
//
// Each attempt reloads settings, connects, and waits up to the scan window.
// A matching scan succeeds at once and a scan by anyone else fails at once
// without further attempts. Connection failures and empty windows are
// retried after the configured delay until max_attempts is reached.
func (v *Verifier) Verify(ctx context.Context, expectedID int64, opts ...VerifyOption) Result {
	if !v.busy.CompareAndSwap(false, true) {
		v.logger.Warn("fingerprint verification already running",
			logging.String(logging.FieldEventType, "fingerprint_busy"),
			logging.Int64(logging.FieldEmployeeID, expectedID),
		)
		return Result{Outcome: OutcomeBusy}
	}
	defer v.busy.Store(false)
	// A connection check in flight is bounded by its timeout; wait it out.
	v.line.Lock()
	defer v.line.Unlock()

	var options verifyOptions
	for _, opt := range opts {
		opt(&options)
	}

	logger := logging.WithContext(ctx, v.logger)
	expected := strconv.FormatInt(expectedID, 10)

	settings := v.loadSettings(logger)
	maxAttempts := max(settings.MaxAttempts, 1)

	var (
		last    attemptEnd
		lastErr error
		address string
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			settings = v.loadSettings(logger)
			if err := v.sleep(ctx, settings.RetryDelay()); err != nil {
				return Result{Outcome: OutcomeCancelled, Attempts: attempt - 1, Address: address, Err: err}
			}
		}
		address = settings.Address()

		result, end, err := v.attempt(ctx, logger, settings, attempt, maxAttempts, expected, options)
		if result != nil {
			result.Attempts = attempt
			result.Address = address
			return *result
		}
		last, lastErr = end, err
	}

	outcome := OutcomeDeviceUnreachable
	if last == endWindowElapsed {
		outcome = OutcomeTimeout
	}
	logging.WarnWithContext(logger, "fingerprint verification exhausted attempts", "fingerprint_exhausted",
		logging.String("outcome", string(outcome)),
		logging.Int("attempts", maxAttempts),
		logging.String("address", address),
		logging.String(logging.FieldErrorHint, "check the terminal network connection or ask the employee to scan again"),
		logging.String(logging.FieldImpact, "attendance not recorded"),
	)
	return Result{Outcome: outcome, Attempts: maxAttempts, Address: address, Err: lastErr}
}

// attempt runs one connect-and-wait cycle. A non-nil result ends Verify.
func (v *Verifier) attempt(
	ctx context.Context,
	logger *slog.Logger,
	settings config.Fingerprint,
	number, maxAttempts int,
	expected string,
	options verifyOptions,
) (*Result, attemptEnd, error) {
	address := settings.Address()

	dialCtx, cancelDial := context.WithTimeout(ctx, settings.ConnectTimeoutDuration())
	session, err := v.dialer.Dial(dialCtx, address)
	cancelDial()
	if err != nil {
		if ctx.Err() != nil {
			return &Result{Outcome: OutcomeCancelled, Err: ctx.Err()}, endConnectFailed, nil
		}
		logging.WarnWithContext(logger, "fingerprint terminal connection failed", "fingerprint_connect_failed",
			logging.Error(err),
			logging.Int("attempt", number),
			logging.Int("max_attempts", maxAttempts),
			logging.String("address", address),
			logging.String(logging.FieldErrorHint, "verify fingerprint.host in the config file"),
			logging.String(logging.FieldImpact, "retrying"),
		)
		return nil, endConnectFailed, err
	}
	defer session.Close()

	window := settings.ScanWindowDuration()
	if v.window > 0 {
		window = v.window
	}
	logger.Info("waiting for fingerprint",
		logging.String(logging.FieldEventType, "fingerprint_waiting"),
		logging.Int("attempt", number),
		logging.Int("max_attempts", maxAttempts),
		logging.String("address", address),
		logging.Duration("window", window),
	)
	if options.onAttempt != nil {
		options.onAttempt(Attempt{Number: number, Max: maxAttempts, Address: address, Window: window})
	}

	waitCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()
	events, errs := session.LiveEvents(waitCtx)
	for {
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return &Result{Outcome: OutcomeCancelled, Err: ctx.Err()}, endWindowElapsed, nil
			}
			logger.Info("no fingerprint scanned within window",
				logging.String(logging.FieldEventType, "fingerprint_window_elapsed"),
				logging.Int("attempt", number),
			)
			return nil, endWindowElapsed, nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			scanned := strings.TrimSpace(ev.UserID)
			if scanned == "" {
				continue
			}
			if scanned == expected {
				logger.Info("fingerprint matched",
					logging.String(logging.FieldEventType, "fingerprint_matched"),
					logging.Int("attempt", number),
				)
				return &Result{Outcome: OutcomeSuccess, ScannedID: scanned}, 0, nil
			}
			logging.WarnWithContext(logger, "fingerprint belongs to another employee", "fingerprint_wrong_identity",
				logging.String("scanned_id", scanned),
				logging.String(logging.FieldErrorHint, "the selected employee must scan their own finger"),
				logging.String(logging.FieldImpact, "attendance not recorded"),
			)
			return &Result{Outcome: OutcomeWrongIdentity, ScannedID: scanned}, 0, nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return &Result{Outcome: OutcomeCancelled, Err: ctx.Err()}, endStreamFailed, nil
			}
			logging.WarnWithContext(logger, "fingerprint live capture failed", "fingerprint_stream_failed",
				logging.Error(err),
				logging.Int("attempt", number),
				logging.String("address", address),
				logging.String(logging.FieldImpact, "reconnecting"),
			)
			return nil, endStreamFailed, err
		}
	}
}

func (v *Verifier) loadSettings(logger *slog.Logger) config.Fingerprint {
	if v.settings == nil {
		return config.DefaultFingerprint()
	}
	settings, err := v.settings.Load()
	defaults := config.DefaultFingerprint()
	if strings.TrimSpace(settings.Host) == "" {
		settings.Host = defaults.Host
	}
	if settings.Port <= 0 {
		settings.Port = defaults.Port
	}
	if settings.ConnectTimeout <= 0 {
		settings.ConnectTimeout = defaults.ConnectTimeout
	}
	if settings.ScanWindow <= 0 {
		settings.ScanWindow = defaults.ScanWindow
	}
	if err != nil {
		logging.WarnWithContext(logger, "fingerprint settings reload failed; using last known settings", "fingerprint_settings_reload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the [fingerprint] section of the config file"),
		)
	}
	return settings
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
