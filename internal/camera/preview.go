package camera

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"attendance/internal/logging"
	"attendance/internal/services"
)

const minFrameAge = 250 * time.Millisecond

// Frame is a captured JPEG image.
type Frame struct {
	Data       []byte
	CapturedAt time.Time
}

// PreviewStatus summarizes the preview loop for the status API.
type PreviewStatus struct {
	Running   bool      `json:"running"`
	Paused    bool      `json:"paused"`
	LastFrame time.Time `json:"last_frame,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Preview is the single writer of the latest camera frame. The attendance
// workflow reads frames through Capture and pauses the loop while the
// fingerprint terminal is in use.
type Preview struct {
	source   Source
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	latest  Frame
	lastErr error

	paused  atomic.Bool
	running atomic.Bool
	restart chan struct{}
}

// PreviewOption customizes a Preview.
type PreviewOption func(*Preview)

// WithClock overrides the time source.
func WithClock(now func() time.Time) PreviewOption {
	return func(p *Preview) {
		if now != nil {
			p.now = now
		}
	}
}

// WithMaxFrameAge sets how old the latest frame may be before Capture reads
// the device directly.
func WithMaxFrameAge(age time.Duration) PreviewOption {
	return func(p *Preview) {
		if age > 0 {
			p.maxAge = age
		}
	}
}

// NewPreview constructs a preview loop over source.
func NewPreview(source Source, interval time.Duration, logger *slog.Logger, opts ...PreviewOption) *Preview {
	if interval <= 0 {
		interval = 30 * time.Millisecond
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Preview{
		source:   source,
		interval: interval,
		maxAge:   max(2*interval, minFrameAge),
		logger:   logging.NewComponentLogger(logger, "camera"),
		now:      time.Now,
		restart:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run reads frames until ctx is cancelled. Device reads are skipped while the
// preview is paused.
func (p *Preview) Run(ctx context.Context) error {
	if p.source == nil {
		return services.Wrap(services.ErrConfiguration, "camera", "preview", "no camera source", nil)
	}
	if !p.running.CompareAndSwap(false, true) {
		return services.Wrap(services.ErrBusy, "camera", "preview", "preview already running", nil)
	}
	defer p.running.Store(false)

	p.logger.Info("camera preview started",
		logging.String(logging.FieldEventType, "camera_preview_started"),
		logging.Duration("interval", p.interval),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("camera preview stopped",
				logging.String(logging.FieldEventType, "camera_preview_stopped"),
			)
			return nil
		case <-p.restart:
			p.reopen(ctx)
			failing = false
		case <-ticker.C:
			if p.paused.Load() {
				continue
			}
			frame, err := p.source.Capture(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				p.setError(err)
				if !failing {
					logging.WarnWithContext(p.logger, "camera capture failed", "camera_capture_failed",
						logging.Error(err),
						logging.String(logging.FieldErrorHint, "check the camera connection or snapshot service"),
						logging.String(logging.FieldImpact, "face recognition unavailable until frames resume"),
					)
				}
				failing = true
				continue
			}
			if failing {
				p.logger.Info("camera capture recovered",
					logging.String(logging.FieldEventType, "camera_capture_recovered"),
				)
				failing = false
			}
			p.store(frame)
		}
	}
}

// Capture returns a frame for face identification. A sufficiently fresh
// preview frame is reused; otherwise the device is read directly.
func (p *Preview) Capture(ctx context.Context) ([]byte, error) {
	if frame, ok := p.Latest(); ok && p.now().Sub(frame.CapturedAt) <= p.maxAge {
		return frame.Data, nil
	}
	if p.source == nil {
		return nil, services.Wrap(services.ErrConfiguration, "camera", "capture", "no camera source", nil)
	}
	data, err := p.source.Capture(ctx)
	if err != nil {
		p.setError(err)
		return nil, err
	}
	p.store(data)
	return data, nil
}

// Latest returns a copy of the most recent frame.
func (p *Preview) Latest() (Frame, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.latest.Data) == 0 {
		return Frame{}, false
	}
	data := make([]byte, len(p.latest.Data))
	copy(data, p.latest.Data)
	return Frame{Data: data, CapturedAt: p.latest.CapturedAt}, true
}

// Pause stops device reads until Resume.
func (p *Preview) Pause() {
	if p.paused.CompareAndSwap(false, true) {
		p.logger.Debug("camera preview paused")
	}
}

// Resume restarts device reads. Calling it when not paused is a no-op.
func (p *Preview) Resume() {
	if p.paused.CompareAndSwap(true, false) {
		p.logger.Debug("camera preview resumed")
	}
}

// Paused reports whether device reads are suspended.
func (p *Preview) Paused() bool {
	return p.paused.Load()
}

// Restart asks the loop to reopen the source and drop the cached frame.
func (p *Preview) Restart() {
	select {
	case p.restart <- struct{}{}:
	default:
	}
}

// Status reports the current loop state.
func (p *Preview) Status() PreviewStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	status := PreviewStatus{
		Running:   p.running.Load(),
		Paused:    p.paused.Load(),
		LastFrame: p.latest.CapturedAt,
	}
	if p.lastErr != nil {
		status.LastError = p.lastErr.Error()
	}
	return status
}

func (p *Preview) store(data []byte) {
	p.mu.Lock()
	p.latest = Frame{Data: data, CapturedAt: p.now()}
	p.lastErr = nil
	p.mu.Unlock()
}

func (p *Preview) setError(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

func (p *Preview) reopen(ctx context.Context) {
	p.mu.Lock()
	p.latest = Frame{}
	p.mu.Unlock()

	reopener, ok := p.source.(Reopener)
	if !ok {
		p.logger.Info("camera preview restarted",
			logging.String(logging.FieldEventType, "camera_preview_restarted"),
		)
		return
	}
	if err := reopener.Reopen(ctx); err != nil {
		p.setError(err)
		logging.WarnWithContext(p.logger, "camera reopen failed", "camera_reopen_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the camera device is connected"),
		)
		return
	}
	p.logger.Info("camera preview restarted",
		logging.String(logging.FieldEventType, "camera_preview_restarted"),
	)
}
