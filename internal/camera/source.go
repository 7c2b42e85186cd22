package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"attendance/internal/config"
	"attendance/internal/services"
)

const maxFrameBytes = 16 << 20

// Source produces single JPEG frames from the capture device.
type Source interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Reopener is implemented by sources that hold device state which can be
// reset after a hotplug or an operator restart.
type Reopener interface {
	Reopen(ctx context.Context) error
}

// HTTPSource fetches snapshots from an HTTP endpoint that owns the device.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource returns a source reading JPEG snapshots from rawURL.
func NewHTTPSource(rawURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{
		url:    strings.TrimSpace(rawURL),
		client: &http.Client{Timeout: timeout},
	}
}

// NewSourceFromConfig builds the configured camera source. Without an explicit
// snapshot_url the face encoder sidecar serves frames for camera.device.
func NewSourceFromConfig(cfg *config.Config) (*HTTPSource, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "camera", "configure", "config is required", nil)
	}
	timeout := time.Duration(cfg.Camera.CaptureTimeout) * time.Second
	if snapshot := strings.TrimSpace(cfg.Camera.SnapshotURL); snapshot != "" {
		return NewHTTPSource(snapshot, timeout), nil
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.Face.EncoderURL), "/")
	if base == "" {
		return nil, services.Wrap(services.ErrConfiguration, "camera", "configure", "neither camera.snapshot_url nor face.encoder_url is set", nil)
	}
	query := url.Values{}
	if device := strings.TrimSpace(cfg.Camera.Device); device != "" {
		query.Set("device", device)
	}
	target := base + "/snapshot"
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	return NewHTTPSource(target, timeout), nil
}

// URL returns the snapshot endpoint.
func (s *HTTPSource) URL() string {
	return s.url
}

// Capture fetches one frame.
func (s *HTTPSource) Capture(ctx context.Context) ([]byte, error) {
	if s.url == "" {
		return nil, services.Wrap(services.ErrConfiguration, "camera", "capture", "snapshot url not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "camera", "capture", "build request", err)
	}
	req.Header.Set("Accept", "image/jpeg")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrUnavailable, "camera", "capture", "camera unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, services.Wrap(
			services.ErrUnavailable,
			"camera",
			"capture",
			fmt.Sprintf("camera returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			nil,
		)
	}
	frame, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "camera", "capture", "read frame", err)
	}
	if len(frame) == 0 {
		return nil, services.Wrap(services.ErrUnavailable, "camera", "capture", "camera returned an empty frame", nil)
	}
	return frame, nil
}

// Reopen asks the endpoint to release and reopen the device. Endpoints that
// do not support it answer 404, which is not an error.
func (s *HTTPSource) Reopen(ctx context.Context) error {
	if s.url == "" {
		return nil
	}
	target, err := url.Parse(s.url)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "camera", "reopen", "parse snapshot url", err)
	}
	target.Path = strings.TrimSuffix(target.Path, "/") + "/reopen"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "camera", "reopen", "build request", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrUnavailable, "camera", "reopen", "camera unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode < 300 {
		return nil
	}
	return services.Wrap(services.ErrUnavailable, "camera", "reopen", fmt.Sprintf("camera returned %d", resp.StatusCode), nil)
}
