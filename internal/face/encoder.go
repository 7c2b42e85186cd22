package face

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"attendance/internal/services"
)

const (
	defaultEncodeTimeout = 15 * time.Second
	encodePath           = "/encode"
	healthPath           = "/healthz"
	maxErrorBody         = 2048
)

// Encoder turns a captured frame into zero or more face encodings.
type Encoder interface {
	Encode(ctx context.Context, frame []byte) ([]Encoding, error)
}

// Encoding is one detected face.
type Encoding struct {
	Vector []float64 `json:"encoding"`
	// Box is top, right, bottom, left in pixels when the encoder reports it.
	Box []int `json:"box,omitempty"`
}

type encodeResponse struct {
	Faces []Encoding `json:"faces"`
	Error string     `json:"error,omitempty"`
}

// HTTPEncoder calls the face encoder sidecar. The sidecar accepts a JPEG body
// on POST /encode and answers {"faces":[{"encoding":[...]}]}.
type HTTPEncoder struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes the encoder client.
type Option func(*HTTPEncoder)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *HTTPEncoder) {
		if client != nil {
			e.httpClient = client
		}
	}
}

// NewHTTPEncoder constructs an encoder client for baseURL.
func NewHTTPEncoder(baseURL string, timeout time.Duration, opts ...Option) *HTTPEncoder {
	if timeout <= 0 {
		timeout = defaultEncodeTimeout
	}
	encoder := &HTTPEncoder{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(encoder)
	}
	return encoder
}

// Encode posts frame to the sidecar and returns the valid encodings it found.
func (e *HTTPEncoder) Encode(ctx context.Context, frame []byte) ([]Encoding, error) {
	if len(frame) == 0 {
		return nil, services.Wrap(services.ErrValidation, "face", "encode", "empty frame", nil)
	}
	if e.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "face", "encode", "encoder url not configured", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+encodePath, bytes.NewReader(frame))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "face", "encode", "build request", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "face", "encode", "encoder request timed out", err)
		}
		return nil, services.Wrap(services.ErrUnavailable, "face", "encode", "encoder unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, services.Wrap(
			services.ErrExternalTool,
			"face",
			"encode",
			fmt.Sprintf("encoder returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			nil,
		)
	}

	var payload encodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "face", "encode", "decode encoder response", err)
	}
	if payload.Error != "" {
		return nil, services.Wrap(services.ErrExternalTool, "face", "encode", payload.Error, nil)
	}

	faces := make([]Encoding, 0, len(payload.Faces))
	for _, f := range payload.Faces {
		if len(f.Vector) == 0 {
			continue
		}
		faces = append(faces, f)
	}
	return faces, nil
}

// Ping checks that the encoder answers its health endpoint.
func (e *HTTPEncoder) Ping(ctx context.Context) error {
	if e.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "face", "ping", "encoder url not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+healthPath, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "face", "ping", "build request", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrUnavailable, "face", "ping", "encoder unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return services.Wrap(services.ErrUnavailable, "face", "ping", fmt.Sprintf("encoder health returned %d", resp.StatusCode), nil)
	}
	return nil
}
