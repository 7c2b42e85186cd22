package preflight

import (
	"context"
	"time"

	"attendance/internal/config"
	"attendance/internal/fingerprint"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Pinger is satisfied by the attendance store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunAll executes the kiosk readiness checks for cfg. db may be nil when the
// store has not been opened yet.
func RunAll(ctx context.Context, cfg *config.Config, db Pinger) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	if db != nil {
		results = append(results, CheckDatabase(ctx, cfg.Database.Driver, db))
	}

	results = append(results, CheckEncoder(ctx, cfg.Face.EncoderURL,
		time.Duration(cfg.Face.RequestTimeout)*time.Second))

	if cfg.Camera.SnapshotURL == "" && cfg.Camera.Device != "" {
		results = append(results, CheckCameraDevice(cfg.Camera.Device))
	}
	results = append(results, CheckCamera(ctx, cfg))

	results = append(results, CheckFingerprint(ctx, fingerprint.TCPDialer{
		Timeout: cfg.Fingerprint.ProbeTimeoutDuration(),
		CommKey: uint32(cfg.Fingerprint.CommKey),
	}, cfg.Fingerprint))

	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
