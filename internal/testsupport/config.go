package testsupport

import (
	"path/filepath"
	"testing"
	"time"

	"attendance/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Database.Driver = config.DriverSQLite
	cfgVal.Database.Path = filepath.Join(base, "data", "attendance.db")
	cfgVal.Fingerprint.Host = "127.0.0.1"
	cfgVal.Fingerprint.RetryDelayMS = 1
	cfgVal.Attendance.Timezone = "UTC"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithFingerprintAddress points the terminal settings at host:port.
func WithFingerprintAddress(host string, port int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Fingerprint.Host = host
		b.cfg.Fingerprint.Port = port
	}
}

// WithScanWindow shortens the per-attempt fingerprint window.
func WithScanWindow(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Fingerprint.ScanWindow = seconds
	}
}

// WithMinCheckoutGap overrides the check-out gap.
func WithMinCheckoutGap(gap time.Duration) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Attendance.MinCheckoutGapMinutes = int(gap / time.Minute)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
