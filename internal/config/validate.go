package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.Fingerprint.Validate(); err != nil {
		return err
	}
	if err := c.validateFace(); err != nil {
		return err
	}
	if err := c.validateCamera(); err != nil {
		return err
	}
	if c.Attendance.MinCheckoutGapMinutes < 0 {
		return errors.New("attendance.min_checkout_gap_minutes must not be negative")
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Notifications.NtfyTopic != "" && c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database.path must be set when database.driver is sqlite")
		}
	case DriverPostgres:
		if c.Database.Host == "" {
			return errors.New("database.host must be set when database.driver is postgres")
		}
		if c.Database.Name == "" {
			return errors.New("database.dbname must be set when database.driver is postgres")
		}
		if c.Database.User == "" {
			return errors.New("database.user must be set when database.driver is postgres")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return errors.New("database.port must be between 1 and 65535")
		}
	default:
		return fmt.Errorf("database.driver: unsupported value %q (use sqlite or postgres)", c.Database.Driver)
	}
	return nil
}

// Validate ensures the fingerprint terminal settings are usable.
func (f Fingerprint) Validate() error {
	if f.Port <= 0 || f.Port > 65535 {
		return errors.New("fingerprint.port must be between 1 and 65535")
	}
	if err := ensurePositiveMap(map[string]int{
		"fingerprint.connect_timeout": f.ConnectTimeout,
		"fingerprint.scan_window":     f.ScanWindow,
		"fingerprint.max_attempts":    f.MaxAttempts,
		"fingerprint.probe_interval":  f.ProbeInterval,
		"fingerprint.probe_timeout":   f.ProbeTimeout,
	}); err != nil {
		return err
	}
	if f.RetryDelayMS < 0 {
		return errors.New("fingerprint.retry_delay_ms must not be negative")
	}
	return nil
}

func (c *Config) validateFace() error {
	if c.Face.Threshold <= 0 || c.Face.Threshold > 1 {
		return errors.New("face.threshold must be between 0 and 1")
	}
	if c.Face.MaxAttempts <= 0 {
		return errors.New("face.max_attempts must be positive")
	}
	if c.Face.RequestTimeout <= 0 {
		return errors.New("face.request_timeout must be positive")
	}
	if c.Face.EncoderURL != "" {
		if _, err := url.ParseRequestURI(c.Face.EncoderURL); err != nil {
			return fmt.Errorf("face.encoder_url: %w", err)
		}
	}
	return nil
}

func (c *Config) validateCamera() error {
	if c.Camera.SnapshotURL != "" {
		if _, err := url.ParseRequestURI(c.Camera.SnapshotURL); err != nil {
			return fmt.Errorf("camera.snapshot_url: %w", err)
		}
	}
	if c.Camera.PreviewInterval <= 0 {
		return errors.New("camera.preview_interval_ms must be positive")
	}
	if c.Camera.CaptureTimeout <= 0 {
		return errors.New("camera.capture_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
