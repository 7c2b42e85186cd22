package config

import (
	"os"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(strings.TrimSpace(c.Paths.DataDir)); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return err
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" || c.Database.Driver == "sqlite3" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Driver == "postgresql" || c.Database.Driver == "pgx" {
		c.Database.Driver = DriverPostgres
	}
	if c.Database.Path, err = expandPath(strings.TrimSpace(c.Database.Path)); err != nil {
		return err
	}
	c.Database.Host = strings.TrimSpace(c.Database.Host)
	c.Database.User = strings.TrimSpace(c.Database.User)
	c.Database.Name = strings.TrimSpace(c.Database.Name)
	if value, ok := os.LookupEnv("ATTENDANCE_DB_PASSWORD"); ok && value != "" {
		c.Database.Password = value
	}

	c.Fingerprint.normalize()

	c.Face.EncoderURL = strings.TrimRight(strings.TrimSpace(c.Face.EncoderURL), "/")
	c.Camera.SnapshotURL = strings.TrimSpace(c.Camera.SnapshotURL)
	c.Camera.Device = strings.TrimSpace(c.Camera.Device)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}

func (f *Fingerprint) normalize() {
	f.Host = strings.TrimSpace(f.Host)
	if value, ok := os.LookupEnv("ATTENDANCE_FINGERPRINT_HOST"); ok && strings.TrimSpace(value) != "" {
		f.Host = strings.TrimSpace(value)
	}
	if f.Host == "" {
		f.Host = FallbackFingerprintHost
	}
	if f.Port == 0 {
		f.Port = defaultFingerprintPort
	}
}
