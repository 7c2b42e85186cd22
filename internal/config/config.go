package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Paths locates kiosk state on disk and the HTTP kiosk API listener.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Database selects and configures the attendance store backend.
type Database struct {
	Driver   string `toml:"driver"`
	Path     string `toml:"path"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"dbname"`
	SSLMode  string `toml:"sslmode"`
	MaxConns int    `toml:"max_conns"`
}

// Fingerprint contains the network fingerprint terminal settings. This section
// is re-read from disk before every connection attempt.
type Fingerprint struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	CommKey        int    `toml:"comm_key"`
	ConnectTimeout int    `toml:"connect_timeout"`
	ScanWindow     int    `toml:"scan_window"`
	MaxAttempts    int    `toml:"max_attempts"`
	RetryDelayMS   int    `toml:"retry_delay_ms"`
	ProbeInterval  int    `toml:"probe_interval"`
	ProbeTimeout   int    `toml:"probe_timeout"`
}

// Face contains configuration for the face encoder service and matching policy.
type Face struct {
	EncoderURL     string  `toml:"encoder_url"`
	Threshold      float64 `toml:"threshold"`
	MaxAttempts    int     `toml:"max_attempts"`
	RequestTimeout int     `toml:"request_timeout"`
}

// Camera contains the capture source settings for the kiosk camera.
type Camera struct {
	SnapshotURL     string `toml:"snapshot_url"`
	Device          string `toml:"device"`
	PreviewInterval int    `toml:"preview_interval_ms"`
	CaptureTimeout  int    `toml:"capture_timeout"`
}

// Attendance contains business rules for check-in and check-out.
type Attendance struct {
	MinCheckoutGapMinutes int    `toml:"min_checkout_gap_minutes"`
	Timezone              string `toml:"timezone"`
}

// Notifications selects which kiosk events are pushed to ntfy.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	CheckIn        bool   `toml:"check_in"`
	CheckOut       bool   `toml:"check_out"`
	Device         bool   `toml:"device"`
	Errors         bool   `toml:"errors"`
}

// Logging controls the daemon log format, level and rotation retention.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config is the parsed attendance.toml. Every section has working defaults
// (see Default) so an empty file yields a runnable sqlite kiosk.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Database      Database      `toml:"database"`
	Fingerprint   Fingerprint   `toml:"fingerprint"`
	Face          Face          `toml:"face"`
	Camera        Camera        `toml:"camera"`
	Attendance    Attendance    `toml:"attendance"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// EnsureDirectories creates the data and log directories, plus the sqlite
// database's parent directory when that driver is selected.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Database.Driver == DriverSQLite {
		dirs = append(dirs, filepath.Dir(c.Database.Path))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return nil
}

// PostgresDSN renders the postgres connection URL for the configured database.
func (c *Config) PostgresDSN() string {
	db := c.Database
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   "/" + db.Name,
	}
	if db.User != "" {
		if db.Password != "" {
			u.User = url.UserPassword(db.User, db.Password)
		} else {
			u.User = url.User(db.User)
		}
	}
	query := url.Values{}
	if db.SSLMode != "" {
		query.Set("sslmode", db.SSLMode)
	}
	if db.MaxConns > 0 {
		query.Set("pool_max_conns", strconv.Itoa(db.MaxConns))
	}
	u.RawQuery = query.Encode()
	return u.String()
}

// MinCheckoutGap returns the minimum interval between check-in and check-out.
func (c *Config) MinCheckoutGap() time.Duration {
	return time.Duration(c.Attendance.MinCheckoutGapMinutes) * time.Minute
}

// Location returns the timezone used to derive the attendance day.
func (c *Config) Location() *time.Location {
	name := strings.TrimSpace(c.Attendance.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// SocketPath returns the IPC socket location used by the CLI.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "attendance.sock")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "attendanced.lock")
}

// PIDPath returns the file holding the running daemon's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "attendanced.pid")
}

// LogFilePath returns the daemon log file.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "attendance.log")
}
