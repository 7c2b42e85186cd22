package config

const (
	defaultConfigPath            = "~/.config/attendance/config.toml"
	defaultDataDir               = "~/.local/share/attendance"
	defaultLogDir                = "~/.local/share/attendance/logs"
	defaultDatabasePath          = "~/.local/share/attendance/attendance.db"
	defaultAPIBind               = "127.0.0.1:7390"
	defaultPostgresPort          = 5432
	defaultPostgresUser          = "postgres"
	defaultPostgresName          = "Attendance_System"
	defaultPostgresSSLMode       = "disable"
	defaultPostgresMaxConns      = 10
	defaultFingerprintPort       = 4370
	defaultFingerprintTimeout    = 5
	defaultFingerprintScanWindow = 10
	defaultFingerprintAttempts   = 3
	defaultFingerprintRetryDelay = 1000
	defaultFingerprintProbe      = 30
	defaultFingerprintProbeWait  = 3
	defaultFaceEncoderURL        = "http://127.0.0.1:8601"
	defaultFaceThreshold         = 0.6
	defaultFaceAttempts          = 3
	defaultFaceRequestTimeout    = 15
	defaultCameraDevice          = "/dev/video0"
	defaultCameraPreviewInterval = 30
	defaultCameraCaptureTimeout  = 5
	defaultMinCheckoutGap        = 5
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30

	// FallbackFingerprintHost is used when no terminal address is configured.
	FallbackFingerprintHost = "192.168.1.201"

	// DriverSQLite selects the embedded SQLite store.
	DriverSQLite = "sqlite"
	// DriverPostgres selects the PostgreSQL store.
	DriverPostgres = "postgres"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Database: Database{
			Driver:   DriverSQLite,
			Path:     defaultDatabasePath,
			Host:     "localhost",
			Port:     defaultPostgresPort,
			User:     defaultPostgresUser,
			Name:     defaultPostgresName,
			SSLMode:  defaultPostgresSSLMode,
			MaxConns: defaultPostgresMaxConns,
		},
		Fingerprint: DefaultFingerprint(),
		Face: Face{
			EncoderURL:     defaultFaceEncoderURL,
			Threshold:      defaultFaceThreshold,
			MaxAttempts:    defaultFaceAttempts,
			RequestTimeout: defaultFaceRequestTimeout,
		},
		Camera: Camera{
			Device:          defaultCameraDevice,
			PreviewInterval: defaultCameraPreviewInterval,
			CaptureTimeout:  defaultCameraCaptureTimeout,
		},
		Attendance: Attendance{
			MinCheckoutGapMinutes: defaultMinCheckoutGap,
			Timezone:              "Local",
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			CheckIn:        true,
			CheckOut:       true,
			Device:         true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

// DefaultFingerprint returns the terminal defaults, including the fallback host.
func DefaultFingerprint() Fingerprint {
	return Fingerprint{
		Host:           FallbackFingerprintHost,
		Port:           defaultFingerprintPort,
		ConnectTimeout: defaultFingerprintTimeout,
		ScanWindow:     defaultFingerprintScanWindow,
		MaxAttempts:    defaultFingerprintAttempts,
		RetryDelayMS:   defaultFingerprintRetryDelay,
		ProbeInterval:  defaultFingerprintProbe,
		ProbeTimeout:   defaultFingerprintProbeWait,
	}
}
