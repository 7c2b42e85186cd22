// Package config loads, validates, and exposes the kiosk configuration.
//
// The file is TOML. Load applies defaults, expands tilde paths, applies the
// ATTENDANCE_DB_PASSWORD and ATTENDANCE_FINGERPRINT_HOST environment
// overrides, and validates every section. The [fingerprint] section is also
// read on its own by FingerprintLoader before each terminal connection so an
// operator can move the terminal without restarting the daemon.
package config
