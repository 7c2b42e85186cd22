package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Address returns host:port for the terminal.
func (f Fingerprint) Address() string {
	return net.JoinHostPort(f.Host, strconv.Itoa(f.Port))
}

// ConnectTimeoutDuration converts the connect timeout to a duration.
func (f Fingerprint) ConnectTimeoutDuration() time.Duration {
	return time.Duration(f.ConnectTimeout) * time.Second
}

// ScanWindowDuration converts the per-attempt scan window to a duration.
func (f Fingerprint) ScanWindowDuration() time.Duration {
	return time.Duration(f.ScanWindow) * time.Second
}

// RetryDelay converts the retry delay to a duration.
func (f Fingerprint) RetryDelay() time.Duration {
	return time.Duration(f.RetryDelayMS) * time.Millisecond
}

// ProbeIntervalDuration converts the probe interval to a duration.
func (f Fingerprint) ProbeIntervalDuration() time.Duration {
	return time.Duration(f.ProbeInterval) * time.Second
}

// ProbeTimeoutDuration converts the probe timeout to a duration.
func (f Fingerprint) ProbeTimeoutDuration() time.Duration {
	return time.Duration(f.ProbeTimeout) * time.Second
}

// FingerprintLoader re-reads the [fingerprint] section from the config file so
// that terminal address changes apply on the next connection attempt.
type FingerprintLoader struct {
	path string

	mu   sync.Mutex
	last Fingerprint
}

type fingerprintFile struct {
	Fingerprint Fingerprint `toml:"fingerprint"`
}

// NewFingerprintLoader returns a loader bound to path. base supplies the values
// used when the file is missing or unreadable.
func NewFingerprintLoader(path string, base Fingerprint) *FingerprintLoader {
	return &FingerprintLoader{path: path, last: base}
}

// Load returns the current fingerprint settings. Read or parse failures fall
// back to the last good settings, and an empty host falls back to the default
// terminal address.
func (l *FingerprintLoader) Load() (Fingerprint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.last
	if l.path == "" {
		current.normalize()
		return current, nil
	}

	file := fingerprintFile{Fingerprint: current}
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			current.normalize()
			return current, nil
		}
		fallback := l.last
		fallback.normalize()
		return fallback, fmt.Errorf("read fingerprint config: %w", err)
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		fallback := l.last
		fallback.normalize()
		return fallback, fmt.Errorf("parse fingerprint config: %w", err)
	}
	current = file.Fingerprint
	current.normalize()
	if err := current.Validate(); err != nil {
		fallback := l.last
		fallback.normalize()
		return fallback, err
	}
	l.last = current
	return current, nil
}

// SetFingerprintHost rewrites the host key of the [fingerprint] section in the
// config file at path, creating the section when absent. Other content is kept.
func SetFingerprintHost(path, host string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return errors.New("fingerprint host must not be empty")
	}
	if net.ParseIP(host) == nil {
		if _, err := net.LookupHost(host); err != nil {
			return fmt.Errorf("fingerprint host %q: not an IP address or resolvable name", host)
		}
	}

	var doc map[string]any
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("read config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	section, _ := doc["fingerprint"].(map[string]any)
	if section == nil {
		section = map[string]any{}
	}
	section["host"] = host
	doc["fingerprint"] = section

	encoded, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
