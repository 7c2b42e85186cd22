package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"attendance/internal/camera"
	"attendance/internal/config"
	"attendance/internal/face"
	"attendance/internal/fingerprint"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCameraDevice verifies that the V4L2 device node can be opened for
// capture by the current user.
func CheckCameraDevice(path string) Result {
	const name = "Camera device"
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (not connected)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a character device)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckDatabase pings the attendance store.
func CheckDatabase(ctx context.Context, driver string, db Pinger) Result {
	name := "Database"
	if driver != "" {
		name = fmt.Sprintf("Database (%s)", driver)
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err, "database")}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckEncoder verifies that the face encoder service answers its health
// endpoint. A single attempt is made.
func CheckEncoder(ctx context.Context, baseURL string, timeout time.Duration) Result {
	const name = "Face encoder"
	if baseURL == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	if timeout <= 0 || timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := face.NewHTTPEncoder(baseURL, timeout).Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err, "encoder")}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckCamera grabs one frame from the configured snapshot source.
func CheckCamera(ctx context.Context, cfg *config.Config) Result {
	const name = "Camera"
	source, err := camera.NewSourceFromConfig(cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	frame, err := source.Capture(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err, "camera")}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("frame ok (%d bytes)", len(frame))}
}

// CheckFingerprint connects to the terminal and disconnects again.
func CheckFingerprint(ctx context.Context, dialer fingerprint.Dialer, settings config.Fingerprint) Result {
	const name = "Fingerprint terminal"
	if settings.Host == "" {
		settings.Host = config.FallbackFingerprintHost
	}
	addr := settings.Address()
	timeout := settings.ProbeTimeoutDuration()
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if err := fingerprint.Probe(ctx, dialer, addr, timeout); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", addr, summarizeError(err, "terminal"))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (connected)", addr)}
}

func summarizeError(err error, what string) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("timed out (%s unresponsive)", what)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("timed out (%s unreachable)", what)
	}
	return err.Error()
}
