package daemonctl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"attendance/internal/attendance"
	"attendance/internal/config"
	"attendance/internal/daemon"
	"attendance/internal/ipc"
	"attendance/internal/preflight"
	"attendance/internal/store"
)

// Severity levels used by status lines.
const (
	SeverityOK    = "ok"
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// StatusLine is one row of `attendance status`.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// Snapshot combines the daemon status with offline fallbacks.
type Snapshot struct {
	Status ipc.StatusResponse `json:"status"`
	// Reachable is false when no daemon answered on the socket; the device
	// lines are then derived from local preflight checks.
	Reachable bool         `json:"reachable"`
	Lines     []StatusLine `json:"lines"`
}

// BuildStatusSnapshot collects daemon status and falls back to local checks
// when the daemon is not reachable.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not available")
	}
	snap := &Snapshot{}
	if client, err := ipc.Dial(socketPath); err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil {
			snap.Status = *resp
			snap.Reachable = true
		}
	}

	if !snap.Reachable {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		snap.Status.Database = cfg.Database.Driver
		var results []preflight.Result
		if st, err := store.Open(checkCtx, cfg); err == nil {
			today := attendance.Day(time.Now(), cfg.Location())
			if stats, statsErr := st.DailyStats(checkCtx, today); statsErr == nil {
				snap.Status.Today = &stats
			}
			results = preflight.RunAll(checkCtx, cfg, st)
			_ = st.Close()
		} else {
			results = preflight.RunAll(checkCtx, cfg, nil)
			results = append(results, preflight.Result{Name: "Database (" + cfg.Database.Driver + ")", Detail: err.Error()})
		}
		applyPreflight(&snap.Status.Status, results)
	}

	snap.Lines = BuildStatusLines(cfg, snap.Status.Status)
	return snap, nil
}

// applyPreflight fills device health from preflight results for an offline
// daemon.
func applyPreflight(status *daemon.Status, results []preflight.Result) {
	for _, r := range results {
		health := daemon.DeviceHealth{Name: r.Name, Online: r.Passed, Checked: true, Detail: r.Detail}
		switch {
		case r.Name == "Fingerprint terminal":
			status.Fingerprint = health
		case r.Name == "Face encoder":
			status.Encoder = health
		case r.Name == "Camera":
			if r.Passed {
				status.Camera.LastFrame = time.Now()
			} else {
				status.Camera.LastError = r.Detail
			}
		case strings.HasPrefix(r.Name, "Database") && !r.Passed:
			status.Today = nil
		}
	}
}

// BuildStatusLines renders status rows for the daemon and kiosk devices.
func BuildStatusLines(cfg *config.Config, status daemon.Status) []StatusLine {
	lines := make([]StatusLine, 0, 8)
	if status.Running {
		detail := fmt.Sprintf("Running (pid %d)", status.PID)
		if !status.StartedAt.IsZero() {
			detail += ", since " + status.StartedAt.Local().Format("2006-01-02 15:04")
		}
		lines = append(lines, StatusLine{Label: "Daemon", Severity: SeverityOK, Detail: detail})
	} else {
		lines = append(lines, StatusLine{Label: "Daemon", Severity: SeverityWarn, Detail: "Not running (run `attendance daemon start`)"})
	}

	lines = append(lines, deviceLine("Fingerprint Terminal", status.Fingerprint, SeverityError))
	lines = append(lines, deviceLine("Face Encoder", status.Encoder, SeverityError))

	switch {
	case status.Camera.LastError != "":
		lines = append(lines, StatusLine{Label: "Camera", Severity: SeverityError, Detail: status.Camera.LastError})
	case status.Camera.Running && !status.Camera.LastFrame.IsZero():
		detail := "Streaming"
		if status.Camera.Paused {
			detail = "Paused for fingerprint scan"
		}
		lines = append(lines, StatusLine{Label: "Camera", Severity: SeverityOK, Detail: detail})
	case status.Running:
		lines = append(lines, StatusLine{Label: "Camera", Severity: SeverityWarn, Detail: "No frames yet"})
	case !status.Camera.LastFrame.IsZero():
		lines = append(lines, StatusLine{Label: "Camera", Severity: SeverityOK, Detail: "Frame ok"})
	default:
		lines = append(lines, StatusLine{Label: "Camera", Severity: SeverityInfo, Detail: "Inactive (daemon not running)"})
	}

	if cfg.Camera.SnapshotURL == "" && cfg.Camera.Device != "" {
		switch {
		case status.HotplugMonitoring:
			lines = append(lines, StatusLine{Label: "Camera Hotplug", Severity: SeverityOK, Detail: "udev monitoring active"})
		case status.Running:
			lines = append(lines, StatusLine{Label: "Camera Hotplug", Severity: SeverityWarn, Detail: "udev unavailable (use `attendance camera restart` after reconnecting)"})
		default:
			lines = append(lines, StatusLine{Label: "Camera Hotplug", Severity: SeverityInfo, Detail: "Inactive (daemon not running)"})
		}
	}

	if status.Today != nil {
		lines = append(lines, StatusLine{
			Label:    "Database",
			Severity: SeverityOK,
			Detail:   fmt.Sprintf("%s, today %d present / %d absent of %d", status.Database, status.Today.Present, status.Today.Absent, status.Today.Total),
		})
	} else {
		lines = append(lines, StatusLine{Label: "Database", Severity: SeverityError, Detail: status.Database + " unavailable"})
	}

	if status.ActiveSession != nil {
		lines = append(lines, StatusLine{
			Label:    "Session",
			Severity: SeverityInfo,
			Detail:   fmt.Sprintf("%s %s (%s)", status.ActiveSession.Direction.Label(), status.ActiveSession.ID, status.ActiveSession.State),
		})
	}
	if status.FailedFaceAttempts > 0 {
		lines = append(lines, StatusLine{
			Label:    "Face Failures",
			Severity: SeverityWarn,
			Detail:   fmt.Sprintf("%d consecutive", status.FailedFaceAttempts),
		})
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: SeverityOK, Detail: "Configured"})
	} else {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: SeverityInfo, Detail: "Not configured"})
	}
	return lines
}

func deviceLine(label string, health daemon.DeviceHealth, failSeverity string) StatusLine {
	switch {
	case !health.Checked:
		return StatusLine{Label: label, Severity: SeverityInfo, Detail: "Not checked yet"}
	case health.Online:
		detail := health.Detail
		if health.Address != "" {
			detail = health.Address + " " + detail
		}
		return StatusLine{Label: label, Severity: SeverityOK, Detail: strings.TrimSpace(detail)}
	default:
		return StatusLine{Label: label, Severity: failSeverity, Detail: health.Detail}
	}
}
