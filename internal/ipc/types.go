package ipc

import (
	"attendance/internal/attendance"
	"attendance/internal/daemon"
	"attendance/internal/preflight"
	"attendance/internal/workflow"
)

// StartRequest triggers daemon startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops daemon processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the daemon status snapshot.
type StatusResponse struct {
	daemon.Status
	APIAddress string `json:"api_address,omitempty"`
}

// SessionSnapshot mirrors the workflow session state for CLI callers.
type SessionSnapshot = workflow.SessionSnapshot

// SessionStartRequest begins a check-in or check-out.
type SessionStartRequest struct {
	Direction  string `json:"direction"`
	ActingUser string `json:"acting_user"`
}

// SessionRequest fetches session state. With WaitMillis set the call blocks
// until a prompt newer than AfterSeq appears, the run finishes or the wait
// elapses.
type SessionRequest struct {
	ID         string `json:"id"`
	AfterSeq   int    `json:"after_seq"`
	WaitMillis int    `json:"wait_millis"`
}

// SessionResponse carries a session snapshot.
type SessionResponse struct {
	Session SessionSnapshot `json:"session"`
}

// ConfirmRequest answers a pending confirmation prompt.
type ConfirmRequest struct {
	ID        string `json:"id"`
	Confirmed bool   `json:"confirmed"`
	Bypass    bool   `json:"bypass"`
}

// SelectRequest answers a pending manual selection. A nil EmployeeID cancels.
type SelectRequest struct {
	ID         string `json:"id"`
	EmployeeID *int64 `json:"employee_id"`
}

// CancelRequest aborts a session.
type CancelRequest struct {
	ID string `json:"id"`
}

// LoginRequest verifies operator credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse names the authenticated operator.
type LoginResponse struct {
	Username  string `json:"username"`
	Functions string `json:"functions"`
}

// DailyStatsRequest selects the day; empty means today.
type DailyStatsRequest struct {
	Date string `json:"date"`
}

// DailyStatsResponse carries present/absent counts.
type DailyStatsResponse struct {
	Stats attendance.DailyStats `json:"stats"`
}

// LogTailRequest requests log lines from the daemon.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
	// Match keeps only lines containing the substring.
	Match string `json:"match,omitempty"`
}

// LogTailResponse contains log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification delivery.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// CameraRestartRequest reopens the camera source.
type CameraRestartRequest struct{}

// CameraRestartResponse acknowledges the restart.
type CameraRestartResponse struct {
	Restarting bool `json:"restarting"`
}

// PreflightRequest runs the environment checks.
type PreflightRequest struct{}

// PreflightResponse lists check results.
type PreflightResponse struct {
	Results []preflight.Result `json:"results"`
}
