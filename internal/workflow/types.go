package workflow

import (
	"context"
	"time"

	"attendance/internal/attendance"
	"attendance/internal/fingerprint"
)

// State is a step of one attendance run.
type State string

const (
	StateCapturingFace       State = "capturing_face"
	StateIdentifying         State = "identifying"
	StateConfirming          State = "confirming"
	StateManualSelect        State = "manual_select"
	StateAwaitingFingerprint State = "awaiting_fingerprint"
	StateWriting             State = "writing"
	StateDone                State = "done"
	StateRejected            State = "rejected"
	StateCancelled           State = "cancelled"
	StateFailed              State = "failed"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateRejected, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

// Outcome is the operator-facing result kind of a run.
type Outcome string

const (
	OutcomeRecorded           Outcome = "recorded"
	OutcomeNoFace             Outcome = "no_face"
	OutcomeRetry              Outcome = "retry"
	OutcomeCancelled          Outcome = "cancelled"
	OutcomeRejected           Outcome = "rejected"
	OutcomeWrongFingerprint   Outcome = "wrong_identity"
	OutcomeFingerprintTimeout Outcome = "fingerprint_timeout"
	OutcomeDeviceUnreachable  Outcome = "device_unreachable"
	OutcomeBusy               Outcome = "busy"
	OutcomeError              Outcome = "error"
)

// Result describes how a run ended. Err is set only for infrastructure
// failures (OutcomeError).
type Result struct {
	SessionID          string                     `json:"session_id"`
	Direction          attendance.Direction       `json:"direction"`
	State              State                      `json:"state"`
	Outcome            Outcome                    `json:"outcome"`
	Message            string                     `json:"message"`
	Employee           *attendance.Employee       `json:"employee,omitempty"`
	Reason             attendance.RejectionReason `json:"reason,omitempty"`
	Fingerprint        *fingerprint.Result        `json:"fingerprint,omitempty"`
	At                 *time.Time                 `json:"at,omitempty"`
	Duration           *time.Duration             `json:"duration,omitempty"`
	FailedFaceAttempts int                        `json:"failed_face_attempts"`
	Err                error                      `json:"-"`
}

// Recorded reports whether the store was updated.
func (r Result) Recorded() bool {
	return r.Outcome == OutcomeRecorded
}

// ConfirmRequest asks the operator to confirm a face match.
type ConfirmRequest struct {
	Direction   attendance.Direction `json:"direction"`
	Employee    attendance.Employee  `json:"employee"`
	Distance    float64              `json:"distance"`
	OfferBypass bool                 `json:"offer_bypass"`
	// Manual marks an employee picked from the roster rather than matched.
	Manual bool `json:"manual,omitempty"`
}

// ConfirmResponse is the operator's answer. Bypass asks for the manual
// employee picker instead of face recognition.
type ConfirmResponse struct {
	Confirmed bool `json:"confirmed"`
	Bypass    bool `json:"bypass"`
}

// NoticeLevel colours a notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is an informational message for the operator.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// Prompter resolves the operator interactions of a run. Confirm and
// SelectEmployee block until answered or ctx ends; SelectEmployee returns nil
// when the operator cancels.
type Prompter interface {
	Confirm(ctx context.Context, req ConfirmRequest) (ConfirmResponse, error)
	SelectEmployee(ctx context.Context, roster []attendance.Employee) (*attendance.Employee, error)
	Notify(ctx context.Context, notice Notice)
}

// Store is the persistence used by a run.
type Store interface {
	ReadStatus(ctx context.Context, employeeID int64, day string) (attendance.Status, error)
	Roster(ctx context.Context) ([]attendance.Employee, error)
	FindUser(ctx context.Context, username string) (*attendance.User, error)
	WriteCheckIn(ctx context.Context, employeeID int64, day string, at time.Time, audit *attendance.AuditEntry) (bool, error)
	WriteCheckOut(ctx context.Context, employeeID int64, day string, at time.Time, audit *attendance.AuditEntry) (*time.Duration, error)
}

// FrameSource yields a single camera frame.
type FrameSource interface {
	Capture(ctx context.Context) ([]byte, error)
}

// PreviewControl pauses the camera preview loop.
type PreviewControl interface {
	Pause()
	Resume()
}

// Verifier binds a fingerprint scan to an employee.
type Verifier interface {
	Verify(ctx context.Context, expectedID int64, opts ...fingerprint.VerifyOption) fingerprint.Result
}
