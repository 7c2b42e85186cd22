package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"attendance/internal/attendance"
	"attendance/internal/config"
	"attendance/internal/face"
	"attendance/internal/fingerprint"
	"attendance/internal/logging"
	"attendance/internal/notifications"
	"attendance/internal/services"
	"attendance/internal/store"
)

// DefaultMaxFaceAttempts is the number of failed identifications after which
// the manual employee picker is offered.
const DefaultMaxFaceAttempts = 3

// Dependencies are the collaborators of a Workflow.
type Dependencies struct {
	Store    Store
	Frames   FrameSource
	Preview  PreviewControl
	Encoder  face.Encoder
	Verifier Verifier
	Notifier notifications.Service
}

// Option customizes a Workflow.
type Option func(*Workflow)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		if now != nil {
			w.now = now
		}
	}
}

// Workflow decides whether one check-in or check-out may be written. A kiosk
// owns a single Workflow; only one run executes at a time.
type Workflow struct {
	store    Store
	frames   FrameSource
	preview  PreviewControl
	encoder  face.Encoder
	matcher  face.Matcher
	verifier Verifier
	notifier notifications.Service
	logger   *slog.Logger

	now         func() time.Time
	location    *time.Location
	minGap      time.Duration
	maxAttempts int

	running sync.Mutex
	active  atomic.Bool

	mu                 sync.Mutex
	failedFaceAttempts int
}

// New constructs a Workflow from cfg and deps.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger, opts ...Option) *Workflow {
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &Workflow{
		store:       deps.Store,
		frames:      deps.Frames,
		preview:     deps.Preview,
		encoder:     deps.Encoder,
		matcher:     face.NewMatcher(face.DefaultThreshold),
		verifier:    deps.Verifier,
		notifier:    deps.Notifier,
		logger:      logging.NewComponentLogger(logger, "workflow"),
		now:         time.Now,
		location:    time.Local,
		minGap:      attendance.DefaultMinCheckoutGap,
		maxAttempts: DefaultMaxFaceAttempts,
	}
	if cfg != nil {
		w.matcher = face.NewMatcher(cfg.Face.Threshold)
		w.location = cfg.Location()
		if gap := cfg.MinCheckoutGap(); gap > 0 {
			w.minGap = gap
		}
		if cfg.Face.MaxAttempts > 0 {
			w.maxAttempts = cfg.Face.MaxAttempts
		}
	}
	if w.notifier == nil {
		w.notifier = notifications.NewService(nil)
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// FailedFaceAttempts returns the current consecutive identification failures.
func (w *Workflow) FailedFaceAttempts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failedFaceAttempts
}

// Busy reports whether a run is in progress.
func (w *Workflow) Busy() bool {
	return w.active.Load()
}

// RunOption customizes one run.
type RunOption func(*runOptions)

type runOptions struct {
	actingUser string
	sessionID  string
	onState    func(State)
}

// WithActingUser names the logged-in operator for the audit entry. An empty
// or unknown name records the entry as self-service.
func WithActingUser(username string) RunOption {
	return func(o *runOptions) {
		o.actingUser = strings.TrimSpace(username)
	}
}

// WithSessionID sets the session id used in logs and the result.
func WithSessionID(id string) RunOption {
	return func(o *runOptions) {
		o.sessionID = id
	}
}

// WithStateHook observes every state transition.
func WithStateHook(fn func(State)) RunOption {
	return func(o *runOptions) {
		o.onState = fn
	}
}

// run carries the per-invocation attempt state.
type run struct {
	w         *Workflow
	ctx       context.Context
	direction attendance.Direction
	prompter  Prompter
	opts      runOptions
	logger    *slog.Logger
	result    Result

	bypassGranted bool
	expected      *attendance.Employee
	distance      float64
}

// Run drives one attendance action to a terminal state. The store is written
// at most once, after the identity is confirmed, every business rule has
// passed and the fingerprint terminal has verified the same employee.
func (w *Workflow) Run(ctx context.Context, direction attendance.Direction, prompter Prompter, opts ...RunOption) Result {
	var options runOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.sessionID == "" {
		options.sessionID = uuid.NewString()
	}

	if !w.running.TryLock() {
		return Result{
			SessionID: options.sessionID,
			Direction: direction,
			State:     StateFailed,
			Outcome:   OutcomeBusy,
			Message:   "Another attendance operation is in progress.",
		}
	}
	defer w.running.Unlock()
	w.active.Store(true)
	defer w.active.Store(false)
	// The preview must run again whatever the exit path.
	defer w.resumePreview()

	ctx = services.WithSessionID(ctx, options.sessionID)
	ctx = services.WithDirection(ctx, string(direction))
	r := &run{
		w:         w,
		ctx:       ctx,
		direction: direction,
		prompter:  prompter,
		opts:      options,
		logger:    logging.WithContext(ctx, w.logger),
		result: Result{
			SessionID: options.sessionID,
			Direction: direction,
		},
	}
	if direction != attendance.CheckIn && direction != attendance.CheckOut {
		return r.fail(services.Wrap(services.ErrValidation, "workflow", "run", fmt.Sprintf("unknown direction %q", direction), nil))
	}
	if prompter == nil {
		return r.fail(services.Wrap(services.ErrConfiguration, "workflow", "run", "no prompter", nil))
	}

	r.logger.Info("attendance run started",
		logging.String(logging.FieldEventType, "attendance_run_started"),
		logging.Int("failed_face_attempts", w.FailedFaceAttempts()),
	)
	result := r.execute()
	result.FailedFaceAttempts = w.FailedFaceAttempts()
	r.logger.Info("attendance run finished",
		logging.String(logging.FieldEventType, "attendance_run_finished"),
		logging.String(logging.FieldState, string(result.State)),
		logging.String("outcome", string(result.Outcome)),
	)
	return result
}

func (r *run) execute() Result {
	employee, done := r.identify()
	if done != nil {
		return *done
	}
	r.bindEmployee(employee)

	day := attendance.Day(r.w.now(), r.w.location)
	if res := r.guard(day); res != nil {
		return *res
	}

	verdict := r.verifyFingerprint(employee.ID)
	switch verdict.Outcome {
	case fingerprint.OutcomeSuccess:
	case fingerprint.OutcomeCancelled:
		return r.cancelled()
	default:
		return r.fingerprintFailed(verdict)
	}

	return r.write(day)
}

// identify runs CapturingFace, Identifying and Confirming/ManualSelect. It
// returns either the confirmed employee or a terminal result.
func (r *run) identify() (*attendance.Employee, *Result) {
	r.setState(StateCapturingFace)
	if r.w.frames == nil || r.w.encoder == nil {
		res := r.fail(services.Wrap(services.ErrConfiguration, "workflow", "capture", "camera or face encoder not configured", nil))
		return nil, &res
	}
	frame, err := r.w.frames.Capture(r.ctx)
	if err != nil {
		if r.ctx.Err() != nil {
			res := r.cancelled()
			return nil, &res
		}
		res := r.fail(services.Wrap(services.ErrUnavailable, "workflow", "capture", "camera error", err))
		return nil, &res
	}

	encodings, err := r.w.encoder.Encode(r.ctx, frame)
	if err != nil {
		if r.ctx.Err() != nil {
			res := r.cancelled()
			return nil, &res
		}
		res := r.fail(err)
		return nil, &res
	}
	if len(encodings) == 0 {
		attempts := r.w.recordFaceFailure()
		res := r.finish(StateFailed, OutcomeNoFace, NoticeWarning, "No face detected. Please stand in front of the camera.")
		r.logger.Info("no face detected",
			logging.String(logging.FieldEventType, "face_not_detected"),
			logging.Int("failed_face_attempts", attempts),
		)
		return nil, &res
	}
	if len(encodings) > 1 {
		r.logger.Debug("multiple faces detected; using the first", logging.Int("faces", len(encodings)))
	}

	r.setState(StateIdentifying)
	roster, err := r.w.store.Roster(r.ctx)
	if err != nil {
		res := r.fail(err)
		return nil, &res
	}
	candidate, matched := r.w.matcher.Match(encodings[0].Vector, roster)
	if !matched {
		attempts := r.w.recordFaceFailure()
		r.logger.Info("face not recognized",
			logging.String(logging.FieldEventType, "face_not_recognized"),
			logging.Int("failed_face_attempts", attempts),
			logging.Int("max_attempts", r.w.maxAttempts),
		)
		if attempts < r.w.maxAttempts {
			res := r.finish(StateFailed, OutcomeRetry, NoticeWarning,
				fmt.Sprintf("Face not recognized. Please try again (attempt %d of %d).", attempts, r.w.maxAttempts))
			return nil, &res
		}
		r.notify(NoticeWarning, fmt.Sprintf("Face not recognized after %d attempts. Select the employee manually.", attempts))
		picked, res := r.manualSelect(roster)
		if res != nil {
			return nil, res
		}
		// A pick from the full roster still needs the employee's own
		// confirmation; the counter was reset so no bypass is offered.
		return r.confirm(face.Candidate{Employee: *picked}, roster, true)
	}

	r.distance = candidate.Distance
	r.logger.Info("face matched",
		logging.String(logging.FieldEventType, "face_matched"),
		logging.Int64(logging.FieldEmployeeID, candidate.Employee.ID),
		logging.Float64("distance", candidate.Distance),
	)
	return r.confirm(candidate, roster, false)
}

func (r *run) confirm(candidate face.Candidate, roster []attendance.Employee, manual bool) (*attendance.Employee, *Result) {
	r.setState(StateConfirming)
	employee := candidate.Employee
	r.expected = &employee

	offerBypass := r.w.FailedFaceAttempts() >= r.w.maxAttempts
	answer, err := r.prompter.Confirm(r.ctx, ConfirmRequest{
		Direction:   r.direction,
		Employee:    employee,
		Distance:    candidate.Distance,
		OfferBypass: offerBypass,
		Manual:      manual,
	})
	if err != nil {
		res := r.promptFailed(err)
		return nil, &res
	}
	if answer.Confirmed {
		r.w.resetFaceFailures()
		return &employee, nil
	}

	r.expected = nil
	if offerBypass && answer.Bypass {
		r.bypassGranted = true
		return r.manualSelect(roster)
	}
	r.w.recordFaceFailure()
	res := r.cancelled()
	return nil, &res
}

func (r *run) manualSelect(roster []attendance.Employee) (*attendance.Employee, *Result) {
	r.setState(StateManualSelect)
	selected, err := r.prompter.SelectEmployee(r.ctx, roster)
	if err != nil {
		res := r.promptFailed(err)
		return nil, &res
	}
	if selected == nil {
		res := r.cancelled()
		return nil, &res
	}
	employee, ok := findEmployee(roster, selected.ID)
	if !ok {
		res := r.finish(StateFailed, OutcomeError, NoticeError, fmt.Sprintf("Employee #%d is not on the roster.", selected.ID))
		res.Err = services.Wrap(services.ErrNotFound, "workflow", "manual select", fmt.Sprintf("employee %d", selected.ID), nil)
		return nil, &res
	}
	r.logger.Info("employee selected manually",
		logging.String(logging.FieldEventType, "manual_select"),
		logging.Int64(logging.FieldEmployeeID, employee.ID),
		logging.Bool("bypass", r.bypassGranted),
	)
	r.w.resetFaceFailures()
	return &employee, nil
}

func (r *run) bindEmployee(employee *attendance.Employee) {
	r.expected = employee
	r.result.Employee = employee
	r.ctx = services.WithEmployeeID(r.ctx, employee.ID)
	r.logger = logging.WithContext(r.ctx, r.w.logger)
}

func (r *run) guard(day string) *Result {
	status, err := r.w.store.ReadStatus(r.ctx, r.expected.ID, day)
	if err != nil {
		res := r.fail(err)
		return &res
	}
	rejection := attendance.Guard(r.direction, status, r.w.now(), r.w.minGap, r.w.location)
	if rejection == nil {
		return nil
	}
	res := r.reject(rejection)
	return &res
}

func (r *run) verifyFingerprint(employeeID int64) fingerprint.Result {
	r.setState(StateAwaitingFingerprint)
	if r.w.verifier == nil {
		return fingerprint.Result{
			Outcome: fingerprint.OutcomeDeviceUnreachable,
			Err:     services.Wrap(services.ErrConfiguration, "workflow", "fingerprint", "no fingerprint verifier", nil),
		}
	}
	if r.w.preview != nil {
		r.w.preview.Pause()
		defer r.w.preview.Resume()
	}
	r.notify(NoticeInfo, "Place your finger on the fingerprint terminal.")
	verdict := r.w.verifier.Verify(r.ctx, employeeID, fingerprint.OnAttempt(func(a fingerprint.Attempt) {
		if a.Number > 1 {
			r.notify(NoticeInfo, fmt.Sprintf("Retrying fingerprint terminal (attempt %d of %d). Place your finger within %s.", a.Number, a.Max, a.Window))
		}
	}))
	r.result.Fingerprint = &verdict
	return verdict
}

func (r *run) write(day string) Result {
	r.setState(StateWriting)
	at := r.w.now()
	audit, err := r.auditEntry(at)
	if err != nil {
		return r.fail(err)
	}

	switch r.direction {
	case attendance.CheckIn:
		created, err := r.w.store.WriteCheckIn(r.ctx, r.expected.ID, day, at, audit)
		if err != nil {
			return r.fail(err)
		}
		if !created {
			return r.reject(r.lostRace(day, attendance.ReasonAlreadyCheckedIn, "already checked in today"))
		}
	case attendance.CheckOut:
		worked, err := r.w.store.WriteCheckOut(r.ctx, r.expected.ID, day, at, audit)
		if errors.Is(err, store.ErrCheckoutTooEarly) {
			return r.reject(attendance.TooEarly(r.w.minGap))
		}
		if err != nil {
			return r.fail(err)
		}
		if worked == nil {
			return r.reject(r.lostRace(day, attendance.ReasonNoCheckIn, "no open check-in today"))
		}
		r.result.Duration = worked
	}
	r.result.At = &at

	name := r.expected.DisplayName
	message := fmt.Sprintf("%s recorded for %s at %s.", r.direction.Label(), name, at.In(r.w.location).Format("15:04"))
	payload := notifications.Payload{"name": name, "time": at.In(r.w.location).Format("15:04")}
	event := notifications.EventCheckIn
	if r.result.Duration != nil {
		worked := attendance.FormatDuration(*r.result.Duration)
		message = fmt.Sprintf("%s recorded for %s at %s (worked %s).", r.direction.Label(), name, at.In(r.w.location).Format("15:04"), worked)
		payload["duration"] = worked
		event = notifications.EventCheckOut
	}
	r.logger.Info("attendance recorded",
		logging.String(logging.FieldEventType, "attendance_recorded"),
		logging.String("day", day),
	)
	r.publish(event, payload)
	return r.finish(StateDone, OutcomeRecorded, NoticeSuccess, message)
}

// lostRace explains a write the store refused after the guard passed: another
// writer changed the row in between, so the row is read again and judged by
// the same rules.
func (r *run) lostRace(day string, fallback attendance.RejectionReason, message string) *attendance.Rejection {
	status, err := r.w.store.ReadStatus(r.ctx, r.expected.ID, day)
	if err == nil {
		if rejection := attendance.Guard(r.direction, status, r.w.now(), r.w.minGap, r.w.location); rejection != nil {
			return rejection
		}
	}
	return &attendance.Rejection{Reason: fallback, Message: message}
}

// auditEntry names the operator when the acting user resolves to an account,
// and the employee otherwise.
func (r *run) auditEntry(at time.Time) (*attendance.AuditEntry, error) {
	name := r.expected.DisplayName
	entry := &attendance.AuditEntry{Timestamp: at}
	if username := r.opts.actingUser; username != "" {
		user, err := r.w.store.FindUser(r.ctx, username)
		switch {
		case err == nil && user != nil:
			id := user.ID
			entry.UserID = &id
			entry.Action = fmt.Sprintf("%s recorded %s for employee %s", user.Username, strings.ToLower(r.direction.Label()), name)
			return entry, nil
		case err != nil && !errors.Is(err, services.ErrNotFound):
			return nil, err
		}
		r.logger.Debug("acting user not found; recording as self-service", logging.String("username", username))
	}
	id := r.expected.ID
	entry.EmployeeID = &id
	entry.Action = fmt.Sprintf("Self-service %s - %s", strings.ToLower(r.direction.Label()), name)
	return entry, nil
}

func (r *run) reject(rejection *attendance.Rejection) Result {
	r.result.Reason = rejection.Reason
	message := rejection.Message
	if r.expected != nil {
		message = fmt.Sprintf("%s: %s", r.expected.DisplayName, rejection.Message)
	}
	r.logger.Info("attendance rejected",
		logging.String(logging.FieldEventType, "attendance_rejected"),
		logging.String("reason", string(rejection.Reason)),
	)
	return r.finish(StateRejected, OutcomeRejected, NoticeWarning, message)
}

func (r *run) fingerprintFailed(verdict fingerprint.Result) Result {
	switch verdict.Outcome {
	case fingerprint.OutcomeWrongIdentity:
		return r.finish(StateFailed, OutcomeWrongFingerprint, NoticeError,
			"Fingerprint does not belong to the selected employee. Attendance not recorded.")
	case fingerprint.OutcomeTimeout:
		return r.finish(StateFailed, OutcomeFingerprintTimeout, NoticeError,
			"No fingerprint was scanned. Attendance not recorded.")
	case fingerprint.OutcomeBusy:
		return r.finish(StateFailed, OutcomeBusy, NoticeWarning,
			"The fingerprint terminal is busy with another verification.")
	default:
		res := r.finish(StateFailed, OutcomeDeviceUnreachable, NoticeError,
			"Fingerprint terminal unreachable. Attendance not recorded.")
		res.Err = verdict.Err
		r.publish(notifications.EventError, notifications.Payload{"context": "fingerprint verification", "error": verdict.Err})
		return res
	}
}

func (r *run) promptFailed(err error) Result {
	if r.ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return r.cancelled()
	}
	return r.fail(err)
}

func (r *run) cancelled() Result {
	r.logger.Info("attendance run cancelled", logging.String(logging.FieldEventType, "attendance_cancelled"))
	return r.finish(StateCancelled, OutcomeCancelled, NoticeWarning, "Operation cancelled.")
}

func (r *run) fail(err error) Result {
	logging.ErrorWithContext(r.logger, "attendance run failed", "attendance_failed",
		logging.Error(err),
		logging.String(logging.FieldState, string(r.result.State)),
		logging.String(logging.FieldErrorHint, "check camera, encoder and database connectivity"),
		logging.String(logging.FieldImpact, "attendance not recorded"),
	)
	r.publish(notifications.EventError, notifications.Payload{"context": strings.ToLower(r.direction.Label()), "error": err})
	res := r.finish(StateFailed, OutcomeError, NoticeError, "Attendance could not be recorded: "+errorSummary(err))
	res.Err = err
	return res
}

func (r *run) finish(state State, outcome Outcome, level NoticeLevel, message string) Result {
	r.setState(state)
	r.result.Outcome = outcome
	r.result.Message = message
	r.notify(level, message)
	return r.result
}

func (r *run) setState(state State) {
	r.result.State = state
	r.logger.Debug("workflow state", logging.String(logging.FieldState, string(state)))
	if r.opts.onState != nil {
		r.opts.onState(state)
	}
}

func (r *run) notify(level NoticeLevel, message string) {
	if r.prompter == nil {
		return
	}
	r.prompter.Notify(r.ctx, Notice{Level: level, Message: message})
}

func (r *run) publish(event notifications.Event, payload notifications.Payload) {
	if r.w.notifier == nil {
		return
	}
	if err := r.w.notifier.Publish(context.WithoutCancel(r.ctx), event, payload); err != nil {
		r.logger.Debug("notification failed", logging.Error(err), logging.String("event", string(event)))
	}
}

func (w *Workflow) recordFaceFailure() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failedFaceAttempts < w.maxAttempts {
		w.failedFaceAttempts++
	}
	return w.failedFaceAttempts
}

func (w *Workflow) resetFaceFailures() {
	w.mu.Lock()
	w.failedFaceAttempts = 0
	w.mu.Unlock()
}

func (w *Workflow) resumePreview() {
	if w.preview != nil {
		w.preview.Resume()
	}
}

func findEmployee(roster []attendance.Employee, id int64) (attendance.Employee, bool) {
	for _, e := range roster {
		if e.ID == id {
			return e, true
		}
	}
	return attendance.Employee{}, false
}

func errorSummary(err error) string {
	if err == nil {
		return "unknown error"
	}
	switch {
	case errors.Is(err, services.ErrUnavailable):
		return "a required device or service is unavailable"
	case errors.Is(err, services.ErrTimeout):
		return "a required service timed out"
	case errors.Is(err, services.ErrConfiguration):
		return "the kiosk is misconfigured"
	default:
		return err.Error()
	}
}
