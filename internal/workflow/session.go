package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"attendance/internal/attendance"
	"attendance/internal/services"
)

// PromptKind identifies the pending operator interaction.
type PromptKind string

const (
	PromptConfirm PromptKind = "confirm"
	PromptSelect  PromptKind = "select"
)

// EmployeeChoice is a roster entry offered by the manual picker.
type EmployeeChoice struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Department  string `json:"department,omitempty"`
}

// Prompt is a suspended operator interaction awaiting an answer.
type Prompt struct {
	Seq       int              `json:"seq"`
	Kind      PromptKind       `json:"kind"`
	Confirm   *ConfirmRequest  `json:"confirm,omitempty"`
	Employees []EmployeeChoice `json:"employees,omitempty"`
}

// SessionSnapshot is the externally visible state of a session.
type SessionSnapshot struct {
	ID         string               `json:"id"`
	Direction  attendance.Direction `json:"direction"`
	ActingUser string               `json:"acting_user,omitempty"`
	State      State                `json:"state"`
	StartedAt  time.Time            `json:"started_at"`
	Prompt     *Prompt              `json:"prompt,omitempty"`
	Notices    []Notice             `json:"notices,omitempty"`
	Result     *Result              `json:"result,omitempty"`
	Done       bool                 `json:"done"`
}

// ErrNoPrompt is returned when an answer does not match the pending prompt.
var ErrNoPrompt = errors.New("no matching prompt pending")

type answer struct {
	kind     PromptKind
	confirm  ConfirmResponse
	selected *int64
}

// Session is a Prompter whose suspend points are resolved by calls from the
// kiosk API or the CLI socket.
type Session struct {
	id         string
	direction  attendance.Direction
	actingUser string
	startedAt  time.Time

	answers chan answer
	done    chan struct{}
	cancel  context.CancelFunc

	mu       sync.Mutex
	state    State
	prompt   *Prompt
	seq      int
	notices  []Notice
	result   *Result
	finished time.Time
}

func newSession(id string, direction attendance.Direction, actingUser string, now time.Time) *Session {
	return &Session{
		id:         id,
		direction:  direction,
		actingUser: actingUser,
		startedAt:  now,
		answers:    make(chan answer),
		done:       make(chan struct{}),
		state:      StateCapturingFace,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Confirm publishes a confirmation prompt and waits for AnswerConfirm.
func (s *Session) Confirm(ctx context.Context, req ConfirmRequest) (ConfirmResponse, error) {
	s.setPrompt(&Prompt{Kind: PromptConfirm, Confirm: &req})
	defer s.setPrompt(nil)
	for {
		select {
		case <-ctx.Done():
			return ConfirmResponse{}, ctx.Err()
		case a := <-s.answers:
			if a.kind == PromptConfirm {
				return a.confirm, nil
			}
		}
	}
}

// SelectEmployee publishes the roster and waits for AnswerSelect.
func (s *Session) SelectEmployee(ctx context.Context, roster []attendance.Employee) (*attendance.Employee, error) {
	choices := make([]EmployeeChoice, 0, len(roster))
	for _, e := range roster {
		choices = append(choices, EmployeeChoice{ID: e.ID, DisplayName: e.DisplayName, Department: e.Department})
	}
	s.setPrompt(&Prompt{Kind: PromptSelect, Employees: choices})
	defer s.setPrompt(nil)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case a := <-s.answers:
			if a.kind != PromptSelect {
				continue
			}
			if a.selected == nil {
				return nil, nil
			}
			for _, e := range roster {
				if e.ID == *a.selected {
					employee := e
					return &employee, nil
				}
			}
			return &attendance.Employee{ID: *a.selected}, nil
		}
	}
}

// Notify records a notice for the front door to display.
func (s *Session) Notify(_ context.Context, notice Notice) {
	s.mu.Lock()
	s.notices = append(s.notices, notice)
	s.mu.Unlock()
}

// AnswerConfirm resolves a pending confirmation prompt.
func (s *Session) AnswerConfirm(ctx context.Context, resp ConfirmResponse) error {
	return s.deliver(ctx, answer{kind: PromptConfirm, confirm: resp})
}

// AnswerSelect resolves a pending manual selection. A nil id cancels.
func (s *Session) AnswerSelect(ctx context.Context, employeeID *int64) error {
	return s.deliver(ctx, answer{kind: PromptSelect, selected: employeeID})
}

func (s *Session) deliver(ctx context.Context, a answer) error {
	s.mu.Lock()
	pending := s.prompt
	s.mu.Unlock()
	if pending == nil || pending.Kind != a.kind {
		return services.Wrap(services.ErrValidation, "session", "answer", fmt.Sprintf("no %s prompt pending", a.kind), ErrNoPrompt)
	}
	select {
	case s.answers <- a:
		return nil
	case <-s.done:
		return services.Wrap(services.ErrValidation, "session", "answer", "session finished", ErrNoPrompt)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel aborts the session. Prompts return and the run ends cancelled.
func (s *Session) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Done is closed when the run has finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the run finishes or ctx ends.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return *s.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := SessionSnapshot{
		ID:         s.id,
		Direction:  s.direction,
		ActingUser: s.actingUser,
		State:      s.state,
		StartedAt:  s.startedAt,
		Notices:    append([]Notice(nil), s.notices...),
		Done:       s.result != nil,
	}
	if s.prompt != nil {
		p := *s.prompt
		snap.Prompt = &p
	}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	return snap
}

func (s *Session) setPrompt(p *Prompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p != nil {
		s.seq++
		p.Seq = s.seq
	}
	s.prompt = p
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) finish(result Result, now time.Time) {
	s.mu.Lock()
	s.state = result.State
	s.prompt = nil
	s.result = &result
	s.finished = now
	s.mu.Unlock()
	close(s.done)
}

func (s *Session) finishedBefore(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result != nil && s.finished.Before(cutoff)
}
