package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"attendance/internal/attendance"
	"attendance/internal/logging"
	"attendance/internal/services"
)

const defaultSessionRetention = 10 * time.Minute

// Sessions starts workflow runs on behalf of front doors and keeps their
// state addressable by id until they expire.
type Sessions struct {
	workflow  *Workflow
	logger    *slog.Logger
	retention time.Duration
	now       func() time.Time

	base context.Context
	wg   sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
	active   string
}

// NewSessions binds a session registry to wf. Runs are cancelled when base
// ends.
func NewSessions(base context.Context, wf *Workflow, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sessions{
		workflow:  wf,
		logger:    logging.NewComponentLogger(logger, "sessions"),
		retention: defaultSessionRetention,
		now:       time.Now,
		base:      base,
		sessions:  make(map[string]*Session),
	}
}

// Start launches a run. It fails with services.ErrBusy while another session
// is still active.
func (m *Sessions) Start(direction attendance.Direction, actingUser string) (*Session, error) {
	if direction != attendance.CheckIn && direction != attendance.CheckOut {
		return nil, services.Wrap(services.ErrValidation, "sessions", "start", fmt.Sprintf("unknown direction %q", direction), nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	if m.active != "" {
		if current, ok := m.sessions[m.active]; ok && !current.Snapshot().Done {
			return nil, services.Wrap(services.ErrBusy, "sessions", "start", "another attendance operation is in progress", nil)
		}
	}
	if m.workflow.Busy() {
		return nil, services.Wrap(services.ErrBusy, "sessions", "start", "another attendance operation is in progress", nil)
	}

	id := uuid.NewString()
	session := newSession(id, direction, actingUser, m.now())
	ctx, cancel := context.WithCancel(m.base)
	session.cancel = cancel
	m.sessions[id] = session
	m.active = id

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		result := m.workflow.Run(ctx, direction, session,
			WithSessionID(id),
			WithActingUser(actingUser),
			WithStateHook(session.setState),
		)
		session.finish(result, m.now())
	}()

	m.logger.Info("attendance session started",
		logging.String(logging.FieldEventType, "session_started"),
		logging.String(logging.FieldSessionID, id),
		logging.String(logging.FieldDirection, string(direction)),
	)
	return session, nil
}

// Get returns the session with id.
func (m *Sessions) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "sessions", "get", fmt.Sprintf("session %s", id), nil)
	}
	return session, nil
}

// Active returns the running session, if any.
func (m *Sessions) Active() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[m.active]
	if !ok || session.Snapshot().Done {
		return nil, false
	}
	return session, true
}

// Wait blocks until every started run has returned.
func (m *Sessions) Wait() {
	m.wg.Wait()
}

func (m *Sessions) pruneLocked() {
	cutoff := m.now().Add(-m.retention)
	for id, session := range m.sessions {
		if session.finishedBefore(cutoff) {
			delete(m.sessions, id)
		}
	}
}
