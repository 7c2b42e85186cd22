package workflow_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"attendance/internal/attendance"
	"attendance/internal/face"
	"attendance/internal/fingerprint"
	"attendance/internal/store"
	"attendance/internal/testsupport"
	"attendance/internal/workflow"
)

var (
	ada   = attendance.Employee{ID: 1, DisplayName: "Ada Lovelace", Department: "Engineering", FaceTemplate: attendance.Template{0, 0, 0}}
	grace = attendance.Employee{ID: 2, DisplayName: "Grace Hopper", Department: "Operations", FaceTemplate: attendance.Template{1, 0, 0}}

	adaFace     = []float64{0.1, 0, 0}
	unknownFace = []float64{0, 0.65, 0}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeFrames struct {
	err error
}

func (f *fakeFrames) Capture(context.Context) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte{0xff, 0xd8}, nil
}

// fakeEncoder returns the configured faces for every frame.
type fakeEncoder struct {
	mu    sync.Mutex
	faces [][]float64
	err   error
}

func (e *fakeEncoder) set(faces ...[]float64) {
	e.mu.Lock()
	e.faces = faces
	e.mu.Unlock()
}

func (e *fakeEncoder) Encode(context.Context, []byte) ([]face.Encoding, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([]face.Encoding, 0, len(e.faces))
	for _, f := range e.faces {
		out = append(out, face.Encoding{Vector: f})
	}
	return out, nil
}

type fakePreview struct {
	paused  atomic.Bool
	pauses  atomic.Int32
	resumes atomic.Int32
}

func (p *fakePreview) Pause() {
	p.pauses.Add(1)
	p.paused.Store(true)
}

func (p *fakePreview) Resume() {
	p.resumes.Add(1)
	p.paused.Store(false)
}

// fakeVerifier answers with a scripted outcome. The scanned id defaults to
// the expected id.
type fakeVerifier struct {
	preview *fakePreview
	outcome fingerprint.Outcome
	scanned string
	block   chan struct{}
	// during runs inside Verify, standing in for a second kiosk writing.
	during func()

	calls        atomic.Int32
	pausedDuring atomic.Bool
	lastID       atomic.Int64
}

func (v *fakeVerifier) Verify(ctx context.Context, expectedID int64, _ ...fingerprint.VerifyOption) fingerprint.Result {
	v.calls.Add(1)
	v.lastID.Store(expectedID)
	if v.preview != nil {
		v.pausedDuring.Store(v.preview.paused.Load())
	}
	if v.during != nil {
		v.during()
	}
	if v.block != nil {
		select {
		case <-v.block:
		case <-ctx.Done():
			return fingerprint.Result{Outcome: fingerprint.OutcomeCancelled, Err: ctx.Err()}
		}
	}
	outcome := v.outcome
	if outcome == "" {
		outcome = fingerprint.OutcomeSuccess
	}
	result := fingerprint.Result{Outcome: outcome, Attempts: 1}
	switch outcome {
	case fingerprint.OutcomeWrongIdentity:
		result.ScannedID = v.scanned
	case fingerprint.OutcomeDeviceUnreachable:
		result.Attempts = 3
		result.Err = errors.New("connection refused")
	case fingerprint.OutcomeTimeout:
		result.Attempts = 3
	}
	return result
}

// scriptedPrompter answers prompts from queues and records everything it is
// asked.
type scriptedPrompter struct {
	mu       sync.Mutex
	confirms []workflow.ConfirmResponse
	selects  []*int64

	confirmRequests []workflow.ConfirmRequest
	selectRosters   [][]attendance.Employee
	notices         []workflow.Notice
}

func (p *scriptedPrompter) Confirm(ctx context.Context, req workflow.ConfirmRequest) (workflow.ConfirmResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmRequests = append(p.confirmRequests, req)
	if len(p.confirms) == 0 {
		return workflow.ConfirmResponse{Confirmed: true}, nil
	}
	answer := p.confirms[0]
	p.confirms = p.confirms[1:]
	return answer, nil
}

func (p *scriptedPrompter) SelectEmployee(ctx context.Context, roster []attendance.Employee) (*attendance.Employee, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selectRosters = append(p.selectRosters, roster)
	if len(p.selects) == 0 || p.selects[0] == nil {
		if len(p.selects) > 0 {
			p.selects = p.selects[1:]
		}
		return nil, nil
	}
	id := *p.selects[0]
	p.selects = p.selects[1:]
	for _, e := range roster {
		if e.ID == id {
			employee := e
			return &employee, nil
		}
	}
	return &attendance.Employee{ID: id}, nil
}

func (p *scriptedPrompter) Notify(_ context.Context, notice workflow.Notice) {
	p.mu.Lock()
	p.notices = append(p.notices, notice)
	p.mu.Unlock()
}

func (p *scriptedPrompter) selectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.selectRosters)
}

func id(v int64) *int64 { return &v }

type harness struct {
	t        *testing.T
	store    *store.SQLite
	clock    *clock
	frames   *fakeFrames
	encoder  *fakeEncoder
	preview  *fakePreview
	verifier *fakeVerifier
	workflow *workflow.Workflow
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedEmployees(t, s, ada, grace)

	h := &harness{
		t:       t,
		store:   s,
		clock:   newClock(),
		frames:  &fakeFrames{},
		encoder: &fakeEncoder{faces: [][]float64{adaFace}},
		preview: &fakePreview{},
	}
	h.verifier = &fakeVerifier{preview: h.preview}
	h.workflow = workflow.New(cfg, workflow.Dependencies{
		Store:    s,
		Frames:   h.frames,
		Preview:  h.preview,
		Encoder:  h.encoder,
		Verifier: h.verifier,
	}, nil, workflow.WithClock(h.clock.Now))
	return h
}

func (h *harness) run(direction attendance.Direction, p workflow.Prompter, opts ...workflow.RunOption) workflow.Result {
	h.t.Helper()
	return h.workflow.Run(context.Background(), direction, p, opts...)
}

func (h *harness) status(employeeID int64) attendance.Status {
	h.t.Helper()
	st, err := h.store.ReadStatus(context.Background(), employeeID, attendance.Day(h.clock.Now(), time.UTC))
	if err != nil {
		h.t.Fatalf("ReadStatus: %v", err)
	}
	return st
}
