package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"attendance/internal/attendance"
	"attendance/internal/config"
	"attendance/internal/logging"
	"attendance/internal/services"
	"attendance/internal/workflow"
)

const maxRequestBody = 16 << 10

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// selectRequest carries the manual picker answer. A null employee id cancels.
type selectRequest struct {
	EmployeeID *int64 `json:"employee_id"`
}

type sessionResponse struct {
	Session workflow.SessionSnapshot `json:"session"`
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/attendance/check-in", requireToken(token, s.handleStart(attendance.CheckIn)))
	mux.HandleFunc("POST /api/attendance/check-out", requireToken(token, s.handleStart(attendance.CheckOut)))
	mux.HandleFunc("GET /api/sessions/{id}", requireToken(token, s.handleSession))
	mux.HandleFunc("POST /api/sessions/{id}/confirm", requireToken(token, s.handleConfirm))
	mux.HandleFunc("POST /api/sessions/{id}/select", requireToken(token, s.handleSelect))
	mux.HandleFunc("POST /api/sessions/{id}/cancel", requireToken(token, s.handleCancel))
	mux.HandleFunc("GET /api/status", requireToken(token, s.handleStatus))
	mux.HandleFunc("GET /api/preview.jpg", requireToken(token, s.handlePreview))
	mux.HandleFunc("POST /api/camera/restart", requireToken(token, s.handleCameraRestart))
	mux.HandleFunc("GET /api/stats/daily", requireToken(token, s.handleDailyStats))
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStart(direction attendance.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operator, err := s.operator(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err)
			return
		}
		snap, err := s.daemon.StartSession(direction, operator)
		if err != nil {
			s.writeError(w, statusFor(err), err)
			return
		}
		s.log().Info("attendance session requested",
			logging.String(logging.FieldSessionID, snap.ID),
			logging.String(logging.FieldDirection, string(direction)),
			logging.String("operator", operator),
		)
		s.writeJSON(w, http.StatusAccepted, sessionResponse{Session: snap})
	}
}

func (s *apiServer) handleSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.daemon.Session(r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, sessionResponse{Session: snap})
}

func (s *apiServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req workflow.ConfirmResponse
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	snap, err := s.daemon.ConfirmSession(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, sessionResponse{Session: snap})
}

func (s *apiServer) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	snap, err := s.daemon.SelectSession(r.Context(), r.PathValue("id"), req.EmployeeID)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, sessionResponse{Session: snap})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	snap, err := s.daemon.CancelSession(r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, sessionResponse{Session: snap})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handlePreview(w http.ResponseWriter, _ *http.Request) {
	frame, ok := s.daemon.PreviewFrame()
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("no camera frame available"))
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Last-Modified", frame.CapturedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame.Data)
}

func (s *apiServer) handleCameraRestart(w http.ResponseWriter, _ *http.Request) {
	if err := s.daemon.RestartCamera(); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"restarting": true})
}

func (s *apiServer) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.daemon.DailyStats(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// operator resolves the acting user from the login headers. Requests without
// the headers are self-service.
func (s *apiServer) operator(r *http.Request) (string, error) {
	username := strings.TrimSpace(r.Header.Get(operatorHeader))
	if username == "" {
		return "", nil
	}
	user, err := s.daemon.Authenticate(r.Context(), username, r.Header.Get(operatorPasswordHeader))
	if err != nil {
		logging.WarnWithContext(s.log(), "operator login rejected", "operator_login_rejected",
			logging.String("operator", username),
			logging.Error(err),
		)
		return "", services.Wrap(services.ErrValidation, "api", "login", "invalid operator credentials", nil)
	}
	return user.Username, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := decoder.Decode(target); err != nil {
		return services.Wrap(services.ErrValidation, "api", "decode", "invalid request body", err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrBusy), errors.Is(err, workflow.ErrNoPrompt):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUnavailable), errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  services.ErrorCode(err),
	})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
