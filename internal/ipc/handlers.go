package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"attendance/internal/attendance"
	"attendance/internal/daemon"
	"attendance/internal/logging"
	"attendance/internal/logs"
	"attendance/internal/workflow"
)

// maxSessionWait caps a single long-poll so idle CLI prompts re-issue calls
// instead of pinning a connection forever.
const maxSessionWait = 30 * time.Second

// service holds the RPC methods registered under serviceName.
type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Message = err.Error()
		return nil
	}
	*resp = StartResponse{Started: true, Message: "daemon started"}
	s.logger.Info("kiosk services started over ipc", logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("kiosk services stopped over ipc", logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = StatusResponse{Status: s.daemon.Status(s.ctx), APIAddress: s.daemon.APIAddress()}
	return nil
}

func (s *service) StartSession(req SessionStartRequest, resp *SessionResponse) error {
	direction, ok := attendance.ParseDirection(req.Direction)
	if !ok {
		return fmt.Errorf("unknown direction %q", req.Direction)
	}
	snap, err := s.daemon.StartSession(direction, req.ActingUser)
	if err != nil {
		return err
	}
	s.logger.Info("attendance session started via IPC",
		logging.String(logging.FieldEventType, "session_start"),
		logging.String(logging.FieldSessionID, snap.ID),
		logging.String(logging.FieldDirection, string(direction)))
	resp.Session = snap
	return nil
}

func (s *service) Session(req SessionRequest, resp *SessionResponse) error {
	if req.WaitMillis <= 0 {
		snap, err := s.daemon.Session(req.ID)
		if err != nil {
			return err
		}
		resp.Session = snap
		return nil
	}
	wait := min(time.Duration(req.WaitMillis)*time.Millisecond, maxSessionWait)
	ctx, cancel := context.WithTimeout(s.ctx, wait)
	defer cancel()
	snap, err := s.daemon.WaitSession(ctx, req.ID, req.AfterSeq)
	if err != nil {
		return err
	}
	resp.Session = snap
	return nil
}

func (s *service) Confirm(req ConfirmRequest, resp *SessionResponse) error {
	snap, err := s.daemon.ConfirmSession(s.ctx, req.ID, workflow.ConfirmResponse{
		Confirmed: req.Confirmed,
		Bypass:    req.Bypass,
	})
	if err != nil {
		return err
	}
	resp.Session = snap
	return nil
}

func (s *service) Select(req SelectRequest, resp *SessionResponse) error {
	snap, err := s.daemon.SelectSession(s.ctx, req.ID, req.EmployeeID)
	if err != nil {
		return err
	}
	resp.Session = snap
	return nil
}

func (s *service) Cancel(req CancelRequest, resp *SessionResponse) error {
	snap, err := s.daemon.CancelSession(req.ID)
	if err != nil {
		return err
	}
	s.logger.Info("attendance session cancelled via IPC",
		logging.String(logging.FieldEventType, "session_cancel"),
		logging.String(logging.FieldSessionID, req.ID))
	resp.Session = snap
	return nil
}

func (s *service) Login(req LoginRequest, resp *LoginResponse) error {
	user, err := s.daemon.Authenticate(s.ctx, req.Username, req.Password)
	if err != nil {
		return err
	}
	resp.Username = user.Username
	resp.Functions = user.Functions
	return nil
}

func (s *service) DailyStats(req DailyStatsRequest, resp *DailyStatsResponse) error {
	stats, err := s.daemon.DailyStats(s.ctx, req.Date)
	if err != nil {
		return err
	}
	resp.Stats = stats
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
		Match:  req.Match,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func (s *service) RestartCamera(_ CameraRestartRequest, resp *CameraRestartResponse) error {
	if err := s.daemon.RestartCamera(); err != nil {
		return err
	}
	resp.Restarting = true
	return nil
}

func (s *service) Preflight(_ PreflightRequest, resp *PreflightResponse) error {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	resp.Results = s.daemon.Preflight(ctx)
	return nil
}
