package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"attendance/internal/daemon"
	"attendance/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket. Each
// accepted connection is served on its own goroutine.
type Server struct {
	path     string
	listener net.Listener
	rpc      *rpc.Server
	logger   *slog.Logger

	closing chan struct{}
	once    sync.Once
	conns   sync.WaitGroup
}

// NewServer binds the socket at path, replacing any stale socket file left by
// a previous daemon. ctx bounds the work the handlers start on the daemon.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	handlers := rpc.NewServer()
	if err := handlers.RegisterName(serviceName, &service{daemon: d, logger: logger, ctx: ctx}); err != nil {
		return nil, fmt.Errorf("register rpc service: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	return &Server{
		path:     path,
		listener: ln,
		rpc:      handlers,
		logger:   logger,
		closing:  make(chan struct{}),
	}, nil
}

// Serve accepts connections in the background until Close.
func (s *Server) Serve() {
	s.logger.Debug("ipc server listening", logging.String("socket", s.path))
	s.conns.Add(1)
	go s.acceptLoop()
}

func (s *Server) acceptLoop() {
	defer s.conns.Done()
	for {
		conn, err := s.listener.Accept()
		switch {
		case err == nil:
			s.conns.Add(1)
			go func() {
				defer s.conns.Done()
				s.rpc.ServeCodec(jsonrpc.NewServerCodec(conn))
			}()
		case s.closed() || errors.Is(err, net.ErrClosed):
			return
		default:
			logging.WarnWithContext(s.logger, "ipc accept failed", "ipc_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "CLI commands cannot reach the daemon"),
				logging.String(logging.FieldErrorHint, "check permissions on "+s.path))
		}
	}
}

func (s *Server) closed() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// Close stops accepting, waits for open connections to drain and removes the
// socket file. Safe to call more than once.
func (s *Server) Close() {
	s.once.Do(func() {
		close(s.closing)
		_ = s.listener.Close()
		s.conns.Wait()
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(s.logger, "ipc socket cleanup failed", "ipc_socket_cleanup_failed",
				logging.String("socket", s.path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "delete the socket before the next daemon start"))
		}
	})
}
