package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"attendance/internal/services"
)

// Event is one scan reported by the terminal.
type Event struct {
	UserID    string    `json:"user_id"`
	Status    uint8     `json:"status"`
	Punch     uint8     `json:"punch"`
	Timestamp time.Time `json:"timestamp"`
}

// Dialer opens terminal sessions.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Session, error)
}

// Session is a connected terminal.
type Session interface {
	// LiveEvents enables live capture and streams scan events until ctx is
	// done or the connection fails. Both channels are closed when the stream
	// ends; at most one error is delivered.
	LiveEvents(ctx context.Context) (<-chan Event, <-chan error)
	Close() error
}

// TCPDialer connects to terminals speaking the TCP protocol on port 4370.
type TCPDialer struct {
	Timeout time.Duration
	CommKey uint32
}

// Dial connects and completes the CMD_CONNECT (and, when the device requires
// it, CMD_AUTH) handshake.
func (d TCPDialer) Dial(ctx context.Context, addr string) (Session, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, "fingerprint", "dial", addr, err)
	}
	s := &tcpSession{conn: conn, timeout: timeout, replyID: ushrtMax - 1}
	if err := s.handshake(d.CommKey); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

type tcpSession struct {
	conn    net.Conn
	timeout time.Duration

	mu        sync.Mutex
	sessionID uint16
	replyID   uint16
	closed    bool
}

func (s *tcpSession) handshake(key uint32) error {
	reply, err := s.command(cmdConnect, nil)
	if err != nil {
		return services.Wrap(services.ErrUnavailable, "fingerprint", "connect", "handshake failed", err)
	}
	s.sessionID = reply.sessionID
	switch reply.command {
	case cmdAckOK:
		return nil
	case cmdAckUnauth:
		auth, err := s.command(cmdAuth, commKey(key, s.sessionID, 50))
		if err != nil {
			return services.Wrap(services.ErrUnavailable, "fingerprint", "auth", "auth failed", err)
		}
		if auth.command != cmdAckOK {
			return services.Wrap(services.ErrConfiguration, "fingerprint", "auth", "terminal rejected comm key", nil)
		}
		return nil
	default:
		return services.Wrap(services.ErrExternalTool, "fingerprint", "connect", fmt.Sprintf("unexpected reply %d", reply.command), nil)
	}
}

// command sends a request and waits for its reply.
func (s *tcpSession) command(command uint16, data []byte) (packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return packet{}, net.ErrClosed
	}
	s.replyID = uint16((int(s.replyID) + 1) % ushrtMax)
	if err := s.conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		return packet{}, err
	}
	if _, err := s.conn.Write(encodePacket(command, s.sessionID, s.replyID, data)); err != nil {
		return packet{}, err
	}
	reply, err := readPacket(s.conn)
	if err != nil {
		return packet{}, err
	}
	_ = s.conn.SetDeadline(time.Time{})
	return reply, nil
}

func (s *tcpSession) ackOK() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return net.ErrClosed
	}
	_, err := s.conn.Write(encodePacket(cmdAckOK, s.sessionID, ushrtMax-1, nil))
	return err
}

func (s *tcpSession) expectOK(command uint16, data []byte, op string) error {
	reply, err := s.command(command, data)
	if err != nil {
		return services.Wrap(services.ErrUnavailable, "fingerprint", op, "no reply", err)
	}
	if reply.command != cmdAckOK {
		return services.Wrap(services.ErrExternalTool, "fingerprint", op, fmt.Sprintf("terminal replied %d", reply.command), nil)
	}
	return nil
}

func (s *tcpSession) LiveEvents(ctx context.Context) (<-chan Event, <-chan error) {
	events := make(chan Event)
	errs := make(chan error, 1)

	if err := s.expectOK(cmdEnableDevice, nil, "enable"); err != nil {
		errs <- err
		close(events)
		close(errs)
		return events, errs
	}
	flags := make([]byte, 4)
	flags[0] = byte(eventFlagAttLog)
	if err := s.expectOK(cmdRegEvent, flags, "register events"); err != nil {
		errs <- err
		close(events)
		close(errs)
		return events, errs
	}

	// Unblock the reader when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})

	go func() {
		defer close(errs)
		defer close(events)
		defer stop()
		for {
			pkt, err := readPacket(s.conn)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					err = fmt.Errorf("connection closed by terminal: %w", err)
				}
				errs <- services.Wrap(services.ErrUnavailable, "fingerprint", "live capture", "read failed", err)
				return
			}
			if pkt.command != cmdRegEvent {
				continue
			}
			if err := s.ackOK(); err != nil && ctx.Err() == nil {
				errs <- services.Wrap(services.ErrUnavailable, "fingerprint", "live capture", "ack failed", err)
				return
			}
			decoded, err := decodeAttendance(pkt.data)
			if err != nil {
				continue
			}
			for _, ev := range decoded {
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, errs
}

// Close unregisters live events, sends CMD_EXIT and closes the socket. Errors
// from the goodbye exchange are ignored.
func (s *tcpSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	_ = conn.SetDeadline(time.Now().Add(500 * time.Millisecond))
	_, _ = conn.Write(encodePacket(cmdRegEvent, s.sessionID, ushrtMax-1, make([]byte, 4)))
	_, _ = conn.Write(encodePacket(cmdExit, s.sessionID, ushrtMax-1, nil))
	s.closed = true
	s.mu.Unlock()
	return conn.Close()
}

// Probe connects to addr and disconnects again.
func Probe(ctx context.Context, dialer Dialer, addr string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	session, err := dialer.Dial(ctx, addr)
	if err != nil {
		return err
	}
	return session.Close()
}
