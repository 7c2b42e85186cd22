package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

const serviceName = "Attendance"

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(serviceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to start its kiosk services.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartResponse](c, "Start", StartRequest{})
}

// Stop requests the daemon to stop its kiosk services.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// StartSession begins a check-in or check-out.
func (c *Client) StartSession(direction, actingUser string) (*SessionResponse, error) {
	return call[SessionResponse](c, "StartSession", SessionStartRequest{Direction: direction, ActingUser: actingUser})
}

// Session returns session state, optionally waiting for the next prompt.
func (c *Client) Session(req SessionRequest) (*SessionResponse, error) {
	return call[SessionResponse](c, "Session", req)
}

// Confirm answers a confirmation prompt.
func (c *Client) Confirm(req ConfirmRequest) (*SessionResponse, error) {
	return call[SessionResponse](c, "Confirm", req)
}

// Select answers a manual selection prompt.
func (c *Client) Select(id string, employeeID *int64) (*SessionResponse, error) {
	return call[SessionResponse](c, "Select", SelectRequest{ID: id, EmployeeID: employeeID})
}

// Cancel aborts a session.
func (c *Client) Cancel(id string) (*SessionResponse, error) {
	return call[SessionResponse](c, "Cancel", CancelRequest{ID: id})
}

// Login verifies operator credentials.
func (c *Client) Login(username, password string) (*LoginResponse, error) {
	return call[LoginResponse](c, "Login", LoginRequest{Username: username, Password: password})
}

// DailyStats returns present/absent counts for date (empty for today).
func (c *Client) DailyStats(date string) (*DailyStatsResponse, error) {
	return call[DailyStatsResponse](c, "DailyStats", DailyStatsRequest{Date: date})
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}

// RestartCamera reopens the camera source.
func (c *Client) RestartCamera() (*CameraRestartResponse, error) {
	return call[CameraRestartResponse](c, "RestartCamera", CameraRestartRequest{})
}

// Preflight runs the environment checks inside the daemon.
func (c *Client) Preflight() (*PreflightResponse, error) {
	return call[PreflightResponse](c, "Preflight", PreflightRequest{})
}
