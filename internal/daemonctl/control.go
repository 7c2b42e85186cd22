package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"attendance/internal/config"
	"attendance/internal/ipc"
)

// DaemonBinary is the executable launched by EnsureStarted.
const DaemonBinary = "attendanced"

const dialRetryInterval = 200 * time.Millisecond

// ErrDaemonNotRunning is returned when nothing answers on the daemon socket.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions are forwarded to attendanced as flags.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

func (o LaunchOptions) args() []string {
	var args []string
	if v := strings.TrimSpace(o.ConfigPath); v != "" {
		args = append(args, "--config", v)
	}
	if v := strings.TrimSpace(o.LogLevel); v != "" {
		args = append(args, "--log-level", v)
	}
	return args
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
	StartStateRequested      StartState = "start_requested"
)

// StartResult describes what EnsureStarted had to do.
type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

// StopResult describes how the daemon went away.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// ResolveExecutable locates the daemon binary: next to cliPath first, then on
// PATH.
func ResolveExecutable(cliPath string) (string, error) {
	if dir := strings.TrimSpace(cliPath); dir != "" {
		sibling := filepath.Join(filepath.Dir(dir), DaemonBinary)
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	path, err := exec.LookPath(DaemonBinary)
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", DaemonBinary, err)
	}
	return path, nil
}

// Launch starts attendanced in its own session so it outlives the CLI.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return errors.New("launch daemon: executable path is empty")
	}
	proc := exec.Command(executablePath, opts.args()...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient dials socketPath until it answers or timeout elapses.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	lastErr := errors.New("timeout waiting for daemon")
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(dialRetryInterval)
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted makes sure an attendanced process is listening on socketPath
// and that its kiosk services run. A daemon stopped over IPC keeps its socket
// open; it is restarted in place rather than relaunched.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	var result StartResult
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if err := Launch(executablePath, opts); err != nil {
			return result, err
		}
		if client, err = WaitForClient(socketPath, waitTimeout); err != nil {
			return result, err
		}
		result.Launched = true
	}
	defer client.Close()

	if status, err := client.Status(); err == nil && status.Running {
		result.State = StartStateAlreadyRunning
		if result.Launched {
			result.State = StartStateStarted
		}
		return result, nil
	}

	resp, err := client.Start()
	if err != nil {
		return result, err
	}
	result.Message = strings.TrimSpace(resp.Message)
	switch {
	case resp.Started:
		result.State = StartStateStarted
	case strings.EqualFold(result.Message, "daemon already running"):
		result.State = StartStateAlreadyRunning
		if result.Launched {
			result.State = StartStateStarted
		}
	default:
		result.State = StartStateRequested
		if result.Message == "" {
			result.Message = "Start request sent"
		}
	}
	return result, nil
}

// StopAndTerminate halts the kiosk services over IPC, sends SIGTERM to the
// daemon and falls back to SIGKILL when the socket is still answering after
// gracePeriod.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if daemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}

	var result StopResult
	lockPath := cfg.LockPath()
	if status, err := client.Status(); err == nil {
		result.PID = status.PID
		if status.LockPath != "" {
			lockPath = status.LockPath
		}
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return result, err
	}
	result.StopAcknowledged = resp.Stopped

	if result.PID > 0 && result.PID != os.Getpid() {
		_ = syscall.Kill(result.PID, syscall.SIGTERM)
	}
	if socketGone(socketPath, gracePeriod) {
		return result, nil
	}

	pid, err := killDaemon(cfg.PIDPath(), lockPath, result.PID)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = pid
	return result, nil
}

// killDaemon SIGKILLs the pid recorded in pidPath (or fallbackPID) and removes
// the pid and lock files it leaves behind.
func killDaemon(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid, err := readPID(pidPath)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		pid = fallbackPID
	}
	switch {
	case pid <= 0:
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	case pid == os.Getpid():
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	for _, path := range []string{pidPath, lockPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return pid, fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return pid, nil
}

// readPID returns 0 when the pid file is missing or malformed.
func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid < 0 {
		return 0, nil
	}
	return pid, nil
}

func socketGone(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil && daemonUnavailable(err) {
			return true
		}
		if client != nil {
			_ = client.Close()
		}
		time.Sleep(dialRetryInterval)
	}
	return false
}

func daemonUnavailable(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
