package camera

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"attendance/internal/logging"
)

// HotplugMonitor watches udev for the configured video4linux device being
// added or removed and calls onChange with the action.
type HotplugMonitor struct {
	logger   *slog.Logger
	device   string
	onChange func(action string)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewHotplugMonitor returns nil when device is empty.
func NewHotplugMonitor(device string, logger *slog.Logger, onChange func(action string)) *HotplugMonitor {
	device = strings.TrimSpace(device)
	if device == "" {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HotplugMonitor{
		logger:   logging.NewComponentLogger(logger, "camera-hotplug"),
		device:   device,
		onChange: onChange,
	}
}

// Start connects to the kernel uevent socket. Failure to connect is logged and
// leaves the monitor stopped; the preview keeps running without hotplug
// restarts.
func (m *HotplugMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket", "camera_hotplug_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open netlink sockets"),
			logging.String(logging.FieldImpact, "camera reconnects require a manual restart"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true
	go m.loop(ctx, conn, m.quit)

	m.logger.Info("camera hotplug monitor started",
		logging.String(logging.FieldEventType, "camera_hotplug_started"),
		logging.String("device", m.device),
	)
	return nil
}

// Stop shuts the monitor down.
func (m *HotplugMonitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false
}

// Running reports whether the monitor is connected.
func (m *HotplugMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *HotplugMonitor) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, hotplugMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handle(uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "camera_hotplug_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "camera hotplug events may be missed"),
			)
		}
	}
}

func hotplugMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
		},
	})
	return rules
}

func (m *HotplugMonitor) handle(uevent netlink.UEvent) {
	devname := deviceName(uevent.Env)
	if devname == "" || devname != m.device {
		return
	}
	action := string(uevent.Action)
	m.logger.Info("camera device changed",
		logging.String(logging.FieldEventType, "camera_hotplug"),
		logging.String("device", devname),
		logging.String("action", action),
	)
	if m.onChange != nil {
		m.onChange(action)
	}
}

func deviceName(env map[string]string) string {
	if devname := env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			return "/dev/" + devname
		}
		return devname
	}
	devpath := env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	return "/dev/" + filepath.Base(devpath)
}
