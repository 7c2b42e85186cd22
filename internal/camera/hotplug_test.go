package camera

import (
	"context"
	"testing"

	"github.com/pilebones/go-udev/netlink"
)

func TestNewHotplugMonitor(t *testing.T) {
	if m := NewHotplugMonitor("  ", nil, nil); m != nil {
		t.Fatal("expected nil monitor for empty device")
	}
	m := NewHotplugMonitor("/dev/video0", nil, nil)
	if m == nil {
		t.Fatal("expected monitor")
	}
	if m.Running() {
		t.Fatal("unstarted monitor should not report running")
	}
	m.Stop()
}

func TestHotplugMonitorNilSafety(t *testing.T) {
	var m *HotplugMonitor
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start on nil monitor: %v", err)
	}
	m.Stop()
	if m.Running() {
		t.Fatal("nil monitor should not report running")
	}
}

func TestHotplugMonitorHandle(t *testing.T) {
	var actions []string
	m := NewHotplugMonitor("/dev/video0", nil, func(action string) {
		actions = append(actions, action)
	})

	m.handle(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"DEVNAME": "video0"}})
	m.handle(netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"DEVPATH": "/devices/pci0000:00/usb1/video4linux/video0"}})
	m.handle(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"DEVNAME": "/dev/video2"}})
	m.handle(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{}})

	if len(actions) != 2 || actions[0] != "add" || actions[1] != "remove" {
		t.Fatalf("unexpected actions %v", actions)
	}
}

func TestHotplugMatcher(t *testing.T) {
	matcher := hotplugMatcher()
	tests := []struct {
		name  string
		event netlink.UEvent
		want  bool
	}{
		{"video add", netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "video4linux"}}, true},
		{"video remove", netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"SUBSYSTEM": "video4linux"}}, true},
		{"video change", netlink.UEvent{Action: netlink.CHANGE, Env: map[string]string{"SUBSYSTEM": "video4linux"}}, false},
		{"block add", netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "block"}}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := matcher.Evaluate(tc.event); got != tc.want {
				t.Fatalf("Evaluate = %v, want %v", got, tc.want)
			}
		})
	}
}
