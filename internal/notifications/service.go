package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"attendance/internal/config"
)

const userAgent = "Attendance-Kiosk/0.1.0"

// Event names a notification milestone.
type Event string

const (
	EventCheckIn       Event = "check_in"
	EventCheckOut      Event = "check_out"
	EventDeviceOffline Event = "device_offline"
	EventDeviceOnline  Event = "device_online"
	EventError         Event = "error"
	EventTest          Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service publishes kiosk events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		cfg:      cfg.Notifications,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	cfg      config.Notifications
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventCheckIn:
		return n.cfg.CheckIn
	case EventCheckOut:
		return n.cfg.CheckOut
	case EventDeviceOffline, EventDeviceOnline:
		return n.cfg.Device
	case EventError:
		return n.cfg.Errors
	case EventTest:
		return true
	default:
		return false
	}
}

func format(event Event, payload Payload) (message, bool) {
	name := payloadString(payload, "name")
	switch event {
	case EventCheckIn:
		return message{
			title: "Attendance - Check-in",
			body:  fmt.Sprintf("%s checked in at %s", name, payloadString(payload, "time")),
			tags:  []string{"attendance", "check-in"},
		}, true
	case EventCheckOut:
		body := fmt.Sprintf("%s checked out at %s", name, payloadString(payload, "time"))
		if worked := payloadString(payload, "duration"); worked != "" {
			body += fmt.Sprintf(" (worked %s)", worked)
		}
		return message{
			title: "Attendance - Check-out",
			body:  body,
			tags:  []string{"attendance", "check-out"},
		}, true
	case EventDeviceOffline:
		return message{
			title:    "Attendance - Device Offline",
			body:     fmt.Sprintf("%s is unreachable at %s", payloadString(payload, "device"), payloadString(payload, "address")),
			tags:     []string{"attendance", "device", "offline"},
			priority: "high",
		}, true
	case EventDeviceOnline:
		return message{
			title: "Attendance - Device Online",
			body:  fmt.Sprintf("%s is reachable again at %s", payloadString(payload, "device"), payloadString(payload, "address")),
			tags:  []string{"attendance", "device", "online"},
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("Error")
		if label := payloadString(payload, "context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if errText := payloadString(payload, "error"); errText != "" {
			builder.WriteString(errText)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Attendance - Error",
			body:     builder.String(),
			tags:     []string{"attendance", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Attendance - Test",
			body:     "Notification system test",
			tags:     []string{"attendance", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
