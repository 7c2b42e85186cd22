package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"attendance/internal/config"
	"attendance/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventCheckIn, notifications.Payload{"name": "Ada"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "check-in",
			event:         notifications.EventCheckIn,
			payload:       notifications.Payload{"name": "Ada Lovelace", "time": "08:02"},
			expectTitle:   "Attendance - Check-in",
			expectMessage: "Ada Lovelace checked in at 08:02",
			expectTags:    "attendance,check-in",
		},
		{
			name:          "check-out",
			event:         notifications.EventCheckOut,
			payload:       notifications.Payload{"name": "Ada Lovelace", "time": "17:00", "duration": "8:58"},
			expectTitle:   "Attendance - Check-out",
			expectMessage: "Ada Lovelace checked out at 17:00 (worked 8:58)",
			expectTags:    "attendance,check-out",
		},
		{
			name:           "device offline",
			event:          notifications.EventDeviceOffline,
			payload:        notifications.Payload{"device": "fingerprint terminal", "address": "192.168.1.201:4370"},
			expectTitle:    "Attendance - Device Offline",
			expectMessage:  "fingerprint terminal is unreachable at 192.168.1.201:4370",
			expectTags:     "attendance,device,offline",
			expectPriority: "high",
		},
		{
			name:           "error",
			event:          notifications.EventError,
			payload:        notifications.Payload{"context": "check-out", "error": errors.New("database is locked")},
			expectTitle:    "Attendance - Error",
			expectMessage:  "Error with check-out: database is locked",
			expectTags:     "attendance,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, _ := io.ReadAll(r.Body)
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonoursToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for disabled event: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.CheckIn = false
	cfg.Notifications.Device = false

	svc := notifications.NewService(&cfg)
	for _, event := range []notifications.Event{notifications.EventCheckIn, notifications.EventDeviceOnline, "unknown"} {
		if err := svc.Publish(context.Background(), event, nil); err != nil {
			t.Fatalf("expected no error for disabled event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	if err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
