package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"attendance/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "fingerprint", "dial", "connect failed", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"fingerprint", "dial", "connect failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestErrorCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrBusy, "workflow", "run", "in progress", nil), "busy"},
		{services.Wrap(services.ErrNotFound, "store", "employee", "", nil), "not_found"},
		{fmt.Errorf("outer: %w", services.Wrap(services.ErrTimeout, "face", "encode", "", nil)), "timeout"},
		{errors.New("plain"), "internal"},
	}
	for _, tt := range tests {
		if got := services.ErrorCode(tt.err); got != tt.want {
			t.Fatalf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := services.SessionIDFromContext(ctx); ok {
		t.Fatal("expected no session id on empty context")
	}
	ctx = services.WithSessionID(ctx, "abc")
	ctx = services.WithEmployeeID(ctx, 7)
	ctx = services.WithDirection(ctx, "check_in")
	ctx = services.WithRequestID(ctx, "")

	if id, ok := services.SessionIDFromContext(ctx); !ok || id != "abc" {
		t.Fatalf("unexpected session id %q (ok=%v)", id, ok)
	}
	if id, ok := services.EmployeeIDFromContext(ctx); !ok || id != 7 {
		t.Fatalf("unexpected employee id %d (ok=%v)", id, ok)
	}
	if dir, ok := services.DirectionFromContext(ctx); !ok || dir != "check_in" {
		t.Fatalf("unexpected direction %q (ok=%v)", dir, ok)
	}
	if _, ok := services.RequestIDFromContext(ctx); ok {
		t.Fatal("expected empty request id to be ignored")
	}
}
