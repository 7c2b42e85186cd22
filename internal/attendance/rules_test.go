package attendance_test

import (
	"testing"
	"time"

	"attendance/internal/attendance"
)

func TestGuardCheckIn(t *testing.T) {
	if r := attendance.GuardCheckIn(attendance.Status{}, time.UTC); r != nil {
		t.Fatalf("expected first check-in allowed, got %v", r)
	}
	at := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	r := attendance.GuardCheckIn(attendance.Status{CheckIn: &at}, time.UTC)
	if r == nil || r.Reason != attendance.ReasonAlreadyCheckedIn {
		t.Fatalf("expected already checked in rejection, got %v", r)
	}
}

func TestGuardCheckOut(t *testing.T) {
	in := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	out := in.Add(time.Hour)
	gap := attendance.DefaultMinCheckoutGap

	tests := []struct {
		name   string
		status attendance.Status
		now    time.Time
		want   attendance.RejectionReason
	}{
		{"no check-in", attendance.Status{}, in.Add(time.Hour), attendance.ReasonNoCheckIn},
		{"two minutes", attendance.Status{CheckIn: &in}, in.Add(2 * time.Minute), attendance.ReasonTooEarly},
		{"just under gap", attendance.Status{CheckIn: &in}, in.Add(gap - time.Second), attendance.ReasonTooEarly},
		{"at gap", attendance.Status{CheckIn: &in}, in.Add(gap), ""},
		{"six minutes", attendance.Status{CheckIn: &in}, in.Add(6 * time.Minute), ""},
		{"already out", attendance.Status{CheckIn: &in, CheckOut: &out}, in.Add(2 * time.Hour), attendance.ReasonAlreadyCheckedOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := attendance.GuardCheckOut(tt.status, tt.now, gap, time.UTC)
			if tt.want == "" {
				if r != nil {
					t.Fatalf("expected check-out allowed, got %v", r)
				}
				return
			}
			if r == nil || r.Reason != tt.want {
				t.Fatalf("expected %s, got %v", tt.want, r)
			}
		})
	}
}

func TestTooEarlyMessageNamesGap(t *testing.T) {
	in := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	r := attendance.GuardCheckOut(attendance.Status{CheckIn: &in}, in.Add(time.Minute), 5*time.Minute, time.UTC)
	if r == nil || r.Error() != "must wait 5 minutes after check-in before checking out" {
		t.Fatalf("unexpected rejection: %v", r)
	}
}

func TestRejectionTimesUseLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	in := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	out := in.Add(9 * time.Hour)

	if r := attendance.GuardCheckIn(attendance.Status{CheckIn: &in}, loc); r == nil || r.Message != "already checked in today at 11:00" {
		t.Fatalf("unexpected check-in rejection: %v", r)
	}
	r := attendance.Guard(attendance.CheckOut, attendance.Status{CheckIn: &in, CheckOut: &out}, out.Add(time.Hour), 5*time.Minute, loc)
	if r == nil || r.Message != "already checked out today at 20:00" {
		t.Fatalf("unexpected check-out rejection: %v", r)
	}
}

func TestDayUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	at := time.Date(2024, 5, 2, 22, 30, 0, 0, time.UTC)
	if got := attendance.Day(at, loc); got != "2024-05-03" {
		t.Fatalf("expected local day rollover, got %s", got)
	}
	if !attendance.ValidDay("2024-05-03") || attendance.ValidDay("03/05/2024") {
		t.Fatal("ValidDay mismatch")
	}
}

func TestParseDirection(t *testing.T) {
	for input, want := range map[string]attendance.Direction{
		"check-in":  attendance.CheckIn,
		"CHECK_OUT": attendance.CheckOut,
		"in":        attendance.CheckIn,
	} {
		got, ok := attendance.ParseDirection(input)
		if !ok || got != want {
			t.Fatalf("ParseDirection(%q) = %q, %v", input, got, ok)
		}
	}
	if _, ok := attendance.ParseDirection("lunch"); ok {
		t.Fatal("expected unknown direction to fail")
	}
}

func TestFormatDuration(t *testing.T) {
	if got := attendance.FormatDuration(6*time.Minute + 30*time.Second); got != "0:06" {
		t.Fatalf("unexpected format %q", got)
	}
	if got := attendance.FormatDuration(9*time.Hour + 5*time.Minute); got != "9:05" {
		t.Fatalf("unexpected format %q", got)
	}
}
