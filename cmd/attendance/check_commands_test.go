package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"attendance/internal/attendance"
	"attendance/internal/workflow"
)

func TestCheckInConfirmsAndRecords(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLIWithInput(t, []string{"check-in"}, env.socketPath, env.configPath, "y\n")
	if err != nil {
		t.Fatalf("check-in: %v\n%s", err, out)
	}
	requireContains(t, out, "is this Grace Hopper (Navy)?")
	requireContains(t, out, "Check-in recorded for Grace Hopper")

	day := attendance.Day(time.Now(), env.cfg.Location())
	status, err := env.store.ReadStatus(context.Background(), grace.ID, day)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if status.CheckIn == nil {
		t.Fatal("expected check-in to be stored")
	}
}

func TestCheckInManualSelectionJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	// Rejected matches count as failed face attempts; the picker is offered
	// once the limit is reached.
	for i := 0; i < env.cfg.Face.MaxAttempts; i++ {
		out, _, err := runCLIWithInput(t, []string{"check-in"}, env.socketPath, env.configPath, "n\n")
		if err != nil {
			t.Fatalf("check-in %d: %v", i, err)
		}
		if strings.Contains(out, "[y/n/m]") {
			t.Fatalf("bypass offered too early on attempt %d", i)
		}
	}

	out, _, err := runCLIWithInput(t, []string{"check-in", "--json"}, env.socketPath, env.configPath, "m\n99\n7\n")
	if err != nil {
		t.Fatalf("check-in: %v\n%s", err, out)
	}
	requireContains(t, out, "[y/n/m]")
	requireContains(t, out, `Unknown employee "99"`)

	start := strings.Index(out, "{")
	if start < 0 {
		t.Fatalf("no JSON result in %q", out)
	}
	var result workflow.Result
	if err := json.Unmarshal([]byte(out[start:]), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Outcome != workflow.OutcomeRecorded {
		t.Fatalf("outcome = %q, want recorded", result.Outcome)
	}
	if result.Employee == nil || result.Employee.ID != grace.ID {
		t.Fatalf("unexpected employee %+v", result.Employee)
	}
}

func TestCheckOutWithoutCheckInIsRejected(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLIWithInput(t, []string{"check-out"}, env.socketPath, env.configPath, "y\n")
	if err != nil {
		t.Fatalf("check-out: %v", err)
	}
	requireContains(t, out, "[WARN]")
}

func TestCheckInClosedInputCancels(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLIWithInput(t, []string{"check-in"}, env.socketPath, env.configPath, "")
	if err == nil {
		t.Fatal("expected error when stdin closes before the prompt is answered")
	}
	day := attendance.Day(time.Now(), env.cfg.Location())
	status, statusErr := env.store.ReadStatus(context.Background(), grace.ID, day)
	if statusErr != nil {
		t.Fatalf("ReadStatus: %v", statusErr)
	}
	if status.CheckIn != nil {
		t.Fatal("cancelled session must not record attendance")
	}
}

func TestCheckInAsOperator(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := env.store.AddUser(context.Background(), "frontdesk", attendance.HashPassword("secret"), ""); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	if _, _, err := runCLIWithInput(t, []string{"check-in", "--user", "frontdesk"}, env.socketPath, env.configPath, "wrong\n"); err == nil {
		t.Fatal("expected login failure with a bad password")
	}

	out, _, err := runCLIWithInput(t, []string{"check-in", "--user", "frontdesk", "--password", "secret"}, env.socketPath, env.configPath, "y\n")
	if err != nil {
		t.Fatalf("check-in: %v\n%s", err, out)
	}
	entries, err := env.store.ListAudit(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(entries) != 1 || entries[0].Actor != "frontdesk" {
		t.Fatalf("unexpected audit entries %+v", entries)
	}
}
