package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"attendance/internal/attendance"
	"attendance/internal/services"
	"attendance/internal/store"
)

var (
	ada   = attendance.Employee{ID: 1, DisplayName: "Ada Lovelace", Department: "Engineering", Position: "Analyst", FaceTemplate: attendance.Template{0.1, 0.2, 0.3}}
	grace = attendance.Employee{ID: 2, DisplayName: "Grace Hopper", Department: "Operations", Position: "Admiral"}
)

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, e := range []attendance.Employee{ada, grace} {
		if err := s.AddEmployee(ctx, e); err != nil {
			t.Fatalf("AddEmployee(%d): %v", e.ID, err)
		}
	}

	t.Run("duplicate employee", func(t *testing.T) {
		err := s.AddEmployee(ctx, ada)
		if !errors.Is(err, store.ErrDuplicate) {
			t.Fatalf("expected duplicate error, got %v", err)
		}
	})

	t.Run("roster keeps templates", func(t *testing.T) {
		roster, err := s.Roster(ctx)
		if err != nil {
			t.Fatalf("Roster: %v", err)
		}
		if len(roster) != 2 || roster[0].ID != 1 || roster[1].ID != 2 {
			t.Fatalf("unexpected roster: %+v", roster)
		}
		if len(roster[0].FaceTemplate) != 3 || roster[0].FaceTemplate[2] != 0.3 {
			t.Fatalf("unexpected template: %v", roster[0].FaceTemplate)
		}
		if roster[1].HasTemplate() {
			t.Fatal("expected employee without template")
		}
	})

	day := "2024-05-02"
	checkIn := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)

	t.Run("check-in once per day", func(t *testing.T) {
		audit := &attendance.AuditEntry{EmployeeID: &ada.ID, Action: "Check-in", Timestamp: checkIn}
		ok, err := s.WriteCheckIn(ctx, ada.ID, day, checkIn, audit)
		if err != nil || !ok {
			t.Fatalf("first WriteCheckIn = %v, %v", ok, err)
		}
		ok, err = s.WriteCheckIn(ctx, ada.ID, day, checkIn.Add(time.Minute), audit)
		if err != nil || ok {
			t.Fatalf("second WriteCheckIn = %v, %v; want false, nil", ok, err)
		}
		status, err := s.ReadStatus(ctx, ada.ID, day)
		if err != nil {
			t.Fatalf("ReadStatus: %v", err)
		}
		if status.CheckIn == nil || !status.CheckIn.Equal(checkIn) || status.CheckOut != nil {
			t.Fatalf("unexpected status: %+v", status)
		}
	})

	t.Run("check-in unknown employee", func(t *testing.T) {
		_, err := s.WriteCheckIn(ctx, 99, day, checkIn, nil)
		if !errors.Is(err, services.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("check-out requires check-in", func(t *testing.T) {
		d, err := s.WriteCheckOut(ctx, grace.ID, day, checkIn.Add(time.Hour), nil)
		if err != nil || d != nil {
			t.Fatalf("WriteCheckOut without check-in = %v, %v", d, err)
		}
	})

	t.Run("check-out inside gap refused", func(t *testing.T) {
		d, err := s.WriteCheckOut(ctx, ada.ID, day, checkIn.Add(2*time.Minute), nil)
		if !errors.Is(err, store.ErrCheckoutTooEarly) || d != nil {
			t.Fatalf("expected too early, got %v, %v", d, err)
		}
		status, _ := s.ReadStatus(ctx, ada.ID, day)
		if status.CheckOut != nil {
			t.Fatal("expected no check-out after refusal")
		}
	})

	t.Run("check-out records duration", func(t *testing.T) {
		at := checkIn.Add(6 * time.Minute)
		audit := &attendance.AuditEntry{EmployeeID: &ada.ID, Action: "Check-out", Timestamp: at}
		d, err := s.WriteCheckOut(ctx, ada.ID, day, at, audit)
		if err != nil || d == nil {
			t.Fatalf("WriteCheckOut = %v, %v", d, err)
		}
		if *d != 6*time.Minute {
			t.Fatalf("expected 6m duration, got %s", *d)
		}
		again, err := s.WriteCheckOut(ctx, ada.ID, day, at.Add(time.Hour), nil)
		if err != nil || again != nil {
			t.Fatalf("second WriteCheckOut = %v, %v", again, err)
		}
	})

	t.Run("report and stats", func(t *testing.T) {
		rows, err := s.Report(ctx, attendance.ReportFilter{From: day, To: day, Department: "Engineering"})
		if err != nil {
			t.Fatalf("Report: %v", err)
		}
		if len(rows) != 1 || rows[0].DisplayName != "Ada Lovelace" || rows[0].Date != day {
			t.Fatalf("unexpected report: %+v", rows)
		}
		if rows[0].Duration == nil || *rows[0].Duration != 6*time.Minute {
			t.Fatalf("unexpected report duration: %v", rows[0].Duration)
		}
		rows, err = s.Report(ctx, attendance.ReportFilter{Department: "Operations"})
		if err != nil || len(rows) != 0 {
			t.Fatalf("expected empty report for Operations, got %v, %v", rows, err)
		}

		stats, err := s.DailyStats(ctx, day)
		if err != nil {
			t.Fatalf("DailyStats: %v", err)
		}
		if stats.Present != 1 || stats.Absent != 1 || stats.Total != 2 {
			t.Fatalf("unexpected stats: %+v", stats)
		}
		depts, err := s.Departments(ctx)
		if err != nil || len(depts) != 2 || depts[0] != "Engineering" {
			t.Fatalf("unexpected departments: %v, %v", depts, err)
		}
	})

	t.Run("users and audit", func(t *testing.T) {
		id, err := s.AddUser(ctx, "admin", attendance.HashPassword("pw"), "all")
		if err != nil || id == 0 {
			t.Fatalf("AddUser = %d, %v", id, err)
		}
		if _, err := s.AddUser(ctx, "admin", attendance.HashPassword("pw"), ""); !errors.Is(err, store.ErrDuplicate) {
			t.Fatalf("expected duplicate user, got %v", err)
		}
		user, err := s.FindUser(ctx, "admin")
		if err != nil || user.ID != id || !attendance.CheckPassword(user.PasswordHash, "pw") {
			t.Fatalf("FindUser = %+v, %v", user, err)
		}
		if _, err := s.FindUser(ctx, "ghost"); !errors.Is(err, services.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if err := s.AppendAudit(ctx, attendance.AuditEntry{UserID: &id, Action: "Exported report", Timestamp: checkIn.Add(2 * time.Hour)}); err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}

		entries, err := s.ListAudit(ctx, 0)
		if err != nil {
			t.Fatalf("ListAudit: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("expected 3 audit entries, got %+v", entries)
		}
		if entries[0].Actor != "admin" || entries[0].Action != "Exported report" {
			t.Fatalf("unexpected newest entry: %+v", entries[0])
		}
		if entries[1].Actor != "Ada Lovelace" || entries[1].Action != "Check-out" {
			t.Fatalf("unexpected second entry: %+v", entries[1])
		}
		limited, err := s.ListAudit(ctx, 1)
		if err != nil || len(limited) != 1 {
			t.Fatalf("ListAudit(1) = %v, %v", limited, err)
		}

		status, err := s.DBStatus(ctx)
		if err != nil {
			t.Fatalf("DBStatus: %v", err)
		}
		if status.Employees != 2 || status.Users != 1 || status.Attendance != 1 || status.AuditLog != 3 {
			t.Fatalf("unexpected db status: %+v", status)
		}

		cleared, err := s.ClearAudit(ctx)
		if err != nil || cleared != 3 {
			t.Fatalf("ClearAudit = %d, %v", cleared, err)
		}
	})

	t.Run("employee admin", func(t *testing.T) {
		updated := grace
		updated.Department = "Research"
		if err := s.UpdateEmployee(ctx, updated); err != nil {
			t.Fatalf("UpdateEmployee: %v", err)
		}
		if err := s.SetFaceTemplate(ctx, grace.ID, attendance.Template{1, 2}); err != nil {
			t.Fatalf("SetFaceTemplate: %v", err)
		}
		got, err := s.Employee(ctx, grace.ID)
		if err != nil {
			t.Fatalf("Employee: %v", err)
		}
		if got.Department != "Research" || len(got.FaceTemplate) != 2 {
			t.Fatalf("unexpected employee: %+v", got)
		}
		if err := s.SetFaceTemplate(ctx, 404, attendance.Template{1}); !errors.Is(err, services.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("delete all attendance", func(t *testing.T) {
		n, err := s.DeleteAllAttendance(ctx)
		if err != nil || n != 1 {
			t.Fatalf("DeleteAllAttendance = %d, %v", n, err)
		}
		removed, err := s.RemoveEmployee(ctx, grace.ID)
		if err != nil || !removed {
			t.Fatalf("RemoveEmployee = %v, %v", removed, err)
		}
		if _, err := s.Employee(ctx, grace.ID); !errors.Is(err, services.ErrNotFound) {
			t.Fatalf("expected removed employee to be gone, got %v", err)
		}
	})
}
