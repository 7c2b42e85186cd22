package testsupport

import (
	"context"
	"testing"

	"attendance/internal/attendance"
	"attendance/internal/config"
	"attendance/internal/store"
)

// MustOpenStore opens the SQLite store for cfg and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.SQLite {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	s, err := store.OpenSQLite(context.Background(), cfg.Database.Path, cfg.MinCheckoutGap())
	if err != nil {
		t.Fatalf("store.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

// SeedEmployees inserts employees and fails the test on error.
func SeedEmployees(t testing.TB, s store.Store, employees ...attendance.Employee) {
	t.Helper()

	for _, e := range employees {
		if err := s.AddEmployee(context.Background(), e); err != nil {
			t.Fatalf("seed employee %d: %v", e.ID, err)
		}
	}
}
