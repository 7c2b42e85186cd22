package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"attendance/internal/attendance"
	"attendance/internal/config"
	"attendance/internal/services"
)

// ErrCheckoutTooEarly is returned when a check-out would land inside the
// minimum gap after check-in.
var ErrCheckoutTooEarly = errors.New("check-out before minimum gap after check-in")

// ErrDuplicate is returned when a unique key already exists.
var ErrDuplicate = errors.New("already exists")

// Store is the persistence contract used by the workflow, the kiosk API and the CLI.
type Store interface {
	// WriteCheckIn inserts the day's row. It returns false without writing when
	// a check-in already exists. audit, when non-nil, is written in the same
	// transaction.
	WriteCheckIn(ctx context.Context, employeeID int64, day string, at time.Time, audit *attendance.AuditEntry) (bool, error)
	// WriteCheckOut sets the check-out and duration on the day's row. It returns
	// nil without writing when there is no open check-in.
	WriteCheckOut(ctx context.Context, employeeID int64, day string, at time.Time, audit *attendance.AuditEntry) (*time.Duration, error)
	ReadStatus(ctx context.Context, employeeID int64, day string) (attendance.Status, error)

	Roster(ctx context.Context) ([]attendance.Employee, error)
	Employee(ctx context.Context, id int64) (*attendance.Employee, error)
	AddEmployee(ctx context.Context, employee attendance.Employee) error
	UpdateEmployee(ctx context.Context, employee attendance.Employee) error
	SetFaceTemplate(ctx context.Context, id int64, template attendance.Template) error
	RemoveEmployee(ctx context.Context, id int64) (bool, error)
	Departments(ctx context.Context) ([]string, error)

	AddUser(ctx context.Context, username, passwordHash, functions string) (int64, error)
	FindUser(ctx context.Context, username string) (*attendance.User, error)
	ListUsers(ctx context.Context) ([]attendance.User, error)
	RemoveUser(ctx context.Context, username string) (bool, error)

	AppendAudit(ctx context.Context, entry attendance.AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]attendance.AuditView, error)
	ClearAudit(ctx context.Context) (int64, error)

	Report(ctx context.Context, filter attendance.ReportFilter) ([]attendance.ReportRow, error)
	DailyStats(ctx context.Context, day string) (attendance.DailyStats, error)
	DBStatus(ctx context.Context) (attendance.DBStatus, error)
	DeleteAllAttendance(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the backend selected by cfg.Database.Driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "store", "open", "config is required", nil)
	}
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN(), cfg.MinCheckoutGap())
	case config.DriverSQLite, "":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		return OpenSQLite(ctx, cfg.Database.Path, cfg.MinCheckoutGap())
	default:
		return nil, services.Wrap(services.ErrConfiguration, "store", "open",
			fmt.Sprintf("unsupported driver %q", cfg.Database.Driver), nil)
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func notFound(entity string, key any) error {
	return services.Wrap(services.ErrNotFound, "store", entity, fmt.Sprintf("%v not found", key), nil)
}

func duplicate(entity string, key any) error {
	return services.Wrap(services.ErrValidation, "store", entity, fmt.Sprintf("%v", key), ErrDuplicate)
}

func tooEarly(checkIn, at time.Time, gap time.Duration) error {
	return services.Wrap(services.ErrValidation, "store", "check-out",
		fmt.Sprintf("check-out %s is within %s of check-in", at.Sub(checkIn).Round(time.Second), gap),
		ErrCheckoutTooEarly)
}

func validateEmployee(employee attendance.Employee) error {
	if employee.ID <= 0 {
		return services.Wrap(services.ErrValidation, "store", "employee", "id must be positive", nil)
	}
	if employee.DisplayName == "" {
		return services.Wrap(services.ErrValidation, "store", "employee", "display name is required", nil)
	}
	return nil
}

func workedDuration(checkIn, checkOut time.Time) time.Duration {
	return checkOut.Sub(checkIn).Truncate(time.Second)
}

func invalidUser(username string) error {
	if username == "" {
		return services.Wrap(services.ErrValidation, "store", "user", "username is required", nil)
	}
	return services.Wrap(services.ErrValidation, "store", "user", "password is required", nil)
}
