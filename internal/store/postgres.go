package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"attendance/internal/attendance"
	"attendance/internal/services"
)

//go:embed schema_postgres.sql
var postgresSchema string

const pgUniqueViolation = "23505"

// Postgres is the PostgreSQL attendance store backed by a pgx pool.
type Postgres struct {
	pool   *pgxpool.Pool
	minGap time.Duration
}

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string, minGap time.Duration) (*Postgres, error) {
	ctx = ensureContext(ctx)
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "store", "postgres", "parse connection string", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, services.Wrap(services.ErrUnavailable, "store", "postgres", "ping", err)
	}
	return NewPostgres(ctx, pool, minGap)
}

// NewPostgres wraps an existing pool and ensures the schema exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, minGap time.Duration) (*Postgres, error) {
	if _, err := pool.Exec(ensureContext(ctx), postgresSchema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Postgres{pool: pool, minGap: minGap}, nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// Ping verifies the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ensureContext(ctx))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func parseDay(day string) (time.Time, error) {
	t, err := time.Parse(attendance.DayLayout, day)
	if err != nil {
		return time.Time{}, services.Wrap(services.ErrValidation, "store", "date", fmt.Sprintf("invalid day %q", day), err)
	}
	return t, nil
}

func secondsToDuration(seconds *int64) *time.Duration {
	if seconds == nil {
		return nil
	}
	d := time.Duration(*seconds) * time.Second
	return &d
}

func optionalString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func optionalText(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func (p *Postgres) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ensureContext(ctx), p.pool, fn)
}

// WriteCheckIn inserts the day's attendance row.
func (p *Postgres) WriteCheckIn(ctx context.Context, employeeID int64, day string, at time.Time, audit *attendance.AuditEntry) (bool, error) {
	ctx = ensureContext(ctx)
	date, err := parseDay(day)
	if err != nil {
		return false, err
	}
	var written bool
	err = p.withTx(ctx, func(tx pgx.Tx) error {
		var one int
		if err := tx.QueryRow(ctx, "SELECT 1 FROM employees WHERE id = $1", employeeID).Scan(&one); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFound("employee", employeeID)
			}
			return fmt.Errorf("lookup employee: %w", err)
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO attendance (employee_id, date, check_in) VALUES ($1, $2, $3)
			 ON CONFLICT (employee_id, date) DO NOTHING`,
			employeeID, date, at.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert check-in: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if audit != nil {
			if err := pgInsertAudit(ctx, tx, *audit); err != nil {
				return err
			}
		}
		written = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return written, nil
}

// WriteCheckOut closes the day's attendance row.
func (p *Postgres) WriteCheckOut(ctx context.Context, employeeID int64, day string, at time.Time, audit *attendance.AuditEntry) (*time.Duration, error) {
	ctx = ensureContext(ctx)
	date, err := parseDay(day)
	if err != nil {
		return nil, err
	}
	var result *time.Duration
	err = p.withTx(ctx, func(tx pgx.Tx) error {
		var checkIn, checkOut *time.Time
		err := tx.QueryRow(ctx,
			"SELECT check_in, check_out FROM attendance WHERE employee_id = $1 AND date = $2 FOR UPDATE",
			employeeID, date,
		).Scan(&checkIn, &checkOut)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read attendance row: %w", err)
		}
		if checkIn == nil || checkOut != nil {
			return nil
		}
		if at.Before(checkIn.Add(p.minGap)) {
			return tooEarly(*checkIn, at, p.minGap)
		}
		duration := workedDuration(*checkIn, at)
		if _, err := tx.Exec(ctx,
			`UPDATE attendance SET check_out = $1, duration_seconds = $2 WHERE employee_id = $3 AND date = $4`,
			at.UTC(), int64(duration/time.Second), employeeID, date,
		); err != nil {
			return fmt.Errorf("update check-out: %w", err)
		}
		if audit != nil {
			if err := pgInsertAudit(ctx, tx, *audit); err != nil {
				return err
			}
		}
		result = &duration
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReadStatus returns the day's check-in and check-out times.
func (p *Postgres) ReadStatus(ctx context.Context, employeeID int64, day string) (attendance.Status, error) {
	date, err := parseDay(day)
	if err != nil {
		return attendance.Status{}, err
	}
	var status attendance.Status
	err = p.pool.QueryRow(ensureContext(ctx),
		"SELECT check_in, check_out FROM attendance WHERE employee_id = $1 AND date = $2",
		employeeID, date,
	).Scan(&status.CheckIn, &status.CheckOut)
	if errors.Is(err, pgx.ErrNoRows) {
		return attendance.Status{}, nil
	}
	if err != nil {
		return attendance.Status{}, fmt.Errorf("read status: %w", err)
	}
	return status, nil
}

func pgInsertAudit(ctx context.Context, tx pgx.Tx, entry attendance.AuditEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO audit_log (user_id, employee_id, action, timestamp) VALUES ($1, $2, $3, $4)",
		entry.UserID, entry.EmployeeID, entry.Action, ts.UTC(),
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Report lists attendance rows joined with employee details, newest first.
func (p *Postgres) Report(ctx context.Context, filter attendance.ReportFilter) ([]attendance.ReportRow, error) {
	for _, day := range []string{filter.From, filter.To} {
		if day != "" {
			if _, err := parseDay(day); err != nil {
				return nil, err
			}
		}
	}
	query, args := buildReportQuery(filter,
		func(n int) string { return "$" + strconv.Itoa(n) },
		func(day string) any { t, _ := time.Parse(attendance.DayLayout, day); return t },
	)
	rows, err := p.pool.Query(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	defer rows.Close()

	var out []attendance.ReportRow
	for rows.Next() {
		var (
			row                  attendance.ReportRow
			department, position *string
			date                 time.Time
			seconds              *int64
		)
		if err := rows.Scan(&row.EmployeeID, &row.DisplayName, &department, &position,
			&date, &row.CheckIn, &row.CheckOut, &seconds); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		row.Department = optionalString(department)
		row.Position = optionalString(position)
		row.Date = date.Format(attendance.DayLayout)
		row.Duration = secondsToDuration(seconds)
		out = append(out, row)
	}
	return out, rows.Err()
}

// DailyStats counts present and absent employees for day.
func (p *Postgres) DailyStats(ctx context.Context, day string) (attendance.DailyStats, error) {
	stats := attendance.DailyStats{Date: day}
	date, err := parseDay(day)
	if err != nil {
		return stats, err
	}
	ctx = ensureContext(ctx)
	err = p.pool.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM attendance WHERE date = $1 AND check_in IS NOT NULL),
		(SELECT COUNT(*) FROM employees WHERE id NOT IN (SELECT employee_id FROM attendance WHERE date = $1)),
		(SELECT COUNT(*) FROM employees)`, date,
	).Scan(&stats.Present, &stats.Absent, &stats.Total)
	if err != nil {
		return stats, fmt.Errorf("daily stats: %w", err)
	}
	return stats, nil
}

// DeleteAllAttendance removes every attendance row.
func (p *Postgres) DeleteAllAttendance(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ensureContext(ctx), "DELETE FROM attendance")
	if err != nil {
		return 0, fmt.Errorf("delete attendance: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanPgEmployee(row pgx.Row) (*attendance.Employee, error) {
	var (
		e                                  attendance.Employee
		email, phone, position, department *string
		template                           []byte
	)
	if err := row.Scan(&e.ID, &e.DisplayName, &email, &phone, &position, &department, &template); err != nil {
		return nil, err
	}
	e.Email = optionalString(email)
	e.Phone = optionalString(phone)
	e.Position = optionalString(position)
	e.Department = optionalString(department)
	if err := e.FaceTemplate.UnmarshalBinary(template); err != nil {
		return nil, fmt.Errorf("employee %d face template: %w", e.ID, err)
	}
	return &e, nil
}

// Roster returns every employee ordered by id.
func (p *Postgres) Roster(ctx context.Context) ([]attendance.Employee, error) {
	rows, err := p.pool.Query(ensureContext(ctx), "SELECT "+employeeColumns+" FROM employees ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()
	var out []attendance.Employee
	for rows.Next() {
		e, err := scanPgEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Employee returns one employee by id.
func (p *Postgres) Employee(ctx context.Context, id int64) (*attendance.Employee, error) {
	row := p.pool.QueryRow(ensureContext(ctx), "SELECT "+employeeColumns+" FROM employees WHERE id = $1", id)
	e, err := scanPgEmployee(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("employee", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return e, nil
}

// AddEmployee enrolls a new employee under an explicit id.
func (p *Postgres) AddEmployee(ctx context.Context, employee attendance.Employee) error {
	if err := validateEmployee(employee); err != nil {
		return err
	}
	var template []byte
	if employee.HasTemplate() {
		template, _ = employee.FaceTemplate.MarshalBinary()
	}
	_, err := p.pool.Exec(ensureContext(ctx),
		`INSERT INTO employees (id, display_name, email, phone, position, department, face_template)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		employee.ID, employee.DisplayName, optionalText(employee.Email), optionalText(employee.Phone),
		optionalText(employee.Position), optionalText(employee.Department), template,
	)
	if isUniqueViolation(err) {
		return duplicate("employee", employee.ID)
	}
	if err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

// UpdateEmployee rewrites the employee's descriptive fields.
func (p *Postgres) UpdateEmployee(ctx context.Context, employee attendance.Employee) error {
	if err := validateEmployee(employee); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ensureContext(ctx),
		`UPDATE employees SET display_name = $1, email = $2, phone = $3, position = $4, department = $5 WHERE id = $6`,
		employee.DisplayName, optionalText(employee.Email), optionalText(employee.Phone),
		optionalText(employee.Position), optionalText(employee.Department), employee.ID,
	)
	if err != nil {
		return fmt.Errorf("update employee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("employee", employee.ID)
	}
	return nil
}

// SetFaceTemplate replaces the employee's enrolled face encoding.
func (p *Postgres) SetFaceTemplate(ctx context.Context, id int64, template attendance.Template) error {
	var data []byte
	if len(template) > 0 {
		data, _ = template.MarshalBinary()
	}
	tag, err := p.pool.Exec(ensureContext(ctx), "UPDATE employees SET face_template = $1 WHERE id = $2", data, id)
	if err != nil {
		return fmt.Errorf("update face template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("employee", id)
	}
	return nil
}

// RemoveEmployee deletes the employee and their attendance rows.
func (p *Postgres) RemoveEmployee(ctx context.Context, id int64) (bool, error) {
	tag, err := p.pool.Exec(ensureContext(ctx), "DELETE FROM employees WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("delete employee: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Departments lists distinct non-empty departments.
func (p *Postgres) Departments(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ensureContext(ctx),
		"SELECT DISTINCT department FROM employees WHERE department IS NOT NULL AND department <> '' ORDER BY department")
	if err != nil {
		return nil, fmt.Errorf("query departments: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// AddUser creates an operator account and returns its id.
func (p *Postgres) AddUser(ctx context.Context, username, passwordHash, functions string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || passwordHash == "" {
		return 0, invalidUser(username)
	}
	var id int64
	err := p.pool.QueryRow(ensureContext(ctx),
		"INSERT INTO users (username, password_hash, functions) VALUES ($1, $2, $3) RETURNING id",
		username, passwordHash, optionalText(functions),
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, duplicate("user", username)
	}
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

// FindUser looks up an operator by username.
func (p *Postgres) FindUser(ctx context.Context, username string) (*attendance.User, error) {
	var (
		u         attendance.User
		functions *string
	)
	err := p.pool.QueryRow(ensureContext(ctx),
		"SELECT id, username, password_hash, functions FROM users WHERE username = $1", username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &functions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("user", username)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.Functions = optionalString(functions)
	return &u, nil
}

// ListUsers returns every operator account.
func (p *Postgres) ListUsers(ctx context.Context) ([]attendance.User, error) {
	rows, err := p.pool.Query(ensureContext(ctx), "SELECT id, username, password_hash, functions FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()
	var out []attendance.User
	for rows.Next() {
		var (
			u         attendance.User
			functions *string
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &functions); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Functions = optionalString(functions)
		out = append(out, u)
	}
	return out, rows.Err()
}

// RemoveUser deletes an operator account.
func (p *Postgres) RemoveUser(ctx context.Context, username string) (bool, error) {
	tag, err := p.pool.Exec(ensureContext(ctx), "DELETE FROM users WHERE username = $1", username)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// AppendAudit writes one audit entry outside an attendance transaction.
func (p *Postgres) AppendAudit(ctx context.Context, entry attendance.AuditEntry) error {
	return p.withTx(ctx, func(tx pgx.Tx) error {
		return pgInsertAudit(ctx, tx, entry)
	})
}

// ListAudit returns the newest audit entries first. limit <= 0 returns all.
func (p *Postgres) ListAudit(ctx context.Context, limit int) ([]attendance.AuditView, error) {
	query := `SELECT l.id, COALESCE(e.display_name, u.username, 'unknown'), l.action, l.timestamp
		FROM audit_log l
		LEFT JOIN employees e ON l.employee_id = e.id
		LEFT JOIN users u ON l.user_id = u.id
		ORDER BY l.timestamp DESC, l.id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := p.pool.Query(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()
	var out []attendance.AuditView
	for rows.Next() {
		var view attendance.AuditView
		if err := rows.Scan(&view.ID, &view.Actor, &view.Action, &view.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, view)
	}
	return out, rows.Err()
}

// ClearAudit deletes every audit entry.
func (p *Postgres) ClearAudit(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ensureContext(ctx), "DELETE FROM audit_log")
	if err != nil {
		return 0, fmt.Errorf("clear audit log: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DBStatus reports row counts.
func (p *Postgres) DBStatus(ctx context.Context) (attendance.DBStatus, error) {
	status := attendance.DBStatus{Backend: "postgres"}
	err := p.pool.QueryRow(ensureContext(ctx), `SELECT
		(SELECT COUNT(*) FROM employees),
		(SELECT COUNT(*) FROM users),
		(SELECT COUNT(*) FROM attendance),
		(SELECT COUNT(*) FROM audit_log)`,
	).Scan(&status.Employees, &status.Users, &status.Attendance, &status.AuditLog)
	if err != nil {
		return status, fmt.Errorf("db status: %w", err)
	}
	return status, nil
}
