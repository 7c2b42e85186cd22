package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"attendance/internal/attendance"
)

const employeeColumns = "id, display_name, email, phone, position, department, face_template"

func scanSQLiteEmployee(scanner interface{ Scan(dest ...any) error }) (*attendance.Employee, error) {
	var (
		e                                  attendance.Employee
		email, phone, position, department sql.NullString
		template                           []byte
	)
	if err := scanner.Scan(&e.ID, &e.DisplayName, &email, &phone, &position, &department, &template); err != nil {
		return nil, err
	}
	e.Email = email.String
	e.Phone = phone.String
	e.Position = position.String
	e.Department = department.String
	if err := e.FaceTemplate.UnmarshalBinary(template); err != nil {
		return nil, fmt.Errorf("employee %d face template: %w", e.ID, err)
	}
	return &e, nil
}

// Roster returns every employee ordered by id.
func (s *SQLite) Roster(ctx context.Context) ([]attendance.Employee, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()
	var out []attendance.Employee
	for rows.Next() {
		e, err := scanSQLiteEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Employee returns one employee by id.
func (s *SQLite) Employee(ctx context.Context, id int64) (*attendance.Employee, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ?", id)
	e, err := scanSQLiteEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("employee", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return e, nil
}

// AddEmployee enrolls a new employee under an explicit id.
func (s *SQLite) AddEmployee(ctx context.Context, employee attendance.Employee) error {
	if err := validateEmployee(employee); err != nil {
		return err
	}
	template, _ := employee.FaceTemplate.MarshalBinary()
	if len(template) == 0 {
		template = nil
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO employees (id, display_name, email, phone, position, department, face_template, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		employee.ID, employee.DisplayName, nullableString(employee.Email), nullableString(employee.Phone),
		nullableString(employee.Position), nullableString(employee.Department), template, formatTime(time.Now()),
	)
	if isSQLiteConstraint(err) {
		return duplicate("employee", employee.ID)
	}
	if err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

// UpdateEmployee rewrites the employee's descriptive fields. The face template is untouched.
func (s *SQLite) UpdateEmployee(ctx context.Context, employee attendance.Employee) error {
	if err := validateEmployee(employee); err != nil {
		return err
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE employees SET display_name = ?, email = ?, phone = ?, position = ?, department = ? WHERE id = ?`,
		employee.DisplayName, nullableString(employee.Email), nullableString(employee.Phone),
		nullableString(employee.Position), nullableString(employee.Department), employee.ID,
	)
	if err != nil {
		return fmt.Errorf("update employee: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return notFound("employee", employee.ID)
	}
	return nil
}

// SetFaceTemplate replaces the employee's enrolled face encoding.
func (s *SQLite) SetFaceTemplate(ctx context.Context, id int64, template attendance.Template) error {
	data, _ := template.MarshalBinary()
	if len(data) == 0 {
		data = nil
	}
	res, err := s.execWithRetry(ctx, "UPDATE employees SET face_template = ? WHERE id = ?", data, id)
	if err != nil {
		return fmt.Errorf("update face template: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return notFound("employee", id)
	}
	return nil
}

// RemoveEmployee deletes the employee and their attendance rows.
func (s *SQLite) RemoveEmployee(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM employees WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete employee: %w", err)
	}
	rows, err := res.RowsAffected()
	return rows > 0, err
}

// Departments lists distinct non-empty departments.
func (s *SQLite) Departments(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT department FROM employees WHERE department IS NOT NULL AND department <> '' ORDER BY department")
	if err != nil {
		return nil, fmt.Errorf("query departments: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var dept string
		if err := rows.Scan(&dept); err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		out = append(out, dept)
	}
	return out, rows.Err()
}

// AddUser creates an operator account and returns its id.
func (s *SQLite) AddUser(ctx context.Context, username, passwordHash, functions string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || passwordHash == "" {
		return 0, invalidUser(username)
	}
	res, err := s.execWithRetry(ctx,
		"INSERT INTO users (username, password_hash, functions) VALUES (?, ?, ?)",
		username, passwordHash, nullableString(functions),
	)
	if isSQLiteConstraint(err) {
		return 0, duplicate("user", username)
	}
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return res.LastInsertId()
}

// FindUser looks up an operator by username.
func (s *SQLite) FindUser(ctx context.Context, username string) (*attendance.User, error) {
	ctx = ensureContext(ctx)
	var (
		u         attendance.User
		functions sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, functions FROM users WHERE username = ?", username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &functions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", username)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.Functions = functions.String
	return &u, nil
}

// ListUsers returns every operator account.
func (s *SQLite) ListUsers(ctx context.Context) ([]attendance.User, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT id, username, password_hash, functions FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()
	var out []attendance.User
	for rows.Next() {
		var (
			u         attendance.User
			functions sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &functions); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Functions = functions.String
		out = append(out, u)
	}
	return out, rows.Err()
}

// RemoveUser deletes an operator account. Their audit entries are kept without an actor.
func (s *SQLite) RemoveUser(ctx context.Context, username string) (bool, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	rows, err := res.RowsAffected()
	return rows > 0, err
}

// AppendAudit writes one audit entry outside an attendance transaction.
func (s *SQLite) AppendAudit(ctx context.Context, entry attendance.AuditEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return sqliteInsertAudit(ctx, tx, entry)
	})
}

// ListAudit returns the newest audit entries first. limit <= 0 returns all.
func (s *SQLite) ListAudit(ctx context.Context, limit int) ([]attendance.AuditView, error) {
	ctx = ensureContext(ctx)
	query := `SELECT l.id, COALESCE(e.display_name, u.username, 'unknown'), l.action, l.timestamp
		FROM audit_log l
		LEFT JOIN employees e ON l.employee_id = e.id
		LEFT JOIN users u ON l.user_id = u.id
		ORDER BY l.timestamp DESC, l.id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()
	var out []attendance.AuditView
	for rows.Next() {
		var (
			view attendance.AuditView
			ts   sql.NullString
		)
		if err := rows.Scan(&view.ID, &view.Actor, &view.Action, &ts); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if parsed := nullableTime(ts); parsed != nil {
			view.Timestamp = *parsed
		}
		out = append(out, view)
	}
	return out, rows.Err()
}

// ClearAudit deletes every audit entry.
func (s *SQLite) ClearAudit(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM audit_log")
	if err != nil {
		return 0, fmt.Errorf("clear audit log: %w", err)
	}
	return res.RowsAffected()
}

// DBStatus reports row counts.
func (s *SQLite) DBStatus(ctx context.Context) (attendance.DBStatus, error) {
	ctx = ensureContext(ctx)
	status := attendance.DBStatus{Backend: "sqlite"}
	counts := []struct {
		table string
		dest  *int
	}{
		{"employees", &status.Employees},
		{"users", &status.Users},
		{"attendance", &status.Attendance},
		{"audit_log", &status.AuditLog},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return status, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	return status, nil
}
