package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"attendance/internal/attendance"
)

// WriteCheckIn inserts the day's attendance row.
func (s *SQLite) WriteCheckIn(ctx context.Context, employeeID int64, day string, at time.Time, audit *attendance.AuditEntry) (bool, error) {
	ctx = ensureContext(ctx)
	var written bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		written = false
		if err := sqliteEmployeeExists(ctx, tx, employeeID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO attendance (employee_id, date, check_in) VALUES (?, ?, ?)
			 ON CONFLICT(employee_id, date) DO NOTHING`,
			employeeID, day, formatTime(at),
		)
		if err != nil {
			return fmt.Errorf("insert check-in: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check-in rows affected: %w", err)
		}
		if rows == 0 {
			return nil
		}
		if audit != nil {
			if err := sqliteInsertAudit(ctx, tx, *audit); err != nil {
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
func (s *SQLite) WriteCheckOut(ctx context.Context, employeeID int64, day string, at time.Time, audit *attendance.AuditEntry) (*time.Duration, error) {
	ctx = ensureContext(ctx)
	var result *time.Duration
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = nil
		var checkInRaw, checkOutRaw sql.NullString
		err := tx.QueryRowContext(ctx,
			"SELECT check_in, check_out FROM attendance WHERE employee_id = ? AND date = ?",
			employeeID, day,
		).Scan(&checkInRaw, &checkOutRaw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read attendance row: %w", err)
		}
		checkIn := nullableTime(checkInRaw)
		if checkIn == nil || checkOutRaw.Valid {
			return nil
		}
		if at.Before(checkIn.Add(s.minGap)) {
			return tooEarly(*checkIn, at, s.minGap)
		}
		duration := workedDuration(*checkIn, at)
		res, err := tx.ExecContext(ctx,
			`UPDATE attendance SET check_out = ?, duration_seconds = ?
			 WHERE employee_id = ? AND date = ? AND check_out IS NULL`,
			formatTime(at), int64(duration/time.Second), employeeID, day,
		)
		if err != nil {
			return fmt.Errorf("update check-out: %w", err)
		}
		if rows, err := res.RowsAffected(); err != nil || rows == 0 {
			return err
		}
		if audit != nil {
			if err := sqliteInsertAudit(ctx, tx, *audit); err != nil {
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
func (s *SQLite) ReadStatus(ctx context.Context, employeeID int64, day string) (attendance.Status, error) {
	ctx = ensureContext(ctx)
	var checkIn, checkOut sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT check_in, check_out FROM attendance WHERE employee_id = ? AND date = ?",
		employeeID, day,
	).Scan(&checkIn, &checkOut)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.Status{}, nil
	}
	if err != nil {
		return attendance.Status{}, fmt.Errorf("read status: %w", err)
	}
	return attendance.Status{CheckIn: nullableTime(checkIn), CheckOut: nullableTime(checkOut)}, nil
}

// Report lists attendance rows joined with employee details, newest first.
func (s *SQLite) Report(ctx context.Context, filter attendance.ReportFilter) ([]attendance.ReportRow, error) {
	ctx = ensureContext(ctx)
	query, args := buildReportQuery(filter, func(int) string { return "?" }, func(day string) any { return day })
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	defer rows.Close()

	var out []attendance.ReportRow
	for rows.Next() {
		var (
			row                  attendance.ReportRow
			department, position sql.NullString
			checkIn, checkOut    sql.NullString
			durationSeconds      sql.NullInt64
		)
		if err := rows.Scan(&row.EmployeeID, &row.DisplayName, &department, &position,
			&row.Date, &checkIn, &checkOut, &durationSeconds); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		row.Department = department.String
		row.Position = position.String
		row.CheckIn = nullableTime(checkIn)
		row.CheckOut = nullableTime(checkOut)
		row.Duration = nullableDuration(durationSeconds)
		out = append(out, row)
	}
	return out, rows.Err()
}

// DailyStats counts present and absent employees for day.
func (s *SQLite) DailyStats(ctx context.Context, day string) (attendance.DailyStats, error) {
	ctx = ensureContext(ctx)
	stats := attendance.DailyStats{Date: day}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM attendance WHERE date = ? AND check_in IS NOT NULL", day,
	).Scan(&stats.Present); err != nil {
		return stats, fmt.Errorf("count present: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM employees WHERE id NOT IN (SELECT employee_id FROM attendance WHERE date = ?)", day,
	).Scan(&stats.Absent); err != nil {
		return stats, fmt.Errorf("count absent: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM employees").Scan(&stats.Total); err != nil {
		return stats, fmt.Errorf("count employees: %w", err)
	}
	return stats, nil
}

// DeleteAllAttendance removes every attendance row.
func (s *SQLite) DeleteAllAttendance(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM attendance")
	if err != nil {
		return 0, fmt.Errorf("delete attendance: %w", err)
	}
	return res.RowsAffected()
}

func sqliteEmployeeExists(ctx context.Context, tx *sql.Tx, id int64) error {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM employees WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("employee", id)
	}
	if err != nil {
		return fmt.Errorf("lookup employee: %w", err)
	}
	return nil
}

func sqliteInsertAudit(ctx context.Context, tx *sql.Tx, entry attendance.AuditEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO audit_log (user_id, employee_id, action, timestamp) VALUES (?, ?, ?, ?)",
		nullableInt(entry.UserID), nullableInt(entry.EmployeeID), entry.Action, formatTime(ts),
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
