package attendance

import (
	"strings"
	"time"
)

// Direction is the attendance action an operator starts.
type Direction string

const (
	CheckIn  Direction = "check_in"
	CheckOut Direction = "check_out"
)

// ParseDirection accepts check_in/check_out and the hyphenated CLI spellings.
func ParseDirection(value string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(value, "-", "_"))) {
	case string(CheckIn), "in":
		return CheckIn, true
	case string(CheckOut), "out":
		return CheckOut, true
	default:
		return "", false
	}
}

// Label returns the human readable action name used in audit entries.
func (d Direction) Label() string {
	switch d {
	case CheckIn:
		return "Check-in"
	case CheckOut:
		return "Check-out"
	default:
		return string(d)
	}
}

// Employee is an enrolled person the kiosk can recognize.
type Employee struct {
	ID           int64    `json:"id"`
	DisplayName  string   `json:"display_name"`
	Email        string   `json:"email,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Position     string   `json:"position,omitempty"`
	Department   string   `json:"department,omitempty"`
	FaceTemplate Template `json:"-"`
}

// HasTemplate reports whether the employee can be matched by face.
func (e Employee) HasTemplate() bool {
	return len(e.FaceTemplate) > 0
}

// Record is the single attendance row for an employee and day.
type Record struct {
	EmployeeID int64          `json:"employee_id"`
	Date       string         `json:"date"`
	CheckIn    *time.Time     `json:"check_in,omitempty"`
	CheckOut   *time.Time     `json:"check_out,omitempty"`
	Duration   *time.Duration `json:"duration,omitempty"`
}

// Status is the check-in/check-out state of an employee for one day.
type Status struct {
	CheckIn  *time.Time `json:"check_in,omitempty"`
	CheckOut *time.Time `json:"check_out,omitempty"`
}

// AuditEntry is one row of the audit log. Exactly one of UserID or
// EmployeeID names the actor.
type AuditEntry struct {
	ID         int64     `json:"id"`
	UserID     *int64    `json:"user_id,omitempty"`
	EmployeeID *int64    `json:"employee_id,omitempty"`
	Action     string    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
}

// AuditView is an audit entry joined with the actor's name.
type AuditView struct {
	ID        int64     `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// User is an operator account.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Functions    string `json:"functions,omitempty"`
}

// ReportRow is an attendance record joined with employee details.
type ReportRow struct {
	EmployeeID  int64          `json:"employee_id"`
	DisplayName string         `json:"display_name"`
	Department  string         `json:"department"`
	Position    string         `json:"position"`
	Date        string         `json:"date"`
	CheckIn     *time.Time     `json:"check_in,omitempty"`
	CheckOut    *time.Time     `json:"check_out,omitempty"`
	Duration    *time.Duration `json:"duration,omitempty"`
}

// ReportFilter narrows an attendance report. Empty fields match everything.
type ReportFilter struct {
	From       string
	To         string
	Department string
	EmployeeID int64
}

// DailyStats summarizes attendance for one day.
type DailyStats struct {
	Date    string `json:"date"`
	Present int    `json:"present"`
	Absent  int    `json:"absent"`
	Total   int    `json:"total"`
}

// DBStatus reports row counts for the attendance database.
type DBStatus struct {
	Backend    string `json:"backend"`
	Employees  int    `json:"employees"`
	Users      int    `json:"users"`
	Attendance int    `json:"attendance"`
	AuditLog   int    `json:"audit_log"`
}
