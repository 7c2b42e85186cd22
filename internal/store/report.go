package store

import (
	"fmt"
	"strings"

	"attendance/internal/attendance"
)

const reportSelect = `SELECT a.employee_id, e.display_name, e.department, e.position,
	a.date, a.check_in, a.check_out, a.duration_seconds
	FROM attendance a
	JOIN employees e ON a.employee_id = e.id`

// buildReportQuery renders the report query using the backend's placeholder
// style. day converts a YYYY-MM-DD filter into the backend's date argument.
func buildReportQuery(filter attendance.ReportFilter, placeholder func(int) string, day func(string) any) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, placeholder(len(args))))
	}
	if filter.From != "" {
		add("a.date >= %s", day(filter.From))
	}
	if filter.To != "" {
		add("a.date <= %s", day(filter.To))
	}
	if dept := strings.TrimSpace(filter.Department); dept != "" {
		add("e.department = %s", dept)
	}
	if filter.EmployeeID > 0 {
		add("a.employee_id = %s", filter.EmployeeID)
	}

	var b strings.Builder
	b.WriteString(reportSelect)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY a.date DESC, a.check_in DESC")
	return b.String(), args
}
