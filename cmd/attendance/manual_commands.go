package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"attendance/internal/attendance"
	"attendance/internal/services"
	"attendance/internal/store"
)

func newManualRecordCommand(ctx *commandContext, direction attendance.Direction) *cobra.Command {
	var username string
	name := "check-in"
	if direction == attendance.CheckOut {
		name = "check-out"
	}
	cmd := &cobra.Command{
		Use:   name + " <employee-id>",
		Short: fmt.Sprintf("Record a %s without face or fingerprint verification", name),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEmployeeID(args[0])
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				m := manualRecord{
					direction: direction,
					username:  strings.TrimSpace(username),
					now:       time.Now(),
					loc:       cfg.Location(),
					minGap:    cfg.MinCheckoutGap(),
				}
				employee, worked, err := m.write(cmd.Context(), st, id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				at := m.now.In(m.loc).Format("15:04")
				if worked != nil {
					fmt.Fprintf(out, "Recorded check-out for %s (%d) at %s, worked %s\n",
						employee.DisplayName, employee.ID, at, attendance.FormatDuration(*worked))
					return nil
				}
				fmt.Fprintf(out, "Recorded check-in for %s (%d) at %s\n", employee.DisplayName, employee.ID, at)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "Operator account credited in the audit log")
	return cmd
}

// manualRecord is an operator-entered attendance write. It applies the same
// day rules as the kiosk but skips both verification factors.
type manualRecord struct {
	direction attendance.Direction
	username  string
	now       time.Time
	loc       *time.Location
	minGap    time.Duration
}

func (m manualRecord) write(ctx context.Context, st store.Store, id int64) (*attendance.Employee, *time.Duration, error) {
	employee, err := loadEmployee(ctx, st, id)
	if err != nil {
		return nil, nil, err
	}
	audit, err := m.auditEntry(ctx, st, *employee)
	if err != nil {
		return nil, nil, err
	}

	day := attendance.Day(m.now, m.loc)
	status, err := st.ReadStatus(ctx, id, day)
	if err != nil {
		return nil, nil, err
	}
	if rejection := attendance.Guard(m.direction, status, m.now, m.minGap, m.loc); rejection != nil {
		return nil, nil, rejected(*employee, rejection.Message)
	}

	if m.direction == attendance.CheckIn {
		created, err := st.WriteCheckIn(ctx, id, day, m.now, audit)
		if err != nil {
			return nil, nil, err
		}
		if !created {
			return nil, nil, rejected(*employee, "already checked in today")
		}
		return employee, nil, nil
	}
	worked, err := st.WriteCheckOut(ctx, id, day, m.now, audit)
	if errors.Is(err, store.ErrCheckoutTooEarly) {
		return nil, nil, rejected(*employee, attendance.TooEarly(m.minGap).Message)
	}
	if err != nil {
		return nil, nil, err
	}
	if worked == nil {
		return nil, nil, rejected(*employee, "no open check-in today")
	}
	return employee, worked, nil
}

func (m manualRecord) auditEntry(ctx context.Context, st store.Store, employee attendance.Employee) (*attendance.AuditEntry, error) {
	entry := &attendance.AuditEntry{
		Timestamp: m.now,
		Action:    fmt.Sprintf("Manual %s - %s", strings.ToLower(m.direction.Label()), employee.DisplayName),
	}
	if m.username == "" {
		id := employee.ID
		entry.EmployeeID = &id
		return entry, nil
	}
	userID, err := lookupUserID(ctx, st, m.username)
	if err != nil {
		return nil, err
	}
	entry.UserID = &userID
	return entry, nil
}

func lookupUserID(ctx context.Context, st store.Store, username string) (int64, error) {
	user, err := st.FindUser(ctx, username)
	if errors.Is(err, services.ErrNotFound) {
		return 0, fmt.Errorf("user %q not found", username)
	}
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

func rejected(employee attendance.Employee, message string) error {
	return fmt.Errorf("%s (%d): %s", employee.DisplayName, employee.ID, message)
}
