package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"attendance/internal/attendance"
	"attendance/internal/services"
	"attendance/internal/store"
)

func newEmployeesCommand(ctx *commandContext) *cobra.Command {
	employeesCmd := &cobra.Command{
		Use:     "employees",
		Aliases: []string{"employee"},
		Short:   "Manage the employee roster",
	}
	employeesCmd.AddCommand(
		newEmployeesListCommand(ctx),
		newEmployeesShowCommand(ctx),
		newEmployeesAddCommand(ctx),
		newEmployeesUpdateCommand(ctx),
		newEmployeesRemoveCommand(ctx),
		newEmployeesDepartmentsCommand(ctx),
		newEmployeesImportTemplateCommand(ctx),
	)
	return employeesCmd
}

func newEmployeesListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List enrolled employees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				roster, err := st.Roster(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, roster)
				}
				if len(roster) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No employees enrolled")
					return nil
				}
				rows := make([][]string, 0, len(roster))
				for _, e := range roster {
					rows = append(rows, []string{
						strconv.FormatInt(e.ID, 10),
						e.DisplayName,
						e.Department,
						e.Position,
						yesNo(e.HasTemplate()),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Department", "Position", "Face"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the roster as JSON")
	return cmd
}

func newEmployeesAddCommand(ctx *commandContext) *cobra.Command {
	var employee attendance.Employee
	var templateHex string

	cmd := &cobra.Command{
		Use:   "add <id> <name>",
		Short: "Enroll an employee",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEmployeeID(args[0])
			if err != nil {
				return err
			}
			employee.ID = id
			employee.DisplayName = attendance.NormalizeDisplayName(args[1])
			if strings.TrimSpace(templateHex) != "" {
				template, err := readTemplate(templateHex)
				if err != nil {
					return err
				}
				employee.FaceTemplate = template
			}
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				if err := st.AddEmployee(cmd.Context(), employee); err != nil {
					if errors.Is(err, store.ErrDuplicate) {
						return fmt.Errorf("employee %d already exists", id)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enrolled employee %d (%s)\n", employee.ID, employee.DisplayName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&employee.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&employee.Phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&employee.Position, "position", "", "Job position")
	cmd.Flags().StringVar(&employee.Department, "department", "", "Department")
	cmd.Flags().StringVar(&templateHex, "template", "", "Face template as hex, or @file to read it from a file")
	return cmd
}

func newEmployeesShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one employee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEmployeeID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				employee, err := loadEmployee(cmd.Context(), st, id)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, employee)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, [][]string{
					{"ID", strconv.FormatInt(employee.ID, 10)},
					{"Name", employee.DisplayName},
					{"Email", employee.Email},
					{"Phone", employee.Phone},
					{"Position", employee.Position},
					{"Department", employee.Department},
					{"Face", yesNo(employee.HasTemplate())},
				}, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the employee as JSON")
	return cmd
}

func newEmployeesUpdateCommand(ctx *commandContext) *cobra.Command {
	var changes attendance.Employee
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change an employee's details",
		Long: `Change an employee's details.

Only the flags given are changed. Pass an empty value to clear a field.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEmployeeID(args[0])
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			changed := false
			for _, flag := range []string{"name", "email", "phone", "position", "department"} {
				changed = changed || flags.Changed(flag)
			}
			if !changed {
				return errors.New("nothing to update; pass at least one of --name, --email, --phone, --position, --department")
			}
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				employee, err := loadEmployee(cmd.Context(), st, id)
				if err != nil {
					return err
				}
				if flags.Changed("name") {
					employee.DisplayName = attendance.NormalizeDisplayName(changes.DisplayName)
				}
				for flag, field := range map[string]*string{
					"email":      &employee.Email,
					"phone":      &employee.Phone,
					"position":   &employee.Position,
					"department": &employee.Department,
				} {
					if flags.Changed(flag) {
						value, _ := flags.GetString(flag)
						*field = strings.TrimSpace(value)
					}
				}
				if err := st.UpdateEmployee(cmd.Context(), *employee); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated employee %d (%s)\n", employee.ID, employee.DisplayName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&changes.DisplayName, "name", "", "Display name")
	cmd.Flags().String("email", "", "Email address")
	cmd.Flags().String("phone", "", "Phone number")
	cmd.Flags().String("position", "", "Job position")
	cmd.Flags().String("department", "", "Department")
	return cmd
}

func newEmployeesDepartmentsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "departments",
		Short: "List the departments employees belong to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				departments, err := st.Departments(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					if departments == nil {
						departments = []string{}
					}
					return writeJSON(cmd, departments)
				}
				if len(departments) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No departments")
					return nil
				}
				for _, d := range departments {
					fmt.Fprintln(cmd.OutOrStdout(), d)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print departments as JSON")
	return cmd
}

func newEmployeesRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an employee and their attendance records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEmployeeID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				removed, err := st.RemoveEmployee(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "Employee %d not found\n", id)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed employee %d\n", id)
				return nil
			})
		},
	}
}

func newEmployeesImportTemplateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import-template <id> <hex|@file>",
		Short: "Store a face template for an employee",
		Long: `Store a face template for an employee.

The template is the encoder's vector as little-endian float64 values, hex
encoded. Prefix a path with @ to read the hex string from a file.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEmployeeID(args[0])
			if err != nil {
				return err
			}
			template, err := readTemplate(args[1])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				if err := st.SetFaceTemplate(cmd.Context(), id, template); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %d-value face template for employee %d\n", len(template), id)
				return nil
			})
		},
	}
}

func loadEmployee(ctx context.Context, st store.Store, id int64) (*attendance.Employee, error) {
	employee, err := st.Employee(ctx, id)
	if errors.Is(err, services.ErrNotFound) {
		return nil, fmt.Errorf("employee %d not found", id)
	}
	return employee, err
}

func parseEmployeeID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid employee id %q", value)
	}
	return id, nil
}

func readTemplate(value string) (attendance.Template, error) {
	value = strings.TrimSpace(value)
	if path, ok := strings.CutPrefix(value, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read template: %w", err)
		}
		value = strings.TrimSpace(string(data))
	}
	template, err := attendance.ParseTemplateHex(value)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if len(template) == 0 {
		return nil, errors.New("face template is empty")
	}
	return template, nil
}
