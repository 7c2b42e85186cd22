package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"attendance/internal/attendance"
	"attendance/internal/store"
)

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:     "users",
		Aliases: []string{"user"},
		Short:   "Manage operator accounts",
	}

	var password string
	var functions string
	addCmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an operator account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := strings.TrimSpace(args[0])
			pw := password
			if pw == "" {
				if isInteractive(cmd.InOrStdin()) {
					fmt.Fprint(cmd.OutOrStdout(), "Password: ")
				}
				line, err := newLineReader(cmd.InOrStdin()).readLine(cmd.Context())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				pw = line
			}
			if pw == "" {
				return errors.New("password is required")
			}
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				id, err := st.AddUser(cmd.Context(), username, attendance.HashPassword(pw), strings.TrimSpace(functions))
				if err != nil {
					if errors.Is(err, store.ErrDuplicate) {
						return fmt.Errorf("user %q already exists", username)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d)\n", username, id)
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&password, "password", "", "Account password (prompted when omitted)")
	addCmd.Flags().StringVar(&functions, "functions", "", "Comma-separated role list")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List operator accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				users, err := st.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				if len(users) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No users")
					return nil
				}
				rows := make([][]string, 0, len(users))
				for _, u := range users {
					rows = append(rows, []string{strconv.FormatInt(u.ID, 10), u.Username, u.Functions})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"ID", "Username", "Functions"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft}))
				return nil
			})
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <username>",
		Short: "Delete an operator account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := strings.TrimSpace(args[0])
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				removed, err := st.RemoveUser(cmd.Context(), username)
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "User %s not found\n", username)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed user %s\n", username)
				return nil
			})
		},
	}

	usersCmd.AddCommand(addCmd, listCmd, removeCmd)
	return usersCmd
}
