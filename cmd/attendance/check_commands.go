package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"attendance/internal/attendance"
	"attendance/internal/ipc"
	"attendance/internal/workflow"
)

// sessionPollMillis bounds each long-poll so an interrupt is noticed promptly.
const sessionPollMillis = 2000

func newCheckCommand(ctx *commandContext, use string) *cobra.Command {
	direction := attendance.CheckIn
	if use == "check-out" {
		direction = attendance.CheckOut
	}

	var username string
	var password string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Record a %s through the kiosk daemon", direction.Label()),
		Long: fmt.Sprintf(`Record a %s through the kiosk daemon.

The daemon captures a face from the kiosk camera and asks for confirmation
here. Answer y to confirm, n to retry or m to pick the employee by hand.
Fingerprint verification happens on the terminal afterwards.`, direction.Label()),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				in := newLineReader(cmd.InOrStdin())
				runCtx := cmd.Context()
				if runCtx == nil {
					runCtx = context.Background()
				}

				acting := ""
				if name := strings.TrimSpace(username); name != "" {
					pw := password
					if pw == "" {
						fmt.Fprint(cmd.OutOrStdout(), "Password: ")
						line, err := in.readLine(runCtx)
						if err != nil {
							return err
						}
						pw = line
					}
					login, err := client.Login(name, pw)
					if err != nil {
						return fmt.Errorf("login: %w", err)
					}
					acting = login.Username
				}

				resp, err := client.StartSession(string(direction), acting)
				if err != nil {
					return fmt.Errorf("start %s: %w", direction.Label(), err)
				}
				result, err := driveSession(runCtx, cmd, client, in, resp.Session)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, result)
				}
				return reportResult(cmd, result)
			})
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "", "Operator username acting on behalf of the employee")
	cmd.Flags().StringVar(&password, "password", "", "Operator password (prompted when omitted)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the final result as JSON")
	return cmd
}

// driveSession follows a session until it finishes, answering prompts from in.
// Interrupting ctx cancels the session on the daemon.
func driveSession(ctx context.Context, cmd *cobra.Command, client *ipc.Client, in *lineReader, snap ipc.SessionSnapshot) (workflow.Result, error) {
	out := cmd.OutOrStdout()
	printed := 0
	answered := 0
	for {
		for ; printed < len(snap.Notices); printed++ {
			fmt.Fprintf(out, "%s\n", formatNotice(snap.Notices[printed]))
		}
		if snap.Done {
			if snap.Result == nil {
				return workflow.Result{}, errors.New("session finished without a result")
			}
			return *snap.Result, nil
		}
		if err := ctx.Err(); err != nil {
			_, _ = client.Cancel(snap.ID)
			return workflow.Result{}, err
		}

		if p := snap.Prompt; p != nil && p.Seq > answered {
			answered = p.Seq
			next, err := answerPrompt(ctx, out, client, in, snap.ID, p)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					_, _ = client.Cancel(snap.ID)
				}
				return workflow.Result{}, err
			}
			snap = next
			continue
		}

		resp, err := client.Session(ipc.SessionRequest{ID: snap.ID, AfterSeq: answered, WaitMillis: sessionPollMillis})
		if err != nil {
			return workflow.Result{}, fmt.Errorf("poll session: %w", err)
		}
		snap = resp.Session
	}
}

func answerPrompt(ctx context.Context, out io.Writer, client *ipc.Client, in *lineReader, id string, p *workflow.Prompt) (ipc.SessionSnapshot, error) {
	switch p.Kind {
	case workflow.PromptConfirm:
		if p.Confirm == nil {
			return ipc.SessionSnapshot{}, errors.New("confirmation prompt without a candidate")
		}
		answer, err := askConfirm(ctx, out, in, *p.Confirm)
		if err != nil {
			return ipc.SessionSnapshot{}, err
		}
		resp, err := client.Confirm(ipc.ConfirmRequest{ID: id, Confirmed: answer.Confirmed, Bypass: answer.Bypass})
		if err != nil {
			return ipc.SessionSnapshot{}, fmt.Errorf("confirm: %w", err)
		}
		return resp.Session, nil
	case workflow.PromptSelect:
		choice, err := askSelect(ctx, out, in, p.Employees)
		if err != nil {
			return ipc.SessionSnapshot{}, err
		}
		resp, err := client.Select(id, choice)
		if err != nil {
			return ipc.SessionSnapshot{}, fmt.Errorf("select: %w", err)
		}
		return resp.Session, nil
	default:
		return ipc.SessionSnapshot{}, fmt.Errorf("unsupported prompt %q", p.Kind)
	}
}

func askConfirm(ctx context.Context, out io.Writer, in *lineReader, req workflow.ConfirmRequest) (workflow.ConfirmResponse, error) {
	name := req.Employee.DisplayName
	if dept := strings.TrimSpace(req.Employee.Department); dept != "" {
		name = fmt.Sprintf("%s (%s)", name, dept)
	}
	choices := "[y/n]"
	if req.OfferBypass {
		choices = "[y/n/m]"
	}
	for {
		fmt.Fprintf(out, "%s: is this %s? %s ", req.Direction.Label(), name, choices)
		line, err := in.readLine(ctx)
		if err != nil {
			return workflow.ConfirmResponse{}, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return workflow.ConfirmResponse{Confirmed: true}, nil
		case "n", "no":
			return workflow.ConfirmResponse{}, nil
		case "m", "manual":
			if req.OfferBypass {
				return workflow.ConfirmResponse{Bypass: true}, nil
			}
		}
		fmt.Fprintln(out, "Please answer y or n.")
	}
}

// askSelect lists the roster and reads an employee ID. A blank answer cancels.
func askSelect(ctx context.Context, out io.Writer, in *lineReader, roster []workflow.EmployeeChoice) (*int64, error) {
	rows := make([][]string, 0, len(roster))
	known := make(map[int64]struct{}, len(roster))
	for _, e := range roster {
		rows = append(rows, []string{strconv.FormatInt(e.ID, 10), e.DisplayName, e.Department})
		known[e.ID] = struct{}{}
	}
	fmt.Fprint(out, renderTable([]string{"ID", "Name", "Department"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft}))
	for {
		fmt.Fprint(out, "Employee ID (blank to cancel): ")
		line, err := in.readLine(ctx)
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return nil, nil
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err == nil {
			if _, ok := known[id]; ok {
				return &id, nil
			}
		}
		fmt.Fprintf(out, "Unknown employee %q\n", line)
	}
}

func formatNotice(n workflow.Notice) string {
	switch n.Level {
	case workflow.NoticeError:
		return "! " + n.Message
	case workflow.NoticeWarning:
		return "* " + n.Message
	default:
		return "  " + n.Message
	}
}

func reportResult(cmd *cobra.Command, result workflow.Result) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	kind := statusWarn
	switch {
	case result.Recorded():
		kind = statusOK
	case result.Outcome == workflow.OutcomeError:
		kind = statusError
	}
	fmt.Fprintln(out, renderStatusLine(result.Direction.Label(), kind, result.Message, colorize))
	if result.Employee != nil {
		fmt.Fprintln(out, renderStatusLine("Employee", statusInfo, result.Employee.DisplayName, colorize))
	}
	if result.At != nil {
		fmt.Fprintln(out, renderStatusLine("Time", statusInfo, result.At.Format("15:04:05"), colorize))
	}
	if result.Duration != nil {
		fmt.Fprintln(out, renderStatusLine("Worked", statusInfo, attendance.FormatDuration(*result.Duration), colorize))
	}
	if result.Outcome == workflow.OutcomeError {
		return fmt.Errorf("%s failed: %s", result.Direction.Label(), result.Message)
	}
	return nil
}

// lineReader reads operator answers without blocking cancellation.
type lineReader struct {
	lines chan string
	errc  chan error
}

func newLineReader(r io.Reader) *lineReader {
	lr := &lineReader{lines: make(chan string), errc: make(chan error, 1)}
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lr.lines <- scanner.Text()
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		lr.errc <- err
	}()
	return lr
}

func (lr *lineReader) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line := <-lr.lines:
		return line, nil
	case err := <-lr.errc:
		lr.errc <- err
		return "", err
	}
}
