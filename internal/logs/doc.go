// Package logs tails the daemon log file for the CLI and the IPC server.
//
// Negative offsets return the last N lines, follow mode long-polls for
// appended lines, and an optional substring match narrows output to one
// attendance session or employee.
package logs
