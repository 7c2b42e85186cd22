// Package main hosts the attendance CLI entrypoint and command graph.
//
// The Cobra command tree drives the kiosk daemon over its Unix socket
// (terminal check-in and check-out, status, logs, daemon lifecycle) and
// administers the attendance database directly (employees, operators,
// reports, manual records, audit log, backups). Configuration resolution and
// socket discovery live in the shared command context so subcommands stay
// declarative.
package main
