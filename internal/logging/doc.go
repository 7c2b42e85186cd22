// Package logging assembles structured slog loggers and formatting helpers used
// across the attendance kiosk.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so workflow code tags log lines with session
// IDs, employee IDs, directions, and correlation IDs. A no-op logger is provided
// for tests and wiring code that cannot fail.
package logging
