// Package services defines shared helpers consumed by the workflow and the
// device integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, employee IDs, directions, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (busy, timeout, unavailable, validation) without string checks.
package services
