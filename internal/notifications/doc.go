// Package notifications pushes kiosk events to ntfy.
//
// Check-ins, check-outs, fingerprint terminal availability changes, and errors
// each map to a titled, tagged message. Per-event toggles live in the
// [notifications] config section and a missing topic yields a no-op service.
package notifications
