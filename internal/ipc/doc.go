// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Session
// calls mirror the kiosk HTTP API so the terminal check-in and check-out
// commands can drive the same prompts; Session accepts a bounded wait so the
// CLI long-polls for the next prompt instead of spinning.
package ipc
