// Package daemon coordinates the long-running attendance kiosk process.
//
// It wires configuration, the attendance store, the camera preview loop, the
// fingerprint verifier and the attendance workflow into a single lifecycle
// with flock-based locking to prevent multiple instances. The daemon owns the
// session registry that front doors (the HTTP kiosk API here and the CLI
// socket in package ipc) use to start runs and answer their prompts, and it
// watches the fingerprint terminal and face encoder so status reports and
// offline notifications stay current.
//
// Keep orchestration here: matching, verification and persistence live in
// their own packages.
package daemon
