// Package main hosts the attendanced entrypoint.
//
// attendanced loads the configuration, then hands off to daemonrun, which
// owns logging, the daemon lock, the IPC socket and the kiosk HTTP API. The
// attendance CLI launches it detached via `attendance daemon start`.
package main
