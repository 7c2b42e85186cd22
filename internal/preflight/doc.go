// Package preflight provides readiness checks for the devices, services and
// filesystem paths the kiosk depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs failures as warnings. A
//     failed check never blocks startup; the affected actions fail later with
//     a device or service outcome instead.
//   - The CLI "attendance status" command prints the same results.
package preflight
