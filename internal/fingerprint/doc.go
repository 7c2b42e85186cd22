// Package fingerprint talks to the network fingerprint terminal.
//
// The terminal performs the biometric match itself and reports the enrolled
// user id of each scan over its TCP protocol (default port 4370). TCPDialer
// implements the connect, live-capture and disconnect exchanges; Verifier
// binds a scan to the employee already identified by face and classifies the
// result as success, wrong_identity, timeout or device_unreachable.
package fingerprint
