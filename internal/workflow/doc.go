// Package workflow runs the kiosk's dual-factor attendance action: face
// capture and matching, operator confirmation or manual selection, the
// business rules, fingerprint verification and finally the attendance write.
//
// A Workflow executes one run at a time. Sessions wraps runs for front doors
// that answer prompts asynchronously (the kiosk HTTP API and the CLI socket).
package workflow
