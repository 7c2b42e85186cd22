// Package attendance holds the kiosk's domain types and the business rules
// shared by the workflow and the store: attendance days, check-in and
// check-out guards, face template encoding, and operator password hashing.
package attendance
