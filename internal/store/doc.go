// Package store persists employees, attendance rows, operator accounts, and the
// audit log.
//
// Two backends implement Store: SQLite (the default, embedded in the daemon's
// data directory) and PostgreSQL through a pgx connection pool. Both enforce one
// attendance row per employee and day, write each attendance mutation and its
// audit entry in a single transaction, and refuse check-outs that come before
// the minimum gap after check-in.
package store
