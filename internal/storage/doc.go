// Package storage persists the link audit log.
//
// Drivers:
//   - file: append-only JSON Lines, no dependencies
//   - sqlite: single database file (modernc.org/sqlite, pure Go)
package storage
