package storage

// Package storage archives finished tasks.
//
// The archive is write-only: the scheduler never reads it back, so queued
// work is not persisted across restarts. Drivers:
//   - file: JSON Lines, one task per line
//   - sqlite: modernc.org/sqlite with an embedded schema
