package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the archive.
//
// Driver values:
//   - "file": JSON Lines at <path without ext>.tasks.jsonl
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", the archive is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// Retention prunes sqlite rows that completed longer ago. 0 keeps
	// everything. The file driver never prunes.
	Retention time.Duration
}

// TaskEntry is the archived form of a finished task.
// Keep it compact and schema-stable.
type TaskEntry struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	OwnerID     string     `json:"owner_id"`
	Priority    int        `json:"priority"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Error       string     `json:"error,omitempty"`
	ResultJSON  string     `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time  `json:"completed_at"`
}
