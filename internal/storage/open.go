package storage

import (
	"context"
	"errors"
	"strings"

	logx "nightingale/pkg/logx"
)

// Archive persists finished tasks.
type Archive interface {
	AppendTask(ctx context.Context, e TaskEntry) error
	Close() error
}

// Open initializes the configured archive.
// It returns (nil, nil) if the archive is disabled.
func Open(cfg Config, log logx.Logger) (Archive, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "archive"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
