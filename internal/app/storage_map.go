package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"nightingale/internal/config"
	"nightingale/internal/storage"
	"nightingale/internal/task/engine"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Archive == nil {
		return storage.Config{}, false, nil
	}
	ac := cfg.Archive
	driver := strings.ToLower(strings.TrimSpace(ac.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(ac.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("archive.path is required when archive.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("archive.busy_timeout", ac.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		retention, err := config.ParseDurationField("archive.retention", ac.Retention)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy, Retention: retention}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown archive.driver: %s", ac.Driver)
	}
}

// taskArchiver adapts a storage.Archive to engine.Archiver.
type taskArchiver struct {
	store storage.Archive
}

func (a taskArchiver) ArchiveTask(ctx context.Context, snap engine.Snapshot) error {
	entry, err := taskEntry(snap)
	if err != nil {
		return err
	}
	return a.store.AppendTask(ctx, entry)
}

func taskEntry(snap engine.Snapshot) (storage.TaskEntry, error) {
	e := storage.TaskEntry{
		ID:        snap.TaskID,
		Type:      string(snap.Type),
		OwnerID:   snap.OwnerID,
		Priority:  int(snap.Priority),
		Status:    string(snap.Status),
		Progress:  snap.Progress,
		Error:     snap.Error,
		CreatedAt: snap.CreatedAt,
		StartedAt: snap.StartedAt,
	}
	if snap.CompletedAt != nil {
		e.CompletedAt = *snap.CompletedAt
	}
	if snap.Result != nil {
		b, err := json.Marshal(snap.Result)
		if err != nil {
			return storage.TaskEntry{}, fmt.Errorf("archive task %s: encode result: %w", snap.TaskID, err)
		}
		e.ResultJSON = string(b)
	}
	return e, nil
}
