package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "nightingale/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	retention  time.Duration
	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Archive, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, retention: cfg.Retention, pruneEvery: 500}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Info("archive opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendTask upserts by id; a task is archived once per terminal transition.
func (s *sqliteStore) AppendTask(ctx context.Context, e TaskEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = time.Now()
	}
	var started any
	if e.StartedAt != nil {
		started = e.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(id, type, owner_id, priority, status, progress, err, result, created_at, started_at, completed_at, completed_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, progress=excluded.progress, err=excluded.err,
		   result=excluded.result, started_at=excluded.started_at, completed_at=excluded.completed_at, completed_ms=excluded.completed_ms`,
		e.ID, e.Type, e.OwnerID, e.Priority, e.Status, e.Progress, nullStr(e.Error), nullStr(e.ResultJSON),
		e.CreatedAt.UTC().Format(time.RFC3339Nano), started,
		e.CompletedAt.UTC().Format(time.RFC3339Nano), e.CompletedAt.UnixMilli(),
	)
	if err != nil {
		return err
	}
	if s.retention > 0 && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		if err := s.pruneExpired(pctx, time.Now()); err != nil {
			s.log.Debug("archive prune failed", logx.Err(err))
		}
		cancel()
	}
	return nil
}

func (s *sqliteStore) pruneExpired(ctx context.Context, now time.Time) error {
	if s == nil || s.db == nil || s.retention <= 0 {
		return nil
	}
	cutoff := now.Add(-s.retention).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE completed_ms < ?`, cutoff)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Debug("archive pruned", logx.Int64("rows", n))
	}
	return nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
