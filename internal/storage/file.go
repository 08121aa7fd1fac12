package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "nightingale/pkg/logx"
)

// fileStore appends one JSON object per archived task to
// <prefix>.tasks.jsonl.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	f    *os.File
	enc  *json.Encoder
}

func openFile(cfg Config, log logx.Logger) (Archive, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("archive.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	tasksPath := filepath.Join(dir, base) + ".tasks.jsonl"
	f, err := os.OpenFile(tasksPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Info("archive opened", logx.String("path", tasksPath))
	return &fileStore{log: log, path: tasksPath, f: f, enc: json.NewEncoder(f)}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	s.enc = nil
	return err
}

func (s *fileStore) AppendTask(ctx context.Context, e TaskEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("archive file closed")
	}
	return s.enc.Encode(e)
}
