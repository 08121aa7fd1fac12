package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sethvargo/go-retry"

	logx "nightingale/pkg/logx"
)

const (
	reloadDebounce  = 250 * time.Millisecond
	validateTimeout = 5 * time.Second
	reopenBase      = 250 * time.Millisecond
	reopenMax       = 5 * time.Second
)

const watchedOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod

// Watch reloads the config whenever its file changes, until ctx ends. Edits
// that fail to parse or validate are logged and never committed. The
// directory is watched so editors that replace the file are seen too; a
// broken watcher is reopened with backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	log := m.logger().With(logx.String("path", m.path))

	var d debouncer
	defer d.stop()
	reload := func() { d.trigger(reloadDebounce, func() { m.reload(ctx) }) }

	for ctx.Err() == nil {
		var w *fsnotify.Watcher
		err := retry.Do(ctx, reopenBackoff(), func(context.Context) error {
			var err error
			if w, err = openWatcher(dir); err != nil {
				log.Warn("config watch init failed", logx.Err(err))
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			return nil
		}
		log.Debug("config watcher started")

		m.consume(ctx, w, log, reload)
		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("config watcher stopped; reopening", logx.Duration("after", reopenBase))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reopenBase):
		}
	}
	return nil
}

func reopenBackoff() retry.Backoff {
	b := retry.NewExponential(reopenBase)
	b = retry.WithJitterPercent(25, b)
	return retry.WithCappedDuration(reopenMax, b)
}

func openWatcher(dir string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return w, nil
}

// consume forwards relevant events to reload until ctx ends or w breaks.
func (m *ConfigManager) consume(ctx context.Context, w *fsnotify.Watcher, log logx.Logger, reload func()) {
	file := filepath.Base(m.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&watchedOps != 0 && strings.EqualFold(filepath.Base(ev.Name), file) {
				log.Debug("config change detected", logx.String("op", ev.Op.String()))
				reload()
			}
		case err, ok := <-w.Errors:
			switch {
			case !ok, errors.Is(err, fsnotify.ErrClosed):
				return
			case err == nil:
			case errors.Is(err, fsnotify.ErrEventOverflow):
				log.Warn("config watch overflow; forcing reload", logx.Err(err))
				reload()
			default:
				log.Warn("config watch error", logx.Err(err))
			}
		}
	}
}

// reload commits and publishes the file if it parses, validates and differs
// from the committed config.
func (m *ConfigManager) reload(ctx context.Context) {
	log := m.logger().With(logx.String("path", m.path))
	cfg, err := m.Parse()
	if err != nil {
		log.Warn("config parse failed", logx.Err(err))
		return
	}
	h := hashConfig(cfg)
	if h != 0 && h == m.committedHash() {
		log.Debug("config unchanged; skipping publish")
		return
	}

	vctx, cancel := context.WithTimeout(ctx, validateTimeout)
	err = m.validate(vctx, cfg)
	cancel()
	if err != nil {
		log.Warn("config rejected", logx.Err(err))
		return
	}

	m.Commit(cfg)
	m.publish(cfg)
	log.Debug("config published", logx.String("hash", fmt.Sprintf("%x", h)))
}

// debouncer runs only the last function triggered within the delay.
type debouncer struct {
	mu sync.Mutex
	t  *time.Timer
}

func (d *debouncer) trigger(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t != nil {
		d.t.Stop()
	}
	d.t = time.AfterFunc(delay, fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t != nil {
		d.t.Stop()
	}
}
