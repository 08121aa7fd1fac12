package engine

import (
	"context"
	"runtime/debug"
	"time"

	logx "nightingale/pkg/logx"
)

// dispatchLoop is the only place tasks are admitted. It admits as many as
// the running set allows, then sleeps until a wakeup (submit, cancel, slot
// release) or the poll interval.
func (s *Service) dispatchLoop(ctx context.Context) error {
	for {
		for s.admitSafely(ctx) {
		}

		t := time.NewTimer(s.config().PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-s.wake:
		case <-t.C:
		}
		t.Stop()
	}
}

// admitSafely runs one admission step. A panic is logged and treated as "no
// progress" so the loop falls back to its poll interval.
func (s *Service) admitSafely(ctx context.Context) (progressed bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("dispatcher iteration panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			progressed = false
		}
	}()
	return s.admitNext(ctx)
}

// admitNext pops the queue head and starts it if a slot is free. It reports
// whether the queue moved.
func (s *Service) admitNext(ctx context.Context) bool {
	if ctx.Err() != nil || s.running.full() {
		return false
	}
	e, ok := s.queue.pop()
	if !ok {
		return false
	}
	rec := s.store.get(e.id)
	if rec == nil {
		s.log.Debug("dispatcher skipped missing task", logx.String("task_id", e.id))
		return true
	}
	if st := rec.currentStatus(); st != StatusPending {
		s.log.Debug("dispatcher skipped task", logx.String("task_id", e.id), logx.String("status", string(st)))
		return true
	}
	if !s.running.tryAdd(e.id) {
		// Limit lowered concurrently; retry later.
		s.queue.pushFront(e)
		return false
	}
	s.launch(ctx, rec, e)
	return true
}

func (s *Service) launch(ctx context.Context, rec *record, e queueEntry) {
	cfg := s.config()
	tctx, cancel := context.WithCancel(ctx)
	if cfg.HandlerTimeout > 0 {
		var cancelTimeout context.CancelFunc
		tctx, cancelTimeout = context.WithTimeout(tctx, cfg.HandlerTimeout)
		parent := cancel
		cancel = func() {
			cancelTimeout()
			parent()
		}
	}
	if !rec.attach(cancel) {
		// Cancelled between pop and admission.
		cancel()
		s.release(rec.id)
		return
	}

	run := func(context.Context) { s.execute(tctx, cancel, rec, e) }
	if sup := s.Supervisor(); sup != nil {
		sup.Go0("executor", run)
		return
	}
	go run(tctx)
}
