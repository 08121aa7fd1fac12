package engine

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	logx "nightingale/pkg/logx"
)

// Sweep deletes terminal tasks that completed more than RetentionPeriod
// before now and returns how many were removed. Pending and running tasks
// are never touched.
func (s *Service) Sweep(now time.Time) int {
	cfg := s.config()
	cutoff := now.Add(-cfg.RetentionPeriod)

	n := 0
	for _, rec := range s.store.all() {
		if !rec.expired(cutoff) {
			continue
		}
		s.store.delete(rec.id)
		if !cfg.KeepOwnerIndex {
			s.users.forget(rec.owner, rec.id)
		}
		n++
	}
	if n == 0 {
		return 0
	}
	s.reaped.Add(uint64(n))
	s.publish(EventReaped, now, TaskEvent{Count: n})
	s.log.Info("expired tasks removed", logx.Int("count", n), logx.Duration("retention", cfg.RetentionPeriod))
	return n
}

// restartReaper replaces the sweep schedule. cron's Recover wrapper keeps a
// panicking sweep from killing the schedule.
func (s *Service) restartReaper(every time.Duration) {
	cl := cronLogger{log: s.log.With(logx.String("loop", "reaper"))}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(cron.Every(every), cron.FuncJob(func() { s.Sweep(s.now()) }))

	s.mu.Lock()
	if s.sup == nil {
		s.mu.Unlock()
		return
	}
	prev := s.reaper
	s.reaper = c
	s.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	c.Start()
	s.log.Debug("reaper scheduled", logx.Duration("every", every))
}

// cronLogger adapts logx to cron.Logger. cron's info chatter goes to trace.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
