package engine

import (
	"context"
	"fmt"
	"runtime/debug"

	logx "nightingale/pkg/logx"
)

// execute runs one admitted task to completion. The running-set slot is
// released on every path.
func (s *Service) execute(ctx context.Context, cancel context.CancelFunc, rec *record, e queueEntry) {
	defer s.release(rec.id)
	defer cancel()

	start := s.now()
	if !rec.markRunning(start) {
		return
	}
	queueDelay := max(start.Sub(e.enqueuedAt), 0)

	s.log.Debug("task started",
		logx.String("task_id", rec.id),
		logx.String("type", string(rec.typ)),
		logx.Duration("queue_delay", queueDelay),
	)
	s.publish(EventStarted, start, TaskEvent{ID: rec.id, Type: rec.typ, OwnerID: rec.owner, QueueDelay: queueDelay})

	var (
		result any
		err    error
	)
	if h, ok := s.reg.Lookup(rec.typ); !ok {
		err = fmt.Errorf("unknown task type: %s", rec.typ)
	} else {
		job := &Job{ID: rec.id, Type: rec.typ, OwnerID: rec.owner, Payload: rec.payload, rec: rec}
		result, err = s.invoke(ctx, h, job)
	}

	end := s.now()
	dur := end.Sub(start)

	var applied bool
	if err != nil {
		applied = rec.finish(StatusFailed, nil, err.Error(), end)
	} else {
		applied = rec.finish(StatusCompleted, result, "", end)
	}
	if !applied {
		s.log.Debug("task outcome discarded: already terminal",
			logx.String("task_id", rec.id),
			logx.String("status", string(rec.currentStatus())),
			logx.Duration("dur", dur),
		)
		return
	}

	snap := rec.snapshot()
	ev := TaskEvent{ID: rec.id, Type: rec.typ, OwnerID: rec.owner, QueueDelay: queueDelay, Duration: dur, Task: &snap}
	if err != nil {
		s.failed.Add(1)
		ev.Error = err.Error()
		s.log.Warn("task failed",
			logx.String("task_id", rec.id),
			logx.String("type", string(rec.typ)),
			logx.Err(err),
			logx.Duration("dur", dur),
		)
		s.publish(EventFailed, end, ev)
	} else {
		s.completed.Add(1)
		s.log.Info("task completed",
			logx.String("task_id", rec.id),
			logx.String("type", string(rec.typ)),
			logx.Duration("queue_delay", queueDelay),
			logx.Duration("dur", dur),
		)
		s.publish(EventCompleted, end, ev)
	}
	s.archiveAsync(snap)
}

// invoke calls h and turns a panic into an error.
func (s *Service) invoke(ctx context.Context, h Handler, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("task handler panicked",
				logx.String("task_id", job.ID),
				logx.String("type", string(job.Type)),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	return h(ctx, job)
}

func (s *Service) release(id string) {
	s.running.remove(id)
	s.signal()
}
