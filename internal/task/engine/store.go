package engine

import (
	"context"
	"sync"
	"time"
)

// record is the authoritative state of one task. Everything below mu is
// guarded by it; id, typ, owner, priority and createdAt never change.
type record struct {
	id        string
	typ       Type
	owner     string
	priority  Priority
	payload   Payload
	createdAt time.Time

	mu          sync.Mutex
	status      Status
	progress    int
	result      any
	err         string
	startedAt   time.Time
	completedAt time.Time
	cancel      context.CancelFunc
}

func newRecord(id string, req SubmitRequest, now time.Time) *record {
	return &record{
		id:        id,
		typ:       req.Type,
		owner:     req.OwnerID,
		priority:  req.Priority,
		payload:   req.Payload,
		createdAt: now,
		status:    StatusPending,
	}
}

func (r *record) snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		TaskID:    r.id,
		Type:      r.typ,
		Status:    r.status,
		Progress:  r.progress,
		Result:    r.result,
		Error:     r.err,
		CreatedAt: r.createdAt,
		Done:      r.status.Terminal(),
		OwnerID:   r.owner,
		Priority:  r.priority,
	}
	if !r.startedAt.IsZero() {
		t := r.startedAt
		s.StartedAt = &t
	}
	if !r.completedAt.IsZero() {
		t := r.completedAt
		s.CompletedAt = &t
	}
	return s
}

func (r *record) currentStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// attach stores the handler cancel func. It reports false when the task
// went terminal before it could start.
func (r *record) attach(cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return false
	}
	r.cancel = cancel
	return true
}

// markRunning moves a pending task to running.
func (r *record) markRunning(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusPending {
		return false
	}
	r.status = StatusRunning
	r.progress = 0
	r.startedAt = now
	return true
}

// setProgress clamps p to 0..100 and never moves backwards. Writes after a
// terminal transition are ignored.
func (r *record) setProgress(p int) {
	p = max(0, min(p, 100))
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusRunning || p < r.progress {
		return
	}
	r.progress = p
}

// finish applies a handler outcome unless the task is already terminal
// (typically cancelled while the handler ran). It reports whether the
// outcome was applied.
func (r *record) finish(status Status, result any, errMsg string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return false
	}
	r.status = status
	r.completedAt = now
	r.cancel = nil
	if status == StatusCompleted {
		r.result = result
		r.progress = 100
	} else {
		r.err = errMsg
	}
	return true
}

// markCancelled moves a live task to cancelled and returns the handler
// cancel func (nil if the handler never started). When the task is already
// terminal it returns the current status and ok=false.
func (r *record) markCancelled(now time.Time) (prev Status, cancel context.CancelFunc, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return r.status, nil, false
	}
	prev = r.status
	r.status = StatusCancelled
	r.completedAt = now
	cancel = r.cancel
	r.cancel = nil
	return prev, cancel, true
}

// expired reports whether the record finished before cutoff.
func (r *record) expired(cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.Terminal() && !r.completedAt.IsZero() && r.completedAt.Before(cutoff)
}

// taskStore maps task id to record.
type taskStore struct {
	mu sync.RWMutex
	m  map[string]*record
}

func newTaskStore() *taskStore {
	return &taskStore{m: make(map[string]*record)}
}

func (s *taskStore) put(r *record) {
	s.mu.Lock()
	s.m[r.id] = r
	s.mu.Unlock()
}

func (s *taskStore) get(id string) *record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[id]
}

func (s *taskStore) delete(id string) {
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
}

func (s *taskStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// all returns the records present at call time. Callers lock each record
// individually.
func (s *taskStore) all() []*record {
	s.mu.RLock()
	out := make([]*record, 0, len(s.m))
	for _, r := range s.m {
		out = append(out, r)
	}
	s.mu.RUnlock()
	return out
}

// userIndex maps owner id to the ids they submitted, oldest first.
type userIndex struct {
	mu sync.RWMutex
	m  map[string][]string
}

func newUserIndex() *userIndex {
	return &userIndex{m: make(map[string][]string)}
}

func (u *userIndex) add(owner, id string) {
	u.mu.Lock()
	u.m[owner] = append(u.m[owner], id)
	u.mu.Unlock()
}

func (u *userIndex) ids(owner string) []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return append([]string(nil), u.m[owner]...)
}

func (u *userIndex) forget(owner, id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	ids := u.m[owner]
	for i, v := range ids {
		if v == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(u.m, owner)
		return
	}
	u.m[owner] = ids
}
