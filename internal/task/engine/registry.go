package engine

import (
	"context"
	"slices"
	"sync"
)

// Handler performs one task. ctx is cancelled when the task is cancelled or
// the engine stops; honoring it is optional since cancellation never
// preempts. The returned value becomes the task result, and a non-nil
// error's message is stored verbatim.
//
// Handlers run concurrently and must not share mutable state unguarded.
type Handler func(ctx context.Context, job *Job) (any, error)

// Job is the handler's view of a running task.
type Job struct {
	ID      string
	Type    Type
	OwnerID string
	Payload Payload

	rec *record
}

// SetProgress records a milestone (0..100). Progress never moves backwards
// and is ignored once the task is terminal.
func (j *Job) SetProgress(p int) {
	if j == nil || j.rec == nil {
		return
	}
	j.rec.setProgress(p)
}

// Registry maps task types to handlers.
type Registry struct {
	mu sync.RWMutex
	m  map[Type]Handler
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[Type]Handler)}
}

// Register installs h for t, replacing any previous handler.
func (r *Registry) Register(t Type, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == nil {
		delete(r.m, t)
		return
	}
	r.m[t] = h
}

func (r *Registry) Lookup(t Type) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.m[t]
	return h, ok
}

// Types returns the registered types, sorted.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	out := make([]Type, 0, len(r.m))
	for t := range r.m {
		out = append(out, t)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}
