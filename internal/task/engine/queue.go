package engine

import (
	"slices"
	"sync"
	"time"
)

type queueEntry struct {
	id         string
	enqueuedAt time.Time
}

// waitQueue is the FIFO of admitted-but-not-started task ids.
type waitQueue struct {
	mu    sync.Mutex
	items []queueEntry
}

// pushIfRoom appends e when fewer than limit entries are queued. onAccept
// runs under the queue lock before the push so the record is visible to the
// dispatcher first. It returns the 1-based position of e, or the current
// length when rejected.
func (q *waitQueue) pushIfRoom(e queueEntry, limit int, onAccept func()) (pos int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= limit {
		return len(q.items), false
	}
	if onAccept != nil {
		onAccept()
	}
	q.items = append(q.items, e)
	return len(q.items), true
}

func (q *waitQueue) pop() (queueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return queueEntry{}, false
	}
	e := q.items[0]
	q.items[0] = queueEntry{}
	q.items = q.items[1:]
	return e, true
}

// pushFront returns an entry the dispatcher popped but could not admit.
func (q *waitQueue) pushFront(e queueEntry) {
	q.mu.Lock()
	q.items = slices.Insert(q.items, 0, e)
	q.mu.Unlock()
}

func (q *waitQueue) remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexLocked(id)
	if i < 0 {
		return false
	}
	q.items = slices.Delete(q.items, i, i+1)
	return true
}

// position is 1-based; 0 means not queued.
func (q *waitQueue) position(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.indexLocked(id) + 1
}

func (q *waitQueue) indexLocked(id string) int {
	return slices.IndexFunc(q.items, func(e queueEntry) bool { return e.id == id })
}

func (q *waitQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// runningSet holds the ids of admitted tasks. Its size never exceeds limit
// at admission time; lowering the limit blocks new admissions until the set
// drains below it.
type runningSet struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	limit int
}

func newRunningSet(limit int) *runningSet {
	return &runningSet{ids: make(map[string]struct{}), limit: limit}
}

func (r *runningSet) tryAdd(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ids) >= r.limit {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

func (r *runningSet) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; !ok {
		return false
	}
	delete(r.ids, id)
	return true
}

func (r *runningSet) full() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids) >= r.limit
}

func (r *runningSet) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func (r *runningSet) setLimit(n int) {
	r.mu.Lock()
	r.limit = n
	r.mu.Unlock()
}
