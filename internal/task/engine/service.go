package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"nightingale/internal/eventbus"
	rtsup "nightingale/internal/runtime/supervisor"
	logx "nightingale/pkg/logx"
)

const (
	msgCreated   = "Task created successfully"
	msgCancelled = "Task cancelled successfully"

	warnThrottleEvery = 5 * time.Second
	archiveTimeout    = 2 * time.Second
)

// Archiver receives the final snapshot of every task that reaches a terminal
// state. Failures are logged and never affect the task.
type Archiver interface {
	ArchiveTask(ctx context.Context, snap Snapshot) error
}

// Service is the in-process task scheduler. One instance owns every task
// collection; all methods are safe for concurrent use.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	reg     *Registry
	archive Archiver
	now     func() time.Time
	newID   func() string

	store   *taskStore
	queue   *waitQueue
	running *runningSet
	users   *userIndex

	wake chan struct{}

	sup     *rtsup.Supervisor
	reaper  *cron.Cron
	stopped bool

	// archiving tracks in-flight archive writes. Once archiveClosed is set
	// by Stop, new writes are dropped.
	archiving     sync.WaitGroup
	archiveClosed bool

	submitted atomic.Uint64
	rejected  atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
	reaped    atomic.Uint64

	lastRejectWarnAt atomic.Int64
}

type Option func(*Service)

// WithRegistry shares a handler registry built elsewhere.
func WithRegistry(r *Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.reg = r
		}
	}
}

func WithArchiver(a Archiver) Option { return func(s *Service) { s.archive = a } }

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the uuid task id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	s := &Service{
		cfg:     cfg,
		log:     log,
		bus:     bus,
		reg:     NewRegistry(),
		now:     time.Now,
		newID:   uuid.NewString,
		store:   newTaskStore(),
		queue:   &waitQueue{},
		running: newRunningSet(cfg.MaxConcurrentTasks),
		users:   newUserIndex(),
		wake:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Registry returns the handler registry used by the executor.
func (s *Service) Registry() *Registry { return s.reg }

// Register is shorthand for Registry().Register.
func (s *Service) Register(t Type, h Handler) { s.reg.Register(t, h) }

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Supervisor returns the engine supervisor (nil when not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Apply updates limits at runtime. A lower concurrency limit never evicts
// running tasks; it only delays new admissions.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	running := s.sup != nil
	s.mu.Unlock()

	s.running.setLimit(cfg.MaxConcurrentTasks)
	if running && prev.SweepInterval != cfg.SweepInterval {
		s.restartReaper(cfg.SweepInterval)
	}
	s.signal()

	if prev != cfg {
		s.log.Info("task engine reconfigured",
			logx.Int("max_concurrent_tasks", cfg.MaxConcurrentTasks),
			logx.Int("max_queue_size", cfg.MaxQueueSize),
			logx.Duration("poll_interval", cfg.PollInterval),
			logx.Duration("retention", cfg.RetentionPeriod),
			logx.Duration("sweep_interval", cfg.SweepInterval),
		)
	}
}

// Start launches the dispatcher and the reaper. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.sup != nil {
		s.mu.Unlock()
		return
	}
	cfg := s.cfg
	s.stopped = false
	s.archiveClosed = false
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// A failing task must never take the process down.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	sup.GoRestart("dispatcher", s.dispatchLoop,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(cfg.PollInterval, 10*time.Second),
	)
	s.restartReaper(cfg.SweepInterval)

	s.log.Info("task engine started",
		logx.Int("max_concurrent_tasks", cfg.MaxConcurrentTasks),
		logx.Int("max_queue_size", cfg.MaxQueueSize),
		logx.Duration("poll_interval", cfg.PollInterval),
		logx.Any("handlers", s.reg.Types()),
	)
}

// Stop halts the dispatcher and reaper, cancels handler contexts and waits
// for executors until ctx expires. Submit fails with ErrStopped afterwards.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	sup := s.sup
	reaper := s.reaper
	s.sup = nil
	s.reaper = nil
	s.stopped = true
	s.mu.Unlock()

	if reaper != nil {
		select {
		case <-reaper.Stop().Done():
		case <-ctx.Done():
		}
	}
	if sup != nil {
		if err := sup.Stop(ctx); err != nil {
			s.log.Warn("task engine stop incomplete", logx.Err(err))
		}
	}
	if !s.drainArchive(ctx) {
		s.log.Warn("task archive writes still pending at stop")
		return
	}
	if sup != nil {
		s.log.Info("task engine stopped")
	}
}

// drainArchive refuses new archive writes and waits for pending ones.
func (s *Service) drainArchive(ctx context.Context) bool {
	s.mu.Lock()
	s.archiveClosed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.archiving.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Submit validates and enqueues a task. A full queue yields *CapacityError
// and creates nothing.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (CreationResult, error) {
	_ = ctx
	if !req.Type.Valid() {
		return CreationResult{}, fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
	}
	if req.Priority == 0 {
		req.Priority = PriorityNormal
	}
	if !req.Priority.Valid() {
		return CreationResult{}, fmt.Errorf("%w: %d", ErrInvalidPriority, req.Priority)
	}

	s.mu.Lock()
	cfg := s.cfg
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return CreationResult{}, ErrStopped
	}

	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if req.OwnerID == "" {
		req.OwnerID = cfg.AnonymousOwner
	}
	req.Payload = req.Payload.Clone()

	now := s.now()
	rec := newRecord(s.newID(), req, now)

	pos, ok := s.queue.pushIfRoom(queueEntry{id: rec.id, enqueuedAt: now}, cfg.MaxQueueSize, func() {
		s.store.put(rec)
		s.users.add(rec.owner, rec.id)
	})
	if !ok {
		s.rejected.Add(1)
		s.publish(EventRejected, now, TaskEvent{Type: req.Type, OwnerID: req.OwnerID})
		if s.shouldWarn(&s.lastRejectWarnAt, now) {
			s.log.Warn("task rejected: queue full",
				logx.String("type", string(req.Type)),
				logx.String("owner", req.OwnerID),
				logx.Int("queue_size", pos),
				logx.Int("max_queue_size", cfg.MaxQueueSize),
				logx.Uint64("rejected_total", s.rejected.Load()),
			)
		}
		return CreationResult{}, &CapacityError{QueueSize: pos, MaxQueueSize: cfg.MaxQueueSize}
	}

	s.submitted.Add(1)
	s.publish(EventSubmitted, now, TaskEvent{ID: rec.id, Type: rec.typ, OwnerID: rec.owner})
	s.signal()
	s.log.Debug("task submitted",
		logx.String("task_id", rec.id),
		logx.String("type", string(rec.typ)),
		logx.String("owner", rec.owner),
		logx.Int("queue_position", pos),
	)

	return CreationResult{
		TaskID:               rec.id,
		Status:               StatusPending,
		QueuePosition:        pos,
		EstimatedWaitMinutes: pos * cfg.AverageTaskMinutes,
		Message:              msgCreated,
	}, nil
}

// lookup resolves id and enforces ownership. An empty requester skips the
// ownership check.
func (s *Service) lookup(id, requester string) (*record, error) {
	rec := s.store.get(id)
	if rec == nil {
		return nil, ErrNotFound
	}
	if requester = strings.TrimSpace(requester); requester != "" && requester != rec.owner {
		return nil, ErrAccessDenied
	}
	return rec, nil
}

func (s *Service) snapshotOf(rec *record) Snapshot {
	snap := rec.snapshot()
	if snap.Status == StatusPending {
		snap.QueuePosition = s.queue.position(rec.id)
	}
	return snap
}

// Status returns the current snapshot of a task.
func (s *Service) Status(ctx context.Context, taskID, requesterID string) (Snapshot, error) {
	_ = ctx
	rec, err := s.lookup(taskID, requesterID)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshotOf(rec), nil
}

// ListUserTasks returns the owner's tasks in submission order. Ids whose
// record was already reaped are skipped.
func (s *Service) ListUserTasks(ctx context.Context, ownerID string) []Snapshot {
	_ = ctx
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		ownerID = s.config().AnonymousOwner
	}
	ids := s.users.ids(ownerID)
	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		if rec := s.store.get(id); rec != nil {
			out = append(out, s.snapshotOf(rec))
		}
	}
	return out
}

// Cancel moves a pending or running task to cancelled. A running handler is
// not interrupted: its context is cancelled and its eventual outcome is
// discarded.
func (s *Service) Cancel(ctx context.Context, taskID, requesterID string) (string, error) {
	_ = ctx
	rec, err := s.lookup(taskID, requesterID)
	if err != nil {
		return "", err
	}
	now := s.now()
	prev, cancel, ok := rec.markCancelled(now)
	if !ok {
		return "", &AlreadyTerminalError{Status: prev}
	}
	s.queue.remove(taskID)
	s.running.remove(taskID)
	if cancel != nil {
		cancel()
	}
	s.signal()

	s.cancelled.Add(1)
	snap := rec.snapshot()
	s.publish(EventCancelled, now, TaskEvent{ID: rec.id, Type: rec.typ, OwnerID: rec.owner, Task: &snap})
	s.log.Info("task cancelled",
		logx.String("task_id", rec.id),
		logx.String("type", string(rec.typ)),
		logx.String("was", string(prev)),
	)
	s.archiveAsync(snap)
	return msgCancelled, nil
}

// Stats summarizes the scheduler.
func (s *Service) Stats(ctx context.Context) QueueStats {
	_ = ctx
	cfg := s.config()
	counts := make(map[Status]int, len(Statuses()))
	for _, st := range Statuses() {
		counts[st] = 0
	}
	total := 0
	for _, rec := range s.store.all() {
		counts[rec.currentStatus()]++
		total++
	}
	ql := s.queue.len()
	return QueueStats{
		Total:                total,
		CountsByStatus:       counts,
		QueueSize:            ql,
		RunningCount:         s.running.len(),
		MaxConcurrentTasks:   cfg.MaxConcurrentTasks,
		MaxQueueSize:         cfg.MaxQueueSize,
		EstimatedWaitMinutes: ql * cfg.AverageTaskMinutes,
	}
}

// Diagnostics returns limits and lifetime counters.
func (s *Service) Diagnostics() Diagnostics {
	s.mu.Lock()
	cfg := s.cfg
	running := s.sup != nil
	s.mu.Unlock()
	return Diagnostics{
		Running:            running,
		MaxConcurrentTasks: cfg.MaxConcurrentTasks,
		MaxQueueSize:       cfg.MaxQueueSize,
		PollInterval:       cfg.PollInterval,
		RetentionPeriod:    cfg.RetentionPeriod,
		SweepInterval:      cfg.SweepInterval,
		HandlerTimeout:     cfg.HandlerTimeout,
		Handlers:           s.reg.Types(),
		Stored:             s.store.len(),
		QueueLen:           s.queue.len(),
		InFlight:           s.running.len(),
		Submitted:          s.submitted.Load(),
		Rejected:           s.rejected.Load(),
		Completed:          s.completed.Load(),
		Failed:             s.failed.Load(),
		Cancelled:          s.cancelled.Load(),
		Reaped:             s.reaped.Load(),
	}
}

// signal wakes the dispatcher without blocking.
func (s *Service) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) archiveAsync(snap Snapshot) {
	if s.archive == nil {
		return
	}
	s.mu.Lock()
	if s.archiveClosed {
		s.mu.Unlock()
		s.log.Debug("task archive skipped: engine stopped", logx.String("task_id", snap.TaskID))
		return
	}
	s.archiving.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.archiving.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("task archive panic", logx.String("task_id", snap.TaskID), logx.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.archive.ArchiveTask(ctx, snap); err != nil {
			s.log.Warn("task archive failed", logx.String("task_id", snap.TaskID), logx.Err(err))
		}
	}()
}

func (s *Service) shouldWarn(last *atomic.Int64, now time.Time) bool {
	prev := last.Load()
	n := now.UnixNano()
	if prev != 0 && n-prev < int64(warnThrottleEvery) {
		return false
	}
	return last.CompareAndSwap(prev, n)
}
