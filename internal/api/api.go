// Package api exposes the task engine over HTTP.
//
// Routes:
//
//	POST   /api/tasks         submit a task (202, 400, 429)
//	GET    /api/tasks         list the caller's tasks
//	GET    /api/tasks/{id}    task status (200, 403, 404)
//	DELETE /api/tasks/{id}    cancel a task (200, 403, 404, 409)
//	GET    /api/queue/stats   scheduler summary
//	GET    /health            engine diagnostics
//	       /debug/pprof/*     profiler, when enabled
package api

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/cors"

	"nightingale/internal/task/engine"
	logx "nightingale/pkg/logx"
)

// Scheduler is the subset of *engine.Service the HTTP layer needs.
type Scheduler interface {
	Submit(ctx context.Context, req engine.SubmitRequest) (engine.CreationResult, error)
	Status(ctx context.Context, taskID, requesterID string) (engine.Snapshot, error)
	ListUserTasks(ctx context.Context, ownerID string) []engine.Snapshot
	Cancel(ctx context.Context, taskID, requesterID string) (string, error)
	Stats(ctx context.Context) engine.QueueStats
	Diagnostics() engine.Diagnostics
}

// Options is the reloadable part of the HTTP layer.
type Options struct {
	Auth           AuthOptions
	RateLimit      RateLimitOptions
	AllowedOrigins []string

	Profiler      bool
	ProfilerToken string

	// MaxBodyBytes caps request bodies. Zero means 1 MiB.
	MaxBodyBytes int64
}

const defaultMaxBodyBytes = 1 << 20

// HealthFunc adds entries to the /health body.
type HealthFunc func() map[string]any

// API serves the task routes. Options can be swapped at runtime with Apply.
type API struct {
	sched  Scheduler
	log    logx.Logger
	health HealthFunc
	now    func() time.Time

	st atomic.Pointer[apiState]
}

type apiState struct {
	opts    Options
	auth    *authenticator
	limiter *ownerLimiter
	cors    func(http.Handler) http.Handler // nil when no origin is allowed
}

// Option customizes New.
type Option func(*API)

// WithHealth attaches extra /health entries such as supervisor snapshots.
func WithHealth(fn HealthFunc) Option { return func(a *API) { a.health = fn } }

// WithClock overrides the time source for token validation and rate limits.
func WithClock(now func() time.Time) Option {
	return func(a *API) {
		if now != nil {
			a.now = now
		}
	}
}

func New(sched Scheduler, log logx.Logger, opts Options, extra ...Option) *API {
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &API{sched: sched, log: log, now: time.Now}
	for _, o := range extra {
		if o != nil {
			o(a)
		}
	}
	a.Apply(opts)
	return a
}

// Apply swaps auth, rate limit, CORS and profiler settings. Rate limiter
// state is kept when its settings did not change.
func (a *API) Apply(opts Options) {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	next := &apiState{
		opts: opts,
		auth: newAuthenticator(opts.Auth, a.now),
		cors: newCORS(opts.AllowedOrigins),
	}
	if prev := a.st.Load(); prev != nil && prev.opts.RateLimit == opts.RateLimit {
		next.limiter = prev.limiter
	} else {
		next.limiter = newOwnerLimiter(opts.RateLimit, a.now)
	}
	a.st.Store(next)
}

// newCORS builds the CORS middleware for origins. Credentials are only
// allowed for an explicit origin list, never together with "*".
func newCORS(origins []string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	wildcard := false
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
			continue
		case "*":
			wildcard = true
		}
		allowed = append(allowed, o)
	}
	if len(allowed) == 0 {
		return nil
	}
	if wildcard {
		allowed = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", HeaderUserID},
		AllowCredentials: !wildcard,
		MaxAge:           600,
	})
}

func (a *API) state() *apiState { return a.st.Load() }
