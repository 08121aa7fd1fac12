package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nightingale/internal/eventbus"
	"nightingale/internal/task/engine"
	logx "nightingale/pkg/logx"
)

// newEngine returns an engine that is never started, so every accepted
// task stays pending and queue arithmetic is deterministic.
func newEngine(t *testing.T, cfg engine.Config) *engine.Service {
	t.Helper()
	s := engine.New(cfg, logx.Nop(), eventbus.New())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func newServer(t *testing.T, sched Scheduler, opts Options, extra ...Option) (*API, *httptest.Server) {
	t.Helper()
	a := New(sched, logx.Nop(), opts, extra...)
	srv := httptest.NewServer(a.Routes())
	t.Cleanup(srv.Close)
	return a, srv
}

type call struct {
	method  string
	path    string
	body    string
	headers map[string]string
}

func do(t *testing.T, srv *httptest.Server, c call) (*http.Response, map[string]any) {
	t.Helper()
	var body *bytes.Reader
	if c.body != "" {
		body = bytes.NewReader([]byte(c.body))
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(c.method, srv.URL+c.path, body)
	require.NoError(t, err)
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func as(user string) map[string]string { return map[string]string{HeaderUserID: user} }

const audioBody = `{"type":"audio_generation","payload":{"description":"rain on a tin roof","duration":30}}`

func TestCreateAndGetTask(t *testing.T) {
	t.Parallel()

	eng := newEngine(t, engine.Config{AverageTaskMinutes: 2})
	_, srv := newServer(t, eng, Options{})

	resp, body := do(t, srv, call{method: http.MethodPost, path: "/api/tasks", body: audioBody, headers: as("alice")})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	assert.EqualValues(t, 1, body["queue_position"])
	assert.EqualValues(t, 2, body["estimated_wait_minutes"])
	assert.Equal(t, "Task created successfully", body["message"])
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))
	id, _ := body["task_id"].(string)
	require.NotEmpty(t, id)

	resp, body = do(t, srv, call{method: http.MethodGet, path: "/api/tasks/" + id, headers: as("alice")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, body["task_id"])
	assert.Equal(t, "audio_generation", body["task_type"])
	assert.Equal(t, "alice", body["user_id"])
	assert.Equal(t, "normal", body["priority"])
	assert.Equal(t, false, body["done"])

	resp, body = do(t, srv, call{method: http.MethodGet, path: "/api/tasks/" + id, headers: as("bob")})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Access denied", body["error"])
	assert.NotEmpty(t, body["trace_id"])

	resp, body = do(t, srv, call{method: http.MethodGet, path: "/api/tasks/nope", headers: as("alice")})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Task not found", body["error"])

	// Anonymous reads are not scoped to an owner.
	resp, _ = do(t, srv, call{method: http.MethodGet, path: "/api/tasks/" + id})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateTaskValidation(t *testing.T) {
	t.Parallel()

	eng := newEngine(t, engine.Config{})
	_, srv := newServer(t, eng, Options{})

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "malformed", body: `{"type":`, want: "Invalid request format"},
		{name: "missing type", body: `{"payload":{}}`, want: "Invalid request: type is required"},
		{name: "unknown type", body: `{"type":"video_generation"}`, want: "Unknown task type: video_generation"},
		{name: "bad priority name", body: `{"type":"tts_generation","priority":"asap"}`, want: "Invalid priority"},
		{name: "priority out of range", body: `{"type":"tts_generation","priority":9}`, want: "Invalid priority"},
		{name: "fractional priority", body: `{"type":"tts_generation","priority":2.5}`, want: "Invalid priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, srv, call{method: http.MethodPost, path: "/api/tasks", body: tt.body})
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.want, body["error"])
		})
	}

	assert.Zero(t, eng.Stats(context.Background()).Total, "rejected requests create nothing")
}

func TestCreateTaskPriority(t *testing.T) {
	t.Parallel()

	eng := newEngine(t, engine.Config{})
	_, srv := newServer(t, eng, Options{})

	for body, want := range map[string]string{
		`{"type":"image_generation","priority":"urgent"}`: "urgent",
		`{"type":"image_generation","priority":3}`:        "high",
		`{"type":"image_generation"}`:                     "normal",
	} {
		resp, created := do(t, srv, call{method: http.MethodPost, path: "/api/tasks", body: body})
		require.Equal(t, http.StatusAccepted, resp.StatusCode, body)
		_, snap := do(t, srv, call{method: http.MethodGet, path: "/api/tasks/" + created["task_id"].(string)})
		assert.Equal(t, want, snap["priority"], body)
	}
}

func TestQueueFull(t *testing.T) {
	t.Parallel()

	eng := newEngine(t, engine.Config{MaxQueueSize: 2})
	_, srv := newServer(t, eng, Options{})

	for i := 0; i < 2; i++ {
		resp, _ := do(t, srv, call{method: http.MethodPost, path: "/api/tasks", body: audioBody})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}
	resp, body := do(t, srv, call{method: http.MethodPost, path: "/api/tasks", body: audioBody})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "Queue is full. Please try again later.", body["error"])
	assert.EqualValues(t, 2, body["queue_size"])
	assert.EqualValues(t, 2, body["max_queue_size"])
	assert.Equal(t, 2, eng.Stats(context.Background()).Total)
}

func TestCancelTask(t *testing.T) {
	t.Parallel()

	eng := newEngine(t, engine.Config{})
	_, srv := newServer(t, eng, Options{})

	_, created := do(t, srv, call{method: http.MethodPost, path: "/api/tasks", body: audioBody, headers: as("alice")})
	id := created["task_id"].(string)

	resp, body := do(t, srv, call{method: http.MethodDelete, path: "/api/tasks/" + id, headers: as("bob")})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Access denied", body["error"])

	resp, body = do(t, srv, call{method: http.MethodDelete, path: "/api/tasks/" + id, headers: as("alice")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Task cancelled successfully", body["message"])

	resp, body = do(t, srv, call{method: http.MethodDelete, path: "/api/tasks/" + id, headers: as("alice")})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Task is already cancelled", body["error"])

	resp, body = do(t, srv, call{method: http.MethodDelete, path: "/api/tasks/missing", headers: as("alice")})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Task not found", body["error"])

	_, snap := do(t, srv, call{method: http.MethodGet, path: "/api/tasks/" + id, headers: as("alice")})
	assert.Equal(t, "cancelled", snap["status"])
	assert.Equal(t, true, snap["done"])
}

func TestListTasksIsScopedToCaller(t *testing.T) {
	t.Parallel()

	eng := newEngine(t, engine.Config{})
	_, srv := newServer(t, eng, Options{})

	for _, u := range []string{"alice", "bob", "alice"} {
		resp, _ := do(t, srv, call{method: http.MethodPost, path: "/api/tasks", body: audioBody, headers: as(u)})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	resp, body := do(t, srv, call{method: http.MethodGet, path: "/api/tasks", headers: as("alice")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tasks, ok := body["tasks"].([]any)
	require.True(t, ok)
	assert.Len(t, tasks, 2)
	for _, raw := range tasks {
		assert.Equal(t, "alice", raw.(map[string]any)["user_id"])
	}

	_, body = do(t, srv, call{method: http.MethodGet, path: "/api/tasks", headers: as("carol")})
	assert.Empty(t, body["tasks"])
}

func TestQueueStats(t *testing.T) {
	t.Parallel()

	eng := newEngine(t, engine.Config{MaxConcurrentTasks: 3, MaxQueueSize: 7, AverageTaskMinutes: 2})
	_, srv := newServer(t, eng, Options{})

	do(t, srv, call{method: http.MethodPost, path: "/api/tasks", body: audioBody})

	resp, body := do(t, srv, call{method: http.MethodGet, path: "/api/queue/stats"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["total_tasks"])
	assert.EqualValues(t, 1, body["queue_size"])
	assert.EqualValues(t, 0, body["running_tasks"])
	assert.EqualValues(t, 3, body["max_concurrent_tasks"])
	assert.EqualValues(t, 7, body["max_queue_size"])
	assert.EqualValues(t, 2, body["estimated_wait_minutes"])
	counts := body["status_counts"].(map[string]any)
	assert.EqualValues(t, 1, counts["pending"])
	assert.EqualValues(t, 0, counts["failed"])
}

func TestHealth(t *testing.T) {
	t.Parallel()

	eng := newEngine(t, engine.Config{})
	_, srv := newServer(t, eng, Options{}, WithHealth(func() map[string]any {
		return map[string]any{"app": "up", "status": "ignored"}
	}))

	resp, body := do(t, srv, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "stopped", body["status"])

	eng.Start(context.Background())
	resp, body = do(t, srv, call{method: http.MethodGet, path: "/health"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "up", body["app"])
	diag := body["engine"].(map[string]any)
	assert.Equal(t, true, diag["running"])
	assert.NotEmpty(t, body["time"])
}

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestBearerAuth(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	eng := newEngine(t, engine.Config{})
	_, srv := newServer(t, eng, Options{Auth: AuthOptions{Secret: "s3cret", Issuer: "nightingale"}}, WithClock(clock))

	valid := signToken(t, "s3cret", jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "nightingale",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	expired := signToken(t, "s3cret", jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "nightingale",
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
	})
	wrongKey := signToken(t, "other", jwt.RegisteredClaims{Subject: "alice", Issuer: "nightingale"})
	wrongIssuer := signToken(t, "s3cret", jwt.RegisteredClaims{Subject: "alice", Issuer: "someone-else"})
	noSubject := signToken(t, "s3cret", jwt.RegisteredClaims{Issuer: "nightingale"})

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "missing", header: "", want: "Authorization header required"},
		{name: "wrong scheme", header: "Token " + valid, want: "Invalid authorization format"},
		{name: "no token", header: "Bearer ", want: "Invalid authorization format"},
		{name: "expired", header: "Bearer " + expired, want: "Token expired"},
		{name: "wrong key", header: "Bearer " + wrongKey, want: "Invalid token"},
		{name: "wrong issuer", header: "Bearer " + wrongIssuer, want: "Invalid token"},
		{name: "no subject", header: "Bearer " + noSubject, want: "Invalid token"},
		{name: "garbage", header: "Bearer not.a.jwt", want: "Invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := map[string]string{HeaderUserID: "mallory"}
			if tt.header != "" {
				h["Authorization"] = tt.header
			}
			resp, body := do(t, srv, call{method: http.MethodPost, path: "/api/tasks", body: audioBody, headers: h})
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, tt.want, body["error"])
			assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
		})
	}

	// X-User-ID is ignored once bearer auth is on.
	resp, created := do(t, srv, call{method: http.MethodPost, path: "/api/tasks", body: audioBody,
		headers: map[string]string{"Authorization": "Bearer " + valid, HeaderUserID: "mallory"}})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	snap, err := eng.Status(context.Background(), created["task_id"].(string), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", snap.OwnerID)

	resp, _ = do(t, srv, call{method: http.MethodGet, path: "/api/queue/stats"})
	assert.Equal(t, http.StatusOK, resp.StatusCode, "stats stay public")
}

func TestApplySwapsAuth(t *testing.T) {
	t.Parallel()

	eng := newEngine(t, engine.Config{})
	a, srv := newServer(t, eng, Options{})

	resp, _ := do(t, srv, call{method: http.MethodGet, path: "/api/tasks", headers: as("alice")})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	a.Apply(Options{Auth: AuthOptions{Secret: "k"}})
	resp, _ = do(t, srv, call{method: http.MethodGet, path: "/api/tasks", headers: as("alice")})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// stubScheduler records submissions and returns a fixed error.
type stubScheduler struct {
	mu        sync.Mutex
	submitted []engine.SubmitRequest
	err       error
}

func (s *stubScheduler) Submit(_ context.Context, req engine.SubmitRequest) (engine.CreationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return engine.CreationResult{}, s.err
	}
	s.submitted = append(s.submitted, req)
	return engine.CreationResult{TaskID: "t", Status: engine.StatusPending, QueuePosition: len(s.submitted)}, nil
}

func (s *stubScheduler) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *stubScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submitted)
}

func (s *stubScheduler) Status(context.Context, string, string) (engine.Snapshot, error) {
	return engine.Snapshot{}, errors.New("storage exploded")
}

func (s *stubScheduler) ListUserTasks(context.Context, string) []engine.Snapshot { return nil }

func (s *stubScheduler) Cancel(context.Context, string, string) (string, error) {
	return "", errors.New("storage exploded")
}

func (s *stubScheduler) Stats(context.Context) engine.QueueStats { return engine.QueueStats{} }
func (s *stubScheduler) Diagnostics() engine.Diagnostics         { return engine.Diagnostics{Running: true} }

func TestSchedulerErrorsMapToStatus(t *testing.T) {
	t.Parallel()

	stub := &stubScheduler{}
	_, srv := newServer(t, stub, Options{})

	resp, body := do(t, srv, call{method: http.MethodGet, path: "/api/tasks/x"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal server error", body["error"], "internal details never leak")

	resp, body = do(t, srv, call{method: http.MethodDelete, path: "/api/tasks/x"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, false, body["success"])

	stub.fail(engine.ErrStopped)
	resp, body = do(t, srv, call{method: http.MethodPost, path: "/api/tasks", body: audioBody})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "Service is shutting down", body["error"])

	resp, _ = do(t, srv, call{method: http.MethodGet, path: "/api/tasks"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmitRateLimit(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	stub := &stubScheduler{}
	_, srv := newServer(t, stub, Options{RateLimit: RateLimitOptions{Enabled: true, PerSecond: 0.5, Burst: 1}}, WithClock(clock))

	post := func(user string) *http.Response {
		resp, _ := do(t, srv, call{method: http.MethodPost, path: "/api/tasks", body: audioBody, headers: as(user)})
		return resp
	}

	require.Equal(t, http.StatusAccepted, post("alice").StatusCode)
	resp := post("alice")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get("Retry-After"))
	assert.Equal(t, http.StatusAccepted, post("bob").StatusCode, "buckets are per caller")

	// Reads are never throttled.
	r, _ := do(t, srv, call{method: http.MethodGet, path: "/api/tasks", headers: as("alice")})
	assert.Equal(t, http.StatusOK, r.StatusCode)

	advance(2 * time.Second)
	assert.Equal(t, http.StatusAccepted, post("alice").StatusCode)
	assert.Equal(t, 3, stub.count())
}

func TestOwnerLimiterForgetsIdleCallers(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newOwnerLimiter(RateLimitOptions{Enabled: true, PerSecond: 1, Burst: 1, IdleTTL: time.Minute}, func() time.Time { return now })
	require.NotNil(t, l)

	ok, _ := l.reserve("a")
	assert.True(t, ok)
	ok, _ = l.reserve("b")
	assert.True(t, ok)
	assert.Equal(t, 2, l.size())

	now = now.Add(2 * time.Minute)
	ok, _ = l.reserve("c")
	assert.True(t, ok)
	assert.Equal(t, 1, l.size())

	assert.Nil(t, newOwnerLimiter(RateLimitOptions{Enabled: false, PerSecond: 1}, time.Now))
	assert.Nil(t, newOwnerLimiter(RateLimitOptions{Enabled: true}, time.Now))
}

func TestCORS(t *testing.T) {
	t.Parallel()

	eng := newEngine(t, engine.Config{})
	a, srv := newServer(t, eng, Options{AllowedOrigins: []string{"https://app.example.com/"}})

	resp, _ := do(t, srv, call{method: http.MethodOptions, path: "/api/tasks", headers: map[string]string{
		"Origin":                         "https://app.example.com",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "X-User-ID, Content-Type",
	}})
	assert.True(t, resp.StatusCode >= 200 && resp.StatusCode < 300, "preflight status %d", resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, strings.ToLower(resp.Header.Get("Access-Control-Allow-Headers")), "x-user-id")
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)

	resp, _ = do(t, srv, call{method: http.MethodGet, path: "/api/queue/stats", headers: map[string]string{"Origin": "https://evil.example.com"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	// A wildcard never reflects the caller's origin or allows credentials.
	a.Apply(Options{AllowedOrigins: []string{"https://app.example.com", "*"}})
	resp, _ = do(t, srv, call{method: http.MethodGet, path: "/api/tasks", headers: map[string]string{"Origin": "https://evil.example.com"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Credentials"))

	a.Apply(Options{})
	resp, _ = do(t, srv, call{method: http.MethodGet, path: "/api/queue/stats", headers: map[string]string{"Origin": "https://app.example.com"}})
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"), "no origins configured means no CORS headers")
}

func TestTokenMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
		auth   string
		want   bool
	}{
		{name: "query", target: "/debug/pprof/?token=s3cret", want: true},
		{name: "query mismatch", target: "/debug/pprof/?token=s3cre", want: false},
		{name: "bearer", target: "/debug/pprof/", auth: "Bearer s3cret", want: true},
		{name: "bearer longer", target: "/debug/pprof/", auth: "Bearer s3cret2", want: false},
		{name: "no credentials", target: "/debug/pprof/", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.auth != "" {
				r.Header.Set("Authorization", tt.auth)
			}
			assert.Equal(t, tt.want, tokenMatches(r, "s3cret"))
		})
	}
}

func TestProfiler(t *testing.T) {
	t.Parallel()

	eng := newEngine(t, engine.Config{})
	a, srv := newServer(t, eng, Options{})

	resp, _ := do(t, srv, call{method: http.MethodGet, path: "/debug/pprof/"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	a.Apply(Options{Profiler: true, ProfilerToken: "tok"})
	resp, body := do(t, srv, call{method: http.MethodGet, path: "/debug/pprof/"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized", body["error"])

	resp, _ = do(t, srv, call{method: http.MethodGet, path: "/debug/pprof/?token=tok"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, srv, call{method: http.MethodGet, path: "/debug/pprof/", headers: map[string]string{"Authorization": "Bearer tok"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
