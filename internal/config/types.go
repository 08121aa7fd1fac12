package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Secrets (auth.jwt_secret, llm.api_key) may come from the environment
// instead; see applyEnv.
type Config struct {
	Server    ServerConfig     `json:"server"`
	Logging   LoggingConfig    `json:"logging"`
	Scheduler SchedulerConfig  `json:"scheduler"`
	Backends  BackendsConfig   `json:"backends"`
	LLM       *LLMConfig       `json:"llm,omitempty"`
	Auth      AuthConfig       `json:"auth"`
	RateLimit *RateLimitConfig `json:"rate_limit,omitempty"`
	Archive   *ArchiveConfig   `json:"archive,omitempty"`
	Pprof     PprofConfig      `json:"pprof,omitempty"`
}

// ServerConfig controls the HTTP listener. A changed addr or timeout
// rebinds the listener on reload.
//
// Defaults:
//   - addr: ":8080"
//   - read_timeout: "15s"
//   - write_timeout: "30s"
//   - idle_timeout: "60s"
//   - shutdown_timeout: "10s"
type ServerConfig struct {
	Addr            string   `json:"addr,omitempty"`
	ReadTimeout     string   `json:"read_timeout,omitempty"`
	WriteTimeout    string   `json:"write_timeout,omitempty"`
	IdleTimeout     string   `json:"idle_timeout,omitempty"`
	ShutdownTimeout string   `json:"shutdown_timeout,omitempty"`
	AllowedOrigins  []string `json:"allowed_origins,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Console bool        `json:"console"`
	Format  string      `json:"format,omitempty" validate:"omitempty,oneof=console json"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the task engine. Everything here is applied live
// on reload.
//
// Defaults (when fields are omitted/zero):
//   - max_concurrent_tasks: 3
//   - max_queue_size: 50
//   - average_task_minutes: 2
//   - poll_interval: "500ms"
//   - retention: "24h"
//   - sweep_interval: "1h"
//   - handler_timeout: "0s" (disabled)
//   - anonymous_owner: "anonymous"
type SchedulerConfig struct {
	MaxConcurrentTasks int    `json:"max_concurrent_tasks,omitempty" validate:"gte=0,lte=1024"`
	MaxQueueSize       int    `json:"max_queue_size,omitempty" validate:"gte=0,lte=100000"`
	AverageTaskMinutes int    `json:"average_task_minutes,omitempty" validate:"gte=0"`
	PollInterval       string `json:"poll_interval,omitempty"`
	Retention          string `json:"retention,omitempty"`
	SweepInterval      string `json:"sweep_interval,omitempty"`
	HandlerTimeout     string `json:"handler_timeout,omitempty"`
	AnonymousOwner     string `json:"anonymous_owner,omitempty"`

	// KeepOwnerIndex keeps reaped task ids in the per-owner index.
	KeepOwnerIndex bool `json:"keep_owner_index,omitempty"`
}

// BackendsConfig points at the generation services. Changes need a restart.
type BackendsConfig struct {
	AudioURL     string `json:"audio_url,omitempty" validate:"omitempty,url"`
	StoryURL     string `json:"story_url,omitempty" validate:"omitempty,url"`
	ImageURL     string `json:"image_url,omitempty" validate:"omitempty,url"`
	TTSURL       string `json:"tts_url,omitempty" validate:"omitempty,url"`
	Timeout      string `json:"timeout,omitempty"`
	ImageRetries int    `json:"image_retries,omitempty" validate:"gte=0,lte=10"`
	RetryBackoff string `json:"retry_backoff,omitempty"`
}

// LLMConfig enables the Gemini story writer. Omit the section (or leave
// api_key empty) to use the create-story back-end.
type LLMConfig struct {
	APIKey     string   `json:"api_key,omitempty"` // do not log
	Models     []string `json:"models,omitempty"`
	MaxRetries int      `json:"max_retries,omitempty" validate:"gte=0,lte=10"`
	RetryDelay string   `json:"retry_delay,omitempty"`
}

// AuthConfig controls caller identity.
//
// With jwt_secret set, every /api request needs "Authorization: Bearer <jwt>"
// (HS256) and the sub claim is the user id. Without it the optional
// X-User-ID header is trusted.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret,omitempty"` // do not log
	Issuer    string `json:"issuer,omitempty"`
	Leeway    string `json:"leeway,omitempty"`
}

// RateLimitConfig limits task submissions per owner.
type RateLimitConfig struct {
	Enabled   bool    `json:"enabled"`
	PerSecond float64 `json:"per_second" validate:"gte=0"`
	Burst     int     `json:"burst" validate:"gte=0"`
	IdleTTL   string  `json:"idle_ttl,omitempty"`
}

// ArchiveConfig controls the finished-task archive.
//
// Example:
//
//	"archive": { "driver": "sqlite", "path": "./data/tasks.db" }
type ArchiveConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=none file sqlite sqlite3"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	Retention   string `json:"retention,omitempty"`    // sqlite only
}

// PprofConfig mounts net/http/pprof under /debug on the API server.
//
// Security note: the profiler exposes process internals. Set a token
// unless the listener is loopback-only.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"` // optional bearer token (do not log)

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}
