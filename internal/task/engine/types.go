package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Type names a kind of generation job. Each Type maps to one Handler.
type Type string

const (
	TypeAudio Type = "audio_generation"
	TypeMusic Type = "music_generation"
	TypeStory Type = "story_generation"
	TypeImage Type = "image_generation"
	TypeTTS   Type = "tts_generation"
)

// Types lists every known task type in a stable order.
func Types() []Type {
	return []Type{TypeAudio, TypeMusic, TypeStory, TypeImage, TypeTTS}
}

func (t Type) Valid() bool {
	switch t {
	case TypeAudio, TypeMusic, TypeStory, TypeImage, TypeTTS:
		return true
	}
	return false
}

func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Status is a task lifecycle state.
//
//	pending -> running -> completed | failed
//	pending | running -> cancelled
//
// The last three are terminal; a terminal task never changes status again.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func Statuses() []Status {
	return []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Priority is recorded on every task. Admission stays FIFO.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
	PriorityUrgent Priority = 4
)

func (p Priority) Valid() bool { return p >= PriorityLow && p <= PriorityUrgent }

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "priority(" + strconv.Itoa(int(p)) + ")"
	}
}

// ParsePriority accepts a name ("high") or a number ("3"). Empty means Normal.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || !Priority(n).Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
	return Priority(n), nil
}

func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Config controls admission limits and background loops.
//
// Zero values are replaced by defaults in withDefaults.
type Config struct {
	MaxConcurrentTasks int
	MaxQueueSize       int

	// AverageTaskMinutes feeds the wait estimate: position * AverageTaskMinutes.
	AverageTaskMinutes int

	// PollInterval bounds how long the dispatcher sleeps without a wakeup.
	PollInterval time.Duration

	// Terminal tasks older than RetentionPeriod are removed every SweepInterval.
	RetentionPeriod time.Duration
	SweepInterval   time.Duration

	// HandlerTimeout bounds the handler context. 0 disables it.
	HandlerTimeout time.Duration

	AnonymousOwner string

	// KeepOwnerIndex leaves reaped ids in the per-owner index. Queries skip
	// them either way.
	KeepOwnerIndex bool
}

const (
	DefaultMaxConcurrentTasks = 3
	DefaultMaxQueueSize       = 50
	DefaultAverageTaskMinutes = 2
	DefaultPollInterval       = 500 * time.Millisecond
	DefaultRetentionPeriod    = 24 * time.Hour
	DefaultSweepInterval      = time.Hour
	DefaultAnonymousOwner     = "anonymous"
)

func (c Config) withDefaults() Config {
	if c.MaxConcurrentTasks <= 0 {
		c.MaxConcurrentTasks = DefaultMaxConcurrentTasks
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.AverageTaskMinutes <= 0 {
		c.AverageTaskMinutes = DefaultAverageTaskMinutes
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RetentionPeriod <= 0 {
		c.RetentionPeriod = DefaultRetentionPeriod
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.HandlerTimeout < 0 {
		c.HandlerTimeout = 0
	}
	if strings.TrimSpace(c.AnonymousOwner) == "" {
		c.AnonymousOwner = DefaultAnonymousOwner
	}
	return c
}

// SubmitRequest describes a new task. Zero OwnerID means anonymous and zero
// Priority means Normal.
type SubmitRequest struct {
	Type     Type
	Payload  Payload
	OwnerID  string
	Priority Priority
}

// CreationResult is returned by a successful Submit.
type CreationResult struct {
	TaskID               string `json:"task_id"`
	Status               Status `json:"status"`
	QueuePosition        int    `json:"queue_position"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
	Message              string `json:"message"`
}

// Snapshot is a read-only copy of a task record.
//
// QueuePosition is 1-based while the task waits and 0 otherwise.
type Snapshot struct {
	TaskID        string     `json:"task_id"`
	Type          Type       `json:"task_type"`
	Status        Status     `json:"status"`
	Progress      int        `json:"progress"`
	Result        any        `json:"result"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at"`
	Done          bool       `json:"done"`
	QueuePosition int        `json:"queue_position"`
	OwnerID       string     `json:"user_id"`
	Priority      Priority   `json:"priority"`
}

// QueueStats summarizes the scheduler for the stats endpoint.
type QueueStats struct {
	Total                int            `json:"total_tasks"`
	CountsByStatus       map[Status]int `json:"status_counts"`
	QueueSize            int            `json:"queue_size"`
	RunningCount         int            `json:"running_tasks"`
	MaxConcurrentTasks   int            `json:"max_concurrent_tasks"`
	MaxQueueSize         int            `json:"max_queue_size"`
	EstimatedWaitMinutes int            `json:"estimated_wait_minutes"`
}

// Diagnostics is the operator view used by /health.
type Diagnostics struct {
	Running            bool          `json:"running"`
	MaxConcurrentTasks int           `json:"max_concurrent_tasks"`
	MaxQueueSize       int           `json:"max_queue_size"`
	PollInterval       time.Duration `json:"poll_interval"`
	RetentionPeriod    time.Duration `json:"retention_period"`
	SweepInterval      time.Duration `json:"sweep_interval"`
	HandlerTimeout     time.Duration `json:"handler_timeout"`
	Handlers           []Type        `json:"handlers"`

	Stored    int    `json:"stored"`
	QueueLen  int    `json:"queue_len"`
	InFlight  int    `json:"in_flight"`
	Submitted uint64 `json:"submitted"`
	Rejected  uint64 `json:"rejected"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Cancelled uint64 `json:"cancelled"`
	Reaped    uint64 `json:"reaped"`
}
