package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "nightingale/pkg/logx"
)

const sampleJSON = `{
  "server": {"addr": "127.0.0.1:8080", "read_timeout": "10s"},
  "logging": {"level": "debug", "console": true},
  "scheduler": {"max_concurrent_tasks": 2, "max_queue_size": 10, "retention": "12h"},
  "backends": {"audio_url": "http://localhost:8001", "timeout": "2m"},
  "archive": {"driver": "file", "path": "./data/tasks"}
}`

const sampleYAML = `
server:
  addr: "127.0.0.1:8080"
  read_timeout: 10s
logging:
  level: debug
  console: true
scheduler:
  max_concurrent_tasks: 2
  max_queue_size: 10
  retention: 12h
backends:
  audio_url: http://localhost:8001
  timeout: 2m
archive:
  driver: file
  path: ./data/tasks
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParseJSONAndYAMLAgree(t *testing.T) {
	fromJSON, err := NewConfigManager(writeFile(t, "c.json", sampleJSON)).Parse()
	require.NoError(t, err)
	fromYAML, err := NewConfigManager(writeFile(t, "c.yaml", sampleYAML)).Parse()
	require.NoError(t, err)

	assert.Equal(t, fromJSON, fromYAML)
	assert.Equal(t, 2, fromJSON.Scheduler.MaxConcurrentTasks)
	assert.Equal(t, "12h", fromJSON.Scheduler.Retention)
	require.NotNil(t, fromJSON.Archive)
	assert.Equal(t, "file", fromJSON.Archive.Driver)
	require.NoError(t, Validate(fromJSON))
}

func TestParseRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{name: "unknown field", file: "c.json", body: `{"scheduler": {"workers": 3}}`},
		{name: "unknown yaml field", file: "c.yml", body: "telegram:\n  token: x\n"},
		{name: "trailing data", file: "c.json", body: `{} {}`},
		{name: "bad yaml", file: "c.yaml", body: "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfigManager(writeFile(t, tt.file, tt.body)).Parse()
			require.Error(t, err)
		})
	}
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("NIGHTINGALE_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("NIGHTINGALE_SERVER_ADDR", "0.0.0.0:9000")
	t.Setenv("NIGHTINGALE_LLM_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "gem-key")

	cfg, err := NewConfigManager(writeFile(t, "c.json", sampleJSON)).Parse()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	require.NotNil(t, cfg.LLM)
	assert.Equal(t, "gem-key", cfg.LLM.APIKey)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverlayPrefersPrefixedName(t *testing.T) {
	t.Setenv("NIGHTINGALE_LLM_API_KEY", "primary")
	t.Setenv("GEMINI_API_KEY", "fallback")

	cfg := &Config{}
	require.NoError(t, applyEnv(cfg))
	require.NotNil(t, cfg.LLM)
	assert.Equal(t, "primary", cfg.LLM.APIKey)
}

func TestEnvOverlayReportsBadOverride(t *testing.T) {
	t.Parallel()

	applied := false
	err := overlayEnv(&Config{}, []envOverride{{key: " ", extra: []string{"X"}, apply: func(*Config, string) { applied = true }}})
	require.ErrorContains(t, err, "without a config key")
	assert.False(t, applied)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "ephemeral port", mutate: func(c *Config) { c.Server.Addr = "127.0.0.1:0" }},
		{name: "addr without port", mutate: func(c *Config) { c.Server.Addr = "localhost" }, wantErr: "server.addr"},
		{name: "addr port out of range", mutate: func(c *Config) { c.Server.Addr = ":70000" }, wantErr: "server.addr"},
		{name: "bad duration", mutate: func(c *Config) { c.Scheduler.PollInterval = "soon" }, wantErr: "scheduler.poll_interval"},
		{name: "negative duration", mutate: func(c *Config) { c.Server.IdleTimeout = "-1s" }, wantErr: "server.idle_timeout"},
		{name: "negative limit", mutate: func(c *Config) { c.Scheduler.MaxQueueSize = -1 }, wantErr: "MaxQueueSize"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "Level"},
		{name: "bad url", mutate: func(c *Config) { c.Backends.TTSURL = "not a url" }, wantErr: "TTSURL"},
		{name: "archive without path", mutate: func(c *Config) { c.Archive = &ArchiveConfig{Driver: "sqlite"} }, wantErr: "archive.path"},
		{name: "unknown archive driver", mutate: func(c *Config) { c.Archive = &ArchiveConfig{Driver: "redis", Path: "x"} }, wantErr: "Driver"},
		{name: "rate limit without rate", mutate: func(c *Config) { c.RateLimit = &RateLimitConfig{Enabled: true} }, wantErr: "rate_limit.per_second"},
		{name: "bad llm delay", mutate: func(c *Config) { c.LLM = &LLMConfig{RetryDelay: "x"} }, wantErr: "llm.retry_delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{
				Server:    ServerConfig{Addr: ":8080"},
				Scheduler: SchedulerConfig{MaxConcurrentTasks: 3, PollInterval: "500ms"},
				Backends:  BackendsConfig{AudioURL: "http://localhost:8001"},
			}
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
	require.Error(t, Validate(nil))
}

func TestDurations(t *testing.T) {
	t.Parallel()

	d, err := ParseDurationOrDefault("x", "", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	d, err = ParseDurationOrDefault("x", " 2s ", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)

	d, err = ParseDurationOrDefault("x", "0s", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	_, err = ParseDurationField("scheduler.retention", "forever")
	require.ErrorContains(t, err, "scheduler.retention")
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{Scheduler: SchedulerConfig{MaxConcurrentTasks: 3}}
	newCfg := &Config{
		Scheduler: SchedulerConfig{MaxConcurrentTasks: 5},
		Auth:      AuthConfig{JWTSecret: "hidden"},
		Archive:   &ArchiveConfig{Driver: "file", Path: "x"},
	}

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"archive", "auth", "scheduler"}, changed)
	assert.NotEmpty(t, attrs)

	changed, attrs = SummarizeConfigChange(newCfg, newCfg)
	assert.Empty(t, changed)
	assert.Empty(t, attrs)

	changed, _ = SummarizeConfigChange(nil, &Config{LLM: &LLMConfig{Models: []string{"m"}}})
	assert.Equal(t, []string{"llm"}, changed)
}

func TestManagerLoadRunsValidator(t *testing.T) {
	m := NewConfigManager(writeFile(t, "c.json", `{"scheduler": {"poll_interval": "nope"}}`))
	m.SetValidator(func(ctx context.Context, cfg *Config) error { return Validate(cfg) })

	_, err := m.Load()
	require.Error(t, err)
	assert.Nil(t, m.Get())
}

func TestWatchPublishesValidChanges(t *testing.T) {
	path := writeFile(t, "c.json", sampleJSON)
	m := NewConfigManager(path)
	m.SetLogger(logx.Nop())
	m.SetValidator(func(ctx context.Context, cfg *Config) error { return Validate(cfg) })
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)

	// An invalid edit is rejected and never published.
	require.NoError(t, os.WriteFile(path, []byte(`{"scheduler": {"poll_interval": "later"}}`), 0o600))
	select {
	case <-ch:
		t.Fatal("invalid config was published")
	case <-time.After(600 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte(`{"scheduler": {"max_concurrent_tasks": 7}}`), 0o600))
	select {
	case cfg := <-ch:
		assert.Equal(t, 7, cfg.Scheduler.MaxConcurrentTasks)
		assert.Equal(t, cfg, m.Get())
	case <-time.After(3 * time.Second):
		t.Fatal("config change not published")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestPublishDropsOldest(t *testing.T) {
	t.Parallel()

	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)

	got := <-ch
	assert.Same(t, b, got)
	m.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestDecodeConfigEdgeCases(t *testing.T) {
	t.Parallel()

	cfg, err := decodeConfig("c.yaml", []byte("# nothing yet\n"))
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)

	cfg, err = decodeConfig("c.json", []byte("{\"logging\": {\"level\": \"warn\"}}\n\n"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)

	_, err = decodeConfig("c.YML", []byte("scheduler:\n  max_queue_size: ten\n"))
	require.Error(t, err)
}

func TestDebouncerRunsLastTrigger(t *testing.T) {
	t.Parallel()

	var (
		d    debouncer
		mu   sync.Mutex
		runs []int
	)
	for i := range 5 {
		d.trigger(30*time.Millisecond, func() {
			mu.Lock()
			runs = append(runs, i)
			mu.Unlock()
		})
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(runs) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int{4}, runs)
	mu.Unlock()

	d.trigger(20*time.Millisecond, func() { t.Error("stopped debouncer fired") })
	d.stop()
	time.Sleep(50 * time.Millisecond)
}
