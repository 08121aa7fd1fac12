package config

import (
	"reflect"
	"sort"
	"strings"

	logx "nightingale/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging. Secrets are reported only as
// "<field>_set" booleans.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.String("server.addr", strings.TrimSpace(newCfg.Server.Addr)),
			logx.Bool("server.addr_changed", strings.TrimSpace(oldCfg.Server.Addr) != strings.TrimSpace(newCfg.Server.Addr)),
			logx.Int("server.allowed_origins", len(newCfg.Server.AllowedOrigins)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		s := newCfg.Scheduler
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Int("scheduler.max_concurrent_tasks", s.MaxConcurrentTasks),
			logx.Int("scheduler.max_queue_size", s.MaxQueueSize),
			logx.String("scheduler.poll_interval", strings.TrimSpace(s.PollInterval)),
			logx.String("scheduler.retention", strings.TrimSpace(s.Retention)),
			logx.String("scheduler.sweep_interval", strings.TrimSpace(s.SweepInterval)),
			logx.String("scheduler.handler_timeout", strings.TrimSpace(s.HandlerTimeout)),
		)
	}

	if oldCfg.Backends != newCfg.Backends {
		changed = append(changed, "backends")
		attrs = append(attrs,
			logx.String("backends.audio_url", newCfg.Backends.AudioURL),
			logx.String("backends.story_url", newCfg.Backends.StoryURL),
			logx.String("backends.image_url", newCfg.Backends.ImageURL),
			logx.String("backends.tts_url", newCfg.Backends.TTSURL),
		)
	}

	oLLM, nLLM := derefLLM(oldCfg.LLM), derefLLM(newCfg.LLM)
	if oLLM.APIKey != nLLM.APIKey || !reflect.DeepEqual(oLLM.Models, nLLM.Models) ||
		oLLM.MaxRetries != nLLM.MaxRetries || oLLM.RetryDelay != nLLM.RetryDelay {
		changed = append(changed, "llm")
		attrs = append(attrs,
			logx.Bool("llm.api_key_set", strings.TrimSpace(nLLM.APIKey) != ""),
			logx.Any("llm.models", nLLM.Models),
		)
	}

	if oldCfg.Auth != newCfg.Auth {
		changed = append(changed, "auth")
		attrs = append(attrs,
			logx.Bool("auth.jwt_secret_set", strings.TrimSpace(newCfg.Auth.JWTSecret) != ""),
			logx.String("auth.issuer", newCfg.Auth.Issuer),
		)
	}

	oRL, nRL := derefRateLimit(oldCfg.RateLimit), derefRateLimit(newCfg.RateLimit)
	if oRL != nRL {
		changed = append(changed, "rate_limit")
		attrs = append(attrs,
			logx.Bool("rate_limit.enabled", nRL.Enabled),
			logx.Float64("rate_limit.per_second", nRL.PerSecond),
			logx.Int("rate_limit.burst", nRL.Burst),
		)
	}

	// Nil means disabled.
	oA, nA := derefArchive(oldCfg.Archive), derefArchive(newCfg.Archive)
	if oA != nA {
		changed = append(changed, "archive")
		attrs = append(attrs,
			logx.String("archive.driver", strings.TrimSpace(nA.Driver)),
			logx.Bool("archive.path_set", strings.TrimSpace(nA.Path) != ""),
			logx.String("archive.retention", strings.TrimSpace(nA.Retention)),
		)
	}

	if oldCfg.Pprof != newCfg.Pprof {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefLLM(c *LLMConfig) LLMConfig {
	if c == nil {
		return LLMConfig{}
	}
	return *c
}

func derefRateLimit(c *RateLimitConfig) RateLimitConfig {
	if c == nil {
		return RateLimitConfig{}
	}
	return *c
}

func derefArchive(c *ArchiveConfig) ArchiveConfig {
	if c == nil {
		return ArchiveConfig{}
	}
	return *c
}
