package app

import (
	"nightingale/internal/api"
	"nightingale/internal/config"
	"nightingale/internal/generation"
	"nightingale/internal/server"
	logx "nightingale/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	if cfg == nil {
		return logx.Config{Level: "info", Console: true}
	}
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		Format:  lc.Format,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
	}
}

func mapBackends(cfg *config.Config) (generation.Backends, error) {
	bc := cfg.Backends
	timeout, err := config.ParseDurationField("backends.timeout", bc.Timeout)
	if err != nil {
		return generation.Backends{}, err
	}
	backoff, err := config.ParseDurationField("backends.retry_backoff", bc.RetryBackoff)
	if err != nil {
		return generation.Backends{}, err
	}
	return generation.Backends{
		AudioURL:     bc.AudioURL,
		StoryURL:     bc.StoryURL,
		ImageURL:     bc.ImageURL,
		TTSURL:       bc.TTSURL,
		Timeout:      timeout,
		ImageRetries: bc.ImageRetries,
		RetryBackoff: backoff,
	}, nil
}

// mapLLMConfig returns false when no API key is configured.
func mapLLMConfig(cfg *config.Config) (generation.LLMConfig, bool, error) {
	if cfg.LLM == nil || cfg.LLM.APIKey == "" {
		return generation.LLMConfig{}, false, nil
	}
	delay, err := config.ParseDurationField("llm.retry_delay", cfg.LLM.RetryDelay)
	if err != nil {
		return generation.LLMConfig{}, false, err
	}
	return generation.LLMConfig{
		APIKey:     cfg.LLM.APIKey,
		Models:     cfg.LLM.Models,
		MaxRetries: cfg.LLM.MaxRetries,
		RetryDelay: delay,
	}, true, nil
}

func mapAPIOptions(cfg *config.Config) (api.Options, error) {
	leeway, err := config.ParseDurationField("auth.leeway", cfg.Auth.Leeway)
	if err != nil {
		return api.Options{}, err
	}
	opts := api.Options{
		Auth: api.AuthOptions{
			Secret: cfg.Auth.JWTSecret,
			Issuer: cfg.Auth.Issuer,
			Leeway: leeway,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Profiler:       cfg.Pprof.Enabled,
		ProfilerToken:  cfg.Pprof.Token,
	}
	if rl := cfg.RateLimit; rl != nil {
		ttl, err := config.ParseDurationField("rate_limit.idle_ttl", rl.IdleTTL)
		if err != nil {
			return api.Options{}, err
		}
		opts.RateLimit = api.RateLimitOptions{
			Enabled:   rl.Enabled,
			PerSecond: rl.PerSecond,
			Burst:     rl.Burst,
			IdleTTL:   ttl,
		}
	}
	return opts, nil
}

func mapServerConfig(cfg *config.Config) (server.Config, error) {
	sc := cfg.Server
	var out server.Config
	var err error
	out.Addr = sc.Addr
	if out.ReadTimeout, err = config.ParseDurationField("server.read_timeout", sc.ReadTimeout); err != nil {
		return server.Config{}, err
	}
	if out.WriteTimeout, err = config.ParseDurationField("server.write_timeout", sc.WriteTimeout); err != nil {
		return server.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationField("server.idle_timeout", sc.IdleTimeout); err != nil {
		return server.Config{}, err
	}
	if out.ShutdownTimeout, err = config.ParseDurationField("server.shutdown_timeout", sc.ShutdownTimeout); err != nil {
		return server.Config{}, err
	}
	out.MutexProfileFraction = cfg.Pprof.MutexProfileFraction
	out.BlockProfileRate = cfg.Pprof.BlockProfileRate
	return out, nil
}
