package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and every duration string. It is used at
// startup and as the reload gate.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	durations := map[string]string{
		"server.read_timeout":       cfg.Server.ReadTimeout,
		"server.write_timeout":      cfg.Server.WriteTimeout,
		"server.idle_timeout":       cfg.Server.IdleTimeout,
		"server.shutdown_timeout":   cfg.Server.ShutdownTimeout,
		"scheduler.poll_interval":   cfg.Scheduler.PollInterval,
		"scheduler.retention":       cfg.Scheduler.Retention,
		"scheduler.sweep_interval":  cfg.Scheduler.SweepInterval,
		"scheduler.handler_timeout": cfg.Scheduler.HandlerTimeout,
		"backends.timeout":          cfg.Backends.Timeout,
		"backends.retry_backoff":    cfg.Backends.RetryBackoff,
		"auth.leeway":               cfg.Auth.Leeway,
	}
	if cfg.LLM != nil {
		durations["llm.retry_delay"] = cfg.LLM.RetryDelay
	}
	if cfg.RateLimit != nil {
		durations["rate_limit.idle_ttl"] = cfg.RateLimit.IdleTTL
	}
	if cfg.Archive != nil {
		durations["archive.busy_timeout"] = cfg.Archive.BusyTimeout
		durations["archive.retention"] = cfg.Archive.Retention
	}
	var errs []error
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if addr := strings.TrimSpace(cfg.Server.Addr); addr != "" {
		if err := checkListenAddr(addr); err != nil {
			return fmt.Errorf("server.addr: %w", err)
		}
	}
	if cfg.Archive != nil {
		d := strings.ToLower(strings.TrimSpace(cfg.Archive.Driver))
		if d != "" && d != "none" && strings.TrimSpace(cfg.Archive.Path) == "" {
			return errors.New("archive.path is required when archive.driver is set")
		}
	}
	if cfg.RateLimit != nil && cfg.RateLimit.Enabled && cfg.RateLimit.PerSecond <= 0 {
		return errors.New("rate_limit.per_second must be > 0 when enabled")
	}
	return nil
}

// checkListenAddr accepts host:port with port 0 (ephemeral) through 65535.
func checkListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}
