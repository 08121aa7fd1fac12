package app

import (
	"strings"

	"nightingale/internal/config"
	"nightingale/internal/task/engine"
)

// mapSchedulerConfig converts the scheduler section. Zero values are left
// for engine defaults.
func mapSchedulerConfig(cfg *config.Config) (engine.Config, error) {
	if cfg == nil {
		return engine.Config{}, nil
	}
	sc := cfg.Scheduler

	poll, err := config.ParseDurationField("scheduler.poll_interval", sc.PollInterval)
	if err != nil {
		return engine.Config{}, err
	}
	retention, err := config.ParseDurationField("scheduler.retention", sc.Retention)
	if err != nil {
		return engine.Config{}, err
	}
	sweep, err := config.ParseDurationField("scheduler.sweep_interval", sc.SweepInterval)
	if err != nil {
		return engine.Config{}, err
	}
	timeout, err := config.ParseDurationField("scheduler.handler_timeout", sc.HandlerTimeout)
	if err != nil {
		return engine.Config{}, err
	}

	return engine.Config{
		MaxConcurrentTasks: sc.MaxConcurrentTasks,
		MaxQueueSize:       sc.MaxQueueSize,
		AverageTaskMinutes: sc.AverageTaskMinutes,
		PollInterval:       poll,
		RetentionPeriod:    retention,
		SweepInterval:      sweep,
		HandlerTimeout:     timeout,
		AnonymousOwner:     strings.TrimSpace(sc.AnonymousOwner),
		KeepOwnerIndex:     sc.KeepOwnerIndex,
	}, nil
}
