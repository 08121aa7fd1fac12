package app

import (
	"context"

	"nightingale/internal/config"
)

// validateConfig guards both startup and hot reload: a file that fails here
// is never committed, so the running config stays in effect.
func validateConfig(_ context.Context, cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapBackends(cfg); err != nil {
		return err
	}
	if _, _, err := mapLLMConfig(cfg); err != nil {
		return err
	}
	if _, err := mapAPIOptions(cfg); err != nil {
		return err
	}
	if _, err := mapServerConfig(cfg); err != nil {
		return err
	}
	return nil
}
