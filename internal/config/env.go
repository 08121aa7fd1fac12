package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "NIGHTINGALE"

type envOverride struct {
	key   string
	extra []string // additional variable names, checked after the prefixed one
	apply func(cfg *Config, v string)
}

// envOverrides lists config keys that the environment may override. Secrets
// usually live here rather than in the file.
var envOverrides = []envOverride{
	{key: "auth.jwt_secret", apply: func(c *Config, v string) { c.Auth.JWTSecret = v }},
	{key: "llm.api_key", extra: []string{"GEMINI_API_KEY"}, apply: func(c *Config, v string) {
		if c.LLM == nil {
			c.LLM = &LLMConfig{}
		}
		c.LLM.APIKey = v
	}},
	{key: "server.addr", apply: func(c *Config, v string) { c.Server.Addr = v }},
	{key: "logging.level", apply: func(c *Config, v string) { c.Logging.Level = v }},
	{key: "pprof.token", apply: func(c *Config, v string) { c.Pprof.Token = v }},
}

// applyEnv overlays NIGHTINGALE_* variables (e.g. NIGHTINGALE_AUTH_JWT_SECRET)
// onto cfg. Empty variables are ignored.
func applyEnv(cfg *Config) error {
	return overlayEnv(cfg, envOverrides)
}

func overlayEnv(cfg *Config, overrides []envOverride) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, o := range overrides {
		if strings.TrimSpace(o.key) == "" {
			return errors.New("env override without a config key")
		}
		if len(o.extra) > 0 {
			names := append([]string{o.key, envName(o.key)}, o.extra...)
			if err := v.BindEnv(names...); err != nil {
				return fmt.Errorf("bind env %s: %w", o.key, err)
			}
		}
		if s := strings.TrimSpace(v.GetString(o.key)); s != "" {
			o.apply(cfg, s)
		}
	}
	return nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
