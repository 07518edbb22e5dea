package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override, e.g. BOLDSIM_SEED or
// BOLDSIM_SPINS_NUM_SPINS.
const EnvPrefix = "BOLDSIM_"

// ApplyEnv overlays set BOLDSIM_* variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// applyEnvMap is ApplyEnv against an explicit environment.
func applyEnvMap(cfg *Config, vars map[string]string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: vars}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
