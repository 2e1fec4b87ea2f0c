package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"captchad/internal/common/fsutil"
)

// LoadDotEnv loads KEY=VALUE files into the process environment. Variables
// that are already set win; files that do not exist are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" || !fsutil.PathExists(p) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg. Unset variables leave the
// corresponding field untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// applyEnvMap is ApplyEnv against an explicit environment.
func applyEnvMap(cfg *Config, environ map[string]string) error {
	return env.ParseWithOptions(cfg, env.Options{Environment: environ})
}

// Resolve builds the effective configuration: defaults, then the optional
// config file, then .env files, then the environment.
func Resolve(path string, dotenv ...string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := Overlay(&cfg, path); err != nil {
			return cfg, err
		}
	}
	if err := LoadDotEnv(dotenv...); err != nil {
		return cfg, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
