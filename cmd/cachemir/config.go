package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

const (
	backendMemory = "memory"
	backendDisk   = "disk"
	backendNull   = "null"
)

// config holds the demo's environment configuration.
type config struct {
	Backend  string `env:"CACHEMIR_BACKEND" envDefault:"disk"`
	Dir      string `env:"CACHEMIR_DIR"`
	Suffix   string `env:"CACHEMIR_SUFFIX"`
	Compress bool   `env:"CACHEMIR_COMPRESS"`
	Debug    bool   `env:"CACHEMIR_DEBUG"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.Backend {
	case backendMemory, backendDisk, backendNull:
	default:
		return config{}, fmt.Errorf("unknown backend %q (want %s, %s or %s)", cfg.Backend, backendMemory, backendDisk, backendNull)
	}
	return cfg, nil
}
