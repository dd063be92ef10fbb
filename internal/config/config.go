package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Auth     AuthConfig
	Pipeline PipelineConfig
	Learning LearningConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type StorageConfig struct {
	DataDir string
}

type AuthConfig struct {
	// Token guards the HTTP API. Empty disables auth; set via
	// FINSWARM_AUTH_TOKEN only, never the config file.
	Token string
}

type PipelineConfig struct {
	// CollaboratorTimeout is a duration string, e.g. "5s".
	CollaboratorTimeout string
}

type LearningConfig struct {
	MinSupport   int
	TuneSchedule string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4000,
			MCPPort: 4001,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Pipeline: PipelineConfig{
			CollaboratorTimeout: "5s",
		},
		Learning: LearningConfig{
			MinSupport:   20,
			TuneSchedule: "@every 10m",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/finswarm/config.json, then applies FINSWARM_*
// environment overrides.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if _, err := time.ParseDuration(cfg.Pipeline.CollaboratorTimeout); err != nil {
		return Config{}, fmt.Errorf("invalid pipeline.collaborator_timeout %q: %w", cfg.Pipeline.CollaboratorTimeout, err)
	}
	if cfg.Learning.MinSupport < 1 {
		return Config{}, fmt.Errorf("learning.min_support must be positive, got %d", cfg.Learning.MinSupport)
	}

	return cfg, nil
}

// CollaboratorTimeout parses the pipeline timeout. Load has already
// validated the string.
func (c Config) CollaboratorTimeout() time.Duration {
	d, err := time.ParseDuration(c.Pipeline.CollaboratorTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}
