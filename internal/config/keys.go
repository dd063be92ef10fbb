package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "FINSWARM_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "FINSWARM_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "storage.data_dir", typ: kString, env: "FINSWARM_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "auth.token", typ: kString, env: "FINSWARM_AUTH_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.Token },
	},
	{
		key: "pipeline.collaborator_timeout", typ: kString, env: "FINSWARM_PIPELINE_COLLABORATOR_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.CollaboratorTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.CollaboratorTimeout },
	},
	{
		key: "learning.min_support", typ: kInt, env: "FINSWARM_LEARNING_MIN_SUPPORT",
		apply:   func(cfg *Config, v any) { cfg.Learning.MinSupport = v.(int) },
		extract: func(cfg Config) any { return cfg.Learning.MinSupport },
	},
	{
		key: "learning.tune_schedule", typ: kString, env: "FINSWARM_LEARNING_TUNE_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Learning.TuneSchedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Learning.TuneSchedule },
	},
	{
		key: "log.level", typ: kString, env: "FINSWARM_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
