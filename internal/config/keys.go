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
		key: "server.port", typ: kInt, env: "VETSYNC_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "remote.server_url", typ: kString, env: "VETSYNC_REMOTE_SERVER_URL",
		apply:   func(cfg *Config, v any) { cfg.Remote.ServerURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.ServerURL },
	},
	{
		key: "remote.api_key", typ: kString, env: "VETSYNC_REMOTE_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Remote.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.APIKey },
	},
	{
		key: "remote.branch_id", typ: kString, env: "VETSYNC_REMOTE_BRANCH_ID",
		apply:   func(cfg *Config, v any) { cfg.Remote.BranchID = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.BranchID },
	},
	{
		key: "remote.branch_name", typ: kString, env: "VETSYNC_REMOTE_BRANCH_NAME",
		apply:   func(cfg *Config, v any) { cfg.Remote.BranchName = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.BranchName },
	},
	{
		key: "sync.auto_interval", typ: kString, env: "VETSYNC_SYNC_AUTO_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Sync.AutoInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Sync.AutoInterval },
	},
	{
		key: "sync.upload_batch", typ: kInt, env: "VETSYNC_SYNC_UPLOAD_BATCH",
		apply:   func(cfg *Config, v any) { cfg.Sync.UploadBatch = v.(int) },
		extract: func(cfg Config) any { return cfg.Sync.UploadBatch },
	},
	{
		key: "storage.data_dir", typ: kString, env: "VETSYNC_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "VETSYNC_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
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
