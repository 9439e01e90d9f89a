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
	kBool
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
		key: "server.host", typ: kString, env: "BONSAI_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "BONSAI_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "BONSAI_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "BONSAI_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "blob.mode", typ: kString, env: "BONSAI_BLOB_MODE",
		apply:   func(cfg *Config, v any) { cfg.Blob.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.Mode },
	},
	{
		key: "blob.bucket", typ: kString, env: "BONSAI_BLOB_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Blob.Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.Bucket },
	},
	{
		key: "blob.project_id", typ: kString, env: "BONSAI_BLOB_PROJECT_ID",
		apply:   func(cfg *Config, v any) { cfg.Blob.ProjectID = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.ProjectID },
	},
	{
		key: "blob.dir", typ: kString, env: "BONSAI_BLOB_DIR",
		apply:   func(cfg *Config, v any) { cfg.Blob.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.Dir },
	},
	{
		key: "blob.emulator_host", typ: kString, env: "BONSAI_BLOB_EMULATOR_HOST",
		apply:   func(cfg *Config, v any) { cfg.Blob.EmulatorHost = v.(string) },
		extract: func(cfg Config) any { return cfg.Blob.EmulatorHost },
	},
	{
		key: "proxy.openrouter_api_key", typ: kString, env: "BONSAI_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Proxy.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.OpenRouterAPIKey },
	},
	{
		key: "proxy.base_url", typ: kString, env: "BONSAI_PROXY_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.BaseURL },
	},
	{
		key: "proxy.default_model", typ: kString, env: "BONSAI_PROXY_DEFAULT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.DefaultModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.DefaultModel },
	},
	{
		key: "prefetch.enabled", typ: kBool, env: "BONSAI_PREFETCH_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Prefetch.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Prefetch.Enabled },
	},
	{
		key: "prefetch.concurrency", typ: kInt, env: "BONSAI_PREFETCH_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Prefetch.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Prefetch.Concurrency },
	},
	{
		key: "mcp.enabled", typ: kBool, env: "BONSAI_MCP_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.MCP.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.MCP.Enabled },
	},
	{
		key: "log.level", typ: kString, env: "BONSAI_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
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
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
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
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
