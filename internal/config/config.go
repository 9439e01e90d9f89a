package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Blob     BlobConfig
	Proxy    ProxyConfig
	Prefetch PrefetchConfig
	MCP      MCPConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host string
	Port int
	// APIToken, when set, is required as a bearer token on every API
	// route except /health.
	APIToken string
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StorageConfig struct {
	DataDir string
}

// BlobConfig selects where tree documents and node prose are stored.
// Mode is one of "gcs", "gcs_emulator" or "fs".
type BlobConfig struct {
	Mode         string
	Bucket       string
	ProjectID    string
	Dir          string
	EmulatorHost string
}

type ProxyConfig struct {
	OpenRouterAPIKey string
	BaseURL          string
	DefaultModel     string
}

type PrefetchConfig struct {
	Enabled     bool
	Concurrency int
}

type MCPConfig struct {
	Enabled bool
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 3000,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Blob: BlobConfig{
			Mode:   "fs",
			Bucket: "knowledge-bonsai",
			Dir:    filepath.Join(dataDir, "blobs"),
		},
		Proxy: ProxyConfig{
			DefaultModel: "google/gemini-2.5-flash",
		},
		Prefetch: PrefetchConfig{
			Enabled:     false,
			Concurrency: 4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "bonsai-data"
		}
	}
	return filepath.Join(dir, "bonsai")
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/bonsai/config.json, then applies BONSAI_* environment
// overrides. The OpenRouter key falls back to the secrets file when neither
// source sets it.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), fileSecrets{path: secretsFilePath()})
}

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(service, account string) (string, error)
}

func loadFromPath(path string, sec secretStore) (Config, error) {
	return loadWith(newFileBackend(path), sec)
}

func loadWith(b ConfigBackend, sec secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Proxy.OpenRouterAPIKey == "" {
		if key, err := sec.Get("bonsai", "openrouter_api_key"); err == nil && key != "" {
			cfg.Proxy.OpenRouterAPIKey = strings.TrimSpace(key)
		}
	}
	if cfg.Server.APIToken == "" {
		if tok, err := sec.Get("bonsai", "api_token"); err == nil {
			cfg.Server.APIToken = strings.TrimSpace(tok)
		}
	}

	switch cfg.Blob.Mode {
	case "gcs", "gcs_emulator", "fs":
	default:
		return Config{}, fmt.Errorf("invalid blob.mode %q: want gcs, gcs_emulator or fs", cfg.Blob.Mode)
	}

	return cfg, nil
}

// RequireAPIKey reports a descriptive error when no OpenRouter key is
// configured. Commands that only talk to a running server skip this check.
func (c Config) RequireAPIKey() error {
	if c.Proxy.OpenRouterAPIKey != "" {
		return nil
	}
	return fmt.Errorf("missing required config: OpenRouter API key. "+
		"Set it via environment variable BONSAI_OPENROUTER_API_KEY or %s", secretsFilePath())
}
