package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "bonsai", "secrets.json")
}

// fileSecrets reads secrets from a 0600 JSON file shaped as
// {"<service>": {"<account>": "<value>"}}.
type fileSecrets struct {
	path string
}

func (f fileSecrets) Get(service, account string) (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("secrets file not available: %w", err)
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return "", fmt.Errorf("parsing secrets file: %w", err)
	}
	svc, ok := secrets[service]
	if !ok {
		return "", fmt.Errorf("service %q not found", service)
	}
	val, ok := svc[account]
	if !ok {
		return "", fmt.Errorf("account %q not found in service %q", account, service)
	}
	return val, nil
}

func (f fileSecrets) Set(service, account, value string) error {
	var secrets map[string]map[string]string

	data, err := os.ReadFile(f.path)
	if err == nil {
		_ = json.Unmarshal(data, &secrets)
	}
	if secrets == nil {
		secrets = make(map[string]map[string]string)
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, out, 0o600)
}

// SetAPIKey stores the OpenRouter key in the secrets file.
func SetAPIKey(key string) error {
	return fileSecrets{path: secretsFilePath()}.Set("bonsai", "openrouter_api_key", key)
}

// SetAPIToken stores the bearer token that guards the HTTP API.
func SetAPIToken(token string) error {
	return fileSecrets{path: secretsFilePath()}.Set("bonsai", "api_token", token)
}
