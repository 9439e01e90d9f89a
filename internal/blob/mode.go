package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
)

type Mode string

const (
	ModeGCS         Mode = "gcs"
	ModeGCSEmulator Mode = "gcs_emulator"
	ModeFS          Mode = "fs"
)

// Config selects and configures a blob backend.
type Config struct {
	Mode         Mode
	Bucket       string
	ProjectID    string
	Dir          string
	EmulatorHost string
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidMode         ConfigErrorCode = "invalid_mode"
	ConfigErrorMissingBucket       ConfigErrorCode = "missing_bucket"
	ConfigErrorMissingDir          ConfigErrorCode = "missing_dir"
	ConfigErrorMissingEmulatorHost ConfigErrorCode = "missing_emulator_host"
	ConfigErrorInvalidEmulatorHost ConfigErrorCode = "invalid_emulator_host"
)

type ConfigError struct {
	Code         ConfigErrorCode
	Mode         string
	EmulatorHost string
}

func (e *ConfigError) Error() string {
	switch e.Code {
	case ConfigErrorInvalidMode:
		return fmt.Sprintf("invalid blob mode %q (allowed: %q, %q, %q)", e.Mode, ModeGCS, ModeGCSEmulator, ModeFS)
	case ConfigErrorMissingBucket:
		return fmt.Sprintf("blob mode %q requires a bucket name", e.Mode)
	case ConfigErrorMissingDir:
		return "blob mode \"fs\" requires a directory"
	case ConfigErrorMissingEmulatorHost:
		return fmt.Sprintf("blob mode %q requires an emulator host", ModeGCSEmulator)
	case ConfigErrorInvalidEmulatorHost:
		return fmt.Sprintf("invalid emulator host %q; expected absolute URL like http://fake-gcs:4443", e.EmulatorHost)
	default:
		return "invalid blob config"
	}
}

// Validate normalizes cfg and reports the first problem as a *ConfigError.
func (cfg Config) Validate() (Config, error) {
	cfg.Mode = Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.EmulatorHost = strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")

	switch cfg.Mode {
	case ModeFS:
		if strings.TrimSpace(cfg.Dir) == "" {
			return cfg, &ConfigError{Code: ConfigErrorMissingDir, Mode: string(cfg.Mode)}
		}
	case ModeGCS:
		if cfg.Bucket == "" {
			return cfg, &ConfigError{Code: ConfigErrorMissingBucket, Mode: string(cfg.Mode)}
		}
	case ModeGCSEmulator:
		if cfg.Bucket == "" {
			return cfg, &ConfigError{Code: ConfigErrorMissingBucket, Mode: string(cfg.Mode)}
		}
		if cfg.EmulatorHost == "" {
			return cfg, &ConfigError{Code: ConfigErrorMissingEmulatorHost, Mode: string(cfg.Mode)}
		}
		u, err := url.Parse(cfg.EmulatorHost)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return cfg, &ConfigError{Code: ConfigErrorInvalidEmulatorHost, Mode: string(cfg.Mode), EmulatorHost: cfg.EmulatorHost}
		}
	default:
		return cfg, &ConfigError{Code: ConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
	return cfg, nil
}

// Open returns the backend selected by cfg. Against an emulator the bucket
// is created on first use.
func Open(ctx context.Context, cfg Config) (Store, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModeFS:
		return NewFSStore(cfg.Dir)
	default:
		s, err := NewGCSStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Mode == ModeGCSEmulator {
			if err := s.EnsureBucket(ctx, cfg.ProjectID); err != nil {
				s.Close()
				return nil, err
			}
		}
		return s, nil
	}
}

// EnsureBucket creates the bucket in projectID when it does not exist.
func (s *GCSStore) EnsureBucket(ctx context.Context, projectID string) error {
	b := s.client.Bucket(s.bucket)
	_, err := b.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("checking bucket %q: %w", s.bucket, err)
	}
	if projectID == "" {
		projectID = "knowledge-bonsai"
	}
	if err := b.Create(ctx, projectID, nil); err != nil {
		return fmt.Errorf("creating bucket %q: %w", s.bucket, err)
	}
	return nil
}
