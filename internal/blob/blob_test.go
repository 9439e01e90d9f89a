package blob

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTreeKey(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	got := TreeKey("u1", ts)
	if got != "trees/u1/1700000000123_tree.json" {
		t.Errorf("TreeKey = %q", got)
	}
}

func TestNodeContentKey(t *testing.T) {
	if got := NodeContentKey("t1", "n-3"); got != "trees/t1/nodes/n-3.txt" {
		t.Errorf("NodeContentKey = %q", got)
	}
	if got := NodeContentPrefix("t1"); got != "trees/t1/nodes/" {
		t.Errorf("NodeContentPrefix = %q", got)
	}
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw, bucket, key string
	}{
		{"gs://bonsai/trees/u/1_tree.json", "bonsai", "trees/u/1_tree.json"},
		{"trees/u/1_tree.json", "", "trees/u/1_tree.json"},
		{"/trees/u/1_tree.json", "", "trees/u/1_tree.json"},
		{"gs://bonsai", "bonsai", ""},
	}
	for _, tt := range tests {
		bucket, key := ParseURL(tt.raw)
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("ParseURL(%q) = (%q, %q), want (%q, %q)", tt.raw, bucket, key, tt.bucket, tt.key)
		}
	}
}

func TestValidKey(t *testing.T) {
	for _, k := range []string{"", "/abs", "a/../b", "./a", "a/."} {
		if err := validKey(k); err == nil {
			t.Errorf("validKey(%q) = nil, want error", k)
		}
	}
	if err := validKey("trees/a/b.json"); err != nil {
		t.Errorf("validKey: %v", err)
	}
}

func TestContentTypeForKey(t *testing.T) {
	if got := contentTypeForKey("x/Tree.JSON"); got != "application/json" {
		t.Errorf("json = %q", got)
	}
	if got := contentTypeForKey("x/n.txt"); got != "text/plain; charset=utf-8" {
		t.Errorf("txt = %q", got)
	}
	if got := contentTypeForKey("x/n.bin"); got != "" {
		t.Errorf("bin = %q", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		code ConfigErrorCode
	}{
		{"bad mode", Config{Mode: "s3"}, ConfigErrorInvalidMode},
		{"fs without dir", Config{Mode: ModeFS}, ConfigErrorMissingDir},
		{"gcs without bucket", Config{Mode: ModeGCS}, ConfigErrorMissingBucket},
		{"emulator without host", Config{Mode: ModeGCSEmulator, Bucket: "b"}, ConfigErrorMissingEmulatorHost},
		{"emulator relative host", Config{Mode: ModeGCSEmulator, Bucket: "b", EmulatorHost: "fake-gcs:4443"}, ConfigErrorInvalidEmulatorHost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Validate()
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if cerr.Code != tt.code {
				t.Errorf("code = %q, want %q", cerr.Code, tt.code)
			}
			if cerr.Error() == "" {
				t.Error("empty error message")
			}
		})
	}
}

func TestConfigValidateNormalizes(t *testing.T) {
	cfg, err := Config{Mode: " GCS_Emulator ", Bucket: " b ", EmulatorHost: "http://localhost:4443/"}.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Mode != ModeGCSEmulator || cfg.Bucket != "b" || cfg.EmulatorHost != "http://localhost:4443" {
		t.Errorf("normalized = %+v", cfg)
	}
}

func TestOpenFS(t *testing.T) {
	s, err := Open(context.Background(), Config{Mode: ModeFS, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := s.(*FSStore); !ok {
		t.Errorf("Open returned %T, want *FSStore", s)
	}
}
