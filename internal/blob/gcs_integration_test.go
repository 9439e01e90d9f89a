package blob

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

// Runs against fake-gcs-server when BONSAI_RUN_GCS_EMULATOR_INTEGRATION=true.
func TestGCSEmulatorRoundTrip(t *testing.T) {
	if strings.ToLower(os.Getenv("BONSAI_RUN_GCS_EMULATOR_INTEGRATION")) != "true" {
		t.Skip("set BONSAI_RUN_GCS_EMULATOR_INTEGRATION=true to run")
	}
	host := os.Getenv("BONSAI_GCS_EMULATOR_HOST")
	if host == "" {
		host = "http://localhost:4443"
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s, err := Open(ctx, Config{Mode: ModeGCSEmulator, Bucket: "bonsai-test", ProjectID: "test", EmulatorHost: host})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	gs := s.(*GCSStore)
	defer gs.Close()

	key := NodeContentKey("it-"+time.Now().Format("150405.000"), "n1")
	if err := s.Put(ctx, key, []byte("hello"), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, key)
	if err != nil || string(got) != "hello" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if ok, err := s.Exists(ctx, key); err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
}
