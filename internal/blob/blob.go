// Package blob stores serialized tree documents and generated node prose
// in object storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is an object store addressed by slash-separated keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Open streams an object. The caller must close the reader.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// TreeKey is where a tree document generated for ownerID at t is stored.
func TreeKey(ownerID string, t time.Time) string {
	return fmt.Sprintf("trees/%s/%d_tree.json", ownerID, t.UnixMilli())
}

// NodeContentKey is where generated prose for one node is cached.
func NodeContentKey(treeID, nodeID string) string {
	return fmt.Sprintf("trees/%s/nodes/%s.txt", treeID, nodeID)
}

// NodeContentPrefix lists every cached node of a tree.
func NodeContentPrefix(treeID string) string {
	return fmt.Sprintf("trees/%s/nodes/", treeID)
}

// ParseURL splits a gs://bucket/key URL. A value without the scheme is
// taken as a bare key in the configured bucket.
func ParseURL(raw string) (bucket, key string) {
	raw = strings.TrimSpace(raw)
	rest, ok := strings.CutPrefix(raw, "gs://")
	if !ok {
		return "", strings.TrimPrefix(raw, "/")
	}
	bucket, key, _ = strings.Cut(rest, "/")
	return bucket, key
}

// DeletePrefix removes every object under prefix and reports the first
// failure after attempting all of them.
func DeletePrefix(ctx context.Context, s Store, prefix string) error {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	var first error
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil && !errors.Is(err, ErrNotFound) && first == nil {
			first = err
		}
	}
	return first
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, ".txt"):
		return "text/plain; charset=utf-8"
	case strings.HasSuffix(s, ".md"):
		return "text/markdown; charset=utf-8"
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	default:
		return ""
	}
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid object key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return fmt.Errorf("invalid object key %q", key)
		}
	}
	return nil
}
