// Package bonsai ties tree generation, storage and layout together into the
// operations exposed over HTTP, MCP and the CLI.
package bonsai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/knowledge-bonsai/bonsai/internal/blob"
	"github.com/knowledge-bonsai/bonsai/internal/generate"
	"github.com/knowledge-bonsai/bonsai/internal/source"
	"github.com/knowledge-bonsai/bonsai/internal/storage"
	"github.com/knowledge-bonsai/bonsai/internal/tree"
)

var (
	ErrTreeNotFound = errors.New("tree not found")
	ErrNodeNotFound = errors.New("node not found")
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidInput wraps every rejection of caller-supplied values.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstream wraps failures of the content generator or of fetching
	// a source.
	ErrUpstream = errors.New("upstream failure")
	ErrConflict = errors.New("conflict")
)

// JobNodePrefetch is the queue type for background node content
// generation.
const JobNodePrefetch = "node_content_prefetch"

// PrefetchPayload is the job payload of JobNodePrefetch.
type PrefetchPayload struct {
	TreeID string `json:"tree_id"`
}

// Generator produces tree documents, node prose and quizzes.
type Generator interface {
	Tree(ctx context.Context, prompt, sourceText string) (*tree.Document, error)
	NodeContent(ctx context.Context, span tree.Span, nodeID string) (string, error)
	Quiz(ctx context.Context, docJSON []byte) ([]generate.QuizItem, error)
}

// SourceExtractor turns a create-tree attachment into text.
type SourceExtractor interface {
	Extract(ctx context.Context, src source.Source) (string, error)
}

type Service struct {
	store    *storage.Store
	blobs    blob.Store
	gen      Generator
	sources  SourceExtractor
	prefetch bool
	log      *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

// WithPrefetch enqueues a node content prefetch job after each tree is
// created or regenerated.
func WithPrefetch(enabled bool) Option {
	return func(s *Service) { s.prefetch = enabled }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithSourceExtractor(e SourceExtractor) Option {
	return func(s *Service) { s.sources = e }
}

func New(store *storage.Store, blobs blob.Store, gen Generator, opts ...Option) *Service {
	s := &Service{
		store:   store,
		blobs:   blobs,
		gen:     gen,
		sources: &source.Extractor{},
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Store exposes the underlying record store to the prefetch worker.
func (s *Service) Store() *storage.Store { return s.store }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func upstream(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstream, what, err)
}

func (s *Service) enqueuePrefetch(ctx context.Context, treeID string) {
	if !s.prefetch {
		return
	}
	payload, err := json.Marshal(PrefetchPayload{TreeID: treeID})
	if err != nil {
		s.log.Warn("encoding prefetch payload", "tree_id", treeID, "error", err)
		return
	}
	if _, err := s.store.EnqueueJob(ctx, storage.Job{Type: JobNodePrefetch, PayloadJSON: string(payload)}); err != nil {
		s.log.Warn("enqueueing node prefetch", "tree_id", treeID, "error", err)
	}
}
