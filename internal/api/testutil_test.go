package api

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/knowledge-bonsai/bonsai/internal/blob"
	"github.com/knowledge-bonsai/bonsai/internal/bonsai"
	"github.com/knowledge-bonsai/bonsai/internal/generate"
	"github.com/knowledge-bonsai/bonsai/internal/source"
	"github.com/knowledge-bonsai/bonsai/internal/storage"
	"github.com/knowledge-bonsai/bonsai/internal/tree"
)

type stubGenerator struct {
	err error
}

func (g stubGenerator) Tree(context.Context, string, string) (*tree.Document, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &tree.Document{
		Metadata: tree.Metadata{Title: "Bridges", CreatedAt: "2025-01-01T00:00:00Z"},
		Root: &tree.Node{ID: "root", Label: "Bridges", Type: tree.TypePot, Children: []*tree.Node{
			{ID: "t1", Label: "Statics", Type: tree.TypeTrunk, Level: 1, Children: []*tree.Node{
				{ID: "b1", Label: "Forces", Type: tree.TypeBranch, Level: 2, Children: []*tree.Node{
					{ID: "l1", Label: "Tension", Type: tree.TypeLeaf, Level: 3},
				}},
				{ID: "b2", Label: "Loads", Type: tree.TypeBranch, Level: 2},
			}},
		}},
	}, nil
}

func (g stubGenerator) NodeContent(_ context.Context, _ tree.Span, nodeID string) (string, error) {
	return "# " + nodeID + "\nRead [more](https://example.com/" + nodeID + ").", nil
}

func (g stubGenerator) Quiz(context.Context, []byte) ([]generate.QuizItem, error) {
	return []generate.QuizItem{
		{Question: "Which force stretches a cable?", Choices: []string{"tension", "compression", "shear", "torsion"}, Answer: "tension"},
	}, nil
}

type stubExtractor struct{}

func (stubExtractor) Extract(context.Context, source.Source) (string, error) { return "", nil }

func newTestService(t *testing.T, gen bonsai.Generator) (*bonsai.Service, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	blobs, err := blob.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("opening blob store: %v", err)
	}
	svc := bonsai.New(store, blobs, gen,
		bonsai.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		bonsai.WithSourceExtractor(stubExtractor{}),
	)
	return svc, store
}
