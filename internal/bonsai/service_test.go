package bonsai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/knowledge-bonsai/bonsai/internal/blob"
	"github.com/knowledge-bonsai/bonsai/internal/generate"
	"github.com/knowledge-bonsai/bonsai/internal/layout"
	"github.com/knowledge-bonsai/bonsai/internal/source"
	"github.com/knowledge-bonsai/bonsai/internal/storage"
	"github.com/knowledge-bonsai/bonsai/internal/tree"
)

type fakeGenerator struct {
	mu          sync.Mutex
	doc         *tree.Document
	treeErr     error
	content     string
	quiz        []generate.QuizItem
	prompts     []string
	sources     []string
	contentReqs []string
}

func (f *fakeGenerator) Tree(_ context.Context, prompt, sourceText string) (*tree.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.sources = append(f.sources, sourceText)
	if f.treeErr != nil {
		return nil, f.treeErr
	}
	return f.doc, nil
}

func (f *fakeGenerator) NodeContent(_ context.Context, span tree.Span, nodeID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contentReqs = append(f.contentReqs, nodeID)
	return f.content + " for " + nodeID, nil
}

func (f *fakeGenerator) Quiz(_ context.Context, docJSON []byte) ([]generate.QuizItem, error) {
	return f.quiz, nil
}

func (f *fakeGenerator) contentCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.contentReqs)
}

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) Extract(context.Context, source.Source) (string, error) {
	return f.text, f.err
}

func sampleDoc() *tree.Document {
	return &tree.Document{
		Metadata: tree.Metadata{Title: "Learning Go", CreatedAt: "2025-01-01T00:00:00Z"},
		Root: &tree.Node{ID: "root", Label: "Go", Type: tree.TypePot, Children: []*tree.Node{
			{ID: "t1", Label: "Basics", Type: tree.TypeTrunk, Level: 1, Children: []*tree.Node{
				{ID: "b1", Label: "Types", Type: tree.TypeBranch, Level: 2, Children: []*tree.Node{
					{ID: "l1", Label: "Structs", Type: tree.TypeLeaf, Level: 3},
				}},
			}},
			{ID: "t2", Label: "Concurrency", Type: tree.TypeTrunk, Level: 1},
		}},
	}
}

type fixture struct {
	svc   *Service
	store *storage.Store
	blobs *blob.FSStore
	gen   *fakeGenerator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	blobs, err := blob.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	gen := &fakeGenerator{
		doc:     sampleDoc(),
		content: "## Prose\nSee [Go](https://go.dev).",
		quiz: []generate.QuizItem{
			{Question: "Q1", Choices: []string{"a", "b", "c", "d"}, Answer: "a"},
			{Question: "Q2", Choices: []string{"a", "b", "c", "d"}, Answer: "d"},
		},
	}
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSourceExtractor(fakeExtractor{}),
	}, opts...)
	return &fixture{svc: New(store, blobs, gen, opts...), store: store, blobs: blobs, gen: gen}
}

func (f *fixture) createTree(t *testing.T) *CreatedTree {
	t.Helper()
	out, err := f.svc.CreateTree(context.Background(), CreateTreeInput{Username: "ada@example.com", Prompt: "learn go"})
	if err != nil {
		t.Fatalf("CreateTree: %v", err)
	}
	return out
}

func TestCreateTree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.CreateTree(ctx, CreateTreeInput{Username: "  ada@example.com ", Prompt: "  learn go  "})
	if err != nil {
		t.Fatalf("CreateTree: %v", err)
	}
	if out.ID == "" || out.Data == nil || out.Data.Metadata.Title != "Learning Go" {
		t.Fatalf("CreateTree = %+v", out)
	}
	if f.gen.prompts[0] != "learn go" {
		t.Errorf("prompt = %q, want trimmed", f.gen.prompts[0])
	}

	rec, err := f.store.GetTree(ctx, out.ID)
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if rec.Owner.Email != "ada@example.com" || rec.Owner.Name != "ada@example.com" {
		t.Errorf("owner = %+v", rec.Owner)
	}
	if !strings.HasPrefix(rec.BlobKey, "trees/"+rec.OwnerID+"/") || !strings.HasSuffix(rec.BlobKey, "_tree.json") {
		t.Errorf("blob key = %q", rec.BlobKey)
	}
	data, err := f.blobs.Get(ctx, rec.BlobKey)
	if err != nil {
		t.Fatalf("blob Get: %v", err)
	}
	if !strings.HasPrefix(string(data), `{"metadata":`) {
		t.Errorf("stored document = %s", data)
	}
}

func TestCreateTree_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []CreateTreeInput{
		{Username: "", Prompt: "learn go"},
		{Username: "ada", Prompt: " go "},
	}
	for _, in := range tests {
		if _, err := f.svc.CreateTree(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("CreateTree(%+v) err = %v, want ErrInvalidInput", in, err)
		}
	}
	if len(f.gen.prompts) != 0 {
		t.Error("generator called for invalid input")
	}
}

func TestCreateTree_SourceErrors(t *testing.T) {
	f := newFixture(t, WithSourceExtractor(fakeExtractor{err: source.ErrInvalidSource}))
	_, err := f.svc.CreateTree(context.Background(), CreateTreeInput{Username: "ada", Prompt: "learn go"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("invalid source err = %v", err)
	}

	f = newFixture(t, WithSourceExtractor(fakeExtractor{err: errors.New("dial tcp")}))
	_, err = f.svc.CreateTree(context.Background(), CreateTreeInput{Username: "ada", Prompt: "learn go"})
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("fetch failure err = %v", err)
	}

	f = newFixture(t, WithSourceExtractor(fakeExtractor{text: "chapter"}))
	if _, err := f.svc.CreateTree(context.Background(), CreateTreeInput{Username: "ada", Prompt: "learn go"}); err != nil {
		t.Fatalf("CreateTree: %v", err)
	}
	if f.gen.sources[0] != "chapter" {
		t.Errorf("source passed to generator = %q", f.gen.sources[0])
	}
}

func TestCreateTree_GeneratorFailure(t *testing.T) {
	f := newFixture(t)
	f.gen.treeErr = &tree.ValidationError{Problems: []string{"root is required"}}

	_, err := f.svc.CreateTree(context.Background(), CreateTreeInput{Username: "ada", Prompt: "learn go"})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	var verr *tree.ValidationError
	if !errors.As(err, &verr) {
		t.Error("validation detail lost")
	}
	users, _ := f.store.ListUsers(context.Background(), 0, 0)
	if len(users) != 0 {
		t.Errorf("user created despite failure: %+v", users)
	}
}

func TestCreateTree_EnqueuesPrefetch(t *testing.T) {
	f := newFixture(t, WithPrefetch(true))
	out := f.createTree(t)

	job, err := f.store.ClaimNextJob(context.Background(), []string{JobNodePrefetch})
	if err != nil || job == nil {
		t.Fatalf("ClaimNextJob = %v, %v", job, err)
	}
	if !strings.Contains(job.PayloadJSON, out.ID) {
		t.Errorf("payload = %s", job.PayloadJSON)
	}
}

func TestGetTree(t *testing.T) {
	f := newFixture(t)
	out := f.createTree(t)

	got, err := f.svc.GetTree(context.Background(), out.ID)
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if got.Data == nil || got.Data.Count() != 5 {
		t.Errorf("Data = %+v", got.Data)
	}
	if got.Owner.Email != "ada@example.com" {
		t.Errorf("Owner = %+v", got.Owner)
	}

	if _, err := f.svc.GetTree(context.Background(), "missing"); !errors.Is(err, ErrTreeNotFound) {
		t.Errorf("missing tree err = %v", err)
	}
}

func TestGetTree_MissingBlob(t *testing.T) {
	f := newFixture(t)
	out := f.createTree(t)
	rec, _ := f.store.GetTree(context.Background(), out.ID)
	if err := f.blobs.Delete(context.Background(), rec.BlobKey); err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.GetTree(context.Background(), out.ID)
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if got.Data != nil {
		t.Error("expected nil Data when blob is missing")
	}
}

func TestListTrees(t *testing.T) {
	f := newFixture(t)
	f.createTree(t)
	f.createTree(t)

	page, err := f.svc.ListTrees(context.Background(), storage.TreeFilter{Search: "LEARNING"})
	if err != nil {
		t.Fatalf("ListTrees: %v", err)
	}
	if page.Total != 2 || len(page.Trees) != 2 || page.Page != 1 || page.Limit != 10 {
		t.Errorf("page = %+v", page)
	}
}

func TestRegenerateTree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := f.createTree(t)
	before, _ := f.store.GetTree(ctx, out.ID)

	if _, err := f.svc.NodeContent(ctx, out.ID, "t1"); err != nil {
		t.Fatalf("NodeContent: %v", err)
	}

	regen := sampleDoc()
	regen.Metadata.Title = "Go, again"
	f.gen.doc = regen
	f.svc.now = func() time.Time { return before.CreatedAt.Add(time.Hour) }

	got, err := f.svc.RegenerateTree(ctx, out.ID, "")
	if err != nil {
		t.Fatalf("RegenerateTree: %v", err)
	}
	if got.ID != out.ID || got.Data.Metadata.Title != "Go, again" {
		t.Errorf("RegenerateTree = %+v", got)
	}
	if f.gen.prompts[1] != "learn go" {
		t.Errorf("reused prompt = %q", f.gen.prompts[1])
	}

	after, _ := f.store.GetTree(ctx, out.ID)
	if after.BlobKey == before.BlobKey || after.Title != "Go, again" {
		t.Errorf("record after regenerate = %+v", after)
	}
	if ok, _ := f.blobs.Exists(ctx, before.BlobKey); ok {
		t.Error("previous document still stored")
	}
	if ok, _ := f.blobs.Exists(ctx, blob.NodeContentKey(out.ID, "t1")); ok {
		t.Error("node cache not cleared")
	}

	if _, err := f.svc.RegenerateTree(ctx, "missing", "x y z"); !errors.Is(err, ErrTreeNotFound) {
		t.Errorf("missing tree err = %v", err)
	}
}

func TestLayout(t *testing.T) {
	f := newFixture(t)
	out := f.createTree(t)

	g, err := f.svc.Layout(context.Background(), out.ID)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if len(g.Nodes) != 5 || len(g.Edges) != 4 {
		t.Errorf("graph has %d nodes and %d edges", len(g.Nodes), len(g.Edges))
	}
	want := layout.Compute(sampleDoc())
	for i := range want.Nodes {
		if g.Nodes[i].Position != want.Nodes[i].Position {
			t.Errorf("node %s at %+v, want %+v", g.Nodes[i].ID, g.Nodes[i].Position, want.Nodes[i].Position)
		}
	}
}

func TestLocateNode(t *testing.T) {
	f := newFixture(t)
	out := f.createTree(t)

	span, err := f.svc.LocateNode(context.Background(), out.ID, "b1")
	if err != nil {
		t.Fatalf("LocateNode: %v", err)
	}
	if !strings.HasPrefix(span.Text, `{"id":"b1"`) || !strings.HasSuffix(span.Text, "}") {
		t.Errorf("span = %q", span.Text)
	}
	if span.End-span.Start != len(span.Text) {
		t.Errorf("span offsets %d..%d do not match text length %d", span.Start, span.End, len(span.Text))
	}

	if _, err := f.svc.LocateNode(context.Background(), out.ID, "nope"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("missing node err = %v", err)
	}
}

func TestNodeContent_GeneratesThenCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := f.createTree(t)

	first, err := f.svc.NodeContent(ctx, out.ID, "l1")
	if err != nil {
		t.Fatalf("NodeContent: %v", err)
	}
	if first.Cached || !strings.HasSuffix(first.Content, "for l1") {
		t.Errorf("first = %+v", first)
	}
	if len(first.Links) != 1 || first.Links[0].URL != "https://go.dev" {
		t.Errorf("links = %+v", first.Links)
	}

	second, err := f.svc.NodeContent(ctx, out.ID, "l1")
	if err != nil {
		t.Fatalf("NodeContent: %v", err)
	}
	if !second.Cached || second.Content != first.Content {
		t.Errorf("second = %+v", second)
	}
	if n := f.gen.contentCalls(); n != 1 {
		t.Errorf("generator calls = %d, want 1", n)
	}

	if _, err := f.svc.NodeContent(ctx, out.ID, "ghost"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("missing node err = %v", err)
	}
}

func TestUncachedNodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := f.createTree(t)

	if _, err := f.svc.NodeContent(ctx, out.ID, "t2"); err != nil {
		t.Fatal(err)
	}
	ids, err := f.svc.UncachedNodes(ctx, out.ID, tree.TypeTrunk)
	if err != nil {
		t.Fatalf("UncachedNodes: %v", err)
	}
	if len(ids) != 1 || ids[0] != "t1" {
		t.Errorf("UncachedNodes = %v", ids)
	}
}

func TestQuizzes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := f.createTree(t)

	saved, err := f.svc.CreateQuiz(ctx, out.ID, "quizzer@example.com")
	if err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	if len(saved) != 2 || saved[0].ID == "" || saved[1].Answer != "d" {
		t.Errorf("saved = %+v", saved)
	}
	if _, err := f.store.GetUserByEmail(ctx, "quizzer@example.com"); err != nil {
		t.Errorf("quiz user not ensured: %v", err)
	}

	listed, err := f.svc.ListQuizzes(ctx, out.ID)
	if err != nil {
		t.Fatalf("ListQuizzes: %v", err)
	}
	if len(listed) != 2 || listed[0].Question != "Q1" {
		t.Errorf("listed = %+v", listed)
	}

	if _, err := f.svc.CreateQuiz(ctx, out.ID, " "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank username err = %v", err)
	}
	if _, err := f.svc.CreateQuiz(ctx, "missing", "a"); !errors.Is(err, ErrTreeNotFound) {
		t.Errorf("missing tree err = %v", err)
	}
}

func TestUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.CreateUser(ctx, "grace@example.com", "")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Name != "grace@example.com" {
		t.Errorf("default name = %q", u.Name)
	}
	if _, err := f.svc.CreateUser(ctx, "grace@example.com", "dup"); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate err = %v", err)
	}
	if _, err := f.svc.CreateUser(ctx, "not-an-email", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad email err = %v", err)
	}

	u, err = f.svc.UpdateUser(ctx, u.ID, "", "Grace")
	if err != nil || u.Name != "Grace" || u.Email != "grace@example.com" {
		t.Errorf("UpdateUser = %+v, %v", u, err)
	}
	if _, err := f.svc.GetUser(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("missing user err = %v", err)
	}
	users, err := f.svc.ListUsers(ctx, 0, 10)
	if err != nil || len(users) != 1 {
		t.Errorf("ListUsers = %+v, %v", users, err)
	}
}

func TestDeleteUser_RemovesBlobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := f.createTree(t)
	if _, err := f.svc.NodeContent(ctx, out.ID, "t1"); err != nil {
		t.Fatal(err)
	}
	rec, _ := f.store.GetTree(ctx, out.ID)

	if err := f.svc.DeleteUser(ctx, rec.OwnerID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	keys, err := f.blobs.List(ctx, "trees/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("remaining blobs = %v", keys)
	}
	if _, err := f.svc.GetTree(ctx, out.ID); !errors.Is(err, ErrTreeNotFound) {
		t.Errorf("tree after user delete err = %v", err)
	}
	if err := f.svc.DeleteUser(ctx, rec.OwnerID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}
