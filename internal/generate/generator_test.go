package generate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/knowledge-bonsai/bonsai/internal/proxy"
	"github.com/knowledge-bonsai/bonsai/internal/tree"
)

type fakeCompleter struct {
	reply string
	err   error
	calls []proxy.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req proxy.CompletionRequest) (string, error) {
	f.calls = append(f.calls, req)
	return f.reply, f.err
}

const validTree = `{"metadata":{"title":"Go"},"root":{"id":"root","label":"Go","type":"pot","level":0,"children":[{"id":"t1","label":"Basics","type":"trunk","level":1,"children":[{"id":"b1","label":"Types","type":"branch","level":2,"children":[{"id":"l1","label":"Structs","type":"leaf","level":3}]}]}]}}`

func newTestGenerator(f *fakeCompleter) *Generator {
	g := New(f, "test-model")
	g.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return g
}

func TestTree(t *testing.T) {
	f := &fakeCompleter{reply: "```json\n" + validTree + "\n```"}
	g := newTestGenerator(f)

	doc, err := g.Tree(context.Background(), "learn go", "")
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if doc.Count() != 4 {
		t.Errorf("Count = %d, want 4", doc.Count())
	}
	if doc.Metadata.CreatedAt != "2025-03-01T12:00:00Z" {
		t.Errorf("CreatedAt = %q", doc.Metadata.CreatedAt)
	}

	if len(f.calls) != 1 {
		t.Fatalf("calls = %d", len(f.calls))
	}
	req := f.calls[0]
	if req.Model != "test-model" {
		t.Errorf("model = %q", req.Model)
	}
	if req.User != "Create a detailed tree structure based on the following prompt: learn go" {
		t.Errorf("user = %q", req.User)
	}
	if len(req.Schema) == 0 || req.SchemaName != "knowledge_tree" {
		t.Errorf("schema not sent: %q", req.SchemaName)
	}
}

func TestTree_IncludesSource(t *testing.T) {
	f := &fakeCompleter{reply: validTree}
	g := newTestGenerator(f)

	if _, err := g.Tree(context.Background(), "learn go", "  chapter one  "); err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if !strings.HasSuffix(f.calls[0].User, "[Reference material]\nchapter one") {
		t.Errorf("user = %q", f.calls[0].User)
	}
}

func TestTree_Invalid(t *testing.T) {
	f := &fakeCompleter{reply: `{"metadata":{"title":""},"root":{"id":"r","label":"x","type":"tree","level":0}}`}
	_, err := newTestGenerator(f).Tree(context.Background(), "x", "")
	var verr *tree.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *tree.ValidationError", err)
	}
	if len(verr.Problems) != 2 {
		t.Errorf("problems = %v", verr.Problems)
	}
}

func TestTree_Malformed(t *testing.T) {
	f := &fakeCompleter{reply: `{"metadata":`}
	if _, err := newTestGenerator(f).Tree(context.Background(), "x", ""); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestEmptyResponse(t *testing.T) {
	f := &fakeCompleter{reply: "  \n "}
	_, err := newTestGenerator(f).NodeContent(context.Background(), tree.Span{Text: `{"id":"a"}`}, "a")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestCompleterError(t *testing.T) {
	boom := errors.New("boom")
	f := &fakeCompleter{err: boom}
	_, err := newTestGenerator(f).Quiz(context.Background(), []byte(validTree))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}

func TestNodeContent(t *testing.T) {
	f := &fakeCompleter{reply: "# Structs\n\nStructs group fields."}
	span := tree.Span{Text: `{"id":"l1","label":"Structs","type":"leaf","level":3}`, Start: 10, End: 60}

	out, err := newTestGenerator(f).NodeContent(context.Background(), span, "l1")
	if err != nil {
		t.Fatalf("NodeContent: %v", err)
	}
	if !strings.HasPrefix(out, "# Structs") {
		t.Errorf("content = %q", out)
	}
	want := `Here are the found results: {"id":"l1","label":"Structs","type":"leaf","level":3}, generate content ONLY for "id": "l1"`
	if f.calls[0].User != want {
		t.Errorf("user =\n%s\nwant\n%s", f.calls[0].User, want)
	}
	if f.calls[0].Schema != nil {
		t.Error("node content should not request structured output")
	}
}

func TestQuiz(t *testing.T) {
	f := &fakeCompleter{reply: `{"quizzes":[{"question":"What groups fields?","choices":["struct","map","chan","func"],"answer":"struct"}]}`}
	items, err := newTestGenerator(f).Quiz(context.Background(), []byte(validTree))
	if err != nil {
		t.Fatalf("Quiz: %v", err)
	}
	if len(items) != 1 || items[0].Answer != "struct" || len(items[0].Choices) != 4 {
		t.Errorf("items = %+v", items)
	}
	if !strings.HasSuffix(f.calls[0].User, validTree) {
		t.Errorf("user prompt missing tree: %q", f.calls[0].User)
	}
	if !f.calls[0].Strict {
		t.Error("quiz schema should be strict")
	}
}

func TestQuiz_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", `quiz`},
		{"empty", `{"quizzes":[]}`},
		{"no question", `{"quizzes":[{"question":" ","choices":["a","b"],"answer":"a"}]}`},
		{"one choice", `{"quizzes":[{"question":"q","choices":["a"],"answer":"a"}]}`},
		{"answer not in choices", `{"quizzes":[{"question":"q","choices":["a","b"],"answer":"c"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeCompleter{reply: tt.reply}
			_, err := newTestGenerator(f).Quiz(context.Background(), []byte(validTree))
			if !errors.Is(err, ErrInvalidQuiz) {
				t.Fatalf("err = %v, want ErrInvalidQuiz", err)
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := map[string]string{
		"{}":                 "{}",
		"```json\n{}\n```":   "{}",
		"```\n{\"a\":1}\n```": `{"a":1}`,
		"  plain  ":          "plain",
	}
	for in, want := range tests {
		if got := stripFences(in); got != want {
			t.Errorf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractLinks(t *testing.T) {
	md := `See [Go Tour](https://go.dev/tour) and [Spec](https://go.dev/ref/spec).
Again [tour](https://go.dev/tour), local [x](/relative) and [ftp](ftp://x.org).`
	links := ExtractLinks(md)
	if len(links) != 2 {
		t.Fatalf("links = %+v", links)
	}
	if links[0] != (Link{Title: "Go Tour", URL: "https://go.dev/tour"}) {
		t.Errorf("links[0] = %+v", links[0])
	}
	if links[1].URL != "https://go.dev/ref/spec" {
		t.Errorf("links[1] = %+v", links[1])
	}
	if got := ExtractLinks("no links"); len(got) != 0 {
		t.Errorf("ExtractLinks = %+v", got)
	}
}
