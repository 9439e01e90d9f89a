// Package generate asks a completion model for knowledge trees, node prose
// and quizzes, and checks what comes back.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knowledge-bonsai/bonsai/internal/proxy"
	"github.com/knowledge-bonsai/bonsai/internal/tree"
)

var (
	// ErrEmptyResponse is returned when the model answers with no text.
	ErrEmptyResponse = errors.New("model returned an empty response")
	// ErrInvalidQuiz is returned when a quiz reply does not hold together.
	ErrInvalidQuiz = errors.New("invalid quiz")
)

// Completer is the completion backend. *proxy.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, req proxy.CompletionRequest) (string, error)
}

// QuizItem is one multiple-choice question.
type QuizItem struct {
	Question string   `json:"question"`
	Choices  []string `json:"choices"`
	Answer   string   `json:"answer"`
}

// QuizSet is the reply shape requested for quizzes.
type QuizSet struct {
	Quizzes []QuizItem `json:"quizzes"`
}

// Generator produces content with one model.
type Generator struct {
	client Completer
	model  string
	now    func() time.Time
}

func New(client Completer, model string) *Generator {
	return &Generator{client: client, model: model, now: time.Now}
}

// Tree generates a knowledge tree for prompt. sourceText, when not empty, is
// passed along as reference material.
func (g *Generator) Tree(ctx context.Context, prompt, sourceText string) (*tree.Document, error) {
	schema, err := tree.Schema()
	if err != nil {
		return nil, err
	}
	raw, err := g.complete(ctx, proxy.CompletionRequest{
		System:     treeSystemPrompt,
		User:       treeUserPrompt(prompt, sourceText),
		SchemaName: "knowledge_tree",
		Schema:     schema,
	})
	if err != nil {
		return nil, err
	}

	doc, err := tree.Decode([]byte(raw))
	if err != nil {
		slog.Warn("tree reply is not valid JSON", "error", err, "response", truncate(raw, 500))
		return nil, err
	}
	if doc.Metadata.CreatedAt == "" {
		doc.Metadata.CreatedAt = g.now().UTC().Format(time.RFC3339)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// NodeContent writes markdown prose for nodeID given the node's located
// object text.
func (g *Generator) NodeContent(ctx context.Context, span tree.Span, nodeID string) (string, error) {
	return g.complete(ctx, proxy.CompletionRequest{
		System: nodeContentSystemPrompt,
		User:   nodeContentUserPrompt(span.Text, nodeID),
	})
}

// Quiz generates multiple-choice questions for a serialized tree.
func (g *Generator) Quiz(ctx context.Context, docJSON []byte) ([]QuizItem, error) {
	schema, err := tree.ReflectSchema(&QuizSet{})
	if err != nil {
		return nil, err
	}
	raw, err := g.complete(ctx, proxy.CompletionRequest{
		System:     quizSystemPrompt,
		User:       quizUserPrompt(docJSON),
		SchemaName: "quiz_set",
		Schema:     schema,
		Strict:     true,
	})
	if err != nil {
		return nil, err
	}

	var set QuizSet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuiz, err)
	}
	if err := set.validate(); err != nil {
		return nil, err
	}
	return set.Quizzes, nil
}

func (s QuizSet) validate() error {
	if len(s.Quizzes) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidQuiz)
	}
	for i, q := range s.Quizzes {
		if strings.TrimSpace(q.Question) == "" {
			return fmt.Errorf("%w: quizzes[%d]: question is empty", ErrInvalidQuiz, i)
		}
		if len(q.Choices) < 2 {
			return fmt.Errorf("%w: quizzes[%d]: need at least two choices", ErrInvalidQuiz, i)
		}
		found := false
		for _, c := range q.Choices {
			if c == q.Answer {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: quizzes[%d]: answer %q is not one of the choices", ErrInvalidQuiz, i, q.Answer)
		}
	}
	return nil
}

func (g *Generator) complete(ctx context.Context, req proxy.CompletionRequest) (string, error) {
	req.Model = g.model
	raw, err := g.client.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	raw = stripFences(raw)
	if raw == "" {
		return "", ErrEmptyResponse
	}
	return raw, nil
}

// stripFences removes a surrounding ``` or ```json block some models add
// despite being told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
