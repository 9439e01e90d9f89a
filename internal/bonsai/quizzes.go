package bonsai

import (
	"context"
	"fmt"
	"strings"

	"github.com/knowledge-bonsai/bonsai/internal/storage"
)

// CreateQuiz generates multiple-choice questions for a tree and stores
// them. The requesting user is registered if unknown.
func (s *Service) CreateQuiz(ctx context.Context, treeID, username string) ([]storage.Quiz, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, invalid("username is required")
	}
	raw, err := s.Document(ctx, treeID)
	if err != nil {
		return nil, err
	}

	items, err := s.gen.Quiz(ctx, raw)
	if err != nil {
		return nil, upstream("generating quiz", err)
	}
	if _, err := s.store.EnsureUser(ctx, username); err != nil {
		return nil, fmt.Errorf("ensuring user: %w", err)
	}

	quizzes := make([]storage.Quiz, len(items))
	for i, it := range items {
		quizzes[i] = storage.Quiz{Question: it.Question, Choices: it.Choices, Answer: it.Answer}
	}
	saved, err := s.store.SaveQuizzes(ctx, treeID, quizzes)
	if err != nil {
		return nil, err
	}
	s.log.Info("quiz created", "tree_id", treeID, "questions", len(saved))
	return saved, nil
}

// ListQuizzes returns every stored question for a tree.
func (s *Service) ListQuizzes(ctx context.Context, treeID string) ([]storage.Quiz, error) {
	if _, err := s.treeRecord(ctx, treeID); err != nil {
		return nil, err
	}
	return s.store.ListQuizzes(ctx, treeID)
}
