package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SaveQuizzes stores all items for treeID in one transaction and returns
// them with IDs and timestamps filled in.
func (s *Store) SaveQuizzes(ctx context.Context, treeID string, items []Quiz) ([]Quiz, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning quiz transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	saved := make([]Quiz, 0, len(items))
	for i, q := range items {
		q.ID = uuid.New().String()
		q.TreeID = treeID
		// Items of one batch keep their order when listed.
		q.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		if q.Choices == nil {
			q.Choices = []string{}
		}
		choices, err := json.Marshal(q.Choices)
		if err != nil {
			return nil, fmt.Errorf("encoding choices: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quizzes (id, tree_id, question, choices_json, answer, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			q.ID, q.TreeID, q.Question, string(choices), q.Answer, formatTime(q.CreatedAt)); err != nil {
			return nil, fmt.Errorf("saving quiz %d: %w", i, err)
		}
		saved = append(saved, q)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing quizzes: %w", err)
	}
	return saved, nil
}

// ListQuizzes returns every quiz item generated for treeID, oldest first.
func (s *Store) ListQuizzes(ctx context.Context, treeID string) ([]Quiz, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tree_id, question, choices_json, answer, created_at
		FROM quizzes WHERE tree_id = ? ORDER BY created_at ASC`, treeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quizzes := []Quiz{}
	for rows.Next() {
		var q Quiz
		var choices, createdAt string
		if err := rows.Scan(&q.ID, &q.TreeID, &q.Question, &choices, &q.Answer, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(choices), &q.Choices); err != nil {
			return nil, fmt.Errorf("decoding choices of quiz %s: %w", q.ID, err)
		}
		if q.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}
