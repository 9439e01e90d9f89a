package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique constraint would be violated.
var ErrConflict = errors.New("already exists")

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tree is the relational record of a generated knowledge tree. The
// document itself lives in blob storage under BlobKey.
type Tree struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Prompt    string    `json:"prompt"`
	BlobKey   string    `json:"blob_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TreeWithOwner struct {
	Tree
	Owner User `json:"owner"`
}

// TreeFilter selects a page of trees. Page is 1-based.
type TreeFilter struct {
	Search  string
	OwnerID string
	Page    int
	Limit   int
}

type Quiz struct {
	ID        string    `json:"id"`
	TreeID    string    `json:"tree_id"`
	Question  string    `json:"question"`
	Choices   []string  `json:"choices"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
