package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultTreeLimit = 10

const treeWithOwnerQuery = `SELECT t.id, t.owner_id, t.title, t.prompt, t.blob_key, t.created_at, t.updated_at,
	u.id, u.email, u.name, u.created_at, u.updated_at
	FROM trees t JOIN users u ON u.id = t.owner_id`

func scanTreeWithOwner(r rowScanner) (TreeWithOwner, error) {
	var t TreeWithOwner
	var tc, tu, uc, uu string
	if err := r.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Prompt, &t.BlobKey, &tc, &tu,
		&t.Owner.ID, &t.Owner.Email, &t.Owner.Name, &uc, &uu); err != nil {
		return TreeWithOwner{}, err
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Time
	}{
		{"trees.created_at", tc, &t.CreatedAt},
		{"trees.updated_at", tu, &t.UpdatedAt},
		{"users.created_at", uc, &t.Owner.CreatedAt},
		{"users.updated_at", uu, &t.Owner.UpdatedAt},
	} {
		v, err := parseTime(f.name, f.raw)
		if err != nil {
			return TreeWithOwner{}, err
		}
		*f.dst = v
	}
	return t, nil
}

// CreateTree inserts a tree record. Title defaults to "Untitled Tree".
func (s *Store) CreateTree(ctx context.Context, t Tree) (Tree, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if strings.TrimSpace(t.Title) == "" {
		t.Title = "Untitled Tree"
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trees (id, owner_id, title, prompt, blob_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Title, t.Prompt, t.BlobKey, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return Tree{}, fmt.Errorf("creating tree: %w", err)
	}
	return t, nil
}

func (s *Store) GetTree(ctx context.Context, id string) (TreeWithOwner, error) {
	t, err := scanTreeWithOwner(s.db.QueryRowContext(ctx, treeWithOwnerQuery+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return TreeWithOwner{}, ErrNotFound
	}
	return t, err
}

// ListTrees returns one page of trees, newest first, and the total number
// of trees matching the filter. Search matches the title or the owner's
// name, case-insensitively.
func (s *Store) ListTrees(ctx context.Context, f TreeFilter) ([]TreeWithOwner, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultTreeLimit
	}

	var where []string
	var args []any
	if q := strings.TrimSpace(f.Search); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		where = append(where, `(lower(t.title) LIKE ? OR lower(u.name) LIKE ?)`)
		args = append(args, like, like)
	}
	if f.OwnerID != "" {
		where = append(where, `t.owner_id = ?`)
		args = append(args, f.OwnerID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM trees t JOIN users u ON u.id = t.owner_id` + clause
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting trees: %w", err)
	}

	pageArgs := append(append([]any{}, args...), f.Limit, (f.Page-1)*f.Limit)
	rows, err := s.db.QueryContext(ctx,
		treeWithOwnerQuery+clause+` ORDER BY t.created_at DESC, t.id ASC LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing trees: %w", err)
	}
	defer rows.Close()

	trees := []TreeWithOwner{}
	for rows.Next() {
		t, err := scanTreeWithOwner(rows)
		if err != nil {
			return nil, 0, err
		}
		trees = append(trees, t)
	}
	return trees, total, rows.Err()
}

// UpdateTreeContent points a tree at a regenerated document.
func (s *Store) UpdateTreeContent(ctx context.Context, id, title, prompt, blobKey string) error {
	if strings.TrimSpace(title) == "" {
		title = "Untitled Tree"
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE trees SET title = ?, prompt = ?, blob_key = ?, updated_at = ? WHERE id = ?`,
		title, prompt, blobKey, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// OwnedTrees returns the id and blob key of every tree owned by ownerID.
func (s *Store) OwnedTrees(ctx context.Context, ownerID string) ([]Tree, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, blob_key FROM trees WHERE owner_id = ? ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tree
	for rows.Next() {
		t := Tree{OwnerID: ownerID}
		if err := rows.Scan(&t.ID, &t.BlobKey); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
