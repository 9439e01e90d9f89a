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

const userColumns = `id, email, name, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (User, error) {
	var u User
	var createdAt, updatedAt string
	if err := r.Scan(&u.ID, &u.Email, &u.Name, &createdAt, &updatedAt); err != nil {
		return User{}, err
	}
	var err error
	if u.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return User{}, err
	}
	if u.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return User{}, err
	}
	return u, nil
}

// CreateUser inserts u, assigning an ID and timestamps when they are unset.
func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	u.Email = strings.TrimSpace(u.Email)
	if u.Email == "" {
		return User{}, fmt.Errorf("creating user: email is required")
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	if isUniqueViolation(err) {
		return User{}, fmt.Errorf("user %q: %w", u.Email, ErrConflict)
	}
	if err != nil {
		return User{}, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// EnsureUser returns the user registered under email, creating one named
// after the email when none exists.
func (s *Store) EnsureUser(ctx context.Context, email string) (User, error) {
	email = strings.TrimSpace(email)
	u, err := s.GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}
	u, err = s.CreateUser(ctx, User{Email: email, Name: email})
	if errors.Is(err, ErrConflict) {
		// Lost a race with a concurrent insert.
		return s.GetUserByEmail(ctx, email)
	}
	return u, err
}

// ListUsers returns users in creation order, skipping skip and returning at
// most take rows. take <= 0 means no limit.
func (s *Store) ListUsers(ctx context.Context, skip, take int) ([]User, error) {
	if take <= 0 {
		take = -1
	}
	if skip < 0 {
		skip = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`, take, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUser overwrites the email and name of an existing user.
func (s *Store) UpdateUser(ctx context.Context, u User) (User, error) {
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return User{}, err
	}
	if email := strings.TrimSpace(u.Email); email != "" {
		existing.Email = email
	}
	if u.Name != "" {
		existing.Name = u.Name
	}
	existing.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `UPDATE users SET email = ?, name = ?, updated_at = ? WHERE id = ?`,
		existing.Email, existing.Name, formatTime(existing.UpdatedAt), existing.ID)
	if isUniqueViolation(err) {
		return User{}, fmt.Errorf("user %q: %w", existing.Email, ErrConflict)
	}
	if err != nil {
		return User{}, fmt.Errorf("updating user: %w", err)
	}
	return existing, nil
}

// DeleteUser removes a user together with their trees and quizzes.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
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
