package bonsai

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/knowledge-bonsai/bonsai/internal/blob"
	"github.com/knowledge-bonsai/bonsai/internal/storage"
)

func mapUserErr(id string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrUserNotFound, id)
	case errors.Is(err, storage.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

func validEmail(email string) error {
	if email == "" {
		return invalid("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return invalid("email %q is not valid", email)
	}
	return nil
}

func (s *Service) CreateUser(ctx context.Context, email, name string) (storage.User, error) {
	email = strings.TrimSpace(email)
	if err := validEmail(email); err != nil {
		return storage.User{}, err
	}
	if strings.TrimSpace(name) == "" {
		name = email
	}
	u, err := s.store.CreateUser(ctx, storage.User{Email: email, Name: strings.TrimSpace(name)})
	return u, mapUserErr(email, err)
}

func (s *Service) GetUser(ctx context.Context, id string) (storage.User, error) {
	u, err := s.store.GetUser(ctx, id)
	return u, mapUserErr(id, err)
}

func (s *Service) ListUsers(ctx context.Context, skip, take int) ([]storage.User, error) {
	return s.store.ListUsers(ctx, skip, take)
}

// UpdateUser changes the email and/or name of a user. Empty fields are kept.
func (s *Service) UpdateUser(ctx context.Context, id, email, name string) (storage.User, error) {
	if email = strings.TrimSpace(email); email != "" {
		if err := validEmail(email); err != nil {
			return storage.User{}, err
		}
	}
	u, err := s.store.UpdateUser(ctx, storage.User{ID: id, Email: email, Name: strings.TrimSpace(name)})
	return u, mapUserErr(id, err)
}

// DeleteUser removes a user, their trees and quizzes, and every stored
// document and cached node of those trees.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	owned, err := s.store.OwnedTrees(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return mapUserErr(id, err)
	}

	for _, t := range owned {
		if err := blob.DeletePrefix(ctx, s.blobs, blob.NodeContentPrefix(t.ID)); err != nil {
			s.log.Warn("deleting node content", "tree_id", t.ID, "error", err)
		}
	}
	// Tree documents of every generation live under the owner's prefix.
	if err := blob.DeletePrefix(ctx, s.blobs, "trees/"+id+"/"); err != nil {
		s.log.Warn("deleting tree documents", "user_id", id, "error", err)
	}
	s.log.Info("user deleted", "user_id", id, "trees", len(owned))
	return nil
}
