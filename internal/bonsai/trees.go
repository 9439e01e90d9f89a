package bonsai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/knowledge-bonsai/bonsai/internal/blob"
	"github.com/knowledge-bonsai/bonsai/internal/layout"
	"github.com/knowledge-bonsai/bonsai/internal/source"
	"github.com/knowledge-bonsai/bonsai/internal/storage"
	"github.com/knowledge-bonsai/bonsai/internal/tree"
)

const minPromptLen = 3

type CreateTreeInput struct {
	Username string
	Prompt   string
	Source   source.Source
}

// CreatedTree is the result of generating a tree.
type CreatedTree struct {
	ID   string         `json:"id"`
	Data *tree.Document `json:"data"`
}

// TreeDetail is a tree record with its owner and parsed document. Data is
// nil when the document could not be read.
type TreeDetail struct {
	storage.TreeWithOwner
	Data *tree.Document `json:"treeData"`
}

type TreePage struct {
	Trees []storage.TreeWithOwner `json:"trees"`
	Total int                     `json:"total"`
	Page  int                     `json:"page"`
	Limit int                     `json:"limit"`
}

func normalizePrompt(p string) (string, error) {
	p = strings.TrimSpace(p)
	if utf8.RuneCountInString(p) < minPromptLen {
		return "", invalid("prompt must be at least %d characters", minPromptLen)
	}
	return p, nil
}

// CreateTree generates a tree for in.Prompt, stores the document and records
// it under the user identified by in.Username.
func (s *Service) CreateTree(ctx context.Context, in CreateTreeInput) (*CreatedTree, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, invalid("username is required")
	}
	prompt, err := normalizePrompt(in.Prompt)
	if err != nil {
		return nil, err
	}

	sourceText, err := s.sources.Extract(ctx, in.Source)
	if errors.Is(err, source.ErrInvalidSource) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err != nil {
		return nil, upstream("reading source", err)
	}

	doc, data, err := s.generateTree(ctx, prompt, sourceText)
	if err != nil {
		return nil, err
	}

	user, err := s.store.EnsureUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("ensuring user: %w", err)
	}

	key := blob.TreeKey(user.ID, s.now())
	if err := s.blobs.Put(ctx, key, data, "application/json"); err != nil {
		return nil, fmt.Errorf("uploading tree: %w", err)
	}

	rec, err := s.store.CreateTree(ctx, storage.Tree{
		OwnerID: user.ID,
		Title:   doc.Metadata.Title,
		Prompt:  prompt,
		BlobKey: key,
	})
	if err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.log.Warn("removing orphaned tree blob", "key", key, "error", derr)
		}
		return nil, err
	}

	s.log.Info("tree created", "tree_id", rec.ID, "owner_id", user.ID, "nodes", doc.Count())
	s.enqueuePrefetch(ctx, rec.ID)
	return &CreatedTree{ID: rec.ID, Data: doc}, nil
}

// RegenerateTree replaces a tree's document with a freshly generated one.
// An empty prompt reuses the stored prompt. Cached node prose is dropped.
func (s *Service) RegenerateTree(ctx context.Context, treeID, prompt string) (*CreatedTree, error) {
	rec, err := s.treeRecord(ctx, treeID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = rec.Prompt
	}
	if prompt, err = normalizePrompt(prompt); err != nil {
		return nil, err
	}

	doc, data, err := s.generateTree(ctx, prompt, "")
	if err != nil {
		return nil, err
	}

	key := blob.TreeKey(rec.OwnerID, s.now())
	if err := s.blobs.Put(ctx, key, data, "application/json"); err != nil {
		return nil, fmt.Errorf("uploading tree: %w", err)
	}
	if err := s.store.UpdateTreeContent(ctx, rec.ID, doc.Metadata.Title, prompt, key); err != nil {
		return nil, err
	}

	_, oldKey := blob.ParseURL(rec.BlobKey)
	if oldKey != key {
		if err := s.blobs.Delete(ctx, oldKey); err != nil && !errors.Is(err, blob.ErrNotFound) {
			s.log.Warn("removing previous tree blob", "key", oldKey, "error", err)
		}
	}
	if err := blob.DeletePrefix(ctx, s.blobs, blob.NodeContentPrefix(rec.ID)); err != nil {
		s.log.Warn("clearing node content cache", "tree_id", rec.ID, "error", err)
	}

	s.log.Info("tree regenerated", "tree_id", rec.ID, "nodes", doc.Count())
	s.enqueuePrefetch(ctx, rec.ID)
	return &CreatedTree{ID: rec.ID, Data: doc}, nil
}

func (s *Service) generateTree(ctx context.Context, prompt, sourceText string) (*tree.Document, []byte, error) {
	doc, err := s.gen.Tree(ctx, prompt, sourceText)
	if err != nil {
		return nil, nil, upstream("generating tree", err)
	}
	data, err := tree.Encode(doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}

// ListTrees returns one page of tree records, newest first.
func (s *Service) ListTrees(ctx context.Context, f storage.TreeFilter) (*TreePage, error) {
	trees, total, err := s.store.ListTrees(ctx, f)
	if err != nil {
		return nil, err
	}
	page := &TreePage{Trees: trees, Total: total, Page: f.Page, Limit: f.Limit}
	if page.Page < 1 {
		page.Page = 1
	}
	if page.Limit < 1 {
		page.Limit = 10
	}
	return page, nil
}

// GetTree returns a tree with its parsed document. Failing to read the
// document is logged, not returned.
func (s *Service) GetTree(ctx context.Context, id string) (*TreeDetail, error) {
	rec, err := s.treeRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &TreeDetail{TreeWithOwner: rec}

	raw, err := s.documentBytes(ctx, rec)
	if err != nil {
		s.log.Error("reading tree document", "tree_id", id, "key", rec.BlobKey, "error", err)
		return detail, nil
	}
	doc, err := tree.Decode(raw)
	if err != nil {
		s.log.Error("parsing tree document", "tree_id", id, "error", err)
		return detail, nil
	}
	detail.Data = doc
	return detail, nil
}

// Document returns the stored serialized document of a tree.
func (s *Service) Document(ctx context.Context, id string) ([]byte, error) {
	rec, err := s.treeRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.documentBytes(ctx, rec)
}

// Layout computes the visual graph of a tree.
func (s *Service) Layout(ctx context.Context, id string, opts ...layout.Option) (layout.Graph, error) {
	raw, err := s.Document(ctx, id)
	if err != nil {
		return layout.Graph{}, err
	}
	doc, err := tree.Decode(raw)
	if err != nil {
		return layout.Graph{}, err
	}
	return layout.Compute(doc, opts...), nil
}

func (s *Service) treeRecord(ctx context.Context, id string) (storage.TreeWithOwner, error) {
	if strings.TrimSpace(id) == "" {
		return storage.TreeWithOwner{}, invalid("tree id is required")
	}
	rec, err := s.store.GetTree(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.TreeWithOwner{}, fmt.Errorf("%w: %s", ErrTreeNotFound, id)
	}
	if err != nil {
		return storage.TreeWithOwner{}, err
	}
	return rec, nil
}

func (s *Service) documentBytes(ctx context.Context, rec storage.TreeWithOwner) ([]byte, error) {
	_, key := blob.ParseURL(rec.BlobKey)
	data, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading tree %s document: %w", rec.ID, err)
	}
	return data, nil
}
