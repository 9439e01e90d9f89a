package bonsai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/knowledge-bonsai/bonsai/internal/blob"
	"github.com/knowledge-bonsai/bonsai/internal/generate"
	"github.com/knowledge-bonsai/bonsai/internal/tree"
)

// NodeContent is generated prose for one node.
type NodeContent struct {
	NodeID  string          `json:"node_id"`
	Content string          `json:"content"`
	Links   []generate.Link `json:"links"`
	Cached  bool            `json:"cached"`
}

// LocateNode finds the serialized object of nodeID inside the stored
// document of treeID.
func (s *Service) LocateNode(ctx context.Context, treeID, nodeID string) (tree.Span, error) {
	if strings.TrimSpace(nodeID) == "" {
		return tree.Span{}, invalid("node id is required")
	}
	raw, err := s.Document(ctx, treeID)
	if err != nil {
		return tree.Span{}, err
	}
	span, ok := tree.Locate(string(raw), nodeID)
	if !ok {
		return tree.Span{}, fmt.Errorf("%w: %s in tree %s", ErrNodeNotFound, nodeID, treeID)
	}
	return span, nil
}

// NodeContent returns prose for a node, serving it from the blob cache when
// present and generating and caching it otherwise.
func (s *Service) NodeContent(ctx context.Context, treeID, nodeID string) (*NodeContent, error) {
	span, err := s.LocateNode(ctx, treeID, nodeID)
	if err != nil {
		return nil, err
	}

	key := blob.NodeContentKey(treeID, nodeID)
	cached, err := s.blobs.Get(ctx, key)
	switch {
	case err == nil:
		md := string(cached)
		return &NodeContent{NodeID: nodeID, Content: md, Links: generate.ExtractLinks(md), Cached: true}, nil
	case !errors.Is(err, blob.ErrNotFound):
		s.log.Warn("reading cached node content", "tree_id", treeID, "node_id", nodeID, "error", err)
	}

	md, err := s.gen.NodeContent(ctx, span, nodeID)
	if err != nil {
		return nil, upstream("generating node content", err)
	}
	if err := s.blobs.Put(ctx, key, []byte(md), "text/markdown; charset=utf-8"); err != nil {
		s.log.Warn("caching node content", "tree_id", treeID, "node_id", nodeID, "error", err)
	}
	return &NodeContent{NodeID: nodeID, Content: md, Links: generate.ExtractLinks(md)}, nil
}

// UncachedNodes lists the ids of nodes of type t whose prose has not been
// generated yet.
func (s *Service) UncachedNodes(ctx context.Context, treeID string, t tree.NodeType) ([]string, error) {
	raw, err := s.Document(ctx, treeID)
	if err != nil {
		return nil, err
	}
	doc, err := tree.Decode(raw)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, n := range doc.NodesOfType(t) {
		ok, err := s.blobs.Exists(ctx, blob.NodeContentKey(treeID, n.ID))
		if err != nil {
			return nil, err
		}
		if !ok {
			pending = append(pending, n.ID)
		}
	}
	return pending, nil
}
