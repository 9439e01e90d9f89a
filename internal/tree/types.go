// Package tree defines the knowledge tree document and the scanner that
// extracts a single node's object text from its serialized form.
package tree

import "encoding/json"

// NodeType is the semantic role of a node in a knowledge tree.
type NodeType string

const (
	TypePot    NodeType = "pot"
	TypeTrunk  NodeType = "trunk"
	TypeBranch NodeType = "branch"
	TypeLeaf   NodeType = "leaf"
)

// IsKnown reports whether t is one of the four semantic node types.
func (t NodeType) IsKnown() bool {
	switch t {
	case TypePot, TypeTrunk, TypeBranch, TypeLeaf:
		return true
	}
	return false
}

// Node is one entry of a knowledge tree. Field order matters: the encoder
// writes "id" first so that serialized nodes start with {"id":"...".
type Node struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Type     NodeType `json:"type" jsonschema:"enum=pot,enum=trunk,enum=branch,enum=leaf"`
	Level    int      `json:"level"`
	Children []*Node  `json:"children,omitempty"`

	// levelMissing is set when a decoded node had no "level" key (or a
	// null one). Level is then 0 but must not be read as root level.
	levelMissing bool
}

// HasLevel reports whether Level was given. Nodes built in Go always have
// one; decoded nodes only when the key was present and not null.
func (n *Node) HasLevel() bool {
	return !n.levelMissing
}

// UnmarshalJSON decodes a node and records whether "level" was present.
func (n *Node) UnmarshalJSON(data []byte) error {
	type plain Node
	aux := struct {
		*plain
		Level *int `json:"level"`
	}{plain: (*plain)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	n.Level = 0
	n.levelMissing = aux.Level == nil
	if aux.Level != nil {
		n.Level = *aux.Level
	}
	return nil
}

type Metadata struct {
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	CreatedAt      string `json:"createdAt"`
	NeedMoreInfo   bool   `json:"needMoreInfo,omitempty"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`
}

// Document is the serialized unit persisted in blob storage.
type Document struct {
	Metadata Metadata `json:"metadata"`
	Root     *Node    `json:"root"`
}

// Walk visits n and its descendants in pre-order, stopping early when fn
// returns false.
func Walk(n *Node, fn func(n *Node, depth int) bool) {
	walk(n, 0, fn)
}

func walk(n *Node, depth int, fn func(*Node, int) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n, depth) {
		return false
	}
	for _, c := range n.Children {
		if !walk(c, depth+1, fn) {
			return false
		}
	}
	return true
}

// Find returns the first node with the given id in pre-order.
func (d *Document) Find(id string) *Node {
	if d == nil {
		return nil
	}
	var found *Node
	Walk(d.Root, func(n *Node, _ int) bool {
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// NodesOfType returns every node of type t in pre-order.
func (d *Document) NodesOfType(t NodeType) []*Node {
	if d == nil {
		return nil
	}
	var out []*Node
	Walk(d.Root, func(n *Node, _ int) bool {
		if n.Type == t {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Count returns the number of nodes in the document.
func (d *Document) Count() int {
	if d == nil {
		return 0
	}
	total := 0
	Walk(d.Root, func(*Node, int) bool {
		total++
		return true
	})
	return total
}
