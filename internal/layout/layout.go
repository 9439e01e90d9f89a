// Package layout turns a knowledge tree into positioned graph nodes and
// edges for a node-graph renderer.
//
// Coordinates follow screen convention: y grows downward, so a trunk
// stacked above its parent has a smaller y. The pot sits at the origin.
package layout

import (
	"github.com/knowledge-bonsai/bonsai/internal/tree"
)

const (
	verticalSpacing   = 150.0 // between stacked trunks
	branchSpacing     = 170.0 // between a trunk and its successive branches
	horizontalSpacing = 200.0 // between a branch and its leaves
	potHalfWidth      = 65.0  // rendering offset of the pot asset
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Handle string

const (
	HandleTop    Handle = "top"
	HandleBottom Handle = "bottom"
	HandleLeft   Handle = "left"
	HandleRight  Handle = "right"
)

type EdgeKind string

const (
	EdgeTrunk  EdgeKind = "trunk"
	EdgeBranch EdgeKind = "branch"
)

// Node is a positioned tree node. Mirror marks nodes drawn on the right
// of their trunk, whose assets are flipped by the renderer.
type Node struct {
	ID       string        `json:"id"`
	Type     tree.NodeType `json:"type"`
	Label    string        `json:"label"`
	Position Position      `json:"position"`
	Mirror   bool          `json:"mirror,omitempty"`
}

// RenderType is the asset name for the node: branchRight and leafRight
// for mirrored nodes, the semantic type otherwise.
func (n Node) RenderType() string {
	if n.Mirror && (n.Type == tree.TypeBranch || n.Type == tree.TypeLeaf) {
		return string(n.Type) + "Right"
	}
	return string(n.Type)
}

// RenderPosition is the top-left corner the renderer should use. Only the
// pot differs from Position: it is shifted left by half its width so the
// asset is centered over the trunk line.
func (n Node) RenderPosition() Position {
	if n.Type == tree.TypePot {
		return Position{X: n.Position.X - potHalfWidth, Y: n.Position.Y}
	}
	return n.Position
}

type Edge struct {
	ID           string   `json:"id"`
	Source       string   `json:"source"`
	Target       string   `json:"target"`
	SourceHandle Handle   `json:"sourceHandle"`
	TargetHandle Handle   `json:"targetHandle"`
	Kind         EdgeKind `json:"kind"`
}

// Graph is the layout result. Nodes and Edges are never nil.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Find returns the node with the given id.
func (g Graph) Find(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

type options struct {
	jitter bool
	seed   uint64
}

type Option func(*options)

// WithJitter adds seeded random sway to branches and leaves after the
// proximity pass and before the final polish. The same seed always
// produces the same layout.
func WithJitter(seed uint64) Option {
	return func(o *options) {
		o.jitter = true
		o.seed = seed
	}
}

// Compute lays out doc: a pre-order walk followed by the level collision,
// leaf/branch proximity and final polish passes, in that order. A nil
// document or root yields an empty graph.
func Compute(doc *tree.Document, opts ...Option) Graph {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	g := Walk(doc)
	nodes := ResolveLevels(g.Nodes)
	nodes = SeparateLeavesFromBranches(nodes)
	if o.jitter {
		nodes = Jitter(nodes, o.seed)
	}
	g.Nodes = Polish(nodes)
	return g
}
