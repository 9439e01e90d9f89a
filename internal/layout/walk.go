package layout

import (
	"github.com/knowledge-bonsai/bonsai/internal/tree"
)

type walker struct {
	nodes []Node
	edges []Edge
}

// Walk places every node of doc without any collision handling. Children
// are visited in document order; for trunks the even-indexed (left)
// children come before the odd-indexed (right) ones.
func Walk(doc *tree.Document) Graph {
	w := &walker{nodes: []Node{}, edges: []Edge{}}
	if doc != nil && doc.Root != nil {
		w.place(doc.Root, "", 0, 0, "")
	}
	return Graph{Nodes: w.nodes, Edges: w.edges}
}

// place records n at (x, y) and recurses. side is the handle of the parent
// the node hangs from, empty for the root.
func (w *walker) place(n *tree.Node, parentID string, x, y float64, side Handle) {
	w.nodes = append(w.nodes, Node{
		ID:       n.ID,
		Type:     n.Type,
		Label:    n.Label,
		Position: Position{X: x, Y: y},
		Mirror:   side == HandleRight && n.Type == tree.TypeBranch,
	})

	if parentID != "" {
		w.edges = append(w.edges, edgeFor(parentID, n, side))
	}

	if len(n.Children) == 0 {
		return
	}

	switch {
	case n.Type == tree.TypePot || (n.Level == 0 && n.HasLevel()):
		for i, c := range n.Children {
			w.place(c, n.ID, x, y-verticalSpacing*float64(i+1), HandleTop)
		}
	case n.Type == tree.TypeTrunk:
		var left, right []*tree.Node
		for i, c := range n.Children {
			if i%2 == 0 {
				left = append(left, c)
			} else {
				right = append(right, c)
			}
		}
		for rank, c := range left {
			w.place(c, n.ID, x-branchSpacing*float64(rank+1), y, HandleLeft)
		}
		for rank, c := range right {
			w.place(c, n.ID, x+branchSpacing*float64(rank+1), y, HandleRight)
		}
	default:
		// Branches and unrecognised types push their children further
		// out on the side they hang from. A root-level node with no side
		// grows to the right.
		childX := x + horizontalSpacing
		if side != "" && side != HandleRight {
			childX = x - horizontalSpacing
		}
		for _, c := range n.Children {
			w.place(c, n.ID, childX, y, side)
		}
	}
}

func edgeFor(parentID string, child *tree.Node, side Handle) Edge {
	src, dst := HandleTop, HandleBottom
	switch side {
	case HandleLeft:
		src, dst = HandleLeft, HandleRight
	case HandleRight:
		src, dst = HandleRight, HandleLeft
	}
	kind := EdgeBranch
	if child.Type == tree.TypeTrunk {
		kind = EdgeTrunk
	}
	return Edge{
		ID:           "e-" + parentID + "-" + child.ID,
		Source:       parentID,
		Target:       child.ID,
		SourceHandle: src,
		TargetHandle: dst,
		Kind:         kind,
	}
}
