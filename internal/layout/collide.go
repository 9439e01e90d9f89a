package layout

import (
	"math"
	"sort"

	"github.com/knowledge-bonsai/bonsai/internal/tree"
)

const (
	rowBucket            = 20.0
	minHorizontalSpacing = 160.0
	leafExtraSpacing     = 20.0
	leafVerticalSpacing  = 120.0

	proximityX     = 120.0
	proximityY     = 90.0
	proximityPushX = 50.0
	proximityPushY = 30.0

	polishPushX     = 0.8
	polishPushY     = 1.6
	successorPushX  = 0.5
	successorPushY  = 0.6
	trunkCenterline = -potHalfWidth
)

// rigid nodes keep the position the walk gave them in the level pass.
func rigid(t tree.NodeType) bool {
	return t == tree.TypePot || t == tree.TypeTrunk || t == tree.TypeBranch
}

func clone(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	copy(out, nodes)
	return out
}

// jsRound rounds half away from negative infinity, matching the bucket
// boundaries of the browser renderer.
func jsRound(v float64) int {
	return int(math.Floor(v + 0.5))
}

// ResolveLevels groups non-rigid nodes into rows of rowBucket height and
// spreads each row left to right. Consecutive leaves in a row that are
// also vertically close are lifted, alternating between a stronger and a
// weaker push by position parity.
func ResolveLevels(nodes []Node) []Node {
	out := clone(nodes)

	rows := make(map[int][]int)
	var keys []int
	for i, n := range out {
		if rigid(n.Type) {
			continue
		}
		k := jsRound(n.Position.Y / rowBucket)
		if _, ok := rows[k]; !ok {
			keys = append(keys, k)
		}
		rows[k] = append(rows[k], i)
	}
	sort.Ints(keys)

	for _, k := range keys {
		row := rows[k]
		sort.SliceStable(row, func(a, b int) bool {
			return out[row[a]].Position.X < out[row[b]].Position.X
		})
		for i := 1; i < len(row); i++ {
			prev, curr := &out[row[i-1]], &out[row[i]]

			minSpacing := minHorizontalSpacing
			if curr.Type == tree.TypeLeaf || prev.Type == tree.TypeLeaf {
				minSpacing += leafExtraSpacing
			}
			if dx := curr.Position.X - prev.Position.X; dx < minSpacing {
				curr.Position.X += minSpacing - dx
			}

			if curr.Type == tree.TypeLeaf && prev.Type == tree.TypeLeaf {
				dy := math.Abs(curr.Position.Y - prev.Position.Y)
				if dy < leafVerticalSpacing {
					bias := 0.8
					if i%2 == 0 {
						bias = 1.2
					}
					curr.Position.Y -= (leafVerticalSpacing - dy) * bias
				}
			}
		}
	}
	return out
}

// SeparateLeavesFromBranches moves every leaf that sits within the
// proximity window of a branch outward from x = 0 and slightly up.
// Leaves are checked against branches in node order, with positions
// updated after each move.
func SeparateLeavesFromBranches(nodes []Node) []Node {
	out := clone(nodes)

	var leaves, branches []int
	for i, n := range out {
		switch n.Type {
		case tree.TypeLeaf:
			leaves = append(leaves, i)
		case tree.TypeBranch:
			branches = append(branches, i)
		}
	}

	for _, li := range leaves {
		leaf := &out[li]
		for _, bi := range branches {
			branch := out[bi]
			dx := math.Abs(leaf.Position.X - branch.Position.X)
			dy := math.Abs(leaf.Position.Y - branch.Position.Y)
			if dx < proximityX && dy < proximityY {
				if leaf.Position.X < 0 {
					leaf.Position.X -= proximityPushX
				} else {
					leaf.Position.X += proximityPushX
				}
				leaf.Position.Y -= proximityPushY
			}
		}
	}
	return out
}

// Polish pushes leaves away from every non-leaf node they crowd, then
// walks the left and right leaf columns outward from the trunk line and
// nudges overlapping successors by a fraction of the overlap.
func Polish(nodes []Node) []Node {
	out := clone(nodes)

	var leaves, others []int
	for i, n := range out {
		if n.Type == tree.TypeLeaf {
			leaves = append(leaves, i)
		} else {
			others = append(others, i)
		}
	}

	for _, li := range leaves {
		leaf := &out[li]
		left := leaf.Position.X < trunkCenterline
		for _, oi := range others {
			other := out[oi].RenderPosition()
			dx := math.Abs(leaf.Position.X - other.X)
			dy := math.Abs(leaf.Position.Y - other.Y)
			if dx < proximityX && dy < proximityY {
				push := (proximityX - dx) * polishPushX
				if left {
					leaf.Position.X -= push
				} else {
					leaf.Position.X += push
				}
				leaf.Position.Y -= (proximityY - dy) * polishPushY
			}
		}
	}

	var leftCol, rightCol []int
	for _, li := range leaves {
		if out[li].Position.X < trunkCenterline {
			leftCol = append(leftCol, li)
		} else {
			rightCol = append(rightCol, li)
		}
	}
	// Both columns are ordered nearest the trunk first.
	sort.SliceStable(leftCol, func(a, b int) bool {
		return out[leftCol[a]].Position.X > out[leftCol[b]].Position.X
	})
	sort.SliceStable(rightCol, func(a, b int) bool {
		return out[rightCol[a]].Position.X < out[rightCol[b]].Position.X
	})

	for i := 1; i < len(leftCol); i++ {
		prev, curr := out[leftCol[i-1]], &out[leftCol[i]]
		dx := math.Abs(curr.Position.X - prev.Position.X)
		dy := math.Abs(curr.Position.Y - prev.Position.Y)
		if dx < minHorizontalSpacing && dy < leafVerticalSpacing {
			curr.Position.X -= (minHorizontalSpacing - dx) * successorPushX
			curr.Position.Y -= (leafVerticalSpacing - dy) * successorPushY
		}
	}
	for i := 1; i < len(rightCol); i++ {
		prev, curr := out[rightCol[i-1]], &out[rightCol[i]]
		dx := curr.Position.X - prev.Position.X
		dy := math.Abs(curr.Position.Y - prev.Position.Y)
		if dx < minHorizontalSpacing && dy < leafVerticalSpacing {
			curr.Position.X += (minHorizontalSpacing - dx) * successorPushX
			curr.Position.Y -= (leafVerticalSpacing - dy) * successorPushY
		}
	}
	return out
}
