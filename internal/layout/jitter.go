package layout

import (
	"math/rand/v2"

	"github.com/knowledge-bonsai/bonsai/internal/tree"
)

// Jitter lifts branches by 5 to 20 units and sways leaves up to 40 units
// sideways and 20 to 80 units up. Pots, trunks and unknown types stay put.
func Jitter(nodes []Node, seed uint64) []Node {
	out := clone(nodes)
	rng := rand.New(rand.NewPCG(seed, seed^0xdeadbeef))

	for i := range out {
		n := &out[i]
		switch n.Type {
		case tree.TypeBranch:
			n.Position.Y += -5 - rng.Float64()*15
		case tree.TypeLeaf:
			dx := (rng.Float64() - 0.5) * 80
			dy := -20 - rng.Float64()*40
			if rng.Float64() < 0.3 {
				dy -= 20
			}
			n.Position.X += dx
			n.Position.Y += dy
		}
	}
	return out
}
