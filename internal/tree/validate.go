package tree

import (
	"fmt"
	"strings"
)

// ValidationError lists every problem found in a generated document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid tree document: " + strings.Join(e.Problems, "; ")
}

// Validate checks the shape the content generator is asked to produce.
// Every node must carry a level, but its consistency with the depth is
// not checked; generators routinely get it wrong.
func (d *Document) Validate() error {
	var problems []string
	if d == nil {
		return &ValidationError{Problems: []string{"document is empty"}}
	}
	if strings.TrimSpace(d.Metadata.Title) == "" {
		problems = append(problems, "metadata.title is required")
	}
	if d.Root == nil {
		problems = append(problems, "root is required")
		return &ValidationError{Problems: problems}
	}

	seen := make(map[string]string)
	var check func(n *Node, path string)
	check = func(n *Node, path string) {
		if n == nil {
			problems = append(problems, path+": null node")
			return
		}
		if n.ID == "" {
			problems = append(problems, path+".id is required")
		} else if prev, dup := seen[n.ID]; dup {
			problems = append(problems, fmt.Sprintf("%s.id %q duplicates %s", path, n.ID, prev))
		} else {
			seen[n.ID] = path
		}
		if strings.TrimSpace(n.Label) == "" {
			problems = append(problems, path+".label is required")
		}
		if !n.Type.IsKnown() {
			problems = append(problems, fmt.Sprintf("%s.type %q is not one of pot, trunk, branch, leaf", path, n.Type))
		}
		switch {
		case !n.HasLevel():
			problems = append(problems, path+".level is required")
		case n.Level < 0:
			problems = append(problems, fmt.Sprintf("%s.level %d is negative", path, n.Level))
		}
		for i, c := range n.Children {
			check(c, fmt.Sprintf("%s.children[%d]", path, i))
		}
	}
	check(d.Root, "root")

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
