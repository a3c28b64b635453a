package workflow

import (
	"github.com/genflow-ai/genflow/types"
)

// validateTree enforces the construction-time rules on the whole node
// tree: non-empty names, global name uniqueness (composite children
// included, so output keys are unambiguous), and a control-flow nesting
// depth within maxDepth. Top-level leaf nodes sit at depth zero.
func validateTree(nodes []Node, maxDepth int) error {
	seen := make(map[string]bool)
	return walk(nodes, 0, maxDepth, seen)
}

func walk(nodes []Node, depth, maxDepth int, seen map[string]bool) error {
	for _, node := range nodes {
		if node == nil {
			return types.NewError(types.ErrValidation, "workflow contains a nil node")
		}
		name := node.Name()
		if name == "" {
			return types.NewError(types.ErrValidation, "all workflow nodes must have a non-empty name")
		}
		if seen[name] {
			return types.NewErrorf(types.ErrValidation, "duplicate node name %q", name)
		}
		seen[name] = true

		c, ok := node.(composite)
		if !ok {
			continue
		}
		if depth+1 > maxDepth {
			return types.NewErrorf(types.ErrLimitExceeded,
				"control flow nesting at node %q exceeds the max nesting depth of %d; flatten the workflow or raise max_nesting_depth",
				name, maxDepth)
		}
		if err := walk(c.children(), depth+1, maxDepth, seen); err != nil {
			return err
		}
	}
	return nil
}
