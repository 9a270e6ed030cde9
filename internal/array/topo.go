package array

// Topsort returns every node reachable from roots in dependency order
// (inputs before consumers), visiting each distinct node exactly once.
// Deduplication is by node identity, never structural equality, so diamond
// fan-in is handled without recomputation.
//
// The walk is iterative: user graphs can be deep enough to overflow the
// stack under recursion.
func Topsort(roots []*Array) []*Array {
	type frame struct {
		node *Array
		next int
	}

	visited := make(map[*Array]struct{})
	var order []*Array
	var stack []frame

	for _, root := range roots {
		if root == nil {
			continue
		}
		if _, ok := visited[root]; ok {
			continue
		}
		visited[root] = struct{}{}
		stack = append(stack, frame{node: root})

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			inputs := top.node.Inputs()
			if top.next < len(inputs) {
				in := inputs[top.next]
				top.next++
				if _, ok := visited[in]; !ok {
					visited[in] = struct{}{}
					stack = append(stack, frame{node: in})
				}
				continue
			}
			order = append(order, top.node)
			stack = stack[:len(stack)-1]
		}
	}
	return order
}
