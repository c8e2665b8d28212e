package ir

// Walk visits node and its descendants depth-first. Returning false from
// visit prunes the subtree below the current node.
func Walk(node Node, visit func(Node) bool) {
	if node == nil || !visit(node) {
		return
	}
	switch n := node.(type) {
	case *Block:
		for _, st := range n.Statements {
			Walk(st, visit)
		}
	case *ExpressionStatement:
		Walk(n.Expression, visit)
	case *VariableDeclaration:
		if n.Value != nil {
			Walk(n.Value, visit)
		}
	case *Assignment:
		for _, id := range n.VariableNames {
			Walk(id, visit)
		}
		Walk(n.Value, visit)
	case *If:
		Walk(n.Condition, visit)
		Walk(n.Body, visit)
	case *Switch:
		Walk(n.Expression, visit)
		for _, c := range n.Cases {
			Walk(c, visit)
		}
	case *Case:
		if n.Value != nil {
			Walk(n.Value, visit)
		}
		Walk(n.Body, visit)
	case *ForLoop:
		Walk(n.Pre, visit)
		Walk(n.Condition, visit)
		Walk(n.Body, visit)
		Walk(n.Post, visit)
	case *FunctionDefinition:
		Walk(n.Body, visit)
	case *FunctionCall:
		for _, arg := range n.Arguments {
			Walk(arg, visit)
		}
	}
}
