// Package opt implements the dataflow value tracker and the load-forwarding
// optimizer built on top of it. Both run over the IR in place.
package opt

import (
	"github.com/silexlang/silex/internal/evm"
	"github.com/silexlang/silex/internal/ir"
)

// CollectSideEffects joins the side effects of every call reachable in node,
// consulting fnEffects for user functions. Function definitions inside node
// contribute nothing by themselves; only calls to them do.
func CollectSideEffects(node ir.Node, dialect *ir.Dialect, fnEffects map[string]ir.SideEffects) ir.SideEffects {
	effects := ir.NoSideEffects()
	ir.Walk(node, func(n ir.Node) bool {
		switch n := n.(type) {
		case *ir.FunctionDefinition:
			return false
		case *ir.FunctionCall:
			if builtin := dialect.Builtin(n.Name); builtin != nil {
				effects = effects.Join(builtin.SideEffects)
			} else if fn, ok := fnEffects[n.Name]; ok {
				effects = effects.Join(fn)
			} else {
				effects = effects.Join(ir.WorstSideEffects())
			}
		}
		return true
	})
	return effects
}

// FunctionSideEffects computes a per-function side-effect summary for every
// function defined in the unit, propagating effects over the call graph to a
// fixpoint so that indirect effects through callees are included.
func FunctionSideEffects(block *ir.Block, dialect *ir.Dialect) map[string]ir.SideEffects {
	bodies := map[string]*ir.Block{}
	ir.Walk(block, func(n ir.Node) bool {
		if fd, ok := n.(*ir.FunctionDefinition); ok {
			bodies[fd.Name] = fd.Body
		}
		return true
	})
	effects := make(map[string]ir.SideEffects, len(bodies))
	for name := range bodies {
		effects[name] = ir.NoSideEffects()
	}
	for {
		changed := false
		for name, body := range bodies {
			next := CollectSideEffects(body, dialect, effects)
			if next != effects[name] {
				effects[name] = next
				changed = true
			}
		}
		if !changed {
			return effects
		}
	}
}

// ContainsMSize reports whether any expression in the unit, including inside
// function bodies, calls msize.
func ContainsMSize(block *ir.Block, dialect *ir.Dialect) bool {
	found := false
	ir.Walk(block, func(n ir.Node) bool {
		if call, ok := n.(*ir.FunctionCall); ok {
			if builtin := dialect.Builtin(call.Name); builtin != nil && builtin.Instruction == evm.MSIZE {
				found = true
			}
		}
		return !found
	})
	return found
}

// assignedVariableNames collects the names assigned (not declared) anywhere
// in node, excluding assignments inside nested function definitions.
func assignedVariableNames(node ir.Node) map[string]bool {
	names := map[string]bool{}
	ir.Walk(node, func(n ir.Node) bool {
		switch n := n.(type) {
		case *ir.FunctionDefinition:
			return false
		case *ir.Assignment:
			for _, id := range n.VariableNames {
				names[id.Name] = true
			}
		}
		return true
	})
	return names
}
