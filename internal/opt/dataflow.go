package opt

import (
	"github.com/rs/zerolog"

	"github.com/silexlang/silex/internal/evm"
	"github.com/silexlang/silex/internal/ir"
	"github.com/silexlang/silex/internal/utils"
)

// zeroLiteral is the tracked value of variables declared without an
// initializer.
var zeroLiteral = &ir.Literal{Kind: ir.LiteralNumber, Value: "0"}

// DataFlowAnalyzer performs a forward single pass over the IR tracking three
// kinds of knowledge keyed by variable name: the current value of variables
// (movable expressions only), which variable holds the word stored at a
// storage key, and the same for memory. Knowledge is invalidated by writes
// and calls according to side-effect summaries, intersected at control-flow
// joins, and dropped when the variables involved go out of scope.
type DataFlowAnalyzer struct {
	dialect   *ir.Dialect
	fnEffects map[string]ir.SideEffects
	log       zerolog.Logger

	value      map[string]ir.Expression
	references map[string]map[string]bool
	storage    map[string]string
	memory     map[string]string
	scopes     []*scopeFrame

	// ExpressionHook runs after every expression is visited and may replace
	// it through the pointer.
	ExpressionHook func(expr *ir.Expression)
}

type scopeFrame struct {
	functionBoundary bool
	names            map[string]bool
}

func NewDataFlowAnalyzer(dialect *ir.Dialect, fnEffects map[string]ir.SideEffects, log zerolog.Logger) *DataFlowAnalyzer {
	return &DataFlowAnalyzer{
		dialect:    dialect,
		fnEffects:  fnEffects,
		log:        log,
		value:      map[string]ir.Expression{},
		references: map[string]map[string]bool{},
		storage:    map[string]string{},
		memory:     map[string]string{},
	}
}

// VisitBlock runs the analyzer over b in its own scope.
func (d *DataFlowAnalyzer) VisitBlock(b *ir.Block) {
	d.pushScope(false)
	for _, st := range b.Statements {
		d.visitStatement(st)
	}
	d.popScope()
}

func (d *DataFlowAnalyzer) visitStatement(st ir.Statement) {
	switch st := st.(type) {
	case *ir.Block:
		d.VisitBlock(st)
	case *ir.ExpressionStatement:
		d.expressionStatement(st)
	case *ir.VariableDeclaration:
		if st.Value != nil {
			d.clearKnowledgeIfInvalidated(st.Value)
			d.visitExpression(&st.Value)
		}
		d.declare(st.Variables...)
		d.handleAssignment(st.Variables, st.Value)
	case *ir.Assignment:
		names := make([]string, len(st.VariableNames))
		for i, id := range st.VariableNames {
			names[i] = id.Name
		}
		d.clearKnowledgeIfInvalidated(st.Value)
		d.visitExpression(&st.Value)
		d.handleAssignment(names, st.Value)
	case *ir.If:
		d.clearKnowledgeIfInvalidated(st.Condition)
		storage, memory := utils.CopyMap(d.storage), utils.CopyMap(d.memory)
		d.visitExpression(&st.Condition)
		d.VisitBlock(st.Body)
		d.joinKnowledge(storage, memory)
		d.clearValues(assignedVariableNames(st.Body))
	case *ir.Switch:
		d.clearKnowledgeIfInvalidated(st.Expression)
		d.visitExpression(&st.Expression)
		allAssigned := map[string]bool{}
		for _, c := range st.Cases {
			storage, memory := utils.CopyMap(d.storage), utils.CopyMap(d.memory)
			d.VisitBlock(c.Body)
			d.joinKnowledge(storage, memory)
			assigned := assignedVariableNames(c.Body)
			for name := range assigned {
				allAssigned[name] = true
			}
			d.clearValues(assigned)
		}
		d.clearValues(allAssigned)
	case *ir.ForLoop:
		d.forLoop(st)
	case *ir.FunctionDefinition:
		d.functionDefinition(st)
	case *ir.Break, *ir.Continue, *ir.Leave:
		// control transfers carry no knowledge of their own; the loop and
		// function handlers already discard everything a back edge could
		// invalidate
	}
}

func (d *DataFlowAnalyzer) expressionStatement(st *ir.ExpressionStatement) {
	if key, value, ok := d.simpleStore(st.Expression, evm.SSTORE); ok {
		d.visitExpression(&st.Expression)
		// a store can alias any tracked key
		for k := range d.storage {
			delete(d.storage, k)
		}
		d.storage[key] = value
		return
	}
	if key, value, ok := d.simpleStore(st.Expression, evm.MSTORE); ok {
		d.visitExpression(&st.Expression)
		for k := range d.memory {
			delete(d.memory, k)
		}
		d.memory[key] = value
		return
	}
	d.clearKnowledgeIfInvalidated(st.Expression)
	d.visitExpression(&st.Expression)
}

func (d *DataFlowAnalyzer) forLoop(st *ir.ForLoop) {
	// the init scope spans condition, body and post
	d.pushScope(false)
	for _, pre := range st.Pre.Statements {
		d.visitStatement(pre)
	}
	assigned := assignedVariableNames(st.Body)
	for name := range assignedVariableNames(st.Post) {
		assigned[name] = true
	}
	d.clearValues(utils.CopyMap(assigned))
	d.clearKnowledgeIfInvalidated(st.Condition)
	d.clearKnowledgeIfInvalidated(st.Body)
	d.clearKnowledgeIfInvalidated(st.Post)
	d.visitExpression(&st.Condition)
	d.VisitBlock(st.Body)
	// continue statements may skip straight to post
	d.clearValues(assignedVariableNames(st.Body))
	d.clearKnowledgeIfInvalidated(st.Body)
	d.VisitBlock(st.Post)
	d.clearValues(utils.CopyMap(assigned))
	d.clearKnowledgeIfInvalidated(st.Body)
	d.clearKnowledgeIfInvalidated(st.Post)
	d.popScope()
}

func (d *DataFlowAnalyzer) functionDefinition(fd *ir.FunctionDefinition) {
	savedValue, savedReferences := d.value, d.references
	savedStorage, savedMemory := d.storage, d.memory
	d.value = map[string]ir.Expression{}
	d.references = map[string]map[string]bool{}
	d.storage = map[string]string{}
	d.memory = map[string]string{}

	d.pushScope(true)
	d.declare(fd.Parameters...)
	d.declare(fd.ReturnVariables...)
	for _, name := range fd.ReturnVariables {
		d.handleAssignment([]string{name}, nil)
	}
	d.VisitBlock(fd.Body)
	d.popScope()

	d.value, d.references = savedValue, savedReferences
	d.storage, d.memory = savedStorage, savedMemory
}

// handleAssignment updates value knowledge after names received value (nil
// means zero initialization).
func (d *DataFlowAnalyzer) handleAssignment(names []string, value ir.Expression) {
	cleared := map[string]bool{}
	for _, name := range names {
		cleared[name] = true
	}
	d.clearValues(cleared)

	if value == nil {
		for _, name := range names {
			d.value[name] = zeroLiteral
		}
		return
	}
	refs := referencedNames(value)
	for _, name := range names {
		d.references[name] = refs
	}
	if len(names) != 1 {
		return
	}
	name := names[0]
	if d.movable(value) && !refs[name] {
		d.value[name] = value
	}
	// remember which variable now holds the loaded word
	if key, ok := d.loadKey(value, evm.SLOAD); ok {
		d.storage[key] = name
	} else if key, ok := d.loadKey(value, evm.MLOAD); ok {
		d.memory[key] = name
	}
}

// clearValues drops value knowledge about names, transitively extended to
// every variable whose tracked value references a dropped one, and erases
// storage/memory entries mentioning any of them.
func (d *DataFlowAnalyzer) clearValues(names map[string]bool) {
	for changed := true; changed; {
		changed = false
		for name, refs := range d.references {
			if names[name] {
				continue
			}
			for r := range refs {
				if names[r] {
					names[name] = true
					changed = true
					break
				}
			}
		}
	}
	for name := range names {
		delete(d.value, name)
		delete(d.references, name)
	}
	for k, v := range d.storage {
		if names[k] || names[v] {
			delete(d.storage, k)
		}
	}
	for k, v := range d.memory {
		if names[k] || names[v] {
			delete(d.memory, k)
		}
	}
}

// clearKnowledgeIfInvalidated erases storage/memory knowledge that the side
// effects of node could invalidate.
func (d *DataFlowAnalyzer) clearKnowledgeIfInvalidated(node ir.Node) {
	effects := CollectSideEffects(node, d.dialect, d.fnEffects)
	if effects.InvalidatesStorage() && len(d.storage) > 0 {
		d.log.Trace().Msg("storage knowledge invalidated")
		d.storage = map[string]string{}
	}
	if effects.InvalidatesMemory() && len(d.memory) > 0 {
		d.log.Trace().Msg("memory knowledge invalidated")
		d.memory = map[string]string{}
	}
}

// joinKnowledge intersects the current storage/memory knowledge with the
// state from before a conditional branch.
func (d *DataFlowAnalyzer) joinKnowledge(oldStorage, oldMemory map[string]string) {
	intersect(d.storage, oldStorage)
	intersect(d.memory, oldMemory)
}

func (d *DataFlowAnalyzer) visitExpression(expr *ir.Expression) {
	if call, ok := (*expr).(*ir.FunctionCall); ok {
		builtin := d.dialect.Builtin(call.Name)
		for i := range call.Arguments {
			if builtin != nil && builtin.LiteralArgument(i) {
				continue
			}
			d.visitExpression(&call.Arguments[i])
		}
	}
	if d.ExpressionHook != nil {
		d.ExpressionHook(expr)
	}
}

func (d *DataFlowAnalyzer) pushScope(functionBoundary bool) {
	d.scopes = append(d.scopes, &scopeFrame{
		functionBoundary: functionBoundary,
		names:            map[string]bool{},
	})
}

func (d *DataFlowAnalyzer) popScope() {
	top := d.scopes[len(d.scopes)-1]
	d.clearValues(utils.CopyMap(top.names))
	d.scopes = d.scopes[:len(d.scopes)-1]
}

func (d *DataFlowAnalyzer) declare(names ...string) {
	top := d.scopes[len(d.scopes)-1]
	for _, name := range names {
		top.names[name] = true
	}
}

// inScope reports whether name is visible from the current position without
// crossing a function boundary.
func (d *DataFlowAnalyzer) inScope(name string) bool {
	for i := len(d.scopes) - 1; i >= 0; i-- {
		if d.scopes[i].names[name] {
			return true
		}
		if d.scopes[i].functionBoundary {
			break
		}
	}
	return false
}

// simpleStore matches a call to the builtin bound to the store instruction,
// of the form store(key, value) with plain identifier arguments, and returns
// the two names. Builtins are matched through the dialect so renamed or
// aliased store builtins are recognized as well.
func (d *DataFlowAnalyzer) simpleStore(expr ir.Expression, store evm.Instruction) (string, string, bool) {
	call, ok := expr.(*ir.FunctionCall)
	if !ok || len(call.Arguments) != 2 {
		return "", "", false
	}
	builtin := d.dialect.Builtin(call.Name)
	if builtin == nil || builtin.Emit != nil || builtin.Instruction != store {
		return "", "", false
	}
	key, ok := call.Arguments[0].(*ir.Identifier)
	if !ok {
		return "", "", false
	}
	value, ok := call.Arguments[1].(*ir.Identifier)
	if !ok {
		return "", "", false
	}
	return key.Name, value.Name, true
}

// movable reports whether expr always evaluates to the same value and can be
// re-evaluated anywhere.
func (d *DataFlowAnalyzer) movable(expr ir.Expression) bool {
	switch expr := expr.(type) {
	case *ir.Literal, *ir.Identifier:
		return true
	case *ir.FunctionCall:
		builtin := d.dialect.Builtin(expr.Name)
		if builtin == nil || !builtin.SideEffects.Movable {
			return false
		}
		for i, arg := range expr.Arguments {
			if builtin.LiteralArgument(i) {
				continue
			}
			if !d.movable(arg) {
				return false
			}
		}
		return true
	}
	return false
}

// loadKey matches a call to the builtin bound to the load instruction with a
// single identifier argument and returns the key name.
func (d *DataFlowAnalyzer) loadKey(expr ir.Expression, load evm.Instruction) (string, bool) {
	call, ok := expr.(*ir.FunctionCall)
	if !ok || len(call.Arguments) != 1 {
		return "", false
	}
	builtin := d.dialect.Builtin(call.Name)
	if builtin == nil || builtin.Emit != nil || builtin.Instruction != load {
		return "", false
	}
	key, ok := call.Arguments[0].(*ir.Identifier)
	if !ok {
		return "", false
	}
	return key.Name, true
}

func referencedNames(expr ir.Expression) map[string]bool {
	names := map[string]bool{}
	ir.Walk(expr, func(n ir.Node) bool {
		if id, ok := n.(*ir.Identifier); ok {
			names[id.Name] = true
		}
		return true
	})
	return names
}

func intersect(m, old map[string]string) {
	for k, v := range m {
		if ov, ok := old[k]; !ok || ov != v {
			delete(m, k)
		}
	}
}
