// Package codegen lowers the structured IR to stack-machine code through the
// evm.Emitter interface. It keeps an abstract model of the stack: each live
// variable owns one slot, slots freed by the last use of a variable are
// reused by later declarations, and slots that cannot be reused are popped as
// soon as they surface to the top of the stack.
package codegen

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/rs/zerolog"

	"github.com/silexlang/silex/internal/evm"
	"github.com/silexlang/silex/internal/ir"
)

// Options configures a code generation run.
type Options struct {
	// UseNamedLabelsForFunctions makes function entry labels addressable by
	// name in the produced assembly.
	UseNamedLabelsForFunctions bool
	// Logger receives trace-level events for emitted items and freed slots.
	Logger *zerolog.Logger
}

// Assemble generates code for a whole compilation unit into e. Stack
// accessibility problems are reported as *StackTooDeepError; violated
// internal invariants and unsupported target operations abort the unit and
// are returned as errors, with the emitter marked invalid.
func Assemble(block *ir.Block, info *ir.AnalysisInfo, dialect *ir.Dialect, e evm.Emitter, bctx *ir.BuiltinContext, opts Options) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch v := r.(type) {
		case *InternalError:
			e.MarkAsInvalid()
			err = v
		case *UnsupportedOperationError:
			e.MarkAsInvalid()
			err = v
		default:
			panic(r)
		}
	}()

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	t := &transform{
		e:           e,
		info:        info,
		dialect:     dialect,
		bctx:        bctx,
		opts:        opts,
		log:         logger,
		heights:     map[ir.VarID]int{},
		refs:        countReferences(block, info),
		entries:     map[*ir.FunctionDefinition]evm.LabelID{},
		scheduled:   map[ir.VarID]bool{},
		unusedSlots: bitset.New(16),
	}
	if err := t.statements(block.Statements); err != nil {
		return err
	}
	if e.StackHeight() != 0 {
		ice("stack height is %d after the outermost block", e.StackHeight())
	}
	return nil
}

type loopContext struct {
	post   evm.LabelID
	done   evm.LabelID
	height int
}

type transform struct {
	e       evm.Emitter
	info    *ir.AnalysisInfo
	dialect *ir.Dialect
	bctx    *ir.BuiltinContext
	opts    Options
	log     zerolog.Logger

	// shared between the outer transform and per-function transforms
	heights map[ir.VarID]int
	refs    map[ir.VarID]int
	entries map[*ir.FunctionDefinition]evm.LabelID

	// per-function state
	scheduled    map[ir.VarID]bool
	unusedSlots  *bitset.BitSet
	frozenHeight int
	loops        []loopContext

	fn           *ir.FunctionDefinition
	returnSet    map[ir.VarID]bool
	exitLabel    evm.LabelID
	hasExitLabel bool
	exitHeight   int
}

// statements runs a statement sequence: unused slots are cleaned up before
// every statement and after the last one, runs of consecutive function
// definitions share a single jump-over label, and inside a function the
// return variables are materialized before the first statement that could
// observe them.
func (t *transform) statements(stmts []ir.Statement) error {
	for i := 0; i < len(stmts); i++ {
		t.freeUnusedVariables(true)
		if _, isFn := stmts[i].(*ir.FunctionDefinition); isFn {
			end := i
			for end < len(stmts) {
				if _, ok := stmts[end].(*ir.FunctionDefinition); !ok {
					break
				}
				end++
			}
			t.e.SetSourceLocation(stmts[i].Loc())
			skip := t.e.NewLabelID()
			t.e.AppendJumpTo(skip, 0)
			for ; i < end; i++ {
				if err := t.functionDefinition(stmts[i].(*ir.FunctionDefinition)); err != nil {
					return err
				}
			}
			t.e.AppendLabel(skip)
			i = end - 1
			continue
		}
		if t.fn != nil && !t.hasExitLabel && t.needsReturnVariables(stmts[i]) {
			if err := t.setupReturnVariables(); err != nil {
				return err
			}
		}
		if err := t.statement(stmts[i]); err != nil {
			return err
		}
	}
	t.freeUnusedVariables(true)
	return nil
}

// block runs a nested block. Frozen blocks (conditional and loop bodies)
// keep slots of outer variables alive even if their last use happens inside:
// the slot is only freed after control flow rejoins.
func (t *transform) block(b *ir.Block, frozen bool) error {
	saved := t.frozenHeight
	if frozen {
		t.frozenHeight = t.e.StackHeight()
	}
	err := t.statements(b.Statements)
	t.frozenHeight = saved
	return err
}

func (t *transform) statement(st ir.Statement) error {
	t.e.SetSourceLocation(st.Loc())
	switch st := st.(type) {
	case *ir.Block:
		return t.block(st, true)
	case *ir.ExpressionStatement:
		return t.expression(st.Expression, 0)
	case *ir.VariableDeclaration:
		return t.variableDeclaration(st)
	case *ir.Assignment:
		return t.assignment(st)
	case *ir.If:
		return t.ifStatement(st)
	case *ir.Switch:
		return t.switchStatement(st)
	case *ir.ForLoop:
		return t.forLoop(st)
	case *ir.Break:
		loop := t.currentLoop()
		t.e.AppendJumpTo(loop.done, t.popUntil(loop.height))
		return nil
	case *ir.Continue:
		loop := t.currentLoop()
		t.e.AppendJumpTo(loop.post, t.popUntil(loop.height))
		return nil
	case *ir.Leave:
		if t.fn == nil || !t.hasExitLabel {
			ice("leave outside of a function")
		}
		t.e.AppendJumpTo(t.exitLabel, t.popUntil(t.exitHeight))
		return nil
	case *ir.FunctionDefinition:
		ice("function definition visited outside of a statement run")
	}
	ice("unexpected statement %T", st)
	return nil
}

func (t *transform) variableDeclaration(decl *ir.VariableDeclaration) error {
	vars := t.info.DeclaredVars(decl)
	n := len(vars)
	height := t.e.StackHeight()
	if decl.Value != nil {
		if err := t.expression(decl.Value, n); err != nil {
			return err
		}
	} else {
		for range vars {
			t.e.AppendConstant([]byte{0})
		}
	}
	t.freeUnusedVariables(false)

	atTop := true
	for i := n - 1; i >= 0; i-- {
		v := vars[i]
		t.heights[v] = height + i
		if t.refs[v] == 0 {
			// never referenced again
			if atTop {
				delete(t.heights, v)
				t.e.AppendInstruction(evm.POP)
			} else {
				t.scheduled[v] = true
			}
			continue
		}
		slot, ok := t.unusedSlots.NextSet(0)
		if !ok {
			atTop = false
			continue
		}
		// move the new value down into the freed slot
		t.unusedSlots.Clear(slot)
		t.heights[v] = int(slot)
		diff, err := t.variableHeightDiff(v, true)
		if err != nil {
			return err
		}
		t.e.AppendInstruction(evm.Swap(diff - 1))
		t.e.AppendInstruction(evm.POP)
		t.log.Trace().Str("variable", t.info.VarName(v)).Uint("slot", slot).
			Msg("reusing freed stack slot")
	}
	return nil
}

func (t *transform) assignment(asgn *ir.Assignment) error {
	if err := t.expression(asgn.Value, len(asgn.VariableNames)); err != nil {
		return err
	}
	for i := len(asgn.VariableNames) - 1; i >= 0; i-- {
		id := asgn.VariableNames[i]
		v, ok := t.info.VarOf(id)
		if !ok {
			ice("unresolved assignment target %q", id.Name)
		}
		diff, err := t.variableHeightDiff(v, true)
		if err != nil {
			return err
		}
		t.e.AppendInstruction(evm.Swap(diff - 1))
		t.e.AppendInstruction(evm.POP)
		t.decreaseRefs(v)
	}
	return nil
}

func (t *transform) ifStatement(st *ir.If) error {
	if err := t.expression(st.Condition, 1); err != nil {
		return err
	}
	t.e.AppendInstruction(evm.ISZERO)
	end := t.e.NewLabelID()
	t.e.AppendJumpToIf(end)
	if err := t.block(st.Body, true); err != nil {
		return err
	}
	t.e.AppendLabel(end)
	return nil
}

func (t *transform) switchStatement(st *ir.Switch) error {
	if err := t.expression(st.Expression, 1); err != nil {
		return err
	}
	end := t.e.NewLabelID()
	labels := map[*ir.Case]evm.LabelID{}
	var cases []*ir.Case
	var defaultCase *ir.Case
	for _, c := range st.Cases {
		if c.Value == nil {
			defaultCase = c
			continue
		}
		cases = append(cases, c)
		value, err := ir.LiteralValue(c.Value)
		if err != nil {
			ice("invalid case literal: %s", err)
		}
		t.e.SetSourceLocation(c.Loc())
		t.e.AppendConstant(ir.ValueBytes(value))
		// compare against the retained copy of the switch expression
		t.e.AppendInstruction(evm.Dup(2))
		t.e.AppendInstruction(evm.EQ)
		labels[c] = t.e.NewLabelID()
		t.e.AppendJumpToIf(labels[c])
	}
	if defaultCase != nil {
		if err := t.block(defaultCase.Body, true); err != nil {
			return err
		}
	}
	t.e.AppendJumpTo(end, 0)
	for i, c := range cases {
		t.e.SetSourceLocation(c.Loc())
		t.e.AppendLabel(labels[c])
		if err := t.block(c.Body, true); err != nil {
			return err
		}
		if i != len(cases)-1 {
			t.e.AppendJumpTo(end, 0)
		}
	}
	t.e.AppendLabel(end)
	t.e.AppendInstruction(evm.POP)
	return nil
}

func (t *transform) forLoop(st *ir.ForLoop) error {
	// variables declared in the init block stay live through condition, body
	// and post; they are freed once the loop is left behind
	if err := t.statements(st.Pre.Statements); err != nil {
		return err
	}
	start := t.e.NewLabelID()
	post := t.e.NewLabelID()
	done := t.e.NewLabelID()
	t.e.AppendLabel(start)
	if err := t.expression(st.Condition, 1); err != nil {
		return err
	}
	t.e.AppendInstruction(evm.ISZERO)
	t.e.AppendJumpToIf(done)
	t.loops = append(t.loops, loopContext{post: post, done: done, height: t.e.StackHeight()})
	err := t.block(st.Body, true)
	if err == nil {
		t.e.AppendLabel(post)
		err = t.block(st.Post, true)
	}
	t.loops = t.loops[:len(t.loops)-1]
	if err != nil {
		return err
	}
	t.e.AppendJumpTo(start, 0)
	t.e.AppendLabel(done)
	t.freeUnusedVariables(true)
	return nil
}

func (t *transform) functionDefinition(fd *ir.FunctionDefinition) error {
	entry := t.entryLabel(fd)
	heightBefore := t.e.StackHeight()
	params := t.info.ParamVars(fd)

	sub := &transform{
		e:           t.e,
		info:        t.info,
		dialect:     t.dialect,
		bctx:        t.bctx,
		opts:        t.opts,
		log:         t.log.With().Str("function", fd.Name).Logger(),
		heights:     t.heights,
		refs:        t.refs,
		entries:     t.entries,
		scheduled:   map[ir.VarID]bool{},
		unusedSlots: bitset.New(16),
		fn:          fd,
		returnSet:   map[ir.VarID]bool{},
	}
	for _, v := range t.info.ReturnVars(fd) {
		sub.returnSet[v] = true
	}

	t.e.SetSourceLocation(fd.Loc())
	t.e.AppendLabel(entry)
	// calling convention: the caller pushes the return label, then the
	// arguments right to left, so the first parameter is topmost
	t.e.SetStackHeight(1 + len(params))
	for i, v := range params {
		sub.heights[v] = len(params) - i
	}
	for _, v := range params {
		if sub.refs[v] > 0 {
			continue
		}
		if sub.heights[v] == t.e.StackHeight()-1 {
			delete(sub.heights, v)
			t.e.AppendInstruction(evm.POP)
		} else {
			sub.scheduled[v] = true
		}
	}

	if err := sub.statements(fd.Body.Statements); err != nil {
		return err
	}
	if !sub.hasExitLabel {
		if err := sub.setupReturnVariables(); err != nil {
			return err
		}
	}
	if t.e.StackHeight() != sub.exitHeight {
		ice("function %s: stack height %d at the end of the body, expected %d",
			fd.Name, t.e.StackHeight(), sub.exitHeight)
	}
	t.e.AppendLabel(sub.exitLabel)
	if err := sub.functionExit(fd); err != nil {
		return err
	}
	t.e.SetStackHeight(heightBefore)
	return nil
}

// functionExit reorders the stack from [return address, dead slots, return
// variables] to [return values, return address] and jumps back.
func (t *transform) functionExit(fd *ir.FunctionDefinition) error {
	returns := t.info.ReturnVars(fd)
	if t.exitHeight > 17 {
		return &StackTooDeepError{
			Variable: fd.Name,
			Depth:    t.exitHeight - 17,
			Context:  "while shuffling the return values of " + fd.Name,
		}
	}
	layout := make([]int, t.exitHeight)
	for i := range layout {
		layout[i] = -1
	}
	layout[0] = len(returns)
	for i, v := range returns {
		h, ok := t.heights[v]
		if !ok {
			ice("return variable %s of %s has no stack slot", t.info.VarName(v), fd.Name)
		}
		layout[h] = i
	}
	for len(layout) > 0 && layout[len(layout)-1] != len(layout)-1 {
		last := layout[len(layout)-1]
		if last < 0 {
			t.e.AppendInstruction(evm.POP)
			layout = layout[:len(layout)-1]
			continue
		}
		t.e.AppendInstruction(evm.Swap(len(layout) - 1 - last))
		layout[len(layout)-1], layout[last] = layout[last], layout[len(layout)-1]
	}
	for i := range layout {
		if layout[i] != i {
			ice("failed to reshuffle the stack at the exit of %s", fd.Name)
		}
	}
	t.e.AppendJump(0)
	return nil
}

// setupReturnVariables allocates the function exit label and zero-initializes
// the return variables like any other declaration, moving each zero down into
// a freed slot when one is available. This is deferred to the last possible
// statement so that slots freed before it (unreferenced parameters in
// particular) can be taken over. The exit height covers the return label and
// the topmost return slot only; every slot above is dead by the time the exit
// label is reached and is popped on the way there.
func (t *transform) setupReturnVariables() error {
	t.exitLabel = t.e.NewLabelID()
	t.hasExitLabel = true
	t.exitHeight = 1
	for _, v := range t.info.ReturnVars(t.fn) {
		// the slot has to survive until the exit shuffle
		t.refs[v]++
		t.heights[v] = t.e.StackHeight()
		t.e.AppendConstant([]byte{0})
		if slot, ok := t.unusedSlots.NextSet(0); ok {
			t.unusedSlots.Clear(slot)
			t.heights[v] = int(slot)
			diff, err := t.variableHeightDiff(v, true)
			if err != nil {
				return err
			}
			t.e.AppendInstruction(evm.Swap(diff - 1))
			t.e.AppendInstruction(evm.POP)
			t.log.Trace().Str("variable", t.info.VarName(v)).Uint("slot", slot).
				Msg("reusing freed stack slot for a return variable")
		}
		if t.heights[v]+1 > t.exitHeight {
			t.exitHeight = t.heights[v] + 1
		}
	}
	return nil
}

// needsReturnVariables reports whether st could observe the function's
// return variables. Expression statements and assignments that do not
// mention any of them are safe to run before the setup.
func (t *transform) needsReturnVariables(st ir.Statement) bool {
	switch st := st.(type) {
	case *ir.FunctionDefinition:
		return false
	case *ir.ExpressionStatement:
		return t.referencesReturnVariable(st.Expression)
	case *ir.Assignment:
		for _, id := range st.VariableNames {
			if v, ok := t.info.VarOf(id); ok && t.returnSet[v] {
				return true
			}
		}
		return t.referencesReturnVariable(st.Value)
	}
	return true
}

func (t *transform) referencesReturnVariable(expr ir.Expression) bool {
	switch expr := expr.(type) {
	case *ir.Identifier:
		v, ok := t.info.VarOf(expr)
		return ok && t.returnSet[v]
	case *ir.FunctionCall:
		for _, arg := range expr.Arguments {
			if t.referencesReturnVariable(arg) {
				return true
			}
		}
	}
	return false
}

func (t *transform) expression(expr ir.Expression, expectedDeposit int) error {
	before := t.e.StackHeight()
	if err := t.visitExpression(expr); err != nil {
		return err
	}
	if got := t.e.StackHeight() - before; got != expectedDeposit {
		ice("expression left %d stack item(s), expected %d", got, expectedDeposit)
	}
	return nil
}

func (t *transform) visitExpression(expr ir.Expression) error {
	t.e.SetSourceLocation(expr.Loc())
	switch expr := expr.(type) {
	case *ir.Literal:
		value, err := ir.LiteralValue(expr)
		if err != nil {
			ice("invalid literal: %s", err)
		}
		t.e.AppendConstant(ir.ValueBytes(value))
		return nil
	case *ir.Identifier:
		v, ok := t.info.VarOf(expr)
		if !ok {
			ice("unresolved identifier %q", expr.Name)
		}
		diff, err := t.variableHeightDiff(v, false)
		if err != nil {
			return err
		}
		t.e.AppendInstruction(evm.Dup(diff))
		t.decreaseRefs(v)
		return nil
	case *ir.FunctionCall:
		return t.functionCall(expr)
	}
	ice("unexpected expression %T", expr)
	return nil
}

func (t *transform) functionCall(call *ir.FunctionCall) error {
	if builtin := t.dialect.Builtin(call.Name); builtin != nil {
		for i := len(call.Arguments) - 1; i >= 0; i-- {
			if builtin.LiteralArgument(i) {
				continue
			}
			if err := t.expression(call.Arguments[i], 1); err != nil {
				return err
			}
		}
		t.e.SetSourceLocation(call.Loc())
		if builtin.Emit != nil {
			return builtin.Emit(call, t.e, t.bctx)
		}
		t.e.AppendInstruction(builtin.Instruction)
		return nil
	}

	fd := t.info.CallTarget(call)
	if fd == nil {
		ice("unresolved function call %q", call.Name)
	}
	ret := t.e.NewLabelID()
	t.e.AppendLabelReference(ret)
	for i := len(call.Arguments) - 1; i >= 0; i-- {
		if err := t.expression(call.Arguments[i], 1); err != nil {
			return err
		}
	}
	t.e.SetSourceLocation(call.Loc())
	t.e.AppendJumpTo(t.entryLabel(fd), len(fd.ReturnVariables)-len(call.Arguments)-1)
	t.e.AppendLabel(ret)
	return nil
}

func (t *transform) entryLabel(fd *ir.FunctionDefinition) evm.LabelID {
	if label, ok := t.entries[fd]; ok {
		return label
	}
	var label evm.LabelID
	if t.opts.UseNamedLabelsForFunctions {
		label = t.e.NamedLabel(fd.Name)
	} else {
		label = t.e.NewLabelID()
	}
	t.entries[fd] = label
	return label
}

// freeUnusedVariables releases the slots of variables whose last reference
// was consumed, except slots protected by an enclosing conditional branch.
// With popAtTop, freed slots surfacing at the top of the stack are popped.
func (t *transform) freeUnusedVariables(popAtTop bool) {
	for v := range t.scheduled {
		h, ok := t.heights[v]
		if !ok {
			ice("scheduled variable %s has no stack slot", t.info.VarName(v))
		}
		if h < t.frozenHeight {
			continue
		}
		t.unusedSlots.Set(uint(h))
		delete(t.heights, v)
		delete(t.scheduled, v)
		t.log.Trace().Str("variable", t.info.VarName(v)).Int("slot", h).
			Msg("freed stack slot")
	}
	if !popAtTop {
		return
	}
	for t.e.StackHeight() > 0 && t.unusedSlots.Test(uint(t.e.StackHeight()-1)) {
		t.unusedSlots.Clear(uint(t.e.StackHeight() - 1))
		t.e.AppendInstruction(evm.POP)
	}
}

func (t *transform) decreaseRefs(v ir.VarID) {
	if t.refs[v] <= 0 {
		ice("reference count of %s dropped below zero", t.info.VarName(v))
	}
	t.refs[v]--
	if t.refs[v] == 0 {
		t.scheduled[v] = true
	}
}

// variableHeightDiff returns the stack distance to the slot of v from the
// current top, checking it against the reach of dup (16) or swap (17).
func (t *transform) variableHeightDiff(v ir.VarID, forSwap bool) (int, error) {
	h, ok := t.heights[v]
	if !ok {
		ice("variable %s has no stack slot", t.info.VarName(v))
	}
	diff := t.e.StackHeight() - h
	minimum, limit := 0, 16
	if forSwap {
		minimum, limit = 1, 17
	}
	if diff <= minimum {
		ice("invalid stack distance %d for variable %s", diff, t.info.VarName(v))
	}
	if diff > limit {
		return 0, &StackTooDeepError{
			Variable: t.info.VarName(v),
			Depth:    diff - limit,
		}
	}
	return diff, nil
}

func (t *transform) currentLoop() *loopContext {
	if len(t.loops) == 0 {
		ice("loop control statement outside of a loop")
	}
	return &t.loops[len(t.loops)-1]
}

// popUntil emits pops down to height and returns how many were emitted, so
// the caller can re-adjust the height counter after the following jump.
func (t *transform) popUntil(height int) int {
	count := 0
	for t.e.StackHeight() > height {
		t.e.AppendInstruction(evm.POP)
		count++
	}
	return count
}
