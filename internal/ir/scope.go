package ir

import (
	"fmt"

	"github.com/silexlang/silex/internal/sourcecode"
)

// ScopeID indexes into the scope arena of an AnalysisInfo.
type ScopeID int32

// VarID identifies a declared variable across the whole unit.
type VarID int32

// NoScope is the parent of the root scope.
const NoScope = ScopeID(-1)

// Scope is one lexical scope. Variable lookup walks parents but stops at a
// function boundary; function lookup walks all the way up.
type Scope struct {
	Parent           ScopeID
	FunctionBoundary bool
	vars             map[string]VarID
	funcs            map[string]*FunctionDefinition
}

// MalformedInputError reports an IR that violates the structural rules
// (unresolved names, redeclarations, misplaced statements).
type MalformedInputError struct {
	Msg string
	Pos sourcecode.Span
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input at %s: %s", e.Pos, e.Msg)
}

// AnalysisInfo is the sidecar produced by ResolveScopes: the scope arena plus
// per-node resolution results the code generator consumes.
type AnalysisInfo struct {
	scopes         []*Scope
	varNames       []string
	blockScopes    map[*Block]ScopeID
	functionScopes map[*FunctionDefinition]ScopeID
	identifierVars map[*Identifier]VarID
	declVars       map[*VariableDeclaration][]VarID
	paramVars      map[*FunctionDefinition][]VarID
	returnVars     map[*FunctionDefinition][]VarID
	callTargets    map[*FunctionCall]*FunctionDefinition
}

// VarOf returns the variable an identifier (expression or assignment target)
// resolved to.
func (a *AnalysisInfo) VarOf(id *Identifier) (VarID, bool) {
	v, ok := a.identifierVars[id]
	return v, ok
}

// VarName returns the declared name of v.
func (a *AnalysisInfo) VarName(v VarID) string { return a.varNames[v] }

// DeclaredVars returns the variables introduced by a declaration, in source
// order.
func (a *AnalysisInfo) DeclaredVars(decl *VariableDeclaration) []VarID {
	return a.declVars[decl]
}

// ParamVars returns the parameter variables of fd in source order.
func (a *AnalysisInfo) ParamVars(fd *FunctionDefinition) []VarID { return a.paramVars[fd] }

// ReturnVars returns the return variables of fd in source order.
func (a *AnalysisInfo) ReturnVars(fd *FunctionDefinition) []VarID { return a.returnVars[fd] }

// CallTarget returns the definition a user-function call resolved to, or nil
// for builtin calls.
func (a *AnalysisInfo) CallTarget(call *FunctionCall) *FunctionDefinition {
	return a.callTargets[call]
}

// BlockScope returns the scope opened by b.
func (a *AnalysisInfo) BlockScope(b *Block) (ScopeID, bool) {
	s, ok := a.blockScopes[b]
	return s, ok
}

// ResolveScopes walks the unit, builds the scope arena and resolves every
// identifier and call. It enforces the structural rules: no redeclaration in
// the same scope, no use of undeclared names, no variable access across a
// function boundary, functions hoisted per block, default switch arm last,
// break/continue only inside loops and leave only inside functions.
func ResolveScopes(block *Block, dialect *Dialect) (*AnalysisInfo, error) {
	r := &resolver{
		info: &AnalysisInfo{
			blockScopes:    map[*Block]ScopeID{},
			functionScopes: map[*FunctionDefinition]ScopeID{},
			identifierVars: map[*Identifier]VarID{},
			declVars:       map[*VariableDeclaration][]VarID{},
			paramVars:      map[*FunctionDefinition][]VarID{},
			returnVars:     map[*FunctionDefinition][]VarID{},
			callTargets:    map[*FunctionCall]*FunctionDefinition{},
		},
		dialect: dialect,
		current: NoScope,
	}
	if err := r.block(block, false); err != nil {
		return nil, err
	}
	return r.info, nil
}

type resolver struct {
	info      *AnalysisInfo
	dialect   *Dialect
	current   ScopeID
	loopDepth int
	fnDepth   int
}

func (r *resolver) enterScope(functionBoundary bool) ScopeID {
	id := ScopeID(len(r.info.scopes))
	r.info.scopes = append(r.info.scopes, &Scope{
		Parent:           r.current,
		FunctionBoundary: functionBoundary,
		vars:             map[string]VarID{},
		funcs:            map[string]*FunctionDefinition{},
	})
	r.current = id
	return id
}

func (r *resolver) leaveScope() {
	r.current = r.info.scopes[r.current].Parent
}

func (r *resolver) scope() *Scope { return r.info.scopes[r.current] }

func (r *resolver) errorf(pos sourcecode.Span, format string, args ...any) error {
	return &MalformedInputError{Msg: fmt.Sprintf(format, args...), Pos: pos}
}

func (r *resolver) declareVar(name string, pos sourcecode.Span) (VarID, error) {
	s := r.scope()
	if _, exists := s.vars[name]; exists {
		return 0, r.errorf(pos, "variable %q redeclared in the same scope", name)
	}
	if _, exists := s.funcs[name]; exists {
		return 0, r.errorf(pos, "%q already declared as a function in this scope", name)
	}
	if r.dialect.Builtin(name) != nil {
		return 0, r.errorf(pos, "%q shadows a builtin", name)
	}
	v := VarID(len(r.info.varNames))
	r.info.varNames = append(r.info.varNames, name)
	s.vars[name] = v
	return v, nil
}

func (r *resolver) lookupVar(name string) (VarID, bool) {
	for id := r.current; id != NoScope; {
		s := r.info.scopes[id]
		if v, ok := s.vars[name]; ok {
			return v, true
		}
		if s.FunctionBoundary {
			break
		}
		id = s.Parent
	}
	return 0, false
}

func (r *resolver) lookupFunction(name string) (*FunctionDefinition, bool) {
	for id := r.current; id != NoScope; id = r.info.scopes[id].Parent {
		if fd, ok := r.info.scopes[id].funcs[name]; ok {
			return fd, true
		}
	}
	return nil, false
}

// block resolves b. If inline is true the statements share the current scope
// instead of opening a fresh one (used for loop init blocks).
func (r *resolver) block(b *Block, inline bool) error {
	if !inline {
		r.enterScope(false)
		defer r.leaveScope()
	}
	r.info.blockScopes[b] = r.current
	// functions are visible in the whole block
	for _, st := range b.Statements {
		fd, ok := st.(*FunctionDefinition)
		if !ok {
			continue
		}
		s := r.scope()
		if _, exists := s.funcs[fd.Name]; exists {
			return r.errorf(fd.Pos, "function %q redeclared in the same scope", fd.Name)
		}
		if _, exists := s.vars[fd.Name]; exists {
			return r.errorf(fd.Pos, "%q already declared as a variable in this scope", fd.Name)
		}
		if r.dialect.Builtin(fd.Name) != nil {
			return r.errorf(fd.Pos, "function %q shadows a builtin", fd.Name)
		}
		s.funcs[fd.Name] = fd
	}
	for _, st := range b.Statements {
		if err := r.statement(st); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) statement(st Statement) error {
	switch st := st.(type) {
	case *Block:
		return r.block(st, false)
	case *ExpressionStatement:
		return r.expression(st.Expression)
	case *VariableDeclaration:
		if st.Value != nil {
			if err := r.expression(st.Value); err != nil {
				return err
			}
		}
		vars := make([]VarID, 0, len(st.Variables))
		for _, name := range st.Variables {
			v, err := r.declareVar(name, st.Pos)
			if err != nil {
				return err
			}
			vars = append(vars, v)
		}
		r.info.declVars[st] = vars
		return nil
	case *Assignment:
		if len(st.VariableNames) == 0 {
			return r.errorf(st.Pos, "assignment without targets")
		}
		for _, id := range st.VariableNames {
			v, ok := r.lookupVar(id.Name)
			if !ok {
				return r.errorf(id.Pos, "assignment to undeclared variable %q", id.Name)
			}
			r.info.identifierVars[id] = v
		}
		return r.expression(st.Value)
	case *If:
		if err := r.expression(st.Condition); err != nil {
			return err
		}
		return r.block(st.Body, false)
	case *Switch:
		return r.switchStatement(st)
	case *ForLoop:
		r.enterScope(false)
		defer r.leaveScope()
		if err := r.block(st.Pre, true); err != nil {
			return err
		}
		if err := r.expression(st.Condition); err != nil {
			return err
		}
		r.loopDepth++
		err := r.block(st.Body, false)
		if err == nil {
			err = r.block(st.Post, false)
		}
		r.loopDepth--
		return err
	case *Break:
		if r.loopDepth == 0 {
			return r.errorf(st.Pos, "break outside of a loop")
		}
		return nil
	case *Continue:
		if r.loopDepth == 0 {
			return r.errorf(st.Pos, "continue outside of a loop")
		}
		return nil
	case *Leave:
		if r.fnDepth == 0 {
			return r.errorf(st.Pos, "leave outside of a function")
		}
		return nil
	case *FunctionDefinition:
		return r.functionDefinition(st)
	}
	return r.errorf(st.Loc(), "unknown statement type %T", st)
}

func (r *resolver) switchStatement(st *Switch) error {
	if err := r.expression(st.Expression); err != nil {
		return err
	}
	if len(st.Cases) == 0 {
		return r.errorf(st.Pos, "switch without cases")
	}
	seen := map[string]bool{}
	for i, c := range st.Cases {
		if c.Value == nil {
			if i != len(st.Cases)-1 {
				return r.errorf(c.Pos, "default case must come last")
			}
		} else {
			v, err := LiteralValue(c.Value)
			if err != nil {
				return r.errorf(c.Value.Pos, "%s", err)
			}
			key := v.String()
			if seen[key] {
				return r.errorf(c.Value.Pos, "duplicate case value %s", key)
			}
			seen[key] = true
		}
		if err := r.block(c.Body, false); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) functionDefinition(fd *FunctionDefinition) error {
	r.info.functionScopes[fd] = r.enterScope(true)
	defer r.leaveScope()
	params := make([]VarID, 0, len(fd.Parameters))
	for _, name := range fd.Parameters {
		v, err := r.declareVar(name, fd.Pos)
		if err != nil {
			return err
		}
		params = append(params, v)
	}
	returns := make([]VarID, 0, len(fd.ReturnVariables))
	for _, name := range fd.ReturnVariables {
		v, err := r.declareVar(name, fd.Pos)
		if err != nil {
			return err
		}
		returns = append(returns, v)
	}
	r.info.paramVars[fd] = params
	r.info.returnVars[fd] = returns
	r.fnDepth++
	savedLoops := r.loopDepth
	r.loopDepth = 0
	err := r.block(fd.Body, false)
	r.loopDepth = savedLoops
	r.fnDepth--
	return err
}

func (r *resolver) expression(expr Expression) error {
	switch expr := expr.(type) {
	case *Literal:
		if _, err := LiteralValue(expr); err != nil {
			return r.errorf(expr.Pos, "%s", err)
		}
		return nil
	case *Identifier:
		v, ok := r.lookupVar(expr.Name)
		if !ok {
			if _, isFn := r.lookupFunction(expr.Name); isFn {
				return r.errorf(expr.Pos, "function %q used as a value", expr.Name)
			}
			return r.errorf(expr.Pos, "undeclared variable %q", expr.Name)
		}
		r.info.identifierVars[expr] = v
		return nil
	case *FunctionCall:
		return r.functionCall(expr)
	}
	return r.errorf(expr.Loc(), "unknown expression type %T", expr)
}

func (r *resolver) functionCall(call *FunctionCall) error {
	if builtin := r.dialect.Builtin(call.Name); builtin != nil {
		if len(call.Arguments) != builtin.Parameters {
			return r.errorf(call.Pos, "%s expects %d arguments, got %d",
				call.Name, builtin.Parameters, len(call.Arguments))
		}
		for i, arg := range call.Arguments {
			if builtin.LiteralArgument(i) {
				if _, ok := arg.(*Literal); !ok {
					return r.errorf(call.Pos, "%s expects a literal argument at position %d", call.Name, i)
				}
				continue
			}
			if err := r.expression(arg); err != nil {
				return err
			}
		}
		return nil
	}
	fd, ok := r.lookupFunction(call.Name)
	if !ok {
		return r.errorf(call.Pos, "call to undeclared function %q", call.Name)
	}
	if len(call.Arguments) != len(fd.Parameters) {
		return r.errorf(call.Pos, "%s expects %d arguments, got %d",
			call.Name, len(fd.Parameters), len(call.Arguments))
	}
	r.info.callTargets[call] = fd
	for _, arg := range call.Arguments {
		if err := r.expression(arg); err != nil {
			return err
		}
	}
	return nil
}
