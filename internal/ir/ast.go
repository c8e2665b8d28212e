// Package ir defines the structured intermediate representation consumed by
// the code generator and the optimizer: a block-structured AST with typed
// sum types for statements and expressions, a dialect descriptor for builtin
// functions, and a scope resolver producing an analysis sidecar.
package ir

import "github.com/silexlang/silex/internal/sourcecode"

// Node is implemented by every AST node.
type Node interface {
	Loc() sourcecode.Span
}

// Statement is the marker interface for statement nodes.
type Statement interface {
	Node
	isStatement()
}

// Expression is the marker interface for expression nodes.
type Expression interface {
	Node
	isExpression()
}

// Block is a brace-delimited statement sequence opening a new scope.
type Block struct {
	Pos        sourcecode.Span
	Statements []Statement
}

// ExpressionStatement is an expression evaluated for effect; it must leave
// nothing on the stack.
type ExpressionStatement struct {
	Pos        sourcecode.Span
	Expression Expression
}

// VariableDeclaration introduces one or more variables, optionally with an
// initializer producing exactly one value per variable. A nil Value means
// zero initialization.
type VariableDeclaration struct {
	Pos       sourcecode.Span
	Variables []string
	Value     Expression
}

// Assignment writes the values of Value to previously declared variables.
type Assignment struct {
	Pos           sourcecode.Span
	VariableNames []*Identifier
	Value         Expression
}

// If executes Body when Condition is nonzero. There is no else branch.
type If struct {
	Pos       sourcecode.Span
	Condition Expression
	Body      *Block
}

// Case is a single switch arm; a nil Value marks the default arm.
type Case struct {
	Pos   sourcecode.Span
	Value *Literal
	Body  *Block
}

// Switch compares Expression against the case values in order and runs the
// first matching body, or the default body if none matches.
type Switch struct {
	Pos        sourcecode.Span
	Expression Expression
	Cases      []*Case
}

// ForLoop is the only loop construct. Variables declared in Pre are visible
// in Condition, Body and Post.
type ForLoop struct {
	Pos       sourcecode.Span
	Pre       *Block
	Condition Expression
	Post      *Block
	Body      *Block
}

// Break exits the innermost enclosing loop.
type Break struct {
	Pos sourcecode.Span
}

// Continue jumps to the post block of the innermost enclosing loop.
type Continue struct {
	Pos sourcecode.Span
}

// Leave exits the enclosing function, returning the current values of its
// return variables.
type Leave struct {
	Pos sourcecode.Span
}

// FunctionDefinition declares a function. Functions are hoisted: they are
// visible in the whole enclosing block, including before their definition.
type FunctionDefinition struct {
	Pos             sourcecode.Span
	Name            string
	Parameters      []string
	ReturnVariables []string
	Body            *Block
}

// FunctionCall invokes a builtin or a user-defined function.
type FunctionCall struct {
	Pos       sourcecode.Span
	Name      string
	Arguments []Expression
}

// Identifier is a variable reference.
type Identifier struct {
	Pos  sourcecode.Span
	Name string
}

// LiteralKind discriminates literal syntax.
type LiteralKind uint8

const (
	LiteralNumber LiteralKind = iota
	LiteralBoolean
	LiteralString
)

// Literal is a constant; Value holds the source text (decimal or 0x-prefixed
// hex for numbers, "true"/"false" for booleans, the raw bytes for strings).
type Literal struct {
	Pos   sourcecode.Span
	Kind  LiteralKind
	Value string
}

func (n *Block) Loc() sourcecode.Span               { return n.Pos }
func (n *ExpressionStatement) Loc() sourcecode.Span { return n.Pos }
func (n *VariableDeclaration) Loc() sourcecode.Span { return n.Pos }
func (n *Assignment) Loc() sourcecode.Span          { return n.Pos }
func (n *If) Loc() sourcecode.Span                  { return n.Pos }
func (n *Case) Loc() sourcecode.Span                { return n.Pos }
func (n *Switch) Loc() sourcecode.Span              { return n.Pos }
func (n *ForLoop) Loc() sourcecode.Span             { return n.Pos }
func (n *Break) Loc() sourcecode.Span               { return n.Pos }
func (n *Continue) Loc() sourcecode.Span            { return n.Pos }
func (n *Leave) Loc() sourcecode.Span               { return n.Pos }
func (n *FunctionDefinition) Loc() sourcecode.Span  { return n.Pos }
func (n *FunctionCall) Loc() sourcecode.Span        { return n.Pos }
func (n *Identifier) Loc() sourcecode.Span          { return n.Pos }
func (n *Literal) Loc() sourcecode.Span             { return n.Pos }

func (*Block) isStatement()               {}
func (*ExpressionStatement) isStatement() {}
func (*VariableDeclaration) isStatement() {}
func (*Assignment) isStatement()          {}
func (*If) isStatement()                  {}
func (*Switch) isStatement()              {}
func (*ForLoop) isStatement()             {}
func (*Break) isStatement()               {}
func (*Continue) isStatement()            {}
func (*Leave) isStatement()               {}
func (*FunctionDefinition) isStatement()  {}

func (*FunctionCall) isExpression() {}
func (*Identifier) isExpression()   {}
func (*Literal) isExpression()      {}
