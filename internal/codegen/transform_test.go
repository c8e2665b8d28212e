package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silexlang/silex/internal/evmasm"
	"github.com/silexlang/silex/internal/ir"
	"github.com/silexlang/silex/internal/utils"
)

func blk(stmts ...ir.Statement) *ir.Block {
	return &ir.Block{Statements: stmts}
}

func let(value ir.Expression, names ...string) *ir.VariableDeclaration {
	return &ir.VariableDeclaration{Variables: names, Value: value}
}

func asgn(value ir.Expression, names ...string) *ir.Assignment {
	ids := make([]*ir.Identifier, len(names))
	for i, name := range names {
		ids[i] = &ir.Identifier{Name: name}
	}
	return &ir.Assignment{VariableNames: ids, Value: value}
}

func stmt(expr ir.Expression) *ir.ExpressionStatement {
	return &ir.ExpressionStatement{Expression: expr}
}

func call(name string, args ...ir.Expression) *ir.FunctionCall {
	return &ir.FunctionCall{Name: name, Arguments: args}
}

func id(name string) *ir.Identifier {
	return &ir.Identifier{Name: name}
}

func num(value string) *ir.Literal {
	return &ir.Literal{Kind: ir.LiteralNumber, Value: value}
}

func fn(name string, params, returns []string, stmts ...ir.Statement) *ir.FunctionDefinition {
	return &ir.FunctionDefinition{
		Name:            name,
		Parameters:      params,
		ReturnVariables: returns,
		Body:            blk(stmts...),
	}
}

func ifStmt(cond ir.Expression, body *ir.Block) *ir.If {
	return &ir.If{Condition: cond, Body: body}
}

func forLoop(pre *ir.Block, cond ir.Expression, post, body *ir.Block) *ir.ForLoop {
	return &ir.ForLoop{Pre: pre, Condition: cond, Post: post, Body: body}
}

func switchStmt(expr ir.Expression, cases ...*ir.Case) *ir.Switch {
	return &ir.Switch{Expression: expr, Cases: cases}
}

func caseStmt(value *ir.Literal, body *ir.Block) *ir.Case {
	return &ir.Case{Value: value, Body: body}
}

func assemble(t *testing.T, block *ir.Block, opts Options) (string, error) {
	t.Helper()
	dialect := ir.NewEVMDialect()
	info, err := ir.ResolveScopes(block, dialect)
	require.NoError(t, err)

	asm := evmasm.New("test")
	if err := Assemble(block, info, dialect, NewAssemblyAdapter(asm), nil, opts); err != nil {
		return "", err
	}
	obj := utils.Must(asm.Assemble())
	return evmasm.Disassemble(obj.Bytecode), nil
}

func expectBytecode(t *testing.T, block *ir.Block, expected string) {
	t.Helper()
	got, err := assemble(t, block, Options{})
	require.NoError(t, err)
	assert.Equal(t, expected, got)
}

func TestAssembleBasics(t *testing.T) {
	t.Parallel()

	t.Run("empty block", func(t *testing.T) {
		expectBytecode(t, blk(), "")
	})

	t.Run("unreferenced declaration without value", func(t *testing.T) {
		expectBytecode(t,
			blk(let(nil, "x")),
			"PUSH1 0x0 POP ")
	})

	t.Run("unreferenced declaration with value", func(t *testing.T) {
		expectBytecode(t,
			blk(let(num("1"), "x")),
			"PUSH1 0x1 POP ")
	})

	t.Run("expression statement", func(t *testing.T) {
		expectBytecode(t,
			blk(stmt(call("mstore", num("0"), num("1")))),
			"PUSH1 0x1 PUSH1 0x0 MSTORE ")
	})
}

func TestAssembleSlotReuse(t *testing.T) {
	t.Parallel()

	t.Run("one slot reused by consecutive variables", func(t *testing.T) {
		// x dies at its assignment, y takes over its slot, and so on
		expectBytecode(t,
			blk(
				let(num("1"), "x"),
				asgn(num("6"), "x"),
				let(num("2"), "y"),
				asgn(num("4"), "y"),
			),
			"PUSH1 0x1 PUSH1 0x6 SWAP1 POP POP PUSH1 0x2 PUSH1 0x4 SWAP1 POP POP ")
	})

	t.Run("declaration reuses the slot of its own initializer", func(t *testing.T) {
		expectBytecode(t,
			blk(
				let(num("5"), "x"),
				let(id("x"), "y"),
				stmt(call("sstore", id("y"), id("y"))),
			),
			"PUSH1 0x5 DUP1 SWAP1 POP DUP1 DUP2 SSTORE POP ")
	})

	t.Run("no reuse while the source is still referenced", func(t *testing.T) {
		expectBytecode(t,
			blk(
				let(num("5"), "x"),
				let(id("x"), "y"),
				stmt(call("sstore", id("y"), id("x"))),
			),
			"PUSH1 0x5 DUP1 DUP2 DUP2 SSTORE POP POP ")
	})

	t.Run("no reuse across a scope boundary", func(t *testing.T) {
		expectBytecode(t,
			blk(
				let(num("5"), "x"),
				blk(
					let(id("x"), "y"),
					stmt(call("sstore", id("y"), id("y"))),
				),
			),
			"PUSH1 0x5 DUP1 DUP1 DUP2 SSTORE POP POP ")
	})

	t.Run("multiple freed slots reused lowest first", func(t *testing.T) {
		expectBytecode(t,
			blk(
				let(nil, "a", "b", "c", "d"),
				let(num("2"), "x"),
				let(num("3"), "y"),
				stmt(call("mstore", id("x"), id("a"))),
				stmt(call("mstore", id("y"), id("c"))),
			),
			"PUSH1 0x0 PUSH1 0x0 PUSH1 0x0 PUSH1 0x0 POP PUSH1 0x2 SWAP2 POP PUSH1 0x3 "+
				"DUP4 DUP4 MSTORE DUP2 DUP2 MSTORE POP POP POP POP ")
	})
}

func TestAssembleControlFlow(t *testing.T) {
	t.Parallel()

	t.Run("if keeps outer slots alive across the branch", func(t *testing.T) {
		// z dies inside the conditional body but its slot is only popped
		// after the join
		expectBytecode(t,
			blk(
				let(call("mload", num("0")), "z"),
				ifStmt(id("z"), blk(let(id("z"), "x"))),
				let(num("3"), "t"),
			),
			"PUSH1 0x0 MLOAD DUP1 ISZERO PUSH1 0xA JUMPI DUP1 POP JUMPDEST POP PUSH1 0x3 POP ")
	})

	t.Run("switch with default", func(t *testing.T) {
		expectBytecode(t,
			blk(
				let(num("0"), "x"),
				switchStmt(id("x"),
					caseStmt(num("0"), blk(let(num("2"), "y"), let(num("3"), "z"))),
					caseStmt(nil, blk(asgn(num("3"), "x"))),
				),
				let(num("9"), "t"),
			),
			"PUSH1 0x0 DUP1 PUSH1 0x0 DUP2 EQ PUSH1 0x11 JUMPI PUSH1 0x3 SWAP2 POP "+
				"PUSH1 0x18 JUMP JUMPDEST PUSH1 0x2 POP PUSH1 0x3 POP JUMPDEST POP POP "+
				"PUSH1 0x9 POP ")
	})

	t.Run("loop frees init variable after the loop", func(t *testing.T) {
		expectBytecode(t,
			blk(
				forLoop(blk(let(num("0"), "z")), num("1"), blk(), blk(let(num("3"), "x"))),
				let(num("2"), "t"),
			),
			"PUSH1 0x0 POP JUMPDEST PUSH1 0x1 ISZERO PUSH1 0x11 JUMPI PUSH1 0x3 POP "+
				"JUMPDEST PUSH1 0x3 JUMP JUMPDEST PUSH1 0x2 POP ")
	})

	t.Run("loop with init variable written in the body", func(t *testing.T) {
		expectBytecode(t,
			blk(
				forLoop(blk(let(num("0"), "z")), num("1"), blk(),
					blk(asgn(num("8"), "z"), let(num("3"), "x"))),
				let(num("2"), "t"),
			),
			"PUSH1 0x0 JUMPDEST PUSH1 0x1 ISZERO PUSH1 0x14 JUMPI PUSH1 0x8 SWAP1 POP "+
				"PUSH1 0x3 POP JUMPDEST PUSH1 0x2 JUMP JUMPDEST POP PUSH1 0x2 POP ")
	})

	t.Run("break", func(t *testing.T) {
		expectBytecode(t,
			blk(forLoop(blk(), num("1"), blk(), blk(&ir.Break{}))),
			"JUMPDEST PUSH1 0x1 ISZERO PUSH1 0xE JUMPI PUSH1 0xE JUMP JUMPDEST "+
				"PUSH1 0x0 JUMP JUMPDEST ")
	})

	t.Run("continue", func(t *testing.T) {
		expectBytecode(t,
			blk(forLoop(blk(let(num("0"), "z")), num("1"), blk(), blk(&ir.Continue{}))),
			"PUSH1 0x0 POP JUMPDEST PUSH1 0x1 ISZERO PUSH1 0x11 JUMPI PUSH1 0xD JUMP "+
				"JUMPDEST PUSH1 0x3 JUMP JUMPDEST ")
	})

	t.Run("break pops down to the loop height", func(t *testing.T) {
		expectBytecode(t,
			blk(forLoop(blk(let(num("1"), "z")), num("1"), blk(),
				blk(ifStmt(id("z"), blk(&ir.Break{}))))),
			"PUSH1 0x1 JUMPDEST PUSH1 0x1 ISZERO PUSH1 0x16 JUMPI DUP1 ISZERO "+
				"PUSH1 0x11 JUMPI PUSH1 0x16 JUMP JUMPDEST JUMPDEST PUSH1 0x2 JUMP "+
				"JUMPDEST POP ")
	})
}

func TestAssembleFunctions(t *testing.T) {
	t.Parallel()

	t.Run("trivial function", func(t *testing.T) {
		expectBytecode(t,
			blk(fn("f", nil, nil)),
			"PUSH1 0x6 JUMP JUMPDEST JUMPDEST JUMP JUMPDEST ")
	})

	t.Run("unreferenced parameters are popped at entry", func(t *testing.T) {
		expectBytecode(t,
			blk(fn("f", []string{"a", "b"}, nil)),
			"PUSH1 0x8 JUMP JUMPDEST POP POP JUMPDEST JUMP JUMPDEST ")
	})

	t.Run("return variables are shuffled below the return label", func(t *testing.T) {
		expectBytecode(t,
			blk(fn("f", nil, []string{"x", "y"})),
			"PUSH1 0xC JUMP JUMPDEST PUSH1 0x0 PUSH1 0x0 JUMPDEST SWAP1 SWAP2 JUMP JUMPDEST ")
	})

	t.Run("call and reassignment through a call", func(t *testing.T) {
		expectBytecode(t,
			blk(
				let(call("f", num("1"), num("2")), "b"),
				fn("f", []string{"a", "r"}, []string{"t"}),
				asgn(call("f", num("3"), num("4")), "b"),
			),
			"PUSH1 0x9 PUSH1 0x2 PUSH1 0x1 PUSH1 0xD JUMP JUMPDEST PUSH1 0x15 JUMP "+
				"JUMPDEST POP POP PUSH1 0x0 JUMPDEST SWAP1 JUMP JUMPDEST PUSH1 0x1F "+
				"PUSH1 0x4 PUSH1 0x3 PUSH1 0xD JUMP JUMPDEST SWAP1 POP POP ")
	})

	t.Run("return variable takes over a freed parameter slot", func(t *testing.T) {
		// r is never referenced, so its slot is freed before the body starts
		// and t's zero moves down into it instead of staying above a
		expectBytecode(t,
			blk(
				let(num("3"), "b"),
				fn("f", []string{"a", "r"}, []string{"t"},
					let(id("a"), "x"),
					asgn(num("3"), "a"),
					asgn(id("a"), "t"),
				),
				asgn(num("7"), "b"),
			),
			"PUSH1 0x3 PUSH1 0x17 JUMP JUMPDEST PUSH1 0x0 SWAP2 POP DUP1 POP "+
				"PUSH1 0x3 SWAP1 POP DUP1 SWAP2 POP POP JUMPDEST SWAP1 JUMP JUMPDEST "+
				"PUSH1 0x7 SWAP1 POP POP ")
	})

	t.Run("return variable setup is deferred until observable", func(t *testing.T) {
		// pop(address()) runs before x exists; leave forces the setup
		expectBytecode(t,
			blk(fn("f", nil, []string{"x"},
				stmt(call("pop", call("address"))),
				&ir.Leave{},
				stmt(call("pop", call("callvalue"))),
			)),
			"PUSH1 0x10 JUMP JUMPDEST ADDRESS POP PUSH1 0x0 PUSH1 0xD JUMP CALLVALUE POP "+
				"JUMPDEST SWAP1 JUMP JUMPDEST ")
	})

	t.Run("named function labels", func(t *testing.T) {
		got, err := assemble(t, blk(fn("f", nil, nil)), Options{UseNamedLabelsForFunctions: true})
		require.NoError(t, err)
		assert.Equal(t, "PUSH1 0x6 JUMP JUMPDEST JUMPDEST JUMP JUMPDEST ", got)
	})
}

func TestAssembleStackTooDeep(t *testing.T) {
	t.Parallel()

	deepExpression := func(levels int) ir.Expression {
		var e ir.Expression = id("x")
		for i := 0; i < levels; i++ {
			e = call("add", e, num("1"))
		}
		return e
	}

	t.Run("sixteen slots are still reachable", func(t *testing.T) {
		_, err := assemble(t,
			blk(let(num("1"), "x"), stmt(call("pop", deepExpression(15)))),
			Options{})
		require.NoError(t, err)
	})

	t.Run("seventeen slots are one too deep", func(t *testing.T) {
		_, err := assemble(t,
			blk(let(num("1"), "x"), stmt(call("pop", deepExpression(16)))),
			Options{})
		require.Error(t, err)
		var stackErr *StackTooDeepError
		require.ErrorAs(t, err, &stackErr)
		assert.Equal(t, "x", stackErr.Variable)
		assert.Equal(t, 1, stackErr.Depth)
	})
}
