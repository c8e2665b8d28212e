package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silexlang/silex/internal/ir"
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

func TestCollectSideEffects(t *testing.T) {
	t.Parallel()

	dialect := ir.NewEVMDialect()

	t.Run("pure expressions stay movable", func(t *testing.T) {
		effects := CollectSideEffects(call("add", num("1"), num("2")), dialect, nil)
		assert.True(t, effects.Movable)
		assert.False(t, effects.InvalidatesStorage())
	})

	t.Run("nested function definitions contribute nothing", func(t *testing.T) {
		effects := CollectSideEffects(
			blk(fn("f", nil, nil, stmt(call("sstore", num("0"), num("0"))))),
			dialect, nil)
		assert.False(t, effects.InvalidatesStorage())
	})

	t.Run("calls to unknown functions assume the worst", func(t *testing.T) {
		effects := CollectSideEffects(call("mystery"), dialect, nil)
		assert.True(t, effects.InvalidatesStorage())
		assert.True(t, effects.InvalidatesMemory())
	})
}

func TestFunctionSideEffects(t *testing.T) {
	t.Parallel()

	dialect := ir.NewEVMDialect()

	t.Run("effects propagate through the call graph", func(t *testing.T) {
		program := blk(
			fn("g", nil, nil, stmt(call("h"))),
			fn("h", nil, nil, stmt(call("sstore", num("0"), num("0")))),
		)
		effects := FunctionSideEffects(program, dialect)
		require.Contains(t, effects, "g")
		require.Contains(t, effects, "h")
		assert.True(t, effects["h"].InvalidatesStorage())
		assert.True(t, effects["g"].InvalidatesStorage())
		assert.False(t, effects["g"].InvalidatesMemory())
	})

	t.Run("recursion reaches a fixpoint", func(t *testing.T) {
		program := blk(
			fn("even", nil, nil, stmt(call("odd"))),
			fn("odd", nil, nil, stmt(call("even")), stmt(call("mstore", num("0"), num("0")))),
		)
		effects := FunctionSideEffects(program, dialect)
		assert.True(t, effects["even"].InvalidatesMemory())
		assert.False(t, effects["even"].InvalidatesStorage())
	})
}

func TestContainsMSize(t *testing.T) {
	t.Parallel()

	dialect := ir.NewEVMDialect()

	assert.False(t, ContainsMSize(blk(stmt(call("pop", call("mload", num("0"))))), dialect))
	assert.True(t, ContainsMSize(blk(stmt(call("pop", call("msize")))), dialect))
	assert.True(t, ContainsMSize(blk(fn("f", nil, nil, stmt(call("pop", call("msize"))))), dialect))
}

func TestAssignedVariableNames(t *testing.T) {
	t.Parallel()

	names := assignedVariableNames(blk(
		let(num("1"), "declared"),
		asgn(num("2"), "written"),
		fn("f", nil, nil, asgn(num("3"), "inner")),
	))
	assert.Equal(t, map[string]bool{"written": true}, names)
}
