package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrint(t *testing.T) {
	t.Parallel()

	program := blk(
		let(num("1"), "x"),
		asgn(call("add", id("x"), num("2")), "x"),
		&If{Condition: id("x"), Body: blk(&Leave{})},
		&Switch{Expression: id("x"), Cases: []*Case{
			{Value: num("0"), Body: blk()},
			{Value: nil, Body: blk(&Break{})},
		}},
		&ForLoop{Pre: blk(let(num("0"), "i")), Condition: id("i"), Post: blk(), Body: blk(&Continue{})},
		fn("f", []string{"a"}, []string{"r"}, asgn(id("a"), "r")),
		stmt(call("mstore", num("0"), &Literal{Kind: LiteralString, Value: "hi"})),
	)

	assert.Equal(t,
		`{ let x := 1 x := add(x, 2) if x { leave } switch x case 0 { } default { break } `+
			`for { let i := 0 } i { } { continue } function f(a) -> r { r := a } mstore(0, "hi") }`,
		Print(program))
}
