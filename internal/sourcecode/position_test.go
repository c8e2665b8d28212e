package sourcecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpan(t *testing.T) {
	t.Parallel()

	assert.True(t, NewSpan(0, 0).IsValid())
	assert.True(t, NewSpan(3, 10).IsValid())
	assert.False(t, NewSpan(10, 3).IsValid())
	assert.False(t, NewSpan(-1, 0).IsValid())
	assert.Equal(t, "3:10", NewSpan(3, 10).String())
}

func TestPositionOf(t *testing.T) {
	t.Parallel()

	src := NewSource("unit.silex", "let x := 1\nlet y := 2\n")

	pos := src.PositionOf(NewSpan(15, 16))
	assert.Equal(t, int32(2), pos.StartLine)
	assert.Equal(t, int32(5), pos.StartColumn)
	assert.Equal(t, "unit.silex:2:5:", pos.String())

	first := src.PositionOf(NewSpan(0, 3))
	assert.Equal(t, int32(1), first.StartLine)
	assert.Equal(t, int32(1), first.StartColumn)
	assert.Equal(t, int32(1), first.EndLine)
	assert.Equal(t, int32(4), first.EndColumn)
}
