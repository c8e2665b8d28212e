package evm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstructionFamilies(t *testing.T) {
	t.Parallel()

	t.Run("push", func(t *testing.T) {
		assert.Equal(t, PUSH1, Push(1))
		assert.Equal(t, PUSH32, Push(32))
		assert.Equal(t, 20, Push(20).PushBytes())
		assert.Equal(t, "PUSH20", Push(20).Name())
		assert.Equal(t, 1, Push(20).StackDelta())
		assert.Panics(t, func() { Push(0) })
		assert.Panics(t, func() { Push(33) })
	})

	t.Run("dup", func(t *testing.T) {
		assert.Equal(t, DUP1, Dup(1))
		assert.Equal(t, DUP16, Dup(16))
		assert.Equal(t, "DUP7", Dup(7).Name())
		assert.Equal(t, 1, Dup(7).StackDelta())
		assert.Panics(t, func() { Dup(17) })
	})

	t.Run("swap", func(t *testing.T) {
		assert.Equal(t, SWAP1, Swap(1))
		assert.Equal(t, SWAP16, Swap(16))
		assert.Equal(t, "SWAP3", Swap(3).Name())
		assert.Equal(t, 0, Swap(3).StackDelta())
		assert.Equal(t, 4, Swap(3).Args())
		assert.Panics(t, func() { Swap(17) })
	})
}

func TestStackDelta(t *testing.T) {
	t.Parallel()

	assert.Equal(t, -1, ADD.StackDelta())
	assert.Equal(t, -1, POP.StackDelta())
	assert.Equal(t, 1, CALLVALUE.StackDelta())
	assert.Equal(t, 0, ISZERO.StackDelta())
	assert.Equal(t, -6, CALL.StackDelta())
	assert.Equal(t, 0, JUMPDEST.StackDelta())
}

func TestLookup(t *testing.T) {
	t.Parallel()

	info, ok := Lookup(KECCAK256)
	assert.True(t, ok)
	assert.Equal(t, Info{Name: "KECCAK256", Args: 2, Rets: 1}, info)

	_, ok = Lookup(DUP1)
	assert.False(t, ok)

	assert.Equal(t, "INVALID_c0", Instruction(0xc0).Name())
}

func TestAllInstructions(t *testing.T) {
	t.Parallel()

	insts := AllInstructions()
	assert.NotEmpty(t, insts)
	for i := 1; i < len(insts); i++ {
		assert.Less(t, insts[i-1], insts[i])
	}
	for _, inst := range insts {
		assert.False(t, inst.IsPush() || inst.IsDup() || inst.IsSwap(),
			"positional instruction %s in catalog", inst)
	}
}
