package evmasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silexlang/silex/internal/evm"
)

func TestAssembleTagResolution(t *testing.T) {
	t.Parallel()

	t.Run("references grow to two bytes when offsets require it", func(t *testing.T) {
		a := New("test")
		tag := a.NewTag()
		a.AppendPushTag(tag)
		for i := 0; i < 300; i++ {
			a.AppendInstruction(evm.STOP)
		}
		a.AppendTag(tag)

		obj, err := a.Assemble()
		require.NoError(t, err)
		// 3-byte reference, 300 instruction bytes, one JUMPDEST
		require.Len(t, obj.Bytecode, 304)
		assert.Equal(t, byte(evm.Push(2)), obj.Bytecode[0])
		assert.Equal(t, []byte{0x01, 0x2F}, obj.Bytecode[1:3])
		assert.Equal(t, byte(evm.JUMPDEST), obj.Bytecode[303])
	})

	t.Run("reference to an undefined tag", func(t *testing.T) {
		a := New("test")
		a.AppendPushTag(a.NewTag())
		_, err := a.Assemble()
		assert.ErrorContains(t, err, "undefined tag")
	})

	t.Run("tag defined twice", func(t *testing.T) {
		a := New("test")
		tag := a.NewTag()
		a.AppendTag(tag)
		a.AppendTag(tag)
		_, err := a.Assemble()
		assert.ErrorContains(t, err, "defined twice")
	})

	t.Run("named tags are allocated once", func(t *testing.T) {
		a := New("test")
		assert.Equal(t, a.NamedTag("f"), a.NamedTag("f"))
		assert.NotEqual(t, a.NamedTag("f"), a.NamedTag("g"))
	})
}

func TestAssembleSections(t *testing.T) {
	t.Parallel()

	t.Run("identical data blobs are stored once", func(t *testing.T) {
		a := New("test")
		h1 := a.NewData([]byte{9, 9, 9})
		h2 := a.NewData([]byte{9, 9, 9})
		assert.Equal(t, h1, h2)

		obj, err := a.Assemble()
		require.NoError(t, err)
		assert.Equal(t, []byte{9, 9, 9}, obj.Bytecode)
	})

	t.Run("sub-assembly placement and reference rebasing", func(t *testing.T) {
		a := New("test")
		sub, index := a.NewSub("runtime")
		sub.AppendLibraryAddress("lib/Math")
		a.AppendPushSub(index)
		a.AppendPushSubSize(index)
		a.AppendInstruction(evm.STOP)

		obj, err := a.Assemble()
		require.NoError(t, err)
		// sub offset 5, sub size 21 (PUSH20 plus the placeholder)
		assert.Equal(t, "PUSH1 0x5 PUSH1 0x15 STOP ", Disassemble(obj.Bytecode[:5]))
		assert.Equal(t, byte(evm.Push(20)), obj.Bytecode[5])
		assert.Equal(t, map[int]string{6: "lib/Math"}, obj.LinkReferences)
	})

	t.Run("invalidated assemblies refuse to assemble", func(t *testing.T) {
		a := New("test")
		a.Invalidate()
		_, err := a.Assemble()
		assert.ErrorContains(t, err, "invalid")
	})
}

func TestAppendConstant(t *testing.T) {
	t.Parallel()

	a := New("test")
	a.AppendConstant([]byte{0, 0})
	a.AppendConstant([]byte{0, 0xAB, 0xCD})
	assert.Equal(t, 2, a.Deposit())

	obj, err := a.Assemble()
	require.NoError(t, err)
	assert.Equal(t, "PUSH1 0x0 PUSH2 0xABCD ", Disassemble(obj.Bytecode))
}

func TestDisassemble(t *testing.T) {
	t.Parallel()

	t.Run("push immediates in minimal uppercase hex", func(t *testing.T) {
		code := []byte{0x60, 0x00, 0x61, 0x0A, 0xBC, 0x57, 0x00}
		assert.Equal(t, "PUSH1 0x0 PUSH2 0xABC JUMPI STOP ", Disassemble(code))
	})

	t.Run("truncated trailing push", func(t *testing.T) {
		assert.Equal(t, "PUSH2 0xA ", Disassemble([]byte{0x61, 0x0A}))
	})
}
