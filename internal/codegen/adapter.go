package codegen

import (
	"math/big"

	"github.com/silexlang/silex/internal/evm"
	"github.com/silexlang/silex/internal/evmasm"
	"github.com/silexlang/silex/internal/sourcecode"
)

// dataIDBase separates data-blob IDs from sub-assembly IDs in the SubID
// space handed out by one adapter.
const dataIDBase = evm.SubID(1) << 32

// AssemblyAdapter implements evm.Emitter on top of an evmasm.Assembly. The
// assembly's deposit counter doubles as the emitter's stack height.
type AssemblyAdapter struct {
	asm             *evmasm.Assembly
	dataHashBySubID map[evm.SubID][32]byte
	nextDataID      evm.SubID
}

var _ evm.Emitter = (*AssemblyAdapter)(nil)

func NewAssemblyAdapter(asm *evmasm.Assembly) *AssemblyAdapter {
	return &AssemblyAdapter{
		asm:             asm,
		dataHashBySubID: map[evm.SubID][32]byte{},
		nextDataID:      dataIDBase,
	}
}

// Assembly returns the underlying assembly object.
func (a *AssemblyAdapter) Assembly() *evmasm.Assembly { return a.asm }

func (a *AssemblyAdapter) SetSourceLocation(span sourcecode.Span) {
	a.asm.SetSourceLocation(span)
}

func (a *AssemblyAdapter) StackHeight() int { return a.asm.Deposit() }

func (a *AssemblyAdapter) SetStackHeight(height int) { a.asm.SetDeposit(height) }

func (a *AssemblyAdapter) AppendInstruction(inst evm.Instruction) {
	a.asm.AppendInstruction(inst)
	a.checkHeight()
}

func (a *AssemblyAdapter) AppendConstant(value []byte) {
	if len(value) > 32 {
		ice("constant wider than 32 bytes")
	}
	a.asm.AppendConstant(value)
}

func (a *AssemblyAdapter) NewLabelID() evm.LabelID {
	return evm.LabelID(a.asm.NewTag())
}

func (a *AssemblyAdapter) NamedLabel(name string) evm.LabelID {
	return evm.LabelID(a.asm.NamedTag(name))
}

func (a *AssemblyAdapter) AppendLabel(label evm.LabelID) {
	a.asm.AppendTag(evmasm.TagID(label))
}

func (a *AssemblyAdapter) AppendLabelReference(label evm.LabelID) {
	a.asm.AppendPushTag(evmasm.TagID(label))
}

func (a *AssemblyAdapter) AppendJump(stackDiffAfter int) {
	a.asm.AppendInstruction(evm.JUMP)
	a.asm.AdjustDeposit(stackDiffAfter)
	a.checkHeight()
}

func (a *AssemblyAdapter) AppendJumpTo(label evm.LabelID, stackDiffAfter int) {
	a.AppendLabelReference(label)
	a.AppendJump(stackDiffAfter)
}

func (a *AssemblyAdapter) AppendJumpToIf(label evm.LabelID) {
	a.AppendLabelReference(label)
	a.asm.AppendInstruction(evm.JUMPI)
	a.checkHeight()
}

func (a *AssemblyAdapter) AppendBeginsub(evm.LabelID, int) {
	unsupported("beginsub")
}

func (a *AssemblyAdapter) AppendJumpsub(evm.LabelID, int, int) {
	unsupported("jumpsub")
}

func (a *AssemblyAdapter) AppendReturnsub(int, int) {
	unsupported("returnsub")
}

func (a *AssemblyAdapter) AppendLinkerSymbol(name string) {
	a.asm.AppendLibraryAddress(name)
}

func (a *AssemblyAdapter) AppendAssemblySize() {
	a.asm.AppendProgramSize()
}

func (a *AssemblyAdapter) CreateSubAssembly(span sourcecode.Span, name string) (evm.Emitter, evm.SubID) {
	sub, index := a.asm.NewSub(name)
	sub.SetSourceLocation(span)
	return NewAssemblyAdapter(sub), evm.SubID(index)
}

func (a *AssemblyAdapter) AppendDataOffset(sub evm.SubID) {
	if hash, ok := a.dataHashBySubID[sub]; ok {
		a.asm.AppendPushData(hash)
		return
	}
	a.asm.AppendPushSub(int(sub))
}

func (a *AssemblyAdapter) AppendDataSize(sub evm.SubID) {
	if hash, ok := a.dataHashBySubID[sub]; ok {
		size, ok := a.asm.DataSize(hash)
		if !ok {
			ice("data blob for sub ID %d vanished", sub)
		}
		a.asm.AppendConstant(new(big.Int).SetInt64(int64(size)).Bytes())
		return
	}
	a.asm.AppendPushSubSize(int(sub))
}

func (a *AssemblyAdapter) AppendData(data []byte) evm.SubID {
	hash := a.asm.NewData(data)
	id := a.nextDataID
	a.nextDataID++
	a.dataHashBySubID[id] = hash
	return id
}

func (a *AssemblyAdapter) AppendImmutable(name string) {
	a.asm.AppendPushImmutable(name)
}

func (a *AssemblyAdapter) AppendImmutableAssignment(name string) {
	a.asm.AppendAssignImmutable(name)
}

func (a *AssemblyAdapter) MarkAsInvalid() {
	a.asm.Invalidate()
}

func (a *AssemblyAdapter) checkHeight() {
	if a.asm.Deposit() < 0 {
		ice("stack height became negative")
	}
}
