package evm

import (
	"github.com/silexlang/silex/internal/sourcecode"
)

// LabelID identifies a jump destination allocated through an Emitter.
type LabelID uint64

// SubID identifies a sub-assembly or data blob within a single Emitter
// instance. IDs are only meaningful relative to the emitter that handed
// them out.
type SubID uint64

// SubIDInvalid is returned by emitter operations that have no sub to report.
const SubIDInvalid = SubID(^uint64(0))

// Emitter is the target surface the code generator writes to. Implementations
// keep a running stack-height counter that must always equal the net stack
// effect of everything appended so far; operations taking an explicit
// stackDiffAfter adjust the counter by that amount after the emitted item's
// own effect.
type Emitter interface {
	// SetSourceLocation records the origin of subsequently appended items.
	SetSourceLocation(span sourcecode.Span)

	// StackHeight returns the current height counter.
	StackHeight() int
	// SetStackHeight overwrites the height counter, for control-flow points
	// where the abstract height is known out-of-band (function entries).
	SetStackHeight(height int)

	AppendInstruction(inst Instruction)
	// AppendConstant pushes a 256-bit constant (big-endian, at most 32 bytes).
	AppendConstant(value []byte)

	// NewLabelID allocates a fresh label.
	NewLabelID() LabelID
	// NamedLabel returns a stable label for name, allocating it on first use.
	NamedLabel(name string) LabelID
	// AppendLabel defines label at the current position.
	AppendLabel(label LabelID)
	// AppendLabelReference pushes the code offset of label.
	AppendLabelReference(label LabelID)

	// AppendJump emits an unconditional jump consuming the topmost stack item
	// (the destination), then adjusts the height counter by stackDiffAfter.
	AppendJump(stackDiffAfter int)
	// AppendJumpTo pushes label and jumps to it, then adjusts the counter.
	AppendJumpTo(label LabelID, stackDiffAfter int)
	// AppendJumpToIf jumps to label if the topmost stack item is nonzero,
	// consuming it.
	AppendJumpToIf(label LabelID)

	// AppendBeginsub, AppendJumpsub and AppendReturnsub are the subroutine
	// primitives of targets that have them. Targets without subroutine
	// support reject them fatally.
	AppendBeginsub(label LabelID, arguments int)
	AppendJumpsub(label LabelID, arguments, returns int)
	AppendReturnsub(returns int, stackDiffAfter int)

	// AppendLinkerSymbol pushes a placeholder address to be filled in by the
	// linker for the library named name.
	AppendLinkerSymbol(name string)

	// AppendAssemblySize pushes the final byte size of the assembly.
	AppendAssemblySize()

	// CreateSubAssembly starts a nested assembly and returns an emitter for
	// it together with its ID in this emitter.
	CreateSubAssembly(span sourcecode.Span, name string) (Emitter, SubID)
	// AppendDataOffset pushes the code offset of the sub or data blob.
	AppendDataOffset(sub SubID)
	// AppendDataSize pushes the byte size of the sub or data blob.
	AppendDataSize(sub SubID)
	// AppendData registers a data blob and returns its ID.
	AppendData(data []byte) SubID

	// AppendImmutable pushes a placeholder for the immutable named name,
	// to be substituted at deployment.
	AppendImmutable(name string)
	// AppendImmutableAssignment consumes the topmost stack item as the value
	// assigned to the immutable named name.
	AppendImmutableAssignment(name string)

	// MarkAsInvalid flags the assembly as unusable after a codegen failure.
	MarkAsInvalid()
}
