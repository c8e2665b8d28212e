package ir

import (
	"fmt"
	"strings"

	"github.com/silexlang/silex/internal/evm"
)

// Effect describes how a builtin interacts with one location kind.
type Effect uint8

const (
	EffectNone Effect = iota
	EffectRead
	EffectWrite
)

func maxEffect(a, b Effect) Effect {
	if a > b {
		return a
	}
	return b
}

// SideEffects summarizes the observable behavior of an expression, builtin or
// function body.
type SideEffects struct {
	// Movable expressions can be evaluated anywhere and always yield the same
	// value for the same arguments.
	Movable bool
	// SideEffectFree expressions can be dropped if their value is unused.
	SideEffectFree bool
	// SideEffectFreeIfNoMSize is like SideEffectFree, assuming msize is never
	// used in the unit (memory growth is then unobservable).
	SideEffectFreeIfNoMSize bool

	Storage    Effect
	Memory     Effect
	OtherState Effect
}

// NoSideEffects is the identity element for Join.
func NoSideEffects() SideEffects {
	return SideEffects{Movable: true, SideEffectFree: true, SideEffectFreeIfNoMSize: true}
}

// WorstSideEffects assumes every observable effect.
func WorstSideEffects() SideEffects {
	return SideEffects{Storage: EffectWrite, Memory: EffectWrite, OtherState: EffectWrite}
}

// Join combines the effects of two program parts executed together.
func (s SideEffects) Join(o SideEffects) SideEffects {
	return SideEffects{
		Movable:                 s.Movable && o.Movable,
		SideEffectFree:          s.SideEffectFree && o.SideEffectFree,
		SideEffectFreeIfNoMSize: s.SideEffectFreeIfNoMSize && o.SideEffectFreeIfNoMSize,
		Storage:                 maxEffect(s.Storage, o.Storage),
		Memory:                  maxEffect(s.Memory, o.Memory),
		OtherState:              maxEffect(s.OtherState, o.OtherState),
	}
}

// InvalidatesStorage reports whether prior storage knowledge survives this.
func (s SideEffects) InvalidatesStorage() bool { return s.Storage == EffectWrite }

// InvalidatesMemory reports whether prior memory knowledge survives this.
func (s SideEffects) InvalidatesMemory() bool { return s.Memory == EffectWrite }

// BuiltinContext carries unit-level information some builtins need while
// emitting code, such as the sub-assembly IDs of named data objects.
type BuiltinContext struct {
	Subs map[string]evm.SubID
}

// BuiltinFunction describes one dialect builtin. If Emit is nil the builtin
// maps directly to Instruction; otherwise Emit produces the code itself.
// Positions marked in LiteralArguments take a compile-time literal instead of
// a stack value.
type BuiltinFunction struct {
	Name             string
	Parameters       int
	Returns          int
	Instruction      evm.Instruction
	SideEffects      SideEffects
	LiteralArguments []bool
	Emit             func(call *FunctionCall, e evm.Emitter, ctx *BuiltinContext) error
}

// LiteralArgument reports whether argument position i is a literal argument.
func (b *BuiltinFunction) LiteralArgument(i int) bool {
	return i < len(b.LiteralArguments) && b.LiteralArguments[i]
}

// Dialect is the set of builtin functions available to a compilation unit.
type Dialect struct {
	builtins map[string]*BuiltinFunction
}

// Builtin returns the builtin named name, or nil.
func (d *Dialect) Builtin(name string) *BuiltinFunction {
	return d.builtins[name]
}

// NewDialect builds a dialect from an explicit builtin list.
func NewDialect(builtins ...*BuiltinFunction) *Dialect {
	m := make(map[string]*BuiltinFunction, len(builtins))
	for _, b := range builtins {
		m[b.Name] = b
	}
	return &Dialect{builtins: m}
}

// NewEVMDialect builds the standard EVM dialect: one builtin per opcode
// (except control-flow and stack primitives, which the code generator owns)
// plus the object-access builtins with custom emission.
func NewEVMDialect() *Dialect {
	builtins := map[string]*BuiltinFunction{}
	for _, inst := range evm.AllInstructions() {
		switch inst {
		case evm.JUMP, evm.JUMPI, evm.JUMPDEST, evm.PC:
			continue
		}
		name := strings.ToLower(inst.Name())
		builtins[name] = &BuiltinFunction{
			Name:        name,
			Parameters:  inst.Args(),
			Returns:     inst.Rets(),
			Instruction: inst,
			SideEffects: instructionSideEffects(inst),
		}
	}

	builtins["datasize"] = &BuiltinFunction{
		Name:             "datasize",
		Parameters:       1,
		Returns:          1,
		SideEffects:      NoSideEffects(),
		LiteralArguments: []bool{true},
		Emit: func(call *FunctionCall, e evm.Emitter, ctx *BuiltinContext) error {
			sub, err := subArgument(call, ctx)
			if err != nil {
				return err
			}
			e.AppendDataSize(sub)
			return nil
		},
	}
	builtins["dataoffset"] = &BuiltinFunction{
		Name:             "dataoffset",
		Parameters:       1,
		Returns:          1,
		SideEffects:      NoSideEffects(),
		LiteralArguments: []bool{true},
		Emit: func(call *FunctionCall, e evm.Emitter, ctx *BuiltinContext) error {
			sub, err := subArgument(call, ctx)
			if err != nil {
				return err
			}
			e.AppendDataOffset(sub)
			return nil
		},
	}
	builtins["linkersymbol"] = &BuiltinFunction{
		Name:             "linkersymbol",
		Parameters:       1,
		Returns:          1,
		SideEffects:      NoSideEffects(),
		LiteralArguments: []bool{true},
		Emit: func(call *FunctionCall, e evm.Emitter, _ *BuiltinContext) error {
			name, err := literalArgumentString(call, 0)
			if err != nil {
				return err
			}
			e.AppendLinkerSymbol(name)
			return nil
		},
	}
	builtins["setimmutable"] = &BuiltinFunction{
		Name:             "setimmutable",
		Parameters:       2,
		Returns:          0,
		SideEffects:      SideEffects{Memory: EffectWrite},
		LiteralArguments: []bool{true, false},
		Emit: func(call *FunctionCall, e evm.Emitter, _ *BuiltinContext) error {
			name, err := literalArgumentString(call, 0)
			if err != nil {
				return err
			}
			e.AppendImmutableAssignment(name)
			return nil
		},
	}
	builtins["loadimmutable"] = &BuiltinFunction{
		Name:             "loadimmutable",
		Parameters:       1,
		Returns:          1,
		SideEffects:      NoSideEffects(),
		LiteralArguments: []bool{true},
		Emit: func(call *FunctionCall, e evm.Emitter, _ *BuiltinContext) error {
			name, err := literalArgumentString(call, 0)
			if err != nil {
				return err
			}
			e.AppendImmutable(name)
			return nil
		},
	}

	return &Dialect{builtins: builtins}
}

func literalArgumentString(call *FunctionCall, i int) (string, error) {
	lit, ok := call.Arguments[i].(*Literal)
	if !ok {
		return "", fmt.Errorf("%s expects a literal argument at position %d", call.Name, i)
	}
	return lit.Value, nil
}

func subArgument(call *FunctionCall, ctx *BuiltinContext) (evm.SubID, error) {
	name, err := literalArgumentString(call, 0)
	if err != nil {
		return evm.SubIDInvalid, err
	}
	if ctx == nil {
		return evm.SubIDInvalid, fmt.Errorf("%s: no object context", call.Name)
	}
	sub, ok := ctx.Subs[name]
	if !ok {
		return evm.SubIDInvalid, fmt.Errorf("%s: unknown object %q", call.Name, name)
	}
	return sub, nil
}

func instructionSideEffects(inst evm.Instruction) SideEffects {
	switch inst {
	case evm.ADD, evm.MUL, evm.SUB, evm.DIV, evm.SDIV, evm.MOD, evm.SMOD,
		evm.ADDMOD, evm.MULMOD, evm.EXP, evm.SIGNEXTEND,
		evm.LT, evm.GT, evm.SLT, evm.SGT, evm.EQ, evm.ISZERO,
		evm.AND, evm.OR, evm.XOR, evm.NOT, evm.BYTE, evm.SHL, evm.SHR, evm.SAR,
		evm.ADDRESS, evm.ORIGIN, evm.CALLER, evm.CALLVALUE,
		evm.CALLDATALOAD, evm.CALLDATASIZE, evm.CODESIZE, evm.GASPRICE,
		evm.COINBASE, evm.TIMESTAMP, evm.NUMBER, evm.PREVRANDAO,
		evm.GASLIMIT, evm.CHAINID, evm.BASEFEE:
		return NoSideEffects()
	case evm.KECCAK256, evm.MLOAD:
		return SideEffects{SideEffectFreeIfNoMSize: true, Memory: EffectRead}
	case evm.MSIZE:
		return SideEffects{SideEffectFree: true, SideEffectFreeIfNoMSize: true, Memory: EffectRead}
	case evm.MSTORE, evm.MSTORE8, evm.CALLDATACOPY, evm.CODECOPY, evm.RETURNDATACOPY:
		return SideEffects{Memory: EffectWrite}
	case evm.EXTCODECOPY:
		return SideEffects{Memory: EffectWrite, OtherState: EffectRead}
	case evm.SLOAD:
		return SideEffects{SideEffectFree: true, SideEffectFreeIfNoMSize: true, Storage: EffectRead}
	case evm.SSTORE:
		return SideEffects{Storage: EffectWrite}
	case evm.BALANCE, evm.SELFBALANCE, evm.EXTCODESIZE, evm.EXTCODEHASH,
		evm.BLOCKHASH, evm.GAS, evm.RETURNDATASIZE:
		return SideEffects{SideEffectFree: true, SideEffectFreeIfNoMSize: true, OtherState: EffectRead}
	case evm.LOG0, evm.LOG1, evm.LOG2, evm.LOG3, evm.LOG4:
		return SideEffects{Memory: EffectRead, OtherState: EffectWrite}
	case evm.STATICCALL:
		return SideEffects{Storage: EffectRead, Memory: EffectWrite, OtherState: EffectRead}
	case evm.CREATE, evm.CREATE2, evm.CALL, evm.CALLCODE, evm.DELEGATECALL, evm.SELFDESTRUCT:
		return WorstSideEffects()
	case evm.STOP, evm.RETURN, evm.REVERT, evm.INVALID:
		return SideEffects{Memory: EffectRead, OtherState: EffectWrite}
	}
	return WorstSideEffects()
}
