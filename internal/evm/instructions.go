package evm

import (
	"fmt"
	"sort"
)

// Instruction is a single EVM opcode.
type Instruction byte

const (
	STOP       Instruction = 0x00
	ADD        Instruction = 0x01
	MUL        Instruction = 0x02
	SUB        Instruction = 0x03
	DIV        Instruction = 0x04
	SDIV       Instruction = 0x05
	MOD        Instruction = 0x06
	SMOD       Instruction = 0x07
	ADDMOD     Instruction = 0x08
	MULMOD     Instruction = 0x09
	EXP        Instruction = 0x0a
	SIGNEXTEND Instruction = 0x0b

	LT     Instruction = 0x10
	GT     Instruction = 0x11
	SLT    Instruction = 0x12
	SGT    Instruction = 0x13
	EQ     Instruction = 0x14
	ISZERO Instruction = 0x15
	AND    Instruction = 0x16
	OR     Instruction = 0x17
	XOR    Instruction = 0x18
	NOT    Instruction = 0x19
	BYTE   Instruction = 0x1a
	SHL    Instruction = 0x1b
	SHR    Instruction = 0x1c
	SAR    Instruction = 0x1d

	KECCAK256 Instruction = 0x20

	ADDRESS        Instruction = 0x30
	BALANCE        Instruction = 0x31
	ORIGIN         Instruction = 0x32
	CALLER         Instruction = 0x33
	CALLVALUE      Instruction = 0x34
	CALLDATALOAD   Instruction = 0x35
	CALLDATASIZE   Instruction = 0x36
	CALLDATACOPY   Instruction = 0x37
	CODESIZE       Instruction = 0x38
	CODECOPY       Instruction = 0x39
	GASPRICE       Instruction = 0x3a
	EXTCODESIZE    Instruction = 0x3b
	EXTCODECOPY    Instruction = 0x3c
	RETURNDATASIZE Instruction = 0x3d
	RETURNDATACOPY Instruction = 0x3e
	EXTCODEHASH    Instruction = 0x3f

	BLOCKHASH   Instruction = 0x40
	COINBASE    Instruction = 0x41
	TIMESTAMP   Instruction = 0x42
	NUMBER      Instruction = 0x43
	PREVRANDAO  Instruction = 0x44
	GASLIMIT    Instruction = 0x45
	CHAINID     Instruction = 0x46
	SELFBALANCE Instruction = 0x47
	BASEFEE     Instruction = 0x48

	POP      Instruction = 0x50
	MLOAD    Instruction = 0x51
	MSTORE   Instruction = 0x52
	MSTORE8  Instruction = 0x53
	SLOAD    Instruction = 0x54
	SSTORE   Instruction = 0x55
	JUMP     Instruction = 0x56
	JUMPI    Instruction = 0x57
	PC       Instruction = 0x58
	MSIZE    Instruction = 0x59
	GAS      Instruction = 0x5a
	JUMPDEST Instruction = 0x5b

	PUSH1  Instruction = 0x60
	PUSH32 Instruction = 0x7f

	DUP1  Instruction = 0x80
	DUP16 Instruction = 0x8f

	SWAP1  Instruction = 0x90
	SWAP16 Instruction = 0x9f

	LOG0 Instruction = 0xa0
	LOG1 Instruction = 0xa1
	LOG2 Instruction = 0xa2
	LOG3 Instruction = 0xa3
	LOG4 Instruction = 0xa4

	CREATE       Instruction = 0xf0
	CALL         Instruction = 0xf1
	CALLCODE     Instruction = 0xf2
	RETURN       Instruction = 0xf3
	DELEGATECALL Instruction = 0xf4
	CREATE2      Instruction = 0xf5
	STATICCALL   Instruction = 0xfa
	REVERT       Instruction = 0xfd
	INVALID      Instruction = 0xfe
	SELFDESTRUCT Instruction = 0xff
)

// Info describes an opcode: its mnemonic and how many stack items it
// consumes and produces.
type Info struct {
	Name string
	Args int
	Rets int
}

var table = map[Instruction]Info{
	STOP:       {"STOP", 0, 0},
	ADD:        {"ADD", 2, 1},
	MUL:        {"MUL", 2, 1},
	SUB:        {"SUB", 2, 1},
	DIV:        {"DIV", 2, 1},
	SDIV:       {"SDIV", 2, 1},
	MOD:        {"MOD", 2, 1},
	SMOD:       {"SMOD", 2, 1},
	ADDMOD:     {"ADDMOD", 3, 1},
	MULMOD:     {"MULMOD", 3, 1},
	EXP:        {"EXP", 2, 1},
	SIGNEXTEND: {"SIGNEXTEND", 2, 1},

	LT:     {"LT", 2, 1},
	GT:     {"GT", 2, 1},
	SLT:    {"SLT", 2, 1},
	SGT:    {"SGT", 2, 1},
	EQ:     {"EQ", 2, 1},
	ISZERO: {"ISZERO", 1, 1},
	AND:    {"AND", 2, 1},
	OR:     {"OR", 2, 1},
	XOR:    {"XOR", 2, 1},
	NOT:    {"NOT", 1, 1},
	BYTE:   {"BYTE", 2, 1},
	SHL:    {"SHL", 2, 1},
	SHR:    {"SHR", 2, 1},
	SAR:    {"SAR", 2, 1},

	KECCAK256: {"KECCAK256", 2, 1},

	ADDRESS:        {"ADDRESS", 0, 1},
	BALANCE:        {"BALANCE", 1, 1},
	ORIGIN:         {"ORIGIN", 0, 1},
	CALLER:         {"CALLER", 0, 1},
	CALLVALUE:      {"CALLVALUE", 0, 1},
	CALLDATALOAD:   {"CALLDATALOAD", 1, 1},
	CALLDATASIZE:   {"CALLDATASIZE", 0, 1},
	CALLDATACOPY:   {"CALLDATACOPY", 3, 0},
	CODESIZE:       {"CODESIZE", 0, 1},
	CODECOPY:       {"CODECOPY", 3, 0},
	GASPRICE:       {"GASPRICE", 0, 1},
	EXTCODESIZE:    {"EXTCODESIZE", 1, 1},
	EXTCODECOPY:    {"EXTCODECOPY", 4, 0},
	RETURNDATASIZE: {"RETURNDATASIZE", 0, 1},
	RETURNDATACOPY: {"RETURNDATACOPY", 3, 0},
	EXTCODEHASH:    {"EXTCODEHASH", 1, 1},

	BLOCKHASH:   {"BLOCKHASH", 1, 1},
	COINBASE:    {"COINBASE", 0, 1},
	TIMESTAMP:   {"TIMESTAMP", 0, 1},
	NUMBER:      {"NUMBER", 0, 1},
	PREVRANDAO:  {"PREVRANDAO", 0, 1},
	GASLIMIT:    {"GASLIMIT", 0, 1},
	CHAINID:     {"CHAINID", 0, 1},
	SELFBALANCE: {"SELFBALANCE", 0, 1},
	BASEFEE:     {"BASEFEE", 0, 1},

	POP:      {"POP", 1, 0},
	MLOAD:    {"MLOAD", 1, 1},
	MSTORE:   {"MSTORE", 2, 0},
	MSTORE8:  {"MSTORE8", 2, 0},
	SLOAD:    {"SLOAD", 1, 1},
	SSTORE:   {"SSTORE", 2, 0},
	JUMP:     {"JUMP", 1, 0},
	JUMPI:    {"JUMPI", 2, 0},
	PC:       {"PC", 0, 1},
	MSIZE:    {"MSIZE", 0, 1},
	GAS:      {"GAS", 0, 1},
	JUMPDEST: {"JUMPDEST", 0, 0},

	LOG0: {"LOG0", 2, 0},
	LOG1: {"LOG1", 3, 0},
	LOG2: {"LOG2", 4, 0},
	LOG3: {"LOG3", 5, 0},
	LOG4: {"LOG4", 6, 0},

	CREATE:       {"CREATE", 3, 1},
	CALL:         {"CALL", 7, 1},
	CALLCODE:     {"CALLCODE", 7, 1},
	RETURN:       {"RETURN", 2, 0},
	DELEGATECALL: {"DELEGATECALL", 6, 1},
	CREATE2:      {"CREATE2", 4, 1},
	STATICCALL:   {"STATICCALL", 6, 1},
	REVERT:       {"REVERT", 2, 0},
	INVALID:      {"INVALID", 0, 0},
	SELFDESTRUCT: {"SELFDESTRUCT", 1, 0},
}

// Lookup returns the description of i, if i names a defined opcode other than
// PUSH/DUP/SWAP (those are handled positionally).
func Lookup(i Instruction) (Info, bool) {
	info, ok := table[i]
	return info, ok
}

// AllInstructions lists every cataloged opcode in ascending byte order,
// excluding the positional PUSH/DUP/SWAP families.
func AllInstructions() []Instruction {
	insts := make([]Instruction, 0, len(table))
	for i := range table {
		insts = append(insts, i)
	}
	sort.Slice(insts, func(a, b int) bool { return insts[a] < insts[b] })
	return insts
}

func (i Instruction) IsPush() bool { return i >= PUSH1 && i <= PUSH32 }
func (i Instruction) IsDup() bool  { return i >= DUP1 && i <= DUP16 }
func (i Instruction) IsSwap() bool { return i >= SWAP1 && i <= SWAP16 }

// PushBytes returns how many immediate bytes follow a PUSH opcode.
func (i Instruction) PushBytes() int {
	if !i.IsPush() {
		return 0
	}
	return int(i-PUSH1) + 1
}

// Args returns the number of stack items consumed by i.
func (i Instruction) Args() int {
	switch {
	case i.IsPush():
		return 0
	case i.IsDup():
		return int(i-DUP1) + 1
	case i.IsSwap():
		return int(i-SWAP1) + 2
	}
	return table[i].Args
}

// Rets returns the number of stack items produced by i.
func (i Instruction) Rets() int {
	switch {
	case i.IsPush():
		return 1
	case i.IsDup():
		return int(i-DUP1) + 2
	case i.IsSwap():
		return int(i-SWAP1) + 2
	}
	return table[i].Rets
}

// StackDelta is the net stack height change caused by executing i.
func (i Instruction) StackDelta() int {
	return i.Rets() - i.Args()
}

func (i Instruction) Name() string {
	switch {
	case i.IsPush():
		return fmt.Sprintf("PUSH%d", i.PushBytes())
	case i.IsDup():
		return fmt.Sprintf("DUP%d", int(i-DUP1)+1)
	case i.IsSwap():
		return fmt.Sprintf("SWAP%d", int(i-SWAP1)+1)
	}
	if info, ok := table[i]; ok {
		return info.Name
	}
	return fmt.Sprintf("INVALID_%x", byte(i))
}

func (i Instruction) String() string { return i.Name() }

// Push returns the PUSH opcode carrying n immediate bytes (1 <= n <= 32).
func Push(n int) Instruction {
	if n < 1 || n > 32 {
		panic(fmt.Sprintf("invalid push size %d", n))
	}
	return PUSH1 + Instruction(n-1)
}

// Dup returns DUPn for 1 <= n <= 16.
func Dup(n int) Instruction {
	if n < 1 || n > 16 {
		panic(fmt.Sprintf("invalid dup position %d", n))
	}
	return DUP1 + Instruction(n-1)
}

// Swap returns SWAPn for 1 <= n <= 16.
func Swap(n int) Instruction {
	if n < 1 || n > 16 {
		panic(fmt.Sprintf("invalid swap position %d", n))
	}
	return SWAP1 + Instruction(n-1)
}
