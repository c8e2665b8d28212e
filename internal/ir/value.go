package ir

import (
	"fmt"
	"math/big"
	"strings"
)

var wordModulus = new(big.Int).Lsh(big.NewInt(1), 256)

// LiteralValue evaluates a literal to its 256-bit word. Numbers wrap modulo
// 2**256, booleans map to 0/1, and string literals of at most 32 bytes are
// left-aligned in the word.
func LiteralValue(lit *Literal) (*big.Int, error) {
	switch lit.Kind {
	case LiteralNumber:
		var (
			v  *big.Int
			ok bool
		)
		if strings.HasPrefix(lit.Value, "0x") || strings.HasPrefix(lit.Value, "0X") {
			v, ok = new(big.Int).SetString(lit.Value[2:], 16)
		} else {
			v, ok = new(big.Int).SetString(lit.Value, 10)
		}
		if !ok || v.Sign() < 0 {
			return nil, fmt.Errorf("invalid number literal %q", lit.Value)
		}
		return v.Mod(v, wordModulus), nil
	case LiteralBoolean:
		switch lit.Value {
		case "true":
			return big.NewInt(1), nil
		case "false":
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("invalid boolean literal %q", lit.Value)
	case LiteralString:
		if len(lit.Value) > 32 {
			return nil, fmt.Errorf("string literal longer than 32 bytes")
		}
		var word [32]byte
		copy(word[:], lit.Value)
		return new(big.Int).SetBytes(word[:]), nil
	}
	return nil, fmt.Errorf("unknown literal kind %d", lit.Kind)
}

// ValueBytes returns the shortest big-endian representation of v, with at
// least one byte.
func ValueBytes(v *big.Int) []byte {
	b := v.Bytes()
	if len(b) == 0 {
		b = []byte{0}
	}
	return b
}
