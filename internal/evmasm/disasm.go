package evmasm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/silexlang/silex/internal/evm"
)

// Disassemble renders bytecode as space-terminated mnemonics, with push
// immediates in minimal uppercase hex ("PUSH1 0xA JUMPI ").
func Disassemble(code []byte) string {
	var sb strings.Builder
	for i := 0; i < len(code); i++ {
		inst := evm.Instruction(code[i])
		if inst.IsPush() {
			n := inst.PushBytes()
			end := i + 1 + n
			if end > len(code) {
				end = len(code)
			}
			v := new(big.Int).SetBytes(code[i+1 : end])
			fmt.Fprintf(&sb, "PUSH%d 0x%s ", n, strings.ToUpper(v.Text(16)))
			i += n
			continue
		}
		sb.WriteString(inst.Name())
		sb.WriteByte(' ')
	}
	return sb.String()
}
