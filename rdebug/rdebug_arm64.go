//go:build rewire_decode_fault && arm64

package rdebug

import (
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"
)

// decodeFault disassembles a single aarch64 instruction at code[pc:].
func decodeFault(code []byte, pc int, addr uint64) string {
	if pc < 0 || pc+4 > len(code) {
		return fmt.Sprintf("fault at 0x%x (pc out of range)", addr)
	}
	inst, err := arm64asm.Decode(code[pc : pc+4])
	if err != nil {
		return fmt.Sprintf("fault at 0x%x (decode: %v)", addr, err)
	}
	return fmt.Sprintf("fault at 0x%x: %s (4 bytes)", addr, inst.String())
}
