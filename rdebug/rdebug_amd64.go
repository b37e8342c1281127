//go:build rewire_decode_fault && amd64

package rdebug

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// decodeFault disassembles a single x86-64 instruction at code[pc:].
func decodeFault(code []byte, pc int, addr uint64) string {
	if pc < 0 || pc >= len(code) {
		return fmt.Sprintf("fault at 0x%x (pc out of range)", addr)
	}
	inst, err := x86asm.Decode(code[pc:], 64)
	if err != nil {
		return fmt.Sprintf("fault at 0x%x (decode: %v)", addr, err)
	}
	return fmt.Sprintf("fault at 0x%x: %s (%d bytes)", addr, inst.String(), inst.Len)
}
