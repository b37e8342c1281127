// Package rdebug is an optional diagnostic aid for an invalid-offset
// fault: it disassembles the bytes the faulting access landed on within
// the rewired region (not the faulting thread's own instruction stream —
// a uffd_msg carries only the faulting address, never RIP, so there is
// no instruction pointer available to decode here) and renders them in
// human-readable form so a developer can eyeball what was sitting at
// that data offset. It is disabled by default; build with -tags
// rewire_decode_fault to pull in the disassembler. The teacher pulled in
// golang.org/x/arch only transitively, through pprof's profile
// disassembly view — this package gives it a direct, first-class home.
package rdebug

// DecodeFault decodes the bytes at code[pc:] as if they were machine
// code, returning a human-readable rendering or "" if decoding is
// disabled or fails. code is the rewired region's own data, not an
// executable segment, so the result describes what those bytes would
// decode to, not a real instruction the CPU executed. addr is the
// faulting address, reported alongside the decode for context.
func DecodeFault(code []byte, pc int, addr uint64) string {
	return decodeFault(code, pc, addr)
}
