//go:build !rewire_decode_fault

package rdebug

func decodeFault(code []byte, pc int, addr uint64) string {
	return ""
}
