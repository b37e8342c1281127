//go:build rewire_decode_fault && !amd64 && !arm64

package rdebug

func decodeFault(code []byte, pc int, addr uint64) string {
	return ""
}
