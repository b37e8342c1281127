// Package page defines the identifiers and sizing constants shared by
// every rewiring backend.
package page

// Size is the fixed page size in bytes. All mapping lengths and offsets
// are whole multiples of Size.
const Size = 4096

// Id names a physical backing page: an index into a client's page pool
// for the kernel-mediated backend, or a raw file offset in pages for the
// portable backend.
type Id uint32

// Unassigned marks a mapping slot with no physical backing. Reads and
// writes to such a slot fault lazily. Only meaningful for the
// kernel-mediated backend; the portable backend never stores it.
const Unassigned Id = 0xFFFFFFFF

// offsetInvalid is the reserved sentinel for an out-of-range lookup. No
// code stores it in a page-id array or returns it; every lookup reports
// out-of-range with a bool instead.
const offsetInvalid Id = 0xFFFFFFFE

// IsReal reports whether id names an allocated physical page, as opposed
// to Unassigned or the internal offsetInvalid sentinel.
func (id Id) IsReal() bool {
	return id != Unassigned && id != offsetInvalid
}

// Count returns the number of whole pages needed to cover n bytes.
func Count(n int) int {
	return (n + Size - 1) / Size
}

// Bytes returns the byte length of n pages.
func Bytes(n int) int {
	return n * Size
}
