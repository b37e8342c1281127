// Package backend defines the contract every rewiring backend satisfies
// (spec.md §4.1). Both the kernel-mediated backend (kernelbackend) and the
// portable backend (portable) implement Backend identically; client code
// never branches on which one it holds.
package backend

import "rewire/page"

// Backend abstracts the rewiring primitives over a single contiguous
// virtual region. Each Backend owns exactly one mapping; it is not safe
// for concurrent use by more than one goroutine issuing commands (the
// spec's single-client model), though the kernel-mediated backend's
// internal fault handler runs concurrently with caller commands under
// its own mutex.
type Backend interface {
	// Resize grows or shrinks the mapping to n pages, preserving
	// page_ids[0:min(old,n)]. Reallocates the backing virtual region;
	// any pointer returned by a prior Mapping call is invalidated.
	Resize(n int) error

	// Mapping returns the current base address of the virtual region,
	// or nil if the mapping has zero pages.
	Mapping() []byte

	// NumPages returns the current page count N.
	NumPages() int

	// PageIds returns read/write access to the in-memory page-id array.
	// Its length always equals NumPages().
	PageIds() []page.Id

	// SyncToPT makes the active mapping reflect the in-memory page-ids
	// over [start, start+length). Idempotent.
	SyncToPT(start, length int) error

	// SyncFromPT refreshes the in-memory page-ids over
	// [start, start+length) from the authoritative state. A no-op for
	// the portable backend.
	SyncFromPT(start, length int) error

	// CreateNewPageIds requests n fresh page identities for positions,
	// writing them into out (len(out) == len(positions) == n). For the
	// kernel-mediated backend this allocates n new physical pages. For
	// the portable backend it is the identity: out[i] = positions[i].
	CreateNewPageIds(positions []int, out []page.Id) error

	// Close releases backend resources. The backend must not be used
	// afterward.
	Close() error
}
