// Package kmap implements the kernel-mediated backend's per-mapping
// page-id table (spec.md §3, §4.3, C4 in §2). Grounded on local_state.c's
// mapping array and get_page_id/set_page_id/resize_mapping.
package kmap

import (
	"sync"

	"rewire/internal/align"
	"rewire/kpool"
	"rewire/page"
)

// Mapping is a contiguous virtual region's page-id vector. Its pool is
// the owning client's kpool.Pool, used to keep usage counts in step with
// Set's assignments.
type Mapping struct {
	mu      sync.Mutex
	pool    *kpool.Pool
	pageIds []page.Id
}

// New creates a mapping of n pages, all Unassigned, backed by pool.
func New(pool *kpool.Pool, n int) *Mapping {
	ids := make([]page.Id, n)
	for i := range ids {
		ids[i] = page.Unassigned
	}
	return &Mapping{pool: pool, pageIds: ids}
}

// Len returns the mapping's current page count.
func (m *Mapping) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pageIds)
}

// Get returns the PageId at offset, or ok=false if offset is out of
// range (the OFFSET_INVALID case of spec.md §3, never itself returned).
func (m *Mapping) Get(offset int) (page.Id, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if offset < 0 || offset >= len(m.pageIds) {
		return 0, false
	}
	return m.pageIds[offset], true
}

// Set assigns id to offset, adjusting the pool's usage counts: the
// previous occupant (if a real page) loses a reference, and id (if a
// real page) gains one. Setting page.Unassigned drops the reference
// without acquiring a new one.
func (m *Mapping) Set(offset int, id page.Id) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if offset < 0 || offset >= len(m.pageIds) {
		return false
	}
	prev := m.pageIds[offset]
	if prev.IsReal() {
		m.pool.DecUsage(prev)
	}
	m.pageIds[offset] = id
	if id.IsReal() {
		m.pool.IncUsage(id)
	}
	return true
}

// Snapshot copies the PageIds over [start, start+length) into a fresh
// slice of exactly length entries (spec.md §9 note 3).
func (m *Mapping) Snapshot(start, length int) []page.Id {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]page.Id, length)
	copy(out, m.pageIds[start:start+length])
	return out
}

// All returns the live page-id slice (not a copy) for direct read/write
// access. Callers must not race mutation of this slice with Resize.
func (m *Mapping) All() []page.Id {
	return m.pageIds
}

// Resize grows or shrinks the mapping to n pages, preserving
// page_ids[0:min(old,n)]; new slots are Unassigned. Usage counts for
// truncated slots are dropped (mirroring spec.md §4.4 cleanup: a
// shrinking resize releases references to the pages it drops).
func (m *Mapping) Resize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := len(m.pageIds)
	if n < old {
		for i := n; i < old; i++ {
			if m.pageIds[i].IsReal() {
				m.pool.DecUsage(m.pageIds[i])
			}
		}
	}
	next := make([]page.Id, n)
	for i := range next {
		next[i] = page.Unassigned
	}
	copy(next, m.pageIds[:align.Min(old, n)])
	m.pageIds = next
}
