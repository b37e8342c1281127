// Package kpool implements the kernel-mediated backend's per-client
// physical page pool (spec.md §3, §4.3 and C3 in §2). It is grounded on
// global_state.c's page_info array (doubling growth, usage_count
// refcounting, kaddr lookup by PageId) from the original kernel module,
// realized over a memfd-backed region since this process cannot allocate
// real kernel pages.
package kpool

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"rewire/page"
	"rewire/rlog"
)

type entry struct {
	valid      bool
	usageCount int32
}

// Pool is a per-client growable array of physical pages. PageIds are
// indices into it. The array grows by doubling and never shrinks; pages
// are freed only when the owning client (Pool.Close) is released, never
// when usage_count reaches zero (spec.md §3).
type Pool struct {
	mu sync.Mutex

	fd       int
	mem      []byte // current mmap of the backing memfd, sized capacity*page.Size
	capacity int     // number of page slots currently backed by fd/mem
	count    int     // number of pages handed out (ppages_count)
	entries  []entry // parallel to count/capacity
}

// New creates an empty pool backed by a fresh memfd. The memfd is given
// no fixed size limit; it is grown lazily as pages are allocated.
func New(name string) (*Pool, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "kpool: memfd_create")
	}
	return &Pool{fd: fd}, nil
}

// grow doubles the pool's capacity (matching resize_page_info_arr's
// growth factor) and extends the backing memfd and its mmap to match.
func (p *Pool) grow() error {
	newCap := p.capacity * 2
	if newCap == 0 {
		newCap = 1
	}
	if err := unix.Ftruncate(p.fd, int64(newCap)*page.Size); err != nil {
		return errors.Wrap(err, "kpool: ftruncate")
	}
	if p.mem != nil {
		if err := unix.Munmap(p.mem); err != nil {
			return errors.Wrap(err, "kpool: munmap")
		}
	}
	mem, err := unix.Mmap(p.fd, 0, newCap*page.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return errors.Wrap(err, "kpool: mmap")
	}
	p.mem = mem
	entries := make([]entry, newCap)
	copy(entries, p.entries)
	p.entries = entries
	p.capacity = newCap
	return nil
}

// AllocNewPage returns a new PageId backed by a freshly zeroed page,
// growing the pool's capacity if necessary. It returns page.Unassigned
// on allocation failure (spec.md §4.3), matching alloc_new_page's
// kernel-side contract exactly.
func (p *Pool) AllocNewPage() page.Id {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count == p.capacity {
		if err := p.grow(); err != nil {
			rlog.Warning("could not grow page pool: %v", err)
			return page.Unassigned
		}
	}
	id := page.Id(p.count)
	p.count++
	// The memfd region backing this slot is already zero: ftruncate
	// extends a memfd with a zero-filled hole, and this slot has never
	// been written before (pool capacity only ever grows).
	p.entries[id] = entry{valid: true}
	return id
}

// IncUsage increments the reference count of id. Out-of-range ids are
// logged and ignored (spec.md §4.3), using the strict >= bounds check
// specified in spec.md §9 note 4.
func (p *Pool) IncUsage(id page.Id) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(id) >= p.count {
		rlog.Warning("inc_usage: invalid pageId %d", id)
		return
	}
	p.entries[id].usageCount++
}

// DecUsage decrements the reference count of id. Out-of-range ids are
// logged and ignored.
func (p *Pool) DecUsage(id page.Id) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(id) >= p.count {
		rlog.Warning("dec_usage: invalid pageId %d", id)
		return
	}
	p.entries[id].usageCount--
}

// KaddrOf returns the byte slice backing id, or ok=false if the slot is
// invalid or out of range. This stands in for the kernel's kaddr_of: in
// this userspace realization, the "kernel address" is just the pool's
// mmap sliced at the page's offset.
func (p *Pool) KaddrOf(id page.Id) (b []byte, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(id) >= p.count || !p.entries[id].valid {
		return nil, false
	}
	off := int(id) * page.Size
	return p.mem[off : off+page.Size], true
}

// Fd returns the pool's backing memfd. kchannel mmaps it directly
// (MAP_FIXED|MAP_SHARED at a real PageId's offset) so a client's
// virtual offset becomes the literal same physical page as the pool's
// own mapping, rather than a copy of its bytes.
func (p *Pool) Fd() int {
	return p.fd
}

// Count returns the number of pages allocated so far.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Close returns every physical page to the kernel (spec.md §4.4
// cleanup): unmaps the pool and closes its backing memfd. A Mapping
// referencing this pool must already be torn down (spec.md §9 note 5).
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.mem != nil {
		err = unix.Munmap(p.mem)
		p.mem = nil
	}
	if cerr := unix.Close(p.fd); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrap(err, "kpool: close")
	}
	return nil
}
