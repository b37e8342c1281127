// Package kernelbackend implements the C1 backend.Backend contract by
// driving a kchannel.Client (C6 in spec.md §2, detailed in §4.5). It is a
// thin shim: every method marshals its arguments into a kchannel command
// except Resize, whose five-step sequence is spelled out in spec.md §4.5.
package kernelbackend

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"rewire/internal/align"
	"rewire/kchannel"
	"rewire/page"
)

// Backend is the kernel-mediated realization of backend.Backend.
type Backend struct {
	mu     sync.Mutex
	client *kchannel.Client
	region []byte
	ids    []page.Id
}

// New opens a fresh client with no mapping (n=0 until Resize is called).
func New() (*Backend, error) {
	c, err := kchannel.Open()
	if err != nil {
		return nil, err
	}
	return &Backend{client: c}, nil
}

// Resize implements spec.md §4.5's five-step sequence.
func (b *Backend) Resize(n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	old := len(b.ids)

	// 1. Capture current state, 2. unmap.
	if b.region != nil {
		if old > 0 {
			if err := b.syncFromPTLocked(0, old); err != nil {
				return err
			}
		}
		if err := b.client.Detach(); err != nil {
			return err
		}
		if err := unix.Munmap(b.region); err != nil {
			return errors.Wrap(err, "kernelbackend: munmap")
		}
		b.region = nil
	}

	// 3. Reallocate the userspace page-id array, preserving the prefix.
	next := make([]page.Id, n)
	for i := range next {
		next[i] = page.Unassigned
	}
	copy(next, b.ids[:align.Min(old, n)])
	b.ids = next

	if n == 0 {
		return nil
	}

	// 4. Remap for the new length: a fresh kernel Mapping, all Unassigned.
	region, err := unix.Mmap(-1, 0, page.Bytes(n), unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return errors.Wrap(err, "kernelbackend: mmap")
	}
	if _, err := b.client.Attach(region); err != nil {
		unix.Munmap(region)
		return err
	}
	b.region = region

	// 5. Grown regions: read the (all-Unassigned) suffix back. Surviving
	// prefix: reinstall the preserved page-ids.
	if n > old {
		if err := b.syncFromPTLocked(old, n-old); err != nil {
			return err
		}
	}
	if m := align.Min(old, n); m > 0 {
		if err := b.syncToPTLocked(0, m); err != nil {
			return err
		}
	}
	return nil
}

// Mapping returns the current virtual region, or nil if NumPages()==0.
func (b *Backend) Mapping() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.region
}

// NumPages returns the current page count.
func (b *Backend) NumPages() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ids)
}

// PageIds returns the userspace-side page-id array.
func (b *Backend) PageIds() []page.Id {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ids
}

// SyncToPT pushes ids[start:start+length] into the kernel mapping table
// and installs the corresponding PTEs.
func (b *Backend) SyncToPT(start, length int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.syncToPTLocked(start, length)
}

func (b *Backend) syncToPTLocked(start, length int) error {
	return b.client.SetPageIds(start, length, b.ids[start:start+length])
}

// SyncFromPT refreshes ids[start:start+length] from the kernel mapping
// table's authoritative state.
func (b *Backend) SyncFromPT(start, length int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.syncFromPTLocked(start, length)
}

func (b *Backend) syncFromPTLocked(start, length int) error {
	ids, err := b.client.GetPageIds(start, length)
	if err != nil {
		return err
	}
	copy(b.ids[start:start+length], ids)
	return nil
}

// CreateNewPageIds allocates n fresh physical pages and writes their ids
// into out. positions is unused for this backend: fresh PageIds are pool
// indices, not caller-chosen offsets (only the portable backend treats
// the requested positions as identity).
func (b *Backend) CreateNewPageIds(positions []int, out []page.Id) error {
	ids, err := b.client.CreatePageIds(len(positions))
	if err != nil {
		return err
	}
	copy(out, ids)
	return nil
}

// Close releases the backend's region and client.
func (b *Backend) Close() error {
	b.mu.Lock()
	region := b.region
	b.region = nil
	b.mu.Unlock()

	if region != nil {
		if err := unix.Munmap(region); err != nil {
			return errors.Wrap(err, "kernelbackend: munmap")
		}
	}
	return b.client.Close()
}
