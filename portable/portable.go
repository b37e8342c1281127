// Package portable implements the portable backend (C2 in spec.md §2,
// detailed in §4.2): a backend.Backend realized over a large memfd and
// remap_file_pages(2), with no dependency on a kernel device. PageId
// identity is the raw file-offset-in-pages.
package portable

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"rewire/internal/align"
	"rewire/internal/pageruns"
	"rewire/page"
	"rewire/rlog"
)

// backingCeiling is truncated once at creation time so the backend never
// has to manage file size itself — "larger than any plausible mapping"
// per spec.md §4.2. 1TiB of sparse file costs nothing until touched.
const backingCeiling = 1 << 40

// Backend is the portable realization of backend.Backend.
type Backend struct {
	fd     int
	region []byte
	ids    []page.Id
}

// New creates a portable backend backed by a fresh, pre-truncated memfd.
func New(name string) (*Backend, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "portable: memfd_create")
	}
	if err := unix.Ftruncate(fd, backingCeiling); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "portable: ftruncate")
	}
	return &Backend{fd: fd}, nil
}

// Resize implements spec.md §4.2's four-step sequence.
func (b *Backend) Resize(n int) error {
	old := len(b.ids)

	if b.region != nil {
		if err := unix.Munmap(b.region); err != nil {
			return errors.Wrap(err, "portable: munmap")
		}
		b.region = nil
	}

	next := make([]page.Id, n)
	for i := range next {
		if i < old {
			next[i] = b.ids[i]
		} else {
			next[i] = page.Id(i) // identity mapping for new slots
		}
	}
	b.ids = next

	if n == 0 {
		return nil
	}

	region, err := unix.Mmap(b.fd, 0, page.Bytes(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return errors.Wrap(err, "portable: mmap")
	}
	b.region = region

	// Reinstall any non-identity mappings inherited from the old state.
	// Freshly grown slots already read from their identity file offset
	// because the base mmap maps file offset i at virtual page i.
	if old > 0 {
		if err := b.SyncToPT(0, align.Min(old, n)); err != nil {
			return err
		}
	}
	return nil
}

// Mapping returns the current virtual region, or nil if empty.
func (b *Backend) Mapping() []byte { return b.region }

// NumPages returns the current page count.
func (b *Backend) NumPages() int { return len(b.ids) }

// PageIds returns the in-memory page-id array.
func (b *Backend) PageIds() []page.Id { return b.ids }

// SyncToPT issues one remap_file_pages call per coalesced run over
// [start, start+length). Coalescing is what keeps the process's VMA
// count (and so the OS max_map_count limit) from growing with the
// mapping's page count.
func (b *Backend) SyncToPT(start, length int) error {
	runs := pageruns.Coalesce(b.ids[start : start+length])
	var pages int
	for _, r := range runs {
		virtStart := start + r.Start
		if err := remapFilePages(b.region, virtStart, r.Length, int(r.FileOffset)); err != nil {
			return errors.Wrapf(err, "portable: remap_file_pages at page %d", virtStart)
		}
		pages += r.Length
	}
	if len(runs) > 0 {
		rlog.Info("%s", rlog.Counts(fmt.Sprintf("syncToPT %d run(s)", len(runs)), pages, int64(page.Bytes(pages))))
	}
	return nil
}

// SyncFromPT is a no-op: the in-memory page-id array is authoritative
// for the portable backend.
func (b *Backend) SyncFromPT(start, length int) error { return nil }

// CreateNewPageIds is the identity mapping: out[i] = positions[i],
// since a PageId in this backend is simply a file offset in pages and
// the caller's choice of positions is the identity (spec.md §4.1).
func (b *Backend) CreateNewPageIds(positions []int, out []page.Id) error {
	for i, p := range positions {
		out[i] = page.Id(p)
	}
	return nil
}

// Close unmaps the region and closes the backing memfd.
func (b *Backend) Close() error {
	var err error
	if b.region != nil {
		err = unix.Munmap(b.region)
		b.region = nil
	}
	if cerr := unix.Close(b.fd); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrap(err, "portable: close")
	}
	return nil
}
