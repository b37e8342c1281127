// Package kchannel simulates the kernel control channel of spec.md §4.4:
// a per-client fault handler plus the three SET_PAGE_IDS / GET_PAGE_IDS /
// CREATE_PAGE_IDS commands. Grounded on rewiring-lkm.c's
// dev_unlocked_ioctl/handle_command/fault, realized over userfaultfd(2)
// since this process cannot install kernel PTEs directly. The low-level
// uffd syscall plumbing lives in kchannel_linux.go, grounded on
// other_examples' uffd_linux.go (dsmmcken-dh-cli).
package kchannel

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"rewire/internal/pageruns"
	"rewire/kmap"
	"rewire/kpool"
	"rewire/page"
	"rewire/rdebug"
	"rewire/rerrno"
	"rewire/rlog"
)

// Client is one open handle against the simulated kernel device: it owns
// a page pool and, once Attach is called, exactly one live Mapping and
// its uffd fault loop. The mutex serializes fault handling and control
// commands exactly as spec.md §5 requires — one acquisition per fault,
// never called from within a sync path.
type Client struct {
	mu   sync.Mutex
	pool *kpool.Pool

	mapping *kmap.Mapping
	region  []byte // the mmap'd, uffd-registered virtual region
	uffdFd  int

	group  *errgroup.Group
	cancel context.CancelFunc
}

// Probe reports whether userfaultfd(2) is usable on this system: opens a
// throwaway descriptor and closes it. Common failure on Linux:
// vm.unprivileged_userfaultfd=0 without CAP_SYS_PTRACE.
func Probe() bool {
	fd, err := newUserfaultfd()
	if err != nil {
		return false
	}
	closeUserfaultfd(fd)
	return true
}

// Open creates a client: a fresh page pool and an unregistered uffd
// descriptor, mirroring dev_open's init_global_state.
func Open() (*Client, error) {
	pool, err := kpool.New("rewire-pool")
	if err != nil {
		return nil, err
	}
	fd, err := newUserfaultfd()
	if err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "kchannel: userfaultfd")
	}
	return &Client{pool: pool, uffdFd: fd}, nil
}

// Pool exposes the client's page pool to kernelbackend for
// CreateNewPageIds, which per spec.md §9 note 2 must never touch the
// mapping table.
func (c *Client) Pool() *kpool.Pool { return c.pool }

// Attach registers region with uffd in missing-page mode, creates a fresh
// Mapping of len(region)/page.Size pages (all Unassigned), and starts the
// fault-service loop. Any previously attached mapping must already be
// detached.
func (c *Client) Attach(region []byte) (*kmap.Mapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mapping != nil {
		return nil, errors.New("kchannel: mapping already attached")
	}
	if err := uffdRegister(c.uffdFd, region); err != nil {
		return nil, errors.Wrap(err, "kchannel: UFFDIO_REGISTER")
	}
	m := kmap.New(c.pool, page.Count(len(region)))
	c.mapping = m
	c.region = region

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	c.group = g
	g.Go(func() error {
		return c.faultLoop(gctx)
	})
	return m, nil
}

// Detach stops the fault loop and unregisters the current mapping's
// region. The Mapping itself is released by the caller (spec.md §4.4
// cleanup: no usage counts are decremented on region teardown — the
// kernel treats it as dropping all references at once).
func (c *Client) Detach() error {
	c.mu.Lock()
	region := c.region
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c.group != nil {
		c.group.Wait() // nolint:errcheck — context cancellation is expected
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if region != nil {
		if err := uffdUnregister(c.uffdFd, region); err != nil {
			return errors.Wrap(err, "kchannel: UFFDIO_UNREGISTER")
		}
	}
	c.mapping = nil
	c.region = nil
	c.cancel = nil
	c.group = nil
	return nil
}

// SetPageIds implements SET_PAGE_IDS: validates bounds, writes each
// PageId into the mapping table, then tears down and re-populates the
// PTEs for [start, start+len) (spec.md §4.4).
func (c *Client) SetPageIds(start, length int, ids []page.Id) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mapping == nil {
		return rerrno.New(rerrno.BoundsViolation, "SET_PAGE_IDS: no mapping")
	}
	if start+length > c.mapping.Len() {
		return rerrno.New(rerrno.BoundsViolation, "SET_PAGE_IDS")
	}
	for i, id := range ids {
		c.mapping.Set(start+i, id)
	}
	return c.updatePageRange(start, length)
}

// GetPageIds implements GET_PAGE_IDS: copies length PageIds from the
// mapping table starting at start.
func (c *Client) GetPageIds(start, length int) ([]page.Id, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mapping == nil {
		return nil, rerrno.New(rerrno.BoundsViolation, "GET_PAGE_IDS: no mapping")
	}
	if start+length > c.mapping.Len() {
		return nil, rerrno.New(rerrno.BoundsViolation, "GET_PAGE_IDS")
	}
	return c.mapping.Snapshot(start, length), nil
}

// CreatePageIds implements CREATE_PAGE_IDS: allocates n new physical
// pages and returns their ids. It touches only the pool attached to this
// client, never the mapping table (spec.md §9 note 2).
func (c *Client) CreatePageIds(n int) ([]page.Id, error) {
	out := make([]page.Id, n)
	for i := 0; i < n; i++ {
		id := c.pool.AllocNewPage()
		if id == page.Unassigned {
			return nil, rerrno.New(rerrno.ResourceExhaustion, "CREATE_PAGE_IDS")
		}
		out[i] = id
	}
	return out, nil
}

// updatePageRange installs PTEs for [start, start+length) directly
// against the pool's own memfd, run by coalesced run: a real PageId gets
// a MAP_FIXED|MAP_SHARED mapping onto pool.Fd() at offset id*page.Size,
// so two offsets naming the same PageId reference the literal same
// physical page — not a copy of it, as a prior UFFDIO_COPY-based
// revision of this method did (writes through one alias were invisible
// through another). Unassigned offsets get MAP_FIXED|MAP_ANONYMOUS
// instead, re-registered with uffd so a future touch still fault-in
// lazily (spec.md §4.4, §8 scenario S6); this only matters for offsets
// that previously held a real PageId and are being explicitly
// unassigned, since Attach's initial reservation is already anonymous
// and registered.
func (c *Client) updatePageRange(start, length int) error {
	ids := c.mapping.Snapshot(start, length)
	runs := pageruns.Coalesce(ids)
	var installedPages int
	for _, r := range runs {
		virtStart := start + r.Start
		addr := uintptr(ptrOf(c.region)) + uintptr(virtStart*page.Size)
		runBytes := r.Length * page.Size
		if r.FileOffset.IsReal() {
			if err := mmapFixedFile(addr, runBytes, c.pool.Fd(), int64(r.FileOffset)*page.Size); err != nil {
				return errors.Wrapf(err, "kchannel: install pages at offset %d", virtStart)
			}
			installedPages += r.Length
			continue
		}
		if err := mmapFixedAnon(addr, runBytes); err != nil {
			return errors.Wrapf(err, "kchannel: reset pages at offset %d", virtStart)
		}
		if err := uffdRegister(c.uffdFd, c.region[virtStart*page.Size:virtStart*page.Size+runBytes]); err != nil {
			return errors.Wrapf(err, "kchannel: re-register offset %d", virtStart)
		}
	}
	if installedPages > 0 {
		rlog.Info("%s", rlog.Counts(fmt.Sprintf("updatePageRange %d run(s)", len(runs)), installedPages, int64(page.Bytes(installedPages))))
	}
	return nil
}

// faultLoop services page faults on c.region, one acquisition of c.mu
// per fault (spec.md §9: the fault path must be reentrancy-free).
func (c *Client) faultLoop(ctx context.Context) error {
	for {
		msg, err := readUffdEvent(ctx, c.uffdFd)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if msg == nil {
			continue
		}
		c.handleFault(*msg)
	}
}

func (c *Client) handleFault(msg uffdPagefault) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos := int((msg.address - uint64(uintptr(ptrOf(c.region)))) / page.Size)
	id, ok := c.mapping.Get(pos)
	if !ok {
		if diag := rdebug.DecodeFault(c.region, pos*page.Size, msg.address); diag != "" {
			rlog.Warning("invalid offset %d: %s", pos, diag)
		} else {
			rlog.Warning("invalid offset %d", pos)
		}
		segfault(msg.threadID)
		return
	}
	if id == page.Unassigned {
		newID := c.pool.AllocNewPage()
		if newID == page.Unassigned {
			rlog.Warning("could not allocate new page for fault at offset %d", pos)
			segfault(msg.threadID)
			return
		}
		c.mapping.Set(pos, newID)
		id = newID
	}
	// Fresh allocations read as zero (spec.md §8 boundary behavior): use
	// UFFDIO_ZEROPAGE rather than installing the pool's own memfd here.
	// A page reached only through this path has no other alias yet — id
	// was just minted above — so there's nothing to share it with. The
	// first SetPageIds/SyncToPT call that references id again (from this
	// offset or any other) runs it through updatePageRange, which
	// installs a MAP_FIXED|MAP_SHARED mapping onto the pool's memfd and
	// is where true cross-alias sharing begins.
	dst := uintptr(ptrOf(c.region)) + uintptr(pos*page.Size)
	if err := uffdZero(c.uffdFd, dst, page.Size); err != nil {
		rlog.Warning("UFFDIO_ZEROPAGE on fault failed: %v", err)
		segfault(msg.threadID)
	}
}

// Close tears down the client: any live mapping must be detached first
// (spec.md §9 note 5 — a Mapping must be torn down before its owning
// pool), then the uffd descriptor is closed and the pool's pages are all
// returned to the kernel.
func (c *Client) Close() error {
	if c.mapping != nil {
		if err := c.Detach(); err != nil {
			return err
		}
	}
	if err := closeUserfaultfd(c.uffdFd); err != nil {
		return errors.Wrap(err, "kchannel: close uffd")
	}
	return c.pool.Close()
}
