//go:build linux

package kchannel

import (
	"context"
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl numbers for userfaultfd, computed the way linux/userfaultfd.h
// defines them (_IOWR, or _IOR for UNREGISTER, with type 0xAA, nr, size). Hardcoded the way
// other_examples' uffd_linux.go hardcodes UFFDIO_COPY/UFFDIO_ZEROPAGE —
// these are stable ABI values, not worth re-deriving at build time.
const (
	_UFFDIO_API        = 0xc018aa3f
	_UFFDIO_REGISTER   = 0xc020aa00
	_UFFDIO_UNREGISTER = 0x8010aa01
	_UFFDIO_ZEROPAGE   = 0xc020aa04

	_UFFD_API                    = 0xAA
	_UFFD_FEATURE_THREAD_ID      = 1 << 8
	_UFFDIO_REGISTER_MODE_MISSING = 1 << 0

	_UFFD_EVENT_PAGEFAULT = 0x12

	uffdMsgSize = 32
)

type uffdioAPI struct {
	api      uint64
	features uint64
	ioctls   uint64
}

type uffdioRange struct {
	start uint64
	len   uint64
}

type uffdioRegister struct {
	rng    uffdioRange
	mode   uint64
	ioctls uint64
}

type uffdioZeropage struct {
	rng      uffdioRange
	mode     uint64
	zeropage int64
}

// uffdPagefault is the decoded subset of struct uffd_msg this package
// needs: the faulting address and, when UFFD_FEATURE_THREAD_ID was
// negotiated, the faulting thread's tid.
type uffdPagefault struct {
	address  uint64
	threadID int32
}

func newUserfaultfd() (int, error) {
	fd, _, errno := unix.Syscall(unix.SYS_USERFAULTFD, uintptr(unix.O_CLOEXEC|unix.O_NONBLOCK), 0, 0)
	if errno != 0 {
		return -1, errno
	}
	api := uffdioAPI{api: _UFFD_API, features: _UFFD_FEATURE_THREAD_ID}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(_UFFDIO_API),
		uintptr(unsafe.Pointer(&api))); errno != 0 {
		unix.Close(int(fd))
		return -1, errno
	}
	return int(fd), nil
}

func closeUserfaultfd(fd int) error {
	return unix.Close(fd)
}

func uffdRegister(fd int, region []byte) error {
	reg := uffdioRegister{
		rng:  uffdioRange{start: uint64(uintptr(ptrOf(region))), len: uint64(len(region))},
		mode: _UFFDIO_REGISTER_MODE_MISSING,
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(_UFFDIO_REGISTER),
		uintptr(unsafe.Pointer(&reg))); errno != 0 {
		return errno
	}
	return nil
}

func uffdUnregister(fd int, region []byte) error {
	rng := uffdioRange{start: uint64(uintptr(ptrOf(region))), len: uint64(len(region))}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(_UFFDIO_UNREGISTER),
		uintptr(unsafe.Pointer(&rng))); errno != 0 {
		return errno
	}
	return nil
}

// uffdZero resolves a pending fault at dst with a freshly zeroed page —
// UFFDIO_ZEROPAGE, used only from the live fault path (handleFault),
// since it's the one ioctl in this file that can wake a thread actually
// asleep in the fault. Eager/explicit installs use mmapFixedFile or
// mmapFixedAnon instead; they never race a pending fault.
func uffdZero(fd int, dst uintptr, length int) error {
	zp := uffdioZeropage{rng: uffdioRange{start: uint64(dst), len: uint64(length)}}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(_UFFDIO_ZEROPAGE),
		uintptr(unsafe.Pointer(&zp))); errno != 0 {
		// EEXIST means a concurrent fault already installed this page —
		// benign, matches "two threads simultaneously faulted" in as.go.
		if errno == unix.EEXIST {
			return nil
		}
		return errno
	}
	return nil
}

// mmapFixedFile installs runBytes of fd's content at offset, at the
// caller-chosen address addr, replacing whatever vma previously covered
// that range — the MAP_FIXED mechanism the kernel docs call the modern
// successor to remap_file_pages(2). Used to point a real PageId's
// virtual offset at the pool's own memfd page, so two offsets naming
// the same PageId share the literal same physical frame. x/sys/unix's
// Mmap wrapper always passes addr 0, so this goes through the raw
// syscall to get a fixed target address.
func mmapFixedFile(addr uintptr, length int, fd int, offset int64) error {
	_, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, uintptr(length),
		uintptr(unix.PROT_READ|unix.PROT_WRITE), uintptr(unix.MAP_FIXED|unix.MAP_SHARED),
		uintptr(fd), uintptr(offset))
	if errno != 0 {
		return errno
	}
	return nil
}

// mmapFixedAnon replaces the vma at addr with a fresh anonymous
// mapping, used to reset an offset that is losing a real PageId back to
// Unassigned. The caller re-registers the range with uffd afterward so
// the next touch faults in lazily again.
func mmapFixedAnon(addr uintptr, length int) error {
	_, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, uintptr(length),
		uintptr(unix.PROT_READ|unix.PROT_WRITE), uintptr(unix.MAP_FIXED|unix.MAP_PRIVATE|unix.MAP_ANONYMOUS),
		0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// readUffdEvent blocks (respecting ctx) until a page-fault event arrives
// on fd, or returns a nil event for any other event type.
func readUffdEvent(ctx context.Context, fd int) (*uffdPagefault, error) {
	var buf [uffdMsgSize]byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, err
		}
		if n == 0 {
			continue
		}
		nr, err := unix.Read(fd, buf[:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return nil, err
		}
		if nr < uffdMsgSize {
			continue
		}
		event := buf[0]
		if event != _UFFD_EVENT_PAGEFAULT {
			return nil, nil
		}
		addr := binary.LittleEndian.Uint64(buf[16:24])
		tid := int32(binary.LittleEndian.Uint32(buf[24:28]))
		return &uffdPagefault{address: addr, threadID: tid}, nil
	}
}

// segfault delivers an actual SIGSEGV to the faulting thread, mirroring
// the kernel module's VM_FAULT_SIGSEGV return from fault(). This only
// works when UFFD_FEATURE_THREAD_ID was negotiated and tid is nonzero;
// otherwise the fault is left unresolved and the caller's access blocks,
// which is the closest userspace analogue available without a real PTE.
func segfault(tid int32) {
	if tid == 0 {
		return
	}
	unix.Tgkill(unix.Getpid(), int(tid), unix.SIGSEGV)
}

func ptrOf(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}
