//go:build linux

package portable

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"rewire/page"
)

// remapFilePages remaps numPages virtual pages starting at virtPage
// within region to fileOffsetPages pages into region's backing file,
// via the deprecated-but-still-present remap_file_pages(2) syscall.
// golang.org/x/sys/unix lists SYS_REMAP_FILE_PAGES but does not wrap it,
// so this calls it directly the way RemapFilePages would if it existed.
func remapFilePages(region []byte, virtPage, numPages, fileOffsetPages int) error {
	addr := uintptr(unsafe.Pointer(&region[0])) + uintptr(virtPage*page.Size)
	size := uintptr(numPages * page.Size)
	const prot = 0 // must be 0; protection is fixed at the original mmap
	const flags = 0
	_, _, errno := unix.Syscall6(unix.SYS_REMAP_FILE_PAGES, addr, size, prot,
		uintptr(fileOffsetPages), flags, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
