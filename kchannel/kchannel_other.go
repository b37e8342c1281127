//go:build !linux

package kchannel

import (
	"context"
	"errors"
	"unsafe"
)

// userfaultfd is Linux-only; every other platform reports the device as
// absent so factory.New falls back to the portable backend.
var errNoUffd = errors.New("kchannel: userfaultfd not available on this platform")

func newUserfaultfd() (int, error)               { return -1, errNoUffd }
func closeUserfaultfd(fd int) error              { return errNoUffd }
func uffdRegister(fd int, region []byte) error   { return errNoUffd }
func uffdUnregister(fd int, region []byte) error { return errNoUffd }
func uffdZero(fd int, dst uintptr, n int) error  { return errNoUffd }
func mmapFixedFile(addr uintptr, length int, fd int, offset int64) error {
	return errNoUffd
}
func mmapFixedAnon(addr uintptr, length int) error { return errNoUffd }

type uffdPagefault struct {
	address  uint64
	threadID int32
}

func readUffdEvent(ctx context.Context, fd int) (*uffdPagefault, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func segfault(tid int32) {}

func ptrOf(b []byte) unsafe.Pointer { return nil }
