package rerrno

import (
	"testing"

	"github.com/pkg/errors"
)

func TestErrorString(t *testing.T) {
	err := New(BoundsViolation, "SET_PAGE_IDS")
	want := "SET_PAGE_IDS: bounds violation"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestIsUnwrapsThroughPkgErrors(t *testing.T) {
	base := New(ResourceExhaustion, "CREATE_PAGE_IDS")
	wrapped := errors.Wrap(errors.Wrap(base, "factory"), "kernel-mediated backend")

	if !Is(wrapped, ResourceExhaustion) {
		t.Error("Is() = false, want true for a wrapped matching Kind")
	}
	if Is(wrapped, BoundsViolation) {
		t.Error("Is() = true, want false for a non-matching Kind")
	}
}

func TestIsNilError(t *testing.T) {
	if Is(nil, None) {
		t.Error("Is(nil, ...) = true, want false")
	}
}

func TestIsPlainError(t *testing.T) {
	if Is(errors.New("not an rerrno.Error"), SyscallFailure) {
		t.Error("Is() = true for an unrelated error chain, want false")
	}
}
