// Package rerrno carries the error kinds spec'd for the rewiring core as
// a small typed enum, the way kernel-adjacent code in the teacher keeps a
// tight error code close to the hardware/kernel boundary instead of an
// allocating error value. Callers crossing into the ordinary Go world
// wrap a Kind with github.com/pkg/errors at the backend.Backend boundary.
package rerrno

// Kind enumerates the error categories named in spec.md §7.
type Kind int

const (
	// None indicates success; zero value so an unset Kind is not an error.
	None Kind = iota
	// ResourceExhaustion covers pool-growth and physical-page allocation
	// failure. No partial mutation is ever committed for the command
	// that hit it.
	ResourceExhaustion
	// BoundsViolation covers start+len exceeding a mapping's page count.
	BoundsViolation
	// InvalidOffset covers a page fault on an offset outside the mapping.
	InvalidOffset
	// SyscallFailure covers mmap/munmap/ioctl/userfaultfd failures.
	SyscallFailure
	// DeviceNotPresent is not actually an error condition at the call
	// site that observes it: the factory falls back to the portable
	// backend and logs a warning instead of returning an error.
	DeviceNotPresent
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case ResourceExhaustion:
		return "resource exhaustion"
	case BoundsViolation:
		return "bounds violation"
	case InvalidOffset:
		return "invalid offset"
	case SyscallFailure:
		return "syscall failure"
	case DeviceNotPresent:
		return "device not present"
	default:
		return "unknown error kind"
	}
}

// Error pairs a Kind with the operation that produced it. It implements
// the error interface so it can travel through ordinary Go error
// handling once wrapped.
type Error struct {
	Kind Kind
	Op   string
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Kind.String()
}

// New builds an *Error for op failing with kind.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Is reports whether err is an *Error of kind, unwrapping through any
// pkg/errors wrapping.
func Is(err error, kind Kind) bool {
	type causer interface{ Cause() error }
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind == kind
		}
		c, ok := err.(causer)
		if !ok {
			return false
		}
		err = c.Cause()
	}
	return false
}
