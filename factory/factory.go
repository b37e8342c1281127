// Package factory selects and constructs a backend.Backend (C8 in
// spec.md §2): the kernel-mediated backend when userfaultfd(2) is
// usable, the portable backend otherwise, per spec.md §4.7 and §6's
// fallback discussion.
package factory

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"rewire/backend"
	"rewire/kchannel"
	"rewire/kernelbackend"
	"rewire/portable"
	"rewire/rlog"
)

// Option configures New's backend selection.
type Option func(*config)

type config struct {
	forcePortable bool
	name          string
}

// Portable forces the portable backend regardless of userfaultfd(2)
// availability.
func Portable(cfg *config) { cfg.forcePortable = true }

// Name sets the memfd name used by the portable backend. Defaults to
// "rewire" when unset. The kernel-mediated backend does not use it.
func Name(name string) Option {
	return func(cfg *config) { cfg.name = name }
}

// New probes for userfaultfd(2) and constructs the kernel-mediated
// backend when it's usable, falling back to the portable backend
// otherwise. The fallback is logged, since the portable backend's
// remap_file_pages calls consume one VMA per non-coalesced run and can
// run the process into /proc/sys/vm/max_map_count (spec.md §4.7).
func New(opts ...Option) (backend.Backend, error) {
	cfg := config{name: "rewire"}
	for _, opt := range opts {
		opt(&cfg)
	}

	if !cfg.forcePortable && kchannel.Probe() {
		b, err := kernelbackend.New()
		if err != nil {
			return nil, errors.Wrap(err, "factory: kernel-mediated backend")
		}
		return b, nil
	}

	rlog.Warning("userfaultfd unavailable or portable forced; falling back to portable backend (max_map_count=%s)", maxMapCount())
	b, err := portable.New(cfg.name)
	if err != nil {
		return nil, errors.Wrap(err, "factory: portable backend")
	}
	return b, nil
}

// maxMapCount reads /proc/sys/vm/max_map_count so the fallback warning
// tells the caller exactly how much headroom the portable backend's
// per-run remap_file_pages calls have before a large, poorly-coalesced
// mapping starts failing with ENOMEM.
func maxMapCount() string {
	raw, err := os.ReadFile("/proc/sys/vm/max_map_count")
	if err != nil {
		return "unknown"
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return "unknown"
	}
	return strconv.Itoa(n)
}
