// Package scenario runs the behavioral properties both backends are
// required to satisfy, exercised identically against whichever backend
// factory hands back.
package scenario

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rewire/backend"
	"rewire/factory"
	"rewire/kchannel"
	"rewire/page"
	"rewire/stage"
)

type backendCase struct {
	name string
	make func(t *testing.T) backend.Backend
}

func newPortable(t *testing.T) backend.Backend {
	t.Helper()
	b, err := factory.New(factory.Portable, factory.Name("scenario-portable"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func newKernelMediated(t *testing.T) backend.Backend {
	t.Helper()
	if !kchannel.Probe() {
		t.Skip("userfaultfd(2) not usable on this system")
	}
	b, err := factory.New()
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func allBackends() []backendCase {
	return []backendCase{
		{"portable", newPortable},
		{"kernel-mediated", newKernelMediated},
	}
}

func TestAllToOneAliasing(t *testing.T) {
	for _, bc := range allBackends() {
		t.Run(bc.name, func(t *testing.T) {
			b := bc.make(t)
			const n = 8
			require.NoError(t, b.Resize(n))

			shared := make([]page.Id, 1)
			require.NoError(t, b.CreateNewPageIds([]int{0}, shared))

			ids := b.PageIds()
			for i := range ids {
				ids[i] = shared[0]
			}
			require.NoError(t, b.SyncToPT(0, 1))

			mapping := b.Mapping()
			mapping[0] = 1
			require.NoError(t, b.SyncToPT(0, n))

			for i := 0; i < n; i++ {
				require.Equalf(t, byte(1), mapping[i*page.Size], "page %d did not alias the shared page", i)
			}
		})
	}
}

func TestIdentityRoundTrip(t *testing.T) {
	for _, bc := range allBackends() {
		t.Run(bc.name, func(t *testing.T) {
			b := bc.make(t)
			const n = 4
			require.NoError(t, b.Resize(n))
			require.NoError(t, b.SyncFromPT(0, n))
			require.NoError(t, b.SyncToPT(0, n))

			mapping := b.Mapping()
			for i := 0; i < n; i++ {
				mapping[i*page.Size] = byte(i + 1)
			}
			for i := 0; i < n; i++ {
				require.Equal(t, byte(i+1), mapping[i*page.Size])
			}
		})
	}
}

func TestPrefixPreservingResize(t *testing.T) {
	for _, bc := range allBackends() {
		t.Run(bc.name, func(t *testing.T) {
			b := bc.make(t)
			require.NoError(t, b.Resize(8))

			fresh := make([]page.Id, 8)
			positions := []int{0, 1, 2, 3, 4, 5, 6, 7}
			require.NoError(t, b.CreateNewPageIds(positions, fresh))
			copy(b.PageIds(), fresh)
			require.NoError(t, b.SyncToPT(0, 8))

			mapping := b.Mapping()
			for i := 0; i < 8; i++ {
				mapping[i*page.Size] = byte(100 + i)
			}

			require.NoError(t, b.Resize(16))
			mapping = b.Mapping()
			for i := 0; i < 8; i++ {
				require.Equalf(t, byte(100+i), mapping[i*page.Size], "page %d lost its tag across resize", i)
			}
		})
	}
}

func TestStagedSwap(t *testing.T) {
	for _, bc := range allBackends() {
		t.Run(bc.name, func(t *testing.T) {
			b := bc.make(t)
			require.NoError(t, b.Resize(8))

			ids := make([]page.Id, 8)
			positions := []int{0, 1, 2, 3, 4, 5, 6, 7}
			require.NoError(t, b.CreateNewPageIds(positions, ids))
			copy(b.PageIds(), ids)
			require.NoError(t, b.SyncToPT(0, 8))

			mapping := b.Mapping()
			for i := 0; i < 4; i++ {
				mapping[i*page.Size] = byte('A') // range A = [0,4)
			}
			for i := 4; i < 8; i++ {
				mapping[i*page.Size] = byte('B') // range B = [4,8)
			}

			q := stage.New(b)
			require.NoError(t, q.Stage(0, 4, 4)) // A <- B
			require.NoError(t, q.Stage(4, 0, 4)) // B <- A
			require.NoError(t, q.Commit())

			mapping = b.Mapping()
			for i := 0; i < 4; i++ {
				require.Equalf(t, byte('B'), mapping[i*page.Size], "range A offset %d", i)
			}
			for i := 4; i < 8; i++ {
				require.Equalf(t, byte('A'), mapping[i*page.Size], "range B offset %d", i)
			}
		})
	}
}

func TestShiftLeftByRewiring(t *testing.T) {
	for _, bc := range allBackends() {
		t.Run(bc.name, func(t *testing.T) {
			b := bc.make(t)
			require.NoError(t, b.Resize(12))

			ids := make([]page.Id, 12)
			positions := make([]int, 12)
			for i := range positions {
				positions[i] = i
			}
			require.NoError(t, b.CreateNewPageIds(positions, ids))
			copy(b.PageIds(), ids)
			require.NoError(t, b.SyncToPT(0, 12))

			mapping := b.Mapping()
			for i := 4; i < 8; i++ {
				mapping[i*page.Size] = byte(i) // window [4,8) holds its offset as a tag
			}
			for i := 2; i < 4; i++ {
				mapping[i*page.Size] = byte(i) // displaced [2,4) holds its own offset too
			}

			q := stage.New(b)
			require.NoError(t, q.Stage(2, 4, 4)) // window moves left into [2,6)
			require.NoError(t, q.Stage(6, 2, 2)) // displaced pages relocate to [6,8)
			require.NoError(t, q.Commit())

			mapping = b.Mapping()
			for i := 0; i < 4; i++ {
				require.Equalf(t, byte(4+i), mapping[(2+i)*page.Size], "window offset %d", i)
			}
			for i := 0; i < 2; i++ {
				require.Equalf(t, byte(2+i), mapping[(6+i)*page.Size], "displaced offset %d", i)
			}
		})
	}
}

func TestFaultIn(t *testing.T) {
	b := newKernelMediated(t)
	require.NoError(t, b.Resize(4))

	mapping := b.Mapping()
	for i := 0; i < 4; i++ {
		require.Equalf(t, byte(0), mapping[i*page.Size], "fresh fault at page %d should read zero", i)
	}

	require.NoError(t, b.SyncFromPT(0, 4))
	for i, id := range b.PageIds() {
		require.Truef(t, id.IsReal(), "page %d PageId = %v, want a real allocation after fault-in", i, id)
	}
}
