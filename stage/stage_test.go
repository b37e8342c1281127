package stage

import (
	"reflect"
	"testing"

	"rewire/page"
)

// fakeBackend is a minimal in-memory backend.Backend for exercising the
// staging queue without any real syscalls.
type fakeBackend struct {
	ids         []page.Id
	syncToCalls [][2]int
	syncFromErr error
}

func newFakeBackend(ids ...page.Id) *fakeBackend {
	return &fakeBackend{ids: ids}
}

func (f *fakeBackend) Resize(n int) error { return nil }
func (f *fakeBackend) Mapping() []byte    { return nil }
func (f *fakeBackend) NumPages() int      { return len(f.ids) }
func (f *fakeBackend) PageIds() []page.Id { return f.ids }
func (f *fakeBackend) SyncToPT(start, length int) error {
	f.syncToCalls = append(f.syncToCalls, [2]int{start, length})
	return nil
}
func (f *fakeBackend) SyncFromPT(start, length int) error { return f.syncFromErr }
func (f *fakeBackend) CreateNewPageIds(positions []int, out []page.Id) error {
	for i, p := range positions {
		out[i] = page.Id(p)
	}
	return nil
}
func (f *fakeBackend) Close() error { return nil }

func TestStageCapturesSnapshotImmediately(t *testing.T) {
	b := newFakeBackend(1, 2, 3, 4)
	q := New(b)

	if err := q.Stage(0, 2, 2); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	// Mutate source after staging: the queued snapshot must not see it.
	b.ids[2] = 99
	b.ids[3] = 98

	if err := q.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	want := []page.Id{3, 4, 99, 98}
	if !reflect.DeepEqual(b.ids, want) {
		t.Errorf("ids after commit = %v, want %v", b.ids, want)
	}
}

func TestCommitCallsSyncToPTPerEntry(t *testing.T) {
	b := newFakeBackend(10, 20, 30, 40)
	q := New(b)

	if err := q.Stage(0, 2, 1); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := q.Stage(3, 0, 1); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := q.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	want := [][2]int{{0, 1}, {3, 1}}
	if !reflect.DeepEqual(b.syncToCalls, want) {
		t.Errorf("syncToCalls = %v, want %v", b.syncToCalls, want)
	}
}

func TestCommitClearsQueue(t *testing.T) {
	b := newFakeBackend(1, 2)
	q := New(b)
	if err := q.Stage(0, 1, 1); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if q.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", q.Pending())
	}
	if err := q.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if q.Pending() != 0 {
		t.Errorf("Pending() after Commit = %d, want 0", q.Pending())
	}
}

func TestStagedSwapExchangesTwoRanges(t *testing.T) {
	b := newFakeBackend(1, 2, 3, 4)
	q := New(b)

	// Swap [0:2) with [2:4) by staging both directions before committing
	// either: this is the scenario a naive in-place copy would corrupt.
	if err := q.Stage(0, 2, 2); err != nil {
		t.Fatalf("Stage A<-B: %v", err)
	}
	if err := q.Stage(2, 0, 2); err != nil {
		t.Fatalf("Stage B<-A: %v", err)
	}
	if err := q.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	want := []page.Id{3, 4, 1, 2}
	if !reflect.DeepEqual(b.ids, want) {
		t.Errorf("ids after swap = %v, want %v", b.ids, want)
	}
}
