package portable

import (
	"reflect"
	"testing"

	"rewire/page"
)

func TestCreateNewPageIdsIsIdentity(t *testing.T) {
	b := &Backend{}
	positions := []int{7, 8, 100}
	out := make([]page.Id, len(positions))
	if err := b.CreateNewPageIds(positions, out); err != nil {
		t.Fatalf("CreateNewPageIds: %v", err)
	}
	want := []page.Id{7, 8, 100}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("out = %v, want %v", out, want)
	}
}

func TestNewAndResize(t *testing.T) {
	b, err := New("portable-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if err := b.Resize(4); err != nil {
		t.Fatalf("Resize(4): %v", err)
	}
	if b.NumPages() != 4 {
		t.Errorf("NumPages() = %d, want 4", b.NumPages())
	}
	if len(b.Mapping()) != page.Bytes(4) {
		t.Errorf("len(Mapping()) = %d, want %d", len(b.Mapping()), page.Bytes(4))
	}
	ids := b.PageIds()
	for i, id := range ids {
		if id != page.Id(i) {
			t.Errorf("PageIds()[%d] = %v, want %v (identity)", i, id, i)
		}
	}
}

func TestResizeShrinkThenGrow(t *testing.T) {
	b, err := New("portable-test-shrink")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if err := b.Resize(4); err != nil {
		t.Fatalf("Resize(4): %v", err)
	}
	if err := b.Resize(2); err != nil {
		t.Fatalf("Resize(2): %v", err)
	}
	if b.NumPages() != 2 {
		t.Fatalf("NumPages() = %d, want 2", b.NumPages())
	}
	if err := b.Resize(0); err != nil {
		t.Fatalf("Resize(0): %v", err)
	}
	if b.Mapping() != nil {
		t.Errorf("Mapping() after Resize(0) = %v, want nil", b.Mapping())
	}
}
