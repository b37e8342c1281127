package pageruns

import (
	"reflect"
	"testing"

	"rewire/page"
)

func TestCoalesceSingleRun(t *testing.T) {
	ids := []page.Id{10, 11, 12, 13}
	got := Coalesce(ids)
	want := []Run{{Start: 0, Length: 4, FileOffset: 10}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Coalesce(%v) = %+v, want %+v", ids, got, want)
	}
}

func TestCoalesceMultipleRuns(t *testing.T) {
	ids := []page.Id{5, 6, 100, 1, 2, 3}
	got := Coalesce(ids)
	want := []Run{
		{Start: 0, Length: 2, FileOffset: 5},
		{Start: 2, Length: 1, FileOffset: 100},
		{Start: 3, Length: 3, FileOffset: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Coalesce(%v) = %+v, want %+v", ids, got, want)
	}
}

func TestCoalesceEmpty(t *testing.T) {
	if got := Coalesce(nil); got != nil {
		t.Errorf("Coalesce(nil) = %+v, want nil", got)
	}
}

func TestCoalesceNoAdjacency(t *testing.T) {
	ids := []page.Id{0, 50, 3, 9}
	got := Coalesce(ids)
	want := []Run{
		{Start: 0, Length: 1, FileOffset: 0},
		{Start: 1, Length: 1, FileOffset: 50},
		{Start: 2, Length: 1, FileOffset: 3},
		{Start: 3, Length: 1, FileOffset: 9},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Coalesce(%v) = %+v, want %+v", ids, got, want)
	}
}

func TestCoalesceUnassignedNeverMerges(t *testing.T) {
	ids := []page.Id{page.Unassigned, page.Unassigned}
	got := Coalesce(ids)
	want := []Run{
		{Start: 0, Length: 1, FileOffset: page.Unassigned},
		{Start: 1, Length: 1, FileOffset: page.Unassigned},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Coalesce(%v) = %+v, want %+v (Unassigned+1 wraps, never a real successor)", ids, got, want)
	}
}
