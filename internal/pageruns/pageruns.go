// Package pageruns coalesces a slice of page.Id into maximal runs of
// consecutive physical pages (page_ids[i+1] == page_ids[i]+1), the
// grouping both backend.Backend realizations use to turn a sync range
// into the fewest possible remap/install syscalls. Originally portable's
// own private helper; pulled out so kchannel's PTE-install loop can
// share it instead of re-deriving the same grouping.
package pageruns

import "rewire/page"

// Run is a maximal contiguous stretch of page-ids whose virtual offsets
// are consecutive and whose PageIds are themselves consecutive.
type Run struct {
	Start, Length int // virtual page offsets, relative to the slice passed to Coalesce
	FileOffset    page.Id
}

// Coalesce groups ids into maximal runs. A run boundary is drawn at every
// offset whose PageId isn't exactly one more than its predecessor's —
// including any Unassigned/offsetInvalid id, which never has a
// meaningful "next" relationship to its neighbors.
func Coalesce(ids []page.Id) []Run {
	var runs []Run
	for i := 0; i < len(ids); {
		j := i + 1
		for j < len(ids) && ids[j-1].IsReal() && ids[j].IsReal() && ids[j] == ids[j-1]+1 {
			j++
		}
		runs = append(runs, Run{Start: i, Length: j - i, FileOffset: ids[i]})
		i = j
	}
	return runs
}
