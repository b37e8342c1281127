// Package stage implements staged rewiring (C7 in spec.md §2, detailed
// in §4.6): atomic multi-range remaps where the intermediate state must
// never be observed. It composes a backend.Backend's existing contract —
// no new primitive is needed at the backend level.
package stage

import (
	"rewire/backend"
	"rewire/page"
)

// entry is one queued (dest, length, snapshot) triple. The
// snapshot is an owned copy captured at Stage time, not affected by
// later stages (spec.md §4.6).
type entry struct {
	dest, length int
	snapshot     []page.Id
}

// Queue is an ordered list of staged range reassignments against a
// single backend.
type Queue struct {
	backend backend.Backend
	entries []entry
}

// New creates an empty staging queue over b.
func New(b backend.Backend) *Queue {
	return &Queue{backend: b}
}

// Stage immediately captures (via SyncFromPT) the current page-ids at
// [source, source+length) and queues them to be written to
// [dest, dest+length) on Commit. Because the snapshot is a copy taken
// now, a later Stage call that overwrites source's range cannot corrupt
// this one — staging "A<-B" and "B<-A" and committing both swaps A and B.
func (q *Queue) Stage(dest, source, length int) error {
	if err := q.backend.SyncFromPT(source, length); err != nil {
		return err
	}
	ids := q.backend.PageIds()
	snap := make([]page.Id, length)
	copy(snap, ids[source:source+length])
	q.entries = append(q.entries, entry{dest: dest, length: length, snapshot: snap})
	return nil
}

// Commit applies every staged entry in queue order: writes the snapshot
// into the live page-id array at dest and calls SyncToPT(dest, length).
// After the last apply the queue is cleared and all snapshots released.
func (q *Queue) Commit() error {
	for _, e := range q.entries {
		ids := q.backend.PageIds()
		copy(ids[e.dest:e.dest+e.length], e.snapshot)
		if err := q.backend.SyncToPT(e.dest, e.length); err != nil {
			return err
		}
	}
	q.entries = nil
	return nil
}

// Pending reports how many entries are queued but not yet committed.
func (q *Queue) Pending() int {
	return len(q.entries)
}
