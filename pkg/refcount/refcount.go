// Package refcount tracks outstanding borrows of resolve result
// handles. A handle is borrowed once per resolve call that returned it
// and released once per release call observed for it.
//
// Tracker is not concurrency safe. The interceptor serializes all
// calls under its own lock.
package refcount

import "github.com/pmkol/gaicached/pkg/addrinfo"

type entry struct {
	borrows int

	// releaseInitiated is set by the first ReleaseOne for this handle.
	// It guards the handle from entering the reclamation queue twice.
	releaseInitiated bool
}

type Tracker struct {
	m map[*addrinfo.AddrInfo]*entry
}

func NewTracker() *Tracker {
	return &Tracker{m: make(map[*addrinfo.AddrInfo]*entry)}
}

// Borrow increments the borrow count of h, creating the entry at 1 if
// h was not tracked. It returns the new count.
func (t *Tracker) Borrow(h *addrinfo.AddrInfo) int {
	e, ok := t.m[h]
	if !ok {
		e = new(entry)
		t.m[h] = e
	}
	e.borrows++
	return e.borrows
}

// ReleaseOne decrements the borrow count of h. enqueue is true iff
// this is the first release ever observed for h, i.e. the caller must
// push h onto the reclamation queue exactly once. known is false if h
// was never borrowed; the count is left untouched and the caller
// should report a logic error.
func (t *Tracker) ReleaseOne(h *addrinfo.AddrInfo) (enqueue, known bool) {
	e, ok := t.m[h]
	if !ok {
		return false, false
	}
	e.borrows--
	if !e.releaseInitiated {
		e.releaseInitiated = true
		return true, true
	}
	return false, true
}

// Peek returns the current borrow count of h. known is false if h is
// not tracked, which is distinct from a tracked handle with zero
// borrows.
func (t *Tracker) Peek(h *addrinfo.AddrInfo) (borrows int, known bool) {
	e, ok := t.m[h]
	if !ok {
		return 0, false
	}
	return e.borrows, true
}

// Remove drops the entry of h. Called only on the physical
// reclamation path.
func (t *Tracker) Remove(h *addrinfo.AddrInfo) {
	delete(t.m, h)
}

func (t *Tracker) Len() int {
	return len(t.m)
}
