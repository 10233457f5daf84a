// Package reclaim holds handles whose first release has been observed
// until queue pressure forces their physical reclamation.
//
// Reclamation is capacity triggered, not time triggered. Resolve and
// release calls typically come in matched pairs in rapid succession;
// freeing a handle the moment its borrow count hits zero would make
// cache hits nearly impossible. Parking released handles behind a
// bounded FIFO keeps them servable for the next burst.
//
// Queue is not concurrency safe. The interceptor serializes all calls
// under its own lock.
package reclaim

import (
	"fmt"

	"github.com/pmkol/gaicached/pkg/addrinfo"
	"github.com/pmkol/gaicached/pkg/list"
)

type Queue struct {
	capacity int
	l        *list.List[*addrinfo.AddrInfo]
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		panic(fmt.Sprintf("reclaim: invalid queue capacity: %d", capacity))
	}
	return &Queue{
		capacity: capacity,
		l:        list.New[*addrinfo.AddrInfo](),
	}
}

// Push appends h. The caller must push a given handle at most once
// (guarded by the tracker's releaseInitiated flag).
func (q *Queue) Push(h *addrinfo.AddrInfo) {
	q.l.PushBack(list.NewElem(h))
}

// PopIfOver removes and returns the oldest handle only while the
// queue is over capacity.
func (q *Queue) PopIfOver() (h *addrinfo.AddrInfo, ok bool) {
	if q.l.Len() <= q.capacity {
		return nil, false
	}
	e := q.l.PopFront()
	return e.Value, true
}

func (q *Queue) Len() int {
	return q.l.Len()
}

func (q *Queue) Capacity() int {
	return q.capacity
}
