package reclaim

import (
	"testing"

	"github.com/pmkol/gaicached/pkg/addrinfo"
)

func Test_queue_capacityTrigger(t *testing.T) {
	q := NewQueue(2)

	h1, h2, h3 := new(addrinfo.AddrInfo), new(addrinfo.AddrInfo), new(addrinfo.AddrInfo)
	q.Push(h1)
	q.Push(h2)

	if _, ok := q.PopIfOver(); ok {
		t.Fatal("must not pop at or under capacity")
	}

	q.Push(h3)
	h, ok := q.PopIfOver()
	if !ok || h != h1 {
		t.Fatal("must pop the oldest entry once over capacity")
	}
	if q.Len() != 2 {
		t.Fatal("unexpected queue length")
	}
	if _, ok := q.PopIfOver(); ok {
		t.Fatal("back at capacity, must not pop")
	}
}

func Test_queue_fifo(t *testing.T) {
	q := NewQueue(1)
	handles := make([]*addrinfo.AddrInfo, 8)
	for i := range handles {
		handles[i] = new(addrinfo.AddrInfo)
		q.Push(handles[i])
	}

	for i := 0; q.Len() > 1; i++ {
		h, ok := q.PopIfOver()
		if !ok || h != handles[i] {
			t.Fatalf("pop #%d out of order", i)
		}
	}
}
