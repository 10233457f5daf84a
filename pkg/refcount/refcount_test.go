package refcount

import (
	"testing"

	"github.com/pmkol/gaicached/pkg/addrinfo"
)

func Test_tracker_borrow(t *testing.T) {
	tr := NewTracker()
	h := new(addrinfo.AddrInfo)

	if n := tr.Borrow(h); n != 1 {
		t.Fatalf("first borrow: want 1, got %d", n)
	}
	if n := tr.Borrow(h); n != 2 {
		t.Fatalf("second borrow: want 2, got %d", n)
	}
	if n, known := tr.Peek(h); !known || n != 2 {
		t.Fatalf("peek: want 2, got %d known=%v", n, known)
	}
	if tr.Len() != 1 {
		t.Fatal("unexpected tracker size")
	}
}

func Test_tracker_releaseOne(t *testing.T) {
	tr := NewTracker()
	h := new(addrinfo.AddrInfo)
	tr.Borrow(h)
	tr.Borrow(h)

	enqueue, known := tr.ReleaseOne(h)
	if !known || !enqueue {
		t.Fatal("first release must request exactly one enqueue")
	}
	enqueue, known = tr.ReleaseOne(h)
	if !known || enqueue {
		t.Fatal("later releases must not enqueue again")
	}

	if n, known := tr.Peek(h); !known || n != 0 {
		t.Fatalf("want 0 borrows, got %d known=%v", n, known)
	}

	tr.Remove(h)
	if _, known := tr.Peek(h); known {
		t.Fatal("removed handle must be unknown")
	}
}

func Test_tracker_unknownHandle(t *testing.T) {
	tr := NewTracker()
	h := new(addrinfo.AddrInfo)

	if _, known := tr.ReleaseOne(h); known {
		t.Fatal("releasing an untracked handle must report unknown")
	}
	if _, known := tr.Peek(h); known {
		t.Fatal("peeking an untracked handle must report unknown")
	}
	if tr.Len() != 0 {
		t.Fatal("unknown handle access must not create entries")
	}
}
