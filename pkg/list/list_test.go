package list

import "testing"

func Test_list_fifo(t *testing.T) {
	l := New[int]()
	for i := 0; i < 8; i++ {
		l.PushBack(NewElem(i))
	}
	if l.Len() != 8 {
		t.Fatal("unexpected length")
	}

	for i := 0; i < 8; i++ {
		e := l.PopFront()
		if e == nil || e.Value != i {
			t.Fatalf("pop #%d out of order", i)
		}
	}
	if l.Len() != 0 || l.PopFront() != nil {
		t.Fatal("list should be empty")
	}
}

func Test_list_popElem(t *testing.T) {
	l := New[int]()
	elems := make([]*Elem[int], 0, 4)
	for i := 0; i < 4; i++ {
		elems = append(elems, l.PushBack(NewElem(i)))
	}

	l.PopElem(elems[1])
	l.PopElem(elems[3])

	if l.Len() != 2 {
		t.Fatal("unexpected length")
	}
	if l.Front().Value != 0 || l.Back().Value != 2 {
		t.Fatal("unexpected front/back")
	}
}
