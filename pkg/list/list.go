// Package list is a minimal generic doubly linked list.
package list

type Elem[V any] struct {
	prev, next *Elem[V]
	list       *List[V]

	Value V
}

func NewElem[V any](v V) *Elem[V] {
	return &Elem[V]{Value: v}
}

func (e *Elem[V]) Next() *Elem[V] {
	return e.next
}

func (e *Elem[V]) Prev() *Elem[V] {
	return e.prev
}

type List[V any] struct {
	front, back *Elem[V]
	length      int
}

func New[V any]() *List[V] {
	return &List[V]{}
}

func (l *List[V]) Front() *Elem[V] {
	return l.front
}

func (l *List[V]) Back() *Elem[V] {
	return l.back
}

func (l *List[V]) Len() int {
	return l.length
}

func (l *List[V]) PushBack(e *Elem[V]) *Elem[V] {
	l.length++
	e.list = l

	if l.back == nil {
		l.front = e
		l.back = e
		return e
	}

	e.prev = l.back
	l.back.next = e
	l.back = e
	return e
}

// PopFront removes and returns the front element, nil if l is empty.
func (l *List[V]) PopFront() *Elem[V] {
	e := l.front
	if e == nil {
		return nil
	}
	return l.PopElem(e)
}

func (l *List[V]) PopElem(e *Elem[V]) *Elem[V] {
	if e.list != l {
		panic("elem does not belong to this list")
	}

	l.length--

	p, n := e.prev, e.next

	if p != nil {
		p.next = n
	} else {
		l.front = n
	}

	if n != nil {
		n.prev = p
	} else {
		l.back = p
	}

	e.prev = nil
	e.next = nil
	e.list = nil

	return e
}
