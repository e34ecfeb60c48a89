// Package ilist implements a generic intrusive doubly linked list, the
// Go-generics equivalent of xv6's list_head: O(1) insertion, removal,
// and bulk splice, with no allocation on any operation.
//
// Unlike xv6's list_head, which uses a physical sentinel node so the
// list is always circular, List here tracks head/tail pointers
// directly: an empty list (or "the position just past the last real
// element") is simply a nil *T. Callers that need a cursor that either
// points into the queue or sits at its head represent "at the
// sentinel" as a nil pin.
package ilist

// Entry is the embeddable link pair for one list membership. A type
// that participates in N independent lists embeds N Entry fields (one
// per list), never one Entry shared across lists.
type Entry[T any] struct {
	next *T
	prev *T
}

// Linker locates the Entry on elem that belongs to a particular List.
// Passing the field accessor at List-construction time (rather than
// requiring T to implement a fixed Next/Prev interface) is what lets a
// single type embed several independent Entry fields.
type Linker[T any] func(elem *T) *Entry[T]

// List is a doubly linked list of *T, threaded through the Entry that
// link selects.
type List[T any] struct {
	link Linker[T]
	head *T
	tail *T
}

// New returns an empty list that links elements through link.
func New[T any](link Linker[T]) *List[T] {
	return &List[T]{link: link}
}

// Empty reports whether the list has no elements.
func (l *List[T]) Empty() bool {
	return l.head == nil
}

// Front returns the first element, or nil if the list is empty.
func (l *List[T]) Front() *T {
	return l.head
}

// Back returns the last element, or nil if the list is empty.
func (l *List[T]) Back() *T {
	return l.tail
}

// Next returns the element after elem in this list, or nil if elem is
// the last element.
func (l *List[T]) Next(elem *T) *T {
	return l.link(elem).next
}

// Prev returns the element before elem in this list, or nil if elem is
// the first element.
func (l *List[T]) Prev(elem *T) *T {
	return l.link(elem).prev
}

// IsFirst reports whether elem is the first element of the list.
func (l *List[T]) IsFirst(elem *T) bool {
	return l.head == elem
}

// IsLast reports whether elem is the last element of the list.
func (l *List[T]) IsLast(elem *T) bool {
	return l.tail == elem
}

// PushFront inserts elem at the head of the list.
func (l *List[T]) PushFront(elem *T) {
	e := l.link(elem)
	e.prev = nil
	e.next = l.head
	if l.head != nil {
		l.link(l.head).prev = elem
	} else {
		l.tail = elem
	}
	l.head = elem
}

// PushBack inserts elem at the tail of the list (add-before semantics
// of xv6's list_add_tail).
func (l *List[T]) PushBack(elem *T) {
	e := l.link(elem)
	e.next = nil
	e.prev = l.tail
	if l.tail != nil {
		l.link(l.tail).next = elem
	} else {
		l.head = elem
	}
	l.tail = elem
}

// InsertAfter inserts elem immediately after at. at must already be a
// member of the list.
func (l *List[T]) InsertAfter(at, elem *T) {
	atEntry := l.link(at)
	next := atEntry.next
	e := l.link(elem)
	e.prev = at
	e.next = next
	atEntry.next = elem
	if next != nil {
		l.link(next).prev = elem
	} else {
		l.tail = elem
	}
}

// Remove unlinks elem from the list. elem must be a member of the
// list; elem's own Entry is reset to the zero value so it is safe to
// re-insert elsewhere.
func (l *List[T]) Remove(elem *T) {
	e := l.link(elem)
	if e.prev != nil {
		l.link(e.prev).next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		l.link(e.next).prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.next = nil
	e.prev = nil
}

// Replace swaps old for new in place, old must be a member of the
// list; new must not be.
func (l *List[T]) Replace(old, new *T) {
	oldEntry := l.link(old)
	newEntry := l.link(new)
	*newEntry = *oldEntry
	if oldEntry.prev != nil {
		l.link(oldEntry.prev).next = new
	} else {
		l.head = new
	}
	if oldEntry.next != nil {
		l.link(oldEntry.next).prev = new
	} else {
		l.tail = new
	}
	*oldEntry = Entry[T]{}
}

// PushBackList moves every element of src onto the tail of l, in
// order, leaving src empty — xv6's list_bulk_move_tail. O(1): only the
// four boundary links are touched, regardless of src's length.
func (l *List[T]) PushBackList(src *List[T]) {
	if src.Empty() {
		return
	}
	if l.tail != nil {
		l.link(l.tail).next = src.head
		l.link(src.head).prev = l.tail
	} else {
		l.head = src.head
	}
	l.tail = src.tail
	src.head = nil
	src.tail = nil
}

// Do calls f for every element of the list, in order, stopping early
// if f returns false. Removing the current element from within f is
// safe; removing any other element is not.
func (l *List[T]) Do(f func(*T) bool) {
	for e := l.head; e != nil; {
		next := l.link(e).next
		if !f(e) {
			return
		}
		e = next
	}
}
