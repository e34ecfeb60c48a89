package ilist

import "testing"

type node struct {
	id   int
	link Entry[node]
}

func nodeLink(n *node) *Entry[node] { return &n.link }

func collect(l *List[node]) []int {
	var out []int
	l.Do(func(n *node) bool {
		out = append(out, n.id)
		return true
	})
	return out
}

func TestPushBackOrder(t *testing.T) {
	l := New[node](nodeLink)
	a, b, c := &node{id: 1}, &node{id: 2}, &node{id: 3}
	l.PushBack(a)
	l.PushBack(b)
	l.PushBack(c)

	got := collect(l)
	want := []int{1, 2, 3}
	if !equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if l.Front() != a || l.Back() != c {
		t.Fatalf("front/back mismatch")
	}
}

func TestRemoveMiddleAndEnds(t *testing.T) {
	l := New[node](nodeLink)
	nodes := make([]*node, 5)
	for i := range nodes {
		nodes[i] = &node{id: i}
		l.PushBack(nodes[i])
	}

	l.Remove(nodes[2])
	if got, want := collect(l), []int{0, 1, 3, 4}; !equal(got, want) {
		t.Fatalf("after middle remove: got %v, want %v", got, want)
	}

	l.Remove(nodes[0])
	if got, want := collect(l), []int{1, 3, 4}; !equal(got, want) {
		t.Fatalf("after head remove: got %v, want %v", got, want)
	}

	l.Remove(nodes[4])
	if got, want := collect(l), []int{1, 3}; !equal(got, want) {
		t.Fatalf("after tail remove: got %v, want %v", got, want)
	}
	if l.Back() != nodes[3] {
		t.Fatalf("tail pointer not updated after removing old tail")
	}
}

func TestPushBackListBulkMove(t *testing.T) {
	dst := New[node](nodeLink)
	src := New[node](nodeLink)

	d0 := &node{id: 100}
	dst.PushBack(d0)

	s0, s1 := &node{id: 1}, &node{id: 2}
	src.PushBack(s0)
	src.PushBack(s1)

	dst.PushBackList(src)

	if !src.Empty() {
		t.Fatalf("src must be empty after bulk move")
	}
	if got, want := collect(dst), []int{100, 1, 2}; !equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if dst.Back() != s1 {
		t.Fatalf("dst tail should be last moved element")
	}
}

func TestPushBackListIntoEmptyDst(t *testing.T) {
	dst := New[node](nodeLink)
	src := New[node](nodeLink)
	s0 := &node{id: 7}
	src.PushBack(s0)

	dst.PushBackList(src)
	if dst.Front() != s0 || dst.Back() != s0 {
		t.Fatalf("dst should contain exactly the moved element")
	}
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	l := New[node](nodeLink)
	a, b := &node{id: 1}, &node{id: 2}
	l.PushBack(a)
	l.PushBack(b)
	l.Remove(b)
	l.PushBack(b)
	if got, want := collect(l), []int{1, 2}; !equal(got, want) {
		t.Fatalf("round trip mismatch: got %v, want %v", got, want)
	}
}

func equal(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
