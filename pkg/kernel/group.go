package kernel

// groupDo visits every member of t's thread group exactly once,
// starting at t.groupNext and ending at t, matching thread.c's
// threads_apply traversal order.
func (t *Task) groupDo(f func(*Task) bool) {
	start := t.groupNext
	if start == nil {
		start = t
	}
	itr := start
	for {
		next := itr.groupNext
		if !f(itr) {
			return
		}
		if itr == t {
			return
		}
		itr = next
	}
}

// readyThread returns the first Runnable member of t's group, or nil.
func (t *Task) readyThread() *Task {
	var found *Task
	t.groupDo(func(th *Task) bool {
		if th.state == Runnable {
			found = th
			return false
		}
		return true
	})
	return found
}

// unlinkFromGroup splices t out of its thread-group ring. Callers must
// hold the kernel lock and must not call this on the last member of a
// group (the group simply ceases to exist at that point).
func (t *Task) unlinkFromGroup() {
	if t.groupNext == t {
		return
	}
	t.groupPrev.groupNext = t.groupNext
	t.groupNext.groupPrev = t.groupPrev
	t.groupNext = t
	t.groupPrev = t
}

// linkIntoGroup splices fresh into main's group ring, right before
// main (i.e. at the ring's "end", matching thread_create appending a
// new sibling).
func linkIntoGroup(main, fresh *Task) {
	if main.groupNext == nil {
		main.groupNext = main
		main.groupPrev = main
	}
	tail := main.groupPrev
	tail.groupNext = fresh
	fresh.groupPrev = tail
	fresh.groupNext = main
	main.groupPrev = fresh
}
