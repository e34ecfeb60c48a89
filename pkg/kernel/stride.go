package kernel

import "hybridos.dev/kernel/pkg/ilist"

// stride is the proportional-share half of the scheduler: a
// 1-indexed binary min-heap of stride groups keyed on
// main_thread.pass, plus the sibling list of groups currently
// dispatched on some CPU. The MLFQ pool participates as a virtual
// stride entry via mlfq.tickets/mlfq.pass rather than a heap slot.
type stride struct {
	cfg Config

	// heap[1..n] holds Runnable-or-Sleeping stride groups, indexed by
	// main thread. heap[0] is unused so child/parent index arithmetic
	// matches the textbook 1-indexed formulas.
	heap []*Task

	running *ilist.List[Task] // stride groups currently executing on some CPU
}

func newStride(cfg Config) *stride {
	return &stride{
		cfg:     cfg,
		heap:    make([]*Task, 1, cfg.NProc+1),
		running: ilist.New[Task](strideRunLinker),
	}
}

func (s *stride) len() int { return len(s.heap) - 1 }

func (s *stride) less(i, j int) bool {
	return s.heap[i].Main().pass < s.heap[j].Main().pass
}

func (s *stride) swap(i, j int) {
	s.heap[i], s.heap[j] = s.heap[j], s.heap[i]
	s.heap[i].heapIndex = i
	s.heap[j].heapIndex = j
}

// push inserts main (which must be this group's main thread) and
// sifts it up to restore heap order.
func (s *stride) push(main *Task) {
	s.heap = append(s.heap, main)
	i := s.len()
	main.heapIndex = i
	for i > 1 {
		parent := i / 2
		if !s.less(i, parent) {
			break
		}
		s.swap(i, parent)
		i = parent
	}
}

// popMin removes and returns the minimum-pass group, or nil if the
// heap is empty.
func (s *stride) popMin() *Task {
	n := s.len()
	if n == 0 {
		return nil
	}
	min := s.heap[1]
	last := s.heap[n]
	s.heap[1] = last
	last.heapIndex = 1
	s.heap = s.heap[:n]
	min.heapIndex = 0
	if s.len() > 0 {
		s.siftDown(1)
	}
	return min
}

// siftDown restores heap order downward from i. Equal-pass children
// are left in place rather than swapped: pop must handle equality by
// not swapping.
func (s *stride) siftDown(i int) {
	n := s.len()
	for {
		left, right := 2*i, 2*i+1
		smallest := i
		if left <= n && s.less(left, smallest) {
			smallest = left
		}
		if right <= n && s.less(right, smallest) {
			smallest = right
		}
		if smallest == i {
			return
		}
		s.swap(i, smallest)
		i = smallest
	}
}

// peekMin returns the minimum-pass group's main thread without
// removing it, or nil if the heap is empty.
func (s *stride) peekMin() *Task {
	if s.len() == 0 {
		return nil
	}
	return s.heap[1]
}

// minPass returns the current heap minimum, or cfg.MaxInt if the heap
// is empty (so selection always prefers MLFQ when no stride group is
// runnable).
func (s *stride) minPass() int {
	if m := s.peekMin(); m != nil {
		return m.pass
	}
	return s.cfg.MaxInt
}

// setCPUShare implements set_cpu_share(share) for caller, admitting it
// as a stride participant. mlfq is the pool stride participates
// against.
func (s *stride) setCPUShare(caller *Task, share int, mlfq *mlfq) error {
	main := caller.Main()
	if share < 1 || share > 100-s.cfg.Reserve {
		return errf(BadArg, "set_cpu_share(%d) outside [1, %d]", share, 100-s.cfg.Reserve)
	}

	available := mlfq.tickets
	wasStride := main.typ == StrideType
	if wasStride {
		available += main.tickets
	}
	if available-share < s.cfg.Reserve {
		return errf(BadArg, "set_cpu_share(%d) would drop mlfq.tickets below reserve", share)
	}

	if !wasStride {
		mlfq.DequeueGroup(main)
		if min := s.minPass(); min < mlfq.pass {
			main.pass = min
		} else {
			main.pass = mlfq.pass
		}
		main.groupDo(func(th *Task) bool {
			th.typ = StrideType
			return true
		})
		s.running.PushBack(main)
	} else {
		mlfq.tickets += main.tickets
	}
	mlfq.tickets -= share
	main.tickets = share
	return nil
}

// selectNext returns the heap minimum, but only if it is strictly
// less than the MLFQ pool's virtual pass. Returns nil if the heap is
// empty (caller falls back to MLFQ).
func (s *stride) selectNext(mlfq *mlfq) *Task {
	min := s.peekMin()
	if min == nil {
		return nil
	}
	if min.pass < mlfq.pass {
		t := s.popMin()
		s.running.PushBack(t)
		return t
	}
	return nil
}

// onReturn is stridelogic: overflow renormalization followed by pass
// advancement for whichever participant (stride group or MLFQ pool)
// just ran, or just would have run had anything been runnable.
func (s *stride) onReturn(ran *Task, mlfq *mlfq) {
	s.renormalize(mlfq)

	if ran == nil || ran.typ == MLFQType {
		mlfq.pass += s.cfg.stride(mlfq.tickets)
		return
	}

	main := ran.Main()
	s.running.Remove(main)
	main.pass += s.cfg.stride(main.tickets)
	s.reinsert(main)
}

// reinsert re-adds a stride group to the heap after its quantum,
// preferring a Runnable sibling as the heap's task handle and falling
// back to a Sleeping one; if neither exists the group is simply not
// re-added.
func (s *stride) reinsert(main *Task) {
	var runnable, sleeping *Task
	main.groupDo(func(th *Task) bool {
		switch th.state {
		case Runnable:
			if runnable == nil {
				runnable = th
			}
		case Sleeping:
			if sleeping == nil {
				sleeping = th
			}
		}
		return true
	})
	switch {
	case runnable != nil:
		s.push(runnable.Main())
	case sleeping != nil:
		s.push(sleeping.Main())
	}
}

// renormalize is stridelogic step 1: if the current minimum pass
// exceeds BARRIER, every pass in the system (heap, running list, and
// the MLFQ pool) is reduced by that minimum.
func (s *stride) renormalize(mlfq *mlfq) {
	min := s.minPass()
	if m := s.running.Front(); m != nil {
		for t := s.running.Front(); t != nil; t = s.running.Next(t) {
			if t.pass < min {
				min = t.pass
			}
		}
	}
	if mlfq.pass < min {
		min = mlfq.pass
	}
	if min <= s.cfg.Barrier {
		return
	}
	for _, h := range s.heap[1:] {
		h.pass -= min
	}
	for t := s.running.Front(); t != nil; t = s.running.Next(t) {
		t.pass -= min
	}
	mlfq.pass -= min
}

// removeFromHeap drops main from the heap without returning it,
// used when a stride group's last Runnable/Sleeping member vanishes
// (e.g. every sibling exits or is killed while queued).
func (s *stride) removeFromHeap(main *Task) {
	i := main.heapIndex
	if i == 0 || i > s.len() || s.heap[i] != main {
		return
	}
	n := s.len()
	s.swap(i, n)
	s.heap = s.heap[:n]
	main.heapIndex = 0
	if i <= s.len() {
		s.siftDown(i)
		j := i
		for j > 1 {
			parent := j / 2
			if !s.less(j, parent) {
				break
			}
			s.swap(j, parent)
			j = parent
		}
	}
}
