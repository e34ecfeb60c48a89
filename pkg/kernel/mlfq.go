package kernel

import "hybridos.dev/kernel/pkg/ilist"

// mlfq is the three-level feedback queue. Levels are indexed 0
// (highest priority) .. cfg.baseLevel() (lowest, never demotes
// further). pins[l] == nil means "at l's head sentinel": selectNext
// starts from the first entry in that case.
type mlfq struct {
	cfg Config

	tickets int // virtual stride participant: MLFQ pool's tickets
	pass    int // virtual stride participant: MLFQ pool's pass
	ticks   int // ticks since the last priority boost

	queues []*ilist.List[Task]
	pins   []*Task

	// sleep is the kernel's global sleep list, attached via
	// attachSleepList once the owning Kernel exists. A sleeping task
	// leaves every per-level queue, so boost needs this to reach
	// sleepers sitting below level 0 when it resets priorities.
	sleep *ilist.List[Task]
}

func newMLFQ(cfg Config) *mlfq {
	m := &mlfq{
		cfg:     cfg,
		tickets: 100,
		queues:  make([]*ilist.List[Task], cfg.QSize),
		pins:    make([]*Task, cfg.QSize),
	}
	for l := range m.queues {
		m.queues[l] = ilist.New[Task](mlfqLinker)
	}
	return m
}

// attachSleepList gives boost visibility into sleeping tasks, which
// sit outside every per-level queue. Called once from NewKernel.
func (q *mlfq) attachSleepList(sleep *ilist.List[Task]) {
	q.sleep = sleep
}

// groupStartAt returns the first member of p's contiguous group block
// in level l's queue, scanning backward from p. Relies on the
// invariant that a group's queued threads always sit contiguously.
func (q *mlfq) groupStartAt(l int, p *Task) *Task {
	main := p.Main()
	start := p
	for {
		prev := q.queues[l].Prev(start)
		if prev == nil || prev.Main() != main {
			return start
		}
		start = prev
	}
}

// groupEndAt is groupStartAt's mirror: the last member of p's
// contiguous block.
func (q *mlfq) groupEndAt(l int, p *Task) *Task {
	main := p.Main()
	end := p
	for {
		next := q.queues[l].Next(end)
		if next == nil || next.Main() != main {
			return end
		}
		end = next
	}
}

// EnqueueGroup places main at the tail of its level's queue, then
// inserts every other Runnable/Running sibling immediately after it so
// the whole group packs contiguously.
func (q *mlfq) EnqueueGroup(main *Task) {
	level := main.privlevel
	queue := q.queues[level]
	queue.PushBack(main)
	cursor := main
	main.groupDo(func(th *Task) bool {
		if th == main {
			return true
		}
		if th.state == Runnable || th.state == Running {
			queue.InsertAfter(cursor, th)
			cursor = th
		}
		return true
	})
}

// anyGroupMember returns any task already queued at level belonging to
// main's group, or nil.
func (q *mlfq) anyGroupMember(level int, main *Task) *Task {
	var found *Task
	q.queues[level].Do(func(th *Task) bool {
		if th.Main() == main {
			found = th
			return false
		}
		return true
	})
	return found
}

// EnqueueMember inserts a single newly-runnable th into main's
// existing contiguous block if the group already has a queued member,
// else appends it alone (main's other siblings are presumably still
// sleeping or exited). Used by wakeup1/Kill, which wake individual
// threads rather than whole groups.
func (q *mlfq) EnqueueMember(main *Task, th *Task) {
	level := main.privlevel
	queue := q.queues[level]
	if anchor := q.anyGroupMember(level, main); anchor != nil {
		queue.InsertAfter(q.groupEndAt(level, anchor), th)
		return
	}
	queue.PushBack(th)
}

// DequeueGroup removes every Runnable/Running sibling of main from its
// level's queue, first relocating the pin off the group if it sits
// within it.
func (q *mlfq) DequeueGroup(main *Task) {
	level := main.privlevel
	queue := q.queues[level]
	if pin := q.pins[level]; pin != nil && pin.Main() == main {
		next := q.nextOutsideGroup(level, pin)
		q.pins[level] = next
	}
	// Snapshot members first: a Runnable/Running sibling of main is
	// necessarily a member of this very queue, so no further membership
	// check is needed.
	var members []*Task
	main.groupDo(func(th *Task) bool {
		if th.state == Runnable || th.state == Running {
			members = append(members, th)
		}
		return true
	})
	for _, th := range members {
		queue.Remove(th)
	}
}

// DequeueMember removes a single thread from its level's queue,
// relocating the pin off it first if needed. Used when one thread of
// a group sleeps or exits (Sleep, ThreadExit, and the main thread's
// own Exit), as distinct from DequeueGroup's whole-group removal on
// demotion or a CPU-share class change.
func (q *mlfq) DequeueMember(t *Task) {
	level := t.Main().privlevel
	queue := q.queues[level]
	if q.pins[level] == t {
		next := queue.Next(t)
		if next == nil {
			next = queue.Front()
		}
		if next == t {
			next = nil
		}
		q.pins[level] = next
	}
	queue.Remove(t)
}

// nextOutsideGroup advances past from's thread, then past from's whole
// group, returning the first task belonging to a different group, or
// nil (head sentinel) if none remains at this level.
func (q *mlfq) nextOutsideGroup(level int, from *Task) *Task {
	main := from.Main()
	for n := q.queues[level].Next(from); n != nil; n = q.queues[level].Next(n) {
		if n.Main() != main {
			return n
		}
	}
	return nil
}

// SelectNext scans levels 0..baseLevel in priority order and returns
// the next Runnable task to dispatch, or nil if nothing is runnable
// anywhere in the MLFQ.
func (q *mlfq) SelectNext() *Task {
	for l := 0; l <= q.cfg.baseLevel(); l++ {
		queue := q.queues[l]
		start := q.pins[l]
		if start == nil {
			start = queue.Front()
		}
		if start == nil {
			continue
		}
		p := start
		for {
			if p.state == Runnable {
				q.pins[l] = p
				return p
			}
			if p.state == Running {
				// Already running on another CPU: skip past its thread,
				// then past its whole group, and keep scanning this level.
				adv := q.queues[l].Next(p)
				if adv != nil && adv.Main() == p.Main() {
					// still within group: try the immediate next slot first
				} else {
					adv = q.nextOutsideGroup(l, p)
				}
				if adv == nil {
					break
				}
				p = adv
				q.pins[l] = p
				continue
			}
			p = queue.Next(p)
			if p == nil {
				p = queue.Front()
			}
			if p == start {
				break
			}
		}
	}
	return nil
}

// Tick advances the boost counter by one scheduler return, triggering
// a priority boost at BoostPeriod regardless of which scheduler (MLFQ
// or stride) owned the task that just ran — the boost period is a
// global tick count, not an MLFQ-only one.
func (q *mlfq) Tick() {
	q.ticks++
	if q.ticks >= q.cfg.BoostPeriod {
		q.boost()
	}
}

// OnReturn is mlfqlogic: per-return tick accounting, demotion, and pin
// rotation for the task that just returned to the scheduler.
func (q *mlfq) OnReturn(t *Task) {
	main := t.Main()
	q.Tick()
	level := main.privlevel
	base := q.cfg.baseLevel()

	switch t.state {
	case Runnable:
		main.ticks++
		ta := q.cfg.TA[level]
		if level < base && ta > 0 && main.ticks%ta == 0 {
			q.DequeueGroup(main)
			main.privlevel = level + 1
			main.ticks = 0
			q.EnqueueGroup(main)
		} else if main.ticks%q.cfg.TQ[level] == 0 {
			next := q.nextOutsideGroup(level, q.groupEndAt(level, t))
			q.pins[level] = next
		} else {
			next := q.queues[level].Next(t)
			if next == nil || next.Main() != main {
				next = q.groupStartAt(level, t)
			}
			q.pins[level] = next
		}
	case Sleeping:
		ta := q.cfg.TA[level]
		if level < base && ta > 0 && main.ticks%ta == 0 {
			main.privlevel++
			main.ticks = 0
		}
	case Zombie:
		// No pin bookkeeping: DequeueMember already ran in the exit path.
	default:
		panic(&KernelError{Kind: Invariant, Msg: "mlfqlogic: unexpected state " + t.state.String()})
	}
}

// boost resets every level-1..base task to level 0 and bulk-moves
// those queues onto the tail of level 0, in level order. Sleeping
// tasks below level 0 never appear in queues, so they are reset
// separately via the attached sleep list; their queue placement is
// handled later, whenever they wake and get enqueued at their (now
// reset) level.
func (q *mlfq) boost() {
	base := q.cfg.baseLevel()
	dst := q.queues[0]
	for l := 1; l <= base; l++ {
		src := q.queues[l]
		src.Do(func(th *Task) bool {
			th.privlevel = 0
			th.ticks = 0
			return true
		})
		destWasEmpty := dst.Empty()
		srcPin := q.pins[l]
		dst.PushBackList(src)
		if destWasEmpty && srcPin != nil {
			q.pins[0] = srcPin
		}
		q.pins[l] = nil
	}
	if q.sleep != nil {
		q.sleep.Do(func(th *Task) bool {
			main := th.Main()
			if main.typ == MLFQType && main.privlevel > 0 {
				main.privlevel = 0
				main.ticks = 0
			}
			return true
		})
	}
	q.ticks = 0
}
