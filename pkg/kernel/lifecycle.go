package kernel

import "github.com/mohae/deepcopy"

// UserInit is the one-time bootstrap of the first user task, enqueued
// at MLFQ level 0. The returned task also becomes init: the
// reparenting target for orphaned children.
func (k *Kernel) UserInit(addr AddressSpace, workload Workload) (*Task, error) {
	k.mu.Lock()
	t, err := k.allocTask()
	if err != nil {
		k.mu.Unlock()
		return nil, err
	}
	t.pid = k.allocPid()
	t.addr = addr
	t.files = NewFileTable()
	t.privlevel = 0
	t.state = Runnable
	t.workload = workload
	k.mlfqQ.EnqueueGroup(t)
	if k.initTask == nil {
		k.initTask = t
	}
	k.mu.Unlock()

	go k.runTaskGoroutine(t)
	return t, nil
}

// Fork capacity-checks the caller's whole thread group, allocates a
// new main task plus one slot per live sibling, relocates each
// sibling's trap frame/context, and enqueues the designated child
// entry thread into MLFQ. Rolls back every partial allocation on
// failure, including any group-ring, sleep-list, or parent-children
// linkage already performed.
func (k *Kernel) Fork(parent *Task, workload Workload) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	main := parent.Main()
	var siblings []*Task
	main.groupDo(func(th *Task) bool {
		if th.state == Runnable || th.state == Running || th.state == Sleeping {
			siblings = append(siblings, th)
		}
		return true
	})

	var allocated []*Task
	// linkedGroup holds clones (excluding childMain) already spliced
	// into childMain's group ring and, where applicable, the sleep
	// list: rollback must undo both before the slots are freed, or a
	// later unrelated allocTask() can hand one of those slots to a
	// different task while these lists still reference it.
	var linkedGroup []*Task
	childLinkedToParent := false

	rollback := func(childMain *Task) {
		for i := len(linkedGroup) - 1; i >= 0; i-- {
			c := linkedGroup[i]
			if c.state == Sleeping {
				k.sleep.Remove(c)
			}
			c.unlinkFromGroup()
		}
		if childLinkedToParent {
			main.children.Remove(childMain)
		}
		for _, a := range allocated {
			k.freeTask(a)
		}
	}

	childMain, err := k.allocTask()
	if err != nil {
		return -1, err
	}
	allocated = append(allocated, childMain)

	addr, err := main.addr.Fork()
	if err != nil {
		rollback(childMain)
		return -1, errf(OutOfMemory, "address space fork: %v", err)
	}
	childMain.addr = addr
	childMain.files = main.files.Dup()
	childMain.pid = k.allocPid()
	childMain.typ = MLFQType
	childMain.privlevel = 0
	childMain.tid = 0
	childMain.parent = main
	childMain.workload = workload
	childMain.tf = deepcopy.Copy(main.tf).(*TrapFrame)
	childMain.ctx = deepcopy.Copy(main.ctx).(*Context)
	main.children.PushBack(childMain)
	childLinkedToParent = true

	var entryThread *Task
	for _, sib := range siblings {
		if sib == main {
			continue
		}
		clone, err := k.allocTask()
		if err != nil {
			rollback(childMain)
			return -1, err
		}
		allocated = append(allocated, clone)

		clone.pid = childMain.pid
		clone.tid = sib.tid
		clone.addr = childMain.addr
		clone.files = childMain.files
		clone.typ = MLFQType
		clone.privlevel = 0
		clone.thmain = childMain
		clone.workload = sib.workload
		clone.tf = deepcopy.Copy(sib.tf).(*TrapFrame)
		clone.ctx = deepcopy.Copy(sib.ctx).(*Context)

		if sib.state == Sleeping {
			clone.chn = sib.chn
			clone.state = Sleeping
			k.sleep.PushBack(clone)
		} else {
			clone.state = Runnable
		}

		linkIntoGroup(childMain, clone)
		linkedGroup = append(linkedGroup, clone)
		if entryThread == nil && sib.state != Sleeping {
			entryThread = clone
		}
	}

	if entryThread == nil {
		entryThread = childMain
		childMain.state = Runnable
	}
	entryThread.tf.EAX = 0
	k.mlfqQ.EnqueueGroup(childMain)

	go k.runTaskGoroutine(childMain)
	for _, clone := range allocated {
		if clone != childMain {
			go k.runTaskGoroutine(clone)
		}
	}

	return childMain.pid, nil
}

// Exit runs the main thread's exit sequence: mark every sibling
// killed, join them one by one, close files, release the address
// space, reparent children to init, wake the parent, dequeue itself,
// mark Zombie, and enter sched (never returns).
func (k *Kernel) Exit(t *Task, retval any) {
	k.mu.Lock()
	main := t.Main()

	var siblings []*Task
	main.groupDo(func(th *Task) bool {
		if th != main {
			siblings = append(siblings, th)
		}
		return true
	})
	for _, sib := range siblings {
		sib.killed = true
		k.forceWakeLocked(sib)
	}
	k.mu.Unlock()

	for _, sib := range siblings {
		k.joinOne(main, sib.tid)
	}

	k.mu.Lock()
	main.files.Close()
	main.addr.Release()

	if k.initTask != nil && main.children != nil {
		for c := main.children.Front(); c != nil; {
			next := main.children.Next(c)
			main.children.Remove(c)
			c.parent = k.initTask
			k.initTask.children.PushBack(c)
			c = next
		}
	}

	if main.parent != nil {
		k.wakeup1(main.parent)
	}

	if main.typ == MLFQType {
		k.mlfqQ.DequeueMember(main)
	} else {
		k.strideQ.running.Remove(main)
		k.strideQ.removeFromHeap(main)
		k.mlfqQ.tickets += main.tickets
	}
	main.retval = retval
	main.state = Zombie
	k.sched(main)
}

// forceWakeLocked unconditionally splices t off the sleep list
// regardless of its chan, used when killing: the target may be
// sleeping at an arbitrary site and must run to its next trap to
// observe the killed flag. Must be called with the table lock held.
func (k *Kernel) forceWakeLocked(t *Task) {
	if t.state != Sleeping {
		return
	}
	k.sleep.Remove(t)
	t.state = Runnable
	t.chn = nil
	if t.typ == MLFQType {
		k.mlfqQ.EnqueueMember(t.Main(), t)
	}
}

// Wait scans the children list for a zombie whose tid==0 (a
// reaped-to-main thread group), frees it, and returns its pid;
// otherwise sleeps on self if not killed and children remain.
func (k *Kernel) Wait(t *Task) (int, error) {
	main := t.Main()
	for {
		k.mu.Lock()
		if main.children == nil || main.children.Empty() {
			k.mu.Unlock()
			return -1, errf(NotFound, "wait: no children")
		}
		for c := main.children.Front(); c != nil; c = main.children.Next(c) {
			if c.state == Zombie && c.tid == 0 {
				pid := c.pid
				main.children.Remove(c)
				k.freeTask(c)
				k.mu.Unlock()
				return pid, nil
			}
		}
		if main.killed {
			k.mu.Unlock()
			return -1, errf(Killed, "wait: caller killed")
		}
		k.Sleep(main, main)
	}
}

// joinOne blocks (sleeping on main itself, the usual "sleep on self"
// idiom) until the sibling with the given tid becomes a reapable
// Zombie, then frees its slot. Used by Exit's join-every-sibling loop.
func (k *Kernel) joinOne(main *Task, tid int) {
	for {
		k.mu.Lock()
		target := main.findGroupMember(tid)
		if target == nil {
			k.mu.Unlock()
			return
		}
		if target.state == Zombie {
			target.unlinkFromGroup()
			k.freeTask(target)
			k.mu.Unlock()
			return
		}
		k.Sleep(main, main)
	}
}

// findGroupMember returns the member of t's group with the given tid,
// or nil.
func (t *Task) findGroupMember(tid int) *Task {
	var found *Task
	t.groupDo(func(th *Task) bool {
		if th.tid == tid {
			found = th
			return false
		}
		return true
	})
	return found
}
