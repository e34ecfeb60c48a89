package kernel

// defaultUserStackSize is the USTACKSIZE span, required to be at
// least one page; this simulation has no real page size, so it picks
// one matching a typical x86 page.
const defaultUserStackSize = 4096

// ThreadCreate allocates a slot, lays out a user stack one page below
// the last sibling's, prepares a trap frame with EIP at startEIP, ESP
// at the new stack and EAX holding arg, links into the thread group,
// and enqueues if MLFQ. No MAGICEXIT return address is written:
// returning from workload performs ThreadExit via runTaskGoroutine.
func (k *Kernel) ThreadCreate(caller *Task, startEIP uintptr, arg uintptr, workload Workload) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	main := caller.Main()
	t, err := k.allocTask()
	if err != nil {
		return -1, err
	}

	lastBase := main.ustack
	base, err := main.addr.NewUserStack(lastBase, defaultUserStackSize)
	if err != nil {
		k.freeTask(t)
		return -1, errf(OutOfMemory, "thread_create: user stack: %v", err)
	}

	t.pid = main.pid
	t.tid = k.nextTID(main)
	t.addr = main.addr
	t.files = main.files.Share()
	t.typ = main.typ
	t.privlevel = main.privlevel
	t.thmain = main
	t.ustack = base
	main.ustack = base
	t.workload = workload
	t.tf.EIP = startEIP
	t.tf.ESP = uintptr(base)
	t.tf.EAX = arg
	t.state = Runnable

	linkIntoGroup(main, t)
	if t.typ == MLFQType {
		k.mlfqQ.EnqueueMember(main, t)
	}

	go k.runTaskGoroutine(t)
	return t.tid, nil
}

// nextTID assigns the next unused tid within main's group (tid 0 is
// reserved for the main thread itself).
func (k *Kernel) nextTID(main *Task) int {
	next := 1
	main.groupDo(func(th *Task) bool {
		if th.tid >= next {
			next = th.tid + 1
		}
		return true
	})
	return next
}

// ThreadExit refuses if caller is main, records retval, wakes the
// main thread, dequeues from MLFQ, marks Zombie, and enters sched.
func (k *Kernel) ThreadExit(t *Task, retval any) error {
	k.mu.Lock()
	if t.IsMain() {
		k.mu.Unlock()
		return errf(BadArg, "thread_exit: caller is the main thread, use exit")
	}

	main := t.Main()
	t.retval = retval
	t.state = Zombie
	if t.typ == MLFQType {
		k.mlfqQ.DequeueMember(t)
	} else {
		k.strideQ.running.Remove(t)
	}
	k.wakeup1(main)
	k.sched(t)
	return nil
}

// ThreadJoin looks up the thread within the caller's group, fails if
// absent or the caller is killed; if the target is Zombie and its
// thmain is the caller, writes retval out and frees the slot;
// otherwise sleeps on self.
func (k *Kernel) ThreadJoin(caller *Task, tid int) (any, error) {
	main := caller.Main()
	for {
		k.mu.Lock()
		if main.killed {
			k.mu.Unlock()
			return nil, errf(Killed, "thread_join: caller killed")
		}
		target := main.findGroupMember(tid)
		if target == nil || target == main {
			k.mu.Unlock()
			return nil, errf(NotFound, "thread_join: no such tid %d", tid)
		}
		if target.state == Zombie && target.thmain == main {
			retval := target.retval
			target.unlinkFromGroup()
			k.freeTask(target)
			k.mu.Unlock()
			return retval, nil
		}
		k.Sleep(main, main)
	}
}

// Usurp is monopolize_proc/usurp: a non-main thread becomes the
// group's new main, taking over the old main's size/tick/file-table/
// stride bookkeeping, and every other sibling's thmain is reassigned.
// Treated as advisory: no ordering guarantee is claimed against a
// concurrent join beyond completing under the table lock.
func (k *Kernel) Usurp(t *Task) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	oldMain := t.Main()
	if t == oldMain {
		return nil
	}

	t.ticks = oldMain.ticks
	t.typ = oldMain.typ
	t.tickets = oldMain.tickets
	t.pass = oldMain.pass
	t.privlevel = oldMain.privlevel
	t.files = oldMain.files
	t.addr = oldMain.addr
	t.parent = oldMain.parent
	t.children = oldMain.children
	t.pid = oldMain.pid
	t.thmain = t

	oldMain.groupDo(func(th *Task) bool {
		if th != t {
			th.thmain = t
		}
		return true
	})

	if oldMain.heapIndex != 0 {
		k.strideQ.heap[oldMain.heapIndex] = t
		t.heapIndex = oldMain.heapIndex
		oldMain.heapIndex = 0
	}

	return nil
}
