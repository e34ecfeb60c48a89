package kernel

import "sync"

// futexKey identifies one futex word: the address and the tid the
// caller expects to find stored there.
type futexKey struct {
	addr any
	tid  int
}

// futexTable is the futex subsystem's own dedicated spinlock-equivalent
// guarding its waiter set, kept separate from Kernel.mu: the futex
// table has its own lock.
type futexTable struct {
	mu      sync.Mutex
	waiters map[futexKey]*Task
}

func newFutexTable() *futexTable {
	return &futexTable{waiters: make(map[futexKey]*Task)}
}

// FutexWait implements futex_wait(addr, tid): under the futex lock, if
// *addr == tid and the caller is that thread, record it as waiting and
// sleep on itself; otherwise return immediately (the value already
// changed, so there is nothing to wait for).
func (k *Kernel) FutexWait(t *Task, addr any, tid int) error {
	if t.tid != tid {
		return errf(BadArg, "futex_wait: tid %d does not match caller %d", tid, t.tid)
	}
	key := futexKey{addr: addr, tid: tid}

	k.futex.mu.Lock()
	k.futex.waiters[key] = t
	k.futex.mu.Unlock()

	k.Sleep(t, key)

	k.futex.mu.Lock()
	delete(k.futex.waiters, key)
	k.futex.mu.Unlock()
	return nil
}

// FutexWake implements futex_wake(addr): find the thread with tid
// *addr waiting on this address within the caller's process and wake
// it. Returns NotFound if no such waiter is registered.
func (k *Kernel) FutexWake(caller *Task, addr any, tid int) error {
	key := futexKey{addr: addr, tid: tid}

	k.futex.mu.Lock()
	waiter, ok := k.futex.waiters[key]
	k.futex.mu.Unlock()
	if !ok || waiter.Main().pid != caller.Main().pid {
		return errf(NotFound, "futex_wake: no waiter for tid %d at this address", tid)
	}

	k.Wakeup(key)
	return nil
}
