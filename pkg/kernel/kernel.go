package kernel

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hybridos.dev/kernel/pkg/ilist"
)

// idleInterval bounds how long an idle CPU loop sleeps between
// pickNext attempts; real hardware would halt until the next
// interrupt, this simulation just polls gently.
const idleInterval = 200 * time.Microsecond

// cpu is one scheduler-loop goroutine: mycpu/cpuid/lapicid collapsed
// to an index plus the handoff channel a parked task's sched() call
// reports back on, the Go-native stand-in for swtch.
type cpu struct {
	CPU
	// handoff carries the hint a parking task computed: the sibling to
	// dispatch directly next (intra-group, no reselect), or nil meaning
	// "reselect via the full scheduler".
	handoff chan *Task
}

// Kernel is ptable: the fixed task pool plus every scheduler data
// structure, all living behind the single table lock.
type Kernel struct {
	mu  sync.Mutex
	cfg Config
	log *kernelLog

	tasks []*Task
	free  *ilist.List[Task]
	sleep *ilist.List[Task]

	mlfqQ  *mlfq
	strideQ *stride

	futex *futexTable

	nextPid  int
	uptime   int
	initTask *Task

	cpus []*cpu

	pageAlloc PageAllocator
}

// NewKernel allocates the fixed NPROC-sized task pool (all on the free
// list) and the scheduler structures, mirroring allocproc's pool.
func NewKernel(cfg Config, alloc PageAllocator) *Kernel {
	k := &Kernel{
		cfg:       cfg,
		log:       newKernelLog(),
		tasks:     make([]*Task, cfg.NProc),
		free:      ilist.New[Task](freeLinker),
		sleep:     ilist.New[Task](sleepLinker),
		mlfqQ:     newMLFQ(cfg),
		strideQ:   newStride(cfg),
		futex:     newFutexTable(),
		nextPid:   1,
		pageAlloc: alloc,
	}
	k.mlfqQ.attachSleepList(k.sleep)
	for i := range k.tasks {
		t := &Task{id: i, state: Unused}
		k.tasks[i] = t
		k.free.PushBack(t)
	}
	return k
}

// AddCPU registers one more scheduler-loop participant, returning its
// index. Must be called before Run.
func (k *Kernel) AddCPU() int {
	c := &cpu{CPU: CPU{id: len(k.cpus)}, handoff: make(chan *Task)}
	k.cpus = append(k.cpus, c)
	return c.id
}

// Run starts one scheduler loop per registered CPU under an
// errgroup.Group, the multi-CPU analogue of xv6's per-CPU scheduler()
// called from mpmain, returning when ctx is cancelled or a loop
// reports a fatal Invariant panic recovered at the loop boundary.
func (k *Kernel) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range k.cpus {
		c := c
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					if ke, ok := r.(*KernelError); ok {
						err = ke
						return
					}
					panic(r)
				}
			}()
			return k.loop(ctx, c)
		})
	}
	return g.Wait()
}

// loop is the per-CPU scheduler: select a runnable task, dispatch it,
// and keep dispatching its group's ready siblings directly as long as
// each sched() call returns an intra-group hint.
func (k *Kernel) loop(ctx context.Context, c *cpu) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		k.mu.Lock()
		t := k.pickNext()
		if t == nil {
			k.mu.Unlock()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idleInterval):
			}
			continue
		}
		t.state = Running
		t.runningOn = c
		k.mu.Unlock()

		hint := k.dispatchOne(c, t)
		for hint != nil {
			next := hint
			k.mu.Lock()
			next.state = Running
			next.runningOn = c
			k.mu.Unlock()
			hint = k.dispatchOne(c, next)
		}
	}
}

// dispatchOne hands control to t's goroutine and blocks until t parks
// again, then runs the per-hop accounting and returns t's hint.
func (k *Kernel) dispatchOne(c *cpu, t *Task) *Task {
	t.resumeCh <- struct{}{}
	hint := <-c.handoff

	k.mu.Lock()
	k.uptime++
	k.onReturn(t, hint == nil)
	k.mu.Unlock()
	return hint
}

// pickNext is the combined MLFQ/stride selection: the stride heap
// minimum wins only if strictly less than the MLFQ pool's virtual
// pass; otherwise fall back to mlfq.
func (k *Kernel) pickNext() *Task {
	if t := k.strideQ.selectNext(k.mlfqQ); t != nil {
		return t
	}
	return k.mlfqQ.SelectNext()
}

// onReturn is the per-hop accounting boundary: MLFQ-level tick/boost
// bookkeeping runs on every return regardless of scheduler, while
// stride pass advancement and overflow renormalization run only on a
// full scheduler reentry (full==true), since that is the unit of "one
// CPU quantum" the stride accounting is defined over. Intra-group
// direct dispatches deliberately skip full priority/stride reselection
// and so are cheaper than that.
func (k *Kernel) onReturn(t *Task, full bool) {
	if t.typ == MLFQType {
		k.mlfqQ.OnReturn(t)
	} else {
		k.mlfqQ.Tick()
	}
	if full {
		k.strideQ.onReturn(t, k.mlfqQ)
	}
}

// sched is called with the table lock held by a task whose state has
// already transitioned to Runnable, Sleeping, or Zombie. Decides
// between an intra-group direct dispatch and a full scheduler
// reentry, then hands off accordingly.
func (k *Kernel) sched(t *Task) {
	if t.state == Running {
		k.log.Fatalf("sched: task %d still Running", t.id)
	}
	main := t.Main()

	var hint *Task
	if main.ticks%k.cfg.DTQ != 0 {
		if cand := t.readyThread(); cand != nil && cand != t {
			hint = cand
		}
	}

	if t.state == Zombie {
		k.handOff(t, hint)
		return
	}
	k.schedSwitch(t, hint)
}

// handOff reports t's hint to its CPU loop without waiting to be
// resumed, used for the terminal Zombie case: the task's goroutine
// enters sched here and is never redispatched.
func (k *Kernel) handOff(t *Task, hint *Task) {
	c := t.runningOn
	k.mu.Unlock()
	c.handoff <- hint
}

// schedSwitch reports t's hint and blocks until t is redispatched,
// reacquiring the table lock before returning — mirroring sched()
// being called, and returning, with the lock held.
func (k *Kernel) schedSwitch(t *Task, hint *Task) {
	c := t.runningOn
	k.mu.Unlock()
	c.handoff <- hint
	<-t.resumeCh
	k.mu.Lock()
}

// runTaskGoroutine is the body every task's own goroutine executes:
// block until first dispatched, run the workload, then perform the
// implicit exit/thread_exit a real kernel's trap-return trampoline
// would perform on falling off the end (the MAGICEXIT idiom).
func (k *Kernel) runTaskGoroutine(t *Task) {
	<-t.resumeCh
	t.workload(k, t)
	if t.IsMain() {
		k.Exit(t, 0)
	} else {
		k.ThreadExit(t, nil)
	}
}

// allocTask is allocproc: pop the free-list head, allocate its kernel
// stack via the page allocator, and reset bookkeeping fields. Rolls
// back the slot on allocation failure.
func (k *Kernel) allocTask() (*Task, error) {
	f := k.free.Front()
	if f == nil {
		return nil, errf(OutOfSlots, "no free task slots")
	}
	k.free.Remove(f)

	mem, err := k.pageAlloc.Alloc()
	if err != nil {
		f.state = Unused
		k.free.PushFront(f)
		return nil, errf(OutOfMemory, "kernel stack: %v", err)
	}

	f.state = Embryo
	f.stackMem = mem
	f.tf = &TrapFrame{}
	f.ctx = &Context{}
	f.resumeCh = make(chan struct{})
	f.groupNext = f
	f.groupPrev = f
	f.thmain = f
	f.killed = false
	f.retval = nil
	f.tid = 0
	f.ticks = 0
	f.typ = MLFQType
	f.tickets = 0
	f.pass = 0
	f.heapIndex = 0
	f.children = ilist.New[Task](siblingLinker)
	return f, nil
}

// freeTask is the tail of wait/thread_join's slot reclamation: release
// the kernel stack and return the slot to the free list.
func (k *Kernel) freeTask(t *Task) {
	if t.stackMem != nil {
		k.pageAlloc.Free(t.stackMem)
		t.stackMem = nil
	}
	t.state = Unused
	t.tf = nil
	t.ctx = nil
	t.addr = nil
	t.files = nil
	t.parent = nil
	t.children = nil
	t.chn = nil
	t.retval = nil
	k.free.PushBack(t)
}

func (k *Kernel) allocPid() int {
	pid := k.nextPid
	k.nextPid++
	return pid
}

// Uptime returns the tick count advanced once per dispatch hop across
// all CPUs.
func (k *Kernel) Uptime() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.uptime
}

// GetPID and GetTID read t's own pid and tid (every thread of a group
// carries the group's pid). GetLevel reads privlevel through Main(),
// since that field is authoritative only on the main thread.
func (k *Kernel) GetPID(t *Task) int { return t.pid }
func (k *Kernel) GetTID(t *Task) int { return t.tid }
func (k *Kernel) GetLevel(t *Task) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return t.Main().privlevel
}

// Killed reports whether t's thread group has been marked killed, the
// flag kill() sets and that a blocked operation observes at its next
// return to decide whether to retry or fail with Killed.
func (k *Kernel) Killed(t *Task) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return t.Main().killed
}

// Yield advances tick accounting, returns to Runnable, and calls
// sched. Stride callers leave the running list before yielding.
func (k *Kernel) Yield(t *Task) {
	k.mu.Lock()
	if t.typ == StrideType {
		k.strideQ.running.Remove(t.Main())
	}
	t.state = Runnable
	k.sched(t)
	k.mu.Unlock()
}

// Sleep dequeues MLFQ tasks from their run queue (stride tasks are
// already off the heap while Running), marks Sleeping, pushes to the
// global sleep list, and calls sched.
func (k *Kernel) Sleep(t *Task, chn any) {
	k.mu.Lock()
	if t.typ == MLFQType {
		k.mlfqQ.DequeueMember(t)
	}
	t.chn = chn
	t.state = Sleeping
	k.sleep.PushBack(t)
	k.sched(t)
	t.chn = nil
	k.mu.Unlock()
}

// wakeup1 unlinks every sleeper whose chn matches, makes it Runnable,
// and (if MLFQ) re-enqueues it at its preserved level. Must be called
// with the lock held.
func (k *Kernel) wakeup1(chn any) {
	var woken []*Task
	for t := k.sleep.Front(); t != nil; {
		next := k.sleep.Next(t)
		if t.chn == chn {
			k.sleep.Remove(t)
			woken = append(woken, t)
		}
		t = next
	}
	for _, t := range woken {
		t.state = Runnable
		if t.typ == MLFQType {
			k.mlfqQ.EnqueueMember(t.Main(), t)
		}
	}
}

// Wakeup acquires the table lock and performs wakeup1.
func (k *Kernel) Wakeup(chn any) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.wakeup1(chn)
}

// Kill marks every task in pid's group killed, and splices any
// Sleeping member onto the runnable queues so it can observe the flag
// at its next trap return.
func (k *Kernel) Kill(pid int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	target := k.findMainByPID(pid)
	if target == nil {
		return errf(NotFound, "no such pid %d", pid)
	}
	target.groupDo(func(th *Task) bool {
		th.killed = true
		if th.state == Sleeping {
			k.sleep.Remove(th)
			th.state = Runnable
			th.chn = nil
			if th.typ == MLFQType {
				k.mlfqQ.EnqueueMember(target, th)
			}
		}
		return true
	})
	return nil
}

func (k *Kernel) findMainByPID(pid int) *Task {
	for _, t := range k.tasks {
		if t.state != Unused && t.IsMain() && t.pid == pid {
			return t
		}
	}
	return nil
}

// TaskSnapshot is a procdump-equivalent snapshot of one live task's
// scheduling identity, for tests and hybridosctl mlfqtest's report.
type TaskSnapshot struct {
	PID   int
	TID   int
	Level int
	State string
}

func (k *Kernel) Dump() []TaskSnapshot {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []TaskSnapshot
	for _, t := range k.tasks {
		if t.state == Unused {
			continue
		}
		out = append(out, TaskSnapshot{
			PID:   t.pid,
			TID:   t.tid,
			Level: t.Main().privlevel,
			State: t.state.String(),
		})
	}
	return out
}
