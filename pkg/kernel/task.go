package kernel

import "hybridos.dev/kernel/pkg/ilist"

// TaskState is one of the task lifecycle states.
type TaskState int

const (
	Unused TaskState = iota
	Embryo
	Runnable
	Running
	Sleeping
	Zombie
)

func (s TaskState) String() string {
	switch s {
	case Unused:
		return "unused"
	case Embryo:
		return "embryo"
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	case Zombie:
		return "zombie"
	default:
		return "???"
	}
}

// TaskType selects which scheduler owns a thread group: the MLFQ or a
// stride participant.
type TaskType int

const (
	MLFQType TaskType = iota
	StrideType
)

// Workload is the body a task runs in its own goroutine. It is handed
// a handle back into the kernel so it can perform the blocking kernel
// operations (Yield, Sleep, ThreadExit, ...) that hand control back to
// the scheduler. Returning from Workload is equivalent to falling off
// the end of user code: a main thread's return triggers Exit, a
// non-main thread's return triggers ThreadExit(nil) — the Go-native
// stand-in for xv6's MAGICEXIT trampoline.
type Workload func(k *Kernel, t *Task)

// Task is one slot in the fixed NPROC pool: a process, or one thread
// of a multithreaded process. Fields below that are commented "opaque"
// are owned by an external collaborator and never inspected by the
// scheduler core itself.
type Task struct {
	id    int // fixed slot index into Kernel.tasks
	state TaskState

	pid int
	tid int

	// thmain points at this task's main thread; main.thmain == main.
	// Following it from any task in a group terminates at the unique
	// main thread.
	thmain *Task

	// privlevel, ticks, typ, tickets, pass are authoritative only when
	// read through thmain; see Task.Main() callers throughout.
	privlevel int
	ticks     int
	typ       TaskType
	tickets   int
	pass      int

	chn     any // sleep channel key; an opaque "chan" address
	killed  bool

	parent *Task
	// children is this task's process-tree child list; meaningful only
	// when this task is a main thread (a thread group has one parent).
	children *ilist.List[Task]

	retval any

	// thread-group ring: a headless circular list, traversed starting
	// at groupNext and ending back at self (thread.c's threads_apply).
	// A solitary thread's ring is a self-loop.
	groupNext *Task
	groupPrev *Task

	// Opaque external-collaborator handles; never interpreted for
	// scheduling decisions, only copied/relocated by fork and
	// thread_create.
	addr    AddressSpace
	files   *FileTable
	ustack  int // user stack base, owned by addr
	stackMem []byte
	tf      *TrapFrame
	ctx     *Context

	workload Workload
	// resumeCh is the "swtch into this task" rendezvous: the scheduler
	// loop (or a sibling performing an intra-group handoff) sends on it
	// to let this task's goroutine proceed.
	resumeCh chan struct{}
	// runningOn is the CPU currently executing this task, set at
	// dispatch time and used only to route the task's "I'm parking"
	// handoff back to the right loop.
	runningOn *cpu

	// List memberships. Exactly one of mlfqLink/strideRunLink/
	// sleepLink/freeLink holds this task at a time (plus brief
	// transitions under Kernel.mu).
	mlfqLink      ilist.Entry[Task]
	strideRunLink ilist.Entry[Task]
	sleepLink     ilist.Entry[Task]
	freeLink      ilist.Entry[Task]
	siblingLink   ilist.Entry[Task] // membership in parent.children
	heapIndex     int               // 1-indexed position in the stride min-heap, 0 if absent
}

// Main returns the authoritative main thread for t's group. Idempotent:
// repeated calls converge on the same fixed point.
func (t *Task) Main() *Task {
	m := t
	for m != m.thmain {
		m = m.thmain
	}
	return m
}

// IsMain reports whether t is its own group's main thread.
func (t *Task) IsMain() bool {
	return t == t.thmain
}

func mlfqLinker(t *Task) *ilist.Entry[Task]      { return &t.mlfqLink }
func strideRunLinker(t *Task) *ilist.Entry[Task] { return &t.strideRunLink }
func sleepLinker(t *Task) *ilist.Entry[Task]     { return &t.sleepLink }
func freeLinker(t *Task) *ilist.Entry[Task]      { return &t.freeLink }
func siblingLinker(t *Task) *ilist.Entry[Task]   { return &t.siblingLink }
