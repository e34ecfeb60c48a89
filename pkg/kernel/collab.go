package kernel

// This file names the external collaborators this package consumes
// but never implements: virtual memory, the page allocator, CPU
// identity, and the file system. The scheduler core only ever calls
// these through the interfaces below; concrete implementations (a
// real VM subsystem, or the in-memory stand-ins used by tests and the
// CLI demo in pkg/kernel/testkit) live outside this package.

// PageAllocator is kalloc/kfree: the allocator the kernel stack is
// carved from.
type PageAllocator interface {
	Alloc() ([]byte, error)
	Free([]byte)
}

// AddressSpace collapses setupkvm/copyuvm/inituvm/allocuvm/
// deallocuvm/allocustack/deallocustack/freevm/switchuvm/vswitchuvm/
// invalidate_tlb into one handle.
type AddressSpace interface {
	// Fork returns a copy-on-fork duplicate of the address space
	// (copyuvm).
	Fork() (AddressSpace, error)
	// Size returns the current break (sz).
	Size() int
	// Grow/Shrink implement growproc's allocuvm/deallocuvm calls.
	Grow(delta int) error
	Shrink(delta int) error
	// NewUserStack allocates a USTACKSIZE-or-larger stack region one
	// page below base and returns its base address (allocustack).
	NewUserStack(base, size int) (int, error)
	// FreeUserStack releases a stack region (deallocustack).
	FreeUserStack(base int)
	// Switch installs this address space as the active one
	// (switchuvm/vswitchuvm).
	Switch()
	// InvalidateTLB flushes stale translations after a thread-group
	// mutation (invalidate_tlb).
	InvalidateTLB()
	// Release frees the whole address space (freevm), called once the
	// last thread of a group is reaped.
	Release()
}

// OpenFile is the scheduler core's view of an open file descriptor:
// filedup/fileclose.
type OpenFile interface {
	Dup() OpenFile
	Close()
}

// Inode is the scheduler core's view of a cwd reference: idup/iput.
type Inode interface {
	Dup() Inode
	Put()
}

// NOFILE bounds the per-process open file table, matching xv6's
// NOFILE-sized ofile array.
const NOFILE = 16

// FileTable is the shared, main-thread-owned file descriptor table and
// current-working-directory reference: the address space, descriptor
// table, and cwd are owned by the main thread and shared by reference;
// siblings carry non-owning copies of fd pointers.
type FileTable struct {
	files [NOFILE]OpenFile
	cwd   Inode
}

// NewFileTable returns an empty file table.
func NewFileTable() *FileTable { return &FileTable{} }

// Dup returns a new table with every slot duplicated via filedup/idup,
// used by Fork (the child gets its own owning references).
func (ft *FileTable) Dup() *FileTable {
	out := &FileTable{}
	for i, f := range ft.files {
		if f != nil {
			out.files[i] = f.Dup()
		}
	}
	if ft.cwd != nil {
		out.cwd = ft.cwd.Dup()
	}
	return out
}

// Share returns ft itself: thread_create's siblings don't own their
// own table, they reference the main thread's (a non-owning copy of
// the pointer).
func (ft *FileTable) Share() *FileTable { return ft }

// Close closes every open descriptor and releases cwd (exit's
// cleanup), never called for a mere thread_exit: ThreadExit leaves
// the shared table untouched.
func (ft *FileTable) Close() {
	for i, f := range ft.files {
		if f != nil {
			f.Close()
			ft.files[i] = nil
		}
	}
	if ft.cwd != nil {
		ft.cwd.Put()
		ft.cwd = nil
	}
}

// SetFD installs f at descriptor fd, for the external open()-equivalent
// collaborator to populate a slot (see Kernel.InstallFD).
func (ft *FileTable) SetFD(fd int, f OpenFile) error {
	if fd < 0 || fd >= NOFILE {
		return errf(BadArg, "fd %d out of range", fd)
	}
	ft.files[fd] = f
	return nil
}

// ClearSlots drops every descriptor and the cwd reference without
// closing them. ThreadExit does not call it: a sibling's table is the
// main thread's own table (see Share), so clearing it would empty the
// whole group's descriptors.
func (ft *FileTable) ClearSlots() {
	for i := range ft.files {
		ft.files[i] = nil
	}
	ft.cwd = nil
}

// TrapFrame holds the saved user-mode register state ("tf"): opaque to
// scheduling decisions, but the scheduler core itself owns copying and
// relocating it (fork, thread_create), so it is a plain struct rather
// than an opaque handle behind an interface.
type TrapFrame struct {
	EAX, EBX, ECX, EDX uintptr
	ESP, EBP           uintptr
	EIP                uintptr
	EFlags             uintptr
}

// Context holds the saved kernel registers swtch restores when
// resuming a task, minimally the resume address and frame pointer used
// by forkret bootstrapping.
type Context struct {
	EIP uintptr
	EBP uintptr
}

// CPU is mycpu/cpuid/lapicid collapsed to an index plus a nested cli
// depth counter. Go has no interrupt-enable flag to read, so the
// counter is not a real interrupt controller. The scheduler core does
// not call PushCli/PopCli, and sched() does not check the depth: its
// only precondition assertion is that the task is no longer Running.
type CPU struct {
	id       int
	cliDepth int
}

// ID returns this CPU's identity (cpuid/lapicid collapsed to an
// index, since this port has no APIC to enumerate).
func (c *CPU) ID() int { return c.id }

// PushCli/PopCli track nested cli depth; they do not actually disable
// anything.
func (c *CPU) PushCli() { c.cliDepth++ }
func (c *CPU) PopCli()  { c.cliDepth-- }

// CliDepth returns the current nesting level.
func (c *CPU) CliDepth() int { return c.cliDepth }
