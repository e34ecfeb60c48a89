// Package testkit provides minimal in-memory implementations of the
// external collaborator interfaces pkg/kernel/collab.go declares
// (AddressSpace, PageAllocator, OpenFile, Inode). A real port would
// wire these to actual paging, context-switch, and filesystem code;
// this package stands in for that so the scheduler core can be
// exercised end-to-end by tests and the hybridosctl CLI demo.
package testkit

import (
	"sync"

	"hybridos.dev/kernel/pkg/kernel"
)

// PageSize is this package's stand-in for a hardware page.
const PageSize = 4096

// PageAllocator is an unbounded in-memory kalloc/kfree: every Alloc
// returns a fresh zeroed page-sized slice; Free is a no-op since Go's
// garbage collector reclaims it.
type PageAllocator struct{}

func NewPageAllocator() *PageAllocator { return &PageAllocator{} }

func (PageAllocator) Alloc() ([]byte, error) { return make([]byte, PageSize), nil }
func (PageAllocator) Free([]byte)            {}

// AddressSpace is an in-memory stand-in for setupkvm/copyuvm/
// inituvm/allocuvm/deallocuvm/allocustack/deallocustack/freevm/
// switchuvm/invalidate_tlb: it tracks only the break size and the set
// of allocated user-stack bases, with no real page tables.
type AddressSpace struct {
	mu     sync.Mutex
	size   int
	stacks map[int]int // base -> size
	freed  bool
}

func NewAddressSpace() *AddressSpace {
	return &AddressSpace{stacks: make(map[int]int)}
}

func (a *AddressSpace) Fork() (kernel.AddressSpace, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	clone := &AddressSpace{size: a.size, stacks: make(map[int]int, len(a.stacks))}
	for base, size := range a.stacks {
		clone.stacks[base] = size
	}
	return clone, nil
}

func (a *AddressSpace) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}

func (a *AddressSpace) Grow(delta int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.size += delta
	return nil
}

func (a *AddressSpace) Shrink(delta int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if delta > a.size {
		delta = a.size
	}
	a.size -= delta
	return nil
}

func (a *AddressSpace) NewUserStack(base, size int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	newBase := base - size - PageSize
	a.stacks[newBase] = size
	return newBase, nil
}

func (a *AddressSpace) FreeUserStack(base int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.stacks, base)
}

func (a *AddressSpace) Switch()         {}
func (a *AddressSpace) InvalidateTLB()  {}

func (a *AddressSpace) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freed = true
	a.stacks = nil
}

// Inode is a minimal refcounted cwd stand-in for idup/iput.
type Inode struct {
	mu   *sync.Mutex
	refs *int
	Name string
}

func NewInode(name string) *Inode {
	return &Inode{mu: &sync.Mutex{}, refs: new(int), Name: name}
}

func (i *Inode) Dup() kernel.Inode {
	i.mu.Lock()
	defer i.mu.Unlock()
	*i.refs++
	return &Inode{mu: i.mu, refs: i.refs, Name: i.Name}
}

func (i *Inode) Put() {
	i.mu.Lock()
	defer i.mu.Unlock()
	*i.refs--
}

// OpenFile is a minimal refcounted filedup/fileclose stand-in backed
// by an in-memory byte buffer.
type OpenFile struct {
	mu     *sync.Mutex
	refs   *int
	buf    *[]byte
	closed *bool
}

func NewOpenFile() *OpenFile {
	buf := make([]byte, 0)
	return &OpenFile{mu: &sync.Mutex{}, refs: new(int), buf: &buf, closed: new(bool)}
}

func (f *OpenFile) Dup() kernel.OpenFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.refs++
	return &OpenFile{mu: f.mu, refs: f.refs, buf: f.buf, closed: f.closed}
}

func (f *OpenFile) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if *f.refs > 0 {
		*f.refs--
		return
	}
	*f.closed = true
}

// Write appends to the in-memory buffer, for tests driving PRead/
// PWrite-less scenarios that only need a minimal OpenFile.
func (f *OpenFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.buf = append(*f.buf, p...)
	return len(p), nil
}
