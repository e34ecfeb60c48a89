package kernel

// fakePageAllocator backs the handful of in-package tests that need a
// real *Kernel (for its futex table and lock) but never dispatch a
// task through the scheduler loop, so a trivial allocator suffices.
type fakePageAllocator struct{}

func (fakePageAllocator) Alloc() ([]byte, error) { return make([]byte, 64), nil }
func (fakePageAllocator) Free([]byte)            {}

func newTestKernel() *Kernel {
	return NewKernel(DefaultConfig(), fakePageAllocator{})
}

// fakeAddrSpace backs the handful of in-package tests that need a real
// *Task flowing through UserInit/Fork/ThreadCreate without a real
// virtual-memory subsystem.
type fakeAddrSpace struct{}

func (fakeAddrSpace) Fork() (AddressSpace, error)              { return fakeAddrSpace{}, nil }
func (fakeAddrSpace) Size() int                                { return 0 }
func (fakeAddrSpace) Grow(delta int) error                     { return nil }
func (fakeAddrSpace) Shrink(delta int) error                   { return nil }
func (fakeAddrSpace) NewUserStack(base, size int) (int, error) { return base - size, nil }
func (fakeAddrSpace) FreeUserStack(base int)                   {}
func (fakeAddrSpace) Switch()                                  {}
func (fakeAddrSpace) InvalidateTLB()                           {}
func (fakeAddrSpace) Release()                                 {}
