package kernel

import (
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
)

// Semaphore is a counting semaphore: a test-and-set guard, a count,
// and a FIFO ring of waiter tids (bounded capacity) parked via the
// futex primitives in futex.go.
type Semaphore struct {
	guard int32 // 0 = free, 1 = held; swapped with atomic.CompareAndSwap

	count int32

	waiters []int
	head    int
	tail    int
	n       int
}

// NewSemaphore returns a semaphore initialized to count, with a
// waiter ring sized per cfg.XemQSZ.
func NewSemaphore(cfg Config, count int) *Semaphore {
	return &Semaphore{
		count:   int32(count),
		waiters: make([]int, cfg.XemQSZ),
	}
}

// lockGuard spins on the test-and-set word, backing off exponentially
// instead of xv6's "sleep 1 tick every SLEEPTIME iterations" raw spin
// loop.
func (s *Semaphore) lockGuard() {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Microsecond
	b.MaxInterval = 2 * time.Millisecond
	b.MaxElapsedTime = 0
	for !atomic.CompareAndSwapInt32(&s.guard, 0, 1) {
		time.Sleep(b.NextBackOff())
	}
}

func (s *Semaphore) unlockGuard() {
	atomic.StoreInt32(&s.guard, 0)
}

// Wait spins to acquire the guard and decrements count; if the result
// is still >=0, the caller proceeds immediately, else it enqueues its
// own tid and futex_waits on its ring slot.
func (s *Semaphore) Wait(k *Kernel, t *Task) error {
	s.lockGuard()
	s.count--
	if s.count >= 0 {
		s.unlockGuard()
		return nil
	}
	if s.n >= len(s.waiters) {
		s.count++
		s.unlockGuard()
		return errf(OutOfSlots, "semaphore: waiter ring full")
	}
	s.waiters[s.tail] = t.tid
	s.tail = (s.tail + 1) % len(s.waiters)
	s.n++
	s.unlockGuard()

	return k.FutexWait(t, s, t.tid)
}

// Signal acquires the guard, increments count, and if a waiter is
// queued, dequeues and futex_wakes it.
func (s *Semaphore) Signal(k *Kernel, t *Task) {
	s.lockGuard()
	s.count++
	var wtid int
	woke := false
	if s.n > 0 {
		wtid = s.waiters[s.head]
		s.head = (s.head + 1) % len(s.waiters)
		s.n--
		woke = true
	}
	s.unlockGuard()

	if woke {
		k.FutexWake(t, s, wtid)
	}
}
