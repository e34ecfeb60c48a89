package kernel_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"hybridos.dev/kernel/pkg/kernel"
	"hybridos.dev/kernel/pkg/kernel/testkit"
)

// runUntilDone starts k's single CPU loop, waits for done to close (the
// test workload's own signal that it finished its assertions), then
// cancels the scheduler and asserts it shut down cleanly.
func runUntilDone(t *testing.T, k *kernel.Kernel, done <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- k.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("workload did not complete within the test timeout")
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			t.Fatalf("Run returned an unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler loop did not shut down after cancel")
	}
}

func TestUserInitExitsAndBecomesZombie(t *testing.T) {
	k := kernel.NewKernel(kernel.DefaultConfig(), testkit.NewPageAllocator())
	k.AddCPU()

	done := make(chan struct{})
	var ranWorkload bool
	var mu sync.Mutex

	workload := func(k *kernel.Kernel, t *kernel.Task) {
		mu.Lock()
		ranWorkload = true
		mu.Unlock()
		close(done)
	}

	main, err := k.UserInit(testkit.NewAddressSpace(), workload)
	if err != nil {
		t.Fatalf("UserInit: %v", err)
	}

	runUntilDone(t, k, done)

	mu.Lock()
	defer mu.Unlock()
	if !ranWorkload {
		t.Fatalf("workload never ran")
	}

	var found *kernel.TaskSnapshot
	for _, snap := range k.Dump() {
		snap := snap
		if snap.PID == k.GetPID(main) {
			found = &snap
		}
	}
	if found == nil {
		t.Fatalf("main task missing from Dump() after falling off its workload")
	}
	if found.State != "zombie" {
		t.Fatalf("main task state = %q, want \"zombie\" (no parent ever reaps init)", found.State)
	}
}

func TestForkChildExitWaitReapsIt(t *testing.T) {
	k := kernel.NewKernel(kernel.DefaultConfig(), testkit.NewPageAllocator())
	k.AddCPU()

	done := make(chan struct{})
	var mu sync.Mutex
	var childPID, waitedPID int
	var waitErr error

	childWorkload := func(k *kernel.Kernel, t *kernel.Task) {}

	parentWorkload := func(k *kernel.Kernel, t *kernel.Task) {
		pid, err := k.Fork(t, childWorkload)
		if err != nil {
			mu.Lock()
			waitErr = err
			mu.Unlock()
			close(done)
			return
		}
		mu.Lock()
		childPID = pid
		mu.Unlock()

		pid2, err := k.Wait(t)
		mu.Lock()
		waitedPID, waitErr = pid2, err
		mu.Unlock()
		close(done)
	}

	if _, err := k.UserInit(testkit.NewAddressSpace(), parentWorkload); err != nil {
		t.Fatalf("UserInit: %v", err)
	}

	runUntilDone(t, k, done)

	mu.Lock()
	defer mu.Unlock()
	if waitErr != nil {
		t.Fatalf("fork/wait failed: %v", waitErr)
	}
	if waitedPID != childPID {
		t.Fatalf("Wait() returned pid %d, want the forked child's pid %d", waitedPID, childPID)
	}
}

func TestThreadCreateJoinCollectsResults(t *testing.T) {
	k := kernel.NewKernel(kernel.DefaultConfig(), testkit.NewPageAllocator())
	k.AddCPU()

	const n = 3
	done := make(chan struct{})
	var mu sync.Mutex
	contributions := make(map[int]int)
	var joinErrs []error

	mainWorkload := func(k *kernel.Kernel, t *kernel.Task) {
		tids := make([]int, 0, n)
		for i := 0; i < n; i++ {
			i := i
			childWorkload := func(k *kernel.Kernel, th *kernel.Task) {
				mu.Lock()
				contributions[k.GetTID(th)] = i
				mu.Unlock()
			}
			tid, err := k.ThreadCreate(t, 0, uintptr(i), childWorkload)
			if err != nil {
				mu.Lock()
				joinErrs = append(joinErrs, err)
				mu.Unlock()
				continue
			}
			tids = append(tids, tid)
		}
		for _, tid := range tids {
			if _, err := k.ThreadJoin(t, tid); err != nil {
				mu.Lock()
				joinErrs = append(joinErrs, err)
				mu.Unlock()
			}
		}
		close(done)
	}

	if _, err := k.UserInit(testkit.NewAddressSpace(), mainWorkload); err != nil {
		t.Fatalf("UserInit: %v", err)
	}

	runUntilDone(t, k, done)

	mu.Lock()
	defer mu.Unlock()
	if len(joinErrs) != 0 {
		t.Fatalf("thread_create/thread_join errors: %v", joinErrs)
	}
	if len(contributions) != n {
		t.Fatalf("got %d contributions, want %d", len(contributions), n)
	}
}

func TestKillWakesSleepingChildBeforeReap(t *testing.T) {
	k := kernel.NewKernel(kernel.DefaultConfig(), testkit.NewPageAllocator())
	k.AddCPU()

	done := make(chan struct{})
	var mu sync.Mutex
	var childSawKilled bool
	var waitErr error
	var waitedPID, childPID int

	childWorkload := func(k *kernel.Kernel, t *kernel.Task) {
		k.Sleep(t, "wait-for-kill")
		mu.Lock()
		childSawKilled = k.Killed(t)
		mu.Unlock()
	}

	parentWorkload := func(k *kernel.Kernel, t *kernel.Task) {
		pid, err := k.Fork(t, childWorkload)
		if err != nil {
			mu.Lock()
			waitErr = err
			mu.Unlock()
			close(done)
			return
		}
		mu.Lock()
		childPID = pid
		mu.Unlock()

		// Give the child a chance to reach its Sleep call before it is
		// killed.
		k.Yield(t)
		k.Yield(t)

		if err := k.Kill(childPID); err != nil {
			mu.Lock()
			waitErr = err
			mu.Unlock()
			close(done)
			return
		}

		pid2, err := k.Wait(t)
		mu.Lock()
		waitedPID, waitErr = pid2, err
		mu.Unlock()
		close(done)
	}

	if _, err := k.UserInit(testkit.NewAddressSpace(), parentWorkload); err != nil {
		t.Fatalf("UserInit: %v", err)
	}

	runUntilDone(t, k, done)

	mu.Lock()
	defer mu.Unlock()
	if waitErr != nil {
		t.Fatalf("kill/wait sequence failed: %v", waitErr)
	}
	if waitedPID != childPID {
		t.Fatalf("Wait() returned pid %d, want the killed child's pid %d", waitedPID, childPID)
	}
	if !childSawKilled {
		t.Fatalf("child must observe its own killed flag once kill() forces it awake")
	}
}
