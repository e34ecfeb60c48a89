package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/subcommands"

	"hybridos.dev/kernel/pkg/kernel"
	"hybridos.dev/kernel/pkg/kernel/testkit"
)

// threadsCommand is the Go-native equivalent of uthread.c: a main
// thread creates several sibling threads, each records its own
// contribution, and the main thread joins every one of them before
// reporting the merged result.
type threadsCommand struct {
	nthreads int
}

func (*threadsCommand) Name() string     { return "threads" }
func (*threadsCommand) Synopsis() string { return "exercise thread_create/thread_join within one process" }
func (*threadsCommand) Usage() string {
	return "threads [-n N]\n"
}

func (c *threadsCommand) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.nthreads, "n", 4, "number of sibling threads to create")
}

func (c *threadsCommand) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	cfg := kernel.DefaultConfig()
	k := kernel.NewKernel(cfg, testkit.NewPageAllocator())
	k.AddCPU()

	var mu sync.Mutex
	contributions := make(map[int]int, c.nthreads)
	var joined []int
	var joinErrs []string

	main := func(k *kernel.Kernel, t *kernel.Task) {
		tids := make([]int, 0, c.nthreads)
		for i := 0; i < c.nthreads; i++ {
			i := i
			childWorkload := func(k *kernel.Kernel, th *kernel.Task) {
				mu.Lock()
				contributions[k.GetTID(th)] = i * i
				mu.Unlock()
			}
			tid, err := k.ThreadCreate(t, 0, uintptr(i), childWorkload)
			if err != nil {
				mu.Lock()
				joinErrs = append(joinErrs, fmt.Sprintf("thread_create(%d): %v", i, err))
				mu.Unlock()
				continue
			}
			tids = append(tids, tid)
		}
		for _, tid := range tids {
			if _, err := k.ThreadJoin(t, tid); err != nil {
				mu.Lock()
				joinErrs = append(joinErrs, fmt.Sprintf("thread_join(%d): %v", tid, err))
				mu.Unlock()
				continue
			}
			mu.Lock()
			joined = append(joined, tid)
			mu.Unlock()
		}
	}

	if _, err := k.UserInit(testkit.NewAddressSpace(), main); err != nil {
		fmt.Fprintf(os.Stderr, "userinit: %v\n", err)
		return subcommands.ExitFailure
	}

	runCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := k.Run(runCtx); err != nil && err != context.DeadlineExceeded {
		fmt.Fprintf(os.Stderr, "scheduler: %v\n", err)
		return subcommands.ExitFailure
	}

	mu.Lock()
	result := threadsResult{Contributions: contributions, Joined: joined, Errors: joinErrs}
	mu.Unlock()

	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "encoding result: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type threadsResult struct {
	Contributions map[int]int `json:"contributions"`
	Joined        []int       `json:"joined"`
	Errors        []string    `json:"errors,omitempty"`
}
