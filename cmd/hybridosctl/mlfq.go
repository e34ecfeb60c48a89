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

// mlfqCommand is the Go-native equivalent of mlfqtest.c: spawn a
// handful of purely CPU-bound processes and let the MLFQ demote and
// periodically boost them while the scheduler runs for a bounded
// duration.
type mlfqCommand struct {
	nproc    int
	duration time.Duration
}

func (*mlfqCommand) Name() string     { return "mlfqtest" }
func (*mlfqCommand) Synopsis() string { return "run CPU-bound processes through the MLFQ scheduler" }
func (*mlfqCommand) Usage() string {
	return "mlfqtest [-nproc N] [-duration D]\n"
}

func (c *mlfqCommand) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.nproc, "nproc", 4, "number of CPU-bound processes to spawn")
	f.DurationVar(&c.duration, "duration", 150*time.Millisecond, "how long to run the scheduler before reporting")
}

func (c *mlfqCommand) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	cfg := kernel.DefaultConfig()
	k := kernel.NewKernel(cfg, testkit.NewPageAllocator())
	k.AddCPU()

	var mu sync.Mutex
	loops := make(map[int]int64, c.nproc)

	for i := 0; i < c.nproc; i++ {
		workload := func(k *kernel.Kernel, t *kernel.Task) {
			for {
				mu.Lock()
				loops[k.GetPID(t)]++
				mu.Unlock()
				k.Yield(t)
			}
		}
		if _, err := k.UserInit(testkit.NewAddressSpace(), workload); err != nil {
			fmt.Fprintf(os.Stderr, "userinit: %v\n", err)
			return subcommands.ExitFailure
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, c.duration)
	defer cancel()
	if err := k.Run(runCtx); err != nil && err != context.DeadlineExceeded {
		fmt.Fprintf(os.Stderr, "scheduler: %v\n", err)
		return subcommands.ExitFailure
	}

	mu.Lock()
	result := mlfqResult{Dump: k.Dump(), Loops: loops}
	mu.Unlock()

	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "encoding result: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type mlfqResult struct {
	Dump  []kernel.TaskSnapshot `json:"dump"`
	Loops map[int]int64         `json:"loops"`
}
