package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/subcommands"

	"hybridos.dev/kernel/pkg/kernel"
	"hybridos.dev/kernel/pkg/kernel/testkit"
)

// strideCommand is the Go-native equivalent of stridetest.c: admit a
// few processes as stride participants at different ticket shares
// alongside an ordinary MLFQ process, and report how closely their
// observed run counts track the requested ratio.
type strideCommand struct {
	shares   string
	duration time.Duration
}

func (*strideCommand) Name() string { return "stridetest" }
func (*strideCommand) Synopsis() string {
	return "admit processes as stride participants and measure CPU share"
}
func (*strideCommand) Usage() string {
	return "stridetest [-shares 10,20,30] [-duration D]\n"
}

func (c *strideCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.shares, "shares", "20,30", "comma-separated cpu_share percentages, one stride process per entry")
	f.DurationVar(&c.duration, "duration", 150*time.Millisecond, "how long to run the scheduler before reporting")
}

func (c *strideCommand) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	shares, err := parseShares(c.shares)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return subcommands.ExitUsageError
	}

	cfg := kernel.DefaultConfig()
	k := kernel.NewKernel(cfg, testkit.NewPageAllocator())
	k.AddCPU()

	var mu sync.Mutex
	loops := make(map[int]int64, len(shares)+1)

	mlfqWorkload := func(k *kernel.Kernel, t *kernel.Task) {
		for {
			mu.Lock()
			loops[k.GetPID(t)]++
			mu.Unlock()
			k.Yield(t)
		}
	}
	if _, err := k.UserInit(testkit.NewAddressSpace(), mlfqWorkload); err != nil {
		fmt.Fprintf(os.Stderr, "userinit: %v\n", err)
		return subcommands.ExitFailure
	}

	for _, share := range shares {
		share := share
		workload := func(k *kernel.Kernel, t *kernel.Task) {
			if err := k.SetCPUShare(t, share); err != nil {
				fmt.Fprintf(os.Stderr, "set_cpu_share(%d): %v\n", share, err)
				return
			}
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
	result := strideResult{Shares: shares, Loops: loops}
	mu.Unlock()

	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "encoding result: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type strideResult struct {
	Shares []int         `json:"requestedShares"`
	Loops  map[int]int64 `json:"loops"`
}

func parseShares(s string) ([]int, error) {
	var out []int
	for _, field := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("share %q: %w", field, err)
		}
		out = append(out, n)
	}
	return out, nil
}
