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

// rwCommand is the Go-native equivalent of test_prw.c: several
// sibling threads hammer disjoint byte ranges of the same file
// through one thread_safe_guard-backed descriptor, proving pread/
// pwrite stay atomic with respect to each other.
type rwCommand struct {
	nthreads  int
	blockSize int
}

const rwFD = 3

func (*rwCommand) Name() string     { return "rw" }
func (*rwCommand) Synopsis() string { return "exercise FileGuard pread/pwrite across sibling threads" }
func (*rwCommand) Usage() string {
	return "rw [-n N] [-blocksize B]\n"
}

func (c *rwCommand) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.nthreads, "n", 4, "number of threads, each writing then reading back its own block")
	f.IntVar(&c.blockSize, "blocksize", 64, "bytes each thread writes and reads back")
}

func (c *rwCommand) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	tmp, err := os.CreateTemp("", "hybridosctl-rw-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp file: %v\n", err)
		return subcommands.ExitFailure
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	size := c.nthreads * c.blockSize
	if err := tmp.Truncate(int64(size)); err != nil {
		fmt.Fprintf(os.Stderr, "truncate: %v\n", err)
		return subcommands.ExitFailure
	}

	cfg := kernel.DefaultConfig()
	k := kernel.NewKernel(cfg, testkit.NewPageAllocator())
	k.AddCPU()

	guard := kernel.NewFileGuard(cfg, tmp)

	var mu sync.Mutex
	var mismatches []string

	main := func(k *kernel.Kernel, t *kernel.Task) {
		if err := k.InstallFD(t, rwFD, guard); err != nil {
			mu.Lock()
			mismatches = append(mismatches, fmt.Sprintf("install_fd: %v", err))
			mu.Unlock()
			return
		}

		tids := make([]int, 0, c.nthreads)
		for i := 0; i < c.nthreads; i++ {
			i := i
			childWorkload := func(k *kernel.Kernel, th *kernel.Task) {
				off := int64(i * c.blockSize)
				want := make([]byte, c.blockSize)
				for j := range want {
					want[j] = byte(i)
				}
				if _, err := k.PWrite(th, rwFD, want, off); err != nil {
					mu.Lock()
					mismatches = append(mismatches, fmt.Sprintf("pwrite[%d]: %v", i, err))
					mu.Unlock()
					return
				}

				got := make([]byte, c.blockSize)
				if _, err := k.PRead(th, rwFD, got, off); err != nil {
					mu.Lock()
					mismatches = append(mismatches, fmt.Sprintf("pread[%d]: %v", i, err))
					mu.Unlock()
					return
				}
				for j := range got {
					if got[j] != want[j] {
						mu.Lock()
						mismatches = append(mismatches, fmt.Sprintf("block %d byte %d: got %d want %d", i, j, got[j], want[j]))
						mu.Unlock()
						return
					}
				}
			}
			tid, err := k.ThreadCreate(t, 0, uintptr(i), childWorkload)
			if err != nil {
				mu.Lock()
				mismatches = append(mismatches, fmt.Sprintf("thread_create(%d): %v", i, err))
				mu.Unlock()
				continue
			}
			tids = append(tids, tid)
		}
		for _, tid := range tids {
			if _, err := k.ThreadJoin(t, tid); err != nil {
				mu.Lock()
				mismatches = append(mismatches, fmt.Sprintf("thread_join(%d): %v", tid, err))
				mu.Unlock()
			}
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
	result := rwResult{BlocksChecked: c.nthreads, Mismatches: mismatches}
	mu.Unlock()

	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "encoding result: %v\n", err)
		return subcommands.ExitFailure
	}
	if len(mismatches) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type rwResult struct {
	BlocksChecked int      `json:"blocksChecked"`
	Mismatches    []string `json:"mismatches,omitempty"`
}
