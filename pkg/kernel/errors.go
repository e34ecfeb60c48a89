package kernel

import "fmt"

// ErrorKind classifies a KernelError.
type ErrorKind int

const (
	// OutOfSlots means the free list was empty (allocproc/thread_create
	// capacity check failed).
	OutOfSlots ErrorKind = iota
	// OutOfMemory means a kernel-stack or page allocation failed.
	OutOfMemory
	// BadArg means an argument was out of its valid range (e.g.
	// set_cpu_share outside [1, 100-RESERVE]).
	BadArg
	// NotFound means a thread_join/futex_wake target did not exist.
	NotFound
	// Killed means the caller or target was in a termination state.
	Killed
	// Invariant means a fatal, unrecoverable violation of a scheduler
	// invariant. KernelErrors of this kind are only ever panic values,
	// never returned.
	Invariant
)

func (k ErrorKind) String() string {
	switch k {
	case OutOfSlots:
		return "out of slots"
	case OutOfMemory:
		return "out of memory"
	case BadArg:
		return "bad argument"
	case NotFound:
		return "not found"
	case Killed:
		return "killed"
	case Invariant:
		return "invariant violated"
	default:
		return "unknown error"
	}
}

// KernelError is the error type every non-fatal kernel operation
// returns. Invariant-kind KernelErrors are panic values instead (see
// kernelLog.Fatalf): invariant violations are fatal, not recoverable.
type KernelError struct {
	Kind ErrorKind
	Msg  string
}

func (e *KernelError) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is supports errors.Is(err, kernel.ErrOutOfSlots) style comparisons:
// any *KernelError target with the same Kind matches.
func (e *KernelError) Is(target error) bool {
	te, ok := target.(*KernelError)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

func errf(kind ErrorKind, format string, args ...any) *KernelError {
	return &KernelError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Sentinel errors for errors.Is comparisons, e.g.
// errors.Is(err, kernel.ErrOutOfSlots).
var (
	ErrOutOfSlots  = &KernelError{Kind: OutOfSlots}
	ErrOutOfMemory = &KernelError{Kind: OutOfMemory}
	ErrBadArg      = &KernelError{Kind: BadArg}
	ErrNotFound    = &KernelError{Kind: NotFound}
	ErrKilled      = &KernelError{Kind: Killed}
)
