package kernel

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// kernelLog is the narrow logging surface of the scheduler core:
// Tracef, Warnf, and a Fatalf that panics for invariant violations. A
// terse, single-purpose logger wrapper around logrus rather than
// calling it directly everywhere. Only Fatalf has call sites in the
// scheduler core; rejected admission/join/kill is reported through
// returned errors, not logged.
type kernelLog struct {
	l *logrus.Logger
}

func newKernelLog() *kernelLog {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return &kernelLog{l: l}
}

func (k *kernelLog) Tracef(format string, args ...any) {
	k.l.Tracef(format, args...)
}

func (k *kernelLog) Warnf(format string, args ...any) {
	k.l.Warnf(format, args...)
}

// Fatalf logs at error level and panics, the kernel's response to an
// Invariant violation: a fatal condition with no defined recovery.
func (k *kernelLog) Fatalf(format string, args ...any) {
	k.l.Errorf(format, args...)
	panic(&KernelError{Kind: Invariant, Msg: fmt.Sprintf(format, args...)})
}
