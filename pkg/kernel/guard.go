package kernel

import (
	"os"

	"golang.org/x/sys/unix"
)

// PositionalFile is the subset of OpenFile that supports pread/pwrite;
// FileGuard is this module's only implementation.
type PositionalFile interface {
	OpenFile
	PRead(k *Kernel, t *Task, buf []byte, off int64) (int, error)
	PWrite(k *Kernel, t *Task, buf []byte, off int64) (int, error)
}

// FileGuard is a thread-safe file guard: a file descriptor plus an
// rwlock, where PRead takes the read lease and PWrite takes the
// exclusive lease, both delegating to real positional I/O via
// golang.org/x/sys/unix rather than a stdlib ReaderAt/WriterAt shim,
// since the underlying collaborator is explicitly fd-shaped
// (`pread/pwrite(fd, buf, n, off)`).
type FileGuard struct {
	file *os.File
	rw   *RWMutex
}

// NewFileGuard wraps an open file with its own rwlock.
func NewFileGuard(cfg Config, f *os.File) *FileGuard {
	return &FileGuard{file: f, rw: NewRWMutex(cfg)}
}

// PRead takes the read lease, then reads exactly len(buf) bytes (or
// fewer at EOF) from off via unix.Pread.
func (g *FileGuard) PRead(k *Kernel, t *Task, buf []byte, off int64) (int, error) {
	if err := g.rw.RLock(k, t); err != nil {
		return 0, err
	}
	defer g.rw.RUnlock(k, t)

	n, err := unix.Pread(int(g.file.Fd()), buf, off)
	if err != nil {
		return n, errf(BadArg, "pread: %v", err)
	}
	return n, nil
}

// PWrite takes the write lease, then writes len(buf) bytes at off via
// unix.Pwrite.
func (g *FileGuard) PWrite(k *Kernel, t *Task, buf []byte, off int64) (int, error) {
	if err := g.rw.Lock(k, t); err != nil {
		return 0, err
	}
	defer g.rw.Unlock(k, t)

	n, err := unix.Pwrite(int(g.file.Fd()), buf, off)
	if err != nil {
		return n, errf(BadArg, "pwrite: %v", err)
	}
	return n, nil
}

// Dup satisfies the OpenFile collaborator interface: both descriptors
// share the same rwlock, matching xv6's filedup semantics for a
// struct file backed by one underlying fd.
func (g *FileGuard) Dup() OpenFile {
	return &FileGuard{file: g.file, rw: g.rw}
}

// Close releases the underlying descriptor.
func (g *FileGuard) Close() {
	g.file.Close()
}
