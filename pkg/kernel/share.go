package kernel

// SetCPUShare admits (or keeps) the caller's thread group as a stride
// participant with the given ticket share.
func (k *Kernel) SetCPUShare(caller *Task, pct int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.strideQ.setCPUShare(caller, pct, k.mlfqQ)
}

// PRead delegates to the open file's PositionalFile guard if it has
// one.
func (k *Kernel) PRead(t *Task, fd int, buf []byte, off int64) (int, error) {
	f, err := k.lookupPositional(t, fd)
	if err != nil {
		return 0, err
	}
	return f.PRead(k, t, buf, off)
}

// PWrite delegates to the open file's PositionalFile guard if it has
// one.
func (k *Kernel) PWrite(t *Task, fd int, buf []byte, off int64) (int, error) {
	f, err := k.lookupPositional(t, fd)
	if err != nil {
		return 0, err
	}
	return f.PWrite(k, t, buf, off)
}

// InstallFD places f at descriptor fd in t's file table. Scheduler
// operations never call this themselves — it exists for the external
// open()-equivalent collaborator to hand a freshly opened
// PositionalFile to a task under the table lock, the way tests and
// hybridosctl's rw demo wire up a FileGuard.
func (k *Kernel) InstallFD(t *Task, fd int, f OpenFile) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return t.files.SetFD(fd, f)
}

func (k *Kernel) lookupPositional(t *Task, fd int) (PositionalFile, error) {
	if fd < 0 || fd >= NOFILE {
		return nil, errf(BadArg, "fd %d out of range", fd)
	}
	k.mu.Lock()
	of := t.files.files[fd]
	k.mu.Unlock()
	if of == nil {
		return nil, errf(BadArg, "fd %d not open", fd)
	}
	f, ok := of.(PositionalFile)
	if !ok {
		return nil, errf(BadArg, "fd %d does not support positional I/O", fd)
	}
	return f, nil
}
