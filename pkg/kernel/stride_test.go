package kernel

import "testing"

func newStrideTask(id, pass int) *Task {
	t := &Task{id: id, state: Runnable, pass: pass, typ: StrideType}
	t.thmain = t
	t.groupNext = t
	t.groupPrev = t
	return t
}

func TestPushPopOrdersByPass(t *testing.T) {
	cfg := DefaultConfig()
	s := newStride(cfg)

	a := newStrideTask(1, 30)
	b := newStrideTask(2, 10)
	c := newStrideTask(3, 20)
	s.push(a)
	s.push(b)
	s.push(c)

	var order []int
	for s.len() > 0 {
		order = append(order, s.popMin().id)
	}
	want := []int{2, 3, 1}
	if !intsEqual(order, want) {
		t.Fatalf("popMin order = %v, want %v (ascending pass)", order, want)
	}
}

func TestPeekMinDoesNotRemove(t *testing.T) {
	cfg := DefaultConfig()
	s := newStride(cfg)
	a := newStrideTask(1, 5)
	s.push(a)

	if got := s.peekMin(); got != a {
		t.Fatalf("peekMin() = %v, want %v", got, a)
	}
	if s.len() != 1 {
		t.Fatalf("peekMin must not remove: len = %d, want 1", s.len())
	}
}

func TestMinPassIsMaxIntWhenEmpty(t *testing.T) {
	cfg := DefaultConfig()
	s := newStride(cfg)
	if got := s.minPass(); got != cfg.MaxInt {
		t.Fatalf("minPass() on empty heap = %d, want %d", got, cfg.MaxInt)
	}
}

func TestSetCPUShareRejectsOutOfRange(t *testing.T) {
	cfg := DefaultConfig()
	s := newStride(cfg)
	m := newMLFQ(cfg)
	caller := newSoloTask(0, 0)

	if err := s.setCPUShare(caller, 0, m); err == nil {
		t.Fatalf("setCPUShare(0) must be rejected")
	}
	if err := s.setCPUShare(caller, 100-cfg.Reserve+1, m); err == nil {
		t.Fatalf("setCPUShare(%d) above 100-Reserve must be rejected", 100-cfg.Reserve+1)
	}
}

func TestSetCPUShareAdmitsAndDeductsFromMLFQPool(t *testing.T) {
	cfg := DefaultConfig()
	s := newStride(cfg)
	m := newMLFQ(cfg) // m.tickets starts at 100
	caller := newSoloTask(0, 0)

	if err := s.setCPUShare(caller, 30, m); err != nil {
		t.Fatalf("setCPUShare(30): %v", err)
	}
	if caller.typ != StrideType {
		t.Fatalf("admitted caller must become a stride participant")
	}
	if caller.tickets != 30 {
		t.Fatalf("caller.tickets = %d, want 30", caller.tickets)
	}
	if m.tickets != 70 {
		t.Fatalf("mlfq pool tickets = %d, want 70", m.tickets)
	}
	if s.len() != 0 || s.running.Front() != caller {
		t.Fatalf("admitted caller must be put on the stride running list, not the heap")
	}
}

func TestSetCPUShareRejectsWhenPoolWouldDropBelowReserve(t *testing.T) {
	cfg := DefaultConfig()
	s := newStride(cfg)
	m := newMLFQ(cfg)
	m.tickets = cfg.Reserve + 5 // only just above reserve
	caller := newSoloTask(0, 0)

	if err := s.setCPUShare(caller, 10, m); err == nil {
		t.Fatalf("setCPUShare must fail when it would drop the mlfq pool below Reserve")
	}
}

func TestSetCPUShareAdjustsExistingParticipant(t *testing.T) {
	cfg := DefaultConfig()
	s := newStride(cfg)
	m := newMLFQ(cfg)
	caller := newSoloTask(0, 0)

	if err := s.setCPUShare(caller, 30, m); err != nil {
		t.Fatalf("first setCPUShare: %v", err)
	}
	if err := s.setCPUShare(caller, 10, m); err != nil {
		t.Fatalf("second setCPUShare: %v", err)
	}
	if caller.tickets != 10 {
		t.Fatalf("caller.tickets after re-share = %d, want 10", caller.tickets)
	}
	if m.tickets != 90 {
		t.Fatalf("mlfq pool tickets after re-share = %d, want 90 (30 returned, 10 taken)", m.tickets)
	}
	if s.len() != 0 || s.running.Front() != caller || s.running.Back() != caller {
		t.Fatalf("re-sharing an existing participant must not add a second stride entry, heap len = %d", s.len())
	}
}

func TestSelectNextRequiresStrictlyLessPass(t *testing.T) {
	cfg := DefaultConfig()
	s := newStride(cfg)
	m := newMLFQ(cfg)
	m.pass = 100

	lower := newStrideTask(1, 50)
	s.push(lower)
	if got := s.selectNext(m); got != lower {
		t.Fatalf("selectNext must return the stride group when its pass is strictly less than the pool's")
	}
	if s.running.Front() != lower {
		t.Fatalf("selected group must be moved onto the running list")
	}

	s2 := newStride(cfg)
	higher := newStrideTask(2, 200)
	s2.push(higher)
	if got := s2.selectNext(m); got != nil {
		t.Fatalf("selectNext must return nil when the stride minimum is not strictly less than the pool's pass")
	}
}

func TestOnReturnAdvancesStrideParticipantPass(t *testing.T) {
	cfg := DefaultConfig()
	s := newStride(cfg)
	m := newMLFQ(cfg)

	task := newStrideTask(1, 0)
	task.tickets = 10
	s.running.PushBack(task)

	s.onReturn(task, m)

	wantDelta := cfg.stride(10)
	if task.pass != wantDelta {
		t.Fatalf("task.pass = %d, want %d", task.pass, wantDelta)
	}
	if s.len() != 1 || s.peekMin() != task {
		t.Fatalf("onReturn must reinsert the Runnable participant into the heap")
	}
}

func TestOnReturnAdvancesMLFQPoolPassWhenMLFQRan(t *testing.T) {
	cfg := DefaultConfig()
	s := newStride(cfg)
	m := newMLFQ(cfg) // m.tickets == 100

	mlfqTask := newSoloTask(1, 0)
	mlfqTask.typ = MLFQType

	s.onReturn(mlfqTask, m)

	if want := cfg.stride(m.tickets); m.pass != want {
		t.Fatalf("mlfq.pass = %d, want %d", m.pass, want)
	}
}

func TestRenormalizeSubtractsOverflow(t *testing.T) {
	cfg := DefaultConfig()
	s := newStride(cfg)
	m := newMLFQ(cfg)

	over := cfg.Barrier + 1000
	task := newStrideTask(1, over)
	s.push(task)
	m.pass = over + 500

	s.renormalize(m)

	if task.pass != 0 {
		t.Fatalf("task.pass after renormalize = %d, want 0", task.pass)
	}
	if m.pass != 500 {
		t.Fatalf("mlfq.pass after renormalize = %d, want 500", m.pass)
	}
}

func TestRenormalizeNoOpBelowBarrier(t *testing.T) {
	cfg := DefaultConfig()
	s := newStride(cfg)
	m := newMLFQ(cfg)
	m.pass = 100

	task := newStrideTask(1, 50)
	s.push(task)

	s.renormalize(m)

	if task.pass != 50 || m.pass != 100 {
		t.Fatalf("renormalize must not fire below Barrier: task.pass=%d mlfq.pass=%d", task.pass, m.pass)
	}
}

func TestRemoveFromHeapDropsParticipant(t *testing.T) {
	cfg := DefaultConfig()
	s := newStride(cfg)

	a := newStrideTask(1, 10)
	b := newStrideTask(2, 20)
	c := newStrideTask(3, 30)
	s.push(a)
	s.push(b)
	s.push(c)

	s.removeFromHeap(b)

	if b.heapIndex != 0 {
		t.Fatalf("removed task's heapIndex must reset to 0, got %d", b.heapIndex)
	}
	if s.len() != 2 {
		t.Fatalf("len after removal = %d, want 2", s.len())
	}
	var order []int
	for s.len() > 0 {
		order = append(order, s.popMin().id)
	}
	want := []int{1, 3}
	if !intsEqual(order, want) {
		t.Fatalf("remaining heap order = %v, want %v", order, want)
	}
}
