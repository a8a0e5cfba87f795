package wait

import (
	"log"
	"sync/atomic"

	"synch/defs"
	"synch/sched"
)

// synchStatus is the single atomic word from §5: manipulated exclusively
// by compare-and-swap, with exactly three legal transitions (preWait ->
// postWait, preWait -> waitAsleep, waitAsleep -> postWait). Named
// "waitAsleep" rather than spec.md's bare WAIT to avoid colliding with the
// package-level Wait1/Waitn identifiers. Aliased to int32, not a distinct
// defined type, so it can be passed directly to sync/atomic's Int32 ops.
type synchStatus = int32

const (
	preWait synchStatus = iota
	waitAsleep
	postWait
)

// schedState mirrors biscuit's Proc_t/Tnote_t notion of a thread's coarse
// run state; the engine only ever sets it to schedRunning or
// schedSleeping around the Phase C park.
type schedState int32

const (
	schedRunning schedState = iota
	schedSleeping
)

// ThreadState is the per-thread control block from §3: the atomic wait
// status, a spinlock serializing commit against wake, a small inline pool
// of wait blocks (heap spill beyond InlineWaitBlocks), and the satisfier
// back-pointer a signaler (or the thread itself, on early satisfaction)
// sets. Shaped after biscuit's tinfo.Tnote_t: every thread that intends to
// call Wait1/Waitn owns exactly one of these, for its whole lifetime.
type ThreadState struct {
	synchStatus synchStatus
	lock        spinlock

	schedState schedState
	scheduler  sched.Scheduler
	handle     *sched.Handle
	clock      sched.Clock

	wbInline [defs.InlineWaitBlocks]WaitBlock
	wbExtra  []WaitBlock

	satisfier *Object

	// killEvent is the per-thread "kill" event implicitly added to every
	// interruptible wait set (§5 Cancellation). Terminate signals it;
	// Waitn reports EINTR when it is the satisfier.
	killEvent *Object
}

// NewThreadState allocates a control block for one kernel thread. scheduler
// and clock may be nil, in which case sched.Goroutine{} (goroutine-based
// park/unpark) and a fresh sched.Monotonic are used.
func NewThreadState(scheduler sched.Scheduler, clock sched.Clock) *ThreadState {
	if scheduler == nil {
		scheduler = sched.Goroutine{}
	}
	if clock == nil {
		clock = sched.NewMonotonic()
	}
	return &ThreadState{
		scheduler: scheduler,
		clock:     clock,
		handle:    sched.NewHandle(),
		killEvent: NewEvent(),
	}
}

// Now returns the current time on t's clock, in the same units Waitn's
// deadline parameter expects. Callers compute deadlines as t.Now() plus an
// offset rather than using wall-clock time directly, since a ThreadState's
// clock need not be wall-clock based (§6: "the same time source used by
// callouts").
func (t *ThreadState) Now() defs.Abstime {
	return defs.Abstime(t.clock.Now())
}

// Terminate injects the synthetic cancellation signal §5 describes: any
// interruptible wait t is currently blocked in (or later starts) observes
// its kill event as satisfied, reported as EINTR.
func (t *ThreadState) Terminate() {
	EventSignal(t.killEvent)
}

// unpark is called by a signaler that just CAS'd t from waitAsleep to
// postWait (drainLocked), after releasing the object lock. The thread lock
// here is the "short critical section under the thread's lock" §3/§5
// describe: it serializes this call against a concurrent Phase C commit
// that might otherwise park after the signaler already decided to wake it.
func (t *ThreadState) unpark() {
	t.lock.Lock()
	t.scheduler.Unpark(t.handle)
	t.lock.Unlock()
}

// commit is Phase C (§4.3): having failed to be satisfied during
// preparation, the thread attempts to commit to sleep. The thread lock
// serializes this against a signaler that has already CAS'd this thread to
// postWait but not yet parked/unparked it: if the signaler won the race,
// this CAS fails and commit returns immediately without sleeping; if this
// thread wins, it sleeps and waits to be unparked.
func (t *ThreadState) commit() {
	t.lock.Lock()
	if atomic.CompareAndSwapInt32(&t.synchStatus, preWait, waitAsleep) {
		t.schedState = schedSleeping
		t.lock.Unlock()

		t.scheduler.Park(t.handle)

		t.lock.Lock()
		t.schedState = schedRunning
	}
	t.lock.Unlock()
}

// blocks returns a slice of n WaitBlock pointers drawn from the
// inline pool, spilling to a freshly allocated slice if more than
// InlineWaitBlocks are needed. Must only be called by the owning thread,
// and only while no earlier wait call's blocks are still in use.
func (t *ThreadState) blocks(n int) []*WaitBlock {
	if n <= 0 {
		log.Panicf("synch: wait on zero objects")
	}
	out := make([]*WaitBlock, n)
	if n <= defs.InlineWaitBlocks {
		for i := 0; i < n; i++ {
			out[i] = &t.wbInline[i]
		}
		return out
	}
	t.wbExtra = make([]WaitBlock, n)
	for i := 0; i < n; i++ {
		out[i] = &t.wbExtra[i]
	}
	return out
}
