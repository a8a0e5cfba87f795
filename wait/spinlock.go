package wait

import (
	"runtime"
	"sync/atomic"
)

// spinlock is the lock type named throughout spec.md §3/§5: the only
// serialization point for an Object's ready_count/waitq, or for a
// ThreadState's commit-vs-wake bookkeeping. Never held across a park call.
//
// Grounded on the portable spinlock other kernels in the retrieval pack use
// when they can't reach into the runtime's own (unexported) spinlock, e.g.
// gopher-os's Spinlock and the Go runtime's own mutex fast path
// (CompareAndSwap, then yield and retry) rather than sync.Mutex, since the
// spec is explicit that these are spinlocks, not blocking locks.
type spinlock struct {
	state uint32
}

func (l *spinlock) Lock() {
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		runtime.Gosched()
	}
}

func (l *spinlock) Unlock() {
	atomic.StoreUint32(&l.state, 0)
}
