// Package sched defines the collaborator interfaces the wait engine
// consumes but does not implement: the thread scheduler (park/unpark of a
// committed-sleeping thread) and the monotonic time source callouts measure
// deadlines against (§6). Both out-of-scope subsystems per spec.md §1; this
// package supplies a default hosted-Go implementation of each so the engine
// is usable standalone.
package sched

import "time"

// Handle is the opaque per-thread token a Scheduler parks and unparks. The
// wait engine never looks inside it; it only ever hands a Scheduler back a
// Handle it itself allocated via NewHandle.
type Handle struct {
	ch chan struct{}
}

// NewHandle allocates a fresh parking token. The engine allocates one per
// thread (in wait.NewThreadState) and reuses it for every wait that thread
// makes.
func NewHandle() *Handle {
	return &Handle{ch: make(chan struct{}, 1)}
}

// Scheduler parks and unparks committed-sleeping threads. Park blocks the
// calling goroutine until a matching Unpark arrives; Unpark must be
// idempotent with respect to a Park that has not yet been called (the
// engine's own CAS discipline guarantees at most one Unpark is ever issued
// per Park, but Scheduler implementations should not assume ordering
// beyond that).
type Scheduler interface {
	Park(h *Handle)
	Unpark(h *Handle)
}

// Goroutine is the default Scheduler: a "thread" is a goroutine and
// park/unpark are a buffered channel, the hosted-Go equivalent of the
// futex/semaphore park-resume pair every runtime in the retrieval pack
// builds this engine on (runtime_Semacquire/Semrelease, tinygo's
// internal/task.Semaphore). The channel's capacity of 1 is exactly enough:
// the engine's CAS discipline guarantees at most one Unpark per Park.
type Goroutine struct{}

func (Goroutine) Park(h *Handle) {
	<-h.ch
}

func (Goroutine) Unpark(h *Handle) {
	select {
	case h.ch <- struct{}{}:
	default:
		// Already has a pending wakeup queued; CAS discipline upstream
		// guarantees this never happens for the same Park, but a second
		// send must never block the signaler holding no object lock.
	}
}

// Clock is the monotonic time source deadlines are measured against.
type Clock interface {
	// Now returns a monotonically increasing nanosecond count.
	Now() int64
}

// Monotonic is the default Clock, backed by time.Since against a fixed
// epoch captured at construction.
type Monotonic struct {
	epoch time.Time
}

func NewMonotonic() *Monotonic {
	return &Monotonic{epoch: time.Now()}
}

func (m *Monotonic) Now() int64 {
	return int64(time.Since(m.epoch))
}
