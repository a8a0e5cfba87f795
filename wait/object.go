package wait

import (
	"log"

	"synch/defs"
)

// Object is the polymorphic synch object from §3/§4.1: a ready count, a
// FIFO queue of wait blocks, a spinlock guarding both plus kind-specific
// state, and a kind-specific tryAcquire side effect. The four kinds share
// everything but that one operation, represented here as a switch inside
// drain/tryAcquire rather than a deep interface hierarchy (§9 "Avoid deep
// hierarchy; the variation is a single operation").
type Object struct {
	kind defs.Kind
	lock spinlock

	readyCount uint32
	waitq      waitq

	// mutex-only: the current owner, or nil.
	owner *ThreadState

	// callout-only: informational, not consulted by tryAcquire (callouts
	// are sticky like events); reported by Armed so callout.Callout can
	// tell a caller whether its timer is currently scheduled.
	armed bool
}

// NewEvent returns an unsignaled event (§4.1): ready_count starts at 0,
// signal sets it to 1, and it stays 1 (sticky) until reset.
func NewEvent() *Object {
	return &Object{kind: defs.KindEvent}
}

// NewSemaphore returns a counting semaphore initialized to count (§6
// semaphore_init). count resources are immediately available to waiters.
func NewSemaphore(count uint32) *Object {
	return &Object{kind: defs.KindSemaphore, readyCount: count}
}

// NewMutex returns an unlocked mutex: ready_count = 1, no owner, matching
// the invariant "owner != none <=> ready_count = 0" (§3).
func NewMutex() *Object {
	return &Object{kind: defs.KindMutex, readyCount: 1}
}

// newCallout returns an unfired callout object (ready_count = 0, not
// armed), for Waitn's internal hidden timeout.
func newCallout() *Object {
	return &Object{kind: defs.KindCallout}
}

// NewCallout returns an unfired callout object (ready_count = 0, not
// armed) for standalone use by the callout package. A bare callout Object
// with nothing driving it can never become ready; pair it with a timer
// (see the callout package) to make it useful.
func NewCallout() *Object {
	return newCallout()
}

// Kind reports which acquisition semantics this object uses.
func (o *Object) Kind() defs.Kind { return o.kind }

// tryAcquire is called under o.lock after ready_count > 0 has been
// observed (§4.1 table): it atomically converts that readiness into an
// acquisition, applying the kind-specific side effect exactly once.
func (o *Object) tryAcquire(t *ThreadState) {
	switch o.kind {
	case defs.KindEvent, defs.KindCallout:
		// Sticky: ready_count is left at 1 so further waiters (and the
		// same queue drain) keep being satisfied until reset.
	case defs.KindSemaphore:
		if o.readyCount == 0 {
			log.Panicf("synch: semaphore tryAcquire with ready_count == 0")
		}
		o.readyCount--
	case defs.KindMutex:
		o.readyCount = 0
		o.owner = t
	default:
		log.Panicf("synch: object has unknown kind %v", o.kind)
	}
}

// EventSignal sets e's ready_count to 1 and runs drain (§4.1). Idempotent
// while ready_count is already 1: repeated signals before a reset are
// equivalent to one (§8 "Event idempotence").
func EventSignal(e *Object) {
	requireKind(e, defs.KindEvent)
	e.lock.Lock()
	e.readyCount = 1
	drainLocked(e)
}

// EventReset clears e's ready_count to 0. Waiters already dequeued are
// unaffected; future waits block until the next signal.
func EventReset(e *Object) {
	requireKind(e, defs.KindEvent)
	e.lock.Lock()
	e.readyCount = 0
	e.lock.Unlock()
}

// SemaphorePost adds n to s's ready_count (§4.1 semaphore_post) and runs
// drain, satisfying up to n additional waiters. Returns defs.EOVERFLOW
// without modifying s if the add would overflow the representable range
// (§7, §9 Open Questions: saturation fails rather than clamps).
func SemaphorePost(s *Object, n uint32) error {
	requireKind(s, defs.KindSemaphore)
	if n == 0 {
		return nil
	}
	s.lock.Lock()
	if s.readyCount+n < s.readyCount {
		s.lock.Unlock()
		return defs.EOVERFLOW
	}
	s.readyCount += n
	drainLocked(s)
	return nil
}

// MutexRelease releases m on behalf of owner (§4.1 mutex_release). Fails
// with defs.ENOTOWNER, leaving m untouched, if owner is not the current
// owner — a programming bug per §7, reported rather than silently ignored.
func MutexRelease(m *Object, owner *ThreadState) error {
	requireKind(m, defs.KindMutex)
	m.lock.Lock()
	if m.owner != owner {
		m.lock.Unlock()
		return defs.ENOTOWNER
	}
	m.owner = nil
	m.readyCount = 1
	drainLocked(m)
	return nil
}

// MutexOwner reports m's current owner, or nil if unlocked. Intended for
// diagnostics (wait/diag.go) and assertions, not for synchronization
// decisions by callers.
func (o *Object) MutexOwner() *ThreadState {
	requireKind(o, defs.KindMutex)
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.owner
}

// CalloutArm marks c as having a timer currently scheduled against it (§4.1
// callout_set). Called by the callout package when it starts a timer; does
// not itself touch ready_count or the waitq.
func CalloutArm(c *Object) {
	requireKind(c, defs.KindCallout)
	c.lock.Lock()
	c.armed = true
	c.lock.Unlock()
}

// Armed reports whether c currently has a timer scheduled against it (set by
// CalloutArm, cleared by CalloutFire/CalloutReset).
func (o *Object) Armed() bool {
	requireKind(o, defs.KindCallout)
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.armed
}

// CalloutFire is the hook the callout subsystem invokes at deadline (§6):
// it behaves exactly like EventSignal on the callout object, latching
// ready_count at 1 until callout_reset.
func CalloutFire(c *Object) {
	requireKind(c, defs.KindCallout)
	c.lock.Lock()
	c.readyCount = 1
	c.armed = false
	drainLocked(c)
}

// CalloutReset clears c's ready_count and marks it disarmed (§4.1
// callout_reset).
func CalloutReset(c *Object) {
	requireKind(c, defs.KindCallout)
	c.lock.Lock()
	c.readyCount = 0
	c.armed = false
	c.lock.Unlock()
}

func requireKind(o *Object, k defs.Kind) {
	if o.kind != k {
		log.Panicf("synch: expected a %v object, got a %v object", k, o.kind)
	}
}
