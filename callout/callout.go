// Package callout is the standalone timer subsystem spec.md §6 treats as an
// external collaborator ("provides: deadline -> fires a hook that behaves
// like an external signaler"). Waitn's own hidden per-call timeout is a
// throwaway, non-resettable special case of what's implemented here in
// full: an armable, resettable Callout object usable on its own or inside
// a Waitn wait set.
package callout

import (
	"sync"
	"time"

	"synch/sched"
	"synch/wait"
)

// Callout is a timer modeled as a synch object (§4.1, §9 "Callout
// integration"): Set arms it to become ready at an absolute deadline;
// Reset disarms it and clears readiness. Object returns the underlying
// wait.Object, usable directly in wait.Waitn's wait set.
type Callout struct {
	mu    sync.Mutex
	obj   *wait.Object
	clock sched.Clock
	timer *time.Timer
}

// New returns a disarmed callout measured against clock. clock must be the
// same Clock (or one reporting a consistent time base) as any ThreadState
// that will wait on this callout's Object, since deadlines are absolute
// values in that clock's units.
func New(clock sched.Clock) *Callout {
	return &Callout{obj: wait.NewCallout(), clock: clock}
}

// Object returns the wait.Object backing c, of kind defs.KindCallout.
func (c *Callout) Object() *wait.Object { return c.obj }

// Set arms c to fire at the given absolute deadline (§4.1 callout_set):
// once armed, at deadline the callout subsystem behaves as a signaler,
// setting the object's ready_count to 1 and draining its waitq, exactly
// like event_signal. Re-arming an already-armed callout reschedules it.
func (c *Callout) Set(deadline int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	d := time.Duration(deadline - c.clock.Now())
	if d < 0 {
		d = 0
	}
	obj := c.obj
	wait.CalloutArm(obj)
	c.timer = time.AfterFunc(d, func() { wait.CalloutFire(obj) })
}

// Armed reports whether c currently has a timer scheduled, i.e. Set has run
// more recently than Reset or a fire.
func (c *Callout) Armed() bool {
	return c.obj.Armed()
}

// Reset disarms c and clears its ready_count (§4.1 callout_reset). Waiters
// already satisfied by a prior fire are unaffected; future waits block
// until the next Set.
func (c *Callout) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	wait.CalloutReset(c.obj)
}
