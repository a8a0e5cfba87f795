// Package rwlock is the higher-level primitive spec.md §1 names as built
// atop the core ("higher-level primitives (e.g. reader-writer locks) built
// atop this core") rather than implemented by it. It composes wait.Object
// exactly the way tazorax-tinygo's sync.RWMutex composes two wait queues,
// but through wait.Wait1/wait.MutexRelease instead of a private futex, so
// it doubles as an integration test of the core engine's public surface.
package rwlock

import (
	"sync"

	"synch/defs"
	"synch/wait"
)

// RWLock grants either one writer or any number of readers exclusive
// access, implemented as a single wait.Object mutex ("exclusive") held by
// the writer, or by a single internal handle standing in for "the current
// group of readers" while readers > 0. The first reader to arrive acquires
// exclusive on the group's behalf; the last reader to leave releases it.
// This gives readers and the writer FIFO fairness with respect to each
// other (whoever is at the head of exclusive's waitq goes next) at the
// cost of treating all concurrent readers as a single unit rather than
// queueing them individually — acceptable per spec.md's Non-goal of
// "fairness beyond FIFO per-object."
type RWLock struct {
	exclusive *wait.Object

	mu          sync.Mutex
	readers     int
	readerGroup *wait.ThreadState
}

// New returns an unlocked RWLock.
func New() *RWLock {
	return &RWLock{
		exclusive:   wait.NewMutex(),
		readerGroup: wait.NewThreadState(nil, nil),
	}
}

// Lock acquires exclusive (writer) access, blocking until no reader or
// writer holds the lock. t identifies the calling thread; the same t must
// be passed to the matching Unlock.
func (l *RWLock) Lock(t *wait.ThreadState) error {
	return wait.Wait1(t, l.exclusive, "rwlock.Lock", false, defs.AbstimeForever)
}

// Unlock releases a writer's hold on l. t must be the ThreadState passed to
// the matching Lock.
func (l *RWLock) Unlock(t *wait.ThreadState) error {
	return wait.MutexRelease(l.exclusive, t)
}

// RLock acquires shared (reader) access. The first concurrent reader
// blocks, on the readers' behalf, until no writer holds the lock, and keeps
// l.mu held while it does, so readers arriving meanwhile wait behind it.
// Once the group holds the lock, later readers return immediately while the
// group remains non-empty.
func (l *RWLock) RLock(t *wait.ThreadState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.readers++
	if l.readers == 1 {
		if err := wait.Wait1(l.readerGroup, l.exclusive, "rwlock.RLock", false, defs.AbstimeForever); err != nil {
			l.readers--
			return err
		}
	}
	return nil
}

// RUnlock releases one reader's share of l. The last reader to leave
// releases the group's hold on exclusive, waking a queued writer or
// another reader group.
func (l *RWLock) RUnlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.readers <= 0 {
		panic("rwlock: RUnlock without a matching RLock")
	}
	l.readers--
	if l.readers == 0 {
		return wait.MutexRelease(l.exclusive, l.readerGroup)
	}
	return nil
}
