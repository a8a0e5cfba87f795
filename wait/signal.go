package wait

import "sync/atomic"

// drainLocked is the signaler's loop from §4.4: it runs whenever a caller
// has just raised o.readyCount, and must be called with o.lock already
// held. It claims preparing or sleeping waiters — atomically, via the
// thread's synchStatus CAS — until ready_count is exhausted or the queue
// empties, then releases o.lock and unparks whichever sleeping threads it
// claimed.
//
// Unparking is deferred until after o.lock is released, both so the lock
// is never held across a scheduler call and so the object-lock-then-
// thread-lock ordering rule (§5) can't invert against a thread that's
// concurrently committing in Phase C.
func drainLocked(o *Object) {
	var wake []*ThreadState

	for o.readyCount > 0 {
		wb := o.waitq.front()
		if wb == nil {
			break
		}
		t := wb.thread

		if atomic.CompareAndSwapInt32(&t.synchStatus, preWait, postWait) {
			wb.status = wbAcquired
			o.tryAcquire(t)
			o.waitq.remove(wb)
			t.satisfier = o
			continue
		}

		if atomic.CompareAndSwapInt32(&t.synchStatus, waitAsleep, postWait) {
			wb.status = wbAcquired
			o.tryAcquire(t)
			o.waitq.remove(wb)
			t.satisfier = o
			wake = append(wake, t)
			continue
		}

		// t already reached POST_WAIT on its own (early self-satisfaction
		// raced a signaler, or another object in the same multi-wait won
		// first): reap this now-moot block.
		wb.status = wbInactive
		o.waitq.remove(wb)
	}

	o.lock.Unlock()

	for _, t := range wake {
		t.unpark()
	}
}
