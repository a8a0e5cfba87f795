// Package wait is the core of the framework: the wait block, the
// polymorphic synch object, the per-thread atomic wait state, and the
// wait1/waitn/signal procedures that tie them together (spec.md §3-§5).
package wait

import (
	"log"
	"sync/atomic"
	"time"

	"synch/defs"
)

// Wait1 is the degenerate n=1 form of Waitn (§6).
func Wait1(t *ThreadState, o *Object, reason defs.Reason, interruptible bool, deadline defs.Abstime) error {
	_, err := Waitn(t, []*Object{o}, reason, interruptible, deadline)
	return err
}

// Waitn is the three-phase wait call from §4.3: preparation, commit,
// finish. objs must be non-empty. On success it returns the index into objs
// that was satisfied and a nil error; otherwise it returns -1 and one of
// defs.ETIMEDOUT, defs.EWOULDBLOCK, or defs.EINTR.
//
// reason is an opaque debug tag, never interpreted by the engine, matching
// spec.md §6.
func Waitn(t *ThreadState, objs []*Object, reason defs.Reason, interruptible bool, deadline defs.Abstime) (int, error) {
	if len(objs) == 0 {
		log.Panicf("synch: waitn called with no objects")
	}
	_ = reason

	all := make([]*Object, 0, len(objs)+2)
	all = append(all, objs...)

	killIdx := -1
	if interruptible {
		killIdx = len(all)
		all = append(all, t.killEvent)
	}

	timeoutIdx := -1
	var timer *time.Timer
	if deadline != defs.AbstimeForever && deadline != defs.AbstimeNever {
		timeoutObj := newCallout()
		timeoutIdx = len(all)
		all = append(all, timeoutObj)

		d := time.Duration(int64(deadline) - t.clock.Now())
		if d < 0 {
			d = 0
		}
		timer = time.AfterFunc(d, func() { CalloutFire(timeoutObj) })
	}

	atomic.StoreInt32(&t.synchStatus, preWait)
	t.satisfier = nil

	blocks := t.blocks(len(all))
	for i, o := range all {
		blocks[i].reset(t, o)
	}

	// Phase P — Preparation (§4.3).
	for i, o := range all {
		if atomic.LoadInt32(&t.synchStatus) != preWait {
			// A concurrent signaler already claimed an earlier-linked
			// block; nothing left to prepare.
			break
		}

		wb := blocks[i]
		o.lock.Lock()
		if o.readyCount > 0 {
			if atomic.CompareAndSwapInt32(&t.synchStatus, preWait, postWait) {
				t.satisfier = o
				o.tryAcquire(t)
				wb.status = wbAcquired
				o.lock.Unlock()
				break
			}
			// Lost the race to a signaler claiming us via a different,
			// already-linked block; this object's readiness is untouched.
			o.lock.Unlock()
			break
		}
		o.waitq.pushBack(wb)
		o.lock.Unlock()
	}

	// Phase C — Commit (§4.3). Skipped entirely for a poll (AbstimeNever):
	// preparation already ran, and there is nothing to sleep for.
	if atomic.LoadInt32(&t.synchStatus) == preWait && deadline != defs.AbstimeNever {
		t.commit()
	}

	// Phase F — Finish (§4.3).
	satisfiedIdx := -1
	for i, o := range all {
		wb := blocks[i]
		o.lock.Lock()
		switch wb.status {
		case wbActive:
			if wb.linked {
				o.waitq.remove(wb)
			}
		case wbAcquired:
			satisfiedIdx = i
		case wbInactive:
			// Already unlinked by the signaler that reaped it.
		}
		o.lock.Unlock()
	}

	if timer != nil {
		timer.Stop()
	}

	if satisfiedIdx == -1 {
		if deadline == defs.AbstimeNever {
			return -1, defs.EWOULDBLOCK
		}
		log.Panicf("synch: waitn returned with no satisfier on a blocking wait")
	}

	switch satisfiedIdx {
	case timeoutIdx:
		return -1, defs.ETIMEDOUT
	case killIdx:
		return -1, defs.EINTR
	default:
		return satisfiedIdx, nil
	}
}
