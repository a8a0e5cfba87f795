package wait

// wbStatus is the WaitBlock.status tag from §4.2 — the only mechanism by
// which a waiter learns, after wake-up, which object satisfied it.
type wbStatus int32

const (
	// wbActive: linked in a waitq, not yet resolved.
	wbActive wbStatus = iota
	// wbInactive: removed without acquisition (another object satisfied a
	// multi-wait, or the thread raced a signaler to POST_WAIT first).
	wbInactive
	// wbAcquired: a signaler removed it and invoked tryAcquire on its
	// behalf; this block's object is the satisfier.
	wbAcquired
)

// WaitBlock is the per-(thread, object) record from §3/§4.2: passive data,
// linked into at most one Object's waitq at a time. Status is written only
// under the owning Object's lock; it is the rendezvous point between
// waiter and signaler.
//
// Lifetime: allocated from the owning ThreadState's inline pool (or heap
// spill) at wait entry, linked into at most one Object's queue during
// preparation, unlinked by whichever of {waiter, signaler} resolves it
// first, and discarded when the wait call returns. Neither thread nor
// object pointer is owning.
type WaitBlock struct {
	thread *ThreadState
	object *Object
	status wbStatus

	linked     bool
	prev, next *WaitBlock
}

// reset clears a WaitBlock for reuse by a later wait call on the same
// ThreadState. Must only be called once the block has been fully finished
// (Phase F) and is no longer linked in any queue.
func (wb *WaitBlock) reset(t *ThreadState, o *Object) {
	if wb.linked {
		panic("synch: reusing a wait block still linked in a queue")
	}
	wb.thread = t
	wb.object = o
	wb.status = wbActive
	wb.prev, wb.next = nil, nil
}

// waitq is the FIFO doubly-linked list of wait blocks an Object owns
// (§3: "head = next to satisfy"). All operations require the caller to
// already hold the owning Object's lock.
type waitq struct {
	head, tail *WaitBlock
	count      int
}

func (q *waitq) empty() bool { return q.head == nil }

func (q *waitq) pushBack(wb *WaitBlock) {
	if wb.linked {
		panic("synch: wait block already linked in a queue")
	}
	wb.linked = true
	wb.prev, wb.next = q.tail, nil
	if q.tail != nil {
		q.tail.next = wb
	} else {
		q.head = wb
	}
	q.tail = wb
	q.count++
}

func (q *waitq) front() *WaitBlock { return q.head }

// remove unlinks wb from the queue. wb must currently be linked in this
// queue; removing an unlinked block, or a block linked in a different
// queue, is an invariant violation (§3: "a wait block is linked in exactly
// zero or one object queue").
func (q *waitq) remove(wb *WaitBlock) {
	if !wb.linked {
		panic("synch: removing a wait block that is not linked")
	}
	if wb.prev != nil {
		wb.prev.next = wb.next
	} else {
		q.head = wb.next
	}
	if wb.next != nil {
		wb.next.prev = wb.prev
	} else {
		q.tail = wb.prev
	}
	wb.prev, wb.next = nil, nil
	wb.linked = false
	q.count--
}
