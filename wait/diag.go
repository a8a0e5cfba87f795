package wait

import "fmt"

// CheckInvariants walks each object's queue under its lock and verifies the
// quantified invariants from spec.md §8:
//
//   - ready_count > 0 => waitq empty, once drain has returned (§3, §8).
//   - every queued wait block is wbActive and actually linked into this
//     object's queue (no block left over in two places at once, §3).
//
// Intended for tests and debug tooling, not the steady-state hot path: it
// takes every listed object's lock in turn, so callers must not hold any of
// them (this would deadlock) and must accept that the result is only a
// snapshot, immediately stale under concurrent signalers.
func CheckInvariants(objs ...*Object) error {
	for _, o := range objs {
		o.lock.Lock()
		readyCount, queued := o.readyCount, o.waitq.count
		var badStatus int
		for wb := o.waitq.front(); wb != nil; wb = wb.next {
			if wb.status != wbActive || !wb.linked {
				badStatus++
			}
		}
		o.lock.Unlock()

		if readyCount > 0 && queued > 0 {
			return fmt.Errorf("synch: invariant violation: %v object has ready_count=%d with %d still queued", o.kind, readyCount, queued)
		}
		if badStatus > 0 {
			return fmt.Errorf("synch: invariant violation: %v object has %d queued wait blocks not in wbActive state", o.kind, badStatus)
		}
	}
	return nil
}

// WaitGraph is a point-in-time snapshot of "thread waits for object" /
// "object owned by thread" edges, the self-contained analogue of
// misc/lockcheck/lockgraph's lock-class graph (see DESIGN.md): a debug
// post-mortem tool for spotting wait cycles, not a runtime-instrumented
// lock log.
type WaitGraph struct {
	// WaitsFor[t] lists the objects t is currently queued on.
	WaitsFor map[*ThreadState][]*Object
	// OwnedBy[o] is the thread currently holding a mutex o, if any.
	OwnedBy map[*Object]*ThreadState
}

// Snapshot walks objs under their locks (acquired and released one at a
// time, never nested, to avoid introducing its own lock-order hazard) and
// builds the current wait graph.
func Snapshot(objs ...*Object) *WaitGraph {
	g := &WaitGraph{
		WaitsFor: make(map[*ThreadState][]*Object),
		OwnedBy:  make(map[*Object]*ThreadState),
	}
	for _, o := range objs {
		o.lock.Lock()
		for wb := o.waitq.front(); wb != nil; wb = wb.next {
			g.WaitsFor[wb.thread] = append(g.WaitsFor[wb.thread], o)
		}
		if o.kind.String() == "mutex" && o.owner != nil {
			g.OwnedBy[o] = o.owner
		}
		o.lock.Unlock()
	}
	return g
}

// Cycle reports one wait-for cycle in g, if any: a chain of threads each
// waiting on a mutex owned by the next thread in the chain, back to the
// first. Returns nil if the graph is acyclic. This only traces mutex
// ownership edges, since only mutexes in this design have a single
// identifiable owner; a thread queued on an event/semaphore/callout is not
// "blocked on" a specific other thread.
func (g *WaitGraph) Cycle() []*ThreadState {
	visiting := make(map[*ThreadState]bool)
	visited := make(map[*ThreadState]bool)
	var path []*ThreadState

	var visit func(t *ThreadState) []*ThreadState
	visit = func(t *ThreadState) []*ThreadState {
		if visiting[t] {
			// Found the cycle: trim path back to the first occurrence of t.
			for i, p := range path {
				if p == t {
					return append(append([]*ThreadState{}, path[i:]...), t)
				}
			}
			return []*ThreadState{t}
		}
		if visited[t] {
			return nil
		}
		visiting[t] = true
		path = append(path, t)
		for _, o := range g.WaitsFor[t] {
			owner, ok := g.OwnedBy[o]
			if !ok || owner == t {
				continue
			}
			if cyc := visit(owner); cyc != nil {
				return cyc
			}
		}
		path = path[:len(path)-1]
		visiting[t] = false
		visited[t] = true
		return nil
	}

	for t := range g.WaitsFor {
		if cyc := visit(t); cyc != nil {
			return cyc
		}
	}
	return nil
}
