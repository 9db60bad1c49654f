package threadctl

import "github.com/hitzhangjie/vmdbg/vm"

// The registry keeps three disjoint collections of thread records. All
// functions here assume the registry lock is held unless noted otherwise.

// lookupSideChannel resolves a thread through the identity->handle map. A
// miss must never be treated as "thread unknown" on its own: records for
// unstarted threads are deliberately not attached, and during session
// teardown the channel can be stale.
func (c *Controller) lookupSideChannel(t vm.ThreadID) *threadRecord {
	v, ok := c.sideChannel.Load(t)
	if !ok {
		return nil
	}
	rec, ok := c.records[v.(handle)]
	if !ok {
		return nil
	}
	return rec
}

// scan linearly searches one collection by thread identity.
func (c *Controller) scan(list listKind, t vm.ThreadID) *threadRecord {
	for h := range c.sets[list] {
		if rec := c.records[h]; rec.thread == t {
			return rec
		}
	}
	return nil
}

// findThread searches for a thread record, optionally restricted to one
// collection (pass listAny to search all).
//
// The side channel is tried first. On a miss the "other" collection is
// scanned, because records created before the thread was startable are never
// attached to the channel. The running collections are scanned too, but only
// once event callbacks have been torn down: from then on thread-end events
// are no longer delivered, so a terminated thread can linger on a running
// list after the runtime cleared its side-channel entry. While callbacks are
// still live, a channel miss must never resolve to a running record.
func (c *Controller) findThread(list listKind, t vm.ThreadID) *threadRecord {
	rec := c.lookupSideChannel(t)
	if rec == nil {
		if list == listAny || list == listOther {
			rec = c.scan(listOther, t)
		}
		if !c.callbacksCleared {
			if rec == nil {
				c.assert(c.scan(listRunning, t) == nil, "running thread missing from side channel")
				c.assert(c.scan(listRunningLite, t) == nil, "lightweight thread missing from side channel")
			}
		} else {
			if rec == nil && (list == listAny || list == listRunning) {
				rec = c.scan(listRunning, t)
			}
			if rec == nil && (list == listAny || list == listRunningLite) {
				rec = c.scan(listRunningLite, t)
			}
		}
	}

	if rec != nil && list != listAny && rec.list != list {
		return nil
	}
	return rec
}

// findRunningThread searches the running collection matching the thread's
// weight class.
func (c *Controller) findRunningThread(t vm.ThreadID) *threadRecord {
	if c.rt.IsLightweight(t) {
		return c.findThread(listRunningLite, t)
	}
	return c.findThread(listRunning, t)
}

func (c *Controller) addRecord(list listKind, rec *threadRecord) {
	rec.list = list
	c.records[rec.h] = rec
	c.sets[list][rec.h] = struct{}{}
	if list == listRunningLite {
		c.liteCount++
	}
}

func (c *Controller) detachRecord(rec *threadRecord) {
	delete(c.sets[rec.list], rec.h)
	delete(c.records, rec.h)
	if rec.list == listRunningLite {
		c.liteCount--
	}
	rec.list = listNone
}

// moveRecord relocates a record between collections, used when a thread
// transitions from "other" to a running collection once its start event is
// observed.
func (c *Controller) moveRecord(rec *threadRecord, to listKind) {
	from := rec.list
	delete(c.sets[from], rec.h)
	if from == listRunningLite {
		c.liteCount--
	}
	c.sets[to][rec.h] = struct{}{}
	if to == listRunningLite {
		c.liteCount++
	}
	rec.list = to
}

// insertThread returns the record for t in the given collection, creating
// one when none exists. New records inherit the ambient suspend-all state:
// with a suspend-all pending, a new thread starts out owing suspendAllCount
// suspensions and is marked to be physically suspended as soon as it starts.
//
// Lightweight records whose thread is not currently alive land in "other"
// instead of the requested running collection; already-started lightweights
// that were simply not tracked yet are marked started.
func (c *Controller) insertThread(list listKind, t vm.ThreadID) *threadRecord {
	if rec := c.findThread(list, t); rec != nil {
		return rec
	}

	rec := newThreadRecord(t, handle(c.handleSeq.Add(1)))

	if list != listRunningLite {
		if c.isDebugThreadLocked(t) {
			rec.isDebugThread = true
		} else if c.suspendAllCount > 0 {
			rec.suspendCount = c.suspendAllCount
			rec.suspendOnStart = true
		}
	} else {
		rec.isLightweight = true
		state, err := c.rt.ThreadState(t)
		if err != nil {
			c.fatal("cannot get lightweight thread state", err)
		}
		if state != vm.StateAlive {
			// Not alive: it might not have started yet or it might have
			// terminated. Either way "other" is the place for it.
			list = listOther
		}
		if c.suspendAllCount > 0 {
			rec.suspendCount = c.suspendAllCount
			if state == vm.StateUnstarted {
				rec.suspendOnStart = true
			}
		}
		if state != vm.StateUnstarted {
			rec.isStarted = true
		}
	}

	c.addRecord(list, rec)

	// Unstarted threads go on "other" and are attached to the side channel
	// only once they move to a running collection; findThread knows to scan
	// "other" when the channel misses.
	if list != listOther {
		c.sideChannel.Store(t, rec.h)
	}
	return rec
}

// clearRecord releases everything a dying record retains and notifies the
// step subsystem to discard its per-thread state.
func (c *Controller) clearRecord(rec *threadRecord) {
	rec.pendingStop = 0
	c.cfg.Steps.ClearRequest(rec.thread, &rec.currentStep)
	if rec.isDebugThread {
		c.removeDebugThreadLocked(rec.thread)
	}
	c.sideChannel.Delete(rec.thread)
	rec.eventBag = nil
}

func (c *Controller) removeThread(rec *threadRecord) {
	c.detachRecord(rec)
	c.clearRecord(rec)
}

// removeResumed drops every record in a collection whose suspend count has
// returned to zero.
func (c *Controller) removeResumed(list listKind) {
	for h := range c.sets[list] {
		rec := c.records[h]
		if rec.suspendCount == 0 {
			c.removeThread(rec)
		}
	}
}

// removeLightweights drops every lightweight record, used on session reset.
func (c *Controller) removeLightweights() {
	for h := range c.sets[listRunningLite] {
		c.removeThread(c.records[h])
	}
}

// enumerate visits every record in a collection; a visitor error aborts the
// remaining iteration and is propagated.
func (c *Controller) enumerate(list listKind, fn func(*threadRecord) error) error {
	for h := range c.sets[list] {
		if err := fn(c.records[h]); err != nil {
			return err
		}
	}
	return nil
}
