package threadctl

import (
	"github.com/pkg/errors"

	"github.com/hitzhangjie/vmdbg/vm"
)

// Suspends and resumes add to and subtract from a per-thread count; the
// physical primitive is issued only when the count goes from 0 to 1 and the
// physical resume only when it returns from 1 to 0. Threads suspended by a
// third party beforehand are left alone.

// physicalSuspend issues the real suspend primitive and marks the record for
// resumption only when it succeeded.
func (c *Controller) physicalSuspend(rec *threadRecord) error {
	err := c.rt.SuspendThread(rec.thread)
	c.log.Debug().Int64("thread", int64(rec.thread)).Msg("thread suspended")
	if err == nil {
		rec.pendingResume = true
	}
	return err
}

// deferredSuspendByRecord performs a suspend whose bookkeeping was already
// committed when the thread was marked suspendOnStart: issue the real
// suspend only if a subsequent resume hasn't made it irrelevant, and on
// failure roll back the count increment that came with the suspendOnStart
// marking.
func (c *Controller) deferredSuspendByRecord(rec *threadRecord) error {
	if rec.isDebugThread {
		return nil
	}

	var err error
	if rec.suspendCount > 0 {
		err = c.physicalSuspend(rec)
		if err != nil {
			rec.suspendCount--
		}
	}
	rec.suspendOnStart = false

	c.cond.Broadcast()
	return err
}

func (c *Controller) suspendByRecord(rec *threadRecord) error {
	if rec.isDebugThread {
		return nil
	}

	// Waiting for a deferred suspend already: just go one level deeper.
	if rec.suspendOnStart {
		rec.suspendCount++
		return nil
	}

	var err error
	if rec.suspendCount == 0 {
		err = c.physicalSuspend(rec)
		if errors.Is(err, vm.ErrThreadNotAlive) {
			// The thread is a zombie or not yet started. For a zombie,
			// suspend/resume are no-ops; for an unstarted thread the real
			// suspend happens while its start event is processed. Either
			// way the request succeeded.
			rec.suspendOnStart = true
			err = nil
		}
	}

	if err == nil {
		rec.suspendCount++
	}

	c.cond.Broadcast()
	return err
}

func (c *Controller) resumeByRecord(rec *threadRecord) error {
	if rec.isDebugThread {
		// Never suspended by the debugger, never resumed by it.
		return nil
	}

	var err error
	if rec.suspendCount > 0 {
		rec.suspendCount--
		c.cond.Broadcast()
		if rec.suspendCount == 0 && rec.pendingResume {
			c.assert(!rec.suspendOnStart, "pendingResume and suspendOnStart both set")
			err = c.rt.ResumeThread(rec.thread)
			c.log.Debug().Int64("thread", int64(rec.thread)).Msg("thread resumed")
			rec.frameGeneration++
			rec.pendingResume = false
			if errors.Is(err, vm.ErrThreadNotAlive) && !rec.isStarted {
				// The suspend was only ever bookkeeping: the thread never
				// received its start event, so failing to resume it is
				// immaterial.
				err = nil
			}
		}
		c.maybeEvictLightweight(rec)
	}

	return err
}

// maybeEvictLightweight drops a lightweight record once nothing retains it:
// its suspend count is back to zero, no deferred suspend is parked on it, no
// event is being handled on it, and the session is not keeping lightweight
// history.
func (c *Controller) maybeEvictLightweight(rec *threadRecord) {
	if !rec.isLightweight || c.cfg.RetainLightweight {
		return
	}
	if rec.list == listNone || rec.suspendCount != 0 || rec.suspendOnStart || rec.handlingEvent() {
		return
	}
	c.removeThread(rec)
}

// commonSuspend suspends one thread, creating a record when the thread is
// not between its start and end events so it can still be resumed later.
func (c *Controller) commonSuspend(t vm.ThreadID, deferred bool) error {
	rec := c.findRunningThread(t)
	if rec == nil {
		if c.rt.IsLightweight(t) {
			// Not all lightweight threads are tracked; start tracking now.
			rec = c.insertThread(listRunningLite, t)
		} else {
			rec = c.insertThread(listOther, t)
		}
	}

	if deferred {
		return c.deferredSuspendByRecord(rec)
	}
	return c.suspendByRecord(rec)
}

func (c *Controller) commonResume(t vm.ThreadID) error {
	// The thread is normally between its start and end events, but the
	// auxiliary "other" collection is searched too. A thread in neither was
	// never suspended by the debugger; do nothing.
	rec := c.findThread(listAny, t)
	if rec == nil {
		return nil
	}
	return c.resumeByRecord(rec)
}

// commonSuspendList suspends an explicit list of threads. Threads already
// suspended or parked suspendOnStart just get their count incremented; the
// remainder go to the runtime's batch-suspend primitive in one call.
// Per-thread results are folded into bookkeeping: "already suspended by a
// third party" counts as success without claiming the eventual resume,
// "not alive" becomes a deferred suspend. Any other result is surfaced but
// does not stop processing of the rest of the batch.
func (c *Controller) commonSuspendList(initList []vm.ThreadID) error {
	reqList := make([]vm.ThreadID, 0, len(initList))

	for _, t := range initList {
		rec := c.findThread(listRunning, t)
		if rec == nil {
			// Not between start and end events; track it in "other" so it
			// will be resumed later.
			rec = c.insertThread(listOther, t)
		}

		if rec.isDebugThread {
			continue
		}

		if rec.suspendOnStart || rec.suspendCount > 0 {
			rec.suspendCount++
			continue
		}

		reqList = append(reqList, t)
	}

	var err error
	if len(reqList) > 0 {
		results := c.rt.SuspendThreadList(reqList)
		for i, t := range reqList {
			rec := c.findThread(listAny, t)
			if rec == nil {
				c.fatal("missing entry in thread tables", nil)
			}
			c.log.Debug().Int64("thread", int64(t)).Msg("thread suspended as part of list")

			res := results[i]
			switch {
			case res == nil:
				rec.pendingResume = true
			case errors.Is(res, vm.ErrThreadSuspended):
				// Suspended by another thread already: report success but
				// don't mark it for resumption by us.
				res = nil
			case errors.Is(res, vm.ErrThreadNotAlive):
				rec.suspendOnStart = true
				res = nil
			default:
				err = res
			}

			// Count real, third-party and deferred suspensions alike.
			if res == nil {
				rec.suspendCount++
			}
		}
	}

	c.cond.Broadcast()
	return err
}

// commonResumeList resumes every thread the debugger suspended, in two
// passes. The first pass only counts the threads needing a real resume; the
// second does the bookkeeping for nested and deferred suspensions and
// collects the identities for the batch-resume primitive. The split is
// required: whether
// a thread needs a real resume depends on bookkeeping state (suspendCount
// and pendingResume) that the accounting itself mutates, so fusing the
// passes would let a thread be observed in a transient post-resume state
// mid-batch.
func (c *Controller) commonResumeList() error {
	reqCnt := 0
	countResume := func(rec *threadRecord) error {
		if rec.isDebugThread {
			return nil
		}
		if rec.suspendCount == 1 && rec.pendingResume {
			c.assert(!rec.suspendOnStart, "pendingResume and suspendOnStart both set")
			reqCnt++
		}
		return nil
	}
	_ = c.enumerate(listRunning, countResume)
	_ = c.enumerate(listRunningLite, countResume)

	copyResume := func(collect *[]vm.ThreadID) func(*threadRecord) error {
		return func(rec *threadRecord) error {
			if rec.isDebugThread {
				return nil
			}
			if rec.suspendCount > 1 {
				// Nested suspend: undo one level only.
				rec.suspendCount--
				return nil
			}
			if rec.suspendCount == 1 && rec.suspendOnStart {
				// Marked for suspension when its start event came in during
				// a suspend-all, but the deferred suspend hasn't fired yet.
				// Undo the bookkeeping so it won't fire after this
				// resume-all completes.
				c.assert(!rec.pendingResume, "pendingResume and suspendOnStart both set")
				rec.suspendCount--
				rec.suspendOnStart = false
				c.maybeEvictLightweight(rec)
				return nil
			}

			// A count of 1 without pendingResume means the physical suspend
			// belongs to a third party; the batch resume is not ours to
			// issue and neither is the decrement.
			if collect == nil {
				return nil
			}
			if rec.suspendCount == 1 && rec.pendingResume {
				*collect = append(*collect, rec.thread)
			}
			return nil
		}
	}

	if reqCnt == 0 {
		// Nothing to physically resume, accounting pass only.
		_ = c.enumerate(listRunning, copyResume(nil))
		_ = c.enumerate(listRunningLite, copyResume(nil))
		return nil
	}

	reqList := make([]vm.ThreadID, 0, reqCnt)
	_ = c.enumerate(listRunning, copyResume(&reqList))
	_ = c.enumerate(listRunningLite, copyResume(&reqList))

	results := c.rt.ResumeThreadList(reqList)
	var err error
	for i, t := range reqList {
		rec := c.findRunningThread(t)
		if rec == nil {
			c.fatal("missing entry in running thread table", nil)
		}
		c.log.Debug().Int64("thread", int64(t)).Msg("thread resumed as part of list")

		// The accounting assumes batch resume always works, same as the
		// single-thread path; a per-thread failure is surfaced but not
		// compensated.
		rec.suspendCount--
		rec.pendingResume = false
		rec.frameGeneration++
		if results[i] != nil {
			err = results[i]
		}
		c.maybeEvictLightweight(rec)
	}

	c.cond.Broadcast()
	return err
}

// SuspendThread suspends one thread. With deferred set, only the suspend
// already committed in bookkeeping is applied; that path is used when a
// thread marked suspendOnStart actually starts. Debug threads are never
// suspended; the call is a no-op success for them.
func (c *Controller) SuspendThread(t vm.ThreadID, deferred bool) error {
	c.getLocks()
	defer c.releaseLocks()
	return c.commonSuspend(t, deferred)
}

// ResumeThread undoes one suspension of the thread. A thread whose count is
// already zero is left untouched. The outer event loop is notified that one
// thread resumed.
func (c *Controller) ResumeThread(t vm.ThreadID) error {
	c.getLocks()
	err := c.commonResume(t)
	c.removeResumed(listOther)
	c.releaseLocks()

	if c.cfg.Unblock != nil {
		c.cfg.Unblock()
	}
	return err
}

// SuspendCount reports the debugger-visible suspension depth of a thread.
// Untracked non-lightweight threads were never suspended, so 0. Untracked
// lightweight threads inherit the broadcast suspend-all depth once started.
func (c *Controller) SuspendCount(t vm.ThreadID) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.findRunningThread(t)
	if rec == nil {
		rec = c.findThread(listOther, t)
	}
	if rec != nil {
		return rec.suspendCount, nil
	}

	if c.rt.IsLightweight(t) {
		state, err := c.rt.ThreadState(t)
		if err != nil {
			return 0, errors.Wrap(err, "get lightweight thread state")
		}
		if state == vm.StateUnstarted {
			return 0, nil
		}
		return c.suspendAllCount, nil
	}
	return 0, nil
}

// SuspendAll suspends every thread the runtime knows about: lightweight
// threads via one bulk primitive (skipped when a suspend-all is already
// outstanding), tracked lightweight records via a bookkeeping increment,
// every enumerated live thread via the batched list-suspend, and finally any
// thread parked only in "other" that the enumeration raced past. On full
// success all reachable object references are pinned and the suspend-all
// depth increments.
func (c *Controller) SuspendAll() error {
	c.getLocks()
	defer c.releaseLocks()

	if c.suspendAllCount == 0 {
		if err := c.rt.SuspendAllLightweight(nil); err != nil {
			c.fatal("cannot suspend all lightweight threads", err)
		}
		// A notify is due any time a thread is suspended.
		c.cond.Broadcast()
	}

	// The bulk primitive physically suspended every tracked lightweight
	// thread; account for it. The complement happens in commonResumeList
	// during ResumeAll.
	_ = c.enumerate(listRunningLite, func(rec *threadRecord) error {
		rec.pendingResume = true
		rec.suspendCount++
		return nil
	})

	threads, err := c.rt.AllThreads()
	if err != nil {
		return errors.Wrap(err, "enumerate live threads")
	}
	if err := c.commonSuspendList(threads); err != nil {
		return err
	}

	// Suspend threads not (or no longer) in the enumeration above.
	err = c.enumerate(listOther, func(rec *threadRecord) error {
		if !containsThread(threads, rec.thread) {
			return c.commonSuspend(rec.thread, false)
		}
		return nil
	})

	if err == nil {
		// Keep objects reachable from suspended threads from being
		// collected while the whole runtime is stopped.
		c.cfg.Pinner.PinAll()
		c.suspendAllCount++
	}
	return err
}

// ResumeAll undoes one suspend-all. When the depth is about to return to
// zero, lightweight threads are bulk-resumed first, excluding every tracked
// lightweight record with outstanding suspensions; those are handled by the
// batched list-resume that follows, which also covers regular threads. Any
// thread parked only in "other" is resumed last. Objects are unpinned, the
// depth decrements and the outer event loop is notified.
func (c *Controller) ResumeAll() error {
	c.getLocks()

	if c.suspendAllCount == 1 {
		// The batch resume below physically resumes every tracked record
		// with suspendCount==1 and handles the nested ones; none of them may
		// be touched by the bulk primitive or they would be double-resumed.
		var exclude []vm.ThreadID
		_ = c.enumerate(listRunningLite, func(rec *threadRecord) error {
			if rec.suspendCount > 0 {
				exclude = append(exclude, rec.thread)
			}
			return nil
		})
		if err := c.rt.ResumeAllLightweight(exclude); err != nil {
			c.fatal("cannot resume all lightweight threads", err)
		}
		c.cond.Broadcast()
	}

	// Only threads the debugger suspended need resuming, and all of those
	// have records; no need to enumerate the runtime like SuspendAll does.
	err := c.commonResumeList()
	if err == nil && len(c.sets[listOther]) > 0 {
		err = c.enumerate(listOther, func(rec *threadRecord) error {
			return c.resumeByRecord(rec)
		})
		c.removeResumed(listOther)
	}

	if c.suspendAllCount > 0 {
		c.cfg.Pinner.UnpinAll()
		c.suspendAllCount--
	}

	c.releaseLocks()

	if c.cfg.Unblock != nil {
		c.cfg.Unblock()
	}
	return err
}

func containsThread(list []vm.ThreadID, t vm.ThreadID) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}
