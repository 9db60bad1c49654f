package threadctl

import (
	"github.com/hitzhangjie/vmdbg/event"
	"github.com/hitzhangjie/vmdbg/vm"
)

// OnEventHandlerEntry is invoked at the start of every dispatched event, on
// the reporting thread, before any filtering or formatting. It performs the
// lifecycle bookkeeping for the thread and returns the event accumulator the
// dispatch pipeline must use. The second result is true when the event was
// consumed by an in-flight pop-frame handshake and must not be forwarded.
func (c *Controller) OnEventHandlerEntry(kind vm.EventKind, t vm.ThreadID) (*event.Bag, bool) {
	// Events during pop commands may need to be swallowed here, without
	// touching the registry lock.
	if c.checkForPopFrameEvents(kind, t) {
		return nil, true
	}

	c.mu.Lock()

	// A thread suspended before it ever started sits in "other"; now that
	// it reports events it is a well-known thread and moves to the matching
	// running collection, gaining its side-channel attachment.
	rec := c.findThread(listOther, t)
	if rec != nil {
		to := listRunning
		if rec.isLightweight {
			to = listRunningLite
		}
		c.moveRecord(rec, to)
		c.sideChannel.Store(t, rec.h)
	} else {
		// Some runtimes deliver method entry/exit before the start event;
		// the record may need creating for any event kind.
		if c.rt.IsLightweight(t) {
			rec = c.insertThread(listRunningLite, t)
		} else {
			rec = c.insertThread(listRunning, t)
		}
	}

	if kind == vm.EventThreadStart {
		rec.isStarted = true
		c.processDeferredEventModes(t, rec)
	}
	if kind == vm.EventThreadEnd {
		// If the record was previously freed it was just recreated above
		// and still needs the started mark.
		rec.isStarted = true
	}

	rec.currentEvent = kind
	bag := rec.eventBag
	deferredSuspend := rec.suspendOnStart

	c.mu.Unlock()

	if deferredSuspend {
		// A suspend was requested before the thread started. Apply it now,
		// before the thread gets to run, with no locks held.
		if err := c.SuspendThread(t, true); err != nil {
			c.log.Warn().Err(err).Int64("thread", int64(t)).Msg("deferred suspend failed")
		}
	}

	return bag, false
}

// OnEventHandlerExit closes the bookkeeping opened by OnEventHandlerEntry
// once the event has been fully dispatched: a thread-end event destroys the
// record; anything else runs the interrupts/stops deferred while the event
// was in flight and stores the accumulator back.
func (c *Controller) OnEventHandlerExit(kind vm.EventKind, t vm.ThreadID, bag *event.Bag) {
	if kind == vm.EventThreadEnd {
		c.getLocks()
	} else {
		c.mu.Lock()
	}

	rec := c.findRunningThread(t)
	if rec == nil {
		c.fatal("thread record missing on event-handler exit", nil)
	} else if kind == vm.EventThreadEnd {
		c.removeThread(rec)
	} else {
		// Pointless for a thread about to die, hence only on this branch.
		c.doPendingTasks(rec)
		rec.eventBag = bag
		rec.currentEvent = vm.EventNone
	}

	if kind == vm.EventThreadEnd {
		c.releaseLocks()
	} else {
		c.mu.Unlock()
	}
}

// doPendingTasks runs the interrupt/stop requests that were deferred while
// the thread was handling an event. Registry lock held.
func (c *Controller) doPendingTasks(rec *threadRecord) {
	if rec.pendingInterrupt {
		if err := c.rt.Interrupt(rec.thread); err != nil {
			c.log.Warn().Err(err).Int64("thread", int64(rec.thread)).Msg("pending interrupt failed")
		}
		rec.pendingInterrupt = false
	}

	if rec.pendingStop != 0 {
		if err := c.rt.StopThread(rec.thread, rec.pendingStop); err != nil {
			c.log.Warn().Err(err).Int64("thread", int64(rec.thread)).Msg("pending stop failed")
		}
		rec.pendingStop = 0
	}
}

// Interrupt interrupts a thread, unless the thread is currently handling an
// event; then the interrupt is held until the event finishes.
func (c *Controller) Interrupt(t vm.ThreadID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.findRunningThread(t)
	if rec == nil || !rec.handlingEvent() {
		return c.rt.Interrupt(t)
	}
	rec.pendingInterrupt = true
	return nil
}

// SetPendingInterrupt marks a thread for interruption once its current event
// finishes, without issuing anything now.
func (c *Controller) SetPendingInterrupt(t vm.ThreadID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec := c.findRunningThread(t); rec != nil {
		rec.pendingInterrupt = true
	}
}

// Stop throws the given throwable in the thread, deferred until after the
// current event when the thread is mid-dispatch.
func (c *Controller) Stop(t vm.ThreadID, throwable vm.ObjectRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.findRunningThread(t)
	if rec == nil || !rec.handlingEvent() {
		return c.rt.StopThread(t, throwable)
	}
	rec.pendingStop = throwable
	return nil
}

// ApplicationThreadStatus reports a thread's state the way the debugger
// should see it. A thread processing an event is always reported alive even
// if its handler happens to be parked on an internal agent monitor.
func (c *Controller) ApplicationThreadStatus(t vm.ThreadID) (vm.ThreadState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.rt.ThreadState(t)
	if err != nil {
		return state, err
	}
	if rec := c.findRunningThread(t); rec != nil && rec.handlingEvent() {
		state = vm.StateAlive
	}
	return state, nil
}

// GetStepRequest returns the mutable per-thread step state for the step
// subsystem, nil when the thread is unknown.
func (c *Controller) GetStepRequest(t vm.ThreadID) *StepRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec := c.findRunningThread(t); rec != nil {
		return &rec.currentStep
	}
	return nil
}

// GetInvokeRequest returns the mutable per-thread invocation state for the
// invoker subsystem, nil when the thread is unknown.
func (c *Controller) GetInvokeRequest(t vm.ThreadID) *InvokeRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec := c.findRunningThread(t); rec != nil {
		return &rec.currentInvoke
	}
	return nil
}

// DetachInvokes detaches every in-flight method invocation, used when the
// debugger connection drops.
func (c *Controller) DetachInvokes() {
	c.getLocks()
	defer c.releaseLocks()
	_ = c.enumerate(listRunning, func(rec *threadRecord) error {
		c.cfg.Invoker.Detach(&rec.currentInvoke)
		return nil
	})
}

// SaveCLEInfo records the location of a just-posted co-located event so the
// redundant companion report for the same spot can be suppressed.
func (c *Controller) SaveCLEInfo(t vm.ThreadID, kind vm.EventKind, loc vm.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec := c.findRunningThread(t); rec != nil {
		rec.cle.kind = kind
		rec.cle.loc = loc
	}
}

// CmpCLEInfo reports whether a co-located event was already posted for this
// location on the thread.
func (c *Controller) CmpCLEInfo(t vm.ThreadID, loc vm.Location) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.findRunningThread(t)
	return rec != nil && rec.cle.kind != vm.EventNone && rec.cle.loc == loc
}

// ClearCLEInfo forgets the recorded co-located event.
func (c *Controller) ClearCLEInfo(t vm.ThreadID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec := c.findRunningThread(t); rec != nil {
		rec.cle = coLocatedEventInfo{}
	}
}
