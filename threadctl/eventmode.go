package threadctl

import "github.com/hitzhangjie/vmdbg/vm"

// applyEventMode changes event delivery for a live, started thread,
// remembering the single-step mode so a pop-frame can restore it later.
// Callers hold the registry lock.
func (c *Controller) applyEventMode(rec *threadRecord, mode vm.EventMode, kind vm.EventKind) error {
	if kind == vm.EventSingleStep {
		rec.instructionStepMode = mode
	}
	return c.rt.SetEventMode(mode, kind, rec.thread)
}

// SetEventMode changes delivery of an event kind, globally when t is zero.
// A per-thread change targeting a thread that has no started record yet has
// no attachment point in the runtime; the request is queued and applied when
// the thread's start event arrives.
func (c *Controller) SetEventMode(mode vm.EventMode, kind vm.EventKind, t vm.ThreadID) error {
	if t == 0 {
		return c.rt.SetEventMode(mode, kind, 0)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.findRunningThread(t)
	if rec == nil || !rec.isStarted {
		c.deferredModes = append(c.deferredModes, deferredEventMode{thread: t, kind: kind, mode: mode})
		return nil
	}
	return c.applyEventMode(rec, mode, kind)
}

// processDeferredEventModes applies and removes every queued mode change for
// the thread that just started. Entries for other threads are left in place;
// application order does not matter. Registry lock held.
func (c *Controller) processDeferredEventModes(t vm.ThreadID, rec *threadRecord) {
	kept := c.deferredModes[:0]
	for _, dm := range c.deferredModes {
		if dm.thread != t {
			kept = append(kept, dm)
			continue
		}
		if err := c.applyEventMode(rec, dm.mode, dm.kind); err != nil {
			c.fatal("cannot process deferred event notifications at thread start", err)
		}
	}
	c.deferredModes = kept
}

// InstructionStepMode reports the last requested single-step mode of a
// thread, ModeDisable when the thread is unknown.
func (c *Controller) InstructionStepMode(t vm.ThreadID) vm.EventMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec := c.findRunningThread(t); rec != nil {
		return rec.instructionStepMode
	}
	return vm.ModeDisable
}
