package threadctl

import (
	"github.com/pkg/errors"

	"github.com/hitzhangjie/vmdbg/vm"
)

// Pop-frame flag accessors. The flags live on the thread record and are
// guarded by the registry lock, but the handshake itself waits on the two
// dedicated monitors below, never on the registry lock.

func (c *Controller) getPopFrameThread(t vm.ThreadID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.findRunningThread(t)
	return rec != nil && rec.popFrameThread
}

func (c *Controller) setPopFrameThread(t vm.ThreadID, v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.findRunningThread(t)
	if rec == nil {
		c.fatal("pop-frame thread record missing", nil)
		return
	}
	rec.popFrameThread = v
}

func (c *Controller) getPopFrameEvent(t vm.ThreadID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.findRunningThread(t)
	return rec != nil && rec.popFrameEvent
}

func (c *Controller) setPopFrameEvent(t vm.ThreadID, v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.findRunningThread(t)
	if rec == nil {
		c.fatal("pop-frame thread record missing", nil)
		return
	}
	rec.popFrameEvent = v
	rec.frameGeneration++
}

func (c *Controller) getPopFrameProceed(t vm.ThreadID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.findRunningThread(t)
	return rec != nil && rec.popFrameProceed
}

func (c *Controller) setPopFrameProceed(t vm.ThreadID, v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.findRunningThread(t)
	if rec == nil {
		c.fatal("pop-frame thread record missing", nil)
		return
	}
	rec.popFrameProceed = v
}

// popOneFrame discards the top frame of a suspended thread. The runtime only
// materializes the pop when the thread next executes, so the thread is
// briefly resumed and the single-step event it then reports is used as the
// completion signal. Caller holds popEventMu.
func (c *Controller) popOneFrame(t vm.ThreadID) error {
	if err := c.rt.PopFrame(t); err != nil {
		return err
	}

	// Resume the thread so the pop can complete; the step event handler
	// will wake us through popFrameCompleteEvent.
	if err := c.rt.ResumeThread(t); err != nil {
		return errors.Wrap(err, "resume for frame pop")
	}

	c.setPopFrameEvent(t, false)
	for !c.getPopFrameEvent(t) {
		c.popEventCond.Wait()
	}

	// Hold the proceed monitor across the re-suspend so the popped thread
	// cannot run past the handshake.
	c.popProceedMu.Lock()

	err := c.rt.SuspendThread(t)

	c.setPopFrameProceed(t, true)
	c.popProceedCond.Signal()
	c.popProceedMu.Unlock()

	if err != nil {
		return errors.Wrap(err, "suspend after frame pop")
	}
	return nil
}

// PopFrames discards all frames up to and including the given frame index on
// a suspended thread. Single stepping is forced on for the duration so the
// runtime reports back after each pop; any step or invoke state the debugger
// had installed is restored afterwards.
func (c *Controller) PopFrames(t vm.ThreadID, frame int) error {
	popCount := frame + 1
	if popCount < 1 {
		return vm.ErrNoMoreFrames
	}

	prevStepMode := c.InstructionStepMode(t)
	prevInvokeEnabled := c.cfg.Invoker.IsEnabled(t)

	if err := c.SetEventMode(vm.ModeEnable, vm.EventSingleStep, t); err != nil {
		return errors.Wrap(err, "enable single step for frame pop")
	}

	c.popEventMu.Lock()
	c.setPopFrameThread(t, true)

	var err error
	for i := 0; i < popCount; i++ {
		if err = c.popOneFrame(t); err != nil {
			break
		}
	}

	c.setPopFrameThread(t, false)
	c.popEventMu.Unlock()

	if prevStepMode == vm.ModeEnable {
		// The pop trashed the step machinery; rebuild the pending request.
		c.cfg.Steps.ResetRequest(t)
	}
	if prevInvokeEnabled {
		c.cfg.Invoker.EnableRequests(t)
	}
	if merr := c.SetEventMode(prevStepMode, vm.EventSingleStep, t); err == nil && merr != nil {
		err = errors.Wrap(merr, "restore single step mode")
	}

	return err
}

// popFrameCompleteEvent runs on the popped thread when its completion event
// arrives: it wakes the debugger side, then parks until the debugger has
// re-suspended it and released the proceed monitor.
func (c *Controller) popFrameCompleteEvent(t vm.ThreadID) {
	c.popProceedMu.Lock()

	c.popEventMu.Lock()
	c.setPopFrameEvent(t, true)
	c.popEventCond.Signal()
	c.popEventMu.Unlock()

	c.setPopFrameProceed(t, false)
	for !c.getPopFrameProceed(t) {
		c.popProceedCond.Wait()
	}

	c.popProceedMu.Unlock()
}

// checkForPopFrameEvents filters events reported by a thread that is in the
// middle of a frame pop. It returns true when the event must be consumed
// instead of dispatched.
func (c *Controller) checkForPopFrameEvents(kind vm.EventKind, t vm.ThreadID) bool {
	if !c.getPopFrameThread(t) {
		return false
	}

	switch kind {
	case vm.EventThreadStart:
		// Can't be, the thread is already running.
		c.fatal("thread start during frame pop", nil)
	case vm.EventThreadEnd:
		// The thread died mid-pop. Terminate the handshake so the debugger
		// side does not hang, then let the end event through.
		c.setPopFrameThread(t, false)
		c.popFrameCompleteEvent(t)
	case vm.EventSingleStep:
		// This is the completion signal the pop is waiting for.
		c.popFrameCompleteEvent(t)
		return true
	case vm.EventBreakpoint, vm.EventException, vm.EventFieldAccess,
		vm.EventFieldModification, vm.EventMethodEntry, vm.EventMethodExit:
		// Events the popped thread trips while briefly resumed are noise.
		return true
	}
	return false
}
