package threadctl

import (
	"github.com/pkg/errors"

	"github.com/hitzhangjie/vmdbg/vm"
)

// The debug-thread exclusion list identifies the agent's own threads. They
// must never be suspended: a suspended debug thread would deadlock the
// agent against the very commands meant to resume it.

// ErrDebugThreadTableFull is returned when the fixed-capacity exclusion list
// cannot take another entry.
var ErrDebugThreadTableFull = errors.New("debug thread table full")

// ErrNotDebugThread is returned when removing a thread that was never
// registered.
var ErrNotDebugThread = errors.New("not a debug thread")

// AddDebugThread registers one of the agent's own threads so that no
// suspend/resume primitive is ever issued for it.
func (c *Controller) AddDebugThread(t vm.ThreadID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.debugThreadCount >= maxDebugThreads {
		return ErrDebugThreadTableFull
	}
	c.debugThreads[c.debugThreadCount] = t
	c.debugThreadCount++
	// The thread may already have a record, e.g. when it was seeded from the
	// runtime's live enumeration; flag it so the suspend and resume paths
	// skip it from now on.
	if rec := c.findThread(listAny, t); rec != nil {
		rec.isDebugThread = true
	}
	return nil
}

// RemoveDebugThread removes a previously registered debug thread.
func (c *Controller) RemoveDebugThread(t vm.ThreadID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.removeDebugThreadLocked(t); err != nil {
		return err
	}
	if rec := c.findThread(listAny, t); rec != nil {
		rec.isDebugThread = false
	}
	return nil
}

func (c *Controller) removeDebugThreadLocked(t vm.ThreadID) error {
	for i := 0; i < c.debugThreadCount; i++ {
		if c.debugThreads[i] == t {
			copy(c.debugThreads[i:], c.debugThreads[i+1:c.debugThreadCount])
			c.debugThreadCount--
			c.debugThreads[c.debugThreadCount] = 0
			return nil
		}
	}
	return ErrNotDebugThread
}

// IsDebugThread reports whether t is one of the agent's own threads.
func (c *Controller) IsDebugThread(t vm.ThreadID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isDebugThreadLocked(t)
}

func (c *Controller) isDebugThreadLocked(t vm.ThreadID) bool {
	for i := 0; i < c.debugThreadCount; i++ {
		if c.debugThreads[i] == t {
			return true
		}
	}
	return false
}
