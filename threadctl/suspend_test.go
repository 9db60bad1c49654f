package threadctl

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/vmdbg/vm"
	"github.com/hitzhangjie/vmdbg/vm/sim"
)

func newTestController(opts ...func(*Config)) (*Controller, *sim.Runtime) {
	rt := sim.NewRuntime()
	cfg := Config{Logger: zerolog.Nop(), AssertOn: true}
	for _, o := range opts {
		o(&cfg)
	}
	return New(rt, cfg), rt
}

func mustCount(t *testing.T, c *Controller, tid vm.ThreadID) int {
	t.Helper()
	n, err := c.SuspendCount(tid)
	require.NoError(t, err)
	return n
}

func TestSuspendResumeCounts(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	require.NoError(t, ctl.OnHook())

	require.NoError(t, ctl.SuspendThread(1, false))
	assert.True(t, rt.Suspended(1))
	assert.Equal(t, 1, mustCount(t, ctl, 1))

	// Nested suspend only increments the count.
	require.NoError(t, ctl.SuspendThread(1, false))
	assert.Equal(t, 2, mustCount(t, ctl, 1))
	assert.Equal(t, 1, rt.CallCount("SuspendThread", 1))

	// First resume only decrements.
	require.NoError(t, ctl.ResumeThread(1))
	assert.Equal(t, 1, mustCount(t, ctl, 1))
	assert.True(t, rt.Suspended(1))
	assert.Equal(t, 0, rt.CallCount("ResumeThread", 1))

	gen := ctl.FrameGeneration(1)
	require.NoError(t, ctl.ResumeThread(1))
	assert.Equal(t, 0, mustCount(t, ctl, 1))
	assert.False(t, rt.Suspended(1))
	assert.Equal(t, 1, rt.CallCount("ResumeThread", 1))
	assert.Greater(t, ctl.FrameGeneration(1), gen)
}

func TestResumeAtZeroIsNoop(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	require.NoError(t, ctl.OnHook())

	require.NoError(t, ctl.ResumeThread(1))
	assert.Equal(t, 0, mustCount(t, ctl, 1))
	assert.Equal(t, 0, rt.CallCount("ResumeThread", 1))

	// Unknown threads were never suspended either.
	require.NoError(t, ctl.ResumeThread(99))
}

func TestSuspendThirdPartySuspended(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	require.NoError(t, ctl.OnHook())

	// Suspended by the application itself beforehand.
	require.NoError(t, rt.SuspendThread(1))
	rt.ClearCalls()

	err := ctl.SuspendThread(1, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, vm.ErrThreadSuspended)
	assert.Equal(t, 0, mustCount(t, ctl, 1))
}

func TestSuspendBeforeStart(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, false)

	// The real suspend cannot happen yet; the request still succeeds and
	// commits one level of bookkeeping.
	require.NoError(t, ctl.SuspendThread(1, false))
	assert.False(t, rt.Suspended(1))
	assert.Equal(t, 1, mustCount(t, ctl, 1))

	// The start event applies the deferred suspend without changing the
	// count.
	rt.StartThread(1)
	bag, consumed := ctl.OnEventHandlerEntry(vm.EventThreadStart, 1)
	require.False(t, consumed)
	ctl.OnEventHandlerExit(vm.EventThreadStart, 1, bag)

	assert.True(t, rt.Suspended(1))
	assert.Equal(t, 1, mustCount(t, ctl, 1))

	require.NoError(t, ctl.ResumeThread(1))
	assert.False(t, rt.Suspended(1))
	assert.Equal(t, 0, mustCount(t, ctl, 1))
}

func TestSuspendAllResumeAll(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	rt.CreateThread(2, false, true)
	rt.CreateThread(10, true, true) // untracked lightweight
	require.NoError(t, ctl.OnHook())

	// Thread 1 is already suspended by the debugger before the suspend-all.
	require.NoError(t, ctl.SuspendThread(1, false))

	require.NoError(t, ctl.SuspendAll())
	assert.True(t, rt.Suspended(1))
	assert.True(t, rt.Suspended(2))
	assert.True(t, rt.Suspended(10))
	assert.Equal(t, 2, mustCount(t, ctl, 1))
	assert.Equal(t, 1, mustCount(t, ctl, 2))
	// Untracked lightweight threads inherit the broadcast depth.
	assert.Equal(t, 1, mustCount(t, ctl, 10))

	require.NoError(t, ctl.ResumeAll())
	// The individually suspended thread keeps its extra level.
	assert.True(t, rt.Suspended(1))
	assert.Equal(t, 1, mustCount(t, ctl, 1))
	assert.False(t, rt.Suspended(2))
	assert.Equal(t, 0, mustCount(t, ctl, 2))
	assert.False(t, rt.Suspended(10))
	assert.Equal(t, 0, mustCount(t, ctl, 10))

	require.NoError(t, ctl.ResumeThread(1))
	assert.False(t, rt.Suspended(1))
	assert.Equal(t, 0, mustCount(t, ctl, 1))
}

func TestSuspendAllUsesBatchPrimitives(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	rt.CreateThread(2, false, true)
	require.NoError(t, ctl.OnHook())

	require.NoError(t, ctl.SuspendAll())
	assert.Equal(t, 0, rt.CallCount("SuspendThread", 0))
	assert.Equal(t, 2, rt.CallCount("SuspendThreadList", 0))
	assert.Equal(t, 1, rt.CallCount("SuspendAllLightweight", 0))

	require.NoError(t, ctl.ResumeAll())
	assert.Equal(t, 0, rt.CallCount("ResumeThread", 0))
	assert.Equal(t, 2, rt.CallCount("ResumeThreadList", 0))
	assert.Equal(t, 1, rt.CallCount("ResumeAllLightweight", 0))
}

func TestNestedSuspendAll(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	rt.CreateThread(10, true, true)
	require.NoError(t, ctl.OnHook())

	require.NoError(t, ctl.SuspendAll())
	require.NoError(t, ctl.SuspendAll())
	assert.Equal(t, 2, mustCount(t, ctl, 1))
	assert.Equal(t, 2, mustCount(t, ctl, 10))
	// The lightweight bulk suspend happens only at depth zero.
	assert.Equal(t, 1, rt.CallCount("SuspendAllLightweight", 0))

	require.NoError(t, ctl.ResumeAll())
	assert.True(t, rt.Suspended(1))
	assert.Equal(t, 1, mustCount(t, ctl, 1))
	assert.Equal(t, 0, rt.CallCount("ResumeAllLightweight", 0))

	require.NoError(t, ctl.ResumeAll())
	assert.False(t, rt.Suspended(1))
	assert.Equal(t, 0, mustCount(t, ctl, 1))
	assert.Equal(t, 1, rt.CallCount("ResumeAllLightweight", 0))
}

func TestTrackedLightweightAcrossSuspendAll(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	rt.CreateThread(11, true, true)
	require.NoError(t, ctl.OnHook())

	// Individually suspending a lightweight thread starts tracking it.
	require.NoError(t, ctl.SuspendThread(11, false))
	assert.True(t, rt.Suspended(11))
	assert.Contains(t, ctl.AllLightweight(), vm.ThreadID(11))

	require.NoError(t, ctl.SuspendAll())
	assert.Equal(t, 2, mustCount(t, ctl, 11))

	// Resume-all must not bulk-resume a thread the debugger still holds.
	require.NoError(t, ctl.ResumeAll())
	assert.True(t, rt.Suspended(11))
	assert.Equal(t, 1, mustCount(t, ctl, 11))

	require.NoError(t, ctl.ResumeThread(11))
	assert.False(t, rt.Suspended(11))
	assert.Equal(t, 0, mustCount(t, ctl, 11))
	// Nothing retains the record anymore.
	assert.NotContains(t, ctl.AllLightweight(), vm.ThreadID(11))
}

func TestThreadStartedDuringSuspendAll(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	require.NoError(t, ctl.OnHook())
	require.NoError(t, ctl.SuspendAll())

	// A thread starting while the world is stopped must come up suspended.
	rt.CreateThread(5, false, false)
	rt.StartThread(5)
	bag, consumed := ctl.OnEventHandlerEntry(vm.EventThreadStart, 5)
	require.False(t, consumed)
	ctl.OnEventHandlerExit(vm.EventThreadStart, 5, bag)

	assert.True(t, rt.Suspended(5))
	assert.Equal(t, 1, mustCount(t, ctl, 5))

	require.NoError(t, ctl.ResumeAll())
	assert.False(t, rt.Suspended(5))
	assert.Equal(t, 0, mustCount(t, ctl, 5))
}

func TestResumeAllUndoesUnfiredDeferredSuspend(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	require.NoError(t, ctl.OnHook())
	require.NoError(t, ctl.SuspendAll())

	// Simulate the moment a start event has registered the thread but its
	// deferred suspend has not fired yet.
	rt.CreateThread(5, false, false)
	rt.StartThread(5)
	ctl.mu.Lock()
	rec := ctl.insertThread(listRunning, 5)
	rec.isStarted = true
	ctl.mu.Unlock()
	assert.Equal(t, 1, mustCount(t, ctl, 5))

	// Resume-all takes back the bookkeeping so the deferred suspend won't
	// fire afterwards.
	require.NoError(t, ctl.ResumeAll())
	assert.Equal(t, 0, mustCount(t, ctl, 5))
	require.NoError(t, ctl.SuspendThread(5, true))
	assert.False(t, rt.Suspended(5))
	assert.Equal(t, 0, rt.CallCount("SuspendThread", 5))
}

func TestDebugThreadsExemptFromSuspension(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	rt.CreateThread(2, false, true)
	require.NoError(t, ctl.OnHook())
	require.NoError(t, ctl.AddDebugThread(2))

	require.NoError(t, ctl.SuspendThread(2, false))
	assert.False(t, rt.Suspended(2))
	assert.Equal(t, 0, mustCount(t, ctl, 2))

	require.NoError(t, ctl.SuspendAll())
	assert.True(t, rt.Suspended(1))
	assert.False(t, rt.Suspended(2))
	assert.Equal(t, 0, rt.CallCount("SuspendThreadList", 2))

	require.NoError(t, ctl.ResumeAll())
	assert.Equal(t, 0, rt.CallCount("ResumeThreadList", 2))
}

func TestDebugThreadRegisteredAfterRecordExists(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	require.NoError(t, ctl.OnHook())

	// The record was seeded before the thread became a debug thread; the
	// registration must still exempt it.
	require.NoError(t, ctl.AddDebugThread(1))
	require.NoError(t, ctl.SuspendThread(1, false))
	assert.Equal(t, 0, rt.CallCount("SuspendThread", 1))
	assert.False(t, rt.Suspended(1))
	assert.Equal(t, 0, mustCount(t, ctl, 1))

	// Deregistering makes it an application thread again.
	require.NoError(t, ctl.RemoveDebugThread(1))
	require.NoError(t, ctl.SuspendThread(1, false))
	assert.True(t, rt.Suspended(1))
	assert.Equal(t, 1, mustCount(t, ctl, 1))
}

func TestDebugThreadTableCapacity(t *testing.T) {
	ctl, _ := newTestController()
	for i := 1; i <= maxDebugThreads; i++ {
		require.NoError(t, ctl.AddDebugThread(vm.ThreadID(i)))
	}
	err := ctl.AddDebugThread(vm.ThreadID(maxDebugThreads + 1))
	assert.ErrorIs(t, err, ErrDebugThreadTableFull)

	require.NoError(t, ctl.RemoveDebugThread(3))
	assert.False(t, ctl.IsDebugThread(3))
	assert.True(t, ctl.IsDebugThread(maxDebugThreads))
	require.NoError(t, ctl.AddDebugThread(vm.ThreadID(maxDebugThreads+1)))

	assert.ErrorIs(t, ctl.RemoveDebugThread(77), ErrNotDebugThread)
}

func TestLightweightEvictedWhenNothingRetainsIt(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(11, true, true)

	require.NoError(t, ctl.SuspendThread(11, false))
	require.Contains(t, ctl.AllLightweight(), vm.ThreadID(11))

	require.NoError(t, ctl.ResumeThread(11))
	assert.Empty(t, ctl.AllLightweight())
	// A fresh suspend starts tracking again from zero.
	require.NoError(t, ctl.SuspendThread(11, false))
	assert.Equal(t, 1, mustCount(t, ctl, 11))
}

func TestLightweightRetainedWhenConfigured(t *testing.T) {
	ctl, rt := newTestController(func(cfg *Config) { cfg.RetainLightweight = true })
	rt.CreateThread(11, true, true)

	require.NoError(t, ctl.SuspendThread(11, false))
	require.NoError(t, ctl.ResumeThread(11))
	assert.Contains(t, ctl.AllLightweight(), vm.ThreadID(11))
}

func TestSuspendCountUnstartedLightweight(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	require.NoError(t, ctl.OnHook())
	require.NoError(t, ctl.SuspendAll())

	// An untracked lightweight thread that has not started is not covered
	// by the bulk suspend.
	rt.CreateThread(12, true, false)
	assert.Equal(t, 0, mustCount(t, ctl, 12))

	rt.StartThread(12)
	assert.Equal(t, 1, mustCount(t, ctl, 12))

	require.NoError(t, ctl.ResumeAll())
}
