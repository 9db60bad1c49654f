package threadctl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/vmdbg/vm"
)

func TestOnHookSeedsPreexistingThreads(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	rt.CreateThread(2, false, true)
	rt.CreateThread(10, true, true) // lightweight, not enumerated
	require.NoError(t, ctl.OnHook())

	assert.Equal(t, int64(0), ctl.FrameGeneration(1))
	assert.Equal(t, int64(0), ctl.FrameGeneration(2))
	assert.Equal(t, int64(-1), ctl.FrameGeneration(10))
	assert.Equal(t, int64(-1), ctl.FrameGeneration(99))

	// Pre-existing threads never deliver a start event; stepping must be
	// possible on them immediately rather than queued.
	require.NoError(t, ctl.SetEventMode(vm.ModeEnable, vm.EventSingleStep, 1))
	assert.Equal(t, 1, rt.CallCount("SetEventMode", 1))
}

func TestThreadEndFreesRecord(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	require.NoError(t, ctl.OnHook())
	require.NoError(t, ctl.SuspendThread(1, false))

	bag, consumed := ctl.OnEventHandlerEntry(vm.EventThreadEnd, 1)
	require.False(t, consumed)
	ctl.OnEventHandlerExit(vm.EventThreadEnd, 1, bag)

	assert.Equal(t, int64(-1), ctl.FrameGeneration(1))
	assert.Equal(t, 0, mustCount(t, ctl, 1))
}

func TestEventOnUnknownThreadCreatesRecord(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(3, false, true)

	// Some runtimes deliver events before the start event is seen.
	bag, consumed := ctl.OnEventHandlerEntry(vm.EventMethodEntry, 3)
	require.False(t, consumed)
	ctl.OnEventHandlerExit(vm.EventMethodEntry, 3, bag)

	assert.Equal(t, int64(0), ctl.FrameGeneration(3))
}

func TestAllLightweightTracksOnlyKnownThreads(t *testing.T) {
	ctl, rt := newTestController(func(cfg *Config) { cfg.RetainLightweight = true })
	rt.CreateThread(10, true, true)
	rt.CreateThread(11, true, true)
	require.NoError(t, ctl.OnHook())
	assert.Empty(t, ctl.AllLightweight())

	require.NoError(t, ctl.SuspendThread(10, false))
	bag, _ := ctl.OnEventHandlerEntry(vm.EventBreakpoint, 11)
	ctl.OnEventHandlerExit(vm.EventBreakpoint, 11, bag)

	lite := ctl.AllLightweight()
	assert.ElementsMatch(t, []vm.ThreadID{10, 11}, lite)
}

func TestApplicationThreadStatusDuringEvent(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	require.NoError(t, ctl.OnHook())

	state, err := ctl.ApplicationThreadStatus(1)
	require.NoError(t, err)
	assert.Equal(t, vm.StateAlive, state)

	// Mid-event the thread is reported alive no matter what the runtime
	// says; its handler may be parked on an internal agent monitor.
	bag, _ := ctl.OnEventHandlerEntry(vm.EventBreakpoint, 1)
	rt.EndThread(1)
	state, err = ctl.ApplicationThreadStatus(1)
	require.NoError(t, err)
	assert.Equal(t, vm.StateAlive, state)

	ctl.OnEventHandlerExit(vm.EventBreakpoint, 1, bag)
	state, err = ctl.ApplicationThreadStatus(1)
	require.NoError(t, err)
	assert.Equal(t, vm.StateZombie, state)
}

func TestBlockOnDebuggerSuspend(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	require.NoError(t, ctl.OnHook())
	require.NoError(t, ctl.SuspendThread(1, false))

	released := make(chan struct{})
	go func() {
		ctl.BlockOnDebuggerSuspend(1)
		close(released)
	}()

	time.Sleep(10 * time.Millisecond)
	select {
	case <-released:
		t.Fatal("waiter released while thread still suspended")
	default:
	}

	require.NoError(t, ctl.ResumeThread(1))
	<-released
}
