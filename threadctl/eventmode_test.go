package threadctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/vmdbg/vm"
)

func TestGlobalEventModeAppliedImmediately(t *testing.T) {
	ctl, rt := newTestController()
	require.NoError(t, ctl.SetEventMode(vm.ModeEnable, vm.EventBreakpoint, 0))
	assert.Equal(t, 1, rt.CallCount("SetEventMode", 0))
}

func TestDeferredEventModeAppliedOnce(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(7, false, false)

	// The thread has no started record; the request must wait for it.
	require.NoError(t, ctl.SetEventMode(vm.ModeEnable, vm.EventBreakpoint, 7))
	require.NoError(t, ctl.SetEventMode(vm.ModeEnable, vm.EventSingleStep, 7))
	assert.Equal(t, 0, rt.CallCount("SetEventMode", 7))

	rt.StartThread(7)
	bag, _ := ctl.OnEventHandlerEntry(vm.EventThreadStart, 7)
	ctl.OnEventHandlerExit(vm.EventThreadStart, 7, bag)
	assert.Equal(t, 2, rt.CallCount("SetEventMode", 7))
	assert.Equal(t, vm.ModeEnable, ctl.InstructionStepMode(7))

	// The queue was drained; nothing fires again.
	rt.ClearCalls()
	bag, _ = ctl.OnEventHandlerEntry(vm.EventThreadStart, 7)
	ctl.OnEventHandlerExit(vm.EventThreadStart, 7, bag)
	assert.Equal(t, 0, rt.CallCount("SetEventMode", 7))
}

func TestDeferredEventModeKeepsOtherThreadsQueued(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(7, false, false)
	rt.CreateThread(8, false, false)

	require.NoError(t, ctl.SetEventMode(vm.ModeEnable, vm.EventBreakpoint, 7))
	require.NoError(t, ctl.SetEventMode(vm.ModeEnable, vm.EventBreakpoint, 8))

	rt.StartThread(7)
	bag, _ := ctl.OnEventHandlerEntry(vm.EventThreadStart, 7)
	ctl.OnEventHandlerExit(vm.EventThreadStart, 7, bag)
	assert.Equal(t, 1, rt.CallCount("SetEventMode", 7))
	assert.Equal(t, 0, rt.CallCount("SetEventMode", 8))

	rt.StartThread(8)
	bag, _ = ctl.OnEventHandlerEntry(vm.EventThreadStart, 8)
	ctl.OnEventHandlerExit(vm.EventThreadStart, 8, bag)
	assert.Equal(t, 1, rt.CallCount("SetEventMode", 8))
}

func TestEventModeOnStartedThread(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	require.NoError(t, ctl.OnHook())

	require.NoError(t, ctl.SetEventMode(vm.ModeEnable, vm.EventSingleStep, 1))
	assert.Equal(t, vm.ModeEnable, ctl.InstructionStepMode(1))
	require.NoError(t, ctl.SetEventMode(vm.ModeDisable, vm.EventSingleStep, 1))
	assert.Equal(t, vm.ModeDisable, ctl.InstructionStepMode(1))
	assert.Equal(t, 2, rt.CallCount("SetEventMode", 1))
}
