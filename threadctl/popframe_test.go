package threadctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/vmdbg/vm"
	"github.com/hitzhangjie/vmdbg/vm/sim"
)

// wirePopCompletion makes the simulated runtime behave like a real one
// during frame pops: each time the target thread is resumed it reports a
// single-step event, delivered through the event-handler hook on its own
// goroutine the way a real thread would.
func wirePopCompletion(ctl *Controller, rt *sim.Runtime) <-chan bool {
	consumed := make(chan bool, 16)
	rt.AfterResume = func(tid vm.ThreadID) {
		go func() {
			_, ok := ctl.OnEventHandlerEntry(vm.EventSingleStep, tid)
			consumed <- ok
		}()
	}
	return consumed
}

func TestPopFramesHandshake(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	rt.SetFrames(1, 5)
	require.NoError(t, ctl.OnHook())
	require.NoError(t, ctl.SuspendThread(1, false))

	gen := ctl.FrameGeneration(1)
	consumed := wirePopCompletion(ctl, rt)

	require.NoError(t, ctl.PopFrames(1, 1)) // frame index 1: pop two frames

	assert.Equal(t, 3, rt.FrameCount(1))
	assert.True(t, rt.Suspended(1), "thread must end up re-suspended")
	assert.Equal(t, 1, mustCount(t, ctl, 1), "suspend count unchanged by pop")
	assert.Greater(t, ctl.FrameGeneration(1), gen)

	// Both completion events were swallowed by the handshake.
	assert.True(t, <-consumed)
	assert.True(t, <-consumed)
}

func TestPopFramesRejectsBadFrameIndex(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	require.NoError(t, ctl.OnHook())

	err := ctl.PopFrames(1, -1)
	assert.ErrorIs(t, err, vm.ErrNoMoreFrames)
}

func TestPopFramesRequiresSuspendedThread(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	rt.SetFrames(1, 5)
	require.NoError(t, ctl.OnHook())

	err := ctl.PopFrames(1, 0)
	assert.ErrorIs(t, err, vm.ErrOpaqueFrame)
	assert.Equal(t, 5, rt.FrameCount(1))
}

type stepRecorder struct {
	nopStepControl
	reset []vm.ThreadID
}

func (r *stepRecorder) ResetRequest(t vm.ThreadID) {
	r.reset = append(r.reset, t)
}

func TestPopFramesRestoresStepState(t *testing.T) {
	steps := &stepRecorder{}
	ctl, rt := newTestController(func(cfg *Config) { cfg.Steps = steps })
	rt.CreateThread(1, false, true)
	rt.SetFrames(1, 5)
	require.NoError(t, ctl.OnHook())
	require.NoError(t, ctl.SuspendThread(1, false))

	// The debugger had stepping enabled before the pop.
	require.NoError(t, ctl.SetEventMode(vm.ModeEnable, vm.EventSingleStep, 1))

	_ = wirePopCompletion(ctl, rt)
	require.NoError(t, ctl.PopFrames(1, 0))

	// The step request was recomputed for the new top frame and the step
	// mode came back enabled.
	assert.Equal(t, []vm.ThreadID{1}, steps.reset)
	assert.Equal(t, vm.ModeEnable, ctl.InstructionStepMode(1))
}

func TestPopFramesTogglesSingleStep(t *testing.T) {
	ctl, rt := newTestController()
	rt.CreateThread(1, false, true)
	rt.SetFrames(1, 5)
	require.NoError(t, ctl.OnHook())
	require.NoError(t, ctl.SuspendThread(1, false))
	rt.ClearCalls()

	_ = wirePopCompletion(ctl, rt)
	require.NoError(t, ctl.PopFrames(1, 0))

	// Stepping is forced on for the pop and restored to disabled after.
	assert.Equal(t, 2, rt.CallCount("SetEventMode", 1))
	assert.Equal(t, vm.ModeDisable, ctl.InstructionStepMode(1))
}
