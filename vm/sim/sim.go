// Package sim provides an in-memory runtime implementing vm.Runtime. It is
// used by the interactive shell and by the agent core's tests: every
// primitive call is appended to an ordered trace so tests can assert exactly
// which suspend/resume operations were issued, and per-thread state
// (liveness, physical suspension, stack depth) is directly controllable.
package sim

import (
	"sync"

	"github.com/hitzhangjie/vmdbg/vm"
)

// Call is one recorded primitive invocation.
type Call struct {
	Op     string
	Thread vm.ThreadID
}

type simThread struct {
	id          vm.ThreadID
	lightweight bool
	state       vm.ThreadState
	suspended   bool
	interrupted bool
	stopped     vm.ObjectRef
	frames      int
}

// Runtime is a simulated managed runtime.
type Runtime struct {
	mu      sync.Mutex
	threads map[vm.ThreadID]*simThread
	calls   []Call

	// AfterResume, when set, is invoked (outside the runtime lock) after a
	// successful single-thread resume. The pop-frame tests use it to drive
	// the event-handler hook from a second goroutine.
	AfterResume func(t vm.ThreadID)
}

// NewRuntime creates an empty simulated runtime.
func NewRuntime() *Runtime {
	return &Runtime{threads: make(map[vm.ThreadID]*simThread)}
}

// CreateThread registers a thread. Started threads begin alive with the
// given stack depth; unstarted ones must be started with StartThread before
// they can be suspended for real.
func (r *Runtime) CreateThread(t vm.ThreadID, lightweight, started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := vm.StateUnstarted
	if started {
		st = vm.StateAlive
	}
	r.threads[t] = &simThread{id: t, lightweight: lightweight, state: st, frames: 1}
}

// StartThread moves an unstarted thread to the alive state.
func (r *Runtime) StartThread(t vm.ThreadID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if th, ok := r.threads[t]; ok && th.state == vm.StateUnstarted {
		th.state = vm.StateAlive
	}
}

// EndThread moves a thread to the zombie state.
func (r *Runtime) EndThread(t vm.ThreadID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if th, ok := r.threads[t]; ok {
		th.state = vm.StateZombie
		th.suspended = false
	}
}

// SetFrames sets the stack depth used by PopFrame.
func (r *Runtime) SetFrames(t vm.ThreadID, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if th, ok := r.threads[t]; ok {
		th.frames = n
	}
}

// FrameCount returns the thread's remaining stack depth.
func (r *Runtime) FrameCount(t vm.ThreadID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if th, ok := r.threads[t]; ok {
		return th.frames
	}
	return 0
}

// Suspended reports whether a thread is physically suspended.
func (r *Runtime) Suspended(t vm.ThreadID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	th, ok := r.threads[t]
	return ok && th.suspended
}

// Interrupted reports whether Interrupt was issued for the thread.
func (r *Runtime) Interrupted(t vm.ThreadID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	th, ok := r.threads[t]
	return ok && th.interrupted
}

// StoppedWith returns the throwable installed by StopThread, zero if none.
func (r *Runtime) StoppedWith(t vm.ThreadID) vm.ObjectRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	if th, ok := r.threads[t]; ok {
		return th.stopped
	}
	return 0
}

// Calls returns a copy of the primitive-call trace.
func (r *Runtime) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount counts recorded calls of one operation, optionally restricted to
// one thread (pass 0 for any).
func (r *Runtime) CallCount(op string, t vm.ThreadID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Op == op && (t == 0 || c.Thread == t) {
			n++
		}
	}
	return n
}

// ClearCalls drops the recorded trace.
func (r *Runtime) ClearCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Runtime) record(op string, t vm.ThreadID) {
	r.calls = append(r.calls, Call{Op: op, Thread: t})
}

// ThreadState implements vm.Runtime.
func (r *Runtime) ThreadState(t vm.ThreadID) (vm.ThreadState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	th, ok := r.threads[t]
	if !ok {
		return 0, vm.ErrInvalidThread
	}
	return th.state, nil
}

// IsLightweight implements vm.Runtime. Unknown threads are reported as
// non-lightweight.
func (r *Runtime) IsLightweight(t vm.ThreadID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	th, ok := r.threads[t]
	return ok && th.lightweight
}

// AllThreads implements vm.Runtime: every live non-lightweight thread.
func (r *Runtime) AllThreads() ([]vm.ThreadID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []vm.ThreadID
	for _, th := range r.threads {
		if !th.lightweight && th.state == vm.StateAlive {
			out = append(out, th.id)
		}
	}
	return out, nil
}

func (r *Runtime) suspendLocked(t vm.ThreadID) error {
	th, ok := r.threads[t]
	if !ok {
		return vm.ErrInvalidThread
	}
	if th.state != vm.StateAlive {
		return vm.ErrThreadNotAlive
	}
	if th.suspended {
		return vm.ErrThreadSuspended
	}
	th.suspended = true
	return nil
}

func (r *Runtime) resumeLocked(t vm.ThreadID) error {
	th, ok := r.threads[t]
	if !ok {
		return vm.ErrInvalidThread
	}
	if th.state != vm.StateAlive {
		return vm.ErrThreadNotAlive
	}
	if !th.suspended {
		return vm.ErrThreadNotSuspended
	}
	th.suspended = false
	return nil
}

// SuspendThread implements vm.Runtime.
func (r *Runtime) SuspendThread(t vm.ThreadID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("SuspendThread", t)
	return r.suspendLocked(t)
}

// ResumeThread implements vm.Runtime.
func (r *Runtime) ResumeThread(t vm.ThreadID) error {
	r.mu.Lock()
	r.record("ResumeThread", t)
	err := r.resumeLocked(t)
	hook := r.AfterResume
	r.mu.Unlock()
	if err == nil && hook != nil {
		hook(t)
	}
	return err
}

// SuspendThreadList implements vm.Runtime.
func (r *Runtime) SuspendThreadList(ts []vm.ThreadID) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	results := make([]error, len(ts))
	for i, t := range ts {
		r.record("SuspendThreadList", t)
		results[i] = r.suspendLocked(t)
	}
	return results
}

// ResumeThreadList implements vm.Runtime.
func (r *Runtime) ResumeThreadList(ts []vm.ThreadID) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	results := make([]error, len(ts))
	for i, t := range ts {
		r.record("ResumeThreadList", t)
		results[i] = r.resumeLocked(t)
	}
	return results
}

// SuspendAllLightweight implements vm.Runtime.
func (r *Runtime) SuspendAllLightweight(exclude []vm.ThreadID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("SuspendAllLightweight", 0)
	for _, th := range r.threads {
		if th.lightweight && th.state == vm.StateAlive && !containsThread(exclude, th.id) {
			th.suspended = true
		}
	}
	return nil
}

// ResumeAllLightweight implements vm.Runtime.
func (r *Runtime) ResumeAllLightweight(exclude []vm.ThreadID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("ResumeAllLightweight", 0)
	for _, th := range r.threads {
		if th.lightweight && th.state == vm.StateAlive && !containsThread(exclude, th.id) {
			th.suspended = false
		}
	}
	return nil
}

// SetEventMode implements vm.Runtime. The simulator only records the call.
func (r *Runtime) SetEventMode(mode vm.EventMode, kind vm.EventKind, t vm.ThreadID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("SetEventMode", t)
	return nil
}

// PopFrame implements vm.Runtime.
func (r *Runtime) PopFrame(t vm.ThreadID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("PopFrame", t)
	th, ok := r.threads[t]
	if !ok {
		return vm.ErrInvalidThread
	}
	if th.state != vm.StateAlive || !th.suspended {
		return vm.ErrOpaqueFrame
	}
	if th.frames <= 0 {
		return vm.ErrNoMoreFrames
	}
	th.frames--
	return nil
}

// Interrupt implements vm.Runtime.
func (r *Runtime) Interrupt(t vm.ThreadID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("Interrupt", t)
	th, ok := r.threads[t]
	if !ok {
		return vm.ErrInvalidThread
	}
	if th.state != vm.StateAlive {
		return vm.ErrThreadNotAlive
	}
	th.interrupted = true
	return nil
}

// StopThread implements vm.Runtime.
func (r *Runtime) StopThread(t vm.ThreadID, throwable vm.ObjectRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("StopThread", t)
	th, ok := r.threads[t]
	if !ok {
		return vm.ErrInvalidThread
	}
	if th.state != vm.StateAlive {
		return vm.ErrThreadNotAlive
	}
	th.stopped = throwable
	return nil
}

func containsThread(list []vm.ThreadID, t vm.ThreadID) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}
