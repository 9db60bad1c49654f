package threadctl

import (
	"github.com/hitzhangjie/vmdbg/event"
	"github.com/hitzhangjie/vmdbg/vm"
)

// listKind names the registry collection a record belongs to. Every record
// belongs to exactly one collection at a time.
type listKind int

const (
	listNone listKind = iota
	// listRunning holds threads between their start and end events.
	listRunning
	// listRunningLite holds tracked lightweight threads, not necessarily
	// all lightweight threads that exist.
	listRunningLite
	// listOther holds threads referenced by the debugger before or after
	// their lifecycle window.
	listOther
	// listAny is a query wildcard, never a membership value.
	listAny
)

func (l listKind) String() string {
	switch l {
	case listRunning:
		return "running"
	case listRunningLite:
		return "running-lightweight"
	case listOther:
		return "other"
	case listNone:
		return "none"
	default:
		return "any"
	}
}

// handle indexes a record in the registry arena. Handles are allocated from
// a monotonic counter and never reused, so a stale handle can never reach a
// relocated record.
type handle uint64

// coLocatedEventInfo records that one of the possible co-located event kinds
// has been posted for a location, so the redundant companion report can be
// suppressed. A zero kind means no event is recorded.
type coLocatedEventInfo struct {
	kind vm.EventKind
	loc  vm.Location
}

// StepRequest is the per-thread single-step state. The step subsystem owns
// the contents; the agent core only stores it and clears it through the
// StepControl collaborator when the record dies.
type StepRequest struct {
	Pending   bool
	Depth     int
	Size      int
	FromLine  int
	FrameSeen int64
}

// InvokeRequest is the per-thread method-invocation state. The invoker
// subsystem owns the contents; the agent core only stores it and detaches it
// through the Invoker collaborator.
type InvokeRequest struct {
	Pending   bool
	Detached  bool
	Method    vm.MethodID
	Receiver  vm.ObjectRef
	Exception vm.ObjectRef
}

// threadRecord is the main data structure of the agent core: a per-thread
// record allocated on the first event or debugger reference to a thread and
// freed after the thread-end event has completed processing. It carries the
// suspend bookkeeping plus the per-thread state other subsystems park here.
type threadRecord struct {
	thread vm.ThreadID
	h      handle

	pendingResume    bool // a physical suspend succeeded and must be undone
	pendingInterrupt bool // interrupt arrived while handling an event
	isDebugThread    bool // one of the agent's own threads
	suspendOnStart   bool // suspend must be applied when the thread starts
	isStarted        bool // start event received (or assumed for pre-existing threads)
	isLightweight    bool

	popFrameEvent   bool
	popFrameProceed bool
	popFrameThread  bool

	// currentEvent is non-zero while an event is being handled on this
	// thread; interrupts and stops arriving meanwhile are deferred.
	currentEvent vm.EventKind

	pendingStop vm.ObjectRef

	// suspendCount is the debugger-visible suspension depth, never negative.
	suspendCount int

	instructionStepMode vm.EventMode
	currentStep         StepRequest
	currentInvoke       InvokeRequest
	eventBag            *event.Bag
	cle                 coLocatedEventInfo

	// frameGeneration invalidates previously handed-out frame identifiers;
	// incremented whenever the thread resumes or a frame is popped.
	frameGeneration int64

	list listKind
}

func (rec *threadRecord) handlingEvent() bool {
	return rec.currentEvent != vm.EventNone
}

func newThreadRecord(t vm.ThreadID, h handle) *threadRecord {
	return &threadRecord{
		thread:              t,
		h:                   h,
		instructionStepMode: vm.ModeDisable,
		eventBag:            event.NewBag(),
		list:                listNone,
	}
}

// deferredEventMode is a mode change requested for a thread that has not
// started yet; applied and discarded when the start event arrives.
type deferredEventMode struct {
	thread vm.ThreadID
	kind   vm.EventKind
	mode   vm.EventMode
}
