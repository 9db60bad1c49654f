// Package vm defines the control surface the debug agent needs from a
// managed runtime: thread liveness queries, suspend/resume primitives
// (single, batched and all-lightweight), event notification modes, frame
// popping and thread interrupt/stop. The agent core never talks to a
// runtime directly; everything goes through the Runtime interface so that
// the core can be driven by a real runtime binding or by the in-memory
// simulator in vm/sim.
package vm

// ThreadID identifies a runtime thread. IDs are assigned by the runtime and
// are never reused within a session. The zero value means "no thread".
type ThreadID int64

// ObjectRef is an opaque reference to an object inside the runtime, e.g. the
// throwable installed by a stop request. The zero value means "no object".
type ObjectRef int64

// ClassID and MethodID identify a class and a method inside the runtime.
type ClassID int64
type MethodID int64

// Location is a code position inside the runtime, used to recognize
// co-located events reported for the same spot.
type Location struct {
	Class     ClassID
	Method    MethodID
	CodeIndex int64
}

// ThreadState is the runtime's own view of a thread's lifecycle.
type ThreadState int

const (
	// StateUnstarted means the thread object exists but has never run.
	StateUnstarted ThreadState = iota
	// StateAlive means the thread is between its start and end events.
	StateAlive
	// StateZombie means the thread has terminated.
	StateZombie
)

func (s ThreadState) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateAlive:
		return "alive"
	case StateZombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// EventMode enables or disables delivery of an event kind.
type EventMode int

const (
	ModeDisable EventMode = iota
	ModeEnable
)

func (m EventMode) String() string {
	if m == ModeEnable {
		return "enable"
	}
	return "disable"
}

// EventKind enumerates the runtime event kinds the agent core cares about.
// EventNone doubles as the "not handling any event" marker on a thread
// record.
type EventKind int

const (
	EventNone EventKind = iota
	EventThreadStart
	EventThreadEnd
	EventSingleStep
	EventBreakpoint
	EventException
	EventFieldAccess
	EventFieldModification
	EventMethodEntry
	EventMethodExit
	EventFramePop
)

var eventKindNames = map[EventKind]string{
	EventNone:              "none",
	EventThreadStart:       "thread-start",
	EventThreadEnd:         "thread-end",
	EventSingleStep:        "single-step",
	EventBreakpoint:        "breakpoint",
	EventException:         "exception",
	EventFieldAccess:       "field-access",
	EventFieldModification: "field-modification",
	EventMethodEntry:       "method-entry",
	EventMethodExit:        "method-exit",
	EventFramePop:          "frame-pop",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Runtime is the full set of primitives the agent core issues against the
// managed runtime.
//
// Batched operations return one result per input thread, positionally; a nil
// entry means success. The recognized sentinel errors (ErrThreadNotAlive,
// ErrThreadSuspended, ...) must be returned wrapped or verbatim so callers
// can match them with errors.Is.
type Runtime interface {
	// ThreadState reports the lifecycle state of a thread.
	ThreadState(t ThreadID) (ThreadState, error)

	// IsLightweight reports whether t is a lightweight thread, i.e. a
	// cheaply created logical thread not part of the AllThreads set.
	IsLightweight(t ThreadID) bool

	// AllThreads enumerates every live non-lightweight thread.
	AllThreads() ([]ThreadID, error)

	SuspendThread(t ThreadID) error
	ResumeThread(t ThreadID) error

	// SuspendThreadList suspends every listed thread, returning a
	// per-thread result.
	SuspendThreadList(ts []ThreadID) []error
	// ResumeThreadList resumes every listed thread, returning a
	// per-thread result.
	ResumeThreadList(ts []ThreadID) []error

	// SuspendAllLightweight suspends every lightweight thread except the
	// given ones in a single operation.
	SuspendAllLightweight(exclude []ThreadID) error
	// ResumeAllLightweight resumes every lightweight thread except the
	// given ones in a single operation.
	ResumeAllLightweight(exclude []ThreadID) error

	// SetEventMode changes delivery of an event kind, per thread when t is
	// non-zero, globally otherwise.
	SetEventMode(mode EventMode, kind EventKind, t ThreadID) error

	// PopFrame discards the top stack frame of a suspended thread. The
	// thread stays suspended; it must be resumed for the pop to take
	// effect.
	PopFrame(t ThreadID) error

	// Interrupt interrupts a thread.
	Interrupt(t ThreadID) error
	// StopThread asynchronously throws the given throwable in the thread.
	StopThread(t ThreadID, throwable ObjectRef) error
}
