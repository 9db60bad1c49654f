package vm

import "errors"

// Sentinel results a Runtime may report. The agent core recognizes these and
// converts some of them into bookkeeping state instead of failures; anything
// else is propagated to the caller unchanged.
var (
	// ErrThreadNotAlive means the thread is a zombie or not yet started.
	// Suspend converts this into a deferred suspend; resume of a thread
	// that never ran ignores it.
	ErrThreadNotAlive = errors.New("thread not alive")

	// ErrThreadSuspended means the thread was already suspended by a third
	// party. Treated as success, but the suspension is not owned by the
	// agent and will not be undone by it.
	ErrThreadSuspended = errors.New("thread already suspended")

	// ErrThreadNotSuspended means resume was issued for a thread that is
	// not physically suspended.
	ErrThreadNotSuspended = errors.New("thread not suspended")

	// ErrInvalidThread means the thread identity is unknown to the runtime.
	ErrInvalidThread = errors.New("invalid thread")

	// ErrOpaqueFrame means the top frame cannot be popped, e.g. a native
	// frame or a thread that is not suspended.
	ErrOpaqueFrame = errors.New("opaque frame")

	// ErrNoMoreFrames means the thread has no frame left to pop.
	ErrNoMoreFrames = errors.New("no more frames")
)
