// Package threadctl is the thread-suspension coordination core of the debug
// agent. It tracks every thread the debugger knows about, mediates all
// suspend/resume requests (individual, batched and suspend-all) and keeps
// the runtime's event delivery and the debugger's commands from leaving a
// thread in an inconsistent state.
//
// The runtime does not support nested suspension natively, so suspension is
// a two-level concept here: the bookkeeping suspendCount always reflects
// caller intent immediately, while the physical suspend/resume primitive may
// be deferred (thread not started yet) or consolidated (batched calls).
//
// All registry and coordinator state is owned by a Controller created per
// debugging session; there is no package-level state.
package threadctl

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/hitzhangjie/vmdbg/vm"
)

// maxDebugThreads caps the debug-thread exclusion list.
const maxDebugThreads = 10

// StepControl is the step-request subsystem the core notifies when
// per-thread step state must be discarded or recomputed.
type StepControl interface {
	// ClearRequest discards the step state of a dying or reset thread.
	ClearRequest(t vm.ThreadID, step *StepRequest)
	// ResetRequest recomputes step baselines (line, stack depth) after the
	// thread's stack has been altered by a frame pop.
	ResetRequest(t vm.ThreadID)
}

// Invoker is the method-invocation subsystem; the core only forwards
// detach/enable calls around pop-frame and reset.
type Invoker interface {
	Detach(req *InvokeRequest)
	IsEnabled(t vm.ThreadID) bool
	EnableRequests(t vm.ThreadID)
}

// ReferencePinner pins object references reachable from suspended threads so
// they survive while the whole runtime is suspended.
type ReferencePinner interface {
	PinAll()
	UnpinAll()
}

type nopStepControl struct{}

func (nopStepControl) ClearRequest(vm.ThreadID, *StepRequest) {}
func (nopStepControl) ResetRequest(vm.ThreadID)               {}

type nopInvoker struct{}

func (nopInvoker) Detach(*InvokeRequest)      {}
func (nopInvoker) IsEnabled(vm.ThreadID) bool { return false }
func (nopInvoker) EnableRequests(vm.ThreadID) {}

type nopPinner struct{}

func (nopPinner) PinAll()   {}
func (nopPinner) UnpinAll() {}

// Config wires a Controller to its collaborators.
type Config struct {
	Logger zerolog.Logger

	Steps   StepControl
	Invoker Invoker
	Pinner  ReferencePinner

	// OuterLocks are the other subsystem locks that must be held while
	// suspending or resuming threads, in their fixed global order. They are
	// acquired before the registry lock and released in reverse.
	OuterLocks []sync.Locker

	// Unblock notifies the outer event loop that a resume happened and
	// progress may be possible.
	Unblock func()

	// WaitForCallbacks blocks until every in-flight event callback has
	// finished; used by Reset before lightweight records are discarded.
	WaitForCallbacks func()

	// RetainLightweight keeps lightweight-thread records alive after their
	// suspend count returns to zero instead of evicting them.
	RetainLightweight bool

	// AssertOn enables internal consistency checks that are fatal when
	// violated.
	AssertOn bool
}

// Controller owns the thread registry, the debug-thread exclusion list, the
// deferred event-mode queue, the suspend coordinator and the pop-frame
// controller for one debugging session.
type Controller struct {
	rt  vm.Runtime
	cfg Config
	log zerolog.Logger

	// mu is the registry lock. Every registry and coordinator mutation
	// happens under it; cond is broadcast whenever a mutation may satisfy a
	// waiter's suspend-state predicate.
	mu   sync.Mutex
	cond *sync.Cond

	handleSeq *atomic.Uint64

	// records is the arena; the three collections are handle sets into it.
	records map[handle]*threadRecord
	sets    map[listKind]map[handle]struct{}

	// sideChannel maps thread identity to record handle for O(1) lookup.
	// Reads may race with writes from another thread's lifecycle callback;
	// a miss is benign and falls back to scanning the collections.
	sideChannel sync.Map // vm.ThreadID -> handle

	liteCount int

	// suspendAllCount is the number of outstanding suspend-all requests.
	suspendAllCount int

	debugThreads     [maxDebugThreads]vm.ThreadID
	debugThreadCount int

	deferredModes []deferredEventMode

	// callbacksCleared is set once the event-callback system is torn down;
	// from then on side-channel misses may also hit the running collections
	// because thread-end events are no longer delivered.
	callbacksCleared bool

	// Pop-frame uses two monitors separate from mu so the event-handler
	// entry hook can complete the handshake without re-entering the
	// registry lock.
	popEventMu     sync.Mutex
	popEventCond   *sync.Cond
	popProceedMu   sync.Mutex
	popProceedCond *sync.Cond
}

// New creates a Controller for one debugging session.
func New(rt vm.Runtime, cfg Config) *Controller {
	if cfg.Steps == nil {
		cfg.Steps = nopStepControl{}
	}
	if cfg.Invoker == nil {
		cfg.Invoker = nopInvoker{}
	}
	if cfg.Pinner == nil {
		cfg.Pinner = nopPinner{}
	}
	c := &Controller{
		rt:        rt,
		cfg:       cfg,
		log:       cfg.Logger,
		handleSeq: atomic.NewUint64(0),
		records:   make(map[handle]*threadRecord),
		sets: map[listKind]map[handle]struct{}{
			listRunning:     make(map[handle]struct{}),
			listRunningLite: make(map[handle]struct{}),
			listOther:       make(map[handle]struct{}),
		},
	}
	c.cond = sync.NewCond(&c.mu)
	c.popEventCond = sync.NewCond(&c.popEventMu)
	c.popProceedCond = sync.NewCond(&c.popProceedMu)
	return c
}

// getLocks acquires the outer subsystem locks in their fixed order and then
// the registry lock. Suspend/resume logic runs with all of them held so a
// suspended application thread can never be parked mid-execution inside a
// debugger-critical section. releaseLocks undoes it in exact reverse order.
func (c *Controller) getLocks() {
	for _, l := range c.cfg.OuterLocks {
		l.Lock()
	}
	c.mu.Lock()
}

func (c *Controller) releaseLocks() {
	c.mu.Unlock()
	for i := len(c.cfg.OuterLocks) - 1; i >= 0; i-- {
		c.cfg.OuterLocks[i].Unlock()
	}
}

// fatal aborts the process: it is only reached when an internal invariant is
// broken elsewhere and continuing would corrupt suspend bookkeeping.
func (c *Controller) fatal(msg string, err error) {
	c.log.Fatal().Err(err).Msg(msg)
}

func (c *Controller) assert(cond bool, msg string) {
	if c.cfg.AssertOn && !cond {
		c.log.Fatal().Msg("assertion failed: " + msg)
	}
}

// OnHook seeds the registry with the threads that already exist once the
// event hook is in place. Pre-existing threads never deliver a start event,
// so they are assumed started; without that there would be no way to enable
// stepping on them.
func (c *Controller) OnHook() error {
	threads, err := c.rt.AllThreads()
	if err != nil {
		return errors.Wrap(err, "enumerate live threads")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range threads {
		rec := c.insertThread(listRunning, t)
		rec.isStarted = true
	}
	return nil
}

// FrameGeneration returns the thread's current frame generation, -1 when the
// thread is unknown. Frame identifiers minted under an older generation must
// be treated as stale.
func (c *Controller) FrameGeneration(t vm.ThreadID) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec := c.findThread(listAny, t); rec != nil {
		return rec.frameGeneration
	}
	return -1
}

// AllLightweight snapshots the identities of every tracked lightweight
// thread.
func (c *Controller) AllLightweight() []vm.ThreadID {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.sets[listRunningLite]
	c.assert(len(set) == c.liteCount, "lightweight-thread count out of sync")
	out := make([]vm.ThreadID, 0, len(set))
	for h := range set {
		out = append(out, c.records[h].thread)
	}
	return out
}

// BlockOnDebuggerSuspend parks the caller until the thread is no longer
// suspended by the debugger (or is unknown). Every coordinator mutation that
// can change the predicate broadcasts the condition.
func (c *Controller) BlockOnDebuggerSuspend(t vm.ThreadID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		rec := c.findThread(listAny, t)
		if rec == nil || rec.suspendCount == 0 {
			return
		}
		c.cond.Wait()
	}
}

// Reset is the bulk-cancellation path used on session teardown: every
// outstanding physical suspension is force-resumed, per-thread step state is
// cleared, the deferred-mode queue is drained and, after any in-flight event
// callback has finished, lightweight records are discarded.
func (c *Controller) Reset() {
	c.getLocks()

	if c.suspendAllCount > 0 {
		if err := c.rt.ResumeAllLightweight(nil); err != nil {
			c.fatal("cannot resume all lightweight threads", err)
		}
	}

	resetRecord := func(rec *threadRecord) error {
		if rec.pendingResume {
			if err := c.rt.ResumeThread(rec.thread); err != nil {
				c.log.Debug().Err(err).Int64("thread", int64(rec.thread)).Msg("reset: resume failed")
			}
			rec.frameGeneration++
		}
		c.cfg.Steps.ClearRequest(rec.thread, &rec.currentStep)
		rec.pendingResume = false
		rec.suspendCount = 0
		rec.suspendOnStart = false
		return nil
	}
	_ = c.enumerate(listRunning, resetRecord)
	_ = c.enumerate(listOther, resetRecord)
	_ = c.enumerate(listRunningLite, resetRecord)

	c.removeResumed(listOther)
	c.deferredModes = nil
	c.suspendAllCount = 0

	c.assert(len(c.sets[listOther]) == 0, "other-threads collection not empty after reset")

	// Waiters could be parked in BlockOnDebuggerSuspend.
	c.cond.Broadcast()
	c.releaseLocks()

	if !c.cfg.RetainLightweight {
		// Wait for in-flight callbacks outside any lock: the records may be
		// referenced while those callbacks unwind, and the callbacks may in
		// turn need the registry lock to finish.
		if c.cfg.WaitForCallbacks != nil {
			c.cfg.WaitForCallbacks()
		}
		c.mu.Lock()
		c.removeLightweights()
		c.mu.Unlock()
	}
}
