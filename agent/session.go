// Package agent glues the thread-suspension core to a debugger front-end:
// events dispatched by the runtime flow through the controller's lifecycle
// hooks and out on a pub/sub channel the front-end subscribes to.
package agent

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/hitzhangjie/vmdbg/event"
	"github.com/hitzhangjie/vmdbg/threadctl"
	"github.com/hitzhangjie/vmdbg/vm"
)

// Pub/sub topics the session publishes on.
const (
	// TopicEvents carries composite debug events as JSON-encoded
	// []event.Item payloads.
	TopicEvents = "debug.events"
	// TopicResumed carries a notification each time a resume may have
	// unblocked threads parked on a debugger suspension.
	TopicResumed = "debug.resumed"
)

// Session owns one debugged runtime and its suspension controller.
type Session struct {
	ID  uuid.UUID
	rt  vm.Runtime
	ctl *threadctl.Controller

	pubsub *gochannel.GoChannel
	log    zerolog.Logger
	seq    *atomic.Uint64

	// handlerMu serializes event dispatch, standing in for the event
	// handler lock the controller expects above its own registry lock.
	handlerMu sync.Mutex
}

// Option adjusts how New wires the controller.
type Option func(*threadctl.Config)

// WithRetainLightweight keeps lightweight thread records around after their
// last suspension is undone instead of evicting them.
func WithRetainLightweight(retain bool) Option {
	return func(cfg *threadctl.Config) { cfg.RetainLightweight = retain }
}

// New builds a session around a runtime and wires the controller on top.
func New(rt vm.Runtime, log zerolog.Logger, opts ...Option) *Session {
	id := uuid.New()
	s := &Session{
		ID: id,
		rt: rt,
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			// A debugger front-end needs events in dispatch order; blocking
			// each publish on the subscriber ack is what makes consecutive
			// composites arrive in the order they were dispatched.
			BlockPublishUntilSubscriberAck: true,
		}, watermill.NopLogger{}),
		log: log.With().Str("session", id.String()).Logger(),
		seq: atomic.NewUint64(0),
	}
	cfg := threadctl.Config{
		Logger:     s.log,
		OuterLocks: []sync.Locker{&s.handlerMu},
		Unblock:    s.notifyResumed,
	}
	for _, o := range opts {
		o(&cfg)
	}
	s.ctl = threadctl.New(rt, cfg)
	return s
}

// Controller exposes the suspension controller for command handlers.
func (s *Session) Controller() *threadctl.Controller { return s.ctl }

// Runtime exposes the debugged runtime.
func (s *Session) Runtime() vm.Runtime { return s.rt }

// Dispatch routes one runtime event through the controller's lifecycle hooks
// and publishes the composite that results. It must run on the goroutine
// standing in for the reporting thread.
func (s *Session) Dispatch(kind vm.EventKind, t vm.ThreadID, loc vm.Location) error {
	// The entry hook may block applying a deferred suspend, so handlerMu is
	// deliberately not held here; the controller takes it itself when it
	// needs the full lock chain.
	bag, consumed := s.ctl.OnEventHandlerEntry(kind, t)
	if consumed {
		return nil
	}

	if bag == nil {
		bag = event.NewBag()
	}
	bag.Add(event.Item{
		Kind:     kind,
		Thread:   t,
		Location: loc,
		Seq:      s.seq.Inc(),
	})

	s.ctl.OnEventHandlerExit(kind, t, bag)

	items := bag.Drain()
	b, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "encode event composite")
	}
	if err := s.pubsub.Publish(TopicEvents, message.NewMessage(watermill.NewUUID(), b)); err != nil {
		return errors.Wrap(err, "publish event composite")
	}
	s.log.Debug().
		Str("kind", kind.String()).
		Int64("thread", int64(t)).
		Int("events", len(items)).
		Msg("dispatched composite")
	return nil
}

func (s *Session) notifyResumed() {
	msg := message.NewMessage(watermill.NewUUID(), nil)
	if err := s.pubsub.Publish(TopicResumed, msg); err != nil {
		s.log.Warn().Err(err).Msg("publish resume notification")
	}
}

// Events subscribes to the composite event stream.
func (s *Session) Events(ctx context.Context) (<-chan *message.Message, error) {
	return s.pubsub.Subscribe(ctx, TopicEvents)
}

// Resumed subscribes to resume notifications.
func (s *Session) Resumed(ctx context.Context) (<-chan *message.Message, error) {
	return s.pubsub.Subscribe(ctx, TopicResumed)
}

// Close detaches in-flight invocations, resets the controller and shuts the
// pub/sub down.
func (s *Session) Close() error {
	s.ctl.DetachInvokes()
	s.ctl.Reset()
	return s.pubsub.Close()
}
