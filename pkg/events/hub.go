package events

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrSourceClosed is returned to producers once the consuming side detached.
var ErrSourceClosed = stderrors.New("event source closed")

// Opener creates a fresh stream for one backend invocation.
type Opener interface {
	Open() (*Emitter, *Source)
}

// Hub opens streams on a Transport. Each stream lives on its own topic.
type Hub struct {
	transport Transport
	prefix    string
}

var _ Opener = &Hub{}

func NewHub(transport Transport) *Hub {
	return &Hub{transport: transport, prefix: "answer:"}
}

func (h *Hub) Open() (*Emitter, *Source) {
	topic := h.prefix + uuid.NewString()
	pub, sub, release := h.transport.Stream(topic)
	st := &stream{
		topic:    topic,
		ready:    make(chan struct{}),
		detached: make(chan struct{}),
		release:  release,
	}
	st.open.Store(2)
	return &Emitter{stream: st, publisher: pub}, &Source{stream: st, subscriber: sub}
}

type stream struct {
	topic string

	// open counts the ends not yet closed; release runs when it hits zero.
	open    atomic.Int32
	release func()

	ready     chan struct{}
	readyOnce sync.Once

	detached   chan struct{}
	detachOnce sync.Once
}

func (s *stream) endClosed() {
	if s.open.Add(-1) == 0 && s.release != nil {
		s.release()
	}
}

func (s *stream) markReady()    { s.readyOnce.Do(func() { close(s.ready) }) }
func (s *stream) detach()       { s.detachOnce.Do(func() { close(s.detached) }) }
func (s *stream) Topic() string { return s.topic }

func (s *stream) isDetached() bool {
	select {
	case <-s.detached:
		return true
	default:
		return false
	}
}

// Source is the consuming end of a stream.
type Source struct {
	*stream
	subscriber message.Subscriber
	closeOnce  sync.Once
}

// Subscribe attaches to the stream. Events are only published after the
// first successful Subscribe, so nothing emitted by the producer is lost.
// Cancelling ctx ends the subscription and closes the returned channel.
func (s *Source) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	if s == nil || s.subscriber == nil {
		return nil, errors.New("event source is not initialized")
	}
	if s.isDetached() {
		return nil, ErrSourceClosed
	}
	ch, err := s.subscriber.Subscribe(ctx, s.topic)
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe to %s", s.topic)
	}
	s.markReady()
	return ch, nil
}

// Close detaches the consumer. Pending and future Emit calls fail with
// ErrSourceClosed and the producer's Done channel is closed.
func (s *Source) Close() {
	if s == nil {
		return
	}
	s.detach()
	s.closeOnce.Do(s.endClosed)
}

// Emitter is the producing end of a stream.
type Emitter struct {
	*stream
	publisher message.Publisher
	closeOnce sync.Once
}

// Close marks the producing end finished. Spawn calls it when the producer
// returns.
func (e *Emitter) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(e.endClosed)
}

// Done is closed when the consumer detached.
func (e *Emitter) Done() <-chan struct{} {
	return e.detached
}

// Emit publishes one event. It blocks until the consumer subscribed.
func (e *Emitter) Emit(ctx context.Context, ev StreamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode stream event")
	}
	select {
	case <-e.ready:
	case <-e.detached:
		return ErrSourceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	if e.isDetached() {
		return ErrSourceClosed
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("kind", string(ev.Kind))
	if err := e.publisher.Publish(e.topic, msg); err != nil {
		return errors.Wrapf(err, "publish to %s", e.topic)
	}
	return nil
}
