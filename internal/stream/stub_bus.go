package stream

import (
	"context"
	"sync"
	"time"
)

// StubConsumer is an in-memory Consumer for tests and local runs.
// Messages published before or during Run are delivered in order on a
// single goroutine, mirroring the per-partition sequencing of the real
// bus.
type StubConsumer struct {
	mu      sync.Mutex
	queue   []*Message
	offsets map[string]int64
	commits []Message
	closed  bool
	wake    chan struct{}
}

// NewStubConsumer creates an empty stub consumer.
func NewStubConsumer() *StubConsumer {
	return &StubConsumer{
		offsets: make(map[string]int64),
		wake:    make(chan struct{}, 1),
	}
}

// Publish enqueues a message for delivery.
func (s *StubConsumer) Publish(topic string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.queue = append(s.queue, &Message{
		Topic:     topic,
		Offset:    s.offsets[topic],
		Value:     value,
		Timestamp: time.Now(),
	})
	s.offsets[topic]++

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run delivers queued messages to the handler until the context is
// cancelled (nil) or the consumer is closed (ErrConsumerClosed).
// Handler errors do not stop delivery; the message is recorded as
// committed regardless.
func (s *StubConsumer) Run(ctx context.Context, handler Handler) error {
	for {
		msg := s.next()
		if msg == nil {
			if s.isClosed() {
				return ErrConsumerClosed
			}
			select {
			case <-ctx.Done():
				return nil
			case <-s.wake:
				continue
			}
		}

		// Like the Kafka consumer, the dispatch in flight is shielded
		// from the shutdown signal.
		_ = handler(context.WithoutCancel(ctx), msg)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrConsumerClosed
		}
		s.commits = append(s.commits, *msg)
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// Committed returns a copy of the committed messages.
func (s *StubConsumer) Committed() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.commits))
	copy(out, s.commits)
	return out
}

// Close stops delivery.
func (s *StubConsumer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

func (s *StubConsumer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *StubConsumer) next() *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.queue) == 0 {
		return nil
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg
}
