// Package stream abstracts the message bus the processor consumes from.
// The production implementation is Kafka; StubConsumer backs tests and
// local runs.
package stream

import (
	"context"
	"errors"
	"time"
)

// Common bus errors.
var (
	ErrConsumerClosed = errors.New("consumer is closed")
)

// Message is one delivered bus record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Handler processes one delivered message. The consumer commits the
// offset after the handler returns, success or failure: the contract is
// at-least-once delivery with best-effort side effects, and a message
// that cannot be handled now will not fare better on replay.
type Handler func(ctx context.Context, msg *Message) error

// Consumer delivers messages from the subscribed topics to a handler,
// one at a time per partition, until the context is cancelled.
type Consumer interface {
	Run(ctx context.Context, handler Handler) error
	Close() error
}
