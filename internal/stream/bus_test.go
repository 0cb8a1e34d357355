package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubConsumer_DeliversInOrder(t *testing.T) {
	consumer := NewStubConsumer()
	consumer.Publish("topic.a", []byte(`{"n":1}`))
	consumer.Publish("topic.a", []byte(`{"n":2}`))
	consumer.Publish("topic.b", []byte(`{"n":3}`))

	var (
		mu       sync.Mutex
		received []Message
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Run(ctx, func(ctx context.Context, msg *Message) error {
			mu.Lock()
			received = append(received, *msg)
			if len(received) == 3 {
				cancel()
			}
			mu.Unlock()
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not finish")
	}

	require.Len(t, received, 3)
	assert.Equal(t, "topic.a", received[0].Topic)
	assert.Equal(t, int64(0), received[0].Offset)
	assert.Equal(t, int64(1), received[1].Offset)
	assert.Equal(t, "topic.b", received[2].Topic)
}

func TestStubConsumer_CommitsAfterHandlerError(t *testing.T) {
	consumer := NewStubConsumer()
	consumer.Publish("topic.a", []byte("bad"))
	consumer.Publish("topic.a", []byte("good"))

	handled := 0
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Run(ctx, func(ctx context.Context, msg *Message) error {
			handled++
			if handled == 2 {
				cancel()
			}
			return errors.New("dispatch failed")
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not finish")
	}

	// Both offsets committed despite the handler failing: the bus
	// contract is at-least-once with best-effort side effects.
	assert.Len(t, consumer.Committed(), 2)
}

func TestStubConsumer_CloseStopsRun(t *testing.T) {
	consumer := NewStubConsumer()

	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		runErr = consumer.Run(context.Background(), func(ctx context.Context, msg *Message) error {
			return nil
		})
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, consumer.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	assert.ErrorIs(t, runErr, ErrConsumerClosed)
}

func TestStubConsumer_DispatchShieldedFromShutdown(t *testing.T) {
	consumer := NewStubConsumer()
	consumer.Publish("topic.a", []byte(`{}`))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handlerErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Run(ctx, func(hctx context.Context, msg *Message) error {
			// A shutdown signal arriving mid-dispatch must not cancel
			// the round calculation this dispatch is running.
			cancel()
			handlerErr = hctx.Err()
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not finish")
	}

	assert.NoError(t, handlerErr, "handler context must outlive the shutdown signal")
	assert.Len(t, consumer.Committed(), 1)
}

func TestNewKafkaConsumer_Validation(t *testing.T) {
	_, err := NewKafkaConsumer(KafkaConfig{GroupID: "g", Topics: []string{"t"}})
	assert.Error(t, err, "missing brokers")

	_, err = NewKafkaConsumer(KafkaConfig{URL: "localhost:9092", Topics: []string{"t"}})
	assert.Error(t, err, "missing group id")

	_, err = NewKafkaConsumer(KafkaConfig{URL: "localhost:9092", GroupID: "g"})
	assert.Error(t, err, "missing topics")

	_, err = NewKafkaConsumer(KafkaConfig{
		URL:        "localhost:9092",
		GroupID:    "g",
		Topics:     []string{"t"},
		ClientCert: "not a pem",
	})
	assert.Error(t, err, "bad certificate")
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t,
		[]string{"b1:9096", "b2:9096"},
		splitBrokers("kafka+ssl://b1:9096, kafka+ssl://b2:9096"))
	assert.Equal(t, []string{"localhost:9092"}, splitBrokers("localhost:9092"))
	assert.Nil(t, splitBrokers(""))
}
