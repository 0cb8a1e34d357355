package stream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the Kafka consumer group.
type KafkaConfig struct {
	// URL is a comma-separated broker list.
	URL     string
	GroupID string
	Topics  []string

	// ClientCert and ClientCertKey are PEM blobs; both empty disables TLS.
	ClientCert    string
	ClientCertKey string
}

// KafkaConsumer consumes the configured topics under a stable group
// identity and commits offsets only after dispatch returns.
type KafkaConsumer struct {
	reader *kafka.Reader

	mu     sync.Mutex
	closed bool
}

// NewKafkaConsumer builds the consumer. It fails fast on an empty broker
// list or an unparseable certificate pair.
func NewKafkaConsumer(cfg KafkaConfig) (*KafkaConsumer, error) {
	brokers := splitBrokers(cfg.URL)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers must be specified")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("at least one topic must be specified")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("consumer group id must be specified")
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	if cfg.ClientCert != "" || cfg.ClientCertKey != "" {
		cert, err := tls.X509KeyPair([]byte(cfg.ClientCert), []byte(cfg.ClientCertKey))
		if err != nil {
			return nil, fmt.Errorf("failed to load kafka client certificate: %w", err)
		}
		dialer.TLS = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    cfg.Topics,
		Dialer:         dialer,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: 0, // synchronous commits
	})

	return &KafkaConsumer{reader: reader}, nil
}

// Run fetches messages until the context is cancelled (nil) or the
// consumer is closed (ErrConsumerClosed). Handler errors are logged;
// the offset is committed either way.
func (c *KafkaConsumer) Run(ctx context.Context, handler Handler) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if c.isClosed() {
				return ErrConsumerClosed
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		msg := &Message{
			Topic:     m.Topic,
			Partition: m.Partition,
			Offset:    m.Offset,
			Key:       m.Key,
			Value:     m.Value,
			Timestamp: m.Time,
		}

		// A shutdown signal stops the fetch loop, not the dispatch in
		// flight: the handler runs on a context detached from ctx so a
		// half-finished round calculation is never aborted mid-write.
		if err := handler(context.WithoutCancel(ctx), msg); err != nil {
			log.Error().Err(err).
				Str("topic", msg.Topic).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("message dispatch failed")
		}

		// Commit with a fresh context so an in-flight shutdown does not
		// strand the offset behind the completed dispatch.
		commitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = c.reader.CommitMessages(commitCtx, m)
		cancel()
		if err != nil {
			if c.isClosed() {
				return ErrConsumerClosed
			}
			return fmt.Errorf("failed to commit offset: %w", err)
		}
	}
}

// Close stops the consumer and leaves the group.
func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.reader.Close()
}

func (c *KafkaConsumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func splitBrokers(url string) []string {
	var brokers []string
	for _, b := range strings.Split(url, ",") {
		b = strings.TrimSpace(b)
		b = strings.TrimPrefix(b, "kafka+ssl://")
		b = strings.TrimPrefix(b, "kafka://")
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
