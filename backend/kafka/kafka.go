// Package kafka provides a Kafka queueflow backend on segmentio/kafka-go.
// Fetching without committing plays the role of receive-with-visibility:
// the offset is only committed when the handler acknowledges deletion.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	segmentio "github.com/segmentio/kafka-go"

	"github.com/queueflow/queueflow/backend"
	"github.com/queueflow/queueflow/internal/runtime/logging"
)

// BackendName is the name used to register this backend.
const BackendName = "kafka"

// Reader is the subset of *kafka.Reader this backend uses.
type Reader interface {
	FetchMessage(ctx context.Context) (segmentio.Message, error)
	CommitMessages(ctx context.Context, msgs ...segmentio.Message) error
	Close() error
}

// Writer is the subset of *kafka.Writer this backend uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...segmentio.Message) error
	Close() error
}

// ReaderFactory allows overriding reader creation for testing.
var ReaderFactory = func(cfg segmentio.ReaderConfig) Reader {
	return segmentio.NewReader(cfg)
}

// WriterFactory allows overriding writer creation for testing.
var WriterFactory = func(brokers []string, topic string) Writer {
	return &segmentio.Writer{
		Addr:     segmentio.TCP(brokers...),
		Topic:    topic,
		Balancer: &segmentio.LeastBytes{},
	}
}

func init() {
	backend.RegisterWithCapabilities(BackendName, Build, backend.KafkaCapabilities)
}

// Capabilities returns the capabilities of this backend.
func Capabilities() backend.Capabilities {
	return backend.KafkaCapabilities
}

// Build creates a Kafka backend from config.
func Build(ctx context.Context, cfg backend.Config, logger logging.ServiceLogger) (backend.Backend, error) {
	reader := ReaderFactory(segmentio.ReaderConfig{
		Brokers:  cfg.GetKafkaBrokers(),
		Topic:    cfg.GetKafkaTopic(),
		GroupID:  cfg.GetKafkaConsumerGroup(),
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	writer := WriterFactory(cfg.GetKafkaBrokers(), cfg.GetKafkaTopic())

	return New(reader, writer, Options{
		FetchTimeout: cfg.GetReceiveWaitTime(),
		Logger:       logger,
	}), nil
}

// Options configures a Kafka backend.
type Options struct {
	// FetchTimeout bounds one fetch; a fetch that times out yields a nil
	// batch, mirroring an empty long poll. Defaults to 20s.
	FetchTimeout time.Duration

	Logger logging.ServiceLogger
}

// Backend consumes one topic through a consumer group. Fetched-but-
// uncommitted messages are kept until the dispatch protocol decides whether
// to commit their offset.
type Backend struct {
	reader       Reader
	writer       Writer
	fetchTimeout time.Duration
	logger       logging.ServiceLogger

	mu       sync.Mutex
	inflight map[string]segmentio.Message
}

// New creates a backend around existing reader and writer.
func New(reader Reader, writer Writer, opts Options) *Backend {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 20 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopServiceLogger()
	}
	return &Backend{
		reader:       reader,
		writer:       writer,
		fetchTimeout: opts.FetchTimeout,
		logger:       opts.Logger,
		inflight:     make(map[string]segmentio.Message),
	}
}

// ReadMessages fetches at most one message; kafka-go's fetch API is
// per-message, so batching happens across loop iterations instead.
func (b *Backend) ReadMessages(ctx context.Context) ([]backend.ReceivedMessage, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, b.fetchTimeout)
	defer cancel()

	m, err := b.reader.FetchMessage(fetchCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("kafka: fetch: %w", err)
	}

	handle := commitHandle(m)
	b.mu.Lock()
	b.inflight[handle] = m
	b.mu.Unlock()

	return []backend.ReceivedMessage{{
		ID:            handle,
		ReceiptHandle: handle,
		Body:          m.Value,
	}}, nil
}

// ProcessMessage dispatches one message with the shared acknowledgment
// protocol.
func (b *Backend) ProcessMessage(ctx context.Context, msg backend.ReceivedMessage, handler backend.Handler) error {
	return backend.Dispatch(ctx, msg, b.delete, handler, b.logger)
}

// SendMessage hands a serialized envelope to the topic.
func (b *Backend) SendMessage(ctx context.Context, body []byte) error {
	if err := b.writer.WriteMessages(ctx, segmentio.Message{Value: body}); err != nil {
		return fmt.Errorf("kafka: write: %w", err)
	}
	return nil
}

// Close closes the reader and writer.
func (b *Backend) Close() error {
	rerr := b.reader.Close()
	werr := b.writer.Close()
	return errors.Join(rerr, werr)
}

func (b *Backend) delete(ctx context.Context, receiptHandle string) error {
	b.mu.Lock()
	m, ok := b.inflight[receiptHandle]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("kafka: unknown receipt handle %q", receiptHandle)
	}

	if err := b.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("kafka: commit: %w", err)
	}

	b.mu.Lock()
	delete(b.inflight, receiptHandle)
	b.mu.Unlock()
	return nil
}

func commitHandle(m segmentio.Message) string {
	return fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
}
