// Package redis provides a Redis Streams queueflow backend. Receiving is a
// blocking XREADGROUP on a consumer group, deletion is XACK + XDEL, sending
// is XADD.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/queueflow/queueflow/backend"
	"github.com/queueflow/queueflow/internal/runtime/logging"
)

// BackendName is the name used to register this backend.
const BackendName = "redis"

// bodyField is the stream entry field holding the serialized envelope.
const bodyField = "body"

// Client is the subset of the go-redis API this backend uses. Satisfied by
// *redis.Client and by test fakes.
type Client interface {
	XAdd(ctx context.Context, a *goredis.XAddArgs) *goredis.StringCmd
	XReadGroup(ctx context.Context, a *goredis.XReadGroupArgs) *goredis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *goredis.IntCmd
	XDel(ctx context.Context, stream string, ids ...string) *goredis.IntCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *goredis.StatusCmd
	Close() error
}

// ClientFactory allows overriding the redis client creation for testing.
var ClientFactory = func(opt *goredis.Options) Client {
	return goredis.NewClient(opt)
}

func init() {
	backend.RegisterWithCapabilities(BackendName, Build, backend.RedisCapabilities)
}

// Capabilities returns the capabilities of this backend.
func Capabilities() backend.Capabilities {
	return backend.RedisCapabilities
}

// Build creates a Redis Streams backend from config. The consumer group is
// created if it does not exist yet.
func Build(ctx context.Context, cfg backend.Config, logger logging.ServiceLogger) (backend.Backend, error) {
	client := ClientFactory(&goredis.Options{
		Addr: cfg.GetRedisAddr(),
		DB:   cfg.GetRedisDB(),
	})

	b := New(client, Options{
		Stream:    cfg.GetRedisStream(),
		Group:     cfg.GetRedisGroup(),
		Consumer:  cfg.GetRedisConsumer(),
		Block:     cfg.GetReceiveWaitTime(),
		BatchSize: cfg.GetReceiveBatchSize(),
		Logger:    logger,
	})

	if err := b.ensureGroup(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return b, nil
}

// Options configures a Redis Streams backend.
type Options struct {
	// Stream is the stream key.
	Stream string

	// Group is the consumer group name.
	Group string

	// Consumer is this consumer's name within the group. Defaults to
	// "queueflow-<uuid>".
	Consumer string

	// Block is how long one XREADGROUP blocks waiting for entries.
	Block time.Duration

	// BatchSize is the maximum entries per read. Defaults to 1.
	BatchSize int

	Logger logging.ServiceLogger
}

// Backend consumes one stream through a consumer group.
type Backend struct {
	client    Client
	stream    string
	group     string
	consumer  string
	block     time.Duration
	batchSize int64
	logger    logging.ServiceLogger
}

// New creates a backend around an existing client.
func New(client Client, opts Options) *Backend {
	if opts.Consumer == "" {
		opts.Consumer = "queueflow-" + uuid.NewString()
	}
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopServiceLogger()
	}
	return &Backend{
		client:    client,
		stream:    opts.Stream,
		group:     opts.Group,
		consumer:  opts.Consumer,
		block:     opts.Block,
		batchSize: int64(opts.BatchSize),
		logger:    opts.Logger,
	}
}

func (b *Backend) ensureGroup(ctx context.Context) error {
	err := b.client.XGroupCreateMkStream(ctx, b.stream, b.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("redis: create group %q on %q: %w", b.group, b.stream, err)
	}
	return nil
}

// ReadMessages blocks on the consumer group for up to the configured Block
// duration. A timed-out read yields a nil batch.
func (b *Backend) ReadMessages(ctx context.Context) ([]backend.ReceivedMessage, error) {
	res, err := b.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    b.group,
		Consumer: b.consumer,
		Streams:  []string{b.stream, ">"},
		Block:    b.block,
		Count:    b.batchSize,
	}).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: read group: %w", err)
	}

	var msgs []backend.ReceivedMessage
	for _, stream := range res {
		for _, m := range stream.Messages {
			body, _ := m.Values[bodyField].(string)
			msgs = append(msgs, backend.ReceivedMessage{
				ID: m.ID,
				// The stream entry ID doubles as the receipt handle.
				ReceiptHandle: m.ID,
				Body:          []byte(body),
			})
		}
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return msgs, nil
}

// ProcessMessage dispatches one message with the shared acknowledgment
// protocol.
func (b *Backend) ProcessMessage(ctx context.Context, msg backend.ReceivedMessage, handler backend.Handler) error {
	return backend.Dispatch(ctx, msg, b.delete, handler, b.logger)
}

// SendMessage appends a serialized envelope to the stream.
func (b *Backend) SendMessage(ctx context.Context, body []byte) error {
	err := b.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: b.stream,
		Values: map[string]any{bodyField: string(body)},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: xadd: %w", err)
	}
	return nil
}

// Close releases the client connection pool.
func (b *Backend) Close() error {
	return b.client.Close()
}

func (b *Backend) delete(ctx context.Context, receiptHandle string) error {
	if err := b.client.XAck(ctx, b.stream, b.group, receiptHandle).Err(); err != nil {
		return fmt.Errorf("redis: xack: %w", err)
	}
	// Trim the acknowledged entry so the stream doesn't grow unbounded.
	if err := b.client.XDel(ctx, b.stream, receiptHandle).Err(); err != nil {
		return fmt.Errorf("redis: xdel: %w", err)
	}
	return nil
}
