// Package memory provides an in-memory queueflow backend. Messages live in
// a local ordered sequence, which makes the polling/dispatch contract
// deterministic to test without network I/O.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/queueflow/queueflow/backend"
	"github.com/queueflow/queueflow/internal/runtime/ids"
	"github.com/queueflow/queueflow/internal/runtime/logging"
)

// BackendName is the name used to register this backend.
const BackendName = "memory"

const defaultIdleWait = 50 * time.Millisecond

func init() {
	backend.RegisterWithCapabilities(BackendName, Build, backend.MemoryCapabilities)
}

// Build creates an in-memory backend from config.
func Build(ctx context.Context, cfg backend.Config, logger logging.ServiceLogger) (backend.Backend, error) {
	return New(cfg.GetReceiveBatchSize(), cfg.GetMemoryIdleWait(), logger), nil
}

// Capabilities returns the capabilities of this backend.
func Capabilities() backend.Capabilities {
	return backend.MemoryCapabilities
}

// Backend holds a local ordered message sequence. Safe for concurrent use.
type Backend struct {
	mu       sync.Mutex
	pending  []backend.ReceivedMessage
	inflight map[string]struct{}
	deleted  int

	batchSize int
	idleWait  time.Duration
	logger    logging.ServiceLogger
	closed    bool
}

// New creates an in-memory backend. batchSize <= 0 defaults to 1, idleWait
// <= 0 defaults to 50ms.
func New(batchSize int, idleWait time.Duration, logger logging.ServiceLogger) *Backend {
	if batchSize <= 0 {
		batchSize = 1
	}
	if idleWait <= 0 {
		idleWait = defaultIdleWait
	}
	if logger == nil {
		logger = logging.NewNopServiceLogger()
	}
	return &Backend{
		inflight:  make(map[string]struct{}),
		batchSize: batchSize,
		idleWait:  idleWait,
		logger:    logger,
	}
}

// Seed appends raw message bodies to the sequence. Useful in tests.
func (b *Backend) Seed(bodies ...[]byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, body := range bodies {
		b.append(body)
	}
}

// must hold b.mu
func (b *Backend) append(body []byte) {
	id := ids.CreateULID()
	b.pending = append(b.pending, backend.ReceivedMessage{
		ID:            id,
		ReceiptHandle: id,
		Body:          body,
	})
}

// ReadMessages pops up to the batch size from the head of the sequence.
// When the sequence is empty it sleeps briefly instead of returning
// immediately, so the polling loop doesn't hot-spin.
func (b *Backend) ReadMessages(ctx context.Context) ([]backend.ReceivedMessage, error) {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()

		timer := time.NewTimer(b.idleWait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		}
	}

	n := b.batchSize
	if n > len(b.pending) {
		n = len(b.pending)
	}
	batch := make([]backend.ReceivedMessage, n)
	copy(batch, b.pending[:n])
	b.pending = b.pending[n:]
	for _, msg := range batch {
		b.inflight[msg.ReceiptHandle] = struct{}{}
	}
	b.mu.Unlock()

	return batch, nil
}

// ProcessMessage dispatches one message with the shared acknowledgment
// protocol.
func (b *Backend) ProcessMessage(ctx context.Context, msg backend.ReceivedMessage, handler backend.Handler) error {
	return backend.Dispatch(ctx, msg, b.delete, handler, b.logger)
}

// SendMessage appends a serialized envelope to the sequence.
func (b *Backend) SendMessage(ctx context.Context, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("memory: backend is closed")
	}
	b.append(body)
	return nil
}

// Close marks the backend closed. Reads keep draining what was enqueued.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Backend) delete(ctx context.Context, receiptHandle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inflight[receiptHandle]; !ok {
		return fmt.Errorf("memory: unknown receipt handle %q", receiptHandle)
	}
	delete(b.inflight, receiptHandle)
	b.deleted++
	return nil
}

// Len returns the number of messages waiting to be read.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// InFlight returns the number of read-but-undeleted messages.
func (b *Backend) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inflight)
}

// Deleted returns how many messages have been deleted.
func (b *Backend) Deleted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleted
}
