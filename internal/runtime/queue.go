package runtime

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/queueflow/queueflow/backend"
	configpkg "github.com/queueflow/queueflow/internal/runtime/config"
	errspkg "github.com/queueflow/queueflow/internal/runtime/errors"
	"github.com/queueflow/queueflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/queueflow/queueflow/internal/runtime/logging"
)

// DefaultSleepTimeout is the fixed pause after an unhandled loop error.
const DefaultSleepTimeout = configpkg.DefaultSleepTimeout

// defaultGateWait paces the loop while an external CanRead gate is closed.
const defaultGateWait = 250 * time.Millisecond

// Options configures a Queue. The zero value is usable: slog default logger,
// 5s backoff, errors logged and retried indefinitely.
type Options struct {
	// Logger receives diagnostic events. Defaults to slog.Default().
	Logger loggingpkg.ServiceLogger

	// SleepTimeout is the fixed delay after an unhandled loop error before
	// the next iteration. This is the sole backpressure mechanism; there is
	// no exponential backoff. Defaults to DefaultSleepTimeout.
	SleepTimeout time.Duration

	// OnError observes loop-level errors when PropagateErrors is false.
	// Defaults to logging at error level.
	OnError func(error)

	// CanRead is an optional external gate consulted before each receive,
	// so an outside controller (for example a rate limiter) can pause
	// consumption without stopping the loop.
	CanRead func(ctx context.Context) (bool, error)

	// PropagateErrors makes Start return the first loop error instead of
	// invoking OnError and sleeping. Callers use it to own retry policy.
	PropagateErrors bool

	// Metrics optionally collects loop statistics.
	Metrics *Metrics

	// Tracer optionally wraps every dispatch in a span.
	Tracer trace.Tracer
}

// Queue owns the polling loop, error/backoff policy, and lifecycle for one
// backend. One Queue owns its backend exclusively; horizontal scaling is
// achieved by running multiple Queue instances, not by parallelizing within
// one.
type Queue struct {
	backend backend.Backend
	opts    Options
	running atomic.Bool
}

// New constructs a Queue around a backend. The queue is flagged as running
// from construction, but the loop only executes while Start or Resume is
// executing.
func New(b backend.Backend, opts Options) *Queue {
	if b == nil {
		panic("queueflow: backend cannot be nil")
	}
	if opts.Logger == nil {
		opts.Logger = loggingpkg.NewSlogServiceLogger(slog.Default())
	}
	if opts.SleepTimeout <= 0 {
		opts.SleepTimeout = DefaultSleepTimeout
	}

	q := &Queue{backend: b, opts: opts}
	q.running.Store(true)
	return q
}

// NewFromConfig builds the backend named by cfg through the backend registry
// and wraps it in a Queue. Backend packages register themselves via blank
// imports, e.g. _ "github.com/queueflow/queueflow/backend/sqs".
func NewFromConfig(ctx context.Context, cfg *configpkg.Config, opts Options) (*Queue, error) {
	if cfg == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = loggingpkg.NewSlogServiceLogger(slog.Default())
	}

	normalized := cfg.Normalized()
	if opts.SleepTimeout <= 0 {
		opts.SleepTimeout = normalized.SleepTimeout
	}

	b, err := backend.Build(ctx, &normalized, opts.Logger)
	if err != nil {
		return nil, err
	}
	return New(b, opts), nil
}

// Start enters the polling loop and blocks until Stop is called, the context
// is cancelled, or (with PropagateErrors) a loop error occurs. Each
// iteration reads one batch and dispatches its messages sequentially, in the
// order the backend returned them. Sequential processing bounds concurrent
// side effects per consumer and keeps ordering within a batch easy to reason
// about.
func (q *Queue) Start(ctx context.Context, handler backend.Handler) error {
	if handler == nil {
		return errspkg.ErrHandlerRequired
	}

	for q.running.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := q.iterate(ctx, handler); err != nil {
			if q.opts.PropagateErrors {
				return err
			}
			q.opts.Metrics.recordLoopError()
			q.observeError(err)
			if err := q.sleep(ctx, q.opts.SleepTimeout); err != nil {
				return err
			}
		}
	}
	return nil
}

func (q *Queue) iterate(ctx context.Context, handler backend.Handler) error {
	q.opts.Metrics.recordIteration()

	if q.opts.CanRead != nil {
		ok, err := q.opts.CanRead(ctx)
		if err != nil {
			return err
		}
		if !ok {
			// Gate closed: pace the loop, don't stop it.
			return q.sleep(ctx, defaultGateWait)
		}
	}

	msgs, err := q.backend.ReadMessages(ctx)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	q.opts.Metrics.recordBatch(len(msgs))

	for _, msg := range msgs {
		if err := q.process(ctx, msg, handler); err != nil {
			// Remaining messages in the batch are abandoned; the transport
			// redelivers them.
			return err
		}
	}
	return nil
}

func (q *Queue) process(ctx context.Context, msg backend.ReceivedMessage, handler backend.Handler) error {
	if q.opts.Tracer != nil {
		var span trace.Span
		ctx, span = q.opts.Tracer.Start(ctx, "queueflow.process",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(attribute.String("messaging.message.id", msg.ID)),
		)
		defer span.End()
	}

	err := q.backend.ProcessMessage(ctx, msg, handler)
	q.opts.Metrics.recordMessage(err)
	return err
}

// Stop flips the running flag. Cancellation is cooperative: an in-flight
// receive or dispatch finishes, and the loop exits at the top of the next
// iteration. IsRunning reflects false as soon as Stop returns.
func (q *Queue) Stop() {
	q.running.Store(false)
}

// Resume sets the running flag and enters the loop again. Equivalent to a
// fresh Start after a Stop; always legal.
func (q *Queue) Resume(ctx context.Context, handler backend.Handler) error {
	q.running.Store(true)
	return q.Start(ctx, handler)
}

// IsRunning reports the lifecycle flag.
func (q *Queue) IsRunning() bool {
	return q.running.Load()
}

// Send stamps the envelope with a message ID and a send-time
// params.createdAt, serializes it, and hands it to the backend. The
// createdAt reflects send time, not receive time.
func (q *Queue) Send(ctx context.Context, env Envelope) error {
	if env.Name == "" {
		return errspkg.ErrNameRequired
	}

	body, err := jsoncodec.Marshal(env.stamped(time.Now()))
	if err != nil {
		return err
	}
	if err := q.backend.SendMessage(ctx, body); err != nil {
		return err
	}
	q.opts.Metrics.recordSend()
	return nil
}

// Close releases the backend's resources. Call after the loop has exited.
func (q *Queue) Close() error {
	return q.backend.Close()
}

func (q *Queue) observeError(err error) {
	if q.opts.OnError != nil {
		q.opts.OnError(err)
		return
	}
	q.opts.Logger.Error("queue loop error, backing off", err, loggingpkg.LogFields{
		"sleep_timeout": q.opts.SleepTimeout.String(),
	})
}

func (q *Queue) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
