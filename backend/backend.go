// Package backend defines the consumer contract shared by all queueflow
// backends. Each backend implementation (sqs, sqsv1, redis, kafka, memory)
// lives in its own sub-package and registers itself with the backend registry.
package backend

import (
	"bytes"
	"context"
	"time"

	"github.com/queueflow/queueflow/internal/runtime/jsoncodec"
	"github.com/queueflow/queueflow/internal/runtime/logging"
)

// ReceivedMessage is the transport-neutral shape of one received message:
// an opaque acknowledgment handle plus the serialized envelope body.
type ReceivedMessage struct {
	// ID is the transport-assigned message identifier, used for logging only.
	ID string

	// ReceiptHandle identifies this delivery for deletion. A message without
	// a receipt handle cannot be acknowledged and is rejected by Dispatch.
	ReceiptHandle string

	// Body is the raw serialized envelope.
	Body []byte
}

// Ack is the handler's acknowledgment decision. The zero value deletes the
// message, so a handler that returns normally without an explicit choice
// gets the default delete-on-success behavior.
type Ack int

const (
	// AckDelete removes the message from the transport after the handler returns.
	AckDelete Ack = iota

	// AckRetain leaves the message on the transport for redelivery, for
	// manual acknowledgment or visibility-timeout strategies.
	AckRetain
)

// Handler processes one unwrapped envelope. Returning an error leaves the
// message undeleted and surfaces the error to the polling loop.
type Handler func(ctx context.Context, name string, params map[string]any) (Ack, error)

// Backend is the capability set a concrete queue backend must provide.
// The polling loop is implemented once against this interface.
type Backend interface {
	// ReadMessages fetches the next batch. A nil batch means nothing is
	// available right now; the loop continues without treating it as an
	// error. Long polling is the backend's responsibility.
	ReadMessages(ctx context.Context) ([]ReceivedMessage, error)

	// ProcessMessage unwraps one message and dispatches it to the handler,
	// deleting the message according to the acknowledgment protocol.
	ProcessMessage(ctx context.Context, msg ReceivedMessage, handler Handler) error

	// SendMessage hands a serialized envelope to the transport's send primitive.
	SendMessage(ctx context.Context, body []byte) error

	// Close releases the underlying client resources.
	Close() error
}

// Config provides the configuration values needed by backend builders.
// This interface lets each backend read only the keys relevant to it
// without depending on the full config package.
type Config interface {
	// GetBackend returns the backend type name ("sqs", "redis", ...).
	GetBackend() string

	// Receive tuning shared by all backends.
	GetReceiveWaitTime() time.Duration
	GetReceiveBatchSize() int
	GetVisibilityTimeout() time.Duration

	// AWS SQS (both SDK versions).
	GetSQSQueueURL() string
	GetAWSRegion() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string

	// Redis Streams.
	GetRedisAddr() string
	GetRedisDB() int
	GetRedisStream() string
	GetRedisGroup() string
	GetRedisConsumer() string

	// Kafka.
	GetKafkaBrokers() []string
	GetKafkaTopic() string
	GetKafkaConsumerGroup() string

	// Memory.
	GetMemoryIdleWait() time.Duration
}

// DeleteFunc removes one delivery from the transport by its receipt handle.
type DeleteFunc func(ctx context.Context, receiptHandle string) error

// Dispatch implements the unwrap/acknowledge protocol shared by every
// backend. ProcessMessage implementations convert their SDK message shape to
// a ReceivedMessage and delegate here with their delete primitive.
//
// The protocol:
//   - a message without a receipt handle is unprocessable and undeletable;
//     it is logged and rejected with ErrNoReceiptHandle, no delete happens.
//   - an absent body is deleted (so the transport stops redelivering it)
//     and rejected with ErrEmptyBody.
//   - a body that is not valid JSON is a poison message: deleted and
//     rejected with ErrMalformedBody.
//   - a body that parses to an object with zero keys is a heartbeat:
//     deleted silently, the handler is not invoked.
//   - otherwise the handler runs once. A handler error propagates without
//     deleting the message. On success the message is deleted unless the
//     handler returned AckRetain.
func Dispatch(ctx context.Context, msg ReceivedMessage, del DeleteFunc, handler Handler, logger logging.ServiceLogger) error {
	if logger == nil {
		logger = logging.NewNopServiceLogger()
	}

	if msg.ReceiptHandle == "" {
		logger.Error("received message without receipt handle", ErrNoReceiptHandle, logging.LogFields{
			"message_id": msg.ID,
		})
		return newMessageError(CodeNoReceiptHandle, msg.ID, ErrNoReceiptHandle)
	}

	if len(bytes.TrimSpace(msg.Body)) == 0 {
		logger.Error("received message with empty body", ErrEmptyBody, logging.LogFields{
			"message_id": msg.ID,
		})
		if err := del(ctx, msg.ReceiptHandle); err != nil {
			return err
		}
		return newMessageError(CodeEmptyBody, msg.ID, ErrEmptyBody)
	}

	var body map[string]any
	if err := jsoncodec.Unmarshal(msg.Body, &body); err != nil {
		logger.Error("received unparseable message body", err, logging.LogFields{
			"message_id": msg.ID,
		})
		if derr := del(ctx, msg.ReceiptHandle); derr != nil {
			return derr
		}
		return newMessageError(CodeMalformedBody, msg.ID, err)
	}

	// An object with no fields is a benign heartbeat, not an error.
	if len(body) == 0 {
		logger.Debug("received empty envelope, dropping", logging.LogFields{
			"message_id": msg.ID,
		})
		return del(ctx, msg.ReceiptHandle)
	}

	name, _ := body["name"].(string)
	params, ok := body["params"].(map[string]any)
	if !ok {
		params = map[string]any{}
	}

	ack, err := handler(ctx, name, params)
	if err != nil {
		// The message stays on the transport for its redelivery policy.
		return err
	}

	if ack == AckRetain {
		return nil
	}
	return del(ctx, msg.ReceiptHandle)
}
