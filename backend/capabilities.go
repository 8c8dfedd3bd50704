package backend

// Capabilities describes the features supported by a backend. Use this to
// introspect what the underlying transport can do at runtime.
type Capabilities struct {
	// Name is the human-readable name of the backend.
	Name string

	// SupportsLongPoll indicates the receive call blocks server-side while
	// waiting for messages. When false, the backend sleeps locally on an
	// empty read to avoid a hot spin.
	SupportsLongPoll bool

	// SupportsBatching indicates one receive call can return multiple messages.
	SupportsBatching bool

	// SupportsRedelivery indicates an unacknowledged message is redelivered
	// by the transport (visibility timeout, pending-entries list, uncommitted
	// offset).
	SupportsRedelivery bool

	// SupportsDelay indicates the transport can natively delay message delivery.
	SupportsDelay bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// RequiresIdleSleep returns true if the caller must pace empty reads because
// the transport has no server-side long poll.
func (c Capabilities) RequiresIdleSleep() bool {
	return !c.SupportsLongPoll
}

// Predefined capability sets for the built-in backends.
var (
	// SQSCapabilities for the aws-sdk-go-v2 SQS backend.
	SQSCapabilities = Capabilities{
		Name:               "sqs",
		SupportsLongPoll:   true,
		SupportsBatching:   true,
		SupportsRedelivery: true,
		SupportsDelay:      true,
		MaxMessageSize:     262144, // 256KB
	}

	// SQSV1Capabilities for the legacy aws-sdk-go SQS backend.
	SQSV1Capabilities = Capabilities{
		Name:               "sqsv1",
		SupportsLongPoll:   true,
		SupportsBatching:   true,
		SupportsRedelivery: true,
		SupportsDelay:      true,
		MaxMessageSize:     262144, // 256KB
	}

	// RedisCapabilities for the Redis Streams backend.
	RedisCapabilities = Capabilities{
		Name:               "redis",
		SupportsLongPoll:   true,
		SupportsBatching:   true,
		SupportsRedelivery: true,
		SupportsDelay:      false,
	}

	// KafkaCapabilities for the Kafka backend.
	KafkaCapabilities = Capabilities{
		Name:               "kafka",
		SupportsLongPoll:   true,
		SupportsBatching:   false,
		SupportsRedelivery: true,
		SupportsDelay:      false,
		MaxMessageSize:     1048576, // Default 1MB
	}

	// MemoryCapabilities for the in-memory backend.
	MemoryCapabilities = Capabilities{
		Name:               "memory",
		SupportsLongPoll:   false,
		SupportsBatching:   true,
		SupportsRedelivery: false,
	}
)
