package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Default receive and backoff tuning, applied by Normalized when the
// corresponding field is zero.
const (
	DefaultReceiveWaitTime  = 20 * time.Second
	DefaultReceiveBatchSize = 1
	DefaultSleepTimeout     = 5 * time.Second
	DefaultMemoryIdleWait   = 50 * time.Millisecond
)

// Config groups the settings required to build a backend and run a queue.
// Each backend only uses the keys that are relevant to it.
type Config struct {
	// Backend selects the backing transport. Supported values: "sqs",
	// "sqsv1", "redis", "kafka", or "memory".
	Backend string

	// ReceiveWaitTime is the long-poll duration for one receive call.
	// Defaults to 20 seconds.
	ReceiveWaitTime time.Duration

	// ReceiveBatchSize is the maximum number of messages fetched per receive
	// call. Defaults to 1.
	ReceiveBatchSize int

	// VisibilityTimeout overrides the queue's visibility timeout for
	// received messages. Zero leaves the transport default in place.
	VisibilityTimeout time.Duration

	// SleepTimeout is the fixed pause after an unhandled loop error before
	// the queue retries. Defaults to 5 seconds.
	SleepTimeout time.Duration

	// AWS SQS configuration (both SDK versions).
	SQSQueueURL        string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	// AWSEndpoint optionally points to a custom endpoint (for example,
	// LocalStack in local development).
	AWSEndpoint string

	// Redis Streams configuration.
	RedisAddr     string
	RedisDB       int
	RedisStream   string
	RedisGroup    string
	RedisConsumer string

	// Kafka configuration.
	KafkaBrokers       []string
	KafkaTopic         string
	KafkaConsumerGroup string

	// MemoryIdleWait is the pause the in-memory backend takes when its
	// sequence is empty, so tests don't busy-loop. Defaults to 50ms.
	MemoryIdleWait time.Duration
}

// Getter methods implementing the backend.Config interface.
func (c *Config) GetBackend() string                  { return c.Backend }
func (c *Config) GetReceiveWaitTime() time.Duration   { return c.ReceiveWaitTime }
func (c *Config) GetReceiveBatchSize() int            { return c.ReceiveBatchSize }
func (c *Config) GetVisibilityTimeout() time.Duration { return c.VisibilityTimeout }
func (c *Config) GetSQSQueueURL() string              { return c.SQSQueueURL }
func (c *Config) GetAWSRegion() string                { return c.AWSRegion }
func (c *Config) GetAWSAccessKeyID() string           { return c.AWSAccessKeyID }
func (c *Config) GetAWSSecretAccessKey() string       { return c.AWSSecretAccessKey }
func (c *Config) GetAWSEndpoint() string              { return c.AWSEndpoint }
func (c *Config) GetRedisAddr() string                { return c.RedisAddr }
func (c *Config) GetRedisDB() int                     { return c.RedisDB }
func (c *Config) GetRedisStream() string              { return c.RedisStream }
func (c *Config) GetRedisGroup() string               { return c.RedisGroup }
func (c *Config) GetRedisConsumer() string            { return c.RedisConsumer }
func (c *Config) GetKafkaBrokers() []string           { return c.KafkaBrokers }
func (c *Config) GetKafkaTopic() string               { return c.KafkaTopic }
func (c *Config) GetKafkaConsumerGroup() string       { return c.KafkaConsumerGroup }
func (c *Config) GetMemoryIdleWait() time.Duration    { return c.MemoryIdleWait }

// Normalized returns a copy with defaults applied to zero-valued tuning fields.
func (c Config) Normalized() Config {
	out := c
	if out.ReceiveWaitTime == 0 {
		out.ReceiveWaitTime = DefaultReceiveWaitTime
	}
	if out.ReceiveBatchSize == 0 {
		out.ReceiveBatchSize = DefaultReceiveBatchSize
	}
	if out.SleepTimeout == 0 {
		out.SleepTimeout = DefaultSleepTimeout
	}
	if out.MemoryIdleWait == 0 {
		out.MemoryIdleWait = DefaultMemoryIdleWait
	}
	return out
}

func (c Config) String() string {
	// Create a copy to avoid modifying the original
	copy := c
	if copy.AWSSecretAccessKey != "" {
		copy.AWSSecretAccessKey = "***REDACTED***"
	}
	if copy.AWSAccessKeyID != "" {
		copy.AWSAccessKeyID = "***REDACTED***"
	}
	// Use a type alias to avoid infinite recursion when printing
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(copy))
}

// Validate checks that the configuration has all required fields for the
// selected backend. Validation of the backend name itself is lenient to
// allow custom registered backends.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateBackend()...)
	errs = append(errs, c.validateTuning()...)

	return errors.Join(errs...)
}

func (c *Config) validateBackend() []error {
	switch strings.ToLower(c.Backend) {
	case "sqs", "sqsv1":
		var errs []error
		if c.SQSQueueURL == "" {
			errs = append(errs, errors.New("sqs: queue URL is required"))
		}
		if c.AWSRegion == "" {
			errs = append(errs, errors.New("sqs: AWS region is required"))
		}
		return errs
	case "redis":
		var errs []error
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis: address is required"))
		}
		if c.RedisStream == "" {
			errs = append(errs, errors.New("redis: stream is required"))
		}
		if c.RedisGroup == "" {
			errs = append(errs, errors.New("redis: consumer group is required"))
		}
		return errs
	case "kafka":
		var errs []error
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("kafka: brokers are required"))
		}
		if c.KafkaTopic == "" {
			errs = append(errs, errors.New("kafka: topic is required"))
		}
		return errs
	}
	// memory, "", and custom backends have no required config
	return nil
}

func (c *Config) validateTuning() []error {
	var errs []error
	if c.ReceiveWaitTime < 0 {
		errs = append(errs, errors.New("receive: wait time cannot be negative"))
	}
	if c.ReceiveBatchSize < 0 {
		errs = append(errs, errors.New("receive: batch size cannot be negative"))
	}
	if c.VisibilityTimeout < 0 {
		errs = append(errs, errors.New("receive: visibility timeout cannot be negative"))
	}
	if c.SleepTimeout < 0 {
		errs = append(errs, errors.New("backoff: sleep timeout cannot be negative"))
	}
	if strings.EqualFold(c.Backend, "sqs") || strings.EqualFold(c.Backend, "sqsv1") {
		if c.ReceiveBatchSize > 10 {
			errs = append(errs, fmt.Errorf("sqs: batch size %d exceeds the API maximum of 10", c.ReceiveBatchSize))
		}
		if c.ReceiveWaitTime > 20*time.Second {
			errs = append(errs, fmt.Errorf("sqs: wait time %s exceeds the API maximum of 20s", c.ReceiveWaitTime))
		}
	}
	return errs
}

// ValidateConfig is a convenience function to validate a config pointer.
// Returns nil if the config is valid.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
