// Package sqs provides an AWS SQS queueflow backend on aws-sdk-go-v2.
package sqs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/queueflow/queueflow/backend"
	"github.com/queueflow/queueflow/internal/runtime/logging"
)

// BackendName is the name used to register this backend.
const BackendName = "sqs"

// Client is the subset of the SQS API this backend uses. Satisfied by
// *sqs.Client and by test fakes.
type Client interface {
	ReceiveMessage(ctx context.Context, params *amazonsqs.ReceiveMessageInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *amazonsqs.DeleteMessageInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *amazonsqs.SendMessageInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.SendMessageOutput, error)
}

// DefaultConfigLoader allows overriding the AWS config loader for testing.
var DefaultConfigLoader = awsconfig.LoadDefaultConfig

// ClientFactory allows overriding the SQS client creation for testing.
var ClientFactory = func(awsCfg aws.Config, optFns ...func(*amazonsqs.Options)) Client {
	return amazonsqs.NewFromConfig(awsCfg, optFns...)
}

func init() {
	backend.RegisterWithCapabilities(BackendName, Build, backend.SQSCapabilities)
}

// Capabilities returns the capabilities of this backend.
func Capabilities() backend.Capabilities {
	return backend.SQSCapabilities
}

// Build creates an SQS backend from config.
func Build(ctx context.Context, cfg backend.Config, logger logging.ServiceLogger) (backend.Backend, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var optFns []func(*amazonsqs.Options)
	if endpoint := cfg.GetAWSEndpoint(); endpoint != "" {
		optFns = append(optFns, func(o *amazonsqs.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	return New(ClientFactory(*awsCfg, optFns...), Options{
		QueueURL:          cfg.GetSQSQueueURL(),
		WaitTime:          cfg.GetReceiveWaitTime(),
		BatchSize:         cfg.GetReceiveBatchSize(),
		VisibilityTimeout: cfg.GetVisibilityTimeout(),
		Logger:            logger,
	}), nil
}

func loadAWSConfig(ctx context.Context, cfg backend.Config, logger logging.ServiceLogger) (*aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	region := cfg.GetAWSRegion()
	accessKey := cfg.GetAWSAccessKeyID()
	secretKey := cfg.GetAWSSecretAccessKey()

	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if accessKey != "" && secretKey != "" {
		logger.Info("using static AWS credentials from config", logging.LogFields{})
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	awsCfg, err := DefaultConfigLoader(ctx, opts...)
	if err != nil {
		logger.Error("failed to load AWS default config", err, logging.LogFields{
			"requested_region": region,
		})
		return nil, err
	}

	// Ensure region is set even if the loader ignores options
	if region != "" {
		awsCfg.Region = region
	}

	return &awsCfg, nil
}

// Options configures an SQS backend.
type Options struct {
	// QueueURL is the full URL of the queue.
	QueueURL string

	// WaitTime is the long-poll duration per receive call. Defaults to 20s,
	// the SQS maximum.
	WaitTime time.Duration

	// BatchSize is the maximum messages per receive call (1..10).
	// Defaults to 1.
	BatchSize int

	// VisibilityTimeout overrides the queue's visibility timeout for
	// received messages. Zero leaves the queue default in place.
	VisibilityTimeout time.Duration

	Logger logging.ServiceLogger
}

// Backend consumes one SQS queue.
type Backend struct {
	client     Client
	queueURL   string
	waitTime   int32
	batchSize  int32
	visibility int32
	logger     logging.ServiceLogger
}

// New creates a backend around an existing client.
func New(client Client, opts Options) *Backend {
	if opts.WaitTime <= 0 {
		opts.WaitTime = 20 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopServiceLogger()
	}
	return &Backend{
		client:     client,
		queueURL:   opts.QueueURL,
		waitTime:   int32(opts.WaitTime / time.Second),
		batchSize:  int32(opts.BatchSize),
		visibility: int32(opts.VisibilityTimeout / time.Second),
		logger:     opts.Logger,
	}
}

// ReadMessages long-polls the queue once. An empty receive yields a nil
// batch.
func (b *Backend) ReadMessages(ctx context.Context) ([]backend.ReceivedMessage, error) {
	input := &amazonsqs.ReceiveMessageInput{
		QueueUrl:            aws.String(b.queueURL),
		MaxNumberOfMessages: b.batchSize,
		WaitTimeSeconds:     b.waitTime,
	}
	if b.visibility > 0 {
		input.VisibilityTimeout = b.visibility
	}

	out, err := b.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("sqs: receive: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}

	msgs := make([]backend.ReceivedMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, backend.ReceivedMessage{
			ID:            aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          []byte(aws.ToString(m.Body)),
		})
	}
	return msgs, nil
}

// ProcessMessage dispatches one message with the shared acknowledgment
// protocol.
func (b *Backend) ProcessMessage(ctx context.Context, msg backend.ReceivedMessage, handler backend.Handler) error {
	return backend.Dispatch(ctx, msg, b.delete, handler, b.logger)
}

// SendMessage hands a serialized envelope to SQS.
func (b *Backend) SendMessage(ctx context.Context, body []byte) error {
	_, err := b.client.SendMessage(ctx, &amazonsqs.SendMessageInput{
		QueueUrl:    aws.String(b.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs: send: %w", err)
	}
	return nil
}

// Close is a no-op; the SQS client holds no connection state to release.
func (b *Backend) Close() error { return nil }

func (b *Backend) delete(ctx context.Context, receiptHandle string) error {
	_, err := b.client.DeleteMessage(ctx, &amazonsqs.DeleteMessageInput{
		QueueUrl:      aws.String(b.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs: delete: %w", err)
	}
	return nil
}
