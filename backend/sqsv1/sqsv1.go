// Package sqsv1 provides an AWS SQS queueflow backend on the previous major
// version of the AWS SDK (aws-sdk-go). It implements the same consumer
// contract as the sqs package; services pinned to the v1 SDK pick this one.
package sqsv1

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	amazonsqs "github.com/aws/aws-sdk-go/service/sqs"

	"github.com/queueflow/queueflow/backend"
	"github.com/queueflow/queueflow/internal/runtime/logging"
)

// BackendName is the name used to register this backend.
const BackendName = "sqsv1"

// Client is the subset of the v1 SQS API this backend uses. Satisfied by
// *sqs.SQS and by test fakes.
type Client interface {
	ReceiveMessageWithContext(ctx aws.Context, input *amazonsqs.ReceiveMessageInput, opts ...request.Option) (*amazonsqs.ReceiveMessageOutput, error)
	DeleteMessageWithContext(ctx aws.Context, input *amazonsqs.DeleteMessageInput, opts ...request.Option) (*amazonsqs.DeleteMessageOutput, error)
	SendMessageWithContext(ctx aws.Context, input *amazonsqs.SendMessageInput, opts ...request.Option) (*amazonsqs.SendMessageOutput, error)
}

// SessionFactory allows overriding session creation for testing.
var SessionFactory = func(awsCfg *aws.Config) (*session.Session, error) {
	return session.NewSession(awsCfg)
}

// ClientFactory allows overriding the SQS client creation for testing.
var ClientFactory = func(sess *session.Session) Client {
	return amazonsqs.New(sess)
}

func init() {
	backend.RegisterWithCapabilities(BackendName, Build, backend.SQSV1Capabilities)
}

// Capabilities returns the capabilities of this backend.
func Capabilities() backend.Capabilities {
	return backend.SQSV1Capabilities
}

// Build creates a legacy-SDK SQS backend from config.
func Build(ctx context.Context, cfg backend.Config, logger logging.ServiceLogger) (backend.Backend, error) {
	awsCfg := aws.NewConfig()
	if region := cfg.GetAWSRegion(); region != "" {
		awsCfg = awsCfg.WithRegion(region)
	}
	if endpoint := cfg.GetAWSEndpoint(); endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(endpoint)
	}
	if access, secret := cfg.GetAWSAccessKeyID(), cfg.GetAWSSecretAccessKey(); access != "" && secret != "" {
		logger.Info("using static AWS credentials from config", logging.LogFields{})
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(access, secret, ""))
	}

	sess, err := SessionFactory(awsCfg)
	if err != nil {
		logger.Error("failed to create AWS session", err, logging.LogFields{
			"requested_region": cfg.GetAWSRegion(),
		})
		return nil, err
	}

	return New(ClientFactory(sess), Options{
		QueueURL:          cfg.GetSQSQueueURL(),
		WaitTime:          cfg.GetReceiveWaitTime(),
		BatchSize:         cfg.GetReceiveBatchSize(),
		VisibilityTimeout: cfg.GetVisibilityTimeout(),
		Logger:            logger,
	}), nil
}

// Options configures a legacy-SDK SQS backend. The fields mirror the sqs
// package.
type Options struct {
	QueueURL          string
	WaitTime          time.Duration
	BatchSize         int
	VisibilityTimeout time.Duration
	Logger            logging.ServiceLogger
}

// Backend consumes one SQS queue through the v1 SDK.
type Backend struct {
	client     Client
	queueURL   string
	waitTime   int64
	batchSize  int64
	visibility int64
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
		waitTime:   int64(opts.WaitTime / time.Second),
		batchSize:  int64(opts.BatchSize),
		visibility: int64(opts.VisibilityTimeout / time.Second),
		logger:     opts.Logger,
	}
}

// ReadMessages long-polls the queue once. An empty receive yields a nil
// batch.
func (b *Backend) ReadMessages(ctx context.Context) ([]backend.ReceivedMessage, error) {
	input := &amazonsqs.ReceiveMessageInput{
		QueueUrl:            aws.String(b.queueURL),
		MaxNumberOfMessages: aws.Int64(b.batchSize),
		WaitTimeSeconds:     aws.Int64(b.waitTime),
	}
	if b.visibility > 0 {
		input.VisibilityTimeout = aws.Int64(b.visibility)
	}

	out, err := b.client.ReceiveMessageWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("sqsv1: receive: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}

	msgs := make([]backend.ReceivedMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, backend.ReceivedMessage{
			ID:            aws.StringValue(m.MessageId),
			ReceiptHandle: aws.StringValue(m.ReceiptHandle),
			Body:          []byte(aws.StringValue(m.Body)),
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
	_, err := b.client.SendMessageWithContext(ctx, &amazonsqs.SendMessageInput{
		QueueUrl:    aws.String(b.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqsv1: send: %w", err)
	}
	return nil
}

// Close is a no-op; the v1 client holds no connection state to release.
func (b *Backend) Close() error { return nil }

func (b *Backend) delete(ctx context.Context, receiptHandle string) error {
	_, err := b.client.DeleteMessageWithContext(ctx, &amazonsqs.DeleteMessageInput{
		QueueUrl:      aws.String(b.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqsv1: delete: %w", err)
	}
	return nil
}
