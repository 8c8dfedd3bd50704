// Package queueflow is a small message-queue consumer abstraction: one
// polling loop with delete-on-acknowledge dispatch semantics, implemented
// once against a backend capability interface. Backends exist for AWS SQS
// (both the current and the previous major SDK version), Redis Streams,
// Kafka, and an in-memory sequence for deterministic tests.
//
// A Queue reads a batch, dispatches each message sequentially to a handler,
// and deletes the message unless the handler retains it or fails. Any loop
// error goes to an error hook followed by a fixed sleep; the queue never
// terminates itself on transient errors. Stop is cooperative: in-flight
// work finishes and the loop exits at the next iteration, and Resume is
// always legal afterwards.
//
// # Backends
//
// Backend packages register themselves, so selecting one by config needs a
// blank import:
//
//	import _ "github.com/queueflow/queueflow/backend/sqs"
//
//	q, err := queueflow.NewFromConfig(ctx, &queueflow.Config{
//		Backend:     "sqs",
//		AWSRegion:   "eu-central-1",
//		SQSQueueURL: "https://sqs.eu-central-1.amazonaws.com/123456789012/jobs",
//	}, queueflow.Options{})
//
// Backends can also be constructed directly and handed to New, which is the
// usual route for tests and for the in-memory backend.
//
// # Acknowledgment
//
// The handler returns an Ack: AckDelete (the zero value) deletes the
// message after the handler returns, AckRetain leaves it for the
// transport's redelivery policy, and a returned error leaves it undeleted
// and surfaces through the loop's error path. Unparseable bodies are
// deleted as poison messages; a body that parses to an empty JSON object is
// treated as a heartbeat and dropped silently.
package queueflow
