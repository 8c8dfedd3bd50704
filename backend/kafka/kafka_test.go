package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	segmentio "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queueflow/queueflow/backend"
	"github.com/queueflow/queueflow/internal/runtime/logging"
)

type fakeReader struct {
	messages []segmentio.Message
	fetchErr error

	committed []segmentio.Message
	commitErr error

	closed bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (segmentio.Message, error) {
	if f.fetchErr != nil {
		return segmentio.Message{}, f.fetchErr
	}
	if len(f.messages) == 0 {
		<-ctx.Done()
		return segmentio.Message{}, ctx.Err()
	}
	m := f.messages[0]
	f.messages = f.messages[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...segmentio.Message) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

type fakeWriter struct {
	written  []segmentio.Message
	writeErr error
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...segmentio.Message) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestNew_Defaults(t *testing.T) {
	b := New(&fakeReader{}, &fakeWriter{}, Options{})
	assert.Equal(t, 20*time.Second, b.fetchTimeout)
	assert.NotNil(t, b.logger)
}

func TestReadMessages_FetchesOne(t *testing.T) {
	reader := &fakeReader{
		messages: []segmentio.Message{
			{Topic: "jobs", Partition: 2, Offset: 41, Value: []byte(`{"name":"a"}`)},
		},
	}
	b := New(reader, &fakeWriter{}, Options{})

	batch, err := b.ReadMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "jobs/2/41", batch[0].ID)
	assert.Equal(t, "jobs/2/41", batch[0].ReceiptHandle)
	assert.Equal(t, []byte(`{"name":"a"}`), batch[0].Body)
}

func TestReadMessages_TimeoutYieldsNilBatch(t *testing.T) {
	reader := &fakeReader{}
	b := New(reader, &fakeWriter{}, Options{FetchTimeout: 5 * time.Millisecond})

	batch, err := b.ReadMessages(context.Background())
	require.NoError(t, err)
	assert.Nil(t, batch)
}

func TestReadMessages_ParentCancellationSurfaces(t *testing.T) {
	reader := &fakeReader{}
	b := New(reader, &fakeWriter{}, Options{FetchTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.ReadMessages(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka: fetch")
}

func TestReadMessages_FetchError(t *testing.T) {
	reader := &fakeReader{fetchErr: errors.New("broker unreachable")}
	b := New(reader, &fakeWriter{}, Options{})

	_, err := b.ReadMessages(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka: fetch")
}

func TestProcessMessage_CommitsOffset(t *testing.T) {
	reader := &fakeReader{
		messages: []segmentio.Message{
			{Topic: "jobs", Partition: 0, Offset: 7, Value: []byte(`{"name":"a","params":{}}`)},
		},
	}
	b := New(reader, &fakeWriter{}, Options{})

	batch, err := b.ReadMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)

	err = b.ProcessMessage(context.Background(), batch[0], func(ctx context.Context, name string, params map[string]any) (backend.Ack, error) {
		return backend.AckDelete, nil
	})
	require.NoError(t, err)
	require.Len(t, reader.committed, 1)
	assert.Equal(t, int64(7), reader.committed[0].Offset)

	b.mu.Lock()
	assert.Empty(t, b.inflight, "committed offsets leave the in-flight table")
	b.mu.Unlock()
}

func TestProcessMessage_RetainSkipsCommit(t *testing.T) {
	reader := &fakeReader{
		messages: []segmentio.Message{
			{Topic: "jobs", Partition: 0, Offset: 8, Value: []byte(`{"name":"a","params":{}}`)},
		},
	}
	b := New(reader, &fakeWriter{}, Options{})

	batch, err := b.ReadMessages(context.Background())
	require.NoError(t, err)

	err = b.ProcessMessage(context.Background(), batch[0], func(ctx context.Context, name string, params map[string]any) (backend.Ack, error) {
		return backend.AckRetain, nil
	})
	require.NoError(t, err)
	assert.Empty(t, reader.committed)
}

func TestDelete_UnknownHandle(t *testing.T) {
	b := New(&fakeReader{}, &fakeWriter{}, Options{})

	err := b.delete(context.Background(), "jobs/0/999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown receipt handle")
}

func TestDelete_CommitFailureKeepsInflight(t *testing.T) {
	reader := &fakeReader{
		messages: []segmentio.Message{
			{Topic: "jobs", Partition: 0, Offset: 9, Value: []byte(`x`)},
		},
		commitErr: errors.New("rebalance in progress"),
	}
	b := New(reader, &fakeWriter{}, Options{})

	batch, err := b.ReadMessages(context.Background())
	require.NoError(t, err)

	err = b.delete(context.Background(), batch[0].ReceiptHandle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka: commit")

	b.mu.Lock()
	assert.Len(t, b.inflight, 1)
	b.mu.Unlock()
}

func TestSendMessage(t *testing.T) {
	writer := &fakeWriter{}
	b := New(&fakeReader{}, writer, Options{})

	require.NoError(t, b.SendMessage(context.Background(), []byte(`{"name":"x"}`)))
	require.Len(t, writer.written, 1)
	assert.Equal(t, []byte(`{"name":"x"}`), writer.written[0].Value)
}

func TestSendMessage_Error(t *testing.T) {
	writer := &fakeWriter{writeErr: errors.New("not leader")}
	b := New(&fakeReader{}, writer, Options{})

	err := b.SendMessage(context.Background(), []byte(`x`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka: write")
}

func TestClose_ClosesBoth(t *testing.T) {
	reader := &fakeReader{}
	writer := &fakeWriter{}
	b := New(reader, writer, Options{})

	require.NoError(t, b.Close())
	assert.True(t, reader.closed)
	assert.True(t, writer.closed)
}

func TestBuild_UsesFactories(t *testing.T) {
	origReader := ReaderFactory
	origWriter := WriterFactory
	defer func() {
		ReaderFactory = origReader
		WriterFactory = origWriter
	}()

	fr := &fakeReader{}
	fw := &fakeWriter{}
	var gotReaderCfg segmentio.ReaderConfig
	var gotBrokers []string
	var gotTopic string
	ReaderFactory = func(cfg segmentio.ReaderConfig) Reader {
		gotReaderCfg = cfg
		return fr
	}
	WriterFactory = func(brokers []string, topic string) Writer {
		gotBrokers = brokers
		gotTopic = topic
		return fw
	}

	cfg := &stubConfig{
		brokers: []string{"localhost:9092"},
		topic:   "jobs",
		group:   "workers",
	}

	built, err := Build(context.Background(), cfg, logging.NewNopServiceLogger())
	require.NoError(t, err)
	require.NotNil(t, built)

	assert.Equal(t, []string{"localhost:9092"}, gotReaderCfg.Brokers)
	assert.Equal(t, "jobs", gotReaderCfg.Topic)
	assert.Equal(t, "workers", gotReaderCfg.GroupID)
	assert.Equal(t, []string{"localhost:9092"}, gotBrokers)
	assert.Equal(t, "jobs", gotTopic)
}

func TestCommitHandle(t *testing.T) {
	m := segmentio.Message{Topic: "jobs", Partition: 3, Offset: 120}
	assert.Equal(t, "jobs/3/120", commitHandle(m))
}

func TestRegisteredInDefaultRegistry(t *testing.T) {
	assert.True(t, backend.DefaultRegistry.Has(BackendName))
}

type stubConfig struct {
	brokers []string
	topic   string
	group   string
}

func (s *stubConfig) GetBackend() string                  { return BackendName }
func (s *stubConfig) GetReceiveWaitTime() time.Duration   { return 0 }
func (s *stubConfig) GetReceiveBatchSize() int            { return 0 }
func (s *stubConfig) GetVisibilityTimeout() time.Duration { return 0 }
func (s *stubConfig) GetSQSQueueURL() string              { return "" }
func (s *stubConfig) GetAWSRegion() string                { return "" }
func (s *stubConfig) GetAWSAccessKeyID() string           { return "" }
func (s *stubConfig) GetAWSSecretAccessKey() string       { return "" }
func (s *stubConfig) GetAWSEndpoint() string              { return "" }
func (s *stubConfig) GetRedisAddr() string                { return "" }
func (s *stubConfig) GetRedisDB() int                     { return 0 }
func (s *stubConfig) GetRedisStream() string              { return "" }
func (s *stubConfig) GetRedisGroup() string               { return "" }
func (s *stubConfig) GetRedisConsumer() string            { return "" }
func (s *stubConfig) GetKafkaBrokers() []string           { return s.brokers }
func (s *stubConfig) GetKafkaTopic() string               { return s.topic }
func (s *stubConfig) GetKafkaConsumerGroup() string       { return s.group }
func (s *stubConfig) GetMemoryIdleWait() time.Duration    { return 0 }
