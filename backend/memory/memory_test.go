package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queueflow/queueflow/backend"
)

func TestNew_Defaults(t *testing.T) {
	b := New(0, 0, nil)
	assert.Equal(t, 1, b.batchSize)
	assert.Equal(t, defaultIdleWait, b.idleWait)
	assert.NotNil(t, b.logger)
}

func TestBackend_SeedAndRead(t *testing.T) {
	b := New(10, time.Millisecond, nil)
	b.Seed([]byte(`{"name":"a"}`), []byte(`{"name":"b"}`))
	assert.Equal(t, 2, b.Len())

	batch, err := b.ReadMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, []byte(`{"name":"a"}`), batch[0].Body)
	assert.Equal(t, []byte(`{"name":"b"}`), batch[1].Body)
	assert.NotEmpty(t, batch[0].ID)
	assert.Equal(t, batch[0].ID, batch[0].ReceiptHandle)

	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 2, b.InFlight())
}

func TestBackend_ReadRespectsBatchSize(t *testing.T) {
	b := New(2, time.Millisecond, nil)
	b.Seed([]byte(`1`), []byte(`2`), []byte(`3`))

	batch, err := b.ReadMessages(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch, 2)
	assert.Equal(t, 1, b.Len())
}

func TestBackend_ReadEmptySleepsAndReturnsNil(t *testing.T) {
	b := New(1, 5*time.Millisecond, nil)

	start := time.Now()
	batch, err := b.ReadMessages(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Nil(t, batch)
	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
}

func TestBackend_ReadEmptyHonorsContext(t *testing.T) {
	b := New(1, time.Minute, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := b.ReadMessages(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackend_ProcessMessageDeletes(t *testing.T) {
	b := New(1, time.Millisecond, nil)
	b.Seed([]byte(`{"name":"a","params":{}}`))

	batch, err := b.ReadMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)

	var handled int
	err = b.ProcessMessage(context.Background(), batch[0], func(ctx context.Context, name string, params map[string]any) (backend.Ack, error) {
		handled++
		return backend.AckDelete, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, handled)
	assert.Equal(t, 0, b.InFlight())
	assert.Equal(t, 1, b.Deleted())
}

func TestBackend_DeleteUnknownHandle(t *testing.T) {
	b := New(1, time.Millisecond, nil)

	err := b.delete(context.Background(), "no-such-handle")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown receipt handle")
}

func TestBackend_SendMessage(t *testing.T) {
	b := New(1, time.Millisecond, nil)

	require.NoError(t, b.SendMessage(context.Background(), []byte(`{"name":"x"}`)))
	assert.Equal(t, 1, b.Len())
}

func TestBackend_SendAfterClose(t *testing.T) {
	b := New(1, time.Millisecond, nil)
	b.Seed([]byte(`leftover`))

	require.NoError(t, b.Close())

	err := b.SendMessage(context.Background(), []byte(`x`))
	assert.Error(t, err)

	// closed backends still drain what was enqueued
	batch, err := b.ReadMessages(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch, 1)
}

func TestBuild_UsesConfigValues(t *testing.T) {
	cfg := &stubConfig{batchSize: 3, idleWait: 7 * time.Millisecond}

	built, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)

	b, ok := built.(*Backend)
	require.True(t, ok)
	assert.Equal(t, 3, b.batchSize)
	assert.Equal(t, 7*time.Millisecond, b.idleWait)
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities()
	assert.Equal(t, BackendName, caps.Name)
	assert.True(t, caps.RequiresIdleSleep())
}

func TestRegisteredInDefaultRegistry(t *testing.T) {
	assert.True(t, backend.DefaultRegistry.Has(BackendName))
}

type stubConfig struct {
	batchSize int
	idleWait  time.Duration
}

func (s *stubConfig) GetBackend() string                  { return BackendName }
func (s *stubConfig) GetReceiveWaitTime() time.Duration   { return 0 }
func (s *stubConfig) GetReceiveBatchSize() int            { return s.batchSize }
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
func (s *stubConfig) GetKafkaBrokers() []string           { return nil }
func (s *stubConfig) GetKafkaTopic() string               { return "" }
func (s *stubConfig) GetKafkaConsumerGroup() string       { return "" }
func (s *stubConfig) GetMemoryIdleWait() time.Duration    { return s.idleWait }
