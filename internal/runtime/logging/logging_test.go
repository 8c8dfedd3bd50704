package logging

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingAdapter struct {
	errorMsg    string
	errorErr    error
	errorFields watermill.LogFields

	infoMsg    string
	infoFields watermill.LogFields

	debugMsg    string
	debugFields watermill.LogFields

	withFields watermill.LogFields
}

func (c *capturingAdapter) Error(msg string, err error, fields watermill.LogFields) {
	c.errorMsg = msg
	c.errorErr = err
	c.errorFields = fields
}

func (c *capturingAdapter) Info(msg string, fields watermill.LogFields) {
	c.infoMsg = msg
	c.infoFields = fields
}

func (c *capturingAdapter) Debug(msg string, fields watermill.LogFields) {
	c.debugMsg = msg
	c.debugFields = fields
}

func (c *capturingAdapter) Trace(msg string, fields watermill.LogFields) {}

func (c *capturingAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	c.withFields = fields
	return c
}

func TestNewSlogServiceLogger_NilPanics(t *testing.T) {
	assert.Panics(t, func() { NewSlogServiceLogger(nil) })
}

func TestNewWatermillServiceLogger_NilPanics(t *testing.T) {
	assert.Panics(t, func() { NewWatermillServiceLogger(nil) })
}

func TestServiceLogger_FieldMapping(t *testing.T) {
	adapter := &capturingAdapter{}
	logger := NewWatermillServiceLogger(adapter)

	logger.Info("hello", LogFields{"k": "v"})
	assert.Equal(t, "hello", adapter.infoMsg)
	assert.Equal(t, watermill.LogFields{"k": "v"}, adapter.infoFields)

	logger.Debug("dbg", LogFields{"n": 1})
	assert.Equal(t, "dbg", adapter.debugMsg)
	assert.Equal(t, watermill.LogFields{"n": 1}, adapter.debugFields)

	boom := assert.AnError
	logger.Error("failed", boom, LogFields{"op": "read"})
	assert.Equal(t, "failed", adapter.errorMsg)
	assert.Equal(t, boom, adapter.errorErr)
	assert.Equal(t, watermill.LogFields{"op": "read"}, adapter.errorFields)
}

func TestServiceLogger_EmptyFieldsAreNil(t *testing.T) {
	adapter := &capturingAdapter{infoFields: watermill.LogFields{"stale": true}}
	logger := NewWatermillServiceLogger(adapter)

	logger.Info("empty", nil)
	assert.Nil(t, adapter.infoFields)

	logger.Info("empty", LogFields{})
	assert.Nil(t, adapter.infoFields)
}

func TestServiceLogger_With(t *testing.T) {
	adapter := &capturingAdapter{}
	logger := NewWatermillServiceLogger(adapter)

	child := logger.With(LogFields{"component": "queue"})
	require.NotNil(t, child)
	assert.Equal(t, watermill.LogFields{"component": "queue"}, adapter.withFields)

	child.Info("from child", nil)
	assert.Equal(t, "from child", adapter.infoMsg)
}

func TestNopServiceLogger(t *testing.T) {
	logger := NewNopServiceLogger()

	assert.NotPanics(t, func() {
		logger.Debug("a", nil)
		logger.Info("b", LogFields{"k": "v"})
		logger.Error("c", assert.AnError, nil)
		logger.With(LogFields{"x": 1}).Info("d", nil)
	})
}
