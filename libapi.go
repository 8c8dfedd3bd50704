package queueflow

import (
	backendpkg "github.com/queueflow/queueflow/backend"
	runtimepkg "github.com/queueflow/queueflow/internal/runtime"
	configpkg "github.com/queueflow/queueflow/internal/runtime/config"
	errspkg "github.com/queueflow/queueflow/internal/runtime/errors"
	idspkg "github.com/queueflow/queueflow/internal/runtime/ids"
	jsoncodec "github.com/queueflow/queueflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/queueflow/queueflow/internal/runtime/logging"
)

type (
	Queue    = runtimepkg.Queue
	Options  = runtimepkg.Options
	Envelope = runtimepkg.Envelope
	Metrics  = runtimepkg.Metrics
	Config   = configpkg.Config

	Backend         = backendpkg.Backend
	BackendBuilder  = backendpkg.Builder
	BackendRegistry = backendpkg.Registry
	BackendConfig   = backendpkg.Config
	Capabilities    = backendpkg.Capabilities
	ReceivedMessage = backendpkg.ReceivedMessage
	Handler         = backendpkg.Handler
	Ack             = backendpkg.Ack
	DeleteFunc      = backendpkg.DeleteFunc
	MessageError    = backendpkg.MessageError

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger
)

// Acknowledgment decisions returned by a Handler.
const (
	AckDelete = backendpkg.AckDelete
	AckRetain = backendpkg.AckRetain
)

// Classification codes carried by MessageError.
const (
	CodeNoReceiptHandle = backendpkg.CodeNoReceiptHandle
	CodeEmptyBody       = backendpkg.CodeEmptyBody
	CodeMalformedBody   = backendpkg.CodeMalformedBody
)

// CreatedAtKey is the params field stamped with the send time.
const CreatedAtKey = runtimepkg.CreatedAtKey

// DefaultSleepTimeout is the fixed backoff applied after a loop error.
const DefaultSleepTimeout = runtimepkg.DefaultSleepTimeout

var (
	New           = runtimepkg.New
	NewFromConfig = runtimepkg.NewFromConfig
	NewMetrics    = runtimepkg.NewMetrics

	ValidateConfig = configpkg.ValidateConfig

	// Backend registry. Import individual backends via:
	// _ "github.com/queueflow/queueflow/backend/sqs"
	DefaultBackendRegistry = backendpkg.DefaultRegistry
	RegisterBackend        = backendpkg.Register
	BuildBackend           = backendpkg.Build
	GetCapabilities        = backendpkg.GetCapabilities
	Dispatch               = backendpkg.Dispatch

	// Classified per-message errors raised by Dispatch.
	ErrNoReceiptHandle = backendpkg.ErrNoReceiptHandle
	ErrEmptyBody       = backendpkg.ErrEmptyBody
	ErrMalformedBody   = backendpkg.ErrMalformedBody
	ClassOf            = backendpkg.ClassOf

	ErrBackendRequired = errspkg.ErrBackendRequired
	ErrHandlerRequired = errspkg.ErrHandlerRequired
	ErrNameRequired    = errspkg.ErrNameRequired
	ErrConfigRequired  = errspkg.ErrConfigRequired

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewNopServiceLogger       = loggingpkg.NewNopServiceLogger

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	CreateULID = idspkg.CreateULID
)
