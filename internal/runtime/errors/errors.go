package errors

import sterrors "errors"

var (
	ErrBackendRequired = sterrors.New("queueflow: backend is required")
	ErrHandlerRequired = sterrors.New("queueflow: handler function is required")
	ErrNameRequired    = sterrors.New("queueflow: envelope name is required")
	ErrConfigRequired  = sterrors.New("queueflow: config is required")
)
