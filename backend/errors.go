package backend

import (
	"errors"
	"fmt"
)

// Classification codes for per-message errors raised by Dispatch.
const (
	CodeNoReceiptHandle = "NO_RECEIPT_HANDLE"
	CodeEmptyBody       = "EMPTY_BODY"
	CodeMalformedBody   = "MALFORMED_BODY"
)

var (
	ErrNoReceiptHandle = errors.New("queueflow: message has no receipt handle")
	ErrEmptyBody       = errors.New("queueflow: message body is empty")
	ErrMalformedBody   = errors.New("queueflow: message body is not valid JSON")
)

// MessageError is a classified per-message failure. It wraps the underlying
// cause so errors.Is works against the sentinel errors above.
type MessageError struct {
	Code      string
	MessageID string

	cause error
}

func newMessageError(code, messageID string, cause error) *MessageError {
	return &MessageError{Code: code, MessageID: messageID, cause: cause}
}

func (e *MessageError) Error() string {
	if e.MessageID == "" {
		return fmt.Sprintf("queueflow: %s: %v", e.Code, e.cause)
	}
	return fmt.Sprintf("queueflow: %s: message %s: %v", e.Code, e.MessageID, e.cause)
}

func (e *MessageError) Unwrap() error { return e.cause }

// ClassOf returns the classification code of err, or "" when err is not a
// classified message error.
func ClassOf(err error) string {
	var me *MessageError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}
